package registry

import (
	"context"
	"fmt"

	"mcpsentry/pkg/discovery"
)

var disclosureIndicators = []string{
	"traceback (most recent call last)", "at java.", "goroutine ",
	"stack trace", "/home/", "/usr/lib/", "c:\\users\\",
	"syntaxerror", "nullpointerexception", "panic:",
}

// Data leakage: responses captured by these checks are additionally scanned
// by the executor's PII and credential detectors; the check's own criterion
// covers structural disclosure (stack traces, internals), the detectors
// cover content disclosure.
func leakageChecks() []Check {
	return []Check{
		{
			Name:        "error_message_disclosure",
			Category:    CategoryDataLeakage,
			Severity:    SeverityHigh,
			TargetKind:  discovery.KindTool,
			Description: "Provokes an error and fails if the message exposes stack traces or server internals.",
			Run:         runErrorMessageDisclosure,
		},
		{
			Name:        "verbose_response_scan",
			Category:    CategoryDataLeakage,
			Severity:    SeverityMedium,
			TargetKind:  discovery.KindTool,
			Description: "Makes a benign call and captures the response for sensitive-data scanning.",
			Run:         runVerboseResponseScan,
		},
		{
			Name:        "resource_content_scan",
			Category:    CategoryDataLeakage,
			Severity:    SeverityHigh,
			TargetKind:  discovery.KindResource,
			Description: "Reads the resource and captures its content for sensitive-data scanning.",
			Run:         runResourceContentScan,
		},
		{
			Name:        "prompt_template_scan",
			Category:    CategoryDataLeakage,
			Severity:    SeverityMedium,
			TargetKind:  discovery.KindPrompt,
			Description: "Renders the prompt with empty arguments and captures it for sensitive-data scanning.",
			Run:         runPromptTemplateScan,
		},
	}
}

func runErrorMessageDisclosure(ctx context.Context, in CheckInput) (CheckOutcome, error) {
	// A wrong-typed argument reliably provokes an error path.
	args := map[string]any{}
	for prop, declared := range schemaProperties(in) {
		args[prop] = wrongTypedValue(declared)
	}
	if len(args) == 0 {
		args["zz_error_probe"] = map[string]any{"bad": true}
	}

	out, _, err := callTool(ctx, in, args)
	if err != nil {
		if marker, found := containsAny(err.Error(), disclosureIndicators); found {
			return CheckOutcome{
				Passed:   false,
				Evidence: fmt.Sprintf("protocol error exposes internals (%q): %v", marker, err),
			}, nil
		}
		return CheckOutcome{Passed: true, Evidence: "protocol error without internal details"}, nil
	}
	if marker, found := containsAny(out.Text, disclosureIndicators); found {
		return CheckOutcome{
			Passed:   false,
			Evidence: fmt.Sprintf("error response exposes internals (%q): %s", marker, truncate(out.Text, evidenceLimit)),
			Response: out.Text,
		}, nil
	}
	return CheckOutcome{
		Passed:   true,
		Evidence: "error response contains no internal details",
		Response: out.Text,
	}, nil
}

func runVerboseResponseScan(ctx context.Context, in CheckInput) (CheckOutcome, error) {
	out, _, err := callTool(ctx, in, map[string]any{})
	if err != nil {
		return CheckOutcome{Passed: true, Evidence: fmt.Sprintf("benign call rejected, no response to scan: %v", err)}, nil
	}
	return CheckOutcome{
		Passed:   true,
		Evidence: "captured benign response for sensitive-data scan",
		Response: out.Text,
	}, nil
}

func runResourceContentScan(ctx context.Context, in CheckInput) (CheckOutcome, error) {
	out, err := in.Client.ReadResource(ctx, in.Target.Name)
	if err != nil {
		return CheckOutcome{Passed: true, Evidence: fmt.Sprintf("resource read rejected, no content to scan: %v", err)}, nil
	}
	return CheckOutcome{
		Passed:   true,
		Evidence: "captured resource content for sensitive-data scan",
		Response: out.Text,
	}, nil
}

func runPromptTemplateScan(ctx context.Context, in CheckInput) (CheckOutcome, error) {
	out, err := in.Client.GetPrompt(ctx, in.Target.Name, map[string]string{})
	if err != nil {
		return CheckOutcome{Passed: true, Evidence: fmt.Sprintf("prompt render rejected, no template to scan: %v", err)}, nil
	}
	return CheckOutcome{
		Passed:   true,
		Evidence: "captured rendered prompt for sensitive-data scan",
		Response: out.Text,
	}, nil
}
