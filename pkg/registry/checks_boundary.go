package registry

import (
	"context"
	"fmt"

	"mcpsentry/pkg/discovery"
)

var traversalIndicators = []string{
	"root:x:", "[boot loader]", "etc/shadow", "id_rsa",
}

// Boundary violation: hostile values that try to escape the tool's intended
// input domain. The server passes by rejecting them or by answering without
// any sign the value escaped.
func boundaryChecks() []Check {
	return []Check{
		{
			Name:        "path_traversal_probe",
			Category:    CategoryBoundaryViolation,
			Severity:    SeverityCritical,
			TargetKind:  discovery.KindTool,
			Description: "Sends a path traversal sequence in every string argument and looks for file-content markers in the response.",
			Params:      map[string]any{"payload": "../../../../etc/passwd"},
			Run:         runPathTraversalProbe,
		},
		{
			Name:        "control_character_injection",
			Category:    CategoryBoundaryViolation,
			Severity:    SeverityHigh,
			TargetKind:  discovery.KindTool,
			Description: "Injects NUL and newline control characters into string arguments; the server must stay in-protocol.",
			Run:         runControlCharacterInjection,
		},
		{
			Name:        "numeric_overflow",
			Category:    CategoryBoundaryViolation,
			Severity:    SeverityMedium,
			TargetKind:  discovery.KindTool,
			Description: "Sends extreme numeric values for numeric arguments; the server must reject or clamp them.",
			Run:         runNumericOverflow,
		},
	}
}

func runPathTraversalProbe(ctx context.Context, in CheckInput) (CheckOutcome, error) {
	payload := "../../../../etc/passwd"
	if p, ok := in.Params["payload"].(string); ok && p != "" {
		payload = p
	}

	args := map[string]any{}
	for prop, declared := range schemaProperties(in) {
		if declared == "string" || declared == "" {
			args[prop] = payload
		}
	}
	if len(args) == 0 {
		args["path"] = payload
	}

	out, _, err := callTool(ctx, in, args)
	if err != nil {
		return CheckOutcome{Passed: true, Evidence: fmt.Sprintf("target refused traversal payload at protocol level: %v", err)}, nil
	}
	if marker, found := containsAny(out.Text, traversalIndicators); found {
		return CheckOutcome{
			Passed:   false,
			Evidence: fmt.Sprintf("response contains file-content marker %q after traversal payload: %s", marker, truncate(out.Text, evidenceLimit)),
			Response: out.Text,
		}, nil
	}
	return CheckOutcome{
		Passed:   true,
		Evidence: "no file-content markers in response to traversal payload",
		Response: out.Text,
	}, nil
}

func runControlCharacterInjection(ctx context.Context, in CheckInput) (CheckOutcome, error) {
	payload := "probe\x00injected\r\nline"

	args := map[string]any{}
	for prop, declared := range schemaProperties(in) {
		if declared == "string" || declared == "" {
			args[prop] = payload
		}
	}
	if len(args) == 0 {
		args["input"] = payload
	}

	out, _, err := callTool(ctx, in, args)
	if err != nil {
		if ctx.Err() != nil {
			return CheckOutcome{}, err
		}
		return CheckOutcome{Passed: true, Evidence: fmt.Sprintf("target refused control characters at protocol level: %v", err)}, nil
	}
	return CheckOutcome{
		Passed:   true,
		Evidence: "in-protocol response to control-character payload: " + truncate(out.Text, evidenceLimit),
		Response: out.Text,
	}, nil
}

func runNumericOverflow(ctx context.Context, in CheckInput) (CheckOutcome, error) {
	props := schemaProperties(in)

	args := map[string]any{}
	for prop, declared := range props {
		if declared == "number" || declared == "integer" {
			args[prop] = float64(1e308)
		}
	}
	if len(args) == 0 {
		return CheckOutcome{
			Passed:   true,
			Evidence: "tool declares no numeric arguments; nothing to overflow",
		}, nil
	}

	out, rejected, err := callTool(ctx, in, args)
	if err != nil {
		return CheckOutcome{Passed: true, Evidence: fmt.Sprintf("target refused extreme numerics at protocol level: %v", err)}, nil
	}
	if rejected {
		return rejectedOutcome(out, "extreme numeric values"), nil
	}
	return CheckOutcome{
		Passed:   true,
		Evidence: "target handled extreme numeric values in-protocol: " + truncate(out.Text, evidenceLimit),
		Response: out.Text,
	}, nil
}
