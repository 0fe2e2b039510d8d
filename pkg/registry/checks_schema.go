package registry

import (
	"context"
	"fmt"
	"strings"

	"mcpsentry/pkg/discovery"
)

// Schema abuse: the target advertises an input schema and must enforce it.
// For these checks a client-error rejection is the pass condition; accepting
// input that violates the advertised schema is the fail condition.
func schemaChecks() []Check {
	return []Check{
		{
			Name:        "wrong_type_arguments",
			Category:    CategorySchemaAbuse,
			Severity:    SeverityHigh,
			TargetKind:  discovery.KindTool,
			Description: "Sends a value of the wrong JSON type for every declared argument; the server must reject.",
			Run:         runWrongTypeArguments,
		},
		{
			Name:        "extra_unknown_fields",
			Category:    CategorySchemaAbuse,
			Severity:    SeverityMedium,
			TargetKind:  discovery.KindTool,
			Description: "Adds arguments the schema never declared; the server must reject or ignore them.",
			Run:         runExtraUnknownFields,
		},
		{
			Name:        "deeply_nested_payload",
			Category:    CategorySchemaAbuse,
			Severity:    SeverityMedium,
			TargetKind:  discovery.KindTool,
			Description: "Sends a deeply nested object argument; the server must not fall over parsing it.",
			Params:      map[string]any{"depth": 64},
			Run:         runDeeplyNestedPayload,
		},
		{
			Name:        "oversized_string",
			Category:    CategorySchemaAbuse,
			Severity:    SeverityHigh,
			TargetKind:  discovery.KindTool,
			Description: "Sends an oversized string argument; the server must reject it with a client error.",
			Params:      map[string]any{"size_bytes": 1 << 20},
			Run:         runOversizedString,
		},
	}
}

func runWrongTypeArguments(ctx context.Context, in CheckInput) (CheckOutcome, error) {
	props := schemaProperties(in)
	if len(props) == 0 {
		return CheckOutcome{
			Passed:   true,
			Evidence: "tool declares no typed arguments; nothing to abuse",
		}, nil
	}

	args := make(map[string]any, len(props))
	for prop, declared := range props {
		args[prop] = wrongTypedValue(declared)
	}

	out, rejected, err := callTool(ctx, in, args)
	if err != nil {
		return CheckOutcome{Passed: true, Evidence: fmt.Sprintf("target refused mistyped arguments at protocol level: %v", err)}, nil
	}
	if rejected {
		return rejectedOutcome(out, "mistyped arguments"), nil
	}
	return acceptedOutcome(out, "mistyped arguments"), nil
}

func runExtraUnknownFields(ctx context.Context, in CheckInput) (CheckOutcome, error) {
	args := map[string]any{
		"zz_undeclared_field":   "probe",
		"zz_undeclared_numeric": 1337,
	}

	out, rejected, err := callTool(ctx, in, args)
	if err != nil {
		return CheckOutcome{Passed: true, Evidence: fmt.Sprintf("target refused undeclared fields at protocol level: %v", err)}, nil
	}
	if rejected {
		return rejectedOutcome(out, "undeclared fields"), nil
	}
	// Acceptance is tolerable only if the undeclared values are not echoed
	// back, which would suggest they were processed.
	if strings.Contains(out.Text, "zz_undeclared_field") || strings.Contains(out.Text, "1337") {
		return acceptedOutcome(out, "undeclared fields (values echoed in response)"), nil
	}
	return CheckOutcome{
		Passed:   true,
		Evidence: "target ignored undeclared fields: " + truncate(out.Text, evidenceLimit),
		Response: out.Text,
	}, nil
}

func runDeeplyNestedPayload(ctx context.Context, in CheckInput) (CheckOutcome, error) {
	depth := intParam(in.Params, "depth", 64)

	nested := any("bottom")
	for i := 0; i < depth; i++ {
		nested = map[string]any{"n": nested}
	}

	args := map[string]any{}
	props := schemaProperties(in)
	for prop := range props {
		args[prop] = nested
		break
	}
	if len(args) == 0 {
		args["payload"] = nested
	}

	_, _, err := callTool(ctx, in, args)
	if err != nil {
		// Either a parse rejection or a timeout; a timeout surfaces as an
		// error result upstream, a rejection passes here.
		if ctx.Err() != nil {
			return CheckOutcome{}, err
		}
		return CheckOutcome{Passed: true, Evidence: fmt.Sprintf("target refused nested payload (depth %d): %v", depth, err)}, nil
	}
	return CheckOutcome{
		Passed:   true,
		Evidence: fmt.Sprintf("target survived nested payload of depth %d", depth),
	}, nil
}

func runOversizedString(ctx context.Context, in CheckInput) (CheckOutcome, error) {
	size := intParam(in.Params, "size_bytes", 1<<20)
	blob := strings.Repeat("A", size)

	args := map[string]any{}
	for prop, declared := range schemaProperties(in) {
		if declared == "string" || declared == "" {
			args[prop] = blob
			break
		}
	}
	if len(args) == 0 {
		args["payload"] = blob
	}

	out, rejected, err := callTool(ctx, in, args)
	if err != nil {
		if ctx.Err() != nil {
			return CheckOutcome{}, err
		}
		return CheckOutcome{Passed: true, Evidence: fmt.Sprintf("target refused %d-byte string at protocol level: %v", size, err)}, nil
	}
	if rejected {
		return rejectedOutcome(out, fmt.Sprintf("%d-byte string", size)), nil
	}
	return acceptedOutcome(out, fmt.Sprintf("%d-byte string", size)), nil
}
