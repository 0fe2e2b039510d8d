package registry

import (
	"context"
	"fmt"

	"mcpsentry/pkg/discovery"
)

// Protocol robustness: the target must survive structurally legal but
// degenerate calls without transport-level failure. A protocol error or a
// dropped connection is a fail; a clean result or a clean in-protocol
// rejection is a pass.
func protocolChecks() []Check {
	return []Check{
		{
			Name:        "empty_arguments",
			Category:    CategoryProtocolRobustness,
			Severity:    SeverityMedium,
			TargetKind:  discovery.KindTool,
			Description: "Calls the tool with an empty argument object; the server must answer in-protocol.",
			Run:         runEmptyArguments,
		},
		{
			Name:        "null_argument_values",
			Category:    CategoryProtocolRobustness,
			Severity:    SeverityMedium,
			TargetKind:  discovery.KindTool,
			Description: "Sends null for every declared argument; the server must not crash the transport.",
			Run:         runNullArguments,
		},
		{
			Name:        "unknown_tool_name",
			Category:    CategoryProtocolRobustness,
			Severity:    SeverityHigh,
			TargetKind:  discovery.KindTool,
			Description: "Calls a tool name that was never advertised; the server must refuse it.",
			Run:         runUnknownToolName,
		},
		{
			Name:        "repeated_call_stability",
			Category:    CategoryProtocolRobustness,
			Severity:    SeverityLow,
			TargetKind:  discovery.KindTool,
			Description: "Issues the same degenerate call twice; both must complete in-protocol.",
			Run:         runRepeatedCallStability,
		},
	}
}

func runEmptyArguments(ctx context.Context, in CheckInput) (CheckOutcome, error) {
	out, _, err := callTool(ctx, in, map[string]any{})
	if err != nil {
		return CheckOutcome{
			Passed:   false,
			Evidence: fmt.Sprintf("transport error on empty arguments: %v", err),
		}, nil
	}
	return CheckOutcome{
		Passed:   true,
		Evidence: "in-protocol response to empty arguments: " + truncate(out.Text, evidenceLimit),
		Response: out.Text,
	}, nil
}

func runNullArguments(ctx context.Context, in CheckInput) (CheckOutcome, error) {
	args := map[string]any{}
	for prop := range schemaProperties(in) {
		args[prop] = nil
	}

	out, _, err := callTool(ctx, in, args)
	if err != nil {
		return CheckOutcome{
			Passed:   false,
			Evidence: fmt.Sprintf("transport error on null argument values: %v", err),
		}, nil
	}
	return CheckOutcome{
		Passed:   true,
		Evidence: "in-protocol response to null argument values: " + truncate(out.Text, evidenceLimit),
		Response: out.Text,
	}, nil
}

func runUnknownToolName(ctx context.Context, in CheckInput) (CheckOutcome, error) {
	bogus := in.Target.Name + "_zz_nonexistent"
	out, err := in.Client.CallTool(ctx, bogus, map[string]any{})
	if err != nil {
		// A protocol-level "unknown method" error is a correct refusal.
		return CheckOutcome{
			Passed:   true,
			Evidence: fmt.Sprintf("target refused unknown tool %q: %v", bogus, err),
		}, nil
	}
	if out.IsError {
		return CheckOutcome{
			Passed:   true,
			Evidence: fmt.Sprintf("target refused unknown tool %q: %s", bogus, truncate(out.Text, evidenceLimit)),
			Response: out.Text,
		}, nil
	}
	return CheckOutcome{
		Passed:   false,
		Evidence: fmt.Sprintf("target silently accepted unknown tool %q: %s", bogus, truncate(out.Text, evidenceLimit)),
		Response: out.Text,
	}, nil
}

func runRepeatedCallStability(ctx context.Context, in CheckInput) (CheckOutcome, error) {
	for i := 0; i < 2; i++ {
		if _, _, err := callTool(ctx, in, map[string]any{}); err != nil {
			return CheckOutcome{
				Passed:   false,
				Evidence: fmt.Sprintf("call %d of 2 failed at transport level: %v", i+1, err),
			}, nil
		}
	}
	return CheckOutcome{
		Passed:   true,
		Evidence: "two consecutive degenerate calls completed in-protocol",
	}, nil
}
