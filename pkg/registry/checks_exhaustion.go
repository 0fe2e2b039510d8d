package registry

import (
	"context"
	"fmt"
	"time"

	"mcpsentry/pkg/discovery"
)

// Resource exhaustion: bounded load probes. These stay deliberately small —
// the point is to observe whether the server degrades, not to degrade it.
func exhaustionChecks() []Check {
	return []Check{
		{
			Name:        "rapid_sequential_calls",
			Category:    CategoryResourceExhaustion,
			Severity:    SeverityMedium,
			TargetKind:  discovery.KindTool,
			Description: "Issues a short burst of sequential calls; all must complete in-protocol.",
			Params:      map[string]any{"burst": 5},
			Run:         runRapidSequentialCalls,
		},
		{
			Name:        "large_collection_argument",
			Category:    CategoryResourceExhaustion,
			Severity:    SeverityHigh,
			TargetKind:  discovery.KindTool,
			Description: "Sends a large array argument; the server must reject or bound it.",
			Params:      map[string]any{"elements": 10000},
			Run:         runLargeCollectionArgument,
		},
		{
			Name:        "response_latency_bound",
			Category:    CategoryResourceExhaustion,
			Severity:    SeverityLow,
			TargetKind:  discovery.KindTool,
			Description: "Measures a single benign call and fails if the response is pathologically slow.",
			Params:      map[string]any{"max_ms": 10000},
			Run:         runResponseLatencyBound,
		},
	}
}

func runRapidSequentialCalls(ctx context.Context, in CheckInput) (CheckOutcome, error) {
	burst := intParam(in.Params, "burst", 5)

	for i := 0; i < burst; i++ {
		if err := ctx.Err(); err != nil {
			return CheckOutcome{}, err
		}
		if _, _, err := callTool(ctx, in, map[string]any{}); err != nil {
			return CheckOutcome{
				Passed:   false,
				Evidence: fmt.Sprintf("call %d of %d failed at transport level: %v", i+1, burst, err),
			}, nil
		}
	}
	return CheckOutcome{
		Passed:   true,
		Evidence: fmt.Sprintf("burst of %d sequential calls completed in-protocol", burst),
	}, nil
}

func runLargeCollectionArgument(ctx context.Context, in CheckInput) (CheckOutcome, error) {
	elements := intParam(in.Params, "elements", 10000)

	collection := make([]any, elements)
	for i := range collection {
		collection[i] = i
	}

	args := map[string]any{}
	for prop, declared := range schemaProperties(in) {
		if declared == "array" {
			args[prop] = collection
			break
		}
	}
	if len(args) == 0 {
		args["items"] = collection
	}

	out, rejected, err := callTool(ctx, in, args)
	if err != nil {
		if ctx.Err() != nil {
			return CheckOutcome{}, err
		}
		return CheckOutcome{Passed: true, Evidence: fmt.Sprintf("target refused %d-element collection at protocol level: %v", elements, err)}, nil
	}
	if rejected {
		return rejectedOutcome(out, fmt.Sprintf("%d-element collection", elements)), nil
	}
	return CheckOutcome{
		Passed:   true,
		Evidence: fmt.Sprintf("target handled %d-element collection in-protocol", elements),
		Response: out.Text,
	}, nil
}

func runResponseLatencyBound(ctx context.Context, in CheckInput) (CheckOutcome, error) {
	maxMS := intParam(in.Params, "max_ms", 10000)

	start := time.Now()
	_, _, err := callTool(ctx, in, map[string]any{})
	elapsed := time.Since(start)
	if err != nil {
		if ctx.Err() != nil {
			return CheckOutcome{}, err
		}
		return CheckOutcome{
			Passed:   true,
			Evidence: fmt.Sprintf("call rejected in %s: %v", elapsed, err),
		}, nil
	}
	if elapsed > time.Duration(maxMS)*time.Millisecond {
		return CheckOutcome{
			Passed:   false,
			Evidence: fmt.Sprintf("benign call took %s, above the %dms bound", elapsed, maxMS),
		}, nil
	}
	return CheckOutcome{
		Passed:   true,
		Evidence: fmt.Sprintf("benign call answered in %s", elapsed),
	}, nil
}
