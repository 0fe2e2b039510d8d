package registry

import (
	"context"
	"encoding/json"
	"strings"

	"mcpsentry/pkg/discovery"
)

const evidenceLimit = 2000

// intParam reads a positive integer check parameter. Planned params travel
// through JSON, so numbers arrive as float64 (or json.Number when decoders
// opt in); literal ints from the built-in catalog are accepted too.
func intParam(params map[string]any, key string, def int) int {
	v, ok := params[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		if n > 0 {
			return n
		}
	case float64:
		if n > 0 && n == float64(int(n)) {
			return int(n)
		}
	case json.Number:
		if i, err := n.Int64(); err == nil && i > 0 {
			return int(i)
		}
	}
	return def
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

// schemaProperties extracts top-level property names and declared JSON types
// from a tool's input schema. Returns nil when the schema is absent or not an
// object schema.
func schemaProperties(in CheckInput) map[string]string {
	tool, ok := in.Snapshot.Tool(in.Target.Name)
	if !ok || len(tool.InputSchema) == 0 {
		return nil
	}

	var schema struct {
		Properties map[string]struct {
			Type string `json:"type"`
		} `json:"properties"`
	}
	if err := json.Unmarshal(tool.InputSchema, &schema); err != nil {
		return nil
	}

	props := make(map[string]string, len(schema.Properties))
	for name, p := range schema.Properties {
		props[name] = p.Type
	}
	return props
}

// wrongTypedValue returns a value that violates the declared JSON type.
func wrongTypedValue(declared string) any {
	switch declared {
	case "string":
		return map[string]any{"unexpected": "object"}
	case "number", "integer":
		return "not-a-number"
	case "boolean":
		return []any{"not", "a", "bool"}
	case "array":
		return 42
	case "object":
		return "not-an-object"
	default:
		return map[string]any{"unexpected": true}
	}
}

// callTool invokes the target tool and folds the outcome into the common
// shape checks reason about: transport error, protocol-level rejection, or
// acceptance with response text.
func callTool(ctx context.Context, in CheckInput, args map[string]any) (outcome *discovery.CallOutcome, rejected bool, err error) {
	out, err := in.Client.CallTool(ctx, in.Target.Name, args)
	if err != nil {
		return nil, false, err
	}
	return out, out.IsError, nil
}

// rejectedOutcome builds the pass outcome for malformed-input checks where a
// client-error rejection is the correct server behavior.
func rejectedOutcome(out *discovery.CallOutcome, what string) CheckOutcome {
	return CheckOutcome{
		Passed:   true,
		Evidence: "target rejected " + what + ": " + truncate(out.Text, evidenceLimit),
		Response: out.Text,
	}
}

// acceptedOutcome builds the fail outcome for malformed-input checks where
// the server accepted input it should have refused.
func acceptedOutcome(out *discovery.CallOutcome, what string) CheckOutcome {
	return CheckOutcome{
		Passed:   false,
		Evidence: "target accepted " + what + ": " + truncate(out.Text, evidenceLimit),
		Response: out.Text,
	}
}

func containsAny(haystack string, needles []string) (string, bool) {
	lower := strings.ToLower(haystack)
	for _, n := range needles {
		if strings.Contains(lower, strings.ToLower(n)) {
			return n, true
		}
	}
	return "", false
}
