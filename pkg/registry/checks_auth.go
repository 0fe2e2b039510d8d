package registry

import (
	"context"
	"fmt"
	"strings"

	"mcpsentry/pkg/discovery"
)

// Auth validation: arguments must not be able to smuggle identity or
// privilege claims past whatever authentication the transport performs.
func authChecks() []Check {
	return []Check{
		{
			Name:        "forged_role_claims",
			Category:    CategoryAuthValidation,
			Severity:    SeverityCritical,
			TargetKind:  discovery.KindTool,
			Description: "Adds role/admin claims as tool arguments; the server must reject or ignore them.",
			Run:         runForgedRoleClaims,
		},
		{
			Name:        "token_echo",
			Category:    CategoryAuthValidation,
			Severity:    SeverityHigh,
			TargetKind:  discovery.KindTool,
			Description: "Passes a canary bearer token as an argument and fails if the server reflects it back.",
			Run:         runTokenEcho,
		},
		{
			Name:        "foreign_identity_params",
			Category:    CategoryAuthValidation,
			Severity:    SeverityHigh,
			TargetKind:  discovery.KindTool,
			Description: "Supplies identifiers for a different principal; the server must not act on caller-chosen identity.",
			Run:         runForeignIdentityParams,
		},
	}
}

func runForgedRoleClaims(ctx context.Context, in CheckInput) (CheckOutcome, error) {
	args := map[string]any{
		"role":     "admin",
		"is_admin": true,
		"scope":    "root",
	}

	out, rejected, err := callTool(ctx, in, args)
	if err != nil {
		return CheckOutcome{Passed: true, Evidence: fmt.Sprintf("target refused forged role claims at protocol level: %v", err)}, nil
	}
	if rejected {
		return rejectedOutcome(out, "forged role claims"), nil
	}
	// Acceptance alone is inconclusive; reflecting the claims suggests the
	// server treated them as real.
	if _, found := containsAny(out.Text, []string{"\"role\":\"admin\"", "admin access", "elevated"}); found {
		return acceptedOutcome(out, "forged role claims (reflected in response)"), nil
	}
	return CheckOutcome{
		Passed:   true,
		Evidence: "forged role claims were not honored: " + truncate(out.Text, evidenceLimit),
		Response: out.Text,
	}, nil
}

const canaryToken = "Bearer mcpsentry-canary-7f3a1c"

func runTokenEcho(ctx context.Context, in CheckInput) (CheckOutcome, error) {
	args := map[string]any{
		"authorization": canaryToken,
		"token":         canaryToken,
	}

	out, _, err := callTool(ctx, in, args)
	if err != nil {
		return CheckOutcome{Passed: true, Evidence: fmt.Sprintf("target refused canary token at protocol level: %v", err)}, nil
	}
	if strings.Contains(out.Text, "mcpsentry-canary-7f3a1c") {
		return CheckOutcome{
			Passed:   false,
			Evidence: "canary token reflected in response: " + truncate(out.Text, evidenceLimit),
			Response: out.Text,
		}, nil
	}
	return CheckOutcome{
		Passed:   true,
		Evidence: "canary token not reflected in response",
		Response: out.Text,
	}, nil
}

func runForeignIdentityParams(ctx context.Context, in CheckInput) (CheckOutcome, error) {
	args := map[string]any{
		"user_id":  "00000000-0000-0000-0000-000000000001",
		"username": "administrator",
	}

	out, rejected, err := callTool(ctx, in, args)
	if err != nil {
		return CheckOutcome{Passed: true, Evidence: fmt.Sprintf("target refused foreign identity at protocol level: %v", err)}, nil
	}
	if rejected {
		return rejectedOutcome(out, "foreign identity parameters"), nil
	}
	if _, found := containsAny(out.Text, []string{"administrator", "00000000-0000-0000-0000-000000000001"}); found {
		return acceptedOutcome(out, "foreign identity parameters (identity honored in response)"), nil
	}
	return CheckOutcome{
		Passed:   true,
		Evidence: "foreign identity parameters were not honored",
		Response: out.Text,
	}, nil
}
