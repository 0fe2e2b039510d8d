// Package registry holds the static catalog of deterministic security checks.
// It is the single source of truth for what a plan may request and what the
// executor can run: the LLM planner only ever selects and parameterizes
// entries from this catalog, never invents new ones.
package registry

import (
	"context"
	"sort"
	"sync"

	"mcpsentry/pkg/discovery"
)

const Version = "1"

type Category string

const (
	CategoryProtocolRobustness Category = "protocol_robustness"
	CategorySchemaAbuse        Category = "schema_abuse"
	CategoryBoundaryViolation  Category = "boundary_violation"
	CategoryAuthValidation     Category = "auth_validation"
	CategoryResourceExhaustion Category = "resource_exhaustion"
	CategoryDataLeakage        Category = "data_leakage"
	// CategoryAIRedTeam has no registry entries. It is driven by the agent
	// loop, not by fixed check functions.
	CategoryAIRedTeam Category = "ai_red_team"
)

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// CheckInput carries everything a check implementation needs to probe one
// target: the live client, the planned parameters, and the snapshot for
// checks that need surrounding context (e.g. schema lookup).
type CheckInput struct {
	Client   discovery.TargetClient
	Snapshot *discovery.Snapshot
	Target   discovery.TargetRef
	Params   map[string]any
}

// CheckOutcome is the deterministic verdict of one executed check. Response
// holds a raw excerpt of what the target returned so the executor can run
// sensitive-data detectors over it for leakage-category checks.
type CheckOutcome struct {
	Passed   bool
	Evidence string
	Response string
}

type CheckFunc func(ctx context.Context, in CheckInput) (CheckOutcome, error)

// Check is one catalog entry: a named, severity-rated, deterministic probe
// applicable to targets of one kind.
type Check struct {
	Name        string
	Category    Category
	Severity    Severity
	TargetKind  string
	Description string
	// Params are the default concrete parameters the template planner
	// copies into plan entries. May be nil.
	Params map[string]any
	Run    CheckFunc
}

// Registry is the read-only catalog, safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	checks map[Category]map[string]Check
}

// New builds the full built-in catalog.
func New() *Registry {
	r := &Registry{checks: make(map[Category]map[string]Check)}
	r.register(protocolChecks()...)
	r.register(schemaChecks()...)
	r.register(boundaryChecks()...)
	r.register(authChecks()...)
	r.register(exhaustionChecks()...)
	r.register(leakageChecks()...)
	return r
}

func (r *Registry) register(checks ...Check) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range checks {
		if r.checks[c.Category] == nil {
			r.checks[c.Category] = make(map[string]Check)
		}
		r.checks[c.Category][c.Name] = c
	}
}

// Lookup returns the check registered under (category, name).
func (r *Registry) Lookup(category Category, name string) (Check, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byName, ok := r.checks[category]
	if !ok {
		return Check{}, false
	}
	c, ok := byName[name]
	return c, ok
}

// Has reports whether (category, name) exists in the catalog.
func (r *Registry) Has(category Category, name string) bool {
	_, ok := r.Lookup(category, name)
	return ok
}

// ChecksFor returns the checks of one category sorted by name.
func (r *Registry) ChecksFor(category Category) []Check {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Check
	for _, c := range r.checks[category] {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Categories returns the fixed category enumeration in catalog order,
// including the agentic pseudo-category.
func Categories() []Category {
	return []Category{
		CategoryProtocolRobustness,
		CategorySchemaAbuse,
		CategoryBoundaryViolation,
		CategoryAuthValidation,
		CategoryResourceExhaustion,
		CategoryDataLeakage,
		CategoryAIRedTeam,
	}
}

// ValidCategory reports whether the given name is a known category.
func ValidCategory(name string) bool {
	for _, c := range Categories() {
		if string(c) == name {
			return true
		}
	}
	return false
}
