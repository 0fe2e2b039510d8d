// Package planner turns a discovery snapshot into a validated test plan.
// The LLM proposes, the registry disposes: no plan entry reaches the
// executor unless its (category, check) pair exists in the catalog and its
// target exists in the snapshot.
package planner

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"mcpsentry/pkg/discovery"
	sentryerrors "mcpsentry/pkg/errors"
	"mcpsentry/pkg/llm"
	"mcpsentry/pkg/logger"
	"mcpsentry/pkg/registry"
)

const (
	SourceLLM      = "llm"
	SourceCached   = "cached"
	SourceTemplate = "template"
)

// PlanEntry is one validated planned check.
type PlanEntry struct {
	Category registry.Category   `json:"category"`
	Check    string              `json:"check"`
	Target   discovery.TargetRef `json:"target"`
	Params   map[string]any      `json:"params,omitempty"`
}

// Request is one planning invocation. Categories must already be resolved
// from the preset or the explicit selection; the agentic pseudo-category is
// ignored here.
type Request struct {
	Snapshot     *discovery.Snapshot
	Categories   []registry.Category
	Template     bool
	WantBriefing bool
	ForceRefresh bool
}

// Result is a validated plan plus the analysis that produced it.
type Result struct {
	Plan     []PlanEntry
	Source   string
	Profile  llm.SecurityProfile
	Briefing *CachedBriefing
	Usage    llm.Usage
}

// Planner produces validated plans. With a nil LLM client it only ever
// produces template plans.
type Planner struct {
	reg    *registry.Registry
	client llm.Client
	cache  *BriefingCache
	logger *logger.Logger
}

func New(reg *registry.Registry, client llm.Client, cache *BriefingCache) *Planner {
	return &Planner{
		reg:    reg,
		client: client,
		cache:  cache,
		logger: logger.NewLogger(logrus.InfoLevel),
	}
}

// Plan generates and validates a test plan for the snapshot. LLM failures
// are never fatal: the planner falls back to template mode.
func (p *Planner) Plan(ctx context.Context, req *Request) (*Result, error) {
	if req.Template || p.client == nil {
		return p.templateResult(req), nil
	}

	result := &Result{Source: SourceLLM}

	var briefing *llm.MissionBriefing
	if req.WantBriefing && p.cache != nil {
		cached, usage, err := p.cache.Get(ctx, req.Snapshot, req.ForceRefresh)
		result.Usage = result.Usage.Add(usage)
		if err != nil {
			p.logger.Error("Mission briefing unavailable, planning without it", logger.Fields{"error": err})
		} else {
			result.Briefing = cached
			briefing = &cached.Briefing
			if cached.CacheHit {
				result.Source = SourceCached
			}
		}
	}

	planReq := &llm.PlanRequest{
		Target:     req.Snapshot.Target,
		Categories: categoryNames(req.Categories),
		Checks:     p.checkSummaries(req.Categories),
		Targets:    TargetSummaries(req.Snapshot),
		Briefing:   briefing,
	}

	proposal, err := p.requestValidPlan(ctx, planReq, req)
	if err != nil {
		p.logger.Error("LLM planning failed, falling back to template mode", logger.Fields{"error": err})
		fallback := p.templateResult(req)
		fallback.Usage = result.Usage
		fallback.Briefing = result.Briefing
		return fallback, nil
	}
	result.Usage = result.Usage.Add(proposal.usage)

	result.Plan = proposal.entries
	result.Profile = proposal.proposal.Profile
	return result, nil
}

type validatedProposal struct {
	proposal *llm.PlanProposal
	entries  []PlanEntry
	usage    llm.Usage
}

// requestValidPlan issues the structured generation request and validates
// the output. On an invalid plan it re-requests exactly once before giving
// up; the caller handles the template fallback.
func (p *Planner) requestValidPlan(ctx context.Context, planReq *llm.PlanRequest, req *Request) (*validatedProposal, error) {
	var total llm.Usage
	var lastErr error

	for attempt := 0; attempt < 2; attempt++ {
		proposal, usage, err := p.client.GeneratePlan(ctx, planReq)
		total = total.Add(usage)
		if err != nil {
			return nil, err
		}

		entries, err := p.Validate(proposal.Entries, req.Snapshot, req.Categories)
		if err == nil {
			return &validatedProposal{proposal: proposal, entries: entries, usage: total}, nil
		}

		lastErr = err
		p.logger.Warn("Rejected invalid LLM plan", logger.Fields{"attempt": attempt + 1, "error": err})
	}

	return nil, fmt.Errorf("plan invalid after re-request: %w", lastErr)
}

// Validate confirms every proposed entry against the registry and the
// snapshot. A single invalid entry rejects the whole plan — the executor
// never receives anything the catalog cannot account for.
func (p *Planner) Validate(proposed []llm.ProposedEntry, snapshot *discovery.Snapshot, categories []registry.Category) ([]PlanEntry, error) {
	if len(proposed) == 0 {
		return nil, sentryerrors.NewPlanValidationError([]string{"plan is empty"})
	}

	enabled := make(map[registry.Category]bool, len(categories))
	for _, c := range categories {
		enabled[c] = true
	}

	var violations []string
	entries := make([]PlanEntry, 0, len(proposed))

	for i, e := range proposed {
		category := registry.Category(e.Category)

		check, ok := p.reg.Lookup(category, e.Check)
		if !ok {
			violations = append(violations, fmt.Sprintf("entry %d: unknown check %s/%s", i, e.Category, e.Check))
			continue
		}
		if !enabled[category] {
			violations = append(violations, fmt.Sprintf("entry %d: category %s not enabled", i, e.Category))
			continue
		}

		ref := discovery.TargetRef{Kind: e.TargetKind, Name: e.TargetName}
		if check.TargetKind != ref.Kind {
			violations = append(violations, fmt.Sprintf("entry %d: check %s requires %s targets, got %s", i, e.Check, check.TargetKind, ref.Kind))
			continue
		}
		if !snapshot.Contains(ref) {
			violations = append(violations, fmt.Sprintf("entry %d: target %s not in discovery snapshot", i, ref))
			continue
		}

		params := check.Params
		if len(e.Params) > 0 {
			params = e.Params
		}
		entries = append(entries, PlanEntry{
			Category: category,
			Check:    check.Name,
			Target:   ref,
			Params:   params,
		})
	}

	if len(violations) > 0 {
		return nil, sentryerrors.NewPlanValidationError(violations)
	}
	return entries, nil
}

func (p *Planner) templateResult(req *Request) *Result {
	plan := TemplatePlan(p.reg, req.Snapshot, req.Categories)
	return &Result{
		Plan:   plan,
		Source: SourceTemplate,
		Profile: llm.SecurityProfile{
			Narrative: "Template mode: every enabled check applied to every matching target. No generative analysis performed.",
		},
	}
}

func (p *Planner) checkSummaries(categories []registry.Category) []llm.CheckSummary {
	var out []llm.CheckSummary
	for _, category := range categories {
		for _, c := range p.reg.ChecksFor(category) {
			out = append(out, llm.CheckSummary{
				Category:    string(c.Category),
				Name:        c.Name,
				TargetKind:  c.TargetKind,
				Description: c.Description,
			})
		}
	}
	return out
}

func categoryNames(categories []registry.Category) []string {
	names := make([]string, 0, len(categories))
	for _, c := range categories {
		names = append(names, string(c))
	}
	return names
}

// TargetSummaries condenses a snapshot for prompting.
func TargetSummaries(s *discovery.Snapshot) []llm.TargetSummary {
	var out []llm.TargetSummary
	for _, t := range s.Tools {
		out = append(out, llm.TargetSummary{
			Kind:        discovery.KindTool,
			Name:        t.Name,
			Description: t.Description,
			Schema:      llm.TruncateString(string(t.InputSchema), 2000),
		})
	}
	for _, p := range s.Prompts {
		out = append(out, llm.TargetSummary{Kind: discovery.KindPrompt, Name: p.Name, Description: p.Description})
	}
	for _, r := range s.Resources {
		out = append(out, llm.TargetSummary{Kind: discovery.KindResource, Name: r.URI, Description: r.Description})
	}
	return out
}
