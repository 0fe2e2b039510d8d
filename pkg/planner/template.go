package planner

import (
	"mcpsentry/pkg/discovery"
	"mcpsentry/pkg/registry"
)

// TemplatePlan generates a fully deterministic plan: every enabled check in
// the selected categories applied to every discovered target of the
// matching kind. Zero LLM cost; identical inputs produce identical plans.
func TemplatePlan(reg *registry.Registry, snapshot *discovery.Snapshot, categories []registry.Category) []PlanEntry {
	var plan []PlanEntry

	// Iterate categories in catalog order so the output is reproducible
	// regardless of the caller's selection order.
	for _, category := range registry.Categories() {
		if category == registry.CategoryAIRedTeam || !containsCategory(categories, category) {
			continue
		}
		for _, check := range reg.ChecksFor(category) {
			for _, ref := range snapshot.TargetsOfKind(check.TargetKind) {
				plan = append(plan, PlanEntry{
					Category: category,
					Check:    check.Name,
					Target:   ref,
					Params:   check.Params,
				})
			}
		}
	}
	return plan
}

func containsCategory(categories []registry.Category, category registry.Category) bool {
	for _, c := range categories {
		if c == category {
			return true
		}
	}
	return false
}
