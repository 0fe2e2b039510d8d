// Package compare diffs two completed runs' result sets to surface
// regressions and fixes over time. Pure functions over stored data: no
// side effects, no re-execution.
package compare

import "sort"

// Key addresses one check execution across runs. Results are an unordered
// set; the key is the only identity that matters.
type Key struct {
	Category string `json:"category"`
	Check    string `json:"check"`
	Target   string `json:"target"`
}

// Outcome is the stored verdict for one key in one run.
type Outcome struct {
	Status   string `json:"status"`
	Severity string `json:"severity"`
}

// Finding is one classified key with both runs' outcomes. A missing side
// has empty Status.
type Finding struct {
	Key    Key     `json:"key"`
	Base   Outcome `json:"base"`
	Head   Outcome `json:"head"`
	InBase bool    `json:"in_base"`
	InHead bool    `json:"in_head"`
}

// Result classifies every key present in either run into exactly one
// bucket.
type Result struct {
	NewFailures []Finding `json:"new_failures"`
	FixedIssues []Finding `json:"fixed_issues"`
	Unchanged   []Finding `json:"unchanged"`
}

const statusFail = "fail"

// Diff classifies every key present in base or head. A new failure is a
// key failing in head but not failing (or absent) in base; a fixed issue
// is the mirror image. Symmetric by construction:
// Diff(a,b).NewFailures == Diff(b,a).FixedIssues key for key.
func Diff(base, head map[Key]Outcome) *Result {
	keys := make(map[Key]struct{}, len(base)+len(head))
	for k := range base {
		keys[k] = struct{}{}
	}
	for k := range head {
		keys[k] = struct{}{}
	}

	result := &Result{}
	for k := range keys {
		b, inBase := base[k]
		h, inHead := head[k]

		finding := Finding{Key: k, Base: b, Head: h, InBase: inBase, InHead: inHead}

		failsInBase := inBase && b.Status == statusFail
		failsInHead := inHead && h.Status == statusFail

		switch {
		case failsInHead && !failsInBase:
			result.NewFailures = append(result.NewFailures, finding)
		case failsInBase && !failsInHead:
			result.FixedIssues = append(result.FixedIssues, finding)
		default:
			result.Unchanged = append(result.Unchanged, finding)
		}
	}

	sortFindings(result.NewFailures)
	sortFindings(result.FixedIssues)
	sortFindings(result.Unchanged)
	return result
}

func sortFindings(findings []Finding) {
	sort.Slice(findings, func(i, j int) bool {
		a, b := findings[i].Key, findings[j].Key
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		if a.Check != b.Check {
			return a.Check < b.Check
		}
		return a.Target < b.Target
	})
}
