package discovery

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"time"
)

// Snapshot is the target's capability surface as enumerated at run start.
// It is written once by the health-check stage and read-only afterwards.
type Snapshot struct {
	Target     string         `json:"target"`
	Tools      []ToolInfo     `json:"tools"`
	Prompts    []PromptInfo   `json:"prompts"`
	Resources  []ResourceInfo `json:"resources"`
	CapturedAt time.Time      `json:"captured_at"`
}

// Discover enumerates the target's tools, prompts and resources. A failure
// here is fatal to the run: an unreachable target cannot be tested.
func Discover(ctx context.Context, client TargetClient, target string) (*Snapshot, error) {
	tools, err := client.ListTools(ctx)
	if err != nil {
		return nil, fmt.Errorf("discovery failed for %s: %w", target, err)
	}

	// Prompts and resources are optional server features. A method-not-found
	// style error only empties that slice; the snapshot is still usable.
	prompts, err := client.ListPrompts(ctx)
	if err != nil {
		prompts = nil
	}
	resources, err := client.ListResources(ctx)
	if err != nil {
		resources = nil
	}

	return &Snapshot{
		Target:     target,
		Tools:      tools,
		Prompts:    prompts,
		Resources:  resources,
		CapturedAt: time.Now().UTC(),
	}, nil
}

// Fingerprint returns a stable digest of the capability surface. Two
// snapshots with the same tools, prompts and resources (in any order)
// produce the same fingerprint regardless of when they were captured.
func (s *Snapshot) Fingerprint() string {
	var lines []string
	for _, t := range s.Tools {
		lines = append(lines, "tool|"+t.Name+"|"+string(t.InputSchema))
	}
	for _, p := range s.Prompts {
		lines = append(lines, "prompt|"+p.Name)
	}
	for _, r := range s.Resources {
		lines = append(lines, "resource|"+r.URI)
	}
	sort.Strings(lines)

	h := sha256.New()
	for _, line := range lines {
		h.Write([]byte(line))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Contains reports whether the given target exists in this snapshot.
func (s *Snapshot) Contains(ref TargetRef) bool {
	switch ref.Kind {
	case KindTool:
		for _, t := range s.Tools {
			if t.Name == ref.Name {
				return true
			}
		}
	case KindPrompt:
		for _, p := range s.Prompts {
			if p.Name == ref.Name {
				return true
			}
		}
	case KindResource:
		for _, r := range s.Resources {
			if r.URI == ref.Name {
				return true
			}
		}
	}
	return false
}

// TargetsOfKind returns every discovered target of the given kind, sorted by
// name so that template-mode plan generation is deterministic.
func (s *Snapshot) TargetsOfKind(kind string) []TargetRef {
	var refs []TargetRef
	switch kind {
	case KindTool:
		for _, t := range s.Tools {
			refs = append(refs, TargetRef{Kind: KindTool, Name: t.Name})
		}
	case KindPrompt:
		for _, p := range s.Prompts {
			refs = append(refs, TargetRef{Kind: KindPrompt, Name: p.Name})
		}
	case KindResource:
		for _, r := range s.Resources {
			refs = append(refs, TargetRef{Kind: KindResource, Name: r.URI})
		}
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Name < refs[j].Name })
	return refs
}

// Tool returns the tool info for the given name, if discovered.
func (s *Snapshot) Tool(name string) (ToolInfo, bool) {
	for _, t := range s.Tools {
		if t.Name == name {
			return t, true
		}
	}
	return ToolInfo{}, false
}
