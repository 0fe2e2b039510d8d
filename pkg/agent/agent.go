// Package agent runs the autonomous red-team loop: goal-directed multi-turn
// attack scenarios against the live target, each transcript judged
// independently for a vulnerability verdict.
package agent

import (
	"time"

	"mcpsentry/pkg/llm"
)

type EventType string

const (
	EventReasoning  EventType = "reasoning"
	EventToolCall   EventType = "tool_call"
	EventToolResult EventType = "tool_result"
	EventMarker     EventType = "scenario_marker"
)

// TranscriptEvent is one ordered entry in a scenario transcript.
type TranscriptEvent struct {
	Type      EventType      `json:"type"`
	Content   string         `json:"content"`
	ToolName  string         `json:"tool_name,omitempty"`
	Args      map[string]any `json:"args,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Story is one completed scenario: the attack attempt plus its judgment.
// Immutable once the verdict is recorded.
type Story struct {
	Index          int               `json:"index"`
	Goal           string            `json:"goal"`
	WasPlanned     bool              `json:"was_planned"`
	ToolsTouched   []string          `json:"tools_touched"`
	ToolCalls      int               `json:"tool_calls"`
	Iterations     int               `json:"iterations"`
	Transcript     []TranscriptEvent `json:"transcript"`
	Verdict        string            `json:"verdict"`
	Severity       string            `json:"severity,omitempty"`
	Title          string            `json:"title"`
	Finding        string            `json:"finding"`
	Evidence       string            `json:"evidence,omitempty"`
	Recommendation string            `json:"recommendation,omitempty"`
	Coverage       float64           `json:"coverage"`
	Usage          llm.Usage         `json:"usage"`
}

// StorySink receives each story as soon as it is judged, so partial
// progress survives cancellation or crash.
type StorySink interface {
	Write(story Story) error
}

// Config bounds one agent run. TokenBudget of zero means observe-only: no
// cap, spend is just accumulated.
type Config struct {
	MaxScenarios  int
	MaxIterations int
	TokenBudget   int
}
