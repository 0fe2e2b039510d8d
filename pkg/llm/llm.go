// Package llm defines the generative roles the engine consumes — planner,
// briefing analyst, red-team attacker and judge — behind one provider
// interface, plus the wire shapes each role must produce. Output from every
// role is treated as untrusted: callers validate it against the registry and
// the discovery snapshot before acting on it.
package llm

import "context"

// Usage is the token accounting for one generation call.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

func (u Usage) Add(other Usage) Usage {
	return Usage{
		InputTokens:  u.InputTokens + other.InputTokens,
		OutputTokens: u.OutputTokens + other.OutputTokens,
		TotalTokens:  u.TotalTokens + other.TotalTokens,
	}
}

// TargetSummary is a discovered capability condensed for prompting.
type TargetSummary struct {
	Kind        string `json:"kind"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Schema      string `json:"schema,omitempty"`
}

// CheckSummary is one catalog entry condensed for prompting. The model may
// only select from these.
type CheckSummary struct {
	Category    string `json:"category"`
	Name        string `json:"name"`
	TargetKind  string `json:"target_kind"`
	Description string `json:"description"`
}

// PlanRequest asks the planner role to select checks for a target surface.
type PlanRequest struct {
	Target     string
	Categories []string
	Checks     []CheckSummary
	Targets    []TargetSummary
	Briefing   *MissionBriefing
}

// ProposedEntry is one planned check as proposed by the model. It is
// unvalidated until the planner confirms (category, check) against the
// registry and the target against the snapshot.
type ProposedEntry struct {
	Category   string         `json:"category"`
	Check      string         `json:"check"`
	TargetKind string         `json:"target_kind"`
	TargetName string         `json:"target_name"`
	Params     map[string]any `json:"params,omitempty"`
}

// SecurityProfile is the structured risk analysis produced alongside a plan.
type SecurityProfile struct {
	Narrative       string   `json:"narrative"`
	RiskScore       int      `json:"risk_score"`
	HighRiskTargets []string `json:"high_risk_targets"`
	AttackVectors   []string `json:"attack_vectors"`
	DataSensitivity []string `json:"data_sensitivity"`
}

// PlanProposal is the planner role's full structured output.
type PlanProposal struct {
	Entries []ProposedEntry `json:"entries"`
	Profile SecurityProfile `json:"profile"`
}

// BriefingRequest asks the analyst role for an attack-surface analysis.
type BriefingRequest struct {
	Target  string
	Targets []TargetSummary
}

// PriorityTarget is one briefing entry: a capability worth attacking first.
type PriorityTarget struct {
	Name         string   `json:"name"`
	Kind         string   `json:"kind"`
	Rationale    string   `json:"rationale"`
	PayloadHints []string `json:"payload_hints,omitempty"`
}

// PlannedScenario is one pre-assigned red-team scenario in a briefing.
type PlannedScenario struct {
	Goal    string   `json:"goal"`
	Targets []string `json:"targets"`
}

// MissionBriefing is the analyst role's attack-surface analysis. The planner
// uses it as context; the red-team loop uses it to seed scenarios.
type MissionBriefing struct {
	DomainSummary   string            `json:"domain_summary"`
	RiskRating      string            `json:"risk_rating"`
	PriorityTargets []PriorityTarget  `json:"priority_targets"`
	AttackChains    [][]string        `json:"attack_chains,omitempty"`
	Scenarios       []PlannedScenario `json:"scenarios"`
}

// TranscriptLine is one prompt-visible line of an agent transcript.
type TranscriptLine struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// AttackTurnRequest asks the attacker role for its next move in a scenario.
type AttackTurnRequest struct {
	Goal          string
	Target        string
	Tools         []TargetSummary
	Transcript    []TranscriptLine
	Iteration     int
	MaxIterations int
}

const (
	ActionCallTool = "call_tool"
	ActionConclude = "conclude"
)

// AttackTurn is the attacker role's structured output for one turn.
type AttackTurn struct {
	Reasoning  string         `json:"reasoning"`
	Action     string         `json:"action"`
	ToolName   string         `json:"tool_name,omitempty"`
	Args       map[string]any `json:"args,omitempty"`
	Conclusion string         `json:"conclusion,omitempty"`
}

// JudgeRequest hands one finished scenario transcript to the judge role.
type JudgeRequest struct {
	Goal       string
	Transcript []TranscriptLine
}

const (
	VerdictVulnerabilityFound = "vulnerability_found"
	VerdictSecure             = "secure"
	VerdictInconclusive       = "inconclusive"
)

// JudgeVerdict is the judge role's single verdict for one scenario.
type JudgeVerdict struct {
	Verdict        string `json:"verdict"`
	Severity       string `json:"severity,omitempty"`
	Title          string `json:"title"`
	Finding        string `json:"finding"`
	Evidence       string `json:"evidence,omitempty"`
	Recommendation string `json:"recommendation,omitempty"`
}

// Client is the provider interface the planner and agent loop consume.
type Client interface {
	GeneratePlan(ctx context.Context, req *PlanRequest) (*PlanProposal, Usage, error)
	GenerateBriefing(ctx context.Context, req *BriefingRequest) (*MissionBriefing, Usage, error)
	NextAttackTurn(ctx context.Context, req *AttackTurnRequest) (*AttackTurn, Usage, error)
	JudgeTranscript(ctx context.Context, req *JudgeRequest) (*JudgeVerdict, Usage, error)
}
