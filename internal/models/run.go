package models

// Run stages, in execution order.
const (
	StageInitialization = "initialization"
	StageHealthCheck    = "health_check"
	StageLLMAnalysis    = "llm_analysis"
	StageTestExecution  = "test_execution"
	StageAIRedTeam      = "ai_red_team"
	StageCompleted      = "completed"
)

// Run statuses.
const (
	StatusPending    = "pending"
	StatusRunning    = "running"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusCancelling = "cancelling"
	StatusCancelled  = "cancelled"
)

// Run modes.
const (
	ModePreset     = "preset"
	ModeCategories = "categories"
	ModeTemplate   = "template"
)

// Run is one penetration-test execution. The discovery snapshot, security
// profile and validated plan are stored as JSON documents on the row so a
// consumer reconnecting mid-run can reconstruct full state from storage
// alone.
type Run struct {
	UUID         string `gorm:"primaryKey;type:varchar(36)" json:"uuid"`
	Target       string `gorm:"index" json:"target"`
	Mode         string `json:"mode"`
	Preset       string `json:"preset,omitempty"`
	Stage        string `json:"stage"`
	Status       string `json:"status"`
	FailedStage  string `json:"failed_stage,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`

	PlanSource  string `json:"plan_source,omitempty"`
	LLMProvider string `json:"llm_provider,omitempty"`
	LLMModel    string `json:"llm_model,omitempty"`
	TokensSpent int    `json:"tokens_spent"`

	TotalTests  int `json:"total_tests"`
	PassedTests int `json:"passed_tests"`
	FailedTests int `json:"failed_tests"`
	ErrorTests  int `json:"error_tests"`
	Critical    int `json:"critical"`
	High        int `json:"high"`
	Medium      int `json:"medium"`
	Low         int `json:"low"`

	DiscoveryJSON string `gorm:"type:text" json:"-"`
	ProfileJSON   string `gorm:"type:text" json:"-"`
	PlanJSON      string `gorm:"type:text" json:"-"`

	CreatedAt   int64 `json:"created_at"`
	UpdatedAt   int64 `json:"updated_at"`
	CompletedAt int64 `json:"completed_at,omitempty"`
}

// IsTerminal reports whether the run can no longer change state, late
// agent stories excepted.
func (r *Run) IsTerminal() bool {
	switch r.Status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}
