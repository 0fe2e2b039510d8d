package models

// TestResult is one executed check, immutable once written. The composite
// unique index makes result delivery idempotent: re-delivering the same
// (run, category, check, target) upserts instead of duplicating.
type TestResult struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	RunUUID    string `gorm:"type:varchar(36);uniqueIndex:idx_result_key,priority:1;index" json:"run_uuid"`
	Category   string `gorm:"uniqueIndex:idx_result_key,priority:2" json:"category"`
	Check      string `gorm:"uniqueIndex:idx_result_key,priority:3" json:"check"`
	TargetKind string `gorm:"uniqueIndex:idx_result_key,priority:4" json:"target_kind"`
	TargetName string `gorm:"uniqueIndex:idx_result_key,priority:5" json:"target_name"`
	Status     string `json:"status"`
	Severity   string `json:"severity"`
	Evidence   string `gorm:"type:text" json:"evidence"`
	LatencyMS  int64  `json:"latency_ms"`
	CreatedAt  int64  `json:"created_at"`
}

// AgentStory is one judged red-team scenario. Written as soon as the judge
// verdict lands so partial progress survives cancellation or crash.
type AgentStory struct {
	ID             uint    `gorm:"primaryKey" json:"id"`
	RunUUID        string  `gorm:"type:varchar(36);index" json:"run_uuid"`
	StoryIndex     int     `json:"story_index"`
	Goal           string  `gorm:"type:text" json:"goal"`
	WasPlanned     bool    `json:"was_planned"`
	ToolsTouched   string  `gorm:"type:text" json:"-"`
	ToolCalls      int     `json:"tool_calls"`
	Iterations     int     `json:"iterations"`
	TranscriptJSON string  `gorm:"type:text" json:"-"`
	Verdict        string  `json:"verdict"`
	Severity       string  `json:"severity,omitempty"`
	Title          string  `json:"title"`
	Finding        string  `gorm:"type:text" json:"finding"`
	Evidence       string  `gorm:"type:text" json:"evidence,omitempty"`
	Recommendation string  `gorm:"type:text" json:"recommendation,omitempty"`
	Coverage       float64 `json:"coverage"`
	TokensSpent    int     `json:"tokens_spent"`
	CreatedAt      int64   `json:"created_at"`
}

// MissionBriefing is the persisted briefing cache, one latest row per
// target looked up by the across-run briefing cache.
type MissionBriefing struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	Target       string `gorm:"index" json:"target"`
	Fingerprint  string `json:"fingerprint"`
	BriefingJSON string `gorm:"type:text" json:"-"`
	CachedAt     int64  `json:"cached_at"`
}
