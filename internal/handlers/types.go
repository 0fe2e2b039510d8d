package handlers

type RunRequest struct {
	Target       string   `json:"target" binding:"required"`
	Mode         string   `json:"mode" binding:"required"`
	Preset       string   `json:"preset"`
	Categories   []string `json:"categories"`
	ForceRefresh bool     `json:"force_refresh"`
}

type RunResponse struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

type CompareRequest struct {
	BaseRunID string `json:"base_run_id" binding:"required"`
	HeadRunID string `json:"head_run_id" binding:"required"`
}

type QueueResponse struct {
	Running       int `json:"running"`
	Queued        int `json:"queued"`
	MaxConcurrent int `json:"max_concurrent"`
}
