package notification

import (
	"fmt"

	"mcpsentry/internal/models"
)

// RunFinishedMessage builds the embed sent when a run reaches a terminal
// state. Severity of the embed reflects the worst finding severity.
func RunFinishedMessage(run *models.Run) Message {
	severity := "info"
	switch {
	case run.Status == models.StatusFailed:
		severity = "high"
	case run.Critical > 0:
		severity = "critical"
	case run.High > 0:
		severity = "high"
	case run.Medium > 0:
		severity = "medium"
	case run.Low > 0:
		severity = "low"
	}

	return Message{
		Title:       fmt.Sprintf("Pentest run %s: %s", run.Status, run.Target),
		Description: fmt.Sprintf("Mode %s, plan source %s", run.Mode, run.PlanSource),
		Severity:    severity,
		Fields: map[string]string{
			"Total":    fmt.Sprintf("%d", run.TotalTests),
			"Passed":   fmt.Sprintf("%d", run.PassedTests),
			"Failed":   fmt.Sprintf("%d", run.FailedTests),
			"Errors":   fmt.Sprintf("%d", run.ErrorTests),
			"Critical": fmt.Sprintf("%d", run.Critical),
			"High":     fmt.Sprintf("%d", run.High),
		},
	}
}

// StoryVerdictMessage builds the embed for a red-team vulnerability
// finding. Only called for vulnerability_found verdicts.
func StoryVerdictMessage(run *models.Run, story *models.AgentStory) Message {
	return Message{
		Title:       fmt.Sprintf("Red team finding on %s: %s", run.Target, story.Title),
		Description: story.Finding,
		Severity:    story.Severity,
		Fields: map[string]string{
			"Run":        run.UUID,
			"Scenario":   fmt.Sprintf("%d", story.StoryIndex),
			"Tool calls": fmt.Sprintf("%d", story.ToolCalls),
			"Planned":    fmt.Sprintf("%t", story.WasPlanned),
		},
	}
}
