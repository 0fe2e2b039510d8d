package services

import (
	"encoding/json"
	"time"

	"mcpsentry/internal/dao"
	"mcpsentry/internal/events"
	"mcpsentry/internal/models"
	"mcpsentry/internal/notification"
	"mcpsentry/pkg/agent"
	"mcpsentry/pkg/executor"
	"mcpsentry/pkg/llm"
	"mcpsentry/pkg/logger"
	"mcpsentry/pkg/planner"
)

// resultSink persists each check result the moment its worker finishes.
// An error from Write aborts the run: result durability is the
// correctness baseline.
type resultSink struct {
	results dao.ResultDAO
	runID   string
}

func (s *resultSink) Write(result executor.TestResult) error {
	return s.results.SaveResult(&models.TestResult{
		RunUUID:    s.runID,
		Category:   string(result.Category),
		Check:      result.Check,
		TargetKind: result.Target.Kind,
		TargetName: result.Target.Name,
		Status:     string(result.Status),
		Severity:   string(result.Severity),
		Evidence:   result.Evidence,
		LatencyMS:  result.Latency.Milliseconds(),
		CreatedAt:  time.Now().Unix(),
	})
}

// storySink persists each judged scenario independently and pushes a bus
// event, plus a notification for confirmed vulnerabilities.
type storySink struct {
	stories  dao.StoryDAO
	events   events.Publisher
	notifier *notification.NotificationClient
	run      *models.Run
	logger   *logger.Logger
}

func (s *storySink) Write(story agent.Story) error {
	transcriptJSON, _ := json.Marshal(story.Transcript)
	toolsJSON, _ := json.Marshal(story.ToolsTouched)

	row := &models.AgentStory{
		RunUUID:        s.run.UUID,
		StoryIndex:     story.Index,
		Goal:           story.Goal,
		WasPlanned:     story.WasPlanned,
		ToolsTouched:   string(toolsJSON),
		ToolCalls:      story.ToolCalls,
		Iterations:     story.Iterations,
		TranscriptJSON: string(transcriptJSON),
		Verdict:        story.Verdict,
		Severity:       story.Severity,
		Title:          story.Title,
		Finding:        story.Finding,
		Evidence:       story.Evidence,
		Recommendation: story.Recommendation,
		Coverage:       story.Coverage,
		TokensSpent:    story.Usage.TotalTokens,
		CreatedAt:      time.Now().Unix(),
	}

	if err := s.stories.SaveStory(row); err != nil {
		return err
	}

	s.events.Publish(s.run.UUID, events.TypeAgentStory, row)

	if s.notifier != nil && story.Verdict == llm.VerdictVulnerabilityFound {
		if err := s.notifier.Send(notification.StoryVerdictMessage(s.run, row)); err != nil {
			s.logger.Warn("Failed to send finding notification", logger.Fields{"error": err, "run_id": s.run.UUID})
		}
	}
	return nil
}

// briefingStore adapts the briefing DAO to the planner cache's store
// interface, translating between the JSON-document row and the in-memory
// briefing shape.
type briefingStore struct {
	briefings dao.BriefingDAO
}

func (s *briefingStore) LatestForTarget(target string) (*planner.StoredBriefing, error) {
	row, err := s.briefings.LatestForTarget(target)
	if err != nil || row == nil {
		return nil, err
	}

	var briefing llm.MissionBriefing
	if err := json.Unmarshal([]byte(row.BriefingJSON), &briefing); err != nil {
		// A corrupt cached document is a miss, not an error.
		return nil, nil
	}

	return &planner.StoredBriefing{
		Target:      row.Target,
		Fingerprint: row.Fingerprint,
		Briefing:    briefing,
		CachedAt:    time.Unix(row.CachedAt, 0).UTC(),
	}, nil
}

func (s *briefingStore) Save(b *planner.StoredBriefing) error {
	briefingJSON, err := json.Marshal(b.Briefing)
	if err != nil {
		return err
	}
	return s.briefings.SaveBriefing(&models.MissionBriefing{
		Target:       b.Target,
		Fingerprint:  b.Fingerprint,
		BriefingJSON: string(briefingJSON),
		CachedAt:     b.CachedAt.Unix(),
	})
}
