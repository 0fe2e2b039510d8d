package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"mcpsentry/internal/events"
	"mcpsentry/internal/models"
	"mcpsentry/internal/notification"
	"mcpsentry/pkg/agent"
	"mcpsentry/pkg/discovery"
	"mcpsentry/pkg/executor"
	"mcpsentry/pkg/llm"
	"mcpsentry/pkg/logger"
	"mcpsentry/pkg/planner"
	"mcpsentry/pkg/registry"
)

// progressPayload is the periodic progress event body during
// test_execution.
type progressPayload struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

// execute drives one run through its stage sequence. Every stage's output
// is persisted before the next stage starts and before the transition
// event is published. Only discovery failure and storage failure are
// fatal; everything else is absorbed into stored data.
func (s *runService) execute(ctx context.Context, run *models.Run, preset registry.Preset, categories []registry.Category, template, forceRefresh bool, flag *atomic.Bool) {
	cancelled := func() bool { return flag.Load() }

	if cancelled() {
		s.finalizeCancelled(run)
		return
	}

	// health_check: enumerate the target's surface. An unreachable target
	// cannot be tested, so failure here fails the run.
	if err := s.status.AdvanceStage(run, models.StageHealthCheck); err != nil {
		s.status.MarkFailed(run, models.StageHealthCheck, err.Error())
		return
	}

	client, err := s.dial(ctx, run.Target, preset.CheckTimeout)
	if err != nil {
		s.status.MarkFailed(run, models.StageHealthCheck, fmt.Sprintf("target unreachable: %v", err))
		return
	}
	defer client.Close()

	snapshot, err := s.discover(ctx, run, client)
	if err != nil {
		s.status.MarkFailed(run, models.StageHealthCheck, err.Error())
		return
	}

	if cancelled() {
		s.finalizeCancelled(run)
		return
	}

	// llm_analysis: produce the validated plan. LLM failure is never
	// fatal; the planner falls back to template mode internally.
	if err := s.status.AdvanceStage(run, models.StageLLMAnalysis); err != nil {
		s.status.MarkFailed(run, models.StageLLMAnalysis, err.Error())
		return
	}

	wantRedTeam := preset.RedTeam && s.llmClient != nil && !template
	planResult, err := s.planner.Plan(ctx, &planner.Request{
		Snapshot:     snapshot,
		Categories:   categories,
		Template:     template,
		WantBriefing: s.llmClient != nil && !template,
		ForceRefresh: forceRefresh,
	})
	if err != nil {
		s.status.MarkFailed(run, models.StageLLMAnalysis, err.Error())
		return
	}

	run.PlanSource = planResult.Source
	run.TokensSpent += planResult.Usage.TotalTokens
	run.TotalTests = len(planResult.Plan)
	if err := s.storePlan(run, planResult); err != nil {
		s.status.MarkFailed(run, models.StageLLMAnalysis, err.Error())
		return
	}

	if cancelled() {
		s.finalizeCancelled(run)
		return
	}

	// test_execution: the worker pool runs the plan; each result row is
	// persisted the moment its check completes.
	if err := s.status.AdvanceStage(run, models.StageTestExecution); err != nil {
		s.status.MarkFailed(run, models.StageTestExecution, err.Error())
		return
	}

	exec := executor.New(client, s.reg, s.scanner,
		&resultSink{results: s.results, runID: run.UUID},
		executor.Config{
			MaxParallel:  preset.MaxParallel,
			CheckTimeout: preset.CheckTimeout,
		},
		func(completed, total int) {
			s.events.Publish(run.UUID, events.TypeProgress, progressPayload{Completed: completed, Total: total})
		},
	)

	summary, err := exec.Run(ctx, snapshot, planResult.Plan, cancelled)
	if err != nil {
		s.status.MarkFailed(run, models.StageTestExecution, err.Error())
		return
	}

	run.PassedTests = summary.Passed
	run.FailedTests = summary.Failed
	run.ErrorTests = summary.Errors
	if err := s.tallySeverities(run); err != nil {
		s.status.MarkFailed(run, models.StageTestExecution, err.Error())
		return
	}

	// ai_red_team: optional, only when the preset enables it and a
	// generative client exists.
	if wantRedTeam && !cancelled() {
		if err := s.status.AdvanceStage(run, models.StageAIRedTeam); err != nil {
			s.status.MarkFailed(run, models.StageAIRedTeam, err.Error())
			return
		}

		var briefing *llm.MissionBriefing
		if planResult.Briefing != nil {
			briefing = &planResult.Briefing.Briefing
		}

		redTeam := agent.New(s.llmClient, client,
			&storySink{stories: s.stories, events: s.events, notifier: s.notifier, run: run, logger: s.logger},
			agent.Config{
				MaxScenarios:  preset.MaxScenarios,
				MaxIterations: preset.MaxIterations,
				TokenBudget:   s.agentBudget,
			},
		)

		usage, err := redTeam.Run(ctx, snapshot, briefing, cancelled)
		run.TokensSpent += usage.TotalTokens
		if err != nil {
			// Only story persistence failures surface here.
			s.status.MarkFailed(run, models.StageAIRedTeam, err.Error())
			return
		}
	}

	if cancelled() {
		s.finalizeCancelled(run)
		return
	}

	if err := s.status.MarkCompleted(run); err != nil {
		s.logger.Error("Failed to finalize run", logger.Fields{"error": err, "run_id": run.UUID})
		return
	}
	s.notifyFinished(run)
}

// discover captures the snapshot and stores it on the run row. The
// snapshot is written once here and read-only for the rest of the run.
func (s *runService) discover(ctx context.Context, run *models.Run, client discovery.TargetClient) (*discovery.Snapshot, error) {
	snapshot, err := discovery.Discover(ctx, client, run.Target)
	if err != nil {
		return nil, err
	}

	snapshotJSON, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("encode discovery snapshot: %w", err)
	}
	run.DiscoveryJSON = string(snapshotJSON)

	if err := s.status.SaveProgress(run); err != nil {
		return nil, fmt.Errorf("persist discovery snapshot: %w", err)
	}

	s.logger.WithRun(run.UUID, run.Stage).WithFields(logrus.Fields{
		"tools":     len(snapshot.Tools),
		"prompts":   len(snapshot.Prompts),
		"resources": len(snapshot.Resources),
	}).Info("Discovery complete")
	return snapshot, nil
}

// storePlan persists the plan and profile documents before test_execution
// starts.
func (s *runService) storePlan(run *models.Run, result *planner.Result) error {
	planJSON, err := json.Marshal(result.Plan)
	if err != nil {
		return fmt.Errorf("encode test plan: %w", err)
	}
	profileJSON, err := json.Marshal(result.Profile)
	if err != nil {
		return fmt.Errorf("encode security profile: %w", err)
	}

	run.PlanJSON = string(planJSON)
	run.ProfileJSON = string(profileJSON)

	if err := s.status.SaveProgress(run); err != nil {
		return fmt.Errorf("persist test plan: %w", err)
	}
	return nil
}

// tallySeverities derives the run's severity counters from the stored
// result rows, never from in-memory counts.
func (s *runService) tallySeverities(run *models.Run) error {
	tally, err := s.results.SeverityTally(run.UUID)
	if err != nil {
		return fmt.Errorf("tally severities: %w", err)
	}
	run.Critical = tally[string(registry.SeverityCritical)]
	run.High = tally[string(registry.SeverityHigh)]
	run.Medium = tally[string(registry.SeverityMedium)]
	run.Low = tally[string(registry.SeverityLow)]
	return nil
}

func (s *runService) finalizeCancelled(run *models.Run) {
	if err := s.status.MarkCancelled(run); err != nil {
		s.logger.Error("Failed to finalize cancelled run", logger.Fields{"error": err, "run_id": run.UUID})
		return
	}
	s.notifyFinished(run)
}

func (s *runService) notifyFinished(run *models.Run) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Send(notification.RunFinishedMessage(run)); err != nil {
		s.logger.Warn("Failed to send run notification", logger.Fields{"error": err, "run_id": run.UUID})
	}
}
