package services

import (
	"fmt"
	"time"

	"mcpsentry/internal/dao"
	"mcpsentry/internal/events"
	"mcpsentry/internal/models"
	"mcpsentry/pkg/logger"
)

// RunStatusManager centralizes every run state transition. Each transition
// persists the row before publishing its event, so a consumer never
// observes a state storage has not caught up to.
type RunStatusManager struct {
	runDao dao.RunDAO
	events events.Publisher
	logger *logger.Logger
}

func newRunStatusManager(runDao dao.RunDAO, publisher events.Publisher, log *logger.Logger) *RunStatusManager {
	return &RunStatusManager{
		runDao: runDao,
		events: publisher,
		logger: log,
	}
}

// preserveCancelling keeps a concurrently requested cancellation visible.
// Mid-stage saves carry the orchestrator's in-memory copy, which may
// predate a cancelling transition CancelRun has already persisted; without
// the re-read that save would briefly flip the stored status back.
func (m *RunStatusManager) preserveCancelling(run *models.Run) {
	stored, err := m.runDao.GetRunByUUID(run.UUID)
	if err == nil && stored.Status == models.StatusCancelling {
		run.Status = models.StatusCancelling
	}
}

// SaveProgress persists mid-stage field changes on the row without
// clobbering a cancelling status.
func (m *RunStatusManager) SaveProgress(run *models.Run) error {
	m.preserveCancelling(run)
	run.UpdatedAt = time.Now().Unix()
	return m.runDao.UpdateRun(run)
}

// AdvanceStage moves the run to the next stage, persisting any pending
// field changes on the row along with the new stage.
func (m *RunStatusManager) AdvanceStage(run *models.Run, stage string) error {
	run.Stage = stage
	run.Status = models.StatusRunning
	m.preserveCancelling(run)
	run.UpdatedAt = time.Now().Unix()

	if err := m.runDao.UpdateRun(run); err != nil {
		return fmt.Errorf("persist stage %s: %w", stage, err)
	}

	m.events.Publish(run.UUID, events.TypeStageTransition, run)
	m.logger.WithRun(run.UUID, stage).Info("Stage started")
	return nil
}

// MarkFailed records an unrecoverable failure with the stage it happened
// in. Persistence failure here is logged, not returned: the run is already
// lost.
func (m *RunStatusManager) MarkFailed(run *models.Run, stage, reason string) {
	run.Status = models.StatusFailed
	run.FailedStage = stage
	run.ErrorMessage = reason
	run.UpdatedAt = time.Now().Unix()
	run.CompletedAt = run.UpdatedAt

	if err := m.runDao.UpdateRun(run); err != nil {
		m.logger.Error("Failed to persist failed run status", logger.Fields{"error": err, "run_id": run.UUID})
		return
	}

	m.events.Publish(run.UUID, events.TypeRunCompleted, run)
	m.logger.Error("Run marked as failed", logger.Fields{
		"run_id": run.UUID,
		"stage":  stage,
		"reason": reason,
	})
}

func (m *RunStatusManager) MarkCompleted(run *models.Run) error {
	run.Status = models.StatusCompleted
	run.Stage = models.StageCompleted
	run.UpdatedAt = time.Now().Unix()
	run.CompletedAt = run.UpdatedAt

	if err := m.runDao.UpdateRun(run); err != nil {
		return fmt.Errorf("persist run completion: %w", err)
	}

	m.events.Publish(run.UUID, events.TypeRunCompleted, run)
	m.logger.WithRun(run.UUID, run.Stage).Info("Run completed")
	return nil
}

// MarkCancelled finalizes a cooperatively cancelled run. All in-flight
// units have already observed the flag and exited; their results are kept.
func (m *RunStatusManager) MarkCancelled(run *models.Run) error {
	run.Status = models.StatusCancelled
	run.UpdatedAt = time.Now().Unix()
	run.CompletedAt = run.UpdatedAt

	if err := m.runDao.UpdateRun(run); err != nil {
		return fmt.Errorf("persist run cancellation: %w", err)
	}

	m.events.Publish(run.UUID, events.TypeRunCompleted, run)
	m.logger.WithRun(run.UUID, run.Stage).Info("Run cancelled")
	return nil
}

// MarkCancelling flips a live run to the visible cancelling state while
// in-flight work drains.
func (m *RunStatusManager) MarkCancelling(run *models.Run) error {
	run.Status = models.StatusCancelling
	run.UpdatedAt = time.Now().Unix()

	if err := m.runDao.UpdateRun(run); err != nil {
		return fmt.Errorf("persist cancelling status: %w", err)
	}

	m.events.Publish(run.UUID, events.TypeStageTransition, run)
	return nil
}
