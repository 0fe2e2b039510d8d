package handlers

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"mcpsentry/internal/models"
	"mcpsentry/internal/services"
	sentryerrors "mcpsentry/pkg/errors"
	"mcpsentry/pkg/logger"
)

type RunHandler struct {
	runService services.RunServiceMethods
	logger     *logger.Logger
}

func NewRunHandler(runService services.RunServiceMethods) *RunHandler {
	return &RunHandler{runService: runService, logger: logger.NewLogger(logrus.InfoLevel)}
}

func (h *RunHandler) StartRun(c *gin.Context) {
	var req RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Failed to bind JSON:", logger.Fields{"error": err})
		c.JSON(400, gin.H{"error": "Invalid request payload"})
		return
	}

	h.logger.Info("Starting run", logger.Fields{"target": req.Target, "mode": req.Mode})
	id, err := h.runService.StartRun(&services.RunRequest{
		Target:               req.Target,
		Mode:                 req.Mode,
		Preset:               req.Preset,
		Categories:           req.Categories,
		ForceRefreshBriefing: req.ForceRefresh,
	})
	if err != nil {
		var cfgErr *sentryerrors.ConfigError
		if errors.As(err, &cfgErr) {
			c.JSON(400, gin.H{"error": cfgErr.Error()})
			return
		}
		h.logger.Error("Failed to start run:", logger.Fields{"error": err})
		c.JSON(500, gin.H{"error": "Failed to start run"})
		return
	}
	c.JSON(200, RunResponse{RunID: id, Status: models.StatusPending})
}

func (h *RunHandler) GetRun(c *gin.Context) {
	run, err := h.runService.GetRunByUUID(c.Param("id"))
	if err != nil {
		h.notFoundOr500(c, err, "Failed to get run")
		return
	}
	c.JSON(200, run)
}

func (h *RunHandler) ListRuns(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	runs, total, err := h.runService.ListRuns(page, limit)
	if err != nil {
		h.logger.Error("Failed to list runs:", logger.Fields{"error": err})
		c.JSON(500, gin.H{"error": "Failed to list runs"})
		return
	}
	c.JSON(200, gin.H{"runs": runs, "total": total, "page": page, "limit": limit})
}

func (h *RunHandler) DeleteRun(c *gin.Context) {
	err := h.runService.DeleteRun(c.Param("id"))
	if errors.Is(err, sentryerrors.ErrRunNotTerminal) {
		c.JSON(409, gin.H{"error": "Run is still in progress, cancel it first"})
		return
	}
	if err != nil {
		h.notFoundOr500(c, err, "Failed to delete run")
		return
	}
	c.JSON(200, gin.H{"deleted": true})
}

func (h *RunHandler) CancelRun(c *gin.Context) {
	err := h.runService.CancelRun(c.Param("id"))
	if errors.Is(err, sentryerrors.ErrRunNotCancellable) {
		c.JSON(409, gin.H{"error": "Run is not in a cancellable state"})
		return
	}
	if err != nil {
		h.notFoundOr500(c, err, "Failed to cancel run")
		return
	}
	c.JSON(202, gin.H{"status": models.StatusCancelling})
}

func (h *RunHandler) GetDiscovery(c *gin.Context) {
	snapshot, err := h.runService.GetDiscovery(c.Param("id"))
	if err != nil {
		h.notFoundOr500(c, err, "Failed to get discovery snapshot")
		return
	}
	if snapshot == nil {
		c.JSON(404, gin.H{"error": "Discovery has not completed for this run"})
		return
	}
	c.JSON(200, snapshot)
}

func (h *RunHandler) GetSecurityProfile(c *gin.Context) {
	profile, err := h.runService.GetSecurityProfile(c.Param("id"))
	if err != nil {
		h.notFoundOr500(c, err, "Failed to get security profile")
		return
	}
	if profile == nil {
		c.JSON(404, gin.H{"error": "No security profile stored for this run"})
		return
	}
	c.JSON(200, profile)
}

func (h *RunHandler) GetTestPlan(c *gin.Context) {
	plan, err := h.runService.GetTestPlan(c.Param("id"))
	if err != nil {
		h.notFoundOr500(c, err, "Failed to get test plan")
		return
	}
	if plan == nil {
		c.JSON(404, gin.H{"error": "No test plan stored for this run"})
		return
	}
	c.JSON(200, plan)
}

func (h *RunHandler) GetMissionBriefing(c *gin.Context) {
	briefing, err := h.runService.GetMissionBriefing(c.Param("id"))
	if err != nil {
		h.notFoundOr500(c, err, "Failed to get mission briefing")
		return
	}
	if briefing == nil {
		c.JSON(404, gin.H{"error": "No mission briefing cached for this target"})
		return
	}
	c.JSON(200, briefing)
}

func (h *RunHandler) GetResults(c *gin.Context) {
	results, err := h.runService.GetResults(c.Param("id"))
	if err != nil {
		h.notFoundOr500(c, err, "Failed to get results")
		return
	}
	c.JSON(200, results)
}

func (h *RunHandler) GetStories(c *gin.Context) {
	stories, err := h.runService.GetStories(c.Param("id"))
	if err != nil {
		h.notFoundOr500(c, err, "Failed to get agent stories")
		return
	}
	c.JSON(200, stories)
}

func (h *RunHandler) GetTranscript(c *gin.Context) {
	storyIndex, err := strconv.Atoi(c.Param("story"))
	if err != nil {
		c.JSON(400, gin.H{"error": "Story index must be an integer"})
		return
	}

	transcript, err := h.runService.GetTranscript(c.Param("id"), storyIndex)
	if err != nil {
		h.notFoundOr500(c, err, "Failed to get transcript")
		return
	}
	c.JSON(200, transcript)
}

func (h *RunHandler) Compare(c *gin.Context) {
	var req CompareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": "Invalid request payload"})
		return
	}

	result, err := h.runService.CompareRuns(req.BaseRunID, req.HeadRunID)
	if errors.Is(err, sentryerrors.ErrRunNotTerminal) {
		c.JSON(409, gin.H{"error": "Both runs must be completed before comparing"})
		return
	}
	if err != nil {
		h.notFoundOr500(c, err, "Failed to compare runs")
		return
	}
	c.JSON(200, result)
}

func (h *RunHandler) QueueStatus(c *gin.Context) {
	running, queued, maxConcurrent := h.runService.QueueStatus()
	c.JSON(200, QueueResponse{Running: running, Queued: queued, MaxConcurrent: maxConcurrent})
}

func (h *RunHandler) notFoundOr500(c *gin.Context, err error, message string) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(404, gin.H{"error": "Run not found"})
		return
	}
	h.logger.Error(message, logger.Fields{"error": err})
	c.JSON(500, gin.H{"error": message})
}
