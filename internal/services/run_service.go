package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"mcpsentry/internal/dao"
	"mcpsentry/internal/events"
	"mcpsentry/internal/models"
	"mcpsentry/internal/notification"
	"mcpsentry/pkg/agent"
	"mcpsentry/pkg/compare"
	"mcpsentry/pkg/detectors"
	"mcpsentry/pkg/discovery"
	sentryerrors "mcpsentry/pkg/errors"
	"mcpsentry/pkg/llm"
	"mcpsentry/pkg/logger"
	"mcpsentry/pkg/planner"
	"mcpsentry/pkg/registry"
)

// DialFunc opens a client session against the target endpoint.
type DialFunc func(ctx context.Context, endpoint string, callTimeout time.Duration) (discovery.TargetClient, error)

// RunRequest is a resolved run-start request.
type RunRequest struct {
	Target               string
	Mode                 string
	Preset               string
	Categories           []string
	ForceRefreshBriefing bool
}

type RunServiceMethods interface {
	StartRun(req *RunRequest) (string, error)
	GetRunByUUID(id string) (*models.Run, error)
	ListRuns(page, limit int) ([]models.Run, int64, error)
	DeleteRun(id string) error
	CancelRun(id string) error

	GetDiscovery(id string) (*discovery.Snapshot, error)
	GetSecurityProfile(id string) (*llm.SecurityProfile, error)
	GetTestPlan(id string) ([]planner.PlanEntry, error)
	GetMissionBriefing(id string) (*planner.CachedBriefing, error)
	GetResults(id string) ([]models.TestResult, error)
	GetStories(id string) ([]models.AgentStory, error)
	GetTranscript(id string, storyIndex int) ([]agent.TranscriptEvent, error)

	CompareRuns(baseID, headID string) (*compare.Result, error)
	QueueStatus() (running, queued, maxConcurrent int)
}

// Deps wires a run service. LLM and Notifier may be nil: without an LLM
// client every run degrades to template mode and the red team stage is
// skipped.
type Deps struct {
	Runs      dao.RunDAO
	Results   dao.ResultDAO
	Stories   dao.StoryDAO
	Briefings dao.BriefingDAO

	Registry *registry.Registry
	Presets  *registry.PresetCatalog
	Scanner  *detectors.Scanner

	LLM         llm.Client
	LLMProvider string
	LLMModel    string

	Events   events.Publisher
	Notifier *notification.NotificationClient
	Dial     DialFunc

	MaxConcurrentRuns int
	AgentTokenBudget  int
}

type runService struct {
	runs      dao.RunDAO
	results   dao.ResultDAO
	stories   dao.StoryDAO
	briefings dao.BriefingDAO

	reg     *registry.Registry
	presets *registry.PresetCatalog
	scanner *detectors.Scanner

	llmClient   llm.Client
	llmProvider string
	llmModel    string

	planner *planner.Planner
	cache   *planner.BriefingCache

	events   events.Publisher
	notifier *notification.NotificationClient
	dial     DialFunc
	queue    *RunQueue
	status   *RunStatusManager

	agentBudget int

	mu      sync.Mutex
	cancels map[string]*atomic.Bool

	logger *logger.Logger
}

func NewRunService(deps Deps) RunServiceMethods {
	log := logger.NewLogger(logrus.InfoLevel)

	publisher := deps.Events
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	dial := deps.Dial
	if dial == nil {
		dial = func(ctx context.Context, endpoint string, timeout time.Duration) (discovery.TargetClient, error) {
			return discovery.Dial(ctx, endpoint, timeout)
		}
	}

	cache := planner.NewBriefingCache(&briefingStore{briefings: deps.Briefings}, deps.LLM)

	return &runService{
		runs:        deps.Runs,
		results:     deps.Results,
		stories:     deps.Stories,
		briefings:   deps.Briefings,
		reg:         deps.Registry,
		presets:     deps.Presets,
		scanner:     deps.Scanner,
		llmClient:   deps.LLM,
		llmProvider: deps.LLMProvider,
		llmModel:    deps.LLMModel,
		planner:     planner.New(deps.Registry, deps.LLM, cache),
		cache:       cache,
		events:      publisher,
		notifier:    deps.Notifier,
		dial:        dial,
		queue:       NewRunQueue(deps.MaxConcurrentRuns),
		status:      newRunStatusManager(deps.Runs, publisher, log),
		agentBudget: deps.AgentTokenBudget,
		cancels:     make(map[string]*atomic.Bool),
		logger:      log,
	}
}

// StartRun validates the request, persists the run row and launches the
// run's stage sequence as a background task behind the global queue.
func (s *runService) StartRun(req *RunRequest) (string, error) {
	preset, categories, err := s.resolveSelection(req)
	if err != nil {
		return "", err
	}

	id := uuid.New().String()
	now := time.Now().Unix()
	run := &models.Run{
		UUID:      id,
		Target:    req.Target,
		Mode:      req.Mode,
		Preset:    presetName(req),
		Stage:     models.StageInitialization,
		Status:    models.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if s.llmClient != nil && req.Mode != models.ModeTemplate {
		run.LLMProvider = s.llmProvider
		run.LLMModel = s.llmModel
	}

	if err := s.runs.SaveRun(run); err != nil {
		s.logger.Error("SaveRun failed", logger.Fields{"error": err})
		return "", err
	}

	flag := &atomic.Bool{}
	s.mu.Lock()
	s.cancels[id] = flag
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.cancels, id)
			s.mu.Unlock()

			if r := recover(); r != nil {
				s.logger.Error("panic in background run", logger.Fields{"run_id": id, "panic": r})
				s.status.MarkFailed(run, run.Stage, fmt.Sprintf("internal panic: %v", r))
			}
		}()

		_ = s.queue.ExecuteWithQueue(func() error {
			s.execute(context.Background(), run, preset, categories, req.Mode == models.ModeTemplate, req.ForceRefreshBriefing, flag)
			return nil
		})
	}()

	return id, nil
}

// resolveSelection turns the request's mode selector into a preset and an
// enabled category list, rejecting anything the catalog cannot account
// for.
func (s *runService) resolveSelection(req *RunRequest) (registry.Preset, []registry.Category, error) {
	if req.Target == "" {
		return registry.Preset{}, nil, sentryerrors.NewConfigError("target", req.Target, "target endpoint is required")
	}

	switch req.Mode {
	case models.ModePreset:
		preset, ok := s.presets.Get(req.Preset)
		if !ok {
			return registry.Preset{}, nil, sentryerrors.NewConfigError("preset", req.Preset, "unknown preset")
		}
		return preset, deterministicCategories(preset.Categories), nil

	case models.ModeCategories:
		if len(req.Categories) == 0 {
			return registry.Preset{}, nil, sentryerrors.NewConfigError("categories", req.Categories, "at least one category is required")
		}
		categories := make([]registry.Category, 0, len(req.Categories))
		for _, name := range req.Categories {
			if !registry.ValidCategory(name) {
				return registry.Preset{}, nil, sentryerrors.NewConfigError("categories", name, "unknown category")
			}
			categories = append(categories, registry.Category(name))
		}
		preset, _ := s.presets.Get("standard")
		preset.Categories = categories
		preset.RedTeam = containsCategory(categories, registry.CategoryAIRedTeam)
		if preset.RedTeam && preset.MaxScenarios == 0 {
			deep, ok := s.presets.Get("deep")
			if ok {
				preset.MaxScenarios = deep.MaxScenarios
				preset.MaxIterations = deep.MaxIterations
			}
		}
		return preset, deterministicCategories(categories), nil

	case models.ModeTemplate:
		preset, _ := s.presets.Get("standard")
		if len(req.Categories) > 0 {
			categories := make([]registry.Category, 0, len(req.Categories))
			for _, name := range req.Categories {
				if !registry.ValidCategory(name) {
					return registry.Preset{}, nil, sentryerrors.NewConfigError("categories", name, "unknown category")
				}
				categories = append(categories, registry.Category(name))
			}
			return preset, deterministicCategories(categories), nil
		}
		return preset, deterministicCategories(preset.Categories), nil

	default:
		return registry.Preset{}, nil, sentryerrors.NewConfigError("mode", req.Mode, "mode must be preset, categories or template")
	}
}

func (s *runService) GetRunByUUID(id string) (*models.Run, error) {
	return s.runs.GetRunByUUID(id)
}

func (s *runService) ListRuns(page, limit int) ([]models.Run, int64, error) {
	return s.runs.ListRunsWithPagination(page, limit)
}

// DeleteRun removes a terminal run and its stored rows. A live run must be
// cancelled first.
func (s *runService) DeleteRun(id string) error {
	run, err := s.runs.GetRunByUUID(id)
	if err != nil {
		return err
	}
	if !run.IsTerminal() {
		return sentryerrors.ErrRunNotTerminal
	}
	return s.runs.DeleteRun(id)
}

// CancelRun requests cooperative cancellation: the flag is set, in-flight
// work finishes its current unit and the orchestrator finalizes the run as
// cancelled.
func (s *runService) CancelRun(id string) error {
	run, err := s.runs.GetRunByUUID(id)
	if err != nil {
		return err
	}
	if run.IsTerminal() {
		return sentryerrors.ErrRunNotCancellable
	}

	s.mu.Lock()
	flag := s.cancels[id]
	s.mu.Unlock()
	if flag == nil {
		return sentryerrors.ErrRunNotCancellable
	}
	flag.Store(true)

	return s.status.MarkCancelling(run)
}

func (s *runService) GetDiscovery(id string) (*discovery.Snapshot, error) {
	run, err := s.runs.GetRunByUUID(id)
	if err != nil {
		return nil, err
	}
	if run.DiscoveryJSON == "" {
		return nil, nil
	}
	var snapshot discovery.Snapshot
	if err := json.Unmarshal([]byte(run.DiscoveryJSON), &snapshot); err != nil {
		return nil, fmt.Errorf("decode stored discovery snapshot: %w", err)
	}
	return &snapshot, nil
}

func (s *runService) GetSecurityProfile(id string) (*llm.SecurityProfile, error) {
	run, err := s.runs.GetRunByUUID(id)
	if err != nil {
		return nil, err
	}
	if run.ProfileJSON == "" {
		return nil, nil
	}
	var profile llm.SecurityProfile
	if err := json.Unmarshal([]byte(run.ProfileJSON), &profile); err != nil {
		return nil, fmt.Errorf("decode stored security profile: %w", err)
	}
	return &profile, nil
}

func (s *runService) GetTestPlan(id string) ([]planner.PlanEntry, error) {
	run, err := s.runs.GetRunByUUID(id)
	if err != nil {
		return nil, err
	}
	if run.PlanJSON == "" {
		return nil, nil
	}
	var plan []planner.PlanEntry
	if err := json.Unmarshal([]byte(run.PlanJSON), &plan); err != nil {
		return nil, fmt.Errorf("decode stored test plan: %w", err)
	}
	return plan, nil
}

// GetMissionBriefing serves the latest cached briefing for the run's
// target, with staleness judged against the run's own discovery
// fingerprint.
func (s *runService) GetMissionBriefing(id string) (*planner.CachedBriefing, error) {
	run, err := s.runs.GetRunByUUID(id)
	if err != nil {
		return nil, err
	}

	fingerprint := ""
	if snapshot, err := s.GetDiscovery(id); err == nil && snapshot != nil {
		fingerprint = snapshot.Fingerprint()
	}
	return s.cache.Peek(run.Target, fingerprint), nil
}

func (s *runService) GetResults(id string) ([]models.TestResult, error) {
	if _, err := s.runs.GetRunByUUID(id); err != nil {
		return nil, err
	}
	return s.results.ListResultsForRun(id)
}

func (s *runService) GetStories(id string) ([]models.AgentStory, error) {
	if _, err := s.runs.GetRunByUUID(id); err != nil {
		return nil, err
	}
	return s.stories.ListStoriesForRun(id)
}

func (s *runService) GetTranscript(id string, storyIndex int) ([]agent.TranscriptEvent, error) {
	story, err := s.stories.GetStory(id, storyIndex)
	if err != nil {
		return nil, err
	}
	var transcript []agent.TranscriptEvent
	if err := json.Unmarshal([]byte(story.TranscriptJSON), &transcript); err != nil {
		return nil, fmt.Errorf("decode stored transcript: %w", err)
	}
	return transcript, nil
}

// CompareRuns diffs two completed runs' result sets. Pure read: nothing is
// re-executed.
func (s *runService) CompareRuns(baseID, headID string) (*compare.Result, error) {
	base, err := s.loadResultMap(baseID)
	if err != nil {
		return nil, err
	}
	head, err := s.loadResultMap(headID)
	if err != nil {
		return nil, err
	}
	return compare.Diff(base, head), nil
}

func (s *runService) loadResultMap(id string) (map[compare.Key]compare.Outcome, error) {
	run, err := s.runs.GetRunByUUID(id)
	if err != nil {
		return nil, err
	}
	if run.Status != models.StatusCompleted {
		return nil, fmt.Errorf("run %s: %w", id, sentryerrors.ErrRunNotTerminal)
	}

	results, err := s.results.ListResultsForRun(id)
	if err != nil {
		return nil, err
	}

	m := make(map[compare.Key]compare.Outcome, len(results))
	for _, r := range results {
		key := compare.Key{
			Category: r.Category,
			Check:    r.Check,
			Target:   r.TargetKind + ":" + r.TargetName,
		}
		m[key] = compare.Outcome{Status: r.Status, Severity: r.Severity}
	}
	return m, nil
}

func (s *runService) QueueStatus() (running, queued, maxConcurrent int) {
	return s.queue.GetStatus()
}

func presetName(req *RunRequest) string {
	if req.Mode == models.ModePreset {
		return req.Preset
	}
	return ""
}

// deterministicCategories strips the agentic pseudo-category: it has no
// registry entries and is driven by the agent loop instead.
func deterministicCategories(categories []registry.Category) []registry.Category {
	out := make([]registry.Category, 0, len(categories))
	for _, c := range categories {
		if c == registry.CategoryAIRedTeam {
			continue
		}
		out = append(out, c)
	}
	return out
}

func containsCategory(categories []registry.Category, category registry.Category) bool {
	for _, c := range categories {
		if c == category {
			return true
		}
	}
	return false
}
