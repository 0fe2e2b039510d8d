// Package testutil provides testing utilities for the mcpsentry engine
package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"mcpsentry/pkg/agent"
	"mcpsentry/pkg/discovery"
	"mcpsentry/pkg/executor"
	"mcpsentry/pkg/llm"
	"mcpsentry/pkg/planner"
)

// FakeTargetClient implements discovery.TargetClient with scriptable
// responses, recording every call it receives.
type FakeTargetClient struct {
	mu        sync.RWMutex
	Tools     []discovery.ToolInfo
	Prompts   []discovery.PromptInfo
	Resources []discovery.ResourceInfo

	// Responses maps tool name to the outcome CallTool returns. Tools
	// without an entry return a benign success.
	Responses map[string]ToolResponse

	ListToolsErr error
	calls        []RecordedCall
	closed       bool
}

type ToolResponse struct {
	Outcome *discovery.CallOutcome
	Err     error
	Delay   time.Duration
}

type RecordedCall struct {
	Tool string
	Args map[string]any
}

func NewFakeTargetClient(tools ...discovery.ToolInfo) *FakeTargetClient {
	return &FakeTargetClient{
		Tools:     tools,
		Responses: make(map[string]ToolResponse),
	}
}

func (f *FakeTargetClient) ListTools(ctx context.Context) ([]discovery.ToolInfo, error) {
	if f.ListToolsErr != nil {
		return nil, f.ListToolsErr
	}
	return f.Tools, nil
}

func (f *FakeTargetClient) ListPrompts(ctx context.Context) ([]discovery.PromptInfo, error) {
	return f.Prompts, nil
}

func (f *FakeTargetClient) ListResources(ctx context.Context) ([]discovery.ResourceInfo, error) {
	return f.Resources, nil
}

func (f *FakeTargetClient) CallTool(ctx context.Context, name string, args map[string]any) (*discovery.CallOutcome, error) {
	f.mu.Lock()
	f.calls = append(f.calls, RecordedCall{Tool: name, Args: args})
	response, exists := f.Responses[name]
	f.mu.Unlock()

	if exists {
		if response.Delay > 0 {
			select {
			case <-time.After(response.Delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		if response.Err != nil {
			return nil, response.Err
		}
		if response.Outcome != nil {
			return response.Outcome, nil
		}
	}
	return &discovery.CallOutcome{Text: "ok"}, nil
}

func (f *FakeTargetClient) ReadResource(ctx context.Context, uri string) (*discovery.CallOutcome, error) {
	return &discovery.CallOutcome{Text: "resource body"}, nil
}

func (f *FakeTargetClient) GetPrompt(ctx context.Context, name string, args map[string]string) (*discovery.CallOutcome, error) {
	return &discovery.CallOutcome{Text: "prompt body"}, nil
}

func (f *FakeTargetClient) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *FakeTargetClient) Calls() []RecordedCall {
	f.mu.RLock()
	defer f.mu.RUnlock()
	calls := make([]RecordedCall, len(f.calls))
	copy(calls, f.calls)
	return calls
}

func (f *FakeTargetClient) Closed() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.closed
}

// FakeLLMClient implements llm.Client with pluggable function fields and
// per-role call counters. A nil field returns an error, standing in for a
// broken provider.
type FakeLLMClient struct {
	mu sync.Mutex

	PlanFunc     func(req *llm.PlanRequest) (*llm.PlanProposal, llm.Usage, error)
	BriefingFunc func(req *llm.BriefingRequest) (*llm.MissionBriefing, llm.Usage, error)
	AttackFunc   func(req *llm.AttackTurnRequest) (*llm.AttackTurn, llm.Usage, error)
	JudgeFunc    func(req *llm.JudgeRequest) (*llm.JudgeVerdict, llm.Usage, error)

	PlanCalls     int
	BriefingCalls int
	AttackCalls   int
	JudgeCalls    int
}

func (f *FakeLLMClient) GeneratePlan(ctx context.Context, req *llm.PlanRequest) (*llm.PlanProposal, llm.Usage, error) {
	f.mu.Lock()
	f.PlanCalls++
	fn := f.PlanFunc
	f.mu.Unlock()
	if fn == nil {
		return nil, llm.Usage{}, fmt.Errorf("plan generation not scripted")
	}
	return fn(req)
}

func (f *FakeLLMClient) GenerateBriefing(ctx context.Context, req *llm.BriefingRequest) (*llm.MissionBriefing, llm.Usage, error) {
	f.mu.Lock()
	f.BriefingCalls++
	fn := f.BriefingFunc
	f.mu.Unlock()
	if fn == nil {
		return nil, llm.Usage{}, fmt.Errorf("briefing generation not scripted")
	}
	return fn(req)
}

func (f *FakeLLMClient) NextAttackTurn(ctx context.Context, req *llm.AttackTurnRequest) (*llm.AttackTurn, llm.Usage, error) {
	f.mu.Lock()
	f.AttackCalls++
	fn := f.AttackFunc
	f.mu.Unlock()
	if fn == nil {
		return nil, llm.Usage{}, fmt.Errorf("attack turn not scripted")
	}
	return fn(req)
}

func (f *FakeLLMClient) JudgeTranscript(ctx context.Context, req *llm.JudgeRequest) (*llm.JudgeVerdict, llm.Usage, error) {
	f.mu.Lock()
	f.JudgeCalls++
	fn := f.JudgeFunc
	f.mu.Unlock()
	if fn == nil {
		return nil, llm.Usage{}, fmt.Errorf("judge not scripted")
	}
	return fn(req)
}

// MemoryResultSink buffers executor results, optionally failing writes.
type MemoryResultSink struct {
	mu       sync.Mutex
	results  []executor.TestResult
	WriteErr error
}

func (s *MemoryResultSink) Write(result executor.TestResult) error {
	if s.WriteErr != nil {
		return s.WriteErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, result)
	return nil
}

func (s *MemoryResultSink) Results() []executor.TestResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	results := make([]executor.TestResult, len(s.results))
	copy(results, s.results)
	return results
}

// MemoryStorySink buffers agent stories.
type MemoryStorySink struct {
	mu      sync.Mutex
	stories []agent.Story
}

func (s *MemoryStorySink) Write(story agent.Story) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stories = append(s.stories, story)
	return nil
}

func (s *MemoryStorySink) Stories() []agent.Story {
	s.mu.Lock()
	defer s.mu.Unlock()
	stories := make([]agent.Story, len(s.stories))
	copy(stories, s.stories)
	return stories
}

// MemoryBriefingStore implements planner.BriefingStore in memory.
type MemoryBriefingStore struct {
	mu    sync.Mutex
	byKey map[string]*planner.StoredBriefing
}

func NewMemoryBriefingStore() *MemoryBriefingStore {
	return &MemoryBriefingStore{byKey: make(map[string]*planner.StoredBriefing)}
}

func (s *MemoryBriefingStore) LatestForTarget(target string) (*planner.StoredBriefing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byKey[target], nil
}

func (s *MemoryBriefingStore) Save(b *planner.StoredBriefing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byKey[b.Target] = b
	return nil
}

// SnapshotWithTools builds a minimal snapshot for planner and executor
// tests.
func SnapshotWithTools(target string, toolNames ...string) *discovery.Snapshot {
	tools := make([]discovery.ToolInfo, 0, len(toolNames))
	for _, name := range toolNames {
		tools = append(tools, discovery.ToolInfo{
			Name:        name,
			Description: "test tool " + name,
			InputSchema: []byte(`{"type":"object","properties":{"input":{"type":"string"}}}`),
		})
	}
	return &discovery.Snapshot{
		Target:     target,
		Tools:      tools,
		CapturedAt: time.Now().UTC(),
	}
}
