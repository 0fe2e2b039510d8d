package agent_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcpsentry/pkg/agent"
	"mcpsentry/pkg/llm"
	"mcpsentry/pkg/testutil"
)

func concludeAfterOneCall() *testutil.FakeLLMClient {
	return &testutil.FakeLLMClient{
		AttackFunc: func(req *llm.AttackTurnRequest) (*llm.AttackTurn, llm.Usage, error) {
			if req.Iteration == 1 {
				return &llm.AttackTurn{
					Reasoning: "probing the query tool",
					Action:    llm.ActionCallTool,
					ToolName:  "query_db",
					Args:      map[string]any{"input": "' OR 1=1 --"},
				}, llm.Usage{TotalTokens: 50}, nil
			}
			return &llm.AttackTurn{
				Action:     llm.ActionConclude,
				Conclusion: "target sanitizes input",
			}, llm.Usage{TotalTokens: 30}, nil
		},
		JudgeFunc: func(req *llm.JudgeRequest) (*llm.JudgeVerdict, llm.Usage, error) {
			return &llm.JudgeVerdict{
				Verdict: llm.VerdictSecure,
				Title:   "No injection found",
				Finding: "The tool rejected the payload",
			}, llm.Usage{TotalTokens: 40}, nil
		},
	}
}

func briefingWithOneScenario() *llm.MissionBriefing {
	return &llm.MissionBriefing{
		DomainSummary: "database tooling",
		Scenarios: []llm.PlannedScenario{
			{Goal: "inject through query_db", Targets: []string{"query_db"}},
		},
		PriorityTargets: []llm.PriorityTarget{
			{Name: "query_db", Kind: "tool"},
			{Name: "export_csv", Kind: "tool"},
		},
	}
}

func TestPlannedAndSurpriseScenarioTagging(t *testing.T) {
	client := concludeAfterOneCall()
	target := testutil.NewFakeTargetClient()
	snapshot := testutil.SnapshotWithTools("http://target", "query_db", "export_csv")
	target.Tools = snapshot.Tools
	sink := &testutil.MemoryStorySink{}

	a := agent.New(client, target, sink, agent.Config{MaxScenarios: 2, MaxIterations: 5})
	_, err := a.Run(context.Background(), snapshot, briefingWithOneScenario(), nil)
	require.NoError(t, err)

	stories := sink.Stories()
	require.Len(t, stories, 2)

	// First slot comes from the briefing, the second is self-directed.
	assert.True(t, stories[0].WasPlanned)
	assert.Equal(t, "inject through query_db", stories[0].Goal)
	assert.False(t, stories[1].WasPlanned)

	// Surprise scenarios are judged exactly like planned ones.
	assert.Equal(t, llm.VerdictSecure, stories[1].Verdict)
	assert.NotEmpty(t, stories[1].Transcript)
}

func TestCoverageAgainstBriefingScope(t *testing.T) {
	client := concludeAfterOneCall()
	target := testutil.NewFakeTargetClient()
	snapshot := testutil.SnapshotWithTools("http://target", "query_db", "export_csv")
	target.Tools = snapshot.Tools
	sink := &testutil.MemoryStorySink{}

	a := agent.New(client, target, sink, agent.Config{MaxScenarios: 1, MaxIterations: 5})
	_, err := a.Run(context.Background(), snapshot, briefingWithOneScenario(), nil)
	require.NoError(t, err)

	stories := sink.Stories()
	require.Len(t, stories, 1)

	// Intended scope is {query_db, export_csv}; only query_db was touched.
	assert.InDelta(t, 50.0, stories[0].Coverage, 0.01)
	assert.Equal(t, []string{"query_db"}, stories[0].ToolsTouched)
	assert.Equal(t, 1, stories[0].ToolCalls)
}

func TestJudgeFailureRecordsInconclusive(t *testing.T) {
	client := concludeAfterOneCall()
	client.JudgeFunc = func(req *llm.JudgeRequest) (*llm.JudgeVerdict, llm.Usage, error) {
		return nil, llm.Usage{}, errors.New("judge model unavailable")
	}
	target := testutil.NewFakeTargetClient()
	snapshot := testutil.SnapshotWithTools("http://target", "query_db")
	target.Tools = snapshot.Tools
	sink := &testutil.MemoryStorySink{}

	a := agent.New(client, target, sink, agent.Config{MaxScenarios: 1, MaxIterations: 3})
	_, err := a.Run(context.Background(), snapshot, nil, nil)
	require.NoError(t, err, "a broken judge degrades the story, never the run")

	stories := sink.Stories()
	require.Len(t, stories, 1)
	assert.Equal(t, llm.VerdictInconclusive, stories[0].Verdict)
}

func TestUnknownVerdictNormalizedToInconclusive(t *testing.T) {
	client := concludeAfterOneCall()
	client.JudgeFunc = func(req *llm.JudgeRequest) (*llm.JudgeVerdict, llm.Usage, error) {
		return &llm.JudgeVerdict{Verdict: "probably_fine"}, llm.Usage{}, nil
	}
	target := testutil.NewFakeTargetClient()
	snapshot := testutil.SnapshotWithTools("http://target", "query_db")
	target.Tools = snapshot.Tools
	sink := &testutil.MemoryStorySink{}

	a := agent.New(client, target, sink, agent.Config{MaxScenarios: 1, MaxIterations: 3})
	_, err := a.Run(context.Background(), snapshot, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, llm.VerdictInconclusive, sink.Stories()[0].Verdict)
}

func TestIterationCapBoundsScenario(t *testing.T) {
	client := concludeAfterOneCall()
	// Never conclude: every turn calls the tool again.
	client.AttackFunc = func(req *llm.AttackTurnRequest) (*llm.AttackTurn, llm.Usage, error) {
		return &llm.AttackTurn{
			Action:   llm.ActionCallTool,
			ToolName: "query_db",
			Args:     map[string]any{"input": "again"},
		}, llm.Usage{TotalTokens: 10}, nil
	}
	target := testutil.NewFakeTargetClient()
	snapshot := testutil.SnapshotWithTools("http://target", "query_db")
	target.Tools = snapshot.Tools
	sink := &testutil.MemoryStorySink{}

	a := agent.New(client, target, sink, agent.Config{MaxScenarios: 1, MaxIterations: 4})
	_, err := a.Run(context.Background(), snapshot, nil, nil)
	require.NoError(t, err)

	stories := sink.Stories()
	require.Len(t, stories, 1)
	assert.Equal(t, 4, stories[0].Iterations)
	assert.Equal(t, 4, stories[0].ToolCalls)
}

func TestUnknownToolRequestIsSkippedNotExecuted(t *testing.T) {
	client := concludeAfterOneCall()
	calls := 0
	client.AttackFunc = func(req *llm.AttackTurnRequest) (*llm.AttackTurn, llm.Usage, error) {
		calls++
		if calls == 1 {
			return &llm.AttackTurn{
				Action:   llm.ActionCallTool,
				ToolName: "not_advertised",
			}, llm.Usage{}, nil
		}
		return &llm.AttackTurn{Action: llm.ActionConclude, Conclusion: "done"}, llm.Usage{}, nil
	}
	target := testutil.NewFakeTargetClient()
	snapshot := testutil.SnapshotWithTools("http://target", "query_db")
	target.Tools = snapshot.Tools
	sink := &testutil.MemoryStorySink{}

	a := agent.New(client, target, sink, agent.Config{MaxScenarios: 1, MaxIterations: 5})
	_, err := a.Run(context.Background(), snapshot, nil, nil)
	require.NoError(t, err)

	assert.Empty(t, target.Calls())
	assert.Zero(t, sink.Stories()[0].ToolCalls)
}

func TestTokenBudgetStopsNewScenarios(t *testing.T) {
	client := concludeAfterOneCall()
	target := testutil.NewFakeTargetClient()
	snapshot := testutil.SnapshotWithTools("http://target", "query_db")
	target.Tools = snapshot.Tools
	sink := &testutil.MemoryStorySink{}

	// Each scenario costs 120 tokens (50+30 attacker, 40 judge); budget
	// allows the first but blocks a second.
	a := agent.New(client, target, sink, agent.Config{MaxScenarios: 3, MaxIterations: 5, TokenBudget: 100})
	usage, err := a.Run(context.Background(), snapshot, nil, nil)
	require.NoError(t, err)

	assert.Len(t, sink.Stories(), 1)
	assert.Equal(t, 120, usage.TotalTokens)
}

func TestCancellationAtScenarioBoundary(t *testing.T) {
	client := concludeAfterOneCall()
	target := testutil.NewFakeTargetClient()
	snapshot := testutil.SnapshotWithTools("http://target", "query_db")
	target.Tools = snapshot.Tools
	sink := &testutil.MemoryStorySink{}

	a := agent.New(client, target, sink, agent.Config{MaxScenarios: 5, MaxIterations: 5})
	cancelled := func() bool { return len(sink.Stories()) >= 2 }

	_, err := a.Run(context.Background(), snapshot, nil, cancelled)
	require.NoError(t, err)

	// The flag is observed between scenarios; completed stories are kept.
	assert.Len(t, sink.Stories(), 2)
}
