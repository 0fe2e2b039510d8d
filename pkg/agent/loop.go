package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"mcpsentry/pkg/discovery"
	"mcpsentry/pkg/llm"
	"mcpsentry/pkg/logger"
	"mcpsentry/pkg/planner"
)

const surpriseGoal = "Probe the exposed capabilities for any exploitable weakness the mission briefing did not anticipate"

type Agent struct {
	client llm.Client
	target discovery.TargetClient
	sink   StorySink
	cfg    Config
	logger *logger.Logger
}

func New(client llm.Client, target discovery.TargetClient, sink StorySink, cfg Config) *Agent {
	if cfg.MaxScenarios < 1 {
		cfg.MaxScenarios = 3
	}
	if cfg.MaxIterations < 1 {
		cfg.MaxIterations = 10
	}
	return &Agent{
		client: client,
		target: target,
		sink:   sink,
		cfg:    cfg,
		logger: logger.NewLogger(logrus.InfoLevel),
	}
}

type scenarioSeed struct {
	goal       string
	wasPlanned bool
}

// Run executes up to MaxScenarios scenarios. Scenarios seeded by the
// briefing are tagged planned; remaining slots are self-directed surprise
// scenarios, judged exactly like planned ones. cancelled is checked at
// scenario boundaries only — an in-flight scenario finishes and its story
// is kept.
func (a *Agent) Run(ctx context.Context, snapshot *discovery.Snapshot, briefing *llm.MissionBriefing, cancelled func() bool) (llm.Usage, error) {
	seeds := a.buildSeeds(briefing)
	intended := intendedScope(briefing)
	exercised := make(map[string]bool)

	var total llm.Usage

	for i, seed := range seeds {
		if cancelled != nil && cancelled() {
			a.logger.Info("Cancellation observed at scenario boundary", logger.Fields{"completed": i})
			break
		}
		if a.cfg.TokenBudget > 0 && total.TotalTokens >= a.cfg.TokenBudget {
			a.logger.Warn("Token budget exhausted, no further scenarios", logger.Fields{
				"spent":  total.TotalTokens,
				"budget": a.cfg.TokenBudget,
			})
			break
		}

		story, usage := a.runScenario(ctx, snapshot, i, seed)
		total = total.Add(usage)

		for _, tool := range story.ToolsTouched {
			exercised[tool] = true
		}
		story.Coverage = coverage(intended, exercised)
		story.Usage = usage

		if err := a.sink.Write(*story); err != nil {
			return total, fmt.Errorf("persist story %d: %w", i, err)
		}
	}

	return total, nil
}

func (a *Agent) buildSeeds(briefing *llm.MissionBriefing) []scenarioSeed {
	var seeds []scenarioSeed
	if briefing != nil {
		for _, s := range briefing.Scenarios {
			if len(seeds) == a.cfg.MaxScenarios {
				return seeds
			}
			seeds = append(seeds, scenarioSeed{goal: s.Goal, wasPlanned: true})
		}
	}
	for len(seeds) < a.cfg.MaxScenarios {
		seeds = append(seeds, scenarioSeed{goal: surpriseGoal, wasPlanned: false})
	}
	return seeds
}

// runScenario drives one bounded multi-turn attack and judges the result.
// Never returns an error: a broken attacker or judge turn degrades to an
// inconclusive story, not a run failure.
func (a *Agent) runScenario(ctx context.Context, snapshot *discovery.Snapshot, index int, seed scenarioSeed) (*Story, llm.Usage) {
	story := &Story{
		Index:      index,
		Goal:       seed.goal,
		WasPlanned: seed.wasPlanned,
	}
	var usage llm.Usage

	story.append(EventMarker, fmt.Sprintf("scenario %d start: %s", index, seed.goal))

	tools := planner.TargetSummaries(snapshot)
	touched := make(map[string]bool)

	for turn := 1; turn <= a.cfg.MaxIterations; turn++ {
		story.Iterations = turn

		move, turnUsage, err := a.client.NextAttackTurn(ctx, &llm.AttackTurnRequest{
			Goal:          seed.goal,
			Target:        snapshot.Target,
			Tools:         tools,
			Transcript:    story.promptTranscript(),
			Iteration:     turn,
			MaxIterations: a.cfg.MaxIterations,
		})
		usage = usage.Add(turnUsage)
		if err != nil {
			story.append(EventMarker, fmt.Sprintf("attacker turn failed: %v", err))
			break
		}

		if move.Reasoning != "" {
			story.append(EventReasoning, move.Reasoning)
		}

		if move.Action == llm.ActionConclude {
			story.append(EventMarker, "attacker concluded: "+move.Conclusion)
			break
		}

		if _, ok := snapshot.Tool(move.ToolName); !ok {
			story.append(EventMarker, fmt.Sprintf("attacker requested unknown tool %q, turn skipped", move.ToolName))
			continue
		}

		story.appendCall(move.ToolName, move.Args)
		story.ToolCalls++
		touched[move.ToolName] = true

		outcome, err := a.target.CallTool(ctx, move.ToolName, move.Args)
		if err != nil {
			story.append(EventToolResult, fmt.Sprintf("transport error: %v", err))
			continue
		}
		resultText := outcome.Text
		if outcome.IsError {
			resultText = "[tool error] " + resultText
		}
		story.append(EventToolResult, llm.TruncateString(resultText, 4000))
	}

	story.append(EventMarker, fmt.Sprintf("scenario %d end after %d iterations", index, story.Iterations))

	for tool := range touched {
		story.ToolsTouched = append(story.ToolsTouched, tool)
	}

	judgeUsage := a.judge(ctx, story)
	usage = usage.Add(judgeUsage)

	return story, usage
}

// judge hands the finished transcript to the judge role. Exactly one
// verdict per scenario; a judge failure records inconclusive rather than
// erroring.
func (a *Agent) judge(ctx context.Context, story *Story) llm.Usage {
	verdict, usage, err := a.client.JudgeTranscript(ctx, &llm.JudgeRequest{
		Goal:       story.Goal,
		Transcript: story.promptTranscript(),
	})
	if err != nil {
		a.logger.Error("Judge failed, recording inconclusive", logger.Fields{"scenario": story.Index, "error": err})
		story.Verdict = llm.VerdictInconclusive
		story.Title = "Judgment unavailable"
		story.Finding = fmt.Sprintf("judge call failed: %v", err)
		return usage
	}

	story.Verdict = normalizeVerdict(verdict.Verdict)
	story.Title = verdict.Title
	story.Finding = verdict.Finding
	story.Evidence = verdict.Evidence
	story.Recommendation = verdict.Recommendation
	if story.Verdict == llm.VerdictVulnerabilityFound {
		story.Severity = verdict.Severity
	}
	return usage
}

func normalizeVerdict(v string) string {
	switch v {
	case llm.VerdictVulnerabilityFound, llm.VerdictSecure, llm.VerdictInconclusive:
		return v
	default:
		return llm.VerdictInconclusive
	}
}

func (s *Story) append(eventType EventType, content string) {
	s.Transcript = append(s.Transcript, TranscriptEvent{
		Type:      eventType,
		Content:   content,
		Timestamp: time.Now().UTC(),
	})
}

func (s *Story) appendCall(toolName string, args map[string]any) {
	argsJSON, _ := json.Marshal(args)
	s.Transcript = append(s.Transcript, TranscriptEvent{
		Type:      EventToolCall,
		Content:   string(argsJSON),
		ToolName:  toolName,
		Args:      args,
		Timestamp: time.Now().UTC(),
	})
}

// promptTranscript flattens the transcript into the line shape the LLM
// roles consume.
func (s *Story) promptTranscript() []llm.TranscriptLine {
	lines := make([]llm.TranscriptLine, 0, len(s.Transcript))
	for _, ev := range s.Transcript {
		role := string(ev.Type)
		content := ev.Content
		if ev.Type == EventToolCall {
			content = ev.ToolName + " " + content
		}
		lines = append(lines, llm.TranscriptLine{Role: role, Content: content})
	}
	return lines
}

// intendedScope is the set of capability names the briefing meant the
// agent to exercise.
func intendedScope(briefing *llm.MissionBriefing) map[string]bool {
	scope := make(map[string]bool)
	if briefing == nil {
		return scope
	}
	for _, s := range briefing.Scenarios {
		for _, t := range s.Targets {
			scope[t] = true
		}
	}
	for _, p := range briefing.PriorityTargets {
		scope[p.Name] = true
	}
	return scope
}

// coverage is the fraction of the briefing's intended scope exercised so
// far, as a percentage. No briefing means no scope to cover.
func coverage(intended, exercised map[string]bool) float64 {
	if len(intended) == 0 {
		return 0
	}
	hit := 0
	for name := range intended {
		if exercised[name] {
			hit++
		}
	}
	return 100 * float64(hit) / float64(len(intended))
}
