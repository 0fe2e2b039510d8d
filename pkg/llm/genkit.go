package llm

import (
	"context"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
)

// GenkitConfig selects the provider models. The fast model serves attacker
// turns (many small calls), the smart model serves planning, briefing and
// judging (few calls where quality matters).
type GenkitConfig struct {
	APIKey     string
	FastModel  string
	SmartModel string
}

// GenkitClient implements Client on top of Genkit structured generation.
type GenkitClient struct {
	g          *genkit.Genkit
	fastModel  string
	smartModel string
}

// NewGenkitClient initializes Genkit with the GoogleAI plugin.
func NewGenkitClient(ctx context.Context, cfg GenkitConfig) (*GenkitClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm: API key not configured")
	}
	if cfg.FastModel == "" {
		cfg.FastModel = "googleai/gemini-2.5-flash"
	}
	if cfg.SmartModel == "" {
		cfg.SmartModel = cfg.FastModel
	}

	g := genkit.Init(
		ctx,
		genkit.WithPlugins(&googlegenai.GoogleAI{APIKey: cfg.APIKey}),
		genkit.WithDefaultModel(cfg.SmartModel),
	)

	return &GenkitClient{
		g:          g,
		fastModel:  cfg.FastModel,
		smartModel: cfg.SmartModel,
	}, nil
}

// Models returns the configured (fast, smart) model names.
func (c *GenkitClient) Models() (string, string) {
	return c.fastModel, c.smartModel
}

func (c *GenkitClient) GeneratePlan(ctx context.Context, req *PlanRequest) (*PlanProposal, Usage, error) {
	result, resp, err := genkit.GenerateData[PlanProposal](
		ctx,
		c.g,
		ai.WithModelName(c.smartModel),
		ai.WithPrompt(BuildPlanPrompt(req)),
	)
	if err != nil {
		return nil, Usage{}, fmt.Errorf("plan generation failed: %w", err)
	}
	return result, usageFrom(resp), nil
}

func (c *GenkitClient) GenerateBriefing(ctx context.Context, req *BriefingRequest) (*MissionBriefing, Usage, error) {
	result, resp, err := genkit.GenerateData[MissionBriefing](
		ctx,
		c.g,
		ai.WithModelName(c.smartModel),
		ai.WithPrompt(BuildBriefingPrompt(req)),
	)
	if err != nil {
		return nil, Usage{}, fmt.Errorf("briefing generation failed: %w", err)
	}
	return result, usageFrom(resp), nil
}

func (c *GenkitClient) NextAttackTurn(ctx context.Context, req *AttackTurnRequest) (*AttackTurn, Usage, error) {
	result, resp, err := genkit.GenerateData[AttackTurn](
		ctx,
		c.g,
		ai.WithModelName(c.fastModel),
		ai.WithPrompt(BuildAttackTurnPrompt(req)),
	)
	if err != nil {
		return nil, Usage{}, fmt.Errorf("attack turn generation failed: %w", err)
	}
	return result, usageFrom(resp), nil
}

func (c *GenkitClient) JudgeTranscript(ctx context.Context, req *JudgeRequest) (*JudgeVerdict, Usage, error) {
	result, resp, err := genkit.GenerateData[JudgeVerdict](
		ctx,
		c.g,
		ai.WithModelName(c.smartModel),
		ai.WithPrompt(BuildJudgePrompt(req)),
	)
	if err != nil {
		return nil, Usage{}, fmt.Errorf("judge generation failed: %w", err)
	}
	return result, usageFrom(resp), nil
}

func usageFrom(resp *ai.ModelResponse) Usage {
	if resp == nil || resp.Usage == nil {
		return Usage{}
	}
	return Usage{
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
		TotalTokens:  resp.Usage.TotalTokens,
	}
}
