package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// TruncateString bounds a string for prompt inclusion.
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// BuildPlanPrompt constructs the planner prompt. The check catalog is the
// closed world: the model selects and parameterizes, nothing else.
func BuildPlanPrompt(req *PlanRequest) string {
	checksJSON, _ := json.MarshalIndent(req.Checks, "", "  ")
	targetsJSON, _ := json.MarshalIndent(req.Targets, "", "  ")

	briefingSection := ""
	if req.Briefing != nil {
		briefingJSON, _ := json.MarshalIndent(req.Briefing, "", "  ")
		briefingSection = fmt.Sprintf("\n### PRIOR ATTACK-SURFACE ANALYSIS:\n%s\n", string(briefingJSON))
	}

	return fmt.Sprintf(`You are a senior penetration tester planning a security assessment of a tool server.

### TARGET: %s

### ENABLED CATEGORIES:
%s

### CHECK CATALOG (the ONLY checks you may select from):
%s

### DISCOVERED TARGETS (the ONLY targets you may reference):
%s
%s
### YOUR TASK:

1. Select which catalog checks to run against which discovered targets. Prioritize:
   - Checks whose category matches the target's apparent risk (e.g. traversal probes against file-ish tools).
   - High-risk targets first.
   - Skip pairings that make no sense (e.g. numeric overflow against a tool with no numeric arguments).
2. Produce a security profile: a risk narrative, a risk score from 0 to 100, the high-risk targets, likely attack vectors, and data-sensitivity flags.

### HARD RULES:
- "category" and "check" MUST be copied verbatim from the catalog above.
- "target_name" MUST be copied verbatim from the discovered targets above, and "target_kind" must match the check's target kind.
- Do NOT invent checks, categories or targets. Entries that violate this are discarded wholesale.

Answer strictly as JSON matching the schema.`,
		req.Target,
		strings.Join(req.Categories, ", "),
		string(checksJSON),
		string(targetsJSON),
		briefingSection,
	)
}

// BuildBriefingPrompt constructs the attack-surface analyst prompt.
func BuildBriefingPrompt(req *BriefingRequest) string {
	targetsJSON, _ := json.MarshalIndent(req.Targets, "", "  ")

	return fmt.Sprintf(`You are a red-team lead preparing a mission briefing for an assessment of a tool server.

### TARGET: %s

### DISCOVERED CAPABILITY SURFACE:
%s

### YOUR TASK:

1. Summarize what domain this server appears to serve (one short paragraph).
2. Rate the overall risk: one of "low", "medium", "high", "critical".
3. List the priority targets: capabilities most worth attacking, each with a rationale and concrete payload hints.
4. Suggest attack chains: ordered tool sequences where one tool's output enables abusing the next.
5. Pre-assign attack scenarios: concrete goals an autonomous attacker should pursue, each naming the capabilities involved. 3 to 5 scenarios.

Only reference capability names that appear in the surface above.

Answer strictly as JSON matching the schema.`,
		req.Target,
		string(targetsJSON),
	)
}

// BuildAttackTurnPrompt constructs the attacker-role prompt for one turn.
func BuildAttackTurnPrompt(req *AttackTurnRequest) string {
	toolsJSON, _ := json.MarshalIndent(req.Tools, "", "  ")

	var transcript strings.Builder
	for _, line := range req.Transcript {
		transcript.WriteString(line.Role)
		transcript.WriteString(": ")
		transcript.WriteString(TruncateString(line.Content, 1500))
		transcript.WriteString("\n")
	}

	return fmt.Sprintf(`You are an autonomous red-team attacker working a single scenario against a tool server. You observe real tool results and adapt.

### GOAL: %s
### TARGET: %s
### TURN: %d of %d

### AVAILABLE TOOLS:
%s

### TRANSCRIPT SO FAR:
%s

### YOUR TASK:
Decide your next move.
- action "call_tool": name an available tool and give its arguments. Explain your reasoning first.
- action "conclude": stop and state your conclusion — what you achieved or why the goal is unreachable.

Conclude once you have clear evidence either way, or when turns are nearly exhausted. Only call tools listed above.

Answer strictly as JSON matching the schema.`,
		req.Goal,
		req.Target,
		req.Iteration,
		req.MaxIterations,
		string(toolsJSON),
		transcript.String(),
	)
}

// BuildJudgePrompt constructs the judge-role prompt for one finished scenario.
func BuildJudgePrompt(req *JudgeRequest) string {
	var transcript strings.Builder
	for _, line := range req.Transcript {
		transcript.WriteString(line.Role)
		transcript.WriteString(": ")
		transcript.WriteString(TruncateString(line.Content, 2000))
		transcript.WriteString("\n")
	}

	return fmt.Sprintf(`You are an impartial security judge. Review the full transcript of one red-team scenario and issue exactly one verdict.

### SCENARIO GOAL: %s

### FULL TRANSCRIPT:
%s

### VERDICT RULES:
- "vulnerability_found": the transcript shows concrete evidence the server misbehaved — give severity ("critical", "high", "medium" or "low"), a short title, the finding, the evidence excerpt, and a remediation recommendation.
- "secure": the server demonstrably resisted the attack.
- "inconclusive": the transcript does not support either conclusion (e.g. turns exhausted without clear evidence).

Judge only what the transcript shows. Attacker claims without tool-result evidence do not count.

Answer strictly as JSON matching the schema.`,
		req.Goal,
		transcript.String(),
	)
}
