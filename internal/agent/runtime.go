package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"telos/internal/config"
	"telos/internal/types"
)

// Input is one reasoning request: the intent and the backlog size observed
// when it was popped.
type Input struct {
	Intent      types.Intent
	BacklogSize int
}

// Run is the result of one reasoning run: the outcome plus the trace log
// entries for every LLM call made along the way.
type Run struct {
	Outcome types.Outcome
	Logs    []types.LLMLogEntry
}

// Runtime drives the ReAct loop: a configured number of THINK steps, then
// one FINAL call.
type Runtime struct {
	cfg config.AgentConfig
	llm Client
}

// NewRuntime builds a runtime over an explicit client.
func NewRuntime(cfg config.AgentConfig, llm Client) *Runtime {
	return &Runtime{cfg: cfg, llm: llm}
}

// NewRuntimeFromConfig selects the provider named by the LLM configuration.
func NewRuntimeFromConfig(ctx context.Context, cfg *config.Config) (*Runtime, error) {
	var llm Client
	switch cfg.LLM.Provider {
	case config.ProviderLocalStub:
		llm = StubClient{}
	case config.ProviderOpenAI:
		client, err := NewOpenAIClientFromEnv(cfg.LLM.APIKeyEnv, cfg.LLM.Model, cfg.LLM.BaseURL, cfg.LLM.Organization)
		if err != nil {
			return nil, err
		}
		llm = client
	case config.ProviderGemini:
		client, err := NewGeminiClientFromEnv(ctx, cfg.LLM.APIKeyEnv, cfg.LLM.Model)
		if err != nil {
			return nil, err
		}
		llm = client
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
	}
	return NewRuntime(cfg.Agent, llm), nil
}

type stepPayload struct {
	Thought     string `json:"thought"`
	Action      string `json:"action"`
	Observation string `json:"observation"`
}

type finalPayload struct {
	FinalAnswer string `json:"final_answer"`
}

// RunReAct executes the full loop for one intent. Every LLM call, THINK and
// FINAL alike, is recorded as a trace log entry with the full prompt and
// response pair.
func (r *Runtime) RunReAct(ctx context.Context, input Input) (Run, error) {
	runID := uuid.New()
	identity := r.llm.Identity()

	var steps []types.TraceStep
	var logs []types.LLMLogEntry

	stepCount := r.cfg.MaxReactSteps
	if stepCount < 1 {
		stepCount = 1
	}

	for stepIndex := 0; stepIndex < stepCount; stepIndex++ {
		prompt := fmt.Sprintf(
			"# Phase: THINK\nIntent: %s\nBacklog: %d\nPersona: %s\nStep: %d\nHistory:\n%s\nRespond with JSON containing thought, action, observation.",
			input.Intent.Summary,
			input.BacklogSize,
			r.cfg.Persona,
			stepIndex+1,
			formatHistory(steps),
		)

		raw, err := r.llm.Complete(ctx, prompt)
		if err != nil {
			return Run{}, err
		}
		logs = append(logs, newLogEntry(runID, "THINK", prompt, raw, identity))

		var step stepPayload
		if err := json.Unmarshal([]byte(raw), &step); err != nil {
			return Run{}, fmt.Errorf("parsing agent step response: %s: %w", raw, err)
		}
		steps = append(steps, types.TraceStep(step))
	}

	finalPrompt := fmt.Sprintf(
		"# Phase: FINAL\nIntent: %s\nPersona: %s\nHistory:\n%s\nRespond with JSON containing final_answer.",
		input.Intent.Summary,
		r.cfg.Persona,
		formatHistory(steps),
	)

	finalRaw, err := r.llm.Complete(ctx, finalPrompt)
	if err != nil {
		return Run{}, err
	}
	logs = append(logs, newLogEntry(runID, "FINAL", finalPrompt, finalRaw, identity))

	var final finalPayload
	if err := json.Unmarshal([]byte(finalRaw), &final); err != nil {
		return Run{}, fmt.Errorf("parsing final answer: %s: %w", finalRaw, err)
	}

	return Run{
		Outcome: types.Outcome{Steps: steps, FinalAnswer: final.FinalAnswer},
		Logs:    logs,
	}, nil
}

func newLogEntry(runID uuid.UUID, phase, prompt, response string, identity Identity) types.LLMLogEntry {
	return types.LLMLogEntry{
		RunID:     runID,
		Timestamp: time.Now().UTC(),
		Phase:     phase,
		Prompt:    prompt,
		Response:  response,
		Provider:  identity.Provider,
		Model:     identity.Model,
	}
}

func formatHistory(steps []types.TraceStep) string {
	if len(steps) == 0 {
		return "(none)"
	}
	var sb strings.Builder
	for idx, step := range steps {
		fmt.Fprintf(&sb, "%d. Thought: %s | Action: %s | Observation: %s\n",
			idx+1, step.Thought, step.Action, step.Observation)
	}
	return strings.TrimSpace(sb.String())
}
