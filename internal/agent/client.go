// Package agent runs the ReAct reasoning loop over a single intent and
// defines the LLM provider clients behind it.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Client is the interface every reasoning provider implements.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Identity() Identity
}

// Identity names the provider and model behind a client, recorded with
// every trace log entry.
type Identity struct {
	Provider string
	Model    string
}

// StubClient is a deterministic offline provider used for local fixtures
// and tests. It understands only the THINK and FINAL phases.
type StubClient struct{}

// Complete answers THINK prompts with a canned step and FINAL prompts with
// a canned answer, both echoing values parsed from the prompt.
func (StubClient) Complete(_ context.Context, prompt string) (string, error) {
	switch {
	case strings.Contains(prompt, "# Phase: THINK"):
		intent := extractValue(prompt, "Intent:")
		if intent == "" {
			intent = "intent"
		}
		backlog := extractValue(prompt, "Backlog:")
		if backlog == "" {
			backlog = "0"
		}
		payload := map[string]string{
			"thought":     fmt.Sprintf("Focus on intent '%s' using available context", intent),
			"action":      "summarize_intent",
			"observation": fmt.Sprintf("Remaining backlog count: %s", backlog),
		}
		raw, err := json.Marshal(payload)
		return string(raw), err
	case strings.Contains(prompt, "# Phase: FINAL"):
		intent := extractValue(prompt, "Intent:")
		if intent == "" {
			intent = "intent"
		}
		persona := extractValue(prompt, "Persona:")
		if persona == "" {
			persona = "Agent"
		}
		payload := map[string]string{
			"final_answer": fmt.Sprintf("%s completed the plan for '%s'", persona, intent),
		}
		raw, err := json.Marshal(payload)
		return string(raw), err
	default:
		return "", fmt.Errorf("stub LLM only supports THINK and FINAL phases")
	}
}

func (StubClient) Identity() Identity {
	return Identity{Provider: "local_stub", Model: "local_stub"}
}

// extractValue finds the first prompt line starting with prefix and returns
// the trimmed remainder.
func extractValue(prompt, prefix string) string {
	for _, line := range strings.Split(prompt, "\n") {
		if rest, ok := strings.CutPrefix(strings.TrimSpace(line), prefix); ok {
			return strings.TrimSpace(rest)
		}
	}
	return ""
}
