package types

import (
	"time"

	"github.com/google/uuid"
)

// TraceStep is one THINK step of a reasoning run.
type TraceStep struct {
	Thought     string `json:"thought"`
	Action      string `json:"action"`
	Observation string `json:"observation"`
}

// Outcome is the result of one reasoning run over a single intent.
// Immutable once produced; the orchestrator owns it for the duration of a
// processing attempt and then hands it to the store for persistence.
type Outcome struct {
	Steps       []TraceStep
	FinalAnswer string
}

// LLMLogEntry records a single reasoning call (one prompt/response pair) for
// audit. Both THINK and FINAL phases are recorded separately.
type LLMLogEntry struct {
	RunID     uuid.UUID `json:"run_id"`
	Timestamp time.Time `json:"timestamp"`
	Phase     string    `json:"phase"`
	Prompt    string    `json:"prompt"`
	Response  string    `json:"response"`
	Provider  string    `json:"provider"`
	Model     string    `json:"model,omitempty"`
}
