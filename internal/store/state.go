package store

// IntentState is the lifecycle position of an intent record. The state is
// physically represented by which directory the record file lives in; the
// rename is an implementation detail of the transition functions on Store.
type IntentState int

const (
	StateInbox IntentState = iota
	StateDeferred
	StateQueued
	StateFailed
	StateArchived
)

// Dir returns the data-relative directory that backs this state.
func (s IntentState) Dir() string {
	switch s {
	case StateInbox:
		return "intent/inbox"
	case StateDeferred:
		return "intent/inbox/deferred"
	case StateQueued:
		return "intent/queue"
	case StateFailed:
		return "intent/queue/failed"
	case StateArchived:
		return "intent/history"
	default:
		return "intent/inbox"
	}
}

func (s IntentState) String() string {
	switch s {
	case StateInbox:
		return "inbox"
	case StateDeferred:
		return "deferred"
	case StateQueued:
		return "queued"
	case StateFailed:
		return "failed"
	case StateArchived:
		return "archived"
	default:
		return "unknown"
	}
}
