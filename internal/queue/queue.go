// Package queue holds the in-memory backlog of intents awaiting processing.
//
// The queue is the single source of truth for "what still needs processing
// this cycle". It is not persisted; the orchestrator rebuilds it at startup
// by re-scanning the store's queue directory.
package queue

import "telos/internal/types"

// IntentQueue is a FIFO of pending intents. It performs no locking of its
// own: callers must hold the owning AppContext lock (see internal/state).
type IntentQueue struct {
	items []types.Intent
}

// Push appends an intent to the back of the queue.
func (q *IntentQueue) Push(intent types.Intent) {
	q.items = append(q.items, intent)
}

// PushFront inserts an intent at the front of the queue. Used exclusively to
// give a failed-but-retriable intent priority over freshly ingested ones in
// the next drain pass.
func (q *IntentQueue) PushFront(intent types.Intent) {
	q.items = append([]types.Intent{intent}, q.items...)
}

// PopNext removes and returns the front intent. The second return value is
// false when the queue is empty.
func (q *IntentQueue) PopNext() (types.Intent, bool) {
	if len(q.items) == 0 {
		return types.Intent{}, false
	}
	next := q.items[0]
	q.items = q.items[1:]
	return next, true
}

// Len reports the number of queued intents.
func (q *IntentQueue) Len() int {
	return len(q.items)
}
