package queue

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"telos/internal/types"
)

func sampleIntent(summary string) types.Intent {
	return types.Intent{
		ID:             uuid.New(),
		Source:         "unit-test",
		Summary:        summary,
		TelosAlignment: 0.8,
		CreatedAt:      time.Now().UTC(),
	}
}

func TestPopNextEmptyQueue(t *testing.T) {
	var q IntentQueue
	if _, ok := q.PopNext(); ok {
		t.Fatal("PopNext() on empty queue returned ok = true")
	}
}

func TestFIFOOrder(t *testing.T) {
	var q IntentQueue
	q.Push(sampleIntent("first"))
	q.Push(sampleIntent("second"))
	q.Push(sampleIntent("third"))

	if got := q.Len(); got != 3 {
		t.Fatalf("Len() = %d, want 3", got)
	}

	for _, want := range []string{"first", "second", "third"} {
		next, ok := q.PopNext()
		if !ok {
			t.Fatalf("PopNext() returned ok = false, want intent %q", want)
		}
		if next.Summary != want {
			t.Fatalf("PopNext() summary = %q, want %q", next.Summary, want)
		}
	}
}

func TestPushFrontTakesPriority(t *testing.T) {
	var q IntentQueue
	q.Push(sampleIntent("queued"))
	q.PushFront(sampleIntent("retried"))
	q.Push(sampleIntent("fresh"))

	next, ok := q.PopNext()
	if !ok || next.Summary != "retried" {
		t.Fatalf("PopNext() = %q, %v; want retried intent first", next.Summary, ok)
	}
	next, _ = q.PopNext()
	if next.Summary != "queued" {
		t.Fatalf("PopNext() = %q, want previously queued intent second", next.Summary)
	}
}
