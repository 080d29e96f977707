package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"telos/internal/agent"
)

func TestInboxWatcherRequestsBeatOnDrop(t *testing.T) {
	app, st := newTestApp(t, agent.StubClient{})
	orch := New(app, zap.NewNop())

	watcher, err := NewInboxWatcher(orch, st.DataDir(), zap.NewNop())
	if err != nil {
		t.Fatalf("NewInboxWatcher() error = %v", err)
	}
	watcher.debounceDur = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- watcher.Run(ctx) }()

	// Give the watch a moment to attach before dropping the file.
	time.Sleep(50 * time.Millisecond)

	record := filepath.Join(st.DataDir(), "intent/inbox", "20250101T000000-drop.md")
	if err := os.WriteFile(record, []byte("Ship the drop test"), 0o644); err != nil {
		t.Fatalf("writing record: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for len(orch.beats) == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for beat request")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}

func TestInboxWatcherIgnoresNonRecordFiles(t *testing.T) {
	app, st := newTestApp(t, agent.StubClient{})
	orch := New(app, zap.NewNop())

	watcher, err := NewInboxWatcher(orch, st.DataDir(), zap.NewNop())
	if err != nil {
		t.Fatalf("NewInboxWatcher() error = %v", err)
	}
	watcher.debounceDur = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- watcher.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)

	inbox := filepath.Join(st.DataDir(), "intent/inbox")
	if err := os.WriteFile(filepath.Join(inbox, ".editor-swap"), []byte("x"), 0o644); err != nil {
		t.Fatalf("writing swap file: %v", err)
	}
	if err := os.WriteFile(filepath.Join(inbox, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("writing txt file: %v", err)
	}

	time.Sleep(200 * time.Millisecond)
	if len(orch.beats) != 0 {
		t.Error("beat requested for non-record files")
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}
