package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"telos/internal/agent"
	"telos/internal/config"
	"telos/internal/orchestrator"
	"telos/internal/state"
	"telos/internal/store"
)

type fakeTelegram struct {
	mu       sync.Mutex
	updates  []string
	served   bool
	messages []string
}

func (f *fakeTelegram) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/getUpdates"):
			f.mu.Lock()
			defer f.mu.Unlock()
			var result []map[string]any
			if !f.served {
				f.served = true
				for i, text := range f.updates {
					result = append(result, map[string]any{
						"update_id": i + 1,
						"message": map[string]any{
							"text": text,
							"chat": map[string]any{"id": 42},
							"from": map[string]any{"username": "tester"},
						},
					})
				}
			}
			json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": result})
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			var payload struct {
				Text string `json:"text"`
			}
			json.NewDecoder(r.Body).Decode(&payload)
			f.mu.Lock()
			f.messages = append(f.messages, payload.Text)
			f.mu.Unlock()
			fmt.Fprint(w, `{"ok":true}`)
		default:
			http.NotFound(w, r)
		}
	})
	return mux
}

func (f *fakeTelegram) sentMessages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.messages...)
}

func newTestBridge(t *testing.T, api *httptest.Server) (*TelegramBridge, *store.Store) {
	t.Helper()
	st, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	cfg := &config.Config{
		Beat:  config.BeatConfig{IntervalMinutes: 60, IntentThreshold: 0.5},
		Agent: config.AgentConfig{MaxReactSteps: 1, Persona: "TelosOps"},
	}
	tgCfg := config.TelegramConfig{
		BotToken:         "test-token",
		DefaultChatID:    42,
		APIBase:          api.URL,
		PollSeconds:      1,
		DefaultAlignment: 0.6,
	}
	app := state.New(cfg, st, agent.NewRuntime(cfg.Agent, agent.StubClient{}))
	orch := orchestrator.New(app, zap.NewNop())
	return NewTelegramBridge(app, orch, tgCfg, zap.NewNop()), st
}

func TestBridgePersistsMessageAsIntent(t *testing.T) {
	fake := &fakeTelegram{updates: []string{"Water the plants"}}
	api := httptest.NewServer(fake.handler())
	defer api.Close()

	bridge, st := newTestBridge(t, api)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- bridge.Run(ctx) }()

	inbox := filepath.Join(st.DataDir(), "intent", "inbox")
	deadline := time.After(5 * time.Second)
	for {
		entries, _ := os.ReadDir(inbox)
		var files int
		for _, e := range entries {
			if !e.IsDir() {
				files++
			}
		}
		if files > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for intent record")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	records, issues, err := st.ScanInbox()
	if err != nil {
		t.Fatalf("ScanInbox() error = %v", err)
	}
	if len(issues) != 0 {
		t.Fatalf("scan issues: %v", issues)
	}
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
	intent := records[0].Intent
	if intent.Source != "telegram" {
		t.Errorf("Source = %q, want telegram", intent.Source)
	}
	if intent.Summary != "Water the plants" {
		t.Errorf("Summary = %q", intent.Summary)
	}
	if intent.TelosAlignment != 0.6 {
		t.Errorf("TelosAlignment = %v, want 0.6", intent.TelosAlignment)
	}

	sent := fake.sentMessages()
	if len(sent) != 1 || !strings.Contains(sent[0], "Water the plants") {
		t.Errorf("sent messages = %v, want one confirmation", sent)
	}
}

func TestNotifyOutcomeSendsToDefaultChat(t *testing.T) {
	fake := &fakeTelegram{}
	api := httptest.NewServer(fake.handler())
	defer api.Close()

	bridge, _ := newTestBridge(t, api)
	if err := bridge.NotifyOutcome(context.Background(), "All done"); err != nil {
		t.Fatalf("NotifyOutcome() error = %v", err)
	}

	sent := fake.sentMessages()
	if len(sent) != 1 || sent[0] != "All done" {
		t.Errorf("sent messages = %v", sent)
	}
}

func TestNotifyOutcomeWithoutDefaultChatIsNoop(t *testing.T) {
	fake := &fakeTelegram{}
	api := httptest.NewServer(fake.handler())
	defer api.Close()

	bridge, _ := newTestBridge(t, api)
	bridge.cfg.DefaultChatID = 0

	if err := bridge.NotifyOutcome(context.Background(), "ignored"); err != nil {
		t.Fatalf("NotifyOutcome() error = %v", err)
	}
	if sent := fake.sentMessages(); len(sent) != 0 {
		t.Errorf("sent messages = %v, want none", sent)
	}
}
