package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"telos/internal/agent"
	"telos/internal/config"
	"telos/internal/orchestrator"
	"telos/internal/state"
	"telos/internal/store"
	"telos/internal/types"
)

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	st, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	cfg := &config.Config{
		Beat:   config.BeatConfig{IntervalMinutes: 60, IntentThreshold: 0.5},
		Agent:  config.AgentConfig{MaxReactSteps: 1, Persona: "TelosOps"},
		Server: config.ServerConfig{BindAddr: "127.0.0.1:0"},
	}
	app := state.New(cfg, st, agent.NewRuntime(cfg.Agent, agent.StubClient{}))
	orch := orchestrator.New(app, zap.NewNop())
	return New(app, orch, zap.NewNop()), st
}

func doRequest(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if payload["status"] != "ok" {
		t.Errorf("status field = %v", payload["status"])
	}
	if payload["phase"] != "idle" {
		t.Errorf("phase field = %v", payload["phase"])
	}
}

func TestSubmitIntentPersistsAndSchedules(t *testing.T) {
	s, st := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/api/intents",
		`{"summary":"Write the report","telos_alignment":0.9,"body":"More detail."}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp submitIntentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if resp.ID == "" || resp.Path == "" {
		t.Errorf("response missing id or path: %+v", resp)
	}
	if !resp.BeatScheduled {
		t.Error("beat_scheduled = false, want true")
	}

	raw, err := os.ReadFile(resp.Path)
	if err != nil {
		t.Fatalf("reading persisted record: %v", err)
	}
	if !strings.Contains(string(raw), "Write the report") {
		t.Errorf("record missing summary:\n%s", raw)
	}
	if !strings.Contains(string(raw), "source: user") {
		t.Errorf("record missing default source:\n%s", raw)
	}
	if filepath.Dir(resp.Path) != filepath.Join(st.DataDir(), "intent", "inbox") {
		t.Errorf("record not in inbox: %s", resp.Path)
	}
}

func TestSubmitIntentValidation(t *testing.T) {
	s, _ := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"empty summary", `{"summary":""}`},
		{"malformed json", `{`},
		{"alignment out of range", `{"summary":"x","telos_alignment":1.5}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, s, http.MethodPost, "/api/intents", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestSPIndexEmptyBeforeFirstOutcome(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/api/sp", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var index store.SPIndex
	if err := json.Unmarshal(rec.Body.Bytes(), &index); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if len(index.TopUsed) != 0 || len(index.MostRecent) != 0 {
		t.Errorf("index = %+v, want empty", index)
	}
}

func TestMemoryEndpoint(t *testing.T) {
	s, st := newTestServer(t)

	intent := types.Intent{ID: uuid.New(), Source: "user", Summary: "Remember this"}
	outcome := types.Outcome{FinalAnswer: "Remembered"}
	if _, err := st.IngestMemorySnapshot(intent, outcome, "", ""); err != nil {
		t.Fatalf("IngestMemorySnapshot() error = %v", err)
	}

	rec := doRequest(t, s, http.MethodGet, "/api/memory?level=L1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var payload struct {
		Entries []store.MemoryEntry `json:"entries"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if len(payload.Entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(payload.Entries))
	}
	if !strings.Contains(payload.Entries[0].Summary, "Remember this") {
		t.Errorf("entry summary = %q", payload.Entries[0].Summary)
	}

	rec = doRequest(t, s, http.MethodGet, "/api/memory?level=L9", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad level status = %d, want 400", rec.Code)
	}
}

func TestMarkdownTreeAndFile(t *testing.T) {
	s, st := newTestServer(t)

	if _, err := st.PersistIntent("user", "A record", 0.9, "Body text."); err != nil {
		t.Fatalf("PersistIntent() error = %v", err)
	}

	rec := doRequest(t, s, http.MethodGet, "/api/md/tree", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("tree status = %d", rec.Code)
	}
	var tree struct {
		Files []string `json:"files"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &tree); err != nil {
		t.Fatalf("decoding tree: %v", err)
	}
	if len(tree.Files) != 1 {
		t.Fatalf("files = %v, want one record", tree.Files)
	}

	rec = doRequest(t, s, http.MethodGet, "/api/md/file?path="+tree.Files[0], "")
	if rec.Code != http.StatusOK {
		t.Fatalf("file status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var file struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &file); err != nil {
		t.Fatalf("decoding file: %v", err)
	}
	if !strings.Contains(file.Content, "Body text.") {
		t.Errorf("content = %q", file.Content)
	}

	rec = doRequest(t, s, http.MethodGet, "/api/md/file?path=../../etc/passwd", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("traversal status = %d, want 400", rec.Code)
	}
	rec = doRequest(t, s, http.MethodGet, "/api/md/file?path=journals/2099/01/01.md", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing file status = %d, want 404", rec.Code)
	}
}

func TestDashboardServesHTML(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "Submit intent") {
		t.Error("dashboard missing submit section")
	}
}
