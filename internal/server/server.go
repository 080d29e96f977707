// Package server exposes the HTTP surface: intent submission, read-only
// views over the durable layout, and the dashboard.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"telos/internal/orchestrator"
	"telos/internal/state"
	"telos/internal/store"
	"telos/internal/types"
)

// Server serves the API over the shared application context. Submissions
// persist through the store and nudge the orchestrator; everything else is
// a read-only view.
type Server struct {
	app  *state.AppContext
	orch *orchestrator.Orchestrator
	log  *zap.Logger
	http *http.Server
}

// New builds the server with its routes bound to cfg.Server.BindAddr.
func New(app *state.AppContext, orch *orchestrator.Orchestrator, log *zap.Logger) *Server {
	s := &Server{app: app, orch: orch, log: log}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("POST /api/intents", s.handleSubmitIntent)
	mux.HandleFunc("GET /api/sp", s.handleSPIndex)
	mux.HandleFunc("GET /api/memory", s.handleMemory)
	mux.HandleFunc("GET /api/logs/llm", s.handleLLMLogs)
	mux.HandleFunc("GET /api/md/tree", s.handleMarkdownTree)
	mux.HandleFunc("GET /api/md/file", s.handleMarkdownFile)
	mux.HandleFunc("GET /{$}", s.handleDashboard)

	s.http = &http.Server{
		Addr:              app.Config().Server.BindAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", zap.String("addr", s.http.Addr))
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			return err
		}
		err := <-errCh
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case err := <-errCh:
		return err
	}
}

// Handler exposes the route table for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"phase":   s.orch.Phase().String(),
		"backlog": s.app.BacklogSize(),
	})
}

type submitIntentRequest struct {
	Summary        string   `json:"summary"`
	Source         string   `json:"source"`
	TelosAlignment *float64 `json:"telos_alignment"`
	Body           string   `json:"body"`
}

type submitIntentResponse struct {
	ID            string `json:"id"`
	Path          string `json:"path"`
	BeatScheduled bool   `json:"beat_scheduled"`
}

func (s *Server) handleSubmitIntent(w http.ResponseWriter, r *http.Request) {
	var req submitIntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Summary == "" {
		writeError(w, http.StatusBadRequest, "summary is required")
		return
	}
	if req.Source == "" {
		req.Source = "user"
	}
	alignment := 0.5
	if req.TelosAlignment != nil {
		alignment = *req.TelosAlignment
	}
	if alignment < 0 || alignment > 1 {
		writeError(w, http.StatusBadRequest, "telos_alignment must be between 0 and 1")
		return
	}

	persisted, err := s.app.Store().PersistIntent(req.Source, req.Summary, alignment, req.Body)
	if err != nil {
		s.log.Error("persisting submitted intent", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to persist intent")
		return
	}

	scheduled := s.orch.RequestBeat()
	s.log.Info("intent submitted",
		zap.String("intent_id", persisted.ID.String()),
		zap.String("source", req.Source),
		zap.Bool("beat_scheduled", scheduled))

	writeJSON(w, http.StatusAccepted, submitIntentResponse{
		ID:            persisted.ID.String(),
		Path:          persisted.Path,
		BeatScheduled: scheduled,
	})
}

func (s *Server) handleSPIndex(w http.ResponseWriter, _ *http.Request) {
	index, err := s.app.Store().LoadSPIndex()
	if err != nil {
		if os.IsNotExist(err) {
			writeJSON(w, http.StatusOK, store.SPIndex{})
			return
		}
		s.log.Error("loading sp index", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load sp index")
		return
	}
	writeJSON(w, http.StatusOK, index)
}

func (s *Server) handleMemory(w http.ResponseWriter, r *http.Request) {
	query := store.MemoryQuery{
		Level: store.MemoryLevel(r.URL.Query().Get("level")),
		Tag:   r.URL.Query().Get("tag"),
	}
	if query.Level == "" {
		query.Level = store.MemoryL1
	}
	if query.Level != store.MemoryL1 && query.Level != store.MemoryL2 {
		writeError(w, http.StatusBadRequest, "level must be L1 or L2")
		return
	}
	if limit, ok := parseIntParam(r, "limit"); ok {
		query.Limit = limit
	}
	if since, ok, err := parseTimeParam(r, "since"); err != nil {
		writeError(w, http.StatusBadRequest, "since must be RFC 3339")
		return
	} else if ok {
		query.Since = since
	}

	entries, err := s.app.Store().ReadMemoryEntries(query)
	if err != nil {
		s.log.Error("reading memory entries", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read memory")
		return
	}
	if entries == nil {
		entries = []store.MemoryEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleLLMLogs(w http.ResponseWriter, r *http.Request) {
	query := store.LLMLogQuery{
		Model: r.URL.Query().Get("model"),
		Phase: r.URL.Query().Get("phase"),
	}
	if raw := r.URL.Query().Get("run_id"); raw != "" {
		runID, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "run_id must be a uuid")
			return
		}
		query.RunID = runID
	}
	if limit, ok := parseIntParam(r, "limit"); ok {
		query.Limit = limit
	}
	if since, ok, err := parseTimeParam(r, "since"); err != nil {
		writeError(w, http.StatusBadRequest, "since must be RFC 3339")
		return
	} else if ok {
		query.Since = since
	}

	entries, err := s.app.Store().ReadLLMLogs(query)
	if err != nil {
		s.log.Error("reading llm logs", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read llm logs")
		return
	}
	if entries == nil {
		entries = []types.LLMLogEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleMarkdownTree(w http.ResponseWriter, _ *http.Request) {
	files, err := s.app.Store().ListMarkdownTree()
	if err != nil {
		s.log.Error("listing markdown tree", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list files")
		return
	}
	if files == nil {
		files = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": files})
}

func (s *Server) handleMarkdownFile(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	content, err := s.app.Store().ReadMarkdownFile(path)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrPathEmpty),
			errors.Is(err, store.ErrPathNotRelative),
			errors.Is(err, store.ErrPathTraversal),
			errors.Is(err, store.ErrNotMarkdown):
			writeError(w, http.StatusBadRequest, err.Error())
		case os.IsNotExist(err):
			writeError(w, http.StatusNotFound, "file not found")
		default:
			s.log.Error("reading markdown file", zap.String("path", path), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to read file")
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"path": path, "content": content})
}

func parseIntParam(r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, false
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 1 {
		return 0, false
	}
	return value, true
}

func parseTimeParam(r *http.Request, name string) (time.Time, bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, false, nil
	}
	value, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false, err
	}
	return value, true, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
