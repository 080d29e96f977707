// Package store manages the durable on-disk record layout: intent records as
// files in state directories, per-day journal and reasoning-trace logs, the
// sp usage index, and the two-tier memory rollup.
//
// The store performs no retries and no logging of its own. Any I/O error is
// returned to the caller uninterpreted; retry policy lives in the
// orchestrator.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"telos/internal/types"
)

// requiredDirs is the durable layout skeleton created by EnsureLayout.
var requiredDirs = []string{
	"intent/inbox",
	"intent/inbox/deferred",
	"intent/queue",
	"intent/queue/failed",
	"intent/history",
	"journals",
	"sp",
	"logs/llm",
	"memory/l1",
	"memory/l2",
}

// Store is a handle on one data directory.
type Store struct {
	dataDir string
}

// Open returns a Store rooted at dataDir and ensures the layout skeleton
// exists.
func Open(dataDir string) (*Store, error) {
	s := &Store{dataDir: dataDir}
	if err := s.EnsureLayout(); err != nil {
		return nil, err
	}
	return s, nil
}

// DataDir returns the store's root directory.
func (s *Store) DataDir() string {
	return s.dataDir
}

// EnsureLayout creates every state and log directory the store depends on.
func (s *Store) EnsureLayout() error {
	for _, dir := range requiredDirs {
		path := filepath.Join(s.dataDir, dir)
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("creating dir %s: %w", path, err)
		}
	}
	return nil
}

// IntentRecord pairs a parsed intent with its current on-disk path.
type IntentRecord struct {
	Path   string
	Intent types.Intent
}

// ScanIssue reports a record file that could not be parsed. Issues are
// per-file: one malformed header never fails the scan for other records.
type ScanIssue struct {
	Path string
	Err  error
}

// PersistedIntent identifies a freshly written intake record.
type PersistedIntent struct {
	ID   uuid.UUID
	Path string
}

// ScanInbox lists intake records sorted by creation time ascending.
func (s *Store) ScanInbox() ([]IntentRecord, []ScanIssue, error) {
	return s.scanIntentDir(filepath.Join(s.dataDir, StateInbox.Dir()))
}

// ScanQueue lists queued records sorted by creation time ascending. Used at
// startup to rebuild the in-memory queue after a restart.
func (s *Store) ScanQueue() ([]IntentRecord, []ScanIssue, error) {
	return s.scanIntentDir(filepath.Join(s.dataDir, StateQueued.Dir()))
}

func (s *Store) scanIntentDir(dir string) ([]IntentRecord, []ScanIssue, error) {
	var records []IntentRecord
	var issues []ScanIssue

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return records, issues, nil
		}
		return nil, nil, fmt.Errorf("reading intent dir %s: %w", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			issues = append(issues, ScanIssue{Path: path, Err: err})
			continue
		}

		fm, err := parseFrontMatter(string(raw))
		if err != nil {
			issues = append(issues, ScanIssue{Path: path, Err: err})
			continue
		}

		intent := fm.toIntent(entry.Name())
		intent.StoragePath = path
		records = append(records, IntentRecord{Path: path, Intent: intent})
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Intent.CreatedAt.Before(records[j].Intent.CreatedAt)
	})
	return records, issues, nil
}

// frontMatter is the structured header block at the top of a record file.
// Every field is optional; defaults are generated at scan time.
type frontMatter struct {
	ID             string    `yaml:"id,omitempty"`
	Source         string    `yaml:"source,omitempty"`
	Summary        string    `yaml:"summary,omitempty"`
	TelosAlignment float64   `yaml:"telos_alignment"`
	CreatedAt      time.Time `yaml:"created_at,omitempty"`
}

func (fm frontMatter) toIntent(fileName string) types.Intent {
	intent := types.Intent{
		Source:         fm.Source,
		Summary:        fm.Summary,
		TelosAlignment: fm.TelosAlignment,
		CreatedAt:      fm.CreatedAt,
	}

	if id, err := uuid.Parse(fm.ID); err == nil {
		intent.ID = id
	} else {
		intent.ID = uuid.New()
	}
	if intent.Source == "" {
		intent.Source = "unknown"
	}
	if intent.Summary == "" {
		intent.Summary = strings.TrimSuffix(fileName, filepath.Ext(fileName))
	}
	if intent.CreatedAt.IsZero() {
		intent.CreatedAt = time.Now().UTC()
	}
	return intent
}

// parseFrontMatter extracts the yaml header from record content. A leading
// "---" fence delimits the block and must parse; malformed fenced headers
// are an error. Without a fence the first paragraph is tried as a header,
// and plain text that is no yaml mapping simply means no header: the record
// scans with generated defaults.
func parseFrontMatter(content string) (frontMatter, error) {
	var fm frontMatter

	trimmed := strings.TrimLeft(content, " \t\r\n")
	if rest, ok := strings.CutPrefix(trimmed, "---"); ok {
		rest = strings.TrimLeft(rest, "\r\n")
		block := rest
		if end := strings.Index(rest, "\n---"); end >= 0 {
			block = rest[:end]
		}
		if strings.TrimSpace(block) == "" {
			return fm, nil
		}
		if err := yaml.Unmarshal([]byte(block), &fm); err != nil {
			return fm, fmt.Errorf("parsing intent front matter: %w", err)
		}
		return fm, nil
	}

	block, _, _ := strings.Cut(trimmed, "\n\n")
	if strings.TrimSpace(block) == "" {
		return fm, nil
	}
	if err := yaml.Unmarshal([]byte(block), &fm); err != nil {
		return frontMatter{}, nil
	}
	return fm, nil
}

// PersistIntent writes a new intake record: yaml front matter followed by
// the free-text body.
func (s *Store) PersistIntent(source, summary string, telosAlignment float64, body string) (PersistedIntent, error) {
	inboxDir := filepath.Join(s.dataDir, StateInbox.Dir())
	if err := os.MkdirAll(inboxDir, 0o755); err != nil {
		return PersistedIntent{}, fmt.Errorf("ensuring inbox dir: %w", err)
	}

	createdAt := time.Now().UTC()
	id := uuid.New()
	intent := types.Intent{
		ID:             id,
		Source:         source,
		Summary:        summary,
		TelosAlignment: telosAlignment,
		CreatedAt:      createdAt,
	}
	path := filepath.Join(inboxDir, intent.FileName())

	fm := frontMatter{
		ID:             id.String(),
		Source:         source,
		Summary:        summary,
		TelosAlignment: telosAlignment,
		CreatedAt:      createdAt,
	}
	header, err := yaml.Marshal(fm)
	if err != nil {
		return PersistedIntent{}, fmt.Errorf("encoding intent front matter: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("---\n")
	sb.Write(header)
	sb.WriteString("---\n\n")
	if body != "" {
		sb.WriteString(body)
		if !strings.HasSuffix(body, "\n") {
			sb.WriteString("\n")
		}
	}

	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		return PersistedIntent{}, fmt.Errorf("writing intent record: %w", err)
	}
	return PersistedIntent{ID: id, Path: path}, nil
}

// Promote relocates an intake record into the queue state. The file name is
// preserved across every transition.
func (s *Store) Promote(path string) (string, error) {
	return s.relocate(path, StateQueued)
}

// Defer relocates a below-threshold intake record into the deferred state.
// Deferred records are left for manual reconsideration and are not
// re-scanned automatically.
func (s *Store) Defer(path string) (string, error) {
	return s.relocate(path, StateDeferred)
}

// Quarantine relocates a repeatedly failing queued record into the failed
// state. The file is preserved for manual inspection, never deleted.
func (s *Store) Quarantine(path string) (string, error) {
	return s.relocate(path, StateFailed)
}

// Archive relocates a processed record into history and returns its history
// path. It is a no-op when the intent has no storage path, and still returns
// the history path when the file is already gone, so retries may safely
// re-invoke it.
func (s *Store) Archive(intent types.Intent) (string, error) {
	if intent.StoragePath == "" {
		return "", nil
	}
	destination := filepath.Join(s.dataDir, StateArchived.Dir(), filepath.Base(intent.StoragePath))
	if _, err := os.Stat(intent.StoragePath); os.IsNotExist(err) {
		return destination, nil
	}
	return s.relocate(intent.StoragePath, StateArchived)
}

func (s *Store) relocate(path string, target IntentState) (string, error) {
	targetDir := filepath.Join(s.dataDir, target.Dir())
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return "", fmt.Errorf("ensuring %s dir: %w", target, err)
	}

	name := filepath.Base(path)
	if name == "." || name == string(filepath.Separator) {
		return "", fmt.Errorf("intent path missing file name: %s", path)
	}
	destination := filepath.Join(targetDir, name)
	if err := os.Rename(path, destination); err != nil {
		return "", fmt.Errorf("moving intent to %s: %w", target, err)
	}
	return destination, nil
}
