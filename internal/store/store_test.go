package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"telos/internal/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return s
}

func TestOpenCreatesLayout(t *testing.T) {
	s := newTestStore(t)
	for _, dir := range requiredDirs {
		if _, err := os.Stat(filepath.Join(s.DataDir(), dir)); err != nil {
			t.Fatalf("layout dir %s missing: %v", dir, err)
		}
	}
}

func TestPersistIntentWritesFrontMatter(t *testing.T) {
	s := newTestStore(t)

	record, err := s.PersistIntent("cli", "Launch sequence", 0.7, "## body\ncontent")
	if err != nil {
		t.Fatalf("PersistIntent() error = %v", err)
	}

	if !strings.HasPrefix(record.Path, filepath.Join(s.DataDir(), "intent/inbox")) {
		t.Fatalf("record path = %s, want under intent/inbox", record.Path)
	}
	raw, err := os.ReadFile(record.Path)
	if err != nil {
		t.Fatalf("reading record: %v", err)
	}
	content := string(raw)
	if !strings.Contains(content, "summary: Launch sequence") {
		t.Errorf("record missing summary front matter:\n%s", content)
	}
	if !strings.Contains(content, "## body") {
		t.Errorf("record missing body:\n%s", content)
	}
	if !strings.HasPrefix(content, "---\n") {
		t.Errorf("record does not start with front matter fence:\n%s", content)
	}
}

func TestScanInboxRoundTrip(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.PersistIntent("cli", "Roundtrip check", 0.7, "body"); err != nil {
		t.Fatalf("PersistIntent() error = %v", err)
	}

	records, issues, err := s.ScanInbox()
	if err != nil {
		t.Fatalf("ScanInbox() error = %v", err)
	}
	if len(issues) != 0 {
		t.Fatalf("ScanInbox() issues = %v, want none", issues)
	}
	if len(records) != 1 {
		t.Fatalf("ScanInbox() returned %d records, want 1", len(records))
	}

	intent := records[0].Intent
	if intent.Source != "cli" || intent.Summary != "Roundtrip check" {
		t.Errorf("parsed intent = %+v", intent)
	}
	if intent.TelosAlignment != 0.7 {
		t.Errorf("alignment = %v, want 0.7", intent.TelosAlignment)
	}
	if intent.ID == uuid.Nil {
		t.Error("intent id is nil")
	}
	if intent.StoragePath != records[0].Path {
		t.Errorf("storage path = %s, want %s", intent.StoragePath, records[0].Path)
	}
}

func TestScanInboxGeneratesDefaults(t *testing.T) {
	s := newTestStore(t)

	path := filepath.Join(s.DataDir(), "intent/inbox", "bare-note.md")
	if err := os.WriteFile(path, []byte("just a body with no header\n"), 0o644); err != nil {
		t.Fatalf("writing bare record: %v", err)
	}

	records, issues, err := s.ScanInbox()
	if err != nil {
		t.Fatalf("ScanInbox() error = %v", err)
	}
	if len(issues) != 0 || len(records) != 1 {
		t.Fatalf("records = %d, issues = %v; want 1, none", len(records), issues)
	}

	intent := records[0].Intent
	if intent.ID == uuid.Nil {
		t.Error("default id not generated")
	}
	if intent.Source != "unknown" {
		t.Errorf("default source = %q, want unknown", intent.Source)
	}
	if intent.Summary != "bare-note" {
		t.Errorf("default summary = %q, want file stem", intent.Summary)
	}
	if intent.TelosAlignment != 0 {
		t.Errorf("default alignment = %v, want 0", intent.TelosAlignment)
	}
	if intent.CreatedAt.IsZero() {
		t.Error("default created_at not generated")
	}
}

func TestScanInboxReportsMalformedPerFile(t *testing.T) {
	s := newTestStore(t)

	good, err := s.PersistIntent("cli", "good one", 0.6, "")
	if err != nil {
		t.Fatalf("PersistIntent() error = %v", err)
	}
	bad := filepath.Join(s.DataDir(), "intent/inbox", "broken.md")
	if err := os.WriteFile(bad, []byte("---\nsummary: [unclosed\n---\n"), 0o644); err != nil {
		t.Fatalf("writing malformed record: %v", err)
	}

	records, issues, err := s.ScanInbox()
	if err != nil {
		t.Fatalf("ScanInbox() error = %v", err)
	}
	if len(records) != 1 || records[0].Path != good.Path {
		t.Fatalf("records = %+v, want only the well-formed one", records)
	}
	if len(issues) != 1 || issues[0].Path != bad {
		t.Fatalf("issues = %+v, want the malformed file reported", issues)
	}
}

func TestScanSortsByCreationTime(t *testing.T) {
	s := newTestStore(t)
	inbox := filepath.Join(s.DataDir(), "intent/inbox")

	write := func(name, created, summary string) {
		content := "---\nsummary: " + summary + "\ncreated_at: " + created + "\n---\n"
		if err := os.WriteFile(filepath.Join(inbox, name), []byte(content), 0o644); err != nil {
			t.Fatalf("writing %s: %v", name, err)
		}
	}
	write("z-last-alphabetically.md", "2025-01-01T08:00:00Z", "older")
	write("a-first-alphabetically.md", "2025-01-02T08:00:00Z", "newer")

	records, _, err := s.ScanInbox()
	if err != nil {
		t.Fatalf("ScanInbox() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].Intent.Summary != "older" || records[1].Intent.Summary != "newer" {
		t.Fatalf("scan order = [%s, %s], want creation-time ascending",
			records[0].Intent.Summary, records[1].Intent.Summary)
	}
}

func TestTransitionsPreserveFileName(t *testing.T) {
	s := newTestStore(t)

	record, err := s.PersistIntent("cli", "mover", 0.9, "")
	if err != nil {
		t.Fatalf("PersistIntent() error = %v", err)
	}
	name := filepath.Base(record.Path)

	queued, err := s.Promote(record.Path)
	if err != nil {
		t.Fatalf("Promote() error = %v", err)
	}
	if filepath.Base(queued) != name {
		t.Errorf("Promote() renamed file to %s", filepath.Base(queued))
	}
	if !strings.Contains(queued, filepath.Join("intent", "queue")) {
		t.Errorf("Promote() destination = %s", queued)
	}
	if _, err := os.Stat(record.Path); !os.IsNotExist(err) {
		t.Error("source file still exists after promote")
	}

	failed, err := s.Quarantine(queued)
	if err != nil {
		t.Fatalf("Quarantine() error = %v", err)
	}
	if !strings.Contains(failed, filepath.Join("queue", "failed")) {
		t.Errorf("Quarantine() destination = %s", failed)
	}
}

func TestDeferMovesBelowThresholdRecord(t *testing.T) {
	s := newTestStore(t)

	record, err := s.PersistIntent("cli", "low priority", 0.1, "")
	if err != nil {
		t.Fatalf("PersistIntent() error = %v", err)
	}
	deferred, err := s.Defer(record.Path)
	if err != nil {
		t.Fatalf("Defer() error = %v", err)
	}
	if !strings.Contains(deferred, filepath.Join("inbox", "deferred")) {
		t.Errorf("Defer() destination = %s", deferred)
	}
}

func TestArchiveIsIdempotent(t *testing.T) {
	s := newTestStore(t)

	record, err := s.PersistIntent("cli", "archived twice", 0.9, "")
	if err != nil {
		t.Fatalf("PersistIntent() error = %v", err)
	}
	queued, err := s.Promote(record.Path)
	if err != nil {
		t.Fatalf("Promote() error = %v", err)
	}

	intent := types.Intent{
		ID:          record.ID,
		Summary:     "archived twice",
		CreatedAt:   time.Now().UTC(),
		StoragePath: queued,
	}

	archived, err := s.Archive(intent)
	if err != nil {
		t.Fatalf("Archive() first call error = %v", err)
	}
	// Second call finds the file already gone, must still succeed, and must
	// report the same history path.
	again, err := s.Archive(intent)
	if err != nil {
		t.Fatalf("Archive() second call error = %v", err)
	}
	if again != archived {
		t.Errorf("Archive() second call path = %s, want %s", again, archived)
	}
	// No storage path at all is also fine.
	if _, err := s.Archive(types.Intent{ID: uuid.New()}); err != nil {
		t.Fatalf("Archive() without path error = %v", err)
	}

	history := filepath.Join(s.DataDir(), "intent/history", filepath.Base(queued))
	if _, err := os.Stat(history); err != nil {
		t.Fatalf("archived file missing from history: %v", err)
	}
}
