package store

import (
	"encoding/json"
	"fmt"
	"os"
	"testing"

	"telos/internal/types"
)

func TestUpdateSPIndexIncrementsExactMatches(t *testing.T) {
	s := newTestStore(t)
	intent := sampleIntent()
	outcome := sampleOutcome()

	if err := s.UpdateSPIndex(intent, outcome); err != nil {
		t.Fatalf("UpdateSPIndex() first call error = %v", err)
	}
	if err := s.UpdateSPIndex(intent, outcome); err != nil {
		t.Fatalf("UpdateSPIndex() second call error = %v", err)
	}

	raw, err := os.ReadFile(s.spIndexPath())
	if err != nil {
		t.Fatalf("reading sp index: %v", err)
	}
	var persisted persistedSPIndex
	if err := json.Unmarshal(raw, &persisted); err != nil {
		t.Fatalf("parsing sp index: %v", err)
	}

	if len(persisted.TopUsed) != 1 {
		t.Fatalf("top_used has %d entries, want 1 (exact match merges)", len(persisted.TopUsed))
	}
	if persisted.TopUsed[0].Count != 2 {
		t.Errorf("top_used count = %d, want 2", persisted.TopUsed[0].Count)
	}
	if want := "Write summary ⇒ Done"; persisted.TopUsed[0].Summary != want {
		t.Errorf("top_used summary = %q, want %q", persisted.TopUsed[0].Summary, want)
	}
	if len(persisted.MostRecent) != 1 {
		t.Fatalf("most_recent has %d entries, want 1", len(persisted.MostRecent))
	}
}

func TestUpdateSPIndexNearDuplicatesNeverMerge(t *testing.T) {
	s := newTestStore(t)
	intent := sampleIntent()

	if err := s.UpdateSPIndex(intent, types.Outcome{FinalAnswer: "Done"}); err != nil {
		t.Fatalf("UpdateSPIndex() error = %v", err)
	}
	if err := s.UpdateSPIndex(intent, types.Outcome{FinalAnswer: "Done."}); err != nil {
		t.Fatalf("UpdateSPIndex() error = %v", err)
	}

	index, err := s.LoadSPIndex()
	if err != nil {
		t.Fatalf("LoadSPIndex() error = %v", err)
	}
	if len(index.TopUsed) != 2 {
		t.Fatalf("top_used = %v, want two separate entries for near-duplicate answers", index.TopUsed)
	}
}

func TestSPIndexCapsAtTen(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < 14; i++ {
		intent := sampleIntent()
		intent.Summary = fmt.Sprintf("task %02d", i)
		if err := s.UpdateSPIndex(intent, sampleOutcome()); err != nil {
			t.Fatalf("UpdateSPIndex() error = %v", err)
		}
	}

	index, err := s.LoadSPIndex()
	if err != nil {
		t.Fatalf("LoadSPIndex() error = %v", err)
	}
	if len(index.TopUsed) != 10 {
		t.Errorf("top_used length = %d, want 10", len(index.TopUsed))
	}
	if len(index.MostRecent) != 10 {
		t.Errorf("most_recent length = %d, want 10", len(index.MostRecent))
	}
	// most_recent is recency-ordered: newest first.
	if want := "task 13 ⇒ Done"; index.MostRecent[0] != want {
		t.Errorf("most_recent[0] = %q, want %q", index.MostRecent[0], want)
	}
}

func TestLoadSPIndexRendersCounts(t *testing.T) {
	s := newTestStore(t)
	intent := sampleIntent()

	for i := 0; i < 3; i++ {
		if err := s.UpdateSPIndex(intent, sampleOutcome()); err != nil {
			t.Fatalf("UpdateSPIndex() error = %v", err)
		}
	}

	index, err := s.LoadSPIndex()
	if err != nil {
		t.Fatalf("LoadSPIndex() error = %v", err)
	}
	if want := "Write summary ⇒ Done (3)"; len(index.TopUsed) != 1 || index.TopUsed[0] != want {
		t.Fatalf("top_used = %v, want [%q]", index.TopUsed, want)
	}
}

func TestLoadSPIndexMissingFileErrors(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.LoadSPIndex(); !os.IsNotExist(err) {
		t.Fatalf("LoadSPIndex() error = %v, want not-exist", err)
	}
}
