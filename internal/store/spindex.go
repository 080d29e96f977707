package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"telos/internal/types"
)

const spIndexCap = 10

// spEntry is one persisted usage-index line.
type spEntry struct {
	Summary  string    `json:"summary"`
	Count    int       `json:"count"`
	LastSeen time.Time `json:"last_seen"`
}

// persistedSPIndex is the on-disk shape of sp/index.json. The document is
// fully rewritten on each update.
type persistedSPIndex struct {
	TopUsed    []spEntry `json:"top_used"`
	MostRecent []spEntry `json:"most_recent"`
}

// SPIndex is the rendered usage index served to dashboards.
type SPIndex struct {
	TopUsed    []string `json:"top_used"`
	MostRecent []string `json:"most_recent"`
}

func (s *Store) spIndexPath() string {
	return filepath.Join(s.dataDir, "sp", "index.json")
}

// UpdateSPIndex folds one completed intent into the usage index. Matching is
// an exact string comparison on the synthesized "summary ⇒ final answer"
// line: near-duplicate answers never merge.
func (s *Store) UpdateSPIndex(intent types.Intent, outcome types.Outcome) error {
	path := s.spIndexPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensuring sp dir: %w", err)
	}

	var index persistedSPIndex
	if raw, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(raw, &index); err != nil {
			return fmt.Errorf("parsing sp/index.json: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return err
	}

	now := time.Now().UTC()
	summary := fmt.Sprintf("%s ⇒ %s", intent.Summary, outcome.FinalAnswer)
	index.TopUsed = upsertTopUsed(index.TopUsed, summary, now)
	index.MostRecent = upsertMostRecent(index.MostRecent, summary, now)

	raw, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding sp index: %w", err)
	}
	return os.WriteFile(path, raw, 0o644)
}

// LoadSPIndex reads and renders sp/index.json.
func (s *Store) LoadSPIndex() (SPIndex, error) {
	raw, err := os.ReadFile(s.spIndexPath())
	if err != nil {
		return SPIndex{}, err
	}
	var persisted persistedSPIndex
	if err := json.Unmarshal(raw, &persisted); err != nil {
		return SPIndex{}, fmt.Errorf("parsing sp/index.json: %w", err)
	}

	rendered := SPIndex{}
	for _, entry := range persisted.TopUsed {
		rendered.TopUsed = append(rendered.TopUsed, fmt.Sprintf("%s (%d)", entry.Summary, entry.Count))
	}
	for _, entry := range persisted.MostRecent {
		rendered.MostRecent = append(rendered.MostRecent, entry.Summary)
	}
	return rendered, nil
}

func upsertTopUsed(entries []spEntry, summary string, now time.Time) []spEntry {
	found := false
	for i := range entries {
		if entries[i].Summary == summary {
			entries[i].Count++
			entries[i].LastSeen = now
			found = true
			break
		}
	}
	if !found {
		entries = append(entries, spEntry{Summary: summary, Count: 1, LastSeen: now})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].LastSeen.After(entries[j].LastSeen)
	})
	if len(entries) > spIndexCap {
		entries = entries[:spIndexCap]
	}
	return entries
}

func upsertMostRecent(entries []spEntry, summary string, now time.Time) []spEntry {
	kept := entries[:0]
	for _, entry := range entries {
		if entry.Summary != summary {
			kept = append(kept, entry)
		}
	}
	kept = append(kept, spEntry{Summary: summary, Count: 1, LastSeen: now})

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].LastSeen.After(kept[j].LastSeen)
	})
	if len(kept) > spIndexCap {
		kept = kept[:spIndexCap]
	}
	return kept
}
