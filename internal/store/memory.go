package store

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"telos/internal/types"
)

// MemoryLevel distinguishes raw events from daily rollups.
type MemoryLevel string

const (
	MemoryL1 MemoryLevel = "L1"
	MemoryL2 MemoryLevel = "L2"
)

// MemoryAnchor points at a journal or history artifact, data-relative.
type MemoryAnchor struct {
	Label string `json:"label"`
	Path  string `json:"path"`
}

// MemoryEntry is one memory record. L1 entries are appended once per
// successful processing and never mutated; the L2 entry for a day is
// recomputed on every contributing L1 append and keeps a stable id.
type MemoryEntry struct {
	ID             uuid.UUID      `json:"id"`
	Level          MemoryLevel    `json:"level"`
	Summary        string         `json:"summary"`
	Details        []string       `json:"details"`
	Anchors        []MemoryAnchor `json:"anchors"`
	Tags           []string       `json:"tags"`
	RelatedIntents []uuid.UUID    `json:"related_intents"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// MemoryQuery filters ReadMemoryEntries.
type MemoryQuery struct {
	Level MemoryLevel
	Limit int
	Since time.Time
	Tag   string
}

// IngestMemorySnapshot folds one successful processing into memory: an L1
// entry is appended to the day's event log, then the day's L2 rollup is
// rebuilt from every L1 entry recorded so far.
func (s *Store) IngestMemorySnapshot(intent types.Intent, outcome types.Outcome, journalPath, historyPath string) (MemoryEntry, error) {
	now := time.Now().UTC()

	var anchors []MemoryAnchor
	if historyPath != "" {
		if anchor, ok := s.toAnchor("intent/history", historyPath); ok {
			anchors = append(anchors, anchor)
		}
	}
	if anchor, ok := s.toAnchor("journals", journalPath); ok {
		anchors = append(anchors, anchor)
	}

	details := []string{
		fmt.Sprintf("Source: %s", intent.Source),
		fmt.Sprintf("Final: %s", outcome.FinalAnswer),
	}
	if len(outcome.Steps) > 0 {
		details = append(details, fmt.Sprintf("First observation: %s", outcome.Steps[0].Observation))
	}

	entry := MemoryEntry{
		ID:             uuid.New(),
		Level:          MemoryL1,
		Summary:        fmt.Sprintf("%s ⇒ %s", intent.Summary, truncate(outcome.FinalAnswer, 160)),
		Details:        details,
		Anchors:        anchors,
		Tags:           deriveTags(intent),
		RelatedIntents: []uuid.UUID{intent.ID},
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.appendL1Entry(entry); err != nil {
		return MemoryEntry{}, err
	}
	if err := s.rebuildL2ForDay(now); err != nil {
		return MemoryEntry{}, err
	}
	return entry, nil
}

// ReadMemoryEntries returns entries of one level, newest first, capped at
// the query limit (default 20).
func (s *Store) ReadMemoryEntries(query MemoryQuery) ([]MemoryEntry, error) {
	if query.Limit <= 0 {
		query.Limit = 20
	}
	if query.Level == "" {
		query.Level = MemoryL2
	}

	root := filepath.Join(s.dataDir, "memory", strings.ToLower(string(query.Level)))
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return nil, nil
	}

	var entries []MemoryEntry
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading memory file %s: %w", path, err)
		}

		if query.Level == MemoryL1 {
			for _, line := range strings.Split(string(raw), "\n") {
				line = strings.TrimSpace(line)
				if line == "" {
					continue
				}
				var entry MemoryEntry
				if err := json.Unmarshal([]byte(line), &entry); err != nil {
					return fmt.Errorf("parsing memory l1 entry in %s: %w", path, err)
				}
				if query.matches(entry) {
					entries = append(entries, entry)
				}
			}
			return nil
		}

		var entry MemoryEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return fmt.Errorf("parsing memory l2 entry in %s: %w", path, err)
		}
		if query.matches(entry) {
			entries = append(entries, entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
	if len(entries) > query.Limit {
		entries = entries[:query.Limit]
	}
	return entries, nil
}

func (q MemoryQuery) matches(entry MemoryEntry) bool {
	if !q.Since.IsZero() && entry.CreatedAt.Before(q.Since) {
		return false
	}
	if q.Tag != "" {
		for _, tag := range entry.Tags {
			if strings.EqualFold(tag, q.Tag) {
				return true
			}
		}
		return false
	}
	return true
}

func (s *Store) l1Path(t time.Time) string {
	return filepath.Join(dayDir(filepath.Join(s.dataDir, "memory", "l1"), t), fmt.Sprintf("%02d.jsonl", t.Day()))
}

func (s *Store) l2Path(t time.Time) string {
	return filepath.Join(dayDir(filepath.Join(s.dataDir, "memory", "l2"), t), fmt.Sprintf("%02d.json", t.Day()))
}

func (s *Store) appendL1Entry(entry MemoryEntry) error {
	path := s.l1Path(entry.CreatedAt)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensuring memory l1 dir: %w", err)
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding memory l1 entry: %w", err)
	}
	return appendFile(path, append(line, '\n'))
}

// rebuildL2ForDay recomputes the day's rollup from all of that day's L1
// entries. The rollup id and created_at are reused from a prior rollup when
// one exists so the entry stays stable across rebuilds.
func (s *Store) rebuildL2ForDay(t time.Time) error {
	l1Path := s.l1Path(t)
	raw, err := os.ReadFile(l1Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading l1 entries for rollup: %w", err)
	}

	var entries []MemoryEntry
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var entry MemoryEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return fmt.Errorf("parsing l1 entry during rollup: %w", err)
		}
		entries = append(entries, entry)
	}
	if len(entries) == 0 {
		return nil
	}

	l2Path := s.l2Path(t)
	rollupID := uuid.New()
	createdAt := entries[0].CreatedAt
	if prior, err := os.ReadFile(l2Path); err == nil {
		var existing MemoryEntry
		if err := json.Unmarshal(prior, &existing); err != nil {
			return fmt.Errorf("parsing existing l2 rollup: %w", err)
		}
		rollupID = existing.ID
		createdAt = existing.CreatedAt
	} else if !os.IsNotExist(err) {
		return err
	}

	var details []string
	for i, entry := range entries {
		if i == 6 {
			break
		}
		details = append(details, "• "+entry.Summary)
	}

	seenAnchors := map[MemoryAnchor]bool{}
	var anchors []MemoryAnchor
	tagSet := map[string]bool{}
	relatedSet := map[uuid.UUID]bool{}
	for _, entry := range entries {
		for _, anchor := range entry.Anchors {
			if !seenAnchors[anchor] {
				seenAnchors[anchor] = true
				anchors = append(anchors, anchor)
			}
		}
		for _, tag := range entry.Tags {
			tagSet[tag] = true
		}
		for _, id := range entry.RelatedIntents {
			relatedSet[id] = true
		}
	}

	tags := make([]string, 0, len(tagSet))
	for tag := range tagSet {
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	related := make([]uuid.UUID, 0, len(relatedSet))
	for id := range relatedSet {
		related = append(related, id)
	}
	sort.Slice(related, func(i, j int) bool { return related[i].String() < related[j].String() })

	rollup := MemoryEntry{
		ID:             rollupID,
		Level:          MemoryL2,
		Summary:        fmt.Sprintf("%d memories on %s", len(entries), t.Format("2006-01-02")),
		Details:        details,
		Anchors:        anchors,
		Tags:           tags,
		RelatedIntents: related,
		CreatedAt:      createdAt,
		UpdatedAt:      time.Now().UTC(),
	}

	if err := os.MkdirAll(filepath.Dir(l2Path), 0o755); err != nil {
		return fmt.Errorf("ensuring memory l2 dir: %w", err)
	}
	encoded, err := json.MarshalIndent(rollup, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding l2 rollup: %w", err)
	}
	return os.WriteFile(l2Path, encoded, 0o644)
}

func deriveTags(intent types.Intent) []string {
	set := map[string]bool{strings.ToLower(intent.Source): true}
	for _, token := range strings.Fields(intent.Summary) {
		cleaned := strings.ToLower(strings.TrimFunc(token, func(r rune) bool {
			return !('a' <= r && r <= 'z' || 'A' <= r && r <= 'Z' || '0' <= r && r <= '9')
		}))
		if len(cleaned) >= 3 {
			set[cleaned] = true
		}
		if len(set) >= 8 {
			break
		}
	}
	tags := make([]string, 0, len(set))
	for tag := range set {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

func truncate(value string, max int) string {
	if len(value) <= max {
		return value
	}
	return value[:max] + "…"
}

func (s *Store) toAnchor(label, path string) (MemoryAnchor, bool) {
	rel, err := filepath.Rel(s.dataDir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return MemoryAnchor{}, false
	}
	return MemoryAnchor{Label: label, Path: filepath.ToSlash(rel)}, true
}
