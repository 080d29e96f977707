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

// dayDir returns <root>/YYYY/MM for a timestamp.
func dayDir(root string, t time.Time) string {
	return filepath.Join(root, fmt.Sprintf("%04d", t.Year()), fmt.Sprintf("%02d", int(t.Month())))
}

// JournalPath returns the per-day journal file for a timestamp.
func (s *Store) JournalPath(t time.Time) string {
	return filepath.Join(dayDir(filepath.Join(s.dataDir, "journals"), t), fmt.Sprintf("%02d.md", t.Day()))
}

// AppendJournalEntry appends a human-readable trace block for one processed
// intent to the day's journal file (create-if-absent, append-only) and
// returns the journal path.
func (s *Store) AppendJournalEntry(intent types.Intent, outcome types.Outcome) (string, error) {
	now := time.Now().UTC()
	path := s.JournalPath(now)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("ensuring journal dir: %w", err)
	}

	var trace strings.Builder
	for idx, step := range outcome.Steps {
		fmt.Fprintf(&trace, "%d. Thought: %s\n   Action: %s\n   Observation: %s\n",
			idx+1, step.Thought, step.Action, step.Observation)
	}
	if trace.Len() == 0 {
		trace.WriteString("(no ReAct steps recorded)\n")
	}

	entry := fmt.Sprintf("## %s — %s\n\nIntent processed: %s\nFinal answer: %s\n\n### ReAct trace\n%s\n",
		now.Format("15:04:05"),
		intent.Summary,
		intent.Summary,
		outcome.FinalAnswer,
		strings.TrimRight(trace.String(), "\n"))

	if err := appendFile(path, []byte(entry)); err != nil {
		return "", err
	}
	return path, nil
}

// AppendLLMLogs appends structured reasoning-trace records to the per-day
// JSON-lines log, one line per reasoning call.
func (s *Store) AppendLLMLogs(entries []types.LLMLogEntry) error {
	for _, entry := range entries {
		ts := entry.Timestamp.UTC()
		dir := dayDir(filepath.Join(s.dataDir, "logs", "llm"), ts)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("ensuring llm log dir: %w", err)
		}
		line, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("encoding llm log entry: %w", err)
		}
		path := filepath.Join(dir, fmt.Sprintf("%02d.jsonl", ts.Day()))
		if err := appendFile(path, append(line, '\n')); err != nil {
			return err
		}
	}
	return nil
}

// LLMLogQuery filters ReadLLMLogs. The zero value returns the 100 most
// recent entries.
type LLMLogQuery struct {
	Model string
	RunID uuid.UUID
	Phase string
	Since time.Time
	Limit int
}

// ReadLLMLogs walks the per-day trace logs newest first and returns matching
// entries, capped at the query limit.
func (s *Store) ReadLLMLogs(query LLMLogQuery) ([]types.LLMLogEntry, error) {
	if query.Limit <= 0 {
		query.Limit = 100
	}

	root := filepath.Join(s.dataDir, "logs", "llm")
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return nil, nil
	}

	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking llm logs: %w", err)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(files)))

	var results []types.LLMLogEntry
	for _, file := range files {
		raw, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}
		lines := strings.Split(string(raw), "\n")
		for i := len(lines) - 1; i >= 0; i-- {
			line := strings.TrimSpace(lines[i])
			if line == "" {
				continue
			}
			var entry types.LLMLogEntry
			if err := json.Unmarshal([]byte(line), &entry); err != nil {
				return nil, fmt.Errorf("parsing llm log line in %s: %w", file, err)
			}

			if query.Model != "" && !strings.EqualFold(entry.Model, query.Model) {
				continue
			}
			if query.Phase != "" && !strings.EqualFold(entry.Phase, query.Phase) {
				continue
			}
			if query.RunID != uuid.Nil && entry.RunID != query.RunID {
				continue
			}
			if !query.Since.IsZero() && entry.Timestamp.Before(query.Since) {
				continue
			}

			results = append(results, entry)
			if len(results) >= query.Limit {
				return results, nil
			}
		}
	}
	return results, nil
}

func appendFile(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening %s for append: %w", path, err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("appending to %s: %w", path, err)
	}
	return f.Sync()
}
