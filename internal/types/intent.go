// Package types provides shared type definitions used across telos packages.
// This package exists to break import cycles between the store, the agent
// runtime and the orchestrator. Types in this package should be foundational
// data structures with no complex dependencies.
package types

import (
	"time"

	"github.com/google/uuid"
)

// Intent is one unit of requested work. Its identifier is stable across all
// state transitions; only StoragePath changes as the record moves between
// state directories, and there is at most one on-disk copy at any time.
type Intent struct {
	ID             uuid.UUID `yaml:"id"`
	Source         string    `yaml:"source"`
	Summary        string    `yaml:"summary"`
	TelosAlignment float64   `yaml:"telos_alignment"`
	CreatedAt      time.Time `yaml:"created_at"`

	// StoragePath is the record's current on-disk location. It is never
	// serialized; it is recomputed from wherever the file currently lives.
	StoragePath string `yaml:"-"`
}

// FileName returns the canonical record file name for this intent:
// UTC creation timestamp plus id, which gives natural chronological sort
// order and uniqueness inside every state directory.
func (i Intent) FileName() string {
	return i.CreatedAt.UTC().Format("20060102T150405") + "-" + i.ID.String() + ".md"
}
