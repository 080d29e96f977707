package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Path errors surfaced by the markdown browse helpers. The server maps them
// to client-error responses.
var (
	ErrPathNotRelative = errors.New("path must be relative")
	ErrPathTraversal   = errors.New("parent directory segments are not allowed")
	ErrPathEmpty       = errors.New("path must not be empty")
	ErrNotMarkdown     = errors.New("only markdown files may be read")
)

// ListMarkdownTree returns every .md file under the data directory as a
// sorted, data-relative path list.
func (s *Store) ListMarkdownTree() ([]string, error) {
	var files []string
	err := filepath.WalkDir(s.dataDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".md" {
			return nil
		}
		rel, err := filepath.Rel(s.dataDir, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking markdown tree: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

// SanitizeDataRelativePath validates a user-supplied data-relative path:
// it must be relative, non-empty, and free of parent segments.
func SanitizeDataRelativePath(path string) (string, error) {
	if filepath.IsAbs(path) {
		return "", ErrPathNotRelative
	}

	var parts []string
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		switch part {
		case "", ".":
		case "..":
			return "", ErrPathTraversal
		default:
			parts = append(parts, part)
		}
	}
	if len(parts) == 0 {
		return "", ErrPathEmpty
	}
	return filepath.Join(parts...), nil
}

// ReadMarkdownFile returns the content of one markdown file under the data
// directory. The path is sanitized before use, so untrusted input is safe.
func (s *Store) ReadMarkdownFile(relative string) (string, error) {
	clean, err := SanitizeDataRelativePath(relative)
	if err != nil {
		return "", err
	}
	if filepath.Ext(clean) != ".md" {
		return "", ErrNotMarkdown
	}
	raw, err := os.ReadFile(filepath.Join(s.dataDir, clean))
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
