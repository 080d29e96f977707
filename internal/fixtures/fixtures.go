// Package fixtures seeds a fresh telos root with working configuration and
// a sample intake record, so `telos serve` runs out of the box.
package fixtures

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

//go:embed seed
var seedFS embed.FS

// Install copies the seed tree into root. Existing files are left alone so
// re-running bootstrap never clobbers a configured installation. It returns
// the paths it actually wrote.
func Install(root string) ([]string, error) {
	var written []string
	err := fs.WalkDir(seedFS, "seed", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		relative, err := filepath.Rel("seed", filepath.FromSlash(path))
		if err != nil {
			return err
		}
		target := filepath.Join(root, relative)

		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if _, err := os.Stat(target); err == nil {
			return nil
		}
		raw, err := seedFS.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading seed file %s: %w", path, err)
		}
		if err := os.WriteFile(target, raw, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", target, err)
		}
		written = append(written, target)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return written, nil
}
