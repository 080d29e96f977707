package fixtures

import (
	"os"
	"path/filepath"
	"testing"

	"telos/internal/config"
	"telos/internal/store"
)

func TestInstallSeedsWorkingRoot(t *testing.T) {
	root := t.TempDir()

	written, err := Install(root)
	if err != nil {
		t.Fatalf("Install() error = %v", err)
	}
	if len(written) == 0 {
		t.Fatal("Install() wrote nothing")
	}

	cfg, err := config.LoadFromRoot(root)
	if err != nil {
		t.Fatalf("LoadFromRoot() error = %v", err)
	}
	if cfg.LLM.Provider != config.ProviderLocalStub {
		t.Errorf("Provider = %q, want local_stub", cfg.LLM.Provider)
	}
	if cfg.Beat.IntentThreshold != 0.5 {
		t.Errorf("IntentThreshold = %v", cfg.Beat.IntentThreshold)
	}

	st, err := store.Open(cfg.DataDir)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	records, issues, err := st.ScanInbox()
	if err != nil {
		t.Fatalf("ScanInbox() error = %v", err)
	}
	if len(issues) != 0 {
		t.Fatalf("scan issues: %v", issues)
	}
	if len(records) != 1 {
		t.Fatalf("records = %d, want the sample record", len(records))
	}
	if records[0].Intent.Source != "bootstrap" {
		t.Errorf("sample Source = %q", records[0].Intent.Source)
	}
}

func TestInstallNeverOverwrites(t *testing.T) {
	root := t.TempDir()
	configDir := filepath.Join(root, "config")
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	custom := []byte("interval_minutes: 99\n")
	beatPath := filepath.Join(configDir, "beat.yml")
	if err := os.WriteFile(beatPath, custom, 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	if _, err := Install(root); err != nil {
		t.Fatalf("Install() error = %v", err)
	}

	raw, err := os.ReadFile(beatPath)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(raw) != string(custom) {
		t.Errorf("beat.yml overwritten: %s", raw)
	}
}
