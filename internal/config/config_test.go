package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/model"
)

func TestDefaultConfigValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("DefaultConfig().Validate() = %v", err)
	}
}

func TestLoadMissingReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load() err = %v", err)
	}
	if cfg.Windows.MaxDays != 60 || cfg.Windows.HighDays != 30 {
		t.Errorf("Windows = %+v, want defaults", cfg.Windows.Window)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
data_dir: /tmp/cuas-test
windows:
  max_days: 45
  by_kind:
    nuclear:
      predict_end_days: 45
fetch:
  concurrency: 2
  timeout: 5s
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CUAS_DB", "/tmp/override.db")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() err = %v", err)
	}
	if cfg.Windows.MaxDays != 45 {
		t.Errorf("MaxDays = %d, want 45", cfg.Windows.MaxDays)
	}
	if cfg.Windows.HighDays != 30 {
		t.Errorf("HighDays = %d, want default 30 kept", cfg.Windows.HighDays)
	}
	if cfg.Fetch.Timeout != 5*time.Second || cfg.Fetch.Concurrency != 2 {
		t.Errorf("Fetch = %+v", cfg.Fetch)
	}
	if cfg.DB() != "/tmp/override.db" {
		t.Errorf("DB() = %q, want env override", cfg.DB())
	}
	if cfg.Events() != filepath.Join("/tmp/cuas-test", "cuas.events.jsonl") {
		t.Errorf("Events() = %q", cfg.Events())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestLoadBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("windows: [1, 2"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); !errors.Is(err, ErrInvalid) {
		t.Fatalf("Load() err = %v, want ErrInvalid", err)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	cfg := DefaultConfig()
	cfg.Fetch.Timeout = 7 * time.Second
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save() err = %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load() err = %v", err)
	}
	if got.Fetch.Timeout != 7*time.Second {
		t.Errorf("Timeout = %v after reload", got.Fetch.Timeout)
	}
}

func TestWindowsFor(t *testing.T) {
	w := DefaultWindows()
	w.ByKind = map[model.LocationKind]Window{
		model.LocationNuclear: {HighDays: 45, MaxDays: 90},
	}

	nuclear := w.For(model.LocationNuclear)
	if nuclear.MaxDays != 90 || nuclear.HighDays != 45 || nuclear.PredictStartDays != 14 {
		t.Errorf("For(nuclear) = %+v", nuclear)
	}
	if airport := w.For(model.LocationAirport); airport != w.Window {
		t.Errorf("For(airport) = %+v, want default", airport)
	}
	if err := w.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestWindowsValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Windows)
	}{
		{"zero max", func(w *Windows) { w.MaxDays = 0 }},
		{"high above max", func(w *Windows) { w.HighDays = 61 }},
		{"prediction reversed", func(w *Windows) { w.PredictStartDays = 31 }},
		{"zero age", func(w *Windows) { w.PredictMaxAgeDays = 0 }},
		{"bad override", func(w *Windows) {
			w.ByKind = map[model.LocationKind]Window{model.LocationPort: {HighDays: 90}}
		}},
		{"unknown kind", func(w *Windows) {
			w.ByKind = map[model.LocationKind]Window{"stadium": {MaxDays: 10}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := DefaultWindows()
			tt.mutate(&w)
			if err := w.Validate(); !errors.Is(err, ErrInvalid) {
				t.Fatalf("Validate() = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("CUAS_TEST_FROM_DOTENV=yes\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CUAS_TEST_FROM_DOTENV", "")
	os.Unsetenv("CUAS_TEST_FROM_DOTENV")

	loaded := LoadEnv(dir)
	if len(loaded) == 0 {
		t.Fatal("LoadEnv() loaded nothing")
	}
	if got := os.Getenv("CUAS_TEST_FROM_DOTENV"); got != "yes" {
		t.Errorf("CUAS_TEST_FROM_DOTENV = %q, want yes", got)
	}
}
