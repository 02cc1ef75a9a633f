package config_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/aurisync/internal/config"
)

const watcherValidYAML = `
telemetry:
  log_level: info
`

const watcherUpdatedYAML = `
telemetry:
  log_level: debug
`

const watcherInvalidYAML = `
telemetry:
  log_level: bananas
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write file %q: %v", path, err)
	}
}

func TestWatcher_InitialLoad(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	writeFile(t, cfgPath, watcherValidYAML)

	w, err := config.NewWatcher(cfgPath, nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	if got := w.Current().Telemetry.LogLevel; got != config.LogInfo {
		t.Errorf("initial log level: got %q, want info", got)
	}
}

func TestWatcher_InitialLoadFails(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	writeFile(t, cfgPath, watcherInvalidYAML)

	if _, err := config.NewWatcher(cfgPath, nil); err == nil {
		t.Fatal("expected error for invalid initial config, got nil")
	}
}

func TestWatcher_DetectsChange(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	writeFile(t, cfgPath, watcherValidYAML)

	var (
		mu      sync.Mutex
		gotDiff *config.ConfigDiff
	)
	onChange := func(_, _ *config.Config, diff config.ConfigDiff) {
		mu.Lock()
		defer mu.Unlock()
		gotDiff = &diff
	}

	w, err := config.NewWatcher(cfgPath, onChange, config.WithInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	// Backdate the mtime so the rewrite is guaranteed to look newer.
	past := time.Now().Add(-time.Hour)
	if err := os.Chtimes(cfgPath, past, past); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	writeFile(t, cfgPath, watcherUpdatedYAML)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		d := gotDiff
		mu.Unlock()
		if d != nil {
			if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
				t.Fatalf("unexpected diff: %+v", *d)
			}
			if got := w.Current().Telemetry.LogLevel; got != config.LogDebug {
				t.Fatalf("Current not updated: got %q", got)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("watcher never reported the change")
}

func TestWatcher_KeepsOldConfigOnInvalidUpdate(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	writeFile(t, cfgPath, watcherValidYAML)

	w, err := config.NewWatcher(cfgPath, nil, config.WithInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	past := time.Now().Add(-time.Hour)
	if err := os.Chtimes(cfgPath, past, past); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	writeFile(t, cfgPath, watcherInvalidYAML)

	// Give the watcher several polling cycles to (wrongly) pick it up.
	time.Sleep(150 * time.Millisecond)

	if got := w.Current().Telemetry.LogLevel; got != config.LogInfo {
		t.Errorf("invalid update must not replace the config, got %q", got)
	}
}
