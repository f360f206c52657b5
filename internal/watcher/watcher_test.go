package watcher

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

// waitFor polls cond until it holds or the timeout expires
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func startWatcher(t *testing.T, cfg *Config) *Watcher {
	t.Helper()
	w, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}
	t.Cleanup(w.Stop)
	if err := w.Start(); err != nil {
		t.Fatalf("failed to start watcher: %v", err)
	}
	return w
}

// =============================================================================
// Config File Watching
// =============================================================================

func TestWatcherDetectsWrite(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configFile, []byte("location: {}\n"), 0600); err != nil {
		t.Fatalf("failed to create config: %v", err)
	}

	var changes atomic.Int32
	startWatcher(t, &Config{
		Files:            []string{configFile},
		DebounceDuration: 50 * time.Millisecond,
		OnChange:         func() { changes.Add(1) },
	})

	if err := os.WriteFile(configFile, []byte("location:\n  latitude: 45.764\n"), 0600); err != nil {
		t.Fatalf("failed to modify config: %v", err)
	}

	if !waitFor(t, 2*time.Second, func() bool { return changes.Load() > 0 }) {
		t.Error("expected watcher to detect the write")
	}
}

func TestWatcherDetectsRenameOver(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configFile, []byte("a: 1\n"), 0600); err != nil {
		t.Fatal(err)
	}

	var changes atomic.Int32
	startWatcher(t, &Config{
		Files:            []string{configFile},
		DebounceDuration: 50 * time.Millisecond,
		OnChange:         func() { changes.Add(1) },
	})

	// Editors save through a temporary file
	tmp := filepath.Join(tmpDir, ".config.yaml.swp")
	if err := os.WriteFile(tmp, []byte("a: 2\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmp, configFile); err != nil {
		t.Fatal(err)
	}

	if !waitFor(t, 2*time.Second, func() bool { return changes.Load() > 0 }) {
		t.Error("expected watcher to detect the replaced file")
	}
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "config.yaml")

	var changes atomic.Int32
	startWatcher(t, &Config{
		Files:            []string{configFile},
		DebounceDuration: 20 * time.Millisecond,
		OnChange:         func() { changes.Add(1) },
	})

	if err := os.WriteFile(filepath.Join(tmpDir, "swood.db"), []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}

	time.Sleep(200 * time.Millisecond)
	if changes.Load() != 0 {
		t.Errorf("unrelated files should not trigger, got %d calls", changes.Load())
	}
}

func TestWatcherDebounce(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "config.yaml")

	var changes atomic.Int32
	startWatcher(t, &Config{
		Files:            []string{configFile},
		DebounceDuration: 150 * time.Millisecond,
		OnChange:         func() { changes.Add(1) },
	})

	for i := 0; i < 5; i++ {
		if err := os.WriteFile(configFile, []byte{byte('0' + i)}, 0600); err != nil {
			t.Fatal(err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	if !waitFor(t, 2*time.Second, func() bool { return changes.Load() > 0 }) {
		t.Fatal("expected a change notification")
	}
	time.Sleep(300 * time.Millisecond)
	if got := changes.Load(); got != 1 {
		t.Errorf("rapid writes should be batched into 1 call, got %d", got)
	}
}

// =============================================================================
// Lifecycle
// =============================================================================

func TestWatcherStopIsIdempotent(t *testing.T) {
	w, err := New(DefaultConfig(func() {}, filepath.Join(t.TempDir(), "config.yaml")))
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}

	w.Stop()
	w.Stop()
	if err := w.Close(); err != nil {
		t.Errorf("Close after Stop: %v", err)
	}
	if err := w.Start(); err == nil {
		t.Error("a stopped watcher should not restart")
	}
}

func TestWatcherMissingDirectory(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope", "config.yaml")
	w, err := New(DefaultConfig(nil, missing))
	if err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := w.Start(); err != nil {
		t.Errorf("a missing directory should be skipped, got %v", err)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig(nil, "a.yaml")
	if cfg.DebounceDuration != DefaultDebounceDuration {
		t.Errorf("DebounceDuration = %v", cfg.DebounceDuration)
	}
	if len(cfg.Files) != 1 || cfg.Files[0] != "a.yaml" {
		t.Errorf("Files = %v", cfg.Files)
	}
}
