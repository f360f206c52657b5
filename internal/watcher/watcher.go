// Package watcher reports changes to the config file so a running UI can
// pick up a new location without restarting. Rapid writes are batched.
package watcher

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"swood/internal/utils"
)

// DefaultDebounceDuration is the default debounce window for batching rapid changes.
const DefaultDebounceDuration = 300 * time.Millisecond

// Config holds file watcher configuration.
type Config struct {
	Files            []string      // Files to watch; they may not exist yet
	DebounceDuration time.Duration // Debounce window to batch rapid changes
	OnChange         func()        // Called once per batch of changes
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig(onChange func(), files ...string) *Config {
	return &Config{
		Files:            files,
		DebounceDuration: DefaultDebounceDuration,
		OnChange:         onChange,
	}
}

// Watcher monitors files and calls OnChange after they are written.
//
// Parent directories are watched rather than the files themselves: editors
// often save by renaming a temporary file over the original, which drops a
// watch placed on the file.
type Watcher struct {
	cfg     *Config
	fsw     *fsnotify.Watcher
	files   map[string]bool
	stopCh  chan struct{}
	done    chan struct{}
	started bool
	stopped bool
	mu      sync.Mutex
}

// New creates a new Watcher instance.
func New(cfg *Config) (*Watcher, error) {
	if cfg.DebounceDuration <= 0 {
		cfg.DebounceDuration = DefaultDebounceDuration
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	files := make(map[string]bool, len(cfg.Files))
	for _, f := range cfg.Files {
		files[filepath.Clean(f)] = true
	}

	return &Watcher{
		cfg:    cfg,
		fsw:    fsw,
		files:  files,
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}, nil
}

// Start begins watching the configured files.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return fmt.Errorf("watcher has been stopped and cannot be restarted")
	}
	if w.started {
		return nil
	}

	dirs := make(map[string]bool)
	for f := range w.files {
		dirs[filepath.Dir(f)] = true
	}
	for dir := range dirs {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			utils.Debugf("watcher: skipping missing directory %s", dir)
			continue
		}
		if err := w.fsw.Add(dir); err != nil {
			return fmt.Errorf("failed to watch directory %q: %w", dir, err)
		}
	}

	w.started = true
	go w.eventLoop()
	return nil
}

// Stop stops the watcher and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	started := w.started
	close(w.stopCh)
	_ = w.fsw.Close()
	w.mu.Unlock()

	if started {
		<-w.done
	}
}

// Close implements io.Closer for shutdown registration.
func (w *Watcher) Close() error {
	w.Stop()
	return nil
}

func (w *Watcher) eventLoop() {
	defer close(w.done)

	var debounceTimer *time.Timer
	// debounceCh fires when the debounce window expires
	debounceCh := make(chan struct{}, 1)

	resetDebounce := func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
		debounceTimer = time.AfterFunc(w.cfg.DebounceDuration, func() {
			select {
			case debounceCh <- struct{}{}:
			default:
			}
		})
	}

	for {
		select {
		case <-w.stopCh:
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !w.files[filepath.Clean(event.Name)] {
				continue
			}
			// Only react to write, create, and rename events
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			resetDebounce()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			utils.Warnf("watcher: %v", err)

		case <-debounceCh:
			if w.cfg.OnChange != nil {
				w.cfg.OnChange()
			}
		}
	}
}
