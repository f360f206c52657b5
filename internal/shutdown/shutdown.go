// Package shutdown coordinates interrupt handling and resource cleanup for a
// command run: the store, the network client and the notifiers are closed in
// reverse order of registration.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"swood/internal/utils"
)

// CleanupFunc releases one resource. The context ends when cleanup times out.
type CleanupFunc func(ctx context.Context) error

type cleanupEntry struct {
	name string
	fn   CleanupFunc
}

// Manager cancels its context on Shutdown or on an interrupt signal and runs
// registered cleanups once.
type Manager struct {
	mu       sync.Mutex
	cleanups []cleanupEntry
	shutdown bool
	ctx      context.Context
	cancel   context.CancelFunc
	once     sync.Once
	closed   sync.Once
	stop     func() // stops signal delivery
	closeErr error
}

// NewManager creates a manager whose context derives from parent
func NewManager(parent context.Context) *Manager {
	ctx, cancel := context.WithCancel(parent)
	return &Manager{
		ctx:    ctx,
		cancel: cancel,
		stop:   func() {},
	}
}

// HandleSignals triggers Shutdown on SIGINT or SIGTERM until Close is called
func (m *Manager) HandleSignals() {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		select {
		case sig := <-sigs:
			utils.Infof("received %s, shutting down", sig)
			m.Shutdown()
		case <-done:
		}
	}()

	m.mu.Lock()
	m.stop = func() {
		signal.Stop(sigs)
		close(done)
	}
	m.mu.Unlock()
}

// Register adds a cleanup. Cleanups run last registered, first called.
func (m *Manager) Register(name string, fn CleanupFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanups = append(m.cleanups, cleanupEntry{name: name, fn: fn})
}

// RegisterCloser adds a cleanup for a resource with a Close method
func (m *Manager) RegisterCloser(name string, c interface{ Close() error }) {
	m.Register(name, func(context.Context) error { return c.Close() })
}

// Shutdown cancels the context. Safe to call multiple times.
func (m *Manager) Shutdown() {
	m.once.Do(func() {
		m.mu.Lock()
		m.shutdown = true
		m.mu.Unlock()
		m.cancel()
	})
}

// IsShutdown reports whether Shutdown was called
func (m *Manager) IsShutdown() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shutdown
}

// Context is cancelled when shutdown starts
func (m *Manager) Context() context.Context {
	return m.ctx
}

// Close stops signal handling, cancels the context and runs every cleanup.
// A failing cleanup does not stop the others; the first error is returned.
// Later calls return the same result without running cleanups again.
func (m *Manager) Close(ctx context.Context) error {
	m.closed.Do(func() {
		m.mu.Lock()
		stop := m.stop
		cleanups := make([]cleanupEntry, len(m.cleanups))
		copy(cleanups, m.cleanups)
		m.mu.Unlock()

		stop()
		m.Shutdown()

		for i := len(cleanups) - 1; i >= 0; i-- {
			c := cleanups[i]
			if err := c.fn(ctx); err != nil {
				utils.Warnf("cleanup %s failed: %v", c.name, err)
				if m.closeErr == nil {
					m.closeErr = err
				}
				continue
			}
			utils.Debugf("cleanup %s done", c.name)
		}
	})
	return m.closeErr
}
