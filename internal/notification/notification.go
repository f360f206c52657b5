// Package notification delivers user-visible alerts for failed restaurant
// sessions.
package notification

import (
	"sync"
	"time"
)

// NotificationType identifies the type of notification
type NotificationType string

const (
	NotifyFetchError       NotificationType = "fetch_error"
	NotifyPermissionDenied NotificationType = "permission_denied"
	NotifyStaleResults     NotificationType = "stale_results"
	NotifyTest             NotificationType = "test"
)

// Notification represents a notification to be sent
type Notification struct {
	Type      NotificationType
	Title     string
	Message   string
	Timestamp time.Time
	Metadata  map[string]string
}

// NotificationManager is the interface for managing notifications
type NotificationManager interface {
	Send(n Notification) error
	SendAsync(n Notification)
	Close() error
	ChannelCount() int
}

// NotificationChannel is the interface for a notification channel
type NotificationChannel interface {
	Send(n Notification) error
	Close() error
}

// Config holds the notification configuration
type Config struct {
	Enabled         bool
	OSNotification  OSNotificationConfig
	LogNotification LogNotificationConfig
}

// OSNotificationConfig holds OS notification configuration
type OSNotificationConfig struct {
	Enabled            bool
	OnFetchError       bool
	OnPermissionDenied bool
	OnStaleResults     bool
}

// LogNotificationConfig holds log notification configuration
type LogNotificationConfig struct {
	Enabled   bool
	Path      string
	MaxSizeMB int
	Types     []NotificationType // empty logs every type
}

// CommandExecutor is the interface for executing system commands
type CommandExecutor interface {
	Execute(cmd string, args ...string) error
}

// MockCommandExecutor is a mock implementation of CommandExecutor for testing
type MockCommandExecutor struct {
	ExecuteFunc func(cmd string, args ...string) error
}

// Execute implements CommandExecutor
func (m *MockCommandExecutor) Execute(cmd string, args ...string) error {
	if m.ExecuteFunc != nil {
		return m.ExecuteFunc(cmd, args...)
	}
	return nil
}

// Option is a functional option for configuring notification channels
type Option func(interface{})

// WithCommandExecutor sets a custom command executor
func WithCommandExecutor(executor CommandExecutor) Option {
	return func(c interface{}) {
		if ch, ok := c.(*osNotificationChannel); ok {
			ch.executor = executor
		}
		if mgr, ok := c.(*manager); ok {
			mgr.commandExecutor = executor
		}
	}
}

// WithPlatform sets the platform for OS notifications
func WithPlatform(platform string) Option {
	return func(c interface{}) {
		if ch, ok := c.(*osNotificationChannel); ok {
			ch.platform = platform
		}
		if mgr, ok := c.(*manager); ok {
			mgr.platform = platform
		}
	}
}

// WithSendCallback sets a callback invoked for every notification that
// passes filtering
func WithSendCallback(callback func(Notification)) Option {
	return func(c interface{}) {
		if ch, ok := c.(*osNotificationChannel); ok {
			ch.sendCallback = callback
		}
		if mgr, ok := c.(*manager); ok {
			mgr.sendCallback = callback
		}
	}
}

// Recorder is an in-memory NotificationManager for tests
type Recorder struct {
	mu   sync.Mutex
	sent []Notification
}

// NewRecorder creates an empty recorder
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Send records n
func (r *Recorder) Send(n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

// SendAsync records n synchronously so tests can assert right away
func (r *Recorder) SendAsync(n Notification) { _ = r.Send(n) }

// Close is a no-op
func (r *Recorder) Close() error { return nil }

// ChannelCount returns 1
func (r *Recorder) ChannelCount() int { return 1 }

// Sent returns recorded notifications in order
func (r *Recorder) Sent() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.sent))
	copy(out, r.sent)
	return out
}
