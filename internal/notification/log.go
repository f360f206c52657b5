package notification

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"
)

const (
	defaultMaxSizeMB = 5
	logTimeFormat    = "2006-01-02T15:04:05Z"
	// rotated entries are kept in a single backup next to the log
	rotatedSuffix = ".old"
)

// LogEntry is one line of the notification log:
//
//	2026-01-16T10:30:00Z [FETCH_ERROR] Title: Message
type LogEntry struct {
	Time time.Time        `json:"time"`
	Type NotificationType `json:"type"`
	Text string           `json:"text"`
}

func (e LogEntry) String() string {
	return fmt.Sprintf("%s [%s] %s", e.Time.UTC().Format(logTimeFormat), strings.ToUpper(string(e.Type)), e.Text)
}

// ParseLogEntry parses a line written by the log channel
func ParseLogEntry(line string) (LogEntry, error) {
	stamp, rest, ok := strings.Cut(line, " [")
	if !ok {
		return LogEntry{}, fmt.Errorf("malformed log line: %q", line)
	}
	typ, text, ok := strings.Cut(rest, "] ")
	if !ok {
		return LogEntry{}, fmt.Errorf("malformed log line: %q", line)
	}
	at, err := time.Parse(logTimeFormat, stamp)
	if err != nil {
		return LogEntry{}, fmt.Errorf("malformed log time %q: %w", stamp, err)
	}
	return LogEntry{Time: at, Type: NotificationType(strings.ToLower(typ)), Text: text}, nil
}

func entryFor(n Notification) LogEntry {
	text := n.Message
	if n.Title != "" {
		text = n.Title + ": " + n.Message
	}
	return LogEntry{Time: n.Timestamp, Type: n.Type, Text: strings.ReplaceAll(text, "\n", " ")}
}

// logNotificationChannel appends notifications to a file and rotates it once
// it grows past MaxSizeMB. The size is tracked across writes so a long-running
// UI rotates too.
type logNotificationChannel struct {
	config   *LogNotificationConfig
	maxBytes int64

	mu   sync.Mutex
	file *os.File
	size int64
}

// NewLogNotificationChannel creates a new log notification channel
func NewLogNotificationChannel(cfg *LogNotificationConfig) NotificationChannel {
	maxSize := cfg.MaxSizeMB
	if maxSize <= 0 {
		maxSize = defaultMaxSizeMB
	}
	return &logNotificationChannel{
		config:   cfg,
		maxBytes: int64(maxSize) * 1024 * 1024,
	}
}

// Send writes a notification to the log file. Types outside config.Types are
// dropped when that list is set.
func (c *logNotificationChannel) Send(n Notification) error {
	if len(c.config.Types) > 0 && !slices.Contains(c.config.Types, n.Type) {
		return nil
	}
	line := entryFor(n).String() + "\n"

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.file != nil && c.size > 0 && c.size+int64(len(line)) > c.maxBytes {
		if err := c.rotate(); err != nil {
			return err
		}
	}
	if err := c.open(); err != nil {
		return err
	}

	written, err := c.file.WriteString(line)
	c.size += int64(written)
	if err != nil {
		return fmt.Errorf("failed to write notification: %w", err)
	}
	return c.file.Sync()
}

// open opens the log for appending. A file already over the limit is
// rotated first.
func (c *logNotificationChannel) open() error {
	if c.file != nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(c.config.Path), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	if info, err := os.Stat(c.config.Path); err == nil && info.Size() >= c.maxBytes {
		if err := os.Rename(c.config.Path, c.config.Path+rotatedSuffix); err != nil {
			return fmt.Errorf("failed to rotate log file: %w", err)
		}
	}

	file, err := os.OpenFile(c.config.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return err
	}
	c.file = file
	c.size = info.Size()
	return nil
}

// rotate closes the open log and moves it over the backup
func (c *logNotificationChannel) rotate() error {
	_ = c.file.Close()
	c.file = nil
	c.size = 0
	if err := os.Rename(c.config.Path, c.config.Path+rotatedSuffix); err != nil {
		return fmt.Errorf("failed to rotate log file: %w", err)
	}
	return nil
}

// Close closes the log file
func (c *logNotificationChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.file == nil {
		return nil
	}
	err := c.file.Close()
	c.file = nil
	return err
}

// ReadLog returns the logged notifications, oldest first, including those in
// the rotated backup. When types are given only entries of those types are
// returned. Lines that do not parse are skipped.
func ReadLog(path string, types ...NotificationType) ([]LogEntry, error) {
	var entries []LogEntry
	for _, p := range []string{path + rotatedSuffix, path} {
		if err := readLogFile(p, func(e LogEntry) {
			if len(types) == 0 || slices.Contains(types, e.Type) {
				entries = append(entries, e)
			}
		}); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

func readLogFile(path string, fn func(LogEntry)) error {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if e, err := ParseLogEntry(scanner.Text()); err == nil {
			fn(e)
		}
	}
	return scanner.Err()
}

// ClearLog empties the log and removes its rotated backup. The log is
// truncated rather than removed so a running UI keeps appending to it.
func ClearLog(path string) error {
	if err := os.Truncate(path, 0); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if err := os.Remove(path + rotatedSuffix); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// ParseType validates a notification type name as written in config
func ParseType(s string) (NotificationType, error) {
	t := NotificationType(strings.ToLower(strings.TrimSpace(s)))
	switch t {
	case NotifyFetchError, NotifyPermissionDenied, NotifyStaleResults, NotifyTest:
		return t, nil
	}
	return "", fmt.Errorf("unknown notification type %q", s)
}
