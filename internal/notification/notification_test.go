package notification_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"swood/internal/notification"
)

func allOSTypes() notification.OSNotificationConfig {
	return notification.OSNotificationConfig{
		Enabled:            true,
		OnFetchError:       true,
		OnPermissionDenied: true,
		OnStaleResults:     true,
	}
}

// =============================================================================
// Unit Tests - OS Notification (with mock command executor)
// =============================================================================

// TestOSNotificationLinux tests that OS notification is sent via notify-send on Linux
func TestOSNotificationLinux(t *testing.T) {
	var executedCmd string
	var executedArgs []string

	mock := &notification.MockCommandExecutor{
		ExecuteFunc: func(cmd string, args ...string) error {
			executedCmd = cmd
			executedArgs = args
			return nil
		},
	}

	cfg := allOSTypes()
	channel := notification.NewOSNotificationChannel(&cfg,
		notification.WithCommandExecutor(mock),
		notification.WithPlatform("linux"),
	)

	err := channel.Send(notification.Notification{
		Type:      notification.NotifyFetchError,
		Title:     "Could not load restaurants",
		Message:   "overpass temporarily unavailable (HTTP 503)",
		Timestamp: time.Now(),
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if executedCmd != "notify-send" {
		t.Errorf("expected notify-send command, got %q", executedCmd)
	}

	argsStr := strings.Join(executedArgs, " ")
	for _, want := range []string{"--urgency=critical", "Could not load restaurants", "HTTP 503"} {
		if !strings.Contains(argsStr, want) {
			t.Errorf("expected args to contain %q, got %v", want, executedArgs)
		}
	}
}

// TestOSNotificationDarwin tests that OS notification is sent via osascript on macOS
func TestOSNotificationDarwin(t *testing.T) {
	var executedCmd string
	var executedArgs []string

	mock := &notification.MockCommandExecutor{
		ExecuteFunc: func(cmd string, args ...string) error {
			executedCmd = cmd
			executedArgs = args
			return nil
		},
	}

	cfg := allOSTypes()
	channel := notification.NewOSNotificationChannel(&cfg,
		notification.WithCommandExecutor(mock),
		notification.WithPlatform("darwin"),
	)

	err := channel.Send(notification.Notification{
		Type:      notification.NotifyPermissionDenied,
		Title:     "Location",
		Message:   `Access "denied"`,
		Timestamp: time.Now(),
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if executedCmd != "osascript" {
		t.Errorf("expected osascript command, got %q", executedCmd)
	}
	argsStr := strings.Join(executedArgs, " ")
	if !strings.Contains(argsStr, "display notification") {
		t.Errorf("expected args to contain 'display notification', got %v", executedArgs)
	}
	if !strings.Contains(argsStr, `Access \"denied\"`) {
		t.Errorf("expected escaped quotes, got %v", executedArgs)
	}
}

func TestOSNotificationUnsupportedPlatform(t *testing.T) {
	cfg := allOSTypes()
	channel := notification.NewOSNotificationChannel(&cfg,
		notification.WithCommandExecutor(&notification.MockCommandExecutor{}),
		notification.WithPlatform("plan9"),
	)

	if err := channel.Send(notification.Notification{Type: notification.NotifyTest}); err == nil {
		t.Error("expected error for unsupported platform")
	}
}

// =============================================================================
// Unit Tests - Log Notification
// =============================================================================

// TestLogNotification tests that notifications are written to log file with correct format
func TestLogNotification(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "notifications.log")

	channel := notification.NewLogNotificationChannel(&notification.LogNotificationConfig{
		Enabled:   true,
		Path:      logPath,
		MaxSizeMB: 10,
	})
	defer func() { _ = channel.Close() }()

	err := channel.Send(notification.Notification{
		Type:      notification.NotifyStaleResults,
		Title:     "Offline",
		Message:   "Showing 12 cached restaurants",
		Timestamp: time.Date(2026, 1, 16, 10, 30, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	content := string(data)

	want := "2026-01-16T10:30:00Z [STALE_RESULTS] Offline: Showing 12 cached restaurants"
	if !strings.Contains(content, want) {
		t.Errorf("expected log line %q, got:\n%s", want, content)
	}
}

func TestReadAndClearLog(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "notifications.log")

	entries, err := notification.ReadLog(logPath)
	if err != nil || entries != nil {
		t.Fatalf("missing log should read as empty, got %v, %v", entries, err)
	}
	if err := notification.ClearLog(logPath); err != nil {
		t.Fatalf("clearing a missing log should succeed: %v", err)
	}

	channel := notification.NewLogNotificationChannel(&notification.LogNotificationConfig{Enabled: true, Path: logPath})
	for i := 0; i < 3; i++ {
		_ = channel.Send(notification.Notification{Type: notification.NotifyFetchError, Message: "multi\nline", Timestamp: time.Now()})
	}
	_ = channel.Close()

	entries, err = notification.ReadLog(logPath)
	if err != nil {
		t.Fatalf("ReadLog error: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d: %v", len(entries), entries)
	}

	if err := notification.ClearLog(logPath); err != nil {
		t.Fatalf("ClearLog error: %v", err)
	}
	entries, _ = notification.ReadLog(logPath)
	if len(entries) != 0 {
		t.Errorf("expected empty log after clear, got %v", entries)
	}
}

// TestLogRotatesWhileOpen verifies a channel that stays open rotates once the
// next line would pass the size limit
func TestLogRotatesWhileOpen(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "notifications.log")
	channel := notification.NewLogNotificationChannel(&notification.LogNotificationConfig{Enabled: true, Path: logPath, MaxSizeMB: 1})
	defer func() { _ = channel.Close() }()

	send := func(msg string) {
		t.Helper()
		if err := channel.Send(notification.Notification{Type: notification.NotifyFetchError, Message: msg, Timestamp: time.Now()}); err != nil {
			t.Fatalf("Send failed: %v", err)
		}
	}
	send("first")
	big := strings.Repeat("x", 200*1024)
	for i := 0; i < 8; i++ {
		send(big)
	}

	if _, err := os.Stat(logPath + ".old"); err != nil {
		t.Fatalf("expected a rotated backup: %v", err)
	}
	info, err := os.Stat(logPath)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() >= 1024*1024 {
		t.Errorf("current log should have been restarted, size %d", info.Size())
	}

	if err := notification.ClearLog(logPath); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(logPath + ".old"); !os.IsNotExist(err) {
		t.Errorf("ClearLog should remove the backup, stat err %v", err)
	}
}

// TestLogRotatesOnOpen verifies an oversized log is moved aside before writing
func TestLogRotatesOnOpen(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "notifications.log")
	old := "2026-01-16T10:30:00Z [STALE_RESULTS] Showing saved restaurants: old\n"
	big := strings.Repeat(old, 1024*1024/len(old)+1)
	if err := os.WriteFile(logPath, []byte(big), 0644); err != nil {
		t.Fatal(err)
	}

	channel := notification.NewLogNotificationChannel(&notification.LogNotificationConfig{Enabled: true, Path: logPath, MaxSizeMB: 1})
	if err := channel.Send(notification.Notification{Type: notification.NotifyFetchError, Message: "new", Timestamp: time.Now()}); err != nil {
		t.Fatal(err)
	}
	_ = channel.Close()

	current, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Count(string(current), "\n") != 1 {
		t.Errorf("expected only the new line in the current log, got %d bytes", len(current))
	}

	// Reading includes the backup, oldest first
	entries, err := notification.ReadLog(logPath, notification.NotifyFetchError)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Text != "new" {
		t.Errorf("expected the new fetch error only, got %v", entries)
	}
	all, _ := notification.ReadLog(logPath)
	if len(all) != strings.Count(big, "\n")+1 || all[len(all)-1].Type != notification.NotifyFetchError {
		t.Errorf("expected backup entries followed by the new one, got %d entries", len(all))
	}
}

// TestLogTypeFilter verifies only configured types reach the log
func TestLogTypeFilter(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "notifications.log")
	channel := notification.NewLogNotificationChannel(&notification.LogNotificationConfig{
		Enabled: true,
		Path:    logPath,
		Types:   []notification.NotificationType{notification.NotifyStaleResults},
	})
	_ = channel.Send(notification.Notification{Type: notification.NotifyFetchError, Message: "dropped", Timestamp: time.Now()})
	_ = channel.Send(notification.Notification{Type: notification.NotifyStaleResults, Title: "Showing saved restaurants", Message: "kept", Timestamp: time.Now()})
	_ = channel.Close()

	entries, err := notification.ReadLog(logPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Text != "Showing saved restaurants: kept" {
		t.Errorf("expected only the stale results entry, got %v", entries)
	}
}

func TestParseLogEntry(t *testing.T) {
	e, err := notification.ParseLogEntry("2026-01-16T10:30:00Z [PERMISSION_DENIED] Location permission denied: grant access")
	if err != nil {
		t.Fatal(err)
	}
	if e.Type != notification.NotifyPermissionDenied || e.Text != "Location permission denied: grant access" {
		t.Errorf("unexpected entry %+v", e)
	}
	if !e.Time.Equal(time.Date(2026, 1, 16, 10, 30, 0, 0, time.UTC)) {
		t.Errorf("Time = %v", e.Time)
	}
	if e.String() != "2026-01-16T10:30:00Z [PERMISSION_DENIED] Location permission denied: grant access" {
		t.Errorf("String() = %q", e.String())
	}

	for _, bad := range []string{"", "no brackets here", "yesterday [FETCH_ERROR] x"} {
		if _, err := notification.ParseLogEntry(bad); err == nil {
			t.Errorf("ParseLogEntry(%q) should fail", bad)
		}
	}

	if _, err := notification.ParseType("Stale_Results"); err != nil {
		t.Errorf("ParseType should accept any case: %v", err)
	}
	if _, err := notification.ParseType("lunch"); err == nil {
		t.Error("ParseType should reject unknown types")
	}
}

// =============================================================================
// Unit Tests - Configuration
// =============================================================================

// TestNotificationConfig tests that configuration enables/disables notification channels
func TestNotificationConfig(t *testing.T) {
	tests := []struct {
		name             string
		osEnabled        bool
		logEnabled       bool
		expectedChannels int
	}{
		{"both enabled", true, true, 2},
		{"only os enabled", true, false, 1},
		{"only log enabled", false, true, 1},
		{"both disabled", false, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			osCfg := allOSTypes()
			osCfg.Enabled = tt.osEnabled
			cfg := &notification.Config{
				Enabled:        true,
				OSNotification: osCfg,
				LogNotification: notification.LogNotificationConfig{
					Enabled: tt.logEnabled,
					Path:    filepath.Join(t.TempDir(), "notifications.log"),
				},
			}

			manager, err := notification.NewManager(cfg, notification.WithCommandExecutor(&notification.MockCommandExecutor{}))
			if err != nil {
				t.Fatalf("failed to create manager: %v", err)
			}
			defer func() { _ = manager.Close() }()

			if got := manager.ChannelCount(); got != tt.expectedChannels {
				t.Errorf("expected %d channels, got %d", tt.expectedChannels, got)
			}
		})
	}
}

// TestNotificationDisabled tests that when notifications are disabled, nothing is sent
func TestNotificationDisabled(t *testing.T) {
	var called bool
	manager, err := notification.NewManager(&notification.Config{Enabled: false},
		notification.WithSendCallback(func(notification.Notification) { called = true }))
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}
	defer func() { _ = manager.Close() }()

	if err := manager.Send(notification.Notification{Type: notification.NotifyTest, Message: "x"}); err != nil {
		t.Errorf("expected no error for disabled notifications, got %v", err)
	}
	if called {
		t.Error("disabled manager should not dispatch")
	}
}

func TestManagerStampsTimestamp(t *testing.T) {
	var got notification.Notification
	manager, _ := notification.NewManager(&notification.Config{Enabled: true},
		notification.WithSendCallback(func(n notification.Notification) { got = n }))

	_ = manager.Send(notification.Notification{Type: notification.NotifyTest})
	if got.Timestamp.IsZero() {
		t.Error("expected manager to stamp a timestamp")
	}
}

func TestCloseWaitsForAsyncSends(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "notifications.log")
	manager, err := notification.NewManager(&notification.Config{
		Enabled:         true,
		LogNotification: notification.LogNotificationConfig{Enabled: true, Path: logPath},
	})
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	for i := 0; i < 5; i++ {
		manager.SendAsync(notification.Notification{Type: notification.NotifyFetchError, Title: "Fetch", Message: "offline"})
	}
	if err := manager.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	lines, err := notification.ReadLog(logPath)
	if err != nil {
		t.Fatalf("ReadLog failed: %v", err)
	}
	if len(lines) != 5 {
		t.Errorf("expected 5 log lines after Close, got %d", len(lines))
	}
}

// TestNotificationTypeFiltering tests that notification types are filtered based on config
func TestNotificationTypeFiltering(t *testing.T) {
	var sent []notification.Notification

	channel := notification.NewOSNotificationChannel(
		&notification.OSNotificationConfig{
			Enabled:            true,
			OnFetchError:       true,
			OnPermissionDenied: true,
			OnStaleResults:     false,
		},
		notification.WithCommandExecutor(&notification.MockCommandExecutor{}),
		notification.WithPlatform("linux"),
		notification.WithSendCallback(func(n notification.Notification) {
			sent = append(sent, n)
		}),
	)

	_ = channel.Send(notification.Notification{Type: notification.NotifyStaleResults, Message: "stale"})
	_ = channel.Send(notification.Notification{Type: notification.NotifyFetchError, Message: "failed"})

	if len(sent) != 1 {
		t.Fatalf("expected 1 notification sent, got %d", len(sent))
	}
	if sent[0].Type != notification.NotifyFetchError {
		t.Errorf("expected fetch_error to be sent, got %s", sent[0].Type)
	}
}

func TestRecorder(t *testing.T) {
	r := notification.NewRecorder()
	r.SendAsync(notification.Notification{Type: notification.NotifyFetchError})
	_ = r.Send(notification.Notification{Type: notification.NotifyPermissionDenied})

	sent := r.Sent()
	if len(sent) != 2 || sent[1].Type != notification.NotifyPermissionDenied {
		t.Errorf("unexpected recorded notifications: %+v", sent)
	}
}
