//go:build unix

package shutdown_test

import (
	"context"
	"syscall"
	"testing"
	"time"

	"swood/internal/shutdown"
)

func TestSignalTriggersShutdown(t *testing.T) {
	mgr := shutdown.NewManager(context.Background())
	mgr.HandleSignals()
	defer func() { _ = mgr.Close(context.Background()) }()

	if err := syscall.Kill(syscall.Getpid(), syscall.SIGTERM); err != nil {
		t.Skipf("cannot signal self: %v", err)
	}

	select {
	case <-mgr.Context().Done():
	case <-time.After(2 * time.Second):
		t.Fatal("SIGTERM should trigger shutdown")
	}
}
