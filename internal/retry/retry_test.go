package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"swood/internal/clock"
)

// =============================================================================
// Retry State Machine Tests
// =============================================================================

// TestMachineSucceedsFirstAttempt verifies no delay is taken on success
func TestMachineSucceedsFirstAttempt(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	calls := 0

	err := runOp(context.Background(), DefaultPolicy, clk, func(int) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
	if len(clk.Sleeps()) != 0 {
		t.Errorf("expected no sleeps, got %v", clk.Sleeps())
	}
}

// TestMachineExhaustsBudget verifies 3 attempts separated by the fixed delay
func TestMachineExhaustsBudget(t *testing.T) {
	start := time.Unix(1000, 0)
	clk := clock.NewFake(start)
	var attemptTimes []time.Time
	errBusy := errors.New("busy")

	err := runOp(context.Background(), DefaultPolicy, clk, func(int) error {
		attemptTimes = append(attemptTimes, clk.Now())
		return errBusy
	})

	if !errors.Is(err, errBusy) {
		t.Fatalf("expected last error, got: %v", err)
	}
	if len(attemptTimes) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(attemptTimes))
	}
	for i := 1; i < len(attemptTimes); i++ {
		gap := attemptTimes[i].Sub(attemptTimes[i-1])
		if gap < 2*time.Second {
			t.Errorf("gap %d = %v, want >= 2s", i, gap)
		}
	}
	if got := len(clk.Sleeps()); got != 2 {
		t.Errorf("expected 2 sleeps (none after last attempt), got %d", got)
	}
}

// TestMachineRecoversOnSecondAttempt verifies success after one failure
func TestMachineRecoversOnSecondAttempt(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	m := NewMachine(DefaultPolicy, clk)

	for m.Begin() {
		if m.Attempt() == 1 {
			if !m.Fail(context.Background(), errors.New("transient")) {
				t.Fatal("expected a retry after first failure")
			}
			continue
		}
		m.Succeed()
	}

	if m.State() != StateSucceeded {
		t.Errorf("state = %v, want succeeded", m.State())
	}
	if m.Err() != nil {
		t.Errorf("Err() = %v, want nil", m.Err())
	}
	if m.Attempt() != 2 {
		t.Errorf("Attempt() = %d, want 2", m.Attempt())
	}
}

// TestMachineNoRecordedError verifies the generic error when nothing was recorded
func TestMachineNoRecordedError(t *testing.T) {
	m := NewMachine(Policy{MaxAttempts: 1}, clock.NewFake(time.Unix(0, 0)))
	for m.Begin() {
		m.Fail(context.Background(), nil)
	}
	if !errors.Is(m.Err(), ErrExhausted) {
		t.Errorf("Err() = %v, want ErrExhausted", m.Err())
	}
}

// TestMachineCancelledDuringWait verifies context cancellation stops retries
func TestMachineCancelledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := runOp(ctx, DefaultPolicy, clock.NewFake(time.Unix(0, 0)), func(int) error {
		calls++
		return errors.New("down")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

// TestStatsCounts verifies attempt and failure accounting
func TestStatsCounts(t *testing.T) {
	stats := NewStats()
	m := NewMachine(DefaultPolicy, clock.NewFake(time.Unix(0, 0))).WithStats(stats)
	for m.Begin() {
		m.Fail(context.Background(), errors.New("x"))
	}
	if stats.Attempts() != 3 {
		t.Errorf("Attempts() = %d, want 3", stats.Attempts())
	}
	if stats.Failures() != 3 {
		t.Errorf("Failures() = %d, want 3", stats.Failures())
	}
	if stats.LastFailureTime().IsZero() {
		t.Error("LastFailureTime() should be set")
	}
}

func TestStateString(t *testing.T) {
	if StateWaiting.String() != "waiting" {
		t.Errorf("StateWaiting.String() = %q", StateWaiting.String())
	}
	if State(42).String() != "unknown" {
		t.Errorf("State(42).String() = %q", State(42).String())
	}
}

// runOp drives a fresh machine the way the Overpass client does
func runOp(ctx context.Context, policy Policy, clk clock.Clock, op func(attempt int) error) error {
	m := NewMachine(policy, clk)
	for m.Begin() {
		if err := op(m.Attempt()); err != nil {
			m.Fail(ctx, err)
			continue
		}
		m.Succeed()
	}
	return m.Err()
}
