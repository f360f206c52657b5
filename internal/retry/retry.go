// Package retry provides a bounded retry state machine with a fixed delay
// between attempts.
package retry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"swood/internal/clock"
)

// ErrExhausted is returned by Machine.Err when every attempt failed without
// recording an error.
var ErrExhausted = errors.New("fetch failed")

// Policy holds the attempt budget and delay for a Machine.
type Policy struct {
	// MaxAttempts is the total number of attempts, first one included.
	// Default: 3
	MaxAttempts int

	// Delay is the fixed wait between two attempts.
	// Default: 2 seconds
	Delay time.Duration
}

// Delayer is implemented by errors that carry a server-requested wait.
// Fail waits the longer of that wait and the policy delay.
type Delayer interface {
	RetryDelay() time.Duration
}

// DefaultPolicy is used by the POI client.
var DefaultPolicy = Policy{MaxAttempts: 3, Delay: 2 * time.Second}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultPolicy.MaxAttempts
	}
	if p.Delay < 0 {
		p.Delay = 0
	}
	return p
}

// State is the current state of a Machine.
type State int

const (
	// StateReady means an attempt may start.
	StateReady State = iota
	// StateRunning means an attempt is in progress.
	StateRunning
	// StateWaiting means the machine is sleeping before the next attempt.
	StateWaiting
	// StateSucceeded is terminal: an attempt succeeded.
	StateSucceeded
	// StateFailed is terminal: the budget is spent or the context ended.
	StateFailed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateWaiting:
		return "waiting"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Machine tracks attempts of a single operation.
//
// Typical use:
//
//	m := retry.NewMachine(policy, clk)
//	for m.Begin() {
//		if err := op(); err != nil {
//			m.Fail(ctx, err)
//			continue
//		}
//		m.Succeed()
//	}
//	return m.Err()
type Machine struct {
	policy  Policy
	clock   clock.Clock
	state   State
	attempt int
	lastErr error
	stats   *Stats
}

// NewMachine creates a machine in StateReady.
func NewMachine(policy Policy, clk clock.Clock) *Machine {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Machine{
		policy: policy.withDefaults(),
		clock:  clk,
		state:  StateReady,
	}
}

// WithStats records attempts and failures into s.
func (m *Machine) WithStats(s *Stats) *Machine {
	m.stats = s
	return m
}

// Begin starts the next attempt. It returns false once the machine is in a
// terminal state.
func (m *Machine) Begin() bool {
	if m.state != StateReady {
		return false
	}
	m.attempt++
	m.state = StateRunning
	if m.stats != nil {
		m.stats.recordAttempt()
	}
	return true
}

// Succeed moves the machine to StateSucceeded.
func (m *Machine) Succeed() {
	if m.state == StateRunning {
		m.state = StateSucceeded
		m.lastErr = nil
	}
}

// Fail records err for the running attempt. When attempts remain it waits
// the policy delay (longer for a Delayer) and returns true; otherwise the
// machine fails and false is returned. A cancelled context during the wait also fails the machine.
func (m *Machine) Fail(ctx context.Context, err error) bool {
	if m.state != StateRunning {
		return false
	}
	if err != nil {
		m.lastErr = err
	}
	if m.stats != nil {
		m.stats.recordFailure()
	}
	if m.attempt >= m.policy.MaxAttempts {
		m.state = StateFailed
		return false
	}

	delay := m.policy.Delay
	var d Delayer
	if errors.As(err, &d) && d.RetryDelay() > delay {
		delay = d.RetryDelay()
	}

	m.state = StateWaiting
	if werr := m.clock.Sleep(ctx, delay); werr != nil {
		m.state = StateFailed
		m.lastErr = fmt.Errorf("retry interrupted after attempt %d: %w", m.attempt, werr)
		return false
	}
	m.state = StateReady
	return true
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// Attempt returns the 1-based number of the current or last attempt.
func (m *Machine) Attempt() int { return m.attempt }

// MaxAttempts returns the attempt budget.
func (m *Machine) MaxAttempts() int { return m.policy.MaxAttempts }

// Err returns nil after success, the last recorded error after failure, or
// ErrExhausted when the machine failed without any recorded error.
func (m *Machine) Err() error {
	switch m.state {
	case StateSucceeded:
		return nil
	case StateFailed:
		if m.lastErr != nil {
			return m.lastErr
		}
		return ErrExhausted
	default:
		return m.lastErr
	}
}

// Stats tracks attempt counters across machines.
type Stats struct {
	mu            sync.RWMutex
	attempts      int64
	failures      int64
	lastFailureAt time.Time
}

// NewStats creates a new Stats instance.
func NewStats() *Stats {
	return &Stats{}
}

func (s *Stats) recordAttempt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
}

func (s *Stats) recordFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures++
	s.lastFailureAt = time.Now()
}

// Attempts returns the total number of attempts started.
func (s *Stats) Attempts() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.attempts
}

// Failures returns the total number of failed attempts.
func (s *Stats) Failures() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.failures
}

// LastFailureTime returns the wall time of the last failed attempt.
func (s *Stats) LastFailureTime() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastFailureAt
}
