// Package ratelimit interprets rate limit responses (HTTP 429 with an
// optional Retry-After header) from the POI service.
package ratelimit

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

// MaxWait caps a server-requested wait between two attempts.
const MaxWait = 30 * time.Second

// ParseRetryAfter parses the Retry-After header value relative to now.
// It supports both seconds format (integer) and HTTP-date format.
// Returns nil if the value is invalid or empty.
func ParseRetryAfter(value string, now time.Time) *time.Duration {
	if value == "" {
		return nil
	}

	// Try parsing as seconds (integer)
	if seconds, err := strconv.ParseInt(value, 10, 64); err == nil {
		if seconds < 0 {
			return nil
		}
		d := time.Duration(seconds) * time.Second
		return &d
	}

	// Try parsing as HTTP-date
	if t, err := http.ParseTime(value); err == nil {
		d := t.Sub(now)
		if d < 0 {
			d = 0
		}
		return &d
	}

	return nil
}

// Wait returns the delay to honor for a Retry-After hint, capped at MaxWait.
// A missing hint means no extra wait.
func Wait(hint *time.Duration) time.Duration {
	if hint == nil {
		return 0
	}
	if *hint > MaxWait {
		return MaxWait
	}
	return *hint
}

// Stats tracks rate limit events for the POI service.
type Stats struct {
	mu              sync.RWMutex
	rateLimitCount  int64
	lastRateLimitAt time.Time
}

// NewStats creates a new Stats instance.
func NewStats() *Stats {
	return &Stats{}
}

// RecordRateLimit records a rate limit event seen at the given time.
func (s *Stats) RecordRateLimit(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rateLimitCount++
	s.lastRateLimitAt = at
}

// RateLimitCount returns the total number of rate limit events.
func (s *Stats) RateLimitCount() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rateLimitCount
}

// LastRateLimitTime returns the time of the last rate limit event.
func (s *Stats) LastRateLimitTime() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRateLimitAt
}
