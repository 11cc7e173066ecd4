package security

import (
	"sync"
	"time"
)

// RateLimiter enforces a sliding-window request cap per sender.
//
// Timestamps for each sender are kept in arrival order and pruned lazily on
// every check, so memory stays bounded by the number of senders active
// within one window. Safe for concurrent use.
type RateLimiter struct {
	mu      sync.Mutex
	window  time.Duration
	max     int
	entries map[string][]time.Time
	now     func() time.Time
}

// NewRateLimiter creates a limiter allowing max requests per window.
func NewRateLimiter(window time.Duration, max int) *RateLimiter {
	return &RateLimiter{
		window:  window,
		max:     max,
		entries: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// Allow reports whether the sender may make another request now, recording
// the request when allowed. Eviction and append happen under one lock so
// concurrent checks for the same sender cannot lose updates.
func (l *RateLimiter) Allow(sender string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	windowStart := now.Add(-l.window)

	// Drop senders whose newest timestamp fell out of the window. Amortised
	// cleanup keeps the table from growing with one-off senders.
	for key, timestamps := range l.entries {
		if len(timestamps) == 0 || timestamps[len(timestamps)-1].Before(windowStart) {
			delete(l.entries, key)
		}
	}

	timestamps := l.entries[sender]
	kept := timestamps[:0]
	for _, ts := range timestamps {
		if ts.After(windowStart) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= l.max {
		l.entries[sender] = kept
		return false
	}

	l.entries[sender] = append(kept, now)
	return true
}

// ActiveSenders returns the number of senders currently tracked.
func (l *RateLimiter) ActiveSenders() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
