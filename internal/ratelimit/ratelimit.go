// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ratelimit gates outbound completion requests with a sliding
// window. Admission is checked before any other work happens on a
// request; a refused request is never queued and never counts against
// the window.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter admits at most ceiling requests within any sliding window.
// The zero value is not usable; construct with New.
type Limiter struct {
	mu sync.Mutex

	// ceiling is the maximum number of admissions per window.
	// A ceiling of zero refuses everything.
	ceiling int

	// window is the span the ceiling applies to.
	window time.Duration

	// admitted holds the timestamps of admitted requests, oldest
	// first. Entries are appended in time order, so expired entries
	// always form a prefix.
	admitted []time.Time

	// refused counts refusals since construction.
	refused uint64

	// now is swapped out in tests.
	now func() time.Time
}

// New creates a Limiter allowing ceiling admissions per window.
func New(ceiling int, window time.Duration) *Limiter {
	return &Limiter{
		ceiling: ceiling,
		window:  window,
		now:     time.Now,
	}
}

// TryAdmit reports whether a request may proceed right now. An
// admitted request is recorded against the window; a refusal records
// nothing, so refused requests do not extend the saturated period.
func (l *Limiter) TryAdmit() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.pruneLocked(now)

	if len(l.admitted) >= l.ceiling {
		l.refused++
		return false
	}

	l.admitted = append(l.admitted, now)
	return true
}

// Remaining returns how many admissions are left in the current window.
func (l *Limiter) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.pruneLocked(l.now())

	remaining := l.ceiling - len(l.admitted)
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

// Snapshot is a point-in-time view of the limiter for status display.
type Snapshot struct {
	Ceiling    int           `json:"ceiling"`
	Window     time.Duration `json:"window"`
	InWindow   int           `json:"in_window"`
	Remaining  int           `json:"remaining"`
	Refused    uint64        `json:"refused"`
	RetryAfter time.Duration `json:"retry_after"`
}

// Snapshot returns the current limiter state. RetryAfter is how long
// until the next admission becomes possible, or zero when the window
// is not saturated.
func (l *Limiter) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.pruneLocked(now)

	s := Snapshot{
		Ceiling:  l.ceiling,
		Window:   l.window,
		InWindow: len(l.admitted),
		Refused:  l.refused,
	}
	s.Remaining = s.Ceiling - s.InWindow
	if s.Remaining < 0 {
		s.Remaining = 0
	}
	if s.Remaining == 0 && len(l.admitted) > 0 {
		s.RetryAfter = l.window - now.Sub(l.admitted[0])
		if s.RetryAfter < 0 {
			s.RetryAfter = 0
		}
	}
	return s
}

// pruneLocked drops admissions that have aged out of the window.
// Caller must hold l.mu.
func (l *Limiter) pruneLocked(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.admitted) && !l.admitted[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.admitted = append(l.admitted[:0], l.admitted[i:]...)
	}
}
