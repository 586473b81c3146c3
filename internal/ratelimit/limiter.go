// Package ratelimit provides a process-local sliding-window request
// limiter used to gate public message creation. It is best-effort abuse
// prevention, not a security boundary: state is lost on restart and not
// shared between instances.
package ratelimit

import (
	"sync"
	"time"
)

// Result tells the caller whether the request may proceed and, if not,
// how long to wait before retrying.
type Result struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

type window struct {
	count   int
	resetAt time.Time
}

// Limiter bounds how many times an identifier may trigger a protected
// operation within a rolling window.
type Limiter struct {
	mu        sync.Mutex
	windows   map[string]*window
	windowDur time.Duration
	max       int
	lastSweep time.Time
	now       func() time.Time
}

// New creates a limiter allowing max requests per identifier per window.
func New(windowDur time.Duration, max int) *Limiter {
	return &Limiter{
		windows:   make(map[string]*window),
		windowDur: windowDur,
		max:       max,
		now:       time.Now,
	}
}

// Allow records a request for the identifier and reports whether it fits
// in the current window. Expired windows reset transparently; expired
// entries for other identifiers are swept lazily so memory stays bounded
// without a background goroutine.
func (l *Limiter) Allow(identifier string) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)

	w, ok := l.windows[identifier]
	if !ok || now.After(w.resetAt) {
		l.windows[identifier] = &window{count: 1, resetAt: now.Add(l.windowDur)}
		return Result{Allowed: true, Remaining: l.max - 1}
	}

	if w.count >= l.max {
		return Result{Allowed: false, RetryAfter: w.resetAt.Sub(now)}
	}

	w.count++

	return Result{Allowed: true, Remaining: l.max - w.count}
}

// sweep drops expired windows at most once per window duration.
// Caller holds the lock.
func (l *Limiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.windowDur {
		return
	}
	l.lastSweep = now

	for id, w := range l.windows {
		if now.After(w.resetAt) {
			delete(l.windows, id)
		}
	}
}
