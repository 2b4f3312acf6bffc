package handlers

import (
	"strings"
	"sync"
	"time"
)

// attemptLimiter counts attempts per key in fixed windows.
type attemptLimiter interface {
	Allow(key string) bool
}

type windowLimiter struct {
	limit  int
	window time.Duration
	clock  func() time.Time

	mu      sync.Mutex
	windows map[string]attemptWindow
}

type attemptWindow struct {
	count   int
	resetAt time.Time
}

// newWindowLimiter returns nil when limiting is disabled.
func newWindowLimiter(limit int, window time.Duration, clock func() time.Time) attemptLimiter {
	if limit <= 0 || window <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &windowLimiter{
		limit:   limit,
		window:  window,
		clock:   clock,
		windows: make(map[string]attemptWindow),
	}
}

func (l *windowLimiter) Allow(key string) bool {
	key = strings.TrimSpace(key)
	if key == "" {
		key = "anonymous"
	}
	now := l.clock()

	l.mu.Lock()
	defer l.mu.Unlock()

	current, ok := l.windows[key]
	if !ok || !now.Before(current.resetAt) {
		l.evictExpiredLocked(now)
		l.windows[key] = attemptWindow{count: 1, resetAt: now.Add(l.window)}
		return true
	}
	if current.count >= l.limit {
		return false
	}
	current.count++
	l.windows[key] = current
	return true
}

func (l *windowLimiter) evictExpiredLocked(now time.Time) {
	for key, entry := range l.windows {
		if !now.Before(entry.resetAt) {
			delete(l.windows, key)
		}
	}
}
