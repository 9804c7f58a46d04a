package keys

import (
	"sync"
	"time"
)

// Limiter enforces a per-credential requests-per-minute cap with a fixed
// window aligned to the wall-clock minute. A short burst straddling a
// window edge can briefly exceed the nominal rate; the monthly quota is
// the hard ceiling, this only shields the feed from tight loops.
type Limiter struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

type window struct {
	start time.Time
	count int
}

// NewLimiter creates an empty limiter.
func NewLimiter() *Limiter {
	return &Limiter{
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// Allow records one request for keyID and reports whether it fits within
// rpm for the current minute. rpm <= 0 means unlimited.
func (l *Limiter) Allow(keyID string, rpm int) bool {
	if rpm <= 0 {
		return true
	}

	now := l.now()
	minute := now.Truncate(time.Minute)

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[keyID]
	if !ok || w.start.Before(minute) {
		l.windows[keyID] = &window{start: minute, count: 1}
		if len(l.windows) > 10_000 {
			l.pruneLocked(minute)
		}
		return true
	}

	if w.count >= rpm {
		return false
	}
	w.count++
	return true
}

// pruneLocked drops windows from past minutes. Caller holds mu.
func (l *Limiter) pruneLocked(minute time.Time) {
	for k, w := range l.windows {
		if w.start.Before(minute) {
			delete(l.windows, k)
		}
	}
}
