// Package circuitbreaker guards calls to a single flaky upstream.
//
// The breaker starts closed. A run of consecutive failures opens it,
// after which callers are told not to try at all. Once the cooldown
// passes, one probe call is let through; its outcome decides whether
// the breaker closes again or reopens.
package circuitbreaker

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// State is the breaker position.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	}
	return "unknown"
}

var transitions = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "bazaar",
	Subsystem: "circuitbreaker",
	Name:      "transitions_total",
	Help:      "Breaker state transitions by from-state and to-state.",
}, []string{"from", "to"})

func init() {
	prometheus.MustRegister(transitions)
}

// Breaker tracks consecutive failures against one upstream.
type Breaker struct {
	mu        sync.Mutex
	state     State
	failures  int
	openedAt  time.Time
	threshold int
	cooldown  time.Duration
}

// New creates a breaker that opens after threshold consecutive failures
// and allows a probe once cooldown has passed.
func New(threshold int, cooldown time.Duration) *Breaker {
	if threshold < 1 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{threshold: threshold, cooldown: cooldown}
}

// Allow reports whether a call should be attempted now. While open it
// returns false until the cooldown elapses, then moves to half-open and
// admits exactly one probe.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true
	case Open:
		if time.Since(b.openedAt) >= b.cooldown {
			b.moveTo(HalfOpen)
			return true
		}
		return false
	default:
		// A probe is already in flight
		return false
	}
}

// Success records a working call. It closes a half-open breaker and
// clears the failure run.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == HalfOpen {
		b.moveTo(Closed)
	}
	b.failures = 0
}

// Failure records a failed call. A failed probe reopens immediately; a
// run of threshold failures opens a closed breaker.
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	if b.state == HalfOpen {
		b.moveTo(Open)
		return
	}
	if b.state == Closed && b.failures >= b.threshold {
		b.moveTo(Open)
	}
}

// State returns the current position.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// moveTo is called with b.mu held.
func (b *Breaker) moveTo(to State) {
	if b.state == to {
		return
	}
	transitions.WithLabelValues(b.state.String(), to.String()).Inc()
	b.state = to
	if to == Open {
		b.openedAt = time.Now()
	}
}
