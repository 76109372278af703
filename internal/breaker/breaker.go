// Package breaker implements the per-(protocol,endpoint) circuit
// breaker of spec §4.5: a sliding window over the last 100 outcomes,
// closed/open/half-open states, and a bounded recovery probe.
//
// No circuit-breaker library appears anywhere in the retrieved
// example pack (the closest relatives, cenkalti/backoff and
// golang.org/x/time/rate, cover retry-backoff and token-bucket rate
// limiting respectively, not failure-rate tripping), so this is
// hand-rolled in the same direct, no-framework style the teacher uses
// for its own middleware/ratelimit.go token bucket.
package breaker

import (
	"sync"
	"time"
)

// State is one of the three circuit-breaker states (spec glossary).
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// Config controls a Breaker's trip/recovery behavior, sourced from
// [circuit_breaker] in default.toml.
type Config struct {
	WindowSize       int
	FailureThreshold float64 // fraction of the window, e.g. 0.5
	RecoveryTimeout  time.Duration
	HalfOpenMaxCalls int
}

// DefaultConfig matches the defaults named in spec §4.5 and §6.
func DefaultConfig() Config {
	return Config{
		WindowSize:       100,
		FailureThreshold: 0.5,
		RecoveryTimeout:  60 * time.Second,
		HalfOpenMaxCalls: 1,
	}
}

// Breaker tracks outcomes for a single (protocol, endpoint) pair.
type Breaker struct {
	cfg Config

	mu               sync.Mutex
	outcomes         []bool
	pos              int
	state            State
	openedAt         time.Time
	halfOpenInFlight int
}

func New(cfg Config) *Breaker {
	return &Breaker{
		cfg:      cfg,
		outcomes: make([]bool, cfg.WindowSize),
	}
}

// Allow reports whether a call may proceed. It transitions Open to
// HalfOpen once recoveryTimeout has elapsed, and caps concurrent
// half-open probes at HalfOpenMaxCalls.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true
	case Open:
		if time.Since(b.openedAt) < b.cfg.RecoveryTimeout {
			return false
		}
		b.state = HalfOpen
		b.halfOpenInFlight = 0
		fallthrough
	case HalfOpen:
		if b.halfOpenInFlight >= b.cfg.HalfOpenMaxCalls {
			return false
		}
		b.halfOpenInFlight++
		return true
	}
	return true
}

// Record reports a call's outcome, updating the sliding window and
// possibly transitioning state: a half-open success closes the
// breaker, a half-open failure re-opens it, and a closed breaker whose
// window failure rate reaches FailureThreshold opens.
func (b *Breaker) Record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.outcomes[b.pos] = !success
	b.pos = (b.pos + 1) % len(b.outcomes)

	switch b.state {
	case HalfOpen:
		b.halfOpenInFlight--
		if success {
			b.state = Closed
			b.resetWindow()
		} else {
			b.trip()
		}
	case Closed:
		if b.failureRate() >= b.cfg.FailureThreshold {
			b.trip()
		}
	}
}

func (b *Breaker) trip() {
	b.state = Open
	b.openedAt = time.Now()
}

func (b *Breaker) resetWindow() {
	for i := range b.outcomes {
		b.outcomes[i] = false
	}
	b.pos = 0
}

// failureRate reports the fraction of the last WindowSize outcomes
// that were failures. Unfilled window slots count as successes, so
// the rate is naturally diluted until enough requests have been
// observed to fill the window — matching the "sliding window over the
// last 100 outcomes" semantics of spec §4.5 rather than a noisier
// "rate over however few calls happened so far" estimate.
func (b *Breaker) failureRate() float64 {
	failures := 0
	for _, failed := range b.outcomes {
		if failed {
			failures++
		}
	}
	return float64(failures) / float64(len(b.outcomes))
}

// State returns the breaker's current state, for introspection (admin
// GetMetrics / GetProtocols).
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
