package probe

import (
	"errors"
	"sync"
	"time"
)

// ErrBreakerOpen is returned without touching the endpoint while the
// breaker is open.
var ErrBreakerOpen = errors.New("circuit breaker open")

// Breaker states.
const (
	StateClosed   = "CLOSED"
	StateOpen     = "OPEN"
	StateHalfOpen = "HALF_OPEN"
)

// Breaker is a failure-detection state machine shared by all probe
// calls to one endpoint. It opens after a threshold of consecutive
// failures and lets a single trial call through once the reset timeout
// has passed.
type Breaker struct {
	mu           sync.Mutex
	name         string
	failureCount int
	threshold    int
	lastFailure  time.Time
	resetTimeout time.Duration
	state        string
	now          func() time.Time
}

// NewBreaker creates a closed breaker.
func NewBreaker(name string, threshold int, resetTimeout time.Duration) *Breaker {
	return &Breaker{
		name:         name,
		threshold:    threshold,
		resetTimeout: resetTimeout,
		state:        StateClosed,
		now:          time.Now,
	}
}

// WithClock overrides the clock for deterministic testing.
func (b *Breaker) WithClock(now func() time.Time) *Breaker {
	b.now = now
	return b
}

// Allow reports whether a call may proceed, transitioning an expired
// open breaker to half-open.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen {
		if b.now().Sub(b.lastFailure) > b.resetTimeout {
			b.state = StateHalfOpen
			return true
		}
		return false
	}
	return true
}

// Success records a successful call and closes the breaker.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failureCount = 0
}

// Failure records a failed call, opening the breaker at the threshold.
// A failure in half-open state reopens immediately.
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failureCount++
	b.lastFailure = b.now()
	if b.state == StateHalfOpen || b.failureCount >= b.threshold {
		b.state = StateOpen
	}
}

// State returns the current state.
func (b *Breaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
