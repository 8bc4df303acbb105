// Package breaker guards calls to a degraded upstream dependency.
//
// State is process-local and not persisted: each worker process detects an
// outage independently, which is acceptable because its own calls still fail
// fast once its local threshold trips.
package breaker

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrOpen is returned by Check while the breaker is open and the reset
// timeout has not elapsed. It is fast and makes no network call; callers
// treat it as retryable at the job level but must not consume a retry
// attempt against the guarded target.
var ErrOpen = errors.New("upstream unavailable: circuit open")

// State is the breaker state machine position.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Clock abstracts time so tests can drive transitions without real timers.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns a Clock backed by time.Now.
func SystemClock() Clock { return systemClock{} }

// Config tunes a breaker instance.
type Config struct {
	// FailureThreshold is the consecutive failure count that opens the
	// breaker.
	FailureThreshold int
	// ResetTimeout is how long the breaker stays open before allowing a
	// single trial call through.
	ResetTimeout time.Duration
	// Clock defaults to SystemClock.
	Clock Clock
}

// Breaker is a three-state circuit breaker. One instance guards one
// upstream target within one worker process. All methods are safe for
// concurrent use.
type Breaker struct {
	mu sync.Mutex

	state            State
	failureCount     int
	lastFailureTime  time.Time
	failureThreshold int
	resetTimeout     time.Duration
	clock            Clock
}

// New creates a breaker in the closed state.
func New(cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 60 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock()
	}
	return &Breaker{
		state:            Closed,
		failureThreshold: cfg.FailureThreshold,
		resetTimeout:     cfg.ResetTimeout,
		clock:            cfg.Clock,
	}
}

// Check gates an attempt. While open it returns ErrOpen until the reset
// timeout has elapsed since the last failure; the first Check after that
// moves the breaker to half-open and lets exactly one trial call through.
// Further Checks while half-open return ErrOpen until the trial reports
// through OnSuccess or OnFailure, so concurrent callers cannot pile onto a
// recovering target.
func (b *Breaker) Check() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case HalfOpen:
		return fmt.Errorf("%w (trial call in flight)", ErrOpen)
	case Open:
		if b.clock.Now().Sub(b.lastFailureTime) >= b.resetTimeout {
			b.state = HalfOpen
			return nil
		}
		return fmt.Errorf("%w (retry after %s)", ErrOpen, b.resetTimeout)
	default:
		return nil
	}
}

// OnSuccess records a successful call. Success always clears accumulated
// failures and closes the breaker, including from half-open.
func (b *Breaker) OnSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failureCount = 0
	b.state = Closed
}

// OnFailure records a failed call. The breaker opens when the consecutive
// failure count reaches the threshold, when a half-open trial fails, or
// immediately when the caller flags the failure as severe.
func (b *Breaker) OnFailure(severe bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureCount++
	b.lastFailureTime = b.clock.Now()

	if severe || b.state == HalfOpen || b.failureCount >= b.failureThreshold {
		b.state = Open
	}
}

// State returns the current state, accounting for an elapsed reset timeout
// only via Check (reads do not transition).
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// FailureCount returns the consecutive failure count.
func (b *Breaker) FailureCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failureCount
}
