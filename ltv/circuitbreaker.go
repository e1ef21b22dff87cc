package ltv

import (
	"sync"
	"time"
)

// State is one of the three circuit breaker states from the validation
// session's fetcher contract.
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
	default:
		return "unknown"
	}
}

// CircuitBreaker guards a single upstream URL against repeated failing
// calls. It tracks state transitions itself; callers wrap a fallible
// operation with Execute and never touch the state directly.
//
// The zero value is not usable; construct with NewCircuitBreaker.
type CircuitBreaker struct {
	FailureThreshold int
	ResetTimeout     time.Duration
	SuccessThreshold int

	mu          sync.Mutex
	state       State
	failures    int
	successes   int
	openedAt    time.Time
	halfOpenHit bool
}

// NewCircuitBreaker returns a breaker with the default parameters:
// failure threshold 5, reset timeout 30s, success threshold 1.
func NewCircuitBreaker() *CircuitBreaker {
	return &CircuitBreaker{
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
		SuccessThreshold: 1,
		state:            Closed,
	}
}

// State returns the breaker's current state, resolving an expired OPEN
// window to HALF_OPEN as a side effect, matching the "next call after
// reset_timeout transitions to half-open" rule.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.maybeExpireOpen()
	return cb.state
}

func (cb *CircuitBreaker) maybeExpireOpen() {
	if cb.state == Open && time.Since(cb.openedAt) >= cb.ResetTimeout {
		cb.state = HalfOpen
		cb.halfOpenHit = false
	}
}

// Allow reports whether a call may proceed right now. It does not itself
// record the outcome; pair with OnSuccess/OnFailure, or just use Execute.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.maybeExpireOpen()

	switch cb.state {
	case Closed:
		return true
	case HalfOpen:
		if cb.halfOpenHit {
			return false
		}
		cb.halfOpenHit = true
		return true
	default: // Open
		return false
	}
}

// OnSuccess records a successful call.
func (cb *CircuitBreaker) OnSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case HalfOpen:
		cb.successes++
		if cb.successes >= cb.SuccessThreshold {
			cb.state = Closed
			cb.failures = 0
			cb.successes = 0
		}
	case Closed:
		cb.failures = 0
	}
}

// OnFailure records a failed call.
func (cb *CircuitBreaker) OnFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case HalfOpen:
		cb.state = Open
		cb.openedAt = time.Now()
		cb.successes = 0
	case Closed:
		cb.failures++
		if cb.failures >= cb.FailureThreshold {
			cb.state = Open
			cb.openedAt = time.Now()
		}
	}
}

// ErrCircuitOpen is returned by Execute when the breaker is open (or the
// single half-open probe slot is already taken).
type ErrCircuitOpen struct{}

func (ErrCircuitOpen) Error() string { return "ltv: circuit breaker open, failing fast" }

// Execute runs fn if the breaker allows it, recording the outcome.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.Allow() {
		return ErrCircuitOpen{}
	}
	err := fn()
	if err != nil {
		cb.OnFailure()
		return err
	}
	cb.OnSuccess()
	return nil
}

// breakerRegistry is the per-URL map of circuit breakers shared by the
// default fetcher. It is the one piece of explicitly shared mutable
// state in the default wiring (per the concurrency model), so every
// access goes through this mutex.
type breakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

func newBreakerRegistry() *breakerRegistry {
	return &breakerRegistry{breakers: make(map[string]*CircuitBreaker)}
}

func (r *breakerRegistry) get(url string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	cb, ok := r.breakers[url]
	if !ok {
		cb = NewCircuitBreaker()
		r.breakers[url] = cb
	}
	return cb
}
