// Package resilience guards calls to the inference backend: a circuit
// breaker that fails fast while the backend is down, and a bounded retry
// for transient transport errors.
package resilience

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	apperrors "github.com/GriffinCanCode/good-listener/backend/audio/internal/errors"
)

// State represents circuit breaker state.
type State uint32

const (
	Closed   State = iota // calls flow
	Open                  // calls fail fast
	HalfOpen              // one probe at a time
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	}
	return "unknown"
}

// ErrOpen is returned without calling the backend while the circuit is open.
var ErrOpen = apperrors.New(apperrors.Unavailable, "circuit breaker open")

// Breaker is a lock-free circuit breaker.
type Breaker struct {
	cfg           Config
	state         atomic.Uint32
	failures      atomic.Int32
	successes     atomic.Int32
	probing       atomic.Bool
	openedAt      atomic.Int64 // unix nano
	onStateChange func(from, to State)
}

// New creates a breaker with cfg.
func New(cfg Config) *Breaker {
	b := &Breaker{cfg: cfg.withDefaults()}
	b.state.Store(uint32(Closed))
	return b
}

// WithHook sets a state change callback.
func (b *Breaker) WithHook(fn func(from, to State)) *Breaker {
	b.onStateChange = fn
	return b
}

// Allow reports whether a call may proceed. In half-open state only one
// probe is admitted until it reports back.
func (b *Breaker) Allow() error {
	switch State(b.state.Load()) {
	case Open:
		if time.Since(time.Unix(0, b.openedAt.Load())) < b.cfg.ResetTimeout {
			return ErrOpen
		}
		b.transition(HalfOpen)
		fallthrough
	case HalfOpen:
		if !b.probing.CompareAndSwap(false, true) {
			return ErrOpen
		}
	}
	return nil
}

// Success records a successful call.
func (b *Breaker) Success() {
	switch State(b.state.Load()) {
	case HalfOpen:
		b.probing.Store(false)
		if b.successes.Add(1) >= int32(b.cfg.ProbeSuccess) {
			b.transition(Closed)
		}
	case Closed:
		b.failures.Store(0)
	}
}

// Failure records a failed call.
func (b *Breaker) Failure() {
	count := b.failures.Add(1)
	switch State(b.state.Load()) {
	case HalfOpen:
		b.probing.Store(false)
		b.transition(Open)
	case Closed:
		if count >= int32(b.cfg.Threshold) {
			b.transition(Open)
		}
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	return State(b.state.Load())
}

// Reset forces the breaker closed.
func (b *Breaker) Reset() {
	b.transition(Closed)
}

func (b *Breaker) transition(to State) {
	from := State(b.state.Swap(uint32(to)))
	if from == to {
		return
	}
	b.successes.Store(0)
	switch to {
	case Closed:
		b.failures.Store(0)
		b.probing.Store(false)
		slog.Info("circuit breaker closed", "name", b.cfg.Name)
	case Open:
		b.openedAt.Store(time.Now().UnixNano())
		slog.Warn("circuit breaker opened", "name", b.cfg.Name, "failures", b.failures.Load())
	case HalfOpen:
		slog.Info("circuit breaker half-open", "name", b.cfg.Name)
	}
	if b.onStateChange != nil {
		b.onStateChange(from, to)
	}
}

// Call runs fn under breaker protection. Client-side errors (bad input,
// cancellation) do not count as backend failures.
func Call[T any](ctx context.Context, b *Breaker, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if err := b.Allow(); err != nil {
		return zero, err
	}
	result, err := fn(ctx)
	switch {
	case err == nil:
		b.Success()
		return result, nil
	case countsAsFailure(err):
		b.Failure()
	default:
		b.Success()
	}
	return zero, err
}

func countsAsFailure(err error) bool {
	switch apperrors.FromGRPCError(err).Code {
	case apperrors.InvalidArgument, apperrors.ModelRejected, apperrors.Cancelled:
		return false
	}
	return true
}
