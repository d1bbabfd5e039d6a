// Package resilience keeps a flaky device or OCR service from stalling the
// watcher. A Breaker guards every adb call and every remote recognize call.
// Screenshots and remote recognition are also retried. Taps, key presses and
// swipes are not, since repeating one could act twice on the screen.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	apperrors "github.com/GriffinCanCode/ocrwatch/internal/errors"
)

// State is the breaker position.
type State uint32

const (
	Closed   State = iota // calls pass through
	Open                  // calls fail fast with ErrOpen
	HalfOpen              // a trial call is allowed after ResetTimeout
)

func (s State) String() string {
	return [...]string{"closed", "open", "half-open"}[s]
}

// ErrOpen is returned while the breaker rejects calls. The watcher logs it as
// an unavailable device or engine and tries again next cycle.
var ErrOpen = apperrors.New(apperrors.CodeUnavailable, "circuit breaker open")

// Breaker counts consecutive outages of one device or one OCR service.
// Errors caused by the caller, such as a cancelled cycle or an argument the
// engine rejects, pass through without counting.
type Breaker struct {
	cfg Config

	state     atomic.Uint32
	failures  atomic.Int32
	successes atomic.Int32
	openedAt  atomic.Int64 // unix nano of the last counted failure

	onStateChange func(from, to State)
}

// New returns a closed breaker.
func New(cfg Config) *Breaker {
	return &Breaker{cfg: cfg.withDefaults()}
}

// WithHook sets a callback run on every state change.
func (b *Breaker) WithHook(fn func(from, to State)) *Breaker {
	b.onStateChange = fn
	return b
}

// Name identifies the guarded backend in logs.
func (b *Breaker) Name() string { return b.cfg.Name }

// State returns the current position.
func (b *Breaker) State() State {
	return State(b.state.Load())
}

// Allow returns ErrOpen while open. Once ResetTimeout has passed since the
// last failure it moves to half-open and lets the call through.
func (b *Breaker) Allow() error {
	if b.State() != Open {
		return nil
	}
	since := time.Since(time.Unix(0, b.openedAt.Load()))
	if since <= b.cfg.ResetTimeout {
		return ErrOpen
	}
	b.transition(HalfOpen)
	return nil
}

// Success records a call that reached the backend and worked.
func (b *Breaker) Success() {
	switch b.State() {
	case Closed:
		b.failures.Store(0)
	case HalfOpen:
		if b.successes.Add(1) >= int32(b.cfg.HalfOpenSuccesses) {
			b.transition(Closed)
		}
	}
}

// Failure records an outage.
func (b *Breaker) Failure() {
	b.openedAt.Store(time.Now().UnixNano())
	n := b.failures.Add(1)

	switch b.State() {
	case HalfOpen:
		b.transition(Open)
	case Closed:
		if n >= int32(b.cfg.Threshold) {
			b.transition(Open)
		}
	}
}

// Reset closes the breaker, as after a manual reconnect.
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
		slog.Info("backend recovered, circuit closed", "breaker", b.cfg.Name)
	case Open:
		slog.Warn("backend unavailable, circuit opened", "breaker", b.cfg.Name,
			"failures", b.failures.Load(), "retry_after", b.cfg.ResetTimeout)
	case HalfOpen:
		slog.Info("probing backend, circuit half-open", "breaker", b.cfg.Name)
	}

	if b.onStateChange != nil {
		b.onStateChange(from, to)
	}
}

// Execute runs fn behind the breaker.
func (b *Breaker) Execute(fn func() error) error {
	_, err := ExecuteWithResult(b, func() (struct{}, error) { return struct{}{}, fn() })
	return err
}

// ExecuteWithResult runs fn behind the breaker and returns its value.
func ExecuteWithResult[T any](b *Breaker, fn func() (T, error)) (T, error) {
	var zero T
	if err := b.Allow(); err != nil {
		return zero, err
	}
	v, err := fn()
	switch {
	case err == nil:
		b.Success()
		return v, nil
	case callerFault(err):
		return zero, err
	default:
		b.Failure()
		return zero, err
	}
}

// callerFault reports errors that say nothing about backend health.
func callerFault(err error) bool {
	if errors.Is(err, context.Canceled) {
		return true
	}
	switch apperrors.CodeOf(err) {
	case apperrors.CodeCancelled, apperrors.CodeInvalidArgument, apperrors.CodeUnsupported:
		return true
	case apperrors.CodeUnknown:
	default:
		return false
	}
	if s, ok := status.FromError(err); ok {
		switch s.Code() {
		case codes.Canceled, codes.InvalidArgument, codes.Unimplemented:
			return true
		}
	}
	return false
}
