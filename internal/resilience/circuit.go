package resilience

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// ErrOpenCircuit is returned when the breaker refuses a call to the remote
// backend.
var ErrOpenCircuit = errors.New("resilience: circuit breaker open")

// State of a Breaker. The numeric value is exported as the breaker_state gauge.
type State int

const (
	Closed State = iota
	Open
	// HalfOpen lets one probe through to test recovery.
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

// window counts outcomes while the breaker is closed. Once it holds more than
// twice the minimum sample both counts are halved, so a burst of failures
// after a long healthy stretch still trips the breaker.
type window struct {
	ok, failed int
}

func (w *window) add(success bool) {
	if success {
		w.ok++
	} else {
		w.failed++
	}
}

func (w *window) total() int { return w.ok + w.failed }

func (w *window) failureRatio() float64 {
	if w.total() == 0 {
		return 0
	}
	return float64(w.failed) / float64(w.total())
}

func (w *window) decay() {
	w.ok = (w.ok + 1) / 2
	w.failed = (w.failed + 1) / 2
}

// Breaker guards the remote POS backend. It opens when the failure ratio of
// the closed window reaches the threshold, refuses calls for the cool-off
// period, then admits a single probe whose outcome closes or reopens it.
type Breaker struct {
	minRequests  int
	failureRatio float64
	openFor      time.Duration

	mu       sync.Mutex
	state    State
	counts   window
	openedAt time.Time
	probing  bool
	target   string
	logger   zerolog.Logger
}

// NewBreaker returns a closed breaker. Non-positive arguments fall back to
// 1 request, a 0.5 ratio and 30s respectively.
func NewBreaker(minRequests int, failureRatio float64, openFor time.Duration) *Breaker {
	if minRequests <= 0 {
		minRequests = 1
	}
	switch {
	case failureRatio <= 0:
		failureRatio = 0.5
	case failureRatio > 1:
		failureRatio = 1
	}
	if openFor <= 0 {
		openFor = 30 * time.Second
	}
	return &Breaker{
		minRequests:  minRequests,
		failureRatio: failureRatio,
		openFor:      openFor,
		target:       "default",
		logger:       zerolog.Nop(),
	}
}

// WithTarget names the guarded dependency in metrics and logs.
func (b *Breaker) WithTarget(target string) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	if target = strings.TrimSpace(target); target != "" {
		b.target = target
	}
	b.publishState()
	return b
}

// WithLogger sets the logger for state transitions. A logger attached to the
// request context takes precedence.
func (b *Breaker) WithLogger(logger zerolog.Logger) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logger = logger
	return b
}

// Allow reports whether a call may proceed. Every permitted call must be
// followed by Report or Release. A nil Breaker allows everything.
func (b *Breaker) Allow(ctx context.Context) bool {
	if b == nil {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true
	case Open:
		if time.Since(b.openedAt) < b.openFor {
			return false
		}
		b.moveTo(ctx, HalfOpen)
	}
	if b.probing {
		return false
	}
	b.probing = true
	return true
}

// Release returns a permit without an outcome, e.g. when the caller
// cancelled the call.
func (b *Breaker) Release() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.probing = false
}

// Report records the outcome of a permitted call.
func (b *Breaker) Report(ctx context.Context, success bool) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		return
	case HalfOpen:
		b.probing = false
		if success {
			b.moveTo(ctx, Closed)
		} else {
			b.moveTo(ctx, Open)
		}
		return
	}

	b.counts.add(success)
	if b.counts.total() < b.minRequests {
		return
	}
	if b.counts.failureRatio() >= b.failureRatio {
		b.moveTo(ctx, Open)
		return
	}
	if b.counts.total() > 2*b.minRequests {
		b.counts.decay()
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	if b == nil {
		return Closed
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// RetryIn is how long an open breaker keeps refusing calls, zero otherwise.
func (b *Breaker) RetryIn() time.Duration {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.retryInLocked()
}

// Describe renders the state for the readiness report, e.g.
// "open (retry in 12s)".
func (b *Breaker) Describe() string {
	if b == nil {
		return Closed.String()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if left := b.retryInLocked(); left > 0 {
		return fmt.Sprintf("%s (retry in %s)", b.state, left.Round(time.Second))
	}
	return b.state.String()
}

func (b *Breaker) retryInLocked() time.Duration {
	if b.state != Open {
		return 0
	}
	return max(b.openFor-time.Since(b.openedAt), 0)
}

func (b *Breaker) moveTo(ctx context.Context, next State) {
	prev := b.state
	if prev == next {
		return
	}
	b.state = next
	b.counts = window{}
	switch next {
	case Open:
		b.openedAt = time.Now()
	case Closed:
		b.openedAt = time.Time{}
	}
	b.publishState()

	if BreakerTransitions != nil {
		BreakerTransitions.WithLabelValues(b.target, prev.String(), next.String()).Inc()
	}
	if next == Open && BreakerOpenedTotal != nil {
		BreakerOpenedTotal.WithLabelValues(b.target).Inc()
	}

	logger := b.logger
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		logger = *l
	}
	evt := logger.Info().Str("target", b.target).Str("from_state", prev.String()).Str("to_state", next.String())
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		evt = evt.Str("trace_id", sc.TraceID().String())
	}
	evt.Msg("breaker_transition")
}

func (b *Breaker) publishState() {
	if BreakerState != nil {
		BreakerState.WithLabelValues(b.target).Set(float64(b.state))
	}
}
