// Package breaker implements the named circuit breaker registry of
// spec.md §4.7. Each breaker tracks a sliding window of classified
// failures, trips to open once the window's failure count reaches
// threshold, and auto-refreshes back to half-open/closed after its
// configured timeout — the same closed/open/half-open shape as the
// teacher's internal/infra/healing.CircuitBreaker, generalized to a
// named registry with pluggable fallback policies and failure-class
// classification.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/stellarops/stellarops/internal/domain"
)

// State is the circuit breaker's lifecycle state.
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

// FailureClass classifies the outcome of a wrapped call. Only Timeout,
// ConnectionRefused, and HTTPServerError trip the breaker; Other passes
// through without affecting the failure count; Exception always trips
// (spec.md §4.7).
type FailureClass string

const (
	ClassSuccess          FailureClass = "success"
	ClassConnectionRefused FailureClass = "connection_refused"
	ClassTimeout          FailureClass = "timeout"
	ClassHTTPServerError  FailureClass = "http_error_5xx"
	ClassOther            FailureClass = "other"
	ClassException        FailureClass = "exception"
)

func (c FailureClass) trips() bool {
	switch c {
	case ClassConnectionRefused, ClassTimeout, ClassHTTPServerError, ClassException:
		return true
	default:
		return false
	}
}

// Classify maps a call's error into a FailureClass. A nil error is
// ClassSuccess. Callers performing HTTP calls should prefer classifying
// the status code directly; Classify handles the common stdlib error
// sentinels for everything else.
func Classify(err error) FailureClass {
	if err == nil {
		return ClassSuccess
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ClassTimeout
	case errors.Is(err, domain.ErrTimeout):
		return ClassTimeout
	case errors.Is(err, ErrConnectionRefused):
		return ClassConnectionRefused
	default:
		return ClassOther
	}
}

// ErrConnectionRefused is a sentinel HTTP callers can wrap to signal a
// refused-connection failure to Classify.
var ErrConnectionRefused = errors.New("connection refused")

// ErrOpen is returned by Call when the breaker is open and the fallback
// policy is "error".
var ErrOpen = errors.New("circuit breaker is open")

// FallbackPolicy decides what Call returns while the breaker is open.
type FallbackPolicy string

const (
	// FallbackError returns ErrOpen.
	FallbackError FallbackPolicy = "error"
	// FallbackSkip returns a nil result and nil error — the caller treats
	// the call as having been skipped, not failed.
	FallbackSkip FallbackPolicy = "skip"
	// FallbackCachedOrError returns the last successful result if one
	// exists, else ErrOpen.
	FallbackCachedOrError FallbackPolicy = "cached_or_error"
	// FallbackCustom invokes Config.CustomFallback.
	FallbackCustom FallbackPolicy = "custom"
)

// Config configures one named breaker.
type Config struct {
	WindowFailures int           // failures within Window to trip (default 5)
	Window         time.Duration // sliding window width (default 10s)
	Refresh        time.Duration // time in open before probing again (default 30s)
	Fallback       FallbackPolicy
	CustomFallback func(ctx context.Context) (any, error)
}

// DefaultConfig matches spec.md's worked example: 5 failures / 10s window,
// 30s refresh, fail with an error while open.
func DefaultConfig() Config {
	return Config{
		WindowFailures: 5,
		Window:         10 * time.Second,
		Refresh:        30 * time.Second,
		Fallback:       FallbackError,
	}
}

// Event is a telemetry event emitted by a breaker: "call", "blocked", or
// "melt".
type Event struct {
	Breaker   string
	Kind      string
	Class     FailureClass
	State     State
	Timestamp time.Time
}

// Breaker is one named circuit breaker.
type Breaker struct {
	mu sync.Mutex

	name   string
	cfg    Config
	state  State
	window []time.Time // timestamps of tripping failures within cfg.Window
	openedAt time.Time
	halfOpenProbe bool
	totalTrips int
	lastResult any
	haveLastResult bool
	now    func() time.Time
	onEvent func(Event)
}

// New creates a breaker with the given name and config.
func New(name string, cfg Config) *Breaker {
	if cfg.WindowFailures <= 0 {
		cfg.WindowFailures = 5
	}
	if cfg.Window <= 0 {
		cfg.Window = 10 * time.Second
	}
	if cfg.Refresh <= 0 {
		cfg.Refresh = 30 * time.Second
	}
	if cfg.Fallback == "" {
		cfg.Fallback = FallbackError
	}
	return &Breaker{name: name, cfg: cfg, state: Closed, now: time.Now}
}

// OnEvent installs a callback invoked for every "call", "blocked", and
// "melt" telemetry event. Not safe to change after Call has started
// running concurrently.
func (b *Breaker) OnEvent(fn func(Event)) { b.onEvent = fn }

func (b *Breaker) emit(kind string, class FailureClass, st State) {
	if b.onEvent == nil {
		return
	}
	b.onEvent(Event{Breaker: b.name, Kind: kind, Class: class, State: st, Timestamp: b.now()})
}

// Call runs fn if the breaker is closed or half-open. If the breaker is
// open, it applies the configured fallback policy instead of running fn.
// A panic inside fn is recovered and treated as ClassException.
func (b *Breaker) Call(ctx context.Context, fn func(ctx context.Context) (any, error)) (result any, err error) {
	b.mu.Lock()
	b.refreshLocked()
	if b.state == Open {
		b.mu.Unlock()
		b.emit("blocked", ClassOther, Open)
		return b.applyFallback(ctx)
	}
	b.mu.Unlock()

	class := ClassSuccess
	defer func() {
		if r := recover(); r != nil {
			class = ClassException
			err = fmt.Errorf("%s: panic: %v", b.name, r)
		}
		b.record(class, result)
		b.emit("call", class, b.State())
	}()

	result, err = fn(ctx)
	class = Classify(err)
	return result, err
}

func (b *Breaker) record(class FailureClass, result any) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if class == ClassSuccess {
		b.lastResult = result
		b.haveLastResult = true
		if b.state == HalfOpen {
			b.state = Closed
			b.window = nil
			b.halfOpenProbe = false
		}
		return
	}
	if !class.trips() {
		return
	}

	if b.state == HalfOpen {
		b.tripLocked()
		return
	}

	now := b.now()
	b.window = append(b.window, now)
	b.window = trimWindow(b.window, now, b.cfg.Window)
	if len(b.window) >= b.cfg.WindowFailures {
		b.tripLocked()
	}
}

func trimWindow(window []time.Time, now time.Time, width time.Duration) []time.Time {
	cutoff := now.Add(-width)
	i := 0
	for i < len(window) && window[i].Before(cutoff) {
		i++
	}
	return window[i:]
}

func (b *Breaker) tripLocked() {
	b.state = Open
	b.openedAt = b.now()
	b.totalTrips++
	b.halfOpenProbe = false
	b.emit("melt", ClassOther, Open)
}

// refreshLocked must be called with b.mu held. It auto-transitions an open
// breaker to half-open once cfg.Refresh has elapsed.
func (b *Breaker) refreshLocked() {
	if b.state == Open && b.now().Sub(b.openedAt) >= b.cfg.Refresh {
		b.state = HalfOpen
		b.halfOpenProbe = false
	}
}

func (b *Breaker) applyFallback(ctx context.Context) (any, error) {
	switch b.cfg.Fallback {
	case FallbackSkip:
		return nil, nil
	case FallbackCachedOrError:
		b.mu.Lock()
		result, ok := b.lastResult, b.haveLastResult
		b.mu.Unlock()
		if ok {
			return result, nil
		}
		return nil, fmt.Errorf("%s: %w", b.name, ErrOpen)
	case FallbackCustom:
		if b.cfg.CustomFallback != nil {
			return b.cfg.CustomFallback(ctx)
		}
		return nil, fmt.Errorf("%s: %w", b.name, ErrOpen)
	default:
		return nil, fmt.Errorf("%s: %w", b.name, ErrOpen)
	}
}

// State returns the breaker's current state, applying the auto-refresh
// transition first.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshLocked()
	return b.state
}

// Status is the point-in-time view returned by the registry's status op.
type Status struct {
	Name        string `json:"name"`
	State       State  `json:"state"`
	FailureCount int   `json:"failure_count"`
	TotalTrips  int    `json:"total_trips"`
}

// Snapshot returns the breaker's current status.
func (b *Breaker) Snapshot() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshLocked()
	return Status{Name: b.name, State: b.state, FailureCount: len(b.window), TotalTrips: b.totalTrips}
}

// Reset forces the breaker back to closed, clearing its failure window.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Closed
	b.window = nil
	b.halfOpenProbe = false
}

// Melt forces the breaker open immediately, for operator-triggered
// maintenance windows.
func (b *Breaker) Melt() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tripLocked()
}
