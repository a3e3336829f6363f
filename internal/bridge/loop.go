package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/nerrad567/meterthing/internal/normalize"
	"github.com/nerrad567/meterthing/internal/source"
	"github.com/nerrad567/meterthing/internal/thing"
)

// State is the lifecycle state of a Loop.
type State int

// Loop states.
const (
	StateUninitialized State = iota
	StateRunning
	StateStopped
)

// String returns the state name used in health messages.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Failure reasons recorded in metrics.
const (
	reasonSource     = "source"
	reasonClosed     = "closed"
	reasonConversion = "conversion"
	reasonUnknown    = "unknown_register"
	reasonInit       = "initialization"
)

// Logger is the logging interface used by the bridge.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options holds configuration for creating a Loop.
type Options struct {
	// Source yields normalized readings, usually a *normalize.Adapter.
	Source source.Source

	// Description is the static part of the Thing.
	Description thing.Description

	// Metrics is optional.
	Metrics *Metrics

	// Logger is optional.
	Logger Logger
}

// Stats is a point-in-time copy of loop counters.
type Stats struct {
	State           State
	Readings        uint64
	PropertyUpdates uint64
	LastReading     time.Time
}

// Loop keeps a Thing in step with the meter.
//
// Initialize consumes the first reading and builds the Thing; Run then applies
// every later reading until the stream ends, a fatal error occurs or ctx is
// cancelled. Readings are applied one at a time, so there is never more than
// one pending write.
//
// Thread Safety:
//   - Initialize and Run must be called from one goroutine, in that order.
//   - Thing, State and Stats are safe to call from any goroutine.
type Loop struct {
	src     source.Source
	desc    thing.Description
	metrics *Metrics

	mu    sync.RWMutex
	state State
	thing *thing.Thing
	stats Stats

	logger   Logger
	loggerMu sync.RWMutex
}

// NewLoop creates a loop in the uninitialized state.
func NewLoop(opts Options) *Loop {
	l := &Loop{
		src:     opts.Source,
		desc:    opts.Description,
		metrics: opts.Metrics,
		logger:  opts.Logger,
	}
	if l.logger == nil {
		l.logger = noopLogger{}
	}
	return l
}

// SetLogger replaces the logger.
func (l *Loop) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	l.loggerMu.Lock()
	l.logger = logger
	l.loggerMu.Unlock()
}

func (l *Loop) getLogger() Logger {
	l.loggerMu.RLock()
	defer l.loggerMu.RUnlock()
	return l.logger
}

// Initialize blocks until the first reading arrives and builds the Thing
// from it.
//
// The returned Thing has no observers yet; callers attach the API hub,
// metrics and MQTT publisher before calling Run so no update is missed.
//
// Returns:
//   - *thing.Thing: The Thing, with one property per register of the first reading
//   - error: ErrNoInitialReading wrapping the cause when the source fails,
//     ends or yields an empty reading
func (l *Loop) Initialize(ctx context.Context) (*thing.Thing, error) {
	l.mu.RLock()
	state := l.state
	l.mu.RUnlock()
	if state != StateUninitialized {
		return nil, ErrAlreadyInitialized
	}

	first, err := l.src.Next(ctx)
	if err != nil {
		// A shutdown while waiting is not an initialization failure.
		if ctx.Err() == nil {
			l.fail(reasonInit)
		}
		return nil, fmt.Errorf("%w: %w", ErrNoInitialReading, err)
	}

	th, err := thing.New(l.desc, first)
	if err != nil {
		l.fail(reasonInit)
		return nil, fmt.Errorf("%w: %w", ErrNoInitialReading, err)
	}

	now := time.Now()
	l.mu.Lock()
	l.thing = th
	l.state = StateRunning
	l.stats.Readings = 1
	l.stats.LastReading = now
	l.mu.Unlock()

	if l.metrics != nil {
		l.metrics.readingApplied(now)
		for _, p := range th.Properties() {
			l.metrics.setValue(p.Name(), p.Value())
		}
	}

	l.getLogger().Info("thing initialized",
		"thing_id", th.ID(),
		"properties", first.Len(),
	)
	return th, nil
}

// Run applies readings until the stream ends or fails.
//
// Returns:
//   - nil when ctx is cancelled
//   - ErrSourceClosed when the source reports io.EOF, wrapping the cause
//     when the source attached one
//   - ErrSourceFailed wrapping a transport or decode failure
//   - a wrapped normalize.ErrConversion for an unconvertible value
//   - a wrapped thing.ErrPropertyNotFound for a register the first reading
//     did not have
func (l *Loop) Run(ctx context.Context) error {
	l.mu.RLock()
	th, state := l.thing, l.state
	l.mu.RUnlock()
	if state != StateRunning {
		return ErrNotInitialized
	}

	defer func() {
		l.mu.Lock()
		l.state = StateStopped
		l.mu.Unlock()
	}()

	logger := l.getLogger()
	for {
		r, err := l.src.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("sync loop stopped")
				return nil
			}
			return l.sourceError(err)
		}

		n, err := th.Apply(r)
		if err != nil {
			l.fail(reasonUnknown)
			return fmt.Errorf("applying reading: %w", err)
		}

		now := time.Now()
		l.mu.Lock()
		l.stats.Readings++
		l.stats.PropertyUpdates += uint64(n)
		l.stats.LastReading = now
		l.mu.Unlock()

		if l.metrics != nil {
			l.metrics.readingApplied(now)
		}
		logger.Debug("reading applied", "properties", n)
	}
}

// sourceError classifies a failed Next.
func (l *Loop) sourceError(err error) error {
	switch {
	case errors.Is(err, io.EOF):
		l.fail(reasonClosed)
		if err == io.EOF { //nolint:errorlint // a bare EOF carries no cause
			return ErrSourceClosed
		}
		return fmt.Errorf("%w: %w", ErrSourceClosed, err)
	case errors.Is(err, normalize.ErrConversion):
		l.fail(reasonConversion)
		return fmt.Errorf("normalizing reading: %w", err)
	default:
		l.fail(reasonSource)
		return fmt.Errorf("%w: %w", ErrSourceFailed, err)
	}
}

func (l *Loop) fail(reason string) {
	if l.metrics != nil {
		l.metrics.failure(reason)
	}
}

// Thing returns the Thing, or nil before Initialize.
func (l *Loop) Thing() *thing.Thing {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.thing
}

// State returns the current lifecycle state.
func (l *Loop) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Stats returns a copy of the loop counters.
func (l *Loop) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s := l.stats
	s.State = l.state
	return s
}
