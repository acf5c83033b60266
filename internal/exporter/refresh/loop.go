// Package refresh drives the periodic refresh-and-publish cycle.
//
// Each cycle runs under a deadline of interval minus one second. A cycle that
// fails is logged and skipped, a cycle that overruns is cancelled and logged
// as a warning. Between cycles the loop sleeps for the full interval. On
// shutdown the loop cancels the in-flight cycle and waits for it to return.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"time"

	"k8s.io/utils/clock"

	"github.com/autopeer-io/polestar-exporter/internal/pkg/metrics"
	"github.com/autopeer-io/polestar-exporter/pkg/log"
)

// Updater performs one refresh-and-publish cycle.
type Updater interface {
	UpdateAll(ctx context.Context) error
}

// UpdaterFunc adapts a function to the Updater interface.
type UpdaterFunc func(ctx context.Context) error

func (f UpdaterFunc) UpdateAll(ctx context.Context) error { return f(ctx) }

// ErrCycleTimeout is the cause attached to a cycle's context once its deadline passed.
var ErrCycleTimeout = errors.New("refresh cycle timed out")

// Option configures a Loop.
type Option func(*Loop)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c clock.Clock) Option {
	return func(l *Loop) { l.clock = c }
}

// WithTimeout overrides the per-cycle deadline.
func WithTimeout(d time.Duration) Option {
	return func(l *Loop) { l.timeout = d }
}

// WithLogger sets the logger used by the loop.
func WithLogger(logger log.Logger) Option {
	return func(l *Loop) { l.logger = logger }
}

type Loop struct {
	updater  Updater
	interval time.Duration
	timeout  time.Duration
	clock    clock.Clock
	logger   log.Logger
	machine  *stateMachine
}

// NewLoop returns a loop calling updater every interval. The default cycle
// deadline is interval minus one second.
func NewLoop(updater Updater, interval time.Duration, opts ...Option) *Loop {
	l := &Loop{
		updater:  updater,
		interval: interval,
		timeout:  interval - time.Second,
		clock:    clock.RealClock{},
		logger:   log.WithName("refresh"),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.machine = newStateMachine(l.logger)
	return l
}

// State returns the loop's current state.
func (l *Loop) State() string {
	return l.machine.Current()
}

// Run blocks until ctx is cancelled. The first cycle starts immediately.
// Cycle failures never end the loop; Run only returns once ctx is done and
// the in-flight cycle, if any, has returned.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("Starting refresh loop", "interval", l.interval, "timeout", l.timeout)

	var straggler <-chan struct{}
	for {
		// A cancelled cycle must be gone before the next one touches the registry.
		if straggler != nil {
			<-straggler
			straggler = nil
		}
		if ctx.Err() != nil {
			break
		}

		straggler = l.runCycle(ctx)
		if ctx.Err() != nil {
			break
		}

		l.machine.fire(ctx, EventSleep)
		if !l.sleep(ctx) {
			break
		}
		l.machine.fire(ctx, EventWake)
	}

	l.machine.fire(ctx, EventShutdown)
	if straggler != nil {
		l.logger.Info("Waiting for the in-flight refresh cycle to stop")
		<-straggler
	}
	l.logger.Info("Refresh loop stopped")
	return nil
}

// runCycle runs one cycle under the loop's deadline. If the cycle is
// abandoned, the returned channel is closed once its goroutine returns.
func (l *Loop) runCycle(ctx context.Context) <-chan struct{} {
	cycleCtx, cancel := context.WithCancelCause(ctx)
	result := make(chan error, 1)
	finished := make(chan struct{})
	start := l.clock.Now()

	go func() {
		defer close(finished)
		result <- l.update(cycleCtx)
	}()

	deadline := l.clock.NewTimer(l.timeout)
	defer deadline.Stop()

	select {
	case err := <-result:
		cancel(nil)
		if ctx.Err() == nil {
			l.observe(start, err)
		}
		return nil
	case <-deadline.C():
		cancel(ErrCycleTimeout)
		metrics.RefreshCyclesTotal.WithLabelValues(metrics.ResultTimeout).Inc()
		l.logger.Warn("Vehicle metrics update timed out, continuing to next cycle", "timeout", l.timeout)
		return finished
	case <-ctx.Done():
		cancel(context.Cause(ctx))
		return finished
	}
}

func (l *Loop) update(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("refresh cycle panicked: %v", r)
		}
	}()
	return l.updater.UpdateAll(ctx)
}

func (l *Loop) observe(start time.Time, err error) {
	metrics.RefreshDuration.Observe(l.clock.Since(start).Seconds())
	if err != nil {
		metrics.RefreshCyclesTotal.WithLabelValues(metrics.ResultError).Inc()
		l.logger.Error(err, "Failed to update vehicle metrics")
		return
	}
	metrics.RefreshCyclesTotal.WithLabelValues(metrics.ResultSuccess).Inc()
	l.logger.Info("Vehicle metrics updated")
}

// sleep waits for the full interval. It reports false if ctx ended first.
func (l *Loop) sleep(ctx context.Context) bool {
	t := l.clock.NewTimer(l.interval)
	defer t.Stop()

	select {
	case <-t.C():
		return true
	case <-ctx.Done():
		return false
	}
}
