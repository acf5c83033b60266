package refresh

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/autopeer-io/polestar-exporter/internal/pkg/metrics"
	"github.com/autopeer-io/polestar-exporter/pkg/log"
)

const (
	interval = 10 * time.Second
	wait     = 2 * time.Second
	tick     = 5 * time.Millisecond
)

type harness struct {
	clock  *testingclock.FakeClock
	logs   *observer.ObservedLogs
	loop   *Loop
	cancel context.CancelFunc
	done   chan error
}

func startLoop(t *testing.T, updater Updater) *harness {
	t.Helper()

	core, logs := observer.New(zapcore.DebugLevel)
	h := &harness{
		clock: testingclock.NewFakeClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)),
		logs:  logs,
		done:  make(chan error, 1),
	}
	h.loop = NewLoop(updater, interval, WithClock(h.clock), WithLogger(log.NewFromZap(zap.New(core))))

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() {
		h.done <- h.loop.Run(ctx)
		close(h.done)
	}()

	t.Cleanup(func() {
		cancel()
		select {
		case <-h.done:
		case <-time.After(wait):
			t.Error("refresh loop did not stop")
		}
	})
	return h
}

// waitSleeping blocks until the loop is parked on its interval timer.
func (h *harness) waitSleeping(t *testing.T) {
	t.Helper()
	require.Eventually(t, func() bool {
		return h.loop.State() == StateSleeping && h.clock.HasWaiters()
	}, wait, tick)
}

func (h *harness) stop(t *testing.T) {
	t.Helper()
	h.cancel()
	select {
	case err := <-h.done:
		require.NoError(t, err)
	case <-time.After(wait):
		t.Fatal("refresh loop did not stop")
	}
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(wait):
		t.Fatal("timed out waiting for the refresh cycle")
	}
	var zero T
	return zero
}

func TestNewLoopDefaultTimeout(t *testing.T) {
	l := NewLoop(UpdaterFunc(func(context.Context) error { return nil }), time.Minute)
	assert.Equal(t, 59*time.Second, l.timeout)
	assert.Equal(t, StateFetching, l.State())
}

func TestLoopTimeoutCancelsCycleAndSleepsFullInterval(t *testing.T) {
	calls := make(chan context.Context, 4)
	h := startLoop(t, UpdaterFunc(func(ctx context.Context) error {
		calls <- ctx
		<-ctx.Done()
		return ctx.Err()
	}))
	timeouts := testutil.ToFloat64(metrics.RefreshCyclesTotal.WithLabelValues(metrics.ResultTimeout))

	first := receive(t, calls)
	require.Eventually(t, h.clock.HasWaiters, wait, tick)
	h.clock.Step(interval - time.Second)

	h.waitSleeping(t)
	assert.ErrorIs(t, context.Cause(first), ErrCycleTimeout)
	assert.Equal(t, 1, h.logs.FilterLevelExact(zapcore.WarnLevel).Len())
	assert.Equal(t, timeouts+1, testutil.ToFloat64(metrics.RefreshCyclesTotal.WithLabelValues(metrics.ResultTimeout)))

	// The sleep is the full interval, counted from the end of the cycle.
	h.clock.Step(interval - time.Second)
	assert.Never(t, func() bool { return len(calls) > 0 }, 50*time.Millisecond, tick)

	h.clock.Step(time.Second)
	receive(t, calls)
	assert.Equal(t, StateFetching, h.loop.State())

	h.stop(t)
	assert.Equal(t, StateShuttingDown, h.loop.State())
}

func TestLoopContinuesAfterFailedCycle(t *testing.T) {
	var n atomic.Int32
	calls := make(chan struct{}, 4)
	h := startLoop(t, UpdaterFunc(func(context.Context) error {
		calls <- struct{}{}
		if n.Add(1) == 1 {
			return errors.New("401 unauthorized")
		}
		return nil
	}))

	receive(t, calls)
	h.waitSleeping(t)

	errs := h.logs.FilterLevelExact(zapcore.ErrorLevel).All()
	require.Len(t, errs, 1)
	assert.Equal(t, "401 unauthorized", errs[0].ContextMap()["error"])

	h.clock.Step(interval)
	receive(t, calls)
	h.waitSleeping(t)
	assert.Equal(t, 1, h.logs.FilterMessage("Vehicle metrics updated").Len())

	h.stop(t)
}

func TestLoopRecoversPanickingCycle(t *testing.T) {
	calls := make(chan struct{}, 4)
	h := startLoop(t, UpdaterFunc(func(context.Context) error {
		calls <- struct{}{}
		panic("nil telemetry")
	}))

	receive(t, calls)
	h.waitSleeping(t)

	errs := h.logs.FilterLevelExact(zapcore.ErrorLevel).All()
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].ContextMap()["error"], "nil telemetry")

	h.clock.Step(interval)
	receive(t, calls)
	h.stop(t)
}

func TestLoopShutdownAwaitsInFlightCycle(t *testing.T) {
	started := make(chan struct{})
	var returned atomic.Bool
	h := startLoop(t, UpdaterFunc(func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		time.Sleep(20 * time.Millisecond)
		returned.Store(true)
		return ctx.Err()
	}))

	receive(t, started)
	h.stop(t)

	assert.True(t, returned.Load())
	assert.Equal(t, StateShuttingDown, h.loop.State())
	assert.Zero(t, h.logs.FilterLevelExact(zapcore.ErrorLevel).Len())
}

func TestLoopShutdownWhileSleeping(t *testing.T) {
	calls := make(chan struct{}, 4)
	h := startLoop(t, UpdaterFunc(func(context.Context) error {
		calls <- struct{}{}
		return nil
	}))

	receive(t, calls)
	h.waitSleeping(t)
	h.stop(t)

	assert.Equal(t, StateShuttingDown, h.loop.State())
	assert.Empty(t, calls)
}
