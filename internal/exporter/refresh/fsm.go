package refresh

import (
	"context"

	"github.com/looplab/fsm"

	"github.com/autopeer-io/polestar-exporter/internal/pkg/metrics"
	fsmutil "github.com/autopeer-io/polestar-exporter/internal/pkg/util/fsm"
	"github.com/autopeer-io/polestar-exporter/pkg/log"
)

// Loop states.
const (
	StateFetching     = "fetching"
	StateSleeping     = "sleeping"
	StateShuttingDown = "shutting_down"
)

const (
	// EventSleep is fired once a cycle finished, failed or timed out.
	EventSleep = "event_sleep"
	// EventWake starts the next cycle after the interval elapsed.
	EventWake = "event_wake"
	// EventShutdown is fired on an external termination signal. Shutting down
	// is terminal; no event leaves it.
	EventShutdown = "event_shutdown"
)

var states = []string{StateFetching, StateSleeping, StateShuttingDown}

type stateMachine struct {
	*fsm.FSM
	logger log.Logger
}

func newStateMachine(logger log.Logger) *stateMachine {
	m := &stateMachine{logger: logger}

	events := fsm.Events{
		{Name: EventSleep, Src: []string{StateFetching}, Dst: StateSleeping},
		{Name: EventWake, Src: []string{StateSleeping}, Dst: StateFetching},
		{Name: EventShutdown, Src: []string{StateFetching, StateSleeping}, Dst: StateShuttingDown},
	}

	callbacks := fsm.Callbacks{
		"enter_state": fsmutil.WrapEvent(m.actionEnterState),
	}

	m.FSM = fsm.NewFSM(StateFetching, events, callbacks)
	setStateGauge(StateFetching)
	return m
}

func (m *stateMachine) fire(ctx context.Context, event string) {
	if err := fsmutil.Fire(ctx, m.FSM, event); err != nil {
		m.logger.Debug("Refresh state transition rejected", "event", event, "state", m.Current(), "reason", err.Error())
	}
}

func (m *stateMachine) actionEnterState(_ context.Context, e *fsm.Event) error {
	m.logger.Debug("Refresh loop changed state", "from", e.Src, "to", e.Dst)
	setStateGauge(e.Dst)
	return nil
}

func setStateGauge(current string) {
	for _, s := range states {
		v := 0.0
		if s == current {
			v = 1
		}
		metrics.RefreshState.WithLabelValues(s).Set(v)
	}
}
