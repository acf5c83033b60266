// Package fsm holds small helpers shared by the state machines built on
// github.com/looplab/fsm.
package fsm

import (
	"context"
	"errors"

	"github.com/looplab/fsm"
)

// WrapEvent adapts a callback that returns an error into an fsm.Callback.
// A non-nil error is recorded on the event and surfaces as the result of
// FSM.Event. Guards that must stop a transition call event.Cancel instead.
func WrapEvent(fn func(ctx context.Context, event *fsm.Event) error) fsm.Callback {
	return func(ctx context.Context, event *fsm.Event) {
		if err := fn(ctx, event); err != nil {
			event.Err = err
		}
	}
}

// Fire triggers event on f. The transition is applied even when ctx is already
// cancelled, since state changes made during shutdown must still land.
// Re-entering the current state is not treated as an error.
func Fire(ctx context.Context, f *fsm.FSM, event string, args ...any) error {
	err := f.Event(context.WithoutCancel(ctx), event, args...)
	var noTransition fsm.NoTransitionError
	if errors.As(err, &noTransition) {
		return nil
	}
	return err
}
