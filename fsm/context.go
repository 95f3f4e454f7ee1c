package fsm

import (
	"context"
	"log/slog"
	"time"

	"github.com/librescoot/libreflux"
)

// Context is passed to all state handlers and provides access to FSM operations
type Context struct {
	Ctx       context.Context
	FSM       *Machine
	Trigger   Trigger        // Trigger being processed (empty during initial entry)
	Payload   libreflux.Data // Data dispatched with the trigger
	FromState StateID        // State we're transitioning from
	ToState   StateID        // State we're transitioning to
	Data      any            // User-provided application data
	Logger    *slog.Logger

	state *StateStore
}

// CurrentState returns the state the machine is in at this point of the
// transition: the source before the shift, the target after it.
func (c *Context) CurrentState() StateID {
	return c.state.Current
}

// PreviousState returns the state before the most recent shift
func (c *Context) PreviousState() StateID {
	return c.state.Previous
}

// Snapshot returns a copy of the state payload being reduced
func (c *Context) Snapshot() StateStore {
	return *c.state
}

// StartTimer starts a named timer that will fire trigger when it expires.
// The timer is cancelled when the current state is exited, and a trigger
// it already queued is dropped if the state was exited in the meantime.
// If a timer with the same name exists, it is reset.
func (c *Context) StartTimer(name string, duration time.Duration, trigger Trigger, payload libreflux.Data) {
	c.FSM.startTimerInternal(name, duration, trigger, payload, TimerScopeState, c.state.Current)
}

// StartTimerGlobal starts a timer that won't be auto-cancelled on state exit
func (c *Context) StartTimerGlobal(name string, duration time.Duration, trigger Trigger, payload libreflux.Data) {
	c.FSM.startTimerInternal(name, duration, trigger, payload, TimerScopeGlobal, "")
}

// StopTimer stops a timer by name. No-op if timer doesn't exist.
func (c *Context) StopTimer(name string) {
	c.FSM.StopTimer(name)
}

// ResetTimer stops and restarts a timer with a new duration
func (c *Context) ResetTimer(name string, duration time.Duration) {
	c.FSM.resetTimer(name, duration)
}

// TimerActive checks if a timer is currently running
func (c *Context) TimerActive(name string) bool {
	return c.FSM.TimerActive(name)
}

// Send queues a trigger. It is processed after the current one completes.
func (c *Context) Send(trigger Trigger, payload libreflux.Data) error {
	return c.FSM.Trigger(trigger, payload)
}
