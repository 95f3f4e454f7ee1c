package fsm

import "log/slog"

// StateID is a unique identifier for a state
type StateID string

// Trigger is an action type that causes a transition
type Trigger string

// TimerScope defines when a timer is automatically cancelled
type TimerScope int

const (
	// TimerScopeGlobal - timer lives until explicitly stopped or the machine is done
	TimerScopeGlobal TimerScope = iota
	// TimerScopeState - timer auto-cancelled when exiting the state that started it
	TimerScopeState
)

// Hook runs inside the reducer step of a transition, after the shift
type Hook func(c *Context) error

// Logger is the default logger used when none is provided
var Logger = slog.Default()
