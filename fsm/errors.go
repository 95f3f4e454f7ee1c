package fsm

import (
	"errors"
	"fmt"
)

var (
	ErrNoInitialState        = errors.New("no initial state defined")
	ErrMultipleInitialStates = errors.New("too many initial states defined")
	ErrUndefinedState        = errors.New("undefined state")
	ErrDuplicateState        = errors.New("duplicate state")
	ErrInvalidTransition     = errors.New("invalid transition")
)

// StateError is a configuration error found while compiling a definition
type StateError struct {
	Machine string
	Err     error
	Detail  string
}

func (e *StateError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%v for state machine %s: %s", e.Err, e.Machine, e.Detail)
	}
	return fmt.Sprintf("%v for state machine %s", e.Err, e.Machine)
}

func (e *StateError) Unwrap() error {
	return e.Err
}

// IsConfigError reports whether err is a definition error
func IsConfigError(err error) bool {
	var se *StateError
	return errors.As(err, &se)
}
