package libreflux

import (
	"errors"
	"fmt"
)

var (
	// ErrStoreClosed is returned when dispatching to or starting a store
	// whose loop has already stopped.
	ErrStoreClosed = errors.New("store closed")

	// ErrNotRunning is returned by Done when Run was never called.
	ErrNotRunning = errors.New("store not running")
)

// Stage names the handler kind that failed
type Stage string

const (
	StageReducer Stage = "reducer"
	StageEffect  Stage = "effect"
)

// HandlerError wraps a failure returned by a reducer or an effect.
// The store does not retry or swallow these; the loop stops and the error
// is returned from Done.
type HandlerError struct {
	Stage      Stage
	ActionType string
	ActionID   string
	Index      int // position in registration order
	Err        error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("%s %d for %q failed: %v", e.Stage, e.Index, e.ActionType, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

// IsHandlerError reports whether err came from a reducer or effect
func IsHandlerError(err error) bool {
	var he *HandlerError
	return errors.As(err, &he)
}
