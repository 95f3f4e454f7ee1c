package libreflux

import (
	"log/slog"
	"time"
)

// Data is the keyed payload carried by an Action
type Data map[string]any

// Recorder receives store activity. telemetry.Metrics is the Prometheus implementation.
type Recorder interface {
	ActionDispatched(actionType string)
	ActionProcessed(actionType string, duration time.Duration, err error)
	QueueDepth(depth int)
}

type nopRecorder struct{}

func (nopRecorder) ActionDispatched(string) {}
func (nopRecorder) ActionProcessed(string, time.Duration, error) {}
func (nopRecorder) QueueDepth(int) {}

// Cloner is implemented by state types that know how to copy themselves
// for defensive isolation between the loop and effects.
type Cloner[S any] interface {
	Clone() S
}

// Logger is the default logger used when none is provided
var Logger = slog.Default()

// tracerName identifies spans emitted by the store
const tracerName = "github.com/librescoot/libreflux"
