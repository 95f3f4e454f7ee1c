package libreflux

import (
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

// Options holds store configuration. Use the With* functions to set it.
type Options struct {
	// Unsafe skips cloning state before the reducer chain and for each
	// effect. Only valid when the caller guarantees effects never mutate
	// state (the fsm package relies on this).
	Unsafe bool

	Logger   *slog.Logger
	Registry *Registry
	Recorder Recorder
	Tracer   trace.Tracer

	// Values carries keys the store does not interpret, so layered
	// components can pass configuration through it.
	Values map[string]any

	clone any // func(S) S, checked in New
}

// Option is a functional option for configuring a Store
type Option func(*Options)

// WithUnsafe disables defensive isolation of state
func WithUnsafe() Option {
	return func(o *Options) {
		o.Unsafe = true
	}
}

// WithLogger sets the logger for the store
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithRegistry sets the registry action types are recorded in
func WithRegistry(r *Registry) Option {
	return func(o *Options) {
		o.Registry = r
	}
}

// WithRecorder sets the activity recorder, e.g. telemetry.Metrics
func WithRecorder(r Recorder) Option {
	return func(o *Options) {
		o.Recorder = r
	}
}

// WithTracer sets the tracer used for per-action spans
func WithTracer(t trace.Tracer) Option {
	return func(o *Options) {
		o.Tracer = t
	}
}

// WithValue stores an opaque configuration value
func WithValue(key string, value any) Option {
	return func(o *Options) {
		if o.Values == nil {
			o.Values = make(map[string]any)
		}
		o.Values[key] = value
	}
}

// WithClone sets the function used to copy state for isolation. The type
// parameter must match the store's state type or New panics. Without it,
// and without a Clone method on the state, a reflection-based deep copy is used.
func WithClone[S any](fn func(S) S) Option {
	return func(o *Options) {
		o.clone = fn
	}
}
