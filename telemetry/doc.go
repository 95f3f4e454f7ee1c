// Package telemetry provides the observability pieces wired into stores:
// a Prometheus implementation of libreflux.Recorder, an OpenTelemetry
// tracer exporting to a writer, and slog logger construction.
package telemetry
