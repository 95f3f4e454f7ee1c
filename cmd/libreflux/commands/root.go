// Package commands implements the libreflux CLI
package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/librescoot/libreflux"
	"github.com/librescoot/libreflux/telemetry"
	"github.com/spf13/cobra"
)

// env carries what the root command sets up for its subcommands
type env struct {
	logLevel    string
	logFormat   string
	trace       bool
	metricsAddr string

	logger   *slog.Logger
	registry *libreflux.Registry
	metrics  *telemetry.Metrics
	tracer   *telemetry.Tracer
	server   *http.Server
}

// Execute runs the root command
func Execute(ctx context.Context, version string) error {
	return newRootCommand(version).ExecuteContext(ctx)
}

func newRootCommand(version string) *cobra.Command {
	e := &env{}

	rootCmd := &cobra.Command{
		Use:   "libreflux",
		Short: "Action-driven store, state machines and topic orchestration",
		Long: `libreflux runs the reference scenarios of the libreflux runtime and
validates YAML state machine definitions.

Scenarios:
  - counter: an effect re-dispatching increments until a limit
  - traffic-light: a state machine cycling through its lights
  - topic: producers gathered and handed to a consumer`,
		Version:           version,
		SilenceUsage:      true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error { return e.setup(cmd) },
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return e.shutdown(cmd.Context())
		},
	}

	rootCmd.PersistentFlags().StringVar(&e.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&e.logFormat, "log-format", "text", "log format (text, json)")
	rootCmd.PersistentFlags().BoolVar(&e.trace, "trace", false, "write action spans to stderr")
	rootCmd.PersistentFlags().StringVar(&e.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")

	rootCmd.AddCommand(newCounterCommand(e))
	rootCmd.AddCommand(newTrafficLightCommand(e))
	rootCmd.AddCommand(newTopicCommand(e))
	rootCmd.AddCommand(newValidateCommand(e))

	return rootCmd
}

func (e *env) setup(cmd *cobra.Command) error {
	cfg := telemetry.DefaultLoggerConfig()
	cfg.Level = e.logLevel
	cfg.Format = e.logFormat
	cfg.Output = cmd.ErrOrStderr()
	logger, err := telemetry.NewLogger(cfg)
	if err != nil {
		return err
	}
	e.logger = logger
	e.registry = libreflux.NewRegistry()
	e.metrics = telemetry.NewMetrics("libreflux")

	if e.trace {
		e.tracer, err = telemetry.NewTracer(cmd.ErrOrStderr(), "libreflux")
		if err != nil {
			return err
		}
	}

	if e.metricsAddr != "" {
		ln, err := net.Listen("tcp", e.metricsAddr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", e.metricsAddr, err)
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", e.metrics.Handler())
		e.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := e.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				e.logger.Error("metrics server failed", "error", err)
			}
		}()
		e.logger.Info("serving metrics", "addr", ln.Addr().String())
	}

	return nil
}

func (e *env) shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	var errs []error
	if e.server != nil {
		errs = append(errs, e.server.Shutdown(ctx))
	}
	if e.tracer != nil {
		errs = append(errs, e.tracer.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

// storeOptions wires logging, metrics and tracing into a store
func (e *env) storeOptions() []libreflux.Option {
	opts := []libreflux.Option{
		libreflux.WithLogger(e.logger),
		libreflux.WithRegistry(e.registry),
		libreflux.WithRecorder(e.metrics),
	}
	if e.tracer != nil {
		opts = append(opts, libreflux.WithTracer(e.tracer.Tracer()))
	}
	return opts
}

// openInput opens path, or stdin for "-"
func openInput(cmd *cobra.Command, path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(cmd.InOrStdin()), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return f, nil
}
