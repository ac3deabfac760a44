package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/petal-labs/eventsheet/bus"
	"github.com/petal-labs/eventsheet/config"
	"github.com/petal-labs/eventsheet/loader"
	sheetotel "github.com/petal-labs/eventsheet/otel"
	"github.com/petal-labs/eventsheet/registry"
	"github.com/petal-labs/eventsheet/runtime"
)

// NewRunCmd creates the "run" subcommand.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <sheet>",
		Short: "Play an event sheet until it quits or runs out of ticks",
		Args:  cobra.ExactArgs(1),
		RunE:  runRun,
	}

	addRunFlags(cmd)
	cmd.Flags().Duration("timeout", 5*time.Minute, "Wall-clock limit for the run")
	cmd.Flags().String("format", "text", "Output format: text | json")
	cmd.Flags().Bool("stream", false, "Print run events as they happen (tick events are coalesced)")
	cmd.Flags().Bool("metrics", false, "Print a metrics summary after the run")
	cmd.Flags().String("otlp-endpoint", "", "Export spans to this OTLP/HTTP collector (host:port)")

	return cmd
}

// addRunFlags registers the flags shared by run and schedule.
func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().Int("ticks", 0, "Maximum number of ticks (default from config: 600)")
	cmd.Flags().Duration("time-delta", 0, "Simulated duration of one tick (default from config: 1/60s)")
	cmd.Flags().Uint64("seed", 0, "Random seed (default: random)")
	cmd.Flags().String("scene", "", "Start in this scene instead of the sheet's start scene")
	cmd.Flags().String("store-path", "", "Persist run events to this SQLite database")
}

func runRun(cmd *cobra.Command, args []string) error {
	s := settingsFrom(cmd)
	out := cmd.OutOrStdout()

	format, _ := cmd.Flags().GetString("format")
	if format != "text" && format != "json" {
		return exitError(exitInputParse, "unknown format %q (use text or json)", format)
	}

	reg := registry.NewWithBuiltins()
	game, err := loadGameForRun(cmd, args[0], reg)
	if err != nil {
		return err
	}
	opts, err := buildRunOptions(cmd, s, game)
	if err != nil {
		return err
	}

	var handlers []runtime.EventHandler

	if storePath := resolveStorePath(cmd, s, ""); storePath != "" {
		store, err := openEventStore(storePath, s.cfg.Store)
		if err != nil {
			return exitError(exitRuntime, "opening event store: %v", err)
		}
		defer func() { _ = store.Close() }()
		handlers = append(handlers, bus.NewStoreSubscriber(store, s.logger).Handle)
	}

	showMetrics, _ := cmd.Flags().GetBool("metrics")
	tel, err := setupTelemetry(cmd, s, showMetrics)
	if err != nil {
		return exitError(exitRuntime, "setting up telemetry: %v", err)
	}
	if tel != nil {
		defer shutdownTelemetry(tel, s)
		handlers = append(handlers, tel.Handler())
		opts.EventEmitterDecorator = tel.Decorator()
	}

	streaming, _ := cmd.Flags().GetBool("stream")
	var throttle *bus.ThrottledEmitter
	if streaming {
		printer := &eventPrinter{w: out, format: format}
		throttle = bus.NewThrottledEmitter(printer.print, bus.ThrottleConfig{})
		defer throttle.Close()
		handlers = append(handlers, throttle.Handler())
	}
	opts.EventHandler = runtime.MultiEventHandler(handlers...)

	ctx, cancel, timeout := runContext(cmd)
	defer cancel()

	res, runErr := runtime.NewRunner(reg).Run(ctx, game, opts)
	if throttle != nil {
		throttle.Close()
	}
	if runErr != nil {
		return runRuntimeError(ctx, timeout, runErr)
	}

	var metrics []sheetotel.MetricValue
	if showMetrics {
		if metrics, err = tel.Summary(cmd.Context()); err != nil {
			return exitError(exitRuntime, "collecting metrics: %v", err)
		}
	}

	// The stream already carried the run; only the metrics remain.
	if streaming {
		writeMetricsText(out, metrics)
		return nil
	}
	if err := writeRunResult(out, res, metrics, format); err != nil {
		return exitError(exitRuntime, "writing result: %v", err)
	}
	return nil
}

func loadGameForRun(cmd *cobra.Command, filePath string, ext runtime.Extensions) (*runtime.Game, error) {
	game, diags, err := loader.LoadGame(filePath, ext)
	if err != nil {
		var (
			diagErr  *loader.DiagnosticError
			parseErr *loader.ParseError
		)
		switch {
		case errors.As(err, &diagErr):
			printDiagnosticsText(cmd.ErrOrStderr(), diagErr.Diagnostics)
			return nil, exitError(exitValidation, "validation failed")
		case errors.Is(err, fs.ErrNotExist), errors.Is(err, loader.ErrUnknownFormat), errors.As(err, &parseErr):
			return nil, loadError(filePath, err)
		default:
			return nil, exitError(exitValidation, "%v", err)
		}
	}
	logger := settingsFrom(cmd).logger
	for _, d := range diags {
		logger.Warn("sheet warning", "code", d.Code, "message", d.Message, "path", d.Path)
	}
	return game, nil
}

// buildRunOptions merges config values with the flags that were set.
func buildRunOptions(cmd *cobra.Command, s *settings, game *runtime.Game) (runtime.RunOptions, error) {
	opts := runtime.DefaultRunOptions()
	opts.MaxTicks = s.cfg.Run.MaxTicks
	opts.TimeDelta = s.cfg.Run.TimeDelta
	opts.Seed = s.cfg.Run.Seed
	opts.Logger = s.logger

	flags := cmd.Flags()
	if flags.Changed("ticks") {
		opts.MaxTicks, _ = flags.GetInt("ticks")
		if opts.MaxTicks <= 0 {
			return opts, exitError(exitInputParse, "--ticks must be positive")
		}
	}
	if flags.Changed("time-delta") {
		opts.TimeDelta, _ = flags.GetDuration("time-delta")
		if opts.TimeDelta <= 0 {
			return opts, exitError(exitInputParse, "--time-delta must be positive")
		}
	}
	if flags.Changed("seed") {
		opts.Seed, _ = flags.GetUint64("seed")
	}
	if scene, _ := flags.GetString("scene"); scene != "" {
		if _, ok := game.Scene(scene); !ok {
			return opts, exitError(exitInputParse, "unknown scene %q", scene)
		}
		opts.StartScene = scene
	}
	return opts, nil
}

// resolveStorePath picks the store from --store-path, then the config,
// then fallback.
func resolveStorePath(cmd *cobra.Command, s *settings, fallback string) string {
	if p, _ := cmd.Flags().GetString("store-path"); strings.TrimSpace(p) != "" {
		return p
	}
	if s.cfg.Store.Path != "" {
		return s.cfg.Store.Path
	}
	return fallback
}

func openEventStore(path string, cfg config.StoreConfig) (*bus.SQLiteEventStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}
	return bus.NewSQLiteEventStore(bus.SQLiteStoreConfig{
		DSN:           path,
		RetentionAge:  cfg.RetentionAge,
		RetentionRuns: cfg.RetentionCount,
	})
}

// setupTelemetry returns nil when neither metrics nor span export were
// requested.
func setupTelemetry(cmd *cobra.Command, s *settings, metrics bool) (*sheetotel.Telemetry, error) {
	endpoint := s.cfg.Telemetry.OTLPEndpoint
	if cmd.Flags().Lookup("otlp-endpoint") != nil {
		if e, _ := cmd.Flags().GetString("otlp-endpoint"); e != "" {
			endpoint = e
		}
	}
	if !metrics && endpoint == "" {
		return nil, nil
	}
	return sheetotel.Setup(cmd.Context(), sheetotel.Config{
		Endpoint:    endpoint,
		ServiceName: s.cfg.Telemetry.ServiceName,
		Insecure:    s.cfg.Telemetry.Insecure,
	})
}

func shutdownTelemetry(tel *sheetotel.Telemetry, s *settings) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tel.Shutdown(ctx); err != nil {
		s.logger.Warn("telemetry shutdown failed", "error", err)
	}
}

func runContext(cmd *cobra.Command) (context.Context, context.CancelFunc, time.Duration) {
	timeout, _ := cmd.Flags().GetDuration("timeout")
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	return ctx, cancel, timeout
}

func runRuntimeError(ctx context.Context, timeout time.Duration, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return exitError(exitTimeout, "run timed out after %s", timeout)
	}
	return exitError(exitRuntime, "run failed: %v", err)
}
