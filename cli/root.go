// Package cli implements the eventsheet command line: evaluating single
// expressions, validating sheets, running them once or on a schedule and
// reading back persisted run events.
package cli

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/petal-labs/eventsheet/config"
)

// NewRootCmd returns the eventsheet command tree.
func NewRootCmd(version string) *cobra.Command {
	root := &cobra.Command{
		Use:   "eventsheet",
		Short: "Headless event sheet interpreter",
		Long:  "eventsheet evaluates GDL expressions and plays event-sheet games without rendering.",
		// SilenceUsage prevents printing usage on every error
		SilenceUsage:      true,
		Version:           version,
		PersistentPreRunE: loadSettings,
	}
	root.SetVersionTemplate("eventsheet version {{.Version}}\n")

	root.PersistentFlags().String("config", "", "Config file (default: ./eventsheet.yaml, then ~/.eventsheet/config.yaml)")
	root.PersistentFlags().Bool("verbose", false, "Enable verbose/debug logging")
	root.PersistentFlags().Bool("quiet", false, "Suppress all output except errors")

	root.AddCommand(NewEvalCmd())
	root.AddCommand(NewValidateCmd())
	root.AddCommand(NewRunCmd())
	root.AddCommand(NewScheduleCmd())
	root.AddCommand(NewEventsCmd())
	return root
}

type settingsKey struct{}

// settings is what every subcommand shares: the resolved config and the
// logger built from it.
type settings struct {
	cfg    config.Config
	logger *slog.Logger
}

func loadSettings(cmd *cobra.Command, _ []string) error {
	explicit, _ := cmd.Flags().GetString("config")
	cfg, path, err := config.Load(explicit)
	if err != nil {
		return exitError(exitInputParse, "loading config: %v", err)
	}

	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		cfg.Log.Level = "debug"
	}
	if quiet, _ := cmd.Flags().GetBool("quiet"); quiet {
		cfg.Log.Level = "error"
	}
	logger, err := cfg.Log.Logger(cmd.ErrOrStderr())
	if err != nil {
		return exitError(exitInputParse, "configuring logger: %v", err)
	}
	if path != "" {
		logger.Debug("config loaded", "path", path)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(context.WithValue(ctx, settingsKey{}, &settings{cfg: cfg, logger: logger}))
	return nil
}

// settingsFrom returns the settings installed by the root command, or
// defaults logging warnings to stderr when the command runs standalone.
func settingsFrom(cmd *cobra.Command) *settings {
	if ctx := cmd.Context(); ctx != nil {
		if s, ok := ctx.Value(settingsKey{}).(*settings); ok {
			return s
		}
	}
	return &settings{
		cfg:    config.Default(),
		logger: slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelWarn})),
	}
}

// defaultStorePath is where scheduled runs persist events when neither a
// flag nor the config names a store.
func defaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "eventsheet.db"
	}
	return filepath.Join(home, ".eventsheet", "events.db")
}
