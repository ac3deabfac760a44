package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/petal-labs/eventsheet/bus"
	"github.com/petal-labs/eventsheet/config"
	"github.com/petal-labs/eventsheet/runtime"
)

// NewEventsCmd creates the "events" subcommand.
func NewEventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events [run-id]",
		Short: "List persisted runs, or the events of one run",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runEvents,
	}

	cmd.Flags().String("store-path", "", "SQLite event store (default: ~/.eventsheet/events.db)")
	cmd.Flags().String("format", "text", "Output format: text | json")
	cmd.Flags().StringArray("kind", nil, "Only show events of this kind (repeatable)")
	cmd.Flags().Uint64("after", 0, "Only show events with a higher sequence number")
	cmd.Flags().Int("limit", 0, "Maximum number of events (0 = all)")

	return cmd
}

func runEvents(cmd *cobra.Command, args []string) error {
	s := settingsFrom(cmd)
	format, _ := cmd.Flags().GetString("format")
	if format != "text" && format != "json" {
		return exitError(exitInputParse, "unknown format %q (use text or json)", format)
	}

	storePath := resolveStorePath(cmd, s, defaultStorePath())
	if _, err := os.Stat(storePath); errors.Is(err, fs.ErrNotExist) {
		return exitError(exitFileNotFound, "event store not found: %s", storePath)
	}
	// Reading never prunes.
	store, err := openEventStore(storePath, config.StoreConfig{})
	if err != nil {
		return exitError(exitRuntime, "opening event store: %v", err)
	}
	defer func() { _ = store.Close() }()

	if len(args) == 0 {
		return listRuns(cmd, store, format)
	}
	return listEvents(cmd, store, args[0], format)
}

func listRuns(cmd *cobra.Command, store bus.EventStore, format string) error {
	runs, err := store.Runs(cmd.Context())
	if err != nil {
		return exitError(exitRuntime, "listing runs: %v", err)
	}
	out := cmd.OutOrStdout()

	if format == "json" {
		if runs == nil {
			runs = []bus.RunSummary{}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	}

	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded.")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN ID\tGAME\tSTATUS\tEVENTS\tSTARTED")
	for _, r := range runs {
		status := r.Status
		if status == "" {
			status = "running"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", r.RunID, r.Game, status, r.Events, r.Started.Local().Format(time.DateTime))
	}
	return tw.Flush()
}

func listEvents(cmd *cobra.Command, store bus.EventStore, runID, format string) error {
	ctx := cmd.Context()
	after, _ := cmd.Flags().GetUint64("after")
	limit, _ := cmd.Flags().GetInt("limit")
	kinds, _ := cmd.Flags().GetStringArray("kind")

	latest, err := store.LatestSeq(ctx, runID)
	if err != nil {
		return exitError(exitRuntime, "reading run %s: %v", runID, err)
	}
	if latest == 0 {
		return exitError(exitFileNotFound, "run not found: %s", runID)
	}

	events, err := store.List(ctx, runID, after, limit)
	if err != nil {
		return exitError(exitRuntime, "listing events: %v", err)
	}
	if len(kinds) > 0 {
		keep := make([]runtime.EventKind, len(kinds))
		for i, k := range kinds {
			kind, err := runtime.ParseEventKind(k)
			if err != nil {
				return exitError(exitInputParse, "%v", err)
			}
			keep[i] = kind
		}
		filter := bus.KindFilter(keep...)
		filtered := events[:0]
		for _, e := range events {
			if filter(e) {
				filtered = append(filtered, e)
			}
		}
		events = filtered
	}

	out := cmd.OutOrStdout()
	if format == "json" {
		items := make([]eventJSON, 0, len(events))
		for _, e := range events {
			items = append(items, toEventJSON(e))
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(items)
	}

	printer := &eventPrinter{w: out, format: format}
	for _, e := range events {
		printer.print(e)
	}
	return nil
}
