package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/petal-labs/eventsheet/bus"
	"github.com/petal-labs/eventsheet/registry"
	"github.com/petal-labs/eventsheet/runtime"
)

// NewScheduleCmd creates the "schedule" subcommand.
func NewScheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule <sheet>",
		Short: "Run an event sheet on a cron schedule until interrupted",
		Long: "Runs the sheet whenever the five-field UTC cron expression fires. " +
			"A run that is due while the previous one is still playing is skipped. " +
			"Every event is persisted to the event store.",
		Args: cobra.ExactArgs(1),
		RunE: runSchedule,
	}

	addRunFlags(cmd)
	cmd.Flags().String("cron", "", "Five-field UTC cron expression (required)")
	cmd.Flags().Duration("poll-interval", time.Second, "How often to check whether a run is due")
	cmd.Flags().Int("max-runs", 0, "Stop after this many runs (0 = until interrupted)")
	_ = cmd.MarkFlagRequired("cron")

	return cmd
}

func runSchedule(cmd *cobra.Command, args []string) error {
	s := settingsFrom(cmd)
	out := cmd.OutOrStdout()

	cronExpr, _ := cmd.Flags().GetString("cron")
	if _, err := runtime.ParseCron(cronExpr); err != nil {
		return exitError(exitInputParse, "%v", err)
	}
	pollInterval, _ := cmd.Flags().GetDuration("poll-interval")
	maxRuns, _ := cmd.Flags().GetInt("max-runs")

	reg := registry.NewWithBuiltins()
	game, err := loadGameForRun(cmd, args[0], reg)
	if err != nil {
		return err
	}
	opts, err := buildRunOptions(cmd, s, game)
	if err != nil {
		return err
	}

	storePath := resolveStorePath(cmd, s, defaultStorePath())
	store, err := openEventStore(storePath, s.cfg.Store)
	if err != nil {
		return exitError(exitRuntime, "opening event store: %v", err)
	}
	defer func() { _ = store.Close() }()

	// Runs publish to the bus; one subscriber drains it into the store so
	// a slow disk never stalls a tick.
	eventBus := bus.NewMemBus(bus.MemBusConfig{SubscriberBufferSize: 4096})
	consumed := make(chan uint64, 1)
	sub := eventBus.SubscribeAll(nil)
	go func() {
		consumed <- bus.NewStoreSubscriber(store, s.logger).Consume(context.Background(), sub)
	}()
	opts.EventBus = eventBus

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		outMu    sync.Mutex
		finished atomic.Int64
	)
	sched, err := runtime.NewScheduler(runtime.SchedulerConfig{
		Runner:       runtime.NewRunner(reg),
		Game:         game,
		Options:      opts,
		Cron:         cronExpr,
		PollInterval: pollInterval,
		Logger:       s.logger,
		OnResult: func(res *runtime.Result, err error) {
			outMu.Lock()
			printScheduledResult(out, res, err)
			outMu.Unlock()
			if maxRuns > 0 && finished.Add(1) >= int64(maxRuns) {
				stop()
			}
		},
	})
	if err != nil {
		return exitError(exitInputParse, "%v", err)
	}

	fmt.Fprintf(out, "Scheduled %s (%s), next run at %s, events in %s\n",
		game.Name, cronExpr, sched.NextRun().Format(time.RFC3339), storePath)
	sched.Start()
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	stopErr := sched.Stop(stopCtx)
	_ = eventBus.Close()
	if dropped := <-consumed; dropped > 0 {
		s.logger.Warn("events dropped before reaching the store", "dropped", dropped)
	}

	runs, skipped := sched.Stats()
	fmt.Fprintf(out, "Stopped after %s (%d skipped)\n", plural(runs, "run"), skipped)
	if stopErr != nil {
		return exitError(exitTimeout, "waiting for active run: %v", stopErr)
	}
	return nil
}

func printScheduledResult(w io.Writer, res *runtime.Result, err error) {
	if res == nil {
		fmt.Fprintf(w, "run failed: %v\n", err)
		return
	}
	status := "stopped at tick limit"
	switch {
	case err != nil:
		status = "failed: " + err.Error()
	case res.Completed:
		status = "completed"
	}
	fmt.Fprintf(w, "%s %s ticks=%d %s\n", res.RunID, res.Game, res.Ticks, status)
}
