package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

const defaultSchedulePollInterval = time.Second

var standardCronParser = cron.NewParser(
	cron.Minute |
		cron.Hour |
		cron.Dom |
		cron.Month |
		cron.Dow,
)

// ParseCron parses a five-field UTC cron expression.
func ParseCron(expr string) (cron.Schedule, error) {
	clean := strings.TrimSpace(expr)
	if clean == "" {
		return nil, fmt.Errorf("cron expression is required")
	}

	upper := strings.ToUpper(clean)
	if strings.Contains(upper, "CRON_TZ=") || strings.Contains(upper, "TZ=") {
		return nil, fmt.Errorf("cron expression must be UTC-only (timezone prefixes are not allowed)")
	}

	schedule, err := standardCronParser.Parse(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}
	return schedule, nil
}

// SchedulerConfig configures a Scheduler.
type SchedulerConfig struct {
	Runner       *Runner
	Game         *Game
	Options      RunOptions
	Cron         string
	PollInterval time.Duration
	Now          func() time.Time
	Logger       *slog.Logger

	// OnResult is called after every scheduled run.
	OnResult func(*Result, error)
}

// Scheduler runs a game repeatedly on a cron schedule. A run that is due
// while the previous one is still active is skipped.
type Scheduler struct {
	runner       *Runner
	game         *Game
	opts         RunOptions
	schedule     cron.Schedule
	pollInterval time.Duration
	now          func() time.Time
	logger       *slog.Logger
	onResult     func(*Result, error)

	mu      sync.Mutex
	nextRun time.Time
	active  bool
	runs    int
	skipped int
	cancel  context.CancelFunc
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewScheduler validates cfg and computes the first run time.
func NewScheduler(cfg SchedulerConfig) (*Scheduler, error) {
	if cfg.Runner == nil {
		return nil, errors.New("scheduler runner is nil")
	}
	if cfg.Game == nil {
		return nil, errors.New("scheduler game is nil")
	}
	schedule, err := ParseCron(cfg.Cron)
	if err != nil {
		return nil, err
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultSchedulePollInterval
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Scheduler{
		runner:       cfg.Runner,
		game:         cfg.Game,
		opts:         cfg.Options,
		schedule:     schedule,
		pollInterval: cfg.PollInterval,
		now:          cfg.Now,
		logger:       cfg.Logger,
		onResult:     cfg.OnResult,
		nextRun:      schedule.Next(cfg.Now().UTC()),
	}, nil
}

// NextRun returns when the next run is due.
func (s *Scheduler) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextRun
}

// Stats returns the number of started and skipped runs.
func (s *Scheduler) Stats() (runs, skipped int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs, s.skipped
}

// Start starts background polling. Runs started by the scheduler are
// canceled when Stop is called.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return
	}
	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				s.RunOnce(loopCtx)
			}
		}
	}()
}

// Stop stops polling and waits for an active run to return.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	finished := make(chan struct{})
	go func() {
		<-done
		s.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce starts a run if one is due. It reports whether a run started.
func (s *Scheduler) RunOnce(ctx context.Context) bool {
	now := s.now().UTC()

	s.mu.Lock()
	if now.Before(s.nextRun) {
		s.mu.Unlock()
		return false
	}
	scheduledAt := s.nextRun
	s.nextRun = s.schedule.Next(now)
	if s.active {
		s.skipped++
		s.mu.Unlock()
		s.logger.Warn("scheduled run skipped, previous run still active", "game", s.game.Name, "scheduled_at", scheduledAt)
		return false
	}
	s.active = true
	s.runs++
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			s.active = false
			s.mu.Unlock()
		}()

		s.logger.Info("scheduled run starting", "game", s.game.Name, "scheduled_at", scheduledAt)
		res, err := s.runner.Run(ctx, s.game, s.opts)
		if err != nil {
			s.logger.Error("scheduled run failed", "game", s.game.Name, "error", err)
		}
		if s.onResult != nil {
			s.onResult(res, err)
		}
	}()
	return true
}
