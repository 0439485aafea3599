package scheduler

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/robfig/cron/v3"

	"inventory_watch/config"
	"inventory_watch/logging"
	"inventory_watch/models"
	"inventory_watch/scraper"
)

// Runner is the pipeline the scheduler drives.
type Runner interface {
	RunAll(ctx context.Context) (*scraper.RunResult, error)
	HandleCommand(ctx context.Context, cmd *models.Command) error
}

// CommandQueue is the pending-command table polled by the daemon.
type CommandQueue interface {
	GetPendingCommands() ([]models.Command, error)
	MarkCommandProcessed(id int64) error
}

type Scheduler struct {
	cfg      config.SchedulerConfig
	runner   Runner
	commands CommandQueue
	cron     *cron.Cron
	ticker   *time.Ticker
	stopCh   chan struct{}
	now      func() time.Time
}

func New(cfg config.SchedulerConfig, runner Runner, commands CommandQueue) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		runner:   runner,
		commands: commands,
		cron:     cron.New(),
		stopCh:   make(chan struct{}),
		now:      time.Now,
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	if s.commands != nil {
		go s.pollCommands(ctx)
	}

	if s.cfg.Cron != "" {
		logging.Infof("starting scheduler with cron: %s", s.cfg.Cron)
		_, err := s.cron.AddFunc(s.cfg.Cron, func() { s.scheduledRun(ctx) })
		if err != nil {
			return fmt.Errorf("invalid cron expression: %w", err)
		}
		s.cron.Start()
	} else if s.cfg.Interval > 0 {
		logging.Infof("starting scheduler with interval: %s", s.cfg.Interval)
		s.ticker = time.NewTicker(s.cfg.Interval)
		go func() {
			for {
				select {
				case <-s.ticker.C:
					s.scheduledRun(ctx)
				case <-s.stopCh:
					return
				case <-ctx.Done():
					return
				}
			}
		}()
	} else {
		logging.Infof("no schedule configured, daemon will only respond to commands")
	}

	return nil
}

func (s *Scheduler) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	if s.ticker != nil {
		s.ticker.Stop()
	}
	close(s.stopCh)
}

// scheduledRun applies the business-hours guard. Manual triggers bypass it.
func (s *Scheduler) scheduledRun(ctx context.Context) {
	now := s.now()
	if !InBusinessHours(now, s.cfg.BusinessHours) {
		logging.Infof("outside business hours (%s), skipping scheduled search", now.Format("Mon 15:04"))
		return
	}
	if _, err := s.runner.RunAll(ctx); err != nil && !errors.Is(err, scraper.ErrPaused) {
		logging.Errorf("scheduled run error: %v", err)
	}
}

// InBusinessHours reports whether t falls on a configured day within
// [StartHour, EndHour). A zero value allows every time.
func InBusinessHours(t time.Time, bh config.BusinessHours) bool {
	if len(bh.Days) > 0 && !slices.Contains(bh.Days, t.Weekday()) {
		return false
	}
	if bh.EndHour <= bh.StartHour {
		return true
	}
	return t.Hour() >= bh.StartHour && t.Hour() < bh.EndHour
}

func (s *Scheduler) pollCommands(ctx context.Context) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.processCommands(ctx)
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) processCommands(ctx context.Context) {
	cmds, err := s.commands.GetPendingCommands()
	if err != nil {
		logging.Errorf("error getting commands: %v", err)
		return
	}

	for _, cmd := range cmds {
		logging.Infof("processing command: %s", cmd.Command)
		if err := s.runner.HandleCommand(ctx, &cmd); err != nil {
			logging.Errorf("command %s error: %v", cmd.Command, err)
		}
		if err := s.commands.MarkCommandProcessed(cmd.ID); err != nil {
			logging.Errorf("error marking command processed: %v", err)
		}
	}
}

// TriggerNow runs a search immediately, regardless of business hours.
func (s *Scheduler) TriggerNow(ctx context.Context) (*scraper.RunResult, error) {
	return s.runner.RunAll(ctx)
}

// NextRuns lists the next n cron firings after from.
func NextRuns(expr string, from time.Time, n int) ([]time.Time, error) {
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}
	runs := make([]time.Time, 0, n)
	t := from
	for i := 0; i < n; i++ {
		t = sched.Next(t)
		runs = append(runs, t)
	}
	return runs, nil
}
