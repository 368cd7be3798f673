package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"watchfront/config"
	"watchfront/logging"
	"watchfront/models"
	"watchfront/scraper"
	"watchfront/storage"
)

var logger = logging.New("scheduler")

// Runner is the part of the orchestrator the daemon drives.
type Runner interface {
	Run(ctx context.Context) (*scraper.RunResult, error)
	HandleCommand(ctx context.Context, cmd *models.Command) error
	IsPaused() bool
}

type Scheduler struct {
	cfg          *config.Config
	orchestrator Runner
	store        *storage.SQLiteStore
	cron         *cron.Cron
	ticker       *time.Ticker
	stopCh       chan struct{}
	stopOnce     sync.Once
	pollEvery    time.Duration
}

func New(cfg *config.Config, orchestrator Runner, store *storage.SQLiteStore) *Scheduler {
	return &Scheduler{
		cfg:          cfg,
		orchestrator: orchestrator,
		store:        store,
		cron:         cron.New(),
		stopCh:       make(chan struct{}),
		pollEvery:    2 * time.Second,
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	go s.pollCommands(ctx)

	if s.cfg.Scheduler.Cron != "" {
		logger.Infof("Starting scheduler with cron: %s", s.cfg.Scheduler.Cron)
		_, err := s.cron.AddFunc(s.cfg.Scheduler.Cron, func() {
			s.scheduledRun(ctx)
		})
		if err != nil {
			return fmt.Errorf("invalid cron expression: %w", err)
		}
		s.cron.Start()
	} else if s.cfg.Scheduler.Interval > 0 {
		logger.Infof("Starting scheduler with interval: %s", s.cfg.Scheduler.Interval)
		s.ticker = time.NewTicker(s.cfg.Scheduler.Interval)
		go func() {
			if s.due(time.Now()) {
				s.scheduledRun(ctx)
			}
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
		logger.Infof("No schedule configured, daemon will only respond to commands")
	}

	return nil
}

func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		if s.cron != nil {
			<-s.cron.Stop().Done()
		}
		if s.ticker != nil {
			s.ticker.Stop()
		}
		close(s.stopCh)
	})
}

// due reports whether the last finished run is older than the interval, so
// a restarted daemon catches up instead of waiting a full period.
func (s *Scheduler) due(now time.Time) bool {
	if s.cfg.Scheduler.Interval <= 0 {
		return false
	}
	last, err := s.store.GetLastRunTime()
	if err != nil {
		logger.Warnf("Error getting last run time: %v", err)
		return false
	}
	return last.IsZero() || now.Sub(last) >= s.cfg.Scheduler.Interval
}

func (s *Scheduler) scheduledRun(ctx context.Context) {
	if s.orchestrator.IsPaused() {
		logger.Infof("Acquisition is paused, skipping scheduled run")
		return
	}
	result, err := s.orchestrator.Run(ctx)
	if err != nil {
		logger.Errorf("Scheduled run error: %v", err)
		return
	}
	logger.Infof("Scheduled run %s: %s, %d listings written", result.Run.ID, result.Run.Status, result.Run.ItemsWritten)
}

func (s *Scheduler) pollCommands(ctx context.Context) {
	ticker := time.NewTicker(s.pollEvery)
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

// processCommands runs every pending command once, oldest first.
func (s *Scheduler) processCommands(ctx context.Context) {
	cmds, err := s.store.GetPendingCommands()
	if err != nil {
		logger.Errorf("Error getting commands: %v", err)
		return
	}

	for _, cmd := range cmds {
		logger.Infof("Processing command: %s", cmd.Command)
		if err := s.orchestrator.HandleCommand(ctx, &cmd); err != nil {
			logger.Errorf("Command error: %v", err)
		}
		if err := s.store.MarkCommandProcessed(cmd.ID); err != nil {
			logger.Errorf("Error marking command processed: %v", err)
		}
	}
}

// TriggerNow runs acquisition immediately, ignoring pause.
func (s *Scheduler) TriggerNow(ctx context.Context) (*scraper.RunResult, error) {
	return s.orchestrator.Run(ctx)
}
