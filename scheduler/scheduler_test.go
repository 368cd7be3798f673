package scheduler

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"watchfront/config"
	"watchfront/models"
	"watchfront/scraper"
	"watchfront/storage"
)

type fakeRunner struct {
	mu       sync.Mutex
	runs     int
	commands []models.CommandType
	paused   bool
}

func (f *fakeRunner) Run(context.Context) (*scraper.RunResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs++
	return &scraper.RunResult{Run: &models.AcquisitionRun{Status: models.RunStatusCompleted}}, nil
}

func (f *fakeRunner) HandleCommand(_ context.Context, cmd *models.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, cmd.Command)
	switch cmd.Command {
	case models.CmdPause:
		f.paused = true
	case models.CmdResume:
		f.paused = false
	}
	return nil
}

func (f *fakeRunner) IsPaused() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.paused
}

func newTestStore(t *testing.T) *storage.SQLiteStore {
	t.Helper()
	s, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestProcessCommandsInOrderOnce(t *testing.T) {
	store := newTestStore(t)
	runner := &fakeRunner{}
	s := New(&config.Config{}, runner, store)

	store.EnqueueCommand(models.CmdPause, nil)
	store.EnqueueCommand(models.CmdFetchNow, &models.CommandParams{Provider: "browse"})

	s.processCommands(context.Background())
	s.processCommands(context.Background())

	if len(runner.commands) != 2 || runner.commands[0] != models.CmdPause || runner.commands[1] != models.CmdFetchNow {
		t.Fatalf("commands = %v", runner.commands)
	}
	pending, err := store.GetPendingCommands()
	if err != nil {
		t.Fatalf("GetPendingCommands: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("%d commands still pending", len(pending))
	}
}

func TestScheduledRunSkipsWhenPaused(t *testing.T) {
	runner := &fakeRunner{paused: true}
	s := New(&config.Config{}, runner, newTestStore(t))

	s.scheduledRun(context.Background())
	if runner.runs != 0 {
		t.Fatal("paused scheduler should not run")
	}

	runner.paused = false
	s.scheduledRun(context.Background())
	if runner.runs != 1 {
		t.Fatalf("runs = %d", runner.runs)
	}
}

func TestDue(t *testing.T) {
	store := newTestStore(t)
	cfg := &config.Config{Scheduler: config.SchedulerConfig{Interval: time.Hour}}
	s := New(cfg, &fakeRunner{}, store)
	now := time.Now()

	if !s.due(now) {
		t.Fatal("no previous run should be due")
	}

	finished := now.Add(-10 * time.Minute)
	run := &models.AcquisitionRun{SellerID: "watchdealer", Provider: "browse", StartedAt: now.Add(-11 * time.Minute), Status: models.RunStatusRunning}
	if err := store.CreateRun(run); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	run.FinishedAt = &finished
	run.Status = models.RunStatusCompleted
	if err := store.UpdateRun(run); err != nil {
		t.Fatalf("UpdateRun: %v", err)
	}

	if s.due(now) {
		t.Fatal("recent run should not be due")
	}
	if !s.due(now.Add(time.Hour)) {
		t.Fatal("run older than the interval should be due")
	}
}

func TestStartRejectsBadCron(t *testing.T) {
	cfg := &config.Config{Scheduler: config.SchedulerConfig{Cron: "every tuesday"}}
	s := New(cfg, &fakeRunner{}, newTestStore(t))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := s.Start(ctx); err == nil {
		t.Fatal("expected invalid cron error")
	}
	s.Stop()
	s.Stop()
}
