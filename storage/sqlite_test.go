package storage

import (
	"path/filepath"
	"testing"
	"time"

	"watchfront/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRunLifecycle(t *testing.T) {
	s := newTestStore(t)

	run := &models.AcquisitionRun{
		SellerID:   "watchdealer",
		Provider:   "browse",
		StartedAt:  time.Now().Add(-time.Minute),
		Status:     models.RunStatusRunning,
		OutputPath: "listings.json",
	}
	if err := s.CreateRun(run); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	finished := time.Now()
	run.FinishedAt = &finished
	run.Status = models.RunStatusCompleted
	run.ItemsFound = 12
	run.ItemsWritten = 11
	if err := s.UpdateRun(run); err != nil {
		t.Fatalf("UpdateRun: %v", err)
	}

	got, err := s.GetRun(run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got == nil {
		t.Fatal("run not found")
	}
	if got.Status != models.RunStatusCompleted || got.ItemsWritten != 11 || got.FinishedAt == nil {
		t.Errorf("run = %+v", got)
	}

	last, err := s.GetLastRunTime()
	if err != nil {
		t.Fatalf("GetLastRunTime: %v", err)
	}
	if last.IsZero() {
		t.Error("last run time should be set after a finished run")
	}
}

func TestRunLogsAndStats(t *testing.T) {
	s := newTestStore(t)

	statuses := []models.RunStatus{models.RunStatusCompleted, models.RunStatusFallback, models.RunStatusCompleted, models.RunStatusCompleted}
	var lastRun *models.AcquisitionRun
	for i, st := range statuses {
		run := &models.AcquisitionRun{Provider: "browse", StartedAt: time.Now().Add(time.Duration(i) * time.Second), Status: st}
		if err := s.CreateRun(run); err != nil {
			t.Fatalf("CreateRun: %v", err)
		}
		lastRun = run
	}

	if err := s.Log(&lastRun.ID, models.LogLevelWarn, "page 2 throttled", "browse"); err != nil {
		t.Fatalf("Log: %v", err)
	}
	if err := s.Log(nil, models.LogLevelInfo, "daemon started", ""); err != nil {
		t.Fatalf("Log without run: %v", err)
	}
	logs, err := s.GetRunLogs(lastRun.ID)
	if err != nil {
		t.Fatalf("GetRunLogs: %v", err)
	}
	if len(logs) != 1 || logs[0].Message != "page 2 throttled" || logs[0].Level != models.LogLevelWarn {
		t.Fatalf("logs = %+v", logs)
	}
	if logs[0].RunID == nil || *logs[0].RunID != lastRun.ID {
		t.Errorf("log run id = %v", logs[0].RunID)
	}

	if err := s.UpdateProviderStats("browse"); err != nil {
		t.Fatalf("UpdateProviderStats: %v", err)
	}
	stats, err := s.GetProviderStats("browse")
	if err != nil {
		t.Fatalf("GetProviderStats: %v", err)
	}
	if stats.TotalRuns != 4 || stats.FallbackRuns != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.SuccessRate != 0.75 {
		t.Errorf("success rate = %v, want 0.75", stats.SuccessRate)
	}

	if missing, err := s.GetProviderStats("trading"); err != nil || missing != nil {
		t.Errorf("unknown provider stats = %+v, %v", missing, err)
	}
}

func TestCommandQueue(t *testing.T) {
	s := newTestStore(t)

	if err := s.EnqueueCommand(models.CmdPause, nil); err != nil {
		t.Fatalf("EnqueueCommand: %v", err)
	}
	if err := s.EnqueueCommand(models.CmdFetchNow, &models.CommandParams{Provider: "trading"}); err != nil {
		t.Fatalf("EnqueueCommand: %v", err)
	}

	cmds, err := s.GetPendingCommands()
	if err != nil {
		t.Fatalf("GetPendingCommands: %v", err)
	}
	if len(cmds) != 2 || cmds[0].Command != models.CmdPause || cmds[1].Command != models.CmdFetchNow {
		t.Fatalf("pending = %+v", cmds)
	}

	params, err := s.ParseCommandParams(&cmds[1])
	if err != nil {
		t.Fatalf("ParseCommandParams: %v", err)
	}
	if params.Provider != "trading" {
		t.Errorf("provider param = %q", params.Provider)
	}
	if empty, err := s.ParseCommandParams(&cmds[0]); err != nil || empty.Provider != "" {
		t.Errorf("nil params = %+v, %v", empty, err)
	}

	if err := s.MarkCommandProcessed(cmds[0].ID); err != nil {
		t.Fatalf("MarkCommandProcessed: %v", err)
	}
	cmds, _ = s.GetPendingCommands()
	if len(cmds) != 1 || cmds[0].Command != models.CmdFetchNow {
		t.Fatalf("after processing = %+v", cmds)
	}
}

func TestPreferences(t *testing.T) {
	s := newTestStore(t)

	if _, ok, err := s.GetPreference("display_mode"); err != nil || ok {
		t.Fatalf("fresh store should have no preference (ok=%v err=%v)", ok, err)
	}
	if err := s.SetPreference("display_mode", "list"); err != nil {
		t.Fatalf("SetPreference: %v", err)
	}
	if err := s.SetPreference("display_mode", "grid"); err != nil {
		t.Fatalf("SetPreference overwrite: %v", err)
	}
	v, ok, err := s.GetPreference("display_mode")
	if err != nil || !ok || v != "grid" {
		t.Fatalf("GetPreference = %q, %v, %v", v, ok, err)
	}
}
