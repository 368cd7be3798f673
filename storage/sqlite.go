package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"watchfront/models"
)

// SQLiteStore keeps local operational state: acquisition history, run logs,
// the daemon command queue and user preferences.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS acquisition_runs (
		id TEXT PRIMARY KEY,
		seller_id TEXT,
		provider TEXT,
		started_at DATETIME,
		finished_at DATETIME,
		status TEXT,
		items_found INTEGER DEFAULT 0,
		items_written INTEGER DEFAULT 0,
		errors_count INTEGER DEFAULT 0,
		error_message TEXT,
		output_path TEXT
	);

	CREATE TABLE IF NOT EXISTS run_logs (
		id INTEGER PRIMARY KEY,
		run_id TEXT,
		timestamp DATETIME,
		level TEXT,
		message TEXT,
		provider TEXT
	);

	CREATE TABLE IF NOT EXISTS provider_stats (
		provider TEXT PRIMARY KEY,
		last_run_at DATETIME,
		last_status TEXT,
		total_runs INTEGER,
		fallback_runs INTEGER,
		success_rate REAL
	);

	CREATE TABLE IF NOT EXISTS commands (
		id INTEGER PRIMARY KEY,
		command TEXT,
		params JSON,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		processed_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS preferences (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_commands_pending ON commands(processed_at) WHERE processed_at IS NULL;
	CREATE INDEX IF NOT EXISTS idx_logs_run ON run_logs(run_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_runs_provider ON acquisition_runs(provider, started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) CreateRun(run *models.AcquisitionRun) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	_, err := s.db.Exec(`
		INSERT INTO acquisition_runs (id, seller_id, provider, started_at, status, output_path)
		VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID.String(), run.SellerID, run.Provider, run.StartedAt, run.Status, run.OutputPath)
	return err
}

func (s *SQLiteStore) UpdateRun(run *models.AcquisitionRun) error {
	_, err := s.db.Exec(`
		UPDATE acquisition_runs SET provider = ?, finished_at = ?, status = ?, items_found = ?,
			items_written = ?, errors_count = ?, error_message = ?, output_path = ?
		WHERE id = ?`,
		run.Provider, run.FinishedAt, run.Status, run.ItemsFound,
		run.ItemsWritten, run.ErrorsCount, run.ErrorMessage, run.OutputPath, run.ID.String())
	return err
}

func (s *SQLiteStore) GetRun(id uuid.UUID) (*models.AcquisitionRun, error) {
	row := s.db.QueryRow(`
		SELECT id, seller_id, provider, started_at, finished_at, status, items_found,
			items_written, errors_count, COALESCE(error_message, ''), COALESCE(output_path, '')
		FROM acquisition_runs WHERE id = ?`, id.String())

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return run, err
}

// GetRecentRuns returns the newest runs first.
func (s *SQLiteStore) GetRecentRuns(limit int) ([]models.AcquisitionRun, error) {
	rows, err := s.db.Query(`
		SELECT id, seller_id, provider, started_at, finished_at, status, items_found,
			items_written, errors_count, COALESCE(error_message, ''), COALESCE(output_path, '')
		FROM acquisition_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []models.AcquisitionRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*models.AcquisitionRun, error) {
	var run models.AcquisitionRun
	var id string
	var finished sql.NullTime
	if err := row.Scan(&id, &run.SellerID, &run.Provider, &run.StartedAt, &finished, &run.Status,
		&run.ItemsFound, &run.ItemsWritten, &run.ErrorsCount, &run.ErrorMessage, &run.OutputPath); err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("run id %q: %w", id, err)
	}
	run.ID = parsed
	if finished.Valid {
		run.FinishedAt = &finished.Time
	}
	return &run, nil
}

func (s *SQLiteStore) Log(runID *uuid.UUID, level models.LogLevel, message, provider string) error {
	var rid any
	if runID != nil {
		rid = runID.String()
	}
	_, err := s.db.Exec(`
		INSERT INTO run_logs (run_id, timestamp, level, message, provider)
		VALUES (?, ?, ?, ?, ?)`,
		rid, time.Now(), level, message, provider)
	return err
}

func (s *SQLiteStore) GetRunLogs(runID uuid.UUID) ([]models.RunLog, error) {
	rows, err := s.db.Query(`
		SELECT id, run_id, timestamp, level, message, COALESCE(provider, '')
		FROM run_logs WHERE run_id = ? ORDER BY timestamp, id`, runID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []models.RunLog
	for rows.Next() {
		var l models.RunLog
		var rid sql.NullString
		if err := rows.Scan(&l.ID, &rid, &l.Timestamp, &l.Level, &l.Message, &l.Provider); err != nil {
			return nil, err
		}
		if rid.Valid {
			if id, err := uuid.Parse(rid.String); err == nil {
				l.RunID = &id
			}
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

func (s *SQLiteStore) UpdateProviderStats(provider string) error {
	_, err := s.db.Exec(`
		INSERT INTO provider_stats (provider, last_run_at, last_status, total_runs, fallback_runs, success_rate)
		SELECT
			?,
			(SELECT started_at FROM acquisition_runs WHERE provider = ? ORDER BY started_at DESC LIMIT 1),
			(SELECT status FROM acquisition_runs WHERE provider = ? ORDER BY started_at DESC LIMIT 1),
			(SELECT COUNT(*) FROM acquisition_runs WHERE provider = ?),
			(SELECT COUNT(*) FROM acquisition_runs WHERE provider = ? AND status = 'fallback'),
			(SELECT CAST(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END) AS REAL) /
				NULLIF(COUNT(*), 0) FROM acquisition_runs WHERE provider = ?)
		ON CONFLICT(provider) DO UPDATE SET
			last_run_at = excluded.last_run_at,
			last_status = excluded.last_status,
			total_runs = excluded.total_runs,
			fallback_runs = excluded.fallback_runs,
			success_rate = excluded.success_rate`,
		provider, provider, provider, provider, provider, provider)
	return err
}

func (s *SQLiteStore) GetProviderStats(provider string) (*models.ProviderStats, error) {
	row := s.db.QueryRow(`
		SELECT provider, last_run_at, COALESCE(last_status, ''), COALESCE(total_runs, 0),
			COALESCE(fallback_runs, 0), COALESCE(success_rate, 0)
		FROM provider_stats WHERE provider = ?`, provider)

	var st models.ProviderStats
	var last sql.NullTime
	err := row.Scan(&st.Provider, &last, &st.LastStatus, &st.TotalRuns, &st.FallbackRuns, &st.SuccessRate)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if last.Valid {
		st.LastRunAt = &last.Time
	}
	return &st, nil
}

// GetLastRunTime returns the start of the newest finished run, zero if none.
func (s *SQLiteStore) GetLastRunTime() (time.Time, error) {
	var t sql.NullTime
	err := s.db.QueryRow(`
		SELECT started_at FROM acquisition_runs
		WHERE finished_at IS NOT NULL ORDER BY started_at DESC LIMIT 1`).Scan(&t)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil || !t.Valid {
		return time.Time{}, err
	}
	return t.Time, nil
}

func (s *SQLiteStore) EnqueueCommand(cmd models.CommandType, params *models.CommandParams) error {
	var raw any
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return err
		}
		raw = string(b)
	}
	_, err := s.db.Exec(`INSERT INTO commands (command, params, created_at) VALUES (?, ?, ?)`,
		cmd, raw, time.Now())
	return err
}

func (s *SQLiteStore) GetPendingCommands() ([]models.Command, error) {
	rows, err := s.db.Query(`
		SELECT id, command, params, created_at, processed_at
		FROM commands WHERE processed_at IS NULL ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cmds []models.Command
	for rows.Next() {
		var cmd models.Command
		var params sql.NullString
		var processed sql.NullTime
		if err := rows.Scan(&cmd.ID, &cmd.Command, &params, &cmd.CreatedAt, &processed); err != nil {
			return nil, err
		}
		if params.Valid {
			cmd.Params = json.RawMessage(params.String)
		}
		cmds = append(cmds, cmd)
	}
	return cmds, rows.Err()
}

func (s *SQLiteStore) MarkCommandProcessed(id int64) error {
	_, err := s.db.Exec(`UPDATE commands SET processed_at = ? WHERE id = ?`, time.Now(), id)
	return err
}

// ParseCommandParams decodes cmd.Params. It never touches the database, so
// a nil store is fine.
func (s *SQLiteStore) ParseCommandParams(cmd *models.Command) (*models.CommandParams, error) {
	if cmd.Params == nil || string(cmd.Params) == "null" {
		return &models.CommandParams{}, nil
	}
	var params models.CommandParams
	if err := json.Unmarshal(cmd.Params, &params); err != nil {
		return nil, err
	}
	return &params, nil
}

// GetPreference returns the stored value and whether the key exists.
func (s *SQLiteStore) GetPreference(key string) (string, bool, error) {
	var v string
	err := s.db.QueryRow(`SELECT value FROM preferences WHERE key = ?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *SQLiteStore) SetPreference(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO preferences (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now())
	return err
}
