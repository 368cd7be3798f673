package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"watchfront/catalog"
	"watchfront/models"
)

// PostgresStore archives every acquisition run and the listings it
// produced, so price and availability history survive file rewrites.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	config.MaxConns = 4
	config.MinConns = 1
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	store := &PostgresStore{pool: pool}
	if err := store.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return store, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS acquisition_runs (
			id UUID PRIMARY KEY,
			seller_id TEXT NOT NULL,
			provider TEXT NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			finished_at TIMESTAMPTZ,
			status TEXT NOT NULL,
			items_found INTEGER NOT NULL DEFAULT 0,
			items_written INTEGER NOT NULL DEFAULT 0,
			errors_count INTEGER NOT NULL DEFAULT 0,
			error_message TEXT
		);

		CREATE TABLE IF NOT EXISTS listing_snapshots (
			id BIGSERIAL PRIMARY KEY,
			run_id UUID NOT NULL REFERENCES acquisition_runs(id) ON DELETE CASCADE,
			listing_id TEXT NOT NULL,
			title TEXT NOT NULL,
			category TEXT NOT NULL,
			price_amount NUMERIC(12, 2) NOT NULL,
			currency TEXT NOT NULL,
			external_url TEXT,
			data JSONB NOT NULL,
			captured_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (run_id, listing_id)
		);

		CREATE INDEX IF NOT EXISTS idx_snapshots_listing ON listing_snapshots(listing_id, captured_at);
	`)
	return err
}

// ArchiveRun stores the run and one snapshot per listing in a single
// transaction.
func (s *PostgresStore) ArchiveRun(ctx context.Context, run *models.AcquisitionRun, listings []models.Listing) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO acquisition_runs (id, seller_id, provider, started_at, finished_at, status,
			items_found, items_written, errors_count, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			provider = EXCLUDED.provider,
			finished_at = EXCLUDED.finished_at,
			status = EXCLUDED.status,
			items_found = EXCLUDED.items_found,
			items_written = EXCLUDED.items_written,
			errors_count = EXCLUDED.errors_count,
			error_message = EXCLUDED.error_message`,
		run.ID, run.SellerID, run.Provider, run.StartedAt, run.FinishedAt, string(run.Status),
		run.ItemsFound, run.ItemsWritten, run.ErrorsCount, run.ErrorMessage)
	if err != nil {
		return fmt.Errorf("upsert run: %w", err)
	}

	batch := &pgx.Batch{}
	for i := range listings {
		l := &listings[i]
		data, err := json.Marshal(l)
		if err != nil {
			return fmt.Errorf("marshal listing %s: %w", l.ID, err)
		}
		batch.Queue(`
			INSERT INTO listing_snapshots (run_id, listing_id, title, category, price_amount, currency, external_url, data)
			VALUES ($1, $2, $3, $4, CAST($5::text AS NUMERIC), $6, $7, $8)
			ON CONFLICT (run_id, listing_id) DO NOTHING`,
			run.ID, l.ID, l.Title, string(catalog.Classify(l)),
			catalog.ParseAmount(l.Price.Amount).StringFixed(2), l.Price.Currency, l.ExternalURL, data)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert snapshots: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// PriceHistory returns the archived prices of one listing, oldest first.
func (s *PostgresStore) PriceHistory(ctx context.Context, listingID string) ([]PricePoint, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT run_id, price_amount::text, currency, captured_at
		FROM listing_snapshots WHERE listing_id = $1 ORDER BY captured_at`, listingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []PricePoint
	for rows.Next() {
		var p PricePoint
		if err := rows.Scan(&p.RunID, &p.Amount, &p.Currency, &p.CapturedAt); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

type PricePoint struct {
	RunID      uuid.UUID
	Amount     string
	Currency   string
	CapturedAt time.Time
}
