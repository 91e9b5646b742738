// Package postgres provides a PostgreSQL writer for transaction storage.
package postgres

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ArionMiles/smsledger/pkg/api"
	"github.com/ArionMiles/smsledger/pkg/pgpool"
	"github.com/ArionMiles/smsledger/pkg/writer/buffered"
)

//go:embed 001_create_transactions.sql
var migrationSQL string

const upsertSQL = `
	INSERT INTO sms_transactions (
		id, title, subtitle_date, amount, utr, snippet, sender, timestamp_millis
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (id) DO UPDATE SET
		title = EXCLUDED.title,
		subtitle_date = EXCLUDED.subtitle_date,
		amount = EXCLUDED.amount,
		utr = EXCLUDED.utr,
		snippet = EXCLUDED.snippet,
		sender = EXCLUDED.sender,
		timestamp_millis = EXCLUDED.timestamp_millis,
		updated_at = NOW()
`

// Config holds the PostgreSQL writer configuration.
type Config struct {
	pgpool.Config

	// BatchSize is the number of transactions per database transaction.
	BatchSize int `json:"batch_size,omitempty"`
}

// Writer writes transactions to a PostgreSQL database.
type Writer struct {
	pool     *pgxpool.Pool
	logger   *slog.Logger
	buffered *buffered.Writer
}

// New creates a new PostgreSQL writer and runs migrations.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Writer, error) {
	if logger == nil {
		logger = slog.Default()
	}

	pool, err := pgpool.NewPool(ctx, cfg.Config, logger)
	if err != nil {
		return nil, err
	}

	w := &Writer{
		pool:   pool,
		logger: logger,
	}
	w.buffered = buffered.New(w.writeBatch, buffered.Config{BatchSize: cfg.BatchSize}, logger.With("component", "postgres_batch"))

	if err := w.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return w, nil
}

// runMigrations runs the database migrations.
func (w *Writer) runMigrations(ctx context.Context) error {
	w.logger.Info("running database migrations")

	if _, err := w.pool.Exec(ctx, migrationSQL); err != nil {
		return fmt.Errorf("executing migration: %w", err)
	}

	w.logger.Info("migrations completed successfully")
	return nil
}

// Write upserts the snapshot in batches.
func (w *Writer) Write(ctx context.Context, transactions []*api.Transaction) error {
	return w.buffered.Write(ctx, transactions)
}

// writeBatch upserts one batch inside a database transaction.
func (w *Writer) writeBatch(ctx context.Context, transactions []*api.Transaction) error {
	if len(transactions) == 0 {
		return nil
	}

	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, t := range transactions {
		batch.Queue(upsertSQL,
			t.ID,
			t.Title,
			t.SubtitleDate,
			t.Amount,
			t.UTR,
			t.Snippet,
			t.Sender,
			t.TimestampMillis,
		)
	}

	results := tx.SendBatch(ctx, batch)
	for i := range transactions {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return fmt.Errorf("upserting transaction %d: %w", i, err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("closing batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	w.logger.Info("wrote transaction batch", "count", len(transactions))
	return nil
}

// Close closes the database connection pool.
func (w *Writer) Close() {
	if w.pool != nil {
		w.pool.Close()
		w.logger.Info("closed PostgreSQL connection pool")
	}
}
