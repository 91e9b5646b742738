// Package buffered splits transaction snapshots into batches for remote writers.
package buffered

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ArionMiles/smsledger/pkg/api"
)

// DefaultBatchSize is the default number of transactions per flush.
const DefaultBatchSize = 10

// Flusher is called once per batch.
type Flusher func(ctx context.Context, transactions []*api.Transaction) error

// Config holds configuration for batched writing.
type Config struct {
	// BatchSize is the number of transactions per flush.
	// Defaults to DefaultBatchSize.
	BatchSize int
}

// Writer hands a snapshot to a Flusher in fixed-size batches.
type Writer struct {
	flusher Flusher
	config  Config
	logger  *slog.Logger
}

// New creates a new batching writer with the given flusher function.
func New(flusher Flusher, cfg Config, logger *slog.Logger) *Writer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Writer{
		flusher: flusher,
		config:  cfg,
		logger:  logger,
	}
}

// Write flushes transactions in order, stopping at the first failed batch.
// Batches flushed before the failure stay written.
func (w *Writer) Write(ctx context.Context, transactions []*api.Transaction) error {
	written := 0
	for start := 0; start < len(transactions); start += w.config.BatchSize {
		if err := ctx.Err(); err != nil {
			return err
		}

		end := min(start+w.config.BatchSize, len(transactions))
		batch := transactions[start:end]

		w.logger.Debug("flushing batch", "count", len(batch), "offset", start)
		if err := w.flusher(ctx, batch); err != nil {
			return fmt.Errorf("flushing batch at offset %d (%d written): %w", start, written, err)
		}
		written += len(batch)
	}

	w.logger.Info("flushed transactions", "count", written, "batch_size", w.config.BatchSize)
	return nil
}

// BatchSize returns the configured batch size.
func (w *Writer) BatchSize() int {
	return w.config.BatchSize
}
