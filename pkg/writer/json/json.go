// Package json implements a Writer that writes transactions to a JSON file.
package json

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/ArionMiles/smsledger/pkg/api"
)

// Writer keeps a JSON array of every exported transaction, keyed by ID.
type Writer struct {
	filePath     string
	transactions []*api.Transaction
	index        map[uuid.UUID]int
	mu           sync.Mutex
	logger       *slog.Logger
}

// Config holds configuration for the JSON writer.
type Config struct {
	// FilePath is the path to the JSON output file.
	FilePath string `json:"file_path"`
}

// New creates a new JSON writer.
func New(cfg Config, logger *slog.Logger) (*Writer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FilePath == "" {
		return nil, fmt.Errorf("json writer: file_path is required")
	}

	w := &Writer{
		filePath:     cfg.FilePath,
		transactions: make([]*api.Transaction, 0),
		index:        make(map[uuid.UUID]int),
		logger:       logger,
	}

	// Load existing transactions if file exists
	if err := w.loadExisting(); err != nil {
		logger.Warn("could not load existing transactions", "error", err)
	}

	logger.Info("json writer initialized", "file", cfg.FilePath, "existing_count", len(w.transactions))
	return w, nil
}

// loadExisting loads existing transactions from the JSON file if it exists.
func (w *Writer) loadExisting() error {
	data, err := os.ReadFile(w.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if len(data) == 0 {
		return nil
	}

	var existing []*api.Transaction
	if err := json.Unmarshal(data, &existing); err != nil {
		return err
	}
	w.merge(existing)
	return nil
}

// merge upserts transactions by ID, keeping first-seen order.
func (w *Writer) merge(transactions []*api.Transaction) (added int) {
	for _, t := range transactions {
		if i, ok := w.index[t.ID]; ok {
			w.transactions[i] = t
			continue
		}
		w.index[t.ID] = len(w.transactions)
		w.transactions = append(w.transactions, t)
		added++
	}
	return added
}

// Write merges the snapshot and rewrites the whole file.
func (w *Writer) Write(_ context.Context, transactions []*api.Transaction) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	added := w.merge(transactions)

	// Write entire array to file (JSON doesn't support appending)
	data, err := json.MarshalIndent(w.transactions, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling json: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(w.filePath), ".smsledger-*.json")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing json file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing json file: %w", err)
	}
	if err := os.Rename(tmp.Name(), w.filePath); err != nil {
		return fmt.Errorf("replacing json file: %w", err)
	}

	w.logger.Debug("wrote transactions to json",
		"snapshot_count", len(transactions),
		"added", added,
		"total_count", len(w.transactions),
	)
	return nil
}

// TransactionCount returns the total number of transactions in the file.
func (w *Writer) TransactionCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.transactions)
}
