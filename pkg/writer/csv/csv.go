// Package csv implements a Writer that appends transactions to a CSV file.
package csv

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/ArionMiles/smsledger/pkg/api"
)

// Headers is the first row of a new file.
var Headers = []string{"ID", "Date", "Sender", "Amount", "UTR", "Snippet"}

// Writer appends rows for transactions not already in the file.
type Writer struct {
	filePath string
	file     *os.File
	writer   *csv.Writer
	seen     map[string]struct{}
	mu       sync.Mutex
	logger   *slog.Logger
}

// Config holds configuration for the CSV writer.
type Config struct {
	// FilePath is the path to the CSV output file.
	FilePath string `json:"file_path"`
}

// New creates a new CSV writer.
func New(cfg Config, logger *slog.Logger) (*Writer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FilePath == "" {
		return nil, errors.New("csv writer: file_path is required")
	}

	// Create or open file
	file, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening csv file: %w", err)
	}

	w := &Writer{
		filePath: cfg.FilePath,
		file:     file,
		writer:   csv.NewWriter(file),
		seen:     make(map[string]struct{}),
		logger:   logger,
	}

	if err := w.loadSeen(); err != nil {
		if closeErr := file.Close(); closeErr != nil {
			return nil, fmt.Errorf("reading existing csv: %w (close error: %w)", err, closeErr)
		}
		return nil, fmt.Errorf("reading existing csv: %w", err)
	}

	logger.Info("csv writer initialized", "file", cfg.FilePath, "existing_count", len(w.seen))
	return w, nil
}

// loadSeen records IDs already present and writes headers to an empty file.
func (w *Writer) loadSeen() error {
	stat, err := w.file.Stat()
	if err != nil {
		return fmt.Errorf("stat csv file: %w", err)
	}
	if stat.Size() == 0 {
		return w.writeHeaders()
	}

	r := csv.NewReader(io.NewSectionReader(w.file, 0, stat.Size()))
	r.FieldsPerRecord = -1
	first := true
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if first {
			first = false
			continue
		}
		if len(record) > 0 {
			w.seen[record[0]] = struct{}{}
		}
	}
}

func (w *Writer) writeHeaders() error {
	if err := w.writer.Write(Headers); err != nil {
		return err
	}
	w.writer.Flush()
	return w.writer.Error()
}

// Write appends rows for unseen transactions.
func (w *Writer) Write(_ context.Context, transactions []*api.Transaction) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	appended := 0
	for _, t := range transactions {
		id := t.ID.String()
		if _, ok := w.seen[id]; ok {
			continue
		}

		record := []string{
			id,
			t.SubtitleDate,
			t.Sender,
			t.AmountOrEmpty(),
			t.UTROrEmpty(),
			t.Snippet,
		}
		if err := w.writer.Write(record); err != nil {
			return fmt.Errorf("writing csv record: %w", err)
		}
		w.seen[id] = struct{}{}
		appended++
	}

	w.writer.Flush()
	if err := w.writer.Error(); err != nil {
		return fmt.Errorf("flushing csv: %w", err)
	}

	w.logger.Debug("wrote transactions to csv", "appended", appended, "skipped", len(transactions)-appended)
	return nil
}

// Close closes the CSV file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.writer.Flush()
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("closing csv file: %w", err)
	}

	w.logger.Info("csv writer closed", "file", w.filePath)
	return nil
}
