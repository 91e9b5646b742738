// Package sample implements a fixed-sample Source for development and testing.
package sample

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ArionMiles/smsledger/pkg/api"
)

// DefaultRecords returns the built-in sample inbox.
func DefaultRecords() []api.MessageRecord {
	return []api.MessageRecord{
		{
			Sender:          "AXISBK",
			Body:            "Your a/c debited INR 1,234.00 UTR: ABCD123456",
			TimestampMillis: time.Date(2025, 11, 14, 12, 0, 0, 0, time.Local).UnixMilli(),
		},
	}
}

// Reader serves a fixed set of records.
type Reader struct {
	records []api.MessageRecord
	logger  *slog.Logger
}

// Config holds configuration for the sample reader.
type Config struct {
	// FixturePath is an optional YAML file with a top-level "messages" list.
	// The built-in sample is used when empty.
	FixturePath string
}

type fixture struct {
	Messages []api.MessageRecord `yaml:"messages"`
}

// New creates a sample reader.
func New(cfg Config, logger *slog.Logger) (*Reader, error) {
	if logger == nil {
		logger = slog.Default()
	}

	records := DefaultRecords()
	if cfg.FixturePath != "" {
		loaded, err := loadFixture(cfg.FixturePath)
		if err != nil {
			return nil, err
		}
		records = loaded
	}

	// Newest first, like the inbox query.
	api.SortNewestFirst(records)

	logger.Info("sample reader initialized", "fixture", cfg.FixturePath, "count", len(records))
	return &Reader{records: records, logger: logger}, nil
}

// NewDefault returns a reader over DefaultRecords.
func NewDefault() *Reader {
	r, _ := New(Config{}, slog.Default())
	return r
}

// Messages returns a copy of the configured records.
func (r *Reader) Messages(_ context.Context) ([]api.MessageRecord, error) {
	return slices.Clone(r.records), nil
}

// MarshalFixture encodes records in the fixture format read by New.
func MarshalFixture(records []api.MessageRecord) ([]byte, error) {
	data, err := yaml.Marshal(fixture{Messages: records})
	if err != nil {
		return nil, fmt.Errorf("encoding fixture: %w", err)
	}
	return data, nil
}

func loadFixture(path string) ([]api.MessageRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading fixture: %w", err)
	}

	var f fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing fixture %s: %w", path, err)
	}
	return f.Messages, nil
}
