// Package sheets implements a Writer that writes transactions to Google Sheets.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/avast/retry-go"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/ArionMiles/smsledger/pkg/api"
	"github.com/ArionMiles/smsledger/pkg/writer/buffered"
)

// Default configuration values.
const (
	DefaultBatchSize  = 50
	DefaultRetryDelay = 60 * time.Second
	DefaultSheetName  = "Sheet1"
	DefaultSheetTitle = "SMS Transactions"
)

// Headers is the header row of a new spreadsheet.
var Headers = []any{"ID", "Date", "Sender", "Amount", "UTR", "Snippet"}

// Writer appends transactions to a Google Sheet in batches.
type Writer struct {
	client      *sheets.Service
	spreadsheet *sheets.Spreadsheet
	sheetName   string
	retryDelay  time.Duration
	logger      *slog.Logger
	buffered    *buffered.Writer
}

// Config holds configuration for the Sheets writer.
type Config struct {
	// SheetTitle is the title for a new spreadsheet (if SheetID is empty).
	SheetTitle string `json:"sheet_title,omitempty"`
	// SheetID is the ID of an existing spreadsheet to use.
	SheetID string `json:"sheet_id,omitempty"`
	// SheetName is the name of the sheet within the spreadsheet.
	SheetName string `json:"sheet_name,omitempty"`
	// BatchSize is the number of rows per append call.
	// Defaults to DefaultBatchSize.
	BatchSize int `json:"batch_size,omitempty"`
	// RetryDelay is the wait between rate-limited attempts.
	// Defaults to DefaultRetryDelay.
	RetryDelay time.Duration `json:"retry_delay,omitempty"`
}

// New creates a new Sheets writer.
func New(httpClient *http.Client, cfg Config, logger *slog.Logger) (*Writer, error) {
	client, err := sheets.NewService(context.Background(), option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("creating sheets service: %w", err)
	}
	return NewWithService(context.Background(), client, cfg, logger)
}

// NewWithService creates a writer over an existing Sheets service.
func NewWithService(ctx context.Context, client *sheets.Service, cfg Config, logger *slog.Logger) (*Writer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SheetName == "" {
		cfg.SheetName = DefaultSheetName
	}
	if cfg.SheetTitle == "" {
		cfg.SheetTitle = DefaultSheetTitle
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = DefaultRetryDelay
	}

	w := &Writer{
		client:     client,
		sheetName:  cfg.SheetName,
		retryDelay: retryDelay,
		logger:     logger,
	}

	spreadsheet, err := w.initSpreadsheet(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("initializing spreadsheet: %w", err)
	}
	w.spreadsheet = spreadsheet

	w.buffered = buffered.New(
		w.flushBatch,
		buffered.Config{BatchSize: batchSize},
		logger.With("component", "sheets_batch"),
	)

	logger.Info("sheets writer initialized",
		"spreadsheet_id", spreadsheet.SpreadsheetId,
		"batch_size", batchSize,
	)

	return w, nil
}

func (w *Writer) initSpreadsheet(ctx context.Context, cfg Config) (*sheets.Spreadsheet, error) {
	// Try to get existing spreadsheet
	if cfg.SheetID != "" {
		spreadsheet, err := w.client.Spreadsheets.Get(cfg.SheetID).Context(ctx).Do()
		if err == nil {
			w.logger.Info("using existing spreadsheet", "title", spreadsheet.Properties.Title, "id", cfg.SheetID)
			return spreadsheet, nil
		}
		w.logger.Warn("failed to get spreadsheet, will create new one", "id", cfg.SheetID, "error", err)
	}

	spreadsheet, err := w.client.Spreadsheets.Create(&sheets.Spreadsheet{
		Properties: &sheets.SpreadsheetProperties{
			Title: cfg.SheetTitle,
		},
	}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("creating spreadsheet: %w", err)
	}

	w.logger.Info("created new spreadsheet", "title", cfg.SheetTitle, "id", spreadsheet.SpreadsheetId)

	if err := w.writeHeaders(ctx, spreadsheet.SpreadsheetId); err != nil {
		return nil, fmt.Errorf("writing headers: %w", err)
	}

	return spreadsheet, nil
}

func (w *Writer) writeHeaders(ctx context.Context, spreadsheetID string) error {
	headerRange := fmt.Sprintf("%s!A1:F1", w.sheetName)
	headerReq := sheets.ValueRange{
		Values: [][]any{Headers},
	}

	_, err := w.client.Spreadsheets.Values.Update(spreadsheetID, headerRange, &headerReq).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("updating headers: %w", err)
	}

	w.logger.Info("wrote headers to spreadsheet")
	return nil
}

// Write appends the snapshot in batches.
func (w *Writer) Write(ctx context.Context, transactions []*api.Transaction) error {
	return w.buffered.Write(ctx, transactions)
}

// Row converts a transaction into a sheet row.
func Row(t *api.Transaction) []any {
	return []any{
		t.ID.String(),
		t.SubtitleDate,
		t.Sender,
		t.AmountOrEmpty(),
		t.UTROrEmpty(),
		t.Snippet,
	}
}

// flushBatch writes a batch of transactions in a single API call.
func (w *Writer) flushBatch(ctx context.Context, transactions []*api.Transaction) error {
	if len(transactions) == 0 {
		return nil
	}

	values := make([][]any, 0, len(transactions))
	for _, t := range transactions {
		values = append(values, Row(t))
	}

	writeRange := fmt.Sprintf("%s!A2:F2", w.sheetName)
	writeReq := sheets.ValueRange{
		Values: values,
	}

	err := retry.Do(
		func() error {
			// RAW keeps amounts like "1,234.00" verbatim.
			_, err := w.client.Spreadsheets.Values.Append(w.spreadsheet.SpreadsheetId, writeRange, &writeReq).
				ValueInputOption("RAW").
				InsertDataOption("INSERT_ROWS").
				Context(ctx).
				Do()
			return err
		},
		retry.RetryIf(func(err error) bool {
			var apiErr *googleapi.Error
			if errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests {
				w.logger.Warn("rate limited, will retry", "error", err)
				return true
			}
			return false
		}),
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(w.retryDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return fmt.Errorf("appending batch to sheet: %w", err)
	}

	w.logger.Info("wrote transaction batch",
		"count", len(transactions),
		"first_sender", transactions[0].Sender,
	)

	return nil
}

// SpreadsheetID returns the ID of the spreadsheet being written to.
func (w *Writer) SpreadsheetID() string {
	if w.spreadsheet == nil {
		return ""
	}
	return w.spreadsheet.SpreadsheetId
}
