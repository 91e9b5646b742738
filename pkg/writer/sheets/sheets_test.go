package sheets

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/ArionMiles/smsledger/pkg/api"
)

func ptr(s string) *string { return &s }

func newService(t *testing.T, handler http.Handler) *sheets.Service {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	svc, err := sheets.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	return svc
}

func TestRow(t *testing.T) {
	id := uuid.MustParse("6f1c2a1e-8d3b-4b6e-9a57-2f0e4c1d9b83")
	tx := &api.Transaction{
		ID:           id,
		SubtitleDate: "2025-11-14 12:00:00",
		Sender:       "AXISBK",
		Amount:       ptr("1,234.00"),
		Snippet:      "debited",
	}

	assert.Equal(t, []any{id.String(), "2025-11-14 12:00:00", "AXISBK", "1,234.00", "", "debited"}, Row(tx))
}

func TestWrite_ExistingSpreadsheetBatches(t *testing.T) {
	var appends atomic.Int32
	var rows atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v4/spreadsheets/{id}", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(&sheets.Spreadsheet{
			SpreadsheetId: r.PathValue("id"),
			Properties:    &sheets.SpreadsheetProperties{Title: "ledger"},
		})
	})
	mux.HandleFunc("POST /v4/spreadsheets/{id}/values/{rng}", func(w http.ResponseWriter, r *http.Request) {
		var req sheets.ValueRange
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		appends.Add(1)
		rows.Add(int32(len(req.Values)))
		_ = json.NewEncoder(w).Encode(&sheets.AppendValuesResponse{SpreadsheetId: r.PathValue("id")})
	})

	w, err := NewWithService(context.Background(), newService(t, mux), Config{SheetID: "abc", BatchSize: 2}, nil)
	require.NoError(t, err)
	assert.Equal(t, "abc", w.SpreadsheetID())

	txns := []*api.Transaction{{ID: uuid.New()}, {ID: uuid.New()}, {ID: uuid.New()}}
	require.NoError(t, w.Write(context.Background(), txns))

	assert.Equal(t, int32(2), appends.Load())
	assert.Equal(t, int32(3), rows.Load())
}

func TestWrite_RetriesRateLimit(t *testing.T) {
	var calls atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v4/spreadsheets", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(&sheets.Spreadsheet{SpreadsheetId: "new"})
	})
	mux.HandleFunc("PUT /v4/spreadsheets/{id}/values/{rng}", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(&sheets.UpdateValuesResponse{})
	})
	mux.HandleFunc("POST /v4/spreadsheets/{id}/values/{rng}", func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"code":429,"message":"quota"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(&sheets.AppendValuesResponse{})
	})

	w, err := NewWithService(context.Background(), newService(t, mux), Config{RetryDelay: time.Millisecond}, nil)
	require.NoError(t, err)
	assert.Equal(t, "new", w.SpreadsheetID())

	require.NoError(t, w.Write(context.Background(), []*api.Transaction{{ID: uuid.New()}}))
	assert.Equal(t, int32(2), calls.Load())
}
