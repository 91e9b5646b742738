// Package api defines the core interfaces and data structures for smsledger.
package api

//go:generate mockgen -source=api.go -destination=mock_api.go -package=api

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrPermissionDenied is returned by a Source when the platform refuses read access to the message store.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrSourceUnavailable is returned by a Source when the message store does not exist in this environment.
	ErrSourceUnavailable = errors.New("message store unavailable")
)

// MessageRecord is a single inbox entry as supplied by the message store.
type MessageRecord struct {
	Sender          string `json:"sender" yaml:"sender"`
	Body            string `json:"body" yaml:"body"`
	TimestampMillis int64  `json:"timestamp_millis" yaml:"timestamp_millis"`
}

// SortNewestFirst orders records by descending timestamp, keeping the
// relative order of equal timestamps.
func SortNewestFirst(records []MessageRecord) {
	slices.SortStableFunc(records, func(a, b MessageRecord) int {
		return cmp.Compare(b.TimestampMillis, a.TimestampMillis)
	})
}

// Transaction holds the fields extracted from one message.
type Transaction struct {
	ID           uuid.UUID `json:"id"`
	Title        string    `json:"title"`
	SubtitleDate string    `json:"subtitle_date"`
	// Amount and UTR are nil when the body has no match; never empty.
	Amount  *string `json:"amount,omitempty"`
	UTR     *string `json:"utr,omitempty"`
	Snippet string  `json:"snippet"`

	Sender          string `json:"sender"`
	TimestampMillis int64  `json:"timestamp_millis"`
}

// Subtitle returns the date line shown under the title.
func (t *Transaction) Subtitle() string {
	return "Date: " + t.SubtitleDate
}

// Extra returns the detail line: amount, UTR and snippet joined by " | ".
func (t *Transaction) Extra() string {
	parts := make([]string, 0, 3)
	if t.Amount != nil {
		parts = append(parts, "Amount: "+*t.Amount)
	}
	if t.UTR != nil {
		parts = append(parts, "UTR: "+*t.UTR)
	}
	parts = append(parts, t.Snippet)
	return strings.Join(parts, " | ")
}

// SpeechText is the text handed to a Speaker for this transaction.
func (t *Transaction) SpeechText() string {
	return t.Title + ". " + t.Subtitle() + ". " + t.Extra()
}

// AmountOrEmpty returns the amount or "" when absent.
func (t *Transaction) AmountOrEmpty() string {
	if t.Amount == nil {
		return ""
	}
	return *t.Amount
}

// UTROrEmpty returns the UTR or "" when absent.
func (t *Transaction) UTROrEmpty() string {
	if t.UTR == nil {
		return ""
	}
	return *t.UTR
}

// Source yields the inbox of a message store, newest first.
// An empty store yields zero records and a nil error.
// Each call rescans the store from the beginning.
type Source interface {
	Messages(ctx context.Context) ([]MessageRecord, error)
}

// PermissionChecker is implemented by sources that sit behind a platform permission.
type PermissionChecker interface {
	// HasPermission reports whether the store can be read right now.
	HasPermission(ctx context.Context) (bool, error)
	// RequestPermission asks for access once and reports the outcome.
	RequestPermission(ctx context.Context) (bool, error)
}

// Writer persists a full snapshot of transactions to a destination.
type Writer interface {
	Write(ctx context.Context, transactions []*Transaction) error
}

// Speaker reads text aloud.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}
