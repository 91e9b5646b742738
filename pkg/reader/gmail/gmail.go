// Package gmail implements a Source over bank alert e-mails in Gmail.
package gmail

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"net/mail"
	"regexp"
	"strings"
	"sync"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/ArionMiles/smsledger/pkg/api"
)

// DefaultQuery matches typical bank transaction alerts.
const DefaultQuery = `(debited OR credited OR UTR) newer_than:90d`

const (
	defaultMaxResults = 100
	fetchWorkers      = 4
)

// Reader reads alert e-mails from Gmail.
type Reader struct {
	client     *gmail.Service
	query      string
	maxResults int64
	logger     *slog.Logger
}

// Config holds configuration for the Gmail reader.
type Config struct {
	// Query is a Gmail search query. Defaults to DefaultQuery.
	Query string `json:"query,omitempty"`
	// MaxResults caps the number of messages fetched per refresh. Defaults to 100.
	MaxResults int64 `json:"max_results,omitempty"`
}

// New creates a new Gmail reader.
func New(httpClient *http.Client, cfg Config, logger *slog.Logger) (*Reader, error) {
	client, err := gmail.NewService(context.Background(), option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("creating gmail service: %w", err)
	}
	return NewWithService(client, cfg, logger), nil
}

// NewWithService creates a reader over an existing Gmail service.
func NewWithService(client *gmail.Service, cfg Config, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}

	query := cfg.Query
	if query == "" {
		query = DefaultQuery
	}
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}

	return &Reader{
		client:     client,
		query:      query,
		maxResults: maxResults,
		logger:     logger,
	}
}

// Messages lists messages matching the query and returns them newest first.
func (r *Reader) Messages(ctx context.Context) ([]api.MessageRecord, error) {
	resp, err := r.client.Users.Messages.List("me").Q(r.query).MaxResults(r.maxResults).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", classify(err))
	}

	r.logger.Info("found messages", "query", r.query, "count", len(resp.Messages))

	ids := make(chan string)
	var (
		mu      sync.Mutex
		records []api.MessageRecord
		wg      sync.WaitGroup
	)

	for range min(fetchWorkers, len(resp.Messages)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range ids {
				msg, err := r.client.Users.Messages.Get("me", id).Format("full").Context(ctx).Do()
				if err != nil {
					r.logger.Error("failed to get message", "message_id", id, "error", err)
					continue
				}

				rec := RecordFromMessage(msg)
				mu.Lock()
				records = append(records, rec)
				mu.Unlock()
			}
		}()
	}

	for _, msg := range resp.Messages {
		select {
		case ids <- msg.Id:
		case <-ctx.Done():
		}
	}
	close(ids)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	api.SortNewestFirst(records)

	return records, nil
}

// RecordFromMessage maps a Gmail message to a message record.
func RecordFromMessage(msg *gmail.Message) api.MessageRecord {
	rec := api.MessageRecord{TimestampMillis: msg.InternalDate}
	if msg.Payload == nil {
		return rec
	}

	for _, header := range msg.Payload.Headers {
		if strings.EqualFold(header.Name, "From") {
			rec.Sender = senderName(header.Value)
			break
		}
	}

	rec.Body = strings.TrimSpace(extractBody(msg.Payload))
	return rec
}

func senderName(from string) string {
	addr, err := mail.ParseAddress(from)
	if err != nil {
		return strings.TrimSpace(from)
	}
	if addr.Name != "" {
		return addr.Name
	}
	return addr.Address
}

var (
	tagPattern   = regexp.MustCompile(`(?s)<[^>]*>`)
	spacePattern = regexp.MustCompile(`[ \t\x{00a0}]+`)
)

// extractBody prefers a text/plain part and falls back to tag-stripped HTML.
func extractBody(part *gmail.MessagePart) string {
	if text := findPart(part, "text/plain"); text != "" {
		return text
	}
	if markup := findPart(part, "text/html"); markup != "" {
		text := html.UnescapeString(tagPattern.ReplaceAllString(markup, " "))
		return spacePattern.ReplaceAllString(text, " ")
	}
	return ""
}

func findPart(part *gmail.MessagePart, mimeType string) string {
	if part.MimeType == mimeType && part.Body != nil && part.Body.Data != "" {
		if data, err := decodeData(part.Body.Data); err == nil {
			return data
		}
	}
	for _, child := range part.Parts {
		if text := findPart(child, mimeType); text != "" {
			return text
		}
	}
	return ""
}

func decodeData(data string) (string, error) {
	b, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		b, err = base64.RawURLEncoding.DecodeString(data)
	}
	return string(b), err
}

func classify(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && (apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden) {
		return errors.Join(api.ErrPermissionDenied, err)
	}
	return err
}
