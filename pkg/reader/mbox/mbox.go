// Package mbox implements a Source over an mbox file of SMS messages
// forwarded to email by a gateway.
package mbox

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"

	"github.com/emersion/go-mbox"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/ArionMiles/smsledger/pkg/api"
	"github.com/ArionMiles/smsledger/pkg/reader/fileutil"
)

// Reader reads messages from an mbox file.
type Reader struct {
	fileutil.Permission
	path   string
	logger *slog.Logger
}

// Config holds configuration for the mbox reader.
type Config struct {
	// FilePath is the path to the mbox file.
	FilePath string
}

// New creates an mbox reader.
func New(cfg Config, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}

	return &Reader{
		Permission: fileutil.Permission{Path: cfg.FilePath},
		path:       cfg.FilePath,
		logger:     logger,
	}
}

// Messages returns every message in the mailbox newest first.
func (r *Reader) Messages(ctx context.Context) ([]api.MessageRecord, error) {
	f, err := fileutil.Open(r.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, err := Decode(ctx, f, r.logger)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", r.path, err)
	}

	r.logger.Debug("read mbox file", "file", r.path, "count", len(records))
	return records, nil
}

// Decode reads all messages from an mbox stream.
// Messages with unreadable headers are logged and skipped; an undecodable
// body degrades to empty and keeps the record.
func Decode(ctx context.Context, r io.Reader, logger *slog.Logger) ([]api.MessageRecord, error) {
	if logger == nil {
		logger = slog.Default()
	}

	mr := mbox.NewReader(r)
	var records []api.MessageRecord

	for i := 0; ; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		raw, err := mr.NextMessage()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading message %d: %w", i, err)
		}

		rec, err := parseMessage(raw)
		if errors.Is(err, errBody) {
			logger.Warn("message body unreadable, keeping it empty", "index", i, "sender", rec.Sender, "error", err)
		} else if err != nil {
			logger.Warn("skipping unparseable message", "index", i, "error", err)
			continue
		}
		records = append(records, rec)
	}

	api.SortNewestFirst(records)

	return records, nil
}

// errBody marks a message whose headers parsed but whose body did not.
var errBody = errors.New("reading body")

// parseMessage returns the record parsed so far alongside errBody.
func parseMessage(raw io.Reader) (api.MessageRecord, error) {
	msg, err := mail.ReadMessage(raw)
	if err != nil {
		return api.MessageRecord{}, fmt.Errorf("reading headers: %w", err)
	}

	var rec api.MessageRecord
	rec.Sender = sender(msg.Header)

	// An absent or malformed Date degrades to the epoch.
	if date, err := msg.Header.Date(); err == nil {
		rec.TimestampMillis = date.UnixMilli()
	}

	body, err := textBody(msg.Header.Get("Content-Type"), msg.Header.Get("Content-Transfer-Encoding"), msg.Body)
	if err != nil {
		return rec, fmt.Errorf("%w: %w", errBody, err)
	}
	rec.Body = strings.TrimRight(body, "\r\n")

	return rec, nil
}

var wordDecoder = &mime.WordDecoder{CharsetReader: charsetReader}

func sender(h mail.Header) string {
	parser := mail.AddressParser{WordDecoder: wordDecoder}
	addr, err := parser.Parse(h.Get("From"))
	if err != nil {
		decoded, derr := wordDecoder.DecodeHeader(h.Get("From"))
		if derr != nil {
			return strings.TrimSpace(h.Get("From"))
		}
		return strings.TrimSpace(decoded)
	}
	if addr.Name != "" {
		return addr.Name
	}
	return addr.Address
}

// textBody returns the first text/plain part of a message, decoded to UTF-8.
func textBody(contentType, transferEncoding string, body io.Reader) (string, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		// A missing Content-Type means text/plain in US-ASCII.
		mediaType, params = "text/plain", map[string]string{}
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		mr := multipart.NewReader(body, params["boundary"])
		for {
			part, err := mr.NextPart()
			if errors.Is(err, io.EOF) {
				return "", nil
			}
			if err != nil {
				return "", err
			}

			// multipart.Reader already strips quoted-printable.
			text, err := textBody(part.Header.Get("Content-Type"), part.Header.Get("Content-Transfer-Encoding"), part)
			if err != nil {
				return "", err
			}
			if text != "" {
				return text, nil
			}
		}
	}

	if mediaType != "text/plain" {
		return "", nil
	}

	decoded, err := io.ReadAll(transferDecoder(transferEncoding, body))
	if err != nil {
		return "", err
	}

	charset := params["charset"]
	if charset == "" || strings.EqualFold(charset, "utf-8") || strings.EqualFold(charset, "us-ascii") {
		return string(decoded), nil
	}

	cr, err := charsetReader(charset, bytes.NewReader(decoded))
	if err != nil {
		return string(decoded), nil
	}
	converted, err := io.ReadAll(cr)
	if err != nil {
		return "", err
	}
	return string(converted), nil
}

func transferDecoder(encoding string, r io.Reader) io.Reader {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "quoted-printable":
		return quotedprintable.NewReader(r)
	case "base64":
		return base64.NewDecoder(base64.StdEncoding, r)
	default:
		return r
	}
}

func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, fmt.Errorf("unsupported charset %q: %w", charset, err)
	}
	return enc.NewDecoder().Reader(input), nil
}
