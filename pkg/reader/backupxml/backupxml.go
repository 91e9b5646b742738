// Package backupxml implements a Source over an "SMS Backup & Restore" XML export.
package backupxml

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/ArionMiles/smsledger/pkg/api"
	"github.com/ArionMiles/smsledger/pkg/reader/fileutil"
)

// inboxType is the value of the type attribute for received messages.
const inboxType = "1"

// Reader reads the inbox from a backup file.
type Reader struct {
	fileutil.Permission
	path   string
	logger *slog.Logger
}

// Config holds configuration for the backup reader.
type Config struct {
	// FilePath is the path to the XML export.
	FilePath string
}

// New creates a backup XML reader.
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

// Messages scans the export and returns inbox messages newest first.
func (r *Reader) Messages(ctx context.Context) ([]api.MessageRecord, error) {
	f, err := fileutil.Open(r.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, skipped, err := Decode(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", r.path, err)
	}

	r.logger.Debug("read backup file", "file", r.path, "inbox", len(records), "skipped", skipped)
	return records, nil
}

// Decode streams <sms> elements from r and returns inbox records newest first,
// along with the number of non-inbox elements skipped.
// Missing attributes degrade to empty or zero values.
func Decode(ctx context.Context, r io.Reader) ([]api.MessageRecord, int, error) {
	dec := xml.NewDecoder(r)
	// The input has already been transcoded to UTF-8 regardless of the declared charset.
	dec.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) {
		return input, nil
	}

	var (
		records []api.MessageRecord
		skipped int
	)

	for {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}

		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, 0, err
		}

		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "sms" {
			continue
		}

		rec, inbox := recordFromAttrs(start.Attr)
		if !inbox {
			skipped++
			continue
		}
		records = append(records, rec)
	}

	api.SortNewestFirst(records)

	return records, skipped, nil
}

func recordFromAttrs(attrs []xml.Attr) (api.MessageRecord, bool) {
	var (
		rec     api.MessageRecord
		msgType string
		typeSet bool
	)

	for _, attr := range attrs {
		switch attr.Name.Local {
		case "address":
			rec.Sender = attr.Value
		case "body":
			rec.Body = attr.Value
		case "date":
			if ms, err := strconv.ParseInt(attr.Value, 10, 64); err == nil {
				rec.TimestampMillis = ms
			}
		case "type":
			msgType = attr.Value
			typeSet = true
		}
	}

	// Exports without a type attribute only contain received messages.
	return rec, !typeSet || msgType == inboxType
}
