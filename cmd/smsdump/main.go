// Command smsdump reads the configured message source and writes the inbox
// as a sample fixture, optionally with one text file per message body.
// This utility is used to collect message samples for unit testing.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/ArionMiles/smsledger/internal/plugins"
	"github.com/ArionMiles/smsledger/pkg/api"
	"github.com/ArionMiles/smsledger/pkg/client"
	"github.com/ArionMiles/smsledger/pkg/config"
	"github.com/ArionMiles/smsledger/pkg/logging"
	"github.com/ArionMiles/smsledger/pkg/reader/sample"
)

func main() {
	logger := logging.Setup(logging.DefaultConfig())

	configPath := flag.String("config", config.DefaultFile, "path to config.json")
	out := flag.String("out", "testdata/inbox.yaml", "fixture file to write")
	bodies := flag.String("bodies", "", "directory for one .txt file per message body")
	limit := flag.Int("limit", 50, "maximum number of messages to dump (0 for all)")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	records, err := readSource(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to read messages", "reader", cfg.Reader, "error", err)
		os.Exit(1)
	}
	if *limit > 0 && len(records) > *limit {
		records = records[:*limit]
	}

	if err := writeFixture(*out, records); err != nil {
		logger.Error("failed to write fixture", "error", err)
		os.Exit(1)
	}
	logger.Info("wrote fixture", "file", *out, "count", len(records))

	if *bodies != "" {
		count, err := dumpBodies(*bodies, records, logger)
		if err != nil {
			logger.Error("failed to dump bodies", "error", err)
			os.Exit(1)
		}
		logger.Info("message dump complete", "total_dumped", count, "directory", *bodies)
	}
}

func readSource(ctx context.Context, cfg config.Config, logger *slog.Logger) ([]api.MessageRecord, error) {
	registry := plugins.Default()

	plugin, err := registry.GetReader(cfg.Reader)
	if err != nil {
		return nil, err
	}

	var httpClient *http.Client
	if scopes := plugin.RequiredScopes(); len(scopes) > 0 {
		httpClient, err = client.New(client.Options{SecretFile: cfg.ClientSecret, TokenFile: cfg.TokenFile}, scopes...)
		if err != nil {
			return nil, fmt.Errorf("creating http client: %w", err)
		}
	}

	readerCfg, err := cfg.ReaderJSON()
	if err != nil {
		return nil, err
	}
	source, err := plugin.NewReader(ctx, httpClient, readerCfg, logger.With("component", cfg.Reader+"_reader"))
	if err != nil {
		return nil, err
	}
	if c, ok := source.(interface{ Close() }); ok {
		defer c.Close()
	}

	return source.Messages(ctx)
}

func writeFixture(path string, records []api.MessageRecord) error {
	data, err := sample.MarshalFixture(records)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating fixture directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing fixture: %w", err)
	}
	return nil
}

// dumpBodies writes each non-empty body to dir as sender_date.txt, skipping files that exist.
func dumpBodies(dir string, records []api.MessageRecord, logger *slog.Logger) (int, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("creating dump directory: %w", err)
	}

	count := 0
	for _, rec := range records {
		if rec.Body == "" {
			continue
		}

		date := time.UnixMilli(rec.TimestampMillis).Format("2006-01-02_150405")
		filename := sanitizeFilename(fmt.Sprintf("%s_%s.txt", rec.Sender, date))
		path := filepath.Join(dir, filename)

		if _, err := os.Stat(path); err == nil {
			logger.Debug("file already exists, skipping", "file", filename)
			continue
		}
		if err := os.WriteFile(path, []byte(rec.Body), 0o644); err != nil {
			return count, fmt.Errorf("writing %s: %w", filename, err)
		}

		logger.Debug("dumped message", "file", filename, "sender", rec.Sender)
		count++
	}
	return count, nil
}

var (
	unsafeChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f\s]`)
	underscores = regexp.MustCompile(`_+`)
)

func sanitizeFilename(name string) string {
	// Replace unsafe characters with underscores
	name = unsafeChars.ReplaceAllString(name, "_")
	name = underscores.ReplaceAllString(name, "_")

	// Trim underscores and limit length
	name = strings.Trim(name, "_")
	if len(name) > 200 {
		name = name[:200]
	}
	return name
}
