package plugins

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	gmailapi "google.golang.org/api/gmail/v1"

	"github.com/ArionMiles/smsledger/pkg/api"
	"github.com/ArionMiles/smsledger/pkg/reader/backupxml"
	"github.com/ArionMiles/smsledger/pkg/reader/gmail"
	"github.com/ArionMiles/smsledger/pkg/reader/mbox"
	"github.com/ArionMiles/smsledger/pkg/reader/postgres"
	"github.com/ArionMiles/smsledger/pkg/reader/sample"
)

func builtinReaders() []ReaderPlugin {
	return []ReaderPlugin{
		samplePlugin{},
		backupXMLPlugin{},
		mboxPlugin{},
		postgresReaderPlugin{},
		gmailPlugin{},
	}
}

// pathConfig is shared by the file-backed sources.
type pathConfig struct {
	FilePath string `json:"file_path"`
}

func filePathSchema(description string) map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"file_path": map[string]any{
				"type":        "string",
				"description": description,
			},
		},
		"required": []string{"file_path"},
	}
}

type samplePlugin struct{}

func (samplePlugin) Name() string { return "sample" }

func (samplePlugin) Description() string {
	return "Built-in sample inbox, or a YAML fixture"
}

func (samplePlugin) RequiredScopes() []string { return nil }

func (samplePlugin) ConfigSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"fixture_path": map[string]any{
				"type":        "string",
				"description": "YAML file with a top-level messages list",
			},
		},
	}
}

func (p samplePlugin) NewReader(_ context.Context, _ *http.Client, config json.RawMessage, logger *slog.Logger) (api.Source, error) {
	var cfg struct {
		FixturePath string `json:"fixture_path"`
	}
	if err := decode(p.Name(), config, &cfg); err != nil {
		return nil, err
	}
	return sample.New(sample.Config{FixturePath: cfg.FixturePath}, logger)
}

type backupXMLPlugin struct{}

func (backupXMLPlugin) Name() string { return "backupxml" }

func (backupXMLPlugin) Description() string {
	return "Inbox from an SMS Backup & Restore XML export"
}

func (backupXMLPlugin) RequiredScopes() []string { return nil }

func (backupXMLPlugin) ConfigSchema() map[string]any {
	return filePathSchema("Path to the sms-*.xml export")
}

func (p backupXMLPlugin) NewReader(_ context.Context, _ *http.Client, config json.RawMessage, logger *slog.Logger) (api.Source, error) {
	var cfg pathConfig
	if err := decode(p.Name(), config, &cfg); err != nil {
		return nil, err
	}
	if cfg.FilePath == "" {
		return nil, errors.New("file_path is required")
	}
	return backupxml.New(backupxml.Config{FilePath: cfg.FilePath}, logger), nil
}

type mboxPlugin struct{}

func (mboxPlugin) Name() string { return "mbox" }

func (mboxPlugin) Description() string {
	return "Messages from an mbox mailbox file"
}

func (mboxPlugin) RequiredScopes() []string { return nil }

func (mboxPlugin) ConfigSchema() map[string]any {
	return filePathSchema("Path to the mbox file")
}

func (p mboxPlugin) NewReader(_ context.Context, _ *http.Client, config json.RawMessage, logger *slog.Logger) (api.Source, error) {
	var cfg pathConfig
	if err := decode(p.Name(), config, &cfg); err != nil {
		return nil, err
	}
	if cfg.FilePath == "" {
		return nil, errors.New("file_path is required")
	}
	return mbox.New(mbox.Config{FilePath: cfg.FilePath}, logger), nil
}

type postgresReaderPlugin struct{}

func (postgresReaderPlugin) Name() string { return "postgres" }

func (postgresReaderPlugin) Description() string {
	return "Inbox rows from a PostgreSQL table"
}

func (postgresReaderPlugin) RequiredScopes() []string { return nil }

func (postgresReaderPlugin) ConfigSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url":      map[string]any{"type": "string", "description": "Connection URL; overrides the discrete fields"},
			"host":     map[string]any{"type": "string"},
			"port":     map[string]any{"type": "integer", "default": 5432},
			"database": map[string]any{"type": "string"},
			"user":     map[string]any{"type": "string"},
			"password": map[string]any{"type": "string"},
			"sslmode":  map[string]any{"type": "string", "default": "disable"},
			"table":    map[string]any{"type": "string", "default": "sms"},
		},
	}
}

func (p postgresReaderPlugin) NewReader(_ context.Context, _ *http.Client, config json.RawMessage, logger *slog.Logger) (api.Source, error) {
	var cfg postgres.Config
	if err := decode(p.Name(), config, &cfg); err != nil {
		return nil, err
	}
	if cfg.URL == "" && cfg.Host == "" {
		return nil, errors.New("url or host is required")
	}
	return postgres.New(cfg, logger), nil
}

type gmailPlugin struct{}

func (gmailPlugin) Name() string { return "gmail" }

func (gmailPlugin) Description() string {
	return "Bank alert emails from Gmail"
}

func (gmailPlugin) RequiredScopes() []string {
	return []string{gmailapi.GmailReadonlyScope}
}

func (gmailPlugin) ConfigSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "Gmail search query",
				"default":     gmail.DefaultQuery,
			},
			"max_results": map[string]any{
				"type":    "integer",
				"default": 100,
			},
		},
	}
}

func (p gmailPlugin) NewReader(_ context.Context, httpClient *http.Client, config json.RawMessage, logger *slog.Logger) (api.Source, error) {
	if err := requireClient(p.Name(), httpClient); err != nil {
		return nil, err
	}
	var cfg gmail.Config
	if err := decode(p.Name(), config, &cfg); err != nil {
		return nil, err
	}
	return gmail.New(httpClient, cfg, logger)
}
