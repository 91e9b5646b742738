package plugins

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/ArionMiles/smsledger/pkg/api"
	"github.com/ArionMiles/smsledger/pkg/writer/amqp"
	"github.com/ArionMiles/smsledger/pkg/writer/csv"
	jsonwriter "github.com/ArionMiles/smsledger/pkg/writer/json"
	"github.com/ArionMiles/smsledger/pkg/writer/postgres"
	"github.com/ArionMiles/smsledger/pkg/writer/sheets"
)

func builtinWriters() []WriterPlugin {
	return []WriterPlugin{
		jsonPlugin{},
		csvPlugin{},
		postgresWriterPlugin{},
		sheetsPlugin{},
		amqpPlugin{},
	}
}

// DefaultJSONFile is used when the json writer has no file_path.
const DefaultJSONFile = "transactions.json"

type jsonPlugin struct{}

func (jsonPlugin) Name() string { return "json" }

func (jsonPlugin) Description() string {
	return "Write transactions to a JSON file"
}

func (jsonPlugin) RequiredScopes() []string { return nil }

func (jsonPlugin) ConfigSchema() map[string]any {
	return filePathSchema("Path to the JSON output file")
}

func (p jsonPlugin) NewWriter(_ context.Context, _ *http.Client, config json.RawMessage, logger *slog.Logger) (api.Writer, error) {
	var cfg jsonwriter.Config
	if err := decode(p.Name(), config, &cfg); err != nil {
		return nil, err
	}
	if cfg.FilePath == "" {
		cfg.FilePath = DefaultJSONFile
	}
	return jsonwriter.New(cfg, logger)
}

type csvPlugin struct{}

func (csvPlugin) Name() string { return "csv" }

func (csvPlugin) Description() string {
	return "Append new transactions to a CSV file"
}

func (csvPlugin) RequiredScopes() []string { return nil }

func (csvPlugin) ConfigSchema() map[string]any {
	return filePathSchema("Path to the CSV output file")
}

func (p csvPlugin) NewWriter(_ context.Context, _ *http.Client, config json.RawMessage, logger *slog.Logger) (api.Writer, error) {
	var cfg csv.Config
	if err := decode(p.Name(), config, &cfg); err != nil {
		return nil, err
	}
	if cfg.FilePath == "" {
		return nil, errors.New("file_path is required")
	}
	return csv.New(cfg, logger)
}

type postgresWriterPlugin struct{}

func (postgresWriterPlugin) Name() string { return "postgres" }

func (postgresWriterPlugin) Description() string {
	return "Upsert transactions into PostgreSQL"
}

func (postgresWriterPlugin) RequiredScopes() []string { return nil }

func (postgresWriterPlugin) ConfigSchema() map[string]any {
	schema := postgresReaderPlugin{}.ConfigSchema()
	props := schema["properties"].(map[string]any)
	delete(props, "table")
	props["batch_size"] = map[string]any{"type": "integer", "default": 10}
	props["max_pool_size"] = map[string]any{"type": "integer", "default": 4}
	return schema
}

func (p postgresWriterPlugin) NewWriter(ctx context.Context, _ *http.Client, config json.RawMessage, logger *slog.Logger) (api.Writer, error) {
	var cfg postgres.Config
	if err := decode(p.Name(), config, &cfg); err != nil {
		return nil, err
	}
	if cfg.URL == "" && cfg.Host == "" {
		return nil, errors.New("url or host is required")
	}
	return postgres.New(ctx, cfg, logger)
}

type sheetsPlugin struct{}

func (sheetsPlugin) Name() string { return "sheets" }

func (sheetsPlugin) Description() string {
	return "Append transactions to a Google Sheet"
}

func (sheetsPlugin) RequiredScopes() []string {
	return []string{sheetsapi.SpreadsheetsScope}
}

func (sheetsPlugin) ConfigSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"sheet_title": map[string]any{
				"type":        "string",
				"description": "Title for a new spreadsheet",
				"default":     sheets.DefaultSheetTitle,
			},
			"sheet_id": map[string]any{
				"type":        "string",
				"description": "ID of an existing spreadsheet",
			},
			"sheet_name": map[string]any{
				"type":    "string",
				"default": sheets.DefaultSheetName,
			},
		},
	}
}

func (p sheetsPlugin) NewWriter(_ context.Context, httpClient *http.Client, config json.RawMessage, logger *slog.Logger) (api.Writer, error) {
	if err := requireClient(p.Name(), httpClient); err != nil {
		return nil, err
	}
	var cfg sheets.Config
	if err := decode(p.Name(), config, &cfg); err != nil {
		return nil, err
	}
	return sheets.New(httpClient, cfg, logger)
}

type amqpPlugin struct{}

func (amqpPlugin) Name() string { return "amqp" }

func (amqpPlugin) Description() string {
	return "Publish transactions to a RabbitMQ exchange"
}

func (amqpPlugin) RequiredScopes() []string { return nil }

func (amqpPlugin) ConfigSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url":         map[string]any{"type": "string"},
			"exchange":    map[string]any{"type": "string", "default": amqp.DefaultExchange},
			"routing_key": map[string]any{"type": "string", "default": amqp.DefaultRoutingKey},
		},
		"required": []string{"url"},
	}
}

func (p amqpPlugin) NewWriter(_ context.Context, _ *http.Client, config json.RawMessage, logger *slog.Logger) (api.Writer, error) {
	var cfg amqp.Config
	if err := decode(p.Name(), config, &cfg); err != nil {
		return nil, err
	}
	if cfg.URL == "" {
		return nil, errors.New("url is required")
	}
	return amqp.New(cfg, logger)
}
