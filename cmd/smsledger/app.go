package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/ArionMiles/smsledger/internal/plugins"
	"github.com/ArionMiles/smsledger/internal/session"
	"github.com/ArionMiles/smsledger/pkg/api"
	"github.com/ArionMiles/smsledger/pkg/client"
	"github.com/ArionMiles/smsledger/pkg/config"
	"github.com/ArionMiles/smsledger/pkg/gate"
	"github.com/ArionMiles/smsledger/pkg/metrics"
	"github.com/ArionMiles/smsledger/pkg/parser"
	"github.com/ArionMiles/smsledger/pkg/speech"
)

// app owns the wired collaborators of one run.
type app struct {
	session *session.Session
	closers []any
	logger  *slog.Logger
}

// newApp builds the plugins named in cfg and a session over them.
// A writer that fails to start is logged and left out; export then reports it.
func newApp(ctx context.Context, cfg config.Config, notify func(string), logger *slog.Logger) (*app, error) {
	registry := plugins.Default()
	logger.Info("plugins registered",
		"readers", len(registry.ListReaders()),
		"writers", len(registry.ListWriters()),
	)

	g, err := gate.FromConfig(cfg.Passcode, cfg.PasscodeHash)
	if err != nil {
		return nil, fmt.Errorf("configuring passcode: %w", err)
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	httpClient, err := oauthClient(registry, cfg, logger)
	if err != nil {
		return nil, err
	}

	readerCfg, err := cfg.ReaderJSON()
	if err != nil {
		return nil, fmt.Errorf("reader config: %w", err)
	}
	source, err := registry.CreateReader(ctx, cfg.Reader, httpClient, readerCfg, logger.With("component", cfg.Reader+"_reader"))
	if err != nil {
		return nil, fmt.Errorf("creating %s reader: %w", cfg.Reader, err)
	}

	a := &app{logger: logger, closers: []any{source}}

	var writer api.Writer
	if cfg.Writer != "" {
		writerCfg, err := cfg.WriterJSON()
		if err != nil {
			return nil, fmt.Errorf("writer config: %w", err)
		}
		writer, err = registry.CreateWriter(ctx, cfg.Writer, httpClient, writerCfg, logger.With("component", cfg.Writer+"_writer"))
		if err != nil {
			logger.Error("writer unavailable", "writer", cfg.Writer, "error", err)
			writer = nil
		} else {
			a.closers = append(a.closers, writer)
		}
	}

	sess, err := session.New(session.Options{
		Gate:        g,
		Source:      source,
		Parser:      parser.New(loc),
		Speaker:     speech.New(cfg.SpeechCommand, logger.With("component", "speech")),
		Writer:      writer,
		Metrics:     metrics.New(),
		MetricsFile: cfg.MetricsFile,
		Notify:      notify,
	}, logger.With("component", "session"))
	if err != nil {
		a.Close()
		return nil, err
	}
	a.session = sess

	logger.Info("configuration loaded", "reader", cfg.Reader, "writer", cfg.Writer, "timezone", loc.String())
	return a, nil
}

// oauthClient returns nil when neither plugin needs Google access.
func oauthClient(registry *plugins.Registry, cfg config.Config, logger *slog.Logger) (*http.Client, error) {
	scopes, err := registry.GetAllScopes(cfg.Reader, cfg.Writer)
	if err != nil {
		return nil, err
	}
	if len(scopes) == 0 {
		return nil, nil
	}

	logger.Info("OAuth scopes required", "scopes", scopes)
	httpClient, err := client.New(client.Options{
		SecretFile: cfg.ClientSecret,
		TokenFile:  cfg.TokenFile,
	}, scopes...)
	if err != nil {
		if errors.Is(err, client.ErrNoToken) {
			return nil, err
		}
		return nil, fmt.Errorf("creating http client: %w", err)
	}
	return httpClient, nil
}

// Close releases plugin resources such as database pools and open files.
func (a *app) Close() {
	for _, c := range a.closers {
		switch c := c.(type) {
		case interface{ Close() error }:
			if err := c.Close(); err != nil {
				a.logger.Warn("closing plugin", "error", err)
			}
		case interface{ Close() }:
			c.Close()
		}
	}
}
