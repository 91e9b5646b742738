// Package plugins provides a plugin registry for message sources and export writers.
package plugins

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sort"

	"github.com/ArionMiles/smsledger/pkg/api"
)

// ReaderPlugin defines the interface for message source plugins.
type ReaderPlugin interface {
	// Name returns the plugin name (e.g., "backupxml", "mbox").
	Name() string
	// Description returns a human-readable description.
	Description() string
	// RequiredScopes returns the OAuth scopes needed by this plugin.
	RequiredScopes() []string
	// ConfigSchema returns a JSON schema describing the plugin's configuration.
	ConfigSchema() map[string]any
	// NewReader creates a new source with the given config.
	NewReader(ctx context.Context, httpClient *http.Client, config json.RawMessage, logger *slog.Logger) (api.Source, error)
}

// WriterPlugin defines the interface for export writer plugins.
type WriterPlugin interface {
	// Name returns the plugin name (e.g., "sheets", "csv", "json").
	Name() string
	// Description returns a human-readable description.
	Description() string
	// RequiredScopes returns the OAuth scopes needed by this plugin.
	RequiredScopes() []string
	// ConfigSchema returns a JSON schema describing the plugin's configuration.
	ConfigSchema() map[string]any
	// NewWriter creates a new writer with the given config.
	NewWriter(ctx context.Context, httpClient *http.Client, config json.RawMessage, logger *slog.Logger) (api.Writer, error)
}

// Registry manages available reader and writer plugins.
type Registry struct {
	readers map[string]ReaderPlugin
	writers map[string]WriterPlugin
}

// NewRegistry creates an empty plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		readers: make(map[string]ReaderPlugin),
		writers: make(map[string]WriterPlugin),
	}
}

// Default returns a registry with every built-in plugin registered.
func Default() *Registry {
	r := NewRegistry()
	for _, p := range builtinReaders() {
		if err := r.RegisterReader(p); err != nil {
			panic(err)
		}
	}
	for _, p := range builtinWriters() {
		if err := r.RegisterWriter(p); err != nil {
			panic(err)
		}
	}
	return r
}

// RegisterReader registers a reader plugin.
func (r *Registry) RegisterReader(plugin ReaderPlugin) error {
	name := plugin.Name()
	if _, exists := r.readers[name]; exists {
		return fmt.Errorf("reader plugin %q already registered", name)
	}
	r.readers[name] = plugin
	return nil
}

// RegisterWriter registers a writer plugin.
func (r *Registry) RegisterWriter(plugin WriterPlugin) error {
	name := plugin.Name()
	if _, exists := r.writers[name]; exists {
		return fmt.Errorf("writer plugin %q already registered", name)
	}
	r.writers[name] = plugin
	return nil
}

// GetReader returns a reader plugin by name.
func (r *Registry) GetReader(name string) (ReaderPlugin, error) {
	plugin, exists := r.readers[name]
	if !exists {
		return nil, fmt.Errorf("reader plugin %q not found", name)
	}
	return plugin, nil
}

// GetWriter returns a writer plugin by name.
func (r *Registry) GetWriter(name string) (WriterPlugin, error) {
	plugin, exists := r.writers[name]
	if !exists {
		return nil, fmt.Errorf("writer plugin %q not found", name)
	}
	return plugin, nil
}

// ListReaders returns all registered reader plugins sorted by name.
func (r *Registry) ListReaders() []ReaderPlugin {
	plugins := make([]ReaderPlugin, 0, len(r.readers))
	for _, plugin := range r.readers {
		plugins = append(plugins, plugin)
	}
	sort.Slice(plugins, func(i, j int) bool { return plugins[i].Name() < plugins[j].Name() })
	return plugins
}

// ListWriters returns all registered writer plugins sorted by name.
func (r *Registry) ListWriters() []WriterPlugin {
	plugins := make([]WriterPlugin, 0, len(r.writers))
	for _, plugin := range r.writers {
		plugins = append(plugins, plugin)
	}
	sort.Slice(plugins, func(i, j int) bool { return plugins[i].Name() < plugins[j].Name() })
	return plugins
}

// GetAllScopes returns the sorted, deduplicated OAuth scopes needed by the named plugins.
// An empty writer name means no writer is configured.
func (r *Registry) GetAllScopes(readerName, writerName string) ([]string, error) {
	reader, err := r.GetReader(readerName)
	if err != nil {
		return nil, err
	}
	scopes := slices.Clone(reader.RequiredScopes())

	if writerName != "" {
		writer, err := r.GetWriter(writerName)
		if err != nil {
			return nil, err
		}
		scopes = append(scopes, writer.RequiredScopes()...)
	}

	slices.Sort(scopes)
	return slices.Compact(scopes), nil
}

// CreateReader creates a source from a plugin.
func (r *Registry) CreateReader(ctx context.Context, name string, httpClient *http.Client, config json.RawMessage, logger *slog.Logger) (api.Source, error) {
	plugin, err := r.GetReader(name)
	if err != nil {
		return nil, err
	}
	return plugin.NewReader(ctx, httpClient, config, logger)
}

// CreateWriter creates a writer from a plugin.
func (r *Registry) CreateWriter(ctx context.Context, name string, httpClient *http.Client, config json.RawMessage, logger *slog.Logger) (api.Writer, error) {
	plugin, err := r.GetWriter(name)
	if err != nil {
		return nil, err
	}
	return plugin.NewWriter(ctx, httpClient, config, logger)
}

// decode unmarshals plugin config, treating an empty document as "{}".
func decode(name string, data json.RawMessage, v any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshaling %s config: %w", name, err)
	}
	return nil
}

func requireClient(name string, httpClient *http.Client) error {
	if httpClient == nil {
		return fmt.Errorf("%s plugin requires an OAuth client; run `smsledger setup`", name)
	}
	return nil
}
