// Package config loads smsledger settings from config.json and the environment.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	kJson "github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/ArionMiles/smsledger/pkg/client"
	"github.com/ArionMiles/smsledger/pkg/logging"
)

// DefaultFile is the optional JSON config file read from the working directory.
const DefaultFile = "config.json"

// EnvPrefix is the prefix of every environment variable read into Config.
const EnvPrefix = "SMSLEDGER_"

// Defaults for the plugin selection.
const (
	DefaultReader = "sample"
	DefaultWriter = "json"
)

// Config holds the application configuration.
type Config struct {
	// Reader names the message source plugin.
	// Environment variable: SMSLEDGER_READER
	Reader string `koanf:"SMSLEDGER_READER"`

	// ReaderConfig is the reader's JSON config, inline or as a path to a JSON file.
	// In config.json it may also be a nested object.
	// Environment variable: SMSLEDGER_READER_CONFIG
	ReaderConfig string `koanf:"SMSLEDGER_READER_CONFIG"`

	// Writer names the export plugin.
	// Environment variable: SMSLEDGER_WRITER
	Writer string `koanf:"SMSLEDGER_WRITER"`

	// WriterConfig is the writer's JSON config, inline or as a path to a JSON file.
	// Environment variable: SMSLEDGER_WRITER_CONFIG
	WriterConfig string `koanf:"SMSLEDGER_WRITER_CONFIG"`

	// Passcode is the plaintext unlock code.
	// Environment variable: SMSLEDGER_PASSCODE
	Passcode string `koanf:"SMSLEDGER_PASSCODE"`

	// PasscodeHash is a bcrypt hash that takes precedence over Passcode.
	// Environment variable: SMSLEDGER_PASSCODE_HASH
	PasscodeHash string `koanf:"SMSLEDGER_PASSCODE_HASH"`

	// Timezone is an IANA zone name for displayed dates. Empty means local time.
	// Environment variable: SMSLEDGER_TIMEZONE
	Timezone string `koanf:"SMSLEDGER_TIMEZONE"`

	// SpeechCommand overrides TTS binary detection.
	// Environment variable: SMSLEDGER_SPEECH_COMMAND
	SpeechCommand string `koanf:"SMSLEDGER_SPEECH_COMMAND"`

	// LogFile receives logs while the terminal UI runs.
	// Environment variable: SMSLEDGER_LOG_FILE
	LogFile string `koanf:"SMSLEDGER_LOG_FILE"`

	// MetricsFile enables a node-exporter textfile written after each scan.
	// Environment variable: SMSLEDGER_METRICS_FILE
	MetricsFile string `koanf:"SMSLEDGER_METRICS_FILE"`

	// ClientSecret is the Google OAuth client secret file.
	// Environment variable: SMSLEDGER_CLIENT_SECRET
	ClientSecret string `koanf:"SMSLEDGER_CLIENT_SECRET"`

	// TokenFile is where the Google OAuth token is saved.
	// Environment variable: SMSLEDGER_TOKEN_FILE
	TokenFile string `koanf:"SMSLEDGER_TOKEN_FILE"`
}

// Default returns a Config with every default applied.
func Default() Config {
	return Config{
		Reader:       DefaultReader,
		Writer:       DefaultWriter,
		LogFile:      logging.DefaultLogFile,
		ClientSecret: client.SecretFile,
		TokenFile:    client.TokenFile,
	}
}

// Load reads path (if it exists) and overlays SMSLEDGER_* environment variables.
func Load(path string) (Config, error) {
	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), kJson.Parser()); err != nil {
				return Config{}, fmt.Errorf("loading %s: %w", path, err)
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("checking %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", nil), nil); err != nil {
		return Config{}, fmt.Errorf("loading config from environment: %w", err)
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf", FlatPaths: true}); err != nil {
		return Config{}, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Nested plugin configs in config.json are flattened by koanf; re-encode them.
	for key, dst := range map[string]*string{
		"SMSLEDGER_READER_CONFIG": &cfg.ReaderConfig,
		"SMSLEDGER_WRITER_CONFIG": &cfg.WriterConfig,
	} {
		if *dst != "" {
			continue
		}
		if nested := k.Cut(key).Raw(); len(nested) > 0 {
			b, err := json.Marshal(nested)
			if err != nil {
				return Config{}, fmt.Errorf("encoding %s: %w", key, err)
			}
			*dst = string(b)
		}
	}

	return cfg, nil
}

// Location resolves Timezone.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// ReaderJSON returns the reader config as JSON.
func (c Config) ReaderJSON() (json.RawMessage, error) {
	return pluginJSON(c.ReaderConfig)
}

// WriterJSON returns the writer config as JSON.
func (c Config) WriterJSON() (json.RawMessage, error) {
	return pluginJSON(c.WriterConfig)
}

// pluginJSON accepts inline JSON, a path to a JSON file, or nothing.
func pluginJSON(value string) (json.RawMessage, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return json.RawMessage("{}"), nil
	}

	data := []byte(value)
	if !strings.HasPrefix(value, "{") {
		b, err := os.ReadFile(value)
		if err != nil {
			return nil, fmt.Errorf("reading plugin config: %w", err)
		}
		data = b
	}

	if !json.Valid(data) {
		return nil, fmt.Errorf("plugin config is not valid JSON: %.40q", value)
	}
	return json.RawMessage(data), nil
}
