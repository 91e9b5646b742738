// Package speech reads transaction summaries aloud through a local TTS binary.
package speech

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/ArionMiles/smsledger/pkg/api"
)

// Candidates are the TTS binaries probed, in order, when no command is configured.
var Candidates = []string{"espeak-ng", "espeak", "say", "spd-say"}

// Command speaks by running a binary with the text as its last argument.
type Command struct {
	path   string
	args   []string
	logger *slog.Logger
}

// NewCommand parses a command line such as "espeak-ng -s 150" and resolves the binary.
func NewCommand(command string, logger *slog.Logger) (*Command, error) {
	if logger == nil {
		logger = slog.Default()
	}

	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, errors.New("empty speech command")
	}

	path, err := exec.LookPath(fields[0])
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", fields[0], err)
	}

	return &Command{path: path, args: fields[1:], logger: logger}, nil
}

// Speak runs the command and waits for it to finish.
func (c *Command) Speak(ctx context.Context, text string) error {
	args := append(append([]string(nil), c.args...), text)
	cmd := exec.CommandContext(ctx, c.path, args...)

	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("running %s: %w: %s", c.path, err, strings.TrimSpace(string(out)))
	}

	c.logger.Debug("spoke text", "command", c.path, "length", len(text))
	return nil
}

// Fallback logs the text instead of speaking it.
type Fallback struct {
	logger *slog.Logger
}

// NewFallback returns a speaker that only logs.
func NewFallback(logger *slog.Logger) *Fallback {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fallback{logger: logger}
}

// Speak logs text and never fails.
func (f *Fallback) Speak(_ context.Context, text string) error {
	f.logger.Info("TTS not available", "text", text)
	return nil
}

// New returns a Command speaker for the configured command, or for the first
// candidate found on PATH. It falls back to logging when none is available.
func New(command string, logger *slog.Logger) api.Speaker {
	if logger == nil {
		logger = slog.Default()
	}

	if command != "" {
		c, err := NewCommand(command, logger)
		if err == nil {
			return c
		}
		logger.Warn("configured speech command unavailable", "command", command, "error", err)
	}

	for _, name := range Candidates {
		if c, err := NewCommand(name, logger); err == nil {
			logger.Debug("using speech command", "command", name)
			return c
		}
	}

	return NewFallback(logger)
}
