package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ArionMiles/smsledger/cmd/smsledger/internal/view"
	"github.com/ArionMiles/smsledger/pkg/config"
	"github.com/ArionMiles/smsledger/pkg/logging"
)

// runTUI runs the interactive UI. Logs go to cfg.LogFile since the UI owns the terminal.
func runTUI(cfg config.Config) error {
	logger, closer, err := logging.SetupFile(logging.DefaultConfig(), cfg.LogFile)
	if err != nil {
		return err
	}
	defer closer.Close()

	var program *tea.Program
	notify := func(status string) {
		if program != nil {
			program.Send(view.StatusMsg(status))
		}
	}

	a, err := newApp(context.Background(), cfg, notify, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		return err
	}
	defer a.Close()

	program = tea.NewProgram(view.New(a.session), tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		logger.Error("failed to run TUI", "error", err)
		return fmt.Errorf("running TUI: %w", err)
	}
	return nil
}
