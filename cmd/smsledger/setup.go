package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/ArionMiles/smsledger/internal/plugins"
	"github.com/ArionMiles/smsledger/pkg/client"
	"github.com/ArionMiles/smsledger/pkg/config"
)

// runSetup handles the OAuth setup flow for the configured plugins.
func runSetup(logger *slog.Logger, cfg config.Config, force bool) error {
	fmt.Println("=== smsledger Setup ===")
	fmt.Println()

	registry := plugins.Default()
	scopes, err := registry.GetAllScopes(cfg.Reader, cfg.Writer)
	if err != nil {
		return err
	}
	if len(scopes) == 0 {
		fmt.Printf("Reader %q and writer %q need no Google access. Nothing to do.\n", cfg.Reader, cfg.Writer)
		return nil
	}

	// Check if credentials file exists
	if _, err := os.Stat(cfg.ClientSecret); errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("credentials file not found: %s\n\nTo get your credentials:\n"+
			"1. Go to https://console.cloud.google.com/apis/credentials\n"+
			"2. Create an OAuth 2.0 Client ID (Desktop application)\n"+
			"3. Download the JSON file and save it as '%s'", cfg.ClientSecret, cfg.ClientSecret)
	}

	// Check if already authenticated
	if !force && client.HasToken(cfg.TokenFile) {
		fmt.Printf("Already authenticated! Token file exists: %s\n", cfg.TokenFile)
		fmt.Println()
		fmt.Println("To re-authenticate, run: smsledger setup --force")
		return nil
	}

	if force {
		if err := os.Remove(cfg.TokenFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logger.Warn("failed to remove existing token", "error", err)
		}
		fmt.Println("Forcing re-authentication...")
		fmt.Println()
	}

	fmt.Println("Required permissions:")
	for _, scope := range scopes {
		fmt.Printf("  - %s\n", scope)
	}
	fmt.Println()
	fmt.Println("Starting authentication...")
	fmt.Println()

	// Trigger OAuth flow by creating client
	_, err = client.New(client.Options{
		SecretFile:  cfg.ClientSecret,
		TokenFile:   cfg.TokenFile,
		Interactive: true,
	}, scopes...)
	if err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}

	fmt.Println()
	fmt.Println("=== Setup Complete ===")
	fmt.Println()
	fmt.Printf("Token saved to: %s\n", cfg.TokenFile)
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  1. Run 'smsledger status' to verify the configuration")
	fmt.Println("  2. Run 'smsledger' to open the transaction list")
	fmt.Println()

	return nil
}
