package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"

	"github.com/ArionMiles/smsledger/pkg/config"
	"github.com/ArionMiles/smsledger/pkg/gate"
	"github.com/ArionMiles/smsledger/pkg/logging"
)

const usage = `smsledger reads bank SMS and lists the payments they describe.

Usage:
  smsledger [-config path] [command] [flags]

Commands:
  tui            Interactive terminal UI (default)
  list           Print transactions once (--passcode required)
  export         Scan once and export to the configured writer (--passcode required)
  setup          Authorize Google access for the gmail and sheets plugins
  status         Check configuration, plugins and credentials
  hash-passcode  Print a bcrypt hash for SMSLEDGER_PASSCODE_HASH
`

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("smsledger", flag.ContinueOnError)
	configPath := fs.String("config", config.DefaultFile, "path to config.json")
	fs.Usage = func() { fmt.Fprint(fs.Output(), usage) }
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	// A missing .env is fine.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	command, rest := "tui", fs.Args()
	if len(rest) > 0 {
		command, rest = rest[0], rest[1:]
	}

	switch command {
	case "tui":
		return runTUI(cfg)
	case "list", "export":
		return runHeadless(command, cfg, rest, stdout)
	case "setup":
		setupFlags := flag.NewFlagSet("setup", flag.ContinueOnError)
		force := setupFlags.Bool("force", false, "re-authenticate even if a token exists")
		if err := setupFlags.Parse(rest); err != nil {
			return err
		}
		return runSetup(logging.Setup(logging.DefaultConfig()), cfg, *force)
	case "status":
		return runStatus(cfg, *configPath, stdout)
	case "hash-passcode":
		if len(rest) != 1 {
			return errors.New("usage: smsledger hash-passcode <passcode>")
		}
		hash, err := gate.Hash(rest[0])
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(stdout, hash)
		return err
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}
}
