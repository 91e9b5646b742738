package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/ArionMiles/smsledger/internal/session"
	"github.com/ArionMiles/smsledger/pkg/api"
	"github.com/ArionMiles/smsledger/pkg/config"
	"github.com/ArionMiles/smsledger/pkg/logging"
)

// runHeadless unlocks, scans once, and either prints or exports the result.
func runHeadless(command string, cfg config.Config, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet(command, flag.ContinueOnError)
	passcode := fs.String("passcode", "", "unlock passcode")
	asJSON := fs.Bool("json", false, "print transactions as JSON (list only)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *passcode == "" {
		return errors.New("--passcode is required")
	}

	logger := logging.Setup(logging.DefaultConfig())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	notify := func(status string) { fmt.Fprintln(os.Stderr, status) }
	a, err := newApp(ctx, cfg, notify, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	st := a.session.Unlock(ctx, *passcode, session.Initial())
	fmt.Fprintln(os.Stderr, st.Status)
	if st.Err != nil {
		return st.Err
	}

	if command == "export" {
		st = a.session.Export(ctx, st)
		fmt.Fprintln(os.Stderr, st.Status)
		return st.Err
	}

	if *asJSON {
		return printJSON(stdout, st.Transactions)
	}
	return printTransactions(stdout, st.Transactions)
}

func printTransactions(w io.Writer, txns []*api.Transaction) error {
	for _, t := range txns {
		if _, err := fmt.Fprintf(w, "%s\n%s\n%s\n\n", t.Title, t.Subtitle(), t.Extra()); err != nil {
			return err
		}
	}
	return nil
}

func printJSON(w io.Writer, txns []*api.Transaction) error {
	if txns == nil {
		txns = []*api.Transaction{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(txns)
}
