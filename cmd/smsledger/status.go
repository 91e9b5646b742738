package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"slices"
	"sort"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/ArionMiles/smsledger/internal/plugins"
	"github.com/ArionMiles/smsledger/pkg/client"
	"github.com/ArionMiles/smsledger/pkg/config"
	"github.com/ArionMiles/smsledger/pkg/gate"
)

// statusReport accumulates check results.
type statusReport struct {
	w       io.Writer
	allGood bool
}

func (r *statusReport) ok(format string, args ...any) {
	fmt.Fprintf(r.w, "✓ "+format+"\n", args...)
}

func (r *statusReport) warn(format string, args ...any) {
	fmt.Fprintf(r.w, "⚠ "+format+"\n", args...)
}

func (r *statusReport) fail(format string, args ...any) {
	fmt.Fprintf(r.w, "✗ "+format+"\n", args...)
	r.allGood = false
}

// runStatus checks the configuration and authentication status.
func runStatus(cfg config.Config, configPath string, w io.Writer) error {
	fmt.Fprintln(w, "=== smsledger Status ===")
	fmt.Fprintln(w)

	r := &statusReport{w: w, allGood: true}
	registry := plugins.Default()

	fmt.Fprintf(w, "Config file (%s): ", configPath)
	if _, err := os.Stat(configPath); err != nil {
		r.warn("Not found (using defaults and environment)")
	} else {
		r.ok("Found")
	}

	checkPasscode(r, cfg)
	checkTimezone(r, cfg)
	checkPlugins(r, registry, cfg)

	scopes, err := registry.GetAllScopes(cfg.Reader, cfg.Writer)
	if err == nil && len(scopes) > 0 {
		if token := checkCredentials(r, cfg); token != nil && slices.Contains(scopes, gmail.GmailReadonlyScope) {
			checkAPIConnectivity(r, cfg, scopes)
		}
	}

	printAvailablePlugins(w, registry)
	printFinalStatus(w, r.allGood)
	return nil
}

func checkPasscode(r *statusReport, cfg config.Config) {
	fmt.Fprint(r.w, "Passcode: ")
	if _, err := gate.FromConfig(cfg.Passcode, cfg.PasscodeHash); err != nil {
		r.fail("%v", err)
		return
	}
	switch {
	case cfg.PasscodeHash != "":
		r.ok("bcrypt hash")
	case cfg.Passcode != "":
		r.ok("plaintext (consider 'smsledger hash-passcode')")
	default:
		r.warn("Using the built-in default")
	}
}

func checkTimezone(r *statusReport, cfg config.Config) {
	fmt.Fprint(r.w, "Timezone: ")
	loc, err := cfg.Location()
	if err != nil {
		r.fail("%v", err)
		return
	}
	r.ok("%s", loc)
}

func checkPlugins(r *statusReport, registry *plugins.Registry, cfg config.Config) {
	fmt.Fprintf(r.w, "Reader plugin (%s): ", cfg.Reader)
	if _, err := registry.GetReader(cfg.Reader); err != nil {
		r.fail("%v", err)
	} else if _, err := cfg.ReaderJSON(); err != nil {
		r.fail("%v", err)
	} else {
		r.ok("Registered")
	}

	if cfg.Writer == "" {
		fmt.Fprintln(r.w, "Writer plugin: none (export disabled)")
		return
	}
	fmt.Fprintf(r.w, "Writer plugin (%s): ", cfg.Writer)
	if _, err := registry.GetWriter(cfg.Writer); err != nil {
		r.fail("%v", err)
	} else if _, err := cfg.WriterJSON(); err != nil {
		r.fail("%v", err)
	} else {
		r.ok("Registered")
	}
}

func checkCredentials(r *statusReport, cfg config.Config) *oauth2.Token {
	fmt.Fprintf(r.w, "Credentials file (%s): ", cfg.ClientSecret)
	if _, err := os.Stat(cfg.ClientSecret); errors.Is(err, fs.ErrNotExist) {
		r.fail("Not found")
	} else {
		r.ok("Found")
	}

	fmt.Fprintf(r.w, "OAuth token (%s): ", cfg.TokenFile)
	token, err := checkToken(cfg.TokenFile)
	if err != nil {
		r.fail("%v", err)
		return nil
	}

	if token.Expiry.Before(time.Now()) {
		r.warn("Expired (will refresh on next run)")
	} else {
		r.ok("Valid (expires: %s)", token.Expiry.Format(time.RFC3339))
	}
	return token
}

func checkAPIConnectivity(r *statusReport, cfg config.Config, scopes []string) {
	fmt.Fprintln(r.w)
	fmt.Fprintln(r.w, "API Connectivity:")

	httpClient, err := client.New(client.Options{SecretFile: cfg.ClientSecret, TokenFile: cfg.TokenFile}, scopes...)
	if err != nil {
		fmt.Fprint(r.w, "  OAuth client: ")
		r.fail("%v", err)
		return
	}

	fmt.Fprint(r.w, "  Gmail API: ")
	if err := testGmailAPI(httpClient); err != nil {
		r.fail("%v", err)
	} else {
		r.ok("Connected")
	}
}

func printAvailablePlugins(w io.Writer, registry *plugins.Registry) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Available readers:")
	for _, p := range registry.ListReaders() {
		fmt.Fprintf(w, "  %-10s %s%s\n", p.Name(), p.Description(), configKeys(p.ConfigSchema()))
	}
	fmt.Fprintln(w, "Available writers:")
	for _, p := range registry.ListWriters() {
		fmt.Fprintf(w, "  %-10s %s%s\n", p.Name(), p.Description(), configKeys(p.ConfigSchema()))
	}
}

// configKeys lists a schema's property names.
func configKeys(schema map[string]any) string {
	props, _ := schema["properties"].(map[string]any)
	if len(props) == 0 {
		return ""
	}
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return fmt.Sprintf(" %v", keys)
}

func printFinalStatus(w io.Writer, allGood bool) {
	fmt.Fprintln(w)
	if allGood {
		fmt.Fprintln(w, "Status: ✓ Ready to run")
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Run 'smsledger' to open the transaction list.")
	} else {
		fmt.Fprintln(w, "Status: ✗ Configuration issues detected")
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Fix the issues above, then run 'smsledger status' again.")
	}
}

func checkToken(tokenPath string) (*oauth2.Token, error) {
	data, err := os.ReadFile(tokenPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("not found (run 'smsledger setup')")
		}
		return nil, err
	}

	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("invalid format")
	}

	return &token, nil
}

func testGmailAPI(httpClient *http.Client) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	svc, err := gmail.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return fmt.Errorf("creating service: %w", err)
	}

	// List labels as a simple connectivity test
	_, err = svc.Users.Labels.List("me").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("API call failed: %w", err)
	}

	return nil
}
