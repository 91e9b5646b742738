// Package client provides OAuth2 client setup for Google APIs.
package client

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	// callbackPort is the port for the local OAuth callback server.
	callbackPort = 8085
	// callbackPath is the path for the OAuth callback.
	callbackPath = "/callback"
	// serverTimeout is how long to wait for the OAuth callback.
	serverTimeout = 5 * time.Minute
)

const (
	// SecretFile is the default path to the Google OAuth credentials JSON file.
	SecretFile = "data/client_secret.json"
	// TokenFile is the default path to the OAuth token file.
	TokenFile = "data/token.json"
)

// ErrNoToken is returned when no saved token exists and the browser flow is disabled.
var ErrNoToken = errors.New("no saved OAuth token; run `smsledger setup`")

// Options controls where credentials live and whether the browser flow may run.
type Options struct {
	// SecretFile defaults to SecretFile.
	SecretFile string
	// TokenFile defaults to TokenFile.
	TokenFile string
	// Interactive allows the browser consent flow when no token is saved.
	Interactive bool
}

func (o Options) withDefaults() Options {
	if o.SecretFile == "" {
		o.SecretFile = SecretFile
	}
	if o.TokenFile == "" {
		o.TokenFile = TokenFile
	}
	return o
}

// New creates a new HTTP client with OAuth2 credentials from opts.SecretFile.
func New(opts Options, scope ...string) (*http.Client, error) {
	opts = opts.withDefaults()

	b, err := os.ReadFile(opts.SecretFile)
	if err != nil {
		return nil, fmt.Errorf("reading client secret file: %w", err)
	}

	return NewFromJSON(b, opts, scope...)
}

// NewFromJSON creates a new HTTP client with OAuth2 credentials from JSON content.
func NewFromJSON(secretJSON []byte, opts Options, scope ...string) (*http.Client, error) {
	opts = opts.withDefaults()

	config, err := google.ConfigFromJSON(secretJSON, scope...)
	if err != nil {
		return nil, fmt.Errorf("parsing client secret: %w", err)
	}

	client, err := getClient(config, opts)
	if err != nil {
		return nil, fmt.Errorf("getting oauth client: %w", err)
	}

	return client, nil
}

// HasToken reports whether a readable token is saved at path.
func HasToken(path string) bool {
	if path == "" {
		path = TokenFile
	}
	_, err := tokenFromFile(path)
	return err == nil
}

func getClient(config *oauth2.Config, opts Options) (*http.Client, error) {
	tok, err := tokenFromFile(opts.TokenFile)
	if err != nil {
		if !opts.Interactive {
			return nil, ErrNoToken
		}
		slog.Info("no existing token found, initiating OAuth flow")
		tok, err = getTokenFromWeb(context.Background(), config)
		if err != nil {
			return nil, err
		}
		if err := saveToken(opts.TokenFile, tok); err != nil {
			slog.Error("failed to save token", "error", err)
		}
	}
	return config.Client(context.Background(), tok), nil
}

func getTokenFromWeb(ctx context.Context, config *oauth2.Config) (*oauth2.Token, error) {
	config.RedirectURL = fmt.Sprintf("http://localhost:%d%s", callbackPort, callbackPath)

	state, err := generateState()
	if err != nil {
		return nil, fmt.Errorf("generating state token: %w", err)
	}

	result := make(chan callbackResult, 1)

	server, err := startCallbackServer(ctx, callbackHandler(state, result), result)
	if err != nil {
		return nil, fmt.Errorf("starting callback server: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			slog.Warn("error shutting down callback server", "error", err)
		}
	}()

	authURL := config.AuthCodeURL(state, oauth2.AccessTypeOffline)

	fmt.Printf("\nOpening browser to grant smsledger access to your Google account...\n")
	fmt.Printf("If the browser doesn't open automatically, visit this URL:\n%s\n\n", authURL)

	if err := openBrowser(authURL); err != nil {
		slog.Warn("failed to open browser automatically", "error", err)
	}

	select {
	case res := <-result:
		if res.err != nil {
			return nil, fmt.Errorf("oauth callback error: %w", res.err)
		}
		tok, err := config.Exchange(ctx, res.code)
		if err != nil {
			return nil, fmt.Errorf("exchanging authorization code for token: %w", err)
		}
		fmt.Println("Authentication successful!")
		return tok, nil
	case <-time.After(serverTimeout):
		return nil, fmt.Errorf("oauth flow timed out after %v", serverTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type callbackResult struct {
	code string
	err  error
}

const successPage = `<!DOCTYPE html>
<html>
<head><title>smsledger</title></head>
<body style="font-family: sans-serif; text-align: center; margin-top: 20vh;">
<h1>Access granted</h1>
<p>You can close this window and return to smsledger.</p>
</body>
</html>`

// callbackHandler reports the first callback outcome on result.
func callbackHandler(expectedState string, result chan<- callbackResult) http.HandlerFunc {
	report := func(res callbackResult) {
		select {
		case result <- res:
		default:
		}
	}

	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		if q.Get("state") != expectedState {
			report(callbackResult{err: errors.New("invalid state parameter")})
			http.Error(w, "Invalid state parameter", http.StatusBadRequest)
			return
		}

		if errMsg := q.Get("error"); errMsg != "" {
			report(callbackResult{err: fmt.Errorf("%s: %s", errMsg, q.Get("error_description"))})
			http.Error(w, "Authentication failed: "+errMsg, http.StatusBadRequest)
			return
		}

		code := q.Get("code")
		if code == "" {
			report(callbackResult{err: errors.New("no authorization code received")})
			http.Error(w, "No authorization code received", http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = io.WriteString(w, successPage)
		report(callbackResult{code: code})
	}
}

func startCallbackServer(ctx context.Context, handler http.HandlerFunc, result chan<- callbackResult) (*http.Server, error) {
	mux := http.NewServeMux()
	mux.Handle(callbackPath, handler)

	server := &http.Server{
		Addr:              fmt.Sprintf("localhost:%d", callbackPort),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc := net.ListenConfig{}
	listener, err := lc.Listen(ctx, "tcp", server.Addr)
	if err != nil {
		return nil, fmt.Errorf("port %d unavailable: %w", callbackPort, err)
	}

	go func() {
		slog.Debug("starting OAuth callback server", "port", callbackPort)
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("callback server error", "error", err)
			select {
			case result <- callbackResult{err: err}:
			default:
			}
		}
	}()

	return server, nil
}

func openBrowser(url string) error {
	ctx := context.Background()
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.CommandContext(ctx, "open", url)
	case "linux":
		cmd = exec.CommandContext(ctx, "xdg-open", url)
	case "windows":
		cmd = exec.CommandContext(ctx, "rundll32", "url.dll,FileProtocolHandler", url)
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}

	return cmd.Start()
}

func generateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func tokenFromFile(file string) (*oauth2.Token, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}

	tok := &oauth2.Token{}
	if err := json.Unmarshal(data, tok); err != nil {
		return nil, fmt.Errorf("decoding token %s: %w", file, err)
	}
	return tok, nil
}

// SaveToken writes token to path with owner-only permissions.
func SaveToken(path string, token *oauth2.Token) error {
	return saveToken(path, token)
}

func saveToken(path string, token *oauth2.Token) error {
	slog.Info("saving credential file", "path", path)

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating token directory: %w", err)
	}

	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("encoding token: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing token file: %w", err)
	}
	return nil
}
