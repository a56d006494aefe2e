// Package login runs the browser authorization code flow: a localhost
// callback server receives the code, which is exchanged with PKCE.
package login

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"

	"github.com/tonimelisma/box-go/internal/auth"
)

// stateTokenBytes is the number of random bytes in the state parameter.
const stateTokenBytes = 16

// shutdownTimeout bounds how long the callback server drains.
const shutdownTimeout = 5 * time.Second

// CodeGrant is what the flow needs from the token manager.
type CodeGrant interface {
	AuthCodeURL(state, redirectURL, verifier string) string
	AcquireByAuthorizationCode(ctx context.Context, code string, opts ...auth.CodeOption) (auth.TokenInfo, error)
}

// Flow is one browser login.
type Flow struct {
	Grants      CodeGrant
	RedirectURL string // must match the app's registered redirect URI; port 0 picks a free port

	// OpenURL launches the browser. When it fails the URL is written to
	// Prompt so the user can open it by hand.
	OpenURL func(string) error
	Prompt  io.Writer
	Logger  *slog.Logger
}

type callbackResult struct {
	code string
	err  error
}

// Run serves the callback, sends the user to the authorize page and
// exchanges the returned code. It blocks until the callback fires or ctx
// is done.
func (f *Flow) Run(ctx context.Context) (auth.TokenInfo, error) {
	logger := f.Logger
	if logger == nil {
		logger = slog.Default()
	}

	redirect, err := url.Parse(f.RedirectURL)
	if err != nil || redirect.Host == "" {
		return auth.TokenInfo{}, fmt.Errorf("login: invalid redirect URL %q", f.RedirectURL)
	}

	callbackPath := redirect.Path
	if callbackPath == "" {
		callbackPath = "/"
	}

	lc := net.ListenConfig{}

	listener, err := lc.Listen(ctx, "tcp", redirect.Host)
	if err != nil {
		return auth.TokenInfo{}, fmt.Errorf("login: binding %s: %w", redirect.Host, err)
	}

	// Port 0 is resolved to the bound port so the redirect URI matches.
	redirect.Host = listener.Addr().String()
	redirectURL := redirect.String()

	state, err := generateState()
	if err != nil {
		listener.Close()
		return auth.TokenInfo{}, fmt.Errorf("login: generating state token: %w", err)
	}

	resultCh := make(chan callbackResult, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+callbackPath, func(w http.ResponseWriter, r *http.Request) {
		handleCallback(w, r, state, resultCh)
	})

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: shutdownTimeout}

	go func() {
		if serveErr := srv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			deliver(resultCh, callbackResult{err: fmt.Errorf("login: callback server: %w", serveErr)})
		}
	}()

	defer shutdown(srv, logger)

	logger.Info("callback server listening", slog.String("redirect_url", redirectURL))

	verifier := oauth2.GenerateVerifier()
	f.launch(f.Grants.AuthCodeURL(state, redirectURL, verifier), logger)

	var code string

	select {
	case res := <-resultCh:
		if res.err != nil {
			return auth.TokenInfo{}, res.err
		}

		code = res.code
	case <-ctx.Done():
		return auth.TokenInfo{}, fmt.Errorf("login: browser auth canceled: %w", ctx.Err())
	}

	logger.Info("received authorization code, exchanging for token")

	return f.Grants.AcquireByAuthorizationCode(ctx, code,
		auth.WithRedirectURL(redirectURL),
		auth.WithPKCEVerifier(verifier),
	)
}

func (f *Flow) launch(authURL string, logger *slog.Logger) {
	logger.Info("opening browser for authorization")

	if f.OpenURL == nil {
		f.printURL(authURL)
		return
	}

	if err := f.OpenURL(authURL); err != nil {
		logger.Warn("failed to open browser, printing URL", slog.String("error", err.Error()))
		f.printURL(authURL)
	}
}

func (f *Flow) printURL(authURL string) {
	if f.Prompt != nil {
		fmt.Fprintf(f.Prompt, "Open this URL in your browser:\n%s\n", authURL)
	}
}

// handleCallback checks state first, then the provider's error, then the
// code. Only the first result is delivered.
func handleCallback(w http.ResponseWriter, r *http.Request, state string, resultCh chan<- callbackResult) {
	q := r.URL.Query()

	if q.Get("state") != state {
		http.Error(w, "Invalid state parameter", http.StatusBadRequest)
		deliver(resultCh, callbackResult{err: errors.New("login: OAuth2 state mismatch (possible CSRF)")})

		return
	}

	if errParam := q.Get("error"); errParam != "" {
		http.Error(w, "Authorization failed: "+errParam, http.StatusBadRequest)
		deliver(resultCh, callbackResult{
			err: &auth.AuthError{Op: "authorize", Code: errParam, Description: q.Get("error_description")},
		})

		return
	}

	code := q.Get("code")
	if code == "" {
		http.Error(w, "Missing authorization code", http.StatusBadRequest)
		deliver(resultCh, callbackResult{err: errors.New("login: callback missing authorization code")})

		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, "<html><body><h1>Authentication successful</h1>"+
		"<p>You can close this window and return to the terminal.</p></body></html>")
	deliver(resultCh, callbackResult{code: code})
}

// deliver never blocks; a second callback is dropped.
func deliver(ch chan<- callbackResult, res callbackResult) {
	select {
	case ch <- res:
	default:
	}
}

func shutdown(srv *http.Server, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("callback server shutdown error", slog.String("error", err.Error()))
	}
}

// generateState returns a random hex string for the state parameter.
func generateState() (string, error) {
	b := make([]byte, stateTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	return hex.EncodeToString(b), nil
}
