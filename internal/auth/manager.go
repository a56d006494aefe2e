package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Default provider endpoints.
const (
	DefaultAuthURL   = "https://account.box.com/api/oauth2/authorize"
	DefaultTokenURL  = "https://api.box.com/oauth2/token"
	DefaultRevokeURL = "https://api.box.com/oauth2/revoke"
)

// grantTypeJWT is the assertion grant used by app auth.
const grantTypeJWT = "urn:ietf:params:oauth:grant-type:jwt-bearer"

// maxErrorBody bounds how much of a revoke error response is read.
const maxErrorBody = 64 << 10

// Config describes the OAuth2 client and endpoints the TokenManager talks to.
type Config struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	RevokeURL    string
	RedirectURL  string
	Scopes       []string

	// AppAuth enables AcquireByJWTGrant. Nil disables it.
	AppAuth *AppAuthKey
}

// TokenManager performs grant, refresh and revoke calls. It is stateless
// apart from configuration and safe for concurrent use.
type TokenManager struct {
	cfg        Config
	oauth      *oauth2.Config
	httpClient *http.Client
	logger     *slog.Logger

	// nowFunc is the clock used for AcquiredAt and assertion timestamps.
	// Tests override it.
	nowFunc func() time.Time
}

// NewTokenManager builds a TokenManager. Missing endpoints fall back to the
// provider defaults.
func NewTokenManager(cfg Config, httpClient *http.Client, logger *slog.Logger) (*TokenManager, error) {
	if cfg.ClientID == "" {
		return nil, errors.New("auth: client ID is required")
	}

	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if cfg.AuthURL == "" {
		cfg.AuthURL = DefaultAuthURL
	}

	if cfg.TokenURL == "" {
		cfg.TokenURL = DefaultTokenURL
	}

	if cfg.RevokeURL == "" {
		cfg.RevokeURL = DefaultRevokeURL
	}

	return &TokenManager{
		cfg: cfg,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		httpClient: httpClient,
		logger:     logger,
		nowFunc:    time.Now,
	}, nil
}

// CodeOption customizes an authorization code exchange.
type CodeOption func(*codeOptions)

type codeOptions struct {
	redirectURL string
	verifier    string
}

// WithRedirectURL overrides the redirect URL sent with the exchange. It must
// match the one used to build the authorize URL.
func WithRedirectURL(u string) CodeOption {
	return func(o *codeOptions) { o.redirectURL = u }
}

// WithPKCEVerifier sends the PKCE code verifier with the exchange.
func WithPKCEVerifier(v string) CodeOption {
	return func(o *codeOptions) { o.verifier = v }
}

// AuthCodeURL returns the authorize URL for the given state. A non-empty
// verifier adds an S256 PKCE challenge.
func (m *TokenManager) AuthCodeURL(state, redirectURL, verifier string) string {
	cfg := m.configFor(redirectURL)

	opts := []oauth2.AuthCodeOption{}
	if verifier != "" {
		opts = append(opts, oauth2.S256ChallengeOption(verifier))
	}

	return cfg.AuthCodeURL(state, opts...)
}

// AcquireByAuthorizationCode exchanges a one-shot authorization code.
// An invalid or expired code yields an *AuthError.
func (m *TokenManager) AcquireByAuthorizationCode(ctx context.Context, code string, opts ...CodeOption) (TokenInfo, error) {
	const op = "authorization code grant"

	var o codeOptions
	for _, opt := range opts {
		opt(&o)
	}

	if code == "" {
		return TokenInfo{}, &AuthError{Op: op, Err: errors.New("empty authorization code")}
	}

	cfg := m.configFor(o.redirectURL)

	var exchangeOpts []oauth2.AuthCodeOption
	if o.verifier != "" {
		exchangeOpts = append(exchangeOpts, oauth2.VerifierOption(o.verifier))
	}

	tok, err := cfg.Exchange(m.clientContext(ctx), code, exchangeOpts...)
	if err != nil {
		m.logger.Warn("authorization code exchange failed", slog.String("error", err.Error()))
		return TokenInfo{}, classifyGrantError(op, err)
	}

	info := tokenInfoFromOAuth2(tok, m.nowFunc())
	m.logger.Info("authorization code exchanged",
		slog.Time("expiry", info.AccessTokenExpiresAt),
		slog.Bool("refresh_token", info.RefreshToken != ""),
	)

	return info, nil
}

// AcquireByRefreshToken trades a refresh token for a new token pair.
// A revoked or expired refresh token yields an *AuthError; network errors,
// 5xx and 429 yield a *TransientError the caller may retry.
func (m *TokenManager) AcquireByRefreshToken(ctx context.Context, refreshToken string) (TokenInfo, error) {
	const op = "refresh token grant"

	if refreshToken == "" {
		return TokenInfo{}, &AuthError{Op: op, Err: ErrNoRefreshToken}
	}

	// An empty access token forces the library's refresher to run.
	src := m.oauth.TokenSource(m.clientContext(ctx), &oauth2.Token{RefreshToken: refreshToken})

	tok, err := src.Token()
	if err != nil {
		m.logger.Warn("token refresh failed", slog.String("error", err.Error()))
		return TokenInfo{}, classifyGrantError(op, err)
	}

	info := tokenInfoFromOAuth2(tok, m.nowFunc())
	m.logger.Info("token refreshed",
		slog.Time("expiry", info.AccessTokenExpiresAt),
		slog.Bool("rotated", info.RefreshToken != refreshToken),
	)

	return info, nil
}

// AcquireByClientCredentials obtains an anonymous token with the client's
// own credentials. No refresh token is issued.
func (m *TokenManager) AcquireByClientCredentials(ctx context.Context) (TokenInfo, error) {
	const op = "client credentials grant"

	cc := m.clientCredentials(nil)

	tok, err := cc.Token(m.clientContext(ctx))
	if err != nil {
		m.logger.Warn("client credentials grant failed", slog.String("error", err.Error()))
		return TokenInfo{}, classifyGrantError(op, err)
	}

	info := tokenInfoFromOAuth2(tok, m.nowFunc())
	m.logger.Info("anonymous token acquired", slog.Time("expiry", info.AccessTokenExpiresAt))

	return info, nil
}

// Revoke invalidates token at the provider. Revoking either half of a pair
// revokes both. Failures are returned, never retried.
func (m *TokenManager) Revoke(ctx context.Context, token string) error {
	const op = "revoke"

	if token == "" {
		return &AuthError{Op: op, Err: errors.New("no token to revoke")}
	}

	form := url.Values{
		"client_id":     {m.cfg.ClientID},
		"client_secret": {m.cfg.ClientSecret},
		"token":         {token},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.RevokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("auth: creating revoke request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		m.logger.Warn("token revoke failed", slog.String("error", err.Error()))

		if ctx.Err() != nil {
			return fmt.Errorf("auth: revoke canceled: %w", ctx.Err())
		}

		return &TransientError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		m.logger.Info("token revoked")
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	m.logger.Warn("token revoke rejected", slog.Int("status", resp.StatusCode))

	if IsRetryableStatus(resp.StatusCode) || resp.StatusCode >= http.StatusInternalServerError {
		return &TransientError{Op: op, StatusCode: resp.StatusCode, Err: errors.New(strings.TrimSpace(string(body)))}
	}

	var oe struct {
		Error       string `json:"error"`
		Description string `json:"error_description"`
	}
	_ = json.Unmarshal(body, &oe)

	return &AuthError{
		Op:          op,
		StatusCode:  resp.StatusCode,
		Code:        oe.Error,
		Description: oe.Description,
		Err:         errors.New(strings.TrimSpace(string(body))),
	}
}

// configFor returns the oauth2 config, with the redirect URL replaced when
// one is given.
func (m *TokenManager) configFor(redirectURL string) *oauth2.Config {
	if redirectURL == "" {
		return m.oauth
	}

	cfg := *m.oauth
	cfg.RedirectURL = redirectURL

	return &cfg
}

// clientCredentials builds a client credentials config. extra parameters
// may override grant_type, which is how the JWT grant rides on it.
func (m *TokenManager) clientCredentials(extra url.Values) *clientcredentials.Config {
	return &clientcredentials.Config{
		ClientID:       m.cfg.ClientID,
		ClientSecret:   m.cfg.ClientSecret,
		TokenURL:       m.cfg.TokenURL,
		Scopes:         m.cfg.Scopes,
		EndpointParams: extra,
		AuthStyle:      oauth2.AuthStyleInParams,
	}
}

// clientContext attaches the manager's HTTP client for the oauth2 library.
func (m *TokenManager) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
}
