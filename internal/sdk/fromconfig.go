package sdk

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/tonimelisma/box-go/internal/auth"
	"github.com/tonimelisma/box-go/internal/box"
	"github.com/tonimelisma/box-go/internal/config"
	"github.com/tonimelisma/box-go/internal/session"
)

// Configured is an SDK built from a resolved config file, together with
// the token stores it opened.
type Configured struct {
	*SDK

	cfg    *config.Config
	stores *Stores
}

// FromConfig builds an SDK and opens its token stores. Fields already set
// in opts take precedence over cfg. Call Close when done.
func FromConfig(ctx context.Context, cfg *config.Config, opts Options) (*Configured, error) {
	acfg := auth.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		AuthURL:      cfg.Endpoints.AuthURL,
		TokenURL:     cfg.Endpoints.TokenURL,
		RevokeURL:    cfg.Endpoints.RevokeURL,
		RedirectURL:  cfg.Endpoints.RedirectURL,
	}

	if cfg.AuthMode == config.AuthModeJWT {
		key, err := loadAppAuthKey(&cfg.AppAuth)
		if err != nil {
			return nil, err
		}

		acfg.AppAuth = key
	}

	// The developer token mode never calls the token endpoint, so any
	// client ID will do.
	if cfg.AuthMode == config.AuthModeDeveloper && acfg.ClientID == "" {
		acfg.ClientID = "developer"
	}

	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: cfg.Network.TimeoutDuration()}
	}

	if opts.Retry == nil {
		opts.Retry = &box.RetryPolicy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			Base:        cfg.Retry.BaseDelayDuration(),
			Max:         cfg.Retry.MaxDelayDuration(),
			Factor:      cfg.Retry.Factor,
			Jitter:      cfg.Retry.Jitter,
		}
	}

	if opts.BaseURL == "" {
		opts.BaseURL = cfg.Endpoints.APIURL
	}

	if opts.UploadURL == "" {
		opts.UploadURL = cfg.Endpoints.UploadURL
	}

	if opts.UserAgent == "" {
		opts.UserAgent = cfg.Network.UserAgent
	}

	if opts.ExpiryBuffer == 0 {
		opts.ExpiryBuffer = cfg.Network.ExpiryBufferDuration()
	}

	s, err := New(acfg, opts)
	if err != nil {
		return nil, err
	}

	stores, err := OpenStores(ctx, cfg.TokenStore, s.opts.Logger)
	if err != nil {
		return nil, err
	}

	if s.opts.AppAuthStore == nil {
		s.opts.AppAuthStore = stores.For
	}

	return &Configured{SDK: s, cfg: cfg, stores: stores}, nil
}

// Config returns the config the SDK was built from.
func (c *Configured) Config() *config.Config {
	return c.cfg
}

// Store returns the token store of the logged-in user.
func (c *Configured) Store() session.TokenStore {
	return c.stores.For(DefaultKey)
}

// Stores returns the opened token stores.
func (c *Configured) Stores() *Stores {
	return c.stores
}

// DefaultClient returns a client for the configured auth mode. In oauth
// mode the token is loaded from the store and session.ErrNotLoggedIn is
// returned when there is none.
func (c *Configured) DefaultClient(ctx context.Context) (*Client, error) {
	switch c.cfg.AuthMode {
	case config.AuthModeDeveloper:
		return c.BasicClient(c.cfg.DeveloperToken), nil
	case config.AuthModeOAuth:
		return c.PersistentClient(ctx, nil, c.Store())
	case config.AuthModeClientCredentials:
		return c.AnonymousClient(), nil
	case config.AuthModeJWT:
		if c.cfg.AppAuth.EnterpriseID != "" {
			return c.AppAuthClient(auth.SubjectEnterprise, c.cfg.AppAuth.EnterpriseID), nil
		}

		return c.AppAuthClient(auth.SubjectUser, c.cfg.AppAuth.UserID), nil
	default:
		return nil, fmt.Errorf("sdk: unknown auth mode %q", c.cfg.AuthMode)
	}
}

// Close releases the token stores.
func (c *Configured) Close() error {
	return c.stores.Close()
}

func loadAppAuthKey(a *config.AppAuthConfig) (*auth.AppAuthKey, error) {
	if a.PrivateKeyPath == "" {
		return nil, errors.New("sdk: app_auth.private_key_path is not set")
	}

	pemBytes, err := os.ReadFile(a.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("sdk: reading private key: %w", err)
	}

	key, err := auth.ParsePrivateKey(pemBytes)
	if err != nil {
		return nil, err
	}

	return &auth.AppAuthKey{KeyID: a.KeyID, Algorithm: a.Algorithm, Key: key}, nil
}
