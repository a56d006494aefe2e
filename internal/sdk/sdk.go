// Package sdk ties the token manager, sessions and request manager
// together. One SDK owns a TokenManager, a shared anonymous session and a
// per-entity cache of app auth sessions; every client it hands out shares
// them.
package sdk

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/tonimelisma/box-go/internal/auth"
	"github.com/tonimelisma/box-go/internal/box"
	"github.com/tonimelisma/box-go/internal/events"
	"github.com/tonimelisma/box-go/internal/session"
)

// StoreFunc returns the token store for a key, or nil for no persistence.
type StoreFunc func(key string) session.TokenStore

// Options configure an SDK. The zero value is usable.
type Options struct {
	HTTPClient   *http.Client
	Logger       *slog.Logger
	Sink         events.Sink
	Retry        *box.RetryPolicy // nil means box.DefaultRetryPolicy
	BaseURL      string
	UploadURL    string
	UserAgent    string
	ExpiryBuffer time.Duration

	// AppAuthStore supplies the store for each app auth entity, keyed by
	// AppAuthKey. Nil keeps app auth tokens in memory only.
	AppAuthStore StoreFunc
}

// SDK builds authenticated API clients.
type SDK struct {
	tokens *auth.TokenManager
	opts   Options

	anonOnce sync.Once
	anon     *session.Anonymous

	mu      sync.Mutex
	appAuth map[string]*session.AppAuth
}

// Client is a request manager bound to the session that authenticates it.
type Client struct {
	*box.Client

	session session.Session
}

// Session returns the session behind the client.
func (c *Client) Session() session.Session {
	return c.session
}

// AsUser returns a copy of the client that acts as userID, sharing the
// same session.
func (c *Client) AsUser(userID string) *Client {
	return &Client{Client: c.Client.AsUser(userID), session: c.session}
}

// Revoke revokes the client's token and clears its local state.
func (c *Client) Revoke(ctx context.Context) error {
	return c.session.Revoke(ctx)
}

// New builds an SDK for the OAuth2 client described by cfg.
func New(cfg auth.Config, opts Options) (*SDK, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	opts.Sink = events.OrDiscard(opts.Sink)

	tm, err := auth.NewTokenManager(cfg, opts.HTTPClient, opts.Logger)
	if err != nil {
		return nil, err
	}

	return &SDK{
		tokens:  tm,
		opts:    opts,
		appAuth: make(map[string]*session.AppAuth),
	}, nil
}

// TokenManager returns the SDK's token manager, for login flows.
func (s *SDK) TokenManager() *auth.TokenManager {
	return s.tokens
}

// BasicClient returns a client for a fixed developer token. The token is
// never refreshed.
func (s *SDK) BasicClient(accessToken string) *Client {
	return s.client(session.NewBasic(accessToken, s.tokens, s.sessionOptions()))
}

// PersistentClient returns a client for a user token that refreshes itself
// and writes rotated tokens to store. A nil info loads the token from store.
func (s *SDK) PersistentClient(ctx context.Context, info *auth.TokenInfo, store session.TokenStore) (*Client, error) {
	p, err := session.NewPersistent(ctx, info, s.tokens, store, s.sessionOptions())
	if err != nil {
		return nil, err
	}

	return s.client(p), nil
}

// AnonymousClient returns a client using the client credentials grant.
// Every anonymous client from this SDK shares one session and so one token.
func (s *SDK) AnonymousClient() *Client {
	s.anonOnce.Do(func() {
		s.anon = session.NewAnonymous(s.tokens, s.sessionOptions())
	})

	return s.client(s.anon)
}

// AppAuthClient returns a client acting as the given enterprise or user.
// Sessions are cached per entity, so repeated calls share tokens.
func (s *SDK) AppAuthClient(subjectType auth.SubjectType, subjectID string) *Client {
	key := AppAuthKey(subjectType, subjectID)

	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.appAuth[key]
	if !ok {
		var store session.TokenStore
		if s.opts.AppAuthStore != nil {
			store = s.opts.AppAuthStore(key)
		}

		a = session.NewAppAuth(s.tokens, subjectType, subjectID, store, s.sessionOptions())
		s.appAuth[key] = a

		s.opts.Logger.Debug("created app auth session",
			slog.String("subject_type", string(subjectType)),
			slog.String("subject_id", subjectID),
		)
	}

	return s.client(a)
}

// AppAuthKey is the cache and store key for an app auth entity.
func AppAuthKey(subjectType auth.SubjectType, subjectID string) string {
	return "app_auth:" + string(subjectType) + ":" + subjectID
}

func (s *SDK) sessionOptions() session.Options {
	return session.Options{
		ExpiryBuffer: s.opts.ExpiryBuffer,
		Logger:       s.opts.Logger,
		Sink:         s.opts.Sink,
	}
}

func (s *SDK) client(sess session.Session) *Client {
	opts := []box.Option{
		box.WithHTTPClient(s.opts.HTTPClient),
		box.WithLogger(s.opts.Logger),
		box.WithSink(s.opts.Sink),
	}

	if s.opts.Retry != nil {
		opts = append(opts, box.WithRetryPolicy(*s.opts.Retry))
	}

	if s.opts.BaseURL != "" {
		opts = append(opts, box.WithBaseURL(s.opts.BaseURL))
	}

	if s.opts.UploadURL != "" {
		opts = append(opts, box.WithUploadURL(s.opts.UploadURL))
	}

	if s.opts.UserAgent != "" {
		opts = append(opts, box.WithUserAgent(s.opts.UserAgent))
	}

	return &Client{Client: box.NewClient(sess, opts...), session: sess}
}
