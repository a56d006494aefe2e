// Package session holds OAuth2 credentials for API clients. Each session
// variant caches a TokenInfo, knows how to obtain a fresh one, and
// coalesces concurrent refreshes so at most one grant call is in flight per
// session instance.
//
// Variants:
//   - Basic: a fixed access token supplied by the caller. Never refreshes.
//   - Persistent: access + refresh token, optionally backed by a TokenStore.
//   - Anonymous: client credentials token shared by anonymous clients.
//   - AppAuth: JWT assertion grant for one enterprise or user.
package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/tonimelisma/box-go/internal/auth"
	"github.com/tonimelisma/box-go/internal/events"
)

// ErrNotLoggedIn is returned when a persistent session has neither a token
// nor a stored one.
var ErrNotLoggedIn = errors.New("session: not logged in")

// Session yields access tokens for API requests.
type Session interface {
	// AccessToken returns a currently valid access token, refreshing first
	// when the cached one is expired or about to expire.
	AccessToken(ctx context.Context) (string, error)

	// HandleExpired is called when the API rejected rejected with HTTP 401.
	// A nil return means the token was dropped and a retry may succeed.
	HandleExpired(ctx context.Context, rejected string, cause error) error

	// Revoke revokes the session's token at the provider and clears local
	// state. Failures are returned, never retried.
	Revoke(ctx context.Context) error
}

// Revoker revokes tokens at the provider.
type Revoker interface {
	Revoke(ctx context.Context, token string) error
}

// RefreshGrant is what a Persistent session needs from the token manager.
type RefreshGrant interface {
	Revoker
	AcquireByRefreshToken(ctx context.Context, refreshToken string) (auth.TokenInfo, error)
}

// ClientCredentialsGrant is what an Anonymous session needs.
type ClientCredentialsGrant interface {
	Revoker
	AcquireByClientCredentials(ctx context.Context) (auth.TokenInfo, error)
}

// JWTGrant is what an AppAuth session needs.
type JWTGrant interface {
	Revoker
	AcquireByJWTGrant(ctx context.Context, subjectType auth.SubjectType, subjectID string) (auth.TokenInfo, error)
}

// Options are shared by every session variant. The zero value is usable.
type Options struct {
	// ExpiryBuffer treats tokens as expired this long before their actual
	// expiry. Zero means auth.DefaultExpiryBuffer.
	ExpiryBuffer time.Duration
	Logger       *slog.Logger
	Sink         events.Sink

	// Now is the clock. Nil means time.Now.
	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.ExpiryBuffer == 0 {
		o.ExpiryBuffer = auth.DefaultExpiryBuffer
	}

	if o.Logger == nil {
		o.Logger = slog.Default()
	}

	o.Sink = events.OrDiscard(o.Sink)

	if o.Now == nil {
		o.Now = time.Now
	}

	return o
}

// emit sends a token lifecycle event for the named variant.
func (o Options) emit(kind events.Kind, variant string, err error) {
	o.Sink.Emit(events.Event{
		Kind:    kind,
		Time:    o.Now(),
		Session: variant,
		Err:     err,
	})
}
