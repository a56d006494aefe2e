package session

import (
	"context"
	"log/slog"

	"github.com/tonimelisma/box-go/internal/auth"
	"github.com/tonimelisma/box-go/internal/events"
)

const variantAnonymous = "anonymous"

// Anonymous uses a client credentials token not tied to any user. One
// instance is meant to be shared by every anonymous client so they reuse
// and refresh a single cached token.
type Anonymous struct {
	grants ClientCredentialsGrant
	cache  *tokenCache
	opts   Options
}

// NewAnonymous creates an anonymous session. No token is requested until
// the first AccessToken call.
func NewAnonymous(grants ClientCredentialsGrant, opts Options) *Anonymous {
	opts = opts.withDefaults()

	return &Anonymous{grants: grants, cache: newTokenCache(nil, opts), opts: opts}
}

// AccessToken returns the shared token, acquiring a new one when expired.
func (a *Anonymous) AccessToken(ctx context.Context) (string, error) {
	return a.cache.token(ctx, a.acquire)
}

// HandleExpired drops the rejected token; the next call re-acquires.
func (a *Anonymous) HandleExpired(_ context.Context, rejected string, _ error) error {
	a.cache.invalidate(rejected)
	return nil
}

// Revoke revokes the current token if there is one.
func (a *Anonymous) Revoke(ctx context.Context) error {
	cur := a.cache.current()
	if cur == nil || cur.AccessToken == "" {
		a.cache.clear()
		return nil
	}

	if err := a.grants.Revoke(ctx, cur.AccessToken); err != nil {
		return err
	}

	a.cache.clear()
	a.opts.emit(events.KindTokenRevoked, variantAnonymous, nil)

	return nil
}

func (a *Anonymous) acquire(ctx context.Context, _ *auth.TokenInfo) (auth.TokenInfo, error) {
	info, err := a.grants.AcquireByClientCredentials(ctx)
	if err != nil {
		a.opts.Logger.Warn("anonymous token acquisition failed",
			slog.String("session", variantAnonymous),
			slog.String("error", err.Error()),
		)
		a.opts.emit(events.KindTokenRefreshFailed, variantAnonymous, err)

		return auth.TokenInfo{}, err
	}

	a.opts.emit(events.KindTokenRefreshed, variantAnonymous, nil)

	return info, nil
}
