package session

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/tonimelisma/box-go/internal/auth"
	"github.com/tonimelisma/box-go/internal/events"
)

const variantPersistent = "persistent"

// Persistent holds an access/refresh token pair and refreshes it on expiry.
// With a TokenStore, every new token is written through so the session
// survives restarts, and a refresh rejected because another process already
// rotated the refresh token recovers by adopting the stored token.
type Persistent struct {
	grants RefreshGrant
	store  TokenStore // may be nil
	cache  *tokenCache
	opts   Options
}

// NewPersistent creates a persistent session. When info is nil the token is
// loaded from store; ErrNotLoggedIn is returned if store is nil or empty.
func NewPersistent(ctx context.Context, info *auth.TokenInfo, grants RefreshGrant, store TokenStore, opts Options) (*Persistent, error) {
	opts = opts.withDefaults()

	if info == nil {
		if store == nil {
			return nil, ErrNotLoggedIn
		}

		stored, err := store.Read(ctx)
		if err != nil {
			return nil, auth.WrapStoreError("read", err)
		}

		if stored == nil {
			return nil, ErrNotLoggedIn
		}

		info = stored

		opts.Logger.Info("loaded stored token",
			slog.String("session", variantPersistent),
			slog.Time("expiry", info.AccessTokenExpiresAt),
			slog.Bool("valid", info.Valid(opts.Now(), opts.ExpiryBuffer)),
		)
	}

	return &Persistent{
		grants: grants,
		store:  store,
		cache:  newTokenCache(info, opts),
		opts:   opts,
	}, nil
}

// AccessToken returns a valid access token, refreshing at most once across
// concurrent callers.
func (p *Persistent) AccessToken(ctx context.Context) (string, error) {
	return p.cache.token(ctx, p.refresh)
}

// TokenInfo returns a copy of the current token, or nil after Revoke.
func (p *Persistent) TokenInfo() *auth.TokenInfo {
	return p.cache.current()
}

// HandleExpired drops the rejected access token so the next AccessToken
// refreshes. Without a refresh token there is nothing to recover with.
func (p *Persistent) HandleExpired(_ context.Context, rejected string, cause error) error {
	cur := p.cache.current()
	if cur == nil || cur.RefreshToken == "" {
		return &auth.AuthError{Op: "persistent session", StatusCode: http.StatusUnauthorized, Err: errors.Join(auth.ErrNoRefreshToken, cause)}
	}

	p.opts.Logger.Info("access token rejected, will refresh", slog.String("session", variantPersistent))
	p.cache.invalidate(rejected)

	return nil
}

// Revoke revokes the token pair, then clears the cache and the store.
func (p *Persistent) Revoke(ctx context.Context) error {
	cur := p.cache.current()
	if cur == nil {
		return &auth.AuthError{Op: "revoke", Err: ErrNotLoggedIn}
	}

	tok := cur.AccessToken
	if tok == "" {
		tok = cur.RefreshToken
	}

	if err := p.grants.Revoke(ctx, tok); err != nil {
		return err
	}

	p.cache.clear()
	p.opts.emit(events.KindTokenRevoked, variantPersistent, nil)

	if p.store != nil {
		return auth.WrapStoreError("clear", p.store.Clear(ctx))
	}

	return nil
}

// refresh is the fetchFunc run inside the single flight.
func (p *Persistent) refresh(ctx context.Context, cur *auth.TokenInfo) (auth.TokenInfo, error) {
	if cur == nil || cur.RefreshToken == "" {
		err := &auth.AuthError{Op: "persistent session refresh", Err: auth.ErrNoRefreshToken}
		p.opts.emit(events.KindTokenRefreshFailed, variantPersistent, err)

		return auth.TokenInfo{}, err
	}

	info, err := p.grants.AcquireByRefreshToken(ctx, cur.RefreshToken)
	if err != nil {
		if errors.Is(err, auth.ErrAuth) && p.store != nil {
			adopted, ok, adoptErr := p.adoptStored(ctx, cur)
			if ok {
				return adopted, adoptErr
			}

			if adoptErr != nil {
				err = errors.Join(err, adoptErr)
			}
		}

		p.opts.Logger.Warn("token refresh failed",
			slog.String("session", variantPersistent),
			slog.String("error", err.Error()),
		)
		p.opts.emit(events.KindTokenRefreshFailed, variantPersistent, err)

		return auth.TokenInfo{}, err
	}

	p.opts.emit(events.KindTokenRefreshed, variantPersistent, nil)

	return info, p.persist(ctx, info)
}

// adoptStored recovers from a rejected refresh when another process sharing
// the store already rotated the refresh token.
func (p *Persistent) adoptStored(ctx context.Context, cur *auth.TokenInfo) (auth.TokenInfo, bool, error) {
	stored, err := p.store.Read(ctx)
	if err != nil {
		return auth.TokenInfo{}, false, auth.WrapStoreError("read", err)
	}

	if stored == nil || stored.RefreshToken == "" || stored.RefreshToken == cur.RefreshToken {
		return auth.TokenInfo{}, false, nil
	}

	p.opts.Logger.Info("refresh token rotated by another holder, adopting stored token",
		slog.String("session", variantPersistent),
	)

	if stored.Valid(p.opts.Now(), p.opts.ExpiryBuffer) {
		return *stored, true, nil
	}

	info, err := p.grants.AcquireByRefreshToken(ctx, stored.RefreshToken)
	if err != nil {
		return auth.TokenInfo{}, false, err
	}

	p.opts.emit(events.KindTokenRefreshed, variantPersistent, nil)

	return info, true, p.persist(ctx, info)
}

func (p *Persistent) persist(ctx context.Context, info auth.TokenInfo) error {
	if p.store == nil {
		return nil
	}

	if err := p.store.Write(ctx, info); err != nil {
		p.opts.Logger.Warn("failed to persist refreshed token",
			slog.String("session", variantPersistent),
			slog.String("error", err.Error()),
		)

		return auth.WrapStoreError("write", err)
	}

	return nil
}
