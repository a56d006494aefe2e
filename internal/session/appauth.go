package session

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/tonimelisma/box-go/internal/auth"
	"github.com/tonimelisma/box-go/internal/events"
)

const variantAppAuth = "app_auth"

// AppAuth obtains tokens through the JWT assertion grant for one enterprise
// or user. A TokenStore, when given, caches the entity's token across
// processes and is consulted before the first grant.
type AppAuth struct {
	grants      JWTGrant
	subjectType auth.SubjectType
	subjectID   string
	store       TokenStore // may be nil
	storeRead   atomic.Bool
	cache       *tokenCache
	opts        Options
}

// NewAppAuth creates a session for the given subject.
func NewAppAuth(grants JWTGrant, subjectType auth.SubjectType, subjectID string, store TokenStore, opts Options) *AppAuth {
	opts = opts.withDefaults()

	return &AppAuth{
		grants:      grants,
		subjectType: subjectType,
		subjectID:   subjectID,
		store:       store,
		cache:       newTokenCache(nil, opts),
		opts:        opts,
	}
}

// Subject returns the entity this session acts as.
func (a *AppAuth) Subject() (auth.SubjectType, string) {
	return a.subjectType, a.subjectID
}

// AccessToken returns a valid token for the subject.
func (a *AppAuth) AccessToken(ctx context.Context) (string, error) {
	return a.cache.token(ctx, a.acquire)
}

// HandleExpired drops the rejected token; the next call signs a new grant.
func (a *AppAuth) HandleExpired(_ context.Context, rejected string, _ error) error {
	a.cache.invalidate(rejected)
	return nil
}

// Revoke revokes the current token and clears the cache and store.
func (a *AppAuth) Revoke(ctx context.Context) error {
	cur := a.cache.current()
	if cur != nil && cur.AccessToken != "" {
		if err := a.grants.Revoke(ctx, cur.AccessToken); err != nil {
			return err
		}

		a.opts.emit(events.KindTokenRevoked, variantAppAuth, nil)
	}

	a.cache.clear()

	if a.store != nil {
		return auth.WrapStoreError("clear", a.store.Clear(ctx))
	}

	return nil
}

func (a *AppAuth) acquire(ctx context.Context, _ *auth.TokenInfo) (auth.TokenInfo, error) {
	if a.store != nil && a.storeRead.CompareAndSwap(false, true) {
		stored, err := a.store.Read(ctx)
		if err != nil {
			return auth.TokenInfo{}, auth.WrapStoreError("read", err)
		}

		if stored != nil && stored.Valid(a.opts.Now(), a.opts.ExpiryBuffer) {
			a.opts.Logger.Debug("using cached app auth token",
				slog.String("subject_type", string(a.subjectType)),
				slog.String("subject_id", a.subjectID),
			)

			return *stored, nil
		}
	}

	info, err := a.grants.AcquireByJWTGrant(ctx, a.subjectType, a.subjectID)
	if err != nil {
		a.opts.Logger.Warn("app auth token acquisition failed",
			slog.String("subject_type", string(a.subjectType)),
			slog.String("subject_id", a.subjectID),
			slog.String("error", err.Error()),
		)
		a.opts.emit(events.KindTokenRefreshFailed, variantAppAuth, err)

		return auth.TokenInfo{}, err
	}

	a.opts.emit(events.KindTokenRefreshed, variantAppAuth, nil)

	if a.store != nil {
		if err := a.store.Write(ctx, info); err != nil {
			return info, auth.WrapStoreError("write", err)
		}
	}

	return info, nil
}
