package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/tonimelisma/box-go/internal/auth"
	"github.com/tonimelisma/box-go/internal/events"
)

const variantBasic = "basic"

// Basic wraps one externally supplied access token (e.g. a developer
// token). It never calls the token endpoint to refresh; once the API
// rejects the token every request fails with an *auth.AuthError.
type Basic struct {
	token   string
	revoker Revoker
	opts    Options
}

// NewBasic returns a session for accessToken. revoker may be nil, in which
// case Revoke fails.
func NewBasic(accessToken string, revoker Revoker, opts Options) *Basic {
	return &Basic{token: accessToken, revoker: revoker, opts: opts.withDefaults()}
}

// AccessToken returns the fixed token.
func (b *Basic) AccessToken(_ context.Context) (string, error) {
	if b.token == "" {
		return "", &auth.AuthError{Op: "basic session", Err: auth.ErrTokenExpired}
	}

	return b.token, nil
}

// HandleExpired always fails: a basic session has no way to recover.
func (b *Basic) HandleExpired(_ context.Context, _ string, cause error) error {
	b.opts.Logger.Warn("access token rejected, basic session cannot refresh",
		slog.String("session", variantBasic),
	)

	err := auth.ErrTokenExpired
	if cause != nil {
		err = fmt.Errorf("%w: %w", auth.ErrTokenExpired, cause)
	}

	return &auth.AuthError{Op: "basic session", StatusCode: http.StatusUnauthorized, Err: err}
}

// Revoke revokes the token at the provider.
func (b *Basic) Revoke(ctx context.Context) error {
	if b.revoker == nil {
		return &auth.AuthError{Op: "revoke", Err: errors.New("basic session has no token manager")}
	}

	if err := b.revoker.Revoke(ctx, b.token); err != nil {
		return err
	}

	b.opts.emit(events.KindTokenRevoked, variantBasic, nil)

	return nil
}
