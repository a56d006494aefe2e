// Package auth performs OAuth2 grant, refresh and revoke calls against the
// provider's token endpoint and defines the TokenInfo value every session
// and token store passes around. It has no knowledge of sessions or storage.
package auth

import (
	"time"

	"golang.org/x/oauth2"
)

// DefaultExpiryBuffer is how long before the real expiry a token is already
// treated as expired, so a request never leaves with a token that dies in
// flight.
const DefaultExpiryBuffer = 3 * time.Minute

// TokenInfo is an access/refresh token pair plus expiry metadata.
// Values are never mutated after a grant; a refresh produces a new one.
type TokenInfo struct {
	AccessToken          string    `json:"access_token"`
	RefreshToken         string    `json:"refresh_token,omitempty"`
	TokenType            string    `json:"token_type,omitempty"`
	AccessTokenExpiresAt time.Time `json:"access_token_expires_at"`
	AcquiredAt           time.Time `json:"acquired_at"`
}

// Valid reports whether the access token can still be used at now, treating
// it as expired buffer early. A zero expiry means the provider gave none and
// the token is used until rejected.
func (t TokenInfo) Valid(now time.Time, buffer time.Duration) bool {
	if t.AccessToken == "" {
		return false
	}

	if t.AccessTokenExpiresAt.IsZero() {
		return true
	}

	return now.Add(buffer).Before(t.AccessTokenExpiresAt)
}

// TTL returns the access token lifetime as granted.
func (t TokenInfo) TTL() time.Duration {
	if t.AccessTokenExpiresAt.IsZero() || t.AcquiredAt.IsZero() {
		return 0
	}

	return t.AccessTokenExpiresAt.Sub(t.AcquiredAt)
}

// tokenInfoFromOAuth2 converts an oauth2 library token. expires_in is
// preferred over the library's Expiry so the injected clock decides the
// expiry instead of the wall clock.
func tokenInfoFromOAuth2(tok *oauth2.Token, now time.Time) TokenInfo {
	info := TokenInfo{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		AcquiredAt:   now,
	}

	switch {
	case tok.ExpiresIn > 0:
		info.AccessTokenExpiresAt = now.Add(time.Duration(tok.ExpiresIn) * time.Second)
	case !tok.Expiry.IsZero():
		info.AccessTokenExpiresAt = tok.Expiry
	}

	return info
}
