package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/oauth2"
)

func TestTokenInfo_Valid(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		info   TokenInfo
		buffer time.Duration
		want   bool
	}{
		{"empty access token", TokenInfo{AccessTokenExpiresAt: now.Add(time.Hour)}, 0, false},
		{"fresh", TokenInfo{AccessToken: "a", AccessTokenExpiresAt: now.Add(time.Hour)}, DefaultExpiryBuffer, true},
		{"inside buffer", TokenInfo{AccessToken: "a", AccessTokenExpiresAt: now.Add(time.Minute)}, DefaultExpiryBuffer, false},
		{"expired", TokenInfo{AccessToken: "a", AccessTokenExpiresAt: now.Add(-time.Second)}, 0, false},
		{"no expiry", TokenInfo{AccessToken: "a"}, DefaultExpiryBuffer, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.info.Valid(now, tt.buffer))
		})
	}
}

func TestTokenInfo_TTL(t *testing.T) {
	now := time.Now()

	assert.Equal(t, time.Hour, TokenInfo{AcquiredAt: now, AccessTokenExpiresAt: now.Add(time.Hour)}.TTL())
	assert.Zero(t, TokenInfo{AccessTokenExpiresAt: now}.TTL())
}

func TestTokenInfoFromOAuth2(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	info := tokenInfoFromOAuth2(&oauth2.Token{
		AccessToken:  "a",
		RefreshToken: "r",
		TokenType:    "bearer",
		ExpiresIn:    3600,
		Expiry:       now.Add(42 * time.Hour),
	}, now)

	assert.Equal(t, now.Add(time.Hour), info.AccessTokenExpiresAt, "expires_in wins over library expiry")
	assert.Equal(t, now, info.AcquiredAt)
	assert.Equal(t, "r", info.RefreshToken)

	fallback := tokenInfoFromOAuth2(&oauth2.Token{AccessToken: "a", Expiry: now.Add(time.Minute)}, now)
	assert.Equal(t, now.Add(time.Minute), fallback.AccessTokenExpiresAt)
}
