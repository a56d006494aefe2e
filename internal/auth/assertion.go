package auth

import (
	"context"
	"crypto"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// assertionLifetime is how long a signed assertion is accepted. The provider
// rejects anything above 60 seconds.
const assertionLifetime = 30 * time.Second

// SubjectType selects whose token a JWT grant produces.
type SubjectType string

// Subject types accepted by the JWT grant.
const (
	SubjectEnterprise SubjectType = "enterprise"
	SubjectUser       SubjectType = "user"
)

// ParseSubjectType validates a subject type string.
func ParseSubjectType(s string) (SubjectType, error) {
	switch SubjectType(strings.ToLower(s)) {
	case SubjectEnterprise:
		return SubjectEnterprise, nil
	case SubjectUser:
		return SubjectUser, nil
	default:
		return "", fmt.Errorf("auth: unknown subject type %q (want enterprise or user)", s)
	}
}

// AppAuthKey is the key pair registered with the provider for app auth.
type AppAuthKey struct {
	KeyID     string
	Algorithm string // RS256 (default), RS384, RS512, ES256, ES384, ES512
	Key       crypto.PrivateKey
}

// ParsePrivateKey reads an unencrypted PEM private key (PKCS#1, PKCS#8 or
// SEC 1 EC).
func ParsePrivateKey(pemBytes []byte) (crypto.PrivateKey, error) {
	if rsaKey, err := jwt.ParseRSAPrivateKeyFromPEM(pemBytes); err == nil {
		return rsaKey, nil
	}

	ecKey, err := jwt.ParseECPrivateKeyFromPEM(pemBytes)
	if err != nil {
		return nil, fmt.Errorf("auth: parsing private key: %w", err)
	}

	return ecKey, nil
}

// signingMethod maps the configured algorithm to a jwt signing method.
func (k *AppAuthKey) signingMethod() (jwt.SigningMethod, error) {
	switch strings.ToUpper(k.Algorithm) {
	case "", "RS256":
		return jwt.SigningMethodRS256, nil
	case "RS384":
		return jwt.SigningMethodRS384, nil
	case "RS512":
		return jwt.SigningMethodRS512, nil
	case "ES256":
		return jwt.SigningMethodES256, nil
	case "ES384":
		return jwt.SigningMethodES384, nil
	case "ES512":
		return jwt.SigningMethodES512, nil
	default:
		return nil, fmt.Errorf("auth: unsupported assertion algorithm %q", k.Algorithm)
	}
}

// signAssertion builds and signs the grant assertion for a subject at the
// given time.
func (m *TokenManager) signAssertion(subjectType SubjectType, subjectID string, at time.Time) (string, error) {
	key := m.cfg.AppAuth

	method, err := key.signingMethod()
	if err != nil {
		return "", err
	}

	claims := jwt.MapClaims{
		"iss":          m.cfg.ClientID,
		"sub":          subjectID,
		"box_sub_type": string(subjectType),
		"aud":          m.cfg.TokenURL,
		"jti":          uuid.NewString(),
		"exp":          at.Add(assertionLifetime).Unix(),
	}

	tok := jwt.NewWithClaims(method, claims)
	if key.KeyID != "" {
		tok.Header["kid"] = key.KeyID
	}

	signed, err := tok.SignedString(key.Key)
	if err != nil {
		return "", fmt.Errorf("auth: signing assertion: %w", err)
	}

	return signed, nil
}

// AcquireByJWTGrant signs an assertion for the subject and exchanges it.
// If the provider rejects the assertion's expiry because of clock skew, the
// assertion is signed once more using the provider's clock.
func (m *TokenManager) AcquireByJWTGrant(ctx context.Context, subjectType SubjectType, subjectID string) (TokenInfo, error) {
	const op = "jwt grant"

	if m.cfg.AppAuth == nil || m.cfg.AppAuth.Key == nil {
		return TokenInfo{}, &AuthError{Op: op, Err: ErrNoAppAuthKey}
	}

	if _, err := ParseSubjectType(string(subjectType)); err != nil {
		return TokenInfo{}, &AuthError{Op: op, Err: err}
	}

	if subjectID == "" {
		return TokenInfo{}, &AuthError{Op: op, Err: errors.New("empty subject ID")}
	}

	tok, err := m.exchangeAssertion(ctx, subjectType, subjectID, m.nowFunc())
	if err != nil {
		serverTime, skewed := clockSkew(err)
		if !skewed {
			m.logger.Warn("jwt grant failed",
				slog.String("subject_type", string(subjectType)),
				slog.String("error", err.Error()),
			)

			return TokenInfo{}, classifyGrantError(op, err)
		}

		m.logger.Info("jwt assertion rejected for clock skew, re-signing with server time",
			slog.Time("server_time", serverTime),
		)

		tok, err = m.exchangeAssertion(ctx, subjectType, subjectID, serverTime)
		if err != nil {
			return TokenInfo{}, classifyGrantError(op, err)
		}
	}

	info := tokenInfoFromOAuth2(tok, m.nowFunc())
	m.logger.Info("app auth token acquired",
		slog.String("subject_type", string(subjectType)),
		slog.String("subject_id", subjectID),
		slog.Time("expiry", info.AccessTokenExpiresAt),
	)

	return info, nil
}

func (m *TokenManager) exchangeAssertion(ctx context.Context, subjectType SubjectType, subjectID string, at time.Time) (*oauth2.Token, error) {
	assertion, err := m.signAssertion(subjectType, subjectID, at)
	if err != nil {
		return nil, err
	}

	cc := m.clientCredentials(url.Values{
		"grant_type": {grantTypeJWT},
		"assertion":  {assertion},
	})

	return cc.Token(m.clientContext(ctx))
}

// clockSkew reports whether err is an invalid_grant rejection of the
// assertion's exp claim and returns the server time from the Date header.
func clockSkew(err error) (time.Time, bool) {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) || re.Response == nil {
		return time.Time{}, false
	}

	if re.ErrorCode != "invalid_grant" || !strings.Contains(re.ErrorDescription, "exp") {
		return time.Time{}, false
	}

	serverTime, parseErr := http.ParseTime(re.Response.Header.Get("Date"))
	if parseErr != nil {
		return time.Time{}, false
	}

	return serverTime, true
}
