package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"time"
)

// Validation range constants.
const (
	minMaxAttempts   = 1
	maxMaxAttempts   = 20
	minFactor        = 1.0
	maxFactor        = 10.0
	maxJitter        = 1.0
	minTimeout       = 1 * time.Second
	maxExpiryBuffer  = 30 * time.Minute
	minBaseDelay     = 10 * time.Millisecond
	minRetentionDays = 24 * time.Hour
)

var (
	validAuthModes  = []string{AuthModeDeveloper, AuthModeOAuth, AuthModeClientCredentials, AuthModeJWT}
	validBackends   = []string{StoreMemory, StoreFile, StoreSQLite, StoreRedis}
	validAlgorithms = []string{"RS256", "RS384", "RS512", "ES256", "ES384", "ES512"}
	validLogLevels  = []string{"debug", "info", "warn", "error"}
	validLogFormats = []string{"auto", "text", "json"}
)

// Validate checks every configuration value and returns all errors found,
// so a single run reports everything that needs fixing.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateOneOf("auth_mode", cfg.AuthMode, validAuthModes)...)
	errs = append(errs, validateEndpoints(&cfg.Endpoints)...)
	errs = append(errs, validateAppAuth(&cfg.AppAuth)...)
	errs = append(errs, validateTokenStore(&cfg.TokenStore)...)
	errs = append(errs, validateRetry(&cfg.Retry)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)
	errs = append(errs, validateNetwork(&cfg.Network)...)

	return errors.Join(errs...)
}

// ValidateResolved checks cross-field constraints that only hold once the
// environment and CLI layers have been applied, such as credentials the
// selected auth mode needs.
func ValidateResolved(cfg *Config) error {
	var errs []error

	switch cfg.AuthMode {
	case AuthModeDeveloper:
		if cfg.DeveloperToken == "" {
			errs = append(errs, fmt.Errorf("developer_token: required for auth_mode %q (or set %s)",
				AuthModeDeveloper, EnvDeveloperToken))
		}
	case AuthModeOAuth:
		errs = append(errs, requireClient(cfg, false)...)
	case AuthModeClientCredentials:
		errs = append(errs, requireClient(cfg, true)...)
	case AuthModeJWT:
		errs = append(errs, requireClient(cfg, true)...)

		if cfg.AppAuth.KeyID == "" {
			errs = append(errs, errors.New("app_auth.key_id: required for auth_mode \"jwt\""))
		}

		if cfg.AppAuth.PrivateKeyPath == "" {
			errs = append(errs, errors.New("app_auth.private_key_path: required for auth_mode \"jwt\""))
		}

		if cfg.AppAuth.EnterpriseID == "" && cfg.AppAuth.UserID == "" {
			errs = append(errs, errors.New("app_auth: one of enterprise_id or user_id is required"))
		}
	}

	switch cfg.TokenStore.Backend {
	case StoreFile, StoreSQLite:
		if cfg.TokenStore.Path == "" {
			errs = append(errs, fmt.Errorf("token_store.path: required for backend %q", cfg.TokenStore.Backend))
		}
	case StoreRedis:
		if cfg.TokenStore.RedisURL == "" {
			errs = append(errs, errors.New("token_store.redis_url: required for backend \"redis\""))
		}
	}

	return errors.Join(errs...)
}

func requireClient(cfg *Config, needSecret bool) []error {
	var errs []error

	if cfg.ClientID == "" {
		errs = append(errs, fmt.Errorf("client_id: required for auth_mode %q (or set %s)", cfg.AuthMode, EnvClientID))
	}

	if needSecret && cfg.ClientSecret == "" {
		errs = append(errs, fmt.Errorf("client_secret: required for auth_mode %q (or set %s)",
			cfg.AuthMode, EnvClientSecret))
	}

	return errs
}

func validateEndpoints(e *EndpointsConfig) []error {
	var errs []error

	fields := []struct {
		name  string
		value string
	}{
		{"endpoints.api_url", e.APIURL},
		{"endpoints.upload_url", e.UploadURL},
		{"endpoints.auth_url", e.AuthURL},
		{"endpoints.token_url", e.TokenURL},
		{"endpoints.revoke_url", e.RevokeURL},
		{"endpoints.redirect_url", e.RedirectURL},
	}

	for _, f := range fields {
		if f.value == "" {
			continue
		}

		u, err := url.Parse(f.value)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("%s: must be an absolute URL, got %q", f.name, f.value))
		}
	}

	return errs
}

func validateAppAuth(a *AppAuthConfig) []error {
	return validateOneOf("app_auth.algorithm", a.Algorithm, validAlgorithms)
}

func validateTokenStore(s *TokenStoreConfig) []error {
	var errs []error

	errs = append(errs, validateOneOf("token_store.backend", s.Backend, validBackends)...)
	errs = append(errs, validateDurationMin("token_store.refresh_retention", s.RefreshRetention, minRetentionDays)...)

	return errs
}

func validateRetry(r *RetryConfig) []error {
	var errs []error

	if r.MaxAttempts < minMaxAttempts || r.MaxAttempts > maxMaxAttempts {
		errs = append(errs, fmt.Errorf("retry.max_attempts: must be between %d and %d, got %d",
			minMaxAttempts, maxMaxAttempts, r.MaxAttempts))
	}

	if r.Factor < minFactor || r.Factor > maxFactor {
		errs = append(errs, fmt.Errorf("retry.factor: must be between %g and %g, got %g",
			minFactor, maxFactor, r.Factor))
	}

	if r.Jitter < 0 || r.Jitter >= maxJitter {
		errs = append(errs, fmt.Errorf("retry.jitter: must be in [0, %g), got %g", maxJitter, r.Jitter))
	}

	errs = append(errs, validateDurationMin("retry.base_delay", r.BaseDelay, minBaseDelay)...)
	errs = append(errs, validateDurationMin("retry.max_delay", r.MaxDelay, minBaseDelay)...)

	if len(errs) == 0 && mustDuration(r.MaxDelay) < mustDuration(r.BaseDelay) {
		errs = append(errs, fmt.Errorf("retry.max_delay: must be >= base_delay (%s), got %s", r.BaseDelay, r.MaxDelay))
	}

	return errs
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	errs = append(errs, validateOneOf("logging.log_level", l.LogLevel, validLogLevels)...)
	errs = append(errs, validateOneOf("logging.log_format", l.LogFormat, validLogFormats)...)

	return errs
}

func validateNetwork(n *NetworkConfig) []error {
	var errs []error

	errs = append(errs, validateDurationMin("network.timeout", n.Timeout, minTimeout)...)

	d, err := time.ParseDuration(n.ExpiryBuffer)

	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("network.expiry_buffer: invalid duration %q: %w", n.ExpiryBuffer, err))
	case d < 0 || d > maxExpiryBuffer:
		errs = append(errs, fmt.Errorf("network.expiry_buffer: must be between 0 and %s, got %s", maxExpiryBuffer, d))
	}

	return errs
}

func validateOneOf(field, value string, allowed []string) []error {
	if !slices.Contains(allowed, value) {
		return []error{fmt.Errorf("%s: must be one of %v; got %q", field, allowed, value)}
	}

	return nil
}

func validateDurationMin(field, value string, minimum time.Duration) []error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return []error{fmt.Errorf("%s: invalid duration %q: %w", field, value, err)}
	}

	if d < minimum {
		return []error{fmt.Errorf("%s: must be >= %s, got %s", field, minimum, d)}
	}

	return nil
}

// mustDuration parses a duration that has already passed validation.
func mustDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}

	return d
}

// BaseDelayDuration returns the parsed retry base delay.
func (r RetryConfig) BaseDelayDuration() time.Duration { return mustDuration(r.BaseDelay) }

// MaxDelayDuration returns the parsed retry delay cap.
func (r RetryConfig) MaxDelayDuration() time.Duration { return mustDuration(r.MaxDelay) }

// TimeoutDuration returns the parsed HTTP client timeout.
func (n NetworkConfig) TimeoutDuration() time.Duration { return mustDuration(n.Timeout) }

// ExpiryBufferDuration returns the parsed token expiry buffer.
func (n NetworkConfig) ExpiryBufferDuration() time.Duration { return mustDuration(n.ExpiryBuffer) }

// RefreshRetentionDuration returns the parsed refresh token retention.
func (s TokenStoreConfig) RefreshRetentionDuration() time.Duration {
	return mustDuration(s.RefreshRetention)
}
