package config

import (
	"fmt"
	"io"
	"net/url"
)

// redacted replaces secret values in rendered output.
const redacted = "<redacted>"

// RenderEffective writes the resolved configuration as TOML-like text to w.
// Secrets are never written; set secrets show as <redacted>.
func RenderEffective(cfg *Config, path string, w io.Writer) error {
	ew := &errWriter{w: w}

	ew.printf("# Effective configuration (file: %s)\n\n", path)

	ew.printf("client_id       = %q\n", cfg.ClientID)
	ew.printf("client_secret   = %q\n", secret(cfg.ClientSecret))
	ew.printf("auth_mode       = %q\n", cfg.AuthMode)
	ew.printf("developer_token = %q\n\n", secret(cfg.DeveloperToken))

	ew.printf("[endpoints]\n")
	ew.printf("  api_url      = %q\n", cfg.Endpoints.APIURL)
	ew.printf("  upload_url   = %q\n", cfg.Endpoints.UploadURL)
	ew.printf("  auth_url     = %q\n", cfg.Endpoints.AuthURL)
	ew.printf("  token_url    = %q\n", cfg.Endpoints.TokenURL)
	ew.printf("  revoke_url   = %q\n", cfg.Endpoints.RevokeURL)
	ew.printf("  redirect_url = %q\n\n", cfg.Endpoints.RedirectURL)

	if cfg.AuthMode == AuthModeJWT {
		ew.printf("[app_auth]\n")
		ew.printf("  key_id           = %q\n", cfg.AppAuth.KeyID)
		ew.printf("  private_key_path = %q\n", cfg.AppAuth.PrivateKeyPath)
		ew.printf("  algorithm        = %q\n", cfg.AppAuth.Algorithm)
		ew.printf("  enterprise_id    = %q\n", cfg.AppAuth.EnterpriseID)
		ew.printf("  user_id          = %q\n\n", cfg.AppAuth.UserID)
	}

	ew.printf("[token_store]\n")
	ew.printf("  backend           = %q\n", cfg.TokenStore.Backend)

	switch cfg.TokenStore.Backend {
	case StoreFile, StoreSQLite:
		ew.printf("  path              = %q\n", cfg.TokenStore.Path)
	case StoreRedis:
		ew.printf("  redis_url         = %q\n", secretURL(cfg.TokenStore.RedisURL))
		ew.printf("  redis_prefix      = %q\n", cfg.TokenStore.RedisPrefix)
		ew.printf("  refresh_retention = %q\n", cfg.TokenStore.RefreshRetention)
	}

	ew.printf("\n[retry]\n")
	ew.printf("  max_attempts = %d\n", cfg.Retry.MaxAttempts)
	ew.printf("  base_delay   = %q\n", cfg.Retry.BaseDelay)
	ew.printf("  max_delay    = %q\n", cfg.Retry.MaxDelay)
	ew.printf("  factor       = %g\n", cfg.Retry.Factor)
	ew.printf("  jitter       = %g\n\n", cfg.Retry.Jitter)

	ew.printf("[logging]\n")
	ew.printf("  log_level  = %q\n", cfg.Logging.LogLevel)
	ew.printf("  log_format = %q\n\n", cfg.Logging.LogFormat)

	ew.printf("[network]\n")
	ew.printf("  timeout       = %q\n", cfg.Network.Timeout)
	ew.printf("  expiry_buffer = %q\n", cfg.Network.ExpiryBuffer)

	if cfg.Network.UserAgent != "" {
		ew.printf("  user_agent    = %q\n", cfg.Network.UserAgent)
	}

	return ew.err
}

// Redacted returns a copy of cfg with secrets replaced, for JSON output.
func Redacted(cfg *Config) *Config {
	out := *cfg
	out.ClientSecret = secret(cfg.ClientSecret)
	out.DeveloperToken = secret(cfg.DeveloperToken)
	out.TokenStore.RedisURL = secretURL(cfg.TokenStore.RedisURL)

	return &out
}

func secret(s string) string {
	if s == "" {
		return ""
	}

	return redacted
}

// secretURL drops the password from a URL, leaving the rest readable.
func secretURL(s string) string {
	if s == "" {
		return ""
	}

	u, err := url.Parse(s)
	if err != nil {
		return redacted
	}

	return u.Redacted()
}

// errWriter wraps an io.Writer and captures the first write error.
// Subsequent writes after an error are no-ops.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}
