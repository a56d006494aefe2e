package config

// Default values for configuration options. These are the first layer of
// the override chain and work without any config file.
const (
	defaultAuthMode         = AuthModeOAuth
	defaultRedirectURL      = "http://127.0.0.1:53682/callback"
	defaultAlgorithm        = "RS256"
	defaultStoreBackend     = StoreFile
	defaultRedisPrefix      = "box-go:token:"
	defaultRefreshRetention = "1440h"
	defaultMaxAttempts      = 5
	defaultBaseDelay        = "1s"
	defaultMaxDelay         = "60s"
	defaultFactor           = 2.0
	defaultJitter           = 0.25
	defaultLogLevel         = "info"
	defaultLogFormat        = "auto"
	defaultTimeout          = "60s"
	defaultExpiryBuffer     = "3m"
)

// DefaultConfig returns a Config populated with all default values. It is
// the starting point for TOML decoding, so unset fields keep their defaults.
func DefaultConfig() *Config {
	return &Config{
		AuthMode: defaultAuthMode,
		Endpoints: EndpointsConfig{
			RedirectURL: defaultRedirectURL,
		},
		AppAuth: AppAuthConfig{
			Algorithm: defaultAlgorithm,
		},
		TokenStore: TokenStoreConfig{
			Backend:          defaultStoreBackend,
			RedisPrefix:      defaultRedisPrefix,
			RefreshRetention: defaultRefreshRetention,
		},
		Retry: RetryConfig{
			MaxAttempts: defaultMaxAttempts,
			BaseDelay:   defaultBaseDelay,
			MaxDelay:    defaultMaxDelay,
			Factor:      defaultFactor,
			Jitter:      defaultJitter,
		},
		Logging: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
		Network: NetworkConfig{
			Timeout:      defaultTimeout,
			ExpiryBuffer: defaultExpiryBuffer,
		},
	}
}
