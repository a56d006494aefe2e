// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for box-go. Values are layered
// defaults -> config file -> environment -> CLI flags.
package config

// Auth modes select which session variant the SDK builds.
const (
	AuthModeDeveloper         = "developer"
	AuthModeOAuth             = "oauth"
	AuthModeClientCredentials = "client_credentials"
	AuthModeJWT               = "jwt"
)

// Token store backends.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
)

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	ClientID       string `toml:"client_id"`
	ClientSecret   string `toml:"client_secret"`
	AuthMode       string `toml:"auth_mode"`
	DeveloperToken string `toml:"developer_token"`

	Endpoints  EndpointsConfig  `toml:"endpoints"`
	AppAuth    AppAuthConfig    `toml:"app_auth"`
	TokenStore TokenStoreConfig `toml:"token_store"`
	Retry      RetryConfig      `toml:"retry"`
	Logging    LoggingConfig    `toml:"logging"`
	Network    NetworkConfig    `toml:"network"`
}

// EndpointsConfig overrides the provider URLs. Empty values use the
// provider defaults.
type EndpointsConfig struct {
	APIURL      string `toml:"api_url"`
	UploadURL   string `toml:"upload_url"`
	AuthURL     string `toml:"auth_url"`
	TokenURL    string `toml:"token_url"`
	RevokeURL   string `toml:"revoke_url"`
	RedirectURL string `toml:"redirect_url"`
}

// AppAuthConfig holds the key pair and default subject for the JWT grant.
type AppAuthConfig struct {
	KeyID          string `toml:"key_id"`
	PrivateKeyPath string `toml:"private_key_path"`
	Algorithm      string `toml:"algorithm"`
	EnterpriseID   string `toml:"enterprise_id"`
	UserID         string `toml:"user_id"`
}

// TokenStoreConfig selects where tokens are persisted between runs.
type TokenStoreConfig struct {
	Backend          string `toml:"backend"`
	Path             string `toml:"path"`
	RedisURL         string `toml:"redis_url"`
	RedisPrefix      string `toml:"redis_prefix"`
	RefreshRetention string `toml:"refresh_retention"`
}

// RetryConfig controls the request retry policy.
type RetryConfig struct {
	MaxAttempts int     `toml:"max_attempts"`
	BaseDelay   string  `toml:"base_delay"`
	MaxDelay    string  `toml:"max_delay"`
	Factor      float64 `toml:"factor"`
	Jitter      float64 `toml:"jitter"`
}

// LoggingConfig controls log output: level and format.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// NetworkConfig controls HTTP client behavior.
type NetworkConfig struct {
	Timeout      string `toml:"timeout"`
	UserAgent    string `toml:"user_agent"`
	ExpiryBuffer string `toml:"expiry_buffer"`
}

// CLIOverrides holds values from CLI flags that override config file and
// environment settings. Empty means not specified.
type CLIOverrides struct {
	ConfigPath string // --config flag
	LogLevel   string // derived from --verbose / --quiet
}
