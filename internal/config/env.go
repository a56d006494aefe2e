package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig         = "BOX_GO_CONFIG"
	EnvClientID       = "BOX_GO_CLIENT_ID"
	EnvClientSecret   = "BOX_GO_CLIENT_SECRET"
	EnvDeveloperToken = "BOX_GO_DEVELOPER_TOKEN"
	EnvAuthMode       = "BOX_GO_AUTH_MODE"
)

// EnvOverrides holds values derived from environment variables. Empty
// fields are unset.
type EnvOverrides struct {
	ConfigPath     string
	ClientID       string
	ClientSecret   string
	DeveloperToken string
	AuthMode       string
}

// ReadEnvOverrides reads environment variables and returns any overrides
// found. It does not modify a Config; see Apply.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath:     os.Getenv(EnvConfig),
		ClientID:       os.Getenv(EnvClientID),
		ClientSecret:   os.Getenv(EnvClientSecret),
		DeveloperToken: os.Getenv(EnvDeveloperToken),
		AuthMode:       os.Getenv(EnvAuthMode),
	}
}

// Apply copies every set override onto cfg. A developer token without an
// explicit auth mode switches the mode to developer.
func (e EnvOverrides) Apply(cfg *Config) {
	if e.ClientID != "" {
		cfg.ClientID = e.ClientID
	}

	if e.ClientSecret != "" {
		cfg.ClientSecret = e.ClientSecret
	}

	if e.DeveloperToken != "" {
		cfg.DeveloperToken = e.DeveloperToken
		if e.AuthMode == "" {
			cfg.AuthMode = AuthModeDeveloper
		}
	}

	if e.AuthMode != "" {
		cfg.AuthMode = e.AuthMode
	}
}
