package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReadEnvOverrides_AllSet(t *testing.T) {
	t.Setenv(EnvConfig, "/custom/config.toml")
	t.Setenv(EnvClientID, "cid")
	t.Setenv(EnvClientSecret, "secret")
	t.Setenv(EnvDeveloperToken, "dev")
	t.Setenv(EnvAuthMode, "jwt")

	o := ReadEnvOverrides()
	assert.Equal(t, EnvOverrides{
		ConfigPath:     "/custom/config.toml",
		ClientID:       "cid",
		ClientSecret:   "secret",
		DeveloperToken: "dev",
		AuthMode:       "jwt",
	}, o)
}

func TestReadEnvOverrides_NoneSet(t *testing.T) {
	clearEnv(t)

	assert.Equal(t, EnvOverrides{}, ReadEnvOverrides())
}

func TestApply_ExplicitModeBeatsDeveloperToken(t *testing.T) {
	cfg := DefaultConfig()

	EnvOverrides{DeveloperToken: "dev", AuthMode: AuthModeOAuth}.Apply(cfg)

	assert.Equal(t, AuthModeOAuth, cfg.AuthMode)
	assert.Equal(t, "dev", cfg.DeveloperToken)
}

func TestApply_EmptyLeavesConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ClientID = "file"

	EnvOverrides{}.Apply(cfg)

	assert.Equal(t, "file", cfg.ClientID)
	assert.Equal(t, defaultAuthMode, cfg.AuthMode)
}

func TestEnvVarConstants(t *testing.T) {
	assert.Equal(t, "BOX_GO_CONFIG", EnvConfig)
	assert.Equal(t, "BOX_GO_DEVELOPER_TOKEN", EnvDeveloperToken)
}
