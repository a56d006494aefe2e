package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Application directory name used across all platforms.
const appName = "box-go"

// File names inside the config and data directories.
const (
	configFileName = "config.toml"
	tokenFileName  = "token.json"
	tokenDBName    = "tokens.db"
)

// dirKind selects which XDG base directory a path lives under.
type dirKind struct {
	xdgEnv   string   // e.g. XDG_CONFIG_HOME
	fallback []string // relative to $HOME when xdgEnv is unset
}

var (
	configDirKind = dirKind{xdgEnv: "XDG_CONFIG_HOME", fallback: []string{".config"}}
	dataDirKind   = dirKind{xdgEnv: "XDG_DATA_HOME", fallback: []string{".local", "share"}}
)

// appDir resolves the box-go directory of the given kind. macOS keeps both
// config and data under ~/Library/Application Support. XDG variables are
// honored on Linux only.
func appDir(kind dirKind) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Library", "Application Support", appName)
	}

	if runtime.GOOS == "linux" {
		if xdg := os.Getenv(kind.xdgEnv); xdg != "" {
			return filepath.Join(xdg, appName)
		}
	}

	parts := append([]string{home}, kind.fallback...)

	return filepath.Join(append(parts, appName)...)
}

// DefaultConfigDir returns the platform-specific directory for config files.
func DefaultConfigDir() string {
	return appDir(configDirKind)
}

// DefaultDataDir returns the platform-specific directory for tokens and
// other state.
func DefaultDataDir() string {
	return appDir(dataDirKind)
}

// DefaultConfigPath returns the config file used when neither BOX_GO_CONFIG
// nor --config is given.
func DefaultConfigPath() string {
	dir := DefaultConfigDir()
	if dir == "" {
		return ""
	}

	return filepath.Join(dir, configFileName)
}

// DefaultTokenPath returns the default token store location for backend:
// a JSON file for "file", a database for "sqlite", empty otherwise.
func DefaultTokenPath(backend string) string {
	dir := DefaultDataDir()
	if dir == "" {
		return ""
	}

	switch backend {
	case StoreFile:
		return filepath.Join(dir, tokenFileName)
	case StoreSQLite:
		return filepath.Join(dir, tokenDBName)
	default:
		return ""
	}
}
