// Package tokenfile is a file-backed token store. A token file holds one
// TokenInfo alongside cached account metadata (login, user ID) so the CLI
// can describe the stored login without calling the API.
package tokenfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"sync"

	"github.com/tonimelisma/box-go/internal/auth"
)

// FilePerms restricts token files to owner-only read/write.
const FilePerms = 0o600

// DirPerms is used when creating the token directory.
const DirPerms = 0o700

// File is the on-disk format.
type File struct {
	Token *auth.TokenInfo   `json:"token"`
	Meta  map[string]string `json:"meta,omitempty"`
}

// Store implements session.TokenStore over a single JSON file. Writes are
// atomic (temp file + rename). A Store is safe for concurrent use within one
// process; across processes the last writer wins.
type Store struct {
	path string
	mu   sync.Mutex
}

// New returns a store for path. The file need not exist yet.
func New(path string) *Store {
	return &Store{path: path}
}

// Path returns the token file location.
func (s *Store) Path() string {
	return s.path
}

// Read returns the stored token, or (nil, nil) if the file does not exist.
func (s *Store) Read(_ context.Context) (*auth.TokenInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := load(s.path)
	if err != nil || f == nil {
		return nil, err
	}

	return f.Token, nil
}

// Write replaces the stored token, keeping any cached metadata.
func (s *Store) Write(_ context.Context, info auth.TokenInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var meta map[string]string
	if existing, err := load(s.path); err == nil && existing != nil {
		meta = existing.Meta
	}

	return save(s.path, &File{Token: &info, Meta: meta})
}

// Clear removes the token file. A missing file is not an error.
func (s *Store) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("tokenfile: removing %s: %w", s.path, err)
	}

	return nil
}

// Meta returns the cached metadata. Returns (nil, nil) if the file does not
// exist.
func (s *Store) Meta() (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := load(s.path)
	if err != nil || f == nil {
		return nil, err
	}

	return f.Meta, nil
}

// MergeMeta adds or overwrites metadata keys. The file must already hold a
// token.
func (s *Store) MergeMeta(meta map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := load(s.path)
	if err != nil {
		return fmt.Errorf("reading token for metadata update: %w", err)
	}

	if f == nil {
		return fmt.Errorf("no token file at %s", s.path)
	}

	if f.Meta == nil {
		f.Meta = make(map[string]string, len(meta))
	}

	maps.Copy(f.Meta, meta)

	return save(s.path, f)
}

func load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil //nolint:nilnil // sentinel for "not found"
	}

	if err != nil {
		return nil, fmt.Errorf("tokenfile: reading %s: %w", path, err)
	}

	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("tokenfile: decoding %s: %w", path, err)
	}

	if f.Token == nil {
		return nil, fmt.Errorf("tokenfile: %s missing token field (re-login required)", path)
	}

	if f.Token.AccessToken == "" && f.Token.RefreshToken == "" {
		return nil, fmt.Errorf("tokenfile: %s has empty credentials (re-login required)", path)
	}

	return &f, nil
}

// save writes f with 0600 permissions via a temp file in the same directory,
// so rename(2) never crosses filesystems. Never logs token values.
func save(path string, f *File) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("tokenfile: encoding: %w", err)
	}

	dir := filepath.Dir(path)
	if mkErr := os.MkdirAll(dir, DirPerms); mkErr != nil {
		return fmt.Errorf("tokenfile: creating directory %s: %w", dir, mkErr)
	}

	tmp, err := os.CreateTemp(dir, ".token-*.tmp")
	if err != nil {
		return fmt.Errorf("tokenfile: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, FilePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: setting permissions: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: writing: %w", err)
	}

	// A power loss between close and rename must not leave a partial file.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: syncing: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("tokenfile: closing: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("tokenfile: renaming: %w", err)
	}

	success = true

	return nil
}
