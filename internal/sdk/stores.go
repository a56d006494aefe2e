package sdk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tonimelisma/box-go/internal/config"
	"github.com/tonimelisma/box-go/internal/session"
	"github.com/tonimelisma/box-go/internal/tokencache"
	"github.com/tonimelisma/box-go/internal/tokendb"
	"github.com/tonimelisma/box-go/internal/tokenfile"
)

// DefaultKey is the store key of the logged-in user's token.
const DefaultKey = "oauth"

// Stores hands out keyed token stores from one configured backend.
type Stores struct {
	backend string
	path    string

	mu     sync.Mutex
	memory map[string]*session.MemoryStore

	db    *tokendb.DB
	cache *tokencache.Cache
}

// OpenStores opens the backend named by cfg. The sqlite and redis backends
// hold a connection until Close.
func OpenStores(ctx context.Context, cfg config.TokenStoreConfig, logger *slog.Logger) (*Stores, error) {
	s := &Stores{backend: cfg.Backend, path: cfg.Path}

	switch cfg.Backend {
	case config.StoreMemory:
		s.memory = make(map[string]*session.MemoryStore)
	case config.StoreFile:
		if cfg.Path == "" {
			return nil, errors.New("sdk: file token store needs a path")
		}
	case config.StoreSQLite:
		db, err := tokendb.Open(ctx, cfg.Path, logger)
		if err != nil {
			return nil, err
		}

		s.db = db
	case config.StoreRedis:
		opts := []tokencache.Option{tokencache.WithRefreshRetention(cfg.RefreshRetentionDuration())}
		if cfg.RedisPrefix != "" {
			opts = append(opts, tokencache.WithPrefix(cfg.RedisPrefix))
		}

		c, err := tokencache.Dial(ctx, cfg.RedisURL, opts...)
		if err != nil {
			return nil, err
		}

		s.cache = c
	default:
		return nil, fmt.Errorf("sdk: unknown token store backend %q", cfg.Backend)
	}

	logger.Debug("opened token stores", slog.String("backend", cfg.Backend))

	return s, nil
}

// Backend returns the backend name.
func (s *Stores) Backend() string {
	return s.backend
}

// For returns the store for key. Repeated calls with the same key see the
// same data.
func (s *Stores) For(key string) session.TokenStore {
	switch {
	case s.db != nil:
		return s.db.Store(key)
	case s.cache != nil:
		return s.cache.Store(key)
	case s.memory != nil:
		s.mu.Lock()
		defer s.mu.Unlock()

		m, ok := s.memory[key]
		if !ok {
			m = session.NewMemoryStore(nil)
			s.memory[key] = m
		}

		return m
	default:
		return tokenfile.New(s.filePath(key))
	}
}

// filePath keeps the default key at the configured path and puts other
// keys next to it.
func (s *Stores) filePath(key string) string {
	if key == DefaultKey {
		return s.path
	}

	safe := strings.NewReplacer(":", "_", "/", "_", "\\", "_").Replace(key)

	return filepath.Join(filepath.Dir(s.path), "token-"+safe+".json")
}

// Close releases the backend connection, if any.
func (s *Stores) Close() error {
	if s.db != nil {
		return s.db.Close()
	}

	if s.cache != nil {
		return s.cache.Close()
	}

	return nil
}
