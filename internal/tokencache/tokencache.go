// Package tokencache stores tokens in Redis so several processes acting as
// the same entity share one token. Keys expire on their own once the token
// can no longer be used.
package tokencache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tonimelisma/box-go/internal/auth"
)

// DefaultPrefix namespaces every key written by this package.
const DefaultPrefix = "box-go:token:"

// DefaultRefreshRetention is how long a token with a refresh token is kept
// past its access token expiry. Box refresh tokens live 60 days.
const DefaultRefreshRetention = 60 * 24 * time.Hour

// Cache is a handle on a Redis server.
type Cache struct {
	rdb              redis.UniversalClient
	prefix           string
	refreshRetention time.Duration
	nowFunc          func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithPrefix replaces DefaultPrefix.
func WithPrefix(p string) Option {
	return func(c *Cache) { c.prefix = p }
}

// WithRefreshRetention replaces DefaultRefreshRetention.
func WithRefreshRetention(d time.Duration) Option {
	return func(c *Cache) { c.refreshRetention = d }
}

// New wraps an existing client. The caller owns rdb.
func New(rdb redis.UniversalClient, opts ...Option) *Cache {
	c := &Cache{
		rdb:              rdb,
		prefix:           DefaultPrefix,
		refreshRetention: DefaultRefreshRetention,
		nowFunc:          time.Now,
	}

	for _, o := range opts {
		o(c)
	}

	return c
}

// Dial connects to the Redis server at a redis:// URL and pings it.
func Dial(ctx context.Context, url string, opts ...Option) (*Cache, error) {
	ropts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("tokencache: parsing %q: %w", url, err)
	}

	rdb := redis.NewClient(ropts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("tokencache: connecting to %s: %w", ropts.Addr, err)
	}

	return New(rdb, opts...), nil
}

// Close closes the underlying client.
func (c *Cache) Close() error {
	return c.rdb.Close()
}

// Store returns a session.TokenStore for key.
func (c *Cache) Store(key string) *Store {
	return &Store{cache: c, key: c.prefix + key}
}

// Store is a single Redis key.
type Store struct {
	cache *Cache
	key   string
}

// Read returns the token, or (nil, nil) when the key is absent or expired.
func (s *Store) Read(ctx context.Context) (*auth.TokenInfo, error) {
	data, err := s.cache.rdb.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil //nolint:nilnil // sentinel for "not found"
	}

	if err != nil {
		return nil, fmt.Errorf("tokencache: reading %s: %w", s.key, err)
	}

	var info auth.TokenInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("tokencache: decoding %s: %w", s.key, err)
	}

	return &info, nil
}

// Write stores the token with a TTL covering its remaining usefulness.
func (s *Store) Write(ctx context.Context, info auth.TokenInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("tokencache: encoding: %w", err)
	}

	if err := s.cache.rdb.Set(ctx, s.key, data, s.cache.ttl(info)).Err(); err != nil {
		return fmt.Errorf("tokencache: writing %s: %w", s.key, err)
	}

	return nil
}

// Clear deletes the key.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.cache.rdb.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("tokencache: clearing %s: %w", s.key, err)
	}

	return nil
}

// ttl returns 0 (no expiry) for tokens without a known expiry. A token with
// a refresh token stays until the refresh token is expected to lapse.
func (c *Cache) ttl(info auth.TokenInfo) time.Duration {
	if info.AccessTokenExpiresAt.IsZero() {
		return 0
	}

	ttl := info.AccessTokenExpiresAt.Sub(c.nowFunc())
	if info.RefreshToken != "" {
		ttl += c.refreshRetention
	}

	// Set treats 0 as "keep forever"; an already expired token must not.
	if ttl < time.Second {
		ttl = time.Second
	}

	return ttl
}
