package session

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/tonimelisma/box-go/internal/auth"
)

// refreshKey is the only singleflight key: one cache per session instance.
const refreshKey = "refresh"

// fetchFunc obtains a fresh token given the current one (nil if none). It
// may return a usable token together with an error (e.g. the token was
// granted but could not be persisted); the token is cached either way.
type fetchFunc func(ctx context.Context, cur *auth.TokenInfo) (auth.TokenInfo, error)

// tokenCache holds a session's current TokenInfo and coalesces refreshes.
type tokenCache struct {
	mu     sync.Mutex
	info   *auth.TokenInfo
	flight singleflight.Group
	buffer time.Duration
	now    func() time.Time
}

func newTokenCache(info *auth.TokenInfo, opts Options) *tokenCache {
	c := &tokenCache{buffer: opts.ExpiryBuffer, now: opts.Now}
	if info != nil {
		cp := *info
		c.info = &cp
	}

	return c
}

// current returns a copy of the cached token, or nil.
func (c *tokenCache) current() *auth.TokenInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.info == nil {
		return nil
	}

	cp := *c.info

	return &cp
}

func (c *tokenCache) set(info auth.TokenInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.info = &info
}

func (c *tokenCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.info = nil
}

// valid returns the cached access token if it is still usable.
func (c *tokenCache) valid() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.info == nil || !c.info.Valid(c.now(), bufferFor(c.info, c.buffer)) {
		return "", false
	}

	return c.info.AccessToken, true
}

// bufferFor caps the expiry buffer at half the token's lifetime, so a token
// issued for less than the buffer is still used before it is refreshed.
func bufferFor(info *auth.TokenInfo, buffer time.Duration) time.Duration {
	if ttl := info.TTL(); ttl > 0 && buffer > ttl/2 {
		return ttl / 2
	}

	return buffer
}

// invalidate drops the access token if it is the one the API rejected.
// The refresh token is kept. A token already replaced by a concurrent
// refresh is left alone so a burst of 401s causes one refresh, not many.
func (c *tokenCache) invalidate(rejected string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.info == nil || c.info.AccessToken != rejected {
		return
	}

	next := *c.info
	next.AccessToken = ""
	c.info = &next
}

// token returns a valid access token, calling fetch at most once across all
// concurrent callers. The fetch runs detached from the first caller's
// cancellation; each caller stops waiting when its own ctx ends.
func (c *tokenCache) token(ctx context.Context, fetch fetchFunc) (string, error) {
	if tok, ok := c.valid(); ok {
		return tok, nil
	}

	ch := c.flight.DoChan(refreshKey, func() (any, error) {
		// A flight that finished just before this one started may already
		// have stored a fresh token.
		if tok, ok := c.valid(); ok {
			return tok, nil
		}

		info, err := fetch(context.WithoutCancel(ctx), c.current())
		if info.AccessToken != "" {
			c.set(info)
		}

		if err != nil {
			return "", err
		}

		return info.AccessToken, nil
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}

		tok, _ := res.Val.(string)

		return tok, nil
	}
}
