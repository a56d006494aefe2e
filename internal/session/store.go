package session

import (
	"context"
	"sync"

	"github.com/tonimelisma/box-go/internal/auth"
)

// TokenStore persists a TokenInfo across process restarts. It is supplied
// by the host application; sessions make no assumption about the storage
// technology. Read returns (nil, nil) when nothing is stored. Errors are
// surfaced to callers wrapped in *auth.StoreError.
type TokenStore interface {
	Read(ctx context.Context) (*auth.TokenInfo, error)
	Write(ctx context.Context, info auth.TokenInfo) error
	Clear(ctx context.Context) error
}

// MemoryStore is an in-process TokenStore.
type MemoryStore struct {
	mu   sync.Mutex
	info *auth.TokenInfo
}

// NewMemoryStore returns a store holding info, or empty when info is nil.
func NewMemoryStore(info *auth.TokenInfo) *MemoryStore {
	s := &MemoryStore{}
	if info != nil {
		cp := *info
		s.info = &cp
	}

	return s
}

// Read returns a copy of the stored token.
func (s *MemoryStore) Read(_ context.Context) (*auth.TokenInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.info == nil {
		return nil, nil //nolint:nilnil // empty store
	}

	cp := *s.info

	return &cp, nil
}

// Write replaces the stored token.
func (s *MemoryStore) Write(_ context.Context, info auth.TokenInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.info = &info

	return nil
}

// Clear empties the store.
func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.info = nil

	return nil
}
