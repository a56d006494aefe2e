package tokendb

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/box-go/internal/auth"
)

func openTest(t *testing.T) *DB {
	t.Helper()

	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "tokens.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return db
}

func TestStore_ReadEmpty(t *testing.T) {
	info, err := openTest(t).Store("user:1").Read(context.Background())
	require.NoError(t, err)
	assert.Nil(t, info)
}

func TestStore_WriteReadClear(t *testing.T) {
	ctx := context.Background()
	s := openTest(t).Store("enterprise:42")

	want := auth.TokenInfo{
		AccessToken:          "a",
		RefreshToken:         "r",
		TokenType:            "bearer",
		AccessTokenExpiresAt: time.Date(2030, 1, 2, 3, 4, 5, 6, time.UTC),
		AcquiredAt:           time.Date(2030, 1, 2, 2, 4, 5, 0, time.UTC),
	}
	require.NoError(t, s.Write(ctx, want))

	got, err := s.Read(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want.AccessToken, got.AccessToken)
	assert.Equal(t, want.RefreshToken, got.RefreshToken)
	assert.Equal(t, want.TokenType, got.TokenType)
	assert.True(t, want.AccessTokenExpiresAt.Equal(got.AccessTokenExpiresAt))
	assert.True(t, want.AcquiredAt.Equal(got.AcquiredAt))

	want.AccessToken = "b"
	require.NoError(t, s.Write(ctx, want))
	got, err = s.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", got.AccessToken)

	require.NoError(t, s.Clear(ctx))
	got, err = s.Read(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStore_ZeroExpiryRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTest(t).Store("k")

	require.NoError(t, s.Write(ctx, auth.TokenInfo{AccessToken: "dev"}))

	got, err := s.Read(ctx)
	require.NoError(t, err)
	assert.True(t, got.AccessTokenExpiresAt.IsZero())
	assert.True(t, got.Valid(time.Now(), time.Minute))
}

func TestDB_KeysAreIsolated(t *testing.T) {
	ctx := context.Background()
	db := openTest(t)

	require.NoError(t, db.Store("user:2").Write(ctx, auth.TokenInfo{AccessToken: "two"}))
	require.NoError(t, db.Store("user:1").Write(ctx, auth.TokenInfo{AccessToken: "one"}))

	got, err := db.Store("user:1").Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "one", got.AccessToken)

	keys, err := db.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"user:1", "user:2"}, keys)

	require.NoError(t, db.Store("user:1").Clear(ctx))
	keys, err = db.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"user:2"}, keys)
}

func TestOpen_ReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tokens.db")

	db, err := Open(ctx, path, nil)
	require.NoError(t, err)
	require.NoError(t, db.Store("k").Write(ctx, auth.TokenInfo{AccessToken: "persisted"}))
	require.NoError(t, db.Close())

	db, err = Open(ctx, path, nil)
	require.NoError(t, err)
	defer db.Close()

	got, err := db.Store("k").Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "persisted", got.AccessToken)
}
