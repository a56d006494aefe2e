// Package tokendb stores tokens in a SQLite database. One database holds any
// number of keyed stores, so a process acting as many app-auth entities can
// cache every entity's token in a single file.
package tokendb

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/pressly/goose/v3"
	// Pure-Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"

	"github.com/tonimelisma/box-go/internal/auth"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	sqlSelectToken = `SELECT access_token, refresh_token, token_type,
		access_token_expires_at, acquired_at
		FROM tokens WHERE store_key = ?`

	sqlUpsertToken = `INSERT INTO tokens
		(store_key, access_token, refresh_token, token_type,
		 access_token_expires_at, acquired_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(store_key) DO UPDATE SET
		 access_token = excluded.access_token,
		 refresh_token = excluded.refresh_token,
		 token_type = excluded.token_type,
		 access_token_expires_at = excluded.access_token_expires_at,
		 acquired_at = excluded.acquired_at,
		 updated_at = excluded.updated_at`

	sqlDeleteToken = `DELETE FROM tokens WHERE store_key = ?`

	sqlListKeys = `SELECT store_key FROM tokens ORDER BY store_key`
)

// DB is an open token database.
type DB struct {
	db      *sql.DB
	logger  *slog.Logger
	nowFunc func() time.Time
}

// Open opens (creating if needed) the database at path and applies pending
// migrations. Use ":memory:" for a throwaway database.
func Open(ctx context.Context, path string, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)&_pragma=busy_timeout(5000)",
		path,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("tokendb: opening database %s: %w", path, err)
	}

	// Sole-writer pattern; also keeps ":memory:" on one connection.
	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("token database opened", slog.String("db_path", path))

	return &DB{db: db, logger: logger, nowFunc: time.Now}, nil
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Store returns a session.TokenStore scoped to key.
func (d *DB) Store(key string) *Store {
	return &Store{db: d, key: key}
}

// Keys lists every key holding a token.
func (d *DB) Keys(ctx context.Context) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, sqlListKeys)
	if err != nil {
		return nil, fmt.Errorf("tokendb: listing keys: %w", err)
	}
	defer rows.Close()

	var keys []string

	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("tokendb: scanning key: %w", err)
		}

		keys = append(keys, k)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("tokendb: iterating keys: %w", err)
	}

	return keys, nil
}

// Store is one keyed row of a DB.
type Store struct {
	db  *DB
	key string
}

// Read returns the token for the store's key, or (nil, nil) if none.
func (s *Store) Read(ctx context.Context) (*auth.TokenInfo, error) {
	var (
		info             auth.TokenInfo
		expiresAt, gotAt int64
	)

	err := s.db.db.QueryRowContext(ctx, sqlSelectToken, s.key).Scan(
		&info.AccessToken, &info.RefreshToken, &info.TokenType, &expiresAt, &gotAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // sentinel for "not found"
	}

	if err != nil {
		return nil, fmt.Errorf("tokendb: reading %q: %w", s.key, err)
	}

	info.AccessTokenExpiresAt = fromUnixNano(expiresAt)
	info.AcquiredAt = fromUnixNano(gotAt)

	return &info, nil
}

// Write upserts the token for the store's key.
func (s *Store) Write(ctx context.Context, info auth.TokenInfo) error {
	_, err := s.db.db.ExecContext(ctx, sqlUpsertToken,
		s.key, info.AccessToken, info.RefreshToken, info.TokenType,
		toUnixNano(info.AccessTokenExpiresAt), toUnixNano(info.AcquiredAt),
		s.db.nowFunc().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("tokendb: writing %q: %w", s.key, err)
	}

	s.db.logger.Debug("token stored", slog.String("key", s.key))

	return nil
}

// Clear deletes the token for the store's key.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.db.ExecContext(ctx, sqlDeleteToken, s.key); err != nil {
		return fmt.Errorf("tokendb: clearing %q: %w", s.key, err)
	}

	return nil
}

// Zero times are stored as 0 so "no expiry" survives a round trip.
func toUnixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}

	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}

	return time.Unix(0, n).UTC()
}

func runMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	subFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("tokendb: creating migration sub-filesystem: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, subFS)
	if err != nil {
		return fmt.Errorf("tokendb: creating migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("tokendb: running migrations: %w", err)
	}

	for _, r := range results {
		logger.Info("applied migration",
			slog.String("source", r.Source.Path),
			slog.Int64("duration_ms", r.Duration.Milliseconds()),
		)
	}

	return nil
}
