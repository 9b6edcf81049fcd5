package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLStore is the persistent cache tier, backed by a SQLite database.
// It stands in for a remote key-value backend behind the same Store
// contract: every operation goes through database I/O and honors the
// caller's context.
type SQLStore struct {
	db      *sql.DB
	monitor *Monitor
}

const sqlSchema = `
CREATE TABLE IF NOT EXISTS cache_entries (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	expires_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cache_entries_expires ON cache_entries(expires_at);
`

// NewSQLStore opens (or creates) the cache database at path.
// A nil monitor disables statistics recording.
func NewSQLStore(ctx context.Context, path string, monitor *Monitor) (*SQLStore, error) {
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if _, err := db.ExecContext(ctx, sqlSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLStore{db: db, monitor: monitor}, nil
}

// Get retrieves a value. Returns (nil, false) on miss, expiry, or any
// database error - a cache read failure is a miss, never a caller error.
func (s *SQLStore) Get(ctx context.Context, key string) ([]byte, bool) {
	value, _, ok := s.GetWithTTL(ctx, key)
	return value, ok
}

// GetWithTTL retrieves a value and its remaining TTL, swallowing backend
// errors as misses.
func (s *SQLStore) GetWithTTL(ctx context.Context, key string) ([]byte, time.Duration, bool) {
	value, remaining, ok, _ := s.GetEntry(ctx, key)
	return value, remaining, ok
}

// GetEntry retrieves a value and its remaining TTL. A database failure is
// returned so the tiered store's breaker can count it; a miss or an expired
// row is (nil, 0, false, nil).
func (s *SQLStore) GetEntry(ctx context.Context, key string) ([]byte, time.Duration, bool, error) {
	var value []byte
	var expiresAt int64

	err := s.db.QueryRowContext(ctx,
		`SELECT value, expires_at FROM cache_entries WHERE key = ?`, key,
	).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, false, nil
	}
	if err != nil {
		return nil, 0, false, fmt.Errorf("cache: get %q: %w", key, err)
	}

	remaining := time.Until(time.Unix(0, expiresAt))
	if remaining <= 0 {
		// Expired - clean up lazily
		_, _ = s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, key)
		s.monitor.RecordExpiration()
		return nil, 0, false, nil
	}

	return value, remaining, true, nil
}

// Set stores a value with the given TTL. TTL<=0 means no caching.
func (s *SQLStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	expiresAt := time.Now().Add(ttl).UnixNano()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cache_entries (key, value, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, value, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("cache: set %q: %w", key, err)
	}
	return nil
}

// Delete removes a value. Idempotent - no error on miss.
func (s *SQLStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("cache: delete %q: %w", key, err)
	}
	return nil
}

// DeleteMany removes a batch of keys in one transaction.
func (s *SQLStore) DeleteMany(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("cache: begin delete: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `DELETE FROM cache_entries WHERE key = ?`)
	if err != nil {
		return fmt.Errorf("cache: prepare delete: %w", err)
	}
	defer stmt.Close()

	for _, key := range keys {
		if _, err := stmt.ExecContext(ctx, key); err != nil {
			return fmt.Errorf("cache: delete %q: %w", key, err)
		}
	}

	return tx.Commit()
}

// ScanPrefix returns all live keys starting with prefix.
func (s *SQLStore) ScanPrefix(ctx context.Context, prefix string) ([]string, error) {
	pattern := escapeLike(prefix) + "%"
	rows, err := s.db.QueryContext(ctx,
		`SELECT key FROM cache_entries WHERE key LIKE ? ESCAPE '\' AND expires_at > ? ORDER BY key`,
		pattern, time.Now().UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("cache: scan prefix %q: %w", prefix, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// PurgeExpired removes every expired row and returns how many were removed.
// Intended for periodic maintenance; reads already ignore expired rows.
func (s *SQLStore) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE expires_at <= ?`, time.Now().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("cache: purge expired: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Ping checks database connectivity.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// escapeLike escapes LIKE metacharacters so a prefix matches literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// Ensure SQLStore implements the store contracts
var (
	_ Store         = (*SQLStore)(nil)
	_ TTLStore      = (*SQLStore)(nil)
	_ EntryReader   = (*SQLStore)(nil)
	_ PrefixScanner = (*SQLStore)(nil)
)
