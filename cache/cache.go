package cache

import (
	"context"
	"errors"
	"strings"
	"time"
)

// MaxKeyLength is the maximum allowed length for a cache key.
const MaxKeyLength = 512

// Sentinel errors for cache operations.
var (
	ErrNilStore   = errors.New("cache: store is nil")
	ErrNilFactory = errors.New("cache: factory is nil")
	ErrInvalidKey = errors.New("cache: key is invalid")
	ErrKeyTooLong = errors.New("cache: key exceeds max length")
)

// Store is the uniform interface over cache backends.
//
// Contract:
//   - Concurrency: implementations must be safe for concurrent use.
//   - Context: methods should honor cancellation/deadlines where applicable.
//   - Errors: Get never errors; it returns (nil, false) on miss or expiry.
//     Delete and DeleteMany are idempotent - no error on absent keys.
type Store interface {
	// Get retrieves a cached value. Returns (nil, false) on miss.
	Get(ctx context.Context, key string) ([]byte, bool)

	// Set stores a value with the given TTL. TTL<=0 means no caching.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a cached value. Idempotent - no error on miss.
	Delete(ctx context.Context, key string) error

	// DeleteMany removes a batch of keys. Idempotent per key.
	DeleteMany(ctx context.Context, keys []string) error
}

// TTLStore is implemented by stores that can report remaining TTL,
// enabling backfill of a faster tier with the remaining lifetime.
type TTLStore interface {
	Store

	// GetWithTTL retrieves a value and its remaining TTL.
	GetWithTTL(ctx context.Context, key string) ([]byte, time.Duration, bool)
}

// EntryReader is implemented by backends that can distinguish a miss from a
// backend failure on read. The tiered store prefers it for the remote tier
// so that read failures count toward the degraded-mode breaker instead of
// passing as plain misses.
type EntryReader interface {
	// GetEntry retrieves a value and its remaining TTL. A miss returns
	// (nil, 0, false, nil); a backend failure returns a non-nil error.
	GetEntry(ctx context.Context, key string) ([]byte, time.Duration, bool, error)
}

// PrefixScanner is implemented by stores that can enumerate keys by prefix.
type PrefixScanner interface {
	// ScanPrefix returns all live keys starting with prefix.
	ScanPrefix(ctx context.Context, prefix string) ([]string, error)
}

// ValidateKey checks if a key is valid for caching.
func ValidateKey(key string) error {
	if key == "" || strings.TrimSpace(key) == "" {
		return ErrInvalidKey
	}
	if len(key) > MaxKeyLength {
		return ErrKeyTooLong
	}
	// Reject keys with newlines or carriage returns
	if strings.ContainsAny(key, "\n\r") {
		return ErrInvalidKey
	}
	return nil
}
