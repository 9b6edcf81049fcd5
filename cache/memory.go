package cache

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultMemoryCapacity bounds the local tier when no capacity is configured.
const DefaultMemoryCapacity = 4096

// MemoryStore is the in-process cache tier. Entries are bounded by an LRU
// of fixed capacity and carry individual expiry timestamps checked lazily
// on read.
type MemoryStore struct {
	entries *lru.Cache[string, memEntry]
	monitor *Monitor
}

type memEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryStore creates a local tier with the given capacity.
// A nil monitor disables statistics recording.
func NewMemoryStore(capacity int, monitor *Monitor) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	// lru.New only errors on non-positive size, which is guarded above.
	entries, _ := lru.New[string, memEntry](capacity)
	return &MemoryStore{
		entries: entries,
		monitor: monitor,
	}
}

// Get retrieves a value. Returns (nil, false) on miss or expiry.
func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, bool) {
	value, _, ok := s.GetWithTTL(ctx, key)
	return value, ok
}

// GetWithTTL retrieves a value and its remaining TTL.
func (s *MemoryStore) GetWithTTL(_ context.Context, key string) ([]byte, time.Duration, bool) {
	entry, ok := s.entries.Get(key)
	if !ok {
		return nil, 0, false
	}

	remaining := time.Until(entry.expiresAt)
	if remaining <= 0 {
		// Expired - clean up lazily
		s.entries.Remove(key)
		s.monitor.RecordExpiration()
		return nil, 0, false
	}

	return entry.value, remaining, true
}

// Set stores a value with the given TTL. TTL<=0 means no caching.
func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	evicted := s.entries.Add(key, memEntry{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	})
	if evicted {
		s.monitor.RecordEviction()
	}

	return nil
}

// Delete removes a value. Idempotent - no error on miss.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.entries.Remove(key)
	return nil
}

// DeleteMany removes a batch of keys.
func (s *MemoryStore) DeleteMany(_ context.Context, keys []string) error {
	for _, key := range keys {
		s.entries.Remove(key)
	}
	return nil
}

// Len returns the number of resident entries, including any not yet
// lazily expired.
func (s *MemoryStore) Len() int {
	return s.entries.Len()
}

// Purge drops every entry without recording evictions.
func (s *MemoryStore) Purge() {
	s.entries.Purge()
}

// Ensure MemoryStore implements Store and TTLStore
var _ Store = (*MemoryStore)(nil)
var _ TTLStore = (*MemoryStore)(nil)
