package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"time"
)

// ErrEmptyKeyHash indicates an API key was registered without its hash.
var ErrEmptyKeyHash = errors.New("auth: api key hash is empty")

// APIKeyConfig configures the API key authenticator.
type APIKeyConfig struct {
	// HeaderName is the header carrying the key. Default: "X-API-Key".
	HeaderName string
}

// APIKeyInfo describes one operator key for the admin surface. Only the
// SHA-256 hash is ever stored; the plaintext stays with the operator.
type APIKeyInfo struct {
	// ID identifies the key in audit events.
	ID string

	// KeyHash is the hex-encoded SHA-256 of the key (see HashAPIKey).
	KeyHash string

	// Principal is the identity acting through this key.
	Principal string

	// Roles and Capabilities are the grants attached to the key.
	Roles        []string
	Capabilities []string

	// ExpiresAt is when the key stops authenticating (zero = never).
	ExpiresAt time.Time
}

// APIKeyStore resolves a key hash to its registration.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Misses: an unknown hash returns (nil, nil), not an error.
type APIKeyStore interface {
	Lookup(ctx context.Context, keyHash string) (*APIKeyInfo, error)
}

// APIKeyAuthenticator authenticates the admin surface's operator keys.
type APIKeyAuthenticator struct {
	config APIKeyConfig
	store  APIKeyStore
}

// NewAPIKeyAuthenticator creates the authenticator over the given store.
func NewAPIKeyAuthenticator(config APIKeyConfig, store APIKeyStore) *APIKeyAuthenticator {
	if config.HeaderName == "" {
		config.HeaderName = "X-API-Key"
	}
	return &APIKeyAuthenticator{config: config, store: store}
}

// Name returns "api_key".
func (a *APIKeyAuthenticator) Name() string {
	return "api_key"
}

// Supports reports whether the request carries the key header.
func (a *APIKeyAuthenticator) Supports(_ context.Context, req *AuthRequest) bool {
	return req.GetHeader(a.config.HeaderName) != ""
}

// Authenticate resolves the presented key to its registered identity.
// Store errors are returned as-is; an unknown or expired key is an
// authentication failure, not an error.
func (a *APIKeyAuthenticator) Authenticate(ctx context.Context, req *AuthRequest) (*AuthResult, error) {
	key := strings.TrimSpace(req.GetHeader(a.config.HeaderName))
	if key == "" {
		return AuthFailure(ErrMissingCredentials, "api_key"), nil
	}

	info, err := a.store.Lookup(ctx, HashAPIKey(key))
	if err != nil {
		return nil, err
	}
	if info == nil {
		return AuthFailure(ErrInvalidCredentials, "api_key"), nil
	}
	if !info.ExpiresAt.IsZero() && time.Now().After(info.ExpiresAt) {
		return AuthFailure(ErrTokenExpired, "api_key"), nil
	}

	return AuthSuccess(&Identity{
		Principal:    info.Principal,
		Roles:        info.Roles,
		Capabilities: info.Capabilities,
		Method:       AuthMethodAPIKey,
		ExpiresAt:    info.ExpiresAt,
		Claims:       map[string]any{"key_id": info.ID},
	}), nil
}

// HashAPIKey returns the hex-encoded SHA-256 of key, the form stores hold.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// MemoryAPIKeyStore holds operator keys in memory, keyed by hash. The
// config loader populates one from the admin key list at startup.
type MemoryAPIKeyStore struct {
	mu   sync.RWMutex
	keys map[string]*APIKeyInfo
}

// NewMemoryAPIKeyStore creates an empty store.
func NewMemoryAPIKeyStore() *MemoryAPIKeyStore {
	return &MemoryAPIKeyStore{keys: make(map[string]*APIKeyInfo)}
}

// Lookup resolves a key hash. Unknown hashes return (nil, nil).
func (s *MemoryAPIKeyStore) Lookup(_ context.Context, keyHash string) (*APIKeyInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.keys[keyHash], nil
}

// Add registers a key. Re-adding the same hash replaces the registration.
func (s *MemoryAPIKeyStore) Add(info *APIKeyInfo) error {
	if info == nil || info.KeyHash == "" {
		return ErrEmptyKeyHash
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[info.KeyHash] = info
	return nil
}

// Remove forgets a key by hash. Idempotent.
func (s *MemoryAPIKeyStore) Remove(keyHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, keyHash)
	return nil
}

var (
	_ Authenticator = (*APIKeyAuthenticator)(nil)
	_ APIKeyStore   = (*MemoryAPIKeyStore)(nil)
)
