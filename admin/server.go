// Package admin exposes the cache's operational surface: a statistics
// snapshot and targeted invalidation commands. Both endpoints sit behind
// API-key authentication and a token-bucket rate limiter; invalidations
// are published to the audit event sink.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jonwraymond/portalops/auth"
	"github.com/jonwraymond/portalops/cache"
	"github.com/jonwraymond/portalops/observe"
	"github.com/jonwraymond/portalops/resilience"
)

var (
	// ErrNilService indicates the admin server was built without a cache service.
	ErrNilService = errors.New("admin: nil cache service")

	// ErrNilAuthenticator indicates the admin server was built without an authenticator.
	ErrNilAuthenticator = errors.New("admin: nil authenticator")
)

// Config configures the admin HTTP surface.
type Config struct {
	// Authenticator guards every endpoint. Required.
	Authenticator auth.Authenticator

	// Limiter bounds the command rate. Default: 10/s with burst 5.
	Limiter *resilience.RateLimiter

	// Logger receives request outcomes. Default: no-op.
	Logger observe.Logger

	// Events receives invalidation audit events. Default: discard.
	Events observe.EventSink
}

// Server serves the administrative endpoints for one cache service.
type Server struct {
	service *cache.Service
	authn   auth.Authenticator
	limiter *resilience.RateLimiter
	logger  observe.Logger
	events  observe.EventSink
}

// NewServer creates the admin server.
func NewServer(service *cache.Service, cfg Config) (*Server, error) {
	if service == nil {
		return nil, ErrNilService
	}
	if cfg.Authenticator == nil {
		return nil, ErrNilAuthenticator
	}
	if cfg.Limiter == nil {
		cfg.Limiter = resilience.NewRateLimiter(resilience.RateLimiterConfig{Rate: 10, Burst: 5})
	}
	if cfg.Logger == nil {
		cfg.Logger = observe.NopLogger()
	}
	if cfg.Events == nil {
		cfg.Events = observe.NopSink()
	}

	return &Server{
		service: service,
		authn:   cfg.Authenticator,
		limiter: cfg.Limiter,
		logger:  cfg.Logger,
		events:  cfg.Events,
	}, nil
}

// Register mounts the admin endpoints on the given mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /admin/cache/stats", s.guard(s.handleStats))
	mux.HandleFunc("POST /admin/cache/invalidate", s.guard(s.handleInvalidate))
}

// Handler returns a standalone handler serving only the admin routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.Register(mux)
	return mux
}

type guardedHandler func(w http.ResponseWriter, r *http.Request, id *auth.Identity)

// guard applies rate limiting and authentication before the handler runs.
// The limiter runs first so credential probing is throttled too.
func (s *Server) guard(next guardedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		id, err := s.authenticate(r)
		if err != nil {
			s.logger.Warn(r.Context(), "admin auth failed",
				observe.Field{Key: "path", Value: r.URL.Path},
				observe.Field{Key: "error", Value: err.Error()})
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		next(w, r, id)
	}
}

func (s *Server) authenticate(r *http.Request) (*auth.Identity, error) {
	req := &auth.AuthRequest{Headers: r.Header}
	if !s.authn.Supports(r.Context(), req) {
		return nil, auth.ErrMissingCredentials
	}

	result, err := s.authn.Authenticate(r.Context(), req)
	if err != nil {
		return nil, err
	}
	if !result.Authenticated {
		if result.Error != nil {
			return nil, result.Error
		}
		return nil, auth.ErrInvalidCredentials
	}
	return result.Identity, nil
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request, _ *auth.Identity) {
	snapshot := s.service.Monitor().Snapshot()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(snapshot)
}

// invalidateCommand is the request body for the invalidate endpoint.
// Exactly one selector must be set.
type invalidateCommand struct {
	Tag        string `json:"tag,omitempty"`
	Prefix     string `json:"prefix,omitempty"`
	Dependency string `json:"dependency,omitempty"`
}

func (c invalidateCommand) policy() (cache.InvalidationPolicy, bool) {
	set := 0
	var policy cache.InvalidationPolicy
	if c.Tag != "" {
		policy.Tags = []string{c.Tag}
		set++
	}
	if c.Prefix != "" {
		policy.Prefixes = []string{c.Prefix}
		set++
	}
	if c.Dependency != "" {
		policy.DependencyRoots = []string{c.Dependency}
		set++
	}
	return policy, set == 1
}

func (c invalidateCommand) selector() (kind, value string) {
	switch {
	case c.Tag != "":
		return "tag", c.Tag
	case c.Prefix != "":
		return "prefix", c.Prefix
	default:
		return "dependency", c.Dependency
	}
}

func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request, id *auth.Identity) {
	var cmd invalidateCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}

	policy, ok := cmd.policy()
	if !ok {
		writeError(w, http.StatusBadRequest, "exactly one of tag, prefix, dependency required")
		return
	}

	removed, err := s.service.Invalidate(r.Context(), policy)
	if err != nil {
		s.logger.Error(r.Context(), "admin invalidation failed",
			observe.Field{Key: "error", Value: err.Error()})
		writeError(w, http.StatusInternalServerError, "invalidation failed")
		return
	}

	kind, value := cmd.selector()
	s.publishInvalidation(r.Context(), id, kind, value, removed)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]int{"removed": removed})
}

func (s *Server) publishInvalidation(ctx context.Context, id *auth.Identity, kind, value string, removed int) {
	actor := ""
	if id != nil {
		actor = id.Principal
	}
	s.events.Publish(ctx, observe.Event{
		Name:  "cache.invalidate",
		Actor: actor,
		Fields: []observe.Field{
			{Key: kind, Value: value},
			{Key: "removed", Value: removed},
		},
	})
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
