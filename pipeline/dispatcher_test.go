package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonwraymond/portalops/auth"
	"github.com/jonwraymond/portalops/cache"
)

// Test request kinds modeled on the portal's announcements feature.

type listAnnouncements struct {
	IncludeArchived bool
}

func (listAnnouncements) Kind() string { return "announcements.list" }

func (r listAnnouncements) CacheKeyInput() any {
	return map[string]any{"include_archived": r.IncludeArchived}
}

type createAnnouncement struct {
	Title string
	Body  string
}

func (createAnnouncement) Kind() string { return "announcements.create" }

func residentIdentity() *auth.Identity {
	return &auth.Identity{
		Principal:    "acct-1",
		Method:       auth.AuthMethodJWT,
		Capabilities: []string{"announcements:read"},
	}
}

func boardIdentity() *auth.Identity {
	return &auth.Identity{
		Principal:    "acct-2",
		Method:       auth.AuthMethodJWT,
		Capabilities: []string{"announcements:read", "announcements:write"},
	}
}

func newCacheService(t *testing.T) *cache.Service {
	t.Helper()
	monitor := cache.NewMonitor()
	store := cache.NewMemoryStore(128, monitor)
	return cache.NewService(store, cache.NewIndex(store, monitor), monitor, cache.DefaultDefaults())
}

// newAnnouncementsDispatcher wires a read and a write kind over a shared
// backing slice so invalidation effects are visible to later reads.
func newAnnouncementsDispatcher(t *testing.T, svc *cache.Service) (*Dispatcher, *[]string, *atomic.Int64) {
	t.Helper()

	announcements := &[]string{"welcome"}
	var listCalls atomic.Int64

	readReg := Registration{
		Descriptor: Descriptor{
			Kind: "announcements.list",
			CapabilityGroups: [][]string{
				{"announcements:read"},
			},
			Cache: cache.Policy{
				KeyPrefix: "announcements:list",
				TTL:       15 * time.Minute,
				Tags:      []string{"announcements"},
			},
		},
		Handler: func(ctx context.Context, req Request) (any, error) {
			listCalls.Add(1)
			return *announcements, nil
		},
	}

	writeReg := Registration{
		Descriptor: Descriptor{
			Kind:     "announcements.create",
			Mutation: true,
			CapabilityGroups: [][]string{
				{"announcements:write"},
			},
			Invalidation: cache.InvalidationPolicy{
				Tags: []string{"announcements"},
			},
		},
		Handler: func(ctx context.Context, req Request) (any, error) {
			create := req.(createAnnouncement)
			if create.Title == "fail" {
				return nil, errors.New("storage rejected the announcement")
			}
			*announcements = append(*announcements, create.Title)
			return create.Title, nil
		},
		Validators: []Validator{
			func(ctx context.Context, req Request) []FieldError {
				if req.(createAnnouncement).Title == "" {
					return []FieldError{{Field: "title", Message: "title is required"}}
				}
				return nil
			},
			func(ctx context.Context, req Request) []FieldError {
				if req.(createAnnouncement).Body == "" {
					return []FieldError{{Field: "body", Message: "body is required"}}
				}
				return nil
			},
		},
	}

	d, err := NewDispatcher(DispatcherConfig{Cache: svc}, readReg, writeReg)
	if err != nil {
		t.Fatalf("NewDispatcher failed: %v", err)
	}
	return d, announcements, &listCalls
}

func TestDispatcher_UnknownKind(t *testing.T) {
	d, err := NewDispatcher(DispatcherConfig{})
	if err != nil {
		t.Fatalf("NewDispatcher failed: %v", err)
	}

	_, err = d.Dispatch(context.Background(), listAnnouncements{})
	if !errors.Is(err, ErrUnknownKind) {
		t.Errorf("error = %v, want ErrUnknownKind", err)
	}
}

func TestDispatcher_NilRequest(t *testing.T) {
	d, _ := NewDispatcher(DispatcherConfig{})
	if _, err := d.Dispatch(context.Background(), nil); !errors.Is(err, ErrNilRequest) {
		t.Errorf("error = %v, want ErrNilRequest", err)
	}
}

func TestDispatcher_RegistrationErrors(t *testing.T) {
	desc := Descriptor{Kind: "k"}
	handler := func(ctx context.Context, req Request) (any, error) { return nil, nil }

	if _, err := NewDispatcher(DispatcherConfig{}, Registration{Descriptor: desc}); !errors.Is(err, ErrNilHandler) {
		t.Errorf("nil handler: error = %v, want ErrNilHandler", err)
	}

	_, err := NewDispatcher(DispatcherConfig{},
		Registration{Descriptor: desc, Handler: handler},
		Registration{Descriptor: desc, Handler: handler},
	)
	if !errors.Is(err, ErrDuplicateKind) {
		t.Errorf("duplicate kind: error = %v, want ErrDuplicateKind", err)
	}
}

func TestDispatcher_ValidationAggregatesAllFieldErrors(t *testing.T) {
	svc := newCacheService(t)
	d, announcements, _ := newAnnouncementsDispatcher(t, svc)
	ctx := auth.WithIdentity(context.Background(), boardIdentity())

	// Two failing validators produce exactly two field errors in one rejection.
	_, err := d.Dispatch(ctx, createAnnouncement{})
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("error = %v, want *ValidationError", err)
	}
	if len(vErr.Fields) != 2 {
		t.Errorf("got %d field errors, want 2", len(vErr.Fields))
	}
	if !vErr.HasField("title") || !vErr.HasField("body") {
		t.Errorf("fields = %+v, want title and body", vErr.Fields)
	}

	// The handler never ran.
	if len(*announcements) != 1 {
		t.Errorf("handler ran for an invalid request: %v", *announcements)
	}
}

func TestDispatcher_ValidationBeforeAuthorization(t *testing.T) {
	svc := newCacheService(t)
	d, _, _ := newAnnouncementsDispatcher(t, svc)

	// No identity at all, but the request is also invalid: validation wins.
	_, err := d.Dispatch(context.Background(), createAnnouncement{})
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Errorf("error = %v, want validation rejection before authentication check", err)
	}
}

func TestDispatcher_Unauthenticated(t *testing.T) {
	svc := newCacheService(t)
	d, _, _ := newAnnouncementsDispatcher(t, svc)

	_, err := d.Dispatch(context.Background(), listAnnouncements{})
	if !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("error = %v, want ErrUnauthenticated", err)
	}
}

func TestDispatcher_UnauthorizedIsGeneric(t *testing.T) {
	svc := newCacheService(t)
	d, announcements, _ := newAnnouncementsDispatcher(t, svc)

	// A resident can read but not write.
	ctx := auth.WithIdentity(context.Background(), residentIdentity())
	_, err := d.Dispatch(ctx, createAnnouncement{Title: "t", Body: "b"})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("error = %v, want ErrUnauthorized", err)
	}
	// The denial must not leak the missing capability.
	if msg := err.Error(); msg != ErrUnauthorized.Error() {
		t.Errorf("denial message %q leaks detail", msg)
	}
	if len(*announcements) != 1 {
		t.Error("handler ran for an unauthorized request")
	}
}

func TestDispatcher_CapabilityGroups(t *testing.T) {
	handler := func(ctx context.Context, req Request) (any, error) { return "ok", nil }
	d, err := NewDispatcher(DispatcherConfig{}, Registration{
		Descriptor: Descriptor{
			Kind: "announcements.list",
			CapabilityGroups: [][]string{
				{"announcements:read", "announcements:admin"}, // OR within
				{"portal:member"},                             // AND across
			},
		},
		Handler: handler,
	})
	if err != nil {
		t.Fatalf("NewDispatcher failed: %v", err)
	}

	// Holds one capability from each group: allowed.
	ctx := auth.WithIdentity(context.Background(), &auth.Identity{
		Principal:    "acct-1",
		Method:       auth.AuthMethodJWT,
		Capabilities: []string{"announcements:admin", "portal:member"},
	})
	if _, err := d.Dispatch(ctx, listAnnouncements{}); err != nil {
		t.Errorf("satisfying both groups should pass: %v", err)
	}

	// Satisfies the first group only: denied.
	ctx = auth.WithIdentity(context.Background(), &auth.Identity{
		Principal:    "acct-2",
		Method:       auth.AuthMethodJWT,
		Capabilities: []string{"announcements:read"},
	})
	if _, err := d.Dispatch(ctx, listAnnouncements{}); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("error = %v, want ErrUnauthorized", err)
	}
}

func TestDispatcher_OpenKindAllowsAnonymous(t *testing.T) {
	d, err := NewDispatcher(DispatcherConfig{}, Registration{
		Descriptor: Descriptor{Kind: "announcements.public"},
		Handler: func(ctx context.Context, req Request) (any, error) {
			return "ok", nil
		},
	})
	if err != nil {
		t.Fatalf("NewDispatcher failed: %v", err)
	}

	// No capability groups declared, no identity attached: the kind is open.
	got, err := d.Dispatch(context.Background(), kindOnly("announcements.public"))
	if err != nil {
		t.Fatalf("anonymous dispatch of an open kind failed: %v", err)
	}
	if got != "ok" {
		t.Errorf("result = %v", got)
	}

	// An identity, when present, is simply carried through.
	ctx := auth.WithIdentity(context.Background(), residentIdentity())
	if _, err := d.Dispatch(ctx, kindOnly("announcements.public")); err != nil {
		t.Errorf("authenticated dispatch of an open kind failed: %v", err)
	}
}

func TestDispatcher_StateVisibleDuringExecution(t *testing.T) {
	var seen State
	d, err := NewDispatcher(DispatcherConfig{}, Registration{
		Descriptor: Descriptor{Kind: "k"},
		Handler: func(ctx context.Context, req Request) (any, error) {
			seen = StateFromContext(ctx)
			return nil, nil
		},
	})
	if err != nil {
		t.Fatalf("NewDispatcher failed: %v", err)
	}

	if _, err := d.Dispatch(context.Background(), kindOnly("k")); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if seen != StateExecuting {
		t.Errorf("state during handler = %v, want executing", seen)
	}
	if StateFromContext(context.Background()) != StateReceived {
		t.Error("outside a dispatch the state should read as received")
	}
}

func TestDispatcher_CachedRead(t *testing.T) {
	svc := newCacheService(t)
	d, _, listCalls := newAnnouncementsDispatcher(t, svc)
	ctx := auth.WithIdentity(context.Background(), residentIdentity())

	first, err := d.Dispatch(ctx, listAnnouncements{})
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	second, err := d.Dispatch(ctx, listAnnouncements{})
	if err != nil {
		t.Fatalf("second Dispatch failed: %v", err)
	}

	if got := listCalls.Load(); got != 1 {
		t.Errorf("handler ran %d times, want 1 (second read served from cache)", got)
	}

	// Cacheable reads come back as JSON both ways.
	var a, b []string
	if err := json.Unmarshal(first.(json.RawMessage), &a); err != nil {
		t.Fatalf("first result is not JSON: %v", err)
	}
	if err := json.Unmarshal(second.(json.RawMessage), &b); err != nil {
		t.Fatalf("second result is not JSON: %v", err)
	}
	if len(a) != 1 || a[0] != "welcome" || len(b) != 1 || b[0] != "welcome" {
		t.Errorf("results = %v / %v, want [welcome]", a, b)
	}
}

func TestDispatcher_CacheKeyVariesWithInput(t *testing.T) {
	svc := newCacheService(t)
	d, _, listCalls := newAnnouncementsDispatcher(t, svc)
	ctx := auth.WithIdentity(context.Background(), residentIdentity())

	if _, err := d.Dispatch(ctx, listAnnouncements{IncludeArchived: false}); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if _, err := d.Dispatch(ctx, listAnnouncements{IncludeArchived: true}); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if got := listCalls.Load(); got != 2 {
		t.Errorf("handler ran %d times, want 2 (distinct inputs cache separately)", got)
	}
}

func TestDispatcher_AnnouncementsScenario(t *testing.T) {
	svc := newCacheService(t)
	d, _, _ := newAnnouncementsDispatcher(t, svc)
	readCtx := auth.WithIdentity(context.Background(), residentIdentity())
	writeCtx := auth.WithIdentity(context.Background(), boardIdentity())

	// Read caches under the announcements tag.
	if _, err := d.Dispatch(readCtx, listAnnouncements{}); err != nil {
		t.Fatalf("read failed: %v", err)
	}

	// A successful write invalidates the tag.
	if _, err := d.Dispatch(writeCtx, createAnnouncement{Title: "pool closed", Body: "b"}); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	// The next read misses and sees the new announcement.
	result, err := d.Dispatch(readCtx, listAnnouncements{})
	if err != nil {
		t.Fatalf("read after write failed: %v", err)
	}
	var got []string
	if err := json.Unmarshal(result.(json.RawMessage), &got); err != nil {
		t.Fatalf("result is not JSON: %v", err)
	}
	if len(got) != 2 || got[1] != "pool closed" {
		t.Errorf("announcements = %v, want the new announcement visible", got)
	}
}

func TestDispatcher_FailedWriteInvalidatesNothing(t *testing.T) {
	svc := newCacheService(t)
	d, _, listCalls := newAnnouncementsDispatcher(t, svc)
	readCtx := auth.WithIdentity(context.Background(), residentIdentity())
	writeCtx := auth.WithIdentity(context.Background(), boardIdentity())

	if _, err := d.Dispatch(readCtx, listAnnouncements{}); err != nil {
		t.Fatalf("read failed: %v", err)
	}

	// Handler error: the cached read must survive untouched.
	_, err := d.Dispatch(writeCtx, createAnnouncement{Title: "fail", Body: "b"})
	if err == nil {
		t.Fatal("write should have failed")
	}
	if errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("handler error mapped to the wrong class: %v", err)
	}

	if _, err := d.Dispatch(readCtx, listAnnouncements{}); err != nil {
		t.Fatalf("read after failed write errored: %v", err)
	}
	if got := listCalls.Load(); got != 1 {
		t.Errorf("handler ran %d times, want 1: failed write must not invalidate", got)
	}
	if svc.Monitor().Snapshot().Invalidations != 0 {
		t.Error("failed write produced invalidations")
	}
}

func TestDispatcher_ConcurrentColdReads(t *testing.T) {
	svc := newCacheService(t)

	var handlerRuns atomic.Int64
	d, err := NewDispatcher(DispatcherConfig{Cache: svc}, Registration{
		Descriptor: Descriptor{
			Kind:  "reports.expensive",
			Cache: cache.Policy{KeyPrefix: "reports:expensive", TTL: 5 * time.Minute},
		},
		Handler: func(ctx context.Context, req Request) (any, error) {
			handlerRuns.Add(1)
			time.Sleep(30 * time.Millisecond)
			return map[string]any{"rows": 12345}, nil
		},
	})
	if err != nil {
		t.Fatalf("NewDispatcher failed: %v", err)
	}

	ctx := auth.WithIdentity(context.Background(), &auth.Identity{
		Principal: "acct-1", Method: auth.AuthMethodJWT,
	})

	const callers = 50
	var wg sync.WaitGroup
	wg.Add(callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		go func(i int) {
			defer wg.Done()
			_, errs[i] = d.Dispatch(ctx, expensiveReport{})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("caller %d errored: %v", i, err)
		}
	}
	if runs := handlerRuns.Load(); runs != 1 {
		t.Errorf("handler ran %d times under concurrent demand, want exactly 1", runs)
	}
}

type expensiveReport struct{}

func (expensiveReport) Kind() string { return "reports.expensive" }

func TestDispatcher_CorrelationID(t *testing.T) {
	var seen string
	d, err := NewDispatcher(DispatcherConfig{}, Registration{
		Descriptor: Descriptor{Kind: "k"},
		Handler: func(ctx context.Context, req Request) (any, error) {
			seen = CorrelationIDFromContext(ctx)
			return nil, nil
		},
	})
	if err != nil {
		t.Fatalf("NewDispatcher failed: %v", err)
	}
	ctx := auth.WithIdentity(context.Background(), &auth.Identity{Principal: "p", Method: auth.AuthMethodJWT})

	// Assigned when absent.
	if _, err := d.Dispatch(ctx, kindOnly("k")); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if seen == "" {
		t.Error("correlation ID should be assigned at dispatch")
	}

	// Preserved when the caller provides one.
	if _, err := d.Dispatch(WithCorrelationID(ctx, "corr-fixed"), kindOnly("k")); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if seen != "corr-fixed" {
		t.Errorf("correlation ID = %q, want the caller's", seen)
	}
}

type kindOnly string

func (k kindOnly) Kind() string { return string(k) }

func TestDispatcher_Cancellation(t *testing.T) {
	d, err := NewDispatcher(DispatcherConfig{}, Registration{
		Descriptor: Descriptor{Kind: "k"},
		Handler: func(ctx context.Context, req Request) (any, error) {
			t.Error("handler must not run for a cancelled context")
			return nil, nil
		},
	})
	if err != nil {
		t.Fatalf("NewDispatcher failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := d.Dispatch(ctx, kindOnly("k")); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestDispatcher_HandlerErrorUnchanged(t *testing.T) {
	boom := fmt.Errorf("wrapped: %w", errors.New("db down"))
	d, err := NewDispatcher(DispatcherConfig{}, Registration{
		Descriptor: Descriptor{Kind: "k"},
		Handler: func(ctx context.Context, req Request) (any, error) {
			return nil, boom
		},
	})
	if err != nil {
		t.Fatalf("NewDispatcher failed: %v", err)
	}
	ctx := auth.WithIdentity(context.Background(), &auth.Identity{Principal: "p", Method: auth.AuthMethodJWT})

	_, got := d.Dispatch(ctx, kindOnly("k"))
	if !errors.Is(got, boom) {
		t.Errorf("error = %v, want the handler error unchanged", got)
	}
}

func TestFinalState(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want State
	}{
		{"success", nil, StateCompleted},
		{"validation", &ValidationError{Kind: "k"}, StateRejected},
		{"unauthenticated", ErrUnauthenticated, StateRejected},
		{"unauthorized", ErrUnauthorized, StateRejected},
		{"handler error", errors.New("boom"), StateFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := finalState(tt.err); got != tt.want {
				t.Errorf("finalState(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
