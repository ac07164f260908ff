package weeverytrip

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/NemnemForStudy/WeEveryTrip-sub000/refresh"
	"github.com/NemnemForStudy/WeEveryTrip-sub000/tokenstore"
)

const testBaseURL = "https://api.weeverytrip.test"

type fakeRefresher struct {
	mu      sync.Mutex
	calls   atomic.Int64
	next    refresh.Pair
	err     error
	delay   time.Duration
	lastCtx context.Context
	seen    []string
}

func (f *fakeRefresher) Refresh(ctx context.Context, token string) (refresh.Pair, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastCtx = ctx
	f.seen = append(f.seen, token)
	if f.err != nil {
		return refresh.Pair{}, f.err
	}
	return f.next, nil
}

func (f *fakeRefresher) provider() RefresherProvider {
	return func() (Refresher, error) { return f, nil }
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Refresh.BaseURL = testBaseURL
	return cfg
}

func seededStore(t *testing.T, access, refreshToken string) *tokenstore.MemoryStore {
	t.Helper()
	s := tokenstore.NewMemoryStore()
	if access != "" {
		if err := s.Set(context.Background(), tokenstore.KeyAccess, access); err != nil {
			t.Fatalf("seed access: %v", err)
		}
	}
	if refreshToken != "" {
		if err := s.Set(context.Background(), tokenstore.KeyRefresh, refreshToken); err != nil {
			t.Fatalf("seed refresh: %v", err)
		}
	}
	return s
}

func newTestEngine(t *testing.T, store tokenstore.Store, r *fakeRefresher) *Engine {
	t.Helper()
	engine, err := New().
		WithConfig(testConfig()).
		WithTokenStore(store).
		WithRefresherProvider(r.provider()).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine
}

func unauthorized(t *testing.T, method, url, token string) *RecoveryAttempt {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return &RecoveryAttempt{
		Response: &http.Response{StatusCode: http.StatusUnauthorized, Request: req},
	}
}

func getToken(t *testing.T, s tokenstore.Store, name string) string {
	t.Helper()
	v, _, err := s.Get(context.Background(), name)
	if err != nil {
		t.Fatalf("get %s: %v", name, err)
	}
	return v
}

func assertCleared(t *testing.T, s tokenstore.Store) {
	t.Helper()
	for _, k := range tokenstore.Keys {
		if v := getToken(t, s, k); v != "" {
			t.Fatalf("expected %s cleared, got %q", k, v)
		}
	}
}
