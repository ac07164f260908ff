package middleware_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	weeverytrip "github.com/NemnemForStudy/WeEveryTrip-sub000"
	"github.com/NemnemForStudy/WeEveryTrip-sub000/internal/fakebackend"
	"github.com/NemnemForStudy/WeEveryTrip-sub000/middleware"
	"github.com/NemnemForStudy/WeEveryTrip-sub000/tokenstore"
)

type harness struct {
	backend *fakebackend.Backend
	srv     *httptest.Server
	store   *tokenstore.MemoryStore
	engine  *weeverytrip.Engine
	client  *http.Client
	access  string
	refresh string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	backend, err := fakebackend.New(fakebackend.Options{})
	if err != nil {
		t.Fatalf("backend: %v", err)
	}
	srv := httptest.NewServer(backend.Handler())
	t.Cleanup(srv.Close)

	access, refreshToken, err := backend.Login("traveler")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	store := tokenstore.NewMemoryStore()
	if err := tokenstore.SetPair(context.Background(), store, access, refreshToken); err != nil {
		t.Fatalf("seed: %v", err)
	}

	cfg := weeverytrip.DefaultConfig()
	cfg.Refresh.BaseURL = srv.URL
	engine, err := weeverytrip.New().WithConfig(cfg).WithTokenStore(store).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(engine.Close)

	return &harness{
		backend: backend,
		srv:     srv,
		store:   store,
		engine:  engine,
		client:  middleware.NewClient(engine, srv.Client().Transport),
		access:  access,
		refresh: refreshToken,
	}
}

func (h *harness) get(t *testing.T) *http.Response {
	t.Helper()
	resp, err := h.client.Get(h.srv.URL + "/api/posts")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	return resp
}

func TestTransportDecoratesRequests(t *testing.T) {
	h := newHarness(t)
	resp := h.get(t)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if h.backend.Stats().RefreshCalls != 0 {
		t.Fatal("valid token must not refresh")
	}
}

func TestTransportConcurrentExpiryRefreshesOnce(t *testing.T) {
	h := newHarness(t)
	h.backend.RevokeAccess(h.access)

	const n = 3
	var wg sync.WaitGroup
	wg.Add(n)
	statuses := make(chan int, n)
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			resp, err := h.client.Get(h.srv.URL + "/api/posts")
			if err != nil {
				errs <- err
				return
			}
			resp.Body.Close()
			statuses <- resp.StatusCode
		}()
	}
	wg.Wait()
	close(statuses)
	close(errs)

	for err := range errs {
		t.Fatalf("request failed: %v", err)
	}
	for code := range statuses {
		if code != http.StatusOK {
			t.Fatalf("expected 200 after recovery, got %d", code)
		}
	}
	if calls := h.backend.Stats().RefreshCalls; calls != 1 {
		t.Fatalf("expected exactly one refresh call, got %d", calls)
	}
	if h.backend.Stats().ReuseRevoked != 0 {
		t.Fatal("refresh token must never be presented twice")
	}
	if !h.engine.Session().IsValid() {
		t.Fatal("session should stay valid")
	}
}

func TestTransportRefreshForbiddenReturnsUnauthorized(t *testing.T) {
	h := newHarness(t)
	h.backend.RevokeAccess(h.access)
	h.backend.SetRefreshStatus(http.StatusForbidden)

	var gaveUp error
	tr := middleware.NewTransport(h.engine, h.srv.Client().Transport)
	tr.OnGiveUp = func(_ *http.Request, err error) { gaveUp = err }
	client := &http.Client{Transport: tr}

	resp, err := client.Get(h.srv.URL + "/api/posts")
	if err != nil {
		t.Fatalf("a failed recovery is not a transport error: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected the final 401, got %d", resp.StatusCode)
	}
	if !errors.Is(gaveUp, weeverytrip.ErrRefreshRejected) {
		t.Fatalf("expected ErrRefreshRejected, got %v", gaveUp)
	}
	if h.engine.Session().IsValid() {
		t.Fatal("session should be invalid")
	}
	for _, k := range tokenstore.Keys {
		if _, ok, _ := h.store.Get(context.Background(), k); ok {
			t.Fatalf("%s should be cleared", k)
		}
	}
	if h.backend.Stats().APICalls != 1 {
		t.Fatalf("expected no resend, got %d api calls", h.backend.Stats().APICalls)
	}
}

func TestTransportBoundsRetries(t *testing.T) {
	h := newHarness(t)
	h.backend.SetDenyAll(true)

	resp := h.get(t)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	stats := h.backend.Stats()
	if stats.APICalls != 3 {
		t.Fatalf("expected three attempts, got %d", stats.APICalls)
	}
	if stats.RefreshCalls != 2 {
		t.Fatalf("expected two refreshes before giving up, got %d", stats.RefreshCalls)
	}
	if h.engine.Session().IsValid() {
		t.Fatal("session should be invalid after exhausting retries")
	}

	// Once logged out, further requests go out bare and are not retried.
	resp = h.get(t)
	resp.Body.Close()
	if h.backend.Stats().RefreshCalls != 2 {
		t.Fatal("no refresh after logout")
	}
}

func TestTransportReplaysPostBody(t *testing.T) {
	h := newHarness(t)
	h.backend.RevokeAccess(h.access)

	resp, err := h.client.Post(h.srv.URL+"/api/posts", "application/json", strings.NewReader(`{"title":"Busan night market"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.StatusCode, body)
	}
	if !strings.Contains(string(body), "Busan night market") {
		t.Fatalf("unexpected body %s", body)
	}
}

type stubHooks struct {
	attempts []*weeverytrip.RecoveryAttempt
}

func (s *stubHooks) Decorate(req *http.Request) *http.Request { return req }

func (s *stubHooks) Authenticate(a *weeverytrip.RecoveryAttempt) (*http.Request, error) {
	s.attempts = append(s.attempts, a)
	if a.Depth() >= 2 {
		return nil, weeverytrip.ErrLoopDetected
	}
	return a.Response.Request.Clone(a.Response.Request.Context()), nil
}

type alwaysUnauthorized struct{}

func (alwaysUnauthorized) RoundTrip(req *http.Request) (*http.Response, error) {
	return &http.Response{
		StatusCode: http.StatusUnauthorized,
		Body:       io.NopCloser(strings.NewReader("")),
		Header:     make(http.Header),
	}, nil
}

func TestTransportLinksAttempts(t *testing.T) {
	hooks := &stubHooks{}
	client := middleware.NewClient(hooks, alwaysUnauthorized{})

	resp, err := client.Get("https://api.weeverytrip.test/api/posts")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()

	if len(hooks.attempts) != 2 {
		t.Fatalf("expected two attempts, got %d", len(hooks.attempts))
	}
	if hooks.attempts[1].Prior != hooks.attempts[0] {
		t.Fatal("second attempt must link to the first")
	}
	if hooks.attempts[0].Response.Request == nil {
		t.Fatal("response must carry the failed request")
	}
}

func TestTransportPropagatesNetworkErrors(t *testing.T) {
	h := newHarness(t)
	h.srv.Close()
	if _, err := h.client.Get(h.srv.URL + "/api/posts"); err == nil {
		t.Fatal("expected a transport error")
	}
	if !h.engine.Session().IsValid() {
		t.Fatal("network errors on API calls must not log out")
	}
}

func TestTransportAnonymousUnauthorizedKeepsSession(t *testing.T) {
	h := newHarness(t)

	var gaveUp error
	transport := middleware.NewTransport(h.engine, h.srv.Client().Transport)
	transport.OnGiveUp = func(_ *http.Request, err error) { gaveUp = err }
	client := &http.Client{Transport: transport}

	req, err := http.NewRequestWithContext(weeverytrip.WithoutAuth(context.Background()), http.MethodGet, h.srv.URL+"/api/posts", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	if !errors.Is(gaveUp, weeverytrip.ErrAnonymousRequest) {
		t.Fatalf("expected ErrAnonymousRequest, got %v", gaveUp)
	}
	stats := h.backend.Stats()
	if stats.APICalls != 1 || stats.RefreshCalls != 0 {
		t.Fatalf("expected one bare call and no refresh, got %+v", stats)
	}
	if !h.engine.Session().IsValid() {
		t.Fatal("session must stay valid")
	}
	if got, _, _ := h.store.Get(context.Background(), tokenstore.KeyAccess); got != h.access {
		t.Fatal("access token must not change")
	}

	// The authenticated client still works with the untouched pair.
	resp = h.get(t)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 after anonymous 401, got %d", resp.StatusCode)
	}
}
