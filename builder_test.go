package weeverytrip

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/NemnemForStudy/WeEveryTrip-sub000/tokenstore"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestBuilderSingleUse(t *testing.T) {
	b := New().WithConfig(testConfig())
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer engine.Close()
	if _, err := b.Build(); err == nil {
		t.Fatal("expected second Build to fail")
	}
}

func TestBuilderRejectsInvalidConfig(t *testing.T) {
	if _, err := New().Build(); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig without BaseURL, got %v", err)
	}
}

func TestBuilderInitialSessionState(t *testing.T) {
	empty, err := New().WithConfig(testConfig()).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer empty.Close()
	if empty.Session().IsValid() {
		t.Fatal("empty store should start invalid")
	}

	seeded := newTestEngine(t, seededStore(t, "A1", "R1"), &fakeRefresher{})
	if !seeded.Session().IsValid() {
		t.Fatal("stored tokens should start valid")
	}
}

func TestBuilderFileBackend(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig()
	cfg.Store.Backend = StoreFile
	cfg.Store.FilePath = filepath.Join(dir, "session.age")
	cfg.Store.IdentityPath = filepath.Join(dir, "identity.txt")

	engine, err := New().WithConfig(cfg).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if err := engine.EstablishSession(context.Background(), TokenPair{AccessToken: "A1", RefreshToken: "R1"}); err != nil {
		t.Fatalf("establish: %v", err)
	}
	engine.Close()

	reopened, err := New().WithConfig(cfg).Build()
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	defer reopened.Close()
	if !reopened.Session().IsValid() {
		t.Fatal("persisted session should survive a restart")
	}
	if _, ok := reopened.Store().(*tokenstore.FileStore); !ok {
		t.Fatalf("expected file store, got %T", reopened.Store())
	}
}

func TestBuilderRedisBackend(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	cfg := testConfig()
	cfg.Store.Backend = StoreRedis
	engine, err := New().WithConfig(cfg).WithRedis(rdb).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer engine.Close()

	if err := engine.EstablishSession(context.Background(), TokenPair{AccessToken: "A1", RefreshToken: "R1"}); err != nil {
		t.Fatalf("establish: %v", err)
	}
	if got, err := mr.Get("wet:tok:" + tokenstore.KeyAccess); err != nil || got != "A1" {
		t.Fatalf("expected access token in redis, got %q %v", got, err)
	}
}

func TestBuilderRedisBackendByAddress(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.Store.Backend = StoreRedis
	cfg.Store.RedisAddr = mr.Addr()

	engine, err := New().WithConfig(cfg).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(engine.owned) != 1 {
		t.Fatal("engine should own the redis client it created")
	}
	engine.Close()
	if len(engine.owned) != 0 {
		t.Fatal("owned clients should be released on Close")
	}
}

func TestBuilderRedisBackendRequiresClient(t *testing.T) {
	cfg := testConfig()
	cfg.Store.Backend = StoreRedis
	if _, err := New().WithConfig(cfg).Build(); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestBuilderFailsOnUnreadableStore(t *testing.T) {
	store := &brokenStore{Store: tokenstore.NewMemoryStore(), fail: true}
	_, err := New().WithConfig(testConfig()).WithTokenStore(store).Build()
	if !errors.Is(err, tokenstore.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
