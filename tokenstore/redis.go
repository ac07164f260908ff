package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultLockTTL   = 30 * time.Second
	lockPollInterval = 25 * time.Millisecond
)

// unlockScript deletes the lock only while it still holds the caller's token,
// so an expired lock taken over by another process is left alone.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisStore keeps tokens under prefixed keys so several client processes of one
// installation share a session. It implements [Locker] with a SET NX PX lock on
// "<prefix>:lock", which keeps refresh single-flight across those processes.
type RedisStore struct {
	redis      redis.UniversalClient
	prefix     string
	refreshTTL time.Duration
	lockTTL    time.Duration
}

// NewRedisStore returns a store writing "<prefix>:tok:<name>" keys. A positive
// refreshTTL expires the refresh token entry alongside its server-side lifetime.
func NewRedisStore(client redis.UniversalClient, prefix string, refreshTTL time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "wet"
	}
	return &RedisStore{
		redis:      client,
		prefix:     prefix,
		refreshTTL: refreshTTL,
		lockTTL:    defaultLockTTL,
	}
}

// WithLockTTL sets how long a session lock survives a holder that never
// releases it. It should exceed the refresh timeout.
func (s *RedisStore) WithLockTTL(ttl time.Duration) *RedisStore {
	if ttl > 0 {
		s.lockTTL = ttl
	}
	return s
}

// Lock blocks until the session lock is taken or ctx ends. The returned unlock
// is safe to call more than once.
func (s *RedisStore) Lock(ctx context.Context) (func(), error) {
	key := s.prefix + ":lock"
	token := uuid.NewString()

	ticker := time.NewTicker(lockPollInterval)
	defer ticker.Stop()
	for {
		ok, err := s.redis.SetNX(ctx, key, token, s.lockTTL).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %v", ErrLockTimeout, ctx.Err())
			}
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if ok {
			released := false
			return func() {
				if released {
					return
				}
				released = true
				_ = unlockScript.Run(context.Background(), s.redis, []string{key}, token).Err()
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrLockTimeout, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (s *RedisStore) key(name string) string {
	return s.prefix + ":tok:" + name
}

func (s *RedisStore) ttl(name string) time.Duration {
	if name == KeyRefresh && s.refreshTTL > 0 {
		return s.refreshTTL
	}
	return 0
}

func (s *RedisStore) Get(ctx context.Context, name string) (string, bool, error) {
	if !validKey(name) {
		return "", false, ErrUnknownKey
	}
	v, err := s.redis.Get(ctx, s.key(name)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return v, v != "", nil
}

func (s *RedisStore) Set(ctx context.Context, name, value string) error {
	if !validKey(name) {
		return ErrUnknownKey
	}
	if value == "" {
		return s.Delete(ctx, name)
	}
	if err := s.redis.Set(ctx, s.key(name), value, s.ttl(name)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *RedisStore) SetPair(ctx context.Context, access, refresh string) error {
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(KeyAccess), access, s.ttl(KeyAccess))
		pipe.Set(ctx, s.key(KeyRefresh), refresh, s.ttl(KeyRefresh))
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, name string) error {
	if !validKey(name) {
		return ErrUnknownKey
	}
	if err := s.redis.Del(ctx, s.key(name)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	keys := make([]string, 0, len(Keys))
	for _, name := range Keys {
		keys = append(keys, s.key(name))
	}
	if err := s.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
