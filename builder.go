package weeverytrip

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	internalaudit "github.com/NemnemForStudy/WeEveryTrip-sub000/internal/audit"
	"github.com/NemnemForStudy/WeEveryTrip-sub000/refresh"
	"github.com/NemnemForStudy/WeEveryTrip-sub000/session"
	"github.com/NemnemForStudy/WeEveryTrip-sub000/tokenstore"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Builder assembles an [Engine]. Configure it once, call Build, then discard it.
type Builder struct {
	config Config
	store  tokenstore.Store
	redis  redis.UniversalClient

	provider   RefresherProvider
	httpClient *http.Client

	logger    zerolog.Logger
	auditSink AuditSink

	built bool
}

// New returns a builder seeded with [DefaultConfig]. The logger defaults to
// zerolog.Nop.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
		logger: zerolog.Nop(),
	}
}

// WithConfig replaces the whole configuration. It is validated by Build.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithTokenStore injects a store and overrides Store.Backend.
func (b *Builder) WithTokenStore(s tokenstore.Store) *Builder {
	b.store = s
	return b
}

// WithRedis supplies the client used by the redis backend. The engine does not
// close an injected client.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithRefresherProvider replaces the default HTTP refresh client. The provider is
// not called until the first refresh.
func (b *Builder) WithRefresherProvider(p RefresherProvider) *Builder {
	b.provider = p
	return b
}

// WithHTTPClient sets the client used by the default refresh client. It must not
// be the client whose transport routes through the engine.
func (b *Builder) WithHTTPClient(c *http.Client) *Builder {
	b.httpClient = c
	return b
}

// WithLogger sets the engine logger. Token values are never logged.
func (b *Builder) WithLogger(l zerolog.Logger) *Builder {
	b.logger = l
	return b
}

// WithAuditSink sets where audit events go when Audit.Enabled is set.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration, opens the token store and derives the
// initial session state from it. A builder can be used once.
//
// The session starts valid when any token is stored, not only a refresh
// token. A store holding just an access or legacy auth_token is therefore
// valid until its first 401, which finds no refresh token and tears the
// session down.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	refreshURL, err := url.Parse(cfg.Refresh.Endpoint())
	if err != nil {
		return nil, fmt.Errorf("%w: refresh endpoint: %v", ErrInvalidConfig, err)
	}

	engine := &Engine{
		config:     cfg,
		refreshURL: refreshURL,
		logger:     b.logger.With().Str("component", "weeverytrip").Logger(),
	}

	// -------- TOKEN STORE --------
	store := b.store
	if store == nil {
		store, err = b.openStore(cfg, engine)
		if err != nil {
			return nil, err
		}
	}
	engine.store = store

	// -------- REFRESHER --------
	provider := b.provider
	if provider == nil {
		endpoint := cfg.Refresh.Endpoint()
		httpClient := b.httpClient
		if httpClient == nil {
			httpClient = &http.Client{Timeout: cfg.Refresh.Timeout}
		}
		provider = refresh.Lazy(func() (refresh.Refresher, error) {
			c, err := refresh.NewClient(endpoint, httpClient)
			if err != nil {
				return nil, err
			}
			return c, nil
		})
	}
	engine.provider = provider

	// -------- SESSION STATE --------
	valid, err := hasAnyToken(context.Background(), store)
	if err != nil {
		engine.closeOwned()
		return nil, fmt.Errorf("reading persisted session: %w", err)
	}
	engine.session = session.NewController(valid)
	if valid {
		engine.sessionID.Store(uuid.NewString())
	}

	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)

	b.built = true

	engine.logger.Debug().
		Str("store", fmt.Sprintf("%T", store)).
		Bool("session_valid", valid).
		Msg("engine built")

	return engine, nil
}

func (b *Builder) openStore(cfg Config, engine *Engine) (tokenstore.Store, error) {
	switch cfg.Store.Backend {
	case StoreMemory:
		return tokenstore.NewMemoryStore(), nil
	case StoreFile:
		identity, err := tokenstore.LoadOrCreateIdentity(cfg.Store.IdentityPath)
		if err != nil {
			return nil, err
		}
		return tokenstore.NewFileStore(cfg.Store.FilePath, identity)
	case StoreKeyring:
		return tokenstore.NewKeyringStore(cfg.Store.KeyringService), nil
	case StoreRedis:
		client := b.redis
		if client == nil {
			if cfg.Store.RedisAddr == "" {
				return nil, fmt.Errorf("%w: redis store requires a client or RedisAddr", ErrInvalidConfig)
			}
			owned := redis.NewClient(&redis.Options{Addr: cfg.Store.RedisAddr})
			engine.owned = append(engine.owned, owned.Close)
			client = owned
		}
		return tokenstore.NewRedisStore(client, cfg.Store.RedisPrefix, cfg.Store.RefreshTTL).
			WithLockTTL(2 * cfg.Refresh.Timeout), nil
	default:
		return nil, fmt.Errorf("%w: unknown store backend %q", ErrInvalidConfig, cfg.Store.Backend)
	}
}

func hasAnyToken(ctx context.Context, s tokenstore.Store) (bool, error) {
	for _, name := range tokenstore.Keys {
		_, ok, err := s.Get(ctx, name)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}
