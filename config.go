package weeverytrip

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/NemnemForStudy/WeEveryTrip-sub000/refresh"
)

// Config is the full engine configuration. Start from [DefaultConfig] and
// override what you need.
type Config struct {
	Refresh RefreshConfig `yaml:"refresh"`
	Store   StoreConfig   `yaml:"store"`
	Audit   AuditConfig   `yaml:"audit"`
	Metrics MetricsConfig `yaml:"metrics"`
	Log     LogConfig     `yaml:"log"`
}

/*
====================================
REFRESH CONFIG
====================================
*/

// RefreshConfig describes the refresh endpoint and the retry bound.
type RefreshConfig struct {
	// BaseURL is the backend origin, e.g. https://api.weeverytrip.app.
	BaseURL string `yaml:"base_url"`
	// Path defaults to /api/auth/refresh.
	Path string `yaml:"path"`
	// MaxRetryDepth is the number of 401s a single logical request may see
	// before the session is torn down.
	MaxRetryDepth int `yaml:"max_retry_depth"`
	// Timeout bounds one refresh call, independent of the triggering request.
	Timeout time.Duration `yaml:"timeout"`
}

// Endpoint returns the absolute refresh URL.
func (r RefreshConfig) Endpoint() string {
	path := r.Path
	if path == "" {
		path = refresh.DefaultPath
	}
	return strings.TrimRight(r.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
}

/*
====================================
STORE CONFIG
====================================
*/

// StoreBackend selects where tokens are persisted when no store is injected.
type StoreBackend string

const (
	StoreMemory  StoreBackend = "memory"
	StoreFile    StoreBackend = "file"
	StoreKeyring StoreBackend = "keyring"
	StoreRedis   StoreBackend = "redis"
)

// StoreConfig controls the token store built by [Builder.Build].
type StoreConfig struct {
	Backend StoreBackend `yaml:"backend"`

	// File backend.
	FilePath     string `yaml:"file_path"`
	IdentityPath string `yaml:"identity_path"`

	// Keyring backend.
	KeyringService string `yaml:"keyring_service"`

	// Redis backend.
	RedisAddr   string        `yaml:"redis_addr"`
	RedisPrefix string        `yaml:"redis_prefix"`
	RefreshTTL  time.Duration `yaml:"refresh_ttl"`
}

/*
====================================
AUDIT / METRICS / LOG CONFIG
====================================
*/

type AuditConfig struct {
	Enabled    bool `yaml:"enabled"`
	BufferSize int  `yaml:"buffer_size"`
	DropIfFull bool `yaml:"drop_if_full"`
}

type MetricsConfig struct {
	Enabled                 bool `yaml:"enabled"`
	EnableLatencyHistograms bool `yaml:"enable_latency_histograms"`
}

// LogConfig is consumed by commands that build their own zerolog logger.
type LogConfig struct {
	Level   string `yaml:"level"`
	Console bool   `yaml:"console"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Refresh: RefreshConfig{
			Path:          refresh.DefaultPath,
			MaxRetryDepth: 3,
			Timeout:       15 * time.Second,
		},
		Store: StoreConfig{
			Backend:        StoreMemory,
			FilePath:       "weeverytrip/session.age",
			IdentityPath:   "weeverytrip/identity.txt",
			KeyringService: "weeverytrip",
			RedisPrefix:    "wet",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func cloneConfig(cfg Config) Config {
	return cfg
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Refresh.BaseURL == "" {
		return fmt.Errorf("%w: Refresh BaseURL must be set", ErrInvalidConfig)
	}
	u, err := url.Parse(c.Refresh.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: Refresh BaseURL must be an absolute http(s) URL", ErrInvalidConfig)
	}
	if c.Refresh.Path != "" && !strings.HasPrefix(c.Refresh.Path, "/") {
		return fmt.Errorf("%w: Refresh Path must start with /", ErrInvalidConfig)
	}
	if c.Refresh.MaxRetryDepth < 1 {
		return fmt.Errorf("%w: Refresh MaxRetryDepth must be >= 1", ErrInvalidConfig)
	}
	if c.Refresh.Timeout <= 0 {
		return fmt.Errorf("%w: Refresh Timeout must be > 0", ErrInvalidConfig)
	}

	switch c.Store.Backend {
	case StoreMemory, StoreRedis:
	case StoreFile:
		if c.Store.FilePath == "" || c.Store.IdentityPath == "" {
			return fmt.Errorf("%w: file store requires FilePath and IdentityPath", ErrInvalidConfig)
		}
	case StoreKeyring:
		if c.Store.KeyringService == "" {
			return fmt.Errorf("%w: keyring store requires KeyringService", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown store backend %q", ErrInvalidConfig, c.Store.Backend)
	}
	if c.Store.RefreshTTL < 0 {
		return fmt.Errorf("%w: Store RefreshTTL must be >= 0", ErrInvalidConfig)
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return fmt.Errorf("%w: Audit BufferSize must be > 0", ErrInvalidConfig)
	}
	return nil
}
