package weeverytrip

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables read by [ApplyEnv].
const (
	EnvBaseURL        = "WEEVERYTRIP_BASE_URL"
	EnvRefreshPath    = "WEEVERYTRIP_REFRESH_PATH"
	EnvRefreshTimeout = "WEEVERYTRIP_REFRESH_TIMEOUT"
	EnvMaxRetryDepth  = "WEEVERYTRIP_MAX_RETRY_DEPTH"
	EnvStoreBackend   = "WEEVERYTRIP_STORE"
	EnvStoreFile      = "WEEVERYTRIP_STORE_FILE"
	EnvIdentityFile   = "WEEVERYTRIP_IDENTITY_FILE"
	EnvRedisAddr      = "WEEVERYTRIP_REDIS_ADDR"
	EnvLogLevel       = "WEEVERYTRIP_LOG_LEVEL"
)

// LoadConfigFile decodes a YAML file over [DefaultConfig]. Unknown keys are an
// error. The result is not validated.
func LoadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config %s: %w", path, err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML bytes over [DefaultConfig].
func ParseConfig(data []byte) (Config, error) {
	cfg := defaultConfig()
	if len(bytes.TrimSpace(data)) == 0 {
		return cfg, nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return cfg, nil
}

// ApplyEnv overrides cfg from WEEVERYTRIP_* variables. lookup is usually
// os.LookupEnv.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvBaseURL); ok {
		cfg.Refresh.BaseURL = v
	}
	if v, ok := lookup(EnvRefreshPath); ok {
		cfg.Refresh.Path = v
	}
	if v, ok := lookup(EnvRefreshTimeout); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, EnvRefreshTimeout, err)
		}
		cfg.Refresh.Timeout = d
	}
	if v, ok := lookup(EnvMaxRetryDepth); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, EnvMaxRetryDepth, err)
		}
		cfg.Refresh.MaxRetryDepth = n
	}
	if v, ok := lookup(EnvStoreBackend); ok {
		cfg.Store.Backend = StoreBackend(v)
	}
	if v, ok := lookup(EnvStoreFile); ok {
		cfg.Store.FilePath = v
	}
	if v, ok := lookup(EnvIdentityFile); ok {
		cfg.Store.IdentityPath = v
	}
	if v, ok := lookup(EnvRedisAddr); ok {
		cfg.Store.RedisAddr = v
	}
	if v, ok := lookup(EnvLogLevel); ok {
		cfg.Log.Level = v
	}
	return nil
}
