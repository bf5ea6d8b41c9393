// Package config loads the switchyard configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/aretw0/switchyard/internal/logging"
	"github.com/aretw0/switchyard/pkg/domain"
	"github.com/aretw0/switchyard/pkg/persistence/middleware"
	"github.com/aretw0/switchyard/pkg/registry"
)

// Store kinds.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreRedis  = "redis"
)

// ErrUnsupportedFormat is returned for files that are neither YAML nor TOML.
var ErrUnsupportedFormat = errors.New("unsupported config format")

// Config is the full runtime configuration.
type Config struct {
	LogLevel  string                 `mapstructure:"log_level"`
	Store     StoreConfig            `mapstructure:"store"`
	HTTP      HTTPConfig             `mapstructure:"http"`
	Metrics   MetricsConfig          `mapstructure:"metrics"`
	Tracing   TracingConfig          `mapstructure:"tracing"`
	Retry     domain.RetryPolicy     `mapstructure:"retry"`
	Endpoints []domain.PollingConfig `mapstructure:"endpoints"`
	Routes    []domain.Route         `mapstructure:"routes"`
}

// StoreConfig selects where run state is persisted.
type StoreConfig struct {
	Kind  string      `mapstructure:"kind"`
	Path  string      `mapstructure:"path"`
	Redis RedisConfig `mapstructure:"redis"`
	// EncryptionKey is a base64 AES-256 key. When set, run state is stored
	// encrypted. FallbackKeys are accepted for reading only.
	EncryptionKey string   `mapstructure:"encryption_key"`
	FallbackKeys  []string `mapstructure:"fallback_keys"`
	// RedactKeys are regular expressions; matching keys in finished runs are
	// masked before they are stored.
	RedactKeys []string `mapstructure:"redact_keys"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Prefix   string        `mapstructure:"prefix"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

type TracingConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Output is "stdout", "stderr" or a file path.
	Output string `mapstructure:"output"`
}

// Default returns the configuration used for keys a file leaves out.
func Default() Config {
	return Config{
		LogLevel: "info",
		Store: StoreConfig{
			Kind: StoreMemory,
			Path: filepath.Join(".switchyard", "runs"),
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "switchyard:",
			},
		},
		HTTP:    HTTPConfig{Addr: ":8080"},
		Metrics: MetricsConfig{Addr: ":9090"},
		Tracing: TracingConfig{Output: "stderr"},
		Retry:   domain.DefaultRetryPolicy(),
	}
}

// Load reads path and decodes it over Default. The format follows the file
// extension (.yaml, .yml, .toml). ${VAR} references are expanded from the
// environment before parsing.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(filepath.Ext(path), data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes data in the format named by ext over Default.
func Parse(ext string, data []byte) (Config, error) {
	raw := map[string]any{}
	expanded := []byte(os.ExpandEnv(string(data)))

	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "yaml", "yml":
		if err := yaml.Unmarshal(expanded, &raw); err != nil {
			return Config{}, fmt.Errorf("parse yaml: %w", err)
		}
	case "toml":
		if err := toml.Unmarshal(expanded, &raw); err != nil {
			return Config{}, fmt.Errorf("parse toml: %w", err)
		}
	default:
		return Config{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	cfg := Default()
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      &cfg,
		ErrorUnused: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			operatorHook,
		),
	})
	if err != nil {
		return Config{}, err
	}
	if err := dec.Decode(raw); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

var operatorType = reflect.TypeOf(domain.Operator(""))

// operatorHook accepts symbolic and lower-case operator names.
func operatorHook(from, to reflect.Type, data any) (any, error) {
	if to != operatorType || from.Kind() != reflect.String {
		return data, nil
	}
	return domain.ParseOperator(reflect.ValueOf(data).String())
}

// Validate reports every problem in the configuration at once.
func (c Config) Validate() error {
	var errs []error

	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}

	switch c.Store.Kind {
	case StoreMemory:
	case StoreFile:
		if c.Store.Path == "" {
			errs = append(errs, &domain.ValidationError{Field: "store.path", Reason: "required for the file store"})
		}
	case StoreRedis:
		if c.Store.Redis.Addr == "" {
			errs = append(errs, &domain.ValidationError{Field: "store.redis.addr", Reason: "required for the redis store"})
		}
	default:
		errs = append(errs, &domain.ValidationError{Field: "store.kind", Reason: fmt.Sprintf("unknown store kind %q", c.Store.Kind)})
	}
	if c.Store.EncryptionKey != "" {
		if _, err := c.EncryptionConfig(); err != nil {
			errs = append(errs, &domain.ValidationError{Field: "store.encryption_key", Reason: err.Error()})
		}
	}
	if _, err := middleware.NewPIIMiddleware(c.Store.RedactKeys); err != nil {
		errs = append(errs, &domain.ValidationError{Field: "store.redact_keys", Reason: err.Error()})
	}

	seen := make(map[string]bool, len(c.Endpoints))
	for i, ep := range c.Endpoints {
		field := fmt.Sprintf("endpoints[%d]", i)
		switch {
		case strings.TrimSpace(ep.EndpointID) == "":
			errs = append(errs, &domain.ValidationError{Field: field + ".endpoint_id", Reason: "required"})
		case seen[ep.EndpointID]:
			errs = append(errs, &domain.ValidationError{Field: field + ".endpoint_id", Reason: fmt.Sprintf("duplicate id %q", ep.EndpointID)})
		}
		seen[ep.EndpointID] = true
		if strings.TrimSpace(ep.URL) == "" {
			errs = append(errs, &domain.ValidationError{Field: field + ".url", Reason: "required"})
		}
		switch ep.OverlapPolicy {
		case "", domain.OverlapAllow, domain.OverlapSkipIfActive:
		default:
			errs = append(errs, &domain.ValidationError{Field: field + ".overlap_policy", Reason: fmt.Sprintf("unknown policy %q", ep.OverlapPolicy)})
		}
	}

	if err := registry.NewRegistry().RegisterAll(c.Routes...); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// EncryptionConfig decodes the store keys. It returns nil when encryption
// is not configured.
func (c Config) EncryptionConfig() (*middleware.EncryptionConfig, error) {
	if c.Store.EncryptionKey == "" {
		return nil, nil
	}
	active, err := middleware.DecodeKey(c.Store.EncryptionKey)
	if err != nil {
		return nil, err
	}
	cfg := &middleware.EncryptionConfig{ActiveKey: active}
	for i, s := range c.Store.FallbackKeys {
		key, err := middleware.DecodeKey(s)
		if err != nil {
			return nil, fmt.Errorf("fallback key %d: %w", i, err)
		}
		cfg.FallbackKeys = append(cfg.FallbackKeys, key)
	}
	return cfg, nil
}
