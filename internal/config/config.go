package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dreamware/shardmap/internal/retry"
)

// Config holds every library-wide tunable that isn't a per-call argument.
// The zero Config is not directly usable; call Default or Load.
type Config struct {
	Retry RetryConfig `yaml:"retry"`
	Cache CacheConfig `yaml:"cache"`
}

// RetryConfig mirrors retry.Policy in YAML-friendly, duration-string form.
type RetryConfig struct {
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
	MaxElapsedTime  time.Duration `yaml:"max_elapsed_time"`
	MaxAttempts     int           `yaml:"max_attempts"`
}

// CacheConfig configures internal/cache.
type CacheConfig struct {
	DefaultTTL time.Duration `yaml:"default_ttl"`
}

// Default returns the configuration used when no file is supplied,
// matching retry.DefaultPolicy and cache.New's built-in defaults.
func Default() Config {
	p := retry.DefaultPolicy()
	return Config{
		Retry: RetryConfig{
			InitialInterval: p.InitialInterval,
			MaxInterval:     p.MaxInterval,
			MaxElapsedTime:  p.MaxElapsedTime,
			MaxAttempts:     p.MaxAttempts,
		},
		Cache: CacheConfig{DefaultTTL: 5 * time.Minute},
	}
}

// Load reads a YAML document from path, starting from Default and letting
// the file override whichever fields it sets, including fields it sets
// explicitly to zero (e.g. MaxAttempts: 0); fields the file omits keep
// their default.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// RetryPolicy converts this Config's RetryConfig into retry.Policy.
func (c Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		InitialInterval: c.Retry.InitialInterval,
		MaxInterval:     c.Retry.MaxInterval,
		MaxElapsedTime:  c.Retry.MaxElapsedTime,
		MaxAttempts:     c.Retry.MaxAttempts,
	}
}
