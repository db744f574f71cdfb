// Package config assembles the typed application configuration from the
// layered YAML loader: base.yaml, per-environment overlay, secrets
// substitution, then environment variable overrides.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	pkgconfig "notifyhub/pkg/config"
)

type CacheConfig struct {
	PreferenceTTLSeconds int `yaml:"preference_ttl_seconds"`
}

func (c CacheConfig) PreferenceTTL() time.Duration {
	if c.PreferenceTTLSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.PreferenceTTLSeconds) * time.Second
}

type WorkerConfig struct {
	PollIntervalSeconds   int `yaml:"poll_interval_seconds"`
	BatchSize             int `yaml:"batch_size"`
	LeaseSeconds          int `yaml:"lease_seconds"`
	WebhookTimeoutSeconds int `yaml:"webhook_timeout_seconds"`
}

func (w WorkerConfig) PollInterval() time.Duration {
	if w.PollIntervalSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(w.PollIntervalSeconds) * time.Second
}

func (w WorkerConfig) LeaseDuration() time.Duration {
	if w.LeaseSeconds <= 0 {
		return 2 * time.Minute
	}
	return time.Duration(w.LeaseSeconds) * time.Second
}

func (w WorkerConfig) WebhookTimeout() time.Duration {
	if w.WebhookTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(w.WebhookTimeoutSeconds) * time.Second
}

type Config struct {
	Server pkgconfig.ServerConfig `yaml:"server"`
	DB     pkgconfig.DBConfig     `yaml:"db"`
	Redis  pkgconfig.RedisConfig  `yaml:"redis"`
	Cache  CacheConfig            `yaml:"cache"`
	Worker WorkerConfig           `yaml:"worker"`
}

// Load reads the layered configuration for the active environment
// (CONFIG_ENV) and applies environment variable overrides on top.
func Load(configDir string) (*Config, error) {
	merged, err := pkgconfig.LoadConfig(pkgconfig.GetConfigEnv(), configDir)
	if err != nil {
		return nil, err
	}

	// Round-trip through YAML to decode the merged map into typed config.
	raw, err := yaml.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("failed to re-encode merged config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	pkgconfig.OverrideDBFromEnv(&cfg.DB)
	pkgconfig.OverrideRedisFromEnv(&cfg.Redis)
	pkgconfig.OverrideServerFromEnv(&cfg.Server)

	if cfg.Server.Port == "" {
		cfg.Server.Port = ":8080"
	}
	return &cfg, nil
}
