package core

import (
	"fmt"
	"strings"
	"time"
)

type DatabaseConfig struct {
	Driver string `koanf:"driver" mapstructure:"driver"`
	DSN    string `koanf:"dsn" mapstructure:"dsn"`
	Debug  bool   `koanf:"debug" mapstructure:"debug"`
}

type HTTPConfig struct {
	Addr string `koanf:"addr" mapstructure:"addr"`
}

type WebhookConfig struct {
	MaxAttempts         int `koanf:"max_attempts" mapstructure:"max_attempts"`
	ClaimLeaseSeconds   int `koanf:"claim_lease_seconds" mapstructure:"claim_lease_seconds"`
	RetryInitialSeconds int `koanf:"retry_initial_seconds" mapstructure:"retry_initial_seconds"`
	RetryMaxSeconds     int `koanf:"retry_max_seconds" mapstructure:"retry_max_seconds"`
}

type ProfileConfig struct {
	Enabled        bool `koanf:"enabled" mapstructure:"enabled"`
	TimeoutSeconds int  `koanf:"timeout_seconds" mapstructure:"timeout_seconds"`
}

type CacheConfig struct {
	InboxTTLSeconds int `koanf:"inbox_ttl_seconds" mapstructure:"inbox_ttl_seconds"`
}

type Config struct {
	ServiceName string         `koanf:"service_name" mapstructure:"service_name"`
	Database    DatabaseConfig `koanf:"database" mapstructure:"database"`
	HTTP        HTTPConfig     `koanf:"http" mapstructure:"http"`
	Webhooks    WebhookConfig  `koanf:"webhooks" mapstructure:"webhooks"`
	Profile     ProfileConfig  `koanf:"profile" mapstructure:"profile"`
	Cache       CacheConfig    `koanf:"cache" mapstructure:"cache"`
	// RegistrationAttempts bounds re-classification when a NEW binding loses
	// a creation race.
	RegistrationAttempts int `koanf:"registration_attempts" mapstructure:"registration_attempts"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "inbox",
		Database: DatabaseConfig{
			Driver: "sqlite3",
			DSN:    "file:inbox.db?cache=shared&_foreign_keys=on",
		},
		HTTP: HTTPConfig{Addr: ":8080"},
		Webhooks: WebhookConfig{
			MaxAttempts:         8,
			ClaimLeaseSeconds:   30,
			RetryInitialSeconds: 1,
			RetryMaxSeconds:     30,
		},
		Profile: ProfileConfig{
			Enabled:        true,
			TimeoutSeconds: 5,
		},
		Cache:                CacheConfig{InboxTTLSeconds: 60},
		RegistrationAttempts: 3,
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	switch strings.TrimSpace(c.Database.Driver) {
	case "", "sqlite3", "postgres":
	default:
		return fmt.Errorf("core: database driver %q is invalid", c.Database.Driver)
	}
	if c.Webhooks.MaxAttempts < 0 || c.Webhooks.ClaimLeaseSeconds < 0 {
		return fmt.Errorf("core: webhook retry settings are invalid")
	}
	if c.Profile.TimeoutSeconds < 0 || c.Cache.InboxTTLSeconds < 0 {
		return fmt.Errorf("core: timeout settings are invalid")
	}
	if c.RegistrationAttempts < 0 {
		return fmt.Errorf("core: registration_attempts is invalid")
	}
	return nil
}

func (c Config) ProfileTimeout() time.Duration {
	if c.Profile.TimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.Profile.TimeoutSeconds) * time.Second
}

func (c Config) ClaimLease() time.Duration {
	if c.Webhooks.ClaimLeaseSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Webhooks.ClaimLeaseSeconds) * time.Second
}

func (c Config) RetryInitial() time.Duration {
	return time.Duration(c.Webhooks.RetryInitialSeconds) * time.Second
}

func (c Config) RetryMax() time.Duration {
	return time.Duration(c.Webhooks.RetryMaxSeconds) * time.Second
}

func (c Config) InboxCacheTTL() time.Duration {
	return time.Duration(c.Cache.InboxTTLSeconds) * time.Second
}

func (c Config) registrationAttempts() int {
	if c.RegistrationAttempts <= 0 {
		return 3
	}
	return c.RegistrationAttempts
}
