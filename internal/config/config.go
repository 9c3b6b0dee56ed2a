// Package config loads application configuration from defaults, an
// optional YAML file, and environment variables, in that order.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/opsdeck/helpdesk/internal/domain"
	"github.com/opsdeck/helpdesk/internal/incident"
)

const envPrefix = "HELPDESK_"

// Config is the root application configuration.
type Config struct {
	Server    ServerConfig   `koanf:"server"`
	Database  DatabaseConfig `koanf:"database"`
	Log       LogConfig      `koanf:"log"`
	CORS      CORSConfig     `koanf:"cors"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	Dispatch  DispatchConfig `koanf:"dispatch"`
	SLA       SLAConfig      `koanf:"sla"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              string        `koanf:"port"`
	MetricsPort       string        `koanf:"metrics_port"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`
}

// DatabaseConfig contains PostgreSQL settings.
type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
	ConnectAttempts int           `koanf:"connect_attempts"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// CORSConfig contains cross-origin settings.
type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// RateLimitConfig contains per-client request limits.
type RateLimitConfig struct {
	Enabled bool    `koanf:"enabled"`
	RPS     float64 `koanf:"rps"`
	Burst   int     `koanf:"burst"`
}

// DispatchConfig contains event fan-out settings.
type DispatchConfig struct {
	BufferSize int `koanf:"buffer_size"`
}

// SLAConfig contains per-priority SLA targets in minutes.
type SLAConfig struct {
	Targets map[string]SLATargetConfig `koanf:"targets"`
}

// SLATargetConfig is one priority's response and resolution targets.
type SLATargetConfig struct {
	ResponseMin   int `koanf:"response_min"`
	ResolutionMin int `koanf:"resolution_min"`
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"server.host":                "0.0.0.0",
		"server.port":                "8080",
		"server.metrics_port":        "9090",
		"server.read_timeout":        "10s",
		"server.read_header_timeout": "5s",
		"server.write_timeout":       "30s",
		"server.idle_timeout":        "120s",
		"server.shutdown_timeout":    "15s",

		"database.url":              "",
		"database.max_open_conns":   10,
		"database.max_idle_conns":   2,
		"database.conn_max_lifetime": "30m",
		"database.connect_timeout":  "30s",
		"database.connect_attempts": 5,

		"log.level":  "info",
		"log.format": "json",

		"cors.allowed_origins": []string{"*"},

		"rate_limit.enabled": true,
		"rate_limit.rps":     50.0,
		"rate_limit.burst":   100,

		"dispatch.buffer_size": 16,
	}
}

// Load reads configuration. Precedence: env > file > defaults.
// The file path comes from HELPDESK_CONFIG_FILE and is optional.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := os.Getenv(envPrefix + "CONFIG_FILE"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	// HELPDESK_SERVER__PORT maps to server.port. Double underscore
	// separates keys so single underscores survive inside key names.
	err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("database.url is required")
	}
	if c.Dispatch.BufferSize < 1 {
		return fmt.Errorf("dispatch.buffer_size must be positive")
	}
	for name, t := range c.SLA.Targets {
		p := domain.Priority(name)
		if !p.IsValid() {
			return fmt.Errorf("sla.targets: unknown priority %q", name)
		}
		if t.ResponseMin <= 0 || t.ResolutionMin <= 0 {
			return fmt.Errorf("sla.targets.%s: targets must be positive minutes", name)
		}
	}
	return nil
}

// SLATargets merges configured overrides over the built-in targets.
func (c *Config) SLATargets() map[domain.Priority]incident.SLATarget {
	targets := incident.DefaultSLATargets()
	for name, t := range c.SLA.Targets {
		targets[domain.Priority(name)] = incident.SLATarget{
			ResponseMin:   t.ResponseMin,
			ResolutionMin: t.ResolutionMin,
		}
	}
	return targets
}
