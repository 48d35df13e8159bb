// Package config loads the server configuration from YAML.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the oracled server configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen"`
	// AdminTokens authorize state-changing HTTP requests. Empty disables
	// the bearer-token guard (useful for local development only).
	AdminTokens []string `yaml:"admin_tokens"`

	Audit struct {
		// Path enables JSONL persistence of the audit trail.
		Path string `yaml:"path"`
		// MaxEntries bounds the in-memory trail.
		MaxEntries int `yaml:"max_entries"`
	} `yaml:"audit"`

	Store struct {
		// Backend selects the persistence layer: memory, postgres or redis.
		Backend string `yaml:"backend"`
		// PostgresDSN is the connection string for the postgres backend.
		// The ORACLE_POSTGRES_DSN environment variable overrides it.
		PostgresDSN string `yaml:"postgres_dsn"`
		Redis       struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
		} `yaml:"redis"`
	} `yaml:"store"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{Listen: ":8080"}
	cfg.Store.Backend = "memory"
	cfg.Audit.MaxEntries = 200
	return cfg
}

// LoadFromPath loads the configuration from a YAML file and applies
// environment overrides.
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads the configuration, falling back to defaults when the
// file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := LoadFromPath(path)
	if err == nil {
		return cfg, nil
	}
	if os.IsNotExist(err) || strings.Contains(err.Error(), "no such file") {
		cfg = Default()
		cfg.applyEnv()
		return cfg, cfg.validate()
	}
	return nil, err
}

func (c *Config) applyEnv() {
	if dsn := strings.TrimSpace(os.Getenv("ORACLE_POSTGRES_DSN")); dsn != "" {
		c.Store.PostgresDSN = dsn
	}
	if addr := strings.TrimSpace(os.Getenv("ORACLE_REDIS_ADDR")); addr != "" {
		c.Store.Redis.Addr = addr
	}
	if tokens := strings.TrimSpace(os.Getenv("ORACLE_ADMIN_TOKENS")); tokens != "" {
		c.AdminTokens = strings.Split(tokens, ",")
	}
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.Listen) == "" {
		return fmt.Errorf("listen address is required")
	}
	switch strings.ToLower(strings.TrimSpace(c.Store.Backend)) {
	case "", "memory":
	case "postgres":
		if strings.TrimSpace(c.Store.PostgresDSN) == "" {
			return fmt.Errorf("store backend postgres requires a dsn")
		}
	case "redis":
		if strings.TrimSpace(c.Store.Redis.Addr) == "" {
			return fmt.Errorf("store backend redis requires an address")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	return nil
}
