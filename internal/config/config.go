// Package config loads service configuration from a YAML file with
// environment overrides for deployment-specific values.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/launchwave/launchwave/internal/domain/signup"
)

// Default confirmation phrases. These are typed-back human interlocks
// against accidental bulk mutation, not a security control.
const (
	DefaultPromotePhrase = "PROMOTE WAVE"
	DefaultRemovePhrase  = "DELETE FALLBACK SIGNUPS"
)

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	ReadTimeoutSec int    `yaml:"read_timeout_seconds"`
	WriteTimeoutSec int   `yaml:"write_timeout_seconds"`
}

// DatabaseConfig holds the SQL connection settings. An empty DSN means
// the in-memory store is used.
type DatabaseConfig struct {
	Driver          string `yaml:"driver"`
	DSN             string `yaml:"dsn"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime_seconds"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// AdmissionConfig holds the pool cap table.
type AdmissionConfig struct {
	FoundingMemberCap  int `yaml:"founding_member_cap"`
	FoundingCreatorCap int `yaml:"founding_creator_cap"`
	TesterCap          int `yaml:"tester_cap"`
	TesterCreatorCap   int `yaml:"tester_creator_cap"`
}

// Pools returns the configured pool table.
func (c AdmissionConfig) Pools() []signup.Pool {
	return []signup.Pool{
		{Name: signup.PoolFoundingMember, Cap: c.FoundingMemberCap},
		{Name: signup.PoolFoundingCreator, Cap: c.FoundingCreatorCap},
		{Name: signup.PoolTester, Cap: c.TesterCap},
		{Name: signup.PoolTesterCreator, Cap: c.TesterCreatorCap},
	}
}

// WavesConfig holds the batch limits and confirmation phrases for the
// promotion and removal engines.
type WavesConfig struct {
	PromoteLimitMax int    `yaml:"promote_limit_max"`
	RemoveLimitMax  int    `yaml:"remove_limit_max"`
	PromotePhrase   string `yaml:"promote_phrase"`
	RemovePhrase    string `yaml:"remove_phrase"`
}

// RateLimitConfig holds the bulk-removal rate limiter settings.
type RateLimitConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	Burst             int `yaml:"burst"`
}

// AuditConfig holds audit sink settings.
type AuditConfig struct {
	FilePath   string `yaml:"file_path"`
	MemoryMax  int    `yaml:"memory_max"`
}

// Config is the root configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Logging   LoggingConfig   `yaml:"logging"`
	Admission AdmissionConfig `yaml:"admission"`
	Waves     WavesConfig     `yaml:"waves"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Audit     AuditConfig     `yaml:"audit"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080, ReadTimeoutSec: 10, WriteTimeoutSec: 10},
		Database: DatabaseConfig{Driver: "postgres"},
		Logging:  LoggingConfig{Level: "info", Format: "text"},
		Admission: AdmissionConfig{
			FoundingMemberCap:  signup.DefaultFoundingMemberCap,
			FoundingCreatorCap: signup.DefaultFoundingCreatorCap,
			TesterCap:          signup.DefaultTesterCap,
			TesterCreatorCap:   signup.DefaultTesterCreatorCap,
		},
		Waves: WavesConfig{
			PromoteLimitMax: 500,
			RemoveLimitMax:  100,
			PromotePhrase:   DefaultPromotePhrase,
			RemovePhrase:    DefaultRemovePhrase,
		},
		RateLimit: RateLimitConfig{RequestsPerSecond: 1, Burst: 3},
		Audit:     AuditConfig{MemoryMax: 500},
	}
}

// Load reads configuration from LAUNCHWAVE_CONFIG (or
// config/launchwave.yaml), falling back to defaults when the file does
// not exist, then applies environment overrides.
func Load() (*Config, error) {
	path := strings.TrimSpace(os.Getenv("LAUNCHWAVE_CONFIG"))
	if path == "" {
		path = "config/launchwave.yaml"
	}
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// Defaults plus env overrides.
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for usable values.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	for _, p := range c.Admission.Pools() {
		if p.Cap < 0 {
			return fmt.Errorf("pool %s: cap must not be negative", p.Name)
		}
	}
	if c.Waves.PromoteLimitMax <= 0 {
		return fmt.Errorf("waves.promote_limit_max must be positive")
	}
	if c.Waves.RemoveLimitMax <= 0 {
		return fmt.Errorf("waves.remove_limit_max must be positive")
	}
	if strings.TrimSpace(c.Waves.PromotePhrase) == "" {
		return fmt.Errorf("waves.promote_phrase must not be empty")
	}
	if strings.TrimSpace(c.Waves.RemovePhrase) == "" {
		return fmt.Errorf("waves.remove_phrase must not be empty")
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("HTTP_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("HTTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("AUDIT_FILE"); v != "" {
		cfg.Audit.FilePath = v
	}
}
