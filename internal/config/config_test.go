package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/launchwave/launchwave/internal/domain/signup"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
	if cfg.Waves.PromoteLimitMax != 500 || cfg.Waves.RemoveLimitMax != 100 {
		t.Fatalf("unexpected wave limits: %+v", cfg.Waves)
	}
	if cfg.Waves.PromotePhrase != DefaultPromotePhrase || cfg.Waves.RemovePhrase != DefaultRemovePhrase {
		t.Fatalf("unexpected confirmation phrases: %+v", cfg.Waves)
	}

	pools := cfg.Admission.Pools()
	caps := map[signup.PoolName]int{}
	for _, p := range pools {
		caps[p.Name] = p.Cap
	}
	if caps[signup.PoolFoundingMember] != 50 || caps[signup.PoolFoundingCreator] != 20 ||
		caps[signup.PoolTester] != 20 || caps[signup.PoolTesterCreator] != 10 {
		t.Fatalf("unexpected default caps: %v", caps)
	}
}

func TestLoadReadsYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "launchwave.yaml")
	content := []byte(`
server:
  host: 127.0.0.1
  port: 9999
admission:
  founding_member_cap: 5
waves:
  promote_phrase: "GO GO GO"
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("LAUNCHWAVE_CONFIG", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 9999 || cfg.Server.Host != "127.0.0.1" {
		t.Fatalf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Admission.FoundingMemberCap != 5 {
		t.Fatalf("unexpected cap override: %+v", cfg.Admission)
	}
	if cfg.Waves.PromotePhrase != "GO GO GO" {
		t.Fatalf("unexpected phrase override: %+v", cfg.Waves)
	}
	// Untouched keys keep their defaults.
	if cfg.Waves.RemovePhrase != DefaultRemovePhrase {
		t.Fatalf("remove phrase must default, got %q", cfg.Waves.RemovePhrase)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("LAUNCHWAVE_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("expected default port, got %d", cfg.Server.Port)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LAUNCHWAVE_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))
	t.Setenv("HTTP_PORT", "7070")
	t.Setenv("DATABASE_DSN", "postgres://lw@localhost/lw")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Fatalf("expected env port, got %d", cfg.Server.Port)
	}
	if cfg.Database.DSN != "postgres://lw@localhost/lw" {
		t.Fatalf("expected env dsn, got %q", cfg.Database.DSN)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("expected env log level, got %q", cfg.Logging.Level)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]func(*Config){
		"port":           func(c *Config) { c.Server.Port = 0 },
		"negative cap":   func(c *Config) { c.Admission.TesterCap = -1 },
		"promote limit":  func(c *Config) { c.Waves.PromoteLimitMax = 0 },
		"remove limit":   func(c *Config) { c.Waves.RemoveLimitMax = -1 },
		"promote phrase": func(c *Config) { c.Waves.PromotePhrase = "  " },
		"remove phrase":  func(c *Config) { c.Waves.RemovePhrase = "" },
	}
	for name, mutate := range cases {
		cfg := Default()
		mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}
