package config

import (
	"strings"
	"testing"
	"time"
)

func TestParseDefaults(t *testing.T) {
	t.Setenv("PIZZA_AUTH_SECRET", "s3cret")
	t.Setenv("PIZZA_PG_DSN", "postgres://pizza@localhost/pizza")

	cfg, err := Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.HTTPAddr != ":3000" || cfg.StorageDriver != StoragePostgres || cfg.LedgerDriver != LedgerStore || cfg.AllowEphemeral {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Auth.TokenTTL != 24*time.Hour || cfg.Auth.Issuer != "jwt-pizza" {
		t.Fatalf("unexpected auth defaults: %+v", cfg.Auth)
	}
	if cfg.Redis.Prefix != "revoked:" {
		t.Fatalf("unexpected redis prefix: %q", cfg.Redis.Prefix)
	}
	if cfg.MaxBodyBytes != 1<<20 {
		t.Fatalf("unexpected body limit: %d", cfg.MaxBodyBytes)
	}
}

func TestParseOverrides(t *testing.T) {
	t.Setenv("PIZZA_AUTH_SECRET", "s3cret")
	t.Setenv("PIZZA_AUTH_TOKEN_TTL", "15m")
	t.Setenv("PIZZA_AUTH_FRANCHISEE_SCOPE", "true")
	t.Setenv("PIZZA_STORAGE_DRIVER", "Postgres")
	t.Setenv("PIZZA_PG_DSN", "postgres://pizza@localhost/pizza")
	t.Setenv("PIZZA_LEDGER_DRIVER", "redis")
	t.Setenv("PIZZA_REDIS_ADDR", "localhost:6379")
	t.Setenv("PIZZA_REDIS_DB", "3")

	cfg, err := Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Auth.TokenTTL != 15*time.Minute || !cfg.Auth.FranchiseeScope {
		t.Fatalf("unexpected auth config: %+v", cfg.Auth)
	}
	if cfg.StorageDriver != StoragePostgres || cfg.Redis.Addr != "localhost:6379" || cfg.Redis.DB != 3 {
		t.Fatalf("unexpected storage config: %+v", cfg)
	}
}

func TestParseRejectsEphemeralRevocationsByDefault(t *testing.T) {
	t.Setenv("PIZZA_AUTH_SECRET", "s3cret")
	t.Setenv("PIZZA_STORAGE_DRIVER", "memory")

	if _, err := Parse(); err == nil || !strings.Contains(err.Error(), "ALLOW_EPHEMERAL") {
		t.Fatalf("expected in-memory revocations rejected, got %v", err)
	}

	t.Setenv("PIZZA_ALLOW_EPHEMERAL", "true")
	if _, err := Parse(); err != nil {
		t.Fatalf("explicit opt-in rejected: %v", err)
	}

	t.Setenv("PIZZA_ALLOW_EPHEMERAL", "false")
	t.Setenv("PIZZA_LEDGER_DRIVER", "redis")
	t.Setenv("PIZZA_REDIS_ADDR", "localhost:6379")
	if _, err := Parse(); err != nil {
		t.Fatalf("memory users with redis ledger rejected: %v", err)
	}
}

func TestValidate(t *testing.T) {
	base := Config{
		StorageDriver:  StorageMemory,
		LedgerDriver:   LedgerStore,
		AllowEphemeral: true,
		MaxBodyBytes:   1,
		Auth:           AuthConfig{Secret: "s", TokenTTL: time.Hour},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := map[string]func(*Config){
		"AUTH_SECRET":     func(c *Config) { c.Auth.Secret = " " },
		"AUTH_TOKEN_TTL":  func(c *Config) { c.Auth.TokenTTL = 0 },
		"PG_DSN":          func(c *Config) { c.StorageDriver = StoragePostgres },
		"REDIS_ADDR":      func(c *Config) { c.LedgerDriver = LedgerRedis },
		"storage driver":  func(c *Config) { c.StorageDriver = "mysql" },
		"ledger driver":   func(c *Config) { c.LedgerDriver = "etcd" },
		"ALLOW_EPHEMERAL": func(c *Config) { c.AllowEphemeral = false },
	}
	for want, mutate := range cases {
		cfg := base
		mutate(&cfg)
		err := cfg.Validate()
		if err == nil || !strings.Contains(err.Error(), want) {
			t.Fatalf("expected error mentioning %q, got %v", want, err)
		}
	}
}
