// Package config loads process configuration from PIZZA_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	env "github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Prefix is prepended to every environment variable name.
const Prefix = "PIZZA_"

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"

	LedgerStore = "store"
	LedgerRedis = "redis"
)

// Config is the application configuration. The signing secret and token lifetime are
// read once at startup and never change afterwards.
type Config struct {
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":3000"`
	// GRPCAddr serves the gRPC health service; empty disables it.
	GRPCAddr string `env:"GRPC_ADDR" envDefault:":9090"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	StorageDriver        string `env:"STORAGE_DRIVER" envDefault:"postgres"`
	PostgresDSN          string `env:"PG_DSN"`
	RunMigrationsOnStart bool   `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`
	// AllowEphemeral permits keeping revocations in process memory, where they are
	// lost on restart. Development only.
	AllowEphemeral bool `env:"ALLOW_EPHEMERAL" envDefault:"false"`

	LedgerDriver string      `env:"LEDGER_DRIVER" envDefault:"store"`
	Redis        RedisConfig `envPrefix:"REDIS_"`

	Auth AuthConfig `envPrefix:"AUTH_"`

	RateLimitBurst     int     `env:"RATE_LIMIT_BURST" envDefault:"20"`
	RateLimitPerSecond float64 `env:"RATE_LIMIT_PER_SECOND" envDefault:"10"`
	MaxBodyBytes       int64   `env:"MAX_BODY_BYTES" envDefault:"1048576"`
}

// RedisConfig configures the Redis revocation ledger.
type RedisConfig struct {
	Addr     string `env:"ADDR"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB" envDefault:"0"`
	Prefix   string `env:"PREFIX" envDefault:"revoked:"`
}

// AuthConfig configures token issuance, hashing and the bootstrap admin.
type AuthConfig struct {
	Secret          string        `env:"SECRET"`
	Issuer          string        `env:"ISSUER" envDefault:"jwt-pizza"`
	TokenTTL        time.Duration `env:"TOKEN_TTL" envDefault:"24h"`
	BcryptCost      int           `env:"BCRYPT_COST" envDefault:"10"`
	CompactInterval time.Duration `env:"COMPACT_INTERVAL" envDefault:"1h"`
	FranchiseeScope bool          `env:"FRANCHISEE_SCOPE" envDefault:"false"`

	BootstrapAdminName     string `env:"BOOTSTRAP_ADMIN_NAME" envDefault:"admin"`
	BootstrapAdminEmail    string `env:"BOOTSTRAP_ADMIN_EMAIL"`
	BootstrapAdminPassword string `env:"BOOTSTRAP_ADMIN_PASSWORD"`
}

// Load reads an optional .env file and then the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return Config{}, fmt.Errorf("load .env file: %w", err)
		}
	}
	return Parse()
}

// Parse reads the environment only.
func Parse() (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: Prefix}); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	cfg.StorageDriver = strings.ToLower(strings.TrimSpace(cfg.StorageDriver))
	cfg.LedgerDriver = strings.ToLower(strings.TrimSpace(cfg.LedgerDriver))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the service cannot start with.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Auth.Secret) == "" {
		errs = append(errs, errors.New(Prefix+"AUTH_SECRET is required"))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New(Prefix+"AUTH_TOKEN_TTL must be positive"))
	}
	switch c.StorageDriver {
	case StorageMemory:
	case StoragePostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			errs = append(errs, errors.New(Prefix+"PG_DSN is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.StorageDriver))
	}
	switch c.LedgerDriver {
	case LedgerStore:
	case LedgerRedis:
		if strings.TrimSpace(c.Redis.Addr) == "" {
			errs = append(errs, errors.New(Prefix+"REDIS_ADDR is required for the redis ledger"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown ledger driver %q", c.LedgerDriver))
	}
	if c.StorageDriver == StorageMemory && c.LedgerDriver == LedgerStore && !c.AllowEphemeral {
		errs = append(errs, errors.New("memory storage keeps revocations in process; use the redis ledger or set "+Prefix+"ALLOW_EPHEMERAL=true"))
	}
	if c.RateLimitBurst < 0 || c.RateLimitPerSecond < 0 {
		errs = append(errs, errors.New("rate limit settings must not be negative"))
	}
	if c.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New(Prefix+"MAX_BODY_BYTES must be positive"))
	}
	return errors.Join(errs...)
}
