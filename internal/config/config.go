package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/ovaphlow/pitchfork/service-account/pkg/database"
	"github.com/ovaphlow/pitchfork/service-account/pkg/utilities"
)

// Config is the full service configuration, read from the environment.
type Config struct {
	HTTPAddr      string `env:"HTTP_ADDR" envDefault:"0.0.0.0:8431"`
	CORSOrigin    string `env:"CORS_ORIGIN" envDefault:"http://localhost:3000"`
	TrustProxy    bool   `env:"TRUST_PROXY" envDefault:"false"`
	SnowflakeNode int64  `env:"SNOWFLAKE_NODE" envDefault:"1"`
	BcryptCost    int    `env:"BCRYPT_COST" envDefault:"12"`

	Log      utilities.Config
	Database database.Config
	Session  SessionConfig
	Redis    RedisConfig
	Reset    ResetConfig
	Audit    AuditConfig
}

type SessionConfig struct {
	// Secret signs session tokens. When empty a random per-process secret is used.
	Secret string        `env:"SESSION_SECRET"`
	Issuer string        `env:"SESSION_ISSUER" envDefault:"service-account"`
	TTL    time.Duration `env:"SESSION_TTL" envDefault:"12h"`
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

type ResetConfig struct {
	RequireCode bool          `env:"RESET_REQUIRE_CODE" envDefault:"false"`
	CodeTTL     time.Duration `env:"RESET_CODE_TTL" envDefault:"10m"`
	MaxAttempts int           `env:"RESET_CODE_MAX_ATTEMPTS" envDefault:"5"`
}

type AuditConfig struct {
	Async      bool `env:"AUDIT_ASYNC" envDefault:"false"`
	BufferSize int  `env:"AUDIT_BUFFER_SIZE" envDefault:"256"`
	DropIfFull bool `env:"AUDIT_DROP_IF_FULL" envDefault:"false"`
}

// Load parses the environment into a Config and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects combinations the service cannot run with.
func (c Config) Validate() error {
	if c.SnowflakeNode < 0 || c.SnowflakeNode > 1023 {
		return fmt.Errorf("SNOWFLAKE_NODE must be within 0..1023, got %d", c.SnowflakeNode)
	}
	if c.Reset.RequireCode && c.Redis.Addr == "" {
		return fmt.Errorf("RESET_REQUIRE_CODE needs REDIS_ADDR")
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive")
	}
	return nil
}
