package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/ehr/omopfhir/internal/platform/db"
	"github.com/ehr/omopfhir/internal/platform/search"
)

type Config struct {
	Port              string        `mapstructure:"PORT"`
	Env               string        `mapstructure:"ENV"`
	LogLevel          string        `mapstructure:"LOG_LEVEL"`
	DatabaseURL       string        `mapstructure:"DATABASE_URL"`
	DBDriver          string        `mapstructure:"DB_DRIVER"`
	DBSchema          string        `mapstructure:"DB_SCHEMA"`
	DBMaxConns        int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns        int32         `mapstructure:"DB_MIN_CONNS"`
	MigrationsDir     string        `mapstructure:"MIGRATIONS_DIR"`
	StatementTimeout  time.Duration `mapstructure:"STATEMENT_TIMEOUT"`
	EmptySearchPolicy string        `mapstructure:"EMPTY_SEARCH_POLICY"`
	SearchParamsFile  string        `mapstructure:"SEARCH_PARAMS_FILE"`
	AuthSigningKey    string        `mapstructure:"AUTH_SIGNING_KEY"`
	AuthIssuer        string        `mapstructure:"AUTH_ISSUER"`
	AuthAudience      string        `mapstructure:"AUTH_AUDIENCE"`
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL", "DATABASE_URL", "DB_DRIVER", "DB_SCHEMA",
	"DB_MAX_CONNS", "DB_MIN_CONNS", "MIGRATIONS_DIR", "STATEMENT_TIMEOUT",
	"EMPTY_SEARCH_POLICY", "SEARCH_PARAMS_FILE", "AUTH_SIGNING_KEY",
	"AUTH_ISSUER", "AUTH_AUDIENCE",
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first without overriding variables already set.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_DRIVER", db.DriverPgx)
	v.SetDefault("DB_SCHEMA", "public")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("MIGRATIONS_DIR", "migrations")
	v.SetDefault("STATEMENT_TIMEOUT", "30s")
	v.SetDefault("EMPTY_SEARCH_POLICY", string(search.MatchAll))

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		v.BindEnv(k)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// AuthEnabled reports whether bearer tokens are verified.
func (c *Config) AuthEnabled() bool {
	return c.AuthSigningKey != ""
}

// Level returns the parsed LOG_LEVEL.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || c.LogLevel == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

// Validate checks the enumerated settings. Outside development a signing key
// is required so that the FHIR endpoints are never served unauthenticated.
func (c *Config) Validate() error {
	switch c.DBDriver {
	case db.DriverPgx, db.DriverPostgres, db.DriverSQLite:
	default:
		return fmt.Errorf("DB_DRIVER must be %q, %q or %q, got %q", db.DriverPgx, db.DriverPostgres, db.DriverSQLite, c.DBDriver)
	}
	if !db.ValidSchema(c.DBSchema) {
		return fmt.Errorf("DB_SCHEMA %q is not a valid schema name", c.DBSchema)
	}
	if _, err := search.ParseEmptySearchPolicy(c.EmptySearchPolicy); err != nil {
		return err
	}
	if c.StatementTimeout < 0 {
		return fmt.Errorf("STATEMENT_TIMEOUT must not be negative, got %s", c.StatementTimeout)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	if !c.IsDev() && !c.AuthEnabled() {
		return fmt.Errorf("AUTH_SIGNING_KEY is required when ENV=%q", c.Env)
	}
	return nil
}
