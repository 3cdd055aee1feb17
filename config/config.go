/*
Package config loads server settings from the environment.

PURPOSE:
  A .env file is read first when present; variables already set in the
  process environment win over the file. Command-line flags in
  cmd/server override both.

VARIABLES:
  ENV                  development | production (default: development)
  PORT                 HTTP port (default: 8080)
  DB_DRIVER            memory | sqlite | postgres (default: sqlite)
  DB_PATH              SQLite file, ":memory:" allowed (default: calendar.db)
  DATABASE_URL         Postgres connection string (required for postgres)
  ALLOCATION_TEMPLATE  JSON allocation template file (optional)
  CORS_ORIGINS         Comma-separated allowed origins (optional)
  ROLLOVER_SCHEDULE    Cron spec for allocation seeding (default: monthly)
  ROLLOVER_ENABLED     false disables the scheduler (default: true)

SEE ALSO:
  - logger.go: zap logger per environment
  - cmd/server/main.go: startup
*/
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"
)

const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Environment        string
	Port               int
	DBDriver           string
	DBPath             string
	DatabaseURL        string
	AllocationTemplate string
	CORSOrigins        []string
	RolloverSchedule   string
	RolloverEnabled    bool

	// EnvFileLoaded reports whether a .env file was read.
	EnvFileLoaded bool
}

// Load reads envFile (when it exists) and then the environment. An empty
// envFile means ".env".
func Load(envFile string) (*Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	loaded := true
	if err := godotenv.Load(envFile); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read %s: %w", envFile, err)
		}
		loaded = false
	}

	cfg := &Config{
		Environment:        getenv("ENV", "development"),
		DBDriver:           getenv("DB_DRIVER", DriverSQLite),
		DBPath:             getenv("DB_PATH", "calendar.db"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		AllocationTemplate: os.Getenv("ALLOCATION_TEMPLATE"),
		CORSOrigins:        splitList(os.Getenv("CORS_ORIGINS")),
		RolloverSchedule:   getenv("ROLLOVER_SCHEDULE", "0 5 1 * *"),
		EnvFileLoaded:      loaded,
	}

	var errs error
	port, err := strconv.Atoi(getenv("PORT", "8080"))
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("PORT: %w", err))
	}
	cfg.Port = port
	enabled, err := strconv.ParseBool(getenv("ROLLOVER_ENABLED", "true"))
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("ROLLOVER_ENABLED: %w", err))
	}
	cfg.RolloverEnabled = enabled

	if errs != nil {
		return nil, errs
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs error
	if c.Port <= 0 || c.Port > 65535 {
		errs = multierr.Append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	switch c.DBDriver {
	case DriverMemory, DriverSQLite:
	case DriverPostgres:
		if c.DatabaseURL == "" {
			errs = multierr.Append(errs, errors.New("DATABASE_URL is required for the postgres driver"))
		}
	default:
		errs = multierr.Append(errs, fmt.Errorf("unknown DB_DRIVER %q", c.DBDriver))
	}
	if c.DBDriver == DriverSQLite && c.DBPath == "" {
		errs = multierr.Append(errs, errors.New("DB_PATH is required for the sqlite driver"))
	}
	return errs
}

func (c *Config) IsProduction() bool { return c.Environment == "production" }

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
