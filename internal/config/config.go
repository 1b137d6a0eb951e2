// Package config loads runtime settings from the environment, an optional
// .env file and an optional TOML overlay.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"github.com/clickconstruction/pipetooling/internal/bom"
	"github.com/clickconstruction/pipetooling/internal/takeoff"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

type Config struct {
	Port         string
	DatabaseURL  string
	StoreDriver  string
	SQLitePath   string
	AuthSecret   string
	AuthIssuer   string
	AuthAudience string
	LogLevel     string
	LogFormat    string

	MaxDepth     int
	AtomicWrites bool
	NameLayout   string
}

// fileConfig is the TOML overlay. Pointers tell "unset" from zero values.
type fileConfig struct {
	BOM struct {
		MaxDepth *int `toml:"max_depth"`
	} `toml:"bom"`
	Takeoff struct {
		AtomicWrites *bool  `toml:"atomic_writes"`
		NameLayout   string `toml:"po_name_layout"`
	} `toml:"takeoff"`
}

// Load reads envFile (missing is fine) and then the process environment.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv. Precedence: environment, then the
// CONFIG_FILE overlay, then defaults.
func FromEnv(getenv func(string) string) (Config, error) {
	cfg := Config{
		Port:         "8080",
		StoreDriver:  DriverPostgres,
		SQLitePath:   "pipetooling.db",
		LogLevel:     "info",
		LogFormat:    "json",
		MaxDepth:     bom.DefaultMaxDepth,
		AtomicWrites: true,
		NameLayout:   takeoff.DefaultNameLayout,
	}

	if path := getenv("CONFIG_FILE"); path != "" {
		if err := cfg.overlay(path); err != nil {
			return Config{}, err
		}
	}

	setString(getenv, "PORT", &cfg.Port)
	setString(getenv, "DATABASE_URL", &cfg.DatabaseURL)
	setString(getenv, "STORE_DRIVER", &cfg.StoreDriver)
	setString(getenv, "SQLITE_PATH", &cfg.SQLitePath)
	setString(getenv, "AUTH_SECRET", &cfg.AuthSecret)
	setString(getenv, "AUTH_ISSUER", &cfg.AuthIssuer)
	setString(getenv, "AUTH_AUDIENCE", &cfg.AuthAudience)
	setString(getenv, "LOG_LEVEL", &cfg.LogLevel)
	setString(getenv, "LOG_FORMAT", &cfg.LogFormat)

	if v := getenv("BOM_MAX_DEPTH"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("BOM_MAX_DEPTH: %w", err)
		}
		cfg.MaxDepth = n
	}
	if v := getenv("TAKEOFF_ATOMIC_WRITES"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("TAKEOFF_ATOMIC_WRITES: %w", err)
		}
		cfg.AtomicWrites = b
	}

	cfg.StoreDriver = strings.ToLower(cfg.StoreDriver)
	return cfg, cfg.validate()
}

func (c *Config) overlay(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	if fc.BOM.MaxDepth != nil {
		c.MaxDepth = *fc.BOM.MaxDepth
	}
	if fc.Takeoff.AtomicWrites != nil {
		c.AtomicWrites = *fc.Takeoff.AtomicWrites
	}
	if fc.Takeoff.NameLayout != "" {
		c.NameLayout = fc.Takeoff.NameLayout
	}
	return nil
}

func (c Config) validate() error {
	switch c.StoreDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	case DriverSQLite, DriverMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.MaxDepth <= 0 {
		return fmt.Errorf("max depth must be positive, got %d", c.MaxDepth)
	}
	return nil
}

func setString(getenv func(string) string, key string, dst *string) {
	if v := getenv(key); v != "" {
		*dst = v
	}
}

// GetEnv returns the environment value for key, or fallback when unset.
func GetEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
