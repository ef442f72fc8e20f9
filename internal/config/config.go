// Package config reads the daemon's runtime settings from TRAPGRID_*
// environment variables.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Backend selects where the key-value state (wallet, seeds, profile) lives.
// The rounds ledger always lives in SQLite.
type Backend string

const (
	BackendSQLite Backend = "sqlite"
	BackendGdata  Backend = "gdata"
	BackendMemory Backend = "memory"
)

// Config holds the daemon's runtime settings.
type Config struct {
	Listen         string   `env:"TRAPGRID_LISTEN"          envDefault:"127.0.0.1:8077"`
	DataDir        string   `env:"TRAPGRID_DATA_DIR"        envDefault:"data"`
	DBPath         string   `env:"TRAPGRID_DB_PATH"`
	KVBackend      Backend  `env:"TRAPGRID_KV_BACKEND"      envDefault:"sqlite"`
	ClientSeed     string   `env:"TRAPGRID_CLIENT_SEED"`
	CORSOrigins    []string `env:"TRAPGRID_CORS_ORIGINS"    envSeparator:","`
	KeyringService string   `env:"TRAPGRID_KEYRING_SERVICE" envDefault:"trapgrid"`
}

// Load reads and validates configuration from the environment. An empty
// TRAPGRID_DB_PATH resolves to trapgrid.db inside the data dir.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse env: %w", err)
	}

	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.DataDir, "trapgrid.db")
	}
	cfg.CORSOrigins = trimCSV(cfg.CORSOrigins)

	switch cfg.KVBackend {
	case BackendSQLite, BackendGdata, BackendMemory:
	default:
		return Config{}, fmt.Errorf("config: unknown kv backend %q (want sqlite, gdata, or memory)", cfg.KVBackend)
	}

	return cfg, nil
}

// SecretsPath is the seed vault's file fallback for hosts without an OS
// keyring.
func (c Config) SecretsPath() string {
	return filepath.Join(c.DataDir, "secrets.json")
}

// trimCSV removes empty entries from a comma-split slice.
func trimCSV(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	result := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			result = append(result, v)
		}
	}
	if len(result) == 0 {
		return nil
	}
	return result
}
