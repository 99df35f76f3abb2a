// This file contains the lightweight configuration for standalone operation.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// LiteConfig is a simplified configuration for standalone operation.
// It requires no external databases and uses sensible defaults.
type LiteConfig struct {
	// Data storage
	DataDir string // Base directory for the SQLite fact store

	// Cache settings
	CacheMaxItems int           // Maximum graphs in memory cache
	CacheTTL      time.Duration // Graph cache TTL

	// Graph engine
	OntologyFile string // Optional YAML overlay for the built-in ontology

	// Transport settings
	Transport string // Transport type: stdio, http
	HTTPHost  string
	HTTPPort  int // HTTP port (if transport is http)

	// Logging
	LogLevel  string // Log level: debug, info, warn, error
	LogFormat string // Log format: json, text
}

// DefaultLiteConfig returns a configuration with sensible defaults.
func DefaultLiteConfig() *LiteConfig {
	homeDir, _ := os.UserHomeDir()

	return &LiteConfig{
		DataDir:       filepath.Join(homeDir, ".clinical-kg"),
		CacheMaxItems: 1000,
		CacheTTL:      time.Hour,
		Transport:     "stdio",
		HTTPHost:      "localhost",
		HTTPPort:      8081,
		LogLevel:      "info",
		LogFormat:     "json",
	}
}

// LoadLiteConfig loads configuration from CLINICAL_KG_* environment variables.
// Unset or unparsable values keep their defaults.
func LoadLiteConfig() *LiteConfig {
	cfg := DefaultLiteConfig()

	if v := os.Getenv(EnvPrefix + "_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	if v := os.Getenv(EnvPrefix + "_CACHE_MAX_ITEMS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.CacheMaxItems = n
		}
	}
	if v := os.Getenv(EnvPrefix + "_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.CacheTTL = d
		}
	}

	cfg.OntologyFile = os.Getenv(EnvPrefix + "_ONTOLOGY_FILE")

	if v := os.Getenv(EnvPrefix + "_TRANSPORT"); v != "" {
		cfg.Transport = v
	}
	if v := os.Getenv(EnvPrefix + "_HTTP_HOST"); v != "" {
		cfg.HTTPHost = v
	}
	if v := os.Getenv(EnvPrefix + "_HTTP_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.HTTPPort = n
		}
	}

	if v := os.Getenv(EnvPrefix + "_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv(EnvPrefix + "_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}

	return cfg
}

// FactsDBPath returns the path to the SQLite clinical fact store.
func (c *LiteConfig) FactsDBPath() string {
	return filepath.Join(c.DataDir, "facts.db")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *LiteConfig) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0755)
}
