package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLiteConfig(t *testing.T) {
	cfg := DefaultLiteConfig()

	assert.NotEmpty(t, cfg.DataDir)
	assert.Equal(t, ".clinical-kg", filepath.Base(cfg.DataDir))
	assert.Equal(t, 1000, cfg.CacheMaxItems)
	assert.Equal(t, time.Hour, cfg.CacheTTL)
	assert.Equal(t, "stdio", cfg.Transport)
	assert.Equal(t, 8081, cfg.HTTPPort)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoadLiteConfig_Defaults(t *testing.T) {
	clearEnvVars(t)

	cfg := LoadLiteConfig()

	assert.NotEmpty(t, cfg.DataDir)
	assert.Equal(t, 1000, cfg.CacheMaxItems)
	assert.Equal(t, "stdio", cfg.Transport)
	assert.Empty(t, cfg.OntologyFile)
}

func TestLoadLiteConfig_EnvironmentOverrides(t *testing.T) {
	clearEnvVars(t)

	t.Setenv("CLINICAL_KG_DATA_DIR", "/tmp/test-clinical-kg")
	t.Setenv("CLINICAL_KG_CACHE_MAX_ITEMS", "500")
	t.Setenv("CLINICAL_KG_CACHE_TTL", "12h")
	t.Setenv("CLINICAL_KG_ONTOLOGY_FILE", "/etc/clinical-kg/ontology.yaml")
	t.Setenv("CLINICAL_KG_TRANSPORT", "http")
	t.Setenv("CLINICAL_KG_HTTP_PORT", "9090")
	t.Setenv("CLINICAL_KG_LOG_LEVEL", "debug")

	cfg := LoadLiteConfig()

	assert.Equal(t, "/tmp/test-clinical-kg", cfg.DataDir)
	assert.Equal(t, 500, cfg.CacheMaxItems)
	assert.Equal(t, 12*time.Hour, cfg.CacheTTL)
	assert.Equal(t, "/etc/clinical-kg/ontology.yaml", cfg.OntologyFile)
	assert.Equal(t, "http", cfg.Transport)
	assert.Equal(t, 9090, cfg.HTTPPort)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadLiteConfig_IgnoresInvalidValues(t *testing.T) {
	clearEnvVars(t)

	t.Setenv("CLINICAL_KG_CACHE_MAX_ITEMS", "-3")
	t.Setenv("CLINICAL_KG_CACHE_TTL", "soon")
	t.Setenv("CLINICAL_KG_HTTP_PORT", "http")

	cfg := LoadLiteConfig()

	assert.Equal(t, 1000, cfg.CacheMaxItems)
	assert.Equal(t, time.Hour, cfg.CacheTTL)
	assert.Equal(t, 8081, cfg.HTTPPort)
}

func TestLiteConfig_FactsDBPath(t *testing.T) {
	cfg := &LiteConfig{DataDir: "/home/user/.clinical-kg"}

	assert.Equal(t, "/home/user/.clinical-kg/facts.db", cfg.FactsDBPath())
}

func TestLiteConfig_EnsureDataDir(t *testing.T) {
	cfg := &LiteConfig{DataDir: filepath.Join(t.TempDir(), "clinical-kg")}

	require.NoError(t, cfg.EnsureDataDir())

	info, err := os.Stat(cfg.DataDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func clearEnvVars(t *testing.T) {
	t.Helper()
	for _, v := range []string{
		"DATA_DIR", "CACHE_MAX_ITEMS", "CACHE_TTL", "ONTOLOGY_FILE",
		"TRANSPORT", "HTTP_HOST", "HTTP_PORT", "LOG_LEVEL", "LOG_FORMAT",
	} {
		t.Setenv(EnvPrefix+"_"+v, "")
	}
}
