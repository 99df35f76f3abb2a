package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewManager_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	m, err := NewManager()
	require.NoError(t, err)

	cfg := m.GetConfig()
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, "clinical_kg", cfg.Database.Database)
	assert.Equal(t, 30, m.GetGraphConfig().TemporalWindowDays)
	assert.Equal(t, 180, m.GetGraphConfig().ProcedureWindowDays)
	assert.Equal(t, 0.8, m.GetGraphConfig().HighConfidenceThreshold)
	assert.Equal(t, uint32(5), cfg.CircuitBreaker.FailureThreshold)
	assert.Equal(t, uint32(5), cfg.CircuitBreaker.MaxRequests)
	assert.Equal(t, "stdio", cfg.MCP.TransportType)
	assert.True(t, m.IsDevelopment())
	assert.False(t, m.IsProduction())
	assert.NoError(t, m.Validate())
}

func TestNewManager_EnvironmentOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CLINICAL_KG_SERVER_PORT", "9999")
	t.Setenv("CLINICAL_KG_DATABASE_HOST", "db.internal")
	t.Setenv("CLINICAL_KG_GRAPH_TEMPORAL_WINDOW_DAYS", "14")
	t.Setenv("CLINICAL_KG_CACHE_REDIS_URL", "redis://cache:6379/1")
	t.Setenv("CLINICAL_KG_ENVIRONMENT", "production")

	m, err := NewManager()
	require.NoError(t, err)

	assert.Equal(t, 9999, m.GetServerConfig().Port)
	assert.Equal(t, "db.internal", m.GetDatabaseConfig().Host)
	assert.Equal(t, 14, m.GetGraphConfig().TemporalWindowDays)
	assert.Equal(t, "redis://cache:6379/1", m.GetRedisConnectionString())
	assert.True(t, m.IsProduction())
	assert.Contains(t, m.GetDatabaseConnectionString(), "host=db.internal")
}

func TestNewManagerWithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 7000
graph:
  procedure_window_days: 90
  high_confidence_threshold: 0.9
mcp:
  transport_type: http
`), 0o600))

	m, err := NewManagerWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, 7000, m.GetServerConfig().Port)
	assert.Equal(t, 90, m.GetGraphConfig().ProcedureWindowDays)
	assert.Equal(t, 0.9, m.GetGraphConfig().HighConfidenceThreshold)
	assert.Equal(t, "http", m.GetConfig().MCP.TransportType)
	assert.Equal(t, 30, m.GetGraphConfig().TemporalWindowDays)

	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 7001\n"), 0o600))
	require.NoError(t, m.Reload())
	assert.Equal(t, 7001, m.GetServerConfig().Port)
}

func TestNewManagerWithFile_Missing(t *testing.T) {
	_, err := NewManagerWithFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Chdir(t.TempDir())

	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"bad port", map[string]string{"CLINICAL_KG_SERVER_PORT": "70000"}, "invalid server port"},
		{"threshold above one", map[string]string{"CLINICAL_KG_GRAPH_HIGH_CONFIDENCE_THRESHOLD": "1.5"}, "high confidence threshold"},
		{"negative window", map[string]string{"CLINICAL_KG_GRAPH_PROCEDURE_WINDOW_DAYS": "-1"}, "graph windows"},
		{"unknown transport", map[string]string{"CLINICAL_KG_MCP_TRANSPORT_TYPE": "websocket"}, "invalid MCP transport"},
		{"unknown exporter", map[string]string{"CLINICAL_KG_TRACING_EXPORTER": "zipkin"}, "invalid tracing exporter"},
		{"bad log level", map[string]string{"CLINICAL_KG_LOGGING_LEVEL": "verbose"}, "invalid log level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			m, err := NewManager()
			require.NoError(t, err)
			assert.ErrorContains(t, m.Validate(), tt.wantErr)
		})
	}
}
