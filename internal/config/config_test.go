package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, `
packetcore:
  log:
    level: debug
    format: json
  metrics:
    enabled: true
    listen: "0.0.0.0:9090"
    path: /metrics
  engine:
    tunnel:
      gre: true
      ipip: true
      vxlan: false
      geneve: true
      max_depth: 3
    ip_reassembly:
      max_fragments_per_datagram: 500
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "0.0.0.0:9090", cfg.Metrics.Listen)
	assert.False(t, cfg.Engine.Tunnel.VXLAN)
	assert.Equal(t, 3, cfg.Engine.Tunnel.MaxDepth)
	assert.Equal(t, 500, cfg.Engine.IPReassembly.MaxFragmentsPerDatagram)
}

func TestLoadInvalidLogLevel(t *testing.T) {
	path := writeConfig(t, `
packetcore:
  log:
    level: invalid
    format: json
`)
	_, err := Load(path)
	assert.Error(t, err, "expected error for invalid log level")
}

func TestLoadInvalidLogFormat(t *testing.T) {
	path := writeConfig(t, `
packetcore:
  log:
    level: info
    format: xml
`)
	_, err := Load(path)
	assert.Error(t, err, "expected error for invalid log format")
}

func TestLoadInvalidMaxDepth(t *testing.T) {
	path := writeConfig(t, `
packetcore:
  engine:
    tunnel:
      max_depth: 0
`)
	_, err := Load(path)
	assert.Error(t, err, "expected error for non-positive max_depth")
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
packetcore:
  log:
    level: info
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, ":9091", cfg.Metrics.Listen)
	assert.Equal(t, 6, cfg.Engine.Tunnel.MaxDepth)
	assert.True(t, cfg.Engine.Tunnel.GRE && cfg.Engine.Tunnel.IPIP && cfg.Engine.Tunnel.VXLAN && cfg.Engine.Tunnel.Geneve, "expected all tunnel analyzers enabled by default")
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, `
packetcore:
  log:
    level: info
    format: json
`)
	os.Setenv("PACKETCORE_LOG_LEVEL", "debug")
	defer os.Unsetenv("PACKETCORE_LOG_LEVEL")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level, "expected env var override")
}
