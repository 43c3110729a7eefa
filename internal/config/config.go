// Package config handles global configuration loading using viper.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// GlobalConfig is the top-level static configuration, mapped to the
// `packetcore:` root key in YAML.
type GlobalConfig struct {
	Engine  EngineConfig  `mapstructure:"engine"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Log     LogConfig     `mapstructure:"log"`
	Trace   TraceConfig   `mapstructure:"trace"`
}

// ─── Engine ───

// EngineConfig configures the analyzer chain, tunnel decapsulation,
// and IP fragment reassembly a Driver builds itself from.
type EngineConfig struct {
	Tunnel       TunnelConfig       `mapstructure:"tunnel"`
	IPReassembly IPReassemblyConfig `mapstructure:"ip_reassembly"`
}

// TunnelConfig enables or disables individual tunnel analyzers and
// bounds how deeply they may nest.
type TunnelConfig struct {
	GRE            bool   `mapstructure:"gre"`
	IPIP           bool   `mapstructure:"ipip"`
	VXLAN          bool   `mapstructure:"vxlan"`
	Geneve         bool   `mapstructure:"geneve"`
	MaxDepth       int    `mapstructure:"max_depth"`
	IPTunnelTimeout string `mapstructure:"ip_tunnel_timeout"`
}

// IPReassemblyConfig controls IP fragment reassembly.
type IPReassemblyConfig struct {
	Timeout                 string `mapstructure:"timeout"`
	MaxFragmentsPerDatagram int    `mapstructure:"max_fragments_per_datagram"`
	MaxReassembleSize       int    `mapstructure:"max_reassemble_size"`
}

// ─── Metrics ───

// MetricsConfig contains Prometheus metrics HTTP endpoint settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// ─── Log ───

// LogConfig contains logging settings.
type LogConfig struct {
	Level   string           `mapstructure:"level"`  // debug / info / warn / error
	Format  string           `mapstructure:"format"` // json / text
	Outputs LogOutputsConfig `mapstructure:"outputs"`
}

// LogOutputsConfig contains structured log output destinations.
type LogOutputsConfig struct {
	File FileOutputConfig `mapstructure:"file"`
}

// FileOutputConfig configures file log output.
type FileOutputConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Path     string         `mapstructure:"path"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	MaxBackups int  `mapstructure:"max_backups"`
	Compress   bool `mapstructure:"compress"`
}

// ─── Trace ───

// TraceConfig configures the pipeline's raw-frame trace dump: a pcap
// file every packet with PacketBuffer.DumpPacket set is written to,
// the same "optional file sink, off by default" shape as LogConfig's
// file output.
type TraceConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// ─── Loading ───

// configRoot is the top-level wrapper matching the YAML structure
// `packetcore: ...`.
type configRoot struct {
	PacketCore GlobalConfig `mapstructure:"packetcore"`
}

// Load loads configuration from file. The YAML file uses `packetcore:`
// as its root key; env vars use the PACKETCORE_ prefix (e.g.
// PACKETCORE_LOG_LEVEL).
func Load(path string) (*GlobalConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return unmarshal(v)
}

// LoadOrDefault behaves like Load, except an empty path skips reading
// a config file entirely and returns the built-in defaults (still
// subject to PACKETCORE_-prefixed env overrides).
func LoadOrDefault(path string) (*GlobalConfig, error) {
	if path == "" {
		return unmarshal(viper.New())
	}
	return Load(path)
}

func unmarshal(v *viper.Viper) (*GlobalConfig, error) {
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.PacketCore

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("packetcore.log.level", "info")
	v.SetDefault("packetcore.log.format", "json")
	v.SetDefault("packetcore.log.outputs.file.enabled", false)
	v.SetDefault("packetcore.log.outputs.file.rotation.max_size_mb", 100)
	v.SetDefault("packetcore.log.outputs.file.rotation.max_age_days", 30)
	v.SetDefault("packetcore.log.outputs.file.rotation.max_backups", 5)
	v.SetDefault("packetcore.log.outputs.file.rotation.compress", true)

	v.SetDefault("packetcore.metrics.enabled", true)
	v.SetDefault("packetcore.metrics.listen", ":9091")
	v.SetDefault("packetcore.metrics.path", "/metrics")

	v.SetDefault("packetcore.engine.tunnel.gre", true)
	v.SetDefault("packetcore.engine.tunnel.ipip", true)
	v.SetDefault("packetcore.engine.tunnel.vxlan", true)
	v.SetDefault("packetcore.engine.tunnel.geneve", true)
	v.SetDefault("packetcore.engine.tunnel.max_depth", 6)
	v.SetDefault("packetcore.engine.tunnel.ip_tunnel_timeout", "5m")

	v.SetDefault("packetcore.engine.ip_reassembly.timeout", "30s")
	v.SetDefault("packetcore.engine.ip_reassembly.max_fragments_per_datagram", 10000)
	v.SetDefault("packetcore.engine.ip_reassembly.max_reassemble_size", 4 << 20)

	v.SetDefault("packetcore.trace.enabled", false)
}

// ValidateAndApplyDefaults validates configuration values that
// setDefaults cannot express as a plain default.
func (cfg *GlobalConfig) ValidateAndApplyDefaults() error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug/info/warn/error)", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		return fmt.Errorf("invalid log format: %s (must be json/text)", cfg.Log.Format)
	}
	if cfg.Engine.Tunnel.MaxDepth <= 0 {
		return fmt.Errorf("engine.tunnel.max_depth must be positive, got %d", cfg.Engine.Tunnel.MaxDepth)
	}
	if cfg.Trace.Enabled && cfg.Trace.Path == "" {
		return fmt.Errorf("trace.enabled requires trace.path")
	}
	return nil
}
