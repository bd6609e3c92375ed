package config

import (
	"strings"
	"time"

	"github.com/avani23/linechat/pkg/chat"
)

// Standard ports for the transports and the metrics endpoint.
const (
	DefaultTCPPort     = 7667
	DefaultWSPort      = 7668
	DefaultMetricsPort = 9090
)

// DefaultIdleTimeout is how long a session may stay silent before the
// server disconnects it.
const DefaultIdleTimeout = chat.DefaultIdleTimeout

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Called after loading configuration from file and environment variables to
// fill in missing values.
//
// Default strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
//   - Transport-specific defaults beyond the basics are handled by the
//     transport packages themselves
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyChatDefaults(&cfg.Chat)
	applyAdaptersDefaults(&cfg.Adapters)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyServerDefaults sets server defaults.
func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = DefaultMetricsPort
	}
}

// applyChatDefaults sets chat behavior defaults.
//
// An absent idle_timeout gets the standard value. A negative value is the
// explicit way to disable idle disconnection (0 would be indistinguishable
// from "not set" after decoding), and is normalized to 0 here.
func applyChatDefaults(cfg *ChatConfig) {
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.IdleTimeout < 0 {
		cfg.IdleTimeout = 0
	}
}

// applyAdaptersDefaults seeds the raw adapter sections.
//
// The TCP transport is enabled by default; WebSocket is opt-in. Keys
// already present in the configuration are preserved.
func applyAdaptersDefaults(cfg *AdaptersConfig) {
	if cfg.TCP == nil {
		cfg.TCP = make(map[string]any)
	}
	if cfg.WS == nil {
		cfg.WS = make(map[string]any)
	}

	if _, ok := cfg.TCP["enabled"]; !ok {
		cfg.TCP["enabled"] = true
	}
	if _, ok := cfg.TCP["port"]; !ok {
		cfg.TCP["port"] = DefaultTCPPort
	}
	if _, ok := cfg.TCP["shutdown_timeout"]; !ok {
		cfg.TCP["shutdown_timeout"] = "10s"
	}

	if _, ok := cfg.WS["enabled"]; !ok {
		cfg.WS["enabled"] = false
	}
	if _, ok := cfg.WS["port"]; !ok {
		cfg.WS["port"] = DefaultWSPort
	}
	if _, ok := cfg.WS["shutdown_timeout"]; !ok {
		cfg.WS["shutdown_timeout"] = "10s"
	}
}

// GetDefaultConfig returns a fully populated default configuration.
//
// Used by the init-config command to generate a starter config file and by
// tests that need a known-good baseline.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
