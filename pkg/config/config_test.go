package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_DefaultConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	// Write minimal config
	configContent := `
logging:
  level: "INFO"

adapters:
  tcp:
    enabled: true
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	// Verify defaults were applied
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("Expected default output 'stdout', got %q", cfg.Logging.Output)
	}
	if cfg.Server.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown_timeout 30s, got %v", cfg.Server.ShutdownTimeout)
	}
	if cfg.Chat.IdleTimeout != DefaultIdleTimeout {
		t.Errorf("Expected default idle_timeout %v, got %v", DefaultIdleTimeout, cfg.Chat.IdleTimeout)
	}
	if cfg.Adapters.TCP["port"] != DefaultTCPPort {
		t.Errorf("Expected default TCP port %d, got %v", DefaultTCPPort, cfg.Adapters.TCP["port"])
	}
}

func TestLoad_NoConfigFile(t *testing.T) {
	// Use a path that does not exist so the user's real config is not read
	tmpDir := t.TempDir()
	nonExistentPath := filepath.Join(tmpDir, "nonexistent.yaml")

	cfg, err := Load(nonExistentPath)
	if err != nil {
		t.Fatalf("Expected no error with missing config file, got: %v", err)
	}

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default level 'INFO', got %q", cfg.Logging.Level)
	}
	if enabled, _ := cfg.Adapters.TCP["enabled"].(bool); !enabled {
		t.Error("Expected TCP adapter enabled by default")
	}
	if enabled, _ := cfg.Adapters.WS["enabled"].(bool); enabled {
		t.Error("Expected WebSocket adapter disabled by default")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	configContent := `
logging:
  level: INFO
  invalid yaml here [[[
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	if _, err := Load(configPath); err == nil {
		t.Fatal("Expected error for invalid YAML")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
adapters:
  tcp:
    enabled: false
  ws:
    enabled: false
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	if _, err := Load(configPath); err == nil {
		t.Fatal("Expected validation error when all adapters are disabled")
	}
}

func TestLoad_EnvironmentOverride(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
logging:
  level: "INFO"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	t.Setenv("LINECHAT_LOGGING_LEVEL", "DEBUG")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected env override to set level DEBUG, got %q", cfg.Logging.Level)
	}
}

func TestLoad_FileValues(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  shutdown_timeout: 5s

chat:
  idle_timeout: 2m

adapters:
  tcp:
    enabled: true
    port: 9000
    max_connections: 100
    rate_limit:
      commands_per_second: 5
      burst: 10
  ws:
    enabled: true
    port: 9001
    allowed_origins:
      - "https://example.com"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Server.ShutdownTimeout != 5*time.Second {
		t.Errorf("Expected shutdown_timeout 5s, got %v", cfg.Server.ShutdownTimeout)
	}
	if cfg.Chat.IdleTimeout != 2*time.Minute {
		t.Errorf("Expected idle_timeout 2m, got %v", cfg.Chat.IdleTimeout)
	}

	tcpCfg, err := DecodeTCPConfig(cfg.Adapters.TCP)
	if err != nil {
		t.Fatalf("Failed to decode TCP config: %v", err)
	}
	if tcpCfg.Port != 9000 {
		t.Errorf("Expected TCP port 9000, got %d", tcpCfg.Port)
	}
	if tcpCfg.MaxConnections != 100 {
		t.Errorf("Expected max_connections 100, got %d", tcpCfg.MaxConnections)
	}
	if tcpCfg.RateLimit.CommandsPerSecond != 5 {
		t.Errorf("Expected rate 5/s, got %v", tcpCfg.RateLimit.CommandsPerSecond)
	}

	wsCfg, err := DecodeWSConfig(cfg.Adapters.WS)
	if err != nil {
		t.Fatalf("Failed to decode WebSocket config: %v", err)
	}
	if wsCfg.Port != 9001 {
		t.Errorf("Expected WebSocket port 9001, got %d", wsCfg.Port)
	}
	if len(wsCfg.AllowedOrigins) != 1 || wsCfg.AllowedOrigins[0] != "https://example.com" {
		t.Errorf("Expected allowed_origins [https://example.com], got %v", wsCfg.AllowedOrigins)
	}
}

func TestLoad_DisableIdleTimeout(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
chat:
  idle_timeout: -1s
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Chat.IdleTimeout != 0 {
		t.Errorf("Expected idle_timeout disabled (0), got %v", cfg.Chat.IdleTimeout)
	}
}
