package config

import (
	"testing"
	"time"
)

func TestDecodeTCPConfig_Durations(t *testing.T) {
	options := map[string]any{
		"enabled":          true,
		"port":             9000,
		"write_timeout":    "15s",
		"shutdown_timeout": "1m",
	}

	cfg, err := DecodeTCPConfig(options)
	if err != nil {
		t.Fatalf("Failed to decode TCP config: %v", err)
	}

	if !cfg.Enabled {
		t.Error("Expected enabled true")
	}
	if cfg.Port != 9000 {
		t.Errorf("Expected port 9000, got %d", cfg.Port)
	}
	if cfg.WriteTimeout != 15*time.Second {
		t.Errorf("Expected write_timeout 15s, got %v", cfg.WriteTimeout)
	}
	if cfg.ShutdownTimeout != time.Minute {
		t.Errorf("Expected shutdown_timeout 1m, got %v", cfg.ShutdownTimeout)
	}
}

func TestDecodeWSConfig_OriginsFromString(t *testing.T) {
	// The comma-split hook lets LINECHAT_ADAPTERS_WS_ALLOWED_ORIGINS carry
	// multiple origins in a single environment variable.
	options := map[string]any{
		"allowed_origins": "https://a.example,https://b.example",
	}

	cfg, err := DecodeWSConfig(options)
	if err != nil {
		t.Fatalf("Failed to decode WebSocket config: %v", err)
	}

	if len(cfg.AllowedOrigins) != 2 {
		t.Fatalf("Expected 2 origins, got %v", cfg.AllowedOrigins)
	}
	if cfg.AllowedOrigins[0] != "https://a.example" {
		t.Errorf("Unexpected first origin: %q", cfg.AllowedOrigins[0])
	}
}

func TestCreateServer_DefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	srv, metricsServer, err := CreateServer(cfg)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}

	if metricsServer != nil {
		t.Error("Expected no metrics server when metrics are disabled")
	}

	adapters := srv.Adapters()
	if len(adapters) != 1 {
		t.Fatalf("Expected 1 adapter, got %d", len(adapters))
	}
	if adapters[0].Protocol() != "TCP" {
		t.Errorf("Expected TCP adapter, got %s", adapters[0].Protocol())
	}
	if adapters[0].Port() != DefaultTCPPort {
		t.Errorf("Expected port %d, got %d", DefaultTCPPort, adapters[0].Port())
	}
}

func TestCreateServer_BothAdapters(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Adapters.WS["enabled"] = true

	srv, _, err := CreateServer(cfg)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}

	adapters := srv.Adapters()
	if len(adapters) != 2 {
		t.Fatalf("Expected 2 adapters, got %d", len(adapters))
	}
	if adapters[0].Protocol() != "TCP" || adapters[1].Protocol() != "WebSocket" {
		t.Errorf("Unexpected adapter order: %s, %s",
			adapters[0].Protocol(), adapters[1].Protocol())
	}
}

func TestCreateServer_ShutdownTimeout(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Server.ShutdownTimeout = 5 * time.Second

	srv, _, err := CreateServer(cfg)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}

	if srv.StopTimeout() != 5*time.Second {
		t.Errorf("Expected stop timeout 5s, got %v", srv.StopTimeout())
	}
}

func TestCreateServer_MetricsEnabled(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Server.Metrics.Enabled = true

	_, metricsServer, err := CreateServer(cfg)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}

	if metricsServer == nil {
		t.Error("Expected a metrics server when metrics are enabled")
	}
}

func TestCreateServer_NoAdaptersEnabled(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Adapters.TCP["enabled"] = false

	if _, _, err := CreateServer(cfg); err == nil {
		t.Fatal("Expected error when no adapters are enabled")
	}
}
