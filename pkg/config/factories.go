package config

import (
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/avani23/linechat/internal/logger"
	"github.com/avani23/linechat/pkg/adapter"
	"github.com/avani23/linechat/pkg/adapter/tcp"
	"github.com/avani23/linechat/pkg/adapter/ws"
	"github.com/avani23/linechat/pkg/chat"
	"github.com/avani23/linechat/pkg/metrics"
	"github.com/avani23/linechat/pkg/server"
)

// decodeSection decodes a raw adapter section into a typed config struct.
//
// The hook converts YAML duration strings ("30s") into time.Duration and
// comma-separated strings into slices, matching what viper does for typed
// top-level sections.
func decodeSection(options map[string]any, target any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result: target,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return fmt.Errorf("failed to build decoder: %w", err)
	}

	if err := decoder.Decode(options); err != nil {
		return fmt.Errorf("failed to decode adapter config: %w", err)
	}
	return nil
}

// DecodeTCPConfig decodes the raw TCP adapter section. Defaults for
// unspecified fields are applied by the transport itself when the adapter
// is constructed.
func DecodeTCPConfig(options map[string]any) (tcp.Config, error) {
	var cfg tcp.Config
	if err := decodeSection(options, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// DecodeWSConfig decodes the raw WebSocket adapter section.
func DecodeWSConfig(options map[string]any) (ws.Config, error) {
	var cfg ws.Config
	if err := decodeSection(options, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// CreateServer builds the fully wired chat server from configuration:
// the chat service, every enabled transport adapter, and the metrics
// collectors when metrics are enabled.
//
// The companion metrics HTTP server is returned separately (nil when
// metrics are disabled) because its lifecycle is managed by the caller.
func CreateServer(cfg *Config) (*server.ChatServer, *metrics.Server, error) {
	var chatMetrics metrics.ChatMetrics
	var metricsServer *metrics.Server

	if cfg.Server.Metrics.Enabled {
		metrics.InitRegistry()
		chatMetrics = metrics.NewChatMetrics()
		metricsServer = metrics.NewServer(metrics.ServerConfig{Port: cfg.Server.Metrics.Port})
		logger.Info("Metrics enabled on port %d", cfg.Server.Metrics.Port)
	} else {
		chatMetrics = metrics.NewNoopChatMetrics()
	}

	service := chat.NewService(cfg.Chat.IdleTimeout, chatMetrics)
	srv := server.New(service)
	srv.SetStopTimeout(cfg.Server.ShutdownTimeout)

	adapters, err := createAdapters(cfg, chatMetrics)
	if err != nil {
		return nil, nil, err
	}
	for _, a := range adapters {
		if err := srv.AddAdapter(a); err != nil {
			return nil, nil, fmt.Errorf("failed to register %s adapter: %w", a.Protocol(), err)
		}
	}

	return srv, metricsServer, nil
}

// createAdapters instantiates every enabled transport adapter.
func createAdapters(cfg *Config, chatMetrics metrics.ChatMetrics) ([]adapter.Adapter, error) {
	var adapters []adapter.Adapter

	tcpCfg, err := DecodeTCPConfig(cfg.Adapters.TCP)
	if err != nil {
		return nil, fmt.Errorf("adapters.tcp: %w", err)
	}
	if tcpCfg.Enabled {
		adapters = append(adapters, tcp.New(tcpCfg, chatMetrics))
	}

	wsCfg, err := DecodeWSConfig(cfg.Adapters.WS)
	if err != nil {
		return nil, fmt.Errorf("adapters.ws: %w", err)
	}
	if wsCfg.Enabled {
		adapters = append(adapters, ws.New(wsCfg, chatMetrics))
	}

	if len(adapters) == 0 {
		return nil, fmt.Errorf("adapters: at least one adapter must be enabled")
	}

	return adapters, nil
}
