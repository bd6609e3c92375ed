package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const configFileHeader = `# linechat Configuration File
#
# Values here can be overridden with LINECHAT_* environment variables,
# e.g. LINECHAT_LOGGING_LEVEL=DEBUG or LINECHAT_ADAPTERS_TCP_PORT=7000.
#
# Durations accept Go syntax: "30s", "5m", "1h30m".

`

// InitConfig writes a starter configuration file with all defaults to the
// standard location and returns its path.
//
// Fails if a config file already exists there, unless force is true.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()

	if !force {
		if _, err := os.Stat(path); err == nil {
			return path, fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return path, fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := renderDefaultConfig()
	if err != nil {
		return path, err
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return path, fmt.Errorf("failed to write config file: %w", err)
	}

	return path, nil
}

// renderDefaultConfig produces the YAML document for the default
// configuration.
//
// The document is built from a keyed map rather than the Config struct so
// the emitted keys match the mapstructure tags the loader expects
// (yaml.Marshal on the struct would drop the underscores).
func renderDefaultConfig() ([]byte, error) {
	cfg := GetDefaultConfig()

	doc := map[string]any{
		"logging": map[string]any{
			"level":  cfg.Logging.Level,
			"format": cfg.Logging.Format,
			"output": cfg.Logging.Output,
		},
		"server": map[string]any{
			"shutdown_timeout": cfg.Server.ShutdownTimeout.String(),
			"metrics": map[string]any{
				"enabled": cfg.Server.Metrics.Enabled,
				"port":    cfg.Server.Metrics.Port,
			},
		},
		"chat": map[string]any{
			"idle_timeout": cfg.Chat.IdleTimeout.String(),
		},
		"adapters": map[string]any{
			"tcp": cfg.Adapters.TCP,
			"ws":  cfg.Adapters.WS,
		},
	}

	body, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to render default config: %w", err)
	}

	return append([]byte(configFileHeader), body...), nil
}
