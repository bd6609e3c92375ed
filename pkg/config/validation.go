package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// Declarative validation runs through go-playground/validator struct tags;
// rules that cannot be expressed in tags (cross-section port conflicts,
// adapter decoding) run afterwards.
//
// Note: log level normalization is handled in ApplyDefaults, not here.
// Validation accepts both uppercase and lowercase log levels.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	return validateCustomRules(cfg)
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	// Each transport validates its own section once decoded.
	tcpCfg, err := DecodeTCPConfig(cfg.Adapters.TCP)
	if err != nil {
		return fmt.Errorf("adapters.tcp: %w", err)
	}
	if err := tcpCfg.Validate(); err != nil {
		return fmt.Errorf("adapters.tcp: %w", err)
	}
	wsCfg, err := DecodeWSConfig(cfg.Adapters.WS)
	if err != nil {
		return fmt.Errorf("adapters.ws: %w", err)
	}
	if err := wsCfg.Validate(); err != nil {
		return fmt.Errorf("adapters.ws: %w", err)
	}

	if !tcpCfg.Enabled && !wsCfg.Enabled {
		return fmt.Errorf("adapters: at least one adapter must be enabled")
	}

	// Port conflicts between enabled listeners
	ports := make(map[int]string)
	claim := func(port int, owner string) error {
		if port == 0 {
			return nil
		}
		if existing, ok := ports[port]; ok {
			return fmt.Errorf("port %d is used by both %s and %s", port, existing, owner)
		}
		ports[port] = owner
		return nil
	}

	if tcpCfg.Enabled {
		if err := claim(tcpCfg.Port, "adapters.tcp"); err != nil {
			return err
		}
	}
	if wsCfg.Enabled {
		if err := claim(wsCfg.Port, "adapters.ws"); err != nil {
			return err
		}
	}
	if cfg.Server.Metrics.Enabled {
		if err := claim(cfg.Server.Metrics.Port, "server.metrics"); err != nil {
			return err
		}
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		if len(validationErrs) > 0 {
			e := validationErrs[0]
			return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
				e.Namespace(), e.Tag(), e.Value())
		}
	}
	return err
}
