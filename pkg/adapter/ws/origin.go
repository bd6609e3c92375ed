package ws

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/avani23/linechat/internal/logger"
)

// normalizeOrigins lowercases and deduplicates the configured origins,
// dropping malformed entries. Returns the allowed set and whether "*"
// (allow all) was present.
func normalizeOrigins(origins []string) (map[string]struct{}, bool) {
	normalized := make(map[string]struct{}, len(origins))
	allowAll := false

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}

		if trimmed == "*" {
			allowAll = true
			continue
		}

		normalizedOrigin, ok := normalizeOrigin(trimmed)
		if !ok {
			logger.Warn("Ignoring invalid origin in configuration: %q", origin)
			continue
		}

		normalized[normalizedOrigin] = struct{}{}
	}

	return normalized, allowAll
}

// normalizeOrigin reduces an origin to lowercase scheme://host form.
func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil {
		return "", false
	}

	if parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}

	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}

// checkOrigin is the gorilla/websocket CheckOrigin hook.
//
// Requests without an Origin header (command-line clients, tests) are
// allowed; browser requests must match the configured allow list.
func (s *Adapter) checkOrigin(r *http.Request) bool {
	originHeader := r.Header.Get("Origin")
	if originHeader == "" {
		return true
	}

	if s.allowAllOrigins {
		return true
	}

	normalizedOrigin, ok := normalizeOrigin(originHeader)
	if !ok {
		logger.Warn("Blocked WebSocket connection with malformed origin: %q", originHeader)
		return false
	}

	if _, exists := s.allowedOrigins[normalizedOrigin]; exists {
		return true
	}

	logger.Warn("Blocked WebSocket connection from disallowed origin: %q", originHeader)
	return false
}
