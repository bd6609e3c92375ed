// Package metrics provides optional Prometheus metrics for linechat
// components. If InitRegistry is never called, every constructor returns a
// no-op implementation and the server runs with zero metrics overhead.
//
// Usage:
//
//	metrics.InitRegistry()
//	chatMetrics := metrics.NewChatMetrics()
//	svc := chat.NewService(cfg, chatMetrics)
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// InitRegistry initializes the global Prometheus registry. Safe to call more
// than once; only the first call has an effect. Constructors called before
// InitRegistry return no-op implementations.
func InitRegistry() {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()
	})
}

// GetRegistry returns the global registry, or nil when metrics are disabled.
func GetRegistry() *prometheus.Registry {
	return registry
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	return GetRegistry() != nil
}
