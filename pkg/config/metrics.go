package config

import (
	"sync"

	"github.com/marmos91/dittosmb/internal/logger"
	"github.com/marmos91/dittosmb/pkg/metrics"
	prommetrics "github.com/marmos91/dittosmb/pkg/metrics/prometheus"
)

var (
	engineOnce sync.Once
	engine     *prommetrics.Engine
)

// InitializeRegistry enables the shared registry when the metrics section
// asks for it and reports whether it did.
func InitializeRegistry(cfg *Config) bool {
	if !cfg.Metrics.Enabled {
		logger.Debug("Metrics disabled")
		return false
	}
	metrics.InitRegistry()
	logger.Info("Metrics enabled", "port", cfg.Metrics.Port)
	return true
}

// InitializeMetrics enables the shared registry and returns the engine
// collectors. It returns nil when metrics are disabled, which every
// consumer treats as "record nothing". The collectors register once per
// process; later calls return the same engine.
func InitializeMetrics(cfg *Config) *prommetrics.Engine {
	if !InitializeRegistry(cfg) {
		return nil
	}
	engineOnce.Do(func() { engine = prommetrics.NewEngine() })
	return engine
}
