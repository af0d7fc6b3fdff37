// Package prometheus implements the engine metrics interfaces with
// Prometheus collectors.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/dittosmb/internal/smb/types"
	"github.com/marmos91/dittosmb/pkg/metrics"
	"github.com/marmos91/dittosmb/pkg/smb/client"
	"github.com/marmos91/dittosmb/pkg/smb/lease"
	"github.com/marmos91/dittosmb/pkg/smb/prefetch"
)

const namespace = "dsmb"

// Engine is the Prometheus implementation of client.Metrics, lease.Metrics
// and prefetch.Metrics. A nil *Engine records nothing.
type Engine struct {
	compounds       *prometheus.CounterVec
	commands        *prometheus.CounterVec
	compoundLatency *prometheus.HistogramVec
	replays         *prometheus.CounterVec
	fallbackCloses  *prometheus.CounterVec
	leaseEntries    prometheus.Gauge
	leaseEvents     *prometheus.CounterVec
	slotsInFlight   prometheus.Gauge
	prefetchEntries *prometheus.CounterVec
}

var (
	_ client.Metrics   = (*Engine)(nil)
	_ lease.Metrics    = (*Engine)(nil)
	_ prefetch.Metrics = (*Engine)(nil)
)

// NewEngine creates the engine collectors on the shared registry.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewEngine() *Engine {
	if !metrics.IsEnabled() {
		return nil
	}
	return NewEngineWith(metrics.GetRegistry())
}

// NewEngineWith creates the engine collectors on reg.
func NewEngineWith(reg prometheus.Registerer) *Engine {
	f := promauto.With(reg)
	return &Engine{
		compounds: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "compound_total",
				Help:      "Total number of executed compounds by shape and result",
			},
			[]string{"shape", "result"},
		),
		commands: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "compound_commands_total",
				Help:      "Total number of command replies by command and status",
			},
			[]string{"command", "status"},
		),
		compoundLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "compound_duration_seconds",
				Help:      "Duration of compound execution, replays included",
				Buckets: []float64{
					0.0005, // 500us - loopback
					0.001,  // 1ms
					0.005,  // 5ms - LAN round trip
					0.01,   // 10ms
					0.05,   // 50ms
					0.1,    // 100ms - WAN round trip
					0.5,    // 500ms
					1,      // 1s
					5,      // 5s - replayed or throttled
					30,     // 30s - request timeout
				},
			},
			[]string{"shape"},
		),
		replays: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "replay_total",
				Help:      "Total number of compound rebuilds after a reconnect by channel",
			},
			[]string{"channel"}, // "same", "alternate"
		),
		fallbackCloses: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fallback_close_total",
				Help:      "Total number of standalone CLOSE requests for handles a compound left open",
			},
			[]string{"result"}, // "closed", "failed"
		),
		leaseEntries: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "lease_entries",
				Help:      "Number of entries in the lease table",
			},
		),
		leaseEvents: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "lease_events_total",
				Help:      "Total number of lease table events",
			},
			[]string{"event"},
		),
		slotsInFlight: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "prefetch_slots_inflight",
				Help:      "Number of prefetch compounds in flight",
			},
		),
		prefetchEntries: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "prefetch_entries_total",
				Help:      "Total number of prefetch jobs by outcome",
			},
			[]string{"outcome"}, // "fetched", "defaulted", "aborted"
		),
	}
}

// ObserveCompound implements client.Metrics.
func (e *Engine) ObserveCompound(shape, result string, d time.Duration) {
	if e == nil {
		return
	}
	e.compounds.WithLabelValues(shape, result).Inc()
	e.compoundLatency.WithLabelValues(shape).Observe(d.Seconds())
}

// RecordCommand implements client.Metrics.
func (e *Engine) RecordCommand(cmd types.Command, status types.Status) {
	if e == nil {
		return
	}
	e.commands.WithLabelValues(cmd.String(), status.String()).Inc()
}

// RecordReplay implements client.Metrics.
func (e *Engine) RecordReplay(alternate bool) {
	if e == nil {
		return
	}
	channel := "same"
	if alternate {
		channel = "alternate"
	}
	e.replays.WithLabelValues(channel).Inc()
}

// RecordFallbackClose implements client.Metrics.
func (e *Engine) RecordFallbackClose(outcome string) {
	if e == nil {
		return
	}
	e.fallbackCloses.WithLabelValues(outcome).Inc()
}

// RecordLeaseEvent implements lease.Metrics.
func (e *Engine) RecordLeaseEvent(event string) {
	if e == nil {
		return
	}
	e.leaseEvents.WithLabelValues(event).Inc()
}

// SetLeaseEntries implements lease.Metrics.
func (e *Engine) SetLeaseEntries(n int) {
	if e == nil {
		return
	}
	e.leaseEntries.Set(float64(n))
}

// SetSlotsInFlight implements prefetch.Metrics.
func (e *Engine) SetSlotsInFlight(n int) {
	if e == nil {
		return
	}
	e.slotsInFlight.Set(float64(n))
}

// RecordEntry implements prefetch.Metrics.
func (e *Engine) RecordEntry(outcome string) {
	if e == nil {
		return
	}
	e.prefetchEntries.WithLabelValues(outcome).Inc()
}

// SessionOptions returns the client options installing e, or none when e
// is nil so the session keeps nil metrics.
func (e *Engine) SessionOptions() []client.Option {
	if e == nil {
		return nil
	}
	return []client.Option{client.WithMetrics(e), client.WithPrefetchMetrics(e)}
}
