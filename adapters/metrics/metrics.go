// Package metrics provides Prometheus metrics collection for the gateway.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds every Prometheus metric the Data and Control Planes emit.
type Collector struct {
	// Proxy request metrics (Data Plane, §4.3).
	ProxyRequestsTotal   *prometheus.CounterVec
	ProxyStageDuration   *prometheus.HistogramVec
	ProxyRequestsInFlight prometheus.Gauge

	// Auth plugin metrics (§4.3 stage 8).
	AuthPluginErrors *prometheus.CounterVec

	// Rate limiter metrics (§4.5).
	RateLimitRejected *prometheus.CounterVec

	// Upstream forward metrics (§4.3 stage 9).
	UpstreamForwardDuration *prometheus.HistogramVec
	UpstreamForwardErrors   *prometheus.CounterVec

	// Control Plane config metrics (§A.3).
	ConfigReloads      *prometheus.CounterVec
	ConfigReloadErrors prometheus.Counter
	ConfigLastReload   prometheus.Gauge
}

// New creates a new metrics collector registered against the default registry.
func New() *Collector {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a new metrics collector with a custom registry.
// Useful for testing to avoid global state.
func NewWithRegistry(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		ProxyRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "oagw",
				Subsystem: "proxy",
				Name:      "requests_total",
				Help:      "Total number of proxy requests processed, by tenant, alias and outcome.",
			},
			[]string{"tenant_id", "alias", "status"},
		),
		ProxyStageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "oagw",
				Subsystem: "proxy",
				Name:      "stage_duration_seconds",
				Help:      "Duration of each Data Plane pipeline stage (§4.3).",
				Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"stage"},
		),
		ProxyRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "oagw",
				Subsystem: "proxy",
				Name:      "requests_in_flight",
				Help:      "Number of proxy requests currently being processed.",
			},
		),

		AuthPluginErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "oagw",
				Subsystem: "auth",
				Name:      "plugin_errors_total",
				Help:      "Total number of auth plugin failures, by plugin type and failure kind.",
			},
			[]string{"plugin_type", "kind"},
		),

		RateLimitRejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "oagw",
				Subsystem: "rate_limit",
				Name:      "rejected_total",
				Help:      "Total number of requests rejected by the rate limiter bank, by scope.",
			},
			[]string{"scope"},
		),

		UpstreamForwardDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "oagw",
				Subsystem: "upstream",
				Name:      "forward_duration_seconds",
				Help:      "Duration of outbound upstream forwards (§4.3 stage 9).",
				Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"alias", "status"},
		),
		UpstreamForwardErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "oagw",
				Subsystem: "upstream",
				Name:      "forward_errors_total",
				Help:      "Total number of upstream forward failures, by error kind.",
			},
			[]string{"kind"},
		),

		ConfigReloads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "oagw",
				Subsystem: "config",
				Name:      "reloads_total",
				Help:      "Total number of config file reload attempts, by outcome.",
			},
			[]string{"outcome"},
		),
		ConfigReloadErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "oagw",
				Subsystem: "config",
				Name:      "reload_errors_total",
				Help:      "Total number of config reload errors.",
			},
		),
		ConfigLastReload: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "oagw",
				Subsystem: "config",
				Name:      "last_reload_timestamp",
				Help:      "Unix timestamp of the last successful config reload.",
			},
		),
	}
}
