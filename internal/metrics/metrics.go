// Package metrics registers Prometheus gauges and counters named after
// the provider's CSV/summary statistics and serves them on an optional
// /metrics endpoint, additive to (never a replacement for) the
// stats/summary files the provider core writes. Nothing in the provider
// updates these metrics, so every series stays at zero.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles every registered gauge/counter. The provider's
// aggregation pass does not write to them.
type Registry struct {
	Refreshes    *prometheus.CounterVec
	Updates      *prometheus.CounterVec
	Requests     *prometheus.CounterVec
	Closes       *prometheus.CounterVec
	OutOfBuffers *prometheus.CounterVec

	LatencyAvgUsec *prometheus.GaugeVec
	LatencyMaxUsec *prometheus.GaugeVec

	CPUPercent     prometheus.Gauge
	MemRSSBytes    prometheus.Gauge
	ActiveSessions *prometheus.GaugeVec
}

// NewRegistry registers every metric against the default Prometheus
// registerer. Call once per process.
func NewRegistry() *Registry {
	return &Registry{
		Refreshes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "odin", Subsystem: "provider", Name: "refreshes_total",
			Help: "Refresh messages sent, by thread.",
		}, []string{"thread"}),
		Updates: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "odin", Subsystem: "provider", Name: "updates_total",
			Help: "Update messages sent, by thread.",
		}, []string{"thread"}),
		Requests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "odin", Subsystem: "provider", Name: "requests_total",
			Help: "Item requests received, by thread.",
		}, []string{"thread"}),
		Closes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "odin", Subsystem: "provider", Name: "closes_total",
			Help: "Item closes processed, by thread.",
		}, []string{"thread"}),
		OutOfBuffers: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "odin", Subsystem: "provider", Name: "out_of_buffers_total",
			Help: "Times the buffer manager reported no buffers available, by thread.",
		}, []string{"thread"}),
		LatencyAvgUsec: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "odin", Subsystem: "provider", Name: "latency_avg_usec",
			Help: "Average round-trip latency in microseconds over the last interval, by thread.",
		}, []string{"thread"}),
		LatencyMaxUsec: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "odin", Subsystem: "provider", Name: "latency_max_usec",
			Help: "Max round-trip latency in microseconds over the last interval, by thread.",
		}, []string{"thread"}),
		CPUPercent: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "odin", Subsystem: "provider", Name: "cpu_percent",
			Help: "Process CPU usage, normalized to the container's CPU allocation.",
		}),
		MemRSSBytes: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "odin", Subsystem: "provider", Name: "mem_rss_bytes",
			Help: "Process resident set size in bytes.",
		}),
		ActiveSessions: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "odin", Subsystem: "provider", Name: "active_sessions",
			Help: "Currently active sessions, by thread.",
		}, []string{"thread"}),
	}
}

// Serve starts the /metrics HTTP endpoint on addr. It blocks; callers
// typically run it in its own goroutine.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(addr, mux)
}
