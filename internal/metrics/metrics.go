// Package metrics defines the in-process Prometheus counters/gauges from
// SPEC_FULL.md's DOMAIN STACK and Supplement #2, grounded on
// adred-codev-ws_poc/ws's internal/single/monitoring/metrics.go. Unlike the
// teacher, these are never exposed over HTTP (promhttp.Handler is never
// wired up) — the spec's only external interface is the TCP listener, so
// these gauges exist purely to be logged periodically by internal/sysmon.
//
// Each Metrics value owns a private prometheus.Registry instead of using the
// global DefaultRegisterer, so tests (and a future second instance in the
// same process) never collide on MustRegister.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics is the full set of server-side counters and gauges.
type Metrics struct {
	Registry *prometheus.Registry

	OpsTotal        *prometheus.CounterVec
	ErrorsTotal     *prometheus.CounterVec
	ActiveConns     prometheus.Gauge
	WorkerQueue     prometheus.Gauge
	WorkerDiscarded prometheus.Counter
	LoadedSeries    prometheus.Gauge
	AggCacheSize    prometheus.Gauge
	ProcessCPU      prometheus.Gauge
	ProcessRSS      prometheus.Gauge
	RateLimited     prometheus.Counter
}

// New builds and registers every metric against a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,
		OpsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "salesd_ops_total",
			Help: "Total requests processed, by operation.",
		}, []string{"op"}),
		ErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "salesd_errors_total",
			Help: "Total request failures, by kind.",
		}, []string{"kind"}),
		ActiveConns: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "salesd_active_connections",
			Help: "Current number of open client connections.",
		}),
		WorkerQueue: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "salesd_worker_queue_depth",
			Help: "Current number of tasks waiting in the worker pool queue.",
		}),
		WorkerDiscarded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "salesd_worker_discarded_total",
			Help: "Total tasks discarded because the worker pool was shutting down.",
		}),
		LoadedSeries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "salesd_loaded_series",
			Help: "Number of closed-day series currently held in the level-1 cache.",
		}),
		AggCacheSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "salesd_agg_cache_days",
			Help: "Number of days with a populated aggregation cache entry.",
		}),
		ProcessCPU: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "salesd_process_cpu_percent",
			Help: "Process CPU usage percentage, sampled periodically.",
		}),
		ProcessRSS: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "salesd_process_rss_bytes",
			Help: "Process resident set size in bytes, sampled periodically.",
		}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "salesd_rate_limited_total",
			Help: "Total inbound frames rejected by the per-connection rate guard.",
		}),
	}

	reg.MustRegister(
		m.OpsTotal, m.ErrorsTotal, m.ActiveConns, m.WorkerQueue, m.WorkerDiscarded,
		m.LoadedSeries, m.AggCacheSize, m.ProcessCPU, m.ProcessRSS, m.RateLimited,
	)
	return m
}
