// Package sysmon periodically samples process CPU/RSS via gopsutil and
// storage/worker-pool internal sizes, logging them and feeding
// internal/metrics' gauges. Grounded on adred-codev-ws_poc/ws's
// internal/single/core/monitoring_collectors.go collectMetrics loop (a
// ticker sampling process.Process via gopsutil), simplified to this
// server's single-process, non-containerized scope — no cgroup CPU quota
// reading, since SPEC_FULL.md never promises container awareness.
package sysmon

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/adred-codev/salesd/internal/metrics"
)

// Sampler is anything that can report the counts sysmon logs each tick.
type Sampler interface {
	QueueDepth() int
	Discarded() int64
}

// StorageSampler is anything that can report storage cache sizes.
type StorageSampler interface {
	LoadedSeriesLen() int
	AggCacheLen() int
}

// Monitor periodically samples process + component state.
type Monitor struct {
	interval time.Duration
	logger   zerolog.Logger
	metrics  *metrics.Metrics
	pool     Sampler
	storage  StorageSampler
	conns    func() int64

	proc *process.Process
}

// New builds a Monitor. proc lookup failures are logged once and CPU/RSS
// sampling is simply skipped thereafter (matches teacher's "proc = nil,
// fall back" handling, minus the system-memory fallback this single-process
// server has no use for).
func New(interval time.Duration, logger zerolog.Logger, m *metrics.Metrics, pool Sampler, storage StorageSampler, activeConns func() int64) *Monitor {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		logger.Warn().Err(err).Msg("sysmon: failed to look up own process, CPU/RSS sampling disabled")
		proc = nil
	}
	return &Monitor{
		interval: interval,
		logger:   logger,
		metrics:  m,
		pool:     pool,
		storage:  storage,
		conns:    activeConns,
		proc:     proc,
	}
}

// Run samples on a ticker until ctx is cancelled. Intended to be launched as
// its own goroutine from cmd/salesd.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sample()
		}
	}
}

func (m *Monitor) sample() {
	queueDepth := m.pool.QueueDepth()
	discarded := m.pool.Discarded()
	loadedSeries := m.storage.LoadedSeriesLen()
	aggCacheDays := m.storage.AggCacheLen()
	active := m.conns()

	m.metrics.WorkerQueue.Set(float64(queueDepth))
	m.metrics.LoadedSeries.Set(float64(loadedSeries))
	m.metrics.AggCacheSize.Set(float64(aggCacheDays))
	m.metrics.ActiveConns.Set(float64(active))

	event := m.logger.Info().
		Int("worker_queue_depth", queueDepth).
		Int64("worker_discarded_total", discarded).
		Int("loaded_series", loadedSeries).
		Int("agg_cache_days", aggCacheDays).
		Int64("active_connections", active)

	if m.proc != nil {
		if cpuPct, err := m.proc.CPUPercent(); err == nil {
			m.metrics.ProcessCPU.Set(cpuPct)
			event = event.Float64("process_cpu_percent", cpuPct)
		}
		if memInfo, err := m.proc.MemoryInfo(); err == nil {
			m.metrics.ProcessRSS.Set(float64(memInfo.RSS))
			event = event.Uint64("process_rss_bytes", memInfo.RSS)
		}
	}

	event.Msg("sysmon sample")
}
