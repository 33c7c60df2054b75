package lifecycle

import (
	"context"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/arcmesh/coregate/metrics"
)

// ExitHook is called when the memory monitor trips. In production it is
// os.Exit(1) after a log flush; tests inject a recording stub.
type ExitHook func()

// MemoryMonitorConfig configures the bounds and sampling cadence of a
// MemoryMonitor.
type MemoryMonitorConfig struct {
	// HeapLimitBytes bounds Go runtime memory: heap in use plus stack, span
	// and cache overhead. Memory allocated outside the Go runtime is not
	// counted. Zero disables the heap check.
	HeapLimitBytes uint64
	// RSSLimitBytes bounds process resident set size. Zero disables the
	// RSS check. RSS sampling on this platform uses MemStats.Sys as a
	// proxy; a production deployment with cgroup accounting would read
	// /proc/self/status instead.
	RSSLimitBytes uint64
	// CheckPeriod is the normal sampling interval.
	CheckPeriod time.Duration
	// GracePeriod is how long the process may remain over a limit before
	// ExitHook fires.
	GracePeriod time.Duration
	ExitHook    ExitHook
	Metrics     *metrics.Metrics
}

// MemoryMonitor periodically samples heap and RSS; if either exceeds its
// configured bound for the configured grace period, it calls the exit
// hook. Between samples it sleeps for CheckPeriod, or a shorter interval
// while over limit so the grace deadline is checked promptly.
type MemoryMonitor struct {
	cfg       MemoryMonitorConfig
	logger    *zap.Logger
	threadlet *Threadlet

	overLimitSince time.Time
	wasOverLimit   bool
	tripped        bool
}

// NewMemoryMonitor constructs a MemoryMonitor as a Component, ready to be
// wrapped in a Supervisor and added to a ComponentTree.
func NewMemoryMonitor(cfg MemoryMonitorConfig, logger *zap.Logger) *MemoryMonitor {
	m := &MemoryMonitor{cfg: cfg, logger: logger}
	m.threadlet = NewThreadlet("memory-monitor", logger, m.run)
	return m
}

func (m *MemoryMonitor) ImplInit(ctx context.Context, isReload bool) error {
	return nil
}

func (m *MemoryMonitor) ImplStart(ctx context.Context, isReload bool) error {
	m.threadlet.Start(ctx)
	return nil
}

func (m *MemoryMonitor) ImplStop(ctx context.Context, willReload bool) error {
	m.threadlet.Stop(ctx)
	return nil
}

func (m *MemoryMonitor) run(handle *ThreadletHandle) {
	for {
		m.sample()

		sleepFor := m.cfg.CheckPeriod
		if m.wasOverLimit {
			remaining := m.cfg.GracePeriod - time.Since(m.overLimitSince)
			fraction := remaining / 4
			if fraction < time.Second {
				fraction = time.Second
			}
			if fraction < sleepFor {
				sleepFor = fraction
			}
		}

		timer := time.NewTimer(sleepFor)
		select {
		case <-handle.WhenStopRequested():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (m *MemoryMonitor) sample() {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)

	heapBytes := stats.HeapAlloc + stats.StackSys + stats.MSpanSys + stats.MCacheSys
	rssBytes := stats.Sys

	if m.cfg.Metrics != nil {
		m.cfg.Metrics.MemoryHeapBytes.Set(float64(heapBytes))
		m.cfg.Metrics.MemoryRSSBytes.Set(float64(rssBytes))
	}

	over := (m.cfg.HeapLimitBytes > 0 && heapBytes > m.cfg.HeapLimitBytes) ||
		(m.cfg.RSSLimitBytes > 0 && rssBytes > m.cfg.RSSLimitBytes)

	now := time.Now()
	if over && !m.wasOverLimit {
		m.wasOverLimit = true
		m.overLimitSince = now
		m.logger.Warn("memory over limit",
			zap.Uint64("heap_bytes", heapBytes),
			zap.Uint64("rss_bytes", rssBytes))
		if m.cfg.Metrics != nil {
			m.cfg.Metrics.MemoryOverLimit.Set(1)
		}
	} else if !over && m.wasOverLimit {
		m.wasOverLimit = false
		m.tripped = false
		m.logger.Info("memory back within limit",
			zap.Uint64("heap_bytes", heapBytes),
			zap.Uint64("rss_bytes", rssBytes))
		if m.cfg.Metrics != nil {
			m.cfg.Metrics.MemoryOverLimit.Set(0)
		}
	}

	if m.wasOverLimit && !m.tripped && now.Sub(m.overLimitSince) >= m.cfg.GracePeriod {
		m.tripped = true
		m.logger.Error("memory over limit past grace period, exiting",
			zap.Uint64("heap_bytes", heapBytes),
			zap.Uint64("rss_bytes", rssBytes),
			zap.Duration("grace_period", m.cfg.GracePeriod))
		if m.cfg.ExitHook != nil {
			m.cfg.ExitHook()
		}
	}
}
