// Package observability samples process-level health of the relay:
// live connection count, Go memory statistics, and OS-level CPU/RSS of
// the server process. The latest snapshot is cached for the /stats
// endpoint; a supervised worker refreshes and logs it periodically.
package observability

import (
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/process"
)

// ConnectionCounter reports how many live subscriptions exist.
type ConnectionCounter interface {
	ActiveConnections() int
}

// RelayStats is one health snapshot.
type RelayStats struct {
	ActiveConnections int     `json:"active_connections"`
	AllocMemMb        uint64  `json:"alloc_mem_mb"`
	NumGC             uint32  `json:"num_gc"`
	NumGoroutine      int     `json:"num_goroutine"`
	CpuPercent        float64 `json:"cpu_percent"`
	RssMb             uint64  `json:"rss_mb"`
	PidStatus         string  `json:"pid_status"`
	UptimeSeconds     int64   `json:"uptime_seconds"`
}

type Monitor struct {
	log         *slog.Logger
	connections ConnectionCounter
	proc        *process.Process
	started     time.Time

	mu     sync.RWMutex
	latest RelayStats
}

func NewMonitor(log *slog.Logger, connections ConnectionCounter) (*Monitor, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}
	return &Monitor{
		log:         log,
		connections: connections,
		proc:        proc,
		started:     time.Now(),
	}, nil
}

// Refresh samples everything and caches the snapshot. OS-level metrics
// are best-effort: a probe failure leaves the field at zero rather than
// failing the refresh.
func (m *Monitor) Refresh() RelayStats {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	stats := RelayStats{
		ActiveConnections: m.connections.ActiveConnections(),
		AllocMemMb:        memStats.Alloc / 1024 / 1024,
		NumGC:             memStats.NumGC,
		NumGoroutine:      runtime.NumGoroutine(),
		UptimeSeconds:     int64(time.Since(m.started).Seconds()),
	}

	if cpu, err := m.proc.CPUPercent(); err == nil {
		stats.CpuPercent = cpu
	} else {
		m.log.Debug("Failed to probe process cpu", "err", err)
	}
	if mem, err := m.proc.MemoryInfo(); err == nil {
		stats.RssMb = mem.RSS / 1024 / 1024
	} else {
		m.log.Debug("Failed to probe process memory", "err", err)
	}
	if status, err := m.proc.Status(); err == nil {
		stats.PidStatus = status
	}

	m.mu.Lock()
	m.latest = stats
	m.mu.Unlock()
	return stats
}

// Latest returns the most recent snapshot without re-sampling.
func (m *Monitor) Latest() RelayStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latest
}
