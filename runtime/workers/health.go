package workers

import (
	"context"
	"log/slog"
	"time"

	"chat-relay/observability"
)

// HealthWorker refreshes the relay health snapshot on a fixed interval
// and logs it, so an operator tailing the logs sees connection count
// and resource usage without calling the stats endpoint.
type HealthWorker struct {
	log      *slog.Logger
	monitor  *observability.Monitor
	interval time.Duration
}

func NewHealthWorker(log *slog.Logger, monitor *observability.Monitor, interval time.Duration) *HealthWorker {
	return &HealthWorker{log: log, monitor: monitor, interval: interval}
}

func (w *HealthWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			stats := w.monitor.Refresh()
			w.log.Info("Relay health",
				"connections", stats.ActiveConnections,
				"goroutines", stats.NumGoroutine,
				"alloc_mb", stats.AllocMemMb,
				"rss_mb", stats.RssMb,
				"cpu_percent", stats.CpuPercent,
				"uptime_s", stats.UptimeSeconds)
		}
	}
}
