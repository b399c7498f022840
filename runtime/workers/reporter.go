package workers

import (
	"collab-realtime/observability"
	"context"
	"log/slog"
	"time"
)

// ReporterWorker logs a stats snapshot at every interval, and a last one on stop.
type ReporterWorker struct {
	log        *slog.Logger
	monitoring *observability.MonitoringManager
	interval   time.Duration
}

func NewReporterWorker(log *slog.Logger, monitoring *observability.MonitoringManager,
	interval time.Duration) *ReporterWorker {
	return &ReporterWorker{log: log, monitoring: monitoring, interval: interval}
}

func (w *ReporterWorker) Run(ctx context.Context) error {
	startTime := time.Now()
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.report(startTime)
			return nil
		case <-ticker.C:
			w.report(startTime)
		}
	}
}

func (w *ReporterWorker) report(startTime time.Time) {
	stats := w.monitoring.GetLatest()
	w.log.Info("Realtime stats",
		"uptime", time.Since(startTime).Round(time.Second).String(),
		"connections", stats.Connections,
		"identified", stats.IdentifiedConnections,
		"rooms", stats.Rooms,
		"online_users", stats.OnlineUsers,
		"delivered", stats.EventsDelivered,
		"dropped", stats.EventsDropped,
		"rejected", stats.EventsRejected,
		"alloc_mb", stats.AllocMemMb,
		"goroutines", stats.Goroutines,
	)
}
