package workers

import (
	"collab-realtime/observability"
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"
)

// ProcessSampler periodically records RSS, CPU and OS status of the server
// process into the monitoring manager.
type ProcessSampler struct {
	log        *slog.Logger
	monitoring *observability.MonitoringManager
	interval   time.Duration
}

func NewProcessSampler(log *slog.Logger, monitoring *observability.MonitoringManager,
	interval time.Duration) *ProcessSampler {
	return &ProcessSampler{log: log, monitoring: monitoring, interval: interval}
}

func (w *ProcessSampler) Run(ctx context.Context) error {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.sample(p)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.sample(p)
		}
	}
}

func (w *ProcessSampler) sample(p *process.Process) {
	stats, err := selfStats(p)
	if err != nil {
		w.log.Error("Failed to collect self stats", "err", err)
		return
	}
	w.monitoring.SetProcessStats(stats)
}

// selfStats retrieves technical metrics (Memory, CPU, and OS Status) for the given process.
func selfStats(p *process.Process) (observability.ProcessStats, error) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return observability.ProcessStats{}, err
	}

	cpuPercent, err := p.CPUPercent()
	if err != nil {
		return observability.ProcessStats{}, err
	}

	status, err := p.Status()
	if err != nil {
		return observability.ProcessStats{}, err
	}
	return observability.ProcessStats{
		RSSBytes:   memInfo.RSS,
		CPUPercent: cpuPercent,
		Status:     status,
	}, nil
}
