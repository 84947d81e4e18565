package workers

import (
	"context"
	"log/slog"
	"os"
	"time"

	"market-chat/contract"
	"market-chat/observability"

	"github.com/shirou/gopsutil/process"
)

var _ contract.Worker = (*HeartbeatWorker)(nil)

// HeartbeatWorker samples the process (CPU, RAM, status) and refreshes the monitoring snapshot.
type HeartbeatWorker struct {
	log        *slog.Logger
	monitoring *observability.MonitoringManager
	interval   time.Duration
}

func NewHeartbeatWorker(log *slog.Logger, monitoring *observability.MonitoringManager, interval time.Duration) *HeartbeatWorker {
	return &HeartbeatWorker{log: log, monitoring: monitoring, interval: interval}
}

func (w *HeartbeatWorker) Run(ctx context.Context) error {
	w.log.Info("Starting heartbeat worker", "interval", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			stats, err := selfStats(p)
			if err != nil {
				w.log.Error("Failed to collect self stats", "error", err)
			} else {
				w.monitoring.RecordProcess(stats)
			}
			w.monitoring.UpdateStats()
		}
	}
}

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
	return observability.ProcessStats{RSSBytes: memInfo.RSS, CPUPercent: cpuPercent, Status: status}, nil
}
