package workers

import (
	"context"
	"log/slog"
	"os"
	goruntime "runtime"
	"time"

	"github.com/shirou/gopsutil/process"
)

// onlineCounter is the part of the registry the monitor reads.
type onlineCounter interface {
	Online() int
}

type Health struct {
	RSS        uint64
	CPUPercent float64
	Status     string
	Goroutines int
	Online     int
}

// HealthMonitoringWorker logs the resource usage of the server process
// along with the number of connected users.
type HealthMonitoringWorker struct {
	log            *slog.Logger
	registry       onlineCounter
	metricInterval time.Duration
}

func NewHealthMonitoringWorker(log *slog.Logger, registry onlineCounter,
	metricInterval time.Duration) *HealthMonitoringWorker {
	return &HealthMonitoringWorker{log: log, registry: registry, metricInterval: metricInterval}
}

// Run returns an error only when the process cannot be inspected at all,
// the supervisor retries it later.
func (w *HealthMonitoringWorker) Run(ctx context.Context) error {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}
	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping health monitoring")
			return nil
		case <-ticker.C:
			health, err := w.collect(p)
			if err != nil {
				w.log.Error("Failed to collect self stats", "error", err)
				continue
			}
			w.log.Info("Server health",
				"rss_bytes", health.RSS,
				"cpu_percent", health.CPUPercent,
				"status", health.Status,
				"goroutines", health.Goroutines,
				"online", health.Online)
		}
	}
}

func (w *HealthMonitoringWorker) collect(p *process.Process) (Health, error) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return Health{}, err
	}
	cpuPercent, err := p.CPUPercent()
	if err != nil {
		return Health{}, err
	}
	status, err := p.Status()
	if err != nil {
		return Health{}, err
	}
	return Health{
		RSS:        memInfo.RSS,
		CPUPercent: cpuPercent,
		Status:     status,
		Goroutines: goruntime.NumGoroutine(),
		Online:     w.registry.Online(),
	}, nil
}
