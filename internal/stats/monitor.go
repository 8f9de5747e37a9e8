package stats

import (
	"context"
	"log/slog"
	"time"

	"github.com/goccy/go-json"
)

// Monitor periodically emits a Statistics snapshot to the log sink at INFO.
// It runs for the server's lifetime and stops when ctx is canceled.
type Monitor struct {
	stats    *Statistics
	interval time.Duration
	logger   *slog.Logger
}

// NewMonitor creates a Monitor that logs a snapshot every interval. A
// non-positive interval defaults to 60 seconds.
func NewMonitor(s *Statistics, interval time.Duration, logger *slog.Logger) *Monitor {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{stats: s, interval: interval, logger: logger}
}

// Run blocks, emitting snapshots until ctx is canceled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := m.stats.Snapshot()
			data, err := json.Marshal(snap)
			if err != nil {
				m.logger.Error("failed to marshal stats snapshot", "error", err)
				continue
			}
			m.logger.Info("server stats", "stats", string(data))
		}
	}
}
