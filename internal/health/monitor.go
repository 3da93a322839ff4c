package health

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Status values reported by the monitor.
const (
	StatusStarting = "starting"
	StatusHealthy  = "healthy"
	StatusStalled  = "stalled"
)

// ProgressFunc returns a counter that grows while training makes progress,
// such as the total number of environment steps.
type ProgressFunc func() int

// Config holds health monitoring configuration
type Config struct {
	CheckInterval time.Duration
	StallAfter    time.Duration
}

// Report is the monitor's latest verdict.
type Report struct {
	Status       string    `json:"status"`
	Progress     int       `json:"progress"`
	LastProgress time.Time `json:"last_progress"`
	CheckedAt    time.Time `json:"checked_at"`
}

// Monitor watches a progress counter and flags the run as stalled when it
// stops moving for longer than StallAfter.
type Monitor struct {
	progress ProgressFunc
	config   Config
	logger   zerolog.Logger
	now      func() time.Time

	mu     sync.RWMutex
	report Report
}

// NewMonitor creates a new health monitor
func NewMonitor(progress ProgressFunc, config Config, logger zerolog.Logger) *Monitor {
	return &Monitor{
		progress: progress,
		config:   config,
		logger:   logger,
		now:      time.Now,
		report:   Report{Status: StatusStarting, Progress: -1},
	}
}

// Start runs periodic checks until ctx is cancelled
func (m *Monitor) Start(ctx context.Context) {
	ticker := time.NewTicker(m.config.CheckInterval)
	defer ticker.Stop()

	m.logger.Info().
		Dur("check_interval", m.config.CheckInterval).
		Dur("stall_after", m.config.StallAfter).
		Msg("Starting health monitor")

	for {
		select {
		case <-ctx.Done():
			m.logger.Info().Msg("Health monitor stopped")
			return
		case <-ticker.C:
			m.Check()
		}
	}
}

// Check samples the progress counter once and updates the report.
func (m *Monitor) Check() Report {
	now := m.now()
	progress := m.progress()

	m.mu.Lock()
	defer m.mu.Unlock()

	previous := m.report.Status
	if progress != m.report.Progress {
		m.report.Progress = progress
		m.report.LastProgress = now
		m.report.Status = StatusHealthy
	} else if now.Sub(m.report.LastProgress) > m.config.StallAfter {
		m.report.Status = StatusStalled
	}
	m.report.CheckedAt = now

	if m.report.Status != previous && m.report.Status == StatusStalled {
		m.logger.Warn().
			Int("progress", progress).
			Time("last_progress", m.report.LastProgress).
			Msg("Training stalled")
	}
	return m.report
}

// Report returns the latest verdict without sampling.
func (m *Monitor) Report() Report {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.report
}

// Healthy reports whether the run is not stalled.
func (m *Monitor) Healthy() bool {
	return m.Report().Status != StatusStalled
}
