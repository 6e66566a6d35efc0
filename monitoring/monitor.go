package monitoring

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Config configures a Monitor.
type Config struct {
	UpdateInterval time.Duration
}

// DefaultConfig returns default monitoring configuration.
func DefaultConfig() *Config {
	return &Config{
		UpdateInterval: 10 * time.Second,
	}
}

// NewMonitor creates a new monitor from config.
func NewMonitor(cfg *Config) *Monitor {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Monitor{updateInterval: cfg.UpdateInterval}
}

// Monitor runs a background ticker that publishes the error rate derived
// from the backup outcomes reported through RecordBackupAttempt; it does
// not track circuit breaker state. It holds no domain state of its own
// beyond the counters needed for that derivation.
type Monitor struct {
	mu            sync.RWMutex
	started       atomic.Bool
	backupCount   int64
	errorCount    int64
	lastEventTime time.Time
	startTime     time.Time
	ctx           context.Context
	cancel        context.CancelFunc

	updateInterval time.Duration
}

// Option configures the monitor.
type Option func(*Monitor)

// WithUpdateInterval sets the metrics update interval.
func WithUpdateInterval(interval time.Duration) Option {
	return func(m *Monitor) {
		m.updateInterval = interval
	}
}

// New creates a new monitor.
func New(opts ...Option) *Monitor {
	m := &Monitor{updateInterval: 10 * time.Second}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start begins the background updater. Calling Start on an already-started
// monitor is a no-op.
func (m *Monitor) Start() {
	if !m.started.CompareAndSwap(false, true) {
		return
	}
	m.mu.Lock()
	m.startTime = time.Now()
	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.mu.Unlock()

	go m.runUpdater()
}

// Stop ends the background updater.
func (m *Monitor) Stop() {
	if !m.started.CompareAndSwap(true, false) {
		return
	}
	if m.cancel != nil {
		m.cancel()
	}
}

// RecordBackupAttempt records a backup's outcome against the monitor's
// own error-rate tracking, independent of the Prometheus counters in
// RecordBackup (which manager.Manager calls directly).
func (m *Monitor) RecordBackupAttempt(success bool) {
	atomic.AddInt64(&m.backupCount, 1)
	m.mu.Lock()
	m.lastEventTime = time.Now()
	m.mu.Unlock()
	if !success {
		atomic.AddInt64(&m.errorCount, 1)
	}
}

// GetStats returns current statistics.
func (m *Monitor) GetStats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	backups := atomic.LoadInt64(&m.backupCount)
	errors := atomic.LoadInt64(&m.errorCount)

	errorRate := float64(0)
	if backups > 0 {
		errorRate = float64(errors) / float64(backups)
	}

	return Stats{
		Uptime:        time.Since(m.startTime),
		Backups:       backups,
		ErrorCount:    errors,
		ErrorRate:     errorRate,
		LastEventTime: m.lastEventTime,
	}
}

// runUpdater pushes derived stats into the exported gauges on a fixed
// interval, the same role the teacher's runMetricsUpdater plays for its
// own event-count counters.
func (m *Monitor) runUpdater() {
	ticker := time.NewTicker(m.updateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			stats := m.GetStats()
			UpdateErrorRate("server", stats.ErrorRate)
		}
	}
}

// Stats contains monitor statistics.
type Stats struct {
	Uptime        time.Duration
	Backups       int64
	ErrorCount    int64
	ErrorRate     float64
	LastEventTime time.Time
}

// HealthCheck performs a health check.
func (m *Monitor) HealthCheck() Health {
	stats := m.GetStats()

	status := HealthStatusHealthy
	var issues []string

	if stats.ErrorRate > 0.05 {
		status = HealthStatusDegraded
		issues = append(issues, "high error rate")
	}
	if stats.ErrorRate > 0.5 {
		status = HealthStatusUnhealthy
	}

	return Health{
		Status:    status,
		Timestamp: time.Now(),
		Uptime:    stats.Uptime,
		Issues:    issues,
		Stats:     stats,
	}
}

// Health represents a monitor's health status.
type Health struct {
	Status    HealthStatus
	Timestamp time.Time
	Uptime    time.Duration
	Issues    []string
	Stats     Stats
}

// HealthStatus represents health status.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)
