// Package monitoring provides Prometheus metrics for backup and WAL
// lifecycle operations.
package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BackupDuration tracks how long a backup takes end to end, by
	// transport, coordination method, and terminal status.
	BackupDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "barman_backup_duration_seconds",
		Help:    "Duration of a backup operation in seconds",
		Buckets: prometheus.ExponentialBuckets(1, 2, 15), // 1s to ~9h
	}, []string{"transport", "coordination", "status"})

	// BackupsTotal tracks completed backups by terminal status.
	BackupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "barman_backups_total",
		Help: "Total number of backups by terminal status",
	}, []string{"status"})

	// WALArchived tracks the total number of WAL segments archived.
	WALArchived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "barman_wal_archived_total",
		Help: "Total number of WAL segments archived",
	})

	// WALReclaimed tracks the total number of WAL segments reclaimed by
	// retention, tagged with why they were eligible.
	WALReclaimed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "barman_wal_reclaimed_total",
		Help: "Total number of WAL segments reclaimed by retention",
	}, []string{"reason"})

	// RetentionClassification is a gauge of how many backups currently fall
	// into each retention class (VALID, OBSOLETE, POTENTIALLY_OBSOLETE,
	// KEEP_FULL, KEEP_STANDALONE).
	RetentionClassification = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "barman_retention_classification",
		Help: "Number of backups currently in each retention class",
	}, []string{"class"})

	// SyncLag is a passive node's lag behind its primary, in bytes of
	// unreplicated WAL. Left at zero on a primary node.
	SyncLag = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "barman_sync_lag_bytes",
		Help: "Bytes of WAL not yet mirrored from the primary",
	})

	// OffloadOperations tracks off-site mirror pushes by backend, payload
	// kind, and outcome.
	OffloadOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "barman_offload_operations_total",
		Help: "Total number of off-site mirror operations",
	}, []string{"backend", "kind", "status"})

	// OffloadLatency tracks off-site mirror push latency.
	OffloadLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "barman_offload_latency_seconds",
		Help:    "Off-site mirror push latency",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 15),
	}, []string{"backend", "kind"})

	// RetryAttempts tracks retry attempts across copier/offload/syncengine.
	RetryAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "barman_retry_attempts_total",
		Help: "Total number of retry attempts",
	}, []string{"operation", "status"})

	// CircuitBreakerState tracks circuit breaker state (0=closed, 1=open,
	// 2=half-open).
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "barman_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"breaker"})

	// CircuitBreakerTrips tracks the total number of circuit breaker trips.
	CircuitBreakerTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "barman_circuit_breaker_trips_total",
		Help: "Total number of circuit breaker trips",
	}, []string{"breaker"})

	// ActiveServers tracks the number of servers currently under
	// management by this process.
	ActiveServers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "barman_active_servers_total",
		Help: "Number of servers currently under management",
	})

	// ErrorRate tracks the current error rate by component.
	ErrorRate = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "barman_error_rate",
		Help: "Current error rate",
	}, []string{"component"})
)

// RecordBackup records a completed backup's duration and terminal status.
func RecordBackup(transport, coordination, status string, duration time.Duration) {
	BackupDuration.WithLabelValues(transport, coordination, status).Observe(duration.Seconds())
	BackupsTotal.WithLabelValues(status).Inc()
}

// RecordWALArchived records one WAL segment successfully archived.
func RecordWALArchived() {
	WALArchived.Inc()
}

// RecordWALReclaimed records one WAL segment reclaimed by retention.
func RecordWALReclaimed(reason string) {
	WALReclaimed.WithLabelValues(reason).Inc()
}

// SetRetentionClassification sets the current count of backups in a
// retention class.
func SetRetentionClassification(class string, count int) {
	RetentionClassification.WithLabelValues(class).Set(float64(count))
}

// SetSyncLag sets the passive node's current replication lag.
func SetSyncLag(bytes int64) {
	SyncLag.Set(float64(bytes))
}

// RecordOffload records an off-site mirror push.
func RecordOffload(backend, kind string, duration time.Duration, success bool) {
	status := "success"
	if !success {
		status = "failure"
	}
	OffloadOperations.WithLabelValues(backend, kind, status).Inc()
	OffloadLatency.WithLabelValues(backend, kind).Observe(duration.Seconds())
}

// RecordRetry records a retry attempt.
func RecordRetry(operation string, success bool) {
	status := "success"
	if !success {
		status = "failure"
	}
	RetryAttempts.WithLabelValues(operation, status).Inc()
}

// UpdateCircuitBreakerState updates circuit breaker state.
func UpdateCircuitBreakerState(breaker string, state int) {
	CircuitBreakerState.WithLabelValues(breaker).Set(float64(state))
}

// RecordCircuitBreakerTrip records a circuit breaker trip.
func RecordCircuitBreakerTrip(breaker string) {
	CircuitBreakerTrips.WithLabelValues(breaker).Inc()
}

// SetActiveServers sets the number of servers under management.
func SetActiveServers(count int) {
	ActiveServers.Set(float64(count))
}

// UpdateErrorRate updates the error rate for a component.
func UpdateErrorRate(component string, rate float64) {
	ErrorRate.WithLabelValues(component).Set(rate)
}
