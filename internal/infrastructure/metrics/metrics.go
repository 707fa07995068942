// Package metrics exposes Prometheus metrics for backup runs, scheduling,
// retention and downloads.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "dbwarden"

var (
	// BackupsTotal counts backup runs by format and result.
	BackupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backups_total",
			Help:      "Total number of backup runs",
		},
		[]string{"format", "result"},
	)

	// BackupDuration tracks how long a backup run takes, dump included.
	BackupDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backup_duration_seconds",
			Help:      "Duration of backup runs in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		},
		[]string{"format"},
	)

	SchedulerDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduler_decisions_total",
			Help:      "Total number of scheduler decisions per config tick",
		},
		[]string{"decision"},
	)

	SweptArtifactsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retention_swept_artifacts_total",
			Help:      "Total number of artifacts removed by retention sweeps",
		},
	)

	// SweepFailuresTotal counts artifacts whose file could not be removed.
	SweepFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retention_failures_total",
			Help:      "Total number of artifact files retention could not remove",
		},
	)

	DownloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloads_total",
			Help:      "Total number of download authorizations by release kind and result",
		},
		[]string{"kind", "result"},
	)
)

// RecordBackup records the outcome of one backup run.
func RecordBackup(format string, err error, elapsed time.Duration) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	BackupsTotal.WithLabelValues(format, result).Inc()
	BackupDuration.WithLabelValues(format).Observe(elapsed.Seconds())
}

func RecordDecision(decision string) {
	SchedulerDecisionsTotal.WithLabelValues(decision).Inc()
}

func RecordSweep(removed, failed int) {
	SweptArtifactsTotal.Add(float64(removed))
	SweepFailuresTotal.Add(float64(failed))
}

func RecordDownload(kind string, err error) {
	result := "granted"
	if err != nil {
		result = "denied"
	}
	DownloadsTotal.WithLabelValues(kind, result).Inc()
}
