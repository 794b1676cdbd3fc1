package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	ScoreRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "territoires_score_runs_total",
		Help: "Scoring pipeline runs by granularity and outcome.",
	}, []string{"granularity", "result"})

	ScoreDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "territoires_score_duration_seconds",
		Help:    "Time spent running the scoring pipeline.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	}, []string{"granularity"})

	SkippedVariables = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "territoires_skipped_variables_total",
		Help: "Selected labels ignored because they are unknown or not socio-economic.",
	}, []string{"granularity"})

	SnapshotReloads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "territoires_snapshot_reloads_total",
		Help: "Snapshot reloads by trigger and outcome.",
	}, []string{"trigger", "result"})

	SnapshotUnits = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "territoires_snapshot_units",
		Help: "Territorial units in the current snapshot.",
	}, []string{"granularity"})
)

func init() {
	prometheus.MustRegister(ScoreRuns, ScoreDuration, SkippedVariables, SnapshotReloads, SnapshotUnits)
}
