package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "moderation_active_sessions",
		Help: "Number of live sessions in the registry",
	})

	FramesClassified = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "moderation_frames_classified_total",
		Help: "Total frames classified, by outcome",
	}, []string{"flagged"})

	ClassificationErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "moderation_classification_errors_total",
		Help: "Total transient classification failures",
	})

	ClassificationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "moderation_classification_duration_seconds",
		Help:    "Duration of one seek+read+classify cycle",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})

	SessionsTornDown = promauto.NewCounter(prometheus.CounterOpts{
		Name: "moderation_sessions_torn_down_total",
		Help: "Total sessions fully removed, resources released",
	})
)
