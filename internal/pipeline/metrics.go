package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	attemptsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "botforge",
			Subsystem: "pipeline",
			Name:      "attempts_total",
			Help:      "Total number of build-deploy attempts started",
		},
	)

	stageResultTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "botforge",
			Subsystem: "pipeline",
			Name:      "stage_result_total",
			Help:      "Stage completions by result",
		},
		[]string{"stage", "result"},
	)

	stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "botforge",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"stage"},
	)
)

func init() {
	prometheus.MustRegister(attemptsTotal, stageResultTotal, stageDuration)
}

// observeStage records one stage outcome.
func observeStage(stage string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	stageResultTotal.WithLabelValues(stage, result).Inc()
	stageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}
