package qa

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// runsTotal counts finished runs by terminal state
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pathwayqa_check_runs_total",
		Help: "Check runs by terminal state",
	}, []string{"check", "state"})

	issuesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pathwayqa_check_issues_total",
		Help: "Issues reported by check",
	}, []string{"check"})

	escapedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pathwayqa_check_escaped_total",
		Help: "Candidates removed by the escape policy",
	}, []string{"check"})

	runDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pathwayqa_check_duration_seconds",
		Help:    "Check run duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~80s
	}, []string{"check"})
)
