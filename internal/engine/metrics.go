package engine

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/seantiz/stbuild/internal/model"
)

var (
	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stbuild_runs_total",
			Help: "Total number of workflow runs by task and final status.",
		},
		[]string{"task", "status"},
	)

	runDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stbuild_run_duration_seconds",
			Help:    "Duration of workflow runs, in seconds.",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120, 300},
		},
		[]string{"task"},
	)

	stepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stbuild_step_duration_seconds",
			Help:    "Time to reach each workflow state, in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"state"},
	)

	stepFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stbuild_step_failures_total",
			Help: "Workflow failures by the state being entered.",
		},
		[]string{"state"},
	)
)

func init() {
	prometheus.MustRegister(runsTotal)
	prometheus.MustRegister(runDuration)
	prometheus.MustRegister(stepDuration)
	prometheus.MustRegister(stepFailures)

	for _, task := range []string{model.TaskCompile, model.TaskRun} {
		runsTotal.WithLabelValues(task, model.StatusCompleted)
		runsTotal.WithLabelValues(task, model.StatusFailed)
	}
}
