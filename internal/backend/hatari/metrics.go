package hatari

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/seantiz/stbuild/internal/model"
)

// Metric label values for session outcomes.
const (
	outcomeStarted = "started"
	outcomeFailed  = "failed"
	outcomeKilled  = "killed"
)

var (
	bootDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "stbuild_hatari_boot_seconds",
			Help:    "Duration from process start to emulator window ready, in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)

	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "stbuild_hatari_active_sessions",
			Help: "Number of currently running Hatari emulators.",
		},
	)

	stopDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "stbuild_hatari_stop_seconds",
			Help:    "Duration of emulator shutdown, in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)

	sessionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stbuild_hatari_sessions_total",
			Help: "Total number of emulator sessions by profile and outcome.",
		},
		[]string{"profile", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(bootDuration)
	prometheus.MustRegister(activeSessions)
	prometheus.MustRegister(stopDuration)
	prometheus.MustRegister(sessionsTotal)

	// Pre-initialize counter label combinations so they appear in /metrics
	// with value 0 from startup, rather than only after first observation.
	for _, p := range []string{model.ProfileCompile, model.ProfileRun} {
		sessionsTotal.WithLabelValues(p, outcomeStarted)
		sessionsTotal.WithLabelValues(p, outcomeFailed)
		sessionsTotal.WithLabelValues(p, outcomeKilled)
	}
}
