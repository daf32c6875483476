package verifier

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/verigate/verigate/pkg/recaptcha"
)

var (
	verigateResolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "verigate_resolutions_total",
		Help: "Total siteverify resolution attempts by kind and result.",
	}, []string{"kind", "result"})

	verigateResolutionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "verigate_resolution_duration_seconds",
		Help:    "Siteverify round-trip duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})

	verigateDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "verigate_decisions_total",
		Help: "Trust decisions by kind and outcome.",
	}, []string{"kind", "decision"})
)

func observeResolution(kind recaptcha.Kind, took time.Duration, ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	verigateResolutionsTotal.WithLabelValues(string(kind), result).Inc()
	verigateResolutionDuration.WithLabelValues(string(kind)).Observe(took.Seconds())
}

// RecordDecision records the final human/robot (or pass/fail) outcome of a
// verification attempt.
func RecordDecision(kind recaptcha.Kind, human bool) {
	decision := "human"
	if !human {
		decision = "robot"
	}
	verigateDecisionsTotal.WithLabelValues(string(kind), decision).Inc()
}
