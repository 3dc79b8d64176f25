package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Pipeline collectors. Label values come from fixed sets (outcome kinds,
// drop stages, attempt results), so cardinality stays bounded.
var (
	cyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "replybot_cycles_total",
			Help: "Processing cycles by outcome.",
		},
		[]string{"outcome"},
	)

	cycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name: "replybot_cycle_duration_seconds",
			Help: "Wall time of a processing cycle, pauses included.",
			// cycles span sub-second gate checks up to multi-minute paced runs
			Buckets: []float64{0.05, 0.25, 1, 5, 15, 60, 180, 300, 600, 1200},
		},
	)

	candidatesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "replybot_candidates_dropped_total",
			Help: "Candidates removed by the filter stage that dropped them.",
		},
		[]string{"stage"},
	)

	attemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "replybot_attempts_total",
			Help: "Per-candidate attempts by result.",
		},
		[]string{"result"},
	)

	actionsToday = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "replybot_actions_today",
		Help: "Actions taken on the current calendar day.",
	})

	actionsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "replybot_actions_total",
		Help: "Actions taken across all days.",
	})
)

func init() {
	prometheus.MustRegister(cyclesTotal, cycleDuration, candidatesDropped, attemptsTotal, actionsToday, actionsTotal)
}

// ObserveCycle records one finished cycle.
func ObserveCycle(outcome string, d time.Duration) {
	cyclesTotal.WithLabelValues(outcome).Inc()
	cycleDuration.Observe(d.Seconds())
}

// CandidateDropped counts a candidate removed at stage.
func CandidateDropped(stage string) {
	candidatesDropped.WithLabelValues(stage).Inc()
}

// AttemptFinished counts a per-candidate attempt.
func AttemptFinished(result string) {
	attemptsTotal.WithLabelValues(result).Inc()
}

// SetQuota publishes the scheduler counters.
func SetQuota(today, total int) {
	actionsToday.Set(float64(today))
	actionsTotal.Set(float64(total))
}
