package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"ride-pool/internal/pool-service/service"
)

// Collector holds the pool service's Prometheus series.
type Collector struct {
	matches       *prometheus.CounterVec
	matchDuration *prometheus.HistogramVec
	skips         *prometheus.CounterVec
	jobs          *prometheus.CounterVec
}

var _ service.MatchMetrics = (*Collector)(nil)

// New registers the collectors on reg. Use prometheus.NewRegistry in tests.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		matches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pool_match_total",
				Help: "Total number of match attempts by outcome",
			},
			[]string{"outcome"},
		),
		matchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pool_match_duration_seconds",
				Help:    "Time spent matching one ride request",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
		skips: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pool_candidate_skips_total",
				Help: "Candidate pools passed over during matching, by reason",
			},
			[]string{"reason"},
		),
		jobs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pool_jobs_total",
				Help: "Match jobs finished by the worker, by final status",
			},
			[]string{"status"},
		),
	}
	reg.MustRegister(c.matches, c.matchDuration, c.skips, c.jobs)
	return c
}

func (c *Collector) ObserveMatch(outcome string, elapsed time.Duration) {
	c.matches.WithLabelValues(outcome).Inc()
	c.matchDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

func (c *Collector) CandidateSkipped(reason string) {
	c.skips.WithLabelValues(reason).Inc()
}

// JobFinished counts a job leaving the worker as completed, failed or requeued.
func (c *Collector) JobFinished(status string) {
	c.jobs.WithLabelValues(status).Inc()
}
