package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/rohitdahale/codebattle-backend/internal/domain"
)

// Collection records match engine and evaluator metrics on one registry.
type Collection struct {
	matchesStarted     *prometheus.CounterVec
	matchesFinished    *prometheus.CounterVec
	queueSize          prometheus.Gauge
	liveSessions       prometheus.Gauge
	evaluationDuration *prometheus.HistogramVec
	recordFailures     prometheus.Counter

	factory promauto.Factory
}

func New(registry *prometheus.Registry) *Collection {
	factory := promauto.With(registry)

	return &Collection{
		factory: factory,
		matchesStarted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "codebattle_matches_started_total",
				Help: "Number of rounds that became active, by match type",
			}, []string{"origin"}),
		matchesFinished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "codebattle_matches_finished_total",
				Help: "Number of rounds that finished, by match type and end reason",
			}, []string{"origin", "reason"}),
		queueSize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "codebattle_queue_size",
			Help: "Players currently waiting in the quick match queue",
		}),
		liveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "codebattle_live_sessions",
			Help: "Sessions currently in a round",
		}),
		//nolint:promlinter
		evaluationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "codebattle_evaluation_duration_ms",
				Help:    "Time spent scoring one submission in milliseconds",
				Buckets: prometheus.ExponentialBuckets(5, 2, 12),
			}, []string{"outcome"}),
		recordFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "codebattle_record_failures_total",
			Help: "Finished matches that could not be persisted",
		}),
	}
}

func (c *Collection) MatchStarted(origin domain.Origin) {
	c.matchesStarted.With(prometheus.Labels{"origin": string(origin)}).Inc()
}

func (c *Collection) MatchFinished(origin domain.Origin, reason domain.EndReason) {
	c.matchesFinished.With(prometheus.Labels{"origin": string(origin), "reason": string(reason)}).Inc()
}

func (c *Collection) QueueSize(n int) {
	c.queueSize.Set(float64(n))
}

func (c *Collection) LiveSessions(n int) {
	c.liveSessions.Set(float64(n))
}

func (c *Collection) ObserveEvaluation(outcome string, elapsed time.Duration) {
	c.evaluationDuration.With(prometheus.Labels{"outcome": outcome}).Observe(float64(elapsed.Milliseconds()))
}

func (c *Collection) RecordFailed() {
	c.recordFailures.Inc()
}

// TrackDroppedEvents exposes a running count of events the Redis mirror had
// to discard.
func (c *Collection) TrackDroppedEvents(dropped func() int64) prometheus.CounterFunc {
	return c.factory.NewCounterFunc(prometheus.CounterOpts{
		Name: "codebattle_events_dropped_total",
		Help: "Events discarded because the publish buffer was full",
	}, func() float64 { return float64(dropped()) })
}
