package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/rohitdahale/codebattle-backend/internal/domain"
)

func TestCollection(t *testing.T) {
	registry := prometheus.NewRegistry()
	c := New(registry)

	c.MatchStarted(domain.OriginQueue)
	c.MatchStarted(domain.OriginQueue)
	c.MatchStarted(domain.OriginRoom)
	c.MatchFinished(domain.OriginRoom, domain.EndTimeout)
	c.QueueSize(3)
	c.LiveSessions(2)
	c.ObserveEvaluation("ok", 120*time.Millisecond)
	c.RecordFailed()

	assert.Equal(t, 2.0, testutil.ToFloat64(c.matchesStarted.WithLabelValues("quick")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.matchesStarted.WithLabelValues("room")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.matchesFinished.WithLabelValues("room", "timeout")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.queueSize))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.liveSessions))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.recordFailures))
	assert.Equal(t, 1, testutil.CollectAndCount(c.evaluationDuration))
}

func TestTrackDroppedEvents(t *testing.T) {
	registry := prometheus.NewRegistry()
	c := New(registry)

	var dropped int64 = 4
	counter := c.TrackDroppedEvents(func() int64 { return dropped })
	assert.Equal(t, 4.0, testutil.ToFloat64(counter))

	dropped = 9
	assert.Equal(t, 9.0, testutil.ToFloat64(counter))

	count, err := testutil.GatherAndCount(registry, "codebattle_events_dropped_total")
	assert.NoError(t, err)
	assert.Equal(t, 1, count)
}
