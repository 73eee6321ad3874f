package reactor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueMetricsTracksCurrentAndMax(t *testing.T) {
	var q QueueMetrics
	q.UpdateReady(3)
	q.UpdateReady(7)
	q.UpdateReady(2)
	assert.Equal(t, 2, q.ReadyCurrent)
	assert.Equal(t, 7, q.ReadyMax)

	q.UpdateTimers(5)
	q.UpdateTimers(1)
	assert.Equal(t, 1, q.TimerCurrent)
	assert.Equal(t, 5, q.TimerMax)
}

func TestLatencyMetricsSampleOrdersPercentiles(t *testing.T) {
	var l LatencyMetrics
	for i := 1; i <= 100; i++ {
		l.Record(time.Duration(i) * time.Millisecond)
	}
	n := l.Sample()
	assert.Equal(t, 100, n)
	assert.LessOrEqual(t, l.P50, l.P90)
	assert.LessOrEqual(t, l.P90, l.P95)
	assert.LessOrEqual(t, l.P95, l.P99)
	assert.LessOrEqual(t, l.P99, l.Max)
	assert.Equal(t, 100*time.Millisecond, l.Max)
}

func TestTPSCounterCountsWithinWindow(t *testing.T) {
	c := NewTPSCounter(time.Second, 100*time.Millisecond)
	for i := 0; i < 10; i++ {
		c.Increment()
	}
	assert.Greater(t, c.TPS(), 0.0)
}

func TestReactorMetricsWiredIntoScheduler(t *testing.T) {
	r, err := Setup(WithMetrics(true), WithNumFibers(4))
	require.NoError(t, err)
	defer r.Teardown()

	require.NotNil(t, r.Metrics())

	_, err = r.Spawn(func(rr *Reactor) error {
		rr.Yield()
		rr.Stop()
		return nil
	}, false)
	require.NoError(t, err)

	require.NoError(t, r.Start())
	assert.Greater(t, r.Metrics().SwitchLatency.Sample(), 0)
}
