package monitoring

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsCollector_Counters(t *testing.T) {
	mc := NewMetricsCollector()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			mc.Inc(MetricPredictions)
		}()
	}
	wg.Wait()
	mc.Add(MetricCacheHits, 3)

	assert.Equal(t, 50.0, mc.Counter(MetricPredictions))
	assert.Equal(t, 3.0, mc.Counter(MetricCacheHits))
	assert.Zero(t, mc.Counter("unknown"))
}

func TestMetricsCollector_Summary(t *testing.T) {
	mc := NewMetricsCollector()
	_, ok := mc.GetSummary(MetricPredictLatency)
	assert.False(t, ok)

	for i := 1; i <= 100; i++ {
		mc.Observe(MetricPredictLatency, float64(101-i))
	}

	s, ok := mc.GetSummary(MetricPredictLatency)
	require.True(t, ok)
	assert.Equal(t, 100, s.Count)
	assert.Equal(t, 1.0, s.Latest)
	assert.Equal(t, 1.0, s.Min)
	assert.Equal(t, 100.0, s.Max)
	assert.InDelta(t, 50.5, s.Mean, 1e-9)
	assert.Equal(t, 50.0, s.P50)
	assert.Equal(t, 95.0, s.P95)
}

func TestMetricsCollector_BoundedSamples(t *testing.T) {
	mc := NewMetricsCollector()
	for i := 0; i < maxSamples+10; i++ {
		mc.Observe("x", float64(i))
	}
	s, ok := mc.GetSummary("x")
	require.True(t, ok)
	assert.Equal(t, maxSamples, s.Count)
	assert.Equal(t, 10.0, s.Min)
}

func TestMetricsCollector_Snapshot(t *testing.T) {
	mc := NewMetricsCollector()
	mc.Inc(MetricHTTPRequests)
	mc.ObserveDuration(MetricPredictLatency, 1500*time.Microsecond)

	snap := mc.Snapshot()
	assert.Equal(t, 1.0, snap.Counters[MetricHTTPRequests])
	assert.Equal(t, 1.5, snap.Summaries[MetricPredictLatency].Latest)
	assert.Positive(t, snap.System.Goroutines)
	assert.NotEmpty(t, snap.Uptime)
}
