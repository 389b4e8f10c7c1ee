package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsServiceRegistersCacheHistograms(t *testing.T) {
	m := NewMetricsService()

	m.RecordCacheOperation(true, 5*time.Millisecond)
	m.RecordCacheOperation(false, 5*time.Millisecond)
	m.ObserveCacheWrite(2 * time.Millisecond)

	families, err := m.Registry().Gather()
	require.NoError(t, err)

	counts := map[string]uint64{}
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			if h := metric.GetHistogram(); h != nil {
				counts[mf.GetName()] = h.GetSampleCount()
			}
		}
	}
	assert.Equal(t, uint64(2), counts["cache_latency_seconds"])
	assert.Equal(t, uint64(1), counts["cache_write_seconds"])
}

func TestMetricsServiceNilIsSafe(t *testing.T) {
	var m *MetricsService
	assert.NotPanics(t, func() {
		m.RecordCacheOperation(true, time.Millisecond)
		m.ObserveCacheWrite(time.Millisecond)
		m.IncQCTransition("approve")
	})
	assert.Nil(t, m.Registry())
}
