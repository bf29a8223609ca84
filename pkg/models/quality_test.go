package models

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProfilingConfig_Normalize(t *testing.T) {
	cfg := ProfilingConfig{}.Normalize(0)
	assert.Equal(t, DefaultSampleSize, cfg.SampleSize)
	assert.Equal(t, DefaultPerColumnTimeout, cfg.PerColumnTimeout)
	assert.Equal(t, SamplingHead, cfg.SamplingMode)
	assert.Equal(t, AllMetrics, cfg.EnabledMetrics)
	assert.Equal(t, DefaultConcurrency, cfg.Concurrency)

	capped := ProfilingConfig{SampleSize: 50000, PerColumnTimeout: time.Second, SamplingMode: SamplingRandom}.Normalize(2000)
	assert.Equal(t, 2000, capped.SampleSize)
	assert.Equal(t, time.Second, capped.PerColumnTimeout)
	assert.Equal(t, SamplingRandom, capped.SamplingMode)

	bogus := ProfilingConfig{SamplingMode: "shuffle"}.Normalize(10)
	assert.Equal(t, SamplingHead, bogus.SamplingMode)
}

func TestProfilingConfig_MetricEnabled(t *testing.T) {
	cfg := ProfilingConfig{EnabledMetrics: []string{MetricNullRatio}}
	assert.True(t, cfg.MetricEnabled(MetricNullRatio))
	assert.False(t, cfg.MetricEnabled(MetricMinMax))
}

func TestRatio(t *testing.T) {
	assert.Equal(t, 0.0, *Ratio(-0.5))
	assert.Equal(t, 1.0, *Ratio(3))
	assert.Equal(t, 0.25, *Ratio(0.25))
	assert.Equal(t, 0.0, *Ratio(math.NaN()))
}
