package models

import "time"

// Metric names accepted in ProfilingConfig.EnabledMetrics.
const (
	MetricNullRatio         = "null_ratio"
	MetricDistinctRatio     = "distinct_ratio"
	MetricMinMax            = "min_max"
	MetricPatternConformity = "pattern_conformity"
)

// AllMetrics lists every metric the profiler can compute.
var AllMetrics = []string{MetricNullRatio, MetricDistinctRatio, MetricMinMax, MetricPatternConformity}

// SamplingMode selects how profiling rows are chosen.
type SamplingMode string

const (
	// SamplingHead reads the first rows in primary key order.
	SamplingHead SamplingMode = "head"
	// SamplingRandom reads a seeded pseudo-random sample where the source supports it.
	SamplingRandom SamplingMode = "random"
)

const (
	DefaultSampleSize       = 1000
	DefaultMaxSampleSize    = 10000
	DefaultPerColumnTimeout = 5 * time.Second
	DefaultConcurrency      = 4
)

// ProfilingConfig controls how much data the quality profiler reads.
type ProfilingConfig struct {
	SampleSize       int           `json:"sample_size"`
	PerColumnTimeout time.Duration `json:"per_column_timeout"`
	EnabledMetrics   []string      `json:"enabled_metrics"`
	SamplingMode     SamplingMode  `json:"sampling_mode"`
	Seed             int64         `json:"seed"`
	Concurrency      int           `json:"concurrency"`
}

// Normalize fills defaults and clamps the sample size to maxSampleSize.
func (c ProfilingConfig) Normalize(maxSampleSize int) ProfilingConfig {
	if maxSampleSize <= 0 {
		maxSampleSize = DefaultMaxSampleSize
	}
	if c.SampleSize <= 0 {
		c.SampleSize = DefaultSampleSize
	}
	if c.SampleSize > maxSampleSize {
		c.SampleSize = maxSampleSize
	}
	if c.PerColumnTimeout <= 0 {
		c.PerColumnTimeout = DefaultPerColumnTimeout
	}
	if len(c.EnabledMetrics) == 0 {
		c.EnabledMetrics = append([]string(nil), AllMetrics...)
	}
	if c.SamplingMode != SamplingRandom {
		c.SamplingMode = SamplingHead
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	return c
}

// MetricEnabled reports whether name is in EnabledMetrics.
func (c ProfilingConfig) MetricEnabled(name string) bool {
	for _, m := range c.EnabledMetrics {
		if m == name {
			return true
		}
	}
	return false
}

// ColumnQuality holds sampled metrics for one column. Nil fields were not
// computed, either because the metric is disabled or does not apply to the
// column's type.
type ColumnQuality struct {
	SampleSize        int      `json:"sample_size"`
	NullRatio         *float64 `json:"null_ratio,omitempty"`
	DistinctRatio     *float64 `json:"distinct_ratio,omitempty"`
	Min               *string  `json:"min,omitempty"`
	Max               *string  `json:"max,omitempty"`
	PatternConformity *float64 `json:"pattern_conformity_ratio,omitempty"`
	DominantPattern   string   `json:"dominant_pattern,omitempty"`
	AvgLength         *float64 `json:"avg_length,omitempty"`
}

// QualityMetrics maps column IDs to their metrics.
type QualityMetrics map[string]ColumnQuality

// Ratio clamps v into [0,1] and returns a pointer for optional fields.
func Ratio(v float64) *float64 {
	if v < 0 || v != v {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return &v
}

// IssueKind classifies why a column or metric is missing from QualityMetrics.
type IssueKind string

const (
	IssueTimeout      IssueKind = "timeout"
	IssueQueryFailed  IssueKind = "query_failed"
	IssueRejected     IssueKind = "identifier_rejected"
	IssueIncompatible IssueKind = "type_incompatible"
	IssueCancelled    IssueKind = "cancelled"
)

// ProfilingIssue records a column, or one metric of a column, that could not
// be profiled. Metric is empty when the whole column is missing.
type ProfilingIssue struct {
	ColumnID string    `json:"column_id"`
	Metric   string    `json:"metric,omitempty"`
	Kind     IssueKind `json:"kind"`
	Reason   string    `json:"reason"`
}
