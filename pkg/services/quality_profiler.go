package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ekaya-inc/sourcesense/pkg/adapters/datasource"
	"github.com/ekaya-inc/sourcesense/pkg/apperrors"
	"github.com/ekaya-inc/sourcesense/pkg/logging"
	"github.com/ekaya-inc/sourcesense/pkg/metrics"
	"github.com/ekaya-inc/sourcesense/pkg/models"
	"github.com/ekaya-inc/sourcesense/pkg/retry"
)

// QualityReport is the output of one profiling pass.
type QualityReport struct {
	Metrics models.QualityMetrics
	Issues  []models.ProfilingIssue
	// Columns is the number of columns profiling was attempted on.
	Columns int
	// Cancelled is set when the run budget ended before every column was sampled.
	Cancelled bool

	transientErr error
}

// TransientFailure returns a transient source error when every column failed
// with one, so the whole facet is worth retrying. It is nil otherwise.
func (r *QualityReport) TransientFailure() error {
	if r == nil || len(r.Metrics) > 0 || r.Columns == 0 {
		return nil
	}
	return r.transientErr
}

// QualityProfiler computes per-column quality metrics from bounded samples.
type QualityProfiler interface {
	// Profile samples every column of tree. Per-column failures become
	// issues and missing entries; Profile itself never fails.
	Profile(ctx context.Context, adapter datasource.SourceAdapter, tree *models.SchemaTree, cfg models.ProfilingConfig) *QualityReport
}

type qualityProfiler struct {
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewQualityProfiler creates a quality profiler. m may be nil.
func NewQualityProfiler(m *metrics.Metrics, logger *zap.Logger) QualityProfiler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &qualityProfiler{
		metrics: m,
		logger:  logger.Named("profiler"),
	}
}

// columnOutcome is the result of sampling one column.
type columnOutcome struct {
	id       string
	quality  *models.ColumnQuality
	issues   []models.ProfilingIssue
	queryErr error
}

func (p *qualityProfiler) Profile(ctx context.Context, adapter datasource.SourceAdapter, tree *models.SchemaTree, cfg models.ProfilingConfig) *QualityReport {
	cfg = cfg.Normalize(cfg.SampleSize)
	report := &QualityReport{Metrics: make(models.QualityMetrics)}

	var (
		mu       sync.Mutex
		outcomes []columnOutcome
	)

	g := new(errgroup.Group)
	g.SetLimit(cfg.Concurrency)

	for _, t := range tree.Tables() {
		for _, col := range t.Columns {
			report.Columns++
			g.Go(func() error {
				out := p.profileColumn(ctx, adapter, t, col, cfg)
				mu.Lock()
				outcomes = append(outcomes, out)
				mu.Unlock()
				return nil
			})
		}
	}
	_ = g.Wait()

	allTransient := len(outcomes) > 0
	for _, out := range outcomes {
		if out.quality != nil {
			report.Metrics[out.id] = *out.quality
		}
		report.Issues = append(report.Issues, out.issues...)
		if out.queryErr == nil || !retry.IsTransient(out.queryErr) {
			allTransient = false
		} else if report.transientErr == nil {
			report.transientErr = out.queryErr
		}
	}
	if !allTransient {
		report.transientErr = nil
	}
	report.Cancelled = ctx.Err() != nil

	sort.Slice(report.Issues, func(i, j int) bool {
		if report.Issues[i].ColumnID != report.Issues[j].ColumnID {
			return report.Issues[i].ColumnID < report.Issues[j].ColumnID
		}
		return report.Issues[i].Metric < report.Issues[j].Metric
	})

	p.logger.Debug("Profiling complete",
		zap.Int("columns", report.Columns),
		zap.Int("profiled", len(report.Metrics)),
		zap.Int("issues", len(report.Issues)),
		zap.Bool("cancelled", report.Cancelled))

	return report
}

func (p *qualityProfiler) profileColumn(ctx context.Context, adapter datasource.SourceAdapter, t *models.Table, col *models.Column, cfg models.ProfilingConfig) columnOutcome {
	id := t.ColumnID(col.Name)
	out := columnOutcome{id: id}
	kind := string(adapter.Kind())

	if err := ctx.Err(); err != nil {
		out.issues = append(out.issues, models.ProfilingIssue{
			ColumnID: id, Kind: models.IssueCancelled, Reason: "run budget exhausted before sampling",
		})
		return out
	}

	mode := cfg.SamplingMode
	if t.IsView() {
		// Table sampling clauses do not apply to views.
		mode = models.SamplingHead
	}

	colCtx, cancel := context.WithTimeout(ctx, cfg.PerColumnTimeout)
	defer cancel()

	res, err := adapter.SampleRows(colCtx, datasource.TableIdent{
		Database: t.Database,
		Schema:   t.Schema,
		Name:     t.Name,
	}, []string{col.Name}, datasource.SampleOptions{
		Limit:       cfg.SampleSize,
		Timeout:     cfg.PerColumnTimeout,
		Mode:        mode,
		Seed:        cfg.Seed,
		OrderBy:     t.PrimaryKey,
		RowEstimate: t.RowEstimate,
	})
	if err != nil {
		out.issues = append(out.issues, p.sampleIssue(ctx, kind, id, err))
		if !errors.Is(err, apperrors.ErrPartialData) && !errors.Is(err, apperrors.ErrUnsafeQuery) {
			out.queryErr = err
		}
		return out
	}
	p.metrics.RecordSample(kind, metrics.SampleOK)

	rows := res.Rows
	if len(rows) > cfg.SampleSize {
		rows = rows[:cfg.SampleSize]
	}
	values := make([]any, 0, len(rows))
	for _, r := range rows {
		if len(r) == 0 {
			values = append(values, nil)
			continue
		}
		values = append(values, r[0])
	}

	q, issues := computeColumnQuality(values, col, cfg)
	for i := range issues {
		issues[i].ColumnID = id
	}
	out.quality = &q
	out.issues = append(out.issues, issues...)
	return out
}

// sampleIssue classifies a failed sampling query.
func (p *qualityProfiler) sampleIssue(ctx context.Context, kind, id string, err error) models.ProfilingIssue {
	switch {
	case ctx.Err() != nil:
		p.metrics.RecordSample(kind, metrics.SamplePartial)
		return models.ProfilingIssue{ColumnID: id, Kind: models.IssueCancelled, Reason: "run budget exhausted while sampling"}
	case errors.Is(err, apperrors.ErrPartialData), errors.Is(err, context.DeadlineExceeded):
		p.metrics.RecordSample(kind, metrics.SamplePartial)
		timeout := &apperrors.ProfilingTimeout{ColumnID: id, Err: err}
		p.logger.Debug("Column sampling timed out", zap.String("column", id))
		return models.ProfilingIssue{ColumnID: id, Kind: models.IssueTimeout, Reason: timeout.Error()}
	case errors.Is(err, apperrors.ErrUnsafeQuery):
		p.metrics.RecordSample(kind, metrics.SampleRejected)
		p.logger.Warn("Column skipped, identifier rejected", zap.String("column", id))
		return models.ProfilingIssue{ColumnID: id, Kind: models.IssueRejected, Reason: logging.SanitizeError(err)}
	}
	p.metrics.RecordSample(kind, metrics.SampleError)
	p.logger.Warn("Column sampling failed",
		zap.String("column", id),
		zap.String("error", logging.SanitizeError(err)))
	return models.ProfilingIssue{ColumnID: id, Kind: models.IssueQueryFailed, Reason: logging.SanitizeError(err)}
}

// computeColumnQuality derives metrics from sampled values. Ratios are over
// the sample size, except pattern conformity which is over non-null values.
func computeColumnQuality(values []any, col *models.Column, cfg models.ProfilingConfig) (models.ColumnQuality, []models.ProfilingIssue) {
	q := models.ColumnQuality{SampleSize: len(values)}
	if len(values) == 0 {
		return q, nil
	}

	var issues []models.ProfilingIssue
	n := float64(len(values))
	nonNull := make([]any, 0, len(values))
	for _, v := range values {
		if v != nil {
			nonNull = append(nonNull, v)
		}
	}

	if cfg.MetricEnabled(models.MetricNullRatio) {
		q.NullRatio = models.Ratio(float64(len(values)-len(nonNull)) / n)
	}
	if cfg.MetricEnabled(models.MetricDistinctRatio) {
		distinct := make(map[string]struct{}, len(nonNull))
		for _, v := range nonNull {
			distinct[valueKey(v)] = struct{}{}
		}
		q.DistinctRatio = models.Ratio(float64(len(distinct)) / n)
	}

	family := models.ClassifyType(col.DataType)
	if len(nonNull) == 0 {
		return q, nil
	}

	if cfg.MetricEnabled(models.MetricMinMax) && (family == models.TypeFamilyNumeric || family == models.TypeFamilyTemporal) {
		lo, hi, err := minMax(nonNull, family)
		if err != nil {
			issues = append(issues, models.ProfilingIssue{
				Metric: models.MetricMinMax, Kind: models.IssueIncompatible, Reason: err.Error(),
			})
		} else {
			q.Min, q.Max = &lo, &hi
		}
	}

	if family == models.TypeFamilyText {
		strs := make([]string, len(nonNull))
		total := 0
		for i, v := range nonNull {
			strs[i] = valueString(v)
			total += utf8.RuneCountInString(strs[i])
		}
		avg := float64(total) / float64(len(strs))
		q.AvgLength = &avg

		if cfg.MetricEnabled(models.MetricPatternConformity) {
			name, ratio := patternConformity(strs)
			q.PatternConformity = models.Ratio(ratio)
			q.DominantPattern = name
		}
	}

	return q, issues
}

func valueString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	}
	return fmt.Sprint(v)
}

// valueKey is used for distinct counting; the type prefix keeps 1 and "1" apart.
func valueKey(v any) string {
	return fmt.Sprintf("%T:%s", v, valueString(v))
}

func minMax(values []any, family models.TypeFamily) (string, string, error) {
	if family == models.TypeFamilyTemporal {
		if lo, hi, ok := timeRange(values); ok {
			layout := time.RFC3339Nano
			if lo.Year() == 0 && hi.Year() == 0 {
				layout = timeOfDayLayout
			}
			return lo.UTC().Format(layout), hi.UTC().Format(layout), nil
		}
	}
	// Numeric columns, and temporal columns stored as numbers (MySQL YEAR).
	lo, hi, ok := floatRange(values)
	if !ok {
		return "", "", fmt.Errorf("values are not comparable as %s", family)
	}
	return formatFloat(lo), formatFloat(hi), nil
}

func floatRange(values []any) (float64, float64, bool) {
	var lo, hi float64
	for i, v := range values {
		f, ok := toFloat(v)
		if !ok {
			return 0, 0, false
		}
		if i == 0 || f < lo {
			lo = f
		}
		if i == 0 || f > hi {
			hi = f
		}
	}
	return lo, hi, true
}

func timeRange(values []any) (time.Time, time.Time, bool) {
	var lo, hi time.Time
	for i, v := range values {
		ts, ok := toTime(v)
		if !ok {
			return time.Time{}, time.Time{}, false
		}
		if i == 0 || ts.Before(lo) {
			lo = ts
		}
		if i == 0 || ts.After(hi) {
			hi = ts
		}
	}
	return lo, hi, true
}

func toFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case int64:
		return float64(val), true
	case float64:
		return val, true
	case bool:
		if val {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		return f, err == nil
	}
	return 0, false
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
	timeOfDayLayout,
}

// Times of day parse into year 0.
const timeOfDayLayout = "15:04:05.999999999"

func toTime(v any) (time.Time, bool) {
	switch val := v.(type) {
	case time.Time:
		return val, true
	case string:
		s := strings.TrimSpace(val)
		for _, layout := range timeLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts, true
			}
		}
	}
	return time.Time{}, false
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Ensure qualityProfiler implements QualityProfiler at compile time.
var _ QualityProfiler = (*qualityProfiler)(nil)
