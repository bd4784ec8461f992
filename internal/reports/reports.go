// Package reports is the analytics query and caching engine. It turns raw
// event rows into time-bucketed graphs, aggregate stats, and dimension
// breakdowns, and memoizes the results with staleness-aware caching.
//
// The package is organized into focused modules:
//   - reports.go: report types, metrics, dimensions, filters
//   - sql.go: SQL fragment construction (metric/dimension/filter expressions)
//   - queries.go: the report queries themselves
//   - cache.go: staleness-aware report cache with single-flight semantics
//   - validate.go: identifier syntax guards
package reports

import (
	"errors"
	"time"
)

// ErrInvalidIdentifier is returned when an entity id fails the syntax check
// before query construction. Treated as a caller bug or a potential
// injection attempt; the request is rejected before any SQL runs.
var ErrInvalidIdentifier = errors.New("invalid identifier")

// DateRange is a [Start, End) query window. Both bounds are UTC.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Prev returns the immediately preceding range of identical duration,
// used for period-over-period comparison.
func (r DateRange) Prev() DateRange {
	duration := r.End.Sub(r.Start)
	return DateRange{Start: r.Start.Add(-duration), End: r.Start}
}

// Duration returns the width of the range.
func (r DateRange) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// EndsInFuture reports whether the range covers "now". Ranges ending in the
// past aggregate immutable data and can be cached indefinitely.
func (r DateRange) EndsInFuture() bool {
	return r.End.After(time.Now().UTC())
}

// Metric selects the aggregation applied over session-level rows.
type Metric string

const (
	MetricViews              Metric = "views"
	MetricSessions           Metric = "sessions"
	MetricUniqueVisitors     Metric = "unique_visitors"
	MetricAvgViewsPerSession Metric = "avg_views_per_session"
)

// Dimension is a categorical event attribute used for grouping and filtering.
type Dimension string

const (
	DimensionUrl      Dimension = "url"
	DimensionFqdn     Dimension = "fqdn"
	DimensionPath     Dimension = "path"
	DimensionReferrer Dimension = "referrer"
	DimensionPlatform Dimension = "platform"
	DimensionBrowser  Dimension = "browser"
	DimensionMobile   Dimension = "mobile"
	DimensionCountry  Dimension = "country"
	DimensionCity     Dimension = "city"
)

// FilterType selects the comparison a DimensionFilter applies.
type FilterType string

const (
	FilterEqual       FilterType = "equal"
	FilterNotEqual    FilterType = "not_equal"
	FilterContains    FilterType = "contains"
	FilterNotContains FilterType = "not_contains"
	FilterIsNull      FilterType = "is_null"
)

// DimensionFilter restricts report rows by a dimension value. Value is
// ignored for FilterIsNull. Filter values are always bound as SQL
// parameters, never spliced into query text.
type DimensionFilter struct {
	Dimension  Dimension  `json:"dimension"`
	FilterType FilterType `json:"filter_type"`
	Value      string     `json:"value"`
}

// ReportGraph is an ordered sequence of bucket values, one per requested
// data point. Ratio metrics are scaled by 1000 (three implied decimals).
type ReportGraph []int64

// ReportTable maps a dimension value to its metric value. Iteration order is
// unspecified; consumers sort by value descending.
type ReportTable map[string]int64

// ReportStats is the single-row aggregate over a whole range.
// AvgViewsPerSession carries three implied decimal digits (scaled by 1000)
// to avoid passing raw floats across the API boundary.
type ReportStats struct {
	TotalViews         int64 `json:"total_views"`
	TotalSessions      int64 `json:"total_sessions"`
	UniqueVisitors     int64 `json:"unique_visitors"`
	AvgViewsPerSession int64 `json:"avg_views_per_session"`
}
