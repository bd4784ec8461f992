package reports

import (
	"sort"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

// cacheGuardTimeout bounds how long a request waits on another request's
// in-flight computation of the same key before computing independently.
const cacheGuardTimeout = 5 * time.Second

// ReportCache memoizes report results keyed by the full request tuple, one
// bounded cache per report kind. Construct one per application and inject it
// wherever reports are served; instances share nothing.
type ReportCache struct {
	graphs *flightCache[ReportGraph]
	stats  *flightCache[ReportStats]
	tables *flightCache[ReportTable]
}

// NewReportCache creates a ReportCache holding up to capacity entries per
// report kind.
func NewReportCache(capacity int) *ReportCache {
	return &ReportCache{
		graphs: newFlightCache[ReportGraph](capacity),
		stats:  newFlightCache[ReportStats](capacity),
		tables: newFlightCache[ReportTable](capacity),
	}
}

// OverallReport is the cached variant of the package-level OverallReport.
func (c *ReportCache) OverallReport(db *gorm.DB, entities []string, event string, rng DateRange, dataPoints int, filters []DimensionFilter, metric Metric) (ReportGraph, error) {
	entities = sortedEntities(entities)
	filters = sortedFilters(filters)

	key := cacheKey(
		entitiesKey(entities), event, rangeKey(rng),
		strconv.Itoa(dataPoints), filtersKey(filters), string(metric),
	)
	return c.graphs.getOrCompute(key, rng, func() (ReportGraph, error) {
		return OverallReport(db, entities, event, rng, dataPoints, filters, metric)
	})
}

// OverallStats is the cached variant of the package-level OverallStats.
func (c *ReportCache) OverallStats(db *gorm.DB, entities []string, event string, rng DateRange, filters []DimensionFilter) (ReportStats, error) {
	entities = sortedEntities(entities)
	filters = sortedFilters(filters)

	key := cacheKey(entitiesKey(entities), event, rangeKey(rng), filtersKey(filters))
	return c.stats.getOrCompute(key, rng, func() (ReportStats, error) {
		return OverallStats(db, entities, event, rng, filters)
	})
}

// DimensionReport is the cached variant of the package-level DimensionReport.
func (c *ReportCache) DimensionReport(db *gorm.DB, entities []string, event string, rng DateRange, dimension Dimension, filters []DimensionFilter, metric Metric) (ReportTable, error) {
	entities = sortedEntities(entities)
	filters = sortedFilters(filters)

	key := cacheKey(
		entitiesKey(entities), event, rangeKey(rng),
		string(dimension), filtersKey(filters), string(metric),
	)
	return c.tables.getOrCompute(key, rng, func() (ReportTable, error) {
		return DimensionReport(db, entities, event, rng, dimension, filters, metric)
	})
}

// shouldInvalidate decides whether a cached entry has likely gone stale.
// Ranges ending in the past aggregate immutable data and never invalidate.
// For ranges covering "now", the tolerated age grows with range duration:
// short ranges move visibly within a minute, year-long ones barely drift in
// an hour.
func shouldInvalidate(rng DateRange, computedAt time.Time) bool {
	if !rng.EndsInFuture() {
		return false
	}

	age := time.Since(computedAt)
	switch days := int64(rng.Duration().Hours() / 24); {
	case days <= 6:
		return age >= time.Minute
	case days <= 31:
		return age > 5*time.Minute
	case days <= 365:
		return age > 30*time.Minute
	default:
		return age > time.Hour
	}
}

type cacheEntry[T any] struct {
	computedAt time.Time
	value      T
}

// flightCache is a bounded key-value cache with single-flight computation.
// Concurrent misses on one key share a single computation; a request that
// has waited cacheGuardTimeout gives up on the shared flight and computes
// independently (duplicate work beats blocking indefinitely; both results
// are valid and last write wins).
type flightCache[T any] struct {
	entries      *lru.Cache[string, cacheEntry[T]]
	flight       singleflight.Group
	guardTimeout time.Duration
}

func newFlightCache[T any](capacity int) *flightCache[T] {
	// lru.New only fails for capacity <= 0, which NewReportCache's callers
	// never pass (config validation rejects it).
	entries, err := lru.New[string, cacheEntry[T]](capacity)
	if err != nil {
		panic(err)
	}
	return &flightCache[T]{entries: entries, guardTimeout: cacheGuardTimeout}
}

func (c *flightCache[T]) getOrCompute(key string, rng DateRange, compute func() (T, error)) (T, error) {
	if entry, ok := c.entries.Get(key); ok {
		if !shouldInvalidate(rng, entry.computedAt) {
			return entry.value, nil
		}
		c.entries.Remove(key)
	}

	ch := c.flight.DoChan(key, func() (interface{}, error) {
		value, err := compute()
		if err != nil {
			// Failures are never memoized; the next request recomputes.
			return nil, err
		}
		c.entries.Add(key, cacheEntry[T]{computedAt: time.Now().UTC(), value: value})
		return value, nil
	})

	select {
	case result := <-ch:
		if result.Err != nil {
			var zero T
			return zero, result.Err
		}
		return result.Val.(T), nil
	case <-time.After(c.guardTimeout):
		value, err := compute()
		if err != nil {
			var zero T
			return zero, err
		}
		c.entries.Add(key, cacheEntry[T]{computedAt: time.Now().UTC(), value: value})
		return value, nil
	}
}

// sortedEntities returns a sorted copy so that requests differing only in
// entity order collapse onto one cache key.
func sortedEntities(entities []string) []string {
	out := make([]string, len(entities))
	copy(out, entities)
	sort.Strings(out)
	return out
}

// sortedFilters returns a canonically ordered copy of the filter list.
func sortedFilters(filters []DimensionFilter) []DimensionFilter {
	out := make([]DimensionFilter, len(filters))
	copy(out, filters)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Dimension != out[j].Dimension {
			return out[i].Dimension < out[j].Dimension
		}
		if out[i].FilterType != out[j].FilterType {
			return out[i].FilterType < out[j].FilterType
		}
		return out[i].Value < out[j].Value
	})
	return out
}

const keySep = "\x1f"

func cacheKey(parts ...string) string {
	return strings.Join(parts, keySep)
}

func entitiesKey(sorted []string) string {
	return strings.Join(sorted, keySep)
}

func rangeKey(rng DateRange) string {
	return strconv.FormatInt(rng.Start.UTC().UnixNano(), 10) + ":" +
		strconv.FormatInt(rng.End.UTC().UnixNano(), 10)
}

func filtersKey(sorted []DimensionFilter) string {
	parts := make([]string, len(sorted))
	for i, f := range sorted {
		parts[i] = string(f.Dimension) + "|" + string(f.FilterType) + "|" + f.Value
	}
	return strings.Join(parts, keySep)
}
