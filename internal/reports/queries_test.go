package reports_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vantage/internal/events"
	"vantage/internal/reports"
	"vantage/internal/testsupport"
)

// march is a fixed historical month so results never depend on when the
// tests run: [2024-03-01, 2024-03-31), 30 days.
var march = reports.DateRange{
	Start: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	End:   time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
}

func at(day, hour, min int) time.Time {
	return time.Date(2024, 3, day, hour, min, 0, 0, time.UTC)
}

func TestOverallStatsMetrics(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	entity := "site-stats"

	// v1: 5 views between 10:00 and 10:20, all inside the [10:00, 10:30) window
	for _, min := range []int{0, 5, 10, 15, 20} {
		testsupport.CreateEvent(t, db, entity, "v1", "/a", at(5, 10, min))
	}
	// v2: 3 views inside [11:00, 11:30)
	for _, min := range []int{0, 10, 20} {
		testsupport.CreateEvent(t, db, entity, "v2", "/b", at(5, 11, min))
	}
	// v3: 2 views inside [12:00, 12:30)
	for _, min := range []int{0, 10} {
		testsupport.CreateEvent(t, db, entity, "v3", "/c", at(5, 12, min))
	}

	stats, err := reports.OverallStats(db, []string{entity}, events.EventPageview, march, nil)
	require.NoError(t, err)

	assert.Equal(t, int64(10), stats.TotalViews)
	assert.Equal(t, int64(3), stats.TotalSessions)
	assert.Equal(t, int64(3), stats.UniqueVisitors)
	// 10 views / 3 visitors = 3.333..., scaled by 1000
	assert.Equal(t, int64(3333), stats.AvgViewsPerSession)
}

func TestSessionsSplitAtWindowBoundary(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	entity := "site-sessions"

	// Same visitor, 40 minutes apart: 10:00 falls in [10:00, 10:30) and
	// 10:40 in [10:30, 11:00), so two sessions.
	testsupport.CreateEvent(t, db, entity, "v1", "/a", at(10, 10, 0))
	testsupport.CreateEvent(t, db, entity, "v1", "/b", at(10, 10, 40))

	stats, err := reports.OverallStats(db, []string{entity}, events.EventPageview, march, nil)
	require.NoError(t, err)

	assert.Equal(t, int64(2), stats.TotalViews)
	assert.Equal(t, int64(2), stats.TotalSessions)
	assert.Equal(t, int64(1), stats.UniqueVisitors)
}

func TestOverallReportGraph(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	entity := "site-graph"

	// March 5th events land in bin 4 when the 30-day range splits into 30
	// one-day bins.
	for _, min := range []int{0, 5, 10} {
		testsupport.CreateEvent(t, db, entity, "v1", "/a", at(5, 10, min))
	}
	testsupport.CreateEvent(t, db, entity, "v2", "/b", at(5, 14, 0))
	// March 20th lands in bin 19.
	testsupport.CreateEvent(t, db, entity, "v3", "/c", at(20, 9, 0))

	graph, err := reports.OverallReport(db, []string{entity}, events.EventPageview, march, 30, nil, reports.MetricViews)
	require.NoError(t, err)

	require.Len(t, graph, 30)
	assert.Equal(t, int64(4), graph[4])
	assert.Equal(t, int64(1), graph[19])

	var total int64
	for _, v := range graph {
		total += v
	}
	assert.Equal(t, int64(5), total)

	visitors, err := reports.OverallReport(db, []string{entity}, events.EventPageview, march, 30, nil, reports.MetricUniqueVisitors)
	require.NoError(t, err)
	assert.Equal(t, int64(2), visitors[4])
	assert.Equal(t, int64(1), visitors[19])
}

func TestOverallReportEmptyEntities(t *testing.T) {
	// No db: an empty entity list must short-circuit before any query.
	graph, err := reports.OverallReport(nil, nil, events.EventPageview, march, 12, nil, reports.MetricViews)
	require.NoError(t, err)
	assert.Equal(t, reports.ReportGraph(make([]int64, 12)), graph)

	stats, err := reports.OverallStats(nil, nil, events.EventPageview, march, nil)
	require.NoError(t, err)
	assert.Equal(t, reports.ReportStats{}, stats)

	table, err := reports.DimensionReport(nil, nil, events.EventPageview, march, reports.DimensionPath, nil, reports.MetricViews)
	require.NoError(t, err)
	assert.Empty(t, table)

	online, err := reports.OnlineUsers(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), online)
}

func TestOverallReportInvalidEntity(t *testing.T) {
	db := testsupport.SetupTestDB(t)

	_, err := reports.OverallReport(db, []string{"bad entity"}, events.EventPageview, march, 10, nil, reports.MetricViews)
	assert.ErrorIs(t, err, reports.ErrInvalidIdentifier)

	_, err = reports.OverallStats(db, []string{"'; DROP TABLE events; --"}, events.EventPageview, march, nil)
	assert.ErrorIs(t, err, reports.ErrInvalidIdentifier)
}

func TestDimensionReportGroupsAndUnknown(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	entity := "site-dim"

	testsupport.CreateEvent(t, db, entity, "v1", "/home", at(8, 10, 0))
	testsupport.CreateEvent(t, db, entity, "v1", "/home", at(8, 10, 5))
	testsupport.CreateEvent(t, db, entity, "v2", "/pricing", at(8, 11, 0))
	// No path at all: groups under Unknown.
	testsupport.CreateDimensionEvent(t, db, entity, "v3", at(8, 12, 0), nil)

	table, err := reports.DimensionReport(db, []string{entity}, events.EventPageview, march, reports.DimensionPath, nil, reports.MetricViews)
	require.NoError(t, err)

	assert.Equal(t, reports.ReportTable{
		"/home":    2,
		"/pricing": 1,
		"Unknown":  1,
	}, table)
}

func TestDimensionReportMobile(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	entity := "site-mobile"
	yes, no := true, false

	testsupport.CreateDimensionEvent(t, db, entity, "v1", at(12, 10, 0), func(e *events.Event) { e.Mobile = &yes })
	testsupport.CreateDimensionEvent(t, db, entity, "v2", at(12, 10, 5), func(e *events.Event) { e.Mobile = &yes })
	testsupport.CreateDimensionEvent(t, db, entity, "v3", at(12, 10, 10), func(e *events.Event) { e.Mobile = &no })
	testsupport.CreateDimensionEvent(t, db, entity, "v4", at(12, 10, 15), nil)

	table, err := reports.DimensionReport(db, []string{entity}, events.EventPageview, march, reports.DimensionMobile, nil, reports.MetricViews)
	require.NoError(t, err)

	assert.Equal(t, reports.ReportTable{
		"true":    2,
		"false":   1,
		"Unknown": 1,
	}, table)
}

func TestDimensionReportConcatenatedURL(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	entity := "site-url"
	fqdn, path := "example.com", "/docs"

	testsupport.CreateDimensionEvent(t, db, entity, "v1", at(15, 10, 0), func(e *events.Event) {
		e.Fqdn = &fqdn
		e.Path = &path
	})
	// Neither part present: the concatenation is empty and maps to Unknown.
	testsupport.CreateDimensionEvent(t, db, entity, "v2", at(15, 11, 0), nil)

	table, err := reports.DimensionReport(db, []string{entity}, events.EventPageview, march, reports.DimensionUrl, nil, reports.MetricViews)
	require.NoError(t, err)

	assert.Equal(t, reports.ReportTable{
		"example.com/docs": 1,
		"Unknown":          1,
	}, table)
}

func TestDimensionFilters(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	entity := "site-filters"

	testsupport.CreateEvent(t, db, entity, "v1", "/home", at(18, 10, 0))
	testsupport.CreateEvent(t, db, entity, "v1", "/home", at(18, 10, 5))
	testsupport.CreateEvent(t, db, entity, "v2", "/pricing", at(18, 11, 0))
	testsupport.CreateDimensionEvent(t, db, entity, "v3", at(18, 12, 0), nil)

	t.Run("equal", func(t *testing.T) {
		filters := []reports.DimensionFilter{
			{Dimension: reports.DimensionPath, FilterType: reports.FilterEqual, Value: "/home"},
		}
		stats, err := reports.OverallStats(db, []string{entity}, events.EventPageview, march, filters)
		require.NoError(t, err)
		assert.Equal(t, int64(2), stats.TotalViews)
	})

	t.Run("not_equal", func(t *testing.T) {
		filters := []reports.DimensionFilter{
			{Dimension: reports.DimensionPath, FilterType: reports.FilterNotEqual, Value: "/home"},
		}
		stats, err := reports.OverallStats(db, []string{entity}, events.EventPageview, march, filters)
		require.NoError(t, err)
		// NULL paths fail the comparison either way.
		assert.Equal(t, int64(1), stats.TotalViews)
	})

	t.Run("contains", func(t *testing.T) {
		filters := []reports.DimensionFilter{
			{Dimension: reports.DimensionPath, FilterType: reports.FilterContains, Value: "pric"},
		}
		stats, err := reports.OverallStats(db, []string{entity}, events.EventPageview, march, filters)
		require.NoError(t, err)
		assert.Equal(t, int64(1), stats.TotalViews)
	})

	t.Run("is_null", func(t *testing.T) {
		filters := []reports.DimensionFilter{
			{Dimension: reports.DimensionPath, FilterType: reports.FilterIsNull},
		}
		stats, err := reports.OverallStats(db, []string{entity}, events.EventPageview, march, filters)
		require.NoError(t, err)
		assert.Equal(t, int64(1), stats.TotalViews)
	})

	t.Run("unknown filter type rejected", func(t *testing.T) {
		filters := []reports.DimensionFilter{
			{Dimension: reports.DimensionPath, FilterType: "like", Value: "x"},
		}
		_, err := reports.OverallStats(db, []string{entity}, events.EventPageview, march, filters)
		assert.Error(t, err)
	})
}

func TestEventNameScoping(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	entity := "site-names"

	testsupport.CreateEvent(t, db, entity, "v1", "/home", at(22, 10, 0))
	testsupport.CreateDimensionEvent(t, db, entity, "v1", at(22, 10, 5), func(e *events.Event) {
		e.Event = "signup"
	})

	stats, err := reports.OverallStats(db, []string{entity}, "signup", march, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalViews)
}

func TestMultipleEntities(t *testing.T) {
	db := testsupport.SetupTestDB(t)

	testsupport.CreateEvent(t, db, "site-multi-a", "v1", "/a", at(25, 10, 0))
	testsupport.CreateEvent(t, db, "site-multi-b", "v2", "/b", at(25, 11, 0))
	testsupport.CreateEvent(t, db, "site-multi-c", "v3", "/c", at(25, 12, 0))

	stats, err := reports.OverallStats(db, []string{"site-multi-a", "site-multi-b"}, events.EventPageview, march, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalViews)
	assert.Equal(t, int64(2), stats.UniqueVisitors)
}

func TestOnlineUsers(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	entity := "site-online"
	now := time.Now().UTC()

	testsupport.CreateEvent(t, db, entity, "v1", "/a", now.Add(-time.Minute))
	testsupport.CreateEvent(t, db, entity, "v1", "/b", now.Add(-30*time.Second))
	testsupport.CreateEvent(t, db, entity, "v2", "/a", now.Add(-2*time.Minute))
	// Outside the five-minute window.
	testsupport.CreateEvent(t, db, entity, "v3", "/a", now.Add(-10*time.Minute))

	online, err := reports.OnlineUsers(db, []string{entity})
	require.NoError(t, err)
	assert.Equal(t, int64(2), online)
}

func TestReportCacheNormalizesEntityOrder(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	cache := reports.NewReportCache(16)

	testsupport.CreateEvent(t, db, "cache-a", "v1", "/a", at(3, 10, 0))
	testsupport.CreateEvent(t, db, "cache-b", "v2", "/b", at(3, 11, 0))

	stats, err := cache.OverallStats(db, []string{"cache-a", "cache-b"}, events.EventPageview, march, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalViews)

	// The range is historical, so this row would only show up after a cache
	// miss. A reordered entity list must map onto the same key and keep
	// serving the memoized result.
	testsupport.CreateEvent(t, db, "cache-a", "v3", "/c", at(3, 12, 0))

	stats, err = cache.OverallStats(db, []string{"cache-b", "cache-a"}, events.EventPageview, march, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalViews)
}

func TestDateRangePrev(t *testing.T) {
	prev := march.Prev()
	assert.Equal(t, march.Start, prev.End)
	assert.Equal(t, march.Duration(), prev.Duration())
	assert.Equal(t, time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), prev.Start)
}
