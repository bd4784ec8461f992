package reports

import (
	"fmt"
	"math"
	"time"

	"gorm.io/gorm"
)

// onlineWindow is how far back OnlineUsers looks for distinct visitors.
const onlineWindow = 5 * time.Minute

// OverallReport divides [rng.Start, rng.End) into dataPoints equal-width
// bins and applies the metric aggregation per bin over session-level rows.
// The result always has exactly dataPoints values; bins without data are
// zero. An empty entity list returns a zero-filled graph without querying.
func OverallReport(db *gorm.DB, entities []string, event string, rng DateRange, dataPoints int, filters []DimensionFilter, metric Metric) (ReportGraph, error) {
	graph := make(ReportGraph, dataPoints)
	if len(entities) == 0 {
		return graph, nil
	}

	if err := validateEntities(entities); err != nil {
		return nil, err
	}

	metricExpr, err := metricSQL(metric)
	if err != nil {
		return nil, err
	}
	filtersSQL, filterParams, err := filterSQL(filters)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
    WITH RECURSIVE
        params AS (
            SELECT ? AS start_epoch, ? AS end_epoch, ? AS num_buckets
        ),
        seq(i) AS (
            SELECT 0
            UNION ALL
            SELECT i + 1 FROM seq WHERE i + 1 < ?
        ),
        bins AS (
            SELECT
                i,
                start_epoch + (i * (end_epoch - start_epoch)) / num_buckets AS bin_start,
                start_epoch + ((i + 1) * (end_epoch - start_epoch)) / num_buckets AS bin_end
            FROM seq, params
        ),
        session_data AS (
            SELECT
                visitor_id,
                created_at,
                %s AS created_epoch,
                COALESCE(%s - %s, 0) AS session_duration
            FROM events
            WHERE event = ?
            AND created_at >= ?
            AND created_at <= ?
            AND entity_id IN (%s)
            %s
        )
    SELECT
        b.i AS bin,
        COALESCE(%s, 0) AS value
    FROM bins b
    LEFT JOIN session_data sd
        ON sd.created_epoch >= b.bin_start AND sd.created_epoch < b.bin_end
    GROUP BY b.i
    ORDER BY b.i
    `, epochExpr, leadEpochExpr, epochExpr, entityPlaceholders(len(entities)), filtersSQL, metricExpr)

	params := make([]interface{}, 0, 7+len(entities)+len(filterParams))
	params = append(params,
		rng.Start.UTC().Unix(), rng.End.UTC().Unix(), dataPoints,
		dataPoints,
		event, rng.Start.UTC(), rng.End.UTC(),
	)
	for _, entity := range entities {
		params = append(params, entity)
	}
	params = append(params, filterParams...)

	var rows []struct {
		Bin   int
		Value float64
	}
	if err := db.Raw(query, params...).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("error computing overall report: %w", err)
	}

	for _, row := range rows {
		if row.Bin >= 0 && row.Bin < dataPoints {
			graph[row.Bin] = scaleMetricValue(metric, row.Value)
		}
	}

	return graph, nil
}

// OverallStats computes the single-row aggregate over the whole range.
// An empty entity list returns zero stats without querying.
func OverallStats(db *gorm.DB, entities []string, event string, rng DateRange, filters []DimensionFilter) (ReportStats, error) {
	if len(entities) == 0 {
		return ReportStats{}, nil
	}

	if err := validateEntities(entities); err != nil {
		return ReportStats{}, err
	}

	filtersSQL, filterParams, err := filterSQL(filters)
	if err != nil {
		return ReportStats{}, err
	}

	metricViews, _ := metricSQL(MetricViews)
	metricSessions, _ := metricSQL(MetricSessions)
	metricUniqueVisitors, _ := metricSQL(MetricUniqueVisitors)
	metricAvgViews, _ := metricSQL(MetricAvgViewsPerSession)

	query := fmt.Sprintf(`
    WITH session_data AS (
        SELECT
            visitor_id,
            created_at,
            %s AS created_epoch,
            COALESCE(%s - %s, 0) AS session_duration
        FROM events
        WHERE event = ?
        AND created_at >= ?
        AND created_at <= ?
        AND entity_id IN (%s)
        %s
    )
    SELECT
        %s AS total_views,
        %s AS total_sessions,
        %s AS unique_visitors,
        COALESCE(%s, 0) AS avg_views_per_session
    FROM session_data sd
    `, epochExpr, leadEpochExpr, epochExpr, entityPlaceholders(len(entities)), filtersSQL,
		metricViews, metricSessions, metricUniqueVisitors, metricAvgViews)

	params := make([]interface{}, 0, 3+len(entities)+len(filterParams))
	params = append(params, event, rng.Start.UTC(), rng.End.UTC())
	for _, entity := range entities {
		params = append(params, entity)
	}
	params = append(params, filterParams...)

	var row struct {
		TotalViews         int64
		TotalSessions      int64
		UniqueVisitors     int64
		AvgViewsPerSession float64
	}
	if err := db.Raw(query, params...).Scan(&row).Error; err != nil {
		return ReportStats{}, fmt.Errorf("error computing overall stats: %w", err)
	}

	return ReportStats{
		TotalViews:         row.TotalViews,
		TotalSessions:      row.TotalSessions,
		UniqueVisitors:     row.UniqueVisitors,
		AvgViewsPerSession: int64(math.Round(row.AvgViewsPerSession * 1000)),
	}, nil
}

// DimensionReport groups session-level rows by the dimension's columns and
// applies the metric aggregation per group. NULL dimension values group
// under "Unknown". The SQL orders groups by metric value descending, but the
// returned map carries no order; consumers sort. An empty entity list
// returns an empty table without querying.
func DimensionReport(db *gorm.DB, entities []string, event string, rng DateRange, dimension Dimension, filters []DimensionFilter, metric Metric) (ReportTable, error) {
	if len(entities) == 0 {
		return ReportTable{}, nil
	}

	if err := validateEntities(entities); err != nil {
		return nil, err
	}

	metricExpr, err := metricSQL(metric)
	if err != nil {
		return nil, err
	}
	dimensionExpr, groupColumns, err := dimensionSQL(dimension)
	if err != nil {
		return nil, err
	}
	filtersSQL, filterParams, err := filterSQL(filters)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
    WITH session_data AS (
        SELECT
            COALESCE(%s, 'Unknown') AS dimension_value,
            visitor_id,
            created_at,
            %s AS created_epoch,
            COALESCE(%s - %s, 0) AS session_duration
        FROM events
        WHERE event = ?
        AND created_at >= ?
        AND created_at <= ?
        AND entity_id IN (%s)
        %s
        GROUP BY %s, visitor_id, created_at
    )
    SELECT
        dimension_value,
        COALESCE(%s, 0) AS value
    FROM session_data sd
    GROUP BY dimension_value
    ORDER BY value DESC
    `, dimensionExpr, epochExpr, leadEpochExpr, epochExpr,
		entityPlaceholders(len(entities)), filtersSQL, groupColumns, metricExpr)

	params := make([]interface{}, 0, 3+len(entities)+len(filterParams))
	params = append(params, event, rng.Start.UTC(), rng.End.UTC())
	for _, entity := range entities {
		params = append(params, entity)
	}
	params = append(params, filterParams...)

	var rows []struct {
		DimensionValue string
		Value          float64
	}
	if err := db.Raw(query, params...).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("error computing dimension report: %w", err)
	}

	table := make(ReportTable, len(rows))
	for _, row := range rows {
		table[row.DimensionValue] = scaleMetricValue(metric, row.Value)
	}

	return table, nil
}

// OnlineUsers counts distinct visitors with an event in the last five
// minutes. Deliberately uncached: the window is so short that memoizing the
// count would only make it misleading. An empty entity list returns 0
// without querying.
func OnlineUsers(db *gorm.DB, entities []string) (int64, error) {
	if len(entities) == 0 {
		return 0, nil
	}

	if err := validateEntities(entities); err != nil {
		return 0, err
	}

	query := fmt.Sprintf(`
    SELECT COUNT(DISTINCT visitor_id)
    FROM events
    WHERE entity_id IN (%s)
    AND created_at >= ?
    `, entityPlaceholders(len(entities)))

	params := make([]interface{}, 0, len(entities)+1)
	for _, entity := range entities {
		params = append(params, entity)
	}
	params = append(params, time.Now().UTC().Add(-onlineWindow))

	var count int64
	if err := db.Raw(query, params...).Scan(&count).Error; err != nil {
		return 0, fmt.Errorf("error counting online users: %w", err)
	}

	return count, nil
}

// scaleMetricValue converts a raw SQL aggregate into the wire representation:
// counts pass through, ratio metrics are scaled by 1000 and rounded.
func scaleMetricValue(metric Metric, value float64) int64 {
	if metric == MetricAvgViewsPerSession {
		return int64(math.Round(value * 1000))
	}
	return int64(math.Round(value))
}
