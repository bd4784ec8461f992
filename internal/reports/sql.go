package reports

import (
	"fmt"
	"strings"
)

// epochExpr extracts unix seconds from a stored datetime column. Kept as a
// fragment constant so query templates can stay printf-safe.
const epochExpr = `CAST(strftime('%s', created_at) AS INTEGER)`

// leadEpochExpr is the unix-seconds timestamp of the visitor's next event,
// used to derive the gap-based session_duration.
const leadEpochExpr = `CAST(strftime('%s', LEAD(created_at) OVER (PARTITION BY visitor_id ORDER BY created_at)) AS INTEGER)`

// entityPlaceholders returns "?, ?, ..." for binding an entity id list.
func entityPlaceholders(n int) string {
	if n == 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

// validateEntities runs the identifier syntax check over every entity id.
// Defense in depth: ids are bound as parameters today, but the allow-list
// gate runs regardless so new call sites cannot regress into injection.
func validateEntities(entities []string) error {
	for _, id := range entities {
		if !IsValidID(id) {
			return fmt.Errorf("%w: %q", ErrInvalidIdentifier, id)
		}
	}
	return nil
}

// metricSQL returns the aggregation expression for a metric, evaluated over
// session-level rows aliased as sd.
//
// Note the two distinct notions of "session": the Sessions metric folds a
// visitor's events into 30-minute windows anchored to absolute epoch time,
// while session_duration (materialized in the session CTE) is the
// per-visitor gap to the next event. They are intentionally not the same.
func metricSQL(metric Metric) (string, error) {
	switch metric {
	case MetricViews:
		return "COUNT(sd.created_at)", nil
	case MetricUniqueVisitors:
		return "COUNT(DISTINCT sd.visitor_id)", nil
	case MetricSessions:
		return "COUNT(DISTINCT sd.visitor_id || '-' || CAST(sd.created_epoch / 1800 AS TEXT))", nil
	case MetricAvgViewsPerSession:
		// Views per distinct visitor, not views per 30-minute session.
		return "CAST(COUNT(sd.created_at) AS REAL) / COUNT(DISTINCT sd.visitor_id)", nil
	default:
		return "", fmt.Errorf("unknown metric: %s", metric)
	}
}

// dimensionSQL returns the value expression and the GROUP BY column list for
// a dimension. Concatenated dimensions map empty results to NULL so the
// Unknown coalescing applies uniformly.
func dimensionSQL(dimension Dimension) (valueExpr string, groupColumns string, err error) {
	switch dimension {
	case DimensionUrl:
		return "NULLIF(IFNULL(fqdn, '') || IFNULL(path, ''), '')", "fqdn, path", nil
	case DimensionFqdn:
		return "fqdn", "fqdn", nil
	case DimensionPath:
		return "path", "path", nil
	case DimensionReferrer:
		return "referrer", "referrer", nil
	case DimensionPlatform:
		return "platform", "platform", nil
	case DimensionBrowser:
		return "browser", "browser", nil
	case DimensionMobile:
		return "CASE WHEN mobile IS NULL THEN NULL WHEN mobile THEN 'true' ELSE 'false' END", "mobile", nil
	case DimensionCountry:
		return "country", "country", nil
	case DimensionCity:
		return "NULLIF(IFNULL(country, '') || IFNULL(city, ''), '')", "country, city", nil
	default:
		return "", "", fmt.Errorf("unknown dimension: %s", dimension)
	}
}

// filterSQL builds the WHERE fragment for a filter list. The returned SQL is
// either empty or of the form "AND (c1 AND c2 ...)"; values come back as
// bind parameters in matching order.
func filterSQL(filters []DimensionFilter) (string, []interface{}, error) {
	if len(filters) == 0 {
		return "", nil, nil
	}

	clauses := make([]string, 0, len(filters))
	params := make([]interface{}, 0, len(filters))

	for _, filter := range filters {
		column, _, err := dimensionSQL(filter.Dimension)
		if err != nil {
			return "", nil, err
		}

		switch filter.FilterType {
		case FilterEqual:
			clauses = append(clauses, column+" = ?")
			params = append(params, filter.Value)
		case FilterNotEqual:
			clauses = append(clauses, column+" <> ?")
			params = append(params, filter.Value)
		case FilterContains:
			clauses = append(clauses, column+" LIKE '%' || ? || '%'")
			params = append(params, filter.Value)
		case FilterNotContains:
			clauses = append(clauses, column+" NOT LIKE '%' || ? || '%'")
			params = append(params, filter.Value)
		case FilterIsNull:
			clauses = append(clauses, column+" IS NULL")
		default:
			return "", nil, fmt.Errorf("unknown filter type: %s", filter.FilterType)
		}
	}

	return "AND (" + strings.Join(clauses, " AND ") + ")", params, nil
}
