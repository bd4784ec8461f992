package http

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	"log/slog"

	"vantage/internal/pkg/async"
	"vantage/internal/projects"
	"vantage/internal/reports"
)

// DashboardHandler serves the report API. The report cache is injected at
// construction so tests can run against a fresh cache.
type DashboardHandler struct {
	cache *reports.ReportCache
}

func NewDashboardHandler(cache *reports.ReportCache) *DashboardHandler {
	return &DashboardHandler{cache: cache}
}

type GraphRequest struct {
	ProjectID  string                    `json:"project_id"`
	Event      string                    `json:"event"`
	Range      reports.DateRange         `json:"range"`
	DataPoints int                       `json:"data_points"`
	Filters    []reports.DimensionFilter `json:"filters"`
	Metric     reports.Metric            `json:"metric"`
}

type StatsRequest struct {
	ProjectID string                    `json:"project_id"`
	Event     string                    `json:"event"`
	Range     reports.DateRange         `json:"range"`
	Filters   []reports.DimensionFilter `json:"filters"`
}

type DimensionRequest struct {
	ProjectID string                    `json:"project_id"`
	Event     string                    `json:"event"`
	Range     reports.DateRange         `json:"range"`
	Dimension reports.Dimension         `json:"dimension"`
	Filters   []reports.DimensionFilter `json:"filters"`
	Metric    reports.Metric            `json:"metric"`
}

// TableRow is one breakdown entry; rows are emitted sorted by value
// descending since JSON objects carry no order.
type TableRow struct {
	DimensionValue string `json:"dimension_value"`
	Value          int64  `json:"value"`
}

// GraphAction returns the time-series graph for a project.
func (h *DashboardHandler) GraphAction(ctx *cartridge.Context) error {
	var req GraphRequest
	if err := ctx.BodyParser(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	if req.DataPoints < 1 || req.DataPoints > reports.MaxDataPoints {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "data_points out of range"})
	}

	entities, ok, err := h.resolveEntities(ctx, req.ProjectID)
	if !ok {
		return err
	}

	graph, err := h.cache.OverallReport(ctx.DB(), entities, req.Event, req.Range, req.DataPoints, req.Filters, req.Metric)
	if err != nil {
		return reportError(ctx, "graph", err)
	}

	return ctx.JSON(fiber.Map{"graph": graph})
}

// StatsAction returns the aggregate stats for a project.
func (h *DashboardHandler) StatsAction(ctx *cartridge.Context) error {
	var req StatsRequest
	if err := ctx.BodyParser(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	entities, ok, err := h.resolveEntities(ctx, req.ProjectID)
	if !ok {
		return err
	}

	stats, err := h.cache.OverallStats(ctx.DB(), entities, req.Event, req.Range, req.Filters)
	if err != nil {
		return reportError(ctx, "stats", err)
	}

	return ctx.JSON(fiber.Map{"stats": stats})
}

// DimensionAction returns a dimensional breakdown for a project, sorted by
// metric value descending.
func (h *DashboardHandler) DimensionAction(ctx *cartridge.Context) error {
	var req DimensionRequest
	if err := ctx.BodyParser(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	entities, ok, err := h.resolveEntities(ctx, req.ProjectID)
	if !ok {
		return err
	}

	table, err := h.cache.DimensionReport(ctx.DB(), entities, req.Event, req.Range, req.Dimension, req.Filters, req.Metric)
	if err != nil {
		return reportError(ctx, "dimension", err)
	}

	return ctx.JSON(fiber.Map{"table": sortTable(table)})
}

// OnlineUsersAction returns the current online-visitor estimate. Never
// cached; the five-minute window makes every call a fresh count.
func (h *DashboardHandler) OnlineUsersAction(ctx *cartridge.Context) error {
	entities, ok, err := h.resolveEntities(ctx, ctx.Params("project"))
	if !ok {
		return err
	}

	online, err := reports.OnlineUsers(ctx.DB(), entities)
	if err != nil {
		return reportError(ctx, "online users", err)
	}

	return ctx.JSON(fiber.Map{"online": online})
}

// OverviewAction combines the graph, the range stats, and the previous
// period's stats (for period-over-period comparison) in one response,
// fanning the three queries out over a worker pool.
func (h *DashboardHandler) OverviewAction(ctx *cartridge.Context) error {
	var req GraphRequest
	if err := ctx.BodyParser(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	if req.DataPoints < 1 || req.DataPoints > reports.MaxDataPoints {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "data_points out of range"})
	}

	entities, ok, err := h.resolveEntities(ctx, req.ProjectID)
	if !ok {
		return err
	}

	db := ctx.DB()
	tasks := []async.Task{
		{
			Name: "graph",
			Execute: func() (interface{}, error) {
				return h.cache.OverallReport(db, entities, req.Event, req.Range, req.DataPoints, req.Filters, req.Metric)
			},
		},
		{
			Name: "stats",
			Execute: func() (interface{}, error) {
				return h.cache.OverallStats(db, entities, req.Event, req.Range, req.Filters)
			},
		},
		{
			Name: "prev_stats",
			Execute: func() (interface{}, error) {
				return h.cache.OverallStats(db, entities, req.Event, req.Range.Prev(), req.Filters)
			},
		},
	}

	queryCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	results := async.NewPool(len(tasks)).Execute(queryCtx, tasks)
	for name, result := range results {
		if result.Err != nil {
			ctx.Logger.Error("Overview query failed",
				slog.String("query", name), slog.Any("error", result.Err))
			return reportError(ctx, name, result.Err)
		}
	}

	return ctx.JSON(fiber.Map{
		"graph":      results["graph"].Data,
		"stats":      results["stats"].Data,
		"prev_stats": results["prev_stats"].Data,
	})
}

// resolveEntities looks up the project and returns its entity-id list. On
// failure it writes the response and returns ok=false.
func (h *DashboardHandler) resolveEntities(ctx *cartridge.Context, projectID string) ([]string, bool, error) {
	db := ctx.DB()

	if _, err := projects.GetProject(db, projectID); err != nil {
		var notFound *projects.ProjectNotFoundError
		if errors.As(err, &notFound) {
			return nil, false, ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Project not found"})
		}
		ctx.Logger.Error("Failed to look up project", slog.String("project_id", projectID), slog.Any("error", err))
		return nil, false, ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to look up project"})
	}

	entities, err := projects.EntityIDsForProject(db, projectID)
	if err != nil {
		ctx.Logger.Error("Failed to resolve project entities", slog.String("project_id", projectID), slog.Any("error", err))
		return nil, false, ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to resolve project entities"})
	}

	return entities, true, nil
}

// reportError maps engine errors onto HTTP statuses: identifier violations
// are caller bugs (400), anything else is a storage-side failure (500).
func reportError(ctx *cartridge.Context, operation string, err error) error {
	if errors.Is(err, reports.ErrInvalidIdentifier) {
		ctx.Logger.Warn("Rejected report request with invalid identifier",
			slog.String("operation", operation), slog.Any("error", err))
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid identifier"})
	}

	ctx.Logger.Error("Report query failed",
		slog.String("operation", operation), slog.Any("error", err))
	return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Report query failed"})
}

// sortTable flattens a ReportTable into rows ordered by value descending,
// ties broken by dimension value for stable output.
func sortTable(table reports.ReportTable) []TableRow {
	rows := make([]TableRow, 0, len(table))
	for value, count := range table {
		rows = append(rows, TableRow{DimensionValue: value, Value: count})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Value != rows[j].Value {
			return rows[i].Value > rows[j].Value
		}
		return rows[i].DimensionValue < rows[j].DimensionValue
	})
	return rows
}
