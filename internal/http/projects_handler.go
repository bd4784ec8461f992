package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	"log/slog"

	"vantage/internal/projects"
	"vantage/internal/reports"
)

// ProjectsIndexAction lists all projects.
func ProjectsIndexAction(ctx *cartridge.Context) error {
	list, err := projects.ListProjects(ctx.DB())
	if err != nil {
		ctx.Logger.Error("Failed to list projects", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to list projects"})
	}
	return ctx.JSON(fiber.Map{"projects": list})
}

// ProjectShowAction returns one project with its entity ids.
func ProjectShowAction(ctx *cartridge.Context) error {
	projectID := ctx.Params("project")

	project, err := projects.GetProject(ctx.DB(), projectID)
	if err != nil {
		var notFound *projects.ProjectNotFoundError
		if errors.As(err, &notFound) {
			return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Project not found"})
		}
		ctx.Logger.Error("Failed to get project", slog.String("project_id", projectID), slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to get project"})
	}

	entities, err := projects.EntityIDsForProject(ctx.DB(), projectID)
	if err != nil {
		ctx.Logger.Error("Failed to resolve project entities", slog.String("project_id", projectID), slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to resolve project entities"})
	}

	return ctx.JSON(fiber.Map{"project": project, "entities": entities})
}

type CreateProjectParams struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"display_name"`
	Public      bool     `json:"public"`
	Entities    []string `json:"entities"`
}

// ProjectCreateAction creates a project and links its entities.
func ProjectCreateAction(ctx *cartridge.Context) error {
	var params CreateProjectParams
	if err := ctx.BodyParser(&params); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": errInvalidRequest})
	}

	if !reports.IsValidID(params.ID) {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid identifier"})
	}
	for _, entityID := range params.Entities {
		if !reports.IsValidID(entityID) {
			return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid identifier"})
		}
	}

	project := &projects.Project{
		ID:          params.ID,
		DisplayName: params.DisplayName,
		Public:      params.Public,
	}
	if err := projects.CreateProject(ctx.DB(), project, params.Entities); err != nil {
		ctx.Logger.Error("Failed to create project", slog.String("project_id", params.ID), slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create project"})
	}

	return ctx.Status(fiber.StatusCreated).JSON(fiber.Map{"project": project})
}

type CreateEntityParams struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// EntityCreateAction registers a new tracked entity.
func EntityCreateAction(ctx *cartridge.Context) error {
	var params CreateEntityParams
	if err := ctx.BodyParser(&params); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": errInvalidRequest})
	}

	if !reports.IsValidID(params.ID) {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid identifier"})
	}

	entity := &projects.Entity{ID: params.ID, DisplayName: params.DisplayName}
	if err := projects.CreateEntity(ctx.DB(), entity); err != nil {
		ctx.Logger.Error("Failed to create entity", slog.String("entity_id", params.ID), slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create entity"})
	}

	return ctx.Status(fiber.StatusCreated).JSON(fiber.Map{"entity": entity})
}

// ProjectDeleteAction removes a project; entities and events stay.
func ProjectDeleteAction(ctx *cartridge.Context) error {
	projectID := ctx.Params("project")

	if err := projects.DeleteProject(ctx.DB(), projectID); err != nil {
		ctx.Logger.Error("Failed to delete project", slog.String("project_id", projectID), slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to delete project"})
	}

	return ctx.SendStatus(fiber.StatusNoContent)
}
