// Package projects holds the entity and project models. An entity is a
// tracked site or property; a project groups one or more entities for the
// dashboard. Report queries always operate on the entity-id list resolved
// from a project.
package projects

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// ProjectNotFoundError represents an error when a project is not found
type ProjectNotFoundError struct {
	ProjectID string
}

func (e *ProjectNotFoundError) Error() string {
	return fmt.Sprintf("project not found: %s", e.ProjectID)
}

// NewProjectNotFoundError creates a new ProjectNotFoundError
func NewProjectNotFoundError(projectID string) *ProjectNotFoundError {
	return &ProjectNotFoundError{ProjectID: projectID}
}

// Entity represents a tracked site/property. The ID is the string identifier
// beacons carry in their entity_id field.
type Entity struct {
	ID          string    `gorm:"primaryKey;size:128" json:"id"`
	DisplayName string    `gorm:"not null" json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}

// Project is a named grouping of entities. Public projects expose their
// dashboard without a login.
type Project struct {
	ID          string    `gorm:"primaryKey;size:128" json:"id"`
	DisplayName string    `gorm:"not null" json:"display_name"`
	Public      bool      `gorm:"not null;default:false" json:"public"`
	CreatedAt   time.Time `json:"created_at"`
}

// ProjectEntity joins projects to their entities.
type ProjectEntity struct {
	ProjectID string `gorm:"primaryKey;size:128"`
	EntityID  string `gorm:"primaryKey;size:128"`
}

// GetProject retrieves a project by ID.
func GetProject(db *gorm.DB, projectID string) (*Project, error) {
	var project Project
	if err := db.Where("id = ?", projectID).First(&project).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, NewProjectNotFoundError(projectID)
		}
		return nil, fmt.Errorf("unexpected error querying project: %w", err)
	}
	return &project, nil
}

// ListProjects returns all projects ordered by display name.
func ListProjects(db *gorm.DB) ([]Project, error) {
	var result []Project
	if err := db.Order("display_name ASC").Find(&result).Error; err != nil {
		return nil, fmt.Errorf("error listing projects: %w", err)
	}
	return result, nil
}

// EntityIDsForProject resolves the list of entity ids belonging to a project.
// A project with no entities yields an empty list, which is a valid state -
// report queries short-circuit on it.
func EntityIDsForProject(db *gorm.DB, projectID string) ([]string, error) {
	var ids []string
	err := db.Model(&ProjectEntity{}).
		Where("project_id = ?", projectID).
		Order("entity_id ASC").
		Pluck("entity_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("error resolving entities for project %s: %w", projectID, err)
	}
	return ids, nil
}

// CreateEntity inserts a new entity.
func CreateEntity(db *gorm.DB, entity *Entity) error {
	entity.ID = strings.TrimSpace(entity.ID)
	if entity.ID == "" {
		return fmt.Errorf("entity id is required")
	}
	if err := db.Create(entity).Error; err != nil {
		return fmt.Errorf("error creating entity: %w", err)
	}
	return nil
}

// CreateProject inserts a new project and links the given entities to it.
func CreateProject(db *gorm.DB, project *Project, entityIDs []string) error {
	project.ID = strings.TrimSpace(project.ID)
	if project.ID == "" {
		return fmt.Errorf("project id is required")
	}

	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(project).Error; err != nil {
			return fmt.Errorf("error creating project: %w", err)
		}
		for _, entityID := range entityIDs {
			link := ProjectEntity{ProjectID: project.ID, EntityID: entityID}
			if err := tx.Create(&link).Error; err != nil {
				return fmt.Errorf("error linking entity %s to project %s: %w", entityID, project.ID, err)
			}
		}
		return nil
	})
}

// DeleteProject removes a project and its entity links. Entities and their
// events are left untouched.
func DeleteProject(db *gorm.DB, projectID string) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("project_id = ?", projectID).Delete(&ProjectEntity{}).Error; err != nil {
			return fmt.Errorf("error unlinking entities from project %s: %w", projectID, err)
		}
		if err := tx.Where("id = ?", projectID).Delete(&Project{}).Error; err != nil {
			return fmt.Errorf("error deleting project %s: %w", projectID, err)
		}
		return nil
	})
}
