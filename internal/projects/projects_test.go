package projects_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vantage/internal/projects"
	"vantage/internal/testsupport"
)

func TestCreateAndGetProject(t *testing.T) {
	db := testsupport.SetupTestDB(t)

	testsupport.CreateTestEntity(db, "blog")
	testsupport.CreateTestEntity(db, "shop")

	project := projects.Project{ID: "acme", DisplayName: "Acme", CreatedAt: time.Now().UTC()}
	require.NoError(t, projects.CreateProject(db, &project, []string{"blog", "shop"}))

	got, err := projects.GetProject(db, "acme")
	require.NoError(t, err)
	assert.Equal(t, "Acme", got.DisplayName)
	assert.False(t, got.Public)

	ids, err := projects.EntityIDsForProject(db, "acme")
	require.NoError(t, err)
	assert.Equal(t, []string{"blog", "shop"}, ids)
}

func TestGetProjectNotFound(t *testing.T) {
	db := testsupport.SetupTestDB(t)

	_, err := projects.GetProject(db, "missing")
	require.Error(t, err)

	var notFound *projects.ProjectNotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "missing", notFound.ProjectID)
}

func TestEntityIDsForEmptyProject(t *testing.T) {
	db := testsupport.SetupTestDB(t)

	project := projects.Project{ID: "empty", DisplayName: "Empty", CreatedAt: time.Now().UTC()}
	require.NoError(t, projects.CreateProject(db, &project, nil))

	ids, err := projects.EntityIDsForProject(db, "empty")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestCreateProjectRequiresID(t *testing.T) {
	db := testsupport.SetupTestDB(t)

	project := projects.Project{ID: "  ", DisplayName: "Blank"}
	assert.Error(t, projects.CreateProject(db, &project, nil))
}

func TestListProjectsOrdered(t *testing.T) {
	db := testsupport.SetupTestDB(t)

	for _, p := range []projects.Project{
		{ID: "zeta", DisplayName: "Zeta"},
		{ID: "alpha", DisplayName: "Alpha"},
	} {
		project := p
		project.CreatedAt = time.Now().UTC()
		require.NoError(t, projects.CreateProject(db, &project, nil))
	}

	list, err := projects.ListProjects(db)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Alpha", list[0].DisplayName)
	assert.Equal(t, "Zeta", list[1].DisplayName)
}

func TestDeleteProjectKeepsEntities(t *testing.T) {
	db := testsupport.SetupTestDB(t)

	testsupport.CreateTestEntity(db, "kept-entity")
	project := projects.Project{ID: "doomed", DisplayName: "Doomed", CreatedAt: time.Now().UTC()}
	require.NoError(t, projects.CreateProject(db, &project, []string{"kept-entity"}))

	require.NoError(t, projects.DeleteProject(db, "doomed"))

	_, err := projects.GetProject(db, "doomed")
	var notFound *projects.ProjectNotFoundError
	require.True(t, errors.As(err, &notFound))

	var entity projects.Entity
	require.NoError(t, db.Where("id = ?", "kept-entity").First(&entity).Error)
}
