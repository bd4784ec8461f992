package testsupport

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	ctestsupport "github.com/karloscodes/cartridge/testsupport"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"vantage/internal"
	"vantage/internal/config"
	"vantage/internal/events"
	"vantage/internal/projects"
	"vantage/internal/reports"
)

// testDBCache caches test databases by test name to allow multiple calls
// within the same test to share the same database
var testDBCache = make(map[string]*gorm.DB)
var testDBCacheMu sync.Mutex

// TestDBManager wraps cartridge's TestDBManager with vantage's interface
type TestDBManager struct {
	*ctestsupport.TestDBManager
}

// NewTestDBManager creates a TestDBManager that implements cartridge.DBManager
func NewTestDBManager(db *gorm.DB) *TestDBManager {
	return &TestDBManager{
		TestDBManager: ctestsupport.NewTestDBManager(db),
	}
}

// Ensure TestDBManager implements cartridge.DBManager
var _ cartridge.DBManager = (*TestDBManager)(nil)

// allModels returns all vantage models for migration
func allModels() []any {
	return []any{
		&events.Event{},
		&projects.Entity{},
		&projects.Project{},
		&projects.ProjectEntity{},
	}
}

// SetupTestDB creates a test database with all vantage models migrated.
// Uses a named in-memory database with cache=shared to allow multiple
// connections to share the same database within a test. Caches the database
// by test name so multiple calls within the same test return the same
// database.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	testName := t.Name()

	// Use root test name for caching to handle closure issues where
	// setup functions capture the outer t while t.Run has subtest t
	rootName := testName
	if idx := strings.Index(testName, "/"); idx > 0 {
		rootName = testName[:idx]
	}

	testDBCacheMu.Lock()
	if db, exists := testDBCache[rootName]; exists {
		testDBCacheMu.Unlock()
		return db
	}
	testDBCacheMu.Unlock()

	sanitizedName := strings.ReplaceAll(rootName, "/", "_")
	dsn := fmt.Sprintf("file:test_%s_%d?mode=memory&cache=shared", sanitizedName, time.Now().UnixNano())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("testsupport: failed to open test database: %v", err)
	}

	db.Exec("PRAGMA foreign_keys = ON")
	db.Exec("PRAGMA journal_mode = WAL")

	if err := db.AutoMigrate(allModels()...); err != nil {
		t.Fatalf("testsupport: failed to migrate models: %v", err)
	}

	testDBCacheMu.Lock()
	testDBCache[rootName] = db
	testDBCacheMu.Unlock()

	t.Cleanup(func() {
		testDBCacheMu.Lock()
		delete(testDBCache, rootName)
		testDBCacheMu.Unlock()
		sqlDB, err := db.DB()
		if err == nil {
			sqlDB.Close()
		}
	})

	return db
}

// SetupTestDBManager creates a test DB manager using cartridge's testsupport
func SetupTestDBManager(t *testing.T) (*TestDBManager, *slog.Logger) {
	cfg := config.GetConfig()

	// SAFETY CHECK: Ensure we're in test environment
	if cfg.Environment != config.Test {
		t.Fatalf("CRITICAL: Tests must run in test environment! Current: %s. Set VANTAGE_ENV=test", cfg.Environment)
	}

	db := SetupTestDB(t)
	logger := GetLogger()
	dbManager := NewTestDBManager(db)

	return dbManager, logger
}

// CleanAllTables clears all non-system tables in the database
func CleanAllTables(db *gorm.DB) {
	var tableNames []string
	db.Raw("SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%'").Scan(&tableNames)

	var tables []string
	for _, name := range tableNames {
		if name != "migrations" && name != "schema_migrations" {
			tables = append(tables, name)
		}
	}

	if len(tables) == 0 {
		return
	}

	db.Exec("PRAGMA foreign_keys = OFF")
	defer db.Exec("PRAGMA foreign_keys = ON")

	db.Transaction(func(tx *gorm.DB) error {
		for _, table := range tables {
			tx.Exec("DELETE FROM " + table)
			tx.Exec("DELETE FROM sqlite_sequence WHERE name=?", table)
		}
		return nil
	})
}

// CreateTestEntity creates an entity in the database, reusing one with the
// same ID if it already exists
func CreateTestEntity(db *gorm.DB, id string) projects.Entity {
	var entity projects.Entity
	if db.Where("id = ?", id).First(&entity).Error != nil {
		entity = projects.Entity{ID: id, DisplayName: id, CreatedAt: time.Now().UTC()}
		db.Create(&entity)
	}
	return entity
}

// CreateTestProject creates a project linked to the given entity IDs
func CreateTestProject(t *testing.T, db *gorm.DB, id string, entityIDs ...string) projects.Project {
	t.Helper()

	for _, entityID := range entityIDs {
		CreateTestEntity(db, entityID)
	}
	project := projects.Project{ID: id, DisplayName: id, CreatedAt: time.Now().UTC()}
	require.NoError(t, projects.CreateProject(db, &project, entityIDs))
	return project
}

// CreateEvent creates an event directly in the database for testing
func CreateEvent(t *testing.T, db *gorm.DB, entityID, visitorID, path string, createdAt time.Time) {
	t.Helper()

	event := &events.Event{
		EntityID:  entityID,
		VisitorID: visitorID,
		Event:     events.EventPageview,
		Path:      &path,
		CreatedAt: createdAt.UTC(),
	}
	require.NoError(t, db.Create(event).Error)
}

// CreateDimensionEvent creates an event with the given dimension values set
func CreateDimensionEvent(t *testing.T, db *gorm.DB, entityID, visitorID string, createdAt time.Time, mutate func(*events.Event)) {
	t.Helper()

	event := &events.Event{
		EntityID:  entityID,
		VisitorID: visitorID,
		Event:     events.EventPageview,
		CreatedAt: createdAt.UTC(),
	}
	if mutate != nil {
		mutate(event)
	}
	require.NoError(t, db.Create(event).Error)
}

// GetLogger returns a test logger
func GetLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})
	return slog.New(handler)
}

// CreateMinimalTestApp creates a test Fiber app with all routes
func CreateMinimalTestApp(t *testing.T, db *gorm.DB) *fiber.App {
	t.Helper()

	dbManager := NewTestDBManager(db)
	appConfig := config.GetConfig()
	appConfig.Environment = config.Test

	cfg := cartridge.DefaultServerConfig()
	cfg.Config = appConfig
	cfg.Logger = GetLogger()
	cfg.DBManager = dbManager

	srv, err := cartridge.NewServer(cfg)
	require.NoError(t, err)

	internal.MountAppRoutes(reports.NewReportCache(appConfig.ReportCacheCapacity))(srv)
	return srv.App()
}
