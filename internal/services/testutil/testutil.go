// Package testutil provides shared test utilities for integration tests.
package testutil

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/lucsky/cuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/haptisync/haptisync-go/internal/database"
	"github.com/haptisync/haptisync-go/internal/database/repositories"
)

// TestDB holds the test database and repositories.
type TestDB struct {
	DB           *gorm.DB
	ScriptRepo   *repositories.ScriptRepository
	PlaylistRepo *repositories.PlaylistRepository
	SettingRepo  *repositories.SettingRepository
}

// SetupTestDB creates an in-memory SQLite database for testing.
// It returns a TestDB with all repositories initialized and a cleanup function.
func SetupTestDB(t *testing.T) (*TestDB, func()) {
	t.Helper()

	// Create in-memory SQLite database
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}

	// Auto-migrate all models
	if err := database.Migrate(db); err != nil {
		t.Fatalf("Failed to migrate database: %v", err)
	}

	// Create repositories
	testDB := &TestDB{
		DB:           db,
		ScriptRepo:   repositories.NewScriptRepository(db),
		PlaylistRepo: repositories.NewPlaylistRepository(db),
		SettingRepo:  repositories.NewSettingRepository(db),
	}

	// Cleanup function - close the database connection
	cleanup := func() {
		sqlDB, err := db.DB()
		if err == nil {
			_ = sqlDB.Close()
		}
	}

	return testDB, cleanup
}

// UniqueScriptName generates a unique script name for testing.
// This ensures tests don't conflict with each other.
func UniqueScriptName(prefix string) string {
	return prefix + "-" + cuid.New()[:8]
}

// UniquePlaylistName generates a unique playlist name for testing.
func UniquePlaylistName(prefix string) string {
	return prefix + "-" + cuid.New()[:8]
}
