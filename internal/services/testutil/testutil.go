// Package testutil provides shared test utilities for database-backed tests.
package testutil

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/lucsky/cuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/bbernstein/runofshow-go/internal/database/models"
	"github.com/bbernstein/runofshow-go/internal/database/repositories"
)

// TestDB holds the test database and repositories.
type TestDB struct {
	DB            *gorm.DB
	EventRepo     *repositories.EventRepository
	ScheduleRepo  *repositories.ScheduleRepository
	TimerRepo     *repositories.TimerRepository
	OvertimeRepo  *repositories.OvertimeRepository
	IndentedRepo  *repositories.IndentedCueRepository
	CompletedRepo *repositories.CompletedCueRepository
	Store         *repositories.EventStore
}

// SetupTestDB creates an in-memory SQLite database for testing.
// It returns a TestDB with all repositories initialized and a cleanup function.
func SetupTestDB(t *testing.T) (*TestDB, func()) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}

	// Each pooled connection would get its own empty :memory: database.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("Failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("Failed to migrate database: %v", err)
	}

	testDB := &TestDB{
		DB:            db,
		EventRepo:     repositories.NewEventRepository(db),
		ScheduleRepo:  repositories.NewScheduleRepository(db),
		TimerRepo:     repositories.NewTimerRepository(db),
		OvertimeRepo:  repositories.NewOvertimeRepository(db),
		IndentedRepo:  repositories.NewIndentedCueRepository(db),
		CompletedRepo: repositories.NewCompletedCueRepository(db),
		Store:         repositories.NewEventStore(db),
	}

	cleanup := func() {
		_ = sqlDB.Close()
	}

	return testDB, cleanup
}

// UniqueEventID generates a unique event ID for testing.
func UniqueEventID(prefix string) string {
	return prefix + "-" + cuid.New()[:8]
}
