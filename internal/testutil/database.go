package testutil

import (
	"testing"

	"s3backup/internal/database"
)

// NewTestHistory creates a new in-memory run history with schema applied.
// The database is automatically closed when the test completes.
func NewTestHistory(t *testing.T) *database.SQLiteDatabase {
	t.Helper()

	db, err := database.NewSQLiteDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return db
}
