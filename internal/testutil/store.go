package testutil

import (
	"testing"

	"ct-go/internal/database"
	"ct-go/internal/database/migrations"
)

// NewTestStore creates an in-memory SQLite store with all migrations applied.
// The store is automatically closed when the test completes.
func NewTestStore(t *testing.T) *database.Store {
	t.Helper()

	sqlDB, err := database.OpenConnection(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}

	if err := migrations.MigrateUp(sqlDB); err != nil {
		sqlDB.Close()
		t.Fatalf("failed to migrate store: %v", err)
	}

	store := database.NewStoreFromDB(sqlDB)

	t.Cleanup(func() {
		store.Close()
	})

	return store
}
