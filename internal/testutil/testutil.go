// Package testutil provides shared test utilities and fixtures.
//
// This package centralises common test helpers to reduce code duplication
// across test files and improve test maintainability.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/banshee-data/sfm/internal/matching"
	"github.com/banshee-data/sfm/internal/storage/sqlite"
	"github.com/banshee-data/sfm/internal/synthetic"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// NewTestDB opens a migrated SQLite database in a temp dir. It is closed
// when the test ends.
func NewTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "sfm.db"))
	AssertNoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// NewPopulatedDatabase generates a synthetic scene and writes its priors,
// features and matches to an in-memory database.
func NewPopulatedDatabase(t *testing.T, opts synthetic.Options) (*synthetic.Scene, *matching.MemoryDatabase) {
	t.Helper()
	scene := synthetic.NewScene(opts)
	db := matching.NewMemoryDatabase()
	AssertNoError(t, scene.Populate(db))
	return scene, db
}
