package db

import (
	"path/filepath"
	"testing"
)

// NewTestDB creates a migrated database in a temp dir that is closed when
// the test ends.
func NewTestDB(t testing.TB) *DB {
	t.Helper()

	db, err := NewDB(filepath.Join(t.TempDir(), "wellness_test.db"))
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// CreateTestResident adds a followed resident and returns it.
func CreateTestResident(t testing.TB, db *DB) *Resident {
	t.Helper()

	r := &Resident{Room: "101", Name: "Test Resident", Followed: true}
	if err := db.CreateResident(r); err != nil {
		t.Fatalf("CreateResident failed: %v", err)
	}
	return r
}
