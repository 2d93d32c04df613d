package store

import (
	"database/sql"
	"fmt"
	"os"
)

// NewTestDB opens a throwaway SQLite file with the full kernel schema
// applied, for use by every package's _test.go files. Mirrors the
// teacher's per-package setupTestDB(t) helper, centralized here since
// all kernel stores now share one schema.
func NewTestDB() (*sql.DB, func(), error) {
	f, err := os.CreateTemp("", "coordinatord-test-*.db")
	if err != nil {
		return nil, nil, fmt.Errorf("create temp db file: %w", err)
	}
	f.Close()

	db, err := Open(f.Name())
	if err != nil {
		os.Remove(f.Name())
		return nil, nil, err
	}

	cleanup := func() {
		db.Close()
		os.Remove(f.Name())
	}
	return db, cleanup, nil
}
