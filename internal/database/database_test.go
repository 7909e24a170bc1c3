package database

import (
	"database/sql"
	"testing"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck

	if err := Migrate(db); err != nil {
		t.Fatalf("running migrations: %v", err)
	}
	return db
}

func TestOpenAppliesPragmas(t *testing.T) {
	db := setupTestDB(t)

	var fk int
	if err := db.QueryRow(`PRAGMA foreign_keys`).Scan(&fk); err != nil {
		t.Fatalf("reading foreign_keys pragma: %v", err)
	}
	if fk != 1 {
		t.Errorf("foreign_keys = %d, want 1", fk)
	}

	var timeout int
	if err := db.QueryRow(`PRAGMA busy_timeout`).Scan(&timeout); err != nil {
		t.Fatalf("reading busy_timeout pragma: %v", err)
	}
	if timeout != 5000 {
		t.Errorf("busy_timeout = %d, want 5000", timeout)
	}
}

func TestDeleteUserCascadesSessions(t *testing.T) {
	db := setupTestDB(t)

	if _, err := db.Exec(
		`INSERT INTO users (id, name, created_at, updated_at) VALUES ('u1', 'alice', '', '')`); err != nil {
		t.Fatalf("inserting user: %v", err)
	}
	if _, err := db.Exec(
		`INSERT INTO sessions (id, user_id, expires_at) VALUES ('s1', 'u1', '2099-01-01T00:00:00Z')`); err != nil {
		t.Fatalf("inserting session: %v", err)
	}

	if _, err := db.Exec(`DELETE FROM users WHERE id = 'u1'`); err != nil {
		t.Fatalf("deleting user: %v", err)
	}

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM sessions WHERE user_id = 'u1'`).Scan(&n); err != nil {
		t.Fatalf("counting sessions: %v", err)
	}
	if n != 0 {
		t.Errorf("sessions remaining after user delete = %d, want 0", n)
	}
}
