package shared

import (
	"database/sql"
	"path/filepath"
	"testing"
)

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()

	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name).Scan(&n); err != nil {
		t.Fatalf("failed to inspect schema: %v", err)
	}
	return n == 1
}

func appliedVersions(t *testing.T, db *sql.DB) []int {
	t.Helper()

	rows, err := db.Query("SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		t.Fatalf("failed to list applied versions: %v", err)
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			t.Fatalf("failed to scan version: %v", err)
		}
		versions = append(versions, v)
	}
	return versions
}

func TestMigrationRunner(t *testing.T) {
	t.Run("Embedded Scripts", func(t *testing.T) {
		migrations, err := loadMigrations()
		if err != nil {
			t.Fatalf("failed to load migrations: %v", err)
		}

		for i, m := range migrations {
			if m.Version != i+1 {
				t.Errorf("migration %d has version %d, versions must be contiguous from 1", i, m.Version)
			}
			if m.Up == "" || m.Down == "" {
				t.Errorf("migration %d must carry both directions", m.Version)
			}
		}
	})

	t.Run("Creates Cache Index And Settings", func(t *testing.T) {
		db, err := NewDatabase(":memory:")
		if err != nil {
			t.Fatalf("failed to create database: %v", err)
		}
		defer db.Close()

		if err := RunMigrations(db); err != nil {
			t.Fatalf("failed to run migrations: %v", err)
		}

		for _, table := range []string{"cache_entries", "settings"} {
			if !tableExists(t, db, table) {
				t.Errorf("expected table %s", table)
			}
		}
		if got := appliedVersions(t, db); len(got) != 2 || got[0] != 1 || got[1] != 2 {
			t.Errorf("expected versions [1 2], got %v", got)
		}
	})

	t.Run("Rollback Removes Latest Only", func(t *testing.T) {
		db, err := NewDatabase(":memory:")
		if err != nil {
			t.Fatalf("failed to create database: %v", err)
		}
		defer db.Close()

		if err := RunMigrations(db); err != nil {
			t.Fatalf("failed to run migrations: %v", err)
		}
		if err := RollbackMigration(db); err != nil {
			t.Fatalf("failed to roll back: %v", err)
		}

		if tableExists(t, db, "settings") {
			t.Error("settings table should be dropped by rollback")
		}
		if !tableExists(t, db, "cache_entries") {
			t.Error("cache index must survive rolling back the settings migration")
		}

		if err := RunMigrations(db); err != nil {
			t.Fatalf("failed to re-apply migrations: %v", err)
		}
		if !tableExists(t, db, "settings") {
			t.Error("settings table should be restored")
		}
	})

	t.Run("Reopen Keeps Rows", func(t *testing.T) {
		cfg := DatabaseConfig{Path: filepath.Join(t.TempDir(), "tapedeck.db"), MaxOpenConns: 2, MaxIdleConns: 1}

		db, err := OpenDatabase(cfg)
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		if _, err := db.Exec("INSERT INTO settings (name, value, updated_at) VALUES ('youtube', 'false', CURRENT_TIMESTAMP)"); err != nil {
			t.Fatalf("failed to insert setting: %v", err)
		}
		db.Close()

		db, err = OpenDatabase(cfg)
		if err != nil {
			t.Fatalf("failed to reopen database: %v", err)
		}
		defer db.Close()

		var value string
		if err := db.QueryRow("SELECT value FROM settings WHERE name = 'youtube'").Scan(&value); err != nil {
			t.Fatalf("expected setting to survive reopen: %v", err)
		}
		if value != "false" {
			t.Errorf("expected 'false', got %q", value)
		}
		if got := appliedVersions(t, db); len(got) != 2 {
			t.Errorf("reopen must not re-record migrations, got %v", got)
		}
	})

	t.Run("Strip Comments", func(t *testing.T) {
		got := stripComments("-- header\nCREATE TABLE x (id INTEGER); -- trailing\n\n")
		if got != "CREATE TABLE x (id INTEGER);" {
			t.Errorf("unexpected statement %q", got)
		}
	})
}
