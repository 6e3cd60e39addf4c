package database

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := ApplySQLiteOptimizations(db); err != nil {
		t.Fatalf("failed to apply optimizations: %v", err)
	}
	return db
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default config valid", func(c *Config) {}, false},
		{"empty path", func(c *Config) { c.DatabasePath = "" }, true},
		{"zero connections", func(c *Config) { c.MaxConnections = 0 }, true},
		{"zero lifetime", func(c *Config) { c.ConnMaxLifetime = 0 }, true},
		{"negative idle time", func(c *Config) { c.ConnMaxIdleTime = -time.Second }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMigrations_ApplyAll(t *testing.T) {
	db := openTestDB(t)

	manager := NewMigrationManager(db)
	if err := manager.ApplyMigrations(); err != nil {
		t.Fatalf("ApplyMigrations failed: %v", err)
	}

	validator := NewSchemaValidator(db)
	if err := validator.Validate(); err != nil {
		t.Errorf("schema validation failed after migrations: %v", err)
	}
}

func TestMigrations_Idempotent(t *testing.T) {
	db := openTestDB(t)

	manager := NewMigrationManager(db)
	if err := manager.ApplyMigrations(); err != nil {
		t.Fatalf("first ApplyMigrations failed: %v", err)
	}
	if err := manager.ApplyMigrations(); err != nil {
		t.Fatalf("second ApplyMigrations failed: %v", err)
	}

	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count)
	if err != nil {
		t.Fatalf("failed to count migrations: %v", err)
	}
	if count != len(migrations) {
		t.Errorf("expected %d applied migrations, got %d", len(migrations), count)
	}
}

func TestSchemaValidator_MissingTable(t *testing.T) {
	db := openTestDB(t)

	// No migrations applied; validation must fail.
	validator := NewSchemaValidator(db)
	if err := validator.ValidateTablesExist(); err == nil {
		t.Error("expected validation error on empty database")
	}
}

func TestSchema_PostStateCheck(t *testing.T) {
	db := openTestDB(t)

	manager := NewMigrationManager(db)
	if err := manager.ApplyMigrations(); err != nil {
		t.Fatalf("ApplyMigrations failed: %v", err)
	}

	_, err := db.Exec(
		"INSERT INTO forums (id, title, created_at) VALUES (?, ?, ?)",
		"f1", "MATH 117", time.Now(),
	)
	if err != nil {
		t.Fatalf("failed to insert forum: %v", err)
	}

	// Multi-character state codes violate the CHECK constraint.
	_, err = db.Exec(
		"INSERT INTO posts (forum_id, number, author, state, posted_at) VALUES (?, ?, ?, ?, ?)",
		"f1", 1, "student1", "UNREAD", time.Now(),
	)
	if err == nil {
		t.Error("expected CHECK constraint violation for multi-character state")
	}
}
