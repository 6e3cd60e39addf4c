package database

import (
	"database/sql"
	"fmt"
)

// Migration represents one versioned schema change.
type Migration struct {
	Version     string
	Description string
	SQL         string
}

// Migrations are defined in code and applied in order. Each runs in its own
// transaction and is recorded in schema_migrations, so restarts and upgrades
// converge on the same schema.
var migrations = []Migration{
	{
		Version:     "001",
		Description: "forums and posts",
		SQL: `
			CREATE TABLE IF NOT EXISTS forums (
				id         TEXT PRIMARY KEY,
				title      TEXT NOT NULL UNIQUE,
				created_at DATETIME NOT NULL
			);

			CREATE TABLE IF NOT EXISTS posts (
				forum_id      TEXT NOT NULL REFERENCES forums(id),
				number        INTEGER NOT NULL,
				parent_number INTEGER,
				author        TEXT NOT NULL,
				state         TEXT NOT NULL CHECK (length(state) = 1),
				posted_at     DATETIME NOT NULL,
				PRIMARY KEY (forum_id, number)
			);

			CREATE INDEX IF NOT EXISTS idx_posts_forum ON posts(forum_id);
			CREATE INDEX IF NOT EXISTS idx_posts_forum_state ON posts(forum_id, state);
		`,
	},
	{
		Version:     "002",
		Description: "post contents",
		SQL: `
			CREATE TABLE IF NOT EXISTS post_contents (
				forum_id TEXT NOT NULL,
				number   INTEGER NOT NULL,
				body     TEXT NOT NULL,
				PRIMARY KEY (forum_id, number)
			);
		`,
	},
	{
		Version:     "003",
		Description: "sessions",
		SQL: `
			CREATE TABLE IF NOT EXISTS sessions (
				id         TEXT PRIMARY KEY,
				user_id    TEXT NOT NULL,
				role       TEXT NOT NULL,
				created_at DATETIME NOT NULL,
				expires_at DATETIME NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_sessions_expires ON sessions(expires_at);
		`,
	},
}

// MigrationManager applies pending migrations and tracks schema state.
type MigrationManager struct {
	db *sql.DB
}

// NewMigrationManager creates a new migration manager.
func NewMigrationManager(db *sql.DB) *MigrationManager {
	return &MigrationManager{db: db}
}

// ApplyMigrations applies all pending migrations in version order.
func (m *MigrationManager) ApplyMigrations() error {
	if err := m.createMigrationTable(); err != nil {
		return fmt.Errorf("failed to create migration table: %w", err)
	}

	applied, err := m.appliedVersions()
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	for _, migration := range migrations {
		if applied[migration.Version] {
			continue
		}
		if err := m.applyMigration(migration); err != nil {
			return fmt.Errorf("failed to apply migration %s (%s): %w",
				migration.Version, migration.Description, err)
		}
	}

	return nil
}

func (m *MigrationManager) createMigrationTable() error {
	_, err := m.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    TEXT PRIMARY KEY,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

func (m *MigrationManager) appliedVersions() (map[string]bool, error) {
	rows, err := m.db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	applied := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

// applyMigration runs one migration and its version record in a single
// transaction: either both land or neither does.
func (m *MigrationManager) applyMigration(migration Migration) error {
	tx, err := m.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(migration.SQL); err != nil {
		return err
	}

	if _, err := tx.Exec(
		"INSERT INTO schema_migrations (version) VALUES (?)",
		migration.Version,
	); err != nil {
		return err
	}

	return tx.Commit()
}
