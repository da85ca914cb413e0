package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/lgulliver/docdesk/pkg/config"
	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/rs/zerolog/log"
)

// Migrator applies versioned SQL files to the job history database
type Migrator struct {
	db            *sql.DB
	placeholder   func(n int) string
	migrationsFS  fs.FS
	migrationsDir string
}

// Migration represents a database migration
type Migration struct {
	Version int
	Name    string
	UpSQL   string
	DownSQL string
}

// MigrationStatus reports whether a known migration has been applied
type MigrationStatus struct {
	Version int
	Name    string
	Applied bool
}

// Open connects to the history database selected by the configuration
func Open(history *config.HistoryConfig, database *config.DatabaseConfig, migrationsFS fs.FS, migrationsDir string) (*Migrator, error) {
	var driver, dsn string
	switch history.Driver {
	case "postgres":
		driver, dsn = "postgres", history.DSN
		if dsn == "" {
			dsn = database.DatabaseURL()
		}
	case "sqlite":
		driver, dsn = "sqlite3", history.DSN
	default:
		return nil, fmt.Errorf("unsupported history driver: %s", history.Driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return NewMigrator(db, driver, migrationsFS, migrationsDir), nil
}

// NewMigrator wraps an open connection. driver selects the placeholder style.
func NewMigrator(db *sql.DB, driver string, migrationsFS fs.FS, migrationsDir string) *Migrator {
	placeholder := func(int) string { return "?" }
	if driver == "postgres" {
		placeholder = func(n int) string { return "$" + strconv.Itoa(n) }
	}
	return &Migrator{
		db:            db,
		placeholder:   placeholder,
		migrationsFS:  migrationsFS,
		migrationsDir: migrationsDir,
	}
}

// Close closes the database connection
func (m *Migrator) Close() error {
	return m.db.Close()
}

// EnsureMigrationsTable creates the migrations tracking table if it doesn't exist
func (m *Migrator) EnsureMigrationsTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			applied_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
		)
	`
	if _, err := m.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	return nil
}

// AppliedVersions returns the applied migration versions in ascending order
func (m *Migrator) AppliedVersions(ctx context.Context) ([]int, error) {
	rows, err := m.db.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("failed to scan migration version: %w", err)
		}
		versions = append(versions, version)
	}
	return versions, rows.Err()
}

// LoadMigrations reads every NNN_name.sql file, sorted by version. Two files
// with the same version are an error.
func (m *Migrator) LoadMigrations() ([]*Migration, error) {
	entries, err := fs.ReadDir(m.migrationsFS, m.migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var migrations []*Migration
	seen := make(map[int]string)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		migration, err := m.parseMigrationFile(entry.Name())
		if err != nil {
			log.Warn().Err(err).Str("file", entry.Name()).Msg("Skipping invalid migration file")
			continue
		}
		if other, ok := seen[migration.Version]; ok {
			return nil, fmt.Errorf("migration version %d used by both %s and %s", migration.Version, other, entry.Name())
		}
		seen[migration.Version] = entry.Name()
		migrations = append(migrations, migration)
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// parseMigrationFile parses "001_job_history.sql" into a migration
func (m *Migrator) parseMigrationFile(filename string) (*Migration, error) {
	prefix, rest, ok := strings.Cut(filename, "_")
	if !ok {
		return nil, fmt.Errorf("invalid migration filename format: %s", filename)
	}
	version, err := strconv.Atoi(prefix)
	if err != nil || version <= 0 {
		return nil, fmt.Errorf("failed to parse version from filename %s", filename)
	}

	content, err := fs.ReadFile(m.migrationsFS, path.Join(m.migrationsDir, filename))
	if err != nil {
		return nil, fmt.Errorf("failed to read migration file %s: %w", filename, err)
	}

	upSQL, downSQL := splitMigration(string(content))
	return &Migration{
		Version: version,
		Name:    strings.TrimSuffix(rest, ".sql"),
		UpSQL:   upSQL,
		DownSQL: downSQL,
	}, nil
}

// splitMigration splits content at the "-- +migrate Up" / "-- +migrate Down" markers
func splitMigration(content string) (string, string) {
	var upLines, downLines []string
	inDown := false

	for _, line := range strings.Split(content, "\n") {
		switch strings.TrimSpace(line) {
		case "-- +migrate Up":
			inDown = false
			continue
		case "-- +migrate Down":
			inDown = true
			continue
		}
		if inDown {
			downLines = append(downLines, line)
		} else {
			upLines = append(upLines, line)
		}
	}

	return strings.TrimSpace(strings.Join(upLines, "\n")), strings.TrimSpace(strings.Join(downLines, "\n"))
}

// Status lists every known migration and whether it has been applied
func (m *Migrator) Status(ctx context.Context) ([]MigrationStatus, error) {
	if err := m.EnsureMigrationsTable(ctx); err != nil {
		return nil, err
	}
	applied, err := m.appliedSet(ctx)
	if err != nil {
		return nil, err
	}
	migrations, err := m.LoadMigrations()
	if err != nil {
		return nil, err
	}

	status := make([]MigrationStatus, len(migrations))
	for i, migration := range migrations {
		status[i] = MigrationStatus{Version: migration.Version, Name: migration.Name, Applied: applied[migration.Version]}
	}
	return status, nil
}

func (m *Migrator) appliedSet(ctx context.Context) (map[int]bool, error) {
	versions, err := m.AppliedVersions(ctx)
	if err != nil {
		return nil, err
	}
	applied := make(map[int]bool, len(versions))
	for _, version := range versions {
		applied[version] = true
	}
	return applied, nil
}

// Up runs all pending migrations and returns how many were applied
func (m *Migrator) Up(ctx context.Context) (int, error) {
	if err := m.EnsureMigrationsTable(ctx); err != nil {
		return 0, err
	}
	applied, err := m.appliedSet(ctx)
	if err != nil {
		return 0, err
	}
	migrations, err := m.LoadMigrations()
	if err != nil {
		return 0, err
	}

	count := 0
	for _, migration := range migrations {
		if applied[migration.Version] {
			continue
		}
		if err := m.runMigration(ctx, migration.UpSQL, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx,
				fmt.Sprintf("INSERT INTO schema_migrations (version, name) VALUES (%s, %s)", m.placeholder(1), m.placeholder(2)),
				migration.Version, migration.Name)
			return err
		}); err != nil {
			return count, fmt.Errorf("failed to run migration %d (%s): %w", migration.Version, migration.Name, err)
		}
		count++
		log.Info().Int("version", migration.Version).Str("name", migration.Name).Msg("Applied migration")
	}

	if count == 0 {
		log.Info().Msg("No pending migrations")
	}
	return count, nil
}

// Down rolls back the last applied migration
func (m *Migrator) Down(ctx context.Context) error {
	if err := m.EnsureMigrationsTable(ctx); err != nil {
		return err
	}
	versions, err := m.AppliedVersions(ctx)
	if err != nil {
		return err
	}
	if len(versions) == 0 {
		log.Info().Msg("No migrations to roll back")
		return nil
	}
	lastVersion := versions[len(versions)-1]

	migrations, err := m.LoadMigrations()
	if err != nil {
		return err
	}
	var target *Migration
	for _, migration := range migrations {
		if migration.Version == lastVersion {
			target = migration
			break
		}
	}
	if target == nil {
		return fmt.Errorf("migration file for version %d not found", lastVersion)
	}

	if err := m.runMigration(ctx, target.DownSQL, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			fmt.Sprintf("DELETE FROM schema_migrations WHERE version = %s", m.placeholder(1)),
			target.Version)
		return err
	}); err != nil {
		return fmt.Errorf("failed to roll back migration %d (%s): %w", target.Version, target.Name, err)
	}

	log.Info().Int("version", target.Version).Str("name", target.Name).Msg("Rolled back migration")
	return nil
}

// runMigration executes body and the bookkeeping statement in one transaction
func (m *Migrator) runMigration(ctx context.Context, body string, record func(tx *sql.Tx) error) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if body != "" {
		if _, err := tx.ExecContext(ctx, body); err != nil {
			return fmt.Errorf("failed to execute migration SQL: %w", err)
		}
	}
	if err := record(tx); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}
	return tx.Commit()
}
