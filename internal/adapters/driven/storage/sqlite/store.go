package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/sercha-feed/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/custodia-labs/sercha-feed/internal/core/domain"
	"github.com/custodia-labs/sercha-feed/internal/core/ports/driven"
)

// dbFile is the database file name inside the data directory.
const dbFile = "feed.db"

// timeLayout is fixed-width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store is a unified SQLite-based storage that provides access to
// all feed store interfaces through wrapper types.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore creates a new SQLite store at the specified data directory.
// If dataDir is empty, defaults to ~/.sercha-feed/data/feed.db.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, errors.Wrap(err, "getting home directory")
		}
		dataDir = filepath.Join(home, ".sercha-feed", "data")
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, errors.Wrap(err, "creating data directory")
	}

	dbPath := filepath.Join(dataDir, dbFile)

	// WAL lets status readers run alongside the scheduler's writes.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "enabling foreign keys")
	}

	s := &Store{
		db:   db,
		path: dbPath,
	}

	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "running migrations")
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// ConnectorStore returns a ConnectorStore interface backed by this store.
func (s *Store) ConnectorStore() driven.ConnectorStore {
	return &connectorStore{store: s}
}

// ScheduleStore returns a ScheduleStore interface backed by this store.
func (s *Store) ScheduleStore() driven.ScheduleStore {
	return &scheduleStore{store: s}
}

// CheckpointStore returns a CheckpointStore interface backed by this store.
func (s *Store) CheckpointStore() driven.CheckpointStore {
	return &checkpointStore{store: s}
}

// HistoryStore returns a HistoryStore interface backed by this store.
func (s *Store) HistoryStore() driven.HistoryStore {
	return &historyStore{store: s}
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return errors.Wrap(err, "creating schema_migrations table")
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return errors.Wrap(err, "getting current version")
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return errors.Wrap(err, "reading migrations directory")
	}

	var upFiles []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// "001_initial.up.sql" -> 1
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return errors.Wrapf(err, "reading migration %s", name)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return errors.Wrapf(err, "executing migration %s", name)
		}
	}

	return nil
}

// ==================== Connector Store ====================

// connectorStore implements driven.ConnectorStore.
type connectorStore struct {
	store *Store
}

var _ driven.ConnectorStore = (*connectorStore)(nil)

// Save stores or updates a connector.
func (s *connectorStore) Save(ctx context.Context, connector domain.Connector) error {
	if connector.Name == "" {
		return errors.Wrap(domain.ErrInvalidInput, "connector name is empty")
	}
	configJSON, err := json.Marshal(connector.Config)
	if err != nil {
		return errors.Wrap(err, "marshalling config")
	}

	now := time.Now().UTC()
	if connector.CreatedAt.IsZero() {
		connector.CreatedAt = now
	}
	connector.UpdatedAt = now

	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO connectors (name, type, config, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			type = excluded.type,
			config = excluded.config,
			updated_at = excluded.updated_at
	`, connector.Name, connector.Type, string(configJSON),
		formatTime(connector.CreatedAt), formatTime(connector.UpdatedAt))
	if err != nil {
		return errors.Wrap(err, "saving connector")
	}
	return nil
}

// Get retrieves a connector by name.
func (s *connectorStore) Get(ctx context.Context, name string) (*domain.Connector, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT name, type, config, created_at, updated_at
		FROM connectors WHERE name = ?
	`, name)

	connector, err := scanConnector(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return connector, nil
}

// Delete removes a connector.
func (s *connectorStore) Delete(ctx context.Context, name string) error {
	_, err := s.store.db.ExecContext(ctx, "DELETE FROM connectors WHERE name = ?", name)
	if err != nil {
		return errors.Wrap(err, "deleting connector")
	}
	return nil
}

// List returns all connectors ordered by name.
func (s *connectorStore) List(ctx context.Context) ([]domain.Connector, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT name, type, config, created_at, updated_at
		FROM connectors ORDER BY name
	`)
	if err != nil {
		return nil, errors.Wrap(err, "querying connectors")
	}
	defer rows.Close()

	var connectors []domain.Connector //nolint:prealloc // size unknown from query
	for rows.Next() {
		connector, err := scanConnector(rows)
		if err != nil {
			return nil, err
		}
		connectors = append(connectors, *connector)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterating connectors")
	}

	return connectors, nil
}

// ==================== Checkpoint Store ====================

// checkpointStore implements driven.CheckpointStore.
type checkpointStore struct {
	store *Store
}

var _ driven.CheckpointStore = (*checkpointStore)(nil)

// Save stores or updates a checkpoint.
func (s *checkpointStore) Save(ctx context.Context, checkpoint domain.Checkpoint) error {
	if checkpoint.ConnectorName == "" {
		return errors.Wrap(domain.ErrInvalidInput, "checkpoint has no connector")
	}
	if checkpoint.UpdatedAt.IsZero() {
		checkpoint.UpdatedAt = time.Now()
	}

	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO checkpoints (connector_name, token, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(connector_name) DO UPDATE SET
			token = excluded.token,
			updated_at = excluded.updated_at
	`, checkpoint.ConnectorName, checkpoint.Token, formatTime(checkpoint.UpdatedAt))
	if err != nil {
		return errors.Wrap(err, "saving checkpoint")
	}
	return nil
}

// Get retrieves the checkpoint for a connector.
func (s *checkpointStore) Get(ctx context.Context, connectorName string) (*domain.Checkpoint, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT connector_name, token, updated_at
		FROM checkpoints WHERE connector_name = ?
	`, connectorName)

	var cp domain.Checkpoint
	var updatedAt string
	if err := row.Scan(&cp.ConnectorName, &cp.Token, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, errors.Wrap(err, "scanning checkpoint")
	}
	cp.UpdatedAt = parseTime(updatedAt)
	return &cp, nil
}

// Delete removes the checkpoint for a connector.
func (s *checkpointStore) Delete(ctx context.Context, connectorName string) error {
	_, err := s.store.db.ExecContext(ctx, "DELETE FROM checkpoints WHERE connector_name = ?", connectorName)
	if err != nil {
		return errors.Wrap(err, "deleting checkpoint")
	}
	return nil
}

// ==================== Helper Functions ====================

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanConnector scans a connector row. sql.ErrNoRows is returned unwrapped.
func scanConnector(row rowScanner) (*domain.Connector, error) {
	var connector domain.Connector
	var configJSON, createdAt, updatedAt string
	if err := row.Scan(&connector.Name, &connector.Type, &configJSON, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, errors.Wrap(err, "scanning connector")
	}

	if configJSON != "" && configJSON != "null" {
		if err := json.Unmarshal([]byte(configJSON), &connector.Config); err != nil {
			return nil, errors.Wrap(err, "unmarshalling config")
		}
	}
	connector.CreatedAt = parseTime(createdAt)
	connector.UpdatedAt = parseTime(updatedAt)
	return &connector, nil
}

// formatTime formats t in UTC with timeLayout.
func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// parseTime parses a stored timestamp. Returns zero time if it is invalid.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// nullString returns nil for empty strings, otherwise the string.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
