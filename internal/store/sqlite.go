package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nhle/taskpulse/internal/model"
)

// SQLiteStore implements AdmissionStore and TaskCache using a local SQLite
// database.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// A single connection serializes writers and keeps ":memory:" databases
	// from splitting across pool connections.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	// Check if schema_version table exists.
	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// ShownIDs returns every notification id recorded as displayed.
func (s *SQLiteStore) ShownIDs(ctx context.Context) (map[string]struct{}, error) {
	var ids []string
	if err := s.db.SelectContext(ctx, &ids, "SELECT id FROM shown_notifications"); err != nil {
		return nil, fmt.Errorf("querying shown notifications: %w", err)
	}

	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out, nil
}

// AddShown records id as displayed. Recording it twice is a no-op.
func (s *SQLiteStore) AddShown(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO shown_notifications (id, shown_at) VALUES (?, ?)",
		id, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("recording shown notification %s: %w", id, err)
	}
	return nil
}

// DismissedReminders returns the reminders the user closed, keyed by id.
func (s *SQLiteStore) DismissedReminders(
	ctx context.Context,
) (map[string]DismissedReminder, error) {
	var rows []DismissedReminder
	err := s.db.SelectContext(ctx, &rows,
		"SELECT id, deadline, dismissed_at FROM dismissed_reminders",
	)
	if err != nil {
		return nil, fmt.Errorf("querying dismissed reminders: %w", err)
	}

	out := make(map[string]DismissedReminder, len(rows))
	for _, r := range rows {
		out[r.ID] = r
	}
	return out, nil
}

// AddDismissed inserts or replaces a reminder dismissal.
func (s *SQLiteStore) AddDismissed(ctx context.Context, d DismissedReminder) error {
	if d.DismissedAt.IsZero() {
		d.DismissedAt = time.Now()
	}
	var deadline *time.Time
	if d.Deadline != nil {
		utc := d.Deadline.UTC()
		deadline = &utc
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO dismissed_reminders (id, deadline, dismissed_at)
		VALUES (?, ?, ?)`,
		d.ID, deadline, d.DismissedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("recording dismissed reminder %s: %w", d.ID, err)
	}
	return nil
}

// RemoveDismissed forgets a reminder dismissal.
func (s *SQLiteStore) RemoveDismissed(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM dismissed_reminders WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("removing dismissed reminder %s: %w", id, err)
	}
	return nil
}

// Clear wipes both dedup sets.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM shown_notifications"); err != nil {
		return fmt.Errorf("clearing shown notifications: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM dismissed_reminders"); err != nil {
		return fmt.Errorf("clearing dismissed reminders: %w", err)
	}

	return tx.Commit()
}

// ReplaceTasks swaps the cached snapshot for tasks.
func (s *SQLiteStore) ReplaceTasks(ctx context.Context, tasks []model.Task) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM tasks"); err != nil {
		return fmt.Errorf("clearing cached tasks: %w", err)
	}

	const query = `
		INSERT INTO tasks (
			id, title, status, start_at, deadline, completed_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`

	stmt, err := tx.PreparexContext(ctx, query)
	if err != nil {
		return fmt.Errorf("preparing task insert: %w", err)
	}
	defer stmt.Close()

	for _, t := range tasks {
		_, err = stmt.ExecContext(ctx,
			t.ID, t.Title, string(t.Status),
			utcPtr(t.StartAt), utcPtr(t.Deadline), utcPtr(t.CompletedAt),
			t.UpdatedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("caching task %s: %w", t.ID, err)
		}
	}

	return tx.Commit()
}

// GetTasks returns the cached snapshot ordered by deadline, tasks without a
// deadline last.
func (s *SQLiteStore) GetTasks(ctx context.Context) ([]model.Task, error) {
	var tasks []model.Task
	err := s.db.SelectContext(ctx, &tasks, `
		SELECT id, title, status, start_at, deadline, completed_at, updated_at
		FROM tasks
		ORDER BY deadline IS NULL, deadline, title`)
	if err != nil {
		return nil, fmt.Errorf("querying cached tasks: %w", err)
	}
	return tasks, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
