// Package transcript persists tool calls in SQLite so a session can be
// inspected afterwards with `corrode history`.
package transcript

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	// SQLite driver (required for database/sql registration).
	_ "github.com/mattn/go-sqlite3"

	apperrors "github.com/flynn-ai/corrode/internal/errors"
)

// Entry is one recorded tool call. Arguments and Result hold canonical JSON.
type Entry struct {
	ID        string        `json:"id"`
	Tool      string        `json:"tool"`
	Arguments string        `json:"arguments"`
	Result    string        `json:"result"`
	IsError   bool          `json:"is_error"`
	Code      string        `json:"code,omitempty"`
	Duration  time.Duration `json:"duration"`
	CreatedAt time.Time     `json:"created_at"`
}

// Store manages the transcript database.
type Store struct {
	db *sql.DB
}

// Open opens the database at path, creating it and its tables if needed.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeFileWriteFailed, "creating transcript directory", apperrors.CategorySystem)
	}

	db, err := openDB(path)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeFileWriteFailed, "opening transcript "+path, apperrors.CategorySystem)
	}

	s := &Store{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, apperrors.Wrap(err, apperrors.CodeFileWriteFailed, "initializing transcript "+path, apperrors.CategorySystem)
	}
	return s, nil
}

// openDB opens a single SQLite database with the pragmas the store relies on.
func openDB(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	pragmas := []string{
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, err
		}
	}
	return db, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) init() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
		description TEXT
	);

	CREATE TABLE IF NOT EXISTS calls (
		id          TEXT PRIMARY KEY,
		tool        TEXT NOT NULL,
		arguments   TEXT NOT NULL,
		result      TEXT NOT NULL,
		is_error    INTEGER NOT NULL DEFAULT 0,
		code        TEXT,
		duration_ns INTEGER NOT NULL DEFAULT 0,
		created_at  INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_calls_created ON calls(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_calls_tool ON calls(tool, created_at DESC);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return ensureSchemaVersion(s.db, 1, "Initial transcript schema")
}

func ensureSchemaVersion(db *sql.DB, version int, description string) error {
	var current sql.NullInt64
	if err := db.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&current); err != nil {
		return err
	}

	if !current.Valid || int(current.Int64) < version {
		_, err := db.Exec(
			"INSERT INTO schema_migrations (version, description) VALUES (?, ?)",
			version,
			description,
		)
		return err
	}
	return nil
}

// Record stores e. A missing ID or timestamp is filled in.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO calls (id, tool, arguments, result, is_error, code, duration_ns, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.Tool, e.Arguments, e.Result, e.IsError, nullable(e.Code), int64(e.Duration), e.CreatedAt.UnixNano())
	return err
}

// Recent returns up to limit entries, newest first. A tool name narrows the list.
func (s *Store) Recent(ctx context.Context, tool string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT id, tool, arguments, result, is_error, code, duration_ns, created_at FROM calls`
	args := []any{}
	if tool != "" {
		query += ` WHERE tool = ?`
		args = append(args, tool)
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// Get returns one entry by id.
func (s *Store) Get(ctx context.Context, id string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tool, arguments, result, is_error, code, duration_ns, created_at
		FROM calls WHERE id = ?
	`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewBuilder(apperrors.CodeFileNotFound, "no transcript entry "+id).User().Build()
	}
	return e, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*Entry, error) {
	var (
		e         Entry
		code      sql.NullString
		duration  int64
		createdAt int64
	)
	if err := row.Scan(&e.ID, &e.Tool, &e.Arguments, &e.Result, &e.IsError, &code, &duration, &createdAt); err != nil {
		return nil, err
	}
	e.Code = code.String
	e.Duration = time.Duration(duration)
	e.CreatedAt = time.Unix(0, createdAt)
	return &e, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
