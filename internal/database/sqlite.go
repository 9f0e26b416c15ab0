package database

import (
	"database/sql"
	"errors"
	"fmt"

	"s3backup/internal/database/migrations"
	"s3backup/internal/sb"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteDatabase implements sb.History using SQLite.
type SQLiteDatabase struct {
	db   *sql.DB
	path string
}

// NewSQLiteDatabase opens the database at path and brings its schema up to
// date. path can be a file path or ":memory:" for an in-memory database.
func NewSQLiteDatabase(path string) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	return &SQLiteDatabase{db: db, path: path}, nil
}

// OpenConnection opens and configures a SQLite connection without touching
// the schema.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Every pooled connection to ":memory:" would be a separate database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	return db, nil
}

// Run history

func (s *SQLiteDatabase) StartRun(run *sb.Run) (int64, error) {
	res, err := s.db.Exec(`
		INSERT INTO runs (run_id, operation, schedule, status, started_at)
		VALUES (?, ?, ?, ?, ?)`,
		run.RunID, run.Operation, run.Schedule, run.Status, run.StartedAt.UTC())
	if err != nil {
		return 0, fmt.Errorf("inserting run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading run id: %w", err)
	}
	return id, nil
}

func (s *SQLiteDatabase) FinishRun(run *sb.Run) error {
	var finished any
	if run.FinishedAt.Valid {
		finished = run.FinishedAt.Time.UTC()
	}
	res, err := s.db.Exec(`
		UPDATE runs
		SET object_key = ?, content_hash = ?, size = ?, encrypted = ?,
		    status = ?, error = ?, finished_at = ?
		WHERE id = ?`,
		run.ObjectKey, run.ContentHash, run.Size, run.Encrypted,
		run.Status, run.Error, finished, run.ID)
	if err != nil {
		return fmt.Errorf("updating run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("run %d: %w", run.ID, sb.ErrNotFound)
	}
	return nil
}

func (s *SQLiteDatabase) ListRuns(limit int) ([]*sb.Run, error) {
	rows, err := s.db.Query(`
		SELECT id, run_id, operation, schedule, object_key, content_hash,
		       size, encrypted, status, error, started_at, finished_at
		FROM runs
		ORDER BY id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []*sb.Run
	for rows.Next() {
		r := &sb.Run{}
		if err := rows.Scan(&r.ID, &r.RunID, &r.Operation, &r.Schedule, &r.ObjectKey,
			&r.ContentHash, &r.Size, &r.Encrypted, &r.Status, &r.Error,
			&r.StartedAt, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	return runs, nil
}

// FindRun returns the run with the given run ID, or nil if there is none.
func (s *SQLiteDatabase) FindRun(runID string) (*sb.Run, error) {
	r := &sb.Run{}
	err := s.db.QueryRow(`
		SELECT id, run_id, operation, schedule, object_key, content_hash,
		       size, encrypted, status, error, started_at, finished_at
		FROM runs WHERE run_id = ?`, runID).Scan(
		&r.ID, &r.RunID, &r.Operation, &r.Schedule, &r.ObjectKey,
		&r.ContentHash, &r.Size, &r.Encrypted, &r.Status, &r.Error,
		&r.StartedAt, &r.FinishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding run: %w", err)
	}
	return r, nil
}

// Path returns the database file path (or ":memory:" for in-memory databases).
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// CheckMigrations reports whether the schema matches the binary.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// BackupTo creates a complete copy of the database at destPath using VACUUM INTO.
func (s *SQLiteDatabase) BackupTo(destPath string) error {
	_, err := s.db.Exec("VACUUM INTO ?", destPath)
	if err != nil {
		return fmt.Errorf("backing up database: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

var _ sb.History = (*SQLiteDatabase)(nil)
