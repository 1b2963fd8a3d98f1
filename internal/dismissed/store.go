// Package dismissed is the local suppression overlay: a durable,
// create-only set of report ids an admin has hidden from pending views.
// It never touches ledger state; read paths consult it as a filter.
package dismissed

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

var (
	// ErrInvalidID means the report id is not a positive integer.
	ErrInvalidID = errors.New("report id must be a positive integer")

	// ErrAlreadyDismissed means a mark already exists for the report id.
	ErrAlreadyDismissed = errors.New("report already dismissed")
)

// Mark records one dismissal.
type Mark struct {
	ReportID  uint64    `json:"reportId"`
	CreatedAt time.Time `json:"createdAt"`
}

type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the overlay database at path.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("dismissed store path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`CREATE TABLE IF NOT EXISTS dismissed (
			report_id INTEGER PRIMARY KEY,
			created_ts_unix_ns INTEGER NOT NULL
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite migrate: %w", err)
		}
	}
	return nil
}

// Dismiss creates a mark for the report id. A second dismissal of the
// same id fails with ErrAlreadyDismissed; the first mark is untouched.
func (s *Store) Dismiss(ctx context.Context, reportID int64) (Mark, error) {
	if reportID < 1 {
		return Mark{}, ErrInvalidID
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO dismissed (report_id, created_ts_unix_ns) VALUES (?, ?)`,
		reportID, now.UnixNano())
	if err != nil {
		return Mark{}, fmt.Errorf("insert dismissal: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Mark{}, fmt.Errorf("insert dismissal: %w", err)
	}
	if n == 0 {
		return Mark{}, ErrAlreadyDismissed
	}
	return Mark{ReportID: uint64(reportID), CreatedAt: now}, nil
}

// Contains reports whether the id has been dismissed.
func (s *Store) Contains(ctx context.Context, reportID uint64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM dismissed WHERE report_id = ?`, reportID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query dismissal: %w", err)
	}
	return true, nil
}

// List returns all marks ordered by report id.
func (s *Store) List(ctx context.Context) ([]Mark, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT report_id, created_ts_unix_ns FROM dismissed ORDER BY report_id`)
	if err != nil {
		return nil, fmt.Errorf("list dismissals: %w", err)
	}
	defer rows.Close()

	var marks []Mark
	for rows.Next() {
		var id uint64
		var ns int64
		if err := rows.Scan(&id, &ns); err != nil {
			return nil, fmt.Errorf("scan dismissal: %w", err)
		}
		marks = append(marks, Mark{ReportID: id, CreatedAt: time.Unix(0, ns).UTC()})
	}
	return marks, rows.Err()
}
