// Package market persists the marketplace listing catalog. Listings are
// reference data: creation is gated elsewhere by classifier screening,
// and nothing here touches the ledgers.
package market

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/sitewarden/sitewarden/pkg/types"
)

var (
	// ErrDuplicate means a listing with the same name and category exists.
	ErrDuplicate = errors.New("listing already exists in this category")

	// ErrNotFound means no listing has the given id.
	ErrNotFound = errors.New("listing not found")

	// ErrNotOwner means the caller does not own the listing.
	ErrNotOwner = errors.New("listing belongs to another wallet")
)

type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the catalog database at path.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("market store path is empty")
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
		`CREATE TABLE IF NOT EXISTS listings (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			url TEXT NOT NULL,
			category TEXT NOT NULL,
			tags_json TEXT NOT NULL,
			image_url TEXT,
			description TEXT,
			created_by TEXT NOT NULL,
			created_ts_unix_ns INTEGER NOT NULL,
			UNIQUE(name, category)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_listings_creator ON listings(created_by);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite migrate: %w", err)
		}
	}
	return nil
}

// Create inserts a new listing and returns it with id and timestamp set.
func (s *Store) Create(ctx context.Context, l types.Listing) (types.Listing, error) {
	if l.Name == "" || l.URL == "" || l.Category == "" {
		return types.Listing{}, fmt.Errorf("name, url and category are required")
	}
	if l.CreatedBy == "" {
		return types.Listing{}, fmt.Errorf("creator wallet is required")
	}

	l.ID = uuid.NewString()
	l.CreatedAt = time.Now().UTC()
	tags, err := json.Marshal(l.Tags)
	if err != nil {
		return types.Listing{}, fmt.Errorf("marshal tags: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO listings
			(id, name, url, category, tags_json, image_url, description, created_by, created_ts_unix_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.Name, l.URL, l.Category, string(tags), l.ImageURL, l.Description, l.CreatedBy, l.CreatedAt.UnixNano())
	if err != nil {
		return types.Listing{}, fmt.Errorf("insert listing: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return types.Listing{}, fmt.Errorf("insert listing: %w", err)
	}
	if n == 0 {
		return types.Listing{}, ErrDuplicate
	}
	return l, nil
}

// List returns all listings, newest first.
func (s *Store) List(ctx context.Context) ([]types.Listing, error) {
	return s.query(ctx,
		`SELECT id, name, url, category, tags_json, image_url, description, created_by, created_ts_unix_ns
		FROM listings ORDER BY created_ts_unix_ns DESC`)
}

// ListByCreator returns the creator's listings, newest first.
func (s *Store) ListByCreator(ctx context.Context, wallet string) ([]types.Listing, error) {
	return s.query(ctx,
		`SELECT id, name, url, category, tags_json, image_url, description, created_by, created_ts_unix_ns
		FROM listings WHERE created_by = ? ORDER BY created_ts_unix_ns DESC`, wallet)
}

// Delete removes a listing owned by wallet.
func (s *Store) Delete(ctx context.Context, id, wallet string) error {
	var owner string
	err := s.db.QueryRowContext(ctx, `SELECT created_by FROM listings WHERE id = ?`, id).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("query listing: %w", err)
	}
	if owner != wallet {
		return ErrNotOwner
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM listings WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete listing: %w", err)
	}
	return nil
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]types.Listing, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query listings: %w", err)
	}
	defer rows.Close()

	var out []types.Listing
	for rows.Next() {
		var l types.Listing
		var tags string
		var ns int64
		var imageURL, description sql.NullString
		if err := rows.Scan(&l.ID, &l.Name, &l.URL, &l.Category, &tags, &imageURL, &description, &l.CreatedBy, &ns); err != nil {
			return nil, fmt.Errorf("scan listing: %w", err)
		}
		if err := json.Unmarshal([]byte(tags), &l.Tags); err != nil {
			return nil, fmt.Errorf("decode tags: %w", err)
		}
		l.ImageURL = imageURL.String
		l.Description = description.String
		l.CreatedAt = time.Unix(0, ns).UTC()
		out = append(out, l)
	}
	return out, rows.Err()
}
