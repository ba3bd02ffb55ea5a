// Package localdata keeps per-user application data that never leaves the
// machine: favourite listings and submitted contact inquiries.
package localdata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when the requested row does not exist.
var ErrNotFound = errors.New("not found")

// Inquiry statuses.
const (
	StatusOpen     = "open"
	StatusResolved = "resolved"
)

// Favourite is a bookmarked listing.
type Favourite struct {
	PropertyID int64
	Title      string
	AddedAt    time.Time
}

// Inquiry is a contact-form submission awaiting administrator review.
type Inquiry struct {
	ID        int64
	Name      string
	Email     string
	Message   string
	Status    string
	CreatedAt time.Time
}

// Store is a SQLite-backed store for local application data.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (or creates) the database at dbPath and runs migrations.
// Use ":memory:" for tests.
func Open(dbPath string, logger *slog.Logger) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
			return nil, fmt.Errorf("creating data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	if dbPath == ":memory:" {
		// Each connection gets its own in-memory database.
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}

	s := &Store{db: db, logger: logger.With("component", "localdata")}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// DefaultPath returns the conventional database location under the user
// config directory.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolving user config dir: %w", err)
	}
	return filepath.Join(dir, "proploc", "local.db"), nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS favourites (
	property_id INTEGER PRIMARY KEY,
	title       TEXT NOT NULL,
	added_at    TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS inquiries (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL,
	email      TEXT NOT NULL,
	message    TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'open',
	created_at TIMESTAMP NOT NULL
);
`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// AddFavourite bookmarks a listing. Adding an existing bookmark refreshes
// its title.
func (s *Store) AddFavourite(ctx context.Context, propertyID int64, title string) error {
	s.logger.Debug("sql", "op", "upsert", "table", "favourites", "id", propertyID)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO favourites (property_id, title, added_at) VALUES (?, ?, ?)
		ON CONFLICT(property_id) DO UPDATE SET title = excluded.title`,
		propertyID, title, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert favourite: %w", err)
	}
	return nil
}

// RemoveFavourite deletes a bookmark.
func (s *Store) RemoveFavourite(ctx context.Context, propertyID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM favourites WHERE property_id = ?`, propertyID)
	if err != nil {
		return fmt.Errorf("delete favourite: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListFavourites returns all bookmarks, newest first.
func (s *Store) ListFavourites(ctx context.Context) ([]Favourite, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT property_id, title, added_at FROM favourites ORDER BY added_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list favourites: %w", err)
	}
	defer rows.Close()

	var favs []Favourite
	for rows.Next() {
		var f Favourite
		if err := rows.Scan(&f.PropertyID, &f.Title, &f.AddedAt); err != nil {
			return nil, fmt.Errorf("scan favourite: %w", err)
		}
		favs = append(favs, f)
	}
	return favs, rows.Err()
}

// SubmitInquiry records a contact-form submission.
func (s *Store) SubmitInquiry(ctx context.Context, name, email, message string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO inquiries (name, email, message, status, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		name, email, message, StatusOpen, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("insert inquiry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("inquiry id: %w", err)
	}
	return id, nil
}

// ListInquiries returns all inquiries, newest first.
func (s *Store) ListInquiries(ctx context.Context) ([]Inquiry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, email, message, status, created_at
		FROM inquiries ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list inquiries: %w", err)
	}
	defer rows.Close()

	var inquiries []Inquiry
	for rows.Next() {
		var q Inquiry
		if err := rows.Scan(&q.ID, &q.Name, &q.Email, &q.Message, &q.Status, &q.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan inquiry: %w", err)
		}
		inquiries = append(inquiries, q)
	}
	return inquiries, rows.Err()
}

// ResolveInquiry marks an inquiry as handled.
func (s *Store) ResolveInquiry(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE inquiries SET status = ? WHERE id = ?`, StatusResolved, id)
	if err != nil {
		return fmt.Errorf("resolve inquiry: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteInquiry removes an inquiry.
func (s *Store) DeleteInquiry(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM inquiries WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete inquiry: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
