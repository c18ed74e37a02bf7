package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"library_desk/internal/home"
	"library_desk/internal/models"
)

// Store keeps per-owner list preferences in SQLite.
type Store struct {
	db *sqlx.DB
}

type preferencesRow struct {
	Owner        string    `db:"owner"`
	PageSize     int       `db:"page_size"`
	StatusFilter string    `db:"status_filter"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("sqlite path is empty")
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func applyPragmas(db *sqlx.DB) error {
	pragma := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA busy_timeout = 5000;",
	}

	for _, stmt := range pragma {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("pragma: %w", err)
		}
	}
	return nil
}

func migrate(db *sqlx.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS preferences (
	owner TEXT PRIMARY KEY,
	page_size INTEGER NOT NULL,
	status_filter TEXT NOT NULL,
	updated_at DATETIME NOT NULL
);
`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// LoadPreferences returns the stored preferences of owner, or the zero
// value when nothing was saved yet.
func (s *Store) LoadPreferences(ctx context.Context, owner string) (home.Preferences, error) {
	var row preferencesRow
	err := s.db.GetContext(ctx, &row, `
SELECT owner, page_size, status_filter
FROM preferences
WHERE owner = ?
`, owner)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return home.Preferences{}, nil
		}
		return home.Preferences{}, fmt.Errorf("load preferences: %w", err)
	}

	return home.Preferences{
		PageSize: row.PageSize,
		Status:   models.StatusFilter(row.StatusFilter),
	}, nil
}

func (s *Store) SavePreferences(ctx context.Context, owner string, p home.Preferences) error {
	row := preferencesRow{
		Owner:        owner,
		PageSize:     p.PageSize,
		StatusFilter: string(p.Status),
		UpdatedAt:    time.Now().UTC(),
	}
	_, err := s.db.NamedExecContext(ctx, `
INSERT INTO preferences (owner, page_size, status_filter, updated_at)
VALUES (:owner, :page_size, :status_filter, :updated_at)
ON CONFLICT(owner) DO UPDATE SET
	page_size = excluded.page_size,
	status_filter = excluded.status_filter,
	updated_at = excluded.updated_at
`, row)
	if err != nil {
		return fmt.Errorf("save preferences: %w", err)
	}
	return nil
}
