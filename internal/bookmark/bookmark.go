// Package bookmark persists the reading position of each document in a
// SQLite database.
package bookmark

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a document has no bookmark.
var ErrNotFound = errors.New("bookmark not found")

// Bookmark is a saved reading position.
type Bookmark struct {
	Document  string
	Section   string
	Unit      int
	Offset    int
	CharsRead int
	Rate      float64
	Voice     string
	UpdatedAt time.Time
}

// Store is a SQLite-backed bookmark table.
type Store struct {
	db     *sql.DB
	clock  func() time.Time
	logger *log.Logger
}

// Open opens or creates the database at path.
func Open(ctx context.Context, path string, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.Default()
	}

	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, clock: time.Now, logger: logger}
	if err := s.initSchema(ctx); err != nil {
		db.Close() //nolint:errcheck
		return nil, err
	}

	logger.Debug("bookmark store open", "path", path)
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS bookmarks (
    document TEXT PRIMARY KEY,
    section TEXT NOT NULL,
    unit INTEGER NOT NULL,
    unit_offset INTEGER NOT NULL,
    chars_read INTEGER NOT NULL,
    rate REAL NOT NULL,
    voice TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save writes b, replacing any earlier bookmark of the same document.
func (s *Store) Save(ctx context.Context, b Bookmark) error {
	if b.Document == "" {
		return errors.New("bookmark has no document")
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO bookmarks(document, section, unit, unit_offset, chars_read, rate, voice, updated_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(document) DO UPDATE SET
		   section=excluded.section, unit=excluded.unit, unit_offset=excluded.unit_offset,
		   chars_read=excluded.chars_read, rate=excluded.rate, voice=excluded.voice,
		   updated_at=excluded.updated_at`,
		b.Document, b.Section, b.Unit, b.Offset, b.CharsRead, b.Rate, b.Voice, s.clock().UTC())
	if err != nil {
		return fmt.Errorf("save bookmark: %w", err)
	}
	return nil
}

// Load returns the bookmark of document, or ErrNotFound.
func (s *Store) Load(ctx context.Context, document string) (Bookmark, error) {
	b := Bookmark{Document: document}
	err := s.db.QueryRowContext(ctx,
		`SELECT section, unit, unit_offset, chars_read, rate, voice, updated_at
		 FROM bookmarks WHERE document = ?`, document,
	).Scan(&b.Section, &b.Unit, &b.Offset, &b.CharsRead, &b.Rate, &b.Voice, &b.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return Bookmark{}, ErrNotFound
	}
	if err != nil {
		return Bookmark{}, fmt.Errorf("load bookmark: %w", err)
	}
	return b, nil
}

// Delete removes the bookmark of document.
func (s *Store) Delete(ctx context.Context, document string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM bookmarks WHERE document = ?`, document); err != nil {
		return fmt.Errorf("delete bookmark: %w", err)
	}
	return nil
}

// List returns every bookmark, most recently updated first.
func (s *Store) List(ctx context.Context) ([]Bookmark, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT document, section, unit, unit_offset, chars_read, rate, voice, updated_at
		 FROM bookmarks ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list bookmarks: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []Bookmark
	for rows.Next() {
		var b Bookmark
		if err := rows.Scan(&b.Document, &b.Section, &b.Unit, &b.Offset, &b.CharsRead, &b.Rate, &b.Voice, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan bookmark: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
