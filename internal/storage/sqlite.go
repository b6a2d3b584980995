package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore creates a new SQLite-based version store.
// Use ":memory:" for in-memory database, or a file path for persistent storage.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initialize(); err != nil {
		_ = db.Close() // Best effort cleanup on initialization error
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS versions (
		id TEXT PRIMARY KEY,
		page_url TEXT NOT NULL,
		captured_at INTEGER NOT NULL,
		hash TEXT NOT NULL,
		title TEXT,
		content_type TEXT,
		length INTEGER NOT NULL,
		source TEXT,
		body BLOB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_page_url ON versions(page_url);
	CREATE INDEX IF NOT EXISTS idx_captured_at ON versions(captured_at);
	CREATE INDEX IF NOT EXISTS idx_hash ON versions(hash);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveVersion persists a captured version. A missing ID or capture time is
// filled in.
func (s *SQLiteStore) SaveVersion(ctx context.Context, v *Version) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	if v.CapturedAt.IsZero() {
		v.CapturedAt = time.Now().UTC()
	}
	if v.Length == 0 {
		v.Length = int64(len(v.Body))
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO versions (id, page_url, captured_at, hash, title, content_type, length, source, body) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		v.ID, v.PageURL, v.CapturedAt.Unix(), v.Hash, v.Title, v.ContentType, v.Length, v.Source, v.Body,
	)
	if err != nil {
		return fmt.Errorf("insert version: %w", err)
	}

	return nil
}

// LatestVersion returns the most recent version of a page.
func (s *SQLiteStore) LatestVersion(ctx context.Context, pageURL string) (*Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		"SELECT id, page_url, captured_at, hash, title, content_type, length, source, body FROM versions WHERE page_url = ? ORDER BY captured_at DESC, id DESC LIMIT 1",
		pageURL,
	)
	return scanVersion(row, true)
}

// GetVersion returns a version by ID.
func (s *SQLiteStore) GetVersion(ctx context.Context, id string) (*Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		"SELECT id, page_url, captured_at, hash, title, content_type, length, source, body FROM versions WHERE id = ?",
		id,
	)
	return scanVersion(row, true)
}

// ListVersions returns versions of a page, newest first, without bodies.
func (s *SQLiteStore) ListVersions(ctx context.Context, pageURL string, limit int) ([]*Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT id, page_url, captured_at, hash, title, content_type, length, source FROM versions WHERE page_url = ? ORDER BY captured_at DESC, id DESC"
	args := []any{pageURL}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query versions: %w", err)
	}
	defer rows.Close()

	return scanVersions(rows)
}

// VersionsInRange returns versions captured within [start, end], oldest first.
func (s *SQLiteStore) VersionsInRange(ctx context.Context, pageURL string, start, end time.Time) ([]*Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, page_url, captured_at, hash, title, content_type, length, source FROM versions WHERE page_url = ? AND captured_at >= ? AND captured_at <= ? ORDER BY captured_at, id",
		pageURL, start.Unix(), end.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("query versions: %w", err)
	}
	defer rows.Close()

	return scanVersions(rows)
}

// ListPages summarizes every page with at least one stored version.
func (s *SQLiteStore) ListPages(ctx context.Context) ([]PageSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT v.page_url, COUNT(*), MAX(v.captured_at),
			(SELECT hash FROM versions WHERE page_url = v.page_url ORDER BY captured_at DESC, id DESC LIMIT 1),
			(SELECT title FROM versions WHERE page_url = v.page_url ORDER BY captured_at DESC, id DESC LIMIT 1)
		FROM versions v GROUP BY v.page_url ORDER BY v.page_url`,
	)
	if err != nil {
		return nil, fmt.Errorf("query pages: %w", err)
	}
	defer rows.Close()

	var pages []PageSummary
	for rows.Next() {
		var p PageSummary
		var latestUnix int64
		var title sql.NullString
		if err := rows.Scan(&p.PageURL, &p.VersionCount, &latestUnix, &p.LatestHash, &title); err != nil {
			return nil, fmt.Errorf("scan page summary: %w", err)
		}
		p.LatestAt = time.Unix(latestUnix, 0).UTC()
		p.Title = title.String
		pages = append(pages, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return pages, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

func scanVersion(row *sql.Row, withBody bool) (*Version, error) {
	var v Version
	var capturedUnix int64
	var title, contentType, source sql.NullString

	dest := []any{&v.ID, &v.PageURL, &capturedUnix, &v.Hash, &title, &contentType, &v.Length, &source}
	if withBody {
		dest = append(dest, &v.Body)
	}
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrVersionNotFound
		}
		return nil, fmt.Errorf("scan version: %w", err)
	}

	v.CapturedAt = time.Unix(capturedUnix, 0).UTC()
	v.Title = title.String
	v.ContentType = contentType.String
	v.Source = source.String
	return &v, nil
}

func scanVersions(rows *sql.Rows) ([]*Version, error) {
	var versions []*Version
	for rows.Next() {
		var v Version
		var capturedUnix int64
		var title, contentType, source sql.NullString

		err := rows.Scan(&v.ID, &v.PageURL, &capturedUnix, &v.Hash, &title, &contentType, &v.Length, &source)
		if err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}

		v.CapturedAt = time.Unix(capturedUnix, 0).UTC()
		v.Title = title.String
		v.ContentType = contentType.String
		v.Source = source.String
		versions = append(versions, &v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return versions, nil
}
