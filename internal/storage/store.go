// Package storage persists captured page versions for monitored pages.
package storage

import (
	"context"
	"time"

	"github.com/pagediff/pagediff/internal/foundation/errors"
)

var (
	// ErrDatabaseOpenFailed indicates the SQLite database could not be opened.
	ErrDatabaseOpenFailed = errors.StorageError("could not open version database").Build()

	// ErrInitializeSchemaFailed indicates the database schema could not be initialized.
	ErrInitializeSchemaFailed = errors.StorageError("failed to initialize version schema").Build()

	// ErrVersionNotFound indicates no version matched the query.
	ErrVersionNotFound = errors.NotFoundError("version not found").Build()
)

// Version is one captured snapshot of a monitored page.
type Version struct {
	ID          string    `json:"id"`
	PageURL     string    `json:"page_url"`
	CapturedAt  time.Time `json:"captured_at"`
	Hash        string    `json:"hash"`
	Title       string    `json:"title,omitempty"`
	ContentType string    `json:"content_type,omitempty"`
	Length      int64     `json:"length"`
	Source      string    `json:"source,omitempty"`
	Body        []byte    `json:"-"`
}

// PageSummary aggregates stored versions for one monitored page.
type PageSummary struct {
	PageURL      string    `json:"page_url"`
	VersionCount int64     `json:"version_count"`
	LatestAt     time.Time `json:"latest_at"`
	LatestHash   string    `json:"latest_hash"`
	Title        string    `json:"title,omitempty"`
}

// Store defines the interface for persisting and retrieving page versions.
type Store interface {
	// SaveVersion persists a captured version.
	SaveVersion(ctx context.Context, v *Version) error

	// LatestVersion returns the most recent version of a page, or
	// ErrVersionNotFound when the page has never been captured.
	LatestVersion(ctx context.Context, pageURL string) (*Version, error)

	// GetVersion returns a version by ID, or ErrVersionNotFound.
	GetVersion(ctx context.Context, id string) (*Version, error)

	// ListVersions returns versions of a page, newest first, at most limit
	// entries (0 means no limit). Bodies are not loaded.
	ListVersions(ctx context.Context, pageURL string, limit int) ([]*Version, error)

	// VersionsInRange returns versions of a page captured within [start, end],
	// oldest first. Bodies are not loaded.
	VersionsInRange(ctx context.Context, pageURL string, start, end time.Time) ([]*Version, error)

	// ListPages summarizes every page with at least one stored version.
	ListPages(ctx context.Context) ([]PageSummary, error)

	// Close closes the store and releases resources.
	Close() error
}
