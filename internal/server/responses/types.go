// Package responses defines API response types used by the HTTP handlers.
package responses

import (
	"time"

	"github.com/pagediff/pagediff/internal/monitor"
	"github.com/pagediff/pagediff/internal/storage"
)

// IndexResponse describes the service at GET /.
type IndexResponse struct {
	Version   string   `json:"version"`
	DiffTypes []string `json:"diff_types"`
}

// HealthResponse represents the health check API response.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
	Uptime    float64   `json:"uptime"`
}

// DiffResponse is the envelope around a computed diff.
type DiffResponse struct {
	ChangeCount int    `json:"change_count"`
	Diff        any    `json:"diff"`
	Version     string `json:"version"`
	Type        string `json:"type"`
	A           string `json:"a"`
	B           string `json:"b"`
}

// PagesResponse lists monitored pages and their stored version summaries.
type PagesResponse struct {
	Pages     []storage.PageSummary `json:"pages"`
	Timestamp time.Time             `json:"timestamp"`
}

// VersionsResponse lists the stored versions of one page, newest first.
type VersionsResponse struct {
	PageURL  string             `json:"page_url"`
	Versions []*storage.Version `json:"versions"`
}

// CheckResponse reports the outcome of a manually triggered capture round.
type CheckResponse struct {
	Status    string                      `json:"status"`
	Changes   []*monitor.PageChangedEvent `json:"changes"`
	Timestamp time.Time                   `json:"timestamp"`
}
