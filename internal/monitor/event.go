package monitor

import (
	"time"
)

// PageChangedEvent represents a detected content change on a monitored page.
// This event is published to NATS for downstream processing (e.g., alerting or
// annotation pipelines).
type PageChangedEvent struct {
	// Page information
	PageURL string            `json:"page_url"`
	Title   string            `json:"title,omitempty"`
	Tags    map[string]string `json:"tags,omitempty"`

	// Version pair
	FromVersionID string `json:"from_version_id,omitempty"` // empty for the first capture
	ToVersionID   string `json:"to_version_id"`
	FromHash      string `json:"from_hash,omitempty"`
	ToHash        string `json:"to_hash"`

	// Capture metadata
	CapturedAt  time.Time `json:"captured_at"`
	ContentType string    `json:"content_type,omitempty"`
	Length      int64     `json:"length"`

	// Timestamp is set by the publisher when the event is sent.
	Timestamp time.Time `json:"timestamp"`
}

// Initial reports whether this event records a page's first capture rather
// than a change between two stored versions.
func (e *PageChangedEvent) Initial() bool {
	return e.FromVersionID == ""
}
