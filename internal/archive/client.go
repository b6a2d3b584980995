// Package archive wraps the REST API of a page-archive service and imports
// archived pages as stored versions. The API reports failures two ways: an
// HTTP error status, or a 200 response whose envelope carries status != "ok".
// Both are surfaced as errors.
package archive

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pagediff/pagediff/internal/config"
	"github.com/pagediff/pagediff/internal/fetch"
	ferrors "github.com/pagediff/pagediff/internal/foundation/errors"
	"github.com/pagediff/pagediff/internal/logfields"
	"github.com/pagediff/pagediff/internal/storage"
)

// Client is a stateless client for the archive REST API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates an archive client from configuration.
func NewClient(cfg *config.ArchiveConfig) *Client {
	timeout := 30 * time.Second
	if cfg != nil && cfg.Timeout > 0 {
		timeout = cfg.Timeout
	}
	base := ""
	if cfg != nil {
		base = strings.TrimSuffix(cfg.BaseURL, "/")
	}
	return &Client{
		baseURL: base,
		http:    &http.Client{Timeout: timeout},
	}
}

// PageEntry is one page listed in a cabinet.
type PageEntry struct {
	URL string `json:"url"`
}

// SearchHit identifies one archived page found by a search.
type SearchHit struct {
	URL string `json:"url"`
	Key string `json:"key"`
}

// FileMetadata describes one archived file.
type FileMetadata struct {
	Status string `json:"status"`
	File   struct {
		// ContentType is the archive's own content-type string, distinct
		// from any Content-Type header list in the raw metadata.
		ContentType string `json:"ContentType"`
	} `json:"file"`
}

type envelope struct {
	Status   string                 `json:"status"`
	Cabinet  string                 `json:"cabinet,omitempty"`
	Cabinets map[string][]PageEntry `json:"cabinets,omitempty"`
	Archives []string               `json:"archives,omitempty"`
	Result   json.RawMessage        `json:"result,omitempty"`
}

type commandResult struct {
	Status string      `json:"status"`
	Founds []SearchHit `json:"founds,omitempty"`
}

// ListCabinets lists every cabinet and its pages.
func (c *Client) ListCabinets(ctx context.Context) (map[string][]PageEntry, error) {
	env, err := c.call(ctx, http.MethodGet, "/master/api/services/storage/library/all/cabinets", nil)
	if err != nil {
		return nil, err
	}
	return env.Cabinets, nil
}

// ListArchives lists the archive IDs of a cabinet.
func (c *Client) ListArchives(ctx context.Context, cabinetID string) ([]string, error) {
	env, err := c.call(ctx, http.MethodGet, "/master/api/services/storage/archive/"+url.PathEscape(cabinetID), nil)
	if err != nil {
		return nil, err
	}
	if env.Cabinet != cabinetID {
		return nil, ferrors.ArchiveError("archive listing returned wrong cabinet").
			WithContext("want", cabinetID).
			WithContext("got", env.Cabinet).
			Build()
	}
	return env.Archives, nil
}

// LoadArchive makes an archive searchable on the server.
func (c *Client) LoadArchive(ctx context.Context, cabinetID, archiveID string) error {
	_, err := c.command(ctx, http.MethodPut, cabinetID, archiveID, "load", nil)
	return err
}

// UnloadArchive releases a loaded archive.
func (c *Client) UnloadArchive(ctx context.Context, cabinetID, archiveID string) error {
	_, err := c.command(ctx, http.MethodDelete, cabinetID, archiveID, "unload", nil)
	return err
}

// SearchArchive searches a loaded archive. An empty query lists every page.
func (c *Client) SearchArchive(ctx context.Context, cabinetID, archiveID, query string) ([]SearchHit, error) {
	result, err := c.command(ctx, http.MethodGet, cabinetID, archiveID, "search", url.Values{"query": {query}})
	if err != nil {
		return nil, err
	}
	return result.Founds, nil
}

// FileMetadata fetches the metadata of one archived page.
func (c *Client) FileMetadata(ctx context.Context, cabinetID, archiveID, pageKey string) (*FileMetadata, error) {
	env, err := c.call(ctx, http.MethodGet, c.filePath(cabinetID, archiveID, pageKey, "meta"), nil)
	if err != nil {
		return nil, err
	}
	var meta FileMetadata
	if err := json.Unmarshal(env.Result, &meta); err != nil {
		return nil, ferrors.ArchiveError("failed to decode file metadata").WithCause(err).Build()
	}
	if meta.Status != "ok" {
		return nil, ferrors.ArchiveError("archive reported bad file status").
			WithContext("status", meta.Status).
			Build()
	}
	return &meta, nil
}

// FileContent fetches the raw, undecoded bytes of one archived page.
func (c *Client) FileContent(ctx context.Context, cabinetID, archiveID, pageKey string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+c.filePath(cabinetID, archiveID, pageKey, "file"), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, ferrors.ArchiveError("archive request failed").WithCause(err).Build()
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, ferrors.ArchiveError(fmt.Sprintf("archive returned status %d", resp.StatusCode)).Build()
	}
	return io.ReadAll(resp.Body)
}

// PageVersion converts one archived page into a version record. The capture
// time comes from the archive ID, which is a unix timestamp.
func (c *Client) PageVersion(ctx context.Context, cabinetID, archiveID string, hit SearchHit) (*storage.Version, error) {
	capturedAt, err := captureTime(archiveID)
	if err != nil {
		return nil, err
	}

	meta, err := c.FileMetadata(ctx, cabinetID, archiveID, hit.Key)
	if err != nil {
		return nil, err
	}
	content, err := c.FileContent(ctx, cabinetID, archiveID, hit.Key)
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256(content)

	title := ""
	contentType := meta.File.ContentType
	if strings.HasPrefix(contentType, "text/html") {
		title = fetch.ExtractTitle(string(content))
	}

	return &storage.Version{
		PageURL:     hit.URL,
		CapturedAt:  capturedAt,
		Hash:        hex.EncodeToString(sum[:]),
		Title:       title,
		ContentType: contentType,
		Length:      int64(len(content)),
		Source:      "archive",
		Body:        content,
	}, nil
}

// ImportArchive loads an archive, converts every page in it into a version
// record appended to store, and unloads the archive. It returns the number of
// imported versions.
func (c *Client) ImportArchive(ctx context.Context, cabinetID, archiveID string, store storage.Store) (int, error) {
	if err := c.LoadArchive(ctx, cabinetID, archiveID); err != nil {
		return 0, err
	}
	defer func() {
		// The server reclaims loaded archives on its own schedule, so a
		// failed unload is not fatal.
		if err := c.UnloadArchive(ctx, cabinetID, archiveID); err != nil {
			slog.Warn("Failed to unload archive",
				"cabinet", cabinetID,
				"archive", archiveID,
				logfields.Error(err))
		}
	}()

	hits, err := c.SearchArchive(ctx, cabinetID, archiveID, "")
	if err != nil {
		return 0, err
	}

	imported := 0
	for _, hit := range hits {
		version, err := c.PageVersion(ctx, cabinetID, archiveID, hit)
		if err != nil {
			return imported, err
		}
		if err := store.SaveVersion(ctx, version); err != nil {
			return imported, err
		}
		imported++
	}
	return imported, nil
}

func (c *Client) command(ctx context.Context, method, cabinetID, archiveID, cmd string, params url.Values) (*commandResult, error) {
	path := fmt.Sprintf("/master/api/services/storage/archive/%s/%s/%s",
		url.PathEscape(cabinetID), url.PathEscape(archiveID), cmd)
	if len(params) > 0 {
		path += "?" + params.Encode()
	}
	env, err := c.call(ctx, method, path, nil)
	if err != nil {
		return nil, err
	}

	var result commandResult
	if len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, &result); err != nil {
			return nil, ferrors.ArchiveError("failed to decode command result").WithCause(err).Build()
		}
	}
	// search results carry no status of their own
	if cmd != "search" && result.Status != "ok" {
		return nil, ferrors.ArchiveError("archive reported bad command status").
			WithContext("command", cmd).
			WithContext("status", result.Status).
			Build()
	}
	return &result, nil
}

func (c *Client) call(ctx context.Context, method, path string, body io.Reader) (*envelope, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, ferrors.ArchiveError("archive request failed").WithCause(err).Build()
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, ferrors.ArchiveError(fmt.Sprintf("archive returned status %d", resp.StatusCode)).Build()
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, ferrors.ArchiveError("failed to decode archive response").WithCause(err).Build()
	}
	if env.Status != "ok" {
		return nil, ferrors.ArchiveError("archive reported bad status").
			WithContext("status", env.Status).
			Build()
	}
	return &env, nil
}

func (c *Client) filePath(cabinetID, archiveID, pageKey, cmd string) string {
	return fmt.Sprintf("/master/api/services/storage/archive/%s/%s/%s/%s",
		url.PathEscape(cabinetID), url.PathEscape(archiveID), url.PathEscape(pageKey), cmd)
}

func captureTime(archiveID string) (time.Time, error) {
	unix, err := strconv.ParseInt(archiveID, 10, 64)
	if err != nil {
		return time.Time{}, ferrors.ArchiveError("archive id is not a unix timestamp").
			WithContext("archive_id", archiveID).
			Build()
	}
	return time.Unix(unix, 0).UTC(), nil
}
