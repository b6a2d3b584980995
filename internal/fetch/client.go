// Package fetch retrieves the documents being diffed. It enforces the
// server's upstream limits (timeout, body size), validates expected content
// hashes, and decodes response bodies to text using declared or sniffed
// character encodings.
package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	ferrors "github.com/pagediff/pagediff/internal/foundation/errors"
)

// Resource is a fetched document: the raw body plus enough response metadata
// for decoding and diffing.
type Resource struct {
	URL         string
	StatusCode  int
	Headers     http.Header
	Body        []byte
	ContentType string
}

// IsArchived reports whether the response came from a web archive replay.
// Archives serve historical snapshots of error pages with their original
// status codes, so non-2xx archived responses are still diffable.
func (r *Resource) IsArchived() bool {
	return r.Headers.Get("Memento-Datetime") != ""
}

// Hash returns the sha256 hex digest of the raw body.
func (r *Resource) Hash() string {
	sum := sha256.Sum256(r.Body)
	return hex.EncodeToString(sum[:])
}

// Options configures a Client.
type Options struct {
	// MaxBodyBytes caps how much of an upstream body is read. Zero means no cap.
	MaxBodyBytes int64
	// Timeout bounds a single fetch. Zero means no client-side timeout.
	Timeout time.Duration
	// AllowFileURLs permits file:// sources (development only).
	AllowFileURLs bool
	// Transport overrides the HTTP transport (tests).
	Transport http.RoundTripper
}

// Client fetches upstream documents.
type Client struct {
	httpClient    *http.Client
	maxBodyBytes  int64
	allowFileURLs bool
}

// NewClient creates a fetch client with the given limits.
func NewClient(opts Options) *Client {
	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &Client{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   opts.Timeout,
		},
		maxBodyBytes:  opts.MaxBodyBytes,
		allowFileURLs: opts.AllowFileURLs,
	}
}

// ValidateURL checks that raw is an absolute http(s) or file URL. The caller
// maps the returned validation error to a 400.
func ValidateURL(param, raw string) error {
	if raw == "" {
		return ferrors.ValidationError(fmt.Sprintf("query parameter '%s' is required", param)).
			Build()
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https" && u.Scheme != "file") {
		return ferrors.ValidationError(fmt.Sprintf("parameter '%s' must be an http(s) or file URL", param)).
			WithContext(param, raw).
			Build()
	}
	if (u.Scheme == "http" || u.Scheme == "https") && u.Host == "" {
		return ferrors.ValidationError(fmt.Sprintf("parameter '%s' is missing a host", param)).
			WithContext(param, raw).
			Build()
	}
	return nil
}

// Fetch retrieves rawURL. passHeaders are forwarded verbatim to the upstream
// request. When expectedHash is non-empty the body's sha256 must match it.
func (c *Client) Fetch(ctx context.Context, rawURL string, passHeaders http.Header, expectedHash string) (*Resource, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, ferrors.ValidationError("invalid URL").WithCause(err).WithContext("url", rawURL).Build()
	}

	var res *Resource
	if u.Scheme == "file" {
		res, err = c.fetchFile(u)
	} else {
		res, err = c.fetchHTTP(ctx, rawURL, passHeaders)
	}
	if err != nil {
		return nil, err
	}

	if expectedHash != "" && res.Hash() != expectedHash {
		return nil, ferrors.HashError("fetched content does not match expected hash").
			WithContext("url", rawURL).
			WithContext("expected_hash", expectedHash).
			WithContext("actual_hash", res.Hash()).
			Build()
	}

	return res, nil
}

func (c *Client) fetchFile(u *url.URL) (*Resource, error) {
	if !c.allowFileURLs {
		return nil, ferrors.ForbiddenError("file:// URLs are not allowed in production").
			WithContext("url", u.String()).
			Build()
	}

	body, err := os.ReadFile(u.Path)
	if err != nil {
		return nil, ferrors.UpstreamError("could not read local file").
			WithCause(err).
			WithContext("url", u.String()).
			Build()
	}

	contentType := contentTypeForPath(u.Path)
	headers := http.Header{}
	headers.Set("Content-Type", contentType)

	return &Resource{
		URL:         u.String(),
		StatusCode:  http.StatusOK,
		Headers:     headers,
		Body:        body,
		ContentType: contentType,
	}, nil
}

func (c *Client) fetchHTTP(ctx context.Context, rawURL string, passHeaders http.Header) (*Resource, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, ferrors.ValidationError("invalid URL").WithCause(err).WithContext("url", rawURL).Build()
	}
	for name, values := range passHeaders {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(ctx, err) {
			return nil, ferrors.TimeoutError("fetching upstream content timed out").
				WithCause(err).
				WithContext("url", rawURL).
				Build()
		}
		return nil, ferrors.UpstreamError("could not fetch upstream content").
			WithCause(err).
			WithContext("url", rawURL).
			Build()
	}
	defer resp.Body.Close()

	body, err := c.readBody(resp)
	if err != nil {
		if isTimeout(ctx, err) {
			return nil, ferrors.TimeoutError("reading upstream content timed out").
				WithCause(err).
				WithContext("url", rawURL).
				Build()
		}
		return nil, err
	}

	res := &Resource{
		URL:         rawURL,
		StatusCode:  resp.StatusCode,
		Headers:     resp.Header,
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
	}

	if (resp.StatusCode < 200 || resp.StatusCode > 299) && !res.IsArchived() {
		return nil, ferrors.UpstreamError(fmt.Sprintf("received a %d status while fetching upstream content", resp.StatusCode)).
			WithContext("url", rawURL).
			WithContext("upstream_status", resp.StatusCode).
			Build()
	}

	return res, nil
}

// readBody reads at most maxBodyBytes. Responses that would exceed the limit
// are upstream errors: diffing a truncated document would silently lie.
func (c *Client) readBody(resp *http.Response) ([]byte, error) {
	reader := resp.Body
	if c.maxBodyBytes > 0 {
		limited := io.LimitReader(resp.Body, c.maxBodyBytes+1)
		body, err := io.ReadAll(limited)
		if err != nil {
			return nil, ferrors.UpstreamError("failed reading upstream response").WithCause(err).Build()
		}
		if int64(len(body)) > c.maxBodyBytes {
			return nil, ferrors.UpstreamError("upstream response exceeds the maximum allowed size").
				WithContext("max_body_bytes", c.maxBodyBytes).
				Build()
		}
		return body, nil
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, ferrors.UpstreamError("failed reading upstream response").WithCause(err).Build()
	}
	return body, nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	// http.Client wraps its own deadline errors with this string.
	return err != nil && strings.Contains(err.Error(), "Client.Timeout")
}

// contentTypeForPath guesses a Content-Type for local files. Unknown or
// missing extensions are assumed to be HTML, the dominant diff input.
func contentTypeForPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return "application/pdf"
	case ".txt":
		return "text/plain"
	case ".json":
		return "application/json"
	case ".xml":
		return "application/xml"
	default:
		return "text/html"
	}
}
