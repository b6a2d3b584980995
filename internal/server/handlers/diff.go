package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/pagediff/pagediff/internal/config"
	"github.com/pagediff/pagediff/internal/diff"
	"github.com/pagediff/pagediff/internal/diff/pool"
	"github.com/pagediff/pagediff/internal/fetch"
	derrors "github.com/pagediff/pagediff/internal/foundation/errors"
	"github.com/pagediff/pagediff/internal/logfields"
	"github.com/pagediff/pagediff/internal/metrics"
	"github.com/pagediff/pagediff/internal/server/responses"
	"github.com/pagediff/pagediff/internal/version"
)

// Fetcher retrieves one side of a comparison. Satisfied by *fetch.Client.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, passHeaders http.Header, expectedHash string) (*fetch.Resource, error)
}

// DiffHandlers serves the diff API: the index listing available diff types
// and the per-type comparison endpoint.
type DiffHandlers struct {
	cfg          *config.ServerConfig
	fetcher      Fetcher
	runner       *pool.Runner
	cache        *lru.Cache[string, *responses.DiffResponse]
	recorder     metrics.Recorder
	errorAdapter *derrors.HTTPErrorAdapter
	diffTimeout  time.Duration
}

// NewDiffHandlers creates the diff handlers. recorder may be nil.
func NewDiffHandlers(cfg *config.ServerConfig, fetcher Fetcher, runner *pool.Runner, recorder metrics.Recorder) (*DiffHandlers, error) {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	size := cfg.DiffCacheSize
	if size <= 0 {
		size = 512
	}
	cache, err := lru.New[string, *responses.DiffResponse](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create diff cache: %w", err)
	}
	timeout := cfg.DiffTimeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &DiffHandlers{
		cfg:          cfg,
		fetcher:      fetcher,
		runner:       runner,
		cache:        cache,
		recorder:     recorder,
		errorAdapter: derrors.NewHTTPErrorAdapter(slog.Default()),
		diffTimeout:  timeout,
	}, nil
}

// HandleIndex describes the service and its available diff types.
func (h *DiffHandlers) HandleIndex(w http.ResponseWriter, r *http.Request) {
	resp := &responses.IndexResponse{
		Version:   version.Version,
		DiffTypes: diff.Names(),
	}
	if err := writeJSONPretty(w, r, http.StatusOK, resp); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r,
			derrors.WrapError(err, derrors.CategoryInternal, "failed to write index response").Build())
	}
}

// HandleDiff fetches both URLs, runs the requested differ, and writes the
// diff envelope. Successful responses carry an Etag derived from the content
// hashes; a matching If-None-Match short-circuits to 304.
func (h *DiffHandlers) HandleDiff(w http.ResponseWriter, r *http.Request) {
	diffType := r.PathValue("diffType")
	differ, ok := diff.Lookup(diffType)
	if !ok {
		h.writeError(w, r, diffType, derrors.NotFoundError(fmt.Sprintf("unknown diff type %q", diffType)).Build())
		return
	}

	query := r.URL.Query()
	urlA, urlB := query.Get("a"), query.Get("b")
	if err := fetch.ValidateURL("a", urlA); err != nil {
		h.writeError(w, r, diffType, err)
		return
	}
	if err := fetch.ValidateURL("b", urlB); err != nil {
		h.writeError(w, r, diffType, err)
		return
	}

	format := query.Get("format")
	if format == "" {
		format = diff.FormatJSON
	}

	passHeaders := h.passHeaders(r, query.Get("pass_headers"))

	resA, resB, err := h.fetchBoth(r.Context(), urlA, urlB, passHeaders, query.Get("a_hash"), query.Get("b_hash"))
	if err != nil {
		h.writeError(w, r, diffType, err)
		return
	}

	etag := diffEtag(diffType, format, resA.Hash(), resB.Hash())
	if cached, ok := h.cache.Get(etag); ok {
		h.recorder.IncCacheLookup(true)
		h.writeDiff(w, r, etag, cached)
		return
	}
	h.recorder.IncCacheLookup(false)

	req := &diff.Request{A: resA, B: resB, Format: format}
	if differ.NeedsText() {
		if req.AText, err = fetch.DecodeBody(resA); err != nil {
			h.writeError(w, r, diffType, err)
			return
		}
		if req.BText, err = fetch.DecodeBody(resB); err != nil {
			h.writeError(w, r, diffType, err)
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.diffTimeout)
	defer cancel()
	started := time.Now()
	result, err := h.runner.Do(ctx, func() (*diff.Result, error) {
		return differ.Diff(req)
	})
	if err != nil {
		h.writeError(w, r, diffType, err)
		return
	}
	elapsed := time.Since(started)

	h.recorder.ObserveDiffDuration(diffType, elapsed)
	h.recorder.IncDiffResult(diffType, metrics.ResultSuccess)
	slog.Debug("Diff computed",
		logfields.DiffType(diffType),
		logfields.URLA(urlA),
		logfields.URLB(urlB),
		logfields.DurationMS(float64(elapsed.Milliseconds())))

	resp := &responses.DiffResponse{
		ChangeCount: result.ChangeCount,
		Diff:        result.Diff,
		Version:     version.Version,
		Type:        diffType,
		A:           urlA,
		B:           urlB,
	}
	h.cache.Add(etag, resp)
	h.writeDiff(w, r, etag, resp)
}

// fetchBoth retrieves both sides concurrently. On a double failure the error
// for side a wins, matching the parameter order.
func (h *DiffHandlers) fetchBoth(ctx context.Context, urlA, urlB string, passHeaders http.Header, hashA, hashB string) (*fetch.Resource, *fetch.Resource, error) {
	type fetched struct {
		res *fetch.Resource
		err error
	}
	chA := make(chan fetched, 1)
	chB := make(chan fetched, 1)
	fetchOne := func(ch chan<- fetched, rawURL, hash string) {
		start := time.Now()
		res, err := h.fetcher.Fetch(ctx, rawURL, passHeaders, hash)
		h.recorder.ObserveFetchDuration(time.Since(start), err == nil)
		h.recorder.IncFetchResult(err == nil)
		ch <- fetched{res, err}
	}
	go fetchOne(chA, urlA, hashA)
	go fetchOne(chB, urlB, hashB)

	a, b := <-chA, <-chB
	if a.err != nil {
		return nil, nil, a.err
	}
	if b.err != nil {
		return nil, nil, b.err
	}
	return a.res, b.res, nil
}

// passHeaders builds the header subset forwarded upstream. Accept is never
// forwarded: the diff server's own content negotiation must not leak through.
func (h *DiffHandlers) passHeaders(r *http.Request, names string) http.Header {
	if names == "" {
		return nil
	}
	headers := http.Header{}
	for _, name := range strings.Split(names, ",") {
		name = strings.TrimSpace(name)
		if name == "" || strings.EqualFold(name, "Accept") {
			continue
		}
		if values, ok := r.Header[http.CanonicalHeaderKey(name)]; ok {
			for _, v := range values {
				headers.Add(name, v)
			}
		}
	}
	if len(headers) == 0 {
		return nil
	}
	return headers
}

func (h *DiffHandlers) writeDiff(w http.ResponseWriter, r *http.Request, etag string, resp *responses.DiffResponse) {
	w.Header().Set("Etag", etag)
	if match := r.Header.Get("If-None-Match"); match != "" && strings.Contains(match, etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	if err := writeJSONPretty(w, r, http.StatusOK, resp); err != nil {
		slog.Error("failed writing diff response", logfields.Error(err))
	}
}

// writeError writes the JSON error body. Error responses never carry an Etag.
func (h *DiffHandlers) writeError(w http.ResponseWriter, r *http.Request, diffType string, err error) {
	label := metrics.ResultError
	if derrors.HasCategory(err, derrors.CategoryTimeout) {
		label = metrics.ResultTimeout
	}
	h.recorder.IncDiffResult(diffType, label)
	h.errorAdapter.WriteErrorResponse(w, r, err)
}

func diffEtag(diffType, format, hashA, hashB string) string {
	sum := sha256.Sum256([]byte(diffType + "\x00" + format + "\x00" + hashA + "\x00" + hashB))
	return `"` + hex.EncodeToString(sum[:16]) + `"`
}
