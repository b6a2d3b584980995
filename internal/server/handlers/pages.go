package handlers

import (
	"log/slog"
	"net/http"
	"time"

	derrors "github.com/pagediff/pagediff/internal/foundation/errors"
	"github.com/pagediff/pagediff/internal/monitor"
	"github.com/pagediff/pagediff/internal/server/responses"
	"github.com/pagediff/pagediff/internal/storage"
)

// PageHandlers serves the admin monitoring API backed by the version store
// and the capture service.
type PageHandlers struct {
	store        storage.Store
	svc          *monitor.Service
	errorAdapter *derrors.HTTPErrorAdapter
}

// NewPageHandlers creates the admin page handlers. svc may be nil when
// monitoring is disabled; the capture trigger then returns 503.
func NewPageHandlers(store storage.Store, svc *monitor.Service) *PageHandlers {
	return &PageHandlers{
		store:        store,
		svc:          svc,
		errorAdapter: derrors.NewHTTPErrorAdapter(slog.Default()),
	}
}

// HandlePages lists monitored pages and their stored version summaries.
func (h *PageHandlers) HandlePages(w http.ResponseWriter, r *http.Request) {
	pages, err := h.store.ListPages(r.Context())
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r,
			derrors.WrapError(err, derrors.CategoryStorage, "failed to list pages").Build())
		return
	}
	if pages == nil {
		pages = []storage.PageSummary{}
	}

	resp := &responses.PagesResponse{Pages: pages, Timestamp: time.Now().UTC()}
	if err := writeJSONPretty(w, r, http.StatusOK, resp); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r,
			derrors.WrapError(err, derrors.CategoryInternal, "failed to write pages response").Build())
	}
}

// HandleVersions lists the stored versions of one page, newest first.
func (h *PageHandlers) HandleVersions(w http.ResponseWriter, r *http.Request) {
	pageURL := r.URL.Query().Get("url")
	if pageURL == "" {
		h.errorAdapter.WriteErrorResponse(w, r,
			derrors.ValidationError("query parameter `url` is required").Build())
		return
	}

	versions, err := h.store.ListVersions(r.Context(), pageURL, 0)
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r,
			derrors.WrapError(err, derrors.CategoryStorage, "failed to list versions").Build())
		return
	}
	if versions == nil {
		versions = []*storage.Version{}
	}

	resp := &responses.VersionsResponse{PageURL: pageURL, Versions: versions}
	if err := writeJSONPretty(w, r, http.StatusOK, resp); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r,
			derrors.WrapError(err, derrors.CategoryInternal, "failed to write versions response").Build())
	}
}

// HandleCheck triggers an immediate capture round over every tracked page.
func (h *PageHandlers) HandleCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.errorAdapter.WriteErrorResponse(w, r,
			derrors.ValidationError("invalid HTTP method").
				WithContext("method", r.Method).
				WithContext("allowed_method", "POST").
				Build())
		return
	}
	if h.svc == nil {
		h.errorAdapter.WriteErrorResponse(w, r,
			derrors.NewError(derrors.CategoryRuntime, "page monitoring is disabled").Build())
		return
	}

	changes, err := h.svc.CaptureAll(r.Context())
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r,
			derrors.WrapError(err, derrors.CategoryUpstream, "capture round failed").Build())
		return
	}
	if changes == nil {
		changes = []*monitor.PageChangedEvent{}
	}

	resp := &responses.CheckResponse{Status: "ok", Changes: changes, Timestamp: time.Now().UTC()}
	if err := writeJSONPretty(w, r, http.StatusOK, resp); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r,
			derrors.WrapError(err, derrors.CategoryInternal, "failed to write check response").Build())
	}
}
