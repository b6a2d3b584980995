package monitor

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagediff/pagediff/internal/config"
	"github.com/pagediff/pagediff/internal/fetch"
	ferrors "github.com/pagediff/pagediff/internal/foundation/errors"
	"github.com/pagediff/pagediff/internal/metrics"
	"github.com/pagediff/pagediff/internal/storage"
)

type fakeFetcher struct {
	mu     sync.Mutex
	bodies map[string][]byte
	errs   map[string]error
	calls  int
}

func (f *fakeFetcher) Fetch(_ context.Context, rawURL string, _ http.Header, _ string) (*fetch.Resource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err := f.errs[rawURL]; err != nil {
		return nil, err
	}
	body, ok := f.bodies[rawURL]
	if !ok {
		return nil, ferrors.UpstreamError("no such page").Build()
	}
	return &fetch.Resource{
		URL:         rawURL,
		StatusCode:  200,
		Headers:     http.Header{},
		Body:        body,
		ContentType: "text/html",
	}, nil
}

type capturingPublisher struct {
	mu     sync.Mutex
	events []*PageChangedEvent
	err    error
}

func (p *capturingPublisher) PublishPageChanged(_ context.Context, e *PageChangedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, e)
	return nil
}

func (p *capturingPublisher) Close() error { return nil }

func newTestService(t *testing.T, pages []config.Page, fetcher Fetcher, pub Publisher) (*Service, *storage.SQLiteStore) {
	t.Helper()
	store, err := storage.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	svc, err := NewService(config.MonitorConfig{Enabled: true, Pages: pages}, store, fetcher, pub, nil)
	require.NoError(t, err)
	return svc, store
}

func TestCapturePageStoresFirstVersion(t *testing.T) {
	page := config.Page{URL: "https://example.com/a", Tags: map[string]string{"site": "example"}}
	fetcher := &fakeFetcher{bodies: map[string][]byte{page.URL: []byte("<html><title>First</title></html>")}}
	pub := &capturingPublisher{}
	svc, store := newTestService(t, []config.Page{page}, fetcher, pub)

	event, err := svc.CapturePage(t.Context(), page)
	require.NoError(t, err)
	require.NotNil(t, event)
	assert.True(t, event.Initial())
	assert.Equal(t, page.URL, event.PageURL)
	assert.Equal(t, "First", event.Title)
	assert.Equal(t, "example", event.Tags["site"])
	assert.NotEmpty(t, event.ToVersionID)
	assert.NotEmpty(t, event.ToHash)

	stored, err := store.LatestVersion(t.Context(), page.URL)
	require.NoError(t, err)
	assert.Equal(t, event.ToVersionID, stored.ID)
	assert.Equal(t, "monitor", stored.Source)

	require.Len(t, pub.events, 1)
}

func TestCapturePageSkipsUnchangedContent(t *testing.T) {
	page := config.Page{URL: "https://example.com/a"}
	fetcher := &fakeFetcher{bodies: map[string][]byte{page.URL: []byte("same body")}}
	pub := &capturingPublisher{}
	svc, _ := newTestService(t, []config.Page{page}, fetcher, pub)

	first, err := svc.CapturePage(t.Context(), page)
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := svc.CapturePage(t.Context(), page)
	require.NoError(t, err)
	assert.Nil(t, second)
	assert.Len(t, pub.events, 1)
}

func TestCapturePageRecordsChange(t *testing.T) {
	page := config.Page{URL: "https://example.com/a"}
	fetcher := &fakeFetcher{bodies: map[string][]byte{page.URL: []byte("old body")}}
	pub := &capturingPublisher{}
	svc, store := newTestService(t, []config.Page{page}, fetcher, pub)

	first, err := svc.CapturePage(t.Context(), page)
	require.NoError(t, err)

	fetcher.mu.Lock()
	fetcher.bodies[page.URL] = []byte("new body")
	fetcher.mu.Unlock()

	second, err := svc.CapturePage(t.Context(), page)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.False(t, second.Initial())
	assert.Equal(t, first.ToVersionID, second.FromVersionID)
	assert.Equal(t, first.ToHash, second.FromHash)
	assert.NotEqual(t, second.FromHash, second.ToHash)

	versions, err := store.ListVersions(t.Context(), page.URL, 0)
	require.NoError(t, err)
	assert.Len(t, versions, 2)
}

func TestCapturePagePublishFailureDoesNotLoseVersion(t *testing.T) {
	page := config.Page{URL: "https://example.com/a"}
	fetcher := &fakeFetcher{bodies: map[string][]byte{page.URL: []byte("body")}}
	pub := &capturingPublisher{err: errors.New("nats down")}
	svc, store := newTestService(t, []config.Page{page}, fetcher, pub)

	event, err := svc.CapturePage(t.Context(), page)
	require.NoError(t, err)
	require.NotNil(t, event)

	_, err = store.LatestVersion(t.Context(), page.URL)
	assert.NoError(t, err)
}

func TestCapturePageRetriesTransientFetchErrors(t *testing.T) {
	page := config.Page{URL: "https://example.com/flaky"}
	fetcher := &flakyFetcher{failures: 2, body: []byte("eventually")}
	svc, _ := newTestService(t, []config.Page{page}, fetcher, NoopPublisher{})
	svc.policy.Initial = 0
	svc.policy.Max = 1

	event, err := svc.CapturePage(t.Context(), page)
	require.NoError(t, err)
	require.NotNil(t, event)
	assert.Equal(t, 3, fetcher.calls)
}

type flakyFetcher struct {
	failures int
	calls    int
	body     []byte
}

func (f *flakyFetcher) Fetch(_ context.Context, rawURL string, _ http.Header, _ string) (*fetch.Resource, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, ferrors.UpstreamError("transient").Build()
	}
	return &fetch.Resource{URL: rawURL, StatusCode: 200, Headers: http.Header{}, Body: f.body}, nil
}

type fetchMetricsRecorder struct {
	metrics.NoopRecorder
	mu      sync.Mutex
	results map[bool]int
}

func (r *fetchMetricsRecorder) IncFetchResult(success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.results == nil {
		r.results = map[bool]int{}
	}
	r.results[success]++
}

func TestCapturePageRecordsFetchAttempts(t *testing.T) {
	page := config.Page{URL: "https://example.com/flaky"}
	store, err := storage.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	fetcher := &flakyFetcher{failures: 1, body: []byte("eventually")}
	recorder := &fetchMetricsRecorder{}
	svc, err := NewService(config.MonitorConfig{Enabled: true, Pages: []config.Page{page}},
		store, fetcher, NoopPublisher{}, recorder)
	require.NoError(t, err)
	svc.policy.Initial = 0
	svc.policy.Max = 1

	event, err := svc.CapturePage(t.Context(), page)
	require.NoError(t, err)
	require.NotNil(t, event)

	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	assert.Equal(t, 1, recorder.results[false])
	assert.Equal(t, 1, recorder.results[true])
}

func TestCaptureAllWalksEveryPage(t *testing.T) {
	pages := []config.Page{
		{URL: "https://example.com/a"},
		{URL: "https://example.com/b"},
	}
	fetcher := &fakeFetcher{bodies: map[string][]byte{
		pages[0].URL: []byte("a"),
		pages[1].URL: []byte("b"),
	}}
	svc, _ := newTestService(t, pages, fetcher, NoopPublisher{})

	events, err := svc.CaptureAll(t.Context())
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestReloadReplacesTrackedPages(t *testing.T) {
	fetcher := &fakeFetcher{bodies: map[string][]byte{}}
	svc, _ := newTestService(t, []config.Page{{URL: "https://example.com/a"}}, fetcher, NoopPublisher{})

	require.NoError(t, svc.Start(t.Context()))
	defer func() { _ = svc.Stop(t.Context()) }()

	newCfg := config.MonitorConfig{
		Enabled: true,
		Pages:   []config.Page{{URL: "https://example.com/x"}, {URL: "https://example.com/y"}},
	}
	require.NoError(t, svc.Reload(newCfg))

	pages := svc.Pages()
	require.Len(t, pages, 2)
	assert.Equal(t, "https://example.com/x", pages[0].URL)
}
