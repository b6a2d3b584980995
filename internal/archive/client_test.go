package archive

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagediff/pagediff/internal/config"
	ferrors "github.com/pagediff/pagediff/internal/foundation/errors"
	"github.com/pagediff/pagediff/internal/storage"
)

const (
	testCabinet = "epa"
	// archive ids are unix timestamps
	testArchive = "1488241199"
)

// fakeArchive serves the subset of the archive API the client touches.
func fakeArchive(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	prefix := "/master/api/services/storage"
	mux.HandleFunc(prefix+"/library/all/cabinets", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"ok","cabinets":{"epa":[{"url":"https://epa.example.gov/page1"}]}}`)
	})
	mux.HandleFunc(prefix+"/archive/"+testCabinet, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"status":"ok","cabinet":%q,"archives":[%q]}`, testCabinet, testArchive)
	})
	archivePrefix := prefix + "/archive/" + testCabinet + "/" + testArchive
	mux.HandleFunc(archivePrefix+"/load", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		fmt.Fprint(w, `{"status":"ok","result":{"status":"ok"}}`)
	})
	mux.HandleFunc(archivePrefix+"/unload", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		fmt.Fprint(w, `{"status":"ok","result":{"status":"ok"}}`)
	})
	mux.HandleFunc(archivePrefix+"/search", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"ok","result":{"founds":[{"url":"https://epa.example.gov/page1","key":"k1"}]}}`)
	})
	mux.HandleFunc(archivePrefix+"/k1/meta", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"ok","result":{"status":"ok","file":{"ContentType":"text/html; charset=utf-8"}}}`)
	})
	mux.HandleFunc(archivePrefix+"/k1/file", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><head><title>Archived Page</title></head><body>old</body></html>")
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	return NewClient(&config.ArchiveConfig{BaseURL: baseURL, Timeout: 5 * time.Second})
}

func TestListCabinets(t *testing.T) {
	srv := fakeArchive(t)
	c := newTestClient(t, srv.URL)

	cabinets, err := c.ListCabinets(t.Context())
	require.NoError(t, err)
	require.Contains(t, cabinets, testCabinet)
	assert.Equal(t, "https://epa.example.gov/page1", cabinets[testCabinet][0].URL)
}

func TestListArchivesChecksCabinetEcho(t *testing.T) {
	srv := fakeArchive(t)
	c := newTestClient(t, srv.URL)

	archives, err := c.ListArchives(t.Context(), testCabinet)
	require.NoError(t, err)
	assert.Equal(t, []string{testArchive}, archives)
}

func TestBusinessStatusErrorOn200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"error"}`)
	}))
	defer srv.Close()
	c := newTestClient(t, srv.URL)

	_, err := c.ListCabinets(t.Context())
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryArchive))
}

func TestHTTPErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()
	c := newTestClient(t, srv.URL)

	_, err := c.ListCabinets(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestSearchArchive(t *testing.T) {
	srv := fakeArchive(t)
	c := newTestClient(t, srv.URL)

	hits, err := c.SearchArchive(t.Context(), testCabinet, testArchive, "")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "k1", hits[0].Key)
}

func TestPageVersion(t *testing.T) {
	srv := fakeArchive(t)
	c := newTestClient(t, srv.URL)

	v, err := c.PageVersion(t.Context(), testCabinet, testArchive, SearchHit{URL: "https://epa.example.gov/page1", Key: "k1"})
	require.NoError(t, err)
	assert.Equal(t, "https://epa.example.gov/page1", v.PageURL)
	assert.Equal(t, "Archived Page", v.Title)
	assert.Equal(t, "text/html; charset=utf-8", v.ContentType)
	assert.Equal(t, "archive", v.Source)
	assert.Len(t, v.Hash, 64)
	assert.Equal(t, time.Unix(1488241199, 0).UTC(), v.CapturedAt)
	assert.NotEmpty(t, v.Body)
}

func TestPageVersionRejectsBadArchiveID(t *testing.T) {
	srv := fakeArchive(t)
	c := newTestClient(t, srv.URL)

	_, err := c.PageVersion(t.Context(), testCabinet, "not-a-timestamp", SearchHit{Key: "k1"})
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryArchive))
}

func TestImportArchive(t *testing.T) {
	srv := fakeArchive(t)
	c := newTestClient(t, srv.URL)

	store, err := storage.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	imported, err := c.ImportArchive(t.Context(), testCabinet, testArchive, store)
	require.NoError(t, err)
	assert.Equal(t, 1, imported)

	v, err := store.LatestVersion(t.Context(), "https://epa.example.gov/page1")
	require.NoError(t, err)
	assert.Equal(t, "Archived Page", v.Title)
}

func TestImportArchiveFailsWhenLoadFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"ok","result":{"status":"busy"}}`)
	}))
	defer srv.Close()
	c := newTestClient(t, srv.URL)

	store, err := storage.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	_, err = c.ImportArchive(t.Context(), testCabinet, testArchive, store)
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryArchive))
}
