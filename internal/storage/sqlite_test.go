package storage

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

const testPageURL = "https://example.com/page"

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSaveAndGetLatestVersion(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()

	v := &Version{
		PageURL:     testPageURL,
		Hash:        "aa11",
		Title:       "Example Page",
		ContentType: "text/html",
		Body:        []byte("<html>one</html>"),
	}
	if err := store.SaveVersion(ctx, v); err != nil {
		t.Fatalf("failed to save version: %v", err)
	}
	if v.ID == "" {
		t.Fatal("expected generated ID")
	}
	if v.CapturedAt.IsZero() {
		t.Fatal("expected generated capture time")
	}
	if v.Length != int64(len(v.Body)) {
		t.Fatalf("expected length %d, got %d", len(v.Body), v.Length)
	}

	got, err := store.LatestVersion(ctx, testPageURL)
	if err != nil {
		t.Fatalf("failed to get latest version: %v", err)
	}
	if got.ID != v.ID {
		t.Errorf("expected id %s, got %s", v.ID, got.ID)
	}
	if got.Hash != "aa11" {
		t.Errorf("expected hash aa11, got %s", got.Hash)
	}
	if got.Title != "Example Page" {
		t.Errorf("expected title, got %q", got.Title)
	}
	if !bytes.Equal(got.Body, v.Body) {
		t.Errorf("expected body %q, got %q", v.Body, got.Body)
	}
}

func TestLatestVersionPicksNewest(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()

	old := &Version{PageURL: testPageURL, Hash: "old", CapturedAt: time.Now().Add(-time.Hour), Body: []byte("a")}
	current := &Version{PageURL: testPageURL, Hash: "new", CapturedAt: time.Now(), Body: []byte("b")}
	for _, v := range []*Version{old, current} {
		if err := store.SaveVersion(ctx, v); err != nil {
			t.Fatalf("failed to save version: %v", err)
		}
	}

	got, err := store.LatestVersion(ctx, testPageURL)
	if err != nil {
		t.Fatalf("failed to get latest version: %v", err)
	}
	if got.Hash != "new" {
		t.Errorf("expected newest version, got hash %s", got.Hash)
	}
}

func TestLatestVersionNotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.LatestVersion(t.Context(), "https://never-captured.example.com")
	if !errors.Is(err, ErrVersionNotFound) {
		t.Fatalf("expected ErrVersionNotFound, got %v", err)
	}
}

func TestGetVersionByID(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()

	v := &Version{PageURL: testPageURL, Hash: "cc33", Body: []byte("body")}
	if err := store.SaveVersion(ctx, v); err != nil {
		t.Fatalf("failed to save version: %v", err)
	}

	got, err := store.GetVersion(ctx, v.ID)
	if err != nil {
		t.Fatalf("failed to get version: %v", err)
	}
	if got.Hash != "cc33" {
		t.Errorf("expected hash cc33, got %s", got.Hash)
	}

	if _, err := store.GetVersion(ctx, "no-such-id"); !errors.Is(err, ErrVersionNotFound) {
		t.Fatalf("expected ErrVersionNotFound, got %v", err)
	}
}

func TestListVersionsNewestFirstWithLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()

	base := time.Now().Add(-3 * time.Hour)
	for i, hash := range []string{"h1", "h2", "h3"} {
		v := &Version{PageURL: testPageURL, Hash: hash, CapturedAt: base.Add(time.Duration(i) * time.Hour), Body: []byte(hash)}
		if err := store.SaveVersion(ctx, v); err != nil {
			t.Fatalf("failed to save version: %v", err)
		}
	}

	versions, err := store.ListVersions(ctx, testPageURL, 2)
	if err != nil {
		t.Fatalf("failed to list versions: %v", err)
	}
	if len(versions) != 2 {
		t.Fatalf("expected 2 versions, got %d", len(versions))
	}
	if versions[0].Hash != "h3" || versions[1].Hash != "h2" {
		t.Errorf("expected newest first, got %s, %s", versions[0].Hash, versions[1].Hash)
	}
	if versions[0].Body != nil {
		t.Error("expected listing to skip bodies")
	}
}

func TestVersionsInRange(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()

	now := time.Now()
	inside := &Version{PageURL: testPageURL, Hash: "inside", CapturedAt: now.Add(-time.Hour), Body: []byte("a")}
	outside := &Version{PageURL: testPageURL, Hash: "outside", CapturedAt: now.Add(-48 * time.Hour), Body: []byte("b")}
	for _, v := range []*Version{inside, outside} {
		if err := store.SaveVersion(ctx, v); err != nil {
			t.Fatalf("failed to save version: %v", err)
		}
	}

	versions, err := store.VersionsInRange(ctx, testPageURL, now.Add(-2*time.Hour), now)
	if err != nil {
		t.Fatalf("failed to query range: %v", err)
	}
	if len(versions) != 1 {
		t.Fatalf("expected 1 version in range, got %d", len(versions))
	}
	if versions[0].Hash != "inside" {
		t.Errorf("expected inside version, got %s", versions[0].Hash)
	}
}

func TestListPages(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()

	pages := []*Version{
		{PageURL: "https://a.example.com", Hash: "a1", CapturedAt: time.Now().Add(-time.Hour), Body: []byte("x")},
		{PageURL: "https://a.example.com", Hash: "a2", Title: "A Page", CapturedAt: time.Now(), Body: []byte("y")},
		{PageURL: "https://b.example.com", Hash: "b1", CapturedAt: time.Now(), Body: []byte("z")},
	}
	for _, v := range pages {
		if err := store.SaveVersion(ctx, v); err != nil {
			t.Fatalf("failed to save version: %v", err)
		}
	}

	summaries, err := store.ListPages(ctx)
	if err != nil {
		t.Fatalf("failed to list pages: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("expected 2 pages, got %d", len(summaries))
	}
	first := summaries[0]
	if first.PageURL != "https://a.example.com" || first.VersionCount != 2 {
		t.Errorf("unexpected summary: %+v", first)
	}
	if first.LatestHash != "a2" || first.Title != "A Page" {
		t.Errorf("expected latest hash/title from newest version, got %+v", first)
	}
}

func TestPersistentFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "versions.db")

	store, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	v := &Version{PageURL: testPageURL, Hash: "persist", Body: []byte("data")}
	if err := store.SaveVersion(t.Context(), v); err != nil {
		t.Fatalf("failed to save version: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}

	reopened, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("failed to reopen store: %v", err)
	}
	defer func() { _ = reopened.Close() }()

	got, err := reopened.LatestVersion(t.Context(), testPageURL)
	if err != nil {
		t.Fatalf("failed to get version after reopen: %v", err)
	}
	if got.Hash != "persist" {
		t.Errorf("expected persisted hash, got %s", got.Hash)
	}
}
