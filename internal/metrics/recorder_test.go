package metrics

import (
	"testing"
	"time"
)

type testRecorder struct {
	NoopRecorder
	diffDurations map[string]int
	diffResults   map[string]map[ResultLabel]int
	cacheHits     int
	cacheMisses   int
	poolResets    int
}

func newTestRecorder() *testRecorder {
	return &testRecorder{diffDurations: map[string]int{}, diffResults: map[string]map[ResultLabel]int{}}
}

func (t *testRecorder) ObserveDiffDuration(diffType string, _ time.Duration) {
	t.diffDurations[diffType]++
}

func (t *testRecorder) IncDiffResult(diffType string, result ResultLabel) {
	m, ok := t.diffResults[diffType]
	if !ok {
		m = map[ResultLabel]int{}
		t.diffResults[diffType] = m
	}
	m[result]++
}

func (t *testRecorder) IncCacheLookup(hit bool) {
	if hit {
		t.cacheHits++
	} else {
		t.cacheMisses++
	}
}

func (t *testRecorder) IncPoolReset() { t.poolResets++ }

func TestNoopRecorderSatisfiesInterface(t *testing.T) {
	var r Recorder = NoopRecorder{}
	r.ObserveDiffDuration("html_token", time.Second)
	r.IncDiffResult("html_token", ResultSuccess)
	r.ObserveFetchDuration(time.Second, true)
	r.IncFetchResult(false)
	r.IncCacheLookup(true)
	r.IncPoolReset()
	r.ObserveCaptureDuration("https://example.com", time.Second, true)
	r.IncCaptureChange("https://example.com")
	r.SetMonitoredPages(3)
}

func TestRecorderFakeCounts(t *testing.T) {
	r := newTestRecorder()
	r.ObserveDiffDuration("links", time.Millisecond)
	r.IncDiffResult("links", ResultSuccess)
	r.IncDiffResult("links", ResultError)
	r.IncCacheLookup(true)
	r.IncCacheLookup(false)
	r.IncPoolReset()

	if r.diffDurations["links"] != 1 {
		t.Fatalf("expected one observation, got %d", r.diffDurations["links"])
	}
	if r.diffResults["links"][ResultSuccess] != 1 || r.diffResults["links"][ResultError] != 1 {
		t.Fatalf("unexpected result counts: %v", r.diffResults["links"])
	}
	if r.cacheHits != 1 || r.cacheMisses != 1 || r.poolResets != 1 {
		t.Fatalf("unexpected counts: hits=%d misses=%d resets=%d", r.cacheHits, r.cacheMisses, r.poolResets)
	}
}
