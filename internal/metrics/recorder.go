package metrics

import "time"

// ResultLabel enumerates request result categories for counters.
type ResultLabel string

const (
	ResultSuccess  ResultLabel = "success"
	ResultError    ResultLabel = "error"
	ResultTimeout  ResultLabel = "timeout"
	ResultCanceled ResultLabel = "canceled"
)

// Recorder defines observability hooks for diff, fetch, and capture metrics.
// Implementations may forward to Prometheus, OpenTelemetry, etc. All methods
// must be safe for nil receivers when using the NoopRecorder (allowing
// optional injection).
type Recorder interface {
	ObserveDiffDuration(diffType string, d time.Duration)
	IncDiffResult(diffType string, result ResultLabel)
	ObserveFetchDuration(d time.Duration, success bool)
	IncFetchResult(success bool)
	IncCacheLookup(hit bool)
	IncPoolReset()
	ObserveCaptureDuration(page string, d time.Duration, success bool)
	IncCaptureChange(page string)
	SetMonitoredPages(n int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveDiffDuration(string, time.Duration)            {}
func (NoopRecorder) IncDiffResult(string, ResultLabel)                    {}
func (NoopRecorder) ObserveFetchDuration(time.Duration, bool)             {}
func (NoopRecorder) IncFetchResult(bool)                                  {}
func (NoopRecorder) IncCacheLookup(bool)                                  {}
func (NoopRecorder) IncPoolReset()                                        {}
func (NoopRecorder) ObserveCaptureDuration(string, time.Duration, bool)   {}
func (NoopRecorder) IncCaptureChange(string)                              {}
func (NoopRecorder) SetMonitoredPages(int)                                {}
