package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once            sync.Once
	diffDuration    *prom.HistogramVec
	diffResults     *prom.CounterVec
	fetchDuration   *prom.HistogramVec
	fetchResults    *prom.CounterVec
	cacheLookups    *prom.CounterVec
	poolResets      prom.Counter
	captureDuration *prom.HistogramVec
	captureChanges  *prom.CounterVec
	monitoredPages  prom.Gauge
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.diffDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "pagediff",
			Name:      "diff_duration_seconds",
			Help:      "Duration of diff computations by diff type",
			Buckets:   prom.DefBuckets,
		}, []string{"diff_type"})
		pr.diffResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "pagediff",
			Name:      "diff_results_total",
			Help:      "Diff request counts by diff type and outcome",
		}, []string{"diff_type", "result"})
		pr.fetchDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "pagediff",
			Name:      "fetch_duration_seconds",
			Help:      "Duration of upstream page fetches",
			Buckets:   prom.DefBuckets,
		}, []string{"result"})
		pr.fetchResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "pagediff",
			Name:      "fetch_results_total",
			Help:      "Fetch results by success/failure",
		}, []string{"result"})
		pr.cacheLookups = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "pagediff",
			Name:      "diff_cache_lookups_total",
			Help:      "Diff result cache lookups by hit/miss",
		}, []string{"result"})
		pr.poolResets = prom.NewCounter(prom.CounterOpts{
			Namespace: "pagediff",
			Name:      "diff_pool_resets_total",
			Help:      "Times the diff worker pool was rebuilt after breakage",
		})
		pr.captureDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "pagediff",
			Name:      "capture_duration_seconds",
			Help:      "Duration of scheduled page captures",
			Buckets:   prom.DefBuckets,
		}, []string{"page", "result"})
		pr.captureChanges = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "pagediff",
			Name:      "capture_changes_total",
			Help:      "Captures that recorded a changed page version",
		}, []string{"page"})
		pr.monitoredPages = prom.NewGauge(prom.GaugeOpts{
			Namespace: "pagediff",
			Name:      "monitored_pages",
			Help:      "Number of pages currently scheduled for capture",
		})
		reg.MustRegister(pr.diffDuration, pr.diffResults, pr.fetchDuration, pr.fetchResults, pr.cacheLookups, pr.poolResets, pr.captureDuration, pr.captureChanges, pr.monitoredPages)
	})
	return pr
}

func (p *PrometheusRecorder) ObserveDiffDuration(diffType string, d time.Duration) {
	if p == nil || p.diffDuration == nil {
		return
	}
	p.diffDuration.WithLabelValues(diffType).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncDiffResult(diffType string, result ResultLabel) {
	if p == nil || p.diffResults == nil {
		return
	}
	p.diffResults.WithLabelValues(diffType, string(result)).Inc()
}

func (p *PrometheusRecorder) ObserveFetchDuration(d time.Duration, success bool) {
	if p == nil || p.fetchDuration == nil {
		return
	}
	p.fetchDuration.WithLabelValues(successLabel(success)).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncFetchResult(success bool) {
	if p == nil || p.fetchResults == nil {
		return
	}
	p.fetchResults.WithLabelValues(successLabel(success)).Inc()
}

func (p *PrometheusRecorder) IncCacheLookup(hit bool) {
	if p == nil || p.cacheLookups == nil {
		return
	}
	res := "miss"
	if hit {
		res = "hit"
	}
	p.cacheLookups.WithLabelValues(res).Inc()
}

func (p *PrometheusRecorder) IncPoolReset() {
	if p == nil || p.poolResets == nil {
		return
	}
	p.poolResets.Inc()
}

func (p *PrometheusRecorder) ObserveCaptureDuration(page string, d time.Duration, success bool) {
	if p == nil || p.captureDuration == nil {
		return
	}
	p.captureDuration.WithLabelValues(page, successLabel(success)).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncCaptureChange(page string) {
	if p == nil || p.captureChanges == nil {
		return
	}
	p.captureChanges.WithLabelValues(page).Inc()
}

func (p *PrometheusRecorder) SetMonitoredPages(n int) {
	if p == nil || p.monitoredPages == nil {
		return
	}
	p.monitoredPages.Set(float64(n))
}

func successLabel(success bool) string {
	if success {
		return "success"
	}
	return "failed"
}
