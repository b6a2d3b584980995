// Package monitor schedules periodic captures of tracked pages, stores
// changed versions, and publishes change events.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/pagediff/pagediff/internal/config"
	"github.com/pagediff/pagediff/internal/fetch"
	"github.com/pagediff/pagediff/internal/logfields"
	"github.com/pagediff/pagediff/internal/metrics"
	"github.com/pagediff/pagediff/internal/retry"
	"github.com/pagediff/pagediff/internal/storage"
)

// Fetcher retrieves a page body. Satisfied by *fetch.Client.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, passHeaders http.Header, expectedHash string) (*fetch.Resource, error)
}

// Service captures tracked pages on a schedule and records changed versions.
type Service struct {
	mu        sync.Mutex
	cfg       config.MonitorConfig
	store     storage.Store
	fetcher   Fetcher
	publisher Publisher
	recorder  metrics.Recorder
	policy    retry.Policy

	scheduler gocron.Scheduler
	jobs      []gocron.Job
}

// NewService creates a monitor service. publisher and recorder may be the
// noop implementations.
func NewService(cfg config.MonitorConfig, store storage.Store, fetcher Fetcher, publisher Publisher, recorder metrics.Recorder) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("version store is required")
	}
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if publisher == nil {
		publisher = NoopPublisher{}
	}
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}

	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}

	return &Service{
		cfg:       cfg,
		store:     store,
		fetcher:   fetcher,
		publisher: publisher,
		recorder:  recorder,
		policy:    retry.DefaultPolicy(),
		scheduler: s,
	}, nil
}

// Start schedules all tracked pages and begins the scheduler.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.scheduleLocked(); err != nil {
		return err
	}

	slog.Info("Starting page monitor",
		"pages", len(s.cfg.Pages),
		"interval", s.cfg.Interval)
	s.scheduler.Start()
	return nil
}

// Stop gracefully shuts down the scheduler and the event publisher.
func (s *Service) Stop(ctx context.Context) error {
	slog.Info("Stopping page monitor")
	if err := s.scheduler.Shutdown(); err != nil {
		return err
	}
	return s.publisher.Close()
}

// Reload replaces the tracked page set, typically on a config file change.
func (s *Service) Reload(cfg config.MonitorConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, job := range s.jobs {
		if err := s.scheduler.RemoveJob(job.ID()); err != nil {
			slog.Warn("Failed to remove capture job", logfields.Error(err))
		}
	}
	s.jobs = nil
	s.cfg = cfg

	if err := s.scheduleLocked(); err != nil {
		return err
	}
	slog.Info("Reloaded page monitor", "pages", len(cfg.Pages))
	return nil
}

// Pages returns the currently tracked pages.
func (s *Service) Pages() []config.Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	pages := make([]config.Page, len(s.cfg.Pages))
	copy(pages, s.cfg.Pages)
	return pages
}

func (s *Service) scheduleLocked() error {
	interval := s.cfg.Interval
	if interval <= 0 {
		interval = 15 * time.Minute
	}

	for _, page := range s.cfg.Pages {
		job, err := s.scheduler.NewJob(
			gocron.DurationJob(interval),
			gocron.NewTask(s.runCapture, page),
			gocron.WithName(fmt.Sprintf("capture %s", page.URL)),
		)
		if err != nil {
			return fmt.Errorf("failed to schedule capture for %s: %w", page.URL, err)
		}
		slog.Debug("Scheduled capture job",
			logfields.Page(page.URL),
			logfields.JobID(job.ID().String()))
		s.jobs = append(s.jobs, job)
	}

	s.recorder.SetMonitoredPages(len(s.cfg.Pages))
	return nil
}

// runCapture is called by gocron to execute one scheduled capture.
func (s *Service) runCapture(page config.Page) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	start := time.Now()
	event, err := s.CapturePage(ctx, page)
	s.recorder.ObserveCaptureDuration(page.URL, time.Since(start), err == nil)
	if err != nil {
		slog.Error("Scheduled capture failed",
			logfields.Page(page.URL),
			logfields.Error(err))
		return
	}
	if event == nil {
		slog.Debug("Page unchanged", logfields.Page(page.URL))
		return
	}

	slog.Info("Page changed",
		logfields.Page(page.URL),
		logfields.VersionID(event.ToVersionID),
		slog.Bool("initial", event.Initial()))
}

// CapturePage fetches a page and stores a new version when its content hash
// differs from the latest stored version. It returns the published change
// event, or nil when the page is unchanged.
func (s *Service) CapturePage(ctx context.Context, page config.Page) (*PageChangedEvent, error) {
	var res *fetch.Resource
	err := retry.Do(ctx, s.policy, func() error {
		attempt := time.Now()
		var fetchErr error
		res, fetchErr = s.fetcher.Fetch(ctx, page.URL, nil, "")
		s.recorder.ObserveFetchDuration(time.Since(attempt), fetchErr == nil)
		s.recorder.IncFetchResult(fetchErr == nil)
		return fetchErr
	})
	if err != nil {
		return nil, err
	}

	hash := res.Hash()

	previous, err := s.store.LatestVersion(ctx, page.URL)
	switch {
	case err == nil:
		if previous.Hash == hash {
			return nil, nil
		}
	case err == storage.ErrVersionNotFound:
		previous = nil
	default:
		return nil, err
	}

	title := fetch.ExtractTitle(string(res.Body))
	version := &storage.Version{
		PageURL:     page.URL,
		Hash:        hash,
		Title:       title,
		ContentType: res.ContentType,
		Body:        res.Body,
		Source:      "monitor",
	}
	if err := s.store.SaveVersion(ctx, version); err != nil {
		return nil, err
	}
	s.recorder.IncCaptureChange(page.URL)

	event := &PageChangedEvent{
		PageURL:     page.URL,
		Title:       title,
		Tags:        page.Tags,
		ToVersionID: version.ID,
		ToHash:      hash,
		CapturedAt:  version.CapturedAt,
		ContentType: version.ContentType,
		Length:      version.Length,
	}
	if previous != nil {
		event.FromVersionID = previous.ID
		event.FromHash = previous.Hash
	}

	if err := s.publisher.PublishPageChanged(ctx, event); err != nil {
		// The version is already stored; losing one notification is
		// preferable to re-capturing the same content.
		slog.Error("Failed to publish change event",
			logfields.Page(page.URL),
			logfields.Error(err))
	}

	return event, nil
}

// CaptureAll captures every tracked page once, sequentially. Used by the
// admin API and the one-shot CLI command.
func (s *Service) CaptureAll(ctx context.Context) ([]*PageChangedEvent, error) {
	var events []*PageChangedEvent
	for _, page := range s.Pages() {
		event, err := s.CapturePage(ctx, page)
		if err != nil {
			return events, err
		}
		if event != nil {
			events = append(events, event)
		}
	}
	return events, nil
}
