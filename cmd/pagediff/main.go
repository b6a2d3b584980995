package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/pagediff/pagediff/internal/archive"
	"github.com/pagediff/pagediff/internal/config"
	"github.com/pagediff/pagediff/internal/diff"
	"github.com/pagediff/pagediff/internal/diff/pool"
	"github.com/pagediff/pagediff/internal/fetch"
	"github.com/pagediff/pagediff/internal/metrics"
	"github.com/pagediff/pagediff/internal/monitor"
	"github.com/pagediff/pagediff/internal/server/httpserver"
	"github.com/pagediff/pagediff/internal/storage"
	"github.com/pagediff/pagediff/internal/version"
)

var CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"config.yaml"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `help:"Print version information and exit"`

	Serve struct{} `cmd:"" help:"Run the diff and admin HTTP servers"`

	Diff struct {
		Type   string `arg:"" help:"Diff type (see 'pagediff serve' index for the list)"`
		A      string `arg:"" help:"URL of the first document"`
		B      string `arg:"" help:"URL of the second document"`
		Format string `help:"Output format for HTML-capable differs" default:"json" enum:"json,html"`
	} `cmd:"" help:"Diff two documents once and print the result"`

	Check struct{} `cmd:"" help:"Run one capture round over the tracked pages"`

	Import struct {
		Cabinet string `arg:"" help:"Archive cabinet ID"`
		Archive string `arg:"" help:"Archive ID (unix timestamp)"`
	} `cmd:"" help:"Import an archive into the version store"`

	Init struct {
		Force bool `help:"Overwrite existing configuration file"`
	} `cmd:"" help:"Initialize a new configuration file"`
}

func main() {
	ctx := kong.Parse(&CLI, kong.Vars{
		"version": fmt.Sprintf("pagediff %s (commit %s, built %s)", version.Version, version.GitCommit, version.BuildTime),
	})

	// Set up logging
	logLevel := slog.LevelInfo
	if CLI.Verbose {
		logLevel = slog.LevelDebug
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	var err error
	switch ctx.Command() {
	case "serve":
		err = runServe(CLI.Config)
	case "diff <type> <a> <b>":
		err = runDiff(CLI.Diff.Type, CLI.Diff.A, CLI.Diff.B, CLI.Diff.Format)
	case "check":
		err = runCheck(CLI.Config)
	case "import <cabinet> <archive>":
		err = runImport(CLI.Config, CLI.Import.Cabinet, CLI.Import.Archive)
	case "init":
		err = config.Init(CLI.Config, CLI.Init.Force)
	default:
		err = fmt.Errorf("unknown command %q", ctx.Command())
	}
	if err != nil {
		slog.Error("Command failed", "command", ctx.Command(), "error", err)
		os.Exit(1)
	}
}

func runServe(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	fetcher := newFetcher(cfg)
	registry := prom.NewRegistry()
	recorder := metrics.NewPrometheusRecorder(registry)
	runner := pool.NewRunner(cfg.Server.Workers, cfg.Server.RestartBrokenDiffer, os.Exit, recorder)

	opts := httpserver.Options{
		Fetcher:   fetcher,
		Runner:    runner,
		Recorder:  recorder,
		Registry:  registry,
		StartTime: time.Now(),
	}

	var svc *monitor.Service
	var watcher *config.Watcher
	if cfg.Monitor.Enabled {
		store, err := storage.NewSQLiteStore(cfg.Monitor.DBPath)
		if err != nil {
			return fmt.Errorf("failed to open version store: %w", err)
		}
		defer func() { _ = store.Close() }()

		publisher, err := newPublisher(&cfg.Monitor.NATS)
		if err != nil {
			return err
		}

		svc, err = monitor.NewService(cfg.Monitor, store, fetcher, publisher, recorder)
		if err != nil {
			return fmt.Errorf("failed to create monitor: %w", err)
		}
		if err := svc.Start(ctx); err != nil {
			return fmt.Errorf("failed to start monitor: %w", err)
		}

		watcher, err = config.NewWatcher(configPath, func(updated *config.Config) {
			if err := svc.Reload(updated.Monitor); err != nil {
				slog.Error("Failed to apply reloaded configuration", "error", err)
			}
		})
		if err != nil {
			return fmt.Errorf("failed to create config watcher: %w", err)
		}
		if err := watcher.Start(ctx); err != nil {
			return fmt.Errorf("failed to start config watcher: %w", err)
		}

		opts.Store = store
		opts.Monitor = svc
	}

	srv, err := httpserver.New(cfg, opts)
	if err != nil {
		return err
	}
	if err := srv.Start(ctx); err != nil {
		return err
	}

	slog.Info("pagediff started, waiting for shutdown signal...",
		"version", version.Version,
		"environment", cfg.Server.Environment)
	<-ctx.Done()
	slog.Info("Shutdown signal received, stopping...")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()

	if watcher != nil {
		if err := watcher.Stop(); err != nil {
			slog.Warn("Failed to stop config watcher", "error", err)
		}
	}
	if svc != nil {
		if err := svc.Stop(stopCtx); err != nil {
			slog.Warn("Failed to stop monitor", "error", err)
		}
	}
	if err := srv.Stop(stopCtx); err != nil {
		return fmt.Errorf("failed to stop HTTP servers: %w", err)
	}

	slog.Info("pagediff stopped")
	return nil
}

// runDiff resolves one comparison and prints the result JSON to stdout.
// file:// sources are always allowed here; the production restriction only
// guards the network-exposed server.
func runDiff(diffType, urlA, urlB, format string) error {
	differ, ok := diff.Lookup(diffType)
	if !ok {
		return fmt.Errorf("unknown diff type %q (available: %v)", diffType, diff.Names())
	}
	if err := fetch.ValidateURL("a", urlA); err != nil {
		return err
	}
	if err := fetch.ValidateURL("b", urlB); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	fetcher := fetch.NewClient(fetch.Options{
		MaxBodyBytes:  config.Default().Server.MaxBodyBytes,
		Timeout:       30 * time.Second,
		AllowFileURLs: true,
	})

	resA, err := fetcher.Fetch(ctx, urlA, nil, "")
	if err != nil {
		return err
	}
	resB, err := fetcher.Fetch(ctx, urlB, nil, "")
	if err != nil {
		return err
	}

	req := &diff.Request{A: resA, B: resB, Format: format}
	if differ.NeedsText() {
		if req.AText, err = fetch.DecodeBody(resA); err != nil {
			return err
		}
		if req.BText, err = fetch.DecodeBody(resB); err != nil {
			return err
		}
	}

	result, err := differ.Diff(req)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func runCheck(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if len(cfg.Monitor.Pages) == 0 {
		return fmt.Errorf("no tracked pages configured")
	}
	if cfg.Monitor.DBPath == "" {
		return fmt.Errorf("monitor.db_path is required")
	}

	store, err := storage.NewSQLiteStore(cfg.Monitor.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open version store: %w", err)
	}
	defer func() { _ = store.Close() }()

	publisher, err := newPublisher(&cfg.Monitor.NATS)
	if err != nil {
		return err
	}
	defer func() { _ = publisher.Close() }()

	svc, err := monitor.NewService(cfg.Monitor, store, newFetcher(cfg), publisher, nil)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	changes, err := svc.CaptureAll(ctx)
	if err != nil {
		return err
	}
	slog.Info("Capture round finished",
		"pages", len(cfg.Monitor.Pages),
		"changes", len(changes))

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(changes)
}

func runImport(configPath, cabinetID, archiveID string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.Archive.BaseURL == "" {
		return fmt.Errorf("archive.base_url is required for imports")
	}
	if cfg.Monitor.DBPath == "" {
		return fmt.Errorf("monitor.db_path is required for imports")
	}

	store, err := storage.NewSQLiteStore(cfg.Monitor.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open version store: %w", err)
	}
	defer func() { _ = store.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	client := archive.NewClient(&cfg.Archive)
	imported, err := client.ImportArchive(ctx, cabinetID, archiveID, store)
	if err != nil {
		return fmt.Errorf("import failed after %d versions: %w", imported, err)
	}

	slog.Info("Archive imported",
		"cabinet", cabinetID,
		"archive", archiveID,
		"versions", imported)
	return nil
}

func newFetcher(cfg *config.Config) *fetch.Client {
	return fetch.NewClient(fetch.Options{
		MaxBodyBytes:  cfg.Server.MaxBodyBytes,
		Timeout:       cfg.Server.FetchTimeout,
		AllowFileURLs: !cfg.IsProduction(),
	})
}

func newPublisher(cfg *config.NATSConfig) (monitor.Publisher, error) {
	if cfg == nil || !cfg.Enabled {
		return monitor.NoopPublisher{}, nil
	}
	publisher, err := monitor.NewNATSPublisher(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return publisher, nil
}
