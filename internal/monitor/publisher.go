package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/pagediff/pagediff/internal/config"
	"github.com/pagediff/pagediff/internal/logfields"
)

// Publisher delivers change events to interested consumers.
type Publisher interface {
	PublishPageChanged(ctx context.Context, event *PageChangedEvent) error
	Close() error
}

// NoopPublisher discards events (default when NATS is not configured).
type NoopPublisher struct{}

func (NoopPublisher) PublishPageChanged(context.Context, *PageChangedEvent) error { return nil }
func (NoopPublisher) Close() error                                                { return nil }

// NATSPublisher publishes change events to a JetStream stream.
type NATSPublisher struct {
	conn    *nats.Conn
	js      jetstream.JetStream
	subject string
}

// NewNATSPublisher connects to NATS and ensures the change stream exists.
func NewNATSPublisher(cfg *config.NATSConfig) (*NATSPublisher, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nats config is required")
	}
	if !cfg.Enabled {
		return nil, fmt.Errorf("nats publishing is disabled")
	}

	conn, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	p := &NATSPublisher{
		conn:    conn,
		js:      js,
		subject: cfg.Subject,
	}

	if err := p.ensureStream(cfg.Stream); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ensure change stream: %w", err)
	}

	slog.Info("NATS publisher initialized for change events",
		"url", cfg.URL,
		"subject", cfg.Subject,
		"stream", cfg.Stream)

	return p, nil
}

// ensureStream creates or gets the JetStream stream holding change events.
func (p *NATSPublisher) ensureStream(name string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := p.js.Stream(ctx, name)
	if err == nil {
		return nil
	}

	_, err = p.js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        name,
		Description: "Page change events",
		Subjects:    []string{p.subject},
		MaxBytes:    100 * 1024 * 1024, // 100MB max
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	slog.Info("Created change event stream", "stream", name)
	return nil
}

// PublishPageChanged publishes a page change event to NATS.
func (p *NATSPublisher) PublishPageChanged(ctx context.Context, event *PageChangedEvent) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	event.Timestamp = time.Now()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	_, err = p.js.Publish(ctx, p.subject, data)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	slog.Debug("Published page change event",
		logfields.Page(event.PageURL),
		logfields.VersionID(event.ToVersionID))

	return nil
}

// Close closes the NATS connection.
func (p *NATSPublisher) Close() error {
	if p.conn != nil {
		p.conn.Close()
	}
	return nil
}
