package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NATSPublisher publishes events to JetStream under {prefix}.{event type}.
type NATSPublisher struct {
	conn   *nats.Conn
	js     jetstream.JetStream
	prefix string
	logger *slog.Logger
}

// NewNATSPublisher connects to url and ensures the events stream exists.
func NewNATSPublisher(ctx context.Context, url, prefix string, logger *slog.Logger) (*NATSPublisher, error) {
	conn, err := nats.Connect(url, nats.Name("odyssey-ledger"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("events: connect nats: %w", err)
	}
	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("events: jetstream: %w", err)
	}
	p := &NATSPublisher{conn: conn, js: js, prefix: prefix, logger: logger}
	if err := p.ensureStream(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return p, nil
}

func (p *NATSPublisher) ensureStream(ctx context.Context) error {
	_, err := p.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       "LEDGER_EVENTS",
		Subjects:   []string{p.prefix + ".>"},
		Storage:    jetstream.FileStorage,
		Retention:  jetstream.LimitsPolicy,
		MaxAge:     7 * 24 * time.Hour,
		Duplicates: 10 * time.Minute,
	})
	if err != nil {
		return fmt.Errorf("events: ensure stream: %w", err)
	}
	return nil
}

// Subject returns the subject an event type is published on.
func (p *NATSPublisher) Subject(eventType string) string {
	return p.prefix + "." + eventType
}

// Publish sends e with its id as the JetStream dedupe key.
func (p *NATSPublisher) Publish(ctx context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("events: marshal: %w", err)
	}
	if _, err := p.js.Publish(ctx, p.Subject(e.Type), data, jetstream.WithMsgID(e.ID)); err != nil {
		return fmt.Errorf("events: publish %s: %w", e.Type, err)
	}
	if p.logger != nil {
		p.logger.Debug("event published", slog.String("type", e.Type), slog.String("id", e.ID))
	}
	return nil
}

// Close drains the connection.
func (p *NATSPublisher) Close() error {
	if p == nil || p.conn == nil {
		return nil
	}
	return p.conn.Drain()
}
