// Package notify announces session and score events on NATS.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/okian/skyscraper/pkg/logger"
)

// Event types, also the last subject token.
const (
	SessionCreated = "session.created"
	HighScore      = "score.highscore"
)

// DefaultPrefix is the subject prefix when none is configured.
const DefaultPrefix = "skyscraper"

// Event is the announcement payload.
type Event struct {
	Type      string    `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	Title     string    `json:"title,omitempty"`
	Player    string    `json:"player,omitempty"`
	Score     float64   `json:"score,omitempty"`
	At        time.Time `json:"at"`
}

// Notifier publishes events. Implementations must be safe for concurrent use.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
	Close() error
}

// Subject returns the subject an event of type evType is published on.
func Subject(prefix, evType string) string {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return prefix + "." + evType
}

// Nop drops every event.
type Nop struct{}

// Notify implements Notifier.
func (Nop) Notify(context.Context, Event) error { return nil }

// Close implements Notifier.
func (Nop) Close() error { return nil }

// NATS publishes events as JSON on a NATS connection.
type NATS struct {
	nc     *nats.Conn
	prefix string
	log    logger.Logger
}

// Option applies a configuration option to NATS.
type Option func(*NATS)

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(n *NATS) {
		if l != nil {
			n.log = l
		}
	}
}

// Connect dials url. An empty url yields Nop.
func Connect(url, prefix string, opts ...Option) (Notifier, error) {
	if url == "" {
		return Nop{}, nil
	}
	n := &NATS{prefix: prefix, log: logger.Nop()}
	for _, opt := range opts {
		opt(n)
	}
	nc, err := nats.Connect(url,
		nats.Name("skyscraper"),
		nats.Timeout(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				n.log.Warn(context.Background(), "nats disconnected", logger.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			n.log.Info(context.Background(), "nats reconnected", logger.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", url, err)
	}
	n.nc = nc
	return n, nil
}

// Notify implements Notifier.
func (n *NATS) Notify(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := n.nc.Publish(Subject(n.prefix, ev.Type), data); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	return nil
}

// Close drains pending messages and closes the connection.
func (n *NATS) Close() error {
	return n.nc.Drain()
}
