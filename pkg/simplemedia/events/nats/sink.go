// Package nats publishes content lifecycle events to NATS JetStream.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/tendant/simple-media/pkg/simplemedia"
)

const defaultSubjectPrefix = "simplemedia"

// Event types, also used as subject suffixes
const (
	EventItemCreated   = "item.created"
	EventItemCompleted = "item.completed"
	EventItemFailed    = "item.failed"
	EventItemRetired   = "item.retired"
	EventStreamCreated = "stream.created"
)

// Publisher is the part of jetstream.JetStream the sink uses
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// Event is the JSON envelope of every published message
type Event struct {
	Type         string                   `json:"type"`
	ItemID       uuid.UUID                `json:"item_id"`
	SpaceID      uuid.UUID                `json:"space_id"`
	SourceItemID *uuid.UUID               `json:"source_item_id,omitempty"`
	OccurredAt   time.Time                `json:"occurred_at"`
	Error        string                   `json:"error,omitempty"`
	Item         *simplemedia.ContentItem `json:"item"`
}

// Sink implements simplemedia.EventSink
type Sink struct {
	js     Publisher
	prefix string
	now    func() time.Time
}

var _ simplemedia.EventSink = (*Sink)(nil)

type Option func(*Sink)

// WithSubjectPrefix sets the first subject token. Defaults to "simplemedia".
func WithSubjectPrefix(prefix string) Option {
	return func(s *Sink) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Sink) {
		if now != nil {
			s.now = now
		}
	}
}

func New(js Publisher, opts ...Option) *Sink {
	s := &Sink{
		js:     js,
		prefix: defaultSubjectPrefix,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config describes the NATS connection
type Config struct {
	URL           string
	Name          string
	SubjectPrefix string
	// Stream, when set, is created or updated to capture every subject under the prefix.
	Stream string
}

// Connection owns the NATS connection behind a Sink
type Connection struct {
	conn *nats.Conn
	Sink *Sink
}

// Connect dials NATS, opens JetStream and returns a ready sink
func Connect(ctx context.Context, cfg Config, logger *slog.Logger) (*Connection, error) {
	if logger == nil {
		logger = slog.Default()
	}
	name := cfg.Name
	if name == "" {
		name = "simple-media"
	}
	conn, err := nats.Connect(cfg.URL,
		nats.Name(name),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("NATS disconnected", "err", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect to JetStream: %w", err)
	}

	sink := New(js, WithSubjectPrefix(cfg.SubjectPrefix))
	if cfg.Stream != "" {
		_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
			Name:     cfg.Stream,
			Subjects: []string{sink.prefix + ".>"},
		})
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to create stream %s: %w", cfg.Stream, err)
		}
	}
	return &Connection{conn: conn, Sink: sink}, nil
}

// Close drains pending publishes and closes the connection
func (c *Connection) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Drain()
}

func (s *Sink) ItemCreated(ctx context.Context, item *simplemedia.ContentItem) error {
	return s.publish(ctx, EventItemCreated, item, nil)
}

func (s *Sink) ItemCompleted(ctx context.Context, item *simplemedia.ContentItem) error {
	return s.publish(ctx, EventItemCompleted, item, nil)
}

func (s *Sink) ItemFailed(ctx context.Context, item *simplemedia.ContentItem, cause error) error {
	return s.publish(ctx, EventItemFailed, item, cause)
}

func (s *Sink) ItemRetired(ctx context.Context, item *simplemedia.ContentItem) error {
	return s.publish(ctx, EventItemRetired, item, nil)
}

func (s *Sink) StreamCreated(ctx context.Context, source, stream *simplemedia.ContentItem) error {
	return s.publish(ctx, EventStreamCreated, stream, nil)
}

// Subject returns the subject events of eventType are published on
func (s *Sink) Subject(eventType string) string {
	return s.prefix + "." + eventType
}

func (s *Sink) publish(ctx context.Context, eventType string, item *simplemedia.ContentItem, cause error) error {
	ev := Event{
		Type:         eventType,
		ItemID:       item.ID,
		SpaceID:      item.SpaceID,
		SourceItemID: item.SourceItemID,
		OccurredAt:   s.now(),
		Item:         item,
	}
	if cause != nil {
		ev.Error = cause.Error()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", eventType, err)
	}

	// one message per item and event type; redeliveries are deduplicated
	msgID := eventType + ":" + item.ID.String()
	if _, err := s.js.Publish(ctx, s.Subject(eventType), data, jetstream.WithMsgID(msgID)); err != nil {
		return fmt.Errorf("publish %s: %w", eventType, err)
	}
	return nil
}
