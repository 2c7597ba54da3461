package simplemedia

import (
	"context"
	"errors"
	"log/slog"
)

// NoopEventSink is a no-operation implementation of EventSink
// Useful for production when you don't need event handling or for testing
type NoopEventSink struct{}

// NewNoopEventSink creates a new no-operation event sink
func NewNoopEventSink() EventSink {
	return &NoopEventSink{}
}

func (n *NoopEventSink) ItemCreated(ctx context.Context, item *ContentItem) error   { return nil }
func (n *NoopEventSink) ItemCompleted(ctx context.Context, item *ContentItem) error { return nil }
func (n *NoopEventSink) ItemFailed(ctx context.Context, item *ContentItem, cause error) error {
	return nil
}
func (n *NoopEventSink) ItemRetired(ctx context.Context, item *ContentItem) error { return nil }
func (n *NoopEventSink) StreamCreated(ctx context.Context, source, stream *ContentItem) error {
	return nil
}

// LoggingEventSink is an event sink that logs events but takes no other action
type LoggingEventSink struct {
	logger *slog.Logger
}

// NewLoggingEventSink creates a new logging event sink. A nil logger uses slog.Default().
func NewLoggingEventSink(logger *slog.Logger) EventSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingEventSink{logger: logger}
}

func (l *LoggingEventSink) ItemCreated(ctx context.Context, item *ContentItem) error {
	l.logger.InfoContext(ctx, "item created", "item_id", item.ID, "space_id", item.SpaceID, "mime_type", item.MimeType)
	return nil
}

func (l *LoggingEventSink) ItemCompleted(ctx context.Context, item *ContentItem) error {
	l.logger.InfoContext(ctx, "item completed", "item_id", item.ID, "space_id", item.SpaceID, "size_bytes", item.SizeBytes)
	return nil
}

func (l *LoggingEventSink) ItemFailed(ctx context.Context, item *ContentItem, cause error) error {
	l.logger.WarnContext(ctx, "item failed", "item_id", item.ID, "space_id", item.SpaceID, "completion", item.UploadCompletion, "err", cause)
	return nil
}

func (l *LoggingEventSink) ItemRetired(ctx context.Context, item *ContentItem) error {
	l.logger.InfoContext(ctx, "item retired", "item_id", item.ID, "space_id", item.SpaceID)
	return nil
}

func (l *LoggingEventSink) StreamCreated(ctx context.Context, source, stream *ContentItem) error {
	l.logger.InfoContext(ctx, "stream created", "item_id", stream.ID, "source_item_id", source.ID, "key", stream.Key)
	return nil
}

// MultiEventSink delivers every event to each sink in order and joins their errors.
type MultiEventSink []EventSink

func (m MultiEventSink) ItemCreated(ctx context.Context, item *ContentItem) error {
	return m.each(func(s EventSink) error { return s.ItemCreated(ctx, item) })
}

func (m MultiEventSink) ItemCompleted(ctx context.Context, item *ContentItem) error {
	return m.each(func(s EventSink) error { return s.ItemCompleted(ctx, item) })
}

func (m MultiEventSink) ItemFailed(ctx context.Context, item *ContentItem, cause error) error {
	return m.each(func(s EventSink) error { return s.ItemFailed(ctx, item, cause) })
}

func (m MultiEventSink) ItemRetired(ctx context.Context, item *ContentItem) error {
	return m.each(func(s EventSink) error { return s.ItemRetired(ctx, item) })
}

func (m MultiEventSink) StreamCreated(ctx context.Context, source, stream *ContentItem) error {
	return m.each(func(s EventSink) error { return s.StreamCreated(ctx, source, stream) })
}

func (m MultiEventSink) each(fn func(EventSink) error) error {
	var errs []error
	for _, s := range m {
		if err := fn(s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
