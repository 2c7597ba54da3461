package simplemedia

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
)

// TranscodeItem converts a completed video item to HLS and records the
// playlist as a new item derived from it. The stream item is only created
// after every segment and the playlist are stored, and its size is the total
// of the uploaded files. A video with an active stream item is rejected with
// ErrStreamExists; retire the stream to transcode again.
func (s *service) TranscodeItem(ctx context.Context, itemID uuid.UUID) (*ContentItem, error) {
	if s.transcoder == nil {
		return nil, ErrTranscoderNotConfigured
	}

	source, err := s.repository.GetItem(ctx, itemID)
	if err != nil {
		return nil, &ItemError{ItemID: itemID, Op: "transcode", Err: err}
	}
	if !source.IsComplete() || source.IsDeactivated() {
		return nil, &ItemError{ItemID: source.ID, Op: "transcode", Err: ErrSourceNotReady}
	}
	if !source.IsVideo() {
		return nil, &ItemError{ItemID: source.ID, Op: "transcode", Err: fmt.Errorf("%w: source is %s, not a video", ErrInvalidRequest, source.MimeType)}
	}

	existing, err := s.repository.ListItems(ctx, ItemFilter{
		SourceItemID:   &source.ID,
		MimeTypePrefix: MimeTypeHLSPlaylist,
		OnlyComplete:   true,
		Limit:          1,
	})
	if err != nil {
		return nil, &ItemError{ItemID: source.ID, Op: "transcode", Err: err}
	}
	if existing.Total > 0 {
		return nil, &ItemError{ItemID: source.ID, Op: "transcode", Err: ErrStreamExists}
	}

	result, err := s.transcoder.Transcode(ctx, source.Key)
	if err != nil {
		s.logger.ErrorContext(ctx, "transcode failed", "item_id", source.ID, "key", source.Key, "err", err)
		return nil, &ItemError{ItemID: source.ID, Op: "transcode", Err: err}
	}

	sourceID := source.ID
	shell, err := s.createShell(ctx, &ContentItem{
		SpaceID:      source.SpaceID,
		FileName:     streamFileName(source.FileName),
		MimeType:     MimeTypeHLSPlaylist,
		SourceItemID: &sourceID,
	}, nil)
	if err != nil {
		return nil, &ItemError{ItemID: source.ID, Op: "record_stream", Err: err}
	}
	shell.item.Key = result.OutputKey
	if source.DurationSeconds != nil {
		d := *source.DurationSeconds
		shell.item.DurationSeconds = &d
	}

	stream, err := shell.finalize(ctx, result.TotalBytes)
	if err != nil && !errors.Is(err, ErrQuotaAdjustmentFailed) {
		return stream, err
	}
	s.metrics.IngestFinished("ok", result.TotalBytes)
	s.fire(ctx, "stream_created", stream.ID, func() error { return s.eventSink.StreamCreated(ctx, source, stream) })
	return stream, err
}

func streamFileName(sourceName string) string {
	base := strings.TrimSuffix(path.Base(sourceName), path.Ext(sourceName))
	if base == "" || base == "." || base == "/" {
		base = "stream"
	}
	return base + ".m3u8"
}
