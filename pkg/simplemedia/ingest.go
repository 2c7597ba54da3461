package simplemedia

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/google/uuid"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/tendant/simple-media/pkg/simplemedia/objectkey"
)

const defaultMimeType = "application/octet-stream"

// Ingest moves one file into the blob store and returns the completed item.
//
// When the blob write fails the persisted item carries UploadError and the
// returned error wraps ErrStoreUnavailable. When only the quota charge fails
// the completed item is returned together with an error matching
// ErrQuotaAdjustmentFailed.
func (s *service) Ingest(ctx context.Context, req IngestRequest) (*ContentItem, error) {
	return s.ingest(ctx, req, nil)
}

// IngestBytes ingests an in-memory payload
func (s *service) IngestBytes(ctx context.Context, spaceID uuid.UUID, fileName, mimeType string, data []byte) (*ContentItem, error) {
	return s.Ingest(ctx, IngestRequest{
		SpaceID:  spaceID,
		FileName: fileName,
		MimeType: mimeType,
		Body:     bytes.NewReader(data),
		Size:     int64(len(data)),
	})
}

// IngestStream runs Ingest in the background and streams its progress. The
// channel is closed after the terminal event. Callers must drain it until it
// closes or cancel ctx; after cancellation pending events may be dropped.
func (s *service) IngestStream(ctx context.Context, req IngestRequest) <-chan IngestEvent {
	events := make(chan IngestEvent, 8)
	go func() {
		defer close(events)
		emit := func(ev IngestEvent) {
			select {
			case events <- ev:
			case <-ctx.Done():
			}
		}
		item, err := s.ingest(ctx, req, emit)
		emit(terminalEvent(item, err))
	}()
	return events
}

func terminalEvent(item *ContentItem, err error) IngestEvent {
	ev := IngestEvent{Type: IngestFailed, Item: item, Err: err}
	if item != nil {
		ev.ItemID = item.ID
		ev.Completion = item.UploadCompletion
		if err == nil || errors.Is(err, ErrQuotaAdjustmentFailed) {
			ev.Type = IngestCompleted
		}
	}
	return ev
}

func (s *service) ingest(ctx context.Context, req IngestRequest, emit emitFunc) (*ContentItem, error) {
	if req.Size <= 0 {
		return nil, ErrEmptyFile
	}
	if req.Body == nil {
		return nil, fmt.Errorf("%w: body is required", ErrInvalidRequest)
	}
	if req.SpaceID == uuid.Nil {
		return nil, fmt.Errorf("%w: space id is required", ErrInvalidRequest)
	}
	if _, err := s.spaces.GetSpace(ctx, req.SpaceID); err != nil {
		return nil, fmt.Errorf("ingest into space %s: %w", req.SpaceID, err)
	}

	mimeType := strings.TrimSpace(req.MimeType)
	if mimeType == "" {
		mimeType = defaultMimeType
	}

	shell, err := s.createShell(ctx, &ContentItem{
		SpaceID:       req.SpaceID,
		FileName:      req.FileName,
		MimeType:      mimeType,
		IsAIGenerated: req.IsAIGenerated,
		SourceItemID:  req.SourceItemID,
	}, emit)
	if err != nil {
		s.metrics.IngestFinished("error", 0)
		return nil, &ItemError{Op: "create", Err: err}
	}
	item := shell.item

	item.Key = s.keys.GenerateKey(item.SpaceID, item.ID, &objectkey.KeyMetadata{
		FileName:     item.FileName,
		ContentType:  item.MimeType,
		IsOriginal:   !item.IsAIGenerated,
		Derivation:   derivationOf(item),
		SourceItemID: item.SourceItemID,
	})

	body := &countingReader{r: req.Body, notify: shell.observe(ctx, req.Size)}
	_, err = s.blobStore.Put(ctx, item.Key, body, PutParams{
		ContentType: item.MimeType,
		Size:        req.Size,
		Metadata: map[string]string{
			"item-id":  item.ID.String(),
			"space-id": item.SpaceID.String(),
		},
	})
	if err != nil {
		if !errors.Is(err, ErrStoreUnavailable) {
			err = fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
		}
		err = &StorageError{Key: item.Key, Op: "put", Err: err}
		shell.fail(ctx, err)
		s.metrics.IngestFinished("error", body.n)
		s.logger.ErrorContext(ctx, "ingest upload failed", "item_id", item.ID, "space_id", item.SpaceID, "completion", item.UploadCompletion, "err", err)
		return item, err
	}

	if body.n == 0 {
		err := &ItemError{ItemID: item.ID, Op: "ingest", Err: ErrEmptyFile}
		shell.fail(ctx, err)
		if derr := s.blobStore.Delete(ctx, item.Key); derr != nil {
			s.logger.WarnContext(ctx, "remove empty blob failed", "item_id", item.ID, "key", item.Key, "err", derr)
		}
		s.metrics.IngestFinished("error", 0)
		return item, err
	}

	if body.n != req.Size {
		s.logger.DebugContext(ctx, "declared size differs from bytes written", "item_id", item.ID, "declared", req.Size, "written", body.n)
	}

	s.extractMetadata(ctx, item)

	item, err = shell.finalize(ctx, body.n)
	if err != nil && !errors.Is(err, ErrQuotaAdjustmentFailed) {
		s.metrics.IngestFinished("error", body.n)
		return item, err
	}
	s.metrics.IngestFinished("ok", body.n)
	return item, err
}

func derivationOf(item *ContentItem) string {
	switch {
	case item.IsAIGenerated:
		return objectkey.DerivationVariant
	case item.MimeType == MimeTypeHLSPlaylist:
		return objectkey.DerivationStream
	default:
		return ""
	}
}

// extractMetadata fills dimension fields. Failures leave the fields nil.
func (s *service) extractMetadata(ctx context.Context, item *ContentItem) {
	switch {
	case item.IsImage():
		w, h, err := s.imageDimensions(ctx, item.Key)
		if err != nil {
			s.logger.DebugContext(ctx, "image metadata unavailable", "item_id", item.ID, "err", err)
			return
		}
		item.Width, item.Height = &w, &h
	case item.IsVideo():
		if s.prober == nil {
			return
		}
		d, err := s.prober.ProbeDuration(ctx, item.Key)
		if err != nil {
			s.logger.DebugContext(ctx, "video duration unavailable", "item_id", item.ID, "err", err)
			return
		}
		item.DurationSeconds = &d
	}
}

// imageDimensions decodes the image header from a ranged read of the stored object.
func (s *service) imageDimensions(ctx context.Context, key string) (int, int, error) {
	obj, err := s.blobStore.Get(ctx, key, &ByteRange{Start: 0, End: s.headerProbeBytes - 1})
	if err != nil {
		return 0, 0, err
	}
	defer obj.Body.Close()

	cfg, _, err := image.DecodeConfig(obj.Body)
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}
