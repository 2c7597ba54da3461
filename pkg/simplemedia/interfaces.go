package simplemedia

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
)

// BlobStore defines the interface for durable binary storage backends
type BlobStore interface {
	// Put streams r to key. Errors wrap ErrStoreUnavailable.
	Put(ctx context.Context, key string, r io.Reader, params PutParams) (*ObjectMeta, error)

	// Get opens key, optionally restricted to a byte range. Errors wrap
	// ErrObjectNotFound or ErrStoreUnavailable.
	Get(ctx context.Context, key string, rng *ByteRange) (*BlobObject, error)

	// Stat returns metadata for key without reading the body
	Stat(ctx context.Context, key string) (*ObjectMeta, error)

	// Delete removes key
	Delete(ctx context.Context, key string) error
}

// LinkSigner issues time-limited delivery URLs for stored objects
type LinkSigner interface {
	Sign(ctx context.Context, key string, ttl time.Duration) (*SignedLink, error)
}

// Repository defines the interface for content item persistence
type Repository interface {
	// SaveItem creates the item when its ID is uuid.Nil, otherwise updates it by ID.
	// The ID and timestamps are written back into item.
	SaveItem(ctx context.Context, item *ContentItem) error
	GetItem(ctx context.Context, id uuid.UUID) (*ContentItem, error)
	ListItems(ctx context.Context, filter ItemFilter) (*ItemPage, error)
	DeleteItem(ctx context.Context, id uuid.UUID) error

	// UpdateProgress stores completion only when it is greater than the
	// persisted value and no upload error is recorded. It reports whether the
	// update applied.
	UpdateProgress(ctx context.Context, id uuid.UUID, completion int) (bool, error)

	// UpdateLocation caches a freshly signed delivery link
	UpdateLocation(ctx context.Context, id uuid.UUID, location string, expiresAt time.Time) error

	// DeactivateItem sets the deactivation instant. Only the first call for an
	// item succeeds; later calls return ErrAlreadyRetired.
	DeactivateItem(ctx context.Context, id uuid.UUID, at time.Time) (*ContentItem, error)
}

// SpaceStore persists spaces and owns the atomic used-bytes counter
type SpaceStore interface {
	CreateSpace(ctx context.Context, space *Space) error
	GetSpace(ctx context.Context, id uuid.UUID) (*Space, error)

	// IncrementUsedBytes adds delta to UsedBytes in a single atomic step and
	// returns the new total.
	IncrementUsedBytes(ctx context.Context, id uuid.UUID, delta int64) (int64, error)
}

// VariantGenerator produces derivative images through an external service
type VariantGenerator interface {
	// Generate returns the external URLs of the produced images.
	Generate(ctx context.Context, req GenerateRequest) ([]string, error)
}

// DurationProber measures the playback length of a stored video
type DurationProber interface {
	ProbeDuration(ctx context.Context, key string) (float64, error)
}

// StreamTranscoder converts a stored video into a segmented stream under a
// derived key prefix
type StreamTranscoder interface {
	DurationProber
	Transcode(ctx context.Context, sourceKey string) (*TranscodeResult, error)
}

// EventSink defines the interface for lifecycle event delivery
type EventSink interface {
	// ItemCreated is fired after the pending shell is persisted
	ItemCreated(ctx context.Context, item *ContentItem) error

	// ItemCompleted is fired after an item reaches completion
	ItemCompleted(ctx context.Context, item *ContentItem) error

	// ItemFailed is fired when an upload terminates with an error
	ItemFailed(ctx context.Context, item *ContentItem, cause error) error

	// ItemRetired is fired after an item is deactivated
	ItemRetired(ctx context.Context, item *ContentItem) error

	// StreamCreated is fired after a transcoded stream is recorded
	StreamCreated(ctx context.Context, source, stream *ContentItem) error
}

// Metrics receives counters from the service. A nil Metrics disables reporting.
type Metrics interface {
	IngestFinished(status string, bytes int64)
	QuotaAdjusted(status string)
	LinkRefreshed()
}

// Clock returns the current instant. Tests substitute a fixed clock.
type Clock func() time.Time
