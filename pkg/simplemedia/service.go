package simplemedia

import (
	"context"

	"github.com/google/uuid"
)

// Service defines the main interface for the simple-media library
type Service interface {
	// Space operations
	CreateSpace(ctx context.Context, req CreateSpaceRequest) (*Space, error)
	GetSpace(ctx context.Context, id uuid.UUID) (*Space, error)

	// Ingestion
	Ingest(ctx context.Context, req IngestRequest) (*ContentItem, error)
	IngestStream(ctx context.Context, req IngestRequest) <-chan IngestEvent
	IngestBytes(ctx context.Context, spaceID uuid.UUID, fileName, mimeType string, data []byte) (*ContentItem, error)

	// Derived content
	GenerateVariants(ctx context.Context, req GenerateVariantsRequest) ([]*ContentItem, error)
	TranscodeItem(ctx context.Context, itemID uuid.UUID) (*ContentItem, error)

	// Reads return items with a valid delivery link
	GetItem(ctx context.Context, id uuid.UUID) (*ContentItem, error)
	ListItems(ctx context.Context, filter ItemFilter) (*ItemPage, error)
	ResolveItems(ctx context.Context, items []*ContentItem) ([]*ContentItem, error)

	// RetireItem deactivates an item and returns its bytes to the space quota
	RetireItem(ctx context.Context, id uuid.UUID) (*ContentItem, error)
}
