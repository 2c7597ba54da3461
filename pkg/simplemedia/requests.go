package simplemedia

import (
	"io"

	"github.com/google/uuid"
)

// IngestRequest contains parameters for ingesting one file
type IngestRequest struct {
	SpaceID  uuid.UUID
	FileName string
	MimeType string
	Body     io.Reader
	// Size is the declared byte length of Body and must be positive.
	Size int64

	IsAIGenerated bool
	SourceItemID  *uuid.UUID
}

// GenerateVariantsRequest contains parameters for AI variant fan-out
type GenerateVariantsRequest struct {
	SourceItemID uuid.UUID
	Prompt       string
	Count        int
	Provider     string
}

// GenerateRequest is passed to a VariantGenerator
type GenerateRequest struct {
	Image    []byte
	MimeType string
	Prompt   string
	Count    int
	SpaceID  uuid.UUID
}

// CreateSpaceRequest contains parameters for creating a space
type CreateSpaceRequest struct {
	ID      uuid.UUID
	OwnerID uuid.UUID
}
