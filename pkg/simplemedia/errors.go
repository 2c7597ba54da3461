package simplemedia

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Error types
var (
	// ErrNotFound is the parent of every lookup failure
	ErrNotFound = errors.New("not found")

	// ErrItemNotFound indicates a content item was not found
	ErrItemNotFound = fmt.Errorf("content item %w", ErrNotFound)

	// ErrSpaceNotFound indicates a space was not found
	ErrSpaceNotFound = fmt.Errorf("space %w", ErrNotFound)

	// ErrObjectNotFound indicates a blob store object was not found
	ErrObjectNotFound = fmt.Errorf("object %w", ErrNotFound)

	// ErrSourceNotReady indicates the source item has not finished uploading
	ErrSourceNotReady = fmt.Errorf("source item not ready: %w", ErrNotFound)

	// ErrStoreUnavailable indicates a blob store I/O failure
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrConversion indicates the external transcoder failed
	ErrConversion = errors.New("conversion failed")

	// ErrQuotaAdjustmentFailed indicates the space ledger could not be updated
	ErrQuotaAdjustmentFailed = errors.New("quota adjustment failed")

	// ErrSourceUnavailable indicates the transcode input is missing or unreadable
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrGenerationFailed indicates the external image generation call failed
	ErrGenerationFailed = errors.New("variant generation failed")

	// ErrEmptyFile indicates an ingestion with no bytes
	ErrEmptyFile = errors.New("file is empty")

	// ErrInvalidRequest indicates malformed input
	ErrInvalidRequest = errors.New("invalid request")

	// ErrProviderNotFound indicates no variant generator is registered under the requested name
	ErrProviderNotFound = fmt.Errorf("variant provider %w", ErrNotFound)

	// ErrAlreadyRetired indicates the item was deactivated before
	ErrAlreadyRetired = errors.New("item already retired")

	// ErrStreamExists indicates the video already has an active stream item
	ErrStreamExists = errors.New("stream already exists")

	// ErrTranscoderNotConfigured indicates no transcode worker was supplied
	ErrTranscoderNotConfigured = errors.New("transcoder not configured")
)

// ItemError represents an error related to content item operations
type ItemError struct {
	ItemID uuid.UUID
	Op     string
	Err    error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("item operation %s failed for item %s: %v", e.Op, e.ItemID, e.Err)
}

func (e *ItemError) Unwrap() error {
	return e.Err
}

// StorageError represents an error related to blob store operations
type StorageError struct {
	Backend string
	Key     string
	Op      string
	Err     error
}

func (e *StorageError) Error() string {
	if e.Backend == "" {
		return fmt.Sprintf("storage operation %s failed for key %s: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("storage operation %s failed for key %s on backend %s: %v", e.Op, e.Key, e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// QuotaError represents a failed ledger adjustment
type QuotaError struct {
	SpaceID uuid.UUID
	Delta   int64
	Err     error
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("adjust space %s by %d: %v", e.SpaceID, e.Delta, e.Err)
}

func (e *QuotaError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match ErrQuotaAdjustmentFailed for every QuotaError.
func (e *QuotaError) Is(target error) bool {
	return target == ErrQuotaAdjustmentFailed
}

// ConversionError carries the transcoder's diagnostic output.
type ConversionError struct {
	Diagnostic string
	Err        error
}

func (e *ConversionError) Error() string {
	msg := "conversion failed"
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Diagnostic != "" {
		msg += ": " + e.Diagnostic
	}
	return msg
}

func (e *ConversionError) Unwrap() error {
	return e.Err
}

func (e *ConversionError) Is(target error) bool {
	return target == ErrConversion
}

// VariantFailure describes one generated URL that could not be ingested.
type VariantFailure struct {
	URL string
	Err error
}

// VariantBatchError lists the variants of a batch that failed. Successful
// siblings are returned alongside it.
type VariantBatchError struct {
	SourceItemID uuid.UUID
	Failures     []VariantFailure
}

func (e *VariantBatchError) Error() string {
	if len(e.Failures) == 1 {
		return fmt.Sprintf("variant of %s failed: %s: %v", e.SourceItemID, e.Failures[0].URL, e.Failures[0].Err)
	}
	return fmt.Sprintf("%d variants of %s failed", len(e.Failures), e.SourceItemID)
}

func (e *VariantBatchError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}
