package simplemedia

import (
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Completion bounds for ContentItem.UploadCompletion.
const (
	CompletionPending  = 0
	CompletionComplete = 100
)

// MIME type recorded for HLS stream items produced by transcoding.
const MimeTypeHLSPlaylist = "application/vnd.apple.mpegurl"

// ContentItem represents one stored media asset and its processing state.
//
// ID is uuid.Nil until the item has been persisted once. UploadCompletion only
// grows while UploadError is nil, and SizeBytes is fixed once the item reaches
// CompletionComplete.
type ContentItem struct {
	ID                uuid.UUID  `json:"id"`
	SpaceID           uuid.UUID  `json:"space_id"`
	Key               string     `json:"key,omitempty"`
	FileName          string     `json:"file_name,omitempty"`
	MimeType          string     `json:"mime_type"`
	SizeBytes         int64      `json:"size_bytes"`
	Location          string     `json:"location,omitempty"`
	LocationExpiresAt *time.Time `json:"location_expires_at,omitempty"`
	UploadCompletion  int        `json:"upload_completion"`
	UploadError       *string    `json:"upload_error,omitempty"`
	IsAIGenerated     bool       `json:"is_ai_generated"`
	SourceItemID      *uuid.UUID `json:"source_item_id,omitempty"`
	Width             *int       `json:"width,omitempty"`
	Height            *int       `json:"height,omitempty"`
	DurationSeconds   *float64   `json:"duration_seconds,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	DeactivatedAt     *time.Time `json:"deactivated_at,omitempty"`
}

// Persisted reports whether the item has been saved at least once.
func (c *ContentItem) Persisted() bool {
	return c.ID != uuid.Nil
}

// IsComplete reports whether the upload finished successfully.
func (c *ContentItem) IsComplete() bool {
	return c.UploadCompletion >= CompletionComplete && c.UploadError == nil
}

// IsFailed reports whether the upload terminated with an error.
func (c *ContentItem) IsFailed() bool {
	return c.UploadError != nil
}

// IsDeactivated reports whether the item has been retired.
func (c *ContentItem) IsDeactivated() bool {
	return c.DeactivatedAt != nil
}

// IsImage reports whether the MIME type is an image type.
func (c *ContentItem) IsImage() bool {
	return IsImageMimeType(c.MimeType)
}

// IsVideo reports whether the MIME type is a video type.
func (c *ContentItem) IsVideo() bool {
	return IsVideoMimeType(c.MimeType)
}

// LinkValidAt reports whether the cached location can still be handed out at now.
func (c *ContentItem) LinkValidAt(now time.Time) bool {
	if c.Location == "" || c.LocationExpiresAt == nil {
		return false
	}
	return c.LocationExpiresAt.After(now)
}

// Clone returns a deep copy of the item.
func (c *ContentItem) Clone() *ContentItem {
	if c == nil {
		return nil
	}
	cp := *c
	if c.LocationExpiresAt != nil {
		t := *c.LocationExpiresAt
		cp.LocationExpiresAt = &t
	}
	if c.UploadError != nil {
		s := *c.UploadError
		cp.UploadError = &s
	}
	if c.SourceItemID != nil {
		id := *c.SourceItemID
		cp.SourceItemID = &id
	}
	if c.Width != nil {
		w := *c.Width
		cp.Width = &w
	}
	if c.Height != nil {
		h := *c.Height
		cp.Height = &h
	}
	if c.DurationSeconds != nil {
		d := *c.DurationSeconds
		cp.DurationSeconds = &d
	}
	if c.DeactivatedAt != nil {
		t := *c.DeactivatedAt
		cp.DeactivatedAt = &t
	}
	return &cp
}

// Space is an account-scoped storage boundary with its own quota.
type Space struct {
	ID        uuid.UUID `json:"id"`
	OwnerID   uuid.UUID `json:"owner_id"`
	UsedBytes int64     `json:"used_bytes"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SignedLink is a time-limited URL granting read access to a stored object.
type SignedLink struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ObjectMeta contains metadata about an object in a blob store
type ObjectMeta struct {
	Key         string
	Size        int64
	ContentType string
	UpdatedAt   time.Time
	ETag        string
	Metadata    map[string]string
}

// ByteRange selects an inclusive range of bytes. End < 0 means until the end of the object.
type ByteRange struct {
	Start int64
	End   int64
}

// HeaderValue renders the range in HTTP Range header form.
func (r ByteRange) HeaderValue() string {
	if r.End < 0 {
		return "bytes=" + strconv.FormatInt(r.Start, 10) + "-"
	}
	return "bytes=" + strconv.FormatInt(r.Start, 10) + "-" + strconv.FormatInt(r.End, 10)
}

// BlobObject is a readable object returned by BlobStore.Get. Callers must close Body.
type BlobObject struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64
}

// PutParams contains parameters for writing an object
type PutParams struct {
	ContentType string
	// Size is the declared length of the stream, or -1 when unknown.
	Size     int64
	Metadata map[string]string
}

// TranscodeResult describes the files a transcode run left in the blob store.
type TranscodeResult struct {
	SourceKey  string
	OutputKey  string
	Prefix     string
	Files      []string
	TotalBytes int64
}

// ItemFilter selects content items for listing.
type ItemFilter struct {
	SpaceID            *uuid.UUID
	SourceItemID       *uuid.UUID
	MimeTypePrefix     string
	OnlyComplete       bool
	IncludeDeactivated bool
	Limit              int
	Offset             int
	SortBy             string // "created_at" (default), "updated_at", "size_bytes"
	SortDesc           bool
}

// ItemPage is one page of ListItems results.
type ItemPage struct {
	Items []*ContentItem `json:"items"`
	Total int            `json:"total"`
}

// IsImageMimeType reports whether mimeType is image/*.
func IsImageMimeType(mimeType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(mimeType)), "image/")
}

// IsVideoMimeType reports whether mimeType is video/*.
func IsVideoMimeType(mimeType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(mimeType)), "video/")
}
