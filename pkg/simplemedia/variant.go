package simplemedia

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"path"
	"strings"
	"sync"

	"github.com/nfnt/resize"
	"golang.org/x/sync/errgroup"
)

// Downloader fetches a generated variant from an external URL
type Downloader interface {
	Download(ctx context.Context, url string) (*Download, error)
}

// Download is a fully buffered remote file. len(Data) is the authoritative size.
type Download struct {
	URL      string
	MimeType string
	Data     []byte
}

// GenerateVariants asks a provider for derivative images of a completed image
// item and ingests each result as a new AI-generated item in the same space.
//
// Variants succeed or fail independently. Successful items are returned
// together with a *VariantBatchError when some variants failed.
func (s *service) GenerateVariants(ctx context.Context, req GenerateVariantsRequest) ([]*ContentItem, error) {
	if req.Count <= 0 {
		req.Count = 1
	}
	gen, provider, err := s.generator(req.Provider)
	if err != nil {
		return nil, err
	}

	source, err := s.repository.GetItem(ctx, req.SourceItemID)
	if err != nil {
		return nil, &ItemError{ItemID: req.SourceItemID, Op: "generate_variants", Err: err}
	}
	if !source.IsComplete() || source.IsDeactivated() {
		return nil, &ItemError{ItemID: source.ID, Op: "generate_variants", Err: ErrSourceNotReady}
	}
	if !source.IsImage() {
		return nil, &ItemError{ItemID: source.ID, Op: "generate_variants", Err: fmt.Errorf("%w: source is %s, not an image", ErrInvalidRequest, source.MimeType)}
	}

	data, mimeType, err := s.readVariantSource(ctx, source)
	if err != nil {
		return nil, &ItemError{ItemID: source.ID, Op: "generate_variants", Err: err}
	}

	urls, err := gen.Generate(ctx, GenerateRequest{
		Image:    data,
		MimeType: mimeType,
		Prompt:   req.Prompt,
		Count:    req.Count,
		SpaceID:  source.SpaceID,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: provider %s: %w", ErrGenerationFailed, provider, err)
	}
	if len(urls) == 0 {
		return nil, fmt.Errorf("%w: provider %s returned no images", ErrGenerationFailed, provider)
	}

	s.logger.InfoContext(ctx, "variants generated", "item_id", source.ID, "provider", provider, "count", len(urls))

	var (
		mu       sync.Mutex
		failures []VariantFailure
		items    = make([]*ContentItem, len(urls))
		g        errgroup.Group
	)
	g.SetLimit(s.variantConcurrency)
	for i, u := range urls {
		g.Go(func() error {
			item, err := s.ingestVariant(ctx, source, i, u)
			if item != nil && item.IsComplete() {
				items[i] = item
			}
			if err != nil {
				s.logger.WarnContext(ctx, "variant ingest failed", "item_id", source.ID, "url", u, "err", err)
				mu.Lock()
				failures = append(failures, VariantFailure{URL: u, Err: err})
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	created := make([]*ContentItem, 0, len(items))
	for _, item := range items {
		if item != nil {
			created = append(created, item)
		}
	}
	if len(failures) > 0 {
		return created, &VariantBatchError{SourceItemID: source.ID, Failures: failures}
	}
	return created, nil
}

func (s *service) ingestVariant(ctx context.Context, source *ContentItem, index int, url string) (*ContentItem, error) {
	dl, err := s.downloader.Download(ctx, url)
	if err != nil {
		return nil, err
	}
	sourceID := source.ID
	return s.ingest(ctx, IngestRequest{
		SpaceID:       source.SpaceID,
		FileName:      variantFileName(source.FileName, index, dl.MimeType),
		MimeType:      dl.MimeType,
		Body:          bytes.NewReader(dl.Data),
		Size:          int64(len(dl.Data)),
		IsAIGenerated: true,
		SourceItemID:  &sourceID,
	}, nil)
}

// readVariantSource loads the source image and bounds its longest side to
// maxVariantDimension. The original bytes pass through when they cannot be
// decoded or already fit.
func (s *service) readVariantSource(ctx context.Context, source *ContentItem) ([]byte, string, error) {
	obj, err := s.blobStore.Get(ctx, source.Key, nil)
	if err != nil {
		return nil, "", err
	}
	defer obj.Body.Close()

	data, err := io.ReadAll(obj.Body)
	if err != nil {
		return nil, "", fmt.Errorf("%w: read source: %w", ErrStoreUnavailable, err)
	}

	max := s.maxVariantDimension
	if max == 0 {
		return data, source.MimeType, nil
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		s.logger.DebugContext(ctx, "variant source not decodable, sending original", "item_id", source.ID, "err", err)
		return data, source.MimeType, nil
	}
	b := img.Bounds()
	if uint(b.Dx()) <= max && uint(b.Dy()) <= max {
		return data, source.MimeType, nil
	}

	bounded := resize.Thumbnail(max, max, img, resize.Lanczos3)
	var buf bytes.Buffer
	if format == "jpeg" {
		if err := jpeg.Encode(&buf, bounded, &jpeg.Options{Quality: 90}); err != nil {
			return nil, "", err
		}
		return buf.Bytes(), "image/jpeg", nil
	}
	if err := png.Encode(&buf, bounded); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), "image/png", nil
}

func variantFileName(sourceName string, index int, mimeType string) string {
	base := strings.TrimSuffix(path.Base(sourceName), path.Ext(sourceName))
	if base == "" || base == "." || base == "/" {
		base = "variant"
	}
	return fmt.Sprintf("%s-variant-%d%s", base, index+1, extensionFor(mimeType))
}

func extensionFor(mimeType string) string {
	switch strings.ToLower(mimeType) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ""
	}
}
