package variantgen

import (
	"context"
	"fmt"
	"io"
	"mime"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-resty/resty/v2"

	"github.com/tendant/simple-media/pkg/simplemedia"
)

const (
	userAgent               = "simple-media/1.0"
	defaultMaxDownloadBytes = 50 << 20
)

// HTTPDownloader fetches generated images over HTTP
type HTTPDownloader struct {
	client   *resty.Client
	maxBytes int64
}

var _ simplemedia.Downloader = (*HTTPDownloader)(nil)

type DownloaderOption func(*HTTPDownloader)

// WithMaxBytes bounds the accepted body size
func WithMaxBytes(n int64) DownloaderOption {
	return func(d *HTTPDownloader) {
		if n > 0 {
			d.maxBytes = n
		}
	}
}

func WithTimeout(timeout time.Duration) DownloaderOption {
	return func(d *HTTPDownloader) {
		d.client.SetTimeout(timeout)
	}
}

func NewDownloader(opts ...DownloaderOption) *HTTPDownloader {
	d := &HTTPDownloader{
		client: resty.New().
			SetTimeout(time.Minute).
			SetHeader("User-Agent", userAgent),
		maxBytes: defaultMaxDownloadBytes,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Download buffers the body at url. The MIME type comes from Content-Type
// and falls back to sniffing the bytes when the header is missing or generic.
func (d *HTTPDownloader) Download(ctx context.Context, url string) (*simplemedia.Download, error) {
	resp, err := d.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(url)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", url, err)
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.IsError() {
		return nil, fmt.Errorf("download %s: status %d", url, resp.StatusCode())
	}

	data, err := io.ReadAll(io.LimitReader(body, d.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", url, err)
	}
	if int64(len(data)) > d.maxBytes {
		return nil, fmt.Errorf("download %s: body exceeds %d bytes", url, d.maxBytes)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("download %s: %w", url, simplemedia.ErrEmptyFile)
	}

	return &simplemedia.Download{
		URL:      url,
		MimeType: detectMimeType(resp.Header().Get("Content-Type"), data),
		Data:     data,
	}, nil
}

func detectMimeType(header string, data []byte) string {
	if header != "" {
		if mt, _, err := mime.ParseMediaType(header); err == nil && mt != "application/octet-stream" && mt != "binary/octet-stream" {
			return mt
		}
	}
	mt, _, _ := strings.Cut(mimetype.Detect(data).String(), ";")
	return mt
}

func extensionFor(mimeType string) string {
	switch strings.ToLower(mimeType) {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	case "image/png":
		return ".png"
	}
	if ext := mimetype.Lookup(mimeType); ext != nil {
		return ext.Extension()
	}
	return ".png"
}
