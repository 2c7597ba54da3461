package presigned

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tendant/simple-media/pkg/simplemedia"
)

// Handler serves signed blob links from a BlobStore
type Handler struct {
	store  simplemedia.BlobStore
	signer *Signer
	logger *slog.Logger
}

// NewHandler creates a blob handler. A nil logger uses slog.Default().
func NewHandler(store simplemedia.BlobStore, signer *Signer, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{store: store, signer: signer, logger: logger}
}

// Mount registers the blob route under the signer's URL pattern prefix,
// e.g. GET /blobs/* for "/blobs/{key}".
func (h *Handler) Mount(r chi.Router) {
	prefix := h.signer.urlPattern
	if i := strings.Index(prefix, keyPlaceholder); i >= 0 {
		prefix = prefix[:i]
	}
	r.With(ValidateMiddleware(h.signer)).Method(http.MethodGet, prefix+"*", http.HandlerFunc(h.ServeBlob))
	r.With(ValidateMiddleware(h.signer)).Method(http.MethodHead, prefix+"*", http.HandlerFunc(h.ServeBlob))
}

// ServeBlob streams the object named in the request context, honouring a
// single "bytes=" Range header.
func (h *Handler) ServeBlob(w http.ResponseWriter, r *http.Request) {
	key := ObjectKeyFromContext(r.Context())
	if key == "" {
		http.Error(w, "missing object key", http.StatusBadRequest)
		return
	}

	meta, err := h.store.Stat(r.Context(), key)
	if err != nil {
		h.writeStoreError(w, key, err)
		return
	}

	rng, err := ParseRange(r.Header.Get("Range"), meta.Size)
	if err != nil {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", meta.Size))
		http.Error(w, err.Error(), http.StatusRequestedRangeNotSatisfiable)
		return
	}

	obj, err := h.store.Get(r.Context(), key, rng)
	if err != nil {
		h.writeStoreError(w, key, err)
		return
	}
	defer obj.Body.Close()

	contentType := obj.ContentType
	if contentType == "" {
		contentType = meta.ContentType
	}
	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	w.Header().Set("Accept-Ranges", "bytes")

	status := http.StatusOK
	length := meta.Size
	if rng != nil {
		status = http.StatusPartialContent
		length = rng.End - rng.Start + 1
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", rng.Start, rng.End, meta.Size))
	}
	w.Header().Set("Content-Length", strconv.FormatInt(length, 10))
	w.WriteHeader(status)

	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.Copy(w, obj.Body); err != nil {
		h.logger.Debug("presigned: blob copy interrupted", "key", key, "err", err)
	}
}

func (h *Handler) writeStoreError(w http.ResponseWriter, key string, err error) {
	if errors.Is(err, simplemedia.ErrNotFound) {
		http.Error(w, "object not found", http.StatusNotFound)
		return
	}
	h.logger.Error("presigned: blob read failed", "key", key, "err", err)
	http.Error(w, "storage unavailable", http.StatusBadGateway)
}

// ParseRange parses a single-range "bytes=" header against an object of
// size bytes. An empty header yields a nil range.
func ParseRange(header string, size int64) (*simplemedia.ByteRange, error) {
	if header == "" {
		return nil, nil
	}
	spec, ok := strings.CutPrefix(header, "bytes=")
	if !ok || strings.Contains(spec, ",") {
		return nil, ErrInvalidRange
	}
	startStr, endStr, ok := strings.Cut(strings.TrimSpace(spec), "-")
	if !ok {
		return nil, ErrInvalidRange
	}

	if startStr == "" {
		// suffix range: last N bytes
		n, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || n <= 0 || size == 0 {
			return nil, ErrInvalidRange
		}
		if n > size {
			n = size
		}
		return &simplemedia.ByteRange{Start: size - n, End: size - 1}, nil
	}

	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 || start >= size {
		return nil, ErrInvalidRange
	}
	end := size - 1
	if endStr != "" {
		end, err = strconv.ParseInt(endStr, 10, 64)
		if err != nil || end < start {
			return nil, ErrInvalidRange
		}
		if end >= size {
			end = size - 1
		}
	}
	return &simplemedia.ByteRange{Start: start, End: end}, nil
}
