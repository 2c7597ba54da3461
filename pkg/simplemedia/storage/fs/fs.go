package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/tendant/simple-media/pkg/simplemedia"
)

const backendName = "fs"

// Backend is a filesystem implementation of the simplemedia.BlobStore interface.
// Objects are written to a temporary file and renamed into place, so readers
// never observe a partial object.
type Backend struct {
	baseDir string
}

var _ simplemedia.BlobStore = (*Backend)(nil)

// Config options for the filesystem backend
type Config struct {
	BaseDir string // Base directory for storing files
}

// New creates a new filesystem storage backend
func New(config Config) (*Backend, error) {
	if config.BaseDir == "" {
		return nil, errors.New("base directory is required")
	}
	if err := os.MkdirAll(config.BaseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	base, err := filepath.Abs(config.BaseDir)
	if err != nil {
		return nil, err
	}
	return &Backend{baseDir: base}, nil
}

// Put streams r into the file for key
func (b *Backend) Put(ctx context.Context, key string, r io.Reader, params simplemedia.PutParams) (*simplemedia.ObjectMeta, error) {
	filePath, err := b.path(key)
	if err != nil {
		return nil, &simplemedia.StorageError{Backend: backendName, Key: key, Op: "put", Err: err}
	}
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return nil, unavailable("put", key, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(filePath), ".upload-*")
	if err != nil {
		return nil, unavailable("put", key, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	n, err := io.Copy(tmp, readerWithContext(ctx, r))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, unavailable("put", key, err)
	}
	if err := os.Rename(tmpName, filePath); err != nil {
		return nil, unavailable("put", key, err)
	}

	contentType := params.ContentType
	if contentType == "" {
		contentType = detectContentType(filePath)
	}
	return &simplemedia.ObjectMeta{Key: key, Size: n, ContentType: contentType}, nil
}

// Get opens the file for key, seeking to the requested range
func (b *Backend) Get(ctx context.Context, key string, rng *simplemedia.ByteRange) (*simplemedia.BlobObject, error) {
	filePath, err := b.path(key)
	if err != nil {
		return nil, &simplemedia.StorageError{Backend: backendName, Key: key, Op: "get", Err: err}
	}
	file, err := os.Open(filePath)
	if os.IsNotExist(err) {
		return nil, notFound("get", key)
	} else if err != nil {
		return nil, unavailable("get", key, err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, unavailable("get", key, err)
	}

	size := info.Size()
	length := size
	var body io.ReadCloser = file
	if rng != nil {
		start, end := rng.Start, rng.End
		if end < 0 || end >= size {
			end = size - 1
		}
		if start >= size || end < start {
			length = 0
		} else {
			length = end - start + 1
		}
		if _, err := file.Seek(start, io.SeekStart); err != nil {
			file.Close()
			return nil, unavailable("get", key, err)
		}
		body = struct {
			io.Reader
			io.Closer
		}{io.LimitReader(file, length), file}
	}

	return &simplemedia.BlobObject{
		Body:          body,
		ContentType:   detectContentType(filePath),
		ContentLength: length,
	}, nil
}

// Stat retrieves metadata for an object in the filesystem
func (b *Backend) Stat(ctx context.Context, key string) (*simplemedia.ObjectMeta, error) {
	filePath, err := b.path(key)
	if err != nil {
		return nil, &simplemedia.StorageError{Backend: backendName, Key: key, Op: "stat", Err: err}
	}
	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return nil, notFound("stat", key)
	} else if err != nil {
		return nil, unavailable("stat", key, err)
	}
	return &simplemedia.ObjectMeta{
		Key:         key,
		Size:        info.Size(),
		ContentType: detectContentType(filePath),
		UpdatedAt:   info.ModTime(),
	}, nil
}

// Delete deletes content from the filesystem
func (b *Backend) Delete(ctx context.Context, key string) error {
	filePath, err := b.path(key)
	if err != nil {
		return &simplemedia.StorageError{Backend: backendName, Key: key, Op: "delete", Err: err}
	}
	if err := os.Remove(filePath); os.IsNotExist(err) {
		return notFound("delete", key)
	} else if err != nil {
		return unavailable("delete", key, err)
	}
	b.cleanupEmptyDirectories(filepath.Dir(filePath))
	return nil
}

// path maps key below baseDir and rejects keys that escape it.
func (b *Backend) path(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("%w: empty key", simplemedia.ErrInvalidRequest)
	}
	p := filepath.Join(b.baseDir, filepath.FromSlash(key))
	if p != b.baseDir && !strings.HasPrefix(p, b.baseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: key escapes base directory", simplemedia.ErrInvalidRequest)
	}
	return p, nil
}

// cleanupEmptyDirectories recursively removes empty directories up to baseDir
func (b *Backend) cleanupEmptyDirectories(dir string) {
	if dir == b.baseDir || !strings.HasPrefix(dir, b.baseDir) {
		return
	}
	if entries, err := os.ReadDir(dir); err == nil && len(entries) == 0 {
		if os.Remove(dir) == nil {
			b.cleanupEmptyDirectories(filepath.Dir(dir))
		}
	}
}

// detectContentType prefers the file extension and falls back to sniffing.
func detectContentType(filePath string) string {
	if ct := mime.TypeByExtension(filepath.Ext(filePath)); ct != "" {
		return ct
	}
	mt, err := mimetype.DetectFile(filePath)
	if err != nil {
		return "application/octet-stream"
	}
	return mt.String()
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

func readerWithContext(ctx context.Context, r io.Reader) io.Reader {
	return ctxReader{ctx: ctx, r: r}
}

func notFound(op, key string) error {
	return &simplemedia.StorageError{Backend: backendName, Key: key, Op: op, Err: simplemedia.ErrObjectNotFound}
}

func unavailable(op, key string, err error) error {
	return &simplemedia.StorageError{Backend: backendName, Key: key, Op: op, Err: fmt.Errorf("%w: %w", simplemedia.ErrStoreUnavailable, err)}
}
