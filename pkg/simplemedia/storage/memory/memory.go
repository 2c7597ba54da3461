package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tendant/simple-media/pkg/simplemedia"
)

const backendName = "memory"

// Backend is an in-memory implementation of the simplemedia.BlobStore interface
type Backend struct {
	mu      sync.RWMutex
	objects map[string]*object
}

type object struct {
	data        []byte
	contentType string
	metadata    map[string]string
	updatedAt   time.Time
}

var _ simplemedia.BlobStore = (*Backend)(nil)

// New creates a new in-memory storage backend
func New() *Backend {
	return &Backend{objects: make(map[string]*object)}
}

// Put reads r fully and stores it under key
func (b *Backend) Put(ctx context.Context, key string, r io.Reader, params simplemedia.PutParams) (*simplemedia.ObjectMeta, error) {
	if err := ctx.Err(); err != nil {
		return nil, storageError("put", key, err)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, storageError("put", key, err)
	}

	contentType := params.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	obj := &object{
		data:        data,
		contentType: contentType,
		metadata:    copyMetadata(params.Metadata),
		updatedAt:   time.Now().UTC(),
	}

	b.mu.Lock()
	b.objects[key] = obj
	b.mu.Unlock()

	return obj.meta(key), nil
}

// Get returns the object, or the requested byte range of it
func (b *Backend) Get(ctx context.Context, key string, rng *simplemedia.ByteRange) (*simplemedia.BlobObject, error) {
	b.mu.RLock()
	obj, ok := b.objects[key]
	b.mu.RUnlock()
	if !ok {
		return nil, notFound("get", key)
	}

	data := obj.data
	if rng != nil {
		data = sliceRange(data, *rng)
	}
	return &simplemedia.BlobObject{
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentType:   obj.contentType,
		ContentLength: int64(len(data)),
	}, nil
}

// Stat retrieves metadata for an object in memory
func (b *Backend) Stat(ctx context.Context, key string) (*simplemedia.ObjectMeta, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	obj, ok := b.objects[key]
	if !ok {
		return nil, notFound("stat", key)
	}
	return obj.meta(key), nil
}

// Delete deletes content
func (b *Backend) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.objects[key]; !ok {
		return notFound("delete", key)
	}
	delete(b.objects, key)
	return nil
}

// Keys lists stored keys with the given prefix in lexical order
func (b *Backend) Keys(prefix string) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	keys := make([]string, 0, len(b.objects))
	for k := range b.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func (o *object) meta(key string) *simplemedia.ObjectMeta {
	return &simplemedia.ObjectMeta{
		Key:         key,
		Size:        int64(len(o.data)),
		ContentType: o.contentType,
		UpdatedAt:   o.updatedAt,
		Metadata:    copyMetadata(o.metadata),
	}
}

func sliceRange(data []byte, rng simplemedia.ByteRange) []byte {
	size := int64(len(data))
	start := rng.Start
	if start < 0 {
		start = 0
	}
	if start >= size {
		return nil
	}
	end := rng.End
	if end < 0 || end >= size {
		end = size - 1
	}
	if end < start {
		return nil
	}
	return data[start : end+1]
}

func copyMetadata(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	cp := make(map[string]string, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}

func notFound(op, key string) error {
	return &simplemedia.StorageError{Backend: backendName, Key: key, Op: op, Err: simplemedia.ErrObjectNotFound}
}

func storageError(op, key string, err error) error {
	return &simplemedia.StorageError{Backend: backendName, Key: key, Op: op, Err: fmt.Errorf("%w: %w", simplemedia.ErrStoreUnavailable, err)}
}
