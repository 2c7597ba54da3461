package minio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/tendant/simple-media/pkg/simplemedia"
)

const backendName = "minio"

// Config options for the MinIO backend
type Config struct {
	Endpoint     string // host:port, without scheme
	AccessKey    string
	SecretKey    string
	Bucket       string
	UseSSL       bool
	Region       string
	CreateBucket bool
}

// Adapter is a MinIO implementation of simplemedia.BlobStore and simplemedia.LinkSigner
type Adapter struct {
	client *minio.Client
	bucket string
	logger *slog.Logger
	now    func() time.Time
}

var (
	_ simplemedia.BlobStore  = (*Adapter)(nil)
	_ simplemedia.LinkSigner = (*Adapter)(nil)
)

// New returns an Adapter. When cfg.CreateBucket is set the bucket is created
// if it does not exist yet.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Adapter, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	a := &Adapter{client: client, bucket: cfg.Bucket, logger: logger, now: time.Now}

	if cfg.CreateBucket {
		exists, err := client.BucketExists(ctx, cfg.Bucket)
		if err != nil {
			return nil, fmt.Errorf("failed to check if bucket exists: %w", err)
		}
		if !exists {
			if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
				return nil, fmt.Errorf("failed to create bucket: %w", err)
			}
			logger.Info("bucket created", slog.String("bucket", cfg.Bucket))
		}
	}
	return a, nil
}

// Put stores r under key. An unknown size (-1) streams with multipart upload.
func (a *Adapter) Put(ctx context.Context, key string, r io.Reader, params simplemedia.PutParams) (*simplemedia.ObjectMeta, error) {
	size := params.Size
	if size <= 0 {
		size = -1
	}
	info, err := a.client.PutObject(ctx, a.bucket, key, r, size, minio.PutObjectOptions{
		ContentType:  params.ContentType,
		UserMetadata: params.Metadata,
	})
	if err != nil {
		return nil, mapError("put", key, err)
	}
	return &simplemedia.ObjectMeta{
		Key:         key,
		Size:        info.Size,
		ContentType: params.ContentType,
		UpdatedAt:   a.now().UTC(),
		ETag:        info.ETag,
		Metadata:    params.Metadata,
	}, nil
}

// Get retrieves an object, optionally restricted to a byte range
func (a *Adapter) Get(ctx context.Context, key string, rng *simplemedia.ByteRange) (*simplemedia.BlobObject, error) {
	opts := minio.GetObjectOptions{}
	if rng != nil && (rng.Start > 0 || rng.End >= 0) {
		// SetRange(start, 0) with start > 0 reads to the end of the object.
		end := rng.End
		if end < 0 {
			end = 0
		}
		if err := opts.SetRange(rng.Start, end); err != nil {
			return nil, &simplemedia.StorageError{Backend: backendName, Key: key, Op: "get", Err: fmt.Errorf("%w: %v", simplemedia.ErrInvalidRequest, err)}
		}
	}

	obj, err := a.client.GetObject(ctx, a.bucket, key, opts)
	if err != nil {
		return nil, mapError("get", key, err)
	}
	// GetObject is lazy; Stat surfaces a missing key before the body is handed out.
	info, err := obj.Stat()
	if err != nil {
		obj.Close()
		return nil, mapError("get", key, err)
	}

	length := info.Size
	if rng != nil {
		end := rng.End
		if end < 0 || end >= info.Size {
			end = info.Size - 1
		}
		length = end - rng.Start + 1
		if length < 0 {
			length = 0
		}
	}
	return &simplemedia.BlobObject{Body: obj, ContentType: info.ContentType, ContentLength: length}, nil
}

// Stat retrieves obj info
func (a *Adapter) Stat(ctx context.Context, key string) (*simplemedia.ObjectMeta, error) {
	info, err := a.client.StatObject(ctx, a.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return nil, mapError("stat", key, err)
	}
	return &simplemedia.ObjectMeta{
		Key:         key,
		Size:        info.Size,
		ContentType: info.ContentType,
		UpdatedAt:   info.LastModified,
		ETag:        info.ETag,
		Metadata:    info.UserMetadata,
	}, nil
}

// Delete deletes an object from storage
func (a *Adapter) Delete(ctx context.Context, key string) error {
	if err := a.client.RemoveObject(ctx, a.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return mapError("delete", key, err)
	}
	a.logger.Debug("object deleted", slog.String("key", key), slog.String("bucket", a.bucket))
	return nil
}

// Sign generates a presigned GET URL valid for ttl
func (a *Adapter) Sign(ctx context.Context, key string, ttl time.Duration) (*simplemedia.SignedLink, error) {
	issuedAt := a.now()
	u, err := a.client.PresignedGetObject(ctx, a.bucket, key, ttl, nil)
	if err != nil {
		return nil, mapError("sign", key, err)
	}
	return &simplemedia.SignedLink{URL: u.String(), ExpiresAt: issuedAt.Add(ttl).UTC()}, nil
}

func mapError(op, key string, err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.Code == "NotFound" || resp.StatusCode == http.StatusNotFound {
		return &simplemedia.StorageError{Backend: backendName, Key: key, Op: op, Err: simplemedia.ErrObjectNotFound}
	}
	return &simplemedia.StorageError{Backend: backendName, Key: key, Op: op, Err: fmt.Errorf("%w: %w", simplemedia.ErrStoreUnavailable, err)}
}
