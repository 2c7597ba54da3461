package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/tendant/simple-media/pkg/simplemedia"
)

const backendName = "s3"

// Config options for the S3 backend
type Config struct {
	Region          string // AWS region
	Bucket          string // S3 bucket name
	AccessKeyID     string // AWS access key ID
	SecretAccessKey string // AWS secret access key
	Endpoint        string // Optional custom endpoint for S3-compatible services
	UsePathStyle    bool   // Use path-style addressing (default: false)

	// Server-side encryption options
	EnableSSE    bool   // Enable server-side encryption
	SSEAlgorithm string // SSE algorithm (AES256 or aws:kms)
	SSEKMSKeyID  string // Optional KMS key ID for aws:kms algorithm

	// PartSize is the multipart chunk size for large uploads (default 8MB)
	PartSize int64

	// CreateBucketIfNotExist creates the bucket on startup
	CreateBucketIfNotExist bool
}

// Backend is an S3-compatible implementation of simplemedia.BlobStore and
// simplemedia.LinkSigner
type Backend struct {
	client        *s3.Client
	presignClient *s3.PresignClient
	uploader      *manager.Uploader
	bucket        string
	config        Config
	now           func() time.Time
}

var (
	_ simplemedia.BlobStore  = (*Backend)(nil)
	_ simplemedia.LinkSigner = (*Backend)(nil)
)

// New creates a new S3-compatible storage backend
func New(ctx context.Context, config Config) (*Backend, error) {
	if config.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}
	if config.Region == "" {
		config.Region = "us-east-1"
	}
	if config.PartSize <= 0 {
		config.PartSize = 8 << 20
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(config.Region)}
	if config.AccessKeyID != "" && config.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(config.AccessKeyID, config.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if config.Endpoint != "" {
			o.BaseEndpoint = aws.String(config.Endpoint)
		}
		o.UsePathStyle = config.UsePathStyle
	})

	b := &Backend{
		client:        client,
		presignClient: s3.NewPresignClient(client),
		uploader: manager.NewUploader(client, func(u *manager.Uploader) {
			u.PartSize = config.PartSize
		}),
		bucket: config.Bucket,
		config: config,
		now:    time.Now,
	}

	if config.CreateBucketIfNotExist {
		if err := b.createBucketIfNotExists(ctx); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}
	return b, nil
}

func (b *Backend) createBucketIfNotExists(ctx context.Context) error {
	_, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(b.bucket)})
	if err == nil {
		return nil
	}

	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	if !errors.As(err, &notFound) && !errors.As(err, &noSuchBucket) && !hasErrorCode(err, "NoSuchBucket", "NotFound", "BadRequest") {
		return fmt.Errorf("failed to check bucket: %w", err)
	}

	input := &s3.CreateBucketInput{Bucket: aws.String(b.bucket)}
	if b.config.Region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(b.config.Region),
		}
	}
	if _, err := b.client.CreateBucket(ctx, input); err != nil {
		if hasErrorCode(err, "BucketAlreadyExists", "BucketAlreadyOwnedByYou") {
			return nil
		}
		return err
	}
	return nil
}

// Put uploads r with the multipart manager
func (b *Backend) Put(ctx context.Context, key string, r io.Reader, params simplemedia.PutParams) (*simplemedia.ObjectMeta, error) {
	input := &s3.PutObjectInput{
		Bucket:   aws.String(b.bucket),
		Key:      aws.String(key),
		Body:     r,
		Metadata: params.Metadata,
	}
	if params.ContentType != "" {
		input.ContentType = aws.String(params.ContentType)
	}
	b.applySSE(input)

	out, err := b.uploader.Upload(ctx, input)
	if err != nil {
		return nil, mapError("put", key, err)
	}

	meta := &simplemedia.ObjectMeta{
		Key:         key,
		Size:        params.Size,
		ContentType: params.ContentType,
		UpdatedAt:   b.now().UTC(),
		Metadata:    params.Metadata,
	}
	if out.ETag != nil {
		meta.ETag = strings.Trim(*out.ETag, "\"")
	}
	return meta, nil
}

// Get downloads key, optionally restricted to a byte range
func (b *Backend) Get(ctx context.Context, key string, rng *simplemedia.ByteRange) (*simplemedia.BlobObject, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	}
	if rng != nil {
		input.Range = aws.String(rng.HeaderValue())
	}

	out, err := b.client.GetObject(ctx, input)
	if err != nil {
		return nil, mapError("get", key, err)
	}
	return &simplemedia.BlobObject{
		Body:          out.Body,
		ContentType:   aws.ToString(out.ContentType),
		ContentLength: aws.ToInt64(out.ContentLength),
	}, nil
}

// Stat retrieves metadata for an object in S3
func (b *Backend) Stat(ctx context.Context, key string) (*simplemedia.ObjectMeta, error) {
	out, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, mapError("stat", key, err)
	}

	contentType := aws.ToString(out.ContentType)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return &simplemedia.ObjectMeta{
		Key:         key,
		Size:        aws.ToInt64(out.ContentLength),
		ContentType: contentType,
		UpdatedAt:   aws.ToTime(out.LastModified),
		ETag:        strings.Trim(aws.ToString(out.ETag), "\""),
		Metadata:    out.Metadata,
	}, nil
}

// Delete deletes content from S3
func (b *Backend) Delete(ctx context.Context, key string) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return mapError("delete", key, err)
	}
	return nil
}

// Sign returns a presigned GET URL valid for ttl
func (b *Backend) Sign(ctx context.Context, key string, ttl time.Duration) (*simplemedia.SignedLink, error) {
	issuedAt := b.now()
	req, err := b.presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return nil, mapError("sign", key, err)
	}
	return &simplemedia.SignedLink{URL: req.URL, ExpiresAt: issuedAt.Add(ttl).UTC()}, nil
}

func (b *Backend) applySSE(input *s3.PutObjectInput) {
	if !b.config.EnableSSE {
		return
	}
	switch b.config.SSEAlgorithm {
	case "AES256":
		input.ServerSideEncryption = types.ServerSideEncryptionAes256
	case "aws:kms":
		input.ServerSideEncryption = types.ServerSideEncryptionAwsKms
		if b.config.SSEKMSKeyID != "" {
			input.SSEKMSKeyId = aws.String(b.config.SSEKMSKeyID)
		}
	}
}

// mapError translates SDK errors into the simplemedia taxonomy.
func mapError(op, key string, err error) error {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) || hasErrorCode(err, "NoSuchKey", "NotFound") {
		return &simplemedia.StorageError{Backend: backendName, Key: key, Op: op, Err: simplemedia.ErrObjectNotFound}
	}
	return &simplemedia.StorageError{Backend: backendName, Key: key, Op: op, Err: fmt.Errorf("%w: %w", simplemedia.ErrStoreUnavailable, err)}
}

func hasErrorCode(err error, codes ...string) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	for _, c := range codes {
		if apiErr.ErrorCode() == c {
			return true
		}
	}
	return false
}
