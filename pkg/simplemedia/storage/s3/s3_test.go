package s3

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-media/pkg/simplemedia"
)

func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	b, err := New(context.Background(), Config{
		Region:          "us-east-1",
		Bucket:          "media",
		AccessKeyID:     "test-key",
		SecretAccessKey: "test-secret",
		Endpoint:        "http://127.0.0.1:9000",
		UsePathStyle:    true,
	})
	require.NoError(t, err)
	return b
}

func TestNew_Configuration(t *testing.T) {
	t.Run("EmptyBucket", func(t *testing.T) {
		_, err := New(context.Background(), Config{Region: "us-east-1"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bucket name is required")
	})

	t.Run("Defaults", func(t *testing.T) {
		b := newTestBackend(t)
		assert.Equal(t, "media", b.bucket)
		assert.Equal(t, int64(8<<20), b.config.PartSize)
	})
}

func TestBackend_Sign(t *testing.T) {
	b := newTestBackend(t)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return fixed }

	link, err := b.Sign(context.Background(), "spaces/s1/originals/ab/cd_photo.jpg", 15*time.Minute)
	require.NoError(t, err)

	assert.Equal(t, fixed.Add(15*time.Minute), link.ExpiresAt)
	u, err := url.Parse(link.URL)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", u.Host)
	assert.True(t, strings.HasPrefix(u.Path, "/media/spaces/s1/originals/ab/cd_photo.jpg"), u.Path)
	assert.Equal(t, "900", u.Query().Get("X-Amz-Expires"))
	assert.NotEmpty(t, u.Query().Get("X-Amz-Signature"))
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		notFound bool
	}{
		{"no such key", &types.NoSuchKey{}, true},
		{"head not found", &types.NotFound{}, true},
		{"generic api not found", &smithy.GenericAPIError{Code: "NoSuchKey"}, true},
		{"access denied", &smithy.GenericAPIError{Code: "AccessDenied"}, false},
		{"network", errors.New("connection refused"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mapError("get", "k", tt.err)
			if tt.notFound {
				assert.ErrorIs(t, err, simplemedia.ErrObjectNotFound)
				assert.NotErrorIs(t, err, simplemedia.ErrStoreUnavailable)
			} else {
				assert.ErrorIs(t, err, simplemedia.ErrStoreUnavailable)
				assert.NotErrorIs(t, err, simplemedia.ErrNotFound)
			}
			var se *simplemedia.StorageError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, "s3", se.Backend)
			assert.Equal(t, "get", se.Op)
		})
	}
}
