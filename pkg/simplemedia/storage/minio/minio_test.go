package minio

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-media/pkg/simplemedia"
)

func TestNew_RequiresBucket(t *testing.T) {
	_, err := New(context.Background(), Config{Endpoint: "127.0.0.1:9000"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket name is required")
}

func TestAdapter_Sign(t *testing.T) {
	a, err := New(context.Background(), Config{
		Endpoint:  "127.0.0.1:9000",
		AccessKey: "minio",
		SecretKey: "minio-secret",
		Bucket:    "media",
		Region:    "us-east-1",
	}, nil)
	require.NoError(t, err)

	fixed := time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return fixed }

	link, err := a.Sign(context.Background(), "spaces/s/originals/ab/cd_clip.mp4", 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, fixed.Add(30*time.Minute), link.ExpiresAt)

	u, err := url.Parse(link.URL)
	require.NoError(t, err)
	assert.Equal(t, "/media/spaces/s/originals/ab/cd_clip.mp4", u.Path)
	assert.Equal(t, "1800", u.Query().Get("X-Amz-Expires"))
}

func TestMapError(t *testing.T) {
	notFound := minio.ErrorResponse{Code: "NoSuchKey", StatusCode: http.StatusNotFound}
	assert.ErrorIs(t, mapError("get", "k", notFound), simplemedia.ErrObjectNotFound)

	denied := minio.ErrorResponse{Code: "AccessDenied", StatusCode: http.StatusForbidden}
	err := mapError("get", "k", denied)
	assert.ErrorIs(t, err, simplemedia.ErrStoreUnavailable)
	assert.NotErrorIs(t, err, simplemedia.ErrNotFound)

	assert.ErrorIs(t, mapError("put", "k", errors.New("dial tcp: refused")), simplemedia.ErrStoreUnavailable)
}
