package presigned

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-media/pkg/simplemedia"
	memorystorage "github.com/tendant/simple-media/pkg/simplemedia/storage/memory"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testSigner(opts ...Option) *Signer {
	base := []Option{WithSecretKey("0123456789abcdef0123456789abcdef"), WithClock(func() time.Time { return fixedNow })}
	return New(append(base, opts...)...)
}

func TestSigner_SignAndValidate(t *testing.T) {
	s := testSigner()
	link, err := s.Sign(context.Background(), "spaces/abc/photo.jpg", 10*time.Minute)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(link.URL, "/blobs/spaces/abc/photo.jpg?signature="))
	assert.Equal(t, fixedNow.Add(10*time.Minute), link.ExpiresAt)

	req := httptest.NewRequest(http.MethodGet, link.URL, nil)
	assert.NoError(t, s.ValidateRequest(req))

	head := httptest.NewRequest(http.MethodHead, link.URL, nil)
	assert.NoError(t, s.ValidateRequest(head))

	post := httptest.NewRequest(http.MethodPost, link.URL, nil)
	assert.ErrorIs(t, s.ValidateRequest(post), ErrInvalidSignature)
}

func TestSigner_DefaultExpiration(t *testing.T) {
	s := testSigner(WithDefaultExpiration(5 * time.Minute))
	link, err := s.Sign(context.Background(), "k", 0)
	require.NoError(t, err)
	assert.Equal(t, fixedNow.Add(5*time.Minute), link.ExpiresAt)
}

func TestSigner_BaseURLAndPattern(t *testing.T) {
	s := testSigner(WithBaseURL("https://cdn.example.com"), WithURLPattern("/api/v1/blobs/{key}"))
	link, err := s.Sign(context.Background(), "a b/c.png", time.Minute)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(link.URL, "https://cdn.example.com/api/v1/blobs/a%20b/c.png?"), link.URL)

	key, err := s.ExtractObjectKey("/api/v1/blobs/a b/c.png")
	require.NoError(t, err)
	assert.Equal(t, "a b/c.png", key)

	_, err = s.ExtractObjectKey("/other/a.png")
	assert.Error(t, err)
	_, err = s.ExtractObjectKey("/api/v1/blobs/")
	assert.Error(t, err)
}

func TestSigner_NoSecret(t *testing.T) {
	s := New()
	assert.False(t, s.IsEnabled())
	_, err := s.Sign(context.Background(), "k", time.Minute)
	assert.ErrorIs(t, err, ErrNoSecretKey)
}

func TestSigner_ValidationErrors(t *testing.T) {
	s := testSigner()
	signed, _, err := s.SignURL(http.MethodGet, "/blobs/k", time.Minute)
	require.NoError(t, err)
	u, err := url.Parse(signed)
	require.NoError(t, err)
	q := u.Query()

	tests := []struct {
		name  string
		query url.Values
		want  error
	}{
		{"missing signature", url.Values{"expires": {q.Get("expires")}}, ErrMissingSignature},
		{"missing expires", url.Values{"signature": {q.Get("signature")}}, ErrMissingExpiration},
		{"bad expires", url.Values{"signature": {q.Get("signature")}, "expires": {"soon"}}, ErrInvalidExpiration},
		{"tampered", url.Values{"signature": {q.Get("signature")[:len(q.Get("signature"))-1] + "x"}, "expires": {q.Get("expires")}}, ErrInvalidSignature},
		{"extra param", url.Values{"signature": {q.Get("signature")}, "expires": {q.Get("expires")}, "x": {"1"}}, ErrInvalidSignature},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/blobs/k?"+tt.query.Encode(), nil)
			err := s.ValidateRequest(req)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, IsAuthError(err))
		})
	}
}

func TestSigner_Expired(t *testing.T) {
	now := fixedNow
	s := testSigner(WithClock(func() time.Time { return now }))
	signed, _, err := s.SignURL(http.MethodGet, "/blobs/k", time.Minute)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	err = s.ValidateRequest(httptest.NewRequest(http.MethodGet, signed, nil))
	assert.ErrorIs(t, err, ErrExpired)
}

func TestParseRange(t *testing.T) {
	tests := []struct {
		header  string
		want    *simplemedia.ByteRange
		wantErr bool
	}{
		{"", nil, false},
		{"bytes=0-9", &simplemedia.ByteRange{Start: 0, End: 9}, false},
		{"bytes=10-", &simplemedia.ByteRange{Start: 10, End: 99}, false},
		{"bytes=90-500", &simplemedia.ByteRange{Start: 90, End: 99}, false},
		{"bytes=-20", &simplemedia.ByteRange{Start: 80, End: 99}, false},
		{"bytes=-500", &simplemedia.ByteRange{Start: 0, End: 99}, false},
		{"bytes=100-", nil, true},
		{"bytes=5-1", nil, true},
		{"bytes=0-1,4-5", nil, true},
		{"items=0-1", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			got, err := ParseRange(tt.header, 100)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidRange)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func setupBlobRouter(t *testing.T) (http.Handler, *Signer, []byte) {
	t.Helper()
	store := memorystorage.New()
	data := []byte("0123456789abcdefghij")
	_, err := store.Put(context.Background(), "spaces/s1/items/i1/clip.bin", bytes.NewReader(data), simplemedia.PutParams{
		ContentType: "application/octet-stream",
		Size:        int64(len(data)),
	})
	require.NoError(t, err)

	s := New(WithSecretKey("handler-secret"))
	r := chi.NewRouter()
	NewHandler(store, s, nil).Mount(r)
	return r, s, data
}

func TestHandler_ServeBlob(t *testing.T) {
	router, s, data := setupBlobRouter(t)
	link, err := s.Sign(context.Background(), "spaces/s1/items/i1/clip.bin", time.Minute)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, link.URL, nil))
	require.Equal(t, http.StatusOK, w.Code)
	body, _ := io.ReadAll(w.Body)
	assert.Equal(t, data, body)
	assert.Equal(t, "bytes", w.Header().Get("Accept-Ranges"))
	assert.Equal(t, "application/octet-stream", w.Header().Get("Content-Type"))
}

func TestHandler_ServeBlob_Range(t *testing.T) {
	router, s, data := setupBlobRouter(t)
	link, err := s.Sign(context.Background(), "spaces/s1/items/i1/clip.bin", time.Minute)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, link.URL, nil)
	req.Header.Set("Range", "bytes=5-9")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusPartialContent, w.Code)
	assert.Equal(t, data[5:10], w.Body.Bytes())
	assert.Equal(t, "bytes 5-9/20", w.Header().Get("Content-Range"))
	assert.Equal(t, "5", w.Header().Get("Content-Length"))

	req = httptest.NewRequest(http.MethodGet, link.URL, nil)
	req.Header.Set("Range", "bytes=50-")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, w.Code)
	assert.Equal(t, "bytes */20", w.Header().Get("Content-Range"))
}

func TestHandler_ServeBlob_Head(t *testing.T) {
	router, s, _ := setupBlobRouter(t)
	link, err := s.Sign(context.Background(), "spaces/s1/items/i1/clip.bin", time.Minute)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodHead, link.URL, nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "20", w.Header().Get("Content-Length"))
	assert.Empty(t, w.Body.Bytes())
}

func TestHandler_ServeBlob_Rejections(t *testing.T) {
	router, s, _ := setupBlobRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/blobs/spaces/s1/items/i1/clip.bin", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	link, err := s.Sign(context.Background(), "spaces/s1/items/i1/missing.bin", time.Minute)
	require.NoError(t, err)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, link.URL, nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	other := New(WithSecretKey("someone-else"))
	forged, err := other.Sign(context.Background(), "spaces/s1/items/i1/clip.bin", time.Minute)
	require.NoError(t, err)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, forged.URL, nil))
	assert.Equal(t, http.StatusForbidden, w.Code)
}
