package simplemedia_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-media/pkg/simplemedia"
)

type fakeTranscoder struct {
	duration float64
	total    int64
	err      error
	calls    atomic.Int32
}

func (f *fakeTranscoder) ProbeDuration(ctx context.Context, key string) (float64, error) {
	return f.duration, nil
}

func (f *fakeTranscoder) Transcode(ctx context.Context, sourceKey string) (*simplemedia.TranscodeResult, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	prefix := sourceKey + "-hls"
	return &simplemedia.TranscodeResult{
		SourceKey:  sourceKey,
		OutputKey:  prefix + "/index.m3u8",
		Prefix:     prefix,
		Files:      []string{prefix + "/index.m3u8", prefix + "/segment_000.ts"},
		TotalBytes: f.total,
	}, nil
}

func TestTranscodeItem_RecordsStream(t *testing.T) {
	tc := &fakeTranscoder{duration: 12.5, total: 4096}
	f := newFixture(t, simplemedia.WithTranscoder(tc))
	space := f.space(t)
	ctx := context.Background()

	clip := []byte("fake mp4 bytes")
	source, err := f.svc.IngestBytes(ctx, space.ID, "holiday.mp4", "video/mp4", clip)
	require.NoError(t, err)
	require.NotNil(t, source.DurationSeconds, "transcoder doubles as duration prober")
	assert.Equal(t, 12.5, *source.DurationSeconds)

	stream, err := f.svc.TranscodeItem(ctx, source.ID)
	require.NoError(t, err)

	assert.Equal(t, simplemedia.MimeTypeHLSPlaylist, stream.MimeType)
	assert.Equal(t, "holiday.m3u8", stream.FileName)
	require.NotNil(t, stream.SourceItemID)
	assert.Equal(t, source.ID, *stream.SourceItemID)
	assert.Equal(t, source.Key+"-hls/index.m3u8", stream.Key)
	assert.Equal(t, int64(4096), stream.SizeBytes)
	assert.True(t, stream.IsComplete())
	require.NotNil(t, stream.DurationSeconds)
	assert.Equal(t, 12.5, *stream.DurationSeconds)
	assert.NotEmpty(t, stream.Location)

	assert.Equal(t, int64(len(clip))+4096, f.usedBytes(t, space.ID))
	assert.Contains(t, f.events.names(), "stream")
}

func TestTranscodeItem_FailureCreatesNothing(t *testing.T) {
	tc := &fakeTranscoder{err: fmt.Errorf("%w: ffmpeg exited 1", simplemedia.ErrConversion)}
	f := newFixture(t, simplemedia.WithTranscoder(tc))
	space := f.space(t)
	ctx := context.Background()

	source, err := f.svc.IngestBytes(ctx, space.ID, "clip.mov", "video/quicktime", []byte("mov"))
	require.NoError(t, err)
	before := f.usedBytes(t, space.ID)

	stream, err := f.svc.TranscodeItem(ctx, source.ID)
	assert.ErrorIs(t, err, simplemedia.ErrConversion)
	assert.Nil(t, stream)

	page, err := f.svc.ListItems(ctx, simplemedia.ItemFilter{SpaceID: &space.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, before, f.usedBytes(t, space.ID))
	assert.NotContains(t, f.events.names(), "stream")
}

func TestTranscodeItem_Preconditions(t *testing.T) {
	tc := &fakeTranscoder{total: 1}
	f := newFixture(t, simplemedia.WithTranscoder(tc))
	space := f.space(t)
	ctx := context.Background()

	doc, err := f.svc.IngestBytes(ctx, space.ID, "a.txt", "text/plain", []byte("abc"))
	require.NoError(t, err)
	_, err = f.svc.TranscodeItem(ctx, doc.ID)
	assert.ErrorIs(t, err, simplemedia.ErrInvalidRequest)

	pending := &simplemedia.ContentItem{SpaceID: space.ID, Key: "spaces/x/v.mp4", MimeType: "video/mp4", UploadCompletion: 42}
	require.NoError(t, f.repo.SaveItem(ctx, pending))
	_, err = f.svc.TranscodeItem(ctx, pending.ID)
	assert.ErrorIs(t, err, simplemedia.ErrSourceNotReady)

	assert.Equal(t, int32(0), tc.calls.Load())
}

func TestTranscodeItem_NotConfigured(t *testing.T) {
	f := newFixture(t)
	space := f.space(t)
	source, err := f.svc.IngestBytes(context.Background(), space.ID, "v.mp4", "video/mp4", []byte("mp4"))
	require.NoError(t, err)
	assert.Nil(t, source.DurationSeconds)

	_, err = f.svc.TranscodeItem(context.Background(), source.ID)
	assert.ErrorIs(t, err, simplemedia.ErrTranscoderNotConfigured)
}

func TestTranscodeItem_RejectsSecondActiveStream(t *testing.T) {
	tc := &fakeTranscoder{total: 2048}
	f := newFixture(t, simplemedia.WithTranscoder(tc))
	space := f.space(t)
	ctx := context.Background()

	clip := []byte("mp4 body")
	source, err := f.svc.IngestBytes(ctx, space.ID, "clip.mp4", "video/mp4", clip)
	require.NoError(t, err)

	stream, err := f.svc.TranscodeItem(ctx, source.ID)
	require.NoError(t, err)

	_, err = f.svc.TranscodeItem(ctx, source.ID)
	assert.ErrorIs(t, err, simplemedia.ErrStreamExists)
	assert.Equal(t, int32(1), tc.calls.Load())
	assert.Equal(t, int64(len(clip))+2048, f.usedBytes(t, space.ID), "stream bytes are charged once")

	_, err = f.svc.RetireItem(ctx, stream.ID)
	require.NoError(t, err)
	again, err := f.svc.TranscodeItem(ctx, source.ID)
	require.NoError(t, err)
	assert.Equal(t, stream.Key, again.Key)
	assert.Equal(t, int64(len(clip))+2048, f.usedBytes(t, space.ID))
}
