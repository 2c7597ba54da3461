package simplemedia_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-media/pkg/simplemedia"
	"github.com/tendant/simple-media/pkg/simplemedia/repo/memory"
	memorystorage "github.com/tendant/simple-media/pkg/simplemedia/storage/memory"
)

// recordingSink keeps the names of delivered events in order
type recordingSink struct {
	mu     sync.Mutex
	events []string
}

func (s *recordingSink) add(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, name)
}

func (s *recordingSink) names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.events...)
}

func (s *recordingSink) ItemCreated(ctx context.Context, item *simplemedia.ContentItem) error {
	s.add("created")
	return nil
}

func (s *recordingSink) ItemCompleted(ctx context.Context, item *simplemedia.ContentItem) error {
	s.add("completed")
	return nil
}

func (s *recordingSink) ItemFailed(ctx context.Context, item *simplemedia.ContentItem, cause error) error {
	s.add("failed")
	return nil
}

func (s *recordingSink) ItemRetired(ctx context.Context, item *simplemedia.ContentItem) error {
	s.add("retired")
	return nil
}

func (s *recordingSink) StreamCreated(ctx context.Context, source, stream *simplemedia.ContentItem) error {
	s.add("stream")
	return nil
}

// countingSpaces counts ledger increments and can be told to fail them
type countingSpaces struct {
	*memory.Repository
	increments atomic.Int32
	fail       atomic.Bool
}

func (c *countingSpaces) IncrementUsedBytes(ctx context.Context, id uuid.UUID, delta int64) (int64, error) {
	c.increments.Add(1)
	if c.fail.Load() {
		return 0, errors.New("ledger offline")
	}
	return c.Repository.IncrementUsedBytes(ctx, id, delta)
}

// progressRepo records every progress value the store accepted
type progressRepo struct {
	*memory.Repository
	mu      sync.Mutex
	applied []int
}

func (p *progressRepo) UpdateProgress(ctx context.Context, id uuid.UUID, completion int) (bool, error) {
	ok, err := p.Repository.UpdateProgress(ctx, id, completion)
	if ok {
		p.mu.Lock()
		p.applied = append(p.applied, completion)
		p.mu.Unlock()
	}
	return ok, err
}

// flakyStore consumes failAfter bytes of every upload and then fails
type flakyStore struct {
	*memorystorage.Backend
	failAfter int64
}

func (f *flakyStore) Put(ctx context.Context, key string, r io.Reader, params simplemedia.PutParams) (*simplemedia.ObjectMeta, error) {
	if _, err := io.CopyN(io.Discard, r, f.failAfter); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: connection reset", simplemedia.ErrStoreUnavailable)
}

// chunkReader returns at most size bytes per Read
type chunkReader struct {
	r    io.Reader
	size int
}

func (c *chunkReader) Read(p []byte) (int, error) {
	if len(p) > c.size {
		p = p[:c.size]
	}
	return c.r.Read(p)
}

// fakeClock is a settable time source shared by the service and signer
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// countingSigner issues links that expire ttl after the fake clock
type countingSigner struct {
	clock *fakeClock
	calls atomic.Int32
}

func (s *countingSigner) Sign(ctx context.Context, key string, ttl time.Duration) (*simplemedia.SignedLink, error) {
	n := s.calls.Add(1)
	return &simplemedia.SignedLink{
		URL:       fmt.Sprintf("https://cdn.test/%s?v=%d", key, n),
		ExpiresAt: s.clock.Now().Add(ttl),
	}, nil
}

type fixture struct {
	svc    simplemedia.Service
	repo   *memory.Repository
	spaces *countingSpaces
	blobs  *memorystorage.Backend
	events *recordingSink
	signer *countingSigner
	clock  *fakeClock
}

func newFixture(t *testing.T, opts ...simplemedia.Option) *fixture {
	t.Helper()
	repo := memory.New()
	f := &fixture{
		repo:   repo,
		spaces: &countingSpaces{Repository: repo},
		blobs:  memorystorage.New(),
		events: &recordingSink{},
		clock:  &fakeClock{now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)},
	}
	f.signer = &countingSigner{clock: f.clock}

	base := []simplemedia.Option{
		simplemedia.WithRepository(repo),
		simplemedia.WithSpaceStore(f.spaces),
		simplemedia.WithBlobStore(f.blobs),
		simplemedia.WithLinkSigner(f.signer),
		simplemedia.WithLinkTTL(time.Hour),
		simplemedia.WithEventSink(f.events),
		simplemedia.WithClock(f.clock.Now),
	}
	svc, err := simplemedia.New(append(base, opts...)...)
	require.NoError(t, err)
	f.svc = svc
	return f
}

func (f *fixture) space(t *testing.T) *simplemedia.Space {
	t.Helper()
	space, err := f.svc.CreateSpace(context.Background(), simplemedia.CreateSpaceRequest{OwnerID: uuid.New()})
	require.NoError(t, err)
	return space
}

func (f *fixture) usedBytes(t *testing.T, spaceID uuid.UUID) int64 {
	t.Helper()
	space, err := f.svc.GetSpace(context.Background(), spaceID)
	require.NoError(t, err)
	return space.UsedBytes
}

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 64, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}))
	return buf.Bytes()
}

func TestNew_RequiresCollaborators(t *testing.T) {
	repo := memory.New()
	blobs := memorystorage.New()

	_, err := simplemedia.New(simplemedia.WithSpaceStore(repo), simplemedia.WithBlobStore(blobs))
	assert.Error(t, err)
	_, err = simplemedia.New(simplemedia.WithRepository(repo), simplemedia.WithBlobStore(blobs))
	assert.Error(t, err)
	_, err = simplemedia.New(simplemedia.WithRepository(repo), simplemedia.WithSpaceStore(repo))
	assert.Error(t, err)

	_, err = simplemedia.New(
		simplemedia.WithRepository(repo),
		simplemedia.WithSpaceStore(repo),
		simplemedia.WithBlobStore(blobs),
		simplemedia.WithVariantGenerator("fake", &fakeGenerator{}),
	)
	assert.Error(t, err, "generators need a downloader")

	_, err = simplemedia.New(
		simplemedia.WithRepository(repo),
		simplemedia.WithSpaceStore(repo),
		simplemedia.WithBlobStore(blobs),
		simplemedia.WithVariantGenerator("fake", &fakeGenerator{}),
		simplemedia.WithDownloader(&fakeDownloader{}),
		simplemedia.WithDefaultProvider("other"),
	)
	assert.Error(t, err, "default provider must be registered")
}

func TestIngest_LargeJPEGRecordsDimensions(t *testing.T) {
	f := newFixture(t)
	space := f.space(t)

	data := encodeJPEG(t, 640, 480)
	padded := make([]byte, 10<<20)
	copy(padded, data)

	item, err := f.svc.IngestBytes(context.Background(), space.ID, "photo.jpg", "image/jpeg", padded)
	require.NoError(t, err)

	assert.True(t, item.IsComplete())
	assert.Equal(t, int64(10<<20), item.SizeBytes)
	require.NotNil(t, item.Width)
	require.NotNil(t, item.Height)
	assert.Equal(t, 640, *item.Width)
	assert.Equal(t, 480, *item.Height)
	assert.Equal(t, int64(10<<20), f.usedBytes(t, space.ID))
}

func TestIngest_PNGDimensions(t *testing.T) {
	f := newFixture(t)
	space := f.space(t)

	item, err := f.svc.IngestBytes(context.Background(), space.ID, "icon.png", "image/png", encodePNG(t, 33, 17))
	require.NoError(t, err)
	require.NotNil(t, item.Width)
	assert.Equal(t, 33, *item.Width)
	assert.Equal(t, 17, *item.Height)
}

func TestIngest_UndecodableImageHasNoDimensions(t *testing.T) {
	f := newFixture(t)
	space := f.space(t)

	item, err := f.svc.IngestBytes(context.Background(), space.ID, "broken.png", "image/png", []byte("not really a png"))
	require.NoError(t, err)
	assert.True(t, item.IsComplete())
	assert.Nil(t, item.Width)
	assert.Nil(t, item.Height)
}

func TestIngest_PersistsAndSignsCompletedItem(t *testing.T) {
	f := newFixture(t)
	space := f.space(t)

	item, err := f.svc.IngestBytes(context.Background(), space.ID, "notes.txt", "text/plain", []byte("hello"))
	require.NoError(t, err)
	require.True(t, item.Persisted())
	assert.NotEmpty(t, item.Key)
	assert.NotEmpty(t, item.Location)
	require.NotNil(t, item.LocationExpiresAt)
	assert.Equal(t, f.clock.Now().Add(time.Hour), *item.LocationExpiresAt)

	stored, err := f.repo.GetItem(context.Background(), item.ID)
	require.NoError(t, err)
	assert.Equal(t, item.Key, stored.Key)
	assert.Equal(t, simplemedia.CompletionComplete, stored.UploadCompletion)
	assert.Equal(t, int64(5), stored.SizeBytes)

	obj, err := f.blobs.Get(context.Background(), item.Key, nil)
	require.NoError(t, err)
	body, _ := io.ReadAll(obj.Body)
	assert.Equal(t, []byte("hello"), body)

	assert.Equal(t, []string{"created", "completed"}, f.events.names())
	assert.Equal(t, int32(1), f.spaces.increments.Load())
}

func TestIngest_Validation(t *testing.T) {
	f := newFixture(t)
	space := f.space(t)
	ctx := context.Background()

	_, err := f.svc.IngestBytes(ctx, space.ID, "empty.txt", "text/plain", nil)
	assert.ErrorIs(t, err, simplemedia.ErrEmptyFile)

	_, err = f.svc.Ingest(ctx, simplemedia.IngestRequest{SpaceID: space.ID, Size: 3})
	assert.ErrorIs(t, err, simplemedia.ErrInvalidRequest)

	_, err = f.svc.IngestBytes(ctx, uuid.Nil, "a.txt", "text/plain", []byte("abc"))
	assert.ErrorIs(t, err, simplemedia.ErrInvalidRequest)

	_, err = f.svc.IngestBytes(ctx, uuid.New(), "a.txt", "text/plain", []byte("abc"))
	assert.ErrorIs(t, err, simplemedia.ErrSpaceNotFound)

	page, err := f.repo.ListItems(ctx, simplemedia.ItemFilter{IncludeDeactivated: true})
	require.NoError(t, err)
	assert.Zero(t, page.Total, "rejected requests never create items")
}

func TestIngest_EmptyBodyWithDeclaredSize(t *testing.T) {
	f := newFixture(t)
	space := f.space(t)
	ctx := context.Background()

	item, err := f.svc.Ingest(ctx, simplemedia.IngestRequest{
		SpaceID:  space.ID,
		FileName: "ghost.bin",
		Body:     bytes.NewReader(nil),
		Size:     10,
	})
	assert.ErrorIs(t, err, simplemedia.ErrEmptyFile)
	require.NotNil(t, item)
	assert.False(t, item.IsComplete())
	require.NotNil(t, item.UploadError)

	stored, err := f.repo.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.UploadError)
	assert.Less(t, stored.UploadCompletion, simplemedia.CompletionComplete)

	_, err = f.blobs.Stat(ctx, item.Key)
	assert.ErrorIs(t, err, simplemedia.ErrNotFound, "empty blob is removed")
	assert.Zero(t, f.usedBytes(t, space.ID))
	assert.Equal(t, int32(0), f.spaces.increments.Load())
	assert.Equal(t, []string{"created", "failed"}, f.events.names())
}

func TestIngestStream_CancelledCallerDoesNotBlock(t *testing.T) {
	f := newFixture(t)
	space := f.space(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	baseline := runtime.NumGoroutine()

	data := bytes.Repeat([]byte("x"), 4000)
	events := f.svc.IngestStream(ctx, simplemedia.IngestRequest{
		SpaceID:  space.ID,
		FileName: "abandoned.bin",
		Body:     &chunkReader{r: bytes.NewReader(data), size: 40},
		Size:     int64(len(data)),
	})

	require.Eventually(t, func() bool { return len(events) == cap(events) }, 2*time.Second, 5*time.Millisecond)
	cancel()

	assert.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= baseline
	}, 2*time.Second, 10*time.Millisecond, "ingest goroutine must exit once the caller cancels")

	n := 0
	for range events {
		n++
	}
	assert.Equal(t, cap(events), n)
}

func TestIngest_DefaultMimeType(t *testing.T) {
	f := newFixture(t)
	space := f.space(t)

	item, err := f.svc.IngestBytes(context.Background(), space.ID, "blob", "", []byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, "application/octet-stream", item.MimeType)
}

func TestIngest_ProgressIsMonotonic(t *testing.T) {
	repo := &progressRepo{Repository: memory.New()}
	blobs := memorystorage.New()
	svc, err := simplemedia.New(
		simplemedia.WithRepository(repo),
		simplemedia.WithSpaceStore(repo),
		simplemedia.WithBlobStore(blobs),
	)
	require.NoError(t, err)

	space, err := svc.CreateSpace(context.Background(), simplemedia.CreateSpaceRequest{OwnerID: uuid.New()})
	require.NoError(t, err)

	data := bytes.Repeat([]byte("abcdefgh"), 1000)
	item, err := svc.Ingest(context.Background(), simplemedia.IngestRequest{
		SpaceID:  space.ID,
		FileName: "chunks.bin",
		Body:     &chunkReader{r: bytes.NewReader(data), size: 137},
		Size:     int64(len(data)),
	})
	require.NoError(t, err)
	assert.Equal(t, simplemedia.CompletionComplete, item.UploadCompletion)

	require.NotEmpty(t, repo.applied)
	for i := 1; i < len(repo.applied); i++ {
		assert.Greater(t, repo.applied[i], repo.applied[i-1])
	}
	for _, c := range repo.applied {
		assert.Less(t, c, simplemedia.CompletionComplete, "100 is only written at finalize")
		assert.GreaterOrEqual(t, c, 0)
	}
}

func TestIngest_BlobFailureRecordsError(t *testing.T) {
	f := newFixture(t, simplemedia.WithBlobStore(&flakyStore{Backend: memorystorage.New(), failAfter: 512}))
	space := f.space(t)

	data := bytes.Repeat([]byte{7}, 1024)
	item, err := f.svc.Ingest(context.Background(), simplemedia.IngestRequest{
		SpaceID:  space.ID,
		FileName: "doomed.bin",
		Body:     &chunkReader{r: bytes.NewReader(data), size: 128},
		Size:     int64(len(data)),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, simplemedia.ErrStoreUnavailable)
	var storageErr *simplemedia.StorageError
	assert.ErrorAs(t, err, &storageErr)

	require.NotNil(t, item)
	assert.True(t, item.IsFailed())
	assert.False(t, item.IsComplete())

	stored, err := f.repo.GetItem(context.Background(), item.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.UploadError)
	assert.Less(t, stored.UploadCompletion, simplemedia.CompletionComplete)
	assert.Greater(t, stored.UploadCompletion, 0)
	assert.NotEmpty(t, stored.Key)
	assert.Zero(t, stored.SizeBytes)

	assert.Equal(t, int32(0), f.spaces.increments.Load(), "failed uploads are never charged")
	assert.Equal(t, int64(0), f.usedBytes(t, space.ID))
	assert.Equal(t, []string{"created", "failed"}, f.events.names())

	ok, err := f.repo.UpdateProgress(context.Background(), item.ID, 99)
	require.NoError(t, err)
	assert.False(t, ok, "a failed item's progress is frozen")
}

func TestIngest_LedgerFailureKeepsCompletedItem(t *testing.T) {
	f := newFixture(t)
	space := f.space(t)
	f.spaces.fail.Store(true)

	item, err := f.svc.IngestBytes(context.Background(), space.ID, "a.txt", "text/plain", []byte("abc"))
	require.Error(t, err)
	assert.ErrorIs(t, err, simplemedia.ErrQuotaAdjustmentFailed)
	var quotaErr *simplemedia.QuotaError
	require.ErrorAs(t, err, &quotaErr)
	assert.Equal(t, int64(3), quotaErr.Delta)

	require.NotNil(t, item)
	assert.True(t, item.IsComplete())

	stored, err := f.repo.GetItem(context.Background(), item.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsComplete())
	assert.Equal(t, int64(3), stored.SizeBytes)
	assert.Equal(t, int32(1), f.spaces.increments.Load())
}

func TestIngest_ConcurrentIntoOneSpace(t *testing.T) {
	f := newFixture(t)
	space := f.space(t)

	const workers = 25
	var wg sync.WaitGroup
	var want int64
	for i := 0; i < workers; i++ {
		size := 100 + i*37
		want += int64(size)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.IngestBytes(context.Background(), space.ID, fmt.Sprintf("f%d.bin", i), "", bytes.Repeat([]byte{byte(i)}, size))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, want, f.usedBytes(t, space.ID))
	assert.Equal(t, int32(workers), f.spaces.increments.Load())

	page, err := f.svc.ListItems(context.Background(), simplemedia.ItemFilter{SpaceID: &space.ID, Limit: 100})
	require.NoError(t, err)
	assert.Equal(t, workers, page.Total)
}

func TestIngestStream_Events(t *testing.T) {
	f := newFixture(t)
	space := f.space(t)

	data := bytes.Repeat([]byte("0123456789"), 500)
	events := f.svc.IngestStream(context.Background(), simplemedia.IngestRequest{
		SpaceID:  space.ID,
		FileName: "stream.bin",
		Body:     &chunkReader{r: bytes.NewReader(data), size: 250},
		Size:     int64(len(data)),
	})

	var got []simplemedia.IngestEvent
	for ev := range events {
		got = append(got, ev)
	}
	require.GreaterOrEqual(t, len(got), 2)

	last := got[len(got)-1]
	assert.True(t, last.Terminal())
	assert.Equal(t, simplemedia.IngestCompleted, last.Type)
	assert.NoError(t, last.Err)
	require.NotNil(t, last.Item)
	assert.Equal(t, int64(len(data)), last.Item.SizeBytes)
	assert.Equal(t, simplemedia.CompletionComplete, last.Completion)

	prev := -1
	for _, ev := range got[:len(got)-1] {
		assert.Equal(t, simplemedia.IngestProgress, ev.Type)
		assert.False(t, ev.Terminal())
		assert.Equal(t, last.ItemID, ev.ItemID)
		assert.Greater(t, ev.Completion, prev)
		prev = ev.Completion
	}
}

func TestIngestStream_FailureIsTerminal(t *testing.T) {
	f := newFixture(t)

	var got []simplemedia.IngestEvent
	for ev := range f.svc.IngestStream(context.Background(), simplemedia.IngestRequest{SpaceID: uuid.New(), Size: 0}) {
		got = append(got, ev)
	}
	require.Len(t, got, 1)
	assert.Equal(t, simplemedia.IngestFailed, got[0].Type)
	assert.ErrorIs(t, got[0].Err, simplemedia.ErrEmptyFile)
}

func TestRetireItem_ReturnsBytesOnce(t *testing.T) {
	f := newFixture(t)
	space := f.space(t)
	ctx := context.Background()

	keep, err := f.svc.IngestBytes(ctx, space.ID, "keep.txt", "text/plain", []byte("keep"))
	require.NoError(t, err)
	drop, err := f.svc.IngestBytes(ctx, space.ID, "drop.txt", "text/plain", []byte("drop me"))
	require.NoError(t, err)
	assert.Equal(t, int64(11), f.usedBytes(t, space.ID))

	retired, err := f.svc.RetireItem(ctx, drop.ID)
	require.NoError(t, err)
	assert.True(t, retired.IsDeactivated())
	assert.Equal(t, int64(4), f.usedBytes(t, space.ID))

	_, err = f.svc.RetireItem(ctx, drop.ID)
	assert.ErrorIs(t, err, simplemedia.ErrAlreadyRetired)
	assert.Equal(t, int64(4), f.usedBytes(t, space.ID))

	_, err = f.svc.RetireItem(ctx, uuid.New())
	assert.ErrorIs(t, err, simplemedia.ErrItemNotFound)

	page, err := f.svc.ListItems(ctx, simplemedia.ItemFilter{SpaceID: &space.ID})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, keep.ID, page.Items[0].ID)

	page, err = f.svc.ListItems(ctx, simplemedia.ItemFilter{SpaceID: &space.ID, IncludeDeactivated: true})
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
}

func TestRetireItem_FailedUploadIsNotCredited(t *testing.T) {
	f := newFixture(t, simplemedia.WithBlobStore(&flakyStore{Backend: memorystorage.New(), failAfter: 1}))
	space := f.space(t)
	ctx := context.Background()

	item, err := f.svc.IngestBytes(ctx, space.ID, "x.bin", "", []byte("abcdef"))
	require.Error(t, err)

	_, err = f.svc.RetireItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, int32(0), f.spaces.increments.Load())
	assert.Equal(t, int64(0), f.usedBytes(t, space.ID))
}

func TestCreateSpace(t *testing.T) {
	f := newFixture(t)
	id := uuid.New()
	space, err := f.svc.CreateSpace(context.Background(), simplemedia.CreateSpaceRequest{ID: id, OwnerID: uuid.New()})
	require.NoError(t, err)
	assert.Equal(t, id, space.ID)
	assert.Equal(t, f.clock.Now(), space.CreatedAt)

	_, err = f.svc.GetSpace(context.Background(), uuid.New())
	assert.ErrorIs(t, err, simplemedia.ErrSpaceNotFound)
}

func TestLedger_Adjust(t *testing.T) {
	spaces := &countingSpaces{Repository: memory.New()}
	space := &simplemedia.Space{OwnerID: uuid.New()}
	require.NoError(t, spaces.CreateSpace(context.Background(), space))

	ledger := simplemedia.NewLedger(spaces)
	require.NoError(t, ledger.Adjust(context.Background(), space.ID, 0))
	assert.Equal(t, int32(0), spaces.increments.Load(), "zero deltas are skipped")

	require.NoError(t, ledger.Adjust(context.Background(), space.ID, 40))
	require.NoError(t, ledger.Adjust(context.Background(), space.ID, -15))
	got, err := spaces.GetSpace(context.Background(), space.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(25), got.UsedBytes)

	err = ledger.Adjust(context.Background(), uuid.New(), 5)
	assert.ErrorIs(t, err, simplemedia.ErrQuotaAdjustmentFailed)
	assert.ErrorIs(t, err, simplemedia.ErrSpaceNotFound)
}
