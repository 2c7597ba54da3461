package transcode_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-media/pkg/simplemedia"
	"github.com/tendant/simple-media/pkg/simplemedia/objectkey"
	"github.com/tendant/simple-media/pkg/simplemedia/storage/memory"
	"github.com/tendant/simple-media/pkg/simplemedia/transcode"
)

const sourceKey = "spaces/s1/originals/ab/cdef_movie.mp4"

type fakeTranscoder struct {
	segments   int
	convertErr error
	duration   float64

	mu      sync.Mutex
	inputs  []string
	outputs []string
}

func (f *fakeTranscoder) Probe(ctx context.Context, path string) (*transcode.ProbeResult, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	return &transcode.ProbeResult{DurationSeconds: f.duration}, nil
}

func (f *fakeTranscoder) Convert(ctx context.Context, inputPath, outputDir string) error {
	f.mu.Lock()
	f.inputs = append(f.inputs, inputPath)
	f.outputs = append(f.outputs, outputDir)
	f.mu.Unlock()

	if f.convertErr != nil {
		return f.convertErr
	}
	var playlist bytes.Buffer
	playlist.WriteString("#EXTM3U\n")
	for i := 0; i < f.segments; i++ {
		name := fmt.Sprintf("segment_%03d.ts", i)
		if err := os.WriteFile(filepath.Join(outputDir, name), bytes.Repeat([]byte{byte(i)}, 100), 0o644); err != nil {
			return err
		}
		playlist.WriteString(name + "\n")
	}
	return os.WriteFile(filepath.Join(outputDir, objectkey.PlaylistName), playlist.Bytes(), 0o644)
}

// recordingStore tracks put order and can fail selected keys
type recordingStore struct {
	*memory.Backend
	mu     sync.Mutex
	puts   []string
	failOn string
}

func (r *recordingStore) Put(ctx context.Context, key string, body io.Reader, params simplemedia.PutParams) (*simplemedia.ObjectMeta, error) {
	r.mu.Lock()
	r.puts = append(r.puts, key)
	r.mu.Unlock()
	if r.failOn != "" && filepath.Base(key) == r.failOn {
		return nil, &simplemedia.StorageError{Backend: "test", Key: key, Op: "put", Err: simplemedia.ErrStoreUnavailable}
	}
	return r.Backend.Put(ctx, key, body, params)
}

func newStore(t *testing.T) *recordingStore {
	t.Helper()
	store := &recordingStore{Backend: memory.New()}
	_, err := store.Backend.Put(context.Background(), sourceKey, bytes.NewReader([]byte("fake mp4 body")), simplemedia.PutParams{ContentType: "video/mp4"})
	require.NoError(t, err)
	return store
}

func assertNoStaging(t *testing.T, root string) {
	t.Helper()
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries, "staging dirs must be removed")
}

func TestWorker_Success(t *testing.T) {
	root := t.TempDir()
	store := newStore(t)
	tc := &fakeTranscoder{segments: 3}

	var observed *transcode.Job
	w, err := transcode.New(store, tc, transcode.WithStagingRoot(root), transcode.WithJobObserver(func(j *transcode.Job) { observed = j }))
	require.NoError(t, err)

	job, err := w.Run(context.Background(), sourceKey)
	require.NoError(t, err)
	require.NotNil(t, job.Result)

	assert.Equal(t, []transcode.Stage{
		transcode.StageIdle, transcode.StageStaged, transcode.StageDownloaded,
		transcode.StageConverted, transcode.StageUploaded, transcode.StageCleaned,
	}, job.History)
	assert.Same(t, job, observed)

	prefix := "spaces/s1/originals/ab/cdef_movie.hls/"
	assert.Equal(t, prefix, job.Result.Prefix)
	assert.Equal(t, prefix+objectkey.PlaylistName, job.Result.OutputKey)
	assert.Len(t, job.Result.Files, 4)
	assert.Equal(t, job.Result.OutputKey, job.Result.Files[3])

	// playlist is always the last object written
	require.Len(t, store.puts, 4)
	assert.Equal(t, job.Result.OutputKey, store.puts[3])

	var total int64
	for _, key := range job.Result.Files {
		meta, err := store.Stat(context.Background(), key)
		require.NoError(t, err)
		total += meta.Size
	}
	assert.Equal(t, total, job.Result.TotalBytes)
	assert.Equal(t, ".mp4", filepath.Ext(tc.inputs[0]))
	assertNoStaging(t, root)
}

func TestWorker_DeterministicPrefix(t *testing.T) {
	store := newStore(t)
	w, err := transcode.New(store, &fakeTranscoder{segments: 1}, transcode.WithStagingRoot(t.TempDir()))
	require.NoError(t, err)

	first, err := w.Transcode(context.Background(), sourceKey)
	require.NoError(t, err)
	second, err := w.Transcode(context.Background(), sourceKey)
	require.NoError(t, err)
	assert.Equal(t, first.Prefix, second.Prefix)
	assert.Equal(t, first.OutputKey, second.OutputKey)
}

func TestWorker_MissingSource(t *testing.T) {
	root := t.TempDir()
	tc := &fakeTranscoder{segments: 1}
	w, err := transcode.New(memory.New(), tc, transcode.WithStagingRoot(root))
	require.NoError(t, err)

	job, err := w.Run(context.Background(), "spaces/s1/missing.mp4")
	require.Error(t, err)
	assert.ErrorIs(t, err, simplemedia.ErrSourceUnavailable)

	var se *transcode.StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, transcode.StageDownloaded, se.Stage)
	assert.Equal(t, []transcode.Stage{
		transcode.StageIdle, transcode.StageStaged, transcode.StageFailed, transcode.StageCleaned,
	}, job.History)
	assert.Empty(t, tc.inputs, "converter must not run without a source")
	assertNoStaging(t, root)
}

func TestWorker_StagingFailure(t *testing.T) {
	root := filepath.Join(t.TempDir(), "missing")
	tc := &fakeTranscoder{segments: 1}
	w, err := transcode.New(newStore(t), tc, transcode.WithStagingRoot(root))
	require.NoError(t, err)

	job, err := w.Run(context.Background(), sourceKey)
	require.Error(t, err)

	var se *transcode.StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, transcode.StageStaged, se.Stage)
	assert.Equal(t, []transcode.Stage{
		transcode.StageIdle, transcode.StageFailed, transcode.StageCleaned,
	}, job.History)
	assert.Empty(t, job.StagingDir)
	assert.Empty(t, tc.inputs)
	assert.NoDirExists(t, root)
}

func TestWorker_ConversionFailure(t *testing.T) {
	root := t.TempDir()
	store := newStore(t)
	tc := &fakeTranscoder{convertErr: &simplemedia.ConversionError{Diagnostic: "moov atom not found", Err: errors.New("exit status 1")}}
	w, err := transcode.New(store, tc, transcode.WithStagingRoot(root))
	require.NoError(t, err)

	job, err := w.Run(context.Background(), sourceKey)
	require.Error(t, err)
	assert.ErrorIs(t, err, simplemedia.ErrConversion)

	var ce *simplemedia.ConversionError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "moov atom not found", ce.Diagnostic)

	var se *transcode.StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, transcode.StageConverted, se.Stage)
	assert.Nil(t, job.Result)
	assert.Equal(t, transcode.StageCleaned, job.Stage)
	assert.Empty(t, store.Keys(objectkey.StreamPrefix(sourceKey)))
	assertNoStaging(t, root)
}

func TestWorker_PlainConverterErrorIsWrapped(t *testing.T) {
	store := newStore(t)
	w, err := transcode.New(store, &fakeTranscoder{convertErr: errors.New("boom")}, transcode.WithStagingRoot(t.TempDir()))
	require.NoError(t, err)

	_, err = w.Transcode(context.Background(), sourceKey)
	assert.ErrorIs(t, err, simplemedia.ErrConversion)
}

func TestWorker_UploadFailureSkipsPlaylist(t *testing.T) {
	root := t.TempDir()
	store := newStore(t)
	store.failOn = "segment_001.ts"
	w, err := transcode.New(store, &fakeTranscoder{segments: 3}, transcode.WithStagingRoot(root), transcode.WithUploadConcurrency(1))
	require.NoError(t, err)

	result, err := w.Transcode(context.Background(), sourceKey)
	require.Error(t, err)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, simplemedia.ErrStoreUnavailable)

	var se *transcode.StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, transcode.StageUploaded, se.Stage)
	assert.NotContains(t, store.puts, objectkey.PlaylistKey(sourceKey))
	assertNoStaging(t, root)
}

func TestWorker_DistinctStagingDirs(t *testing.T) {
	root := t.TempDir()
	store := newStore(t)
	tc := &fakeTranscoder{segments: 2}
	w, err := transcode.New(store, tc, transcode.WithStagingRoot(root))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := w.Transcode(context.Background(), sourceKey)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	seen := make(map[string]bool)
	for _, dir := range tc.outputs {
		assert.False(t, seen[dir], "staging dir reused: %s", dir)
		seen[dir] = true
	}
	assert.Len(t, seen, 5)
	assertNoStaging(t, root)
}

func TestWorker_ProbeDuration(t *testing.T) {
	root := t.TempDir()
	store := newStore(t)
	w, err := transcode.New(store, &fakeTranscoder{duration: 12.5}, transcode.WithStagingRoot(root))
	require.NoError(t, err)

	d, err := w.ProbeDuration(context.Background(), sourceKey)
	require.NoError(t, err)
	assert.Equal(t, 12.5, d)
	assertNoStaging(t, root)

	_, err = w.ProbeDuration(context.Background(), "missing.mp4")
	assert.ErrorIs(t, err, simplemedia.ErrSourceUnavailable)
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := transcode.New(nil, &fakeTranscoder{})
	assert.Error(t, err)
	_, err = transcode.New(memory.New(), nil)
	assert.Error(t, err)
}

func TestStage_String(t *testing.T) {
	assert.Equal(t, "converted", transcode.StageConverted.String())
	assert.Equal(t, "stage(42)", transcode.Stage(42).String())
}
