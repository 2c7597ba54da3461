package transcode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tendant/simple-media/pkg/simplemedia"
	"github.com/tendant/simple-media/pkg/simplemedia/objectkey"
)

// ProbeResult describes a media file as reported by the transcoder
type ProbeResult struct {
	DurationSeconds float64
	Width           int
	Height          int
	VideoCodec      string
	AudioCodec      string
}

// Transcoder is the external conversion tool
type Transcoder interface {
	Probe(ctx context.Context, path string) (*ProbeResult, error)

	// Convert writes an HLS playlist named objectkey.PlaylistName and its
	// segments into outputDir.
	Convert(ctx context.Context, inputPath, outputDir string) error
}

// Metrics receives job outcomes. A nil Metrics disables reporting.
type Metrics interface {
	TranscodeFinished(status, stage string, elapsed time.Duration)
}

const defaultUploadConcurrency = 4

// Worker stages a stored video locally, converts it and uploads the result
// under a prefix derived from the source key.
type Worker struct {
	store             simplemedia.BlobStore
	transcoder        Transcoder
	root              string
	uploadConcurrency int
	logger            *slog.Logger
	metrics           Metrics
	observe           func(*Job)
}

var _ simplemedia.StreamTranscoder = (*Worker)(nil)

// Option configures a Worker
type Option func(*Worker)

// WithStagingRoot sets the directory staging dirs are created in. Defaults to os.TempDir().
func WithStagingRoot(root string) Option {
	return func(w *Worker) {
		w.root = root
	}
}

// WithUploadConcurrency bounds parallel segment uploads
func WithUploadConcurrency(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.uploadConcurrency = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

func WithMetrics(m Metrics) Option {
	return func(w *Worker) {
		w.metrics = m
	}
}

// WithJobObserver is called with every finished job, after cleanup
func WithJobObserver(fn func(*Job)) Option {
	return func(w *Worker) {
		w.observe = fn
	}
}

// New creates a worker over store using t for probing and conversion
func New(store simplemedia.BlobStore, t Transcoder, opts ...Option) (*Worker, error) {
	if store == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if t == nil {
		return nil, fmt.Errorf("transcoder is required")
	}
	w := &Worker{
		store:             store,
		transcoder:        t,
		uploadConcurrency: defaultUploadConcurrency,
		logger:            slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Transcode implements simplemedia.StreamTranscoder
func (w *Worker) Transcode(ctx context.Context, sourceKey string) (*simplemedia.TranscodeResult, error) {
	job, err := w.Run(ctx, sourceKey)
	if err != nil {
		return nil, err
	}
	return job.Result, nil
}

// Run executes a full job and returns it with its stage history. The staging
// directory is removed whether or not the job succeeds.
func (w *Worker) Run(ctx context.Context, sourceKey string) (job *Job, err error) {
	job = &Job{
		ID:        uuid.New(),
		SourceKey: sourceKey,
		Prefix:    objectkey.StreamPrefix(sourceKey),
	}
	job.advance(StageIdle)
	start := time.Now()

	defer func() {
		failedAt := StageIdle
		var se *StageError
		if errors.As(job.Err, &se) {
			failedAt = se.Stage
		}
		w.cleanup(job)
		w.report(job, failedAt, time.Since(start))
	}()

	if err := w.stage(ctx, job); err != nil {
		return job, err
	}

	job.OutputDir = filepath.Join(job.StagingDir, "out")
	if err := os.MkdirAll(job.OutputDir, 0o755); err != nil {
		return job, job.fail(StageConverted, err)
	}
	if err := w.transcoder.Convert(ctx, job.InputPath, job.OutputDir); err != nil {
		var ce *simplemedia.ConversionError
		if !errors.As(err, &ce) {
			err = &simplemedia.ConversionError{Err: err}
		}
		return job, job.fail(StageConverted, err)
	}
	job.advance(StageConverted)

	result, err := w.upload(ctx, job)
	if err != nil {
		return job, job.fail(StageUploaded, err)
	}
	job.Result = result
	job.advance(StageUploaded)
	return job, nil
}

// ProbeDuration implements simplemedia.DurationProber
func (w *Worker) ProbeDuration(ctx context.Context, key string) (float64, error) {
	job := &Job{ID: uuid.New(), SourceKey: key}
	job.advance(StageIdle)
	defer w.cleanup(job)

	if err := w.stage(ctx, job); err != nil {
		return 0, err
	}
	probe, err := w.transcoder.Probe(ctx, job.InputPath)
	if err != nil {
		return 0, fmt.Errorf("probe %s: %w", key, err)
	}
	return probe.DurationSeconds, nil
}

// stage creates the staging dir and downloads the source into it
func (w *Worker) stage(ctx context.Context, job *Job) error {
	dir, err := os.MkdirTemp(w.root, "transcode-"+job.ID.String()+"-")
	if err != nil {
		return job.fail(StageStaged, err)
	}
	job.StagingDir = dir
	job.advance(StageStaged)

	obj, err := w.store.Get(ctx, job.SourceKey, nil)
	if err != nil {
		return job.fail(StageDownloaded, fmt.Errorf("%w: %s: %w", simplemedia.ErrSourceUnavailable, job.SourceKey, err))
	}
	defer obj.Body.Close()

	job.InputPath = filepath.Join(dir, "input"+path.Ext(job.SourceKey))
	f, err := os.Create(job.InputPath)
	if err != nil {
		return job.fail(StageDownloaded, err)
	}
	_, copyErr := io.Copy(f, obj.Body)
	closeErr := f.Close()
	if copyErr != nil {
		return job.fail(StageDownloaded, fmt.Errorf("%w: %s: %w", simplemedia.ErrSourceUnavailable, job.SourceKey, copyErr))
	}
	if closeErr != nil {
		return job.fail(StageDownloaded, closeErr)
	}
	job.advance(StageDownloaded)
	return nil
}

// upload stores every segment in parallel, then the playlist. A partial
// upload never yields a result.
func (w *Worker) upload(ctx context.Context, job *Job) (*simplemedia.TranscodeResult, error) {
	entries, err := os.ReadDir(job.OutputDir)
	if err != nil {
		return nil, err
	}

	var segments []string
	hasPlaylist := false
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if e.Name() == objectkey.PlaylistName {
			hasPlaylist = true
			continue
		}
		segments = append(segments, e.Name())
	}
	if !hasPlaylist {
		return nil, &simplemedia.ConversionError{Err: fmt.Errorf("no %s produced", objectkey.PlaylistName)}
	}
	sort.Strings(segments)

	sizes := make([]int64, len(segments))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.uploadConcurrency)
	for i, name := range segments {
		g.Go(func() error {
			n, err := w.put(gctx, job, name)
			sizes[i] = n
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	playlistSize, err := w.put(ctx, job, objectkey.PlaylistName)
	if err != nil {
		return nil, err
	}

	result := &simplemedia.TranscodeResult{
		SourceKey:  job.SourceKey,
		OutputKey:  job.Prefix + objectkey.PlaylistName,
		Prefix:     job.Prefix,
		TotalBytes: playlistSize,
	}
	for i, name := range segments {
		result.Files = append(result.Files, job.Prefix+name)
		result.TotalBytes += sizes[i]
	}
	result.Files = append(result.Files, result.OutputKey)
	return result, nil
}

func (w *Worker) put(ctx context.Context, job *Job, name string) (int64, error) {
	f, err := os.Open(filepath.Join(job.OutputDir, name))
	if err != nil {
		return 0, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	meta, err := w.store.Put(ctx, job.Prefix+name, f, simplemedia.PutParams{
		ContentType: segmentContentType(name),
		Size:        info.Size(),
	})
	if err != nil {
		return 0, err
	}
	if meta != nil && meta.Size > 0 {
		return meta.Size, nil
	}
	return info.Size(), nil
}

func (w *Worker) cleanup(job *Job) {
	if job.StagingDir != "" {
		if err := os.RemoveAll(job.StagingDir); err != nil {
			w.logger.Warn("failed to remove staging dir", "dir", job.StagingDir, "job_id", job.ID, "err", err)
		}
	}
	job.advance(StageCleaned)
}

func (w *Worker) report(job *Job, failedAt Stage, elapsed time.Duration) {
	status := "ok"
	if job.Err != nil {
		status = "error"
		w.logger.Error("transcode job failed", "job_id", job.ID, "key", job.SourceKey, "stage", failedAt.String(), "err", job.Err)
	} else {
		w.logger.Info("transcode job finished", "job_id", job.ID, "key", job.SourceKey, "files", len(job.Result.Files), "bytes", job.Result.TotalBytes)
		failedAt = StageCleaned
	}
	if w.metrics != nil {
		w.metrics.TranscodeFinished(status, failedAt.String(), elapsed)
	}
	if w.observe != nil {
		w.observe(job)
	}
}

func segmentContentType(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".m3u8":
		return simplemedia.MimeTypeHLSPlaylist
	case ".ts":
		return "video/mp2t"
	case ".m4s":
		return "video/iso.segment"
	case ".mp4":
		return "video/mp4"
	case ".vtt":
		return "text/vtt"
	default:
		return "application/octet-stream"
	}
}
