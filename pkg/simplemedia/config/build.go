package config

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tendant/simple-media/pkg/simplemedia"
	natsevents "github.com/tendant/simple-media/pkg/simplemedia/events/nats"
	redisledger "github.com/tendant/simple-media/pkg/simplemedia/ledger/redis"
	"github.com/tendant/simple-media/pkg/simplemedia/metrics"
	"github.com/tendant/simple-media/pkg/simplemedia/presigned"
	"github.com/tendant/simple-media/pkg/simplemedia/repo/memory"
	repopg "github.com/tendant/simple-media/pkg/simplemedia/repo/postgres"
	fsstorage "github.com/tendant/simple-media/pkg/simplemedia/storage/fs"
	memorystorage "github.com/tendant/simple-media/pkg/simplemedia/storage/memory"
	miniostorage "github.com/tendant/simple-media/pkg/simplemedia/storage/minio"
	s3storage "github.com/tendant/simple-media/pkg/simplemedia/storage/s3"
	"github.com/tendant/simple-media/pkg/simplemedia/transcode"
	"github.com/tendant/simple-media/pkg/simplemedia/transcode/ffmpeg"
	"github.com/tendant/simple-media/pkg/simplemedia/variantgen"
)

// BuildOptions carries process-level collaborators into Build
type BuildOptions struct {
	Logger  *slog.Logger
	Metrics *metrics.Recorder
}

// Runtime is an assembled engine plus the resources behind it
type Runtime struct {
	Service   simplemedia.Service
	BlobStore simplemedia.BlobStore

	// Signer is set when links are HMAC-signed locally and must be served by
	// a presigned.Handler.
	Signer *presigned.Signer

	closers []func() error
}

// Close releases database pools and broker connections
func (r *Runtime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		errs = append(errs, r.closers[i]())
	}
	return errors.Join(errs...)
}

// BuildService creates a Service instance from the server configuration.
// Use Build when the caller needs to release connections.
func (c *ServerConfig) BuildService() (simplemedia.Service, error) {
	rt, err := c.Build(context.Background(), BuildOptions{})
	if err != nil {
		return nil, err
	}
	return rt.Service, nil
}

// Build wires every configured backend into a Service
func (c *ServerConfig) Build(ctx context.Context, opts BuildOptions) (_ *Runtime, err error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rt := &Runtime{}
	defer func() {
		if err != nil {
			_ = rt.Close()
		}
	}()

	options := []simplemedia.Option{
		simplemedia.WithLogger(logger),
		simplemedia.WithLinkTTL(c.Links.TTL),
		simplemedia.WithLinkRefreshSkew(c.Links.RefreshSkew),
		simplemedia.WithMaxVariantDimension(c.Variants.MaxDimension),
		simplemedia.WithVariantConcurrency(c.Variants.Concurrency),
	}
	if opts.Metrics != nil {
		options = append(options, simplemedia.WithMetrics(opts.Metrics))
	}

	repo, spaces, err := c.buildRepository(ctx, rt)
	if err != nil {
		return nil, fmt.Errorf("failed to build repository: %w", err)
	}
	if c.SpaceStoreURL != "" {
		if spaces, err = c.buildRedisSpaceStore(ctx, rt); err != nil {
			return nil, fmt.Errorf("failed to build space store: %w", err)
		}
	}
	options = append(options, simplemedia.WithRepository(repo), simplemedia.WithSpaceStore(spaces))

	store, err := c.buildStorage(ctx, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build storage backend %s: %w", c.Storage.Type, err)
	}
	rt.BlobStore = store
	options = append(options, simplemedia.WithBlobStore(store))

	if c.SignsLocally() {
		rt.Signer = c.buildSigner(logger)
		options = append(options, simplemedia.WithLinkSigner(rt.Signer))
	}

	if c.Transcode.Enabled {
		worker, err := c.buildTranscoder(store, logger, opts.Metrics)
		if err != nil {
			return nil, fmt.Errorf("failed to build transcoder: %w", err)
		}
		options = append(options, simplemedia.WithTranscoder(worker))
	}

	genOptions, err := c.buildGenerators()
	if err != nil {
		return nil, fmt.Errorf("failed to build variant generators: %w", err)
	}
	options = append(options, genOptions...)

	sink, err := c.buildEventSink(ctx, rt, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build event sink: %w", err)
	}
	options = append(options, simplemedia.WithEventSink(sink))

	svc, err := simplemedia.New(options...)
	if err != nil {
		return nil, err
	}
	rt.Service = svc
	return rt, nil
}

func (c *ServerConfig) buildRepository(ctx context.Context, rt *Runtime) (simplemedia.Repository, simplemedia.SpaceStore, error) {
	switch c.DatabaseType {
	case "memory":
		repo := memory.New()
		return repo, repo, nil
	case "postgres":
		pool, err := c.newPool(ctx)
		if err != nil {
			return nil, nil, err
		}
		rt.closers = append(rt.closers, func() error { pool.Close(); return nil })

		repo := repopg.NewWithPool(pool)
		if c.AutoMigrate {
			if c.DBSchema != "" {
				if _, err := pool.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+pgx.Identifier{c.DBSchema}.Sanitize()); err != nil {
					return nil, nil, fmt.Errorf("create schema: %w", err)
				}
			}
			if err := repo.Migrate(ctx); err != nil {
				return nil, nil, err
			}
		}
		return repo, repo, nil
	default:
		return nil, nil, fmt.Errorf("unsupported database type: %s", c.DatabaseType)
	}
}

func (c *ServerConfig) newPool(ctx context.Context) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(c.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
	}
	if schema := c.DBSchema; schema != "" {
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			_, err := conn.Exec(ctx, "SET search_path TO "+pgx.Identifier{schema}.Sanitize())
			return err
		}
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	return pool, nil
}

func (c *ServerConfig) buildRedisSpaceStore(ctx context.Context, rt *Runtime) (simplemedia.SpaceStore, error) {
	var opts []redisledger.Option
	if c.SpaceStorePrefix != "" {
		opts = append(opts, redisledger.WithKeyPrefix(c.SpaceStorePrefix))
	}
	store, client, err := redisledger.NewFromURL(ctx, c.SpaceStoreURL, opts...)
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, client.Close)
	return store, nil
}

func (c *ServerConfig) buildStorage(ctx context.Context, logger *slog.Logger) (simplemedia.BlobStore, error) {
	s := c.Storage
	switch s.Type {
	case "memory":
		return memorystorage.New(), nil
	case "fs":
		return fsstorage.New(fsstorage.Config{BaseDir: s.BaseDir})
	case "s3":
		return s3storage.New(ctx, s3storage.Config{
			Region:                 s.Region,
			Bucket:                 s.Bucket,
			AccessKeyID:            s.AccessKeyID,
			SecretAccessKey:        s.SecretAccessKey,
			Endpoint:               s.Endpoint,
			UsePathStyle:           s.UsePathStyle,
			EnableSSE:              s.EnableSSE,
			SSEAlgorithm:           s.SSEAlgorithm,
			SSEKMSKeyID:            s.SSEKMSKeyID,
			CreateBucketIfNotExist: s.CreateBucket,
		})
	case "minio":
		return miniostorage.New(ctx, miniostorage.Config{
			Endpoint:     s.Endpoint,
			AccessKey:    s.AccessKeyID,
			SecretKey:    s.SecretAccessKey,
			Bucket:       s.Bucket,
			UseSSL:       s.UseSSL,
			Region:       s.Region,
			CreateBucket: s.CreateBucket,
		}, logger)
	default:
		return nil, fmt.Errorf("unsupported storage backend type: %s", s.Type)
	}
}

func (c *ServerConfig) buildSigner(logger *slog.Logger) *presigned.Signer {
	secret := c.Links.SecretKey
	if secret == "" {
		secret = randomSecret()
		logger.Warn("no link secret configured, signed links will not survive a restart")
	}
	return presigned.New(
		presigned.WithSecretKey(secret),
		presigned.WithDefaultExpiration(c.Links.TTL),
		presigned.WithURLPattern(c.Links.URLPattern),
		presigned.WithBaseURL(c.Links.BaseURL),
	)
}

func (c *ServerConfig) buildTranscoder(store simplemedia.BlobStore, logger *slog.Logger, recorder *metrics.Recorder) (*transcode.Worker, error) {
	preset := ffmpeg.DefaultPreset
	if c.Transcode.PresetFile != "" {
		lib, err := ffmpeg.LoadPresetFile(c.Transcode.PresetFile)
		if err != nil {
			return nil, err
		}
		name := c.Transcode.Preset
		if name == "" {
			name = "default"
		}
		p, ok := lib.Get(name)
		if !ok {
			return nil, fmt.Errorf("preset %q not found in %s", name, c.Transcode.PresetFile)
		}
		preset = p
	}

	tc := ffmpeg.New(ffmpeg.Config{
		FFmpegPath:     c.Transcode.FFmpegPath,
		FFprobePath:    c.Transcode.FFprobePath,
		SegmentSeconds: c.Transcode.SegmentSeconds,
		Preset:         preset,
	}, logger)

	opts := []transcode.Option{
		transcode.WithStagingRoot(c.Transcode.StagingDir),
		transcode.WithUploadConcurrency(c.Transcode.UploadConcurrency),
		transcode.WithLogger(logger),
	}
	if recorder != nil {
		opts = append(opts, transcode.WithMetrics(recorder))
	}
	return transcode.New(store, tc, opts...)
}

func (c *ServerConfig) buildGenerators() ([]simplemedia.Option, error) {
	v := c.Variants
	var opts []simplemedia.Option

	if v.OpenAIAPIKey != "" {
		gen, err := variantgen.NewOpenAI(variantgen.OpenAIConfig{
			APIKey:  v.OpenAIAPIKey,
			BaseURL: v.OpenAIBaseURL,
			Model:   v.OpenAIModel,
		})
		if err != nil {
			return nil, err
		}
		opts = append(opts, simplemedia.WithVariantGenerator(ProviderOpenAI, gen))
	}
	if v.ReplicateToken != "" && v.ReplicateModel != "" {
		gen, err := variantgen.NewReplicate(variantgen.ReplicateConfig{
			APIToken: v.ReplicateToken,
			BaseURL:  v.ReplicateBaseURL,
			Model:    v.ReplicateModel,
		})
		if err != nil {
			return nil, err
		}
		opts = append(opts, simplemedia.WithVariantGenerator(ProviderReplicate, gen))
	}
	if len(opts) == 0 {
		return nil, nil
	}

	if v.DefaultProvider != "" {
		opts = append(opts, simplemedia.WithDefaultProvider(v.DefaultProvider))
	}
	opts = append(opts, simplemedia.WithDownloader(variantgen.NewDownloader(
		variantgen.WithMaxBytes(v.DownloadMaxBytes),
		variantgen.WithTimeout(v.DownloadTimeout),
	)))
	return opts, nil
}

func (c *ServerConfig) buildEventSink(ctx context.Context, rt *Runtime, logger *slog.Logger) (simplemedia.EventSink, error) {
	var sinks simplemedia.MultiEventSink
	if c.EnableEventLogging {
		sinks = append(sinks, simplemedia.NewLoggingEventSink(logger))
	}
	if c.Events.NATSURL != "" {
		conn, err := natsevents.Connect(ctx, natsevents.Config{
			URL:           c.Events.NATSURL,
			SubjectPrefix: c.Events.SubjectPrefix,
			Stream:        c.Events.Stream,
		}, logger)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, conn.Close)
		sinks = append(sinks, conn.Sink)
	}
	switch len(sinks) {
	case 0:
		return simplemedia.NewNoopEventSink(), nil
	case 1:
		return sinks[0], nil
	default:
		return sinks, nil
	}
}

func randomSecret() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
