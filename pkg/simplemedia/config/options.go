package config

import (
	"fmt"
	"time"
)

// WithPort sets the server port
func WithPort(port string) Option {
	return func(c *ServerConfig) error {
		if port == "" {
			return fmt.Errorf("port cannot be empty")
		}
		c.Port = port
		return nil
	}
}

// WithEnvironment sets the environment (development, production, testing)
func WithEnvironment(env string) Option {
	return func(c *ServerConfig) error {
		if env == "" {
			return fmt.Errorf("environment cannot be empty")
		}
		c.Environment = env
		return nil
	}
}

// WithDatabase configures the database backend
func WithDatabase(dbType, url string) Option {
	return func(c *ServerConfig) error {
		if dbType != "memory" && dbType != "postgres" {
			return fmt.Errorf("database type must be 'memory' or 'postgres', got: %s", dbType)
		}
		if dbType == "postgres" && url == "" {
			return fmt.Errorf("database URL is required for postgres")
		}
		c.DatabaseType = dbType
		c.DatabaseURL = url
		return nil
	}
}

// WithDatabaseSchema sets the Postgres search_path schema
func WithDatabaseSchema(schema string) Option {
	return func(c *ServerConfig) error {
		c.DBSchema = schema
		return nil
	}
}

// WithRedisSpaceStore keeps space accounting in Redis
func WithRedisSpaceStore(url, keyPrefix string) Option {
	return func(c *ServerConfig) error {
		if url == "" {
			return fmt.Errorf("redis url cannot be empty")
		}
		c.SpaceStoreURL = url
		c.SpaceStorePrefix = keyPrefix
		return nil
	}
}

// WithMemoryStorage selects in-process blob storage
func WithMemoryStorage() Option {
	return func(c *ServerConfig) error {
		c.Storage = StorageConfig{Type: "memory"}
		return nil
	}
}

// WithFilesystemStorage stores blobs under baseDir
func WithFilesystemStorage(baseDir string) Option {
	return func(c *ServerConfig) error {
		if baseDir == "" {
			return fmt.Errorf("filesystem base directory cannot be empty")
		}
		c.Storage = StorageConfig{Type: "fs", BaseDir: baseDir}
		return nil
	}
}

// WithS3Storage stores blobs in an S3 bucket
func WithS3Storage(storage StorageConfig) Option {
	return func(c *ServerConfig) error {
		if storage.Bucket == "" {
			return fmt.Errorf("s3 bucket cannot be empty")
		}
		storage.Type = "s3"
		c.Storage = storage
		return nil
	}
}

// WithMinIOStorage stores blobs in a MinIO bucket
func WithMinIOStorage(storage StorageConfig) Option {
	return func(c *ServerConfig) error {
		if storage.Bucket == "" || storage.Endpoint == "" {
			return fmt.Errorf("minio endpoint and bucket cannot be empty")
		}
		storage.Type = "minio"
		c.Storage = storage
		return nil
	}
}

// WithLinkSecret sets the HMAC key for locally signed links
func WithLinkSecret(secret string) Option {
	return func(c *ServerConfig) error {
		c.Links.SecretKey = secret
		return nil
	}
}

// WithLinkTTL sets the delivery link lifetime
func WithLinkTTL(ttl time.Duration) Option {
	return func(c *ServerConfig) error {
		if ttl <= 0 {
			return fmt.Errorf("link ttl must be positive, got: %s", ttl)
		}
		c.Links.TTL = ttl
		return nil
	}
}

// WithTranscode enables the ffmpeg transcode worker
func WithTranscode(t TranscodeConfig) Option {
	return func(c *ServerConfig) error {
		t.Enabled = true
		if t.FFmpegPath == "" {
			t.FFmpegPath = c.Transcode.FFmpegPath
		}
		if t.FFprobePath == "" {
			t.FFprobePath = c.Transcode.FFprobePath
		}
		if t.SegmentSeconds == 0 {
			t.SegmentSeconds = c.Transcode.SegmentSeconds
		}
		if t.UploadConcurrency == 0 {
			t.UploadConcurrency = c.Transcode.UploadConcurrency
		}
		c.Transcode = t
		return nil
	}
}

// WithOpenAI registers the OpenAI provider
func WithOpenAI(apiKey, model string) Option {
	return func(c *ServerConfig) error {
		if apiKey == "" {
			return fmt.Errorf("openai api key cannot be empty")
		}
		c.Variants.OpenAIAPIKey = apiKey
		c.Variants.OpenAIModel = model
		if c.Variants.DefaultProvider == "" {
			c.Variants.DefaultProvider = ProviderOpenAI
		}
		return nil
	}
}

// WithReplicate registers the Replicate provider
func WithReplicate(token, model string) Option {
	return func(c *ServerConfig) error {
		if token == "" || model == "" {
			return fmt.Errorf("replicate token and model cannot be empty")
		}
		c.Variants.ReplicateToken = token
		c.Variants.ReplicateModel = model
		if c.Variants.DefaultProvider == "" {
			c.Variants.DefaultProvider = ProviderReplicate
		}
		return nil
	}
}

// WithNATSEvents publishes lifecycle events to JetStream
func WithNATSEvents(url, subjectPrefix, stream string) Option {
	return func(c *ServerConfig) error {
		if url == "" {
			return fmt.Errorf("nats url cannot be empty")
		}
		c.Events = EventConfig{NATSURL: url, SubjectPrefix: subjectPrefix, Stream: stream}
		return nil
	}
}

// WithEventLogging toggles the logging event sink
func WithEventLogging(enabled bool) Option {
	return func(c *ServerConfig) error {
		c.EnableEventLogging = enabled
		return nil
	}
}
