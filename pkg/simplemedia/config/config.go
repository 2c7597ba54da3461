package config

import (
	"errors"
	"fmt"
	"time"
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top of library defaults.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() ServerConfig {
	return ServerConfig{
		Port:         "8080",
		Environment:  "development",
		DatabaseType: "memory",
		DBSchema:     "media",
		Storage:      StorageConfig{Type: "memory"},
		Links: LinkConfig{
			TTL:        time.Hour,
			URLPattern: "/blobs/{key}",
		},
		Transcode: TranscodeConfig{
			FFmpegPath:        "ffmpeg",
			FFprobePath:       "ffprobe",
			SegmentSeconds:    6,
			UploadConcurrency: 4,
		},
		Variants: VariantConfig{
			MaxDimension:     1024,
			Concurrency:      4,
			DownloadMaxBytes: 50 << 20,
			DownloadTimeout:  time.Minute,
		},
		EnableEventLogging: true,
	}
}

// ServerConfig represents configuration for the simple-media engine and its server
type ServerConfig struct {
	Port        string
	Environment string // development, production, testing

	// Database configuration
	DatabaseURL  string
	DatabaseType string // "memory", "postgres"
	DBSchema     string
	AutoMigrate  bool

	// SpaceStoreURL moves space accounting to Redis when set (redis://...).
	// Otherwise spaces live in the content database.
	SpaceStoreURL    string
	SpaceStorePrefix string

	Storage   StorageConfig
	Links     LinkConfig
	Transcode TranscodeConfig
	Variants  VariantConfig
	Events    EventConfig

	EnableEventLogging bool
}

// StorageConfig selects and configures the blob store
type StorageConfig struct {
	Type string // "memory", "fs", "s3", "minio"

	BaseDir string // fs

	Bucket          string // s3, minio
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	UseSSL          bool
	CreateBucket    bool
	EnableSSE       bool
	SSEAlgorithm    string
	SSEKMSKeyID     string
}

// LinkConfig configures delivery links. SecretKey is required for memory and
// fs storage, whose links are HMAC-signed and served by this process.
type LinkConfig struct {
	SecretKey   string
	TTL         time.Duration
	RefreshSkew time.Duration
	BaseURL     string
	URLPattern  string
}

// TranscodeConfig enables the HLS transcode worker
type TranscodeConfig struct {
	Enabled           bool
	FFmpegPath        string
	FFprobePath       string
	StagingDir        string
	SegmentSeconds    int
	UploadConcurrency int
	PresetFile        string
	Preset            string
}

// VariantConfig registers AI variant providers
type VariantConfig struct {
	DefaultProvider  string
	OpenAIAPIKey     string
	OpenAIBaseURL    string
	OpenAIModel      string
	ReplicateToken   string
	ReplicateBaseURL string
	ReplicateModel   string
	MaxDimension     uint
	Concurrency      int
	DownloadMaxBytes int64
	DownloadTimeout  time.Duration
}

// EventConfig publishes lifecycle events to NATS JetStream when URL is set
type EventConfig struct {
	NATSURL       string
	SubjectPrefix string
	Stream        string
}

// IsProduction reports whether the server runs in production mode
func (c *ServerConfig) IsProduction() bool {
	return c.Environment == "production"
}

// SignsLocally reports whether links are HMAC-signed by this process rather
// than presigned by the storage service.
func (c *ServerConfig) SignsLocally() bool {
	return c.Storage.Type == "memory" || c.Storage.Type == "fs"
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}

	if c.DatabaseType != "memory" && c.DatabaseType != "postgres" {
		return errors.New("database_type must be 'memory' or 'postgres'")
	}
	if c.DatabaseType == "postgres" && c.DatabaseURL == "" {
		return errors.New("database_url is required when using postgres")
	}

	switch c.Storage.Type {
	case "memory":
	case "fs":
		if c.Storage.BaseDir == "" {
			return errors.New("storage base_dir is required for fs storage")
		}
	case "s3", "minio":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage bucket is required for %s storage", c.Storage.Type)
		}
		if c.Storage.Type == "minio" && c.Storage.Endpoint == "" {
			return errors.New("storage endpoint is required for minio storage")
		}
	default:
		return fmt.Errorf("unsupported storage type: %s", c.Storage.Type)
	}

	if c.SignsLocally() && c.IsProduction() && c.Links.SecretKey == "" {
		return errors.New("link secret key is required in production with local signing")
	}
	if c.Links.TTL <= 0 {
		return errors.New("link ttl must be positive")
	}

	if c.Transcode.Enabled && c.Transcode.SegmentSeconds <= 0 {
		return errors.New("transcode segment seconds must be positive")
	}

	switch c.Variants.DefaultProvider {
	case "":
	case ProviderOpenAI:
		if c.Variants.OpenAIAPIKey == "" {
			return errors.New("openai api key is required for the openai provider")
		}
	case ProviderReplicate:
		if c.Variants.ReplicateToken == "" || c.Variants.ReplicateModel == "" {
			return errors.New("replicate token and model are required for the replicate provider")
		}
	default:
		return fmt.Errorf("unknown variant provider: %s", c.Variants.DefaultProvider)
	}

	return nil
}

// Variant provider names
const (
	ProviderOpenAI    = "openai"
	ProviderReplicate = "replicate"
)
