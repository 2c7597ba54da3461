package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// WithEnv applies environment variable overrides using the provided prefix.
//
// Server:
//
//	PORT, ENVIRONMENT
//
// Database:
//
//	DATABASE_URL - "memory" (default) or "postgres://..." / "postgresql://..."
//	DB_SCHEMA, DB_AUTO_MIGRATE
//	SPACE_STORE_URL - optional "redis://host:6379/0" for space accounting
//
// Storage:
//
//	STORAGE_URL - one of
//	  "memory://"
//	  "file:///path/to/data"
//	  "s3://bucket?region=us-east-1&endpoint=http://localhost:9000&path_style=true"
//	  "minio://host:9000/bucket?ssl=false&region=us-east-1"
//	AWS_ACCESS_KEY_ID / AWS_SECRET_ACCESS_KEY (unprefixed) supply s3 and minio credentials.
//
// Links: LINK_SECRET, LINK_TTL, LINK_REFRESH_SKEW, LINK_BASE_URL
//
// Transcode: TRANSCODE_ENABLED, FFMPEG_PATH, FFPROBE_PATH, TRANSCODE_STAGING_DIR,
// TRANSCODE_SEGMENT_SECONDS, TRANSCODE_PRESET_FILE, TRANSCODE_PRESET
//
// Variants: VARIANT_PROVIDER, OPENAI_API_KEY, OPENAI_BASE_URL, OPENAI_MODEL,
// REPLICATE_API_TOKEN, REPLICATE_BASE_URL, REPLICATE_MODEL, VARIANT_MAX_DIMENSION,
// VARIANT_CONCURRENCY
//
// Events: NATS_URL, NATS_SUBJECT_PREFIX, NATS_STREAM, EVENT_LOGGING
func WithEnv(prefix string) Option {
	return func(c *ServerConfig) error {
		if v, ok := lookupEnv(prefix, "PORT"); ok && v != "" {
			c.Port = v
		}
		if v, ok := lookupEnv(prefix, "ENVIRONMENT"); ok && v != "" {
			c.Environment = v
		}

		if err := applyDatabaseEnv(prefix, c); err != nil {
			return err
		}
		if err := applyStorageEnv(prefix, c); err != nil {
			return err
		}
		if err := applyLinkEnv(prefix, c); err != nil {
			return err
		}
		if err := applyTranscodeEnv(prefix, c); err != nil {
			return err
		}
		if err := applyVariantEnv(prefix, c); err != nil {
			return err
		}

		setString(prefix, "NATS_URL", &c.Events.NATSURL)
		setString(prefix, "NATS_SUBJECT_PREFIX", &c.Events.SubjectPrefix)
		setString(prefix, "NATS_STREAM", &c.Events.Stream)
		if b, ok, err := parseBoolEnv(prefix, "EVENT_LOGGING"); err != nil {
			return err
		} else if ok {
			c.EnableEventLogging = b
		}
		return nil
	}
}

func applyDatabaseEnv(prefix string, c *ServerConfig) error {
	setString(prefix, "DB_SCHEMA", &c.DBSchema)
	if b, ok, err := parseBoolEnv(prefix, "DB_AUTO_MIGRATE"); err != nil {
		return err
	} else if ok {
		c.AutoMigrate = b
	}

	if v, ok := lookupEnv(prefix, "SPACE_STORE_URL"); ok && v != "" {
		if !strings.HasPrefix(v, "redis://") && !strings.HasPrefix(v, "rediss://") {
			return fmt.Errorf("unsupported SPACE_STORE_URL format: %s (use 'redis://...')", v)
		}
		c.SpaceStoreURL = v
	}

	dbURL, hasURL := lookupEnv(prefix, "DATABASE_URL")
	if !hasURL || dbURL == "" || dbURL == "memory" {
		c.DatabaseType = "memory"
		c.DatabaseURL = ""
		return nil
	}
	if strings.HasPrefix(dbURL, "postgresql://") || strings.HasPrefix(dbURL, "postgres://") {
		c.DatabaseType = "postgres"
		c.DatabaseURL = dbURL
		return nil
	}
	return fmt.Errorf("unsupported DATABASE_URL format: %s (use 'memory' or 'postgresql://...')", dbURL)
}

func applyStorageEnv(prefix string, c *ServerConfig) error {
	raw, ok := lookupEnv(prefix, "STORAGE_URL")
	if !ok || raw == "" || raw == "memory" || raw == "memory://" {
		c.Storage = StorageConfig{Type: "memory"}
		return nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid STORAGE_URL: %w", err)
	}
	q := u.Query()

	switch u.Scheme {
	case "file":
		path := u.Host + u.Path
		if path == "" {
			return fmt.Errorf("filesystem path cannot be empty in STORAGE_URL")
		}
		c.Storage = StorageConfig{Type: "fs", BaseDir: path}

	case "s3":
		if u.Host == "" {
			return fmt.Errorf("S3 bucket name cannot be empty in STORAGE_URL")
		}
		s := StorageConfig{
			Type:         "s3",
			Bucket:       u.Host,
			Region:       firstNonEmpty(q.Get("region"), os.Getenv("AWS_REGION"), "us-east-1"),
			Endpoint:     q.Get("endpoint"),
			SSEAlgorithm: q.Get("sse"),
			SSEKMSKeyID:  q.Get("kms_key_id"),
		}
		s.EnableSSE = s.SSEAlgorithm != ""
		if s.UsePathStyle, err = queryBool(q, "path_style", s.Endpoint != ""); err != nil {
			return err
		}
		if s.CreateBucket, err = queryBool(q, "create_bucket", false); err != nil {
			return err
		}
		applyAWSCredentials(&s)
		c.Storage = s

	case "minio":
		bucket := strings.Trim(u.Path, "/")
		if u.Host == "" || bucket == "" {
			return fmt.Errorf("minio STORAGE_URL must be minio://host:port/bucket")
		}
		s := StorageConfig{
			Type:     "minio",
			Endpoint: u.Host,
			Bucket:   bucket,
			Region:   q.Get("region"),
		}
		if s.UseSSL, err = queryBool(q, "ssl", true); err != nil {
			return err
		}
		if s.CreateBucket, err = queryBool(q, "create_bucket", false); err != nil {
			return err
		}
		applyAWSCredentials(&s)
		c.Storage = s

	default:
		return fmt.Errorf("unsupported STORAGE_URL format: %s (use 'memory://', 'file://...', 's3://...' or 'minio://...')", raw)
	}
	return nil
}

func applyAWSCredentials(s *StorageConfig) {
	if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
		s.AccessKeyID = v
	}
	if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
		s.SecretAccessKey = v
	}
}

func applyLinkEnv(prefix string, c *ServerConfig) error {
	setString(prefix, "LINK_SECRET", &c.Links.SecretKey)
	setString(prefix, "LINK_BASE_URL", &c.Links.BaseURL)
	if d, ok, err := parseDurationEnv(prefix, "LINK_TTL"); err != nil {
		return err
	} else if ok {
		c.Links.TTL = d
	}
	if d, ok, err := parseDurationEnv(prefix, "LINK_REFRESH_SKEW"); err != nil {
		return err
	} else if ok {
		c.Links.RefreshSkew = d
	}
	return nil
}

func applyTranscodeEnv(prefix string, c *ServerConfig) error {
	if b, ok, err := parseBoolEnv(prefix, "TRANSCODE_ENABLED"); err != nil {
		return err
	} else if ok {
		c.Transcode.Enabled = b
	}
	setString(prefix, "FFMPEG_PATH", &c.Transcode.FFmpegPath)
	setString(prefix, "FFPROBE_PATH", &c.Transcode.FFprobePath)
	setString(prefix, "TRANSCODE_STAGING_DIR", &c.Transcode.StagingDir)
	setString(prefix, "TRANSCODE_PRESET_FILE", &c.Transcode.PresetFile)
	setString(prefix, "TRANSCODE_PRESET", &c.Transcode.Preset)
	if n, ok, err := parseIntEnv(prefix, "TRANSCODE_SEGMENT_SECONDS"); err != nil {
		return err
	} else if ok {
		c.Transcode.SegmentSeconds = n
	}
	return nil
}

func applyVariantEnv(prefix string, c *ServerConfig) error {
	setString(prefix, "VARIANT_PROVIDER", &c.Variants.DefaultProvider)
	setString(prefix, "OPENAI_API_KEY", &c.Variants.OpenAIAPIKey)
	setString(prefix, "OPENAI_BASE_URL", &c.Variants.OpenAIBaseURL)
	setString(prefix, "OPENAI_MODEL", &c.Variants.OpenAIModel)
	setString(prefix, "REPLICATE_API_TOKEN", &c.Variants.ReplicateToken)
	setString(prefix, "REPLICATE_BASE_URL", &c.Variants.ReplicateBaseURL)
	setString(prefix, "REPLICATE_MODEL", &c.Variants.ReplicateModel)
	if n, ok, err := parseIntEnv(prefix, "VARIANT_MAX_DIMENSION"); err != nil {
		return err
	} else if ok {
		if n <= 0 {
			return fmt.Errorf("%sVARIANT_MAX_DIMENSION must be positive", prefix)
		}
		c.Variants.MaxDimension = uint(n)
	}
	if n, ok, err := parseIntEnv(prefix, "VARIANT_CONCURRENCY"); err != nil {
		return err
	} else if ok {
		c.Variants.Concurrency = n
	}
	return nil
}

func lookupEnv(prefix, key string) (string, bool) {
	return os.LookupEnv(prefix + key)
}

func setString(prefix, key string, dst *string) {
	if v, ok := lookupEnv(prefix, key); ok && v != "" {
		*dst = v
	}
}

func parseBoolEnv(prefix, key string) (bool, bool, error) {
	raw, ok := lookupEnv(prefix, key)
	if !ok || raw == "" {
		return false, false, nil
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false, fmt.Errorf("invalid boolean for %s%s: %w", prefix, key, err)
	}
	return parsed, true, nil
}

func parseIntEnv(prefix, key string) (int, bool, error) {
	raw, ok := lookupEnv(prefix, key)
	if !ok || raw == "" {
		return 0, false, nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("invalid integer for %s%s: %w", prefix, key, err)
	}
	return parsed, true, nil
}

func parseDurationEnv(prefix, key string) (time.Duration, bool, error) {
	raw, ok := lookupEnv(prefix, key)
	if !ok || raw == "" {
		return 0, false, nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return 0, false, fmt.Errorf("invalid duration for %s%s: %w", prefix, key, err)
	}
	return parsed, true, nil
}

func queryBool(q url.Values, key string, def bool) (bool, error) {
	raw := q.Get(key)
	if raw == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid boolean for STORAGE_URL parameter %s: %w", key, err)
	}
	return b, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
