// Package redis keeps spaces and their used-bytes counters in Redis hashes.
// Counter updates run as Lua scripts so each adjustment is a single atomic
// step on the server.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/tendant/simple-media/pkg/simplemedia"
)

const defaultKeyPrefix = "simplemedia:"

// ErrSpaceExists is returned when creating a space whose id is taken
var ErrSpaceExists = errors.New("space already exists")

const (
	fieldOwner     = "owner_id"
	fieldUsedBytes = "used_bytes"
	fieldCreatedAt = "created_at"
	fieldUpdatedAt = "updated_at"
)

// KEYS[1] space hash; ARGV owner, used bytes, timestamp
var createScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return redis.error_reply('EXISTS')
end
redis.call('HSET', KEYS[1], 'owner_id', ARGV[1], 'used_bytes', ARGV[2], 'created_at', ARGV[3], 'updated_at', ARGV[3])
return 1
`)

// KEYS[1] space hash; ARGV delta, timestamp
var incrementScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return redis.error_reply('NOT_FOUND')
end
local total = redis.call('HINCRBY', KEYS[1], 'used_bytes', ARGV[1])
redis.call('HSET', KEYS[1], 'updated_at', ARGV[2])
return total
`)

// Store implements simplemedia.SpaceStore on Redis
type Store struct {
	client Client
	prefix string
	now    func() time.Time
}

var _ simplemedia.SpaceStore = (*Store)(nil)

// Client is the subset of go-redis commands the store needs. *redis.Client,
// *redis.ClusterClient and *redis.Ring all satisfy it.
type Client interface {
	redis.Scripter
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
}

type Option func(*Store)

// WithKeyPrefix namespaces every key the store writes
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a store over client
func New(client Client, opts ...Option) *Store {
	s := &Store{
		client: client,
		prefix: defaultKeyPrefix,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewFromURL parses a redis:// URL, connects and pings the server
func NewFromURL(ctx context.Context, url string, opts ...Option) (*Store, *redis.Client, error) {
	options, err := redis.ParseURL(url)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(options)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("connect to redis: %w", err)
	}
	return New(client, opts...), client, nil
}

func (s *Store) key(id uuid.UUID) string {
	return s.prefix + "space:" + id.String()
}

func (s *Store) CreateSpace(ctx context.Context, space *simplemedia.Space) error {
	if space.ID == uuid.Nil {
		space.ID = uuid.New()
	}
	now := s.now()
	err := createScript.Run(ctx, s.client, []string{s.key(space.ID)},
		space.OwnerID.String(), space.UsedBytes, now.Format(time.RFC3339Nano)).Err()
	if err != nil {
		if strings.Contains(err.Error(), "EXISTS") {
			return ErrSpaceExists
		}
		return storeError("create space", err)
	}
	space.CreatedAt = now
	space.UpdatedAt = now
	return nil
}

func (s *Store) GetSpace(ctx context.Context, id uuid.UUID) (*simplemedia.Space, error) {
	fields, err := s.client.HGetAll(ctx, s.key(id)).Result()
	if err != nil {
		return nil, storeError("get space", err)
	}
	if len(fields) == 0 {
		return nil, simplemedia.ErrSpaceNotFound
	}
	return parseSpace(id, fields)
}

// IncrementUsedBytes adds delta atomically and returns the new total
func (s *Store) IncrementUsedBytes(ctx context.Context, id uuid.UUID, delta int64) (int64, error) {
	total, err := incrementScript.Run(ctx, s.client, []string{s.key(id)},
		delta, s.now().Format(time.RFC3339Nano)).Int64()
	if err != nil {
		if strings.Contains(err.Error(), "NOT_FOUND") {
			return 0, simplemedia.ErrSpaceNotFound
		}
		return 0, storeError("increment used bytes", err)
	}
	return total, nil
}

func parseSpace(id uuid.UUID, fields map[string]string) (*simplemedia.Space, error) {
	space := &simplemedia.Space{ID: id}
	var err error
	if v := fields[fieldOwner]; v != "" {
		if space.OwnerID, err = uuid.Parse(v); err != nil {
			return nil, fmt.Errorf("space %s: owner_id: %w", id, err)
		}
	}
	if v := fields[fieldUsedBytes]; v != "" {
		if space.UsedBytes, err = strconv.ParseInt(v, 10, 64); err != nil {
			return nil, fmt.Errorf("space %s: used_bytes: %w", id, err)
		}
	}
	if v := fields[fieldCreatedAt]; v != "" {
		if space.CreatedAt, err = time.Parse(time.RFC3339Nano, v); err != nil {
			return nil, fmt.Errorf("space %s: created_at: %w", id, err)
		}
	}
	if v := fields[fieldUpdatedAt]; v != "" {
		if space.UpdatedAt, err = time.Parse(time.RFC3339Nano, v); err != nil {
			return nil, fmt.Errorf("space %s: updated_at: %w", id, err)
		}
	}
	return space, nil
}

func storeError(op string, err error) error {
	return fmt.Errorf("redis %s: %w: %w", op, simplemedia.ErrStoreUnavailable, err)
}
