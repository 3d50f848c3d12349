package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okian/eldlog/pkg/logger"
	"github.com/okian/eldlog/pkg/metrics"
)

// RedisStore keeps snapshots in Redis as JSON.
type RedisStore struct {
	cfg    RedisConfig
	client *redis.Client
	opts   storeOptions
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(cfg RedisConfig, opts ...Option) (*RedisStore, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultRedisConfig(cfg.Address).Timeout
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.Database,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnect, err)
	}

	return &RedisStore{cfg: cfg, client: client, opts: applyOptions("redis-store", opts)}, nil
}

func (s *RedisStore) key(k string) string {
	return s.cfg.Prefix + sanitizeKey(k)
}

func sanitizeKey(k string) string {
	return strings.NewReplacer("/", "_", ":", "_", " ", "_").Replace(k)
}

// Save writes snap under key with the configured TTL.
func (s *RedisStore) Save(ctx context.Context, key string, snap Snapshot) error {
	start := time.Now()
	defer func() { metrics.RecordStoreLatency("save", float64(time.Since(start).Microseconds())/1000) }()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	snap.SavedAt = s.opts.now()
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := s.client.Set(ctx, s.key(key), data, s.cfg.TTL).Err(); err != nil {
		metrics.RecordErrorByComponent("repository", "save")
		return fmt.Errorf("save snapshot %s: %w", key, err)
	}

	s.opts.logger.Debug(ctx, "snapshot saved",
		logger.String("key", s.key(key)),
		logger.Int("records", len(snap.Records)),
		logger.Duration("ttl", s.cfg.TTL),
	)
	return nil
}

// Load reads the snapshot under key.
func (s *RedisStore) Load(ctx context.Context, key string) (Snapshot, error) {
	start := time.Now()
	defer func() { metrics.RecordStoreLatency("load", float64(time.Since(start).Microseconds())/1000) }()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Snapshot{}, ErrNotFound
	}
	if err != nil {
		metrics.RecordErrorByComponent("repository", "load")
		return Snapshot{}, fmt.Errorf("load snapshot %s: %w", key, err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	return snap, nil
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
