package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/RoyNativ-AI/pii-guard/internal/config"
)

// RedisStore shares replacement mappings between processes through Redis
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *zap.Logger
	stats  counters
}

// NewRedisStore creates a new Redis-backed mapping store
func NewRedisStore(cfg config.CacheConfig, logger *zap.Logger) (*RedisStore, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	store := newRedisStore(redis.NewClient(opts), cfg.KeyPrefix, cfg.TTL, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := store.client.Ping(ctx).Result(); err != nil {
		store.client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Mapping store initialized",
		zap.String("backend", "redis"),
		zap.String("redis_url", maskRedisURL(cfg.RedisURL)),
		zap.Duration("ttl", cfg.TTL))

	return store, nil
}

func newRedisStore(client *redis.Client, prefix string, ttl time.Duration, logger *zap.Logger) *RedisStore {
	if prefix == "" {
		prefix = "pii-guard"
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		logger: logger,
	}
}

// Get implements privacy.MappingStore.
func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		s.stats.record(false)
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get: %w", err)
	}
	s.stats.record(true)
	return v, true, nil
}

// PutIfAbsent stores value unless another writer got there first, in which
// case the existing value is returned.
func (s *RedisStore) PutIfAbsent(ctx context.Context, key, value string) (string, error) {
	k := s.key(key)
	ok, err := s.client.SetNX(ctx, k, value, s.ttl).Result()
	if err != nil {
		return "", fmt.Errorf("redis setnx: %w", err)
	}
	if ok {
		return value, nil
	}

	existing, err := s.client.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		// Expired between SETNX and GET.
		return value, s.client.Set(ctx, k, value, s.ttl).Err()
	}
	if err != nil {
		return "", fmt.Errorf("redis get: %w", err)
	}
	return existing, nil
}

// Stats returns store statistics including Redis memory usage
func (s *RedisStore) Stats(ctx context.Context) (*Stats, error) {
	info, err := s.client.Info(ctx, "memory").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get Redis info: %w", err)
	}

	stats := &Stats{Backend: "redis"}
	s.stats.fill(stats)

	for _, line := range strings.Split(info, "\r\n") {
		if memStr, ok := strings.CutPrefix(line, "used_memory:"); ok {
			if mem, err := strconv.ParseInt(memStr, 10, 64); err == nil {
				stats.MemoryUsage = mem
			}
		}
	}

	keys, err := s.scan(ctx)
	if err == nil {
		stats.TotalKeys = int64(len(keys))
	}
	return stats, nil
}

// Clear removes every mapping under the store prefix
func (s *RedisStore) Clear(ctx context.Context) error {
	keys, err := s.scan(ctx)
	if err != nil {
		return err
	}

	const batchSize = 100
	for i := 0; i < len(keys); i += batchSize {
		end := min(i+batchSize, len(keys))
		if err := s.client.Del(ctx, keys[i:end]...).Err(); err != nil {
			s.logger.Error("Failed to delete mapping keys", zap.Error(err))
			return fmt.Errorf("failed to delete mapping keys: %w", err)
		}
	}

	s.logger.Info("Mapping store cleared", zap.Int("deleted_keys", len(keys)))
	return nil
}

func (s *RedisStore) scan(ctx context.Context) ([]string, error) {
	iter := s.client.Scan(ctx, 0, s.prefix+":map:*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan mapping keys: %w", err)
	}
	return keys, nil
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

func (s *RedisStore) key(k string) string {
	return s.prefix + ":map:" + k
}

// maskRedisURL masks the password in a Redis URL for logging
func maskRedisURL(url string) string {
	at := strings.LastIndex(url, "@")
	if at < 0 {
		return url
	}
	userPart := url[:at]
	scheme := strings.Index(userPart, "://")
	colon := strings.LastIndex(userPart, ":")
	if colon <= scheme+2 {
		return url
	}
	return userPart[:colon+1] + "***" + url[at:]
}
