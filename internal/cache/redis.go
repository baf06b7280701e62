package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisResultCache is an optional Redis backend for the search-result
// cache. Expiry rides on Redis TTLs instead of envelope timestamps. The
// file Manager remains the default; this backend exists for deployments
// running several replicas against one corpus, where a shared result cache
// avoids recomputing the same hybrid search on every replica.
type RedisResultCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisResultCache wraps an existing client. ttl <= 0 falls back to the
// short expiry class.
func NewRedisResultCache(client *redis.Client, ttl time.Duration) *RedisResultCache {
	if ttl <= 0 {
		ttl = DefaultShortExpiry
	}
	return &RedisResultCache{client: client, ttl: ttl}
}

// GetResult reads a cached result into out; any error is a miss.
func (r *RedisResultCache) GetResult(ctx context.Context, typeTag, key string, out any) bool {
	data, err := r.client.Get(ctx, resultRedisKey(typeTag, key)).Bytes()
	if err != nil {
		if err != redis.Nil {
			slog.Warn("redis result cache read failed, treating as miss",
				slog.String("type", typeTag),
				slog.String("error", err.Error()))
		}
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		slog.Warn("redis result cache payload undecodable, treating as miss",
			slog.String("type", typeTag),
			slog.String("error", err.Error()))
		return false
	}
	return true
}

// SaveResult persists a result best-effort.
func (r *RedisResultCache) SaveResult(ctx context.Context, typeTag, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("redis result cache failed to marshal payload",
			slog.String("type", typeTag),
			slog.String("error", err.Error()))
		return
	}
	if err := r.client.Set(ctx, resultRedisKey(typeTag, key), data, r.ttl).Err(); err != nil {
		slog.Warn("redis result cache write failed",
			slog.String("type", typeTag),
			slog.String("error", err.Error()))
	}
}

func resultRedisKey(typeTag, key string) string {
	return "guiderag:result:" + typeTag + ":" + key
}

var _ ResultCache = (*RedisResultCache)(nil)
