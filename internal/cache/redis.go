package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"

	"github.com/drmonteiro/brands-ai/internal/model"
)

const redisKeyPrefix = "brands:result:"

// RedisCache shares results between service instances through Redis.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache wraps an existing client. A ttl <= 0 stores entries without expiry.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

// DialRedis opens a client and verifies the server answers.
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, eris.Wrapf(err, "cache: ping redis %s", addr)
	}
	return rdb, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) (*model.CachedResult, bool, error) {
	raw, err := c.client.Get(ctx, redisKeyPrefix+NormalizeKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrap(err, "cache: redis get")
	}
	var res model.CachedResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, false, eris.Wrap(err, "cache: decode cached result")
	}
	return &res, true, nil
}

func (c *RedisCache) Put(ctx context.Context, key string, brands []model.BrandLead, rate float64) error {
	res := newResult(key, brands, rate)
	raw, err := json.Marshal(res)
	if err != nil {
		return eris.Wrap(err, "cache: encode cached result")
	}
	ttl := c.ttl
	if ttl < 0 {
		ttl = 0
	}
	return eris.Wrap(c.client.Set(ctx, redisKeyPrefix+res.Key, raw, ttl).Err(), "cache: redis set")
}

func (c *RedisCache) Invalidate(ctx context.Context, key string) error {
	return eris.Wrap(c.client.Del(ctx, redisKeyPrefix+NormalizeKey(key)).Err(), "cache: redis del")
}
