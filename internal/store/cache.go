package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"conciliacion-service/internal/config"
	"conciliacion-service/internal/core/conciliacion"
	"conciliacion-service/internal/domain"
)

const (
	resultKeyPrefix = "conciliacion:result:"
	memoryCacheSize = 8
)

var (
	_ conciliacion.ResultCache = (*RedisCache)(nil)
	_ conciliacion.ResultCache = (*MemoryCache)(nil)
)

// RedisCache stores results in cache shape under their content hash.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache creates a cache on an existing client. A zero ttl keeps
// entries until evicted.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

// Get returns the cached result for hash.
func (c *RedisCache) Get(ctx context.Context, hash string) (*domain.Result, bool, error) {
	payload, err := c.client.Get(ctx, resultKeyPrefix+hash).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cached result: %w", err)
	}
	res, err := decodeResult(payload)
	if err != nil {
		return nil, false, err
	}
	return res, true, nil
}

// Set stores res under hash.
func (c *RedisCache) Set(ctx context.Context, hash string, res *domain.Result) error {
	payload, err := json.Marshal(NewResultDTO(res))
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	if err := c.client.Set(ctx, resultKeyPrefix+hash, payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache result: %w", err)
	}
	return nil
}

// Close closes the Redis client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// MemoryCache keeps the most recent results in process.
type MemoryCache struct {
	mu      sync.Mutex
	max     int
	order   []string
	results map[string]*domain.Result
}

// NewMemoryCache creates a cache holding at most size results; the oldest
// entry is evicted first.
func NewMemoryCache(size int) *MemoryCache {
	if size <= 0 {
		size = 1
	}
	return &MemoryCache{max: size, results: make(map[string]*domain.Result)}
}

// Get returns the cached result for hash.
func (c *MemoryCache) Get(_ context.Context, hash string) (*domain.Result, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	res, ok := c.results[hash]
	return res, ok, nil
}

// Set stores res under hash.
func (c *MemoryCache) Set(_ context.Context, hash string, res *domain.Result) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.results[hash]; !ok {
		c.order = append(c.order, hash)
	}
	c.results[hash] = res
	for len(c.order) > c.max {
		delete(c.results, c.order[0])
		c.order = c.order[1:]
	}
	return nil
}

// Len returns the number of cached results.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.results)
}

// NewResultCache returns a RedisCache when Redis is enabled and reachable,
// and a MemoryCache otherwise.
func NewResultCache(ctx context.Context, cfg config.RedisConfig, log *zap.Logger) conciliacion.ResultCache {
	if !cfg.Enabled {
		return NewMemoryCache(memoryCacheSize)
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Warn("redis unavailable, using in-memory result cache", zap.String("addr", cfg.Addr), zap.Error(err))
		_ = client.Close()
		return NewMemoryCache(memoryCacheSize)
	}
	log.Info("redis result cache enabled", zap.String("addr", cfg.Addr), zap.Duration("ttl", cfg.TTL))
	return NewRedisCache(client, cfg.TTL)
}
