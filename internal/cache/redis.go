package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/clinical-kg-server/internal/domain"
)

const graphKeyPrefix = "clinical-kg:graph:"

// RedisCache stores built graphs as JSON in Redis.
type RedisCache struct {
	client     *redis.Client
	defaultTTL time.Duration
	log        *logrus.Logger
}

// NewRedisCache connects to the Redis instance named by cfg.RedisURL.
func NewRedisCache(cfg domain.CacheConfig, logger *logrus.Logger) (*RedisCache, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.WithField("addr", opts.Addr).Info("Redis graph cache connected")
	return NewRedisCacheFromClient(client, cfg.DefaultTTL, logger), nil
}

// NewRedisCacheFromClient wraps an existing client.
func NewRedisCacheFromClient(client *redis.Client, defaultTTL time.Duration, logger *logrus.Logger) *RedisCache {
	if defaultTTL <= 0 {
		defaultTTL = time.Hour
	}
	return &RedisCache{client: client, defaultTTL: defaultTTL, log: logger}
}

func graphKey(patientID string) string {
	return graphKeyPrefix + patientID
}

// Get returns the cached graph or domain.ErrNotFound. Entries that no longer
// decode are removed and reported as a miss.
func (c *RedisCache) Get(ctx context.Context, patientID string) (*domain.KnowledgeGraph, error) {
	key := graphKey(patientID)
	val, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get graph cache: %w", err)
	}

	var graph domain.KnowledgeGraph
	if err := json.Unmarshal(val, &graph); err != nil {
		c.log.WithFields(logrus.Fields{
			"patient_id": patientID,
			"error":      err,
		}).Warn("Dropping corrupted graph cache entry")
		c.client.Del(ctx, key)
		return nil, domain.ErrNotFound
	}

	return &graph, nil
}

// Set stores the graph with ttl, or the default TTL when ttl is zero.
func (c *RedisCache) Set(ctx context.Context, patientID string, graph *domain.KnowledgeGraph, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	data, err := json.Marshal(graph)
	if err != nil {
		return fmt.Errorf("failed to marshal graph cache data: %w", err)
	}

	if err := c.client.Set(ctx, graphKey(patientID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set graph cache: %w", err)
	}
	return nil
}

// Delete removes the patient's cached graph.
func (c *RedisCache) Delete(ctx context.Context, patientID string) error {
	if err := c.client.Del(ctx, graphKey(patientID)).Err(); err != nil {
		return fmt.Errorf("failed to delete graph cache: %w", err)
	}
	return nil
}

// Ping checks that Redis is reachable.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the client's connections.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
