// Package cache holds rendered board snapshots in Redis so repeated board
// fetches skip the three queries it takes to assemble one. Every mutation
// to a board invalidates its entry.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned when no snapshot is cached for the board.
var ErrMiss = errors.New("cache: miss")

// BoardCache stores marshaled board snapshots keyed by board ID.
type BoardCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// New connects to Redis and returns a board cache.
func New(redisURL string, ttl time.Duration) (*BoardCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewWithClient(client, ttl), nil
}

// NewWithClient wraps an existing Redis client.
func NewWithClient(client *redis.Client, ttl time.Duration) *BoardCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &BoardCache{
		client: client,
		prefix: "board:",
		ttl:    ttl,
	}
}

func (c *BoardCache) key(boardID string) string {
	return c.prefix + boardID
}

// Get returns the cached snapshot bytes for a board, or ErrMiss.
func (c *BoardCache) Get(ctx context.Context, boardID string) ([]byte, error) {
	data, err := c.client.Get(ctx, c.key(boardID)).Bytes()
	if err == redis.Nil {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("cache get: %w", err)
	}
	return data, nil
}

// Set stores snapshot bytes for a board with the cache TTL.
func (c *BoardCache) Set(ctx context.Context, boardID string, snapshot []byte) error {
	if err := c.client.Set(ctx, c.key(boardID), snapshot, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// Invalidate drops a board's snapshot after a mutation.
func (c *BoardCache) Invalidate(ctx context.Context, boardID string) error {
	if err := c.client.Del(ctx, c.key(boardID)).Err(); err != nil {
		return fmt.Errorf("cache invalidate: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (c *BoardCache) Close() error {
	return c.client.Close()
}

// Ping checks if Redis is reachable.
func (c *BoardCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
