package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// pendingMarker is stored under a claimed key until the order exists
const pendingMarker = "pending"

type Client struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewClient creates a new Redis client
func NewClient(addr, password string, db int, ttl time.Duration) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb, ttl: ttl}, nil
}

// NewClientWithRedis wraps an existing connection
func NewClientWithRedis(rdb *redis.Client, ttl time.Duration) *Client {
	return &Client{rdb: rdb, ttl: ttl}
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks that Redis is reachable
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func idempotencyKey(key string) string {
	return fmt.Sprintf("idempotency:order:%s", key)
}

// ClaimIdempotencyKey reserves key for a new order. When the key is already
// taken it returns the stored order id, which is empty while the first
// request is still in flight.
func (c *Client) ClaimIdempotencyKey(ctx context.Context, key string) (orderID string, claimed bool, err error) {
	ok, err := c.rdb.SetNX(ctx, idempotencyKey(key), pendingMarker, c.ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("failed to claim idempotency key: %w", err)
	}
	if ok {
		return "", true, nil
	}

	value, err := c.rdb.Get(ctx, idempotencyKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET; let the caller retry the claim
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read idempotency key: %w", err)
	}
	if value == pendingMarker {
		return "", false, nil
	}
	return value, false, nil
}

// CompleteIdempotencyKey binds a claimed key to the order it produced
func (c *Client) CompleteIdempotencyKey(ctx context.Context, key, orderID string) error {
	return c.rdb.Set(ctx, idempotencyKey(key), orderID, c.ttl).Err()
}

// ReleaseIdempotencyKey frees a claim whose order was never created
func (c *Client) ReleaseIdempotencyKey(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, idempotencyKey(key)).Err()
}
