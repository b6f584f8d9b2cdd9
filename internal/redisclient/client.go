package redisclient

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

//go:embed scripts/count_attempts.lua
var countAttemptsScript string

//go:embed scripts/record_attempt.lua
var recordAttemptScript string

type Client struct {
	rdb          *redis.Client
	countScript  *redis.Script
	recordScript *redis.Script
	window       time.Duration
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int, window time.Duration) (*Client, error) {
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

	return &Client{
		rdb:          rdb,
		countScript:  redis.NewScript(countAttemptsScript),
		recordScript: redis.NewScript(recordAttemptScript),
		window:       window,
	}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func attemptsKey(clientKey string, listingID int64) string {
	return fmt.Sprintf("checkout:attempts:%s:%d", clientKey, listingID)
}

// CountAttempts returns the number of checkout attempts by the client for
// the listing within the trailing window. The Lua script trims expired
// entries and counts atomically.
func (c *Client) CountAttempts(ctx context.Context, clientKey string, listingID int64) (int64, error) {
	windowStart := time.Now().Add(-c.window).UnixMilli()

	result, err := c.countScript.Run(ctx, c.rdb,
		[]string{attemptsKey(clientKey, listingID)}, windowStart).Result()
	if err != nil {
		return 0, fmt.Errorf("count attempts script failed: %w", err)
	}

	count, ok := result.(int64)
	if !ok {
		return 0, fmt.Errorf("unexpected script result type")
	}

	return count, nil
}

// RecordAttempt appends one immutable attempt record. Called on both the
// success and failure paths of order creation so retries count equally.
func (c *Client) RecordAttempt(ctx context.Context, clientKey string, listingID int64) error {
	now := time.Now()
	member := fmt.Sprintf("%d:%s", now.UnixMilli(), uuid.New().String())

	_, err := c.recordScript.Run(ctx, c.rdb,
		[]string{attemptsKey(clientKey, listingID)},
		now.UnixMilli(), member, (2 * c.window).Milliseconds()).Result()
	if err != nil {
		return fmt.Errorf("record attempt script failed: %w", err)
	}

	return nil
}
