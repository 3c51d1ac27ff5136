package redisclient

import (
	"context"
	_ "embed"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

//go:embed scripts/release_lock.lua
var releaseLockScript string

//go:embed scripts/record_attempt.lua
var recordAttemptScript string

type Client struct {
	rdb           *redis.Client
	releaseScript *redis.Script
	attemptScript *redis.Script

	mu     sync.Mutex
	tokens map[string]string
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int) (*Client, error) {
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
		rdb:           rdb,
		releaseScript: redis.NewScript(releaseLockScript),
		attemptScript: redis.NewScript(recordAttemptScript),
		tokens:        make(map[string]string),
	}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Ping checks the Redis connection
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// LastAttempt returns the time of the client's last checkout attempt inside the window
func (c *Client) LastAttempt(ctx context.Context, clientKey string) (time.Time, bool, error) {
	val, err := c.rdb.Get(ctx, attemptKey(clientKey)).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}

	millis, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("corrupt attempt value for %s: %w", clientKey, err)
	}
	return time.UnixMilli(millis), true, nil
}

// RecordAttempt stores the attempt time; the key expires with the window
func (c *Client) RecordAttempt(ctx context.Context, clientKey string, at time.Time, window time.Duration) error {
	if window <= 0 {
		return nil
	}
	_, err := c.attemptScript.Run(ctx, c.rdb, []string{attemptKey(clientKey)},
		at.UnixMilli(), window.Milliseconds()).Result()
	if err != nil {
		return fmt.Errorf("record attempt script failed: %w", err)
	}
	return nil
}

// CheckIdempotencyKey checks if an idempotency key exists
func (c *Client) CheckIdempotencyKey(ctx context.Context, key string) (bool, error) {
	result, err := c.rdb.Exists(ctx, fmt.Sprintf("idempotency:%s", key)).Result()
	if err != nil {
		return false, err
	}
	return result > 0, nil
}

// ClaimIdempotencyKey sets the key only if it is absent. It returns false when another caller holds it.
func (c *Client) ClaimIdempotencyKey(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("idempotency:%s", key), "processing", ttl).Result()
}

// ReleaseIdempotencyKey drops a claimed key so the work can be retried
func (c *Client) ReleaseIdempotencyKey(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("idempotency:%s", key)).Err()
}

// AcquireLock acquires a distributed lock owned by this client
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error) {
	token := uuid.New().String()
	ok, err := c.rdb.SetNX(ctx, fmt.Sprintf("lock:%s", lockKey), token, ttl).Result()
	if err != nil || !ok {
		return false, err
	}

	c.mu.Lock()
	c.tokens[lockKey] = token
	c.mu.Unlock()
	return true, nil
}

// ReleaseLock releases a lock if this client still owns it
func (c *Client) ReleaseLock(ctx context.Context, lockKey string) error {
	c.mu.Lock()
	token, ok := c.tokens[lockKey]
	delete(c.tokens, lockKey)
	c.mu.Unlock()
	if !ok {
		return nil
	}

	_, err := c.releaseScript.Run(ctx, c.rdb, []string{fmt.Sprintf("lock:%s", lockKey)}, token).Result()
	if err != nil {
		return fmt.Errorf("release lock script failed: %w", err)
	}
	return nil
}

// GetCountry returns a cached IP country
func (c *Client) GetCountry(ctx context.Context, ip string) (string, bool, error) {
	country, err := c.rdb.Get(ctx, fmt.Sprintf("geo:%s", ip)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return country, true, nil
}

// SetCountry caches an IP country
func (c *Client) SetCountry(ctx context.Context, ip, country string, ttl time.Duration) error {
	return c.rdb.Set(ctx, fmt.Sprintf("geo:%s", ip), country, ttl).Err()
}

func attemptKey(clientKey string) string {
	return fmt.Sprintf("checkout_attempt:%s", clientKey)
}
