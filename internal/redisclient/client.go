package redisclient

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

//go:embed scripts/release_lock.lua
var releaseLockScript string

// ErrLockHeld is returned when another holder owns the lock
var ErrLockHeld = errors.New("lock is held by another process")

type Client struct {
	rdb           *redis.Client
	releaseScript *redis.Script
}

// NewClient creates a new Redis client and verifies connectivity
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

	return NewFromRedis(rdb), nil
}

// NewFromRedis wraps an existing go-redis client
func NewFromRedis(rdb *redis.Client) *Client {
	return &Client{
		rdb:           rdb,
		releaseScript: redis.NewScript(releaseLockScript),
	}
}

// Ping checks connectivity
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// ClaimFulfillment marks an order as being fulfilled.
// Only the first caller for a given order gets true.
func (c *Client) ClaimFulfillment(ctx context.Context, orderID uuid.UUID, ttl time.Duration) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, "fulfillment:"+orderID.String(), time.Now().Unix(), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim fulfillment failed: %w", err)
	}
	return ok, nil
}

// ReleaseFulfillment drops a claim so the order can be fulfilled again
func (c *Client) ReleaseFulfillment(ctx context.Context, orderID uuid.UUID) error {
	return c.rdb.Del(ctx, "fulfillment:"+orderID.String()).Err()
}

// GetRates returns cached exchange rates for a base currency.
// A cache miss returns a nil map and no error.
func (c *Client) GetRates(ctx context.Context, base string) (map[string]decimal.Decimal, error) {
	raw, err := c.rdb.Get(ctx, "rates:"+base).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var rates map[string]decimal.Decimal
	if err := json.Unmarshal(raw, &rates); err != nil {
		return nil, fmt.Errorf("decode cached rates: %w", err)
	}
	return rates, nil
}

// SetRates caches exchange rates for a base currency
func (c *Client) SetRates(ctx context.Context, base string, rates map[string]decimal.Decimal, ttl time.Duration) error {
	raw, err := json.Marshal(rates)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, "rates:"+base, raw, ttl).Err()
}

// MarkProcessed records an event id and reports whether it was seen for the first time
func (c *Client) MarkProcessed(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, "processed:"+eventID, 1, ttl).Result()
}

// AcquireLock acquires a distributed lock and returns the owner token
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (string, error) {
	token := uuid.New().String()
	ok, err := c.rdb.SetNX(ctx, "lock:"+lockKey, token, ttl).Result()
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrLockHeld
	}
	return token, nil
}

// ReleaseLock releases a lock only if token still owns it
func (c *Client) ReleaseLock(ctx context.Context, lockKey, token string) error {
	_, err := c.releaseScript.Run(ctx, c.rdb, []string{"lock:" + lockKey}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lock script failed: %w", err)
	}
	return nil
}
