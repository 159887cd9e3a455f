// Package cache keeps settled poll results in Redis so repeated polls of a
// finished task do not hit the provider again.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/genforge/backend/internal/models"
)

const (
	DefaultTTL = 24 * time.Hour
	keyPrefix  = "genstatus:"
)

// StatusCache stores terminal poll results keyed by owner and task id.
type StatusCache struct {
	client *redis.Client
	ttl    time.Duration
}

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// New connects to Redis and pings it.
func New(ctx context.Context, opts Options) (*StatusCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}
	return NewWithClient(client, opts.TTL), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client, ttl time.Duration) *StatusCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &StatusCache{client: client, ttl: ttl}
}

func key(userID uuid.UUID, taskID string) string {
	return keyPrefix + userID.String() + ":" + taskID
}

// Get returns the cached result, or nil on a miss.
func (c *StatusCache) Get(ctx context.Context, userID uuid.UUID, taskID string) (*models.PollResult, error) {
	raw, err := c.client.Get(ctx, key(userID, taskID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	var r models.PollResult
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("decode cached result: %w", err)
	}
	r.Settled = true
	return &r, nil
}

// Set stores a settled terminal result. Anything else is ignored.
func (c *StatusCache) Set(ctx context.Context, userID uuid.UUID, r *models.PollResult) error {
	if r == nil || !r.Status.Terminal() || !r.Settled {
		return nil
	}
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if err := c.client.Set(ctx, key(userID, r.TaskID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (c *StatusCache) Close() error {
	return c.client.Close()
}
