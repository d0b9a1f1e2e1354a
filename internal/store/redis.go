package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/example/lead-intake-service/internal/models"
)

// listClient is the subset of redis.Cmdable used by Redis.
type listClient interface {
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	LTrim(ctx context.Context, key string, start, stop int64) *redis.StatusCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// Redis appends leads as JSON to a capped list.
type Redis struct {
	client listClient
	key    string
	maxLen int64
	closer func() error
}

// OpenRedis connects using a redis:// url.
func OpenRedis(ctx context.Context, url, key string, maxLen int) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("store: parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("store: ping redis: %w", err)
	}
	r := NewRedis(client, key, maxLen)
	r.closer = client.Close
	return r, nil
}

// NewRedis wraps an existing client. A non-positive maxLen disables trimming.
func NewRedis(client listClient, key string, maxLen int) *Redis {
	if key == "" {
		key = "leads"
	}
	return &Redis{client: client, key: key, maxLen: int64(maxLen)}
}

// Record pushes lead onto the list and trims the list to the newest maxLen
// entries.
func (r *Redis) Record(ctx context.Context, lead models.LeadRecord) error {
	payload, err := json.Marshal(lead)
	if err != nil {
		return fmt.Errorf("store: marshal lead: %w", err)
	}
	if err := r.client.RPush(ctx, r.key, payload).Err(); err != nil {
		return fmt.Errorf("store: rpush lead %s: %w", lead.ID, err)
	}
	if r.maxLen > 0 {
		if err := r.client.LTrim(ctx, r.key, -r.maxLen, -1).Err(); err != nil {
			return fmt.Errorf("store: ltrim %s: %w", r.key, err)
		}
	}
	return nil
}

// Check pings the server.
func (r *Redis) Check(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the client opened by OpenRedis.
func (r *Redis) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer()
}
