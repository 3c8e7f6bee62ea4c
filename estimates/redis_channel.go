package estimates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// defaultEntryTTL is a safety net against leaked keys from crashed clients.
// It is deliberately much larger than the freshness window: staleness is a
// read-side rule, expiry only reclaims storage.
const defaultEntryTTL = 10 * time.Minute

// RedisChannel is the cross-device Channel implementation.
type RedisChannel struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisChannel wraps a go-redis client. A non-positive ttl falls back to
// the default.
func NewRedisChannel(client *redis.Client, ttl time.Duration) *RedisChannel {
	if ttl <= 0 {
		ttl = defaultEntryTTL
	}
	return &RedisChannel{client: client, ttl: ttl}
}

func (c *RedisChannel) key(sessionID int64) string {
	return fmt.Sprintf("estimates:live:%d", sessionID)
}

// Put overwrites the entry for the estimate's session.
func (c *RedisChannel) Put(ctx context.Context, estimate LiveEstimate) error {
	data, err := json.Marshal(estimate)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(estimate.SessionID), data, c.ttl).Err()
}

// Get returns the latest estimate, or (nil, nil) when absent.
func (c *RedisChannel) Get(ctx context.Context, sessionID int64) (*LiveEstimate, error) {
	result, err := c.client.Get(ctx, c.key(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var estimate LiveEstimate
	if err := json.Unmarshal([]byte(result), &estimate); err != nil {
		return nil, err
	}
	return &estimate, nil
}

// Delete removes the session's entry. Deleting a missing key is not an error.
func (c *RedisChannel) Delete(ctx context.Context, sessionID int64) error {
	return c.client.Del(ctx, c.key(sessionID)).Err()
}
