package estimates

import (
	"context"
	"strconv"
	"time"

	cache "github.com/patrickmn/go-cache"
)

// MemoryChannel is the single-process Channel implementation, used when the
// driver and staff roles run on the same device and in tests.
type MemoryChannel struct {
	entries *cache.Cache
}

// NewMemoryChannel builds an in-memory channel. A non-positive ttl falls
// back to the same safety-net TTL as the redis implementation.
func NewMemoryChannel(ttl time.Duration) *MemoryChannel {
	if ttl <= 0 {
		ttl = defaultEntryTTL
	}
	return &MemoryChannel{entries: cache.New(ttl, ttl)}
}

func memKey(sessionID int64) string {
	return strconv.FormatInt(sessionID, 10)
}

// Put overwrites the entry for the estimate's session.
func (c *MemoryChannel) Put(_ context.Context, estimate LiveEstimate) error {
	c.entries.SetDefault(memKey(estimate.SessionID), estimate)
	return nil
}

// Get returns the latest estimate, or (nil, nil) when absent.
func (c *MemoryChannel) Get(_ context.Context, sessionID int64) (*LiveEstimate, error) {
	raw, ok := c.entries.Get(memKey(sessionID))
	if !ok {
		return nil, nil
	}
	estimate, ok := raw.(LiveEstimate)
	if !ok {
		return nil, nil
	}
	return &estimate, nil
}

// Delete removes the session's entry.
func (c *MemoryChannel) Delete(_ context.Context, sessionID int64) error {
	c.entries.Delete(memKey(sessionID))
	return nil
}
