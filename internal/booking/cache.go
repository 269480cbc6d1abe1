package booking

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Shaheed-N/medical-reserva-sub000/pkg/interfaces"
	"github.com/Shaheed-N/medical-reserva-sub000/pkg/logger"
	"github.com/Shaheed-N/medical-reserva-sub000/pkg/timeutil"
	"github.com/Shaheed-N/medical-reserva-sub000/pkg/types"
)

const cacheOpTimeout = 500 * time.Millisecond

// redisSlotCache caches resolved candidate windows in Redis for a short TTL.
// Every failure degrades to a miss; the cache never blocks the read path.
type redisSlotCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *logger.Logger
}

// NewSlotCache creates a Redis-backed slot cache
func NewSlotCache(client *redis.Client, ttl time.Duration, log *logger.Logger) interfaces.SlotCache {
	return &redisSlotCache{
		client: client,
		ttl:    ttl,
		logger: log,
	}
}

func slotCacheKey(providerID, locationID string, date timeutil.Date, slotMinutes int) string {
	return fmt.Sprintf("slots:%s:%s:%s:%d", providerID, locationID, date.String(), slotMinutes)
}

func (c *redisSlotCache) Get(providerID, locationID string, date timeutil.Date, slotMinutes int) ([]*types.CandidateWindow, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), cacheOpTimeout)
	defer cancel()

	key := slotCacheKey(providerID, locationID, date, slotMinutes)
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.WithError(err).Warn("Slot cache read failed")
		}
		return nil, false
	}

	var windows []*types.CandidateWindow
	if err := json.Unmarshal(data, &windows); err != nil {
		c.logger.WithError(err).Warn("Slot cache entry corrupt, discarding")
		c.client.Del(ctx, key)
		return nil, false
	}

	return windows, true
}

func (c *redisSlotCache) Put(providerID, locationID string, date timeutil.Date, slotMinutes int, windows []*types.CandidateWindow) {
	ctx, cancel := context.WithTimeout(context.Background(), cacheOpTimeout)
	defer cancel()

	data, err := json.Marshal(windows)
	if err != nil {
		c.logger.WithError(err).Warn("Failed to encode slot cache entry")
		return
	}

	key := slotCacheKey(providerID, locationID, date, slotMinutes)
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.WithError(err).Warn("Slot cache write failed")
	}
}

// Invalidate drops every cached resolution for a provider and date, across
// all locations and slot lengths
func (c *redisSlotCache) Invalidate(providerID string, date timeutil.Date) {
	ctx, cancel := context.WithTimeout(context.Background(), cacheOpTimeout)
	defer cancel()

	pattern := fmt.Sprintf("slots:%s:*:%s:*", providerID, date.String())
	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			c.logger.WithError(err).Warn("Slot cache invalidation failed")
		}
	}
	if err := iter.Err(); err != nil {
		c.logger.WithError(err).Warn("Slot cache scan failed")
	}
}

// noopSlotCache is used when Redis is disabled; every read is a miss
type noopSlotCache struct{}

// NewNoopSlotCache creates a cache that stores nothing
func NewNoopSlotCache() interfaces.SlotCache {
	return noopSlotCache{}
}

func (noopSlotCache) Get(string, string, timeutil.Date, int) ([]*types.CandidateWindow, bool) {
	return nil, false
}

func (noopSlotCache) Put(string, string, timeutil.Date, int, []*types.CandidateWindow) {}

func (noopSlotCache) Invalidate(string, timeutil.Date) {}
