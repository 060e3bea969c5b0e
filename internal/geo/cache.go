package geo

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cardlink/pixel-tracker/internal/logger"
	"github.com/cardlink/pixel-tracker/internal/metrics"
)

// cacheKeyPrefix namespaces geolocation entries in Redis.
const cacheKeyPrefix = "geo:"

// Cache is a Redis-backed cache of geolocation results keyed by IP.
// All cache failures are soft: a broken cache degrades to direct lookups.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	log    logger.Logger
}

// NewCache creates a geolocation cache. Returns nil when client is nil so
// callers can treat an unconfigured cache as absent.
func NewCache(client *redis.Client, ttl time.Duration, log logger.Logger) *Cache {
	if client == nil {
		return nil
	}
	return &Cache{client: client, ttl: ttl, log: log}
}

// Get returns the cached location for an IP, if present.
func (c *Cache) Get(ctx context.Context, ip string) (Location, bool) {
	data, err := c.client.Get(ctx, cacheKeyPrefix+ip).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.Debug("Geo cache read failed", logger.Error(err))
		}
		metrics.GeoCacheMissesTotal.Inc()
		return Location{}, false
	}

	var loc Location
	if err := json.Unmarshal(data, &loc); err != nil {
		c.log.Debug("Geo cache entry malformed", logger.Error(err))
		metrics.GeoCacheMissesTotal.Inc()
		return Location{}, false
	}

	metrics.GeoCacheHitsTotal.Inc()
	return loc, true
}

// Set stores a location for an IP with the configured TTL.
func (c *Cache) Set(ctx context.Context, ip string, loc Location) {
	data, err := json.Marshal(loc)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, cacheKeyPrefix+ip, data, c.ttl).Err(); err != nil {
		c.log.Debug("Geo cache write failed", logger.Error(err))
	}
}
