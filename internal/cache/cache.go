// Package cache puts a Redis read-through cache in front of the engine.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"stationbook/internal/availability"
	"stationbook/internal/clock"
	"stationbook/internal/metrics"
)

const keyPrefix = "stationbook:"

// Source is what the cache decorates.
type Source interface {
	GetAvailableDates(ctx context.Context, q availability.DatesQuery) ([]availability.DateAvailability, error)
	GetAvailableTimes(ctx context.Context, q availability.TimesQuery) ([]availability.TimeSlot, error)
}

// Availability caches successful results of a Source. Failures are never cached.
type Availability struct {
	next       Source
	redis      *redis.Client
	ttl        time.Duration
	clock      clock.Clock
	minAdvance time.Duration
	loc        *time.Location
	logger     *zerolog.Logger
}

// Options configures the cache.
type Options struct {
	TTL        time.Duration
	Clock      clock.Clock
	MinAdvance time.Duration
	Location   *time.Location
}

// New wraps next. A nil client or non-positive TTL disables caching.
func New(next Source, rdb *redis.Client, opts Options, logger *zerolog.Logger) *Availability {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Availability{
		next:       next,
		redis:      rdb,
		ttl:        opts.TTL,
		clock:      opts.Clock,
		minAdvance: opts.MinAdvance,
		loc:        opts.Location,
		logger:     logger,
	}
}

func (c *Availability) enabled() bool {
	return c.redis != nil && c.ttl > 0
}

// GetAvailableDates implements Source.
func (c *Availability) GetAvailableDates(ctx context.Context, q availability.DatesQuery) ([]availability.DateAvailability, error) {
	key := fmt.Sprintf("%sdates:%d:%s:%s:%s", keyPrefix, q.ServiceID,
		q.From.In(c.loc).Format(time.DateOnly), q.To.In(c.loc).Format(time.DateOnly), customerKey(q.CustomerTypeID))

	var cached []availability.DateAvailability
	if c.readCache(ctx, key, &cached) {
		return cached, nil
	}

	result, err := c.next.GetAvailableDates(ctx, q)
	if err != nil {
		return nil, err
	}
	c.writeCache(ctx, key, result)
	return result, nil
}

// GetAvailableTimes implements Source. Cached slots that have since moved
// inside the lead time are dropped on the way out.
func (c *Availability) GetAvailableTimes(ctx context.Context, q availability.TimesQuery) ([]availability.TimeSlot, error) {
	key := fmt.Sprintf("%stimes:%d:%s:%s", keyPrefix, q.ServiceID,
		q.Date.In(c.loc).Format(time.DateOnly), customerKey(q.CustomerTypeID))

	var cached []availability.TimeSlot
	if c.readCache(ctx, key, &cached) {
		return c.dropPast(cached), nil
	}

	result, err := c.next.GetAvailableTimes(ctx, q)
	if err != nil {
		return nil, err
	}
	c.writeCache(ctx, key, result)
	return result, nil
}

func (c *Availability) dropPast(list []availability.TimeSlot) []availability.TimeSlot {
	cutoff := c.clock.Now().Add(c.minAdvance)
	kept := make([]availability.TimeSlot, 0, len(list))
	for _, s := range list {
		if s.StartsAt.After(cutoff) {
			kept = append(kept, s)
		}
	}
	return kept
}

// Purge drops every cached entry. Called after the catalogue changes.
func (c *Availability) Purge(ctx context.Context) error {
	if c.redis == nil {
		return nil
	}
	iter := c.redis.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan cache keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("delete cache keys: %w", err)
	}
	c.logger.Info().Int("keys", len(keys)).Msg("availability cache purged")
	return nil
}

func (c *Availability) readCache(ctx context.Context, key string, out any) bool {
	if !c.enabled() {
		return false
	}
	val, err := c.redis.Get(ctx, key).Result()
	if err == redis.Nil {
		metrics.IncCacheLookup("miss")
		return false
	}
	if err != nil {
		metrics.IncCacheLookup("error")
		c.logger.Warn().Err(err).Str("key", key).Msg("cache read failed")
		return false
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		metrics.IncCacheLookup("error")
		return false
	}
	metrics.IncCacheLookup("hit")
	return true
}

func (c *Availability) writeCache(ctx context.Context, key string, val any) {
	if !c.enabled() {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
}

func customerKey(id *int64) string {
	if id == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *id)
}
