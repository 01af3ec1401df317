package cache

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/pulseboard/pulseboard/internal/metrics"
	"github.com/pulseboard/pulseboard/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Redis is a rollup cache backed by a Redis instance, for deployments that
// run more than one API replica. Alongside each report it maintains a
// per-service index set whose members encode the cached range, so
// invalidation can match entries covering an ingested day.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewRedis creates a Redis-backed rollup cache. ttl <= 0 uses DefaultTTL.
func NewRedis(client *redis.Client, ttl time.Duration, logger zerolog.Logger) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{
		client: client,
		ttl:    ttl,
		logger: logger.With().Str("component", "rollup_cache_redis").Logger(),
	}
}

func indexKey(serviceID string) string {
	return "rollup-index:" + serviceID
}

// indexMember encodes hash and range into one set member so invalidation can
// recover the range without a second lookup.
func indexMember(hash string, key metrics.CacheKey) string {
	return hash + "|" + key.Start.Format(models.DateFormat) + "|" + key.End.Format(models.DateFormat)
}

func (r *Redis) get(ctx context.Context, key metrics.CacheKey, out any) bool {
	data, err := r.client.Get(ctx, hashKey(key)).Bytes()
	if err != nil {
		if err != redis.Nil {
			r.logger.Warn().Err(err).Msg("rollup cache read failed")
		}
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		r.logger.Warn().Err(err).Msg("rollup cache entry corrupt, ignoring")
		return false
	}
	return true
}

func (r *Redis) set(ctx context.Context, key metrics.CacheKey, report any) {
	data, err := json.Marshal(report)
	if err != nil {
		r.logger.Warn().Err(err).Msg("rollup cache marshal failed")
		return
	}
	hash := hashKey(key)
	pipe := r.client.Pipeline()
	pipe.Set(ctx, hash, data, r.ttl)
	pipe.SAdd(ctx, indexKey(key.ServiceID), indexMember(hash, key))
	pipe.Expire(ctx, indexKey(key.ServiceID), r.ttl*2)
	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Warn().Err(err).Msg("rollup cache write failed")
	}
}

// GetAvailability returns a cached availability report if present.
func (r *Redis) GetAvailability(ctx context.Context, key metrics.CacheKey) (*models.AvailabilityReport, bool) {
	var report models.AvailabilityReport
	if !r.get(ctx, key, &report) {
		return nil, false
	}
	return &report, true
}

// SetAvailability stores an availability report.
func (r *Redis) SetAvailability(ctx context.Context, key metrics.CacheKey, report *models.AvailabilityReport) {
	r.set(ctx, key, report)
}

// GetResponseTimes returns a cached response-time report if present.
func (r *Redis) GetResponseTimes(ctx context.Context, key metrics.CacheKey) (*models.ResponseTimeReport, bool) {
	var report models.ResponseTimeReport
	if !r.get(ctx, key, &report) {
		return nil, false
	}
	return &report, true
}

// SetResponseTimes stores a response-time report.
func (r *Redis) SetResponseTimes(ctx context.Context, key metrics.CacheKey, report *models.ResponseTimeReport) {
	r.set(ctx, key, report)
}

// Invalidate removes every cached entry for serviceID whose range covers day.
func (r *Redis) Invalidate(ctx context.Context, serviceID string, day time.Time) int {
	members, err := r.client.SMembers(ctx, indexKey(serviceID)).Result()
	if err != nil {
		if err != redis.Nil {
			r.logger.Warn().Err(err).Msg("rollup cache index read failed")
		}
		return 0
	}

	d := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	var hashes []string
	var stale []any
	for _, member := range members {
		parts := strings.SplitN(member, "|", 3)
		if len(parts) != 3 {
			stale = append(stale, member)
			continue
		}
		start, err1 := time.Parse(models.DateFormat, parts[1])
		end, err2 := time.Parse(models.DateFormat, parts[2])
		if err1 != nil || err2 != nil {
			stale = append(stale, member)
			continue
		}
		if !d.Before(start) && !d.After(end) {
			hashes = append(hashes, parts[0])
			stale = append(stale, member)
		}
	}

	if len(stale) == 0 {
		return 0
	}
	pipe := r.client.Pipeline()
	if len(hashes) > 0 {
		pipe.Del(ctx, hashes...)
	}
	pipe.SRem(ctx, indexKey(serviceID), stale...)
	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Warn().Err(err).Msg("rollup cache invalidation failed")
	}
	return len(hashes)
}
