package cache

import (
	"context"
	"sync"
	"time"

	"github.com/pulseboard/pulseboard/internal/metrics"
	"github.com/pulseboard/pulseboard/internal/models"
	"github.com/rs/zerolog"
)

// entry holds one cached report of either kind, along with the original key
// so invalidation can match on service and range.
type entry struct {
	key          metrics.CacheKey
	availability *models.AvailabilityReport
	responseTime *models.ResponseTimeReport
	expiresAt    time.Time
}

// Memory is an in-process rollup cache safe for concurrent use. A stale read
// racing an invalidation is acceptable; the next request recomputes.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]*entry
	ttl     time.Duration
	logger  zerolog.Logger
}

// NewMemory creates an in-memory rollup cache. ttl <= 0 uses DefaultTTL.
func NewMemory(ttl time.Duration, logger zerolog.Logger) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{
		entries: make(map[string]*entry),
		ttl:     ttl,
		logger:  logger.With().Str("component", "rollup_cache").Logger(),
	}
}

// GetAvailability returns a cached availability report if present and fresh.
func (m *Memory) GetAvailability(_ context.Context, key metrics.CacheKey) (*models.AvailabilityReport, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[hashKey(key)]
	if !ok || e.availability == nil || time.Now().After(e.expiresAt) {
		return nil, false
	}
	return e.availability, true
}

// SetAvailability stores an availability report.
func (m *Memory) SetAvailability(_ context.Context, key metrics.CacheKey, report *models.AvailabilityReport) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[hashKey(key)] = &entry{
		key:          key,
		availability: report,
		expiresAt:    time.Now().Add(m.ttl),
	}
}

// GetResponseTimes returns a cached response-time report if present and fresh.
func (m *Memory) GetResponseTimes(_ context.Context, key metrics.CacheKey) (*models.ResponseTimeReport, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[hashKey(key)]
	if !ok || e.responseTime == nil || time.Now().After(e.expiresAt) {
		return nil, false
	}
	return e.responseTime, true
}

// SetResponseTimes stores a response-time report.
func (m *Memory) SetResponseTimes(_ context.Context, key metrics.CacheKey, report *models.ResponseTimeReport) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[hashKey(key)] = &entry{
		key:          key,
		responseTime: report,
		expiresAt:    time.Now().Add(m.ttl),
	}
}

// Invalidate drops every entry for serviceID whose range covers day and
// returns the number of entries removed.
func (m *Memory) Invalidate(_ context.Context, serviceID string, day time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for k, e := range m.entries {
		if e.key.ServiceID != serviceID {
			continue
		}
		if covers(e.key, day) {
			delete(m.entries, k)
			removed++
		}
	}
	if removed > 0 {
		m.logger.Debug().
			Str("service_id", serviceID).
			Str("date", day.Format(models.DateFormat)).
			Int("removed", removed).
			Msg("invalidated rollup cache entries")
	}
	return removed
}

// Len returns the number of live entries, expired ones included.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
