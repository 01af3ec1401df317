// Package cache memoizes rollup computations keyed by
// (service, range, target, granularity). The cache is a pure performance
// optimization; every read path is correct with caching disabled.
package cache

import (
	"fmt"
	"hash/fnv"
	"time"

	"github.com/pulseboard/pulseboard/internal/metrics"
	"github.com/pulseboard/pulseboard/internal/models"
)

// DefaultTTL bounds staleness for entries that are never invalidated, e.g.
// ranges whose underlying days have closed.
const DefaultTTL = 5 * time.Minute

// hashKey derives the storage key for a rollup computation.
func hashKey(key metrics.CacheKey) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%s|%s|%.4f|%s",
		key.ServiceID,
		key.Start.Format(models.DateFormat),
		key.End.Format(models.DateFormat),
		key.SLATarget,
		key.Granularity,
	)
	return fmt.Sprintf("rollup:%016x", h.Sum64())
}

// covers reports whether the key's date range includes the given day.
func covers(key metrics.CacheKey, day time.Time) bool {
	d := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	return !d.Before(key.Start) && !d.After(key.End)
}
