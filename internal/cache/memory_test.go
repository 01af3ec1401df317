package cache

import (
	"context"
	"testing"
	"time"

	"github.com/pulseboard/pulseboard/internal/metrics"
	"github.com/pulseboard/pulseboard/internal/models"
	"github.com/rs/zerolog"
)

func cacheKey(serviceID, startDate, endDate string, target float64) metrics.CacheKey {
	start, _ := time.Parse(models.DateFormat, startDate)
	end, _ := time.Parse(models.DateFormat, endDate)
	return metrics.CacheKey{
		ServiceID:   serviceID,
		Start:       start,
		End:         end,
		SLATarget:   target,
		Granularity: "monthly",
	}
}

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()

	t.Run("round trip", func(t *testing.T) {
		c := NewMemory(time.Minute, zerolog.Nop())
		key := cacheKey("api", "2025-06-01", "2025-06-30", 99.9)
		report := &models.AvailabilityReport{ServiceID: "api"}

		if _, ok := c.GetAvailability(ctx, key); ok {
			t.Fatal("expected miss on empty cache")
		}
		c.SetAvailability(ctx, key, report)
		got, ok := c.GetAvailability(ctx, key)
		if !ok {
			t.Fatal("expected hit after set")
		}
		if got != report {
			t.Error("expected the stored instance")
		}
	})

	t.Run("distinct keys do not collide", func(t *testing.T) {
		c := NewMemory(time.Minute, zerolog.Nop())
		key := cacheKey("api", "2025-06-01", "2025-06-30", 99.9)
		c.SetAvailability(ctx, key, &models.AvailabilityReport{ServiceID: "api"})

		other := cacheKey("api", "2025-06-01", "2025-06-30", 99.0)
		if _, ok := c.GetAvailability(ctx, other); ok {
			t.Error("different target must be a different entry")
		}
		other = cacheKey("web", "2025-06-01", "2025-06-30", 99.9)
		if _, ok := c.GetAvailability(ctx, other); ok {
			t.Error("different service must be a different entry")
		}
	})

	t.Run("expired entries miss", func(t *testing.T) {
		c := NewMemory(time.Nanosecond, zerolog.Nop())
		key := cacheKey("api", "2025-06-01", "2025-06-30", 99.9)
		c.SetAvailability(ctx, key, &models.AvailabilityReport{})

		time.Sleep(time.Millisecond)
		if _, ok := c.GetAvailability(ctx, key); ok {
			t.Error("expected miss after TTL")
		}
	})

	t.Run("invalidate drops only covering ranges", func(t *testing.T) {
		c := NewMemory(time.Minute, zerolog.Nop())
		june := cacheKey("api", "2025-06-01", "2025-06-30", 99.9)
		may := cacheKey("api", "2025-05-01", "2025-05-31", 99.9)
		otherService := cacheKey("web", "2025-06-01", "2025-06-30", 99.9)
		c.SetAvailability(ctx, june, &models.AvailabilityReport{})
		c.SetAvailability(ctx, may, &models.AvailabilityReport{})
		c.SetAvailability(ctx, otherService, &models.AvailabilityReport{})

		day, _ := time.Parse(models.DateFormat, "2025-06-15")
		removed := c.Invalidate(ctx, "api", day)
		if removed != 1 {
			t.Fatalf("expected 1 entry removed, got %d", removed)
		}
		if _, ok := c.GetAvailability(ctx, june); ok {
			t.Error("covering entry survived invalidation")
		}
		if _, ok := c.GetAvailability(ctx, may); !ok {
			t.Error("non-covering range was invalidated")
		}
		if _, ok := c.GetAvailability(ctx, otherService); !ok {
			t.Error("other service was invalidated")
		}
	})

	t.Run("invalidate matches range boundaries inclusively", func(t *testing.T) {
		c := NewMemory(time.Minute, zerolog.Nop())
		key := cacheKey("api", "2025-06-01", "2025-06-30", 99.9)
		c.SetAvailability(ctx, key, &models.AvailabilityReport{})

		day, _ := time.Parse(models.DateFormat, "2025-06-30")
		if removed := c.Invalidate(ctx, "api", day); removed != 1 {
			t.Errorf("expected end boundary to be covered, removed=%d", removed)
		}

		c.SetAvailability(ctx, key, &models.AvailabilityReport{})
		day, _ = time.Parse(models.DateFormat, "2025-07-01")
		if removed := c.Invalidate(ctx, "api", day); removed != 0 {
			t.Errorf("expected day outside range to remove nothing, removed=%d", removed)
		}
	})

	t.Run("response time reports are cached independently", func(t *testing.T) {
		c := NewMemory(time.Minute, zerolog.Nop())
		key := cacheKey("api", "2025-06-01", "2025-06-30", 200)
		key.Granularity = "response::"

		c.SetResponseTimes(ctx, key, &models.ResponseTimeReport{ServiceID: "api"})
		if _, ok := c.GetResponseTimes(ctx, key); !ok {
			t.Fatal("expected response time hit")
		}
		if _, ok := c.GetAvailability(ctx, key); ok {
			t.Error("availability lookup must not return a response time entry")
		}
	})

	t.Run("concurrent access", func(t *testing.T) {
		c := NewMemory(time.Minute, zerolog.Nop())
		key := cacheKey("api", "2025-06-01", "2025-06-30", 99.9)
		done := make(chan struct{})
		go func() {
			defer close(done)
			for i := 0; i < 500; i++ {
				c.SetAvailability(ctx, key, &models.AvailabilityReport{})
				c.Invalidate(ctx, "api", key.Start)
			}
		}()
		for i := 0; i < 500; i++ {
			c.GetAvailability(ctx, key)
		}
		<-done
	})
}
