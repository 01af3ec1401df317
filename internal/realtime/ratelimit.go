package realtime

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

// ActionLimiter applies a sliding-window rate limit per (connection, action).
// An action that exceeds the window is dropped, not queued.
type ActionLimiter struct {
	instance *limiter.Limiter
}

// NewActionLimiter allows limit actions per period for each
// (connection, action) pair.
func NewActionLimiter(limit int64, period time.Duration) *ActionLimiter {
	rate := limiter.Rate{
		Period: period,
		Limit:  limit,
	}
	return &ActionLimiter{instance: limiter.New(memory.NewStore(), rate)}
}

// Allow checks and consumes one slot. When the limit is reached it returns
// false and the number of seconds until the window resets. Limiter store
// failures fail open: dropping legitimate actions is worse than letting a
// burst through.
func (l *ActionLimiter) Allow(ctx context.Context, connID uuid.UUID, action string) (retryAfterSeconds int, ok bool) {
	res, err := l.instance.Get(ctx, connID.String()+":"+action)
	if err != nil {
		return 0, true
	}
	if !res.Reached {
		return 0, true
	}
	retry := time.Until(time.Unix(res.Reset, 0))
	seconds := int(retry.Seconds())
	if retry > 0 && seconds == 0 {
		seconds = 1
	}
	if seconds < 0 {
		seconds = 0
	}
	return seconds, false
}
