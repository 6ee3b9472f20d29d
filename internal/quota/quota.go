package quota

import (
	"context"
	"time"

	"github.com/ayodejiio/gatelink/internal/models"
)

// Counter is the atomic counter store backing the limiter. Implemented by
// pkg/cache against Redis.
type Counter interface {
	TakeQuota(ctx context.Context, slug, ip string, rateWindow time.Duration) (daily, total, rate int64, err error)
}

// Limiter charges one quota unit per evaluated visit and reports the
// resulting state. The charge happens for every evaluation, not only
// allowed ones, so draining attacks stay visible in the counters.
type Limiter struct {
	counter    Counter
	rateLimit  int64
	rateWindow time.Duration
}

func NewLimiter(counter Counter, rateLimit int, rateWindow time.Duration) *Limiter {
	return &Limiter{
		counter:    counter,
		rateLimit:  int64(rateLimit),
		rateWindow: rateWindow,
	}
}

// Take increments the counters for this visit and evaluates them against
// the link's limits. A zero limit means unlimited. When the counter store
// is unreachable the limiter fails open and marks the state degraded; the
// caller decides whether to log or alert, the visitor is not penalized
// for our outage.
func (l *Limiter) Take(ctx context.Context, pol *models.LinkPolicy, ip string) (models.QuotaState, error) {
	daily, total, rate, err := l.counter.TakeQuota(ctx, pol.Slug, ip, l.rateWindow)
	if err != nil {
		return models.QuotaState{Degraded: true}, err
	}

	state := models.QuotaState{
		DailyCount: daily,
		TotalCount: total,
		RateCount:  rate,
	}
	if pol.DailyLimit > 0 && daily > pol.DailyLimit {
		state.DailyExceeded = true
	}
	if pol.TotalLimit > 0 && total > pol.TotalLimit {
		state.TotalExceeded = true
	}
	if l.rateLimit > 0 && rate > l.rateLimit {
		state.RateExceeded = true
	}
	return state, nil
}
