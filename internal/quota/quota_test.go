package quota

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ayodejiio/gatelink/internal/models"
)

type fakeCounter struct {
	daily int64
	total int64
	rate  int64
	err   error
}

func (f *fakeCounter) TakeQuota(ctx context.Context, slug, ip string, window time.Duration) (int64, int64, int64, error) {
	if f.err != nil {
		return 0, 0, 0, f.err
	}
	return atomic.AddInt64(&f.daily, 1), atomic.AddInt64(&f.total, 1), atomic.AddInt64(&f.rate, 1), nil
}

func testPolicy(dailyLimit, totalLimit int64) *models.LinkPolicy {
	return &models.LinkPolicy{
		Slug:       "promo",
		DailyLimit: dailyLimit,
		TotalLimit: totalLimit,
	}
}

func TestTakeWithinLimits(t *testing.T) {
	l := NewLimiter(&fakeCounter{}, 100, time.Hour)

	state, err := l.Take(context.Background(), testPolicy(10, 0), "203.0.113.10")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.DailyExceeded || state.TotalExceeded || state.RateExceeded {
		t.Errorf("first visit should be within limits: %+v", state)
	}
	if state.DailyCount != 1 {
		t.Errorf("expected daily count 1, got %d", state.DailyCount)
	}
}

func TestTakeDailyLimitCrossed(t *testing.T) {
	fc := &fakeCounter{daily: 100, total: 100}
	l := NewLimiter(fc, 0, time.Hour)

	// The 101st visit crosses a daily limit of 100.
	state, err := l.Take(context.Background(), testPolicy(100, 0), "203.0.113.10")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !state.DailyExceeded {
		t.Errorf("expected daily limit exceeded at count %d", state.DailyCount)
	}
	if state.TotalExceeded {
		t.Errorf("no total limit configured, should not be exceeded")
	}
}

func TestTakeZeroLimitMeansUnlimited(t *testing.T) {
	fc := &fakeCounter{daily: 1_000_000, total: 1_000_000}
	l := NewLimiter(fc, 0, time.Hour)

	state, err := l.Take(context.Background(), testPolicy(0, 0), "203.0.113.10")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.DailyExceeded || state.TotalExceeded || state.RateExceeded {
		t.Errorf("zero limits should never be exceeded: %+v", state)
	}
}

func TestTakeFailsOpenWhenStoreDown(t *testing.T) {
	l := NewLimiter(&fakeCounter{err: errors.New("connection refused")}, 100, time.Hour)

	state, err := l.Take(context.Background(), testPolicy(10, 10), "203.0.113.10")
	if err == nil {
		t.Fatal("expected error to surface for logging")
	}
	if !state.Degraded {
		t.Error("expected degraded state")
	}
	if state.DailyExceeded || state.TotalExceeded || state.RateExceeded {
		t.Errorf("degraded state must fail open: %+v", state)
	}
}

func TestTakeNoLostUpdatesUnderConcurrency(t *testing.T) {
	fc := &fakeCounter{}
	l := NewLimiter(fc, 0, time.Hour)
	pol := testPolicy(0, 0)

	const n = 200
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			if _, err := l.Take(context.Background(), pol, "203.0.113.10"); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if fc.total != n {
		t.Errorf("expected %d counted visits, got %d", n, fc.total)
	}
}
