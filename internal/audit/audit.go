package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ayodejiio/gatelink/internal/models"
	"github.com/ayodejiio/gatelink/pkg/logger"
)

// Store persists audit records. Implemented by the repository.
type Store interface {
	InsertVisitorLog(ctx context.Context, entry *models.VisitorLogEntry) error
}

// Alerter is notified when the store keeps failing. Optional.
type Alerter interface {
	AuditFailure(streak int, err error)
}

// Recorder writes visit records off the decision path. Enqueueing never
// blocks: when the queue is full the record is dropped and counted, the
// visitor-facing redirect is never delayed by a slow database.
type Recorder struct {
	store     Store
	alerter   Alerter
	queue     chan *models.VisitorLogEntry
	threshold int
	dropped   atomic.Int64
	wg        sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewRecorder(store Store, queueSize, failureThreshold int, alerter Alerter) *Recorder {
	return &Recorder{
		store:     store,
		alerter:   alerter,
		queue:     make(chan *models.VisitorLogEntry, queueSize),
		threshold: failureThreshold,
	}
}

// Start launches the writer goroutine.
func (r *Recorder) Start() {
	r.wg.Add(1)
	go r.run()
}

// Record enqueues one entry without blocking. Records arriving during or
// after shutdown are dropped and counted, never sent on the closed queue.
func (r *Recorder) Record(entry *models.VisitorLogEntry) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		n := r.dropped.Add(1)
		logger.Warn("Audit recorder closed, dropping record", map[string]any{
			"slug":          entry.Slug,
			"dropped_total": n,
		})
		return
	}

	select {
	case r.queue <- entry:
	default:
		n := r.dropped.Add(1)
		logger.Warn("Audit queue full, dropping record", map[string]any{
			"slug":          entry.Slug,
			"dropped_total": n,
		})
	}
}

// Dropped reports how many records were lost to backpressure.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// Close stops accepting records, drains the queue and waits for the
// writer to finish. Safe to call more than once.
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	r.wg.Wait()
}

func (r *Recorder) run() {
	defer r.wg.Done()

	streak := 0
	for entry := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := r.store.InsertVisitorLog(ctx, entry)
		cancel()

		if err != nil {
			streak++
			logger.Error("Failed to persist audit record", map[string]any{
				"slug":   entry.Slug,
				"streak": streak,
				"error":  err.Error(),
			})
			if r.alerter != nil && streak == r.threshold {
				r.alerter.AuditFailure(streak, err)
			}
			continue
		}
		streak = 0
	}
}
