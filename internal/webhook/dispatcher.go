package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ayodejiio/gatelink/internal/models"
	"github.com/ayodejiio/gatelink/pkg/logger"
)

// delivery is one outbound notification bound to its destination.
type delivery struct {
	url     string
	payload models.WebhookPayload
}

// Dispatcher POSTs event notifications to operator endpoints. Deliveries
// run on a bounded queue with a small worker pool; a slow or dead endpoint
// can never stall the decision path. There are no retries: a missed
// notification is cheaper than a backed-up queue.
type Dispatcher struct {
	client    *http.Client
	queue     chan delivery
	workers   int
	delivered atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
	wg        sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewDispatcher(timeout time.Duration, queueSize, workers int) *Dispatcher {
	return &Dispatcher{
		client:  &http.Client{Timeout: timeout},
		queue:   make(chan delivery, queueSize),
		workers: workers,
	}
}

// Start launches the worker pool.
func (d *Dispatcher) Start() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.run()
	}
}

// Notify enqueues an event for a link when the link subscribes to it.
// Non-blocking: a full queue drops the notification and counts it.
func (d *Dispatcher) Notify(pol *models.LinkPolicy, event string, visitor models.WebhookVisitor) {
	if !pol.WebhookEnabled || event == "" || !subscribed(pol.WebhookEvents, event) {
		return
	}

	dl := delivery{
		url: pol.WebhookURL,
		payload: models.WebhookPayload{
			Event:     event,
			LinkID:    pol.ID,
			Slug:      pol.Slug,
			Timestamp: time.Now().UTC(),
			Visitor:   visitor,
		},
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		n := d.dropped.Add(1)
		logger.Warn("Webhook dispatcher closed, dropping notification", map[string]any{
			"slug":          pol.Slug,
			"event":         event,
			"dropped_total": n,
		})
		return
	}

	select {
	case d.queue <- dl:
	default:
		n := d.dropped.Add(1)
		logger.Warn("Webhook queue full, dropping notification", map[string]any{
			"slug":          pol.Slug,
			"event":         event,
			"dropped_total": n,
		})
	}
}

// Delivered reports successful deliveries.
func (d *Dispatcher) Delivered() int64 { return d.delivered.Load() }

// Failed reports deliveries that errored or got a non-2xx response.
func (d *Dispatcher) Failed() int64 { return d.failed.Load() }

// Dropped reports notifications lost to backpressure.
func (d *Dispatcher) Dropped() int64 { return d.dropped.Load() }

// Close stops accepting notifications and waits for in-flight deliveries.
// Safe to call more than once.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for dl := range d.queue {
		if err := d.send(dl); err != nil {
			d.failed.Add(1)
			logger.Warn("Webhook delivery failed", map[string]any{
				"slug":  dl.payload.Slug,
				"event": dl.payload.Event,
				"error": err.Error(),
			})
			continue
		}
		d.delivered.Add(1)
	}
}

func (d *Dispatcher) send(dl delivery) error {
	body, err := json.Marshal(dl.payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, dl.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Gatelink-Event", dl.payload.Event)

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("delivery error: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

func subscribed(events []string, event string) bool {
	for _, e := range events {
		if e == event {
			return true
		}
	}
	return false
}
