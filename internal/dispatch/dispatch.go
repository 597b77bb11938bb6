// Package dispatch delivers written events to in-process subscribers.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/gyaneshwarpardhi/auditlog/internal/event"
	"github.com/gyaneshwarpardhi/auditlog/internal/metrics"
)

// Handler consumes one written event.
type Handler func(ctx context.Context, e event.Event)

type subscriber struct {
	name string
	fn   Handler
}

// Dispatcher is the post-write bus. Subscribers run in registration order for
// each event; with a single worker events are delivered in publish order.
type Dispatcher struct {
	pool *workerPool[event.Event]
	log  *slog.Logger

	mu   sync.RWMutex
	subs []subscriber
}

// New starts a Dispatcher with the given worker count and queue depth.
func New(ctx context.Context, workers, depth int, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	if workers < 1 {
		workers = 1
	}
	if depth < 1 {
		depth = 1
	}
	d := &Dispatcher{log: log}
	d.pool = newWorkerPool[event.Event](ctx, workers, depth, d.deliver)
	return d
}

// Subscribe registers fn under name.
func (d *Dispatcher) Subscribe(name string, fn Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subs = append(d.subs, subscriber{name: name, fn: fn})
}

// Publish enqueues e without blocking. It returns false when the queue is full.
func (d *Dispatcher) Publish(e event.Event) bool {
	ok := d.pool.Submit(e)
	metrics.DispatchQueueUtilization.Set(d.QueueUtilization())
	return ok
}

// Drain stops accepting events and waits for queued ones to be delivered.
func (d *Dispatcher) Drain() {
	d.pool.Drain()
	metrics.DispatchQueueUtilization.Set(0)
}

// QueueUtilization is the fraction of the queue in use (0–1).
func (d *Dispatcher) QueueUtilization() float64 {
	c := d.pool.QueueCap()
	if c == 0 {
		return 0
	}
	return float64(d.pool.QueueLen()) / float64(c)
}

func (d *Dispatcher) deliver(ctx context.Context, e event.Event) {
	d.mu.RLock()
	subs := make([]subscriber, len(d.subs))
	copy(subs, d.subs)
	d.mu.RUnlock()

	for _, s := range subs {
		d.call(ctx, s, e)
	}
	metrics.DispatchQueueUtilization.Set(d.QueueUtilization())
}

func (d *Dispatcher) call(ctx context.Context, s subscriber, e event.Event) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("subscriber panicked",
				"subscriber", s.name,
				"event_id", e.ID,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
		}
	}()
	s.fn(ctx, e)
}
