package services

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"spendly/internal/amqp"
)

// ErrEventQueueFull is returned when an event is dropped because the
// publisher is behind.
var ErrEventQueueFull = errors.New("event queue full")

const drainTimeout = 5 * time.Second

// AsyncPublisher queues events in a bounded buffer and delivers them to next
// from a single goroutine started with Run. Enqueueing never blocks; when the
// buffer is full the event is dropped.
type AsyncPublisher struct {
	next    EventPublisher
	queue   chan *amqp.ExpenseEvent
	dropped atomic.Int64
	failed  atomic.Int64
}

func NewAsyncPublisher(next EventPublisher, size int) *AsyncPublisher {
	if size < 1 {
		size = 1
	}
	return &AsyncPublisher{next: next, queue: make(chan *amqp.ExpenseEvent, size)}
}

// PublishExpenseEvent enqueues ev. ctx is not used for delivery, which
// happens after the request has returned.
func (p *AsyncPublisher) PublishExpenseEvent(_ context.Context, ev *amqp.ExpenseEvent) error {
	select {
	case p.queue <- ev:
		return nil
	default:
		p.dropped.Add(1)
		return ErrEventQueueFull
	}
}

// Run delivers queued events until ctx is cancelled, then flushes what is
// still buffered for at most drainTimeout.
func (p *AsyncPublisher) Run(ctx context.Context) {
	for {
		select {
		case ev := <-p.queue:
			p.deliver(context.WithoutCancel(ctx), ev)
		case <-ctx.Done():
			p.drain(context.WithoutCancel(ctx))
			return
		}
	}
}

func (p *AsyncPublisher) drain(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, drainTimeout)
	defer cancel()
	for {
		select {
		case ev := <-p.queue:
			p.deliver(ctx, ev)
		default:
			return
		}
		if ctx.Err() != nil {
			slog.Warn("Event drain timed out", "pending", len(p.queue))
			return
		}
	}
}

func (p *AsyncPublisher) deliver(ctx context.Context, ev *amqp.ExpenseEvent) {
	if err := p.next.PublishExpenseEvent(ctx, ev); err != nil {
		p.failed.Add(1)
		slog.WarnContext(ctx, "Failed to deliver expense event",
			"type", ev.Type,
			"expense_id", ev.ExpenseID,
			"error", err)
	}
}

// Stats reports events dropped on a full queue and events next rejected.
func (p *AsyncPublisher) Stats() (dropped, failed int64) {
	return p.dropped.Load(), p.failed.Load()
}
