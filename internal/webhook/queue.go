package webhook

import (
	"context"
	"io"
	"log/slog"
	"time"
)

// DefaultQueueSize is the number of accepted deliveries that may wait for processing.
const DefaultQueueSize = 500

// Event is one accepted webhook delivery. It is not modified after Enqueue.
type Event struct {
	ID         string
	Body       []byte
	Signature  string
	Retry      string
	UserAgent  string
	ReceivedAt time.Time
}

// EventProcessor handles a single dequeued event.
type EventProcessor interface {
	Process(ctx context.Context, ev Event) error
}

// Queue is a bounded FIFO drained by a single worker.
type Queue struct {
	events chan Event
	logger *slog.Logger
}

// NewQueue creates a queue holding at most size events.
func NewQueue(size int, logger *slog.Logger) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Queue{
		events: make(chan Event, size),
		logger: logger.With("component", "webhook_queue"),
	}
}

// Enqueue adds ev without blocking. It returns ErrQueueSaturated when full.
func (q *Queue) Enqueue(ev Event) error {
	select {
	case q.events <- ev:
		return nil
	default:
		return ErrQueueSaturated
	}
}

// Len returns the number of events waiting.
func (q *Queue) Len() int { return len(q.events) }

// Cap returns the queue capacity.
func (q *Queue) Cap() int { return cap(q.events) }

// Run processes events one at a time, in enqueue order, until ctx is cancelled.
// An event in flight when ctx is cancelled runs to completion with the cancelled context.
func (q *Queue) Run(ctx context.Context, p EventProcessor) error {
	q.logger.Info("Webhook worker started", "capacity", q.Cap())
	for {
		select {
		case <-ctx.Done():
			q.logger.Info("Webhook worker stopped", "pending", q.Len())
			return nil
		case ev := <-q.events:
			q.process(ctx, p, ev)
		}
	}
}

func (q *Queue) process(ctx context.Context, p EventProcessor, ev Event) {
	log := q.logger.With("event_id", ev.ID)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			log.Error("Webhook processing panicked", "panic", r)
		}
	}()

	err := p.Process(ctx, ev)
	status := StatusOf(err)
	attrs := []any{
		"status", status,
		"retry", ev.Retry,
		"queued_for", start.Sub(ev.ReceivedAt),
		"duration", time.Since(start),
	}
	switch {
	case err == nil:
		log.Info("Webhook processed", attrs...)
	case status < 500:
		log.Warn("Webhook rejected", append(attrs, "error", err)...)
	default:
		log.Error("Webhook processing failed", append(attrs, "error", err)...)
	}
}
