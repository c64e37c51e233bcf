package notify

import (
	"context"
	"fmt"
	"log"
	"parking_lifecycle/internal/domain"
	"time"
)

const drainTimeout = 5 * time.Second

// QueuedSink decouples callers from a slow sink: Emit enqueues and returns, Run delivers.
// When the buffer is full the notification is dropped and Emit reports ErrSinkUnavailable.
type QueuedSink struct {
	next  Sink
	queue chan domain.Notification
	name  string
}

func NewQueuedSink(name string, next Sink, size int) *QueuedSink {
	if size <= 0 {
		size = 1
	}
	return &QueuedSink{next: next, queue: make(chan domain.Notification, size), name: name}
}

func (q *QueuedSink) Emit(_ context.Context, n domain.Notification) error {
	select {
	case q.queue <- n:
		return nil
	default:
		return fmt.Errorf("%w: %s queue full, dropped %s for space %s", domain.ErrSinkUnavailable, q.name, n.Event.Kind, n.Event.SpaceNumber)
	}
}

// Run delivers queued notifications until ctx is done, then drains what is left.
func (q *QueuedSink) Run(ctx context.Context) error {
	for {
		select {
		case n := <-q.queue:
			q.deliver(ctx, n)
		case <-ctx.Done():
			q.drain()
			return nil
		}
	}
}

func (q *QueuedSink) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	for {
		select {
		case n := <-q.queue:
			q.deliver(ctx, n)
		default:
			return
		}
	}
}

func (q *QueuedSink) deliver(ctx context.Context, n domain.Notification) {
	if err := q.next.Emit(ctx, n); err != nil {
		log.Printf("QueuedSink(%s): delivery of %s for space %s failed: %v", q.name, n.Event.Kind, n.Event.SpaceNumber, err)
	}
}

func (q *QueuedSink) Len() int {
	return len(q.queue)
}
