package webhook

import (
	"context"
	"errors"
	"log"
	"time"
)

// Heartbeater reports worker liveness for observability. Implemented by
// the redis queue; optional.
type Heartbeater interface {
	Heartbeat(ctx context.Context, workerID, status string) error
}

/* Worker consumes delivery ids from the dispatch queue and hands them to
 * the dispatcher. Several workers may run concurrently; the claim inside
 * Dispatch guarantees at-most-one-in-flight per delivery, so a duplicate
 * id on the queue costs one no-op claim attempt, never a duplicate send.
 */
type Worker struct {
	ID         string
	queue      Queue
	dispatcher *Dispatcher
	heartbeat  Heartbeater
}

// NewWorker creates a dispatch worker
func NewWorker(id string, queue Queue, dispatcher *Dispatcher, heartbeat Heartbeater) *Worker {
	return &Worker{
		ID:         id,
		queue:      queue,
		dispatcher: dispatcher,
		heartbeat:  heartbeat,
	}
}

// Run consumes and dispatches until the context is cancelled
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	w.beat(ctx, "idle")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.beat(ctx, "idle")
		default:
		}

		ids, err := w.queue.Consume(ctx, w.ID)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			log.Printf("worker %s: consuming queue: %v", w.ID, err)
			continue
		}

		for _, id := range ids {
			w.beat(ctx, "processing")
			w.process(ctx, id)
		}
	}
}

func (w *Worker) process(ctx context.Context, deliveryID string) {
	err := w.dispatcher.Dispatch(ctx, deliveryID)
	switch {
	case err == nil:
	case errors.Is(err, ErrAlreadyInFlight), errors.Is(err, ErrTerminalState):
		// another worker owns or finished it; drop the queue entry
	case errors.Is(err, ErrEndpointInactive), errors.Is(err, ErrEndpointNotFound), errors.Is(err, ErrMissingSecret):
		log.Printf("worker %s: dispatch refused for %s: %v", w.ID, deliveryID, err)
	default:
		log.Printf("worker %s: dispatching %s: %v", w.ID, deliveryID, err)
	}

	if err := w.queue.Ack(ctx, w.ID, deliveryID); err != nil {
		log.Printf("worker %s: acking %s: %v", w.ID, deliveryID, err)
	}
}

func (w *Worker) beat(ctx context.Context, status string) {
	if w.heartbeat == nil {
		return
	}
	if err := w.heartbeat.Heartbeat(ctx, w.ID, status); err != nil {
		log.Printf("worker %s: heartbeat: %v", w.ID, err)
	}
}
