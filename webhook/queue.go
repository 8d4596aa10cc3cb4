package webhook

import "context"

/* Queue decouples event routing from delivery. The router enqueues
 * delivery ids and returns immediately; dispatch workers consume them
 * asynchronously so a slow third-party endpoint never affects the latency
 * of the domain operation that produced the event.
 */
type Queue interface {
	// Enqueue submits a delivery id for asynchronous dispatch
	Enqueue(ctx context.Context, deliveryID string) error
	/* Consume reads pending delivery ids for the named consumer.
	 * Blocks briefly when the queue is empty and returns an empty slice.
	 */
	Consume(ctx context.Context, consumer string) ([]string, error)
	// Ack marks a consumed delivery id as processed
	Ack(ctx context.Context, consumer, deliveryID string) error
}
