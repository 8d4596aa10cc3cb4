package webhook

import (
	"context"
	"fmt"
	"time"

	"github.com/fleetgrid/webhooks/events"
	"github.com/fleetgrid/webhooks/webhook/payload"
	"github.com/google/uuid"
)

// TestEventType identifies synthetic deliveries created by the manual test
// trigger. It is not part of the catalog and bypasses subscription
// filtering.
const TestEventType = "webhook.test"

/* Router receives event occurrences from domain modules and fans them out
 * to subscribed endpoints. Routing only snapshots the payload and enqueues
 * work; the HTTP delivery happens asynchronously in the workers, so event
 * emission is fire-and-forget for the originator.
 */
type Router struct {
	endpoints   EndpointReader
	deliveries  DeliveryWriter
	queue       Queue
	catalog     *events.Catalog
	maxAttempts int
	now         func() time.Time
}

// NewRouter creates an event router with dependency injection
func NewRouter(endpoints EndpointReader, deliveries DeliveryWriter, queue Queue, catalog *events.Catalog, maxAttempts int) *Router {
	return &Router{
		endpoints:   endpoints,
		deliveries:  deliveries,
		queue:       queue,
		catalog:     catalog,
		maxAttempts: maxAttempts,
		now:         time.Now,
	}
}

/* Route creates one pending delivery per active subscribed endpoint of the
 * tenant and enqueues each for dispatch. Returns the created delivery ids.
 * Zero subscribers is not an error: the event is simply dropped.
 */
func (r *Router) Route(ctx context.Context, tenantID, eventType string, data interface{}) ([]string, error) {
	if !r.catalog.Has(eventType) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEventType, eventType)
	}

	env, err := payload.New(eventType, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	// one immutable snapshot shared by every delivery of this occurrence
	body, err := env.Bytes()
	if err != nil {
		return nil, fmt.Errorf("serializing payload: %w", err)
	}

	subscribed, err := r.endpoints.ListSubscribed(ctx, tenantID, eventType)
	if err != nil {
		return nil, fmt.Errorf("resolving subscribers: %w", err)
	}

	ids := make([]string, 0, len(subscribed))
	for _, ep := range subscribed {
		id, err := r.enqueue(ctx, ep.ID, eventType, body, false)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}

	return ids, nil
}

/* SendTest creates a single synthetic delivery for one endpoint with a
 * fixed representative payload, regardless of the endpoint's subscribed
 * events. Test deliveries are flagged so they never count against real
 * event statistics.
 */
func (r *Router) SendTest(ctx context.Context, endpointID string) (string, error) {
	ep, err := r.endpoints.GetEndpoint(ctx, endpointID)
	if err != nil {
		return "", err
	}
	if !ep.Active {
		return "", ErrEndpointInactive
	}

	env, err := payload.New(TestEventType, map[string]string{
		"message": "Test delivery. Your endpoint is receiving webhooks correctly.",
	})
	if err != nil {
		return "", fmt.Errorf("building test payload: %w", err)
	}

	body, err := env.Bytes()
	if err != nil {
		return "", fmt.Errorf("serializing test payload: %w", err)
	}

	return r.enqueue(ctx, endpointID, TestEventType, body, true)
}

func (r *Router) enqueue(ctx context.Context, endpointID, eventType string, body []byte, test bool) (string, error) {
	d := Delivery{
		ID:          uuid.New().String(),
		EndpointID:  endpointID,
		EventType:   eventType,
		Payload:     body,
		Status:      Pending,
		Attempts:    0,
		MaxAttempts: r.maxAttempts,
		Test:        test,
		CreatedAt:   r.now(),
	}

	if err := r.deliveries.CreateDelivery(ctx, d); err != nil {
		return "", fmt.Errorf("storing delivery: %w", err)
	}

	if err := r.queue.Enqueue(ctx, d.ID); err != nil {
		return "", fmt.Errorf("enqueueing delivery: %w", err)
	}

	return d.ID, nil
}
