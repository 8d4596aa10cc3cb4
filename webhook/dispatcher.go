package webhook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/fleetgrid/webhooks/webhook/signature"
)

/* Outbound HTTP contract headers. Stable across retries except the
 * timestamp and signature, which are recomputed per attempt.
 */
const (
	HeaderID        = "Webhook-Id"
	HeaderEventType = "Webhook-Event-Type"
	HeaderTimestamp = "Webhook-Timestamp"
	HeaderSignature = "Webhook-Signature"
)

// DispatchTimeout bounds a single HTTP attempt when no override is configured
const DispatchTimeout = 30 * time.Second

/* Dispatcher performs one HTTP delivery attempt for a claimed delivery.
 * The claim (pending/retrying -> delivering) is a conditional state
 * transition in the store, so two workers racing on the same delivery
 * resolve without an external lock: one wins, the other gets
 * ErrAlreadyInFlight and makes no HTTP call.
 */
type Dispatcher struct {
	endpoints  EndpointReader
	deliveries DeliveryRepository
	client     *http.Client
	timeout    time.Duration
	backoff    Backoff
	now        func() time.Time
}

// NewDispatcher creates a dispatcher with dependency injection
func NewDispatcher(endpoints EndpointReader, deliveries DeliveryRepository, timeout time.Duration, backoff Backoff) *Dispatcher {
	if timeout <= 0 {
		timeout = DispatchTimeout
	}
	return &Dispatcher{
		endpoints:  endpoints,
		deliveries: deliveries,
		client:     &http.Client{Timeout: timeout},
		timeout:    timeout,
		backoff:    backoff,
		now:        time.Now,
	}
}

/* Dispatch claims the delivery, signs its payload snapshot and POSTs it to
 * the endpoint, then commits the outcome.
 *
 * Error conditions signaled to the caller:
 *   - ErrAlreadyInFlight: another dispatch holds the claim; no-op
 *   - ErrTerminalState: the delivery already finished; no-op
 *   - ErrEndpointInactive: endpoint deactivated; claim released, delivery
 *     unchanged, no HTTP call
 *   - ErrMissingSecret: configuration fault; claim released, no HTTP call
 *   - ErrEndpointNotFound: endpoint deleted after routing; delivery marked
 *     failed without incrementing attempts
 *
 * A completed attempt (success or recorded failure) returns nil: delivery
 * failures are captured in the record, never propagated to the event
 * originator.
 */
func (d *Dispatcher) Dispatch(ctx context.Context, deliveryID string) error {
	// The claim arbitrates concurrent dispatches. The returned snapshot
	// carries the pre-claim status so a refused dispatch can restore it.
	del, err := d.deliveries.Claim(ctx, deliveryID)
	if err != nil {
		return err
	}

	ep, err := d.endpoints.GetEndpoint(ctx, del.EndpointID)
	if errors.Is(err, ErrEndpointNotFound) {
		if markErr := d.deliveries.MarkUnresolvable(ctx, deliveryID); markErr != nil {
			return fmt.Errorf("marking delivery unresolvable: %w", markErr)
		}
		return ErrEndpointNotFound
	}
	if err != nil {
		d.release(ctx, del)
		return fmt.Errorf("resolving endpoint: %w", err)
	}

	if !ep.Active {
		d.release(ctx, del)
		return ErrEndpointInactive
	}

	secret, err := d.endpoints.GetSecret(ctx, del.EndpointID)
	if err != nil || secret.IsZero() {
		d.release(ctx, del)
		if err != nil {
			return fmt.Errorf("loading signing secret: %w", err)
		}
		return ErrMissingSecret
	}

	code, attemptErr := d.attempt(ctx, ep, del, secret)

	outcome := AttemptOutcome{ResponseCode: code}
	switch {
	case attemptErr == nil:
		outcome.Status = Delivered
	case del.Attempts+1 < del.MaxAttempts:
		next := d.now().Add(d.backoff.Delay(del.Attempts + 1))
		outcome.Status = Retrying
		outcome.NextRetryAt = &next
	default:
		outcome.Status = Failed
	}

	if err := d.deliveries.FinishAttempt(ctx, deliveryID, outcome); err != nil {
		return fmt.Errorf("recording attempt: %w", err)
	}

	return nil
}

/* attempt performs the HTTP POST under the dispatch timeout. Returns the
 * response status code when one was read (even on failure) and a non-nil
 * error for any non-2xx outcome: timeouts, connection errors and rejected
 * responses are all the same failure for retry purposes.
 */
func (d *Dispatcher) attempt(ctx context.Context, ep Endpoint, del Delivery, secret signature.Secret) (*int, error) {
	attemptedAt := d.now().UTC()

	sig, err := signature.Sign(secret, del.ID, attemptedAt, del.Payload)
	if err != nil {
		return nil, fmt.Errorf("signing payload: %w", err)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, ep.URL, bytes.NewReader(del.Payload))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderID, del.ID)
	req.Header.Set(HeaderEventType, del.EventType)
	req.Header.Set(HeaderTimestamp, attemptedAt.Format(time.RFC3339))
	req.Header.Set(HeaderSignature, sig.String())

	resp, err := d.client.Do(req)
	if err != nil {
		// no response was ever received
		return nil, fmt.Errorf("posting to endpoint: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	code := resp.StatusCode
	if code < 200 || code >= 300 {
		return &code, fmt.Errorf("endpoint returned status %d", code)
	}

	return &code, nil
}

// release undoes a claim when dispatch is refused before any HTTP call
func (d *Dispatcher) release(ctx context.Context, del Delivery) {
	// a claim that stays delivering is recovered by the scheduler's
	// stale-claim sweep, so the refusal error still reaches the caller
	if err := d.deliveries.Release(ctx, del.ID, del.Status); err != nil {
		log.Printf("releasing claim on delivery %s: %v", del.ID, err)
	}
}
