package webhook

import (
	"context"
	"time"

	"github.com/fleetgrid/webhooks/webhook/signature"
)

/* Small, focused interfaces following "The Go Way"
 * Interfaces abstract behavior, not things
 * Written for users of the API, not just for testing
 */

// EndpointReader provides read operations for registered endpoints
type EndpointReader interface {
	GetEndpoint(ctx context.Context, id string) (Endpoint, error)
	ListEndpoints(ctx context.Context, tenantID string) ([]Endpoint, error)
	/* ListSubscribed returns the active endpoints of a tenant whose
	 * events set contains eventType
	 */
	ListSubscribed(ctx context.Context, tenantID, eventType string) ([]Endpoint, error)
	/* GetSecret returns the signing secret of an endpoint. The secret is
	 * write-once and never exposed through listing operations; only the
	 * dispatcher should call this.
	 */
	GetSecret(ctx context.Context, id string) (signature.Secret, error)
}

// EndpointWriter provides write operations for registered endpoints
type EndpointWriter interface {
	CreateEndpoint(ctx context.Context, e Endpoint, secret signature.Secret) error
	UpdateEndpoint(ctx context.Context, e Endpoint) error
	/* DeleteEndpoint removes the registration. Delivery history is
	 * preserved; deliveries referencing the endpoint become orphaned.
	 */
	DeleteEndpoint(ctx context.Context, id string) error
}

// EndpointRepository combines endpoint read and write operations
type EndpointRepository interface {
	EndpointReader
	EndpointWriter
}

// DeliveryReader provides read operations for the delivery log
type DeliveryReader interface {
	GetDelivery(ctx context.Context, id string) (Delivery, error)
	/* ListDeliveries returns the delivery history of an endpoint,
	 * most-recent-first
	 */
	ListDeliveries(ctx context.Context, endpointID string, limit, offset int) ([]Delivery, error)
	/* DueRetries returns ids of retrying deliveries whose next_retry_at
	 * has elapsed. Selection is advisory only; Claim arbitrates between
	 * concurrent workers.
	 */
	DueRetries(ctx context.Context, now time.Time, limit int) ([]string, error)
	// StatusCounts returns delivery counts by status, test deliveries excluded
	StatusCounts(ctx context.Context) (map[string]int64, error)
	// DeliveredSince counts non-test deliveries that succeeded after the cutoff
	DeliveredSince(ctx context.Context, cutoff time.Time) (int64, error)
}

// DeliveryWriter provides write operations for the delivery log
type DeliveryWriter interface {
	CreateDelivery(ctx context.Context, d Delivery) error
	/* Claim atomically transitions a pending or retrying delivery to
	 * delivering and returns it. Returns ErrAlreadyInFlight when another
	 * worker holds the claim, ErrTerminalState when the delivery already
	 * finished, ErrDeliveryNotFound when the id does not resolve.
	 */
	Claim(ctx context.Context, id string) (Delivery, error)
	/* Release undoes a claim without recording an attempt, restoring the
	 * given prior status. Used when dispatch is refused before any HTTP
	 * call (inactive endpoint, missing secret).
	 */
	Release(ctx context.Context, id string, prior Status) error
	/* FinishAttempt commits the outcome of one HTTP attempt: increments
	 * attempts and transitions delivering to the outcome status
	 */
	FinishAttempt(ctx context.Context, id string, outcome AttemptOutcome) error
	/* MarkUnresolvable moves a claimed delivery directly to failed
	 * without incrementing attempts (endpoint deleted after routing)
	 */
	MarkUnresolvable(ctx context.Context, id string) error
	/* ResetForRetry reopens a terminal failed delivery: attempts back to
	 * zero, a fresh max_attempts budget, status retrying. The payload is
	 * never touched. Returns ErrNotRetryable unless status is failed.
	 */
	ResetForRetry(ctx context.Context, id string, maxAttempts int, nextRetryAt time.Time) error
	/* ReleaseStale reverts delivering claims that have not progressed
	 * since olderThan back to retrying, due immediately, and returns their
	 * ids. A claim can only go stale when its worker died between Claim
	 * and FinishAttempt; the scheduler sweeps these on every poll.
	 */
	ReleaseStale(ctx context.Context, olderThan time.Time, limit int) ([]string, error)
}

// DeliveryRepository combines delivery log read and write operations
type DeliveryRepository interface {
	DeliveryReader
	DeliveryWriter
}
