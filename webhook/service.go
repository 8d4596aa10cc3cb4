package webhook

import (
	"context"
	"fmt"
	"time"

	"github.com/fleetgrid/webhooks/events"
	"github.com/fleetgrid/webhooks/webhook/signature"
	"github.com/google/uuid"
)

/* Service represents the management operations consumed by the
 * administrative UI. Uses pointer semantics as it's an API, not data.
 */

// UseCase defines the management operations for webhook endpoints
type UseCase interface {
	CreateEndpoint(ctx context.Context, e Endpoint, providedSecret string) (Endpoint, string, error)
	GetEndpoint(ctx context.Context, id string) (Endpoint, error)
	ListEndpoints(ctx context.Context, tenantID string) ([]Endpoint, error)
	UpdateEndpoint(ctx context.Context, e Endpoint) (Endpoint, error)
	DeleteEndpoint(ctx context.Context, id string) error
	ListDeliveries(ctx context.Context, endpointID string, limit, offset int) ([]Delivery, error)
	RetryDelivery(ctx context.Context, deliveryID string) error
	SendTest(ctx context.Context, endpointID string) (string, error)
}

const (
	// DefaultMaxAttempts is the attempt budget granted to new deliveries
	// and to manual retries
	DefaultMaxAttempts = 5

	maxPageSize     = 100
	defaultPageSize = 20
)

type Service struct {
	endpoints   EndpointRepository
	deliveries  DeliveryRepository
	queue       Queue
	router      *Router
	catalog     *events.Catalog
	maxAttempts int
	now         func() time.Time
}

// NewService creates a new management service with dependency injection
func NewService(endpoints EndpointRepository, deliveries DeliveryRepository, queue Queue, router *Router, catalog *events.Catalog, maxAttempts int) *Service {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Service{
		endpoints:   endpoints,
		deliveries:  deliveries,
		queue:       queue,
		router:      router,
		catalog:     catalog,
		maxAttempts: maxAttempts,
		now:         time.Now,
	}
}

/* CreateEndpoint registers a new endpoint. The signing secret is generated
 * when the registrant does not supply one, and the returned string is the
 * only time it is ever exposed: listing and fetch operations never include
 * it.
 */
func (s *Service) CreateEndpoint(ctx context.Context, e Endpoint, providedSecret string) (Endpoint, string, error) {
	e.ID = uuid.New().String()
	e.CreatedAt = s.now()

	if err := e.Validate(); err != nil {
		return Endpoint{}, "", fmt.Errorf("validating endpoint: %w", err)
	}
	if err := s.checkCatalog(e.Events); err != nil {
		return Endpoint{}, "", err
	}

	var secret signature.Secret
	var err error
	if providedSecret != "" {
		secret, err = signature.ParseSecret(providedSecret)
		if err != nil {
			return Endpoint{}, "", fmt.Errorf("parsing provided secret: %w: %v", ErrInvalidSecret, err)
		}
	} else {
		secret, err = signature.GenerateSecret()
		if err != nil {
			return Endpoint{}, "", fmt.Errorf("generating secret: %w", err)
		}
	}

	if err := s.endpoints.CreateEndpoint(ctx, e, secret); err != nil {
		return Endpoint{}, "", fmt.Errorf("storing endpoint: %w", err)
	}

	return e, secret.String(), nil
}

// GetEndpoint fetches a registered endpoint. The secret is never included.
func (s *Service) GetEndpoint(ctx context.Context, id string) (Endpoint, error) {
	e, err := s.endpoints.GetEndpoint(ctx, id)
	if err != nil {
		return Endpoint{}, err
	}
	return e, nil
}

// ListEndpoints lists the endpoints of a tenant. Secrets are never included.
func (s *Service) ListEndpoints(ctx context.Context, tenantID string) ([]Endpoint, error) {
	eps, err := s.endpoints.ListEndpoints(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("listing endpoints: %w", err)
	}
	return eps, nil
}

/* UpdateEndpoint changes url, events, active and description. The secret
 * and created_at are write-once; deactivating stops new deliveries but
 * deliveries already retrying run to their natural terminal state.
 */
func (s *Service) UpdateEndpoint(ctx context.Context, e Endpoint) (Endpoint, error) {
	existing, err := s.endpoints.GetEndpoint(ctx, e.ID)
	if err != nil {
		return Endpoint{}, err
	}

	e.TenantID = existing.TenantID
	e.CreatedAt = existing.CreatedAt

	if err := e.Validate(); err != nil {
		return Endpoint{}, fmt.Errorf("validating endpoint: %w", err)
	}
	if err := s.checkCatalog(e.Events); err != nil {
		return Endpoint{}, err
	}

	if err := s.endpoints.UpdateEndpoint(ctx, e); err != nil {
		return Endpoint{}, fmt.Errorf("updating endpoint: %w", err)
	}

	return e, nil
}

/* DeleteEndpoint removes the registration. No further deliveries will be
 * routed to it; the delivery history is preserved for audit.
 */
func (s *Service) DeleteEndpoint(ctx context.Context, id string) error {
	if err := s.endpoints.DeleteEndpoint(ctx, id); err != nil {
		return err
	}
	return nil
}

// ListDeliveries returns the paginated delivery history of an endpoint,
// most-recent-first
func (s *Service) ListDeliveries(ctx context.Context, endpointID string, limit, offset int) ([]Delivery, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}

	ds, err := s.deliveries.ListDeliveries(ctx, endpointID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing deliveries: %w", err)
	}
	return ds, nil
}

/* RetryDelivery reopens a terminal failed delivery: attempts reset to
 * zero with a fresh budget, the original payload untouched. This is the
 * only externally triggered mutation of an otherwise append-only record.
 */
func (s *Service) RetryDelivery(ctx context.Context, deliveryID string) error {
	if err := s.deliveries.ResetForRetry(ctx, deliveryID, s.maxAttempts, s.now()); err != nil {
		return err
	}

	// enqueue right away rather than waiting for the next retry poll
	if err := s.queue.Enqueue(ctx, deliveryID); err != nil {
		return fmt.Errorf("enqueueing retry: %w", err)
	}

	return nil
}

// SendTest sends a synthetic test delivery to one endpoint
func (s *Service) SendTest(ctx context.Context, endpointID string) (string, error) {
	return s.router.SendTest(ctx, endpointID)
}

func (s *Service) checkCatalog(eventTypes []string) error {
	for _, eventType := range eventTypes {
		if !s.catalog.Has(eventType) {
			return fmt.Errorf("%w: %s", ErrUnknownEventType, eventType)
		}
	}
	return nil
}
