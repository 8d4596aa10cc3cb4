package webhook

import (
	"fmt"
	"net/url"
	"time"

	"github.com/fleetgrid/webhooks/webhook/payload"
)

/* Endpoint represents a registered webhook destination
 * Uses value semantics as it represents data, not behavior
 * The signing secret is intentionally not part of this struct: it is
 * write-once and only the dispatcher may read it back (see
 * EndpointReader.GetSecret)
 */
type Endpoint struct {
	ID          string
	TenantID    string
	URL         string
	Events      []string
	Active      bool
	Description string
	CreatedAt   time.Time
}

// Validate checks the registration-time invariants of an endpoint.
// Every failure wraps ErrInvalidEndpoint.
func (e Endpoint) Validate() error {
	if e.TenantID == "" {
		return fmt.Errorf("%w: tenant_id cannot be empty", ErrInvalidEndpoint)
	}
	if err := validateURL(e.URL); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEndpoint, err)
	}
	// an endpoint with no subscriptions cannot usefully be active
	if len(e.Events) == 0 {
		return fmt.Errorf("%w: events cannot be empty", ErrInvalidEndpoint)
	}
	for _, eventType := range e.Events {
		if err := payload.ValidateEventType(eventType); err != nil {
			return fmt.Errorf("%w: event type %q: %v", ErrInvalidEndpoint, eventType, err)
		}
	}
	return nil
}

// Subscribed reports whether the endpoint subscribes to the given event type
func (e Endpoint) Subscribed(eventType string) bool {
	for _, et := range e.Events {
		if et == eventType {
			return true
		}
	}
	return false
}

func validateURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("url cannot be empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("parsing url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url must be http or https: %s", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("url must be absolute: %s", raw)
	}
	return nil
}
