package webhook

import "errors"

var (
	// ErrEndpointNotFound is returned when an endpoint id does not resolve
	ErrEndpointNotFound = errors.New("endpoint not found")

	// ErrEndpointInactive is returned when dispatch is attempted against a
	// deactivated endpoint. No HTTP call is made and the delivery is left
	// unchanged.
	ErrEndpointInactive = errors.New("endpoint is inactive")

	// ErrMissingSecret is a configuration fault: the dispatcher refuses to
	// sign with an empty key rather than send an unsigned request.
	ErrMissingSecret = errors.New("endpoint has no signing secret")

	// ErrDeliveryNotFound is returned when a delivery id does not resolve
	ErrDeliveryNotFound = errors.New("delivery not found")

	// ErrAlreadyInFlight is returned when a delivery is already claimed by
	// another dispatch. The caller should treat this as a no-op.
	ErrAlreadyInFlight = errors.New("delivery already in flight")

	// ErrNotRetryable is returned when a manual retry targets a delivery
	// that is not in the failed state
	ErrNotRetryable = errors.New("delivery is not in a retryable state")

	// ErrTerminalState is returned when dispatch targets a delivery that
	// already reached delivered or failed
	ErrTerminalState = errors.New("delivery is in a terminal state")

	// ErrUnknownEventType is returned when routing an event type absent
	// from the catalog
	ErrUnknownEventType = errors.New("unknown event type")

	// ErrInvalidEndpoint wraps registration-time validation failures:
	// missing tenant, malformed url, empty or malformed event set
	ErrInvalidEndpoint = errors.New("invalid endpoint")

	// ErrInvalidSecret is returned when a caller-supplied signing secret
	// does not parse
	ErrInvalidSecret = errors.New("invalid signing secret")

	// ErrInvalidPayload is returned when event data cannot be wrapped in
	// a delivery envelope
	ErrInvalidPayload = errors.New("invalid event payload")
)
