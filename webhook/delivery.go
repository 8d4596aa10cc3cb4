package webhook

import "time"

/* Delivery represents one attempt-series of sending one event occurrence
 * to one endpoint. The payload is an immutable snapshot taken at routing
 * time: retries resend byte-identical content.
 */
type Delivery struct {
	ID          string
	EndpointID  string
	EventType   string
	Payload     []byte
	Status      Status
	Attempts    int
	MaxAttempts int
	// ResponseCode is the last HTTP status received, nil when no response
	// was ever read (timeout, connection error)
	ResponseCode *int
	// Test marks a synthetic delivery created by the manual test trigger.
	// Test deliveries are excluded from delivery statistics.
	Test        bool
	CreatedAt   time.Time
	NextRetryAt *time.Time
}

// Exhausted reports whether the attempt budget is spent
func (d Delivery) Exhausted() bool {
	return d.Attempts >= d.MaxAttempts
}

// AttemptOutcome records the result of a single HTTP attempt. The
// repository applies it atomically: attempts is incremented by one and the
// delivering claim transitions to Status.
type AttemptOutcome struct {
	Status       Status
	ResponseCode *int
	NextRetryAt  *time.Time
}
