package webhook

import "fmt"

/* Status represents the current state of a delivery
 * Lifecycle: Pending -> Delivering -> Delivered/Failed/Retrying
 * Delivering is the in-flight claim marker: a delivery in this state is
 * owned by exactly one worker until the attempt outcome is committed
 */
type Status string

const (
	Pending    Status = "pending"
	Delivering Status = "delivering"
	Delivered  Status = "delivered"
	Failed     Status = "failed"
	Retrying   Status = "retrying"
)

// String returns the string representation of the status
func (s Status) String() string {
	return string(s)
}

// Validate checks if the status is valid
func (s Status) Validate() error {
	switch s {
	case Pending, Delivering, Delivered, Failed, Retrying:
		return nil
	default:
		return fmt.Errorf("invalid status: %q", string(s))
	}
}

// IsTerminal returns true if the status is a terminal state
func (s Status) IsTerminal() bool {
	return s == Delivered || s == Failed
}

// Dispatchable returns true if a delivery in this status may be claimed
// for an HTTP attempt
func (s Status) Dispatchable() bool {
	return s == Pending || s == Retrying
}
