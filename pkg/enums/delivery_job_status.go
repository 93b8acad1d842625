package enums

import "fmt"

// DeliveryJobStatus tracks the lifecycle of a delivery job.
type DeliveryJobStatus string

const (
	DeliveryJobStatusOpen      DeliveryJobStatus = "open"
	DeliveryJobStatusAccepted  DeliveryJobStatus = "accepted"
	DeliveryJobStatusDelivered DeliveryJobStatus = "delivered"
	DeliveryJobStatusCancelled DeliveryJobStatus = "cancelled"
)

var validDeliveryJobStatuses = []DeliveryJobStatus{
	DeliveryJobStatusOpen,
	DeliveryJobStatusAccepted,
	DeliveryJobStatusDelivered,
	DeliveryJobStatusCancelled,
}

// String implements fmt.Stringer.
func (d DeliveryJobStatus) String() string {
	return string(d)
}

// IsValid reports whether the value is a known DeliveryJobStatus.
func (d DeliveryJobStatus) IsValid() bool {
	for _, candidate := range validDeliveryJobStatuses {
		if candidate == d {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed.
func (d DeliveryJobStatus) IsTerminal() bool {
	return d == DeliveryJobStatusDelivered || d == DeliveryJobStatusCancelled
}

// ParseDeliveryJobStatus converts raw input into a DeliveryJobStatus.
func ParseDeliveryJobStatus(value string) (DeliveryJobStatus, error) {
	for _, candidate := range validDeliveryJobStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid delivery job status %q", value)
}
