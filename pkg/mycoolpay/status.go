package mycoolpay

import "strings"

// Status is the three-state outcome the rest of the app reasons about.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
	StatusPending Status = "PENDING"
)

// NormalizeStatus maps the provider's status vocabulary onto the three-state
// model. The provider is inconsistent across API versions, including the
// "SUCCESSFULL" spelling, so every observed variant is enumerated here and
// nowhere else.
func NormalizeStatus(raw string) Status {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "SUCCESS", "SUCCESSFUL", "SUCCESSFULL", "COMPLETED":
		return StatusSuccess
	case "FAILED", "CANCELLED", "CANCELED", "REJECTED":
		return StatusFailed
	default:
		return StatusPending
	}
}
