package enums

import "fmt"

// ReferenceType names the business record a ledger row settles against.
type ReferenceType string

const (
	// ReferenceTypeOrder ties an entry to an order's money flow.
	ReferenceTypeOrder ReferenceType = "order"
	// ReferenceTypePayout ties an entry to a withdrawal request.
	ReferenceTypePayout ReferenceType = "payout"
)

var validReferenceTypes = []ReferenceType{
	ReferenceTypeOrder,
	ReferenceTypePayout,
}

// String implements fmt.Stringer.
func (r ReferenceType) String() string {
	return string(r)
}

// IsValid reports whether the value is a known ReferenceType.
func (r ReferenceType) IsValid() bool {
	for _, candidate := range validReferenceTypes {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseReferenceType converts raw input into a ReferenceType.
func ParseReferenceType(value string) (ReferenceType, error) {
	for _, candidate := range validReferenceTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid reference type %q", value)
}
