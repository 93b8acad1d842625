package enums

import "fmt"

// ActorType identifies who performed an audited transition.
type ActorType string

const (
	ActorTypeCustomer ActorType = "customer"
	ActorTypeVendor   ActorType = "vendor"
	ActorTypeAgency   ActorType = "agency"
	ActorTypeSystem   ActorType = "system"
)

var validActorTypes = []ActorType{
	ActorTypeCustomer,
	ActorTypeVendor,
	ActorTypeAgency,
	ActorTypeSystem,
}

// String implements fmt.Stringer.
func (a ActorType) String() string {
	return string(a)
}

// IsValid reports whether the value is a known ActorType.
func (a ActorType) IsValid() bool {
	for _, candidate := range validActorTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseActorType converts raw input into an ActorType.
func ParseActorType(value string) (ActorType, error) {
	for _, candidate := range validActorTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid actor type %q", value)
}
