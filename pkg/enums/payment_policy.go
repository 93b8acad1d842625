package enums

import "fmt"

// PaymentPolicy constrains which payment methods a product accepts.
type PaymentPolicy string

const (
	// PaymentPolicyPODOnly accepts cash on delivery exclusively.
	PaymentPolicyPODOnly PaymentPolicy = "pod_only"
	// PaymentPolicyOnlineOnly requires an operator-backed online capture.
	PaymentPolicyOnlineOnly PaymentPolicy = "online_only"
	// PaymentPolicyMixedCityRule requires cash inside the product's city and
	// an online capture everywhere else.
	PaymentPolicyMixedCityRule PaymentPolicy = "mixed_city_rule"
)

var validPaymentPolicies = []PaymentPolicy{
	PaymentPolicyPODOnly,
	PaymentPolicyOnlineOnly,
	PaymentPolicyMixedCityRule,
}

// String implements fmt.Stringer.
func (p PaymentPolicy) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentPolicy.
func (p PaymentPolicy) IsValid() bool {
	for _, candidate := range validPaymentPolicies {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentPolicy converts raw input into a PaymentPolicy.
func ParsePaymentPolicy(value string) (PaymentPolicy, error) {
	for _, candidate := range validPaymentPolicies {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment policy %q", value)
}
