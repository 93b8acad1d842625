package enums

import "fmt"

// VendorFeeMode selects how a self-delivering vendor charges delivery.
type VendorFeeMode string

const (
	// VendorFeeModeFlat charges a single configured fee everywhere.
	VendorFeeModeFlat VendorFeeMode = "flat"
	// VendorFeeModeCityBased charges a same-city or other-city fee.
	VendorFeeModeCityBased VendorFeeMode = "city_based"
	// VendorFeeModeFree charges nothing.
	VendorFeeModeFree VendorFeeMode = "free"
)

var validVendorFeeModes = []VendorFeeMode{
	VendorFeeModeFlat,
	VendorFeeModeCityBased,
	VendorFeeModeFree,
}

// String implements fmt.Stringer.
func (v VendorFeeMode) String() string {
	return string(v)
}

// IsValid reports whether the value is a known VendorFeeMode.
func (v VendorFeeMode) IsValid() bool {
	for _, candidate := range validVendorFeeModes {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseVendorFeeMode converts raw input into a VendorFeeMode.
func ParseVendorFeeMode(value string) (VendorFeeMode, error) {
	for _, candidate := range validVendorFeeModes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid vendor fee mode %q", value)
}
