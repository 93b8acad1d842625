package enums

import "fmt"

// PaymentMethod identifies how the customer pays for an order.
type PaymentMethod string

const (
	PaymentMethodCashOnDelivery PaymentMethod = "cash_on_delivery"
	PaymentMethodMTNMomo        PaymentMethod = "mtn_momo"
	PaymentMethodOrangeMoney    PaymentMethod = "orange_money"
)

var validPaymentMethods = []PaymentMethod{
	PaymentMethodCashOnDelivery,
	PaymentMethodMTNMomo,
	PaymentMethodOrangeMoney,
}

// String implements fmt.Stringer.
func (p PaymentMethod) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentMethod.
func (p PaymentMethod) IsValid() bool {
	for _, candidate := range validPaymentMethods {
		if candidate == p {
			return true
		}
	}
	return false
}

// IsOnline reports whether the method is captured by the platform before
// delivery rather than collected in cash.
func (p PaymentMethod) IsOnline() bool {
	return p == PaymentMethodMTNMomo || p == PaymentMethodOrangeMoney
}

// Operator returns the mobile-money operator backing an online method.
func (p PaymentMethod) Operator() (Operator, bool) {
	switch p {
	case PaymentMethodMTNMomo:
		return OperatorMTN, true
	case PaymentMethodOrangeMoney:
		return OperatorOrange, true
	default:
		return "", false
	}
}

// ParsePaymentMethod converts raw input into a PaymentMethod.
func ParsePaymentMethod(value string) (PaymentMethod, error) {
	for _, candidate := range validPaymentMethods {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment method %q", value)
}
