package enums

import "fmt"

// Operator identifies a supported mobile-money operator.
type Operator string

const (
	OperatorMTN    Operator = "mtn"
	OperatorOrange Operator = "orange"
)

var validOperators = []Operator{
	OperatorMTN,
	OperatorOrange,
}

// String implements fmt.Stringer.
func (o Operator) String() string {
	return string(o)
}

// IsValid reports whether the value is a known Operator.
func (o Operator) IsValid() bool {
	for _, candidate := range validOperators {
		if candidate == o {
			return true
		}
	}
	return false
}

// ParseOperator converts raw input into an Operator.
func ParseOperator(value string) (Operator, error) {
	for _, candidate := range validOperators {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid operator %q", value)
}
