// Package fees is the read-only admin-settings collaborator: it turns the
// configured platform percentages into concrete amount splits.
package fees

import (
	"github.com/jemo-app/jemo-backend/pkg/config"
	"github.com/shopspring/decimal"
)

// Policy exposes the platform's current fee percentages.
type Policy struct {
	vendorProcessing decimal.Decimal
	riderProcessing  decimal.Decimal
	commission       decimal.Decimal
}

// NewPolicy builds a Policy from configuration. Commission defaults to zero
// and stays configurable rather than hardcoded.
func NewPolicy(cfg config.FeesConfig) Policy {
	return Policy{
		vendorProcessing: decimal.NewFromFloat(cfg.VendorProcessingPercent),
		riderProcessing:  decimal.NewFromFloat(cfg.RiderProcessingPercent),
		commission:       decimal.NewFromFloat(cfg.CommissionPercent),
	}
}

var hundred = decimal.NewFromInt(100)

func netOf(amount int64, percent decimal.Decimal) int64 {
	gross := decimal.NewFromInt(amount)
	fee := gross.Mul(percent).Div(hundred)
	// Floor keeps the platform's rounding remainder out of party balances.
	return gross.Sub(fee).Floor().IntPart()
}

func shareOf(amount int64, percent decimal.Decimal) int64 {
	gross := decimal.NewFromInt(amount)
	return gross.Mul(percent).Div(hundred).Floor().IntPart()
}

// VendorNet returns the vendor's share of a sale after processing fees.
func (p Policy) VendorNet(amount int64) int64 {
	return netOf(amount, p.vendorProcessing)
}

// RiderNet returns the delivery party's share of a fee after processing fees.
func (p Policy) RiderNet(amount int64) int64 {
	return netOf(amount, p.riderProcessing)
}

// Commission returns the platform's commission on a subtotal.
func (p Policy) Commission(amount int64) int64 {
	return shareOf(amount, p.commission)
}

// VendorPayout returns the vendor payout for a subtotal after commission.
func (p Policy) VendorPayout(subtotal int64) int64 {
	return subtotal - p.Commission(subtotal)
}
