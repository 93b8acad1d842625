package fees

import (
	"testing"

	"github.com/jemo-app/jemo-backend/pkg/config"
)

func TestVendorNetFloorsToMinorUnits(t *testing.T) {
	policy := NewPolicy(config.FeesConfig{VendorProcessingPercent: 2.5})
	// 2.5% of 999 = 24.975; net = 974.025 floored to 974.
	if got := policy.VendorNet(999); got != 974 {
		t.Fatalf("expected 974 got %d", got)
	}
}

func TestRiderNet(t *testing.T) {
	policy := NewPolicy(config.FeesConfig{RiderProcessingPercent: 10})
	if got := policy.RiderNet(1500); got != 1350 {
		t.Fatalf("expected 1350 got %d", got)
	}
}

func TestZeroCommissionDefault(t *testing.T) {
	policy := NewPolicy(config.FeesConfig{})
	if got := policy.Commission(8000); got != 0 {
		t.Fatalf("expected zero commission got %d", got)
	}
	if got := policy.VendorPayout(8000); got != 8000 {
		t.Fatalf("expected full payout got %d", got)
	}
}

func TestConfiguredCommission(t *testing.T) {
	policy := NewPolicy(config.FeesConfig{CommissionPercent: 5})
	if got := policy.Commission(8000); got != 400 {
		t.Fatalf("expected 400 got %d", got)
	}
	if got := policy.VendorPayout(8000); got != 7600 {
		t.Fatalf("expected 7600 got %d", got)
	}
}
