package enums

import "fmt"

// WalletTransactionStatus tracks whether a ledger row has taken effect.
type WalletTransactionStatus string

const (
	WalletTxStatusPending   WalletTransactionStatus = "pending"
	WalletTxStatusPosted    WalletTransactionStatus = "posted"
	WalletTxStatusCancelled WalletTransactionStatus = "cancelled"
)

var validWalletTransactionStatuses = []WalletTransactionStatus{
	WalletTxStatusPending,
	WalletTxStatusPosted,
	WalletTxStatusCancelled,
}

// String implements fmt.Stringer.
func (w WalletTransactionStatus) String() string {
	return string(w)
}

// IsValid reports whether the value is a known WalletTransactionStatus.
func (w WalletTransactionStatus) IsValid() bool {
	for _, candidate := range validWalletTransactionStatuses {
		if candidate == w {
			return true
		}
	}
	return false
}

// ParseWalletTransactionStatus converts raw input into a WalletTransactionStatus.
func ParseWalletTransactionStatus(value string) (WalletTransactionStatus, error) {
	for _, candidate := range validWalletTransactionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid wallet transaction status %q", value)
}
