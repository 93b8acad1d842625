package enums

import "fmt"

// WalletTransactionType classifies a ledger row's effect on wallet balances.
type WalletTransactionType string

const (
	// WalletTxCreditPending attributes funds not yet withdrawable.
	WalletTxCreditPending WalletTransactionType = "credit_pending"
	// WalletTxCreditAvailable releases or directly credits withdrawable funds.
	WalletTxCreditAvailable WalletTransactionType = "credit_available"
	// WalletTxDebitWithdrawal removes available funds for an outbound payout.
	WalletTxDebitWithdrawal WalletTransactionType = "debit_withdrawal"
	// WalletTxReversal restores funds after a failed or cancelled operation.
	WalletTxReversal WalletTransactionType = "reversal"
)

var validWalletTransactionTypes = []WalletTransactionType{
	WalletTxCreditPending,
	WalletTxCreditAvailable,
	WalletTxDebitWithdrawal,
	WalletTxReversal,
}

// String implements fmt.Stringer.
func (w WalletTransactionType) String() string {
	return string(w)
}

// IsValid reports whether the value is a known WalletTransactionType.
func (w WalletTransactionType) IsValid() bool {
	for _, candidate := range validWalletTransactionTypes {
		if candidate == w {
			return true
		}
	}
	return false
}

// ParseWalletTransactionType converts raw input into a WalletTransactionType.
func ParseWalletTransactionType(value string) (WalletTransactionType, error) {
	for _, candidate := range validWalletTransactionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid wallet transaction type %q", value)
}
