package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jemo-app/jemo-backend/pkg/enums"
)

// Wallet holds a party's funds split into a pending and an available balance.
// One wallet exists per (owner_type, owner_id); wallets are created lazily on
// first access. Balances are projections of the wallet_transactions ledger.
type Wallet struct {
	ID                uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OwnerType         enums.WalletOwnerType `gorm:"column:owner_type;type:text;not null;uniqueIndex:idx_wallets_owner"`
	OwnerID           uuid.UUID             `gorm:"column:owner_id;type:uuid;not null;uniqueIndex:idx_wallets_owner"`
	PendingBalance    int64                 `gorm:"column:pending_balance;not null;default:0"`
	AvailableBalance  int64                 `gorm:"column:available_balance;not null;default:0"`
	WithdrawalsLocked bool                  `gorm:"column:withdrawals_locked;not null;default:false"`
	LastWithdrawalAt  *time.Time            `gorm:"column:last_withdrawal_at"`
	Transactions      []WalletTransaction   `gorm:"foreignKey:WalletID;constraint:OnDelete:CASCADE"`
	CreatedAt         time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

func (w *Wallet) BeforeCreate(tx *gorm.DB) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	return nil
}
