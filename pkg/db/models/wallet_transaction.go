package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jemo-app/jemo-backend/pkg/enums"
)

// WalletTransaction is an immutable ledger row. At most one POSTED row may
// exist per (wallet_id, reference_type, reference_id, type); that
// partial-unique index is the idempotency key preventing double credits and
// double releases.
type WalletTransaction struct {
	ID            uuid.UUID                     `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	WalletID      uuid.UUID                     `gorm:"column:wallet_id;type:uuid;not null;index"`
	Type          enums.WalletTransactionType   `gorm:"column:type;type:text;not null"`
	Amount        int64                         `gorm:"column:amount;not null"`
	ReferenceType enums.ReferenceType           `gorm:"column:reference_type;type:text;not null"`
	ReferenceID   uuid.UUID                     `gorm:"column:reference_id;type:uuid;not null"`
	Status        enums.WalletTransactionStatus `gorm:"column:status;type:text;not null;default:'posted'"`
	Note          string                        `gorm:"column:note"`
	CreatedAt     time.Time                     `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time                     `gorm:"column:updated_at;autoUpdateTime"`
}

func (t *WalletTransaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// UniquePostedConstraint names the partial-unique index enforcing ledger
// idempotency. Kept here so services can recognize violation errors.
const UniquePostedConstraint = "uq_wallet_tx_posted_reference"
