package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jemo-app/jemo-backend/pkg/enums"
)

// Payout is an outbound transfer request to a party's mobile-money account.
// It is always created alongside a PENDING debit transaction; the two are
// finalized together once the provider answers.
type Payout struct {
	ID                uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	WalletID          uuid.UUID             `gorm:"column:wallet_id;type:uuid;not null;index"`
	OwnerType         enums.WalletOwnerType `gorm:"column:owner_type;type:text;not null"`
	OwnerID           uuid.UUID             `gorm:"column:owner_id;type:uuid;not null"`
	Amount            int64                 `gorm:"column:amount;not null"`
	Status            enums.PayoutStatus    `gorm:"column:status;type:text;not null;default:'requested'"`
	Method            enums.Operator        `gorm:"column:method;type:text;not null"`
	DestinationPhone  string                `gorm:"column:destination_phone;not null"`
	AppTransactionRef string                `gorm:"column:app_transaction_ref;not null;uniqueIndex"`
	ProviderRef       *string               `gorm:"column:provider_ref"`
	FailureReason     *string               `gorm:"column:failure_reason"`
	TransactionID     uuid.UUID             `gorm:"column:transaction_id;type:uuid;not null"`
	CreatedAt         time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Payout) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
