package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jemo-app/jemo-backend/pkg/enums"
)

// PaymentIntent is a server-computed pre-order capture with the mobile-money
// provider. Amounts are never taken from the client. An intent is consumed by
// exactly one order via UsedForOrderID.
type PaymentIntent struct {
	ID                     uuid.UUID                 `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID                 uuid.UUID                 `gorm:"column:user_id;type:uuid;not null;index"`
	ProductID              uuid.UUID                 `gorm:"column:product_id;type:uuid;not null"`
	Quantity               int                       `gorm:"column:quantity;not null"`
	ProductSubtotal        int64                     `gorm:"column:product_subtotal;not null"`
	DeliveryFee            int64                     `gorm:"column:delivery_fee;not null"`
	TotalAmount            int64                     `gorm:"column:total_amount;not null"`
	Operator               enums.Operator            `gorm:"column:operator;type:text;not null"`
	CustomerPhone          string                    `gorm:"column:customer_phone;not null"`
	AppTransactionRef      string                    `gorm:"column:app_transaction_ref;not null;uniqueIndex"`
	ProviderTransactionRef *string                   `gorm:"column:provider_transaction_ref"`
	ProviderTransactionID  *string                   `gorm:"column:provider_transaction_id"`
	USSDCode               *string                   `gorm:"column:ussd_code"`
	Status                 enums.PaymentIntentStatus `gorm:"column:status;type:text;not null;default:'initiated'"`
	FailureReason          *string                   `gorm:"column:failure_reason"`
	ExpiresAt              time.Time                 `gorm:"column:expires_at;not null"`
	UsedForOrderID         *uuid.UUID                `gorm:"column:used_for_order_id;type:uuid"`
	CreatedAt              time.Time                 `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt              time.Time                 `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *PaymentIntent) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
