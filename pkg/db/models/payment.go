package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jemo-app/jemo-backend/pkg/enums"
)

// Payment records how an order was paid. For online orders it points at the
// consumed payment intent; for cash orders it simply documents the method.
type Payment struct {
	ID              uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID         uuid.UUID           `gorm:"column:order_id;type:uuid;not null;uniqueIndex"`
	Method          enums.PaymentMethod `gorm:"column:method;type:text;not null"`
	Amount          int64               `gorm:"column:amount;not null"`
	PaymentIntentID *uuid.UUID          `gorm:"column:payment_intent_id;type:uuid"`
	CreatedAt       time.Time           `gorm:"column:created_at;autoCreateTime"`
}

func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
