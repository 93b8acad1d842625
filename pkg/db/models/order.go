package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jemo-app/jemo-backend/pkg/enums"
)

// Order is a single-vendor customer order. Cities are stored title-cased;
// comparisons always go through cities.Normalize. Timestamps record each
// lifecycle transition.
type Order struct {
	ID                 uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CustomerID         uuid.UUID           `gorm:"column:customer_id;type:uuid;not null;index"`
	VendorID           uuid.UUID           `gorm:"column:vendor_id;type:uuid;not null;index"`
	Status             enums.OrderStatus   `gorm:"column:status;type:text;not null;default:'pending'"`
	TotalAmount        int64               `gorm:"column:total_amount;not null"`
	DeliveryFee        int64               `gorm:"column:delivery_fee;not null;default:0"`
	DeliveryMethod     enums.DeliveryMethod `gorm:"column:delivery_method;type:text;not null"`
	ProductCity        string              `gorm:"column:product_city;not null"`
	DeliveryCity       string              `gorm:"column:delivery_city;not null"`
	DeliveryAddress    string              `gorm:"column:delivery_address"`
	PaymentMethod      enums.PaymentMethod `gorm:"column:payment_method;type:text;not null"`
	PaymentIntentID    *uuid.UUID          `gorm:"column:payment_intent_id;type:uuid"`
	SubtotalAmount     int64               `gorm:"column:subtotal_amount;not null"`
	CommissionAmount   int64               `gorm:"column:commission_amount;not null;default:0"`
	VendorPayoutAmount int64               `gorm:"column:vendor_payout_amount;not null;default:0"`
	RiderPayoutAmount  int64               `gorm:"column:rider_payout_amount;not null;default:0"`
	ConfirmedAt        *time.Time          `gorm:"column:confirmed_at"`
	InTransitAt        *time.Time          `gorm:"column:in_transit_at"`
	DeliveredAt        *time.Time          `gorm:"column:delivered_at"`
	CompletedAt        *time.Time          `gorm:"column:completed_at"`
	CancelledAt        *time.Time          `gorm:"column:cancelled_at"`
	FundsReleasedAt    *time.Time          `gorm:"column:funds_released_at"`
	Items              []OrderItem         `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt          time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// OrderItem snapshots one ordered line. UnitPrice is the effective price at
// creation time (discount applied when it beats the list price).
type OrderItem struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID   uuid.UUID `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID uuid.UUID `gorm:"column:product_id;type:uuid;not null"`
	Quantity  int       `gorm:"column:quantity;not null"`
	UnitPrice int64     `gorm:"column:unit_price;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

func (i *OrderItem) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}
