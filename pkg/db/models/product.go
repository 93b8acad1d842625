package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jemo-app/jemo-backend/pkg/enums"
)

// Product is the catalog record order creation reads from. Stock mutations
// happen through conditional updates inside order transactions; everything
// else is read-only here.
type Product struct {
	ID            uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	VendorID      uuid.UUID            `gorm:"column:vendor_id;type:uuid;not null;index"`
	Name          string               `gorm:"column:name;not null"`
	Status        enums.ProductStatus  `gorm:"column:status;type:text;not null;default:'pending_review'"`
	Price         int64                `gorm:"column:price;not null"`
	DiscountPrice *int64               `gorm:"column:discount_price"`
	Stock         int                  `gorm:"column:stock;not null;default:0"`
	City          string               `gorm:"column:city;not null"`
	DeliveryType  enums.DeliveryMethod `gorm:"column:delivery_type;type:text;not null"`
	PaymentPolicy enums.PaymentPolicy  `gorm:"column:payment_policy;type:text;not null"`
	MTNEnabled    bool                 `gorm:"column:mtn_enabled;not null;default:false"`
	OrangeEnabled bool                 `gorm:"column:orange_enabled;not null;default:false"`

	// Vendor self-delivery pricing, used when DeliveryType is vendor_delivery.
	VendorFeeMode      enums.VendorFeeMode `gorm:"column:vendor_fee_mode;type:text;not null;default:'free'"`
	VendorFlatFee      int64               `gorm:"column:vendor_flat_fee;not null;default:0"`
	VendorFeeSameCity  int64               `gorm:"column:vendor_fee_same_city;not null;default:0"`
	VendorFeeOtherCity int64               `gorm:"column:vendor_fee_other_city;not null;default:0"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Product) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// EffectiveUnitPrice returns the discount price when set and strictly below
// the list price.
func (p Product) EffectiveUnitPrice() int64 {
	if p.DiscountPrice != nil && *p.DiscountPrice > 0 && *p.DiscountPrice < p.Price {
		return *p.DiscountPrice
	}
	return p.Price
}

// OperatorEnabled reports whether the product accepts the given operator.
func (p Product) OperatorEnabled(op enums.Operator) bool {
	switch op {
	case enums.OperatorMTN:
		return p.MTNEnabled
	case enums.OperatorOrange:
		return p.OrangeEnabled
	default:
		return false
	}
}
