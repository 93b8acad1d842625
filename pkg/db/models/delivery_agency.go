package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DeliveryAgency is an independent courier company. CitiesCovered keeps the
// operator-entered spellings; matching normalizes both sides.
type DeliveryAgency struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name          string    `gorm:"column:name;not null"`
	Active        bool      `gorm:"column:active;not null;default:true"`
	CitiesCovered []string  `gorm:"column:cities_covered;type:jsonb;serializer:json"`
	FeeSameCity   int64     `gorm:"column:fee_same_city;not null"`
	FeeOtherCity  int64     `gorm:"column:fee_other_city;not null"`
	Phone         string    `gorm:"column:phone"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (a *DeliveryAgency) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
