package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jemo-app/jemo-backend/pkg/enums"
)

// DeliveryJob is the unit of work moving an order's goods from pickup to
// dropoff. AgencyID is set exactly once, by the atomic accept compare-and-set
// against (status=open, agency_id IS NULL).
type DeliveryJob struct {
	ID          uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID     uuid.UUID               `gorm:"column:order_id;type:uuid;not null;uniqueIndex"`
	Status      enums.DeliveryJobStatus `gorm:"column:status;type:text;not null;default:'open'"`
	AgencyID    *uuid.UUID              `gorm:"column:agency_id;type:uuid;index"`
	PickupCity  string                  `gorm:"column:pickup_city;not null"`
	DropoffCity string                  `gorm:"column:dropoff_city;not null"`
	Fee         int64                   `gorm:"column:fee;not null"`
	AcceptedAt  *time.Time              `gorm:"column:accepted_at"`
	DeliveredAt *time.Time              `gorm:"column:delivered_at"`
	Logs        []DeliveryJobLog        `gorm:"foreignKey:JobID;constraint:OnDelete:CASCADE"`
	CreatedAt   time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

// DeliveryJobLog is the append-only audit trail of job transitions.
type DeliveryJobLog struct {
	ID         uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	JobID      uuid.UUID               `gorm:"column:job_id;type:uuid;not null;index"`
	FromStatus enums.DeliveryJobStatus `gorm:"column:from_status;type:text;not null"`
	ToStatus   enums.DeliveryJobStatus `gorm:"column:to_status;type:text;not null"`
	ActorType  enums.ActorType         `gorm:"column:actor_type;type:text;not null"`
	ActorID    uuid.UUID               `gorm:"column:actor_id;type:uuid;not null"`
	Note       string                  `gorm:"column:note"`
	CreatedAt  time.Time               `gorm:"column:created_at;autoCreateTime"`
}

func (j *DeliveryJob) BeforeCreate(tx *gorm.DB) error {
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	return nil
}

func (l *DeliveryJobLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}
