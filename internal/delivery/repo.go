package delivery

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jemo-app/jemo-backend/pkg/db/models"
	"github.com/jemo-app/jemo-backend/pkg/enums"
)

// Repository manages persistence for delivery jobs, their audit trail, and
// agency lookups.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateJob(ctx context.Context, job *models.DeliveryJob) error
	FindJob(ctx context.Context, id uuid.UUID) (*models.DeliveryJob, error)
	FindJobByOrder(ctx context.Context, orderID uuid.UUID) (*models.DeliveryJob, error)
	ListOpenJobs(ctx context.Context) ([]models.DeliveryJob, error)
	ListJobsByAgency(ctx context.Context, agencyID uuid.UUID) ([]models.DeliveryJob, error)
	ClaimJob(ctx context.Context, jobID, agencyID uuid.UUID, at time.Time) (bool, error)
	TransitionJob(ctx context.Context, jobID uuid.UUID, from, to enums.DeliveryJobStatus, deliveredAt *time.Time) (bool, error)
	AppendLog(ctx context.Context, entry *models.DeliveryJobLog) error
	ListLogs(ctx context.Context, jobID uuid.UUID) ([]models.DeliveryJobLog, error)
	FindAgency(ctx context.Context, id uuid.UUID) (*models.DeliveryAgency, error)
	ListActiveAgencies(ctx context.Context) ([]models.DeliveryAgency, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a delivery repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateJob(ctx context.Context, job *models.DeliveryJob) error {
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *repository) FindJob(ctx context.Context, id uuid.UUID) (*models.DeliveryJob, error) {
	var job models.DeliveryJob
	if err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *repository) FindJobByOrder(ctx context.Context, orderID uuid.UUID) (*models.DeliveryJob, error) {
	var job models.DeliveryJob
	if err := r.db.WithContext(ctx).First(&job, "order_id = ?", orderID).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *repository) ListOpenJobs(ctx context.Context) ([]models.DeliveryJob, error) {
	var jobs []models.DeliveryJob
	err := r.db.WithContext(ctx).
		Where("status = ? AND agency_id IS NULL", enums.DeliveryJobStatusOpen).
		Order("created_at ASC").
		Find(&jobs).Error
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

func (r *repository) ListJobsByAgency(ctx context.Context, agencyID uuid.UUID) ([]models.DeliveryJob, error) {
	var jobs []models.DeliveryJob
	err := r.db.WithContext(ctx).
		Where("agency_id = ?", agencyID).
		Order("created_at DESC").
		Find(&jobs).Error
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

// ClaimJob assigns the job to the agency with a conditional UPDATE. The WHERE
// clause re-checks openness at write time, so of two concurrent claimants
// exactly one sees claimed=true.
func (r *repository) ClaimJob(ctx context.Context, jobID, agencyID uuid.UUID, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.DeliveryJob{}).
		Where("id = ? AND status = ? AND agency_id IS NULL", jobID, enums.DeliveryJobStatusOpen).
		Updates(map[string]any{
			"status":      enums.DeliveryJobStatusAccepted,
			"agency_id":   agencyID,
			"accepted_at": at,
			"updated_at":  at,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) TransitionJob(ctx context.Context, jobID uuid.UUID, from, to enums.DeliveryJobStatus, deliveredAt *time.Time) (bool, error) {
	updates := map[string]any{
		"status":     to,
		"updated_at": time.Now().UTC(),
	}
	if deliveredAt != nil {
		updates["delivered_at"] = *deliveredAt
	}
	result := r.db.WithContext(ctx).Model(&models.DeliveryJob{}).
		Where("id = ? AND status = ?", jobID, from).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) AppendLog(ctx context.Context, entry *models.DeliveryJobLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) ListLogs(ctx context.Context, jobID uuid.UUID) ([]models.DeliveryJobLog, error) {
	var entries []models.DeliveryJobLog
	err := r.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("created_at ASC").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repository) FindAgency(ctx context.Context, id uuid.UUID) (*models.DeliveryAgency, error) {
	var agency models.DeliveryAgency
	if err := r.db.WithContext(ctx).First(&agency, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &agency, nil
}

func (r *repository) ListActiveAgencies(ctx context.Context) ([]models.DeliveryAgency, error) {
	var agencies []models.DeliveryAgency
	err := r.db.WithContext(ctx).
		Where("active = ?", true).
		Order("name ASC").
		Find(&agencies).Error
	if err != nil {
		return nil, err
	}
	return agencies, nil
}
