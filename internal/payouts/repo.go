package payouts

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jemo-app/jemo-backend/pkg/db/models"
	"github.com/jemo-app/jemo-backend/pkg/enums"
)

// Repository manages persistence for payout requests.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, payout *models.Payout) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Payout, error)
	FindByAppRef(ctx context.Context, appRef string) (*models.Payout, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status enums.PayoutStatus, providerRef, failureReason *string, from ...enums.PayoutStatus) (bool, error)
	ListByWallet(ctx context.Context, walletID uuid.UUID, limit int) ([]models.Payout, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a payout repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, payout *models.Payout) error {
	return r.db.WithContext(ctx).Create(payout).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Payout, error) {
	var payout models.Payout
	if err := r.db.WithContext(ctx).First(&payout, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &payout, nil
}

func (r *repository) FindByAppRef(ctx context.Context, appRef string) (*models.Payout, error) {
	var payout models.Payout
	if err := r.db.WithContext(ctx).First(&payout, "app_transaction_ref = ?", appRef).Error; err != nil {
		return nil, err
	}
	return &payout, nil
}

// UpdateStatus writes the status only when the current status is one of
// from, so terminal states stick no matter which signal lands first. An
// empty from list writes unconditionally.
func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.PayoutStatus, providerRef, failureReason *string, from ...enums.PayoutStatus) (bool, error) {
	updates := map[string]any{
		"status":     status,
		"updated_at": time.Now().UTC(),
	}
	if providerRef != nil {
		updates["provider_ref"] = *providerRef
	}
	if failureReason != nil {
		updates["failure_reason"] = *failureReason
	}
	query := r.db.WithContext(ctx).Model(&models.Payout{}).Where("id = ?", id)
	if len(from) > 0 {
		query = query.Where("status IN ?", from)
	}
	res := query.Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) ListByWallet(ctx context.Context, walletID uuid.UUID, limit int) ([]models.Payout, error) {
	var payouts []models.Payout
	if err := r.db.WithContext(ctx).
		Where("wallet_id = ?", walletID).
		Order("created_at DESC").
		Limit(limit).
		Find(&payouts).Error; err != nil {
		return nil, err
	}
	return payouts, nil
}
