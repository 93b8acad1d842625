package payments

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jemo-app/jemo-backend/pkg/db/models"
	"github.com/jemo-app/jemo-backend/pkg/enums"
	"github.com/jemo-app/jemo-backend/pkg/pagination"
)

// Repository persists payment intents. WithTx rebinds the repository onto a
// caller-owned transaction; a nil tx returns the receiver unchanged.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	Create(ctx context.Context, intent *models.PaymentIntent) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.PaymentIntent, error)
	FindByAppRef(ctx context.Context, appRef string) (*models.PaymentIntent, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.PaymentIntent, error)

	// UpdateStatus writes the status only while the current status is one of
	// from, so a settled intent is never regressed; the returned flag reports
	// whether the write applied. An empty from list writes unconditionally.
	UpdateStatus(ctx context.Context, id uuid.UUID, status enums.PaymentIntentStatus, failureReason *string, from ...enums.PaymentIntentStatus) (bool, error)
	PurgeStaleInitiated(ctx context.Context, userID, productID uuid.UUID, before time.Time) error

	// MarkUsed binds an intent to the order consuming it. The update only
	// applies while used_for_order_id is still NULL; the returned flag
	// reports whether this caller won.
	MarkUsed(ctx context.Context, id, orderID uuid.UUID) (bool, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, intent *models.PaymentIntent) error {
	return r.db.WithContext(ctx).Create(intent).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	if err := r.db.WithContext(ctx).First(&intent, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &intent, nil
}

func (r *repository) FindByAppRef(ctx context.Context, appRef string) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	if err := r.db.WithContext(ctx).First(&intent, "app_transaction_ref = ?", appRef).Error; err != nil {
		return nil, err
	}
	return &intent, nil
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.PaymentIntent, error) {
	query := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(limit)
	if cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}
	var intents []models.PaymentIntent
	if err := query.Find(&intents).Error; err != nil {
		return nil, err
	}
	return intents, nil
}

func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.PaymentIntentStatus, failureReason *string, from ...enums.PaymentIntentStatus) (bool, error) {
	updates := map[string]any{"status": status}
	if failureReason != nil {
		updates["failure_reason"] = *failureReason
	}
	query := r.db.WithContext(ctx).
		Model(&models.PaymentIntent{}).
		Where("id = ?", id)
	if len(from) > 0 {
		query = query.Where("status IN ?", from)
	}
	res := query.Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// PurgeStaleInitiated drops abandoned capture attempts for the same purchase.
// Rows that already carry a provider ref are kept; the provider may still
// settle them and the webhook must find its intent.
func (r *repository) PurgeStaleInitiated(ctx context.Context, userID, productID uuid.UUID, before time.Time) error {
	return r.db.WithContext(ctx).
		Where("user_id = ? AND product_id = ?", userID, productID).
		Where("status = ?", enums.PaymentIntentStatusInitiated).
		Where("provider_transaction_ref IS NULL").
		Where("created_at < ?", before).
		Delete(&models.PaymentIntent{}).Error
}

func (r *repository) MarkUsed(ctx context.Context, id, orderID uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.PaymentIntent{}).
		Where("id = ? AND used_for_order_id IS NULL", id).
		Update("used_for_order_id", orderID)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
