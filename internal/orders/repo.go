package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jemo-app/jemo-backend/pkg/db/models"
	"github.com/jemo-app/jemo-backend/pkg/enums"
	"github.com/jemo-app/jemo-backend/pkg/pagination"
)

// Repository manages order persistence. Status moves are conditional updates
// keyed on the expected current status, mirroring the wallet balance writes.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	CreatePayment(ctx context.Context, payment *models.Payment) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	Transition(ctx context.Context, orderID uuid.UUID, from, to enums.OrderStatus, at time.Time) (bool, error)
	Complete(ctx context.Context, orderID uuid.UUID, from enums.OrderStatus, amounts CompletionAmounts, at time.Time) (bool, error)
	ListByCustomer(ctx context.Context, customerID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.Order, error)
	ListByVendor(ctx context.Context, vendorID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.Order, error)
}

// CompletionAmounts carries the settlement breakdown written when an order
// completes.
type CompletionAmounts struct {
	Subtotal     int64
	Commission   int64
	VendorPayout int64
	RiderPayout  int64
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an order repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) CreatePayment(ctx context.Context, payment *models.Payment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Preload("Items").First(&order, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// stampColumn maps a target status to the timestamp column recording it.
func stampColumn(to enums.OrderStatus) (string, error) {
	switch to {
	case enums.OrderStatusConfirmed:
		return "confirmed_at", nil
	case enums.OrderStatusInTransit:
		return "in_transit_at", nil
	case enums.OrderStatusDelivered:
		return "delivered_at", nil
	case enums.OrderStatusCompleted:
		return "completed_at", nil
	case enums.OrderStatusCancelled:
		return "cancelled_at", nil
	default:
		return "", fmt.Errorf("no timestamp column for status %q", to)
	}
}

// Transition moves the order from one status to another with a conditional
// UPDATE. applied=false means the order left the expected status first.
func (r *repository) Transition(ctx context.Context, orderID uuid.UUID, from, to enums.OrderStatus, at time.Time) (bool, error) {
	column, err := stampColumn(to)
	if err != nil {
		return false, err
	}
	result := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND status = ?", orderID, from).
		Updates(map[string]any{
			"status":     to,
			column:       at,
			"updated_at": at,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) Complete(ctx context.Context, orderID uuid.UUID, from enums.OrderStatus, amounts CompletionAmounts, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND status = ?", orderID, from).
		Updates(map[string]any{
			"status":               enums.OrderStatusCompleted,
			"subtotal_amount":      amounts.Subtotal,
			"commission_amount":    amounts.Commission,
			"vendor_payout_amount": amounts.VendorPayout,
			"rider_payout_amount":  amounts.RiderPayout,
			"completed_at":         at,
			"funds_released_at":    at,
			"updated_at":           at,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) ListByCustomer(ctx context.Context, customerID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.Order, error) {
	return r.list(ctx, "customer_id = ?", customerID, limit, cursor)
}

func (r *repository) ListByVendor(ctx context.Context, vendorID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.Order, error) {
	return r.list(ctx, "vendor_id = ?", vendorID, limit, cursor)
}

func (r *repository) list(ctx context.Context, where string, owner uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.Order, error) {
	query := r.db.WithContext(ctx).
		Where(where, owner).
		Order("created_at DESC, id DESC").
		Limit(limit)
	if cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}
	var orders []models.Order
	if err := query.Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}
