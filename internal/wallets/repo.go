package wallets

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jemo-app/jemo-backend/pkg/db/models"
	"github.com/jemo-app/jemo-backend/pkg/enums"
	"github.com/jemo-app/jemo-backend/pkg/pagination"
)

// Repository manages persistence for wallets and their ledger rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByOwner(ctx context.Context, ownerType enums.WalletOwnerType, ownerID uuid.UUID) (*models.Wallet, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Wallet, error)
	Create(ctx context.Context, wallet *models.Wallet) error
	AdjustBalances(ctx context.Context, walletID uuid.UUID, pendingDelta, availableDelta int64) (bool, error)
	SetLastWithdrawalAt(ctx context.Context, walletID uuid.UUID, at time.Time) error
	CreateTransaction(ctx context.Context, entry *models.WalletTransaction) error
	FindTransaction(ctx context.Context, id uuid.UUID) (*models.WalletTransaction, error)
	FindPostedByReference(ctx context.Context, walletID uuid.UUID, refType enums.ReferenceType, refID uuid.UUID, entryType enums.WalletTransactionType) (*models.WalletTransaction, error)
	UpdateTransactionStatus(ctx context.Context, id uuid.UUID, status enums.WalletTransactionStatus) error
	ListTransactions(ctx context.Context, walletID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.WalletTransaction, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a wallet repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByOwner(ctx context.Context, ownerType enums.WalletOwnerType, ownerID uuid.UUID) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := r.db.WithContext(ctx).
		Where("owner_type = ? AND owner_id = ?", ownerType, ownerID).
		First(&wallet).Error; err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := r.db.WithContext(ctx).First(&wallet, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (r *repository) Create(ctx context.Context, wallet *models.Wallet) error {
	return r.db.WithContext(ctx).Create(wallet).Error
}

// AdjustBalances applies both deltas in one conditional UPDATE. The WHERE
// clause re-checks sufficiency at write time, so two concurrent callers
// reading the same stale balance cannot both pass; the loser sees
// applied=false.
func (r *repository) AdjustBalances(ctx context.Context, walletID uuid.UUID, pendingDelta, availableDelta int64) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.Wallet{}).
		Where("id = ? AND pending_balance + ? >= 0 AND available_balance + ? >= 0",
			walletID, pendingDelta, availableDelta).
		Updates(map[string]any{
			"pending_balance":   gorm.Expr("pending_balance + ?", pendingDelta),
			"available_balance": gorm.Expr("available_balance + ?", availableDelta),
			"updated_at":        time.Now().UTC(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) SetLastWithdrawalAt(ctx context.Context, walletID uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.Wallet{}).
		Where("id = ?", walletID).
		Update("last_withdrawal_at", at).Error
}

func (r *repository) CreateTransaction(ctx context.Context, entry *models.WalletTransaction) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) FindTransaction(ctx context.Context, id uuid.UUID) (*models.WalletTransaction, error) {
	var entry models.WalletTransaction
	if err := r.db.WithContext(ctx).First(&entry, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *repository) FindPostedByReference(ctx context.Context, walletID uuid.UUID, refType enums.ReferenceType, refID uuid.UUID, entryType enums.WalletTransactionType) (*models.WalletTransaction, error) {
	var entry models.WalletTransaction
	if err := r.db.WithContext(ctx).
		Where("wallet_id = ? AND reference_type = ? AND reference_id = ? AND type = ? AND status = ?",
			walletID, refType, refID, entryType, enums.WalletTxStatusPosted).
		First(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *repository) UpdateTransactionStatus(ctx context.Context, id uuid.UUID, status enums.WalletTransactionStatus) error {
	return r.db.WithContext(ctx).Model(&models.WalletTransaction{}).
		Where("id = ?", id).
		Update("status", status).Error
}

func (r *repository) ListTransactions(ctx context.Context, walletID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.WalletTransaction, error) {
	query := r.db.WithContext(ctx).
		Where("wallet_id = ?", walletID).
		Order("created_at DESC, id DESC").
		Limit(limit)
	if cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}
	var entries []models.WalletTransaction
	if err := query.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
