package payouts

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jemo-app/jemo-backend/internal/wallets"
	"github.com/jemo-app/jemo-backend/pkg/config"
	"github.com/jemo-app/jemo-backend/pkg/db/models"
	"github.com/jemo-app/jemo-backend/pkg/enums"
	pkgerrors "github.com/jemo-app/jemo-backend/pkg/errors"
	"github.com/jemo-app/jemo-backend/pkg/logger"
	"github.com/jemo-app/jemo-backend/pkg/mycoolpay"
)

// AppRefPrefix tags payout transaction refs so webhook deliveries can be
// routed back here.
const AppRefPrefix = "JMO-PO-"

var phoneRe = regexp.MustCompile(`^\+?[0-9]{8,15}$`)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type providerClient interface {
	Payout(ctx context.Context, params mycoolpay.PayoutParams) (*mycoolpay.Transaction, error)
	CheckStatus(ctx context.Context, transactionRef string) (*mycoolpay.Transaction, error)
}

type ledger interface {
	GetOrCreate(ctx context.Context, ownerType enums.WalletOwnerType, ownerID uuid.UUID) (*models.Wallet, error)
	DebitWithdrawal(ctx context.Context, tx *gorm.DB, input wallets.EntryInput) (*models.WalletTransaction, error)
	PostTransaction(ctx context.Context, tx *gorm.DB, transactionID uuid.UUID) error
	CancelWithReversal(ctx context.Context, tx *gorm.DB, transactionID uuid.UUID, note string) (*models.WalletTransaction, error)
}

// Service runs the payout state machine: REQUESTED, PROCESSING, then SUCCESS
// or FAILED. The wallet is debited optimistically in a short transaction
// before the provider call; any failure path reverses the debit so the sum
// of wallet balance plus in-flight payouts is conserved.
type Service interface {
	RequestPayout(ctx context.Context, input RequestPayoutInput) (*models.Payout, error)
	ResolveByAppRef(ctx context.Context, appRef string, status mycoolpay.Status, failureReason string) (*models.Payout, error)
	PollStatus(ctx context.Context, payoutID uuid.UUID) (*models.Payout, error)
	Get(ctx context.Context, payoutID uuid.UUID) (*models.Payout, error)
}

// RequestPayoutInput carries a withdrawal request for a party's wallet.
type RequestPayoutInput struct {
	OwnerType        enums.WalletOwnerType
	OwnerID          uuid.UUID
	Amount           int64
	Method           enums.Operator
	DestinationPhone string
	DestinationName  string
}

type service struct {
	repo     Repository
	tx       txRunner
	ledger   ledger
	provider providerClient
	cfg      config.PayoutConfig
	logger   *logger.Logger
	now      func() time.Time
}

// NewService wires the payout engine with its dependencies.
func NewService(repo Repository, tx txRunner, ledger ledger, provider providerClient, cfg config.PayoutConfig, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("payout repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("wallet ledger required")
	}
	if provider == nil {
		return nil, fmt.Errorf("payout provider required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:     repo,
		tx:       tx,
		ledger:   ledger,
		provider: provider,
		cfg:      cfg,
		logger:   logg,
		now:      time.Now,
	}, nil
}

func (s *service) RequestPayout(ctx context.Context, input RequestPayoutInput) (*models.Payout, error) {
	if err := s.validateRequest(input); err != nil {
		return nil, err
	}

	wallet, err := s.ledger.GetOrCreate(ctx, input.OwnerType, input.OwnerID)
	if err != nil {
		return nil, err
	}
	if wallet.WithdrawalsLocked {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "withdrawals are locked for this wallet")
	}
	if wallet.LastWithdrawalAt != nil {
		nextAllowed := wallet.LastWithdrawalAt.Add(s.cfg.Cooldown)
		if s.now().Before(nextAllowed) {
			return nil, pkgerrors.Newf(pkgerrors.CodeRateLimit,
				"withdrawal cooldown active until %s", nextAllowed.UTC().Format(time.RFC3339))
		}
	}

	// Short transaction: create the payout, debit optimistically, stamp the
	// cooldown. The provider call happens after, with no lock held.
	payout := &models.Payout{
		ID:                uuid.New(),
		WalletID:          wallet.ID,
		OwnerType:         input.OwnerType,
		OwnerID:           input.OwnerID,
		Amount:            input.Amount,
		Status:            enums.PayoutStatusRequested,
		Method:            input.Method,
		DestinationPhone:  input.DestinationPhone,
		AppTransactionRef: AppRefPrefix + uuid.NewString(),
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		debit, err := s.ledger.DebitWithdrawal(ctx, tx, wallets.EntryInput{
			WalletID:      wallet.ID,
			Amount:        input.Amount,
			ReferenceType: enums.ReferenceTypePayout,
			ReferenceID:   payout.ID,
			Note:          "withdrawal request",
		})
		if err != nil {
			return err
		}
		payout.TransactionID = debit.ID
		if err := s.repo.WithTx(tx).Create(ctx, payout); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payout")
		}
		return s.setLastWithdrawal(ctx, tx, wallet.ID)
	})
	if err != nil {
		return nil, err
	}

	providerTx, callErr := s.provider.Payout(ctx, mycoolpay.PayoutParams{
		Amount:            input.Amount,
		Reason:            "Wallet withdrawal",
		AppTransactionRef: payout.AppTransactionRef,
		CustomerName:      input.DestinationName,
		CustomerPhone:     input.DestinationPhone,
	})
	if callErr != nil || providerTx.Status == mycoolpay.StatusFailed {
		reason := "provider rejected payout"
		if callErr != nil {
			reason = callErr.Error()
		} else if providerTx.Message != "" {
			reason = providerTx.Message
		}
		if err := s.fail(ctx, payout, reason); err != nil {
			return nil, err
		}
		return nil, pkgerrors.Newf(pkgerrors.CodeDependency, "payout failed: %s", reason)
	}

	// Finalize: the provider accepted, so the debit is posted and the payout
	// waits on the async confirmation. The status write is conditional on
	// still being REQUESTED; a webhook that sneaked in during the provider
	// call has already settled the payout and must not be overwritten.
	var finalized bool
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ref := providerTx.TransactionRef
		applied, err := s.repo.WithTx(tx).UpdateStatus(ctx, payout.ID, enums.PayoutStatusProcessing, &ref, nil,
			enums.PayoutStatusRequested)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payout status")
		}
		if !applied {
			return nil
		}
		if err := s.ledger.PostTransaction(ctx, tx, payout.TransactionID); err != nil {
			return err
		}
		finalized = true
		payout.Status = enums.PayoutStatusProcessing
		payout.ProviderRef = &ref
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !finalized {
		return s.Get(ctx, payout.ID)
	}

	ctx = s.logger.WithWalletID(ctx, wallet.ID.String())
	s.logger.Info(ctx, "payout accepted by provider")
	return payout, nil
}

// ResolveByAppRef finalizes a PROCESSING payout from an async provider
// signal. Terminal payouts are returned unchanged, which makes webhook
// redelivery harmless.
func (s *service) ResolveByAppRef(ctx context.Context, appRef string, status mycoolpay.Status, failureReason string) (*models.Payout, error) {
	payout, err := s.repo.FindByAppRef(ctx, appRef)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "no payout for ref %s", appRef)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payout")
	}
	return s.resolve(ctx, payout, status, failureReason)
}

// PollStatus asks the provider for the payout's current state and applies it.
func (s *service) PollStatus(ctx context.Context, payoutID uuid.UUID) (*models.Payout, error) {
	payout, err := s.Get(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	if payout.Status.IsTerminal() {
		return payout, nil
	}
	if payout.ProviderRef == nil || *payout.ProviderRef == "" {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payout has no provider reference to poll")
	}

	providerTx, err := s.provider.CheckStatus(ctx, *payout.ProviderRef)
	if err != nil {
		return nil, err
	}
	return s.resolve(ctx, payout, providerTx.Status, providerTx.Message)
}

func (s *service) Get(ctx context.Context, payoutID uuid.UUID) (*models.Payout, error) {
	if payoutID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payout id required")
	}
	payout, err := s.repo.FindByID(ctx, payoutID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payout not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payout")
	}
	return payout, nil
}

func (s *service) resolve(ctx context.Context, payout *models.Payout, status mycoolpay.Status, failureReason string) (*models.Payout, error) {
	if payout.Status.IsTerminal() {
		return payout, nil
	}

	switch status {
	case mycoolpay.StatusSuccess:
		var applied bool
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			var err error
			applied, err = s.repo.WithTx(tx).UpdateStatus(ctx, payout.ID, enums.PayoutStatusSuccess, nil, nil,
				enums.PayoutStatusRequested, enums.PayoutStatusProcessing)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payout status")
			}
			if !applied {
				return nil
			}
			// The confirmation can land before the request path finishes, in
			// which case the debit is still pending and settles here.
			return s.ledger.PostTransaction(ctx, tx, payout.TransactionID)
		})
		if err != nil {
			return nil, err
		}
		if !applied {
			return s.Get(ctx, payout.ID)
		}
		payout.Status = enums.PayoutStatusSuccess
		return payout, nil

	case mycoolpay.StatusFailed:
		if failureReason == "" {
			failureReason = "provider reported failure"
		}
		if err := s.fail(ctx, payout, failureReason); err != nil {
			return nil, err
		}
		return payout, nil

	default:
		// Still pending at the provider; nothing to apply yet.
		return payout, nil
	}
}

// fail marks the payout FAILED and reverses its debit in one transaction.
// The status write is conditional; when a success signal settled the payout
// first, the failure is discarded and the settled row is kept.
func (s *service) fail(ctx context.Context, payout *models.Payout, reason string) error {
	var applied bool
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		applied, err = s.repo.WithTx(tx).UpdateStatus(ctx, payout.ID, enums.PayoutStatusFailed, nil, &reason,
			enums.PayoutStatusRequested, enums.PayoutStatusProcessing)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payout status")
		}
		if !applied {
			return nil
		}
		_, err = s.ledger.CancelWithReversal(ctx, tx, payout.TransactionID, reason)
		return err
	})
	if err != nil {
		return err
	}
	if !applied {
		fresh, err := s.repo.FindByID(ctx, payout.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payout")
		}
		*payout = *fresh
		return nil
	}
	payout.Status = enums.PayoutStatusFailed
	payout.FailureReason = &reason
	s.logger.Warn(ctx, fmt.Sprintf("payout %s failed: %s", payout.ID, reason))
	return nil
}

func (s *service) setLastWithdrawal(ctx context.Context, tx *gorm.DB, walletID uuid.UUID) error {
	now := s.now().UTC()
	err := tx.WithContext(ctx).Model(&models.Wallet{}).
		Where("id = ?", walletID).
		Update("last_withdrawal_at", now).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "stamp withdrawal cooldown")
	}
	return nil
}

func (s *service) validateRequest(input RequestPayoutInput) error {
	if !input.OwnerType.IsValid() {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "invalid owner type %q", input.OwnerType)
	}
	if input.OwnerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "owner id required")
	}
	if input.Amount < s.cfg.MinAmount {
		return pkgerrors.Newf(pkgerrors.CodeValidation,
			"amount %d below minimum %d", input.Amount, s.cfg.MinAmount)
	}
	if input.Amount > s.cfg.MaxAmount {
		return pkgerrors.Newf(pkgerrors.CodeValidation,
			"amount %d above maximum %d", input.Amount, s.cfg.MaxAmount)
	}
	if !input.Method.IsValid() {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "invalid payout method %q", input.Method)
	}
	if !phoneRe.MatchString(input.DestinationPhone) {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "invalid destination phone %q", input.DestinationPhone)
	}
	return nil
}
