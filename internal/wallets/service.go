package wallets

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jemo-app/jemo-backend/pkg/db"
	"github.com/jemo-app/jemo-backend/pkg/db/models"
	"github.com/jemo-app/jemo-backend/pkg/enums"
	pkgerrors "github.com/jemo-app/jemo-backend/pkg/errors"
	"github.com/jemo-app/jemo-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service is the money ledger. Every balance mutation goes through exactly
// one of the credit/debit operations, each of which inserts a ledger row and
// adjusts the wallet's cached balances in the same transaction. Operations
// that compose into a caller's transaction take the caller's tx; passing nil
// runs them standalone.
type Service interface {
	GetOrCreate(ctx context.Context, ownerType enums.WalletOwnerType, ownerID uuid.UUID) (*models.Wallet, error)
	Get(ctx context.Context, walletID uuid.UUID) (*models.Wallet, error)
	ListTransactions(ctx context.Context, walletID uuid.UUID, params pagination.Params) ([]models.WalletTransaction, string, error)

	CreditPending(ctx context.Context, tx *gorm.DB, input EntryInput) (*models.WalletTransaction, error)
	CreditAvailable(ctx context.Context, tx *gorm.DB, input EntryInput) (*ReleaseResult, error)
	CreditAvailableForOrder(ctx context.Context, tx *gorm.DB, input EntryInput) (*ReleaseResult, error)
	ReversePending(ctx context.Context, tx *gorm.DB, walletID uuid.UUID, refType enums.ReferenceType, refID uuid.UUID, note string) (*models.WalletTransaction, error)
	DebitWithdrawal(ctx context.Context, tx *gorm.DB, input EntryInput) (*models.WalletTransaction, error)
	PostTransaction(ctx context.Context, tx *gorm.DB, transactionID uuid.UUID) error
	CancelWithReversal(ctx context.Context, tx *gorm.DB, transactionID uuid.UUID, note string) (*models.WalletTransaction, error)
	FindPostedEntry(ctx context.Context, walletID uuid.UUID, refType enums.ReferenceType, refID uuid.UUID, entryType enums.WalletTransactionType) (*models.WalletTransaction, error)
}

// EntryInput carries one ledger mutation. Amount is XAF minor units and must
// be positive.
type EntryInput struct {
	WalletID      uuid.UUID
	Amount        int64
	ReferenceType enums.ReferenceType
	ReferenceID   uuid.UUID
	Note          string
}

// ReleaseResult reports an idempotent release. AlreadyProcessed is true when
// a POSTED row for the same reference key predates this call; Transaction is
// then the existing row.
type ReleaseResult struct {
	AlreadyProcessed bool
	Transaction      *models.WalletTransaction
}

type service struct {
	repo Repository
	tx   txRunner
}

// NewService wires the wallet ledger service.
func NewService(repo Repository, tx txRunner) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("wallet repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{repo: repo, tx: tx}, nil
}

func (s *service) GetOrCreate(ctx context.Context, ownerType enums.WalletOwnerType, ownerID uuid.UUID) (*models.Wallet, error) {
	if !ownerType.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid wallet owner type %q", ownerType)
	}
	if ownerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "owner id required")
	}

	wallet, err := s.repo.FindByOwner(ctx, ownerType, ownerID)
	if err == nil {
		return wallet, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wallet")
	}

	created := &models.Wallet{OwnerType: ownerType, OwnerID: ownerID}
	if err := s.repo.Create(ctx, created); err != nil {
		// Lost a create race to a concurrent first access.
		if db.IsUniqueViolation(err, "idx_wallets_owner") {
			return s.repo.FindByOwner(ctx, ownerType, ownerID)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create wallet")
	}
	return created, nil
}

func (s *service) Get(ctx context.Context, walletID uuid.UUID) (*models.Wallet, error) {
	if walletID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "wallet id required")
	}
	wallet, err := s.repo.FindByID(ctx, walletID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "wallet not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wallet")
	}
	return wallet, nil
}

func (s *service) ListTransactions(ctx context.Context, walletID uuid.UUID, params pagination.Params) ([]models.WalletTransaction, string, error) {
	if walletID == uuid.Nil {
		return nil, "", pkgerrors.New(pkgerrors.CodeValidation, "wallet id required")
	}
	limit, cursor, err := params.Resolve()
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	entries, err := s.repo.ListTransactions(ctx, walletID, limit, cursor)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list wallet transactions")
	}

	next := ""
	if len(entries) == limit {
		entries = entries[:limit-1]
		last := entries[len(entries)-1]
		next = pagination.Encode(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return entries, next, nil
}

// CreditPending adds funds to the pending balance, keyed by the reference.
func (s *service) CreditPending(ctx context.Context, tx *gorm.DB, input EntryInput) (*models.WalletTransaction, error) {
	if err := validateEntry(input); err != nil {
		return nil, err
	}
	var entry *models.WalletTransaction
	err := s.run(ctx, tx, func(repo Repository) error {
		var err error
		entry, err = s.post(ctx, repo, input, enums.WalletTxCreditPending, input.Amount, 0)
		return err
	})
	return entry, err
}

// CreditAvailable moves previously pending funds into the available balance.
// It fails with insufficient-pending when the wallet never held the amount,
// and reports AlreadyProcessed when the same reference was already released.
func (s *service) CreditAvailable(ctx context.Context, tx *gorm.DB, input EntryInput) (*ReleaseResult, error) {
	if err := validateEntry(input); err != nil {
		return nil, err
	}
	var result *ReleaseResult
	err := s.run(ctx, tx, func(repo Repository) error {
		existing, err := s.findPosted(ctx, repo, input, enums.WalletTxCreditAvailable)
		if err != nil {
			return err
		}
		if existing != nil {
			result = &ReleaseResult{AlreadyProcessed: true, Transaction: existing}
			return nil
		}

		entry, err := s.post(ctx, repo, input, enums.WalletTxCreditAvailable, -input.Amount, input.Amount)
		if err != nil {
			return err
		}
		result = &ReleaseResult{Transaction: entry}
		return nil
	})
	return result, err
}

// CreditAvailableForOrder credits the available balance directly, for funds
// that were never pending (cash collected on delivery). Safe to call twice.
func (s *service) CreditAvailableForOrder(ctx context.Context, tx *gorm.DB, input EntryInput) (*ReleaseResult, error) {
	if err := validateEntry(input); err != nil {
		return nil, err
	}
	if input.ReferenceType != enums.ReferenceTypeOrder {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reference must be an order")
	}
	var result *ReleaseResult
	err := s.run(ctx, tx, func(repo Repository) error {
		existing, err := s.findPosted(ctx, repo, input, enums.WalletTxCreditAvailable)
		if err != nil {
			return err
		}
		if existing != nil {
			result = &ReleaseResult{AlreadyProcessed: true, Transaction: existing}
			return nil
		}

		entry, err := s.post(ctx, repo, input, enums.WalletTxCreditAvailable, 0, input.Amount)
		if err != nil {
			return err
		}
		result = &ReleaseResult{Transaction: entry}
		return nil
	})
	return result, err
}

// ReversePending cancels a posted pending credit and posts a REVERSAL
// removing the amount from the pending balance. Called when an order is
// cancelled before its funds were released. Without a matching pending credit
// it is a no-op returning nil.
func (s *service) ReversePending(ctx context.Context, tx *gorm.DB, walletID uuid.UUID, refType enums.ReferenceType, refID uuid.UUID, note string) (*models.WalletTransaction, error) {
	if walletID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "wallet id required")
	}
	if refID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reference id required")
	}
	var reversal *models.WalletTransaction
	err := s.run(ctx, tx, func(repo Repository) error {
		input := EntryInput{WalletID: walletID, ReferenceType: refType, ReferenceID: refID}
		credit, err := s.findPosted(ctx, repo, input, enums.WalletTxCreditPending)
		if err != nil {
			return err
		}
		if credit == nil {
			return nil
		}
		if err := repo.UpdateTransactionStatus(ctx, credit.ID, enums.WalletTxStatusCancelled); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel pending credit")
		}

		input.Amount = credit.Amount
		input.Note = note
		reversal, err = s.post(ctx, repo, input, enums.WalletTxReversal, -credit.Amount, 0)
		return err
	})
	return reversal, err
}

// FindPostedEntry returns the posted ledger row for the reference key, or nil
// when none exists.
func (s *service) FindPostedEntry(ctx context.Context, walletID uuid.UUID, refType enums.ReferenceType, refID uuid.UUID, entryType enums.WalletTransactionType) (*models.WalletTransaction, error) {
	if walletID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "wallet id required")
	}
	return s.findPosted(ctx, s.repo, EntryInput{WalletID: walletID, ReferenceType: refType, ReferenceID: refID}, entryType)
}

// DebitWithdrawal removes funds from the available balance and records a
// PENDING debit row. The debit stays pending until the payout engine posts
// or cancels it.
func (s *service) DebitWithdrawal(ctx context.Context, tx *gorm.DB, input EntryInput) (*models.WalletTransaction, error) {
	if err := validateEntry(input); err != nil {
		return nil, err
	}
	var entry *models.WalletTransaction
	err := s.run(ctx, tx, func(repo Repository) error {
		wallet, err := repo.FindByID(ctx, input.WalletID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "wallet not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wallet")
		}

		applied, err := repo.AdjustBalances(ctx, input.WalletID, 0, -input.Amount)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "debit wallet")
		}
		if !applied {
			return pkgerrors.Newf(pkgerrors.CodeValidation,
				"insufficient available balance: have %d, requested %d", wallet.AvailableBalance, input.Amount)
		}

		entry = &models.WalletTransaction{
			WalletID:      input.WalletID,
			Type:          enums.WalletTxDebitWithdrawal,
			Amount:        input.Amount,
			ReferenceType: input.ReferenceType,
			ReferenceID:   input.ReferenceID,
			Status:        enums.WalletTxStatusPending,
			Note:          input.Note,
		}
		if err := repo.CreateTransaction(ctx, entry); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record debit")
		}
		return nil
	})
	return entry, err
}

// PostTransaction finalizes a PENDING debit after provider confirmation.
// An already posted debit is left as is, so the confirming signals can
// arrive in any order; a cancelled debit cannot come back.
func (s *service) PostTransaction(ctx context.Context, tx *gorm.DB, transactionID uuid.UUID) error {
	if transactionID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "transaction id required")
	}
	return s.run(ctx, tx, func(repo Repository) error {
		entry, err := s.loadTransaction(ctx, repo, transactionID)
		if err != nil {
			return err
		}
		switch entry.Status {
		case enums.WalletTxStatusPosted:
			return nil
		case enums.WalletTxStatusPending:
			if err := repo.UpdateTransactionStatus(ctx, entry.ID, enums.WalletTxStatusPosted); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "post transaction")
			}
			return nil
		default:
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "transaction is %s, expected pending", entry.Status)
		}
	})
}

// CancelWithReversal cancels a PENDING debit and posts a REVERSAL restoring
// the debited amount to the available balance. The debit is never silently
// lost.
func (s *service) CancelWithReversal(ctx context.Context, tx *gorm.DB, transactionID uuid.UUID, note string) (*models.WalletTransaction, error) {
	if transactionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id required")
	}
	var reversal *models.WalletTransaction
	err := s.run(ctx, tx, func(repo Repository) error {
		entry, err := s.reversibleTransaction(ctx, repo, transactionID)
		if err != nil {
			return err
		}
		if err := repo.UpdateTransactionStatus(ctx, entry.ID, enums.WalletTxStatusCancelled); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel transaction")
		}

		reversal, err = s.post(ctx, repo, EntryInput{
			WalletID:      entry.WalletID,
			Amount:        entry.Amount,
			ReferenceType: entry.ReferenceType,
			ReferenceID:   entry.ReferenceID,
			Note:          note,
		}, enums.WalletTxReversal, 0, entry.Amount)
		return err
	})
	return reversal, err
}

// post inserts a POSTED ledger row and applies the balance deltas. The
// partial-unique index is the backstop against reference-key races; the
// violation surfaces as a conflict.
func (s *service) post(ctx context.Context, repo Repository, input EntryInput, entryType enums.WalletTransactionType, pendingDelta, availableDelta int64) (*models.WalletTransaction, error) {
	entry := &models.WalletTransaction{
		WalletID:      input.WalletID,
		Type:          entryType,
		Amount:        input.Amount,
		ReferenceType: input.ReferenceType,
		ReferenceID:   input.ReferenceID,
		Status:        enums.WalletTxStatusPosted,
		Note:          input.Note,
	}
	if err := repo.CreateTransaction(ctx, entry); err != nil {
		if db.IsUniqueViolation(err, models.UniquePostedConstraint) {
			return nil, pkgerrors.Newf(pkgerrors.CodeConflict,
				"ledger entry already posted for %s %s %s", input.ReferenceType, input.ReferenceID, entryType)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record ledger entry")
	}

	applied, err := repo.AdjustBalances(ctx, input.WalletID, pendingDelta, availableDelta)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "adjust wallet balances")
	}
	if !applied {
		wallet, loadErr := repo.FindByID(ctx, input.WalletID)
		if loadErr != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, loadErr, "load wallet")
		}
		if pendingDelta < 0 {
			return nil, pkgerrors.Newf(pkgerrors.CodeValidation,
				"insufficient pending balance: have %d, requested %d", wallet.PendingBalance, -pendingDelta)
		}
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation,
			"insufficient available balance: have %d, requested %d", wallet.AvailableBalance, -availableDelta)
	}
	return entry, nil
}

func (s *service) findPosted(ctx context.Context, repo Repository, input EntryInput, entryType enums.WalletTransactionType) (*models.WalletTransaction, error) {
	existing, err := repo.FindPostedByReference(ctx, input.WalletID, input.ReferenceType, input.ReferenceID, entryType)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "look up ledger entry")
	}
	return existing, nil
}

// reversibleTransaction accepts pending debits (provider call failed before
// confirmation) and posted debits (provider reported failure after an
// optimistic post).
func (s *service) reversibleTransaction(ctx context.Context, repo Repository, transactionID uuid.UUID) (*models.WalletTransaction, error) {
	entry, err := s.loadTransaction(ctx, repo, transactionID)
	if err != nil {
		return nil, err
	}
	if entry.Status == enums.WalletTxStatusCancelled {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "transaction already cancelled")
	}
	return entry, nil
}

func (s *service) loadTransaction(ctx context.Context, repo Repository, transactionID uuid.UUID) (*models.WalletTransaction, error) {
	entry, err := repo.FindTransaction(ctx, transactionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "ledger transaction not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load ledger transaction")
	}
	return entry, nil
}

// run executes fn inside the caller's transaction when one is supplied,
// otherwise opens its own.
func (s *service) run(ctx context.Context, tx *gorm.DB, fn func(repo Repository) error) error {
	if tx != nil {
		return fn(s.repo.WithTx(tx))
	}
	return s.tx.WithTx(ctx, func(inner *gorm.DB) error {
		return fn(s.repo.WithTx(inner))
	})
}

func validateEntry(input EntryInput) error {
	if input.WalletID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "wallet id required")
	}
	if input.Amount <= 0 {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "amount must be positive, got %d", input.Amount)
	}
	if !input.ReferenceType.IsValid() {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "invalid reference type %q", input.ReferenceType)
	}
	if input.ReferenceID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "reference id required")
	}
	return nil
}
