package wallets

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/jemo-app/jemo-backend/pkg/db/models"
	"github.com/jemo-app/jemo-backend/pkg/enums"
	pkgerrors "github.com/jemo-app/jemo-backend/pkg/errors"
)

func TestGetOrCreateIsLazy(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()
	vendorID := uuid.New()

	first, err := svc.GetOrCreate(ctx, enums.WalletOwnerVendor, vendorID)
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	if first.PendingBalance != 0 || first.AvailableBalance != 0 {
		t.Fatalf("new wallet must start empty: %+v", first)
	}

	second, err := svc.GetOrCreate(ctx, enums.WalletOwnerVendor, vendorID)
	if err != nil {
		t.Fatalf("second get or create: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected same wallet, got %s and %s", first.ID, second.ID)
	}
}

func TestCreditPendingThenRelease(t *testing.T) {
	t.Parallel()

	svc, gdb := newTestService(t)
	ctx := context.Background()
	wallet := seedWallet(t, svc)
	orderID := uuid.New()

	entry, err := svc.CreditPending(ctx, nil, EntryInput{
		WalletID:      wallet.ID,
		Amount:        1000,
		ReferenceType: enums.ReferenceTypeOrder,
		ReferenceID:   orderID,
	})
	if err != nil {
		t.Fatalf("credit pending: %v", err)
	}
	if entry.Status != enums.WalletTxStatusPosted {
		t.Fatalf("expected posted entry, got %s", entry.Status)
	}
	assertBalances(t, gdb, wallet.ID, 1000, 0)

	release, err := svc.CreditAvailable(ctx, nil, EntryInput{
		WalletID:      wallet.ID,
		Amount:        1000,
		ReferenceType: enums.ReferenceTypeOrder,
		ReferenceID:   orderID,
	})
	if err != nil {
		t.Fatalf("credit available: %v", err)
	}
	if release.AlreadyProcessed {
		t.Fatal("first release must not report already processed")
	}
	assertBalances(t, gdb, wallet.ID, 0, 1000)

	// Releasing the same order again must be a no-op, not a second credit.
	again, err := svc.CreditAvailable(ctx, nil, EntryInput{
		WalletID:      wallet.ID,
		Amount:        1,
		ReferenceType: enums.ReferenceTypeOrder,
		ReferenceID:   orderID,
	})
	if err != nil {
		t.Fatalf("second release: %v", err)
	}
	if !again.AlreadyProcessed {
		t.Fatal("expected already processed on replay")
	}
	if again.Transaction.ID != release.Transaction.ID {
		t.Fatal("replay must return the original entry")
	}
	assertBalances(t, gdb, wallet.ID, 0, 1000)
}

func TestCreditAvailableInsufficientPending(t *testing.T) {
	t.Parallel()

	svc, gdb := newTestService(t)
	ctx := context.Background()
	wallet := seedWallet(t, svc)

	_, err := svc.CreditAvailable(ctx, nil, EntryInput{
		WalletID:      wallet.ID,
		Amount:        500,
		ReferenceType: enums.ReferenceTypeOrder,
		ReferenceID:   uuid.New(),
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	assertBalances(t, gdb, wallet.ID, 0, 0)

	var count int64
	if err := gdb.Model(&models.WalletTransaction{}).Where("wallet_id = ?", wallet.ID).Count(&count).Error; err != nil {
		t.Fatalf("count entries: %v", err)
	}
	if count != 0 {
		t.Fatalf("failed release must not leave ledger rows, found %d", count)
	}
}

func TestCreditAvailableForOrderIdempotent(t *testing.T) {
	t.Parallel()

	svc, gdb := newTestService(t)
	ctx := context.Background()
	wallet := seedWallet(t, svc)
	orderID := uuid.New()

	input := EntryInput{
		WalletID:      wallet.ID,
		Amount:        2500,
		ReferenceType: enums.ReferenceTypeOrder,
		ReferenceID:   orderID,
		Note:          "cash collected on delivery",
	}
	first, err := svc.CreditAvailableForOrder(ctx, nil, input)
	if err != nil {
		t.Fatalf("credit for order: %v", err)
	}
	if first.AlreadyProcessed {
		t.Fatal("first credit must not report already processed")
	}
	assertBalances(t, gdb, wallet.ID, 0, 2500)

	second, err := svc.CreditAvailableForOrder(ctx, nil, input)
	if err != nil {
		t.Fatalf("replayed credit: %v", err)
	}
	if !second.AlreadyProcessed {
		t.Fatal("expected already processed on replay")
	}
	assertBalances(t, gdb, wallet.ID, 0, 2500)
}

func TestDebitWithdrawalAndReversal(t *testing.T) {
	t.Parallel()

	svc, gdb := newTestService(t)
	ctx := context.Background()
	wallet := seedWallet(t, svc)
	fundWallet(t, svc, wallet.ID, 5000)
	payoutID := uuid.New()

	debit, err := svc.DebitWithdrawal(ctx, nil, EntryInput{
		WalletID:      wallet.ID,
		Amount:        2000,
		ReferenceType: enums.ReferenceTypePayout,
		ReferenceID:   payoutID,
	})
	if err != nil {
		t.Fatalf("debit withdrawal: %v", err)
	}
	if debit.Status != enums.WalletTxStatusPending {
		t.Fatalf("debit must stay pending until finalized, got %s", debit.Status)
	}
	assertBalances(t, gdb, wallet.ID, 0, 3000)

	// Provider failed: the debit is cancelled and the balance restored.
	reversal, err := svc.CancelWithReversal(ctx, nil, debit.ID, "provider rejected")
	if err != nil {
		t.Fatalf("cancel with reversal: %v", err)
	}
	if reversal.Type != enums.WalletTxReversal || reversal.Amount != 2000 {
		t.Fatalf("unexpected reversal row: %+v", reversal)
	}
	assertBalances(t, gdb, wallet.ID, 0, 5000)

	var cancelled models.WalletTransaction
	if err := gdb.First(&cancelled, "id = ?", debit.ID).Error; err != nil {
		t.Fatalf("reload debit: %v", err)
	}
	if cancelled.Status != enums.WalletTxStatusCancelled {
		t.Fatalf("expected cancelled debit, got %s", cancelled.Status)
	}
}

func TestDebitWithdrawalInsufficient(t *testing.T) {
	t.Parallel()

	svc, gdb := newTestService(t)
	ctx := context.Background()
	wallet := seedWallet(t, svc)
	fundWallet(t, svc, wallet.ID, 300)

	_, err := svc.DebitWithdrawal(ctx, nil, EntryInput{
		WalletID:      wallet.ID,
		Amount:        2000,
		ReferenceType: enums.ReferenceTypePayout,
		ReferenceID:   uuid.New(),
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	assertBalances(t, gdb, wallet.ID, 0, 300)
}

func TestPostTransaction(t *testing.T) {
	t.Parallel()

	svc, gdb := newTestService(t)
	ctx := context.Background()
	wallet := seedWallet(t, svc)
	fundWallet(t, svc, wallet.ID, 2000)

	debit, err := svc.DebitWithdrawal(ctx, nil, EntryInput{
		WalletID:      wallet.ID,
		Amount:        1000,
		ReferenceType: enums.ReferenceTypePayout,
		ReferenceID:   uuid.New(),
	})
	if err != nil {
		t.Fatalf("debit withdrawal: %v", err)
	}

	if err := svc.PostTransaction(ctx, nil, debit.ID); err != nil {
		t.Fatalf("post transaction: %v", err)
	}
	// Confirmation signals can race; a second post changes nothing.
	if err := svc.PostTransaction(ctx, nil, debit.ID); err != nil {
		t.Fatalf("repeated post must be a no-op, got %v", err)
	}
	assertBalances(t, gdb, wallet.ID, 0, 1000)

	cancelled, err := svc.DebitWithdrawal(ctx, nil, EntryInput{
		WalletID:      wallet.ID,
		Amount:        500,
		ReferenceType: enums.ReferenceTypePayout,
		ReferenceID:   uuid.New(),
	})
	if err != nil {
		t.Fatalf("debit withdrawal: %v", err)
	}
	if _, err := svc.CancelWithReversal(ctx, nil, cancelled.ID, "provider rejected"); err != nil {
		t.Fatalf("cancel with reversal: %v", err)
	}
	err = svc.PostTransaction(ctx, nil, cancelled.ID)
	if !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict posting a cancelled debit, got %v", err)
	}
}

func TestReversePending(t *testing.T) {
	t.Parallel()

	svc, gdb := newTestService(t)
	ctx := context.Background()
	wallet := seedWallet(t, svc)
	orderID := uuid.New()

	if _, err := svc.CreditPending(ctx, nil, EntryInput{
		WalletID: wallet.ID, Amount: 3000,
		ReferenceType: enums.ReferenceTypeOrder, ReferenceID: orderID,
	}); err != nil {
		t.Fatalf("credit pending: %v", err)
	}
	assertBalances(t, gdb, wallet.ID, 3000, 0)

	reversal, err := svc.ReversePending(ctx, nil, wallet.ID, enums.ReferenceTypeOrder, orderID, "order cancelled")
	if err != nil {
		t.Fatalf("reverse pending: %v", err)
	}
	if reversal == nil || reversal.Amount != 3000 || reversal.Type != enums.WalletTxReversal {
		t.Fatalf("bad reversal: %+v", reversal)
	}
	assertBalances(t, gdb, wallet.ID, 0, 0)

	// Retry finds no posted pending credit and does nothing.
	again, err := svc.ReversePending(ctx, nil, wallet.ID, enums.ReferenceTypeOrder, orderID, "order cancelled")
	if err != nil {
		t.Fatalf("second reverse: %v", err)
	}
	if again != nil {
		t.Fatalf("expected no-op on retry, got %+v", again)
	}
	assertBalances(t, gdb, wallet.ID, 0, 0)
}

func TestFindPostedEntry(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()
	wallet := seedWallet(t, svc)
	orderID := uuid.New()

	if _, err := svc.CreditPending(ctx, nil, EntryInput{
		WalletID: wallet.ID, Amount: 1200,
		ReferenceType: enums.ReferenceTypeOrder, ReferenceID: orderID,
	}); err != nil {
		t.Fatalf("credit pending: %v", err)
	}

	entry, err := svc.FindPostedEntry(ctx, wallet.ID, enums.ReferenceTypeOrder, orderID, enums.WalletTxCreditPending)
	if err != nil {
		t.Fatalf("find posted entry: %v", err)
	}
	if entry == nil || entry.Amount != 1200 {
		t.Fatalf("bad entry: %+v", entry)
	}

	missing, err := svc.FindPostedEntry(ctx, wallet.ID, enums.ReferenceTypeOrder, uuid.New(), enums.WalletTxCreditPending)
	if err != nil {
		t.Fatalf("find missing entry: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for unknown reference, got %+v", missing)
	}
}

// The cached balances are a projection of the ledger rows. After a mixed run
// of credits, releases, withdrawals and reversals, folding the rows back up
// must land exactly on the cached numbers.
func TestBalancesReconstructFromLedger(t *testing.T) {
	t.Parallel()

	svc, gdb := newTestService(t)
	ctx := context.Background()
	wallet := seedWallet(t, svc)
	orderA, orderB, orderC := uuid.New(), uuid.New(), uuid.New()
	payoutA, payoutB := uuid.New(), uuid.New()

	credit := func(orderID uuid.UUID, amount int64) {
		if _, err := svc.CreditPending(ctx, nil, EntryInput{
			WalletID: wallet.ID, Amount: amount,
			ReferenceType: enums.ReferenceTypeOrder, ReferenceID: orderID,
		}); err != nil {
			t.Fatalf("credit pending: %v", err)
		}
	}

	credit(orderA, 5000)
	credit(orderB, 3000)
	if _, err := svc.CreditAvailable(ctx, nil, EntryInput{
		WalletID: wallet.ID, Amount: 5000,
		ReferenceType: enums.ReferenceTypeOrder, ReferenceID: orderA,
	}); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := svc.CreditAvailableForOrder(ctx, nil, EntryInput{
		WalletID: wallet.ID, Amount: 2000,
		ReferenceType: enums.ReferenceTypeOrder, ReferenceID: orderC,
	}); err != nil {
		t.Fatalf("direct credit: %v", err)
	}

	posted, err := svc.DebitWithdrawal(ctx, nil, EntryInput{
		WalletID: wallet.ID, Amount: 4000,
		ReferenceType: enums.ReferenceTypePayout, ReferenceID: payoutA,
	})
	if err != nil {
		t.Fatalf("debit withdrawal: %v", err)
	}
	if err := svc.PostTransaction(ctx, nil, posted.ID); err != nil {
		t.Fatalf("post transaction: %v", err)
	}

	failed, err := svc.DebitWithdrawal(ctx, nil, EntryInput{
		WalletID: wallet.ID, Amount: 1000,
		ReferenceType: enums.ReferenceTypePayout, ReferenceID: payoutB,
	})
	if err != nil {
		t.Fatalf("debit withdrawal: %v", err)
	}
	if _, err := svc.CancelWithReversal(ctx, nil, failed.ID, "provider rejected"); err != nil {
		t.Fatalf("cancel with reversal: %v", err)
	}

	if _, err := svc.ReversePending(ctx, nil, wallet.ID, enums.ReferenceTypeOrder, orderB, "order cancelled"); err != nil {
		t.Fatalf("reverse pending: %v", err)
	}

	assertBalances(t, gdb, wallet.ID, 0, 3000)

	var rows []models.WalletTransaction
	if err := gdb.Where("wallet_id = ?", wallet.ID).Order("created_at, id").Find(&rows).Error; err != nil {
		t.Fatalf("load ledger: %v", err)
	}

	// Every row carries its balance effect at creation time; status changes
	// never move money, only the compensating reversal row does.
	hasEntry := func(refID uuid.UUID, entryType enums.WalletTransactionType) bool {
		for _, row := range rows {
			if row.ReferenceID == refID && row.Type == entryType {
				return true
			}
		}
		return false
	}
	var pending, available int64
	for _, row := range rows {
		switch row.Type {
		case enums.WalletTxCreditPending:
			pending += row.Amount
		case enums.WalletTxCreditAvailable:
			if hasEntry(row.ReferenceID, enums.WalletTxCreditPending) {
				pending -= row.Amount
			}
			available += row.Amount
		case enums.WalletTxDebitWithdrawal:
			available -= row.Amount
		case enums.WalletTxReversal:
			if hasEntry(row.ReferenceID, enums.WalletTxDebitWithdrawal) {
				available += row.Amount
			} else {
				pending -= row.Amount
			}
		default:
			t.Fatalf("unexpected ledger row type %s", row.Type)
		}
	}
	if pending != 0 || available != 3000 {
		t.Fatalf("reconstructed balances = (%d, %d), want (0, 3000)", pending, available)
	}

	var wallet2 models.Wallet
	if err := gdb.First(&wallet2, "id = ?", wallet.ID).Error; err != nil {
		t.Fatalf("load wallet: %v", err)
	}
	if pending != wallet2.PendingBalance || available != wallet2.AvailableBalance {
		t.Fatalf("ledger projection (%d, %d) diverges from cached (%d, %d)",
			pending, available, wallet2.PendingBalance, wallet2.AvailableBalance)
	}
}

func TestValidateEntry(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreditPending(ctx, nil, EntryInput{
		WalletID:      uuid.New(),
		Amount:        0,
		ReferenceType: enums.ReferenceTypeOrder,
		ReferenceID:   uuid.New(),
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for zero amount, got %v", err)
	}

	_, err = svc.CreditPending(ctx, nil, EntryInput{
		WalletID:      uuid.New(),
		Amount:        100,
		ReferenceType: "bogus",
		ReferenceID:   uuid.New(),
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for bad reference type, got %v", err)
	}
}

type testTxRunner struct {
	db *gorm.DB
}

func (r testTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.Transaction(fn)
}

func newTestService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()
	gdb := newTestDB(t)
	svc, err := NewService(NewRepository(gdb), testTxRunner{db: gdb})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, gdb
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:wallets_" + uuid.NewString() + "?mode=memory&cache=shared"
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	// Mirrors the Postgres migration, minus the uuid default the test sets
	// explicitly. The partial index matters: it is the idempotency key.
	stmts := []string{
		`CREATE TABLE wallets (
			id text PRIMARY KEY,
			owner_type text NOT NULL,
			owner_id text NOT NULL,
			pending_balance integer NOT NULL DEFAULT 0,
			available_balance integer NOT NULL DEFAULT 0,
			withdrawals_locked integer NOT NULL DEFAULT 0,
			last_withdrawal_at datetime,
			created_at datetime,
			updated_at datetime
		)`,
		`CREATE UNIQUE INDEX idx_wallets_owner ON wallets (owner_type, owner_id)`,
		`CREATE TABLE wallet_transactions (
			id text PRIMARY KEY,
			wallet_id text NOT NULL,
			type text NOT NULL,
			amount integer NOT NULL,
			reference_type text NOT NULL,
			reference_id text NOT NULL,
			status text NOT NULL DEFAULT 'posted',
			note text,
			created_at datetime,
			updated_at datetime
		)`,
		`CREATE UNIQUE INDEX uq_wallet_tx_posted_reference
			ON wallet_transactions (wallet_id, reference_type, reference_id, type)
			WHERE status = 'posted'`,
	}
	for _, stmt := range stmts {
		if err := gdb.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return gdb
}

func seedWallet(t *testing.T, svc Service) *models.Wallet {
	t.Helper()
	wallet, err := svc.GetOrCreate(context.Background(), enums.WalletOwnerVendor, uuid.New())
	if err != nil {
		t.Fatalf("seed wallet: %v", err)
	}
	return wallet
}

func fundWallet(t *testing.T, svc Service, walletID uuid.UUID, amount int64) {
	t.Helper()
	ctx := context.Background()
	orderID := uuid.New()
	if _, err := svc.CreditPending(ctx, nil, EntryInput{
		WalletID: walletID, Amount: amount,
		ReferenceType: enums.ReferenceTypeOrder, ReferenceID: orderID,
	}); err != nil {
		t.Fatalf("fund wallet: %v", err)
	}
	if _, err := svc.CreditAvailable(ctx, nil, EntryInput{
		WalletID: walletID, Amount: amount,
		ReferenceType: enums.ReferenceTypeOrder, ReferenceID: orderID,
	}); err != nil {
		t.Fatalf("release funds: %v", err)
	}
}

func assertBalances(t *testing.T, gdb *gorm.DB, walletID uuid.UUID, pending, available int64) {
	t.Helper()
	var wallet models.Wallet
	if err := gdb.First(&wallet, "id = ?", walletID).Error; err != nil {
		t.Fatalf("load wallet: %v", err)
	}
	if wallet.PendingBalance != pending || wallet.AvailableBalance != available {
		t.Fatalf("balances = (%d, %d), want (%d, %d)",
			wallet.PendingBalance, wallet.AvailableBalance, pending, available)
	}
}
