package payouts

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/jemo-app/jemo-backend/internal/wallets"
	"github.com/jemo-app/jemo-backend/pkg/config"
	"github.com/jemo-app/jemo-backend/pkg/db/models"
	"github.com/jemo-app/jemo-backend/pkg/enums"
	pkgerrors "github.com/jemo-app/jemo-backend/pkg/errors"
	"github.com/jemo-app/jemo-backend/pkg/logger"
	"github.com/jemo-app/jemo-backend/pkg/mycoolpay"
)

type stubProvider struct {
	payoutTx  *mycoolpay.Transaction
	payoutErr error
	statusTx  *mycoolpay.Transaction
	statusErr error
	onPayout  func(ctx context.Context, params mycoolpay.PayoutParams)
	calls     int
}

func (p *stubProvider) Payout(ctx context.Context, params mycoolpay.PayoutParams) (*mycoolpay.Transaction, error) {
	p.calls++
	if p.onPayout != nil {
		p.onPayout(ctx, params)
	}
	if p.payoutErr != nil {
		return nil, p.payoutErr
	}
	return p.payoutTx, nil
}

func (p *stubProvider) CheckStatus(ctx context.Context, ref string) (*mycoolpay.Transaction, error) {
	if p.statusErr != nil {
		return nil, p.statusErr
	}
	return p.statusTx, nil
}

func TestRequestPayoutSuccess(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, &stubProvider{
		payoutTx: &mycoolpay.Transaction{TransactionRef: "CP-1", Status: mycoolpay.StatusPending},
	})
	wallet := env.fundedWallet(t, 5000)

	payout, err := env.svc.RequestPayout(context.Background(), RequestPayoutInput{
		OwnerType:        enums.WalletOwnerVendor,
		OwnerID:          wallet.OwnerID,
		Amount:           2000,
		Method:           enums.OperatorMTN,
		DestinationPhone: "+237650000001",
		DestinationName:  "Vendor",
	})
	if err != nil {
		t.Fatalf("request payout: %v", err)
	}
	if payout.Status != enums.PayoutStatusProcessing {
		t.Fatalf("expected processing, got %s", payout.Status)
	}
	if payout.ProviderRef == nil || *payout.ProviderRef != "CP-1" {
		t.Fatalf("provider ref not stored: %+v", payout)
	}
	env.assertBalances(t, wallet.ID, 0, 3000)

	var debit models.WalletTransaction
	if err := env.db.First(&debit, "id = ?", payout.TransactionID).Error; err != nil {
		t.Fatalf("load debit: %v", err)
	}
	if debit.Status != enums.WalletTxStatusPosted {
		t.Fatalf("expected posted debit after provider accept, got %s", debit.Status)
	}
}

func TestRequestPayoutProviderFailureReverses(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, &stubProvider{
		payoutErr: pkgerrors.New(pkgerrors.CodeDependency, "connection timed out"),
	})
	wallet := env.fundedWallet(t, 5000)

	_, err := env.svc.RequestPayout(context.Background(), RequestPayoutInput{
		OwnerType:        enums.WalletOwnerVendor,
		OwnerID:          wallet.OwnerID,
		Amount:           2000,
		Method:           enums.OperatorMTN,
		DestinationPhone: "+237650000001",
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}

	// The debit is never silently lost: balance is back at 5000.
	env.assertBalances(t, wallet.ID, 0, 5000)

	var payout models.Payout
	if err := env.db.First(&payout, "wallet_id = ?", wallet.ID).Error; err != nil {
		t.Fatalf("load payout: %v", err)
	}
	if payout.Status != enums.PayoutStatusFailed {
		t.Fatalf("expected failed payout, got %s", payout.Status)
	}

	var reversals int64
	if err := env.db.Model(&models.WalletTransaction{}).
		Where("wallet_id = ? AND type = ?", wallet.ID, enums.WalletTxReversal).
		Count(&reversals).Error; err != nil {
		t.Fatalf("count reversals: %v", err)
	}
	if reversals != 1 {
		t.Fatalf("expected one reversal, got %d", reversals)
	}
}

func TestRequestPayoutCooldown(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, &stubProvider{
		payoutTx: &mycoolpay.Transaction{TransactionRef: "CP-1", Status: mycoolpay.StatusPending},
	})
	wallet := env.fundedWallet(t, 10000)

	input := RequestPayoutInput{
		OwnerType:        enums.WalletOwnerVendor,
		OwnerID:          wallet.OwnerID,
		Amount:           1000,
		Method:           enums.OperatorOrange,
		DestinationPhone: "+237690000001",
	}
	if _, err := env.svc.RequestPayout(context.Background(), input); err != nil {
		t.Fatalf("first payout: %v", err)
	}
	_, err := env.svc.RequestPayout(context.Background(), input)
	if !pkgerrors.HasCode(err, pkgerrors.CodeRateLimit) {
		t.Fatalf("expected rate limit error, got %v", err)
	}
}

func TestRequestPayoutValidation(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, &stubProvider{})
	table := []RequestPayoutInput{
		{OwnerType: enums.WalletOwnerVendor, OwnerID: uuid.New(), Amount: 100, Method: enums.OperatorMTN, DestinationPhone: "+237650000001"},
		{OwnerType: enums.WalletOwnerVendor, OwnerID: uuid.New(), Amount: 900000, Method: enums.OperatorMTN, DestinationPhone: "+237650000001"},
		{OwnerType: enums.WalletOwnerVendor, OwnerID: uuid.New(), Amount: 1000, Method: "cheque", DestinationPhone: "+237650000001"},
		{OwnerType: enums.WalletOwnerVendor, OwnerID: uuid.New(), Amount: 1000, Method: enums.OperatorMTN, DestinationPhone: "not-a-phone"},
	}
	for i, input := range table {
		if _, err := env.svc.RequestPayout(context.Background(), input); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
			t.Fatalf("case %d: expected validation error, got %v", i, err)
		}
	}
}

func TestResolveByAppRefFailureAfterProcessing(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, &stubProvider{
		payoutTx: &mycoolpay.Transaction{TransactionRef: "CP-2", Status: mycoolpay.StatusPending},
	})
	wallet := env.fundedWallet(t, 5000)

	payout, err := env.svc.RequestPayout(context.Background(), RequestPayoutInput{
		OwnerType:        enums.WalletOwnerVendor,
		OwnerID:          wallet.OwnerID,
		Amount:           2000,
		Method:           enums.OperatorMTN,
		DestinationPhone: "+237650000001",
	})
	if err != nil {
		t.Fatalf("request payout: %v", err)
	}
	env.assertBalances(t, wallet.ID, 0, 3000)

	resolved, err := env.svc.ResolveByAppRef(context.Background(), payout.AppTransactionRef, mycoolpay.StatusFailed, "wallet blocked")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Status != enums.PayoutStatusFailed {
		t.Fatalf("expected failed, got %s", resolved.Status)
	}
	env.assertBalances(t, wallet.ID, 0, 5000)

	// Redelivered webhook: terminal payout, nothing reapplied.
	again, err := env.svc.ResolveByAppRef(context.Background(), payout.AppTransactionRef, mycoolpay.StatusFailed, "wallet blocked")
	if err != nil {
		t.Fatalf("redelivered resolve: %v", err)
	}
	if again.Status != enums.PayoutStatusFailed {
		t.Fatalf("expected failed, got %s", again.Status)
	}
	env.assertBalances(t, wallet.ID, 0, 5000)
}

// The provider can settle instantly, landing the success webhook while the
// Payout call is still on the wire. The settled state must stick and the
// debit must end up posted even though the request path never finalized.
func TestWebhookDuringProviderCallSticks(t *testing.T) {
	t.Parallel()

	provider := &stubProvider{
		payoutTx: &mycoolpay.Transaction{TransactionRef: "CP-9", Status: mycoolpay.StatusPending},
	}
	env := newTestEnv(t, provider)
	wallet := env.fundedWallet(t, 5000)

	provider.onPayout = func(ctx context.Context, params mycoolpay.PayoutParams) {
		resolved, err := env.svc.ResolveByAppRef(ctx, params.AppTransactionRef, mycoolpay.StatusSuccess, "")
		if err != nil {
			t.Fatalf("resolve during provider call: %v", err)
		}
		if resolved.Status != enums.PayoutStatusSuccess {
			t.Fatalf("expected success from webhook, got %s", resolved.Status)
		}
	}

	payout, err := env.svc.RequestPayout(context.Background(), RequestPayoutInput{
		OwnerType:        enums.WalletOwnerVendor,
		OwnerID:          wallet.OwnerID,
		Amount:           2000,
		Method:           enums.OperatorMTN,
		DestinationPhone: "+237650000001",
	})
	if err != nil {
		t.Fatalf("request payout: %v", err)
	}
	if payout.Status != enums.PayoutStatusSuccess {
		t.Fatalf("settled payout must not regress, got %s", payout.Status)
	}
	env.assertBalances(t, wallet.ID, 0, 3000)

	// The webhook posted the still pending debit itself.
	var debit models.WalletTransaction
	if err := env.db.First(&debit, "id = ?", payout.TransactionID).Error; err != nil {
		t.Fatalf("load debit: %v", err)
	}
	if debit.Status != enums.WalletTxStatusPosted {
		t.Fatalf("expected posted debit, got %s", debit.Status)
	}
}

func TestPollStatusSuccess(t *testing.T) {
	t.Parallel()

	provider := &stubProvider{
		payoutTx: &mycoolpay.Transaction{TransactionRef: "CP-3", Status: mycoolpay.StatusPending},
		statusTx: &mycoolpay.Transaction{TransactionRef: "CP-3", Status: mycoolpay.StatusSuccess},
	}
	env := newTestEnv(t, provider)
	wallet := env.fundedWallet(t, 5000)

	payout, err := env.svc.RequestPayout(context.Background(), RequestPayoutInput{
		OwnerType:        enums.WalletOwnerVendor,
		OwnerID:          wallet.OwnerID,
		Amount:           2000,
		Method:           enums.OperatorMTN,
		DestinationPhone: "+237650000001",
	})
	if err != nil {
		t.Fatalf("request payout: %v", err)
	}

	polled, err := env.svc.PollStatus(context.Background(), payout.ID)
	if err != nil {
		t.Fatalf("poll status: %v", err)
	}
	if polled.Status != enums.PayoutStatusSuccess {
		t.Fatalf("expected success, got %s", polled.Status)
	}
	// Funds left the wallet for good.
	env.assertBalances(t, wallet.ID, 0, 3000)
}

type testEnv struct {
	svc    Service
	ledger wallets.Service
	db     *gorm.DB
}

type testTxRunner struct {
	db *gorm.DB
}

func (r testTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.Transaction(fn)
}

func newTestEnv(t *testing.T, provider *stubProvider) *testEnv {
	t.Helper()
	gdb := newTestDB(t)
	runner := testTxRunner{db: gdb}

	ledgerSvc, err := wallets.NewService(wallets.NewRepository(gdb), runner)
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	svc, err := NewService(NewRepository(gdb), runner, ledgerSvc, provider, config.PayoutConfig{
		MinAmount: 500,
		MaxAmount: 500000,
		Cooldown:  30 * time.Minute,
	}, logger.New(logger.Options{ServiceName: "test"}))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return &testEnv{svc: svc, ledger: ledgerSvc, db: gdb}
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:payouts_" + uuid.NewString() + "?mode=memory&cache=shared"
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
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
		`CREATE TABLE payouts (
			id text PRIMARY KEY,
			wallet_id text NOT NULL,
			owner_type text NOT NULL,
			owner_id text NOT NULL,
			amount integer NOT NULL,
			status text NOT NULL DEFAULT 'requested',
			method text NOT NULL,
			destination_phone text NOT NULL,
			app_transaction_ref text NOT NULL UNIQUE,
			provider_ref text,
			failure_reason text,
			transaction_id text NOT NULL,
			created_at datetime,
			updated_at datetime
		)`,
	}
	for _, stmt := range stmts {
		if err := gdb.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return gdb
}

func (e *testEnv) fundedWallet(t *testing.T, amount int64) *models.Wallet {
	t.Helper()
	ctx := context.Background()
	wallet, err := e.ledger.GetOrCreate(ctx, enums.WalletOwnerVendor, uuid.New())
	if err != nil {
		t.Fatalf("create wallet: %v", err)
	}
	orderID := uuid.New()
	if _, err := e.ledger.CreditPending(ctx, nil, wallets.EntryInput{
		WalletID: wallet.ID, Amount: amount,
		ReferenceType: enums.ReferenceTypeOrder, ReferenceID: orderID,
	}); err != nil {
		t.Fatalf("credit pending: %v", err)
	}
	if _, err := e.ledger.CreditAvailable(ctx, nil, wallets.EntryInput{
		WalletID: wallet.ID, Amount: amount,
		ReferenceType: enums.ReferenceTypeOrder, ReferenceID: orderID,
	}); err != nil {
		t.Fatalf("credit available: %v", err)
	}
	return wallet
}

func (e *testEnv) assertBalances(t *testing.T, walletID uuid.UUID, pending, available int64) {
	t.Helper()
	var wallet models.Wallet
	if err := e.db.First(&wallet, "id = ?", walletID).Error; err != nil {
		t.Fatalf("load wallet: %v", err)
	}
	if wallet.PendingBalance != pending || wallet.AvailableBalance != available {
		t.Fatalf("balances = (%d, %d), want (%d, %d)",
			wallet.PendingBalance, wallet.AvailableBalance, pending, available)
	}
}
