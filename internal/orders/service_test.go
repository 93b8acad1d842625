package orders

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/jemo-app/jemo-backend/internal/delivery"
	"github.com/jemo-app/jemo-backend/internal/fees"
	product "github.com/jemo-app/jemo-backend/internal/products"
	"github.com/jemo-app/jemo-backend/internal/wallets"
	"github.com/jemo-app/jemo-backend/pkg/config"
	"github.com/jemo-app/jemo-backend/pkg/db/models"
	"github.com/jemo-app/jemo-backend/pkg/enums"
	pkgerrors "github.com/jemo-app/jemo-backend/pkg/errors"
	"github.com/jemo-app/jemo-backend/pkg/logger"
)

type stubIntents struct {
	intent *models.PaymentIntent
	used   map[uuid.UUID]uuid.UUID
}

func (s *stubIntents) GetValidIntentForOrder(ctx context.Context, userID, productID uuid.UUID, appRef string) (*models.PaymentIntent, error) {
	if s.intent == nil || s.intent.AppTransactionRef != appRef {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment intent not found")
	}
	if s.intent.UserID != userID || s.intent.ProductID != productID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "payment intent belongs to another purchase")
	}
	return s.intent, nil
}

func (s *stubIntents) MarkUsed(ctx context.Context, tx *gorm.DB, intentID, orderID uuid.UUID) error {
	if existing, ok := s.used[intentID]; ok && existing != orderID {
		return pkgerrors.New(pkgerrors.CodeConflict, "payment intent already used")
	}
	s.used[intentID] = orderID
	return nil
}

func TestCreateComputesTotals(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	customerID := uuid.New()
	env.seedAgency(t, "Rapid", []string{"Douala"}, 1500, 3000)
	discount := int64(4000)
	p := env.seedProduct(t, productSpec{
		price: 5000, discount: &discount, stock: 5, city: "Douala",
		deliveryType: enums.DeliveryMethodJemoRider,
		policy:       enums.PaymentPolicyMixedCityRule,
	})

	order, err := env.orders.Create(context.Background(), customerID, CreateOrderInput{
		Items:          []OrderItemInput{{ProductID: p.ID, Quantity: 2}},
		DeliveryMethod: enums.DeliveryMethodJemoRider,
		DeliveryCity:   "Douala",
		PaymentMethod:  enums.PaymentMethodCashOnDelivery,
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if order.SubtotalAmount != 8000 || order.DeliveryFee != 1500 || order.TotalAmount != 9500 {
		t.Fatalf("totals = (%d, %d, %d), want (8000, 1500, 9500)",
			order.SubtotalAmount, order.DeliveryFee, order.TotalAmount)
	}
	if order.Status != enums.OrderStatusPending {
		t.Fatalf("expected pending, got %s", order.Status)
	}

	var stored models.Product
	if err := env.db.First(&stored, "id = ?", p.ID).Error; err != nil {
		t.Fatalf("load product: %v", err)
	}
	if stored.Stock != 3 {
		t.Fatalf("expected stock 3, got %d", stored.Stock)
	}

	// COD orders credit nothing at creation.
	var ledgerRows int64
	if err := env.db.Model(&models.WalletTransaction{}).Count(&ledgerRows).Error; err != nil {
		t.Fatalf("count ledger rows: %v", err)
	}
	if ledgerRows != 0 {
		t.Fatalf("expected empty ledger, got %d rows", ledgerRows)
	}
}

func TestCreateOnlineCreditsVendorPending(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	customerID := uuid.New()
	env.seedAgency(t, "Rapid", []string{"Douala"}, 1500, 3000)
	p := env.seedProduct(t, productSpec{
		price: 4000, stock: 5, city: "Douala",
		deliveryType: enums.DeliveryMethodJemoRider,
		policy:       enums.PaymentPolicyMixedCityRule,
		mtn:          true,
	})
	intent := env.stubIntent(customerID, p.ID, 11000, "JMO-PI-abc")

	order, err := env.orders.Create(context.Background(), customerID, CreateOrderInput{
		Items:            []OrderItemInput{{ProductID: p.ID, Quantity: 2}},
		DeliveryMethod:   enums.DeliveryMethodJemoRider,
		DeliveryCity:     "Yaoundé",
		PaymentMethod:    enums.PaymentMethodMTNMomo,
		PaymentIntentRef: "JMO-PI-abc",
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if order.PaymentIntentID == nil || *order.PaymentIntentID != intent.ID {
		t.Fatalf("intent not recorded on order: %+v", order)
	}
	if env.intents.used[intent.ID] != order.ID {
		t.Fatalf("intent not marked used")
	}

	vendorWallet, err := env.ledger.GetOrCreate(context.Background(), enums.WalletOwnerVendor, p.VendorID)
	if err != nil {
		t.Fatalf("vendor wallet: %v", err)
	}
	env.assertBalances(t, vendorWallet.ID, 8000, 0)
}

func TestCreateOnlineAmountMismatch(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	customerID := uuid.New()
	env.seedAgency(t, "Rapid", []string{"Douala"}, 1500, 3000)
	p := env.seedProduct(t, productSpec{
		price: 4000, stock: 5, city: "Douala",
		deliveryType: enums.DeliveryMethodJemoRider,
		policy:       enums.PaymentPolicyMixedCityRule,
		mtn:          true,
	})
	env.stubIntent(customerID, p.ID, 9999, "JMO-PI-short")

	_, err := env.orders.Create(context.Background(), customerID, CreateOrderInput{
		Items:            []OrderItemInput{{ProductID: p.ID, Quantity: 2}},
		DeliveryMethod:   enums.DeliveryMethodJemoRider,
		DeliveryCity:     "Yaoundé",
		PaymentMethod:    enums.PaymentMethodMTNMomo,
		PaymentIntentRef: "JMO-PI-short",
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error on amount mismatch, got %v", err)
	}
}

func TestCreatePaymentPolicyRules(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	customerID := uuid.New()
	env.seedAgency(t, "Rapid", []string{"Douala"}, 1500, 3000)

	pod := env.seedProduct(t, productSpec{
		price: 4000, stock: 5, city: "Douala",
		deliveryType: enums.DeliveryMethodJemoRider,
		policy:       enums.PaymentPolicyPODOnly, mtn: true,
	})
	onlineOnly := env.seedProduct(t, productSpec{
		price: 4000, stock: 5, city: "Douala",
		deliveryType: enums.DeliveryMethodJemoRider,
		policy:       enums.PaymentPolicyOnlineOnly, // no operators enabled
	})
	mixed := env.seedProduct(t, productSpec{
		price: 4000, stock: 5, city: "Douala",
		deliveryType: enums.DeliveryMethodJemoRider,
		policy:       enums.PaymentPolicyMixedCityRule, mtn: true,
	})

	cases := []struct {
		name  string
		input CreateOrderInput
	}{
		{"pod only rejects online", CreateOrderInput{
			Items:            []OrderItemInput{{ProductID: pod.ID, Quantity: 1}},
			DeliveryMethod:   enums.DeliveryMethodJemoRider,
			DeliveryCity:     "Douala",
			PaymentMethod:    enums.PaymentMethodMTNMomo,
			PaymentIntentRef: "JMO-PI-x",
		}},
		{"online only rejects cash", CreateOrderInput{
			Items:          []OrderItemInput{{ProductID: onlineOnly.ID, Quantity: 1}},
			DeliveryMethod: enums.DeliveryMethodJemoRider,
			DeliveryCity:   "Douala",
			PaymentMethod:  enums.PaymentMethodCashOnDelivery,
		}},
		{"online only requires enabled operator", CreateOrderInput{
			Items:            []OrderItemInput{{ProductID: onlineOnly.ID, Quantity: 1}},
			DeliveryMethod:   enums.DeliveryMethodJemoRider,
			DeliveryCity:     "Douala",
			PaymentMethod:    enums.PaymentMethodOrangeMoney,
			PaymentIntentRef: "JMO-PI-x",
		}},
		{"mixed requires cash in product city", CreateOrderInput{
			Items:            []OrderItemInput{{ProductID: mixed.ID, Quantity: 1}},
			DeliveryMethod:   enums.DeliveryMethodJemoRider,
			DeliveryCity:     "douala",
			PaymentMethod:    enums.PaymentMethodMTNMomo,
			PaymentIntentRef: "JMO-PI-x",
		}},
		{"mixed requires online elsewhere", CreateOrderInput{
			Items:          []OrderItemInput{{ProductID: mixed.ID, Quantity: 1}},
			DeliveryMethod: enums.DeliveryMethodJemoRider,
			DeliveryCity:   "Yaoundé",
			PaymentMethod:  enums.PaymentMethodCashOnDelivery,
		}},
	}
	for _, tc := range cases {
		if _, err := env.orders.Create(context.Background(), customerID, tc.input); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
			t.Fatalf("%s: expected validation error, got %v", tc.name, err)
		}
	}
}

func TestCreateInsufficientStock(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.seedAgency(t, "Rapid", []string{"Douala"}, 1500, 3000)
	p := env.seedProduct(t, productSpec{
		price: 4000, stock: 1, city: "Douala",
		deliveryType: enums.DeliveryMethodJemoRider,
		policy:       enums.PaymentPolicyMixedCityRule,
	})

	_, err := env.orders.Create(context.Background(), uuid.New(), CreateOrderInput{
		Items:          []OrderItemInput{{ProductID: p.ID, Quantity: 2}},
		DeliveryMethod: enums.DeliveryMethodJemoRider,
		DeliveryCity:   "Douala",
		PaymentMethod:  enums.PaymentMethodCashOnDelivery,
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for stock shortfall, got %v", err)
	}
}

func TestConfirmCreatesDeliveryJob(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	customerID := uuid.New()
	env.seedAgency(t, "Rapid", []string{"Douala"}, 1500, 3000)
	p := env.seedProduct(t, productSpec{
		price: 4000, stock: 5, city: "Douala",
		deliveryType: enums.DeliveryMethodJemoRider,
		policy:       enums.PaymentPolicyMixedCityRule,
	})
	order := env.createOrder(t, customerID, p, enums.PaymentMethodCashOnDelivery, "Douala", "")

	if _, err := env.orders.Confirm(context.Background(), uuid.New(), order.ID); !pkgerrors.HasCode(err, pkgerrors.CodeForbidden) {
		t.Fatalf("expected forbidden for foreign vendor, got %v", err)
	}

	confirmed, err := env.orders.Confirm(context.Background(), p.VendorID, order.ID)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if confirmed.Status != enums.OrderStatusConfirmed {
		t.Fatalf("expected confirmed, got %s", confirmed.Status)
	}

	job, err := env.delivery.FindByOrder(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("find job: %v", err)
	}
	if job.Status != enums.DeliveryJobStatusOpen || job.PickupCity != "Douala" || job.Fee != order.DeliveryFee {
		t.Fatalf("bad delivery job: %+v", job)
	}

	if _, err := env.orders.Confirm(context.Background(), p.VendorID, order.ID); !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict on double confirm, got %v", err)
	}
}

func TestOnlineRiderOrderLifecycle(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	customerID := uuid.New()
	agency := env.seedAgency(t, "Rapid", []string{"Douala"}, 1500, 3000)
	p := env.seedProduct(t, productSpec{
		price: 4000, stock: 5, city: "Douala",
		deliveryType: enums.DeliveryMethodJemoRider,
		policy:       enums.PaymentPolicyMixedCityRule,
		mtn:          true,
	})
	env.stubIntent(customerID, p.ID, 11000, "JMO-PI-flow")
	ctx := context.Background()

	order := env.createOrder(t, customerID, p, enums.PaymentMethodMTNMomo, "Yaoundé", "JMO-PI-flow")
	if _, err := env.orders.Confirm(ctx, p.VendorID, order.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	job, err := env.delivery.FindByOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("find job: %v", err)
	}
	if _, err := env.delivery.Accept(ctx, agency.ID, job.ID); err != nil {
		t.Fatalf("accept: %v", err)
	}

	// Acceptance moved the order to transit and put the agency's fee share
	// on hold.
	moved, err := env.orders.Get(ctx, order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if moved.Status != enums.OrderStatusInTransit {
		t.Fatalf("expected in transit, got %s", moved.Status)
	}
	vendorWallet, _ := env.ledger.GetOrCreate(ctx, enums.WalletOwnerVendor, p.VendorID)
	agencyWallet, _ := env.ledger.GetOrCreate(ctx, enums.WalletOwnerAgency, agency.ID)
	env.assertBalances(t, vendorWallet.ID, 8000, 0)
	env.assertBalances(t, agencyWallet.ID, 3000, 0)

	if _, err := env.orders.MarkReceived(ctx, customerID, order.ID); !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict before delivery, got %v", err)
	}

	if _, err := env.delivery.MarkDelivered(ctx, agency.ID, job.ID); err != nil {
		t.Fatalf("mark delivered: %v", err)
	}

	result, err := env.orders.MarkReceived(ctx, customerID, order.ID)
	if err != nil {
		t.Fatalf("mark received: %v", err)
	}
	if result.AlreadyProcessed {
		t.Fatal("first receipt must not report already processed")
	}
	if result.Order.Status != enums.OrderStatusCompleted || result.Order.FundsReleasedAt == nil {
		t.Fatalf("bad completed order: %+v", result.Order)
	}
	env.assertBalances(t, vendorWallet.ID, 0, 8000)
	env.assertBalances(t, agencyWallet.ID, 0, 3000)

	// Retry is a cached no-op; balances stay put.
	again, err := env.orders.MarkReceived(ctx, customerID, order.ID)
	if err != nil {
		t.Fatalf("second receipt: %v", err)
	}
	if !again.AlreadyProcessed {
		t.Fatal("expected already processed on retry")
	}
	env.assertBalances(t, vendorWallet.ID, 0, 8000)
	env.assertBalances(t, agencyWallet.ID, 0, 3000)
}

func TestMarkReceivedCashVendorDirect(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	customerID := uuid.New()
	p := env.seedProduct(t, productSpec{
		price: 2500, stock: 5, city: "Douala",
		deliveryType: enums.DeliveryMethodVendor,
		policy:       enums.PaymentPolicyPODOnly,
		feeMode:      enums.VendorFeeModeFlat, flatFee: 500,
	})
	ctx := context.Background()

	order := env.createOrder(t, customerID, p, enums.PaymentMethodCashOnDelivery, "Douala", "")
	if order.DeliveryFee != 500 {
		t.Fatalf("expected flat fee 500, got %d", order.DeliveryFee)
	}
	if _, err := env.orders.Confirm(ctx, p.VendorID, order.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	// Vendor delivered orders may be received straight from CONFIRMED.
	result, err := env.orders.MarkReceived(ctx, customerID, order.ID)
	if err != nil {
		t.Fatalf("mark received: %v", err)
	}
	if result.Order.Status != enums.OrderStatusCompleted {
		t.Fatalf("expected completed, got %s", result.Order.Status)
	}

	vendorWallet, _ := env.ledger.GetOrCreate(ctx, enums.WalletOwnerVendor, p.VendorID)
	env.assertBalances(t, vendorWallet.ID, 0, 2500)
}

// A duplicate receipt can slip past the COMPLETED short-circuit and lose the
// ledger's posted-reference race. The conflict means a rival released the
// funds, so the caller gets the replay answer, not an error.
func TestMarkReceivedLedgerConflictIsReplay(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	customerID := uuid.New()
	p := env.seedProduct(t, productSpec{
		price: 4000, stock: 5, city: "Douala",
		deliveryType: enums.DeliveryMethodVendor,
		policy:       enums.PaymentPolicyOnlineOnly, mtn: true,
	})
	env.stubIntent(customerID, p.ID, 8000, "JMO-PI-dup")
	ctx := context.Background()

	order := env.createOrder(t, customerID, p, enums.PaymentMethodMTNMomo, "Douala", "JMO-PI-dup")
	if _, err := env.orders.Confirm(ctx, p.VendorID, order.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	// Same database, but the release hits a ledger row the rival already
	// posted.
	racer, err := NewService(NewRepository(env.db), testTxRunner{db: env.db}, env.catalog,
		&contestedLedger{Service: env.ledger}, env.delivery, env.intents,
		fees.NewPolicy(config.FeesConfig{}), logger.New(logger.Options{ServiceName: "test"}))
	if err != nil {
		t.Fatalf("new orders: %v", err)
	}

	result, err := racer.MarkReceived(ctx, customerID, order.ID)
	if err != nil {
		t.Fatalf("mark received: %v", err)
	}
	if !result.AlreadyProcessed {
		t.Fatal("expected replay answer when the release lost the ledger race")
	}
}

// contestedLedger makes every release lose the posted-reference race.
type contestedLedger struct {
	wallets.Service
}

func (l *contestedLedger) CreditAvailable(ctx context.Context, tx *gorm.DB, input wallets.EntryInput) (*wallets.ReleaseResult, error) {
	return nil, pkgerrors.Newf(pkgerrors.CodeConflict,
		"ledger entry already posted for %s %s %s", input.ReferenceType, input.ReferenceID, enums.WalletTxCreditAvailable)
}

func TestCancelRestoresStockAndPending(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	customerID := uuid.New()
	p := env.seedProduct(t, productSpec{
		price: 4000, stock: 5, city: "Douala",
		deliveryType: enums.DeliveryMethodVendor,
		policy:       enums.PaymentPolicyOnlineOnly, mtn: true,
		feeMode: enums.VendorFeeModeFree,
	})
	env.stubIntent(customerID, p.ID, 8000, "JMO-PI-cxl")
	ctx := context.Background()

	order := env.createOrder(t, customerID, p, enums.PaymentMethodMTNMomo, "Yaoundé", "JMO-PI-cxl")
	vendorWallet, _ := env.ledger.GetOrCreate(ctx, enums.WalletOwnerVendor, p.VendorID)
	env.assertBalances(t, vendorWallet.ID, 8000, 0)

	if _, err := env.orders.Cancel(ctx, enums.ActorTypeAgency, uuid.New(), order.ID); !pkgerrors.HasCode(err, pkgerrors.CodeForbidden) {
		t.Fatalf("expected forbidden for agency actor, got %v", err)
	}

	cancelled, err := env.orders.Cancel(ctx, enums.ActorTypeCustomer, customerID, order.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != enums.OrderStatusCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.Status)
	}
	env.assertBalances(t, vendorWallet.ID, 0, 0)

	var stored models.Product
	if err := env.db.First(&stored, "id = ?", p.ID).Error; err != nil {
		t.Fatalf("load product: %v", err)
	}
	if stored.Stock != 5 {
		t.Fatalf("expected stock restored to 5, got %d", stored.Stock)
	}

	if _, err := env.orders.Cancel(ctx, enums.ActorTypeCustomer, customerID, order.ID); !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict on double cancel, got %v", err)
	}
}

type productSpec struct {
	price        int64
	discount     *int64
	stock        int
	city         string
	deliveryType enums.DeliveryMethod
	policy       enums.PaymentPolicy
	mtn          bool
	orange       bool
	feeMode      enums.VendorFeeMode
	flatFee      int64
}

type testEnv struct {
	db       *gorm.DB
	orders   Service
	delivery delivery.Service
	ledger   wallets.Service
	catalog  product.Service
	intents  *stubIntents
}

type testTxRunner struct {
	db *gorm.DB
}

func (r testTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.Transaction(fn)
}

// orderFlowRef breaks the construction cycle between the delivery and order
// services.
type orderFlowRef struct {
	svc Service
}

func (r *orderFlowRef) MarkOrderInTransit(ctx context.Context, tx *gorm.DB, orderID, agencyID uuid.UUID) error {
	return r.svc.MarkOrderInTransit(ctx, tx, orderID, agencyID)
}

func (r *orderFlowRef) MarkOrderDelivered(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error {
	return r.svc.MarkOrderDelivered(ctx, tx, orderID)
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gdb := newTestDB(t)
	runner := testTxRunner{db: gdb}
	logg := logger.New(logger.Options{ServiceName: "test"})

	ledgerSvc, err := wallets.NewService(wallets.NewRepository(gdb), runner)
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	catalogSvc, err := product.NewService(product.NewRepository(gdb))
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}
	flowRef := &orderFlowRef{}
	deliverySvc, err := delivery.NewService(delivery.NewRepository(gdb), runner, flowRef, logg)
	if err != nil {
		t.Fatalf("new delivery: %v", err)
	}
	intentsStub := &stubIntents{used: map[uuid.UUID]uuid.UUID{}}
	policy := fees.NewPolicy(config.FeesConfig{})

	ordersSvc, err := NewService(NewRepository(gdb), runner, catalogSvc, ledgerSvc, deliverySvc, intentsStub, policy, logg)
	if err != nil {
		t.Fatalf("new orders: %v", err)
	}
	flowRef.svc = ordersSvc

	return &testEnv{
		db:       gdb,
		orders:   ordersSvc,
		delivery: deliverySvc,
		ledger:   ledgerSvc,
		catalog:  catalogSvc,
		intents:  intentsStub,
	}
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:orders_" + uuid.NewString() + "?mode=memory&cache=shared"
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	stmts := []string{
		`CREATE TABLE products (
			id text PRIMARY KEY,
			vendor_id text NOT NULL,
			name text NOT NULL,
			status text NOT NULL DEFAULT 'pending_review',
			price integer NOT NULL,
			discount_price integer,
			stock integer NOT NULL DEFAULT 0,
			city text NOT NULL,
			delivery_type text NOT NULL,
			payment_policy text NOT NULL,
			mtn_enabled integer NOT NULL DEFAULT 0,
			orange_enabled integer NOT NULL DEFAULT 0,
			vendor_fee_mode text NOT NULL DEFAULT 'free',
			vendor_flat_fee integer NOT NULL DEFAULT 0,
			vendor_fee_same_city integer NOT NULL DEFAULT 0,
			vendor_fee_other_city integer NOT NULL DEFAULT 0,
			created_at datetime,
			updated_at datetime
		)`,
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
		`CREATE TABLE delivery_agencies (
			id text PRIMARY KEY,
			name text NOT NULL,
			active integer NOT NULL DEFAULT 1,
			cities_covered text,
			fee_same_city integer NOT NULL,
			fee_other_city integer NOT NULL,
			phone text,
			created_at datetime,
			updated_at datetime
		)`,
		`CREATE TABLE delivery_jobs (
			id text PRIMARY KEY,
			order_id text NOT NULL UNIQUE,
			status text NOT NULL DEFAULT 'open',
			agency_id text,
			pickup_city text NOT NULL,
			dropoff_city text NOT NULL,
			fee integer NOT NULL,
			accepted_at datetime,
			delivered_at datetime,
			created_at datetime,
			updated_at datetime
		)`,
		`CREATE TABLE delivery_job_logs (
			id text PRIMARY KEY,
			job_id text NOT NULL,
			from_status text NOT NULL,
			to_status text NOT NULL,
			actor_type text NOT NULL,
			actor_id text NOT NULL,
			note text,
			created_at datetime
		)`,
		`CREATE TABLE orders (
			id text PRIMARY KEY,
			customer_id text NOT NULL,
			vendor_id text NOT NULL,
			status text NOT NULL DEFAULT 'pending',
			total_amount integer NOT NULL,
			delivery_fee integer NOT NULL DEFAULT 0,
			delivery_method text NOT NULL,
			product_city text NOT NULL,
			delivery_city text NOT NULL,
			delivery_address text,
			payment_method text NOT NULL,
			payment_intent_id text,
			subtotal_amount integer NOT NULL,
			commission_amount integer NOT NULL DEFAULT 0,
			vendor_payout_amount integer NOT NULL DEFAULT 0,
			rider_payout_amount integer NOT NULL DEFAULT 0,
			confirmed_at datetime,
			in_transit_at datetime,
			delivered_at datetime,
			completed_at datetime,
			cancelled_at datetime,
			funds_released_at datetime,
			created_at datetime,
			updated_at datetime
		)`,
		`CREATE TABLE order_items (
			id text PRIMARY KEY,
			order_id text NOT NULL,
			product_id text NOT NULL,
			quantity integer NOT NULL,
			unit_price integer NOT NULL,
			created_at datetime
		)`,
		`CREATE TABLE payments (
			id text PRIMARY KEY,
			order_id text NOT NULL UNIQUE,
			method text NOT NULL,
			amount integer NOT NULL,
			payment_intent_id text,
			created_at datetime
		)`,
	}
	for _, stmt := range stmts {
		if err := gdb.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return gdb
}

func (e *testEnv) seedProduct(t *testing.T, spec productSpec) *models.Product {
	t.Helper()
	feeMode := spec.feeMode
	if feeMode == "" {
		feeMode = enums.VendorFeeModeFree
	}
	created, err := e.catalog.Create(context.Background(), uuid.New(), product.CreateProductInput{
		Name:          "Solar Lamp",
		Price:         spec.price,
		DiscountPrice: spec.discount,
		Stock:         spec.stock,
		City:          spec.city,
		DeliveryType:  spec.deliveryType,
		PaymentPolicy: spec.policy,
		MTNEnabled:    spec.mtn,
		OrangeEnabled: spec.orange,
		VendorFeeMode: feeMode,
		VendorFlatFee: spec.flatFee,
	})
	if err != nil {
		t.Fatalf("seed product: %v", err)
	}
	if _, err := e.catalog.SetStatus(context.Background(), created.ID, enums.ProductStatusApproved); err != nil {
		t.Fatalf("approve product: %v", err)
	}
	created.Status = enums.ProductStatusApproved
	return created
}

func (e *testEnv) seedAgency(t *testing.T, name string, covered []string, sameCity, otherCity int64) *models.DeliveryAgency {
	t.Helper()
	agency := &models.DeliveryAgency{
		Name:          name,
		Active:        true,
		CitiesCovered: covered,
		FeeSameCity:   sameCity,
		FeeOtherCity:  otherCity,
	}
	if err := e.db.Create(agency).Error; err != nil {
		t.Fatalf("seed agency: %v", err)
	}
	return agency
}

func (e *testEnv) stubIntent(userID, productID uuid.UUID, total int64, ref string) *models.PaymentIntent {
	intent := &models.PaymentIntent{
		ID:                uuid.New(),
		UserID:            userID,
		ProductID:         productID,
		TotalAmount:       total,
		Status:            enums.PaymentIntentStatusSuccess,
		AppTransactionRef: ref,
	}
	e.intents.intent = intent
	return intent
}

func (e *testEnv) createOrder(t *testing.T, customerID uuid.UUID, p *models.Product, method enums.PaymentMethod, deliveryCity, intentRef string) *models.Order {
	t.Helper()
	order, err := e.orders.Create(context.Background(), customerID, CreateOrderInput{
		Items:            []OrderItemInput{{ProductID: p.ID, Quantity: 2}},
		DeliveryMethod:   p.DeliveryType,
		DeliveryCity:     deliveryCity,
		PaymentMethod:    method,
		PaymentIntentRef: intentRef,
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	return order
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
