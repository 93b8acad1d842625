package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jemo-app/jemo-backend/internal/delivery"
	"github.com/jemo-app/jemo-backend/internal/fees"
	"github.com/jemo-app/jemo-backend/internal/wallets"
	"github.com/jemo-app/jemo-backend/pkg/cities"
	"github.com/jemo-app/jemo-backend/pkg/db/models"
	"github.com/jemo-app/jemo-backend/pkg/enums"
	pkgerrors "github.com/jemo-app/jemo-backend/pkg/errors"
	"github.com/jemo-app/jemo-backend/pkg/logger"
	"github.com/jemo-app/jemo-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type catalog interface {
	FindForOrder(ctx context.Context, ids []uuid.UUID) ([]models.Product, error)
	DecrementStock(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) (bool, error)
	RestoreStock(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error
}

type ledger interface {
	GetOrCreate(ctx context.Context, ownerType enums.WalletOwnerType, ownerID uuid.UUID) (*models.Wallet, error)
	CreditPending(ctx context.Context, tx *gorm.DB, input wallets.EntryInput) (*models.WalletTransaction, error)
	CreditAvailable(ctx context.Context, tx *gorm.DB, input wallets.EntryInput) (*wallets.ReleaseResult, error)
	CreditAvailableForOrder(ctx context.Context, tx *gorm.DB, input wallets.EntryInput) (*wallets.ReleaseResult, error)
	ReversePending(ctx context.Context, tx *gorm.DB, walletID uuid.UUID, refType enums.ReferenceType, refID uuid.UUID, note string) (*models.WalletTransaction, error)
	FindPostedEntry(ctx context.Context, walletID uuid.UUID, refType enums.ReferenceType, refID uuid.UUID, entryType enums.WalletTransactionType) (*models.WalletTransaction, error)
}

type deliveries interface {
	Quote(ctx context.Context, pickupCity, dropoffCity string) (*delivery.QuoteResult, error)
	CreateJob(ctx context.Context, tx *gorm.DB, input delivery.CreateJobInput) (*models.DeliveryJob, error)
	CancelForOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, actorType enums.ActorType, actorID uuid.UUID) error
	FindByOrder(ctx context.Context, orderID uuid.UUID) (*models.DeliveryJob, error)
}

type intents interface {
	GetValidIntentForOrder(ctx context.Context, userID, productID uuid.UUID, appRef string) (*models.PaymentIntent, error)
	MarkUsed(ctx context.Context, tx *gorm.DB, intentID, orderID uuid.UUID) error
}

// Service drives the order lifecycle. Transitions go through one explicit
// state machine; every money movement delegates to the wallet ledger inside
// the same transaction as the status change it belongs to.
type Service interface {
	Create(ctx context.Context, customerID uuid.UUID, input CreateOrderInput) (*models.Order, error)
	Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	ListByCustomer(ctx context.Context, customerID uuid.UUID, params pagination.Params) ([]models.Order, string, error)
	ListByVendor(ctx context.Context, vendorID uuid.UUID, params pagination.Params) ([]models.Order, string, error)

	Confirm(ctx context.Context, vendorID, orderID uuid.UUID) (*models.Order, error)
	Cancel(ctx context.Context, actorType enums.ActorType, actorID, orderID uuid.UUID) (*models.Order, error)
	MarkInTransit(ctx context.Context, vendorID, orderID uuid.UUID) (*models.Order, error)
	MarkReceived(ctx context.Context, customerID, orderID uuid.UUID) (*ReceiveResult, error)

	MarkOrderInTransit(ctx context.Context, tx *gorm.DB, orderID, agencyID uuid.UUID) error
	MarkOrderDelivered(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error
}

// CreateOrderInput carries a customer's order request. Amounts are never
// taken from here; the server recomputes everything.
type CreateOrderInput struct {
	Items            []OrderItemInput
	DeliveryMethod   enums.DeliveryMethod
	DeliveryCity     string
	DeliveryAddress  string
	PaymentMethod    enums.PaymentMethod
	PaymentIntentRef string
}

// OrderItemInput is one requested line.
type OrderItemInput struct {
	ProductID uuid.UUID
	Quantity  int
}

// ReceiveResult reports a fund release. AlreadyProcessed is true when the
// order was already COMPLETED; the release then did not run again.
type ReceiveResult struct {
	AlreadyProcessed bool
	Order            *models.Order
}

type service struct {
	repo       Repository
	tx         txRunner
	catalog    catalog
	ledger     ledger
	deliveries deliveries
	intents    intents
	fees       fees.Policy
	logger     *logger.Logger
	now        func() time.Time
}

// NewService wires the order lifecycle service.
func NewService(repo Repository, tx txRunner, catalog catalog, ledger ledger, deliveries deliveries, intents intents, policy fees.Policy, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("order repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if catalog == nil {
		return nil, fmt.Errorf("catalog required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("wallet ledger required")
	}
	if deliveries == nil {
		return nil, fmt.Errorf("delivery service required")
	}
	if intents == nil {
		return nil, fmt.Errorf("payment intent service required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:       repo,
		tx:         tx,
		catalog:    catalog,
		ledger:     ledger,
		deliveries: deliveries,
		intents:    intents,
		fees:       policy,
		logger:     logg,
		now:        time.Now,
	}, nil
}

// orderTransitions is the lifecycle state machine. COMPLETED from CONFIRMED
// and IN_TRANSIT covers vendor self-delivery, where the customer may confirm
// receipt before any transit bookkeeping.
var orderTransitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusPending:   {enums.OrderStatusConfirmed, enums.OrderStatusCancelled},
	enums.OrderStatusConfirmed: {enums.OrderStatusInTransit, enums.OrderStatusCompleted, enums.OrderStatusCancelled},
	enums.OrderStatusInTransit: {enums.OrderStatusDelivered, enums.OrderStatusCompleted},
	enums.OrderStatusDelivered: {enums.OrderStatusCompleted},
}

func canTransition(from, to enums.OrderStatus) bool {
	for _, allowed := range orderTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

func (s *service) Create(ctx context.Context, customerID uuid.UUID, input CreateOrderInput) (*models.Order, error) {
	if err := validateCreate(customerID, input); err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, 0, len(input.Items))
	qtyByProduct := make(map[uuid.UUID]int, len(input.Items))
	for _, item := range input.Items {
		if _, dup := qtyByProduct[item.ProductID]; dup {
			return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "product %s listed twice", item.ProductID)
		}
		ids = append(ids, item.ProductID)
		qtyByProduct[item.ProductID] = item.Quantity
	}

	products, err := s.catalog.FindForOrder(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]models.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	primary := byID[input.Items[0].ProductID]
	vendorID := primary.VendorID
	for _, p := range products {
		if p.VendorID != vendorID {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "all products must belong to one vendor")
		}
		if p.Status != enums.ProductStatusApproved {
			return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "product %q is not approved for sale", p.Name)
		}
		if p.DeliveryType != input.DeliveryMethod {
			return nil, pkgerrors.Newf(pkgerrors.CodeValidation,
				"product %q is delivered by %s", p.Name, p.DeliveryType)
		}
		if qty := qtyByProduct[p.ID]; p.Stock < qty {
			return nil, pkgerrors.Newf(pkgerrors.CodeValidation,
				"insufficient stock for %q: have %d, requested %d", p.Name, p.Stock, qty)
		}
		if err := validatePaymentPolicy(p, input.PaymentMethod, input.DeliveryCity); err != nil {
			return nil, err
		}
	}

	var subtotal int64
	items := make([]models.OrderItem, 0, len(input.Items))
	for _, line := range input.Items {
		p := byID[line.ProductID]
		unit := p.EffectiveUnitPrice()
		subtotal += unit * int64(line.Quantity)
		items = append(items, models.OrderItem{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			UnitPrice: unit,
		})
	}

	deliveryFee, err := s.deliveryFee(ctx, primary, input.DeliveryMethod, input.DeliveryCity)
	if err != nil {
		return nil, err
	}
	total := subtotal + deliveryFee

	var intent *models.PaymentIntent
	if input.PaymentMethod.IsOnline() {
		intent, err = s.intents.GetValidIntentForOrder(ctx, customerID, primary.ID, input.PaymentIntentRef)
		if err != nil {
			return nil, err
		}
		if intent.TotalAmount != total {
			return nil, pkgerrors.Newf(pkgerrors.CodeValidation,
				"payment intent captured %d but the order totals %d", intent.TotalAmount, total)
		}
	}

	order := &models.Order{
		ID:              uuid.New(),
		CustomerID:      customerID,
		VendorID:        vendorID,
		Status:          enums.OrderStatusPending,
		TotalAmount:     total,
		DeliveryFee:     deliveryFee,
		DeliveryMethod:  input.DeliveryMethod,
		ProductCity:     cities.Title(primary.City),
		DeliveryCity:    cities.Title(input.DeliveryCity),
		DeliveryAddress: input.DeliveryAddress,
		PaymentMethod:   input.PaymentMethod,
		SubtotalAmount:  subtotal,
		Items:           items,
	}
	if intent != nil {
		order.PaymentIntentID = &intent.ID
	}

	var vendorWallet *models.Wallet
	if intent != nil {
		vendorWallet, err = s.ledger.GetOrCreate(ctx, enums.WalletOwnerVendor, vendorID)
		if err != nil {
			return nil, err
		}
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		for _, line := range input.Items {
			applied, err := s.catalog.DecrementStock(ctx, tx, line.ProductID, line.Quantity)
			if err != nil {
				return err
			}
			if !applied {
				p := byID[line.ProductID]
				return pkgerrors.Newf(pkgerrors.CodeConflict, "product %q sold out", p.Name)
			}
		}

		if err := s.repo.WithTx(tx).Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}

		payment := &models.Payment{
			OrderID: order.ID,
			Method:  input.PaymentMethod,
			Amount:  total,
		}
		if intent != nil {
			payment.PaymentIntentID = &intent.ID
		}
		if err := s.repo.WithTx(tx).CreatePayment(ctx, payment); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record payment")
		}

		if intent == nil {
			// Cash on delivery: nothing is credited until receipt.
			return nil
		}
		if err := s.intents.MarkUsed(ctx, tx, intent.ID, order.ID); err != nil {
			return err
		}

		// The vendor's pending credit. For self-delivered orders the vendor is
		// also the delivery party, so the fee share lands in the same entry.
		vendorShare := s.fees.VendorNet(subtotal)
		if input.DeliveryMethod == enums.DeliveryMethodVendor {
			vendorShare += s.fees.RiderNet(deliveryFee)
		}
		_, err := s.ledger.CreditPending(ctx, tx, wallets.EntryInput{
			WalletID:      vendorWallet.ID,
			Amount:        vendorShare,
			ReferenceType: enums.ReferenceTypeOrder,
			ReferenceID:   order.ID,
			Note:          "online sale",
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	ctx = s.logger.WithOrderID(ctx, order.ID.String())
	s.logger.Info(ctx, fmt.Sprintf("order created, total %d", total))
	return order, nil
}

func (s *service) Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	return s.load(ctx, s.repo, orderID)
}

func (s *service) ListByCustomer(ctx context.Context, customerID uuid.UUID, params pagination.Params) ([]models.Order, string, error) {
	if customerID == uuid.Nil {
		return nil, "", pkgerrors.New(pkgerrors.CodeValidation, "customer id required")
	}
	return s.list(ctx, params, func(limit int, cursor *pagination.Cursor) ([]models.Order, error) {
		return s.repo.ListByCustomer(ctx, customerID, limit, cursor)
	})
}

func (s *service) ListByVendor(ctx context.Context, vendorID uuid.UUID, params pagination.Params) ([]models.Order, string, error) {
	if vendorID == uuid.Nil {
		return nil, "", pkgerrors.New(pkgerrors.CodeValidation, "vendor id required")
	}
	return s.list(ctx, params, func(limit int, cursor *pagination.Cursor) ([]models.Order, error) {
		return s.repo.ListByVendor(ctx, vendorID, limit, cursor)
	})
}

func (s *service) list(ctx context.Context, params pagination.Params, fetch func(limit int, cursor *pagination.Cursor) ([]models.Order, error)) ([]models.Order, string, error) {
	limit, cursor, err := params.Resolve()
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	orders, err := fetch(limit, cursor)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	next := ""
	if len(orders) == limit {
		orders = orders[:limit-1]
		last := orders[len(orders)-1]
		next = pagination.Encode(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return orders, next, nil
}

// Confirm moves a pending order to CONFIRMED. For agency-delivered orders
// this is also the moment the delivery job appears: dashboards never see
// unconfirmed work.
func (s *service) Confirm(ctx context.Context, vendorID, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.load(ctx, s.repo, orderID)
	if err != nil {
		return nil, err
	}
	if order.VendorID != vendorID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another vendor")
	}
	if !canTransition(order.Status, enums.OrderStatusConfirmed) {
		return nil, pkgerrors.Newf(pkgerrors.CodeStateConflict, "order is %s, cannot confirm", order.Status)
	}

	at := s.now().UTC()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		applied, err := s.repo.WithTx(tx).Transition(ctx, orderID, order.Status, enums.OrderStatusConfirmed, at)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "confirm order")
		}
		if !applied {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order is no longer pending")
		}
		if order.DeliveryMethod == enums.DeliveryMethodJemoRider {
			_, err := s.deliveries.CreateJob(ctx, tx, delivery.CreateJobInput{
				OrderID:     orderID,
				PickupCity:  order.ProductCity,
				DropoffCity: order.DeliveryCity,
				Fee:         order.DeliveryFee,
			})
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	order.Status = enums.OrderStatusConfirmed
	order.ConfirmedAt = &at
	return order, nil
}

func (s *service) Cancel(ctx context.Context, actorType enums.ActorType, actorID, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.load(ctx, s.repo, orderID)
	if err != nil {
		return nil, err
	}
	switch actorType {
	case enums.ActorTypeCustomer:
		if order.CustomerID != actorID {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another customer")
		}
	case enums.ActorTypeVendor:
		if order.VendorID != actorID {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another vendor")
		}
	default:
		return nil, pkgerrors.Newf(pkgerrors.CodeForbidden, "%s cannot cancel orders", actorType)
	}
	if !canTransition(order.Status, enums.OrderStatusCancelled) {
		return nil, pkgerrors.Newf(pkgerrors.CodeStateConflict, "order is %s, cannot cancel", order.Status)
	}

	vendorWallet, err := s.ledger.GetOrCreate(ctx, enums.WalletOwnerVendor, order.VendorID)
	if err != nil {
		return nil, err
	}

	at := s.now().UTC()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		applied, err := s.repo.WithTx(tx).Transition(ctx, orderID, order.Status, enums.OrderStatusCancelled, at)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel order")
		}
		if !applied {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order moved concurrently")
		}
		for _, item := range order.Items {
			if err := s.catalog.RestoreStock(ctx, tx, item.ProductID, item.Quantity); err != nil {
				return err
			}
		}
		if _, err := s.ledger.ReversePending(ctx, tx, vendorWallet.ID, enums.ReferenceTypeOrder, orderID, "order cancelled"); err != nil {
			return err
		}
		return s.deliveries.CancelForOrder(ctx, tx, orderID, actorType, actorID)
	})
	if err != nil {
		return nil, err
	}

	order.Status = enums.OrderStatusCancelled
	order.CancelledAt = &at
	s.logger.Warn(s.logger.WithOrderID(ctx, orderID.String()), "order cancelled")
	return order, nil
}

// MarkInTransit is the vendor self-delivery handover. Agency orders move to
// transit through job acceptance instead.
func (s *service) MarkInTransit(ctx context.Context, vendorID, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.load(ctx, s.repo, orderID)
	if err != nil {
		return nil, err
	}
	if order.VendorID != vendorID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another vendor")
	}
	if order.DeliveryMethod != enums.DeliveryMethodVendor {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "agency delivered orders move through job acceptance")
	}
	if !canTransition(order.Status, enums.OrderStatusInTransit) {
		return nil, pkgerrors.Newf(pkgerrors.CodeStateConflict, "order is %s, cannot move to transit", order.Status)
	}

	at := s.now().UTC()
	applied, err := s.repo.Transition(ctx, orderID, order.Status, enums.OrderStatusInTransit, at)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "move order to transit")
	}
	if !applied {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order moved concurrently")
	}
	order.Status = enums.OrderStatusInTransit
	order.InTransitAt = &at
	return order, nil
}

// MarkOrderInTransit runs inside a job acceptance transaction. For online
// orders this is also where the accepting agency's fee share goes pending:
// the delivery party is only known from this point on.
func (s *service) MarkOrderInTransit(ctx context.Context, tx *gorm.DB, orderID, agencyID uuid.UUID) error {
	order, err := s.load(ctx, s.repo.WithTx(tx), orderID)
	if err != nil {
		return err
	}
	if !canTransition(order.Status, enums.OrderStatusInTransit) {
		return pkgerrors.Newf(pkgerrors.CodeStateConflict, "order is %s, cannot move to transit", order.Status)
	}

	at := s.now().UTC()
	applied, err := s.repo.WithTx(tx).Transition(ctx, orderID, order.Status, enums.OrderStatusInTransit, at)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "move order to transit")
	}
	if !applied {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order moved concurrently")
	}

	if !order.PaymentMethod.IsOnline() || order.DeliveryFee == 0 {
		return nil
	}
	agencyWallet, err := s.ledger.GetOrCreate(ctx, enums.WalletOwnerAgency, agencyID)
	if err != nil {
		return err
	}
	_, err = s.ledger.CreditPending(ctx, tx, wallets.EntryInput{
		WalletID:      agencyWallet.ID,
		Amount:        s.fees.RiderNet(order.DeliveryFee),
		ReferenceType: enums.ReferenceTypeOrder,
		ReferenceID:   orderID,
		Note:          "delivery fee",
	})
	return err
}

// MarkOrderDelivered runs inside the job delivery transaction.
func (s *service) MarkOrderDelivered(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error {
	order, err := s.load(ctx, s.repo.WithTx(tx), orderID)
	if err != nil {
		return err
	}
	if !canTransition(order.Status, enums.OrderStatusDelivered) {
		return pkgerrors.Newf(pkgerrors.CodeStateConflict, "order is %s, cannot mark delivered", order.Status)
	}
	applied, err := s.repo.WithTx(tx).Transition(ctx, orderID, order.Status, enums.OrderStatusDelivered, s.now().UTC())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order delivered")
	}
	if !applied {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order moved concurrently")
	}
	return nil
}

// MarkReceived is the fund release trigger. Safe to call twice: a COMPLETED
// order returns AlreadyProcessed without touching the ledger, and the credits
// themselves are keyed idempotently.
func (s *service) MarkReceived(ctx context.Context, customerID, orderID uuid.UUID) (*ReceiveResult, error) {
	order, err := s.load(ctx, s.repo, orderID)
	if err != nil {
		return nil, err
	}
	if order.CustomerID != customerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another customer")
	}
	if order.Status == enums.OrderStatusCompleted {
		return &ReceiveResult{AlreadyProcessed: true, Order: order}, nil
	}
	if err := receiptLegal(order); err != nil {
		return nil, err
	}

	var subtotal int64
	for _, item := range order.Items {
		subtotal += item.UnitPrice * int64(item.Quantity)
	}
	amounts := CompletionAmounts{
		Subtotal:     subtotal,
		Commission:   s.fees.Commission(subtotal),
		VendorPayout: s.fees.VendorPayout(subtotal),
		RiderPayout:  s.fees.RiderNet(order.DeliveryFee),
	}

	vendorWallet, err := s.ledger.GetOrCreate(ctx, enums.WalletOwnerVendor, order.VendorID)
	if err != nil {
		return nil, err
	}
	var agencyWallet *models.Wallet
	if order.PaymentMethod.IsOnline() && order.DeliveryMethod == enums.DeliveryMethodJemoRider {
		job, err := s.deliveries.FindByOrder(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if job.AgencyID != nil {
			agencyWallet, err = s.ledger.GetOrCreate(ctx, enums.WalletOwnerAgency, *job.AgencyID)
			if err != nil {
				return nil, err
			}
		}
	}

	at := s.now().UTC()
	alreadyDone := false
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if order.PaymentMethod.IsOnline() {
			if err := s.release(ctx, tx, vendorWallet.ID, orderID); err != nil {
				return err
			}
			if agencyWallet != nil {
				if err := s.release(ctx, tx, agencyWallet.ID, orderID); err != nil {
					return err
				}
			}
		} else {
			// Cash was collected on delivery: the vendor's cut goes straight
			// to available.
			_, err := s.ledger.CreditAvailableForOrder(ctx, tx, wallets.EntryInput{
				WalletID:      vendorWallet.ID,
				Amount:        amounts.VendorPayout,
				ReferenceType: enums.ReferenceTypeOrder,
				ReferenceID:   orderID,
				Note:          "cash order settled",
			})
			if err != nil {
				return err
			}
		}

		applied, err := s.repo.WithTx(tx).Complete(ctx, orderID, order.Status, amounts, at)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete order")
		}
		if !applied {
			// A concurrent retry finished first; the credits above no-oped.
			alreadyDone = true
		}
		return nil
	})
	if err != nil {
		// A concurrent receive that slipped past the COMPLETED short-circuit
		// surfaces as a ledger conflict on the posted-reference key. The
		// other caller released the funds; report the replay.
		if pkgerrors.HasCode(err, pkgerrors.CodeConflict) {
			alreadyDone = true
		} else {
			return nil, err
		}
	}

	if alreadyDone {
		refreshed, err := s.load(ctx, s.repo, orderID)
		if err != nil {
			return nil, err
		}
		return &ReceiveResult{AlreadyProcessed: true, Order: refreshed}, nil
	}

	order.Status = enums.OrderStatusCompleted
	order.SubtotalAmount = amounts.Subtotal
	order.CommissionAmount = amounts.Commission
	order.VendorPayoutAmount = amounts.VendorPayout
	order.RiderPayoutAmount = amounts.RiderPayout
	order.CompletedAt = &at
	order.FundsReleasedAt = &at

	ctx = s.logger.WithOrderID(ctx, orderID.String())
	s.logger.Info(ctx, "order received, funds released")
	return &ReceiveResult{Order: order}, nil
}

// release moves a party's pending credit for the order into its available
// balance, sized by the posted pending entry itself.
func (s *service) release(ctx context.Context, tx *gorm.DB, walletID, orderID uuid.UUID) error {
	pending, err := s.ledger.FindPostedEntry(ctx, walletID, enums.ReferenceTypeOrder, orderID, enums.WalletTxCreditPending)
	if err != nil {
		return err
	}
	if pending == nil {
		// The party never had a pending credit for this order.
		return nil
	}
	_, err = s.ledger.CreditAvailable(ctx, tx, wallets.EntryInput{
		WalletID:      walletID,
		Amount:        pending.Amount,
		ReferenceType: enums.ReferenceTypeOrder,
		ReferenceID:   orderID,
		Note:          "order received",
	})
	return err
}

func receiptLegal(order *models.Order) error {
	switch order.DeliveryMethod {
	case enums.DeliveryMethodVendor:
		if order.Status == enums.OrderStatusConfirmed || order.Status == enums.OrderStatusInTransit {
			return nil
		}
		return pkgerrors.Newf(pkgerrors.CodeStateConflict,
			"order is %s, vendor delivered orders are received from confirmed or in transit", order.Status)
	case enums.DeliveryMethodJemoRider:
		if order.Status == enums.OrderStatusDelivered {
			return nil
		}
		return pkgerrors.Newf(pkgerrors.CodeStateConflict,
			"order is %s, agency delivered orders must be delivered first", order.Status)
	default:
		return pkgerrors.Newf(pkgerrors.CodeValidation, "invalid delivery method %q", order.DeliveryMethod)
	}
}

func (s *service) deliveryFee(ctx context.Context, primary models.Product, method enums.DeliveryMethod, deliveryCity string) (int64, error) {
	if method == enums.DeliveryMethodJemoRider {
		quote, err := s.deliveries.Quote(ctx, primary.City, deliveryCity)
		if err != nil {
			return 0, err
		}
		return quote.Fee, nil
	}
	switch primary.VendorFeeMode {
	case enums.VendorFeeModeFlat:
		return primary.VendorFlatFee, nil
	case enums.VendorFeeModeCityBased:
		if cities.Equal(primary.City, deliveryCity) {
			return primary.VendorFeeSameCity, nil
		}
		return primary.VendorFeeOtherCity, nil
	case enums.VendorFeeModeFree:
		return 0, nil
	default:
		return 0, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid vendor fee mode %q", primary.VendorFeeMode)
	}
}

func validatePaymentPolicy(p models.Product, method enums.PaymentMethod, deliveryCity string) error {
	online := method.IsOnline()
	switch p.PaymentPolicy {
	case enums.PaymentPolicyPODOnly:
		if online {
			return pkgerrors.Newf(pkgerrors.CodeValidation,
				"product %q accepts cash on delivery only (pod_only)", p.Name)
		}
	case enums.PaymentPolicyOnlineOnly:
		if !online {
			return pkgerrors.Newf(pkgerrors.CodeValidation,
				"product %q requires online payment (online_only)", p.Name)
		}
	case enums.PaymentPolicyMixedCityRule:
		sameCity := cities.Equal(p.City, deliveryCity)
		if sameCity && online {
			return pkgerrors.Newf(pkgerrors.CodeValidation,
				"product %q requires cash on delivery within %s (mixed_city_rule)", p.Name, p.City)
		}
		if !sameCity && !online {
			return pkgerrors.Newf(pkgerrors.CodeValidation,
				"product %q requires online payment outside %s (mixed_city_rule)", p.Name, p.City)
		}
	default:
		return pkgerrors.Newf(pkgerrors.CodeValidation, "product %q has invalid payment policy %q", p.Name, p.PaymentPolicy)
	}

	if online {
		operator, ok := method.Operator()
		if !ok || !p.OperatorEnabled(operator) {
			return pkgerrors.Newf(pkgerrors.CodeValidation,
				"product %q does not accept %s payments", p.Name, method)
		}
	}
	return nil
}

func validateCreate(customerID uuid.UUID, input CreateOrderInput) error {
	if customerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "customer id required")
	}
	if len(input.Items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one item required")
	}
	for _, item := range input.Items {
		if item.ProductID == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "product id required")
		}
		if item.Quantity <= 0 {
			return pkgerrors.Newf(pkgerrors.CodeValidation, "quantity must be positive, got %d", item.Quantity)
		}
	}
	if !input.DeliveryMethod.IsValid() {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "invalid delivery method %q", input.DeliveryMethod)
	}
	if input.DeliveryCity == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "delivery city required")
	}
	if !input.PaymentMethod.IsValid() {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "invalid payment method %q", input.PaymentMethod)
	}
	if input.PaymentMethod.IsOnline() && input.PaymentIntentRef == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "online payment requires a payment intent reference")
	}
	return nil
}

func (s *service) load(ctx context.Context, repo Repository, orderID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}
