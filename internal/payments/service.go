package payments

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jemo-app/jemo-backend/internal/delivery"
	"github.com/jemo-app/jemo-backend/pkg/cities"
	"github.com/jemo-app/jemo-backend/pkg/config"
	"github.com/jemo-app/jemo-backend/pkg/db/models"
	"github.com/jemo-app/jemo-backend/pkg/enums"
	pkgerrors "github.com/jemo-app/jemo-backend/pkg/errors"
	"github.com/jemo-app/jemo-backend/pkg/logger"
	"github.com/jemo-app/jemo-backend/pkg/mycoolpay"
	"github.com/jemo-app/jemo-backend/pkg/pagination"
)

// AppRefPrefix tags payment intent transaction refs so webhook deliveries
// can be routed back here.
const AppRefPrefix = "JMO-PI-"

// staleIntentAge is how old an abandoned capture attempt must be before a new
// Initiate for the same purchase sweeps it away.
const staleIntentAge = 2 * time.Minute

var phoneRe = regexp.MustCompile(`^\+?[0-9]{8,15}$`)

type providerClient interface {
	Payin(ctx context.Context, params mycoolpay.PayinParams) (*mycoolpay.Transaction, error)
	CheckStatus(ctx context.Context, transactionRef string) (*mycoolpay.Transaction, error)
}

type catalog interface {
	FindForOrder(ctx context.Context, ids []uuid.UUID) ([]models.Product, error)
}

type deliveries interface {
	Quote(ctx context.Context, pickupCity, dropoffCity string) (*delivery.QuoteResult, error)
}

// Service captures customer money with the mobile-money provider before an
// order exists. Amounts are always recomputed server-side; the client never
// names a price. An intent is consumed by exactly one order.
type Service interface {
	Initiate(ctx context.Context, userID uuid.UUID, input InitiateIntentInput) (*models.PaymentIntent, error)
	Verify(ctx context.Context, appRef string) (*models.PaymentIntent, error)
	ResolveByAppRef(ctx context.Context, appRef string, status mycoolpay.Status, failureReason string) (*models.PaymentIntent, error)
	Get(ctx context.Context, intentID uuid.UUID) (*models.PaymentIntent, error)
	ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.PaymentIntent, string, error)

	GetValidIntentForOrder(ctx context.Context, userID, productID uuid.UUID, appRef string) (*models.PaymentIntent, error)
	MarkUsed(ctx context.Context, tx *gorm.DB, intentID, orderID uuid.UUID) error
}

// InitiateIntentInput describes the purchase the customer wants to pay for.
type InitiateIntentInput struct {
	ProductID     uuid.UUID
	Quantity      int
	DeliveryCity  string
	Operator      enums.Operator
	CustomerPhone string
	CustomerName  string
}

type service struct {
	repo       Repository
	catalog    catalog
	deliveries deliveries
	provider   providerClient
	intentTTL  time.Duration
	logger     *logger.Logger
	now        func() time.Time
}

// NewService wires the payment intent reconciler.
func NewService(repo Repository, catalog catalog, deliveries deliveries, provider providerClient, cfg config.MyCoolPayConfig, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("payment intent repository required")
	}
	if catalog == nil {
		return nil, fmt.Errorf("product catalog required")
	}
	if deliveries == nil {
		return nil, fmt.Errorf("delivery service required")
	}
	if provider == nil {
		return nil, fmt.Errorf("provider client required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	ttl := cfg.IntentTTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &service{
		repo:       repo,
		catalog:    catalog,
		deliveries: deliveries,
		provider:   provider,
		intentTTL:  ttl,
		logger:     logg,
		now:        time.Now,
	}, nil
}

func (s *service) Initiate(ctx context.Context, userID uuid.UUID, input InitiateIntentInput) (*models.PaymentIntent, error) {
	if err := validateInitiate(userID, input); err != nil {
		return nil, err
	}

	products, err := s.catalog.FindForOrder(ctx, []uuid.UUID{input.ProductID})
	if err != nil {
		return nil, err
	}
	p := products[0]
	if p.Status != enums.ProductStatusApproved {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "product %q is not approved for sale", p.Name)
	}
	if p.Stock < input.Quantity {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation,
			"insufficient stock for %q: have %d, requested %d", p.Name, p.Stock, input.Quantity)
	}
	if !p.OperatorEnabled(input.Operator) {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation,
			"product %q does not accept %s payments", p.Name, input.Operator)
	}
	if err := validateOnlineAllowed(p, input.DeliveryCity); err != nil {
		return nil, err
	}

	subtotal := p.EffectiveUnitPrice() * int64(input.Quantity)
	deliveryFee, err := s.deliveryFee(ctx, p, input.DeliveryCity)
	if err != nil {
		return nil, err
	}
	total := subtotal + deliveryFee

	now := s.now().UTC()
	if err := s.repo.PurgeStaleInitiated(ctx, userID, p.ID, now.Add(-staleIntentAge)); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "purge stale intents")
	}

	appRef := AppRefPrefix + uuid.NewString()
	tx, err := s.provider.Payin(ctx, mycoolpay.PayinParams{
		Amount:            total,
		Reason:            fmt.Sprintf("Order payment for %s", p.Name),
		AppTransactionRef: appRef,
		CustomerName:      input.CustomerName,
		CustomerPhone:     input.CustomerPhone,
	})
	if err != nil {
		return nil, err
	}

	intent := &models.PaymentIntent{
		UserID:            userID,
		ProductID:         p.ID,
		Quantity:          input.Quantity,
		ProductSubtotal:   subtotal,
		DeliveryFee:       deliveryFee,
		TotalAmount:       total,
		Operator:          input.Operator,
		CustomerPhone:     input.CustomerPhone,
		AppTransactionRef: appRef,
		Status:            intentStatusFor(tx.Status),
		ExpiresAt:         now.Add(s.intentTTL),
	}
	if tx.TransactionRef != "" {
		intent.ProviderTransactionRef = &tx.TransactionRef
	}
	if tx.TransactionID != "" {
		intent.ProviderTransactionID = &tx.TransactionID
	}
	if tx.USSDCode != "" {
		intent.USSDCode = &tx.USSDCode
	}
	if err := s.repo.Create(ctx, intent); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist payment intent")
	}

	s.logger.Info(s.logger.WithFields(ctx, map[string]any{
		"app_transaction_ref": appRef,
		"amount":              total,
	}), "payment intent initiated")
	return intent, nil
}

// Verify reconciles one intent with the provider. Terminal local state wins
// without a provider round trip; an expired capture is closed as failed.
func (s *service) Verify(ctx context.Context, appRef string) (*models.PaymentIntent, error) {
	intent, err := s.loadByAppRef(ctx, appRef)
	if err != nil {
		return nil, err
	}
	if intent.Status != enums.PaymentIntentStatusInitiated {
		return intent, nil
	}
	if s.now().UTC().After(intent.ExpiresAt) {
		return s.persistStatus(ctx, intent, enums.PaymentIntentStatusFailed, "payment intent expired")
	}
	if intent.ProviderTransactionRef == nil {
		return intent, nil
	}

	tx, err := s.provider.CheckStatus(ctx, *intent.ProviderTransactionRef)
	if err != nil {
		return nil, err
	}
	return s.applyProviderStatus(ctx, intent, tx.Status, tx.Message)
}

// ResolveByAppRef applies a provider-pushed outcome. Redelivered webhooks hit
// the terminal short-circuit and change nothing.
func (s *service) ResolveByAppRef(ctx context.Context, appRef string, status mycoolpay.Status, failureReason string) (*models.PaymentIntent, error) {
	intent, err := s.loadByAppRef(ctx, appRef)
	if err != nil {
		return nil, err
	}
	if intent.Status != enums.PaymentIntentStatusInitiated {
		return intent, nil
	}
	return s.applyProviderStatus(ctx, intent, status, failureReason)
}

func (s *service) Get(ctx context.Context, intentID uuid.UUID) (*models.PaymentIntent, error) {
	if intentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "intent id required")
	}
	intent, err := s.repo.FindByID(ctx, intentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment intent not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment intent")
	}
	return intent, nil
}

func (s *service) ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.PaymentIntent, string, error) {
	if userID == uuid.Nil {
		return nil, "", pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	limit, cursor, err := params.Resolve()
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	intents, err := s.repo.ListByUser(ctx, userID, limit, cursor)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payment intents")
	}
	next := ""
	if len(intents) == limit {
		intents = intents[:limit-1]
		last := intents[len(intents)-1]
		next = pagination.Encode(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return intents, next, nil
}

func (s *service) GetValidIntentForOrder(ctx context.Context, userID, productID uuid.UUID, appRef string) (*models.PaymentIntent, error) {
	intent, err := s.loadByAppRef(ctx, appRef)
	if err != nil {
		return nil, err
	}
	if intent.UserID != userID || intent.ProductID != productID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "payment intent belongs to another purchase")
	}
	if intent.Status != enums.PaymentIntentStatusSuccess {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "payment is %s, not completed", intent.Status)
	}
	if intent.UsedForOrderID != nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "payment intent already used for an order")
	}
	if s.now().UTC().After(intent.ExpiresAt) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment intent expired")
	}
	return intent, nil
}

// MarkUsed binds an intent to its order inside the order creation
// transaction. Replaying the same binding is a no-op; a different order
// conflicts.
func (s *service) MarkUsed(ctx context.Context, tx *gorm.DB, intentID, orderID uuid.UUID) error {
	repo := s.repo.WithTx(tx)
	applied, err := repo.MarkUsed(ctx, intentID, orderID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark intent used")
	}
	if applied {
		return nil
	}
	intent, err := repo.FindByID(ctx, intentID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload payment intent")
	}
	if intent.UsedForOrderID != nil && *intent.UsedForOrderID == orderID {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeConflict, "payment intent already used for an order")
}

func (s *service) applyProviderStatus(ctx context.Context, intent *models.PaymentIntent, status mycoolpay.Status, reason string) (*models.PaymentIntent, error) {
	switch status {
	case mycoolpay.StatusSuccess:
		return s.persistStatus(ctx, intent, enums.PaymentIntentStatusSuccess, "")
	case mycoolpay.StatusFailed:
		if reason == "" {
			reason = "payment failed"
		}
		return s.persistStatus(ctx, intent, enums.PaymentIntentStatusFailed, reason)
	default:
		return intent, nil
	}
}

// persistStatus settles an INITIATED intent. The conditional write keeps a
// concurrently settled intent intact; the loser reloads and returns it.
func (s *service) persistStatus(ctx context.Context, intent *models.PaymentIntent, status enums.PaymentIntentStatus, failureReason string) (*models.PaymentIntent, error) {
	var reason *string
	if failureReason != "" {
		reason = &failureReason
	}
	applied, err := s.repo.UpdateStatus(ctx, intent.ID, status, reason, enums.PaymentIntentStatusInitiated)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update intent status")
	}
	if !applied {
		fresh, err := s.repo.FindByID(ctx, intent.ID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload payment intent")
		}
		return fresh, nil
	}
	intent.Status = status
	intent.FailureReason = reason
	s.logger.Info(s.logger.WithFields(ctx, map[string]any{
		"app_transaction_ref": intent.AppTransactionRef,
		"status":              status.String(),
	}), "payment intent resolved")
	return intent, nil
}

func (s *service) loadByAppRef(ctx context.Context, appRef string) (*models.PaymentIntent, error) {
	if appRef == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment intent reference required")
	}
	intent, err := s.repo.FindByAppRef(ctx, appRef)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment intent not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment intent")
	}
	return intent, nil
}

func (s *service) deliveryFee(ctx context.Context, p models.Product, deliveryCity string) (int64, error) {
	if p.DeliveryType == enums.DeliveryMethodJemoRider {
		quote, err := s.deliveries.Quote(ctx, p.City, deliveryCity)
		if err != nil {
			return 0, err
		}
		return quote.Fee, nil
	}
	switch p.VendorFeeMode {
	case enums.VendorFeeModeFlat:
		return p.VendorFlatFee, nil
	case enums.VendorFeeModeCityBased:
		if cities.Equal(p.City, deliveryCity) {
			return p.VendorFeeSameCity, nil
		}
		return p.VendorFeeOtherCity, nil
	case enums.VendorFeeModeFree:
		return 0, nil
	default:
		return 0, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid vendor fee mode %q", p.VendorFeeMode)
	}
}

// validateOnlineAllowed rejects captures for purchases the payment policy
// would later refuse as an online order anyway.
func validateOnlineAllowed(p models.Product, deliveryCity string) error {
	switch p.PaymentPolicy {
	case enums.PaymentPolicyPODOnly:
		return pkgerrors.Newf(pkgerrors.CodeValidation,
			"product %q accepts cash on delivery only (pod_only)", p.Name)
	case enums.PaymentPolicyMixedCityRule:
		if cities.Equal(p.City, deliveryCity) {
			return pkgerrors.Newf(pkgerrors.CodeValidation,
				"product %q requires cash on delivery within %s (mixed_city_rule)", p.Name, p.City)
		}
	}
	return nil
}

func intentStatusFor(status mycoolpay.Status) enums.PaymentIntentStatus {
	switch status {
	case mycoolpay.StatusSuccess:
		return enums.PaymentIntentStatusSuccess
	case mycoolpay.StatusFailed:
		return enums.PaymentIntentStatusFailed
	default:
		return enums.PaymentIntentStatusInitiated
	}
}

func validateInitiate(userID uuid.UUID, input InitiateIntentInput) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if input.ProductID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	if input.Quantity <= 0 {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "quantity must be positive, got %d", input.Quantity)
	}
	if input.DeliveryCity == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "delivery city required")
	}
	if !input.Operator.IsValid() {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "invalid operator %q", input.Operator)
	}
	if !phoneRe.MatchString(input.CustomerPhone) {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid customer phone")
	}
	return nil
}
