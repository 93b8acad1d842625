package mycoolpaywebhook

import (
	"context"
	"strings"
	"time"

	"github.com/jemo-app/jemo-backend/internal/payments"
	"github.com/jemo-app/jemo-backend/internal/payouts"
	"github.com/jemo-app/jemo-backend/pkg/db/models"
	pkgerrors "github.com/jemo-app/jemo-backend/pkg/errors"
	"github.com/jemo-app/jemo-backend/pkg/logger"
	"github.com/jemo-app/jemo-backend/pkg/metrics"
	"github.com/jemo-app/jemo-backend/pkg/mycoolpay"
	"github.com/jemo-app/jemo-backend/pkg/redis"
)

const webhookKind = "mycoolpay"

// dedupeTTL bounds how long a delivery is remembered. The provider retries
// for at most a day.
const dedupeTTL = 24 * time.Hour

type intentResolver interface {
	ResolveByAppRef(ctx context.Context, appRef string, status mycoolpay.Status, failureReason string) (*models.PaymentIntent, error)
}

type payoutResolver interface {
	ResolveByAppRef(ctx context.Context, appRef string, status mycoolpay.Status, failureReason string) (*models.Payout, error)
}

type ServiceParams struct {
	Intents intentResolver
	Payouts payoutResolver
	Dedupe  redis.DedupeStore
	Metrics *metrics.PaymentMetrics
	Logger  *logger.Logger
}

// Service routes provider callbacks to the money flow that owns the
// transaction ref. Every outcome applied here is also reachable through
// polling, so a lost webhook only delays settlement.
type Service struct {
	intents intentResolver
	payouts payoutResolver
	dedupe  redis.DedupeStore
	metrics *metrics.PaymentMetrics
	logger  *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Intents == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "intent resolver required")
	}
	if params.Payouts == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payout resolver required")
	}
	if params.Dedupe == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "dedupe store required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		intents: params.Intents,
		payouts: params.Payouts,
		dedupe:  params.Dedupe,
		metrics: params.Metrics,
		logger:  params.Logger,
	}, nil
}

// Event is the provider's callback payload. Only the fields the router needs
// are decoded; everything else is ignored.
type Event struct {
	Application       string `json:"application"`
	AppTransactionRef string `json:"app_transaction_ref"`
	TransactionRef    string `json:"transaction_ref"`
	TransactionStatus string `json:"transaction_status"`
	TransactionAmount int64  `json:"transaction_amount"`
	Reason            string `json:"reason"`
}

// HandleEvent applies one provider delivery. Redeliveries are dropped through
// redis before any database work; the resolvers' terminal short-circuits
// cover the window where the dedupe key has already expired.
func (s *Service) HandleEvent(ctx context.Context, event *Event) error {
	if event == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "webhook event required")
	}
	appRef := strings.TrimSpace(event.AppTransactionRef)
	if appRef == "" {
		s.metrics.IncWebhook(webhookKind, "invalid")
		return pkgerrors.New(pkgerrors.CodeValidation, "app_transaction_ref required")
	}
	status := mycoolpay.NormalizeStatus(event.TransactionStatus)

	first, err := s.dedupe.MarkOnce(ctx, s.dedupe.WebhookKey(webhookKind, appRef, string(status)), dedupeTTL)
	if err != nil {
		// Redis being down must not drop money events; fall through and
		// let the resolvers' idempotence absorb replays.
		s.logger.Error(ctx, "webhook dedupe unavailable", err)
	} else if !first {
		s.metrics.IncWebhook(webhookKind, "duplicate")
		return nil
	}

	ctx = s.logger.WithFields(ctx, map[string]any{
		"app_transaction_ref": appRef,
		"status":              string(status),
	})

	switch {
	case strings.HasPrefix(appRef, payments.AppRefPrefix):
		_, err = s.intents.ResolveByAppRef(ctx, appRef, status, event.Reason)
	case strings.HasPrefix(appRef, payouts.AppRefPrefix):
		_, err = s.payouts.ResolveByAppRef(ctx, appRef, status, event.Reason)
	default:
		s.metrics.IncWebhook(webhookKind, "unroutable")
		return pkgerrors.Newf(pkgerrors.CodeValidation, "unroutable transaction ref %q", appRef)
	}
	if err != nil {
		s.metrics.IncWebhook(webhookKind, "error")
		return err
	}

	s.metrics.IncWebhook(webhookKind, "processed")
	s.logger.Info(ctx, "webhook processed")
	return nil
}
