package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/jemo-app/jemo-backend/api/middleware"
	"github.com/jemo-app/jemo-backend/api/responses"
	"github.com/jemo-app/jemo-backend/api/validators"
	"github.com/jemo-app/jemo-backend/internal/payments"
	"github.com/jemo-app/jemo-backend/pkg/enums"
	pkgerrors "github.com/jemo-app/jemo-backend/pkg/errors"
	"github.com/jemo-app/jemo-backend/pkg/logger"
	"github.com/jemo-app/jemo-backend/pkg/pagination"
)

type initiateIntentRequest struct {
	ProductID     uuid.UUID `json:"product_id" validate:"required"`
	Quantity      int       `json:"quantity" validate:"required,gt=0"`
	DeliveryCity  string    `json:"delivery_city" validate:"required,max=80"`
	Operator      string    `json:"operator" validate:"required"`
	CustomerPhone string    `json:"customer_phone" validate:"required,max=20"`
	CustomerName  string    `json:"customer_name" validate:"required,max=160"`
}

// InitiateIntent starts a mobile money charge for a purchase. Amounts are
// computed server-side from the catalog, never taken from the client.
func InitiateIntent(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := middleware.RequireIdentity(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req initiateIntentRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		operator, err := enums.ParseOperator(req.Operator)
		if err != nil {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid operator"))
			return
		}

		intent, err := svc.Initiate(r.Context(), userID, payments.InitiateIntentInput{
			ProductID:     req.ProductID,
			Quantity:      req.Quantity,
			DeliveryCity:  req.DeliveryCity,
			Operator:      operator,
			CustomerPhone: strings.TrimSpace(req.CustomerPhone),
			CustomerName:  validators.SanitizeString(req.CustomerName, 160),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, intent)
	}
}

// VerifyIntent re-checks a live intent against the provider by app reference.
func VerifyIntent(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appRef := strings.TrimSpace(r.URL.Query().Get("app_transaction_ref"))
		if appRef == "" {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.New(pkgerrors.CodeValidation, "app_transaction_ref is required"))
			return
		}
		intent, err := svc.Verify(r.Context(), appRef)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, intent)
	}
}

// GetIntent returns one payment intent by id.
func GetIntent(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		intentID, err := parseUUIDParam(r, "intentID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		intent, err := svc.Get(r.Context(), intentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, intent)
	}
}

type intentPage struct {
	Intents    any    `json:"payment_intents"`
	NextCursor string `json:"next_cursor,omitempty"`
}

// ListMyIntents pages the caller's payment intents, newest first.
func ListMyIntents(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := middleware.RequireIdentity(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		intents, next, err := svc.ListByUser(r.Context(), userID, pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, intentPage{Intents: intents, NextCursor: next})
	}
}
