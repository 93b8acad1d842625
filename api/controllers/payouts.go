package controllers

import (
	"net/http"
	"strings"

	"github.com/jemo-app/jemo-backend/api/middleware"
	"github.com/jemo-app/jemo-backend/api/responses"
	"github.com/jemo-app/jemo-backend/api/validators"
	"github.com/jemo-app/jemo-backend/internal/payouts"
	"github.com/jemo-app/jemo-backend/pkg/enums"
	pkgerrors "github.com/jemo-app/jemo-backend/pkg/errors"
	"github.com/jemo-app/jemo-backend/pkg/logger"
)

type requestPayoutRequest struct {
	OwnerType        string `json:"owner_type" validate:"required"`
	Amount           int64  `json:"amount" validate:"required,gt=0"`
	Method           string `json:"method" validate:"required"`
	DestinationPhone string `json:"destination_phone" validate:"required,max=20"`
	DestinationName  string `json:"destination_name" validate:"required,max=160"`
}

// RequestPayout starts a withdrawal from the caller's available balance.
func RequestPayout(svc payouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, err := middleware.RequireIdentity(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req requestPayoutRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ownerType, err := enums.ParseWalletOwnerType(req.OwnerType)
		if err != nil {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid owner_type"))
			return
		}
		method, err := enums.ParseOperator(req.Method)
		if err != nil {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payout method"))
			return
		}

		payout, err := svc.RequestPayout(r.Context(), payouts.RequestPayoutInput{
			OwnerType:        ownerType,
			OwnerID:          ownerID,
			Amount:           req.Amount,
			Method:           method,
			DestinationPhone: strings.TrimSpace(req.DestinationPhone),
			DestinationName:  validators.SanitizeString(req.DestinationName, 160),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, payout)
	}
}

// GetPayout returns a single payout record.
func GetPayout(svc payouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payoutID, err := parseUUIDParam(r, "payoutID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		payout, err := svc.Get(r.Context(), payoutID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, payout)
	}
}

// PollPayout re-checks a PROCESSING payout against the provider.
func PollPayout(svc payouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payoutID, err := parseUUIDParam(r, "payoutID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		payout, err := svc.PollStatus(r.Context(), payoutID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, payout)
	}
}
