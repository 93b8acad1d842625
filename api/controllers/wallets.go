package controllers

import (
	"net/http"
	"strings"

	"github.com/jemo-app/jemo-backend/api/middleware"
	"github.com/jemo-app/jemo-backend/api/responses"
	"github.com/jemo-app/jemo-backend/api/validators"
	"github.com/jemo-app/jemo-backend/internal/wallets"
	pkgerrors "github.com/jemo-app/jemo-backend/pkg/errors"
	"github.com/jemo-app/jemo-backend/pkg/enums"
	"github.com/jemo-app/jemo-backend/pkg/logger"
	"github.com/jemo-app/jemo-backend/pkg/pagination"
)

// GetMyWallet returns (creating on first read) the caller's wallet for the
// requested owner_type.
func GetMyWallet(svc wallets.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, err := middleware.RequireIdentity(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ownerType, err := enums.ParseWalletOwnerType(r.URL.Query().Get("owner_type"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid owner_type"))
			return
		}
		wallet, err := svc.GetOrCreate(r.Context(), ownerType, ownerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, wallet)
	}
}

type walletTransactionPage struct {
	Transactions any    `json:"transactions"`
	NextCursor   string `json:"next_cursor,omitempty"`
}

// ListWalletTransactions pages the caller's wallet ledger, newest first.
func ListWalletTransactions(svc wallets.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, err := middleware.RequireIdentity(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ownerType, err := enums.ParseWalletOwnerType(r.URL.Query().Get("owner_type"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid owner_type"))
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		wallet, err := svc.GetOrCreate(r.Context(), ownerType, ownerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		entries, next, err := svc.ListTransactions(r.Context(), wallet.ID, pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, walletTransactionPage{Transactions: entries, NextCursor: next})
	}
}
