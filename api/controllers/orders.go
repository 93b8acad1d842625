package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/jemo-app/jemo-backend/api/middleware"
	"github.com/jemo-app/jemo-backend/api/responses"
	"github.com/jemo-app/jemo-backend/api/validators"
	"github.com/jemo-app/jemo-backend/internal/orders"
	"github.com/jemo-app/jemo-backend/pkg/db/models"
	"github.com/jemo-app/jemo-backend/pkg/enums"
	pkgerrors "github.com/jemo-app/jemo-backend/pkg/errors"
	"github.com/jemo-app/jemo-backend/pkg/logger"
	"github.com/jemo-app/jemo-backend/pkg/pagination"
)

type orderItemRequest struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"required,gt=0"`
}

type createOrderRequest struct {
	Items            []orderItemRequest `json:"items" validate:"required,min=1,dive"`
	DeliveryMethod   string             `json:"delivery_method" validate:"required"`
	DeliveryCity     string             `json:"delivery_city" validate:"required,max=80"`
	DeliveryAddress  string             `json:"delivery_address" validate:"max=400"`
	PaymentMethod    string             `json:"payment_method" validate:"required"`
	PaymentIntentRef string             `json:"payment_intent_ref" validate:"omitempty,max=80"`
}

// CreateOrder places an order for the calling customer.
func CreateOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		customerID, err := middleware.RequireIdentity(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req createOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items := make([]orders.OrderItemInput, 0, len(req.Items))
		for _, item := range req.Items {
			items = append(items, orders.OrderItemInput{
				ProductID: item.ProductID,
				Quantity:  item.Quantity,
			})
		}
		created, err := svc.Create(r.Context(), customerID, orders.CreateOrderInput{
			Items:            items,
			DeliveryMethod:   enums.DeliveryMethod(req.DeliveryMethod),
			DeliveryCity:     req.DeliveryCity,
			DeliveryAddress:  validators.SanitizeString(req.DeliveryAddress, 400),
			PaymentMethod:    enums.PaymentMethod(req.PaymentMethod),
			PaymentIntentRef: strings.TrimSpace(req.PaymentIntentRef),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, created)
	}
}

// GetOrder returns one order with its items.
func GetOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := parseUUIDParam(r, "orderID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.Get(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

type orderPage struct {
	Orders     any    `json:"orders"`
	NextCursor string `json:"next_cursor,omitempty"`
}

// ListOrders pages the caller's orders. Vendors see their sales, everyone
// else their purchases.
func ListOrders(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		callerID, err := middleware.RequireIdentity(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params := pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		}

		actor, _ := middleware.ActorTypeFromContext(r.Context())
		var (
			rows []models.Order
			next string
		)
		if actor == enums.ActorTypeVendor {
			rows, next, err = svc.ListByVendor(r.Context(), callerID, params)
		} else {
			rows, next, err = svc.ListByCustomer(r.Context(), callerID, params)
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if rows == nil {
			rows = []models.Order{}
		}
		responses.WriteSuccess(w, orderPage{Orders: rows, NextCursor: next})
	}
}

// ConfirmOrder is the vendor acknowledging a pending order.
func ConfirmOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vendorID, err := middleware.RequireIdentity(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := parseUUIDParam(r, "orderID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.Confirm(r.Context(), vendorID, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// CancelOrder undoes an order on behalf of its customer or vendor.
func CancelOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		callerID, err := middleware.RequireIdentity(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		actor, ok := middleware.ActorTypeFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.New(pkgerrors.CodeUnauthorized, "actor type required"))
			return
		}
		orderID, err := parseUUIDParam(r, "orderID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.Cancel(r.Context(), actor, callerID, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// MarkOrderInTransit is the handover step for vendor self-delivered orders.
func MarkOrderInTransit(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vendorID, err := middleware.RequireIdentity(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := parseUUIDParam(r, "orderID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.MarkInTransit(r.Context(), vendorID, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// MarkOrderReceived is the customer confirming receipt; this is the fund
// release trigger.
func MarkOrderReceived(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		customerID, err := middleware.RequireIdentity(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := parseUUIDParam(r, "orderID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.MarkReceived(r.Context(), customerID, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"order":             result.Order,
			"already_processed": result.AlreadyProcessed,
		})
	}
}
