package controllers

import (
	"net/http"

	"github.com/jemo-app/jemo-backend/api/middleware"
	"github.com/jemo-app/jemo-backend/api/responses"
	"github.com/jemo-app/jemo-backend/api/validators"
	product "github.com/jemo-app/jemo-backend/internal/products"
	"github.com/jemo-app/jemo-backend/pkg/enums"
	"github.com/jemo-app/jemo-backend/pkg/logger"
)

type createProductRequest struct {
	Name               string  `json:"name" validate:"required,max=160"`
	Price              int64   `json:"price" validate:"required,gt=0"`
	DiscountPrice      *int64  `json:"discount_price" validate:"omitempty,gt=0"`
	Stock              int     `json:"stock" validate:"gte=0"`
	City               string  `json:"city" validate:"required,max=80"`
	DeliveryType       string  `json:"delivery_type" validate:"required"`
	PaymentPolicy      string  `json:"payment_policy" validate:"required"`
	MTNEnabled         bool    `json:"mtn_enabled"`
	OrangeEnabled      bool    `json:"orange_enabled"`
	VendorFeeMode      string  `json:"vendor_fee_mode" validate:"required"`
	VendorFlatFee      int64   `json:"vendor_flat_fee" validate:"gte=0"`
	VendorFeeSameCity  int64   `json:"vendor_fee_same_city" validate:"gte=0"`
	VendorFeeOtherCity int64   `json:"vendor_fee_other_city" validate:"gte=0"`
}

type updateProductRequest struct {
	Name          *string `json:"name" validate:"omitempty,max=160"`
	Price         *int64  `json:"price" validate:"omitempty,gt=0"`
	DiscountPrice *int64  `json:"discount_price" validate:"omitempty,gt=0"`
	Stock         *int    `json:"stock" validate:"omitempty,gte=0"`
	City          *string `json:"city" validate:"omitempty,max=80"`
}

type moderateProductRequest struct {
	Status string `json:"status" validate:"required"`
}

// CreateProduct lists a new product for the calling vendor. Listings start in
// moderation and only sell once approved.
func CreateProduct(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vendorID, err := middleware.RequireIdentity(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req createProductRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		created, err := svc.Create(r.Context(), vendorID, product.CreateProductInput{
			Name:               validators.SanitizeString(req.Name, 160),
			Price:              req.Price,
			DiscountPrice:      req.DiscountPrice,
			Stock:              req.Stock,
			City:               req.City,
			DeliveryType:       enums.DeliveryMethod(req.DeliveryType),
			PaymentPolicy:      enums.PaymentPolicy(req.PaymentPolicy),
			MTNEnabled:         req.MTNEnabled,
			OrangeEnabled:      req.OrangeEnabled,
			VendorFeeMode:      enums.VendorFeeMode(req.VendorFeeMode),
			VendorFlatFee:      req.VendorFlatFee,
			VendorFeeSameCity:  req.VendorFeeSameCity,
			VendorFeeOtherCity: req.VendorFeeOtherCity,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, created)
	}
}

// UpdateProduct edits a listing owned by the calling vendor.
func UpdateProduct(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vendorID, err := middleware.RequireIdentity(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		productID, err := parseUUIDParam(r, "productID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req updateProductRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		updated, err := svc.Update(r.Context(), vendorID, productID, product.UpdateProductInput{
			Name:          req.Name,
			Price:         req.Price,
			DiscountPrice: req.DiscountPrice,
			Stock:         req.Stock,
			City:          req.City,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, updated)
	}
}

// ModerateProduct moves a listing through review.
func ModerateProduct(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := parseUUIDParam(r, "productID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req moderateProductRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		updated, err := svc.SetStatus(r.Context(), productID, enums.ProductStatus(req.Status))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, updated)
	}
}

// GetProduct returns one listing.
func GetProduct(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := parseUUIDParam(r, "productID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		p, err := svc.Get(r.Context(), productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, p)
	}
}

// ListApprovedProducts is the public storefront feed.
func ListApprovedProducts(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.ListApproved(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// ListVendorProducts returns the calling vendor's own listings, whatever
// their moderation state.
func ListVendorProducts(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vendorID, err := middleware.RequireIdentity(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		list, err := svc.ListByVendor(r.Context(), vendorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}
