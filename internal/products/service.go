package product

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jemo-app/jemo-backend/pkg/cities"
	"github.com/jemo-app/jemo-backend/pkg/db/models"
	"github.com/jemo-app/jemo-backend/pkg/enums"
	pkgerrors "github.com/jemo-app/jemo-backend/pkg/errors"
)

// Service exposes vendor catalog management plus the read and stock
// operations order creation relies on.
type Service interface {
	Create(ctx context.Context, vendorID uuid.UUID, input CreateProductInput) (*models.Product, error)
	Update(ctx context.Context, vendorID, productID uuid.UUID, input UpdateProductInput) (*models.Product, error)
	SetStatus(ctx context.Context, productID uuid.UUID, status enums.ProductStatus) (*models.Product, error)
	Get(ctx context.Context, productID uuid.UUID) (*models.Product, error)
	ListByVendor(ctx context.Context, vendorID uuid.UUID) ([]models.Product, error)
	ListApproved(ctx context.Context) ([]models.Product, error)

	FindForOrder(ctx context.Context, ids []uuid.UUID) ([]models.Product, error)
	DecrementStock(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) (bool, error)
	RestoreStock(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error
}

// CreateProductInput holds the validated payload to list a product.
type CreateProductInput struct {
	Name               string
	Price              int64
	DiscountPrice      *int64
	Stock              int
	City               string
	DeliveryType       enums.DeliveryMethod
	PaymentPolicy      enums.PaymentPolicy
	MTNEnabled         bool
	OrangeEnabled      bool
	VendorFeeMode      enums.VendorFeeMode
	VendorFlatFee      int64
	VendorFeeSameCity  int64
	VendorFeeOtherCity int64
}

// UpdateProductInput carries the mutable listing fields. Nil pointers leave
// the stored value untouched.
type UpdateProductInput struct {
	Name               *string
	Price              *int64
	DiscountPrice      *int64
	Stock              *int
	City               *string
	PaymentPolicy      *enums.PaymentPolicy
	MTNEnabled         *bool
	OrangeEnabled      *bool
	VendorFeeMode      *enums.VendorFeeMode
	VendorFlatFee      *int64
	VendorFeeSameCity  *int64
	VendorFeeOtherCity *int64
}

type service struct {
	repo Repository
}

// NewService wires the catalog service.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("product repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Create(ctx context.Context, vendorID uuid.UUID, input CreateProductInput) (*models.Product, error) {
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id required")
	}
	if err := validateCreate(input); err != nil {
		return nil, err
	}

	product := &models.Product{
		VendorID:           vendorID,
		Name:               input.Name,
		Status:             enums.ProductStatusPendingReview,
		Price:              input.Price,
		DiscountPrice:      input.DiscountPrice,
		Stock:              input.Stock,
		City:               cities.Title(input.City),
		DeliveryType:       input.DeliveryType,
		PaymentPolicy:      input.PaymentPolicy,
		MTNEnabled:         input.MTNEnabled,
		OrangeEnabled:      input.OrangeEnabled,
		VendorFeeMode:      input.VendorFeeMode,
		VendorFlatFee:      input.VendorFlatFee,
		VendorFeeSameCity:  input.VendorFeeSameCity,
		VendorFeeOtherCity: input.VendorFeeOtherCity,
	}
	if err := s.repo.Create(ctx, product); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create product")
	}
	return product, nil
}

func (s *service) Update(ctx context.Context, vendorID, productID uuid.UUID, input UpdateProductInput) (*models.Product, error) {
	product, err := s.Get(ctx, productID)
	if err != nil {
		return nil, err
	}
	if product.VendorID != vendorID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "product belongs to another vendor")
	}

	applyUpdate(product, input)
	if product.Price <= 0 {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "price must be positive, got %d", product.Price)
	}
	if product.Stock < 0 {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "stock must not be negative, got %d", product.Stock)
	}
	if !product.PaymentPolicy.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid payment policy %q", product.PaymentPolicy)
	}
	if !product.VendorFeeMode.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid vendor fee mode %q", product.VendorFeeMode)
	}

	if err := s.repo.Update(ctx, product); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update product")
	}
	return product, nil
}

func (s *service) SetStatus(ctx context.Context, productID uuid.UUID, status enums.ProductStatus) (*models.Product, error) {
	if !status.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid product status %q", status)
	}
	product, err := s.Get(ctx, productID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.SetStatus(ctx, productID, status); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "set product status")
	}
	product.Status = status
	return product, nil
}

func (s *service) Get(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	product, err := s.repo.FindByID(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	return product, nil
}

func (s *service) ListByVendor(ctx context.Context, vendorID uuid.UUID) ([]models.Product, error) {
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id required")
	}
	products, err := s.repo.ListByVendor(ctx, vendorID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list products")
	}
	return products, nil
}

func (s *service) ListApproved(ctx context.Context) ([]models.Product, error) {
	products, err := s.repo.ListByStatus(ctx, enums.ProductStatusApproved)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list products")
	}
	return products, nil
}

func (s *service) FindForOrder(ctx context.Context, ids []uuid.UUID) ([]models.Product, error) {
	if len(ids) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one product required")
	}
	products, err := s.repo.FindAllByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load products")
	}
	if len(products) != len(ids) {
		return nil, pkgerrors.Newf(pkgerrors.CodeNotFound,
			"found %d of %d requested products", len(products), len(ids))
	}
	return products, nil
}

func (s *service) DecrementStock(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) (bool, error) {
	if qty <= 0 {
		return false, pkgerrors.Newf(pkgerrors.CodeValidation, "quantity must be positive, got %d", qty)
	}
	applied, err := s.repo.WithTx(tx).DecrementStock(ctx, productID, qty)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decrement stock")
	}
	return applied, nil
}

func (s *service) RestoreStock(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error {
	if qty <= 0 {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "quantity must be positive, got %d", qty)
	}
	if err := s.repo.WithTx(tx).RestoreStock(ctx, productID, qty); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "restore stock")
	}
	return nil
}

func validateCreate(input CreateProductInput) error {
	if input.Name == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "name required")
	}
	if input.Price <= 0 {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "price must be positive, got %d", input.Price)
	}
	if input.DiscountPrice != nil && *input.DiscountPrice <= 0 {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "discount price must be positive, got %d", *input.DiscountPrice)
	}
	if input.Stock < 0 {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "stock must not be negative, got %d", input.Stock)
	}
	if input.City == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "city required")
	}
	if !input.DeliveryType.IsValid() {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "invalid delivery type %q", input.DeliveryType)
	}
	if !input.PaymentPolicy.IsValid() {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "invalid payment policy %q", input.PaymentPolicy)
	}
	if !input.VendorFeeMode.IsValid() {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "invalid vendor fee mode %q", input.VendorFeeMode)
	}
	return nil
}

func applyUpdate(product *models.Product, input UpdateProductInput) {
	if input.Name != nil {
		product.Name = *input.Name
	}
	if input.Price != nil {
		product.Price = *input.Price
	}
	if input.DiscountPrice != nil {
		product.DiscountPrice = input.DiscountPrice
	}
	if input.Stock != nil {
		product.Stock = *input.Stock
	}
	if input.City != nil {
		product.City = cities.Title(*input.City)
	}
	if input.PaymentPolicy != nil {
		product.PaymentPolicy = *input.PaymentPolicy
	}
	if input.MTNEnabled != nil {
		product.MTNEnabled = *input.MTNEnabled
	}
	if input.OrangeEnabled != nil {
		product.OrangeEnabled = *input.OrangeEnabled
	}
	if input.VendorFeeMode != nil {
		product.VendorFeeMode = *input.VendorFeeMode
	}
	if input.VendorFlatFee != nil {
		product.VendorFlatFee = *input.VendorFlatFee
	}
	if input.VendorFeeSameCity != nil {
		product.VendorFeeSameCity = *input.VendorFeeSameCity
	}
	if input.VendorFeeOtherCity != nil {
		product.VendorFeeOtherCity = *input.VendorFeeOtherCity
	}
}
