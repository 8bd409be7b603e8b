package order

import (
	"context"
	"fmt"
	"strings"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/apperr"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/catalog"
)

const (
	CodeProductNotFound   = "PRODUCT_NOT_FOUND"
	CodeOutOfStock        = "OUT_OF_STOCK"
	CodeInsufficientStock = "INSUFFICIENT_STOCK"
	CodePriceMismatch     = "PRICE_MISMATCH"
	CodeInvalidItem       = "INVALID_ITEM"
)

// ItemRequest is one requested line as submitted by the client.
type ItemRequest struct {
	ProductID uuid.UUID       `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

type ValidationError struct {
	Index     int       `json:"index"`
	ProductID uuid.UUID `json:"product_id"`
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Available int       `json:"available,omitempty"`
	Requested int       `json:"requested,omitempty"`
}

// ValidationErrors carries every item-level problem found in one request.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	msgs := make([]string, 0, len(v))
	for _, e := range v {
		msgs = append(msgs, fmt.Sprintf("item %d: %s", e.Index, e.Message))
	}
	return "order validation failed: " + strings.Join(msgs, "; ")
}

func (v ValidationErrors) ErrorKind() apperr.Kind {
	return apperr.KindValidation
}

func (v ValidationErrors) Is(target error) bool {
	return target == apperr.ErrValidation
}

type ProductReader interface {
	GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]catalog.Product, error)
}

type Validator struct {
	products ProductReader
}

func NewValidator(products ProductReader) *Validator {
	return &Validator{products: products}
}

// Validate checks every item against the catalog and returns all problems found.
// A non-nil error means the catalog could not be read.
func (v *Validator) Validate(ctx context.Context, items []ItemRequest) (ValidationErrors, error) {
	verrs, _, err := v.check(ctx, items)
	return verrs, err
}

func (v *Validator) check(ctx context.Context, items []ItemRequest) (ValidationErrors, map[uuid.UUID]catalog.Product, error) {
	ids := make([]uuid.UUID, 0, len(items))
	// requested sums the quantity of a product across every line it appears on
	requested := make(map[uuid.UUID]int, len(items))
	for _, item := range items {
		if item.ProductID == uuid.Nil {
			continue
		}
		if _, ok := requested[item.ProductID]; !ok {
			ids = append(ids, item.ProductID)
		}
		requested[item.ProductID] += max(item.Quantity, 0)
	}

	products, err := v.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, nil, fmt.Errorf("validator: failed to read catalog: %w", err)
	}

	var verrs ValidationErrors
	for i, item := range items {
		if e, ok := checkItem(i, item, requested[item.ProductID], products); !ok {
			verrs = append(verrs, e)
		}
	}
	return verrs, products, nil
}

func checkItem(i int, item ItemRequest, requested int, products map[uuid.UUID]catalog.Product) (ValidationError, bool) {
	e := ValidationError{Index: i, ProductID: item.ProductID}

	switch {
	case item.ProductID == uuid.Nil:
		e.Code, e.Message = CodeInvalidItem, "product id is required"
		return e, false
	case item.Quantity < 1:
		e.Code, e.Message = CodeInvalidItem, fmt.Sprintf("quantity for product %s must be at least 1, got %d", item.ProductID, item.Quantity)
		return e, false
	case item.Price.IsNegative():
		e.Code, e.Message = CodeInvalidItem, fmt.Sprintf("price for product %s cannot be negative", item.ProductID)
		return e, false
	}

	p, ok := products[item.ProductID]
	if !ok {
		e.Code, e.Message = CodeProductNotFound, fmt.Sprintf("product %s not found", item.ProductID)
		return e, false
	}
	if !p.InStock {
		e.Code, e.Message = CodeOutOfStock, fmt.Sprintf("product %s is out of stock", item.ProductID)
		return e, false
	}
	if p.Stock < requested {
		e.Code = CodeInsufficientStock
		e.Available, e.Requested = p.Stock, requested
		e.Message = fmt.Sprintf("insufficient stock for product %s: %d available, requested %d", item.ProductID, p.Stock, requested)
		return e, false
	}
	if !item.Price.Equal(p.Price) {
		e.Code, e.Message = CodePriceMismatch, fmt.Sprintf("price for product %s changed: submitted %s, current %s", item.ProductID, item.Price.String(), p.Price.String())
		return e, false
	}
	return e, true
}
