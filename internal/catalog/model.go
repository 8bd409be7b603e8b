package catalog

import (
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

// Product is the read model of a catalog entry as the order engine sees it.
type Product struct {
	ID        uuid.UUID       `json:"id" db:"id"`
	SKU       string          `json:"sku" db:"sku"`
	NameEn    string          `json:"name_en" db:"name_en"`
	NameAr    string          `json:"name_ar" db:"name_ar"`
	Price     decimal.Decimal `json:"price" db:"price"`
	Stock     int             `json:"stock" db:"stock"`
	InStock   bool            `json:"in_stock" db:"in_stock"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}
