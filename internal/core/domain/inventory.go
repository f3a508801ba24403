package domain

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// MaxQuantity is the largest stock count a row may hold; both schemas store it as a 32-bit integer.
const MaxQuantity = math.MaxInt32

type InventoryRecord struct {
	ProductCode string          `json:"product_code"`
	ProductID   int64           `json:"product_id"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    int             `json:"quantity"` // never negative
	Promotional bool            `json:"promotional"`
	PromoCode   *string         `json:"promo_code,omitempty"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (r InventoryRecord) Validate() error {
	if !productCodePattern.MatchString(r.ProductCode) {
		return invalid("product_code", "must be 12 digits")
	}
	if r.ProductID <= 0 {
		return invalid("product_id", "must be positive")
	}
	if r.UnitPrice.IsNegative() {
		return invalid("unit_price", "must be non-negative")
	}
	if r.Quantity < 0 {
		return invalid("quantity", "must be non-negative")
	}
	if r.Quantity > MaxQuantity {
		return invalid("quantity", fmt.Sprintf("must not exceed %d", MaxQuantity))
	}
	if r.PromoCode != nil && !productCodePattern.MatchString(*r.PromoCode) {
		return invalid("promo_code", "must be 12 digits")
	}
	return nil
}

// InventoryListing is a store product row joined with its catalog name.
type InventoryListing struct {
	InventoryRecord
	ProductName string `json:"product_name"`
}

type InventorySort string

const (
	// SortByQuantity lists the largest stock first.
	SortByQuantity InventorySort = "quantity"
	SortByName     InventorySort = "name"
)

type InventoryFilter struct {
	// Promotional narrows to promotional or regular rows; nil lists both.
	Promotional *bool
	SortBy      InventorySort
}

func (f InventoryFilter) Validate() error {
	switch f.SortBy {
	case "", SortByQuantity, SortByName:
		return nil
	}
	return invalid("sort", "must be quantity or name")
}
