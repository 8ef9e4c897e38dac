package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CartItem is one line of a shopper's cart. OwnerKey scopes the row to either
// a user or a guest session, and the composite unique index guarantees at most
// one line per (owner, product, options) tuple even under concurrent adds.
type CartItem struct {
	BaseModel
	OwnerKey           string          `gorm:"uniqueIndex:idx_cart_owner_line;index" json:"owner_key"`
	ProductID          uuid.UUID       `gorm:"type:uuid;uniqueIndex:idx_cart_owner_line" json:"product_id"`
	OptionsFingerprint string          `gorm:"uniqueIndex:idx_cart_owner_line" json:"-"`
	Product            *Product        `json:"product,omitempty"`
	Quantity           int             `json:"quantity"`
	Price              decimal.Decimal `gorm:"type:decimal(10,2)" json:"price"`
	ProductOptions     string          `json:"product_options"`
}

// TotalPrice is the line total at the last captured price snapshot.
func (ci *CartItem) TotalPrice() decimal.Decimal {
	return ci.Price.Mul(decimal.NewFromInt(int64(ci.Quantity)))
}

// WishlistItem mirrors the cart's owner scoping without price or stock
// implications.
type WishlistItem struct {
	BaseModel
	OwnerKey  string    `gorm:"uniqueIndex:idx_wishlist_owner_product;index" json:"owner_key"`
	ProductID uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_wishlist_owner_product" json:"product_id"`
	Product   *Product  `json:"product,omitempty"`
}
