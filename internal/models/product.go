package models

import (
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// Product status values.
const (
	ProductStatusActive   = "active"
	ProductStatusInactive = "inactive"
	ProductStatusDraft    = "draft"
)

type Product struct {
	BaseModel
	CategoryID       *uuid.UUID          `gorm:"type:uuid;index" json:"category_id"`
	Category         *Category           `json:"category,omitempty"`
	Name             string              `json:"name"`
	Slug             string              `gorm:"uniqueIndex" json:"slug"`
	Description      string              `json:"description"`
	ShortDescription string              `json:"short_description"`
	SKU              string              `gorm:"uniqueIndex" json:"sku"`
	Price            decimal.Decimal     `gorm:"type:decimal(10,2)" json:"price"`
	SalePrice        decimal.NullDecimal `gorm:"type:decimal(10,2)" json:"sale_price"`
	StockQuantity    int                 `json:"stock_quantity"`
	ManageStock      bool                `gorm:"default:true" json:"manage_stock"`
	InStock          bool                `gorm:"default:true" json:"in_stock"`
	Status           string              `gorm:"default:active;index" json:"status"`
	FeaturedImage    string              `json:"featured_image"`
	GalleryImages    pq.StringArray      `gorm:"type:text[]" json:"gallery_images"`
	Weight           decimal.NullDecimal `gorm:"type:decimal(10,2)" json:"weight"`
	IsFeatured       bool                `json:"is_featured"`
	IsDigital        bool                `json:"is_digital"`
	Attributes       string              `json:"attributes"`
	ViewsCount       int                 `json:"views_count"`
	AverageRating    decimal.Decimal     `gorm:"type:decimal(3,2)" json:"average_rating"`
	ReviewsCount     int                 `json:"reviews_count"`
	Reviews          []Review            `json:"reviews,omitempty"`
}

// EffectivePrice returns the sale price when it is set and lower than the
// list price, otherwise the list price.
func (p *Product) EffectivePrice() decimal.Decimal {
	if p.SalePrice.Valid && p.SalePrice.Decimal.LessThan(p.Price) {
		return p.SalePrice.Decimal
	}
	return p.Price
}

// Available reports whether the product can be added to a cart right now.
// Stock quantity only matters when the product is stock-managed.
func (p *Product) Available() bool {
	if p.Status != ProductStatusActive || !p.InStock {
		return false
	}
	if p.ManageStock && p.StockQuantity <= 0 {
		return false
	}
	return true
}

// Review is a customer review, at most one per user per product.
type Review struct {
	BaseModel
	UserID             uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_review_user_product" json:"user_id"`
	User               *User     `json:"user,omitempty"`
	ProductID          uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_review_user_product;index" json:"product_id"`
	Product            *Product  `json:"product,omitempty"`
	Rating             int       `json:"rating"`
	Title              string    `json:"title"`
	Comment            string    `json:"comment"`
	IsVerifiedPurchase bool      `json:"is_verified_purchase"`
	IsApproved         bool      `gorm:"default:true" json:"is_approved"`
}
