package services

import (
	"github.com/shopspring/decimal"

	"github.com/example/storefront/internal/models"
)

// Pricing constants shared by the checkout quote and order placement so both
// always compute identical figures.
var (
	taxRate               = decimal.RequireFromString("0.08")
	freeShippingThreshold = decimal.RequireFromString("100")
	standardShippingFee   = decimal.RequireFromString("9.99")
)

// Quote is the monetary breakdown for a cart about to become an order.
// All fields are rounded to 2 decimals, half up.
type Quote struct {
	Subtotal       decimal.Decimal `json:"subtotal"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	ShippingAmount decimal.Decimal `json:"shipping_amount"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	ItemCount      int             `json:"item_count"`
}

// QuoteFromLines recomputes the full breakdown from live cart rows. Totals
// are never trusted from client input.
func QuoteFromLines(items []models.CartItem) Quote {
	subtotal := decimal.Zero
	count := 0
	for _, item := range items {
		subtotal = subtotal.Add(item.TotalPrice())
		count += item.Quantity
	}
	subtotal = subtotal.Round(2)

	tax := subtotal.Mul(taxRate).Round(2)
	shipping := shippingFor(subtotal)
	discount := decimal.Zero

	return Quote{
		Subtotal:       subtotal,
		TaxAmount:      tax,
		ShippingAmount: shipping,
		DiscountAmount: discount,
		TotalAmount:    subtotal.Add(tax).Add(shipping).Sub(discount).Round(2),
		ItemCount:      count,
	}
}

// shippingFor is free at or above the threshold, otherwise the flat fee.
func shippingFor(subtotal decimal.Decimal) decimal.Decimal {
	if subtotal.GreaterThanOrEqual(freeShippingThreshold) {
		return decimal.Zero
	}
	return standardShippingFee
}
