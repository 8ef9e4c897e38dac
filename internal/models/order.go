package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus tracks fulfilment progress. It moves independently from
// PaymentStatus.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusRefunded   OrderStatus = "refunded"
)

// PaymentStatus tracks the money side of an order.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

var orderStatusTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled, OrderStatusRefunded},
	OrderStatusShipped:    {OrderStatusDelivered, OrderStatusRefunded},
	OrderStatusDelivered:  {OrderStatusRefunded},
	OrderStatusCancelled:  {},
	OrderStatusRefunded:   {},
}

var paymentStatusTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending:  {PaymentStatusPaid, PaymentStatusFailed},
	PaymentStatusPaid:     {PaymentStatusRefunded},
	PaymentStatusFailed:   {},
	PaymentStatusRefunded: {},
}

// CanTransitionTo reports whether the fulfilment state machine allows the move.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderStatusTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// CanTransitionTo reports whether the payment state machine allows the move.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	for _, allowed := range paymentStatusTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Address is the billing/shipping snapshot copied onto an order. Later edits
// to the customer's profile never touch placed orders.
type Address struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Address    string `json:"address"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// Order is immutable once created; totals and item snapshots are frozen at
// placement time.
type Order struct {
	BaseModel
	OrderNumber     string          `gorm:"uniqueIndex" json:"order_number"`
	UserID          uuid.UUID       `gorm:"type:uuid;index" json:"user_id"`
	User            *User           `json:"user,omitempty"`
	Status          OrderStatus     `gorm:"default:pending" json:"status"`
	PaymentStatus   PaymentStatus   `gorm:"default:pending" json:"payment_status"`
	Subtotal        decimal.Decimal `gorm:"type:decimal(10,2)" json:"subtotal"`
	TaxAmount       decimal.Decimal `gorm:"type:decimal(10,2)" json:"tax_amount"`
	ShippingAmount  decimal.Decimal `gorm:"type:decimal(10,2)" json:"shipping_amount"`
	DiscountAmount  decimal.Decimal `gorm:"type:decimal(10,2)" json:"discount_amount"`
	TotalAmount     decimal.Decimal `gorm:"type:decimal(10,2)" json:"total_amount"`
	Currency        string          `gorm:"default:USD" json:"currency"`
	PaymentMethod   string          `json:"payment_method"`
	PaymentID       string          `gorm:"index" json:"payment_id"`
	BillingAddress  Address         `gorm:"serializer:json" json:"billing_address"`
	ShippingAddress Address         `gorm:"serializer:json" json:"shipping_address"`
	ShippingMethod  string          `json:"shipping_method"`
	TrackingNumber  string          `json:"tracking_number"`
	ShippedAt       *time.Time      `json:"shipped_at"`
	DeliveredAt     *time.Time      `json:"delivered_at"`
	Notes           string          `json:"notes"`
	Items           []OrderItem     `json:"items,omitempty"`
}

// CanBeCancelled gates customer-initiated cancellation.
func (o *Order) CanBeCancelled() bool {
	return o.Status == OrderStatusPending || o.Status == OrderStatusProcessing
}

// TotalItems sums the quantities across all order lines.
func (o *Order) TotalItems() int {
	total := 0
	for _, item := range o.Items {
		total += item.Quantity
	}
	return total
}

// OrderItem is a denormalized snapshot of the product at purchase time.
// ProductID is nullable so deleting a product leaves history intact.
type OrderItem struct {
	BaseModel
	OrderID        uuid.UUID       `gorm:"type:uuid;index" json:"order_id"`
	ProductID      *uuid.UUID      `gorm:"type:uuid;index" json:"product_id"`
	Product        *Product        `json:"product,omitempty"`
	ProductName    string          `json:"product_name"`
	ProductSKU     string          `json:"product_sku"`
	Quantity       int             `json:"quantity"`
	UnitPrice      decimal.Decimal `gorm:"type:decimal(10,2)" json:"unit_price"`
	TotalPrice     decimal.Decimal `gorm:"type:decimal(10,2)" json:"total_price"`
	ProductOptions string          `json:"product_options"`
}
