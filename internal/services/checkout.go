package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/storefront/internal/models"
)

const orderNumberAttempts = 5

// CheckoutService converts a cart into an immutable order: it reserves stock,
// captures payment and reconciles asynchronous gateway webhooks.
type CheckoutService struct {
	db             *gorm.DB
	cart           *CartService
	gateway        PaymentGateway
	captureTimeout time.Duration
	telegram       *TelegramService

	// numberFn produces candidate order numbers; swapped out in tests to
	// force collisions through the retry loop.
	numberFn func() (string, error)
}

// NewCheckoutService constructs CheckoutService. telegram may be nil.
func NewCheckoutService(db *gorm.DB, cart *CartService, gateway PaymentGateway, captureTimeout time.Duration, telegram *TelegramService) *CheckoutService {
	if captureTimeout <= 0 {
		captureTimeout = 20 * time.Second
	}
	return &CheckoutService{
		db:             db,
		cart:           cart,
		gateway:        gateway,
		captureTimeout: captureTimeout,
		telegram:       telegram,
		numberFn:       generateOrderNumber,
	}
}

// PlaceOrderInput carries the client-submitted parts of a checkout. Totals
// are deliberately absent: they are always recomputed server-side.
type PlaceOrderInput struct {
	BillingAddress  models.Address
	ShippingAddress models.Address
	PaymentMethod   string
	PaymentToken    string
	Notes           string
}

// BeginCheckout loads the user's cart and returns the recomputed quote.
func (s *CheckoutService) BeginCheckout(ctx context.Context, userID uuid.UUID) (*Quote, []models.CartItem, error) {
	items, err := s.cartLines(s.db.WithContext(ctx), UserOwner(userID))
	if err != nil {
		return nil, nil, err
	}
	if len(items) == 0 {
		return nil, nil, ErrEmptyCart
	}

	quote := QuoteFromLines(items)
	return &quote, items, nil
}

// CreatePaymentIntent registers a gateway intent for the current cart total
// and returns the client secret the frontend confirms against.
func (s *CheckoutService) CreatePaymentIntent(ctx context.Context, userID uuid.UUID) (*PaymentIntent, *Quote, error) {
	quote, items, err := s.BeginCheckout(ctx, userID)
	if err != nil {
		return nil, nil, err
	}

	intent, err := s.gateway.CreateIntent(ctx, quote.TotalAmount, "USD", map[string]string{
		"user_id":          userID.String(),
		"cart_items_count": strconv.Itoa(len(items)),
	})
	if err != nil {
		return nil, nil, err
	}

	return intent, quote, nil
}

// PlaceOrder runs the whole placement as one transaction: cart re-fetch,
// server-side totals, unique order number, denormalized items, conditional
// stock decrements, then payment capture as the final step. Any failure rolls
// the entire transaction back, leaving the cart untouched for a retry.
func (s *CheckoutService) PlaceOrder(ctx context.Context, userID uuid.UUID, in PlaceOrderInput) (*models.Order, error) {
	owner := UserOwner(userID)
	var order models.Order

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		items, err := s.cartLines(tx, owner)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			// The cart may have emptied between page load and submit.
			return ErrEmptyCart
		}

		products, err := s.lockProducts(tx, items)
		if err != nil {
			return err
		}

		for _, item := range items {
			product, ok := products[item.ProductID]
			if !ok {
				return fmt.Errorf("%w: a product in your cart is no longer available", ErrUnavailable)
			}
			if !product.Available() {
				return fmt.Errorf("%w: %s is no longer available", ErrUnavailable, product.Name)
			}
			if product.ManageStock && item.Quantity > product.StockQuantity {
				return fmt.Errorf("%w: only %d of %s available", ErrInsufficientStock, product.StockQuantity, product.Name)
			}
		}

		quote := QuoteFromLines(items)

		order = models.Order{
			UserID:          userID,
			Status:          models.OrderStatusPending,
			PaymentStatus:   models.PaymentStatusPending,
			Subtotal:        quote.Subtotal,
			TaxAmount:       quote.TaxAmount,
			ShippingAmount:  quote.ShippingAmount,
			DiscountAmount:  quote.DiscountAmount,
			TotalAmount:     quote.TotalAmount,
			Currency:        "USD",
			PaymentMethod:   in.PaymentMethod,
			BillingAddress:  in.BillingAddress,
			ShippingAddress: in.ShippingAddress,
			Notes:           in.Notes,
		}
		for _, item := range items {
			product := products[item.ProductID]
			productID := item.ProductID
			order.Items = append(order.Items, models.OrderItem{
				ProductID:      &productID,
				ProductName:    product.Name,
				ProductSKU:     product.SKU,
				Quantity:       item.Quantity,
				UnitPrice:      item.Price,
				TotalPrice:     item.TotalPrice(),
				ProductOptions: item.ProductOptions,
			})
		}

		if err := s.createWithUniqueNumber(tx, &order); err != nil {
			return err
		}

		for _, item := range items {
			product := products[item.ProductID]
			if !product.ManageStock {
				continue
			}
			result := tx.Model(&models.Product{}).
				Where("id = ? AND manage_stock = ? AND stock_quantity >= ?", product.ID, true, item.Quantity).
				Update("stock_quantity", gorm.Expr("stock_quantity - ?", item.Quantity))
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				return fmt.Errorf("%w: only %d of %s available", ErrInsufficientStock, product.StockQuantity, product.Name)
			}
		}

		// Capture runs last so a decline aborts the transaction cleanly,
		// and with a bounded timeout so the row locks are never held across
		// an unbounded wait.
		captureCtx, cancel := context.WithTimeout(ctx, s.captureTimeout)
		defer cancel()

		capture, err := s.gateway.Capture(captureCtx, in.PaymentToken)
		if err != nil {
			if errors.Is(err, ErrPaymentFailed) {
				return err
			}
			return fmt.Errorf("%w: %v", ErrPaymentFailed, err)
		}

		order.PaymentStatus = models.PaymentStatusPaid
		order.Status = models.OrderStatusProcessing
		order.PaymentID = capture.PaymentID
		if err := tx.Model(&models.Order{}).Where("id = ?", order.ID).
			Updates(map[string]interface{}{
				"payment_status": order.PaymentStatus,
				"status":         order.Status,
				"payment_id":     order.PaymentID,
			}).Error; err != nil {
			return err
		}

		return tx.Delete(&models.CartItem{}, "owner_key = ?", owner.Key()).Error
	})
	if err != nil {
		return nil, err
	}

	if s.telegram != nil {
		placed := order
		go func() {
			if err := s.telegram.NotifyNewOrder(placed); err != nil {
				log.Printf("[Checkout] Telegram notification failed for order %s: %v", placed.OrderNumber, err)
			}
		}()
	}

	return &order, nil
}

// HandlePaymentWebhook reconciles an asynchronous gateway event, idempotent
// by payment id and current payment status. It tolerates duplicates and has
// no ordering guarantee relative to the synchronous path.
func (s *CheckoutService) HandlePaymentWebhook(ctx context.Context, event PaymentEvent) error {
	if event.Type != EventPaymentSucceeded && event.Type != EventPaymentFailed {
		return fmt.Errorf("unhandled webhook event %w", ErrNotFound)
	}
	if event.PaymentID == "" {
		return fmt.Errorf("order %w", ErrNotFound)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order models.Order
		if err := lockForUpdate(tx).First(&order, "payment_id = ?", event.PaymentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("order %w", ErrNotFound)
			}
			return err
		}

		switch event.Type {
		case EventPaymentSucceeded:
			if order.PaymentStatus == models.PaymentStatusPaid {
				// Duplicate delivery.
				return nil
			}
			if !order.PaymentStatus.CanTransitionTo(models.PaymentStatusPaid) {
				return ErrInvalidTransition
			}
			updates := map[string]interface{}{"payment_status": models.PaymentStatusPaid}
			if order.Status.CanTransitionTo(models.OrderStatusProcessing) {
				updates["status"] = models.OrderStatusProcessing
			}
			return tx.Model(&models.Order{}).Where("id = ?", order.ID).Updates(updates).Error

		default: // EventPaymentFailed
			if order.PaymentStatus == models.PaymentStatusFailed {
				return nil
			}
			if !order.PaymentStatus.CanTransitionTo(models.PaymentStatusFailed) {
				return ErrInvalidTransition
			}

			updates := map[string]interface{}{"payment_status": models.PaymentStatusFailed}
			if order.Status.CanTransitionTo(models.OrderStatusCancelled) {
				updates["status"] = models.OrderStatusCancelled
			}
			if err := tx.Model(&models.Order{}).Where("id = ?", order.ID).Updates(updates).Error; err != nil {
				return err
			}

			var orderItems []models.OrderItem
			if err := tx.Where("order_id = ?", order.ID).Find(&orderItems).Error; err != nil {
				return err
			}
			return restoreStock(tx, orderItems)
		}
	})
}

// CancelOrder cancels a customer's own order while it is still pending or
// processing, restoring the stock that was decremented for it.
func (s *CheckoutService) CancelOrder(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockForUpdate(tx).First(&order, "id = ?", orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("order %w", ErrNotFound)
			}
			return err
		}

		if order.UserID != userID {
			return ErrUnauthorized
		}

		if !order.CanBeCancelled() {
			return fmt.Errorf("%w: order is %s", ErrInvalidTransition, order.Status)
		}

		order.Status = models.OrderStatusCancelled
		if err := tx.Model(&models.Order{}).Where("id = ?", order.ID).
			Update("status", order.Status).Error; err != nil {
			return err
		}

		var orderItems []models.OrderItem
		if err := tx.Where("order_id = ?", order.ID).Find(&orderItems).Error; err != nil {
			return err
		}
		order.Items = orderItems
		return restoreStock(tx, orderItems)
	})
	if err != nil {
		return nil, err
	}

	return &order, nil
}

// UpdateOrderStatus moves an order along the fulfilment state machine,
// rejecting moves the transition table does not allow. Used by the admin
// surface for shipped/delivered progression.
func (s *CheckoutService) UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, next models.OrderStatus) (*models.Order, error) {
	var order models.Order

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockForUpdate(tx).First(&order, "id = ?", orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("order %w", ErrNotFound)
			}
			return err
		}

		if !order.Status.CanTransitionTo(next) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, order.Status, next)
		}

		now := time.Now()
		updates := map[string]interface{}{"status": next}
		switch next {
		case models.OrderStatusShipped:
			updates["shipped_at"] = &now
			order.ShippedAt = &now
		case models.OrderStatusDelivered:
			updates["delivered_at"] = &now
			order.DeliveredAt = &now
		case models.OrderStatusCancelled:
			var orderItems []models.OrderItem
			if err := tx.Where("order_id = ?", order.ID).Find(&orderItems).Error; err != nil {
				return err
			}
			if err := restoreStock(tx, orderItems); err != nil {
				return err
			}
		}

		order.Status = next
		return tx.Model(&models.Order{}).Where("id = ?", order.ID).Updates(updates).Error
	})
	if err != nil {
		return nil, err
	}

	return &order, nil
}

func (s *CheckoutService) cartLines(tx *gorm.DB, owner Owner) ([]models.CartItem, error) {
	var items []models.CartItem
	err := tx.Preload("Product").
		Where("owner_key = ?", owner.Key()).
		Order("created_at asc").
		Find(&items).Error
	return items, err
}

func (s *CheckoutService) lockProducts(tx *gorm.DB, items []models.CartItem) (map[uuid.UUID]*models.Product, error) {
	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}

	var products []models.Product
	if err := lockForUpdate(tx).Where("id IN ?", ids).Find(&products).Error; err != nil {
		return nil, err
	}

	byID := make(map[uuid.UUID]*models.Product, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}
	return byID, nil
}

// createWithUniqueNumber inserts the order under a fresh order number,
// retrying on a uniqueness-constraint violation. The savepoint keeps a failed
// insert from poisoning the surrounding transaction.
func (s *CheckoutService) createWithUniqueNumber(tx *gorm.DB, order *models.Order) error {
	for attempt := 0; attempt < orderNumberAttempts; attempt++ {
		number, err := s.numberFn()
		if err != nil {
			return err
		}
		order.OrderNumber = number

		if err := tx.SavePoint("sp_create_order").Error; err != nil {
			return err
		}
		err = tx.Create(order).Error
		if err == nil {
			return nil
		}
		if !isUniqueViolation(err) {
			return err
		}
		if err := tx.RollbackTo("sp_create_order").Error; err != nil {
			return err
		}
	}
	return errors.New("could not allocate a unique order number")
}

// generateOrderNumber builds the customer-visible ORD-YYYY-NNNNNN reference.
// Uniqueness is enforced by the order_number index at insert time, not here.
func generateOrderNumber() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("ORD-%d-%06d", time.Now().Year(), n.Int64()), nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLSTATE 23505") ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}

// restoreStock puts purchased quantities back for stock-managed products.
// Products deleted since the order was placed match no row and are skipped.
func restoreStock(tx *gorm.DB, items []models.OrderItem) error {
	for _, item := range items {
		if item.ProductID == nil {
			continue
		}
		if err := tx.Model(&models.Product{}).
			Where("id = ? AND manage_stock = ?", *item.ProductID, true).
			Update("stock_quantity", gorm.Expr("stock_quantity + ?", item.Quantity)).Error; err != nil {
			return err
		}
	}
	return nil
}
