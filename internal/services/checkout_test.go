package services

import (
	"context"
	"regexp"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/example/storefront/internal/models"
)

func newTestCheckout(db *gorm.DB, gateway PaymentGateway) (*CheckoutService, *CartService) {
	cart := NewCartService(db)
	return NewCheckoutService(db, cart, gateway, 0, nil), cart
}

func testAddress() models.Address {
	return models.Address{
		Name:    "Test Shopper",
		Email:   "shopper@example.com",
		Address: "1 Main St",
		City:    "Springfield",
		Country: "US",
	}
}

func TestQuoteFromLinesRounding(t *testing.T) {
	items := []models.CartItem{
		{Quantity: 3, Price: decimal.RequireFromString("19.99")},
	}

	quote := QuoteFromLines(items)

	assert.True(t, quote.Subtotal.Equal(decimal.RequireFromString("59.97")), "subtotal %s", quote.Subtotal)
	// 59.97 * 0.08 = 4.7976, rounded half up to 4.80
	assert.True(t, quote.TaxAmount.Equal(decimal.RequireFromString("4.80")), "tax %s", quote.TaxAmount)
	assert.True(t, quote.ShippingAmount.Equal(decimal.RequireFromString("9.99")), "shipping %s", quote.ShippingAmount)
	assert.True(t, quote.TotalAmount.Equal(decimal.RequireFromString("74.76")), "total %s", quote.TotalAmount)
	assert.Equal(t, 3, quote.ItemCount)
}

func TestQuoteFreeShippingThreshold(t *testing.T) {
	exactly := QuoteFromLines([]models.CartItem{
		{Quantity: 1, Price: decimal.RequireFromString("100.00")},
	})
	assert.True(t, exactly.ShippingAmount.IsZero(), "shipping at threshold should be free, got %s", exactly.ShippingAmount)

	below := QuoteFromLines([]models.CartItem{
		{Quantity: 1, Price: decimal.RequireFromString("99.99")},
	})
	assert.True(t, below.ShippingAmount.Equal(decimal.RequireFromString("9.99")))
}

func TestPlaceOrderSuccess(t *testing.T) {
	db := newTestDB(t)
	gateway := &fakeGateway{}
	checkout, cart := newTestCheckout(db, gateway)

	user := createTestUser(t, db, "buyer@example.com")
	product := createTestProduct(t, db, "Espresso Machine", "120.00", 4)

	_, _, err := cart.AddItem(context.Background(), UserOwner(user.ID), product.ID, 2, nil)
	require.NoError(t, err)

	order, err := checkout.PlaceOrder(context.Background(), user.ID, PlaceOrderInput{
		BillingAddress:  testAddress(),
		ShippingAddress: testAddress(),
		PaymentMethod:   "card",
		PaymentToken:    "tok_ok",
	})
	require.NoError(t, err)

	assert.Regexp(t, regexp.MustCompile(`^ORD-\d{4}-\d{6}$`), order.OrderNumber)
	assert.Equal(t, models.OrderStatusProcessing, order.Status)
	assert.Equal(t, models.PaymentStatusPaid, order.PaymentStatus)
	assert.Equal(t, "pi_tok_ok", order.PaymentID)
	assert.True(t, order.Subtotal.Equal(decimal.RequireFromString("240.00")))
	assert.True(t, order.ShippingAmount.IsZero())
	assert.True(t, order.TotalAmount.Equal(decimal.RequireFromString("259.20")), "total %s", order.TotalAmount)

	var reloaded models.Product
	require.NoError(t, db.First(&reloaded, "id = ?", product.ID).Error)
	assert.Equal(t, 2, reloaded.StockQuantity)

	count, err := cart.Count(context.Background(), UserOwner(user.ID))
	require.NoError(t, err)
	assert.Zero(t, count, "cart should be emptied after placement")

	var items []models.OrderItem
	require.NoError(t, db.Where("order_id = ?", order.ID).Find(&items).Error)
	require.Len(t, items, 1)
	assert.Equal(t, product.Name, items[0].ProductName)
	assert.True(t, items[0].UnitPrice.Equal(decimal.RequireFromString("120.00")))
}

func TestPlaceOrderEmptyCart(t *testing.T) {
	db := newTestDB(t)
	checkout, _ := newTestCheckout(db, &fakeGateway{})
	user := createTestUser(t, db, "empty@example.com")

	_, err := checkout.PlaceOrder(context.Background(), user.ID, PlaceOrderInput{
		BillingAddress: testAddress(),
		PaymentToken:   "tok_ok",
	})
	assert.ErrorIs(t, err, ErrEmptyCart)
}

func TestPlaceOrderDeclineRollsBackEverything(t *testing.T) {
	db := newTestDB(t)
	gateway := &fakeGateway{captureErr: ErrPaymentFailed}
	checkout, cart := newTestCheckout(db, gateway)

	user := createTestUser(t, db, "declined@example.com")
	product := createTestProduct(t, db, "Headphones", "59.00", 3)

	_, _, err := cart.AddItem(context.Background(), UserOwner(user.ID), product.ID, 2, nil)
	require.NoError(t, err)

	_, err = checkout.PlaceOrder(context.Background(), user.ID, PlaceOrderInput{
		BillingAddress: testAddress(),
		PaymentToken:   "tok_declined",
	})
	assert.ErrorIs(t, err, ErrPaymentFailed)

	var orders int64
	require.NoError(t, db.Model(&models.Order{}).Count(&orders).Error)
	assert.Zero(t, orders, "declined order must not persist")

	var reloaded models.Product
	require.NoError(t, db.First(&reloaded, "id = ?", product.ID).Error)
	assert.Equal(t, 3, reloaded.StockQuantity, "stock must be untouched after rollback")

	count, err := cart.Count(context.Background(), UserOwner(user.ID))
	require.NoError(t, err)
	assert.Equal(t, 2, count, "cart must survive a failed checkout")
}

func TestPlaceOrderLastUnitContention(t *testing.T) {
	db := newTestDB(t)
	checkout, cart := newTestCheckout(db, &fakeGateway{})

	alice := createTestUser(t, db, "alice@example.com")
	bob := createTestUser(t, db, "bob@example.com")
	product := createTestProduct(t, db, "Collector Vinyl", "45.00", 1)

	_, _, err := cart.AddItem(context.Background(), UserOwner(alice.ID), product.ID, 1, nil)
	require.NoError(t, err)
	_, _, err = cart.AddItem(context.Background(), UserOwner(bob.ID), product.ID, 1, nil)
	require.NoError(t, err)

	_, err = checkout.PlaceOrder(context.Background(), alice.ID, PlaceOrderInput{
		BillingAddress: testAddress(),
		PaymentToken:   "tok_alice",
	})
	require.NoError(t, err)

	_, err = checkout.PlaceOrder(context.Background(), bob.ID, PlaceOrderInput{
		BillingAddress: testAddress(),
		PaymentToken:   "tok_bob",
	})
	assert.ErrorIs(t, err, ErrInsufficientStock, "second buyer of the last unit must be refused")

	var reloaded models.Product
	require.NoError(t, db.First(&reloaded, "id = ?", product.ID).Error)
	assert.Zero(t, reloaded.StockQuantity)
	assert.GreaterOrEqual(t, reloaded.StockQuantity, 0, "stock may never go negative")
}

func TestOrderPriceSnapshotIsImmutable(t *testing.T) {
	db := newTestDB(t)
	checkout, cart := newTestCheckout(db, &fakeGateway{})

	user := createTestUser(t, db, "snapshot@example.com")
	product := createTestProduct(t, db, "Standing Desk", "300.00", 5)

	_, _, err := cart.AddItem(context.Background(), UserOwner(user.ID), product.ID, 1, nil)
	require.NoError(t, err)

	order, err := checkout.PlaceOrder(context.Background(), user.ID, PlaceOrderInput{
		BillingAddress: testAddress(),
		PaymentToken:   "tok_snap",
	})
	require.NoError(t, err)

	require.NoError(t, db.Model(&models.Product{}).Where("id = ?", product.ID).
		Update("price", decimal.RequireFromString("350.00")).Error)

	var item models.OrderItem
	require.NoError(t, db.First(&item, "order_id = ?", order.ID).Error)
	assert.True(t, item.UnitPrice.Equal(decimal.RequireFromString("300.00")),
		"order item keeps the price paid, got %s", item.UnitPrice)
}

// seedWebhookOrder creates a paid-pending order the way the webhook sees one
// that was placed but whose capture is still settling.
func seedWebhookOrder(t *testing.T, db *gorm.DB, userID uuid.UUID, productID *uuid.UUID, qty int) models.Order {
	t.Helper()

	order := models.Order{
		OrderNumber:   "ORD-2026-" + uuid.NewString()[:6],
		UserID:        userID,
		Status:        models.OrderStatusPending,
		PaymentStatus: models.PaymentStatusPending,
		PaymentID:     "pi_" + uuid.NewString()[:8],
		TotalAmount:   decimal.RequireFromString("10.00"),
		Items: []models.OrderItem{
			{
				ProductID:   productID,
				ProductName: "Seeded",
				Quantity:    qty,
				UnitPrice:   decimal.RequireFromString("10.00"),
				TotalPrice:  decimal.RequireFromString("10.00"),
			},
		},
	}
	require.NoError(t, db.Create(&order).Error)
	return order
}

func TestWebhookSuccessIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	checkout, _ := newTestCheckout(db, &fakeGateway{})
	user := createTestUser(t, db, "hook@example.com")
	order := seedWebhookOrder(t, db, user.ID, nil, 1)

	event := PaymentEvent{Type: EventPaymentSucceeded, PaymentID: order.PaymentID}

	require.NoError(t, checkout.HandlePaymentWebhook(context.Background(), event))
	require.NoError(t, checkout.HandlePaymentWebhook(context.Background(), event), "duplicate delivery must be a no-op")

	var reloaded models.Order
	require.NoError(t, db.First(&reloaded, "id = ?", order.ID).Error)
	assert.Equal(t, models.PaymentStatusPaid, reloaded.PaymentStatus)
	assert.Equal(t, models.OrderStatusProcessing, reloaded.Status)
}

func TestWebhookFailureRestoresStock(t *testing.T) {
	db := newTestDB(t)
	checkout, _ := newTestCheckout(db, &fakeGateway{})
	user := createTestUser(t, db, "hookfail@example.com")

	product := createTestProduct(t, db, "Webcam", "10.00", 8)
	// Pretend two units were reserved when the order was placed.
	require.NoError(t, db.Model(&product).Update("stock_quantity", 6).Error)

	order := seedWebhookOrder(t, db, user.ID, &product.ID, 2)
	event := PaymentEvent{Type: EventPaymentFailed, PaymentID: order.PaymentID}

	require.NoError(t, checkout.HandlePaymentWebhook(context.Background(), event))

	var reloadedOrder models.Order
	require.NoError(t, db.First(&reloadedOrder, "id = ?", order.ID).Error)
	assert.Equal(t, models.PaymentStatusFailed, reloadedOrder.PaymentStatus)
	assert.Equal(t, models.OrderStatusCancelled, reloadedOrder.Status)

	var reloaded models.Product
	require.NoError(t, db.First(&reloaded, "id = ?", product.ID).Error)
	assert.Equal(t, 8, reloaded.StockQuantity)

	// Replay must not restore twice.
	require.NoError(t, checkout.HandlePaymentWebhook(context.Background(), event))
	require.NoError(t, db.First(&reloaded, "id = ?", product.ID).Error)
	assert.Equal(t, 8, reloaded.StockQuantity)
}

func TestWebhookFailureSkipsDeletedProducts(t *testing.T) {
	db := newTestDB(t)
	checkout, _ := newTestCheckout(db, &fakeGateway{})
	user := createTestUser(t, db, "hookgone@example.com")

	order := seedWebhookOrder(t, db, user.ID, nil, 1)
	event := PaymentEvent{Type: EventPaymentFailed, PaymentID: order.PaymentID}

	require.NoError(t, checkout.HandlePaymentWebhook(context.Background(), event))

	var reloaded models.Order
	require.NoError(t, db.First(&reloaded, "id = ?", order.ID).Error)
	assert.Equal(t, models.PaymentStatusFailed, reloaded.PaymentStatus)
}

func TestWebhookRejectsUnknownEventAndPayment(t *testing.T) {
	db := newTestDB(t)
	checkout, _ := newTestCheckout(db, &fakeGateway{})

	err := checkout.HandlePaymentWebhook(context.Background(), PaymentEvent{Type: "charge.dispute.created", PaymentID: "pi_x"})
	assert.ErrorIs(t, err, ErrNotFound)

	err = checkout.HandlePaymentWebhook(context.Background(), PaymentEvent{Type: EventPaymentSucceeded, PaymentID: "pi_unknown"})
	assert.ErrorIs(t, err, ErrNotFound)

	err = checkout.HandlePaymentWebhook(context.Background(), PaymentEvent{Type: EventPaymentSucceeded})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCancelOrder(t *testing.T) {
	db := newTestDB(t)
	checkout, cart := newTestCheckout(db, &fakeGateway{})

	user := createTestUser(t, db, "cancel@example.com")
	other := createTestUser(t, db, "other@example.com")
	product := createTestProduct(t, db, "Blender", "40.00", 10)

	_, _, err := cart.AddItem(context.Background(), UserOwner(user.ID), product.ID, 2, nil)
	require.NoError(t, err)

	order, err := checkout.PlaceOrder(context.Background(), user.ID, PlaceOrderInput{
		BillingAddress: testAddress(),
		PaymentToken:   "tok_cancel",
	})
	require.NoError(t, err)

	_, err = checkout.CancelOrder(context.Background(), other.ID, order.ID)
	assert.ErrorIs(t, err, ErrUnauthorized)

	cancelled, err := checkout.CancelOrder(context.Background(), user.ID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, cancelled.Status)

	var reloaded models.Product
	require.NoError(t, db.First(&reloaded, "id = ?", product.ID).Error)
	assert.Equal(t, 10, reloaded.StockQuantity, "cancellation must restore stock")

	_, err = checkout.CancelOrder(context.Background(), user.ID, order.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition, "an already cancelled order cannot be cancelled again")
}

func TestCancelOrderRejectedOnceShipped(t *testing.T) {
	db := newTestDB(t)
	checkout, cart := newTestCheckout(db, &fakeGateway{})

	user := createTestUser(t, db, "shipped@example.com")
	product := createTestProduct(t, db, "Bookshelf", "80.00", 5)

	_, _, err := cart.AddItem(context.Background(), UserOwner(user.ID), product.ID, 1, nil)
	require.NoError(t, err)

	order, err := checkout.PlaceOrder(context.Background(), user.ID, PlaceOrderInput{
		BillingAddress: testAddress(),
		PaymentToken:   "tok_ship",
	})
	require.NoError(t, err)

	_, err = checkout.UpdateOrderStatus(context.Background(), order.ID, models.OrderStatusShipped)
	require.NoError(t, err)

	_, err = checkout.CancelOrder(context.Background(), user.ID, order.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestUpdateOrderStatusTransitions(t *testing.T) {
	db := newTestDB(t)
	checkout, cart := newTestCheckout(db, &fakeGateway{})

	user := createTestUser(t, db, "fulfil@example.com")
	product := createTestProduct(t, db, "Monitor", "150.00", 5)

	_, _, err := cart.AddItem(context.Background(), UserOwner(user.ID), product.ID, 1, nil)
	require.NoError(t, err)

	order, err := checkout.PlaceOrder(context.Background(), user.ID, PlaceOrderInput{
		BillingAddress: testAddress(),
		PaymentToken:   "tok_fulfil",
	})
	require.NoError(t, err)

	shipped, err := checkout.UpdateOrderStatus(context.Background(), order.ID, models.OrderStatusShipped)
	require.NoError(t, err)
	require.NotNil(t, shipped.ShippedAt)

	delivered, err := checkout.UpdateOrderStatus(context.Background(), order.ID, models.OrderStatusDelivered)
	require.NoError(t, err)
	require.NotNil(t, delivered.DeliveredAt)

	_, err = checkout.UpdateOrderStatus(context.Background(), order.ID, models.OrderStatusPending)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestOrderNumberUniqueIndex(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, "unique@example.com")

	first := models.Order{OrderNumber: "ORD-2026-000001", UserID: user.ID}
	require.NoError(t, db.Create(&first).Error)

	duplicate := models.Order{OrderNumber: "ORD-2026-000001", UserID: user.ID}
	err := db.Create(&duplicate).Error
	require.Error(t, err, "the order_number index must reject a second insert")
	assert.True(t, isUniqueViolation(err), "rejection must be classified as a unique violation, got %v", err)
}

func TestPlaceOrderRetriesOnOrderNumberCollision(t *testing.T) {
	db := newTestDB(t)
	checkout, cart := newTestCheckout(db, &fakeGateway{})

	user := createTestUser(t, db, "collide@example.com")
	product := createTestProduct(t, db, "Toaster", "35.00", 5)

	taken := models.Order{OrderNumber: "ORD-2026-111111", UserID: user.ID}
	require.NoError(t, db.Create(&taken).Error)

	// First draw collides with the seeded order, second is fresh.
	draws := 0
	checkout.numberFn = func() (string, error) {
		draws++
		if draws == 1 {
			return "ORD-2026-111111", nil
		}
		return "ORD-2026-222222", nil
	}

	_, _, err := cart.AddItem(context.Background(), UserOwner(user.ID), product.ID, 1, nil)
	require.NoError(t, err)

	order, err := checkout.PlaceOrder(context.Background(), user.ID, PlaceOrderInput{
		BillingAddress: testAddress(),
		PaymentToken:   "tok_collide",
	})
	require.NoError(t, err, "a collision must be retried, not surfaced")
	assert.Equal(t, "ORD-2026-222222", order.OrderNumber)
	assert.Equal(t, 2, draws)
	assert.Equal(t, models.PaymentStatusPaid, order.PaymentStatus,
		"the savepoint rollback must not poison the rest of the placement")
}

func TestPlaceOrderFailsWhenCollisionsExhaustRetries(t *testing.T) {
	db := newTestDB(t)
	checkout, cart := newTestCheckout(db, &fakeGateway{})

	user := createTestUser(t, db, "exhaust@example.com")
	product := createTestProduct(t, db, "Kettle", "22.00", 5)

	taken := models.Order{OrderNumber: "ORD-2026-333333", UserID: user.ID}
	require.NoError(t, db.Create(&taken).Error)

	draws := 0
	checkout.numberFn = func() (string, error) {
		draws++
		return "ORD-2026-333333", nil
	}

	_, _, err := cart.AddItem(context.Background(), UserOwner(user.ID), product.ID, 1, nil)
	require.NoError(t, err)

	_, err = checkout.PlaceOrder(context.Background(), user.ID, PlaceOrderInput{
		BillingAddress: testAddress(),
		PaymentToken:   "tok_exhaust",
	})
	require.Error(t, err)
	assert.Equal(t, orderNumberAttempts, draws)

	// The whole placement rolls back: only the seeded order exists, stock and
	// cart are untouched.
	var orders int64
	require.NoError(t, db.Model(&models.Order{}).Count(&orders).Error)
	assert.Equal(t, int64(1), orders)

	var reloaded models.Product
	require.NoError(t, db.First(&reloaded, "id = ?", product.ID).Error)
	assert.Equal(t, 5, reloaded.StockQuantity)

	count, err := cart.Count(context.Background(), UserOwner(user.ID))
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestGenerateOrderNumberFormat(t *testing.T) {
	pattern := regexp.MustCompile(`^ORD-\d{4}-\d{6}$`)
	for i := 0; i < 50; i++ {
		number, err := generateOrderNumber()
		require.NoError(t, err)
		assert.Regexp(t, pattern, number)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	assert.False(t, isUniqueViolation(nil))
	assert.True(t, isUniqueViolation(gorm.ErrDuplicatedKey))
	assert.True(t, isUniqueViolation(assertableError("UNIQUE constraint failed: orders.order_number")))
	assert.True(t, isUniqueViolation(assertableError(`duplicate key value violates unique constraint "idx_orders_order_number" (SQLSTATE 23505)`)))
	assert.False(t, isUniqueViolation(assertableError("connection refused")))
}

type assertableError string

func (e assertableError) Error() string { return string(e) }
