package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/example/storefront/internal/config"
	"github.com/example/storefront/internal/middleware"
	"github.com/example/storefront/internal/models"
	"github.com/example/storefront/internal/services"
)

// CheckoutHandler drives the order placement flow and the gateway webhook.
type CheckoutHandler struct {
	checkout *services.CheckoutService
	cfg      *config.Config
}

// NewCheckoutHandler constructs CheckoutHandler.
func NewCheckoutHandler(checkout *services.CheckoutService, cfg *config.Config) *CheckoutHandler {
	return &CheckoutHandler{checkout: checkout, cfg: cfg}
}

// Begin returns the checkout page data: cart lines plus a server-side quote.
func (h *CheckoutHandler) Begin(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	quote, items, err := h.checkout.BeginCheckout(c.Context(), userID)
	if err != nil {
		return respondServiceError(c, err)
	}

	return respondSuccess(c, fiber.StatusOK, "", fiber.Map{
		"items":           items,
		"subtotal":        quote.Subtotal,
		"tax_amount":      quote.TaxAmount,
		"shipping_amount": quote.ShippingAmount,
		"discount_amount": quote.DiscountAmount,
		"total_amount":    quote.TotalAmount,
		"item_count":      quote.ItemCount,
	})
}

// CreatePaymentIntent registers a gateway intent for the current cart total.
func (h *CheckoutHandler) CreatePaymentIntent(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	intent, quote, err := h.checkout.CreatePaymentIntent(c.Context(), userID)
	if err != nil {
		return respondServiceError(c, err)
	}

	return respondSuccess(c, fiber.StatusOK, "", fiber.Map{
		"payment_intent_id": intent.ID,
		"client_secret":     intent.ClientSecret,
		"amount":            quote.TotalAmount,
	})
}

type addressPayload struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Address    string `json:"address"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

func (p addressPayload) toModel() models.Address {
	return models.Address{
		Name:       p.Name,
		Email:      p.Email,
		Phone:      p.Phone,
		Address:    p.Address,
		City:       p.City,
		State:      p.State,
		PostalCode: p.PostalCode,
		Country:    p.Country,
	}
}

func (p addressPayload) valid() bool {
	return p.Name != "" && p.Address != "" && p.City != "" && p.Country != ""
}

type placeOrderRequest struct {
	BillingAddress  addressPayload  `json:"billing_address"`
	ShippingAddress *addressPayload `json:"shipping_address"`
	PaymentMethod   string          `json:"payment_method"`
	PaymentToken    string          `json:"payment_token"`
	Notes           string          `json:"notes"`
}

// PlaceOrder converts the cart into an order: one transaction covering stock
// reservation, order creation and payment capture.
func (h *CheckoutHandler) PlaceOrder(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req placeOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if !req.BillingAddress.valid() {
		return fiber.NewError(fiber.StatusBadRequest, "billing address is incomplete")
	}
	if req.PaymentToken == "" {
		return fiber.NewError(fiber.StatusBadRequest, "payment_token is required")
	}
	if req.PaymentMethod == "" {
		req.PaymentMethod = "card"
	}

	// Shipping defaults to billing when omitted.
	shipping := req.BillingAddress
	if req.ShippingAddress != nil {
		if !req.ShippingAddress.valid() {
			return fiber.NewError(fiber.StatusBadRequest, "shipping address is incomplete")
		}
		shipping = *req.ShippingAddress
	}

	order, err := h.checkout.PlaceOrder(c.Context(), userID, services.PlaceOrderInput{
		BillingAddress:  req.BillingAddress.toModel(),
		ShippingAddress: shipping.toModel(),
		PaymentMethod:   req.PaymentMethod,
		PaymentToken:    req.PaymentToken,
		Notes:           req.Notes,
	})
	if err != nil {
		return respondServiceError(c, err)
	}

	return respondSuccess(c, fiber.StatusCreated, "Order placed successfully!", fiber.Map{
		"order": fiber.Map{
			"id":             order.ID,
			"order_number":   order.OrderNumber,
			"status":         order.Status,
			"payment_status": order.PaymentStatus,
			"total_amount":   order.TotalAmount,
			"items_count":    order.TotalItems(),
		},
	})
}

// Webhook receives asynchronous gateway events. The raw body is verified
// against the signature header before anything is decoded or acted on.
func (h *CheckoutHandler) Webhook(c *fiber.Ctx) error {
	payload := c.Body()
	signature := c.Get("Stripe-Signature")

	event, err := services.VerifyWebhook(payload, signature, h.cfg.StripeWebhookSecret)
	if err != nil {
		return respondError(c, fiber.StatusBadRequest, "Invalid webhook signature.")
	}

	if err := h.checkout.HandlePaymentWebhook(c.Context(), *event); err != nil {
		return respondServiceError(c, err)
	}

	return respondSuccess(c, fiber.StatusOK, "Webhook processed.", nil)
}
