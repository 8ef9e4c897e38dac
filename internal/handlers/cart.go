package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/example/storefront/internal/middleware"
	"github.com/example/storefront/internal/services"
)

// CartHandler exposes the cart engine over HTTP. Every operation resolves the
// owner (user or guest) through the optional-auth middleware.
type CartHandler struct {
	cart *services.CartService
}

// NewCartHandler constructs CartHandler.
func NewCartHandler(cart *services.CartService) *CartHandler {
	return &CartHandler{cart: cart}
}

type addCartItemRequest struct {
	ProductID string            `json:"product_id"`
	Quantity  int               `json:"quantity"`
	Options   map[string]string `json:"options"`
}

// Add puts a quantity of a product into the owner's cart.
func (h *CartHandler) Add(c *fiber.Ctx) error {
	owner, ok := middleware.CurrentOwner(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req addCartItemRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	productID, err := uuid.Parse(req.ProductID)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid product_id")
	}
	if req.Quantity < 1 {
		return fiber.NewError(fiber.StatusBadRequest, "quantity must be at least 1")
	}

	line, count, err := h.cart.AddItem(c.Context(), owner, productID, req.Quantity, req.Options)
	if err != nil {
		return respondServiceError(c, err)
	}

	return respondSuccess(c, fiber.StatusOK, "Product added to cart successfully!", fiber.Map{
		"cart_count": count,
		"item": fiber.Map{
			"id":           line.ID,
			"product_name": line.Product.Name,
			"quantity":     line.Quantity,
			"price":        line.Price,
			"total":        line.TotalPrice(),
		},
	})
}

type updateCartItemRequest struct {
	Quantity int `json:"quantity"`
}

// Update sets an absolute quantity on one cart line.
func (h *CartHandler) Update(c *fiber.Ctx) error {
	owner, ok := middleware.CurrentOwner(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	lineID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	var req updateCartItemRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.Quantity < 1 {
		return fiber.NewError(fiber.StatusBadRequest, "quantity must be at least 1")
	}

	line, err := h.cart.UpdateQuantity(c.Context(), owner, lineID, req.Quantity)
	if err != nil {
		return respondServiceError(c, err)
	}

	summary, err := h.cart.Summary(c.Context(), owner)
	if err != nil {
		return err
	}

	return respondSuccess(c, fiber.StatusOK, "Cart updated successfully!", fiber.Map{
		"cart_count": summary.ItemCount,
		"cart_total": summary.Total,
		"item": fiber.Map{
			"id":       line.ID,
			"quantity": line.Quantity,
			"total":    line.TotalPrice(),
		},
	})
}

// Remove deletes one cart line.
func (h *CartHandler) Remove(c *fiber.Ctx) error {
	owner, ok := middleware.CurrentOwner(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	lineID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	if err := h.cart.RemoveItem(c.Context(), owner, lineID); err != nil {
		return respondServiceError(c, err)
	}

	summary, err := h.cart.Summary(c.Context(), owner)
	if err != nil {
		return err
	}

	return respondSuccess(c, fiber.StatusOK, "Item removed from cart successfully!", fiber.Map{
		"cart_count": summary.ItemCount,
		"cart_total": summary.Total,
	})
}

// Clear empties the owner's cart.
func (h *CartHandler) Clear(c *fiber.Ctx) error {
	owner, ok := middleware.CurrentOwner(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	if err := h.cart.Clear(c.Context(), owner); err != nil {
		return err
	}

	return respondSuccess(c, fiber.StatusOK, "Cart cleared successfully!", fiber.Map{
		"cart_count": 0,
		"cart_total": "0",
	})
}

// Index returns the cart contents with recomputed totals.
func (h *CartHandler) Index(c *fiber.Ctx) error {
	owner, ok := middleware.CurrentOwner(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	summary, err := h.cart.Summary(c.Context(), owner)
	if err != nil {
		return err
	}

	return respondSuccess(c, fiber.StatusOK, "", fiber.Map{
		"items":      summary.Items,
		"cart_count": summary.ItemCount,
		"cart_total": summary.Total,
	})
}

// Count returns just the cart-wide item count, for badge refreshes.
func (h *CartHandler) Count(c *fiber.Ctx) error {
	owner, ok := middleware.CurrentOwner(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	count, err := h.cart.Count(c.Context(), owner)
	if err != nil {
		return err
	}

	return respondSuccess(c, fiber.StatusOK, "", fiber.Map{"cart_count": count})
}
