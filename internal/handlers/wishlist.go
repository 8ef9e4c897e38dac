package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/example/storefront/internal/middleware"
	"github.com/example/storefront/internal/services"
)

// WishlistHandler exposes the wishlist over HTTP, owner-scoped like the cart.
type WishlistHandler struct {
	wishlist *services.WishlistService
}

// NewWishlistHandler constructs WishlistHandler.
func NewWishlistHandler(wishlist *services.WishlistService) *WishlistHandler {
	return &WishlistHandler{wishlist: wishlist}
}

type addWishlistRequest struct {
	ProductID string `json:"product_id"`
}

// Add puts a product on the wishlist. Re-adding an already-listed product is
// answered with an info envelope, not an error.
func (h *WishlistHandler) Add(c *fiber.Ctx) error {
	owner, ok := middleware.CurrentOwner(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req addWishlistRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	productID, err := uuid.Parse(req.ProductID)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid product_id")
	}

	product, added, err := h.wishlist.Add(c.Context(), owner, productID)
	if err != nil {
		return respondServiceError(c, err)
	}

	count, err := h.wishlist.Count(c.Context(), owner)
	if err != nil {
		return err
	}

	if !added {
		return respondInfo(c, "Product is already in your wishlist.", fiber.Map{
			"wishlist_count": count,
		})
	}

	return respondSuccess(c, fiber.StatusOK, "Product added to wishlist!", fiber.Map{
		"wishlist_count": count,
		"product": fiber.Map{
			"id":   product.ID,
			"name": product.Name,
		},
	})
}

// Remove takes a product off the wishlist.
func (h *WishlistHandler) Remove(c *fiber.Ctx) error {
	owner, ok := middleware.CurrentOwner(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	productID, err := uuid.Parse(c.Params("productId"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid product id")
	}

	if err := h.wishlist.Remove(c.Context(), owner, productID); err != nil {
		return respondServiceError(c, err)
	}

	count, err := h.wishlist.Count(c.Context(), owner)
	if err != nil {
		return err
	}

	return respondSuccess(c, fiber.StatusOK, "Product removed from wishlist.", fiber.Map{
		"wishlist_count": count,
	})
}

// Index lists the wishlist with product details.
func (h *WishlistHandler) Index(c *fiber.Ctx) error {
	owner, ok := middleware.CurrentOwner(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	items, err := h.wishlist.List(c.Context(), owner)
	if err != nil {
		return err
	}

	return respondSuccess(c, fiber.StatusOK, "", fiber.Map{
		"items":          items,
		"wishlist_count": len(items),
	})
}

// Count returns the wishlist size for badge refreshes.
func (h *WishlistHandler) Count(c *fiber.Ctx) error {
	owner, ok := middleware.CurrentOwner(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	count, err := h.wishlist.Count(c.Context(), owner)
	if err != nil {
		return err
	}

	return respondSuccess(c, fiber.StatusOK, "", fiber.Map{"wishlist_count": count})
}

// Clear empties the wishlist.
func (h *WishlistHandler) Clear(c *fiber.Ctx) error {
	owner, ok := middleware.CurrentOwner(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	if err := h.wishlist.Clear(c.Context(), owner); err != nil {
		return err
	}

	return respondSuccess(c, fiber.StatusOK, "Wishlist cleared.", fiber.Map{
		"wishlist_count": 0,
	})
}

type moveToCartRequest struct {
	Quantity int `json:"quantity"`
}

// MoveToCart transfers a wishlisted product into the cart. The wishlist row
// survives when the cart rejects the product (out of stock, inactive).
func (h *WishlistHandler) MoveToCart(c *fiber.Ctx) error {
	owner, ok := middleware.CurrentOwner(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	productID, err := uuid.Parse(c.Params("productId"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid product id")
	}

	var req moveToCartRequest
	_ = c.BodyParser(&req)
	if req.Quantity < 1 {
		req.Quantity = 1
	}

	line, cartCount, err := h.wishlist.MoveToCart(c.Context(), owner, productID, req.Quantity)
	if err != nil {
		return respondServiceError(c, err)
	}

	wishlistCount, err := h.wishlist.Count(c.Context(), owner)
	if err != nil {
		return err
	}

	return respondSuccess(c, fiber.StatusOK, "Product moved to cart!", fiber.Map{
		"cart_count":     cartCount,
		"wishlist_count": wishlistCount,
		"item": fiber.Map{
			"id":       line.ID,
			"quantity": line.Quantity,
			"price":    line.Price,
		},
	})
}
