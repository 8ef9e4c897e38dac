package handlers

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/storefront/internal/middleware"
	"github.com/example/storefront/internal/models"
	"github.com/example/storefront/internal/services"
	"github.com/example/storefront/internal/utils"
)

// AccountHandler serves the customer-facing account area: dashboard, profile,
// order history and cancellation, plus the admin order-status endpoint.
type AccountHandler struct {
	db       *gorm.DB
	checkout *services.CheckoutService
}

// NewAccountHandler constructs AccountHandler.
func NewAccountHandler(db *gorm.DB, checkout *services.CheckoutService) *AccountHandler {
	return &AccountHandler{db: db, checkout: checkout}
}

// Dashboard returns account summary stats and the most recent orders.
func (h *AccountHandler) Dashboard(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var totalOrders int64
	if err := h.db.Model(&models.Order{}).Where("user_id = ?", userID).Count(&totalOrders).Error; err != nil {
		return err
	}

	var pendingOrders int64
	if err := h.db.Model(&models.Order{}).
		Where("user_id = ? AND status IN ?", userID, []models.OrderStatus{models.OrderStatusPending, models.OrderStatusProcessing}).
		Count(&pendingOrders).Error; err != nil {
		return err
	}

	var totalSpent struct {
		Total string
	}
	if err := h.db.Model(&models.Order{}).
		Select("COALESCE(SUM(total_amount), 0) as total").
		Where("user_id = ? AND payment_status = ?", userID, models.PaymentStatusPaid).
		Scan(&totalSpent).Error; err != nil {
		return err
	}

	var reviewsCount int64
	if err := h.db.Model(&models.Review{}).Where("user_id = ?", userID).Count(&reviewsCount).Error; err != nil {
		return err
	}

	var recentOrders []models.Order
	if err := h.db.Preload("Items").
		Where("user_id = ?", userID).
		Order("created_at desc").
		Limit(5).
		Find(&recentOrders).Error; err != nil {
		return err
	}

	return respondSuccess(c, fiber.StatusOK, "", fiber.Map{
		"total_orders":   totalOrders,
		"pending_orders": pendingOrders,
		"total_spent":    totalSpent.Total,
		"reviews_count":  reviewsCount,
		"recent_orders":  recentOrders,
	})
}

// Profile returns the authenticated user's profile.
func (h *AccountHandler) Profile(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var user models.User
	if err := h.db.First(&user, "id = ?", userID).Error; err != nil {
		return err
	}

	return respondSuccess(c, fiber.StatusOK, "", fiber.Map{"user": user})
}

type updateProfileRequest struct {
	Name            string `json:"name"`
	Phone           string `json:"phone"`
	Address         string `json:"address"`
	City            string `json:"city"`
	State           string `json:"state"`
	PostalCode      string `json:"postal_code"`
	Country         string `json:"country"`
	DateOfBirth     string `json:"date_of_birth"`
	Gender          string `json:"gender"`
	MarketingEmails *bool  `json:"marketing_emails"`
}

// UpdateProfile modifies contact and shipping details. Email changes are not
// supported here.
func (h *AccountHandler) UpdateProfile(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req updateProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	updates := map[string]interface{}{}
	if req.Name != "" {
		updates["name"] = req.Name
	}
	if req.Phone != "" {
		updates["phone"] = req.Phone
	}
	if req.Address != "" {
		updates["address"] = req.Address
	}
	if req.City != "" {
		updates["city"] = req.City
	}
	if req.State != "" {
		updates["state"] = req.State
	}
	if req.PostalCode != "" {
		updates["postal_code"] = req.PostalCode
	}
	if req.Country != "" {
		updates["country"] = req.Country
	}
	if req.Gender != "" {
		updates["gender"] = req.Gender
	}
	if req.MarketingEmails != nil {
		updates["marketing_emails"] = *req.MarketingEmails
	}
	if req.DateOfBirth != "" {
		dob, err := time.Parse("2006-01-02", req.DateOfBirth)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "date_of_birth must be YYYY-MM-DD")
		}
		updates["date_of_birth"] = &dob
	}

	if len(updates) > 0 {
		if err := h.db.Model(&models.User{}).Where("id = ?", userID).Updates(updates).Error; err != nil {
			return err
		}
	}

	var user models.User
	if err := h.db.First(&user, "id = ?", userID).Error; err != nil {
		return err
	}

	return respondSuccess(c, fiber.StatusOK, "Profile updated successfully!", fiber.Map{"user": user})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// ChangePassword verifies the current password before setting a new one.
func (h *AccountHandler) ChangePassword(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req changePasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if len(req.NewPassword) < 8 {
		return fiber.NewError(fiber.StatusBadRequest, "new password must be at least 8 characters")
	}

	var user models.User
	if err := h.db.First(&user, "id = ?", userID).Error; err != nil {
		return err
	}

	if !utils.CheckPassword(user.PasswordHash, req.CurrentPassword) {
		return respondError(c, fiber.StatusUnprocessableEntity, "Current password is incorrect.")
	}

	passwordHash, err := utils.HashPassword(req.NewPassword)
	if err != nil {
		return err
	}

	if err := h.db.Model(&models.User{}).Where("id = ?", userID).
		Update("password_hash", passwordHash).Error; err != nil {
		return err
	}

	return respondSuccess(c, fiber.StatusOK, "Password changed successfully!", nil)
}

// Orders lists the user's orders, newest first, filterable by status and
// searchable by order number.
func (h *AccountHandler) Orders(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	pagination := utils.ParsePagination(c)

	query := h.db.Model(&models.Order{}).
		Preload("Items").
		Where("user_id = ?", userID)

	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if search := strings.TrimSpace(c.Query("search")); search != "" {
		query = query.Where("order_number LIKE ?", "%"+strings.ToUpper(search)+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}

	var orders []models.Order
	if err := query.Order("created_at desc").
		Offset(pagination.Offset).Limit(pagination.Limit).
		Find(&orders).Error; err != nil {
		return err
	}

	return respondSuccess(c, fiber.StatusOK, "", fiber.Map{
		"orders": orders,
		"total":  total,
		"page":   pagination.Page,
		"limit":  pagination.Limit,
	})
}

// GetOrder returns one of the user's orders with full item detail. Orders
// belonging to other accounts answer 404, never 403, so order IDs are not
// probeable.
func (h *AccountHandler) GetOrder(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	orderID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	var order models.Order
	if err := h.db.Preload("Items").Preload("Items.Product").
		Where("id = ? AND user_id = ?", orderID, userID).
		First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return respondError(c, fiber.StatusNotFound, "Order not found.")
		}
		return err
	}

	return respondSuccess(c, fiber.StatusOK, "", fiber.Map{
		"order":       order,
		"can_cancel":  order.CanBeCancelled(),
		"items_count": order.TotalItems(),
	})
}

// CancelOrder cancels the user's own order while still pending or processing.
func (h *AccountHandler) CancelOrder(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	orderID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	order, err := h.checkout.CancelOrder(c.Context(), userID, orderID)
	if err != nil {
		return respondServiceError(c, err)
	}

	return respondSuccess(c, fiber.StatusOK, "Order cancelled successfully.", fiber.Map{
		"order": fiber.Map{
			"id":           order.ID,
			"order_number": order.OrderNumber,
			"status":       order.Status,
		},
	})
}

// Reviews lists the reviews the user has written.
func (h *AccountHandler) Reviews(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var reviews []models.Review
	if err := h.db.Preload("Product").
		Where("user_id = ?", userID).
		Order("created_at desc").
		Find(&reviews).Error; err != nil {
		return err
	}

	return respondSuccess(c, fiber.StatusOK, "", fiber.Map{"reviews": reviews})
}

type updateOrderStatusRequest struct {
	Status string `json:"status"`
}

// UpdateOrderStatus moves an order along the fulfilment state machine. Admin
// surface; transitions outside the table answer 422.
func (h *AccountHandler) UpdateOrderStatus(c *fiber.Ctx) error {
	orderID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	var req updateOrderStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.Status == "" {
		return fiber.NewError(fiber.StatusBadRequest, "status is required")
	}

	order, err := h.checkout.UpdateOrderStatus(c.Context(), orderID, models.OrderStatus(req.Status))
	if err != nil {
		return respondServiceError(c, err)
	}

	return respondSuccess(c, fiber.StatusOK, "Order status updated.", fiber.Map{
		"order": fiber.Map{
			"id":           order.ID,
			"order_number": order.OrderNumber,
			"status":       order.Status,
			"shipped_at":   order.ShippedAt,
			"delivered_at": order.DeliveredAt,
		},
	})
}
