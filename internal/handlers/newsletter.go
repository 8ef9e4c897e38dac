package handlers

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/storefront/internal/models"
)

// NewsletterHandler manages marketing list subscriptions.
type NewsletterHandler struct {
	db *gorm.DB
}

// NewNewsletterHandler constructs NewsletterHandler.
func NewNewsletterHandler(db *gorm.DB) *NewsletterHandler {
	return &NewsletterHandler{db: db}
}

type subscribeRequest struct {
	Email string `json:"email"`
}

// Subscribe adds an email to the newsletter. Resubscribing a previously
// unsubscribed address reactivates it instead of failing on the unique index.
func (h *NewsletterHandler) Subscribe(c *fiber.Ctx) error {
	var req subscribeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		return fiber.NewError(fiber.StatusBadRequest, "a valid email is required")
	}

	var existing models.NewsletterSubscriber
	err := h.db.Where("email = ?", email).First(&existing).Error
	switch {
	case err == nil && existing.IsActive:
		return respondInfo(c, "You are already subscribed.", nil)

	case err == nil:
		now := time.Now()
		if err := h.db.Model(&existing).Updates(map[string]interface{}{
			"is_active":       true,
			"subscribed_at":   now,
			"unsubscribed_at": nil,
		}).Error; err != nil {
			return err
		}
		return respondSuccess(c, fiber.StatusOK, "Welcome back! You are subscribed again.", nil)

	case errors.Is(err, gorm.ErrRecordNotFound):
		subscriber := models.NewsletterSubscriber{
			Email:            email,
			UnsubscribeToken: uuid.NewString(),
			IsActive:         true,
			SubscribedAt:     time.Now(),
		}
		if err := h.db.Create(&subscriber).Error; err != nil {
			return err
		}
		return respondSuccess(c, fiber.StatusCreated, "Subscribed successfully!", nil)

	default:
		return err
	}
}

// Unsubscribe deactivates a subscription by its opaque token, typically from
// an email footer link.
func (h *NewsletterHandler) Unsubscribe(c *fiber.Ctx) error {
	token := c.Params("token")
	if token == "" {
		return fiber.NewError(fiber.StatusBadRequest, "token is required")
	}

	var subscriber models.NewsletterSubscriber
	if err := h.db.Where("unsubscribe_token = ?", token).First(&subscriber).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return respondError(c, fiber.StatusNotFound, "Subscription not found.")
		}
		return err
	}

	if !subscriber.IsActive {
		return respondInfo(c, "You are already unsubscribed.", nil)
	}

	now := time.Now()
	if err := h.db.Model(&subscriber).Updates(map[string]interface{}{
		"is_active":       false,
		"unsubscribed_at": &now,
	}).Error; err != nil {
		return err
	}

	return respondSuccess(c, fiber.StatusOK, "You have been unsubscribed.", nil)
}
