package handlers

import (
	"errors"
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/example/storefront/internal/config"
	"github.com/example/storefront/internal/middleware"
	"github.com/example/storefront/internal/models"
	"github.com/example/storefront/internal/services"
	"github.com/example/storefront/internal/utils"
)

// AuthHandler bundles dependencies for authentication endpoints.
type AuthHandler struct {
	db       *gorm.DB
	cfg      *config.Config
	cart     *services.CartService
	wishlist *services.WishlistService
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(db *gorm.DB, cfg *config.Config, cart *services.CartService, wishlist *services.WishlistService) *AuthHandler {
	return &AuthHandler{db: db, cfg: cfg, cart: cart, wishlist: wishlist}
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register creates a new customer account and signs the user in.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Name == "" || req.Email == "" || len(req.Password) < 8 {
		return fiber.NewError(fiber.StatusBadRequest, "name, email and a password of at least 8 characters are required")
	}

	var existing models.User
	if err := h.db.Where("email = ?", req.Email).First(&existing).Error; err == nil {
		return respondError(c, fiber.StatusConflict, "An account with this email already exists.")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	passwordHash, err := utils.HashPassword(req.Password)
	if err != nil {
		return err
	}

	user := models.User{
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: passwordHash,
	}
	if err := h.db.Create(&user).Error; err != nil {
		return err
	}

	h.adoptGuestState(c, user)

	token, err := utils.GenerateToken(h.cfg.JWTSecret, user.ID, h.cfg.TokenExpires)
	if err != nil {
		return err
	}

	return respondSuccess(c, fiber.StatusCreated, "Account created successfully!", fiber.Map{
		"user": fiber.Map{
			"id":    user.ID,
			"name":  user.Name,
			"email": user.Email,
		},
		"token": token,
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login authenticates an existing user and merges any guest cart/wishlist
// riding along on the session cookie.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	var user models.User
	if err := h.db.Where("email = ?", strings.ToLower(strings.TrimSpace(req.Email))).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return respondError(c, fiber.StatusUnauthorized, "Invalid credentials.")
		}
		return err
	}

	if !utils.CheckPassword(user.PasswordHash, req.Password) {
		return respondError(c, fiber.StatusUnauthorized, "Invalid credentials.")
	}

	h.adoptGuestState(c, user)

	token, err := utils.GenerateToken(h.cfg.JWTSecret, user.ID, h.cfg.TokenExpires)
	if err != nil {
		return err
	}

	return respondSuccess(c, fiber.StatusOK, "Logged in successfully!", fiber.Map{
		"user": fiber.Map{
			"id":    user.ID,
			"name":  user.Name,
			"email": user.Email,
		},
		"token": token,
	})
}

// adoptGuestState folds the guest cart and wishlist into the account when a
// session cookie is present. Merge failures are logged, not surfaced: login
// must not fail because of them.
func (h *AuthHandler) adoptGuestState(c *fiber.Ctx, user models.User) {
	sessionID := c.Cookies(middleware.GuestSessionCookie)
	if sessionID == "" {
		return
	}

	if err := h.cart.MergeGuestIntoUser(c.Context(), user.ID, sessionID); err != nil {
		log.Printf("[Auth] guest cart merge failed for user %s: %v", user.ID, err)
	}
	if err := h.wishlist.MergeGuestIntoUser(c.Context(), user.ID, sessionID); err != nil {
		log.Printf("[Auth] guest wishlist merge failed for user %s: %v", user.ID, err)
	}
}
