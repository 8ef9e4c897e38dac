package middleware

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/example/storefront/internal/config"
	"github.com/example/storefront/internal/services"
	"github.com/example/storefront/internal/utils"
)

const (
	userContextKey    = "currentUserID"
	sessionContextKey = "guestSessionID"

	// GuestSessionCookie carries the stable guest identifier that scopes
	// anonymous carts and wishlists.
	GuestSessionCookie = "cart_session"
)

// AuthMiddleware validates JWT tokens and loads the authenticated user ID
// into context. Requests without a valid token are rejected.
func AuthMiddleware(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, ok := bearerUserID(c, cfg)
		if !ok {
			return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
		}

		c.Locals(userContextKey, userID)
		return c.Next()
	}
}

// OptionalAuthMiddleware resolves the request's owner identity without
// requiring a login: an authenticated user when a valid token rides along,
// otherwise a guest session identified by a cookie issued here.
func OptionalAuthMiddleware(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if userID, ok := bearerUserID(c, cfg); ok {
			c.Locals(userContextKey, userID)
			return c.Next()
		}

		sessionID := c.Cookies(GuestSessionCookie)
		if sessionID == "" {
			sessionID = uuid.NewString()
			c.Cookie(&fiber.Cookie{
				Name:     GuestSessionCookie,
				Value:    sessionID,
				Expires:  time.Now().Add(30 * 24 * time.Hour),
				HTTPOnly: true,
				SameSite: fiber.CookieSameSiteLaxMode,
			})
		}

		c.Locals(sessionContextKey, sessionID)
		return c.Next()
	}
}

func bearerUserID(c *fiber.Ctx, cfg *config.Config) (uuid.UUID, bool) {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return uuid.Nil, false
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return uuid.Nil, false
	}

	userID, err := utils.ParseToken(cfg.JWTSecret, parts[1])
	if err != nil {
		return uuid.Nil, false
	}

	return userID, true
}

// GetCurrentUserID extracts the authenticated user ID from context.
func GetCurrentUserID(c *fiber.Ctx) (uuid.UUID, bool) {
	value := c.Locals(userContextKey)
	if value == nil {
		return uuid.Nil, false
	}

	if id, ok := value.(uuid.UUID); ok {
		return id, true
	}

	return uuid.Nil, false
}

// GetGuestSessionID extracts the guest session identifier from context.
func GetGuestSessionID(c *fiber.Ctx) (string, bool) {
	value := c.Locals(sessionContextKey)
	if value == nil {
		return "", false
	}

	if id, ok := value.(string); ok && id != "" {
		return id, true
	}

	return "", false
}

// CurrentOwner resolves the owner identity for cart and wishlist operations:
// the authenticated user takes precedence over the guest session.
func CurrentOwner(c *fiber.Ctx) (services.Owner, bool) {
	if userID, ok := GetCurrentUserID(c); ok {
		return services.UserOwner(userID), true
	}
	if sessionID, ok := GetGuestSessionID(c); ok {
		return services.GuestOwner(sessionID), true
	}
	return services.Owner{}, false
}
