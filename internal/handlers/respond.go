package handlers

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/example/storefront/internal/services"
)

// Every JSON response carries {status: success|error|info, message, data?}.

// ErrorHandler is installed as the Fiber error handler so that errors
// returned from handlers (fiber.NewError and unexpected failures alike)
// still produce the standard envelope.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return respondError(c, fiberErr.Code, fiberErr.Message)
	}
	return respondServiceError(c, err)
}

func respondSuccess(c *fiber.Ctx, httpStatus int, message string, data fiber.Map) error {
	body := fiber.Map{"status": "success", "message": message}
	if data != nil {
		body["data"] = data
	}
	return c.Status(httpStatus).JSON(body)
}

func respondInfo(c *fiber.Ctx, message string, data fiber.Map) error {
	body := fiber.Map{"status": "info", "message": message}
	if data != nil {
		body["data"] = data
	}
	return c.JSON(body)
}

func respondError(c *fiber.Ctx, httpStatus int, message string) error {
	return c.Status(httpStatus).JSON(fiber.Map{"status": "error", "message": message})
}

// respondServiceError maps the domain error taxonomy onto HTTP statuses.
// Anything outside the taxonomy is logged and answered with a generic 500 so
// internal detail never leaks.
func respondServiceError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrNotFound):
		return respondError(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, services.ErrUnauthorized):
		return respondError(c, fiber.StatusForbidden, "Unauthorized action.")
	case services.IsDomainError(err):
		return respondError(c, fiber.StatusUnprocessableEntity, err.Error())
	default:
		log.Printf("[HTTP] %s %s failed: %v", c.Method(), c.Path(), err)
		return respondError(c, fiber.StatusInternalServerError, "Something went wrong. Please try again.")
	}
}
