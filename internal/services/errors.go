package services

import "errors"

// Domain error taxonomy. Handlers map these onto HTTP status codes; anything
// that doesn't match is treated as internal and never leaks detail to the
// caller.
var (
	// ErrNotFound means the referenced entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized means the caller does not own the referenced entity.
	ErrUnauthorized = errors.New("unauthorized action")

	// ErrUnavailable means the product cannot currently be purchased.
	ErrUnavailable = errors.New("product is currently out of stock")

	// ErrInsufficientStock means the requested quantity exceeds what is left.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrInvalidQuantity means the requested quantity is not a positive integer.
	ErrInvalidQuantity = errors.New("quantity must be at least 1")

	// ErrEmptyCart means a checkout was attempted against an empty cart.
	ErrEmptyCart = errors.New("your cart is empty")

	// ErrPaymentFailed means the external capture declined or timed out.
	ErrPaymentFailed = errors.New("payment failed")

	// ErrInvalidTransition means a state machine rejected the requested move.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// IsDomainError reports whether err belongs to the taxonomy above, i.e. its
// message is safe to show to the caller.
func IsDomainError(err error) bool {
	for _, domain := range []error{
		ErrNotFound,
		ErrUnauthorized,
		ErrUnavailable,
		ErrInsufficientStock,
		ErrInvalidQuantity,
		ErrEmptyCart,
		ErrPaymentFailed,
		ErrInvalidTransition,
	} {
		if errors.Is(err, domain) {
			return true
		}
	}
	return false
}
