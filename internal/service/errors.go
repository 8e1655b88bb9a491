package service

import (
	"fmt"

	"github.com/fjod/go_cart/storefront/internal/domain"
)

var (
	ErrInvalidReference  = fmt.Errorf("%w: referenced product does not exist", domain.ErrValidation)
	ErrInvalidQuantity   = fmt.Errorf("%w: quantity must be at least 1", domain.ErrValidation)
	ErrInvalidID         = fmt.Errorf("%w: malformed identifier", domain.ErrValidation)
	ErrInvalidTransition = fmt.Errorf("%w: illegal transition of order status", domain.ErrConflict)
)

func validationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", domain.ErrValidation, fmt.Sprintf(format, args...))
}
