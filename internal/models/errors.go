package models

import (
	"errors"
	"fmt"
)

// Checkout error codes surfaced to the client.
const (
	ErrCodeListingNotFound       = "listing-not-found"
	ErrCodeTicketTypeUnavailable = "ticket-type-unavailable"
	ErrCodeInsufficientInventory = "insufficient-inventory"
	ErrCodeRateLimited           = "rate-limited"
	ErrCodeMissingBuyerInfo      = "missing-buyer-info"
	ErrCodeGatewayInitiation     = "gateway-initiation-failed"
	ErrCodeUnknown               = "unknown"
)

var (
	ErrListingNotFound       = errors.New("listing not found")
	ErrTicketTypeUnavailable = errors.New("ticket type unavailable")
	ErrRateLimited           = errors.New("too many checkout attempts, please wait a moment and try again")
	ErrOrderNotFound         = errors.New("order not found")
	ErrTransactionNotFound   = errors.New("transaction not found")
)

// InsufficientInventoryError aborts the checkout transaction when a line item
// would exceed a ticket type's capacity. It names the ticket type and the
// remaining count so the UI can adjust the selection.
type InsufficientInventoryError struct {
	TicketType string
	Requested  int
	Remaining  int
}

func (e *InsufficientInventoryError) Error() string {
	return fmt.Sprintf("only %d %q tickets remaining, requested %d", e.Remaining, e.TicketType, e.Requested)
}

// ErrorCode maps a checkout error to its client-facing code.
func ErrorCode(err error) string {
	var inv *InsufficientInventoryError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrListingNotFound):
		return ErrCodeListingNotFound
	case errors.Is(err, ErrTicketTypeUnavailable):
		return ErrCodeTicketTypeUnavailable
	case errors.As(err, &inv):
		return ErrCodeInsufficientInventory
	case errors.Is(err, ErrRateLimited):
		return ErrCodeRateLimited
	default:
		return ErrCodeUnknown
	}
}
