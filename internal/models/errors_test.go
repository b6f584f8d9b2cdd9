package models

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorCode(t *testing.T) {
	assert.Equal(t, "", ErrorCode(nil))
	assert.Equal(t, ErrCodeListingNotFound, ErrorCode(ErrListingNotFound))
	assert.Equal(t, ErrCodeListingNotFound, ErrorCode(fmt.Errorf("loading: %w", ErrListingNotFound)))
	assert.Equal(t, ErrCodeTicketTypeUnavailable, ErrorCode(ErrTicketTypeUnavailable))
	assert.Equal(t, ErrCodeRateLimited, ErrorCode(ErrRateLimited))
	assert.Equal(t, ErrCodeUnknown, ErrorCode(errors.New("boom")))

	inv := &InsufficientInventoryError{TicketType: "VIP", Requested: 2, Remaining: 1}
	assert.Equal(t, ErrCodeInsufficientInventory, ErrorCode(inv))
	assert.Equal(t, ErrCodeInsufficientInventory, ErrorCode(fmt.Errorf("commit: %w", inv)))
}

func TestInsufficientInventoryErrorMessage(t *testing.T) {
	err := &InsufficientInventoryError{TicketType: "VIP", Requested: 2, Remaining: 1}
	assert.Equal(t, `only 1 "VIP" tickets remaining, requested 2`, err.Error())
}
