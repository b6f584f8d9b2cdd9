package service

import (
	"database/sql"
	"testing"

	"checkout-service/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestComputeBreakdown(t *testing.T) {
	items := []models.OrderItem{
		{Name: "Regular", Quantity: 2, UnitPrice: 1500},
	}

	b := ComputeBreakdown(items, nil, 5, 1.5)

	assert.EqualValues(t, 3000, b.Subtotal)
	assert.EqualValues(t, 0, b.Discount)
	assert.EqualValues(t, 150, b.PlatformFee)
	assert.EqualValues(t, 45, b.ProcessingFee)
	assert.EqualValues(t, 3195, b.Total)
}

func TestComputeBreakdownPercentOff(t *testing.T) {
	items := []models.OrderItem{
		{Name: "Regular", Quantity: 2, UnitPrice: 1500},
	}
	promo := &models.PromoCode{
		PercentOff: sql.NullFloat64{Float64: 10, Valid: true},
	}

	b := ComputeBreakdown(items, promo, 5, 1.5)

	assert.EqualValues(t, 300, b.Discount)
	assert.EqualValues(t, 135, b.PlatformFee)
	assert.EqualValues(t, 41, b.ProcessingFee)
	assert.EqualValues(t, 2876, b.Total)
}

func TestComputeBreakdownAmountOffCappedAtSubtotal(t *testing.T) {
	items := []models.OrderItem{
		{Name: "Regular", Quantity: 1, UnitPrice: 500},
	}
	promo := &models.PromoCode{
		AmountOff: sql.NullInt64{Int64: 800, Valid: true},
	}

	b := ComputeBreakdown(items, promo, 5, 1.5)

	assert.EqualValues(t, 500, b.Discount)
	assert.EqualValues(t, 0, b.Total)
}

func TestComputeBreakdownRoundsToWholeUnits(t *testing.T) {
	items := []models.OrderItem{
		{Name: "Regular", Quantity: 1, UnitPrice: 333},
	}

	b := ComputeBreakdown(items, nil, 5, 1.5)

	// 333 * 5% = 16.65 -> 17, 333 * 1.5% = 4.995 -> 5
	assert.EqualValues(t, 17, b.PlatformFee)
	assert.EqualValues(t, 5, b.ProcessingFee)
	assert.EqualValues(t, 355, b.Total)
}
