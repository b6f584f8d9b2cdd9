package service

import (
	"math"

	"checkout-service/internal/models"
)

// Breakdown is the computed monetary breakdown of an order, in whole
// currency units. The payment provider does not support fractional amounts,
// so every component is rounded to an integer.
type Breakdown struct {
	Subtotal      int64
	Discount      int64
	PlatformFee   int64
	ProcessingFee int64
	Total         int64
}

// ComputeBreakdown prices an order from its line items, an optional
// promocode snapshot and the configured fee percentages. Pure.
func ComputeBreakdown(items []models.OrderItem, promo *models.PromoCode, platformFeePercent, processingFeePercent float64) Breakdown {
	var subtotal int64
	for _, item := range items {
		subtotal += item.UnitPrice * int64(item.Quantity)
	}

	var discount int64
	if promo != nil {
		if promo.PercentOff.Valid {
			discount = int64(math.Round(float64(subtotal) * promo.PercentOff.Float64 / 100))
		} else if promo.AmountOff.Valid {
			discount = promo.AmountOff.Int64
		}
		if discount > subtotal {
			discount = subtotal
		}
	}

	discounted := subtotal - discount
	platformFee := int64(math.Round(float64(discounted) * platformFeePercent / 100))
	processingFee := int64(math.Round(float64(discounted) * processingFeePercent / 100))

	return Breakdown{
		Subtotal:      subtotal,
		Discount:      discount,
		PlatformFee:   platformFee,
		ProcessingFee: processingFee,
		Total:         discounted + platformFee + processingFee,
	}
}
