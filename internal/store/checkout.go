package store

import (
	"context"
	"database/sql"
	"fmt"

	"checkout-service/internal/models"
)

// CheckCapacity verifies that a requested quantity fits within a ticket
// type's remaining capacity. Pure; the atomic checkout transaction applies it
// against rows locked FOR UPDATE.
func CheckCapacity(tt *models.TicketType, requested int) error {
	remaining := tt.Quantity - tt.TicketsSold
	if requested > remaining {
		return &models.InsufficientInventoryError{
			TicketType: tt.Name,
			Requested:  requested,
			Remaining:  remaining,
		}
	}
	return nil
}

// CreateCheckout commits an order, its line items and the pending payment
// transaction, and increments the sold counters, all in one database
// transaction. The ticket type rows are locked FOR UPDATE so the capacity
// check and the counter increment are serializable against concurrent
// checkouts on the same listing: two attempts that would jointly oversell a
// type cannot both commit.
//
// order.ID, txn.ID and the row timestamps are populated on success. On any
// error the transaction rolls back and no partial writes remain.
func (s *Store) CreateCheckout(ctx context.Context, order *models.Order, items []models.OrderItem, txn *models.Transaction) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin checkout transaction: %w", err)
	}
	defer tx.Rollback()

	var listing models.Listing
	err = tx.GetContext(ctx, &listing, "SELECT * FROM listings WHERE id = $1", order.ListingID)
	if err == sql.ErrNoRows {
		return models.ErrListingNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read listing: %w", err)
	}

	var ticketTypes []models.TicketType
	err = tx.SelectContext(ctx, &ticketTypes,
		"SELECT * FROM ticket_types WHERE listing_id = $1 ORDER BY id FOR UPDATE", order.ListingID)
	if err != nil {
		return fmt.Errorf("failed to lock ticket types: %w", err)
	}

	byID := make(map[int64]*models.TicketType, len(ticketTypes))
	for i := range ticketTypes {
		byID[ticketTypes[i].ID] = &ticketTypes[i]
	}

	totalQuantity := 0
	for _, item := range items {
		tt, ok := byID[item.TicketTypeID]
		if !ok {
			return fmt.Errorf("%w: %s", models.ErrTicketTypeUnavailable, item.Name)
		}
		if err := CheckCapacity(tt, item.Quantity); err != nil {
			return err
		}
		totalQuantity += item.Quantity
	}

	err = tx.GetContext(ctx, order, `
		INSERT INTO orders (listing_id, user_id, buyer_name, buyer_email, buyer_phone,
			subtotal, discount, platform_fee, processing_fee, total_amount,
			status, promo_code_id, tracking_link_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING *`,
		order.ListingID, order.UserID, order.BuyerName, order.BuyerEmail, order.BuyerPhone,
		order.Subtotal, order.Discount, order.PlatformFee, order.ProcessingFee, order.TotalAmount,
		models.StatusPending, order.PromoCodeID, order.TrackingLinkID)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}

	for i := range items {
		items[i].OrderID = order.ID
		err = tx.GetContext(ctx, &items[i].ID, `
			INSERT INTO order_items (order_id, ticket_type_id, name, quantity, unit_price)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id`,
			items[i].OrderID, items[i].TicketTypeID, items[i].Name, items[i].Quantity, items[i].UnitPrice)
		if err != nil {
			return fmt.Errorf("failed to create order item: %w", err)
		}
	}

	err = tx.GetContext(ctx, txn, `
		INSERT INTO transactions (order_id, amount, status, payment_method, retry_count)
		VALUES ($1, $2, $3, $4, 0)
		RETURNING *`,
		order.ID, order.TotalAmount, models.StatusPending, txn.PaymentMethod)
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}

	for _, item := range items {
		_, err = tx.ExecContext(ctx,
			"UPDATE ticket_types SET tickets_sold = tickets_sold + $1 WHERE id = $2",
			item.Quantity, item.TicketTypeID)
		if err != nil {
			return fmt.Errorf("failed to increment sold counter: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE listings SET total_tickets_sold = total_tickets_sold + $1, updated_at = NOW() WHERE id = $2",
		totalQuantity, order.ListingID)
	if err != nil {
		return fmt.Errorf("failed to increment listing counter: %w", err)
	}

	return tx.Commit()
}
