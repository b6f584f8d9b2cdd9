package store

import (
	"context"
	"database/sql"
	"time"

	"checkout-service/internal/models"
)

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, models.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderItemsByOrderID retrieves all items for an order
func (s *Store) GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM order_items WHERE order_id = $1", orderID)
	return items, err
}

// UpdateOrderStatus updates order status. A completed order never moves
// back: a failed order may still complete after a manual payment retry, but
// no result may demote a completed one.
func (s *Store) UpdateOrderStatus(ctx context.Context, orderID int64, status string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2 AND status <> $3",
		status, orderID, models.StatusCompleted)
	return err
}

// FindRecentCompletedOrder looks for a completed order by the same user for
// the same listing within the trailing window. Best-effort duplicate guard;
// guest checkouts (no user id) are not covered.
func (s *Store) FindRecentCompletedOrder(ctx context.Context, userID, listingID int64, window time.Duration) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, `
		SELECT * FROM orders
		WHERE user_id = $1 AND listing_id = $2 AND status = $3 AND created_at > $4
		ORDER BY created_at DESC LIMIT 1`,
		userID, listingID, models.StatusCompleted, time.Now().Add(-window))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetTransactionByID retrieves a transaction by ID
func (s *Store) GetTransactionByID(ctx context.Context, id int64) (*models.Transaction, error) {
	var txn models.Transaction
	err := s.db.GetContext(ctx, &txn, "SELECT * FROM transactions WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, models.ErrTransactionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

// GetTransactionByOrderID retrieves the transaction tied to an order.
func (s *Store) GetTransactionByOrderID(ctx context.Context, orderID int64) (*models.Transaction, error) {
	var txn models.Transaction
	err := s.db.GetContext(ctx, &txn,
		"SELECT * FROM transactions WHERE order_id = $1 ORDER BY created_at DESC LIMIT 1", orderID)
	if err == sql.ErrNoRows {
		return nil, models.ErrTransactionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

// GetTransactionByCheckoutRequestID correlates an asynchronous provider
// callback back to its transaction.
func (s *Store) GetTransactionByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*models.Transaction, error) {
	var txn models.Transaction
	err := s.db.GetContext(ctx, &txn,
		"SELECT * FROM transactions WHERE mpesa_checkout_request_id = $1", checkoutRequestID)
	if err == sql.ErrNoRows {
		return nil, models.ErrTransactionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

// SetTransactionCheckoutRequestID persists the opaque provider request id
// returned by a successful STK push initiation.
func (s *Store) SetTransactionCheckoutRequestID(ctx context.Context, transactionID int64, checkoutRequestID string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE transactions SET mpesa_checkout_request_id = $1, updated_at = NOW() WHERE id = $2",
		checkoutRequestID, transactionID)
	return err
}

// IncrementTransactionRetry bumps the retry counter and resets the
// transaction to pending for another payment attempt. Returns the new count.
func (s *Store) IncrementTransactionRetry(ctx context.Context, transactionID int64) (int, error) {
	var retryCount int
	err := s.db.GetContext(ctx, &retryCount, `
		UPDATE transactions
		SET retry_count = retry_count + 1, status = $1, fail_reason = NULL, updated_at = NOW()
		WHERE id = $2
		RETURNING retry_count`,
		models.StatusPending, transactionID)
	return retryCount, err
}

// MarkTransactionResult records the terminal provider outcome. The update is
// conditional on the row still being pending, so a result racing another
// source (callback vs. sweep) cannot overwrite an already-terminal
// transaction; the loser gets applied=false. failReason is stored raw;
// translation to a human-readable message happens at read time.
func (s *Store) MarkTransactionResult(ctx context.Context, transactionID int64, status, failReason string) (bool, error) {
	reason := sql.NullString{String: failReason, Valid: failReason != ""}
	res, err := s.db.ExecContext(ctx,
		"UPDATE transactions SET status = $1, fail_reason = $2, updated_at = NOW() WHERE id = $3 AND status = $4",
		status, reason, transactionID, models.StatusPending)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// FindStalePendingTransactions returns transactions stuck in pending longer
// than the timeout, oldest first, for the reconciliation sweep.
func (s *Store) FindStalePendingTransactions(ctx context.Context, olderThan time.Duration, limit int) ([]models.Transaction, error) {
	var txns []models.Transaction
	err := s.db.SelectContext(ctx, &txns, `
		SELECT * FROM transactions
		WHERE status = $1 AND updated_at < $2
		ORDER BY updated_at ASC LIMIT $3`,
		models.StatusPending, time.Now().Add(-olderThan), limit)
	return txns, err
}
