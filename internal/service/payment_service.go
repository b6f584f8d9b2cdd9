package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"checkout-service/internal/models"
	"checkout-service/internal/mpesa"
	"checkout-service/internal/util"
)

// PaymentService applies asynchronous payment results (provider callbacks
// and reconciliation-sweep query answers) to the transaction store. Results
// are applied at most once per provider request id via the processed_events
// table; duplicate callbacks are acknowledged and dropped.
type PaymentService struct {
	repo           PaymentRepository
	eventPublisher EventPublisher
	logger         *zap.Logger
}

// NewPaymentService creates a new payment service
func NewPaymentService(repo PaymentRepository, eventPublisher EventPublisher) *PaymentService {
	return &PaymentService{
		repo:           repo,
		eventPublisher: eventPublisher,
		logger:         util.GetLogger(),
	}
}

// ApplyCallback handles the provider's asynchronous STK push result.
func (ps *PaymentService) ApplyCallback(ctx context.Context, payload *mpesa.CallbackPayload) error {
	ctx, span := util.StartSpan(ctx, "PaymentService.ApplyCallback")
	defer span.End()

	cb := payload.Body.StkCallback
	if cb.CheckoutRequestID == "" {
		return fmt.Errorf("callback missing checkout request id")
	}

	txn, err := ps.repo.GetTransactionByCheckoutRequestID(ctx, cb.CheckoutRequestID)
	if err != nil {
		return fmt.Errorf("failed to correlate callback %s: %w", cb.CheckoutRequestID, err)
	}

	if cb.ResultCode == 0 {
		return ps.applyResult(ctx, txn, true, "", "stk-callback-"+cb.CheckoutRequestID)
	}

	reason := fmt.Sprintf("%s (code %d)", cb.ResultDesc, cb.ResultCode)
	return ps.applyResult(ctx, txn, false, reason, "stk-callback-"+cb.CheckoutRequestID)
}

// ApplyQueryResult handles a reconciliation-sweep answer for a stale
// transaction. Unsettled queries are a no-op; the sweep decides expiry.
func (ps *PaymentService) ApplyQueryResult(ctx context.Context, txn *models.Transaction, result *mpesa.QueryResult) error {
	if !result.Settled() {
		return nil
	}

	eventID := "stk-query-" + txn.MpesaCheckoutRequestID.String
	if result.Succeeded() {
		return ps.applyResult(ctx, txn, true, "", eventID)
	}

	reason := fmt.Sprintf("%s (code %s)", result.ResultDesc, result.ResultCode)
	return ps.applyResult(ctx, txn, false, reason, eventID)
}

// ExpireTransaction fails a pending transaction whose payment never resolved.
// Inventory is deliberately not released; stuck orders are reconciled
// manually by the organizer dashboard.
func (ps *PaymentService) ExpireTransaction(ctx context.Context, txn *models.Transaction) error {
	eventID := fmt.Sprintf("expire-txn-%d-retry-%d", txn.ID, txn.RetryCount)
	return ps.applyResult(ctx, txn, false, "payment request expired", eventID)
}

func (ps *PaymentService) applyResult(ctx context.Context, txn *models.Transaction, success bool, reason, eventID string) error {
	processed, err := ps.repo.IsEventProcessed(ctx, eventID)
	if err != nil {
		return fmt.Errorf("failed to check event processed: %w", err)
	}
	if processed {
		ps.logger.Info("Payment result already applied", zap.String("event_id", eventID))
		return nil
	}

	// A transaction that already reached a terminal state never moves again;
	// a stale result racing a newer one is dropped here.
	if txn.Status != models.StatusPending {
		ps.logger.Info("Transaction already terminal, dropping result",
			zap.Int64("transaction_id", txn.ID),
			zap.String("status", txn.Status))
		return nil
	}

	// The store applies the transition conditionally on the row still being
	// pending. The in-memory check above works from the caller's snapshot,
	// which may be stale: the sweep can load a pending transaction that a
	// callback completes before ExpireTransaction runs. Only the conditional
	// update decides the race.
	status := models.StatusCompleted
	if !success {
		status = models.StatusFailed
	}
	applied, err := ps.repo.MarkTransactionResult(ctx, txn.ID, status, reason)
	if err != nil {
		return fmt.Errorf("failed to record transaction result: %w", err)
	}
	if !applied {
		ps.logger.Info("Transaction already terminal, dropping result",
			zap.Int64("transaction_id", txn.ID),
			zap.String("dropped_status", status))
		return nil
	}

	if success {
		if err := ps.repo.UpdateOrderStatus(ctx, txn.OrderID, models.StatusCompleted); err != nil {
			return fmt.Errorf("failed to complete order: %w", err)
		}

		util.PaymentCompletedTotal.Inc()
		ps.logger.Info("Payment completed",
			zap.Int64("order_id", txn.OrderID),
			zap.Int64("transaction_id", txn.ID))

		event := &models.PaymentCompletedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypePaymentCompleted,
				Timestamp: time.Now(),
			},
			OrderID:       txn.OrderID,
			TransactionID: txn.ID,
			Amount:        txn.Amount,
		}
		if err := ps.eventPublisher.PublishPaymentCompleted(ctx, event); err != nil {
			ps.logger.Error("Failed to publish PaymentCompleted event", zap.Error(err))
		}
	} else {
		if err := ps.repo.UpdateOrderStatus(ctx, txn.OrderID, models.StatusFailed); err != nil {
			return fmt.Errorf("failed to fail order: %w", err)
		}

		util.PaymentFailedTotal.Inc()
		ps.logger.Warn("Payment failed",
			zap.Int64("order_id", txn.OrderID),
			zap.Int64("transaction_id", txn.ID),
			zap.String("reason", reason))

		event := &models.PaymentFailedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypePaymentFailed,
				Timestamp: time.Now(),
			},
			OrderID:       txn.OrderID,
			TransactionID: txn.ID,
			Reason:        reason,
			RetryCount:    txn.RetryCount,
		}
		if err := ps.eventPublisher.PublishPaymentFailed(ctx, event); err != nil {
			ps.logger.Error("Failed to publish PaymentFailed event", zap.Error(err))
		}
	}

	if err := ps.repo.MarkEventProcessed(ctx, eventID, "payment-result"); err != nil {
		ps.logger.Error("Failed to mark event processed", zap.Error(err))
	}

	return nil
}
