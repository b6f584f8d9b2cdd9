package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"checkout-service/internal/broker"
	"checkout-service/internal/models"
	"checkout-service/internal/mpesa"
	"checkout-service/internal/service"
	"checkout-service/internal/util"
)

// Notifier is the out-of-scope notification collaborator: organizer/admin
// fan-out happens behind it.
type Notifier interface {
	NotifyOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error
	NotifyPaymentCompleted(ctx context.Context, event *models.PaymentCompletedEvent) error
}

// LogNotifier is the default Notifier: it only records the event.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{logger: util.GetLogger()}
}

func (n *LogNotifier) NotifyOrderCreated(_ context.Context, event *models.OrderCreatedEvent) error {
	n.logger.Info("New order notification",
		zap.Int64("order_id", event.OrderID),
		zap.Int64("listing_id", event.ListingID),
		zap.Int64("total_amount", event.TotalAmount))
	return nil
}

func (n *LogNotifier) NotifyPaymentCompleted(_ context.Context, event *models.PaymentCompletedEvent) error {
	n.logger.Info("Payment completed notification",
		zap.Int64("order_id", event.OrderID),
		zap.Int64("amount", event.Amount))
	return nil
}

// NotificationWorker consumes checkout events and forwards the ones the
// organizer cares about to the Notifier.
type NotificationWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewNotificationWorker creates a new notification worker
func NewNotificationWorker(consumer *broker.Consumer, notifier Notifier) *NotificationWorker {
	eventHandler := broker.NewEventHandler()
	eventHandler.OnOrderCreated(notifier.NotifyOrderCreated)
	eventHandler.OnPaymentCompleted(notifier.NotifyPaymentCompleted)

	return &NotificationWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
		logger:       util.GetLogger(),
	}
}

// Start starts the worker
func (w *NotificationWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting notification worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *NotificationWorker) Stop() error {
	w.logger.Info("Stopping notification worker")
	return w.consumer.Close()
}

// StaleTransactionFinder is the slice of the store the sweep needs.
// *store.Store satisfies it.
type StaleTransactionFinder interface {
	FindStalePendingTransactions(ctx context.Context, olderThan time.Duration, limit int) ([]models.Transaction, error)
}

// StatusQuerier asks the provider for the state of an earlier push payment.
// *mpesa.Client satisfies it.
type StatusQuerier interface {
	QueryStatus(ctx context.Context, checkoutRequestID string) (*mpesa.QueryResult, error)
}

// ReconcileWorker sweeps transactions stuck in pending beyond the timeout:
// the gateway is queried for a terminal answer, and transactions the provider
// cannot resolve are failed as expired. This is what eventually settles
// orders whose callback never arrived or whose STK push was never initiated.
type ReconcileWorker struct {
	store          StaleTransactionFinder
	gateway        StatusQuerier
	paymentService *service.PaymentService
	interval       time.Duration
	timeout        time.Duration
	logger         *zap.Logger
}

// NewReconcileWorker creates a new reconciliation worker
func NewReconcileWorker(
	store StaleTransactionFinder,
	gateway StatusQuerier,
	paymentService *service.PaymentService,
	interval, timeout time.Duration,
) *ReconcileWorker {
	return &ReconcileWorker{
		store:          store,
		gateway:        gateway,
		paymentService: paymentService,
		interval:       interval,
		timeout:        timeout,
		logger:         util.GetLogger(),
	}
}

// Start runs the sweep loop until the context is cancelled.
func (w *ReconcileWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting reconcile worker",
		zap.Duration("interval", w.interval),
		zap.Duration("timeout", w.timeout))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Reconcile worker context cancelled, stopping")
			return ctx.Err()
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *ReconcileWorker) sweep(ctx context.Context) {
	txns, err := w.store.FindStalePendingTransactions(ctx, w.timeout, 100)
	if err != nil {
		w.logger.Error("Failed to find stale transactions", zap.Error(err))
		return
	}

	for i := range txns {
		txn := &txns[i]
		if err := w.reconcile(ctx, txn); err != nil {
			w.logger.Error("Failed to reconcile transaction",
				zap.Int64("transaction_id", txn.ID),
				zap.Error(err))
			continue
		}
		util.StalePaymentsSweptTotal.Inc()
	}
}

func (w *ReconcileWorker) reconcile(ctx context.Context, txn *models.Transaction) error {
	// No provider request id means the STK push never left the building;
	// nothing to query, the payment can only expire.
	if !txn.MpesaCheckoutRequestID.Valid {
		return w.paymentService.ExpireTransaction(ctx, txn)
	}

	result, err := w.gateway.QueryStatus(ctx, txn.MpesaCheckoutRequestID.String)
	if err != nil {
		w.logger.Warn("Gateway status query failed, expiring transaction",
			zap.Int64("transaction_id", txn.ID),
			zap.Error(err))
		return w.paymentService.ExpireTransaction(ctx, txn)
	}

	if !result.Settled() {
		return w.paymentService.ExpireTransaction(ctx, txn)
	}

	return w.paymentService.ApplyQueryResult(ctx, txn, result)
}
