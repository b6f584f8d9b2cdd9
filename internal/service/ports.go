package service

import (
	"context"
	"time"

	"checkout-service/internal/models"
)

// CheckoutRepository is the slice of the store the checkout flow needs.
// *store.Store satisfies it.
type CheckoutRepository interface {
	GetListingByID(ctx context.Context, id int64) (*models.Listing, error)
	GetPromoCodeByCode(ctx context.Context, code string) (*models.PromoCode, error)
	CreateCheckout(ctx context.Context, order *models.Order, items []models.OrderItem, txn *models.Transaction) error
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	GetTransactionByID(ctx context.Context, id int64) (*models.Transaction, error)
	GetTransactionByOrderID(ctx context.Context, orderID int64) (*models.Transaction, error)
	SetTransactionCheckoutRequestID(ctx context.Context, transactionID int64, checkoutRequestID string) error
	IncrementTransactionRetry(ctx context.Context, transactionID int64) (int, error)
	FindRecentCompletedOrder(ctx context.Context, userID, listingID int64, window time.Duration) (*models.Order, error)
}

// PaymentRepository is the slice of the store payment reconciliation needs.
// *store.Store satisfies it.
type PaymentRepository interface {
	GetTransactionByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*models.Transaction, error)
	MarkTransactionResult(ctx context.Context, transactionID int64, status, failReason string) (bool, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, status string) error
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// RateLimiter guards order creation per (client, listing) pair.
// *redisclient.Client satisfies it.
type RateLimiter interface {
	CountAttempts(ctx context.Context, clientKey string, listingID int64) (int64, error)
	RecordAttempt(ctx context.Context, clientKey string, listingID int64) error
}

// PaymentGateway initiates push payments. *mpesa.Client satisfies it.
type PaymentGateway interface {
	STKPush(ctx context.Context, phoneNumber string, amount int64, accountReference string) (string, error)
}

// EventPublisher emits checkout lifecycle events.
// *broker.EventPublisher satisfies it.
type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error
	PublishPaymentInitiated(ctx context.Context, event *models.PaymentInitiatedEvent) error
	PublishPaymentCompleted(ctx context.Context, event *models.PaymentCompletedEvent) error
	PublishPaymentFailed(ctx context.Context, event *models.PaymentFailedEvent) error
}
