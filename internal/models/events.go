package models

import "time"

// Event types
const (
	EventTypeOrderCreated     = "ORDER_CREATED"
	EventTypePaymentInitiated = "PAYMENT_INITIATED"
	EventTypePaymentCompleted = "PAYMENT_COMPLETED"
	EventTypePaymentFailed    = "PAYMENT_FAILED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderCreatedEvent is published after the checkout commit, outside the
// atomic scope. Organizer/admin notification fan-out consumes it.
type OrderCreatedEvent struct {
	BaseEvent
	OrderID       int64           `json:"order_id"`
	ListingID     int64           `json:"listing_id"`
	TransactionID int64           `json:"transaction_id"`
	BuyerEmail    string          `json:"buyer_email"`
	TotalAmount   int64           `json:"total_amount"`
	Items         []OrderItemData `json:"items"`
}

// PaymentInitiatedEvent is published once the STK push has been accepted by
// the provider and the checkout request id persisted.
type PaymentInitiatedEvent struct {
	BaseEvent
	OrderID           int64  `json:"order_id"`
	TransactionID     int64  `json:"transaction_id"`
	CheckoutRequestID string `json:"checkout_request_id"`
	Amount            int64  `json:"amount"`
}

// PaymentCompletedEvent is published when the provider confirms payment.
type PaymentCompletedEvent struct {
	BaseEvent
	OrderID       int64 `json:"order_id"`
	TransactionID int64 `json:"transaction_id"`
	Amount        int64 `json:"amount"`
}

// PaymentFailedEvent is published when the provider declines or the payment
// request expires. Reason carries the raw provider failure code.
type PaymentFailedEvent struct {
	BaseEvent
	OrderID       int64  `json:"order_id"`
	TransactionID int64  `json:"transaction_id"`
	Reason        string `json:"reason"`
	RetryCount    int    `json:"retry_count"`
}

// OrderItemData represents item data in events
type OrderItemData struct {
	TicketTypeID int64  `json:"ticket_type_id"`
	Name         string `json:"name"`
	Quantity     int    `json:"quantity"`
	UnitPrice    int64  `json:"unit_price"`
}
