package models

import (
	"database/sql"
	"time"
)

// Listing represents a purchasable event/tour with ticket type definitions.
type Listing struct {
	ID               int64     `db:"id" json:"id"`
	Title            string    `db:"title" json:"title"`
	OrganizerID      int64     `db:"organizer_id" json:"organizer_id"`
	TotalTicketsSold int       `db:"total_tickets_sold" json:"total_tickets_sold"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`

	TicketTypes []TicketType `db:"-" json:"ticket_types,omitempty"`
}

// TicketType is a named SKU within a listing with a price and fixed capacity.
// Invariant: TicketsSold <= Quantity, enforced at order-commit time.
type TicketType struct {
	ID          int64  `db:"id" json:"id"`
	ListingID   int64  `db:"listing_id" json:"listing_id"`
	Name        string `db:"name" json:"name"`
	Price       int64  `db:"price" json:"price"`
	Quantity    int    `db:"quantity" json:"quantity"`
	TicketsSold int    `db:"tickets_sold" json:"tickets_sold"`
}

// Order is a purchase intent with its computed monetary breakdown.
// Created exactly once per checkout attempt; only status and timestamps
// mutate afterwards, and orders are never deleted.
type Order struct {
	ID             int64         `db:"id" json:"id"`
	ListingID      int64         `db:"listing_id" json:"listing_id"`
	UserID         sql.NullInt64 `db:"user_id" json:"user_id,omitempty"`
	BuyerName      string        `db:"buyer_name" json:"buyer_name"`
	BuyerEmail     string        `db:"buyer_email" json:"buyer_email"`
	BuyerPhone     string        `db:"buyer_phone" json:"buyer_phone"`
	Subtotal       int64         `db:"subtotal" json:"subtotal"`
	Discount       int64         `db:"discount" json:"discount"`
	PlatformFee    int64         `db:"platform_fee" json:"platform_fee"`
	ProcessingFee  int64         `db:"processing_fee" json:"processing_fee"`
	TotalAmount    int64         `db:"total_amount" json:"total_amount"`
	Status         string        `db:"status" json:"status"`
	PromoCodeID    sql.NullInt64 `db:"promo_code_id" json:"promo_code_id,omitempty"`
	TrackingLinkID sql.NullInt64 `db:"tracking_link_id" json:"tracking_link_id,omitempty"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time     `db:"updated_at" json:"updated_at"`
}

// OrderItem is one ticket line item on an order.
type OrderItem struct {
	ID           int64  `db:"id" json:"id"`
	OrderID      int64  `db:"order_id" json:"order_id"`
	TicketTypeID int64  `db:"ticket_type_id" json:"ticket_type_id"`
	Name         string `db:"name" json:"name"`
	Quantity     int    `db:"quantity" json:"quantity"`
	UnitPrice    int64  `db:"unit_price" json:"unit_price"`
}

// Transaction is one payment attempt tied 1:1 to an order at creation.
// Manual retries increment RetryCount on the same row instead of creating
// a new transaction.
type Transaction struct {
	ID                     int64          `db:"id" json:"id"`
	OrderID                int64          `db:"order_id" json:"order_id"`
	Amount                 int64          `db:"amount" json:"amount"`
	Status                 string         `db:"status" json:"status"`
	PaymentMethod          string         `db:"payment_method" json:"payment_method"`
	MpesaCheckoutRequestID sql.NullString `db:"mpesa_checkout_request_id" json:"mpesa_checkout_request_id,omitempty"`
	FailReason             sql.NullString `db:"fail_reason" json:"fail_reason,omitempty"`
	RetryCount             int            `db:"retry_count" json:"retry_count"`
	CreatedAt              time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt              time.Time      `db:"updated_at" json:"updated_at"`
}

// PromoCode is a read-only discount reference resolved during checkout.
type PromoCode struct {
	ID             int64         `db:"id" json:"id"`
	Code           string        `db:"code" json:"code"`
	PercentOff     sql.NullFloat64 `db:"percent_off" json:"percent_off,omitempty"`
	AmountOff      sql.NullInt64 `db:"amount_off" json:"amount_off,omitempty"`
	Active         bool          `db:"active" json:"active"`
	TrackingLinkID sql.NullInt64 `db:"tracking_link_id" json:"tracking_link_id,omitempty"`
}

// Order and transaction lifecycle statuses.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Payment methods.
const (
	PaymentMethodMpesa = "mpesa"
)

// ProcessedEvent records handled event/callback IDs for idempotency.
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
