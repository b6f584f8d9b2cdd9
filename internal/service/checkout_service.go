package service

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"checkout-service/internal/models"
	"checkout-service/internal/mpesa"
	"checkout-service/internal/util"
)

// CheckoutService is the single entry point for creating an order and
// initiating its payment. Concurrency comes from simultaneous checkout
// attempts for the same listing; the only shared mutable state is the
// listing's sold counters, protected by the store's atomic commit.
type CheckoutService struct {
	repo           CheckoutRepository
	limiter        RateLimiter
	gateway        PaymentGateway
	eventPublisher EventPublisher
	logger         *zap.Logger

	rateLimitMax         int
	recentOrderWindow    time.Duration
	platformFeePercent   float64
	processingFeePercent float64
}

// CheckoutConfig carries the business knobs for the checkout flow.
type CheckoutConfig struct {
	RateLimitMax         int
	RecentOrderWindow    time.Duration
	PlatformFeePercent   float64
	ProcessingFeePercent float64
}

// NewCheckoutService creates a new checkout service
func NewCheckoutService(
	repo CheckoutRepository,
	limiter RateLimiter,
	gateway PaymentGateway,
	eventPublisher EventPublisher,
	cfg CheckoutConfig,
) *CheckoutService {
	return &CheckoutService{
		repo:                 repo,
		limiter:              limiter,
		gateway:              gateway,
		eventPublisher:       eventPublisher,
		logger:               util.GetLogger(),
		rateLimitMax:         cfg.RateLimitMax,
		recentOrderWindow:    cfg.RecentOrderWindow,
		platformFeePercent:   cfg.PlatformFeePercent,
		processingFeePercent: cfg.ProcessingFeePercent,
	}
}

// CheckoutRequest represents one checkout attempt.
type CheckoutRequest struct {
	ListingID  int64                 `json:"listing_id" binding:"required"`
	UserID     *int64                `json:"user_id,omitempty"`
	BuyerName  string                `json:"buyer_name"`
	BuyerEmail string                `json:"buyer_email"`
	BuyerPhone string                `json:"buyer_phone"`
	Items      []CheckoutItemRequest `json:"items" binding:"required,min=1"`
	PromoCode  string                `json:"promo_code,omitempty"`

	// ClientKey identifies the caller for rate limiting (client IP).
	ClientKey string `json:"-"`
}

// CheckoutItemRequest is one requested ticket line item.
type CheckoutItemRequest struct {
	TicketTypeID int64 `json:"ticket_type_id" binding:"required"`
	Quantity     int   `json:"quantity" binding:"required,min=1"`
}

// CheckoutResponse is the structured result returned to the client. Errors
// never escape as exceptions; failures carry a stable error code.
type CheckoutResponse struct {
	Success       bool   `json:"success"`
	OrderID       int64  `json:"order_id,omitempty"`
	TransactionID int64  `json:"transaction_id,omitempty"`
	ErrorCode     string `json:"error_code,omitempty"`
	Error         string `json:"error,omitempty"`
}

func checkoutFailure(code, message string) *CheckoutResponse {
	util.CheckoutFailedTotal.WithLabelValues(code).Inc()
	return &CheckoutResponse{Success: false, ErrorCode: code, Error: message}
}

// CreateOrderAndInitiatePayment validates the request, admits it through the
// rate limiter, commits order+transaction+inventory atomically, then outside
// the atomic scope records the attempt, emits the order event and initiates
// the STK push. A gateway failure after the commit leaves the order and
// transaction pending; the reconciliation sweep resolves them later.
func (s *CheckoutService) CreateOrderAndInitiatePayment(ctx context.Context, req *CheckoutRequest) *CheckoutResponse {
	ctx, span := util.StartSpan(ctx, "CheckoutService.CreateOrderAndInitiatePayment")
	defer span.End()

	util.CheckoutAttemptsTotal.Inc()

	if msg, ok := validateBuyer(req); !ok {
		return checkoutFailure(models.ErrCodeMissingBuyerInfo, msg)
	}

	count, err := s.limiter.CountAttempts(ctx, req.ClientKey, req.ListingID)
	if err != nil {
		// Fail closed: admission control being down blocks checkout.
		s.logger.Error("Rate limiter unavailable", zap.Error(err))
		return checkoutFailure(models.ErrCodeUnknown, "checkout is temporarily unavailable, please try again")
	}
	if count >= int64(s.rateLimitMax) {
		util.RateLimitedTotal.Inc()
		return checkoutFailure(models.ErrCodeRateLimited, models.ErrRateLimited.Error())
	}

	listing, err := s.repo.GetListingByID(ctx, req.ListingID)
	if err != nil {
		if errors.Is(err, models.ErrListingNotFound) {
			return checkoutFailure(models.ErrCodeListingNotFound, "this listing no longer exists")
		}
		s.logger.Error("Failed to load listing", zap.Int64("listing_id", req.ListingID), zap.Error(err))
		return checkoutFailure(models.ErrCodeUnknown, "failed to load listing")
	}

	items, err := buildOrderItems(listing, req.Items)
	if err != nil {
		return checkoutFailure(models.ErrCodeTicketTypeUnavailable, err.Error())
	}

	// Promocode resolution happens fully outside the atomic commit: the
	// discount snapshot may be slightly stale, but the locked section stays
	// minimal and attribution is decided before any write.
	promo := s.resolvePromoCode(ctx, req.PromoCode)

	breakdown := ComputeBreakdown(items, promo, s.platformFeePercent, s.processingFeePercent)

	order := &models.Order{
		ListingID:     req.ListingID,
		BuyerName:     req.BuyerName,
		BuyerEmail:    req.BuyerEmail,
		BuyerPhone:    req.BuyerPhone,
		Subtotal:      breakdown.Subtotal,
		Discount:      breakdown.Discount,
		PlatformFee:   breakdown.PlatformFee,
		ProcessingFee: breakdown.ProcessingFee,
		TotalAmount:   breakdown.Total,
		Status:        models.StatusPending,
	}
	if req.UserID != nil {
		order.UserID = sql.NullInt64{Int64: *req.UserID, Valid: true}
	}
	if promo != nil {
		order.PromoCodeID = sql.NullInt64{Int64: promo.ID, Valid: true}
		order.TrackingLinkID = promo.TrackingLinkID
	}

	txn := &models.Transaction{PaymentMethod: models.PaymentMethodMpesa}

	commitStart := time.Now()
	commitErr := s.repo.CreateCheckout(ctx, order, items, txn)
	util.CheckoutCommitLatency.Observe(time.Since(commitStart).Seconds())

	// The attempt is recorded on success and failure alike, so retries are
	// penalized equally. Recording failures must not fail the checkout.
	if err := s.limiter.RecordAttempt(ctx, req.ClientKey, req.ListingID); err != nil {
		s.logger.Error("Failed to record rate-limit attempt", zap.Error(err))
	}

	if commitErr != nil {
		return s.commitFailure(commitErr)
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order committed",
		zap.Int64("order_id", order.ID),
		zap.Int64("transaction_id", txn.ID),
		zap.Int64("total_amount", order.TotalAmount))

	s.publishOrderCreated(ctx, order, txn, items)

	if resp := s.initiatePayment(ctx, order, txn, 0); resp != nil {
		return resp
	}

	return &CheckoutResponse{Success: true, OrderID: order.ID, TransactionID: txn.ID}
}

func (s *CheckoutService) commitFailure(err error) *CheckoutResponse {
	var inv *models.InsufficientInventoryError
	switch {
	case errors.Is(err, models.ErrListingNotFound):
		return checkoutFailure(models.ErrCodeListingNotFound, "this listing no longer exists")
	case errors.Is(err, models.ErrTicketTypeUnavailable):
		return checkoutFailure(models.ErrCodeTicketTypeUnavailable, err.Error())
	case errors.As(err, &inv):
		util.InventoryConflictsTotal.Inc()
		return checkoutFailure(models.ErrCodeInsufficientInventory, inv.Error())
	default:
		s.logger.Error("Checkout commit failed", zap.Error(err))
		return checkoutFailure(models.ErrCodeUnknown, "failed to create order")
	}
}

// RetryPayment re-invokes the payment gateway for an existing order. It never
// re-runs the atomic inventory commit: the same order and transaction rows are
// reused and retry_count is incremented on the transaction.
func (s *CheckoutService) RetryPayment(ctx context.Context, orderID int64) *CheckoutResponse {
	ctx, span := util.StartSpan(ctx, "CheckoutService.RetryPayment")
	defer span.End()

	order, err := s.repo.GetOrderByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, models.ErrOrderNotFound) {
			return checkoutFailure(models.ErrCodeUnknown, "order not found")
		}
		s.logger.Error("Failed to load order for retry", zap.Int64("order_id", orderID), zap.Error(err))
		return checkoutFailure(models.ErrCodeUnknown, "failed to load order")
	}

	txn, err := s.repo.GetTransactionByOrderID(ctx, orderID)
	if err != nil {
		s.logger.Error("Failed to load transaction for retry", zap.Int64("order_id", orderID), zap.Error(err))
		return checkoutFailure(models.ErrCodeUnknown, "failed to load transaction")
	}

	if txn.Status == models.StatusCompleted {
		return &CheckoutResponse{Success: true, OrderID: order.ID, TransactionID: txn.ID}
	}

	retryCount, err := s.repo.IncrementTransactionRetry(ctx, txn.ID)
	if err != nil {
		s.logger.Error("Failed to increment retry count", zap.Int64("transaction_id", txn.ID), zap.Error(err))
		return checkoutFailure(models.ErrCodeUnknown, "failed to retry payment")
	}

	util.PaymentRetriesTotal.Inc()
	s.logger.Info("Retrying payment",
		zap.Int64("order_id", order.ID),
		zap.Int64("transaction_id", txn.ID),
		zap.Int("retry_count", retryCount))

	if resp := s.initiatePayment(ctx, order, txn, retryCount); resp != nil {
		return resp
	}

	return &CheckoutResponse{Success: true, OrderID: order.ID, TransactionID: txn.ID}
}

// initiatePayment runs the STK push and persists the provider request id.
// Returns a failure response on gateway errors, nil on success. The order and
// transaction stay pending either way.
func (s *CheckoutService) initiatePayment(ctx context.Context, order *models.Order, txn *models.Transaction, retryCount int) *CheckoutResponse {
	util.StkPushTotal.Inc()
	start := time.Now()
	checkoutRequestID, err := s.gateway.STKPush(ctx, order.BuyerPhone, order.TotalAmount, strconv.FormatInt(order.ID, 10))
	util.StkPushLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		util.StkPushFailedTotal.Inc()
		s.logger.Error("STK push initiation failed",
			zap.Int64("order_id", order.ID),
			zap.Error(err))
		resp := checkoutFailure(models.ErrCodeGatewayInitiation,
			"could not send the payment request to your phone, please retry")
		resp.OrderID = order.ID
		resp.TransactionID = txn.ID
		return resp
	}

	if err := s.repo.SetTransactionCheckoutRequestID(ctx, txn.ID, checkoutRequestID); err != nil {
		// The push is already on the buyer's phone; losing the correlation id
		// only degrades callback matching, so log and continue.
		s.logger.Error("Failed to persist checkout request id",
			zap.Int64("transaction_id", txn.ID),
			zap.String("checkout_request_id", checkoutRequestID),
			zap.Error(err))
	}

	event := &models.PaymentInitiatedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypePaymentInitiated,
			Timestamp: time.Now(),
		},
		OrderID:           order.ID,
		TransactionID:     txn.ID,
		CheckoutRequestID: checkoutRequestID,
		Amount:            order.TotalAmount,
	}
	if err := s.eventPublisher.PublishPaymentInitiated(ctx, event); err != nil {
		s.logger.Error("Failed to publish PaymentInitiated event", zap.Error(err))
	}

	return nil
}

func (s *CheckoutService) publishOrderCreated(ctx context.Context, order *models.Order, txn *models.Transaction, items []models.OrderItem) {
	eventItems := make([]models.OrderItemData, 0, len(items))
	for _, item := range items {
		eventItems = append(eventItems, models.OrderItemData{
			TicketTypeID: item.TicketTypeID,
			Name:         item.Name,
			Quantity:     item.Quantity,
			UnitPrice:    item.UnitPrice,
		})
	}

	event := &models.OrderCreatedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderCreated,
			Timestamp: time.Now(),
		},
		OrderID:       order.ID,
		ListingID:     order.ListingID,
		TransactionID: txn.ID,
		BuyerEmail:    order.BuyerEmail,
		TotalAmount:   order.TotalAmount,
		Items:         eventItems,
	}
	if err := s.eventPublisher.PublishOrderCreated(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCreated event", zap.Error(err))
	}
}

func (s *CheckoutService) resolvePromoCode(ctx context.Context, code string) *models.PromoCode {
	if code == "" {
		return nil
	}
	promo, err := s.repo.GetPromoCodeByCode(ctx, code)
	if err != nil {
		// A broken promocode lookup must not block checkout.
		s.logger.Warn("Promocode lookup failed", zap.String("code", code), zap.Error(err))
		return nil
	}
	return promo
}

func validateBuyer(req *CheckoutRequest) (string, bool) {
	var missing []string
	if strings.TrimSpace(req.BuyerName) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(req.BuyerEmail) == "" {
		missing = append(missing, "email")
	}
	if strings.TrimSpace(req.BuyerPhone) == "" {
		missing = append(missing, "phone")
	}
	if len(missing) > 0 {
		return "missing buyer " + strings.Join(missing, ", "), false
	}
	return "", true
}

// buildOrderItems resolves requested line items against the listing's ticket
// types. Capacity is NOT checked here; that happens inside the atomic commit.
func buildOrderItems(listing *models.Listing, requested []CheckoutItemRequest) ([]models.OrderItem, error) {
	byID := make(map[int64]*models.TicketType, len(listing.TicketTypes))
	for i := range listing.TicketTypes {
		byID[listing.TicketTypes[i].ID] = &listing.TicketTypes[i]
	}

	items := make([]models.OrderItem, 0, len(requested))
	for _, r := range requested {
		tt, ok := byID[r.TicketTypeID]
		if !ok {
			return nil, models.ErrTicketTypeUnavailable
		}
		items = append(items, models.OrderItem{
			TicketTypeID: tt.ID,
			Name:         tt.Name,
			Quantity:     r.Quantity,
			UnitPrice:    tt.Price,
		})
	}
	return items, nil
}

// TransactionStatusResponse is the polling contract for the client.
type TransactionStatusResponse struct {
	Success    bool   `json:"success"`
	Status     string `json:"status,omitempty"`
	FailReason string `json:"fail_reason,omitempty"`
	RetryCount int    `json:"retry_count"`
	Error      string `json:"error,omitempty"`
}

// GetTransactionStatus returns the transaction's lifecycle status with the
// provider failure reason translated to a human-readable message.
func (s *CheckoutService) GetTransactionStatus(ctx context.Context, transactionID int64) *TransactionStatusResponse {
	txn, err := s.repo.GetTransactionByID(ctx, transactionID)
	if err != nil {
		if errors.Is(err, models.ErrTransactionNotFound) {
			return &TransactionStatusResponse{Success: false, Error: "transaction not found"}
		}
		s.logger.Error("Failed to load transaction status",
			zap.Int64("transaction_id", transactionID), zap.Error(err))
		return &TransactionStatusResponse{Success: false, Error: "failed to load transaction"}
	}

	resp := &TransactionStatusResponse{
		Success:    true,
		Status:     txn.Status,
		RetryCount: txn.RetryCount,
	}
	if txn.Status == models.StatusFailed {
		resp.FailReason = mpesa.TranslateFailureReason(txn.FailReason.String)
	}
	return resp
}

// RecentOrderResponse is the duplicate-submission guard result.
type RecentOrderResponse struct {
	RecentOrder bool  `json:"recent_order"`
	OrderID     int64 `json:"order_id,omitempty"`
}

// CheckForRecentOrder short-circuits a new checkout to an existing completed
// order by the same user for the same listing inside the trailing window.
// Best-effort: guest checkouts are not covered.
func (s *CheckoutService) CheckForRecentOrder(ctx context.Context, userID, listingID int64) (*RecentOrderResponse, error) {
	order, err := s.repo.FindRecentCompletedOrder(ctx, userID, listingID, s.recentOrderWindow)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return &RecentOrderResponse{RecentOrder: false}, nil
	}
	return &RecentOrderResponse{RecentOrder: true, OrderID: order.ID}, nil
}
