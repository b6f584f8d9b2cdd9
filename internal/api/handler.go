package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"checkout-service/internal/models"
	"checkout-service/internal/mpesa"
	"checkout-service/internal/service"
	"checkout-service/internal/util"
)

// Handler contains HTTP handlers
type Handler struct {
	checkoutService *service.CheckoutService
	paymentService  *service.PaymentService
}

// NewHandler creates a new HTTP handler
func NewHandler(checkoutService *service.CheckoutService, paymentService *service.PaymentService) *Handler {
	return &Handler{
		checkoutService: checkoutService,
		paymentService:  paymentService,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/checkout", h.createCheckout)
		v1.POST("/checkout/:orderId/retry", h.retryPayment)
		v1.GET("/transactions/:id/status", h.transactionStatus)
		v1.GET("/listings/:id/recent-order", h.recentOrder)
		v1.POST("/payments/mpesa/callback", h.mpesaCallback)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// httpStatusFor maps checkout error codes to HTTP statuses.
func httpStatusFor(code string) int {
	switch code {
	case models.ErrCodeMissingBuyerInfo:
		return http.StatusBadRequest
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case models.ErrCodeListingNotFound:
		return http.StatusNotFound
	case models.ErrCodeTicketTypeUnavailable, models.ErrCodeInsufficientInventory:
		return http.StatusConflict
	case models.ErrCodeGatewayInitiation:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// createCheckout handles order creation and payment initiation
func (h *Handler) createCheckout(c *gin.Context) {
	var req service.CheckoutRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	req.ClientKey = c.ClientIP()

	resp := h.checkoutService.CreateOrderAndInitiatePayment(c.Request.Context(), &req)
	if !resp.Success {
		c.JSON(httpStatusFor(resp.ErrorCode), resp)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// retryPayment re-initiates the STK push for an existing order
func (h *Handler) retryPayment(c *gin.Context) {
	orderID, err := strconv.ParseInt(c.Param("orderId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order ID"})
		return
	}

	resp := h.checkoutService.RetryPayment(c.Request.Context(), orderID)
	if !resp.Success {
		c.JSON(httpStatusFor(resp.ErrorCode), resp)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// transactionStatus is the polling endpoint for payment status
func (h *Handler) transactionStatus(c *gin.Context) {
	transactionID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid transaction ID"})
		return
	}

	resp := h.checkoutService.GetTransactionStatus(c.Request.Context(), transactionID)
	if !resp.Success {
		c.JSON(http.StatusNotFound, resp)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// recentOrder is the duplicate-submission guard endpoint. Identity comes from
// the session layer (out of scope here); the resolved user id arrives in the
// X-User-ID header and guests simply get a negative answer.
func (h *Handler) recentOrder(c *gin.Context) {
	listingID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid listing ID"})
		return
	}

	userID, err := strconv.ParseInt(c.GetHeader("X-User-ID"), 10, 64)
	if err != nil {
		c.JSON(http.StatusOK, service.RecentOrderResponse{RecentOrder: false})
		return
	}

	resp, err := h.checkoutService.CheckForRecentOrder(c.Request.Context(), userID, listingID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check recent orders"})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// mpesaCallback receives the provider's asynchronous payment result. The
// provider expects a zero ResultCode acknowledgement; errors are logged and
// acknowledged anyway so the provider does not retry a poison payload forever.
func (h *Handler) mpesaCallback(c *gin.Context) {
	var payload mpesa.CallbackPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ResultCode": 1, "ResultDesc": "Invalid payload"})
		return
	}

	if err := h.paymentService.ApplyCallback(c.Request.Context(), &payload); err != nil {
		util.GetLogger().Error("Failed to apply mpesa callback", zap.Error(err))
	}

	c.JSON(http.StatusOK, gin.H{"ResultCode": 0, "ResultDesc": "Accepted"})
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
