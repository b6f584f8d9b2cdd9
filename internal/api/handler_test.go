package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"checkout-service/internal/models"
	"checkout-service/internal/service"
)

func TestHTTPStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, httpStatusFor(models.ErrCodeMissingBuyerInfo))
	assert.Equal(t, http.StatusTooManyRequests, httpStatusFor(models.ErrCodeRateLimited))
	assert.Equal(t, http.StatusNotFound, httpStatusFor(models.ErrCodeListingNotFound))
	assert.Equal(t, http.StatusConflict, httpStatusFor(models.ErrCodeTicketTypeUnavailable))
	assert.Equal(t, http.StatusConflict, httpStatusFor(models.ErrCodeInsufficientInventory))
	assert.Equal(t, http.StatusBadGateway, httpStatusFor(models.ErrCodeGatewayInitiation))
	assert.Equal(t, http.StatusInternalServerError, httpStatusFor(models.ErrCodeUnknown))
	assert.Equal(t, http.StatusInternalServerError, httpStatusFor(""))
}

type stubPaymentRepo struct{}

func (stubPaymentRepo) GetTransactionByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*models.Transaction, error) {
	return nil, models.ErrTransactionNotFound
}

func (stubPaymentRepo) MarkTransactionResult(ctx context.Context, transactionID int64, status, failReason string) (bool, error) {
	return false, nil
}

func (stubPaymentRepo) UpdateOrderStatus(ctx context.Context, orderID int64, status string) error {
	return nil
}

func (stubPaymentRepo) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	return false, nil
}

func (stubPaymentRepo) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	return nil
}

type stubPublisher struct{}

func (stubPublisher) PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error {
	return nil
}

func (stubPublisher) PublishPaymentInitiated(ctx context.Context, event *models.PaymentInitiatedEvent) error {
	return nil
}

func (stubPublisher) PublishPaymentCompleted(ctx context.Context, event *models.PaymentCompletedEvent) error {
	return nil
}

func (stubPublisher) PublishPaymentFailed(ctx context.Context, event *models.PaymentFailedEvent) error {
	return nil
}

// The provider retries callbacks that are not acknowledged with a zero
// ResultCode. Even a callback that cannot be applied must be acked, or a
// poison payload gets redelivered forever.
func TestMpesaCallbackAlwaysAcked(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewHandler(nil, service.NewPaymentService(stubPaymentRepo{}, stubPublisher{}))

	router := gin.New()
	router.POST("/api/v1/payments/mpesa/callback", h.mpesaCallback)

	body := `{"Body":{"stkCallback":{"CheckoutRequestID":"ws_CO_unknown","ResultCode":0,"ResultDesc":"ok"}}}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/mpesa/callback", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var ack map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ack))
	assert.EqualValues(t, 0, ack["ResultCode"])
}
