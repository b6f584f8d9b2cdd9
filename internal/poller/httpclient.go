package poller

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"checkout-service/internal/service"
)

// HTTPClient talks to the checkout service's HTTP API.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPClient creates a new API client
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// CreateCheckout submits a checkout attempt.
func (c *HTTPClient) CreateCheckout(ctx context.Context, req *service.CheckoutRequest) (*service.CheckoutResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal checkout request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/v1/checkout", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	var out service.CheckoutResponse
	if err := c.do(httpReq, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RetryPayment re-initiates the payment for an existing order.
func (c *HTTPClient) RetryPayment(ctx context.Context, orderID int64) (*service.CheckoutResponse, error) {
	url := fmt.Sprintf("%s/api/v1/checkout/%d/retry", c.baseURL, orderID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return nil, err
	}

	var out service.CheckoutResponse
	if err := c.do(httpReq, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TransactionStatus fetches the current payment status.
func (c *HTTPClient) TransactionStatus(ctx context.Context, transactionID int64) (*service.TransactionStatusResponse, error) {
	url := fmt.Sprintf("%s/api/v1/transactions/%d/status", c.baseURL, transactionID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	var out service.TransactionStatusResponse
	if err := c.do(httpReq, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// do executes the request and decodes the body. Business failures come back
// as structured responses on non-2xx statuses, so those are decoded, not
// treated as transport errors.
func (c *HTTPClient) do(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
