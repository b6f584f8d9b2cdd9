package mpesa

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"checkout-service/internal/util"
)

// Config holds Daraja API credentials and endpoints.
type Config struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	ShortCode      string
	Passkey        string
	CallbackURL    string
	Timeout        time.Duration
}

// Client initiates STK push payments and queries their asynchronous status
// against the Daraja API. The wire protocol is the provider's; the service's
// obligation is to send a whole-unit integer amount with the order id as the
// account reference, and to persist the opaque CheckoutRequestID for later
// callback correlation.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewClient creates a new Daraja API client
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		logger:     util.GetLogger(),
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

// accessToken returns a cached OAuth token, refreshing it when expired.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	url := c.cfg.BaseURL + "/oauth/v1/generate?grant_type=client_credentials"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.cfg.ConsumerKey, c.cfg.ConsumerSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token request failed: status %d", resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}

	expiresIn, err := strconv.Atoi(tr.ExpiresIn)
	if err != nil || expiresIn <= 0 {
		expiresIn = 3600
	}

	c.token = tr.AccessToken
	// Refresh one minute early to avoid racing the provider-side expiry,
	// but never so early that a short-lived token is discarded immediately.
	lifetime := expiresIn
	if lifetime > 120 {
		lifetime -= 60
	}
	c.tokenExpiry = time.Now().Add(time.Duration(lifetime) * time.Second)

	return c.token, nil
}

func (c *Client) password(timestamp string) string {
	return base64.StdEncoding.EncodeToString(
		[]byte(c.cfg.ShortCode + c.cfg.Passkey + timestamp))
}

type stkPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type stkPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
	ErrorMessage        string `json:"errorMessage"`
}

// STKPush initiates a push payment prompt on the buyer's phone. amount must
// already be rounded to whole currency units; the provider rejects fractions.
// Returns the opaque CheckoutRequestID used to correlate the asynchronous
// result back to the transaction.
func (c *Client) STKPush(ctx context.Context, phoneNumber string, amount int64, accountReference string) (string, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return "", err
	}

	timestamp := time.Now().Format("20060102150405")
	body := stkPushRequest{
		BusinessShortCode: c.cfg.ShortCode,
		Password:          c.password(timestamp),
		Timestamp:         timestamp,
		TransactionType:   "CustomerPayBillOnline",
		Amount:            amount,
		PartyA:            phoneNumber,
		PartyB:            c.cfg.ShortCode,
		PhoneNumber:       phoneNumber,
		CallBackURL:       c.cfg.CallbackURL,
		AccountReference:  accountReference,
		TransactionDesc:   "Ticket purchase " + accountReference,
	}

	var out stkPushResponse
	if err := c.postJSON(ctx, "/mpesa/stkpush/v1/processrequest", token, body, &out); err != nil {
		return "", err
	}

	if out.ErrorMessage != "" {
		return "", fmt.Errorf("stk push rejected: %s", out.ErrorMessage)
	}
	if out.ResponseCode != "0" {
		return "", fmt.Errorf("stk push rejected: code=%s desc=%s", out.ResponseCode, out.ResponseDescription)
	}
	if out.CheckoutRequestID == "" {
		return "", fmt.Errorf("stk push accepted but no checkout request id returned")
	}

	c.logger.Info("STK push initiated",
		zap.String("checkout_request_id", out.CheckoutRequestID),
		zap.String("account_reference", accountReference),
		zap.Int64("amount", amount))

	return out.CheckoutRequestID, nil
}

type stkQueryRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
}

// QueryResult is the provider's answer for an earlier STK push.
type QueryResult struct {
	ResultCode string `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

// Settled reports whether the provider reached a terminal answer.
func (q *QueryResult) Settled() bool {
	return q.ResultCode != ""
}

// Succeeded reports whether the payment completed.
func (q *QueryResult) Succeeded() bool {
	return q.ResultCode == "0"
}

// QueryStatus asks the provider for the current state of a push payment.
// Used by the reconciliation sweep for transactions whose callback never
// arrived.
func (c *Client) QueryStatus(ctx context.Context, checkoutRequestID string) (*QueryResult, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	timestamp := time.Now().Format("20060102150405")
	body := stkQueryRequest{
		BusinessShortCode: c.cfg.ShortCode,
		Password:          c.password(timestamp),
		Timestamp:         timestamp,
		CheckoutRequestID: checkoutRequestID,
	}

	var out QueryResult
	if err := c.postJSON(ctx, "/mpesa/stkpushquery/v1/query", token, body, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

func (c *Client) postJSON(ctx context.Context, path, token string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}

	return nil
}

// CallbackPayload is the asynchronous STK push result POSTed by the provider.
type CallbackPayload struct {
	Body struct {
		StkCallback struct {
			MerchantRequestID string `json:"MerchantRequestID"`
			CheckoutRequestID string `json:"CheckoutRequestID"`
			ResultCode        int    `json:"ResultCode"`
			ResultDesc        string `json:"ResultDesc"`
		} `json:"stkCallback"`
	} `json:"Body"`
}
