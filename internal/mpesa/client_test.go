package mpesa

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, stkHandler http.HandlerFunc) (*httptest.Server, *Client) {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "key", user)
		assert.Equal(t, "secret", pass)
		json.NewEncoder(w).Encode(map[string]string{
			"access_token": "token-1",
			"expires_in":   "3599",
		})
	})
	mux.HandleFunc("/mpesa/stkpush/v1/processrequest", stkHandler)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client := NewClient(Config{
		BaseURL:        srv.URL,
		ConsumerKey:    "key",
		ConsumerSecret: "secret",
		ShortCode:      "174379",
		Passkey:        "passkey",
		CallbackURL:    "https://example.com/callback",
		Timeout:        5 * time.Second,
	})
	return srv, client
}

func TestSTKPush(t *testing.T) {
	var got stkPushRequest
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(stkPushResponse{
			CheckoutRequestID: "ws_CO_191220191020363925",
			ResponseCode:      "0",
		})
	})

	id, err := client.STKPush(context.Background(), "254712345678", 3195, "11")
	require.NoError(t, err)
	assert.Equal(t, "ws_CO_191220191020363925", id)

	assert.Equal(t, "174379", got.BusinessShortCode)
	assert.Equal(t, "CustomerPayBillOnline", got.TransactionType)
	assert.EqualValues(t, 3195, got.Amount)
	assert.Equal(t, "254712345678", got.PhoneNumber)
	assert.Equal(t, "11", got.AccountReference)
	assert.NotEmpty(t, got.Password)
}

func TestSTKPushRejected(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(stkPushResponse{
			ResponseCode:        "1",
			ResponseDescription: "Invalid PhoneNumber",
		})
	})

	_, err := client.STKPush(context.Background(), "07123", 100, "11")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid PhoneNumber")
}

func TestSTKPushTokenCached(t *testing.T) {
	tokenCalls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls++
		json.NewEncoder(w).Encode(map[string]string{
			"access_token": "token-1",
			"expires_in":   "3599",
		})
	})
	mux.HandleFunc("/mpesa/stkpush/v1/processrequest", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(stkPushResponse{CheckoutRequestID: "ws_CO_1", ResponseCode: "0"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL, ConsumerKey: "k", ConsumerSecret: "s", ShortCode: "174379", Passkey: "p"})

	for i := 0; i < 3; i++ {
		_, err := client.STKPush(context.Background(), "254712345678", 100, "1")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, tokenCalls)
}

// A short-lived token still gets cached for its full lifetime instead of
// being refreshed on every request.
func TestSTKPushShortLivedTokenStillCached(t *testing.T) {
	tokenCalls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls++
		json.NewEncoder(w).Encode(map[string]string{
			"access_token": "token-1",
			"expires_in":   "30",
		})
	})
	mux.HandleFunc("/mpesa/stkpush/v1/processrequest", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(stkPushResponse{CheckoutRequestID: "ws_CO_1", ResponseCode: "0"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL, ConsumerKey: "k", ConsumerSecret: "s", ShortCode: "174379", Passkey: "p"})

	for i := 0; i < 3; i++ {
		_, err := client.STKPush(context.Background(), "254712345678", 100, "1")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, tokenCalls)
}

func TestQueryResultSettled(t *testing.T) {
	assert.False(t, (&QueryResult{}).Settled())
	assert.True(t, (&QueryResult{ResultCode: "0"}).Settled())
	assert.True(t, (&QueryResult{ResultCode: "0"}).Succeeded())
	assert.True(t, (&QueryResult{ResultCode: "1032"}).Settled())
	assert.False(t, (&QueryResult{ResultCode: "1032"}).Succeeded())
}

func TestCallbackPayloadDecoding(t *testing.T) {
	raw := `{
	  "Body": {
	    "stkCallback": {
	      "MerchantRequestID": "29115-34620561-1",
	      "CheckoutRequestID": "ws_CO_191220191020363925",
	      "ResultCode": 1032,
	      "ResultDesc": "Request cancelled by user"
	    }
	  }
	}`

	var p CallbackPayload
	require.NoError(t, json.Unmarshal([]byte(raw), &p))
	assert.Equal(t, "ws_CO_191220191020363925", p.Body.StkCallback.CheckoutRequestID)
	assert.Equal(t, 1032, p.Body.StkCallback.ResultCode)
}
