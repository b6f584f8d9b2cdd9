package poller

import (
	"context"
	"testing"
	"time"

	"checkout-service/internal/models"
	"checkout-service/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFlow(client *fakeClient, retryLimit int) *Flow {
	return NewFlow(client, NewPoller(client, time.Millisecond), retryLimit, "174379")
}

func okCheckout() *service.CheckoutResponse {
	return &service.CheckoutResponse{Success: true, OrderID: 11, TransactionID: 21}
}

func TestFlowSuccess(t *testing.T) {
	client := &fakeClient{
		createResp: okCheckout(),
		statuses:   []*service.TransactionStatusResponse{pending(), completed()},
	}
	flow := newTestFlow(client, 2)

	var states []State
	flow.OnStateChange = func(s State) { states = append(states, s) }

	outcome, err := flow.Run(context.Background(), &service.CheckoutRequest{}, 3195)
	require.NoError(t, err)

	assert.Equal(t, StateSuccess, outcome.State)
	assert.EqualValues(t, 11, outcome.OrderID)
	assert.EqualValues(t, 21, outcome.TransactionID)
	assert.Nil(t, outcome.Fallback)
	assert.Equal(t,
		[]State{StateCreatingOrder, StateSendingSTK, StateAwaitingPayment, StateSuccess},
		states)
}

func TestFlowTerminalBusinessFailure(t *testing.T) {
	client := &fakeClient{
		createResp: &service.CheckoutResponse{
			Success:   false,
			ErrorCode: models.ErrCodeInsufficientInventory,
			Error:     `only 1 "VIP" tickets remaining, requested 2`,
		},
	}
	flow := newTestFlow(client, 2)

	outcome, err := flow.Run(context.Background(), &service.CheckoutRequest{}, 0)
	require.NoError(t, err)

	assert.Equal(t, StateFailed, outcome.State)
	assert.Contains(t, outcome.FailReason, "VIP")
	assert.Zero(t, client.statusCalls)
}

func TestFlowRetryAfterUserCancel(t *testing.T) {
	client := &fakeClient{
		createResp: okCheckout(),
		retryResp:  okCheckout(),
		statuses: []*service.TransactionStatusResponse{
			failed("You cancelled the M-Pesa request on your phone. Tap retry to send it again.", 0),
			completed(),
		},
	}
	flow := newTestFlow(client, 2)

	var prompts []string
	flow.ConfirmRetry = func(reason string, retryCount int) bool {
		prompts = append(prompts, reason)
		return true
	}

	outcome, err := flow.Run(context.Background(), &service.CheckoutRequest{}, 3195)
	require.NoError(t, err)

	assert.Equal(t, StateSuccess, outcome.State)
	assert.Equal(t, 1, client.retryCalls)
	// The user saw the translated reason, not a provider code.
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "cancelled the M-Pesa request")
}

func TestFlowDeclinedRetryIsTerminal(t *testing.T) {
	client := &fakeClient{
		createResp: okCheckout(),
		statuses:   []*service.TransactionStatusResponse{failed("timed out", 0)},
	}
	flow := newTestFlow(client, 2)
	flow.ConfirmRetry = func(string, int) bool { return false }

	outcome, err := flow.Run(context.Background(), &service.CheckoutRequest{}, 0)
	require.NoError(t, err)

	assert.Equal(t, StateFailed, outcome.State)
	assert.Equal(t, "timed out", outcome.FailReason)
	assert.Nil(t, outcome.Fallback)
	assert.Zero(t, client.retryCalls)
}

func TestFlowNilConfirmNeverRetries(t *testing.T) {
	client := &fakeClient{
		createResp: okCheckout(),
		statuses:   []*service.TransactionStatusResponse{failed("timed out", 0)},
	}
	flow := newTestFlow(client, 2)

	outcome, err := flow.Run(context.Background(), &service.CheckoutRequest{}, 0)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, outcome.State)
	assert.Zero(t, client.retryCalls)
}

func TestFlowExhaustedBudgetFallsBack(t *testing.T) {
	client := &fakeClient{
		createResp: okCheckout(),
		statuses:   []*service.TransactionStatusResponse{failed("timed out", 2)},
	}
	flow := newTestFlow(client, 2)
	flow.ConfirmRetry = func(string, int) bool {
		t.Fatal("retry offered after budget exhaustion")
		return false
	}

	outcome, err := flow.Run(context.Background(), &service.CheckoutRequest{}, 3195)
	require.NoError(t, err)

	assert.Equal(t, StateFailed, outcome.State)
	require.NotNil(t, outcome.Fallback)
	assert.Equal(t, "174379", outcome.Fallback.PayBillNumber)
	assert.Equal(t, "11", outcome.Fallback.AccountReference)
	assert.EqualValues(t, 3195, outcome.Fallback.Amount)
	assert.Contains(t, outcome.Fallback.String(), "Pay Bill")
	assert.Zero(t, client.retryCalls)
}

func TestFlowGatewayInitiationFailureOffersRetry(t *testing.T) {
	client := &fakeClient{
		createResp: &service.CheckoutResponse{
			Success:       false,
			ErrorCode:     models.ErrCodeGatewayInitiation,
			OrderID:       11,
			TransactionID: 21,
			Error:         "could not send the payment request to your phone, please retry",
		},
		retryResp: okCheckout(),
		statuses:  []*service.TransactionStatusResponse{completed()},
	}
	flow := newTestFlow(client, 2)
	flow.ConfirmRetry = func(string, int) bool { return true }

	outcome, err := flow.Run(context.Background(), &service.CheckoutRequest{}, 3195)
	require.NoError(t, err)

	assert.Equal(t, StateSuccess, outcome.State)
	assert.Equal(t, 1, client.retryCalls)
}

func TestFlowCancelledMidPoll(t *testing.T) {
	client := &fakeClient{
		createResp: okCheckout(),
		statuses:   []*service.TransactionStatusResponse{pending()},
	}
	flow := newTestFlow(client, 2)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := flow.Run(ctx, &service.CheckoutRequest{}, 0)
	assert.ErrorIs(t, err, context.Canceled)
}
