package poller

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"checkout-service/internal/models"
	"checkout-service/internal/service"
	"checkout-service/internal/util"
)

// State is a phase of the client-side payment flow.
type State string

const (
	StateIdle            State = "idle"
	StateCreatingOrder   State = "creating_order"
	StateSendingSTK      State = "sending_stk"
	StateAwaitingPayment State = "awaiting_payment"
	StateSuccess         State = "success"
	StateFailed          State = "failed"
)

// FallbackInstructions tells the buyer how to pay manually once the
// automated retry budget is exhausted.
type FallbackInstructions struct {
	PayBillNumber    string
	AccountReference string
	Amount           int64
}

func (f *FallbackInstructions) String() string {
	if f.Amount <= 0 {
		return fmt.Sprintf(
			"Pay manually via M-Pesa: go to Lipa na M-Pesa > Pay Bill, enter business number %s, account number %s and the order total as the amount.",
			f.PayBillNumber, f.AccountReference)
	}
	return fmt.Sprintf(
		"Pay manually via M-Pesa: go to Lipa na M-Pesa > Pay Bill, enter business number %s, account number %s, amount %d.",
		f.PayBillNumber, f.AccountReference, f.Amount)
}

// Outcome is the terminal result of one checkout flow run.
type Outcome struct {
	State         State
	OrderID       int64
	TransactionID int64
	FailReason    string
	RetryCount    int
	Fallback      *FallbackInstructions
}

// Flow drives one checkout end to end: create the order, wait for the STK
// push to resolve, offer bounded retries, and fall back to manual-payment
// instructions when the budget runs out.
//
//	idle -> creating_order -> sending_stk -> awaiting_payment -> success
//	                                 ^                             |
//	                                 +--------- user retry <- failed
type Flow struct {
	client     CheckoutClient
	poller     *Poller
	retryLimit int
	shortCode  string
	logger     *zap.Logger

	// ConfirmRetry decides whether a failed payment should be retried.
	// Nil means never retry.
	ConfirmRetry func(failReason string, retryCount int) bool

	// OnStateChange observes transitions; nil is fine.
	OnStateChange func(State)
}

// NewFlow creates a new checkout flow driver
func NewFlow(client CheckoutClient, poller *Poller, retryLimit int, merchantShortCode string) *Flow {
	return &Flow{
		client:     client,
		poller:     poller,
		retryLimit: retryLimit,
		shortCode:  merchantShortCode,
		logger:     util.GetLogger(),
	}
}

func (f *Flow) transition(state State) {
	f.logger.Debug("Checkout flow state", zap.String("state", string(state)))
	if f.OnStateChange != nil {
		f.OnStateChange(state)
	}
}

// Run executes one checkout. A nil error with a failed Outcome is normal
// business failure; errors are reserved for cancellation and transport
// problems before an order exists.
func (f *Flow) Run(ctx context.Context, req *service.CheckoutRequest, amount int64) (*Outcome, error) {
	f.transition(StateCreatingOrder)

	resp, err := f.client.CreateCheckout(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("checkout request failed: %w", err)
	}

	if !resp.Success {
		// A gateway initiation failure still created the order, so the
		// normal retry path applies. Anything else is terminal.
		if resp.ErrorCode == models.ErrCodeGatewayInitiation && resp.OrderID != 0 {
			return f.awaitWithRetries(ctx, resp, 0, amount, resp.Error)
		}
		f.transition(StateFailed)
		return &Outcome{State: StateFailed, FailReason: resp.Error}, nil
	}

	f.transition(StateSendingSTK)
	return f.awaitWithRetries(ctx, resp, 0, amount, "")
}

func (f *Flow) awaitWithRetries(ctx context.Context, resp *service.CheckoutResponse, retryCount int, amount int64, pendingFailure string) (*Outcome, error) {
	for {
		var failReason string

		if pendingFailure != "" {
			// The STK push never went out; skip straight to the retry
			// decision for this attempt.
			failReason = pendingFailure
			pendingFailure = ""
		} else {
			f.transition(StateAwaitingPayment)

			status, err := f.poller.Wait(ctx, resp.TransactionID)
			if err != nil {
				return nil, err
			}

			if status.Status == models.StatusCompleted {
				f.transition(StateSuccess)
				return &Outcome{
					State:         StateSuccess,
					OrderID:       resp.OrderID,
					TransactionID: resp.TransactionID,
					RetryCount:    status.RetryCount,
				}, nil
			}

			failReason = status.FailReason
			retryCount = status.RetryCount
		}

		f.transition(StateFailed)

		// Budget exhausted: present manual payment instructions instead of
		// another automated attempt.
		if retryCount >= f.retryLimit {
			return &Outcome{
				State:         StateFailed,
				OrderID:       resp.OrderID,
				TransactionID: resp.TransactionID,
				FailReason:    failReason,
				RetryCount:    retryCount,
				Fallback: &FallbackInstructions{
					PayBillNumber:    f.shortCode,
					AccountReference: fmt.Sprintf("%d", resp.OrderID),
					Amount:           amount,
				},
			}, nil
		}

		if f.ConfirmRetry == nil || !f.ConfirmRetry(failReason, retryCount) {
			return &Outcome{
				State:         StateFailed,
				OrderID:       resp.OrderID,
				TransactionID: resp.TransactionID,
				FailReason:    failReason,
				RetryCount:    retryCount,
			}, nil
		}

		retryResp, err := f.client.RetryPayment(ctx, resp.OrderID)
		if err != nil {
			return nil, fmt.Errorf("retry request failed: %w", err)
		}
		if !retryResp.Success {
			retryCount++
			pendingFailure = retryResp.Error
			continue
		}

		resp = retryResp
		f.transition(StateSendingSTK)
	}
}
