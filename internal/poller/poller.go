package poller

import (
	"context"
	"time"

	"go.uber.org/zap"

	"checkout-service/internal/models"
	"checkout-service/internal/service"
	"checkout-service/internal/util"
)

// CheckoutClient is the surface of the checkout API the client-side flow
// drives. *HTTPClient satisfies it; tests use fakes.
type CheckoutClient interface {
	CreateCheckout(ctx context.Context, req *service.CheckoutRequest) (*service.CheckoutResponse, error)
	RetryPayment(ctx context.Context, orderID int64) (*service.CheckoutResponse, error)
	TransactionStatus(ctx context.Context, transactionID int64) (*service.TransactionStatusResponse, error)
}

// DefaultPollInterval is how often the poller samples transaction status.
const DefaultPollInterval = 3 * time.Second

// Poller samples transaction status on a fixed interval until a terminal
// status arrives or the context is cancelled. Requests are issued one at a
// time: the loop waits for each response before the next tick fires.
type Poller struct {
	client   CheckoutClient
	interval time.Duration
	logger   *zap.Logger
}

// NewPoller creates a new status poller
func NewPoller(client CheckoutClient, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{
		client:   client,
		interval: interval,
		logger:   util.GetLogger(),
	}
}

// Wait blocks until the transaction reaches a terminal status. It stops on
// the first terminal response, so a stale result racing a newer one is never
// acted upon, and it returns promptly when ctx is cancelled without leaving
// orphaned timers.
func (p *Poller) Wait(ctx context.Context, transactionID int64) (*service.TransactionStatusResponse, error) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			status, err := p.client.TransactionStatus(ctx, transactionID)
			if err != nil {
				// Transient polling errors just mean another sample later.
				p.logger.Warn("Status poll failed",
					zap.Int64("transaction_id", transactionID),
					zap.Error(err))
				continue
			}
			if !status.Success {
				continue
			}
			if status.Status == models.StatusCompleted || status.Status == models.StatusFailed {
				return status, nil
			}
		}
	}
}
