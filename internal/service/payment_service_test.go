package service

import (
	"context"
	"database/sql"
	"testing"

	"checkout-service/internal/models"
	"checkout-service/internal/mpesa"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePaymentRepo struct {
	txn       *models.Transaction
	processed map[string]bool

	txnStatus   string
	txnReason   string
	orderStatus string
	markCalls   int
}

func newFakePaymentRepo(txn *models.Transaction) *fakePaymentRepo {
	return &fakePaymentRepo{txn: txn, processed: map[string]bool{}}
}

func (f *fakePaymentRepo) GetTransactionByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*models.Transaction, error) {
	if f.txn == nil || f.txn.MpesaCheckoutRequestID.String != checkoutRequestID {
		return nil, models.ErrTransactionNotFound
	}
	return f.txn, nil
}

// Conditional like the store: only a pending row takes a result.
func (f *fakePaymentRepo) MarkTransactionResult(ctx context.Context, transactionID int64, status, failReason string) (bool, error) {
	if f.txn.Status != models.StatusPending {
		return false, nil
	}
	f.markCalls++
	f.txn.Status = status
	f.txnStatus = status
	f.txnReason = failReason
	return true, nil
}

func (f *fakePaymentRepo) UpdateOrderStatus(ctx context.Context, orderID int64, status string) error {
	if f.orderStatus == models.StatusCompleted {
		return nil
	}
	f.orderStatus = status
	return nil
}

func (f *fakePaymentRepo) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	return f.processed[eventID], nil
}

func (f *fakePaymentRepo) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	f.processed[eventID] = true
	return nil
}

func pendingTransaction() *models.Transaction {
	return &models.Transaction{
		ID:                     21,
		OrderID:                11,
		Amount:                 3195,
		Status:                 models.StatusPending,
		MpesaCheckoutRequestID: sql.NullString{String: "ws_CO_123", Valid: true},
	}
}

func successCallback() *mpesa.CallbackPayload {
	var p mpesa.CallbackPayload
	p.Body.StkCallback.CheckoutRequestID = "ws_CO_123"
	p.Body.StkCallback.ResultCode = 0
	p.Body.StkCallback.ResultDesc = "The service request is processed successfully."
	return &p
}

func TestApplyCallbackSuccess(t *testing.T) {
	repo := newFakePaymentRepo(pendingTransaction())
	pub := &fakePublisher{}
	ps := NewPaymentService(repo, pub)

	require.NoError(t, ps.ApplyCallback(context.Background(), successCallback()))

	assert.Equal(t, models.StatusCompleted, repo.txnStatus)
	assert.Equal(t, models.StatusCompleted, repo.orderStatus)
	assert.Equal(t, 1, pub.paymentCompleted)
}

func TestApplyCallbackFailure(t *testing.T) {
	repo := newFakePaymentRepo(pendingTransaction())
	pub := &fakePublisher{}
	ps := NewPaymentService(repo, pub)

	var p mpesa.CallbackPayload
	p.Body.StkCallback.CheckoutRequestID = "ws_CO_123"
	p.Body.StkCallback.ResultCode = 1032
	p.Body.StkCallback.ResultDesc = "Request cancelled by user"

	require.NoError(t, ps.ApplyCallback(context.Background(), &p))

	assert.Equal(t, models.StatusFailed, repo.txnStatus)
	assert.Equal(t, models.StatusFailed, repo.orderStatus)
	assert.Contains(t, repo.txnReason, "1032")
	assert.Equal(t, 1, pub.paymentFailed)
}

func TestApplyCallbackDuplicateIsDropped(t *testing.T) {
	repo := newFakePaymentRepo(pendingTransaction())
	pub := &fakePublisher{}
	ps := NewPaymentService(repo, pub)

	require.NoError(t, ps.ApplyCallback(context.Background(), successCallback()))
	// The first application moved the transaction; a replayed callback with
	// the same request id must not apply again.
	require.NoError(t, ps.ApplyCallback(context.Background(), successCallback()))

	assert.Equal(t, 1, repo.markCalls)
	assert.Equal(t, 1, pub.paymentCompleted)
}

func TestApplyCallbackIgnoresTerminalTransaction(t *testing.T) {
	txn := pendingTransaction()
	txn.Status = models.StatusCompleted
	repo := newFakePaymentRepo(txn)
	pub := &fakePublisher{}
	ps := NewPaymentService(repo, pub)

	var p mpesa.CallbackPayload
	p.Body.StkCallback.CheckoutRequestID = "ws_CO_123"
	p.Body.StkCallback.ResultCode = 1037
	p.Body.StkCallback.ResultDesc = "DS timeout"

	require.NoError(t, ps.ApplyCallback(context.Background(), &p))

	assert.Zero(t, repo.markCalls)
	assert.Zero(t, pub.paymentFailed)
}

func TestApplyCallbackMissingRequestID(t *testing.T) {
	repo := newFakePaymentRepo(pendingTransaction())
	ps := NewPaymentService(repo, &fakePublisher{})

	var p mpesa.CallbackPayload
	assert.Error(t, ps.ApplyCallback(context.Background(), &p))
}

func TestApplyQueryResultUnsettledIsNoop(t *testing.T) {
	repo := newFakePaymentRepo(pendingTransaction())
	ps := NewPaymentService(repo, &fakePublisher{})

	require.NoError(t, ps.ApplyQueryResult(context.Background(), repo.txn, &mpesa.QueryResult{}))
	assert.Zero(t, repo.markCalls)
}

func TestApplyQueryResultFailure(t *testing.T) {
	repo := newFakePaymentRepo(pendingTransaction())
	pub := &fakePublisher{}
	ps := NewPaymentService(repo, pub)

	result := &mpesa.QueryResult{ResultCode: "1037", ResultDesc: "DS timeout user cannot be reached"}
	require.NoError(t, ps.ApplyQueryResult(context.Background(), repo.txn, result))

	assert.Equal(t, models.StatusFailed, repo.txnStatus)
	assert.Contains(t, repo.txnReason, "1037")
	assert.Equal(t, 1, pub.paymentFailed)
}

// The sweep loads a pending snapshot; the callback completes the payment
// before the expiry runs. The stale expiry must lose the race: the
// transaction and order stay completed and no failure event goes out.
func TestExpireDoesNotOverwriteCompletedPayment(t *testing.T) {
	repo := newFakePaymentRepo(pendingTransaction())
	pub := &fakePublisher{}
	ps := NewPaymentService(repo, pub)

	stale := *repo.txn

	require.NoError(t, ps.ApplyCallback(context.Background(), successCallback()))
	require.Equal(t, models.StatusCompleted, repo.txn.Status)

	require.NoError(t, ps.ExpireTransaction(context.Background(), &stale))

	assert.Equal(t, models.StatusCompleted, repo.txn.Status)
	assert.Equal(t, models.StatusCompleted, repo.orderStatus)
	assert.Equal(t, 1, repo.markCalls)
	assert.Zero(t, pub.paymentFailed)
}

func TestExpireTransaction(t *testing.T) {
	repo := newFakePaymentRepo(pendingTransaction())
	pub := &fakePublisher{}
	ps := NewPaymentService(repo, pub)

	require.NoError(t, ps.ExpireTransaction(context.Background(), repo.txn))

	assert.Equal(t, models.StatusFailed, repo.txnStatus)
	assert.Equal(t, "payment request expired", repo.txnReason)
	assert.Equal(t, models.StatusFailed, repo.orderStatus)
}
