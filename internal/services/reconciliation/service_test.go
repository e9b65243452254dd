package reconciliation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/courierpay/payment-engine/internal/domain"
	"github.com/courierpay/payment-engine/internal/domain/ports"
)

type mockPaymentRepo struct {
	mock.Mock
}

func (m *mockPaymentRepo) Create(ctx context.Context, tx ports.DBTX, payment *domain.Payment) error {
	args := m.Called(ctx, tx, payment)
	return args.Error(0)
}

func (m *mockPaymentRepo) GetByID(ctx context.Context, tx ports.DBTX, id string) (*domain.Payment, error) {
	args := m.Called(ctx, tx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Payment), args.Error(1)
}

func (m *mockPaymentRepo) GetByExternalID(ctx context.Context, tx ports.DBTX, externalID string) (*domain.Payment, error) {
	args := m.Called(ctx, tx, externalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Payment), args.Error(1)
}

func (m *mockPaymentRepo) UpdateStatus(ctx context.Context, tx ports.DBTX, id string, status domain.PaymentStatus, paidAt *time.Time) error {
	args := m.Called(ctx, tx, id, status, paidAt)
	return args.Error(0)
}

// signatureGateway accepts exactly one signature value
type signatureGateway struct {
	valid string
}

func (g *signatureGateway) CreateInvoice(ctx context.Context, req *ports.CreateInvoiceRequest) (*ports.InvoiceResult, error) {
	return nil, nil
}

func (g *signatureGateway) ValidateSignature(payload []byte, signatureHeader string) bool {
	return signatureHeader != "" && signatureHeader == g.valid
}

func (g *signatureGateway) GetAccountVerificationStatus(ctx context.Context, accountID string) (*ports.AccountVerification, error) {
	return nil, nil
}

type nopLogger struct{}

func (nopLogger) Info(string, ...ports.Field)  {}
func (nopLogger) Error(string, ...ports.Field) {}
func (nopLogger) Warn(string, ...ports.Field)  {}
func (nopLogger) Debug(string, ...ports.Field) {}

func newTestService(payments *mockPaymentRepo) *Service {
	return NewService(payments, &signatureGateway{valid: "good-sig"}, nopLogger{})
}

func pendingPayment(id, externalID string) *domain.Payment {
	return &domain.Payment{
		ID:         id,
		ExternalID: externalID,
		Status:     domain.PaymentStatusPending,
	}
}

func TestHandleEvent_RejectsBadSignature(t *testing.T) {
	svc := newTestService(new(mockPaymentRepo))

	_, err := svc.HandleEvent(context.Background(), []byte(`{"id":"inv_1"}`), "bad-sig")
	require.Error(t, err)
	assert.True(t, domain.IsSecurityError(err))

	_, err = svc.HandleEvent(context.Background(), []byte(`{"id":"inv_1"}`), "")
	require.Error(t, err)
	assert.True(t, domain.IsSecurityError(err))
}

func TestHandleEvent_UnsignedEventWhenSignatureOptional(t *testing.T) {
	payments := new(mockPaymentRepo)
	payments.On("GetByExternalID", mock.Anything, mock.Anything, "inv_1").
		Return(pendingPayment("pay-1", "inv_1"), nil)
	payments.On("UpdateStatus", mock.Anything, mock.Anything, "pay-1", domain.PaymentStatusCompleted, mock.Anything).
		Return(nil)

	svc := newTestService(payments).AllowUnsignedEvents()

	// no signature header: accepted because the provider does not sign
	result, err := svc.HandleEvent(context.Background(),
		[]byte(`{"type":"order.paid","data":{"id":"inv_1","status":"paid"}}`), "")
	require.NoError(t, err)
	assert.True(t, result.Applied)

	// a present header is still validated
	_, err = svc.HandleEvent(context.Background(),
		[]byte(`{"type":"order.paid","data":{"id":"inv_1","status":"paid"}}`), "bad-sig")
	require.Error(t, err)
	assert.True(t, domain.IsSecurityError(err))
}

func TestHandleEvent_MalformedPayload(t *testing.T) {
	svc := newTestService(new(mockPaymentRepo))

	_, err := svc.HandleEvent(context.Background(), []byte(`{not json`), "good-sig")
	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodePayloadMalformed))

	_, err = svc.HandleEvent(context.Background(), []byte(`{"type":"order.paid"}`), "good-sig")
	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodePayloadMalformed))
}

func TestHandleEvent_UnknownPaymentIsAcknowledged(t *testing.T) {
	payments := new(mockPaymentRepo)
	payments.On("GetByExternalID", mock.Anything, mock.Anything, "inv_ghost").
		Return(nil, domain.ErrPaymentNotFound)

	svc := newTestService(payments)

	result, err := svc.HandleEvent(context.Background(),
		[]byte(`{"type":"order.paid","data":{"id":"inv_ghost","status":"paid"}}`), "good-sig")

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.False(t, result.Applied)
	assert.Equal(t, "payment não encontrado", result.Message)
	payments.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleEvent_PaidEventApplies(t *testing.T) {
	payments := new(mockPaymentRepo)
	payments.On("GetByExternalID", mock.Anything, mock.Anything, "inv_1").
		Return(pendingPayment("pay-1", "inv_1"), nil)

	var recordedPaidAt *time.Time
	payments.On("UpdateStatus", mock.Anything, mock.Anything, "pay-1", domain.PaymentStatusCompleted, mock.Anything).
		Run(func(args mock.Arguments) {
			if args.Get(4) != nil {
				recordedPaidAt = args.Get(4).(*time.Time)
			}
		}).Return(nil)

	svc := newTestService(payments)

	result, err := svc.HandleEvent(context.Background(),
		[]byte(`{"type":"order.paid","data":{"id":"inv_1","status":"paid"}}`), "good-sig")

	require.NoError(t, err)
	assert.True(t, result.Applied)
	assert.Equal(t, domain.PaymentStatusPending, result.OldStatus)
	assert.Equal(t, domain.PaymentStatusCompleted, result.NewStatus)
	require.NotNil(t, recordedPaidAt)
}

func TestHandleEvent_DuplicateEventIsIdempotent(t *testing.T) {
	paid := pendingPayment("pay-1", "inv_1")
	paid.Status = domain.PaymentStatusCompleted

	payments := new(mockPaymentRepo)
	payments.On("GetByExternalID", mock.Anything, mock.Anything, "inv_1").Return(paid, nil)

	svc := newTestService(payments)

	result, err := svc.HandleEvent(context.Background(),
		[]byte(`{"type":"order.paid","data":{"id":"inv_1","status":"paid"}}`), "good-sig")

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.False(t, result.Applied)
	assert.Equal(t, "status já aplicado", result.Message)
	payments.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleEvent_DisallowedTransitionIsIgnored(t *testing.T) {
	failed := pendingPayment("pay-1", "inv_1")
	failed.Status = domain.PaymentStatusFailed

	payments := new(mockPaymentRepo)
	payments.On("GetByExternalID", mock.Anything, mock.Anything, "inv_1").Return(failed, nil)

	svc := newTestService(payments)

	result, err := svc.HandleEvent(context.Background(),
		[]byte(`{"type":"order.paid","data":{"id":"inv_1","status":"paid"}}`), "good-sig")

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.False(t, result.Applied)
	assert.Equal(t, "transição ignorada", result.Message)
	assert.Equal(t, domain.PaymentStatusFailed, result.NewStatus)
	payments.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleEvent_RefundAfterCompletion(t *testing.T) {
	completed := pendingPayment("pay-1", "inv_1")
	completed.Status = domain.PaymentStatusCompleted

	payments := new(mockPaymentRepo)
	payments.On("GetByExternalID", mock.Anything, mock.Anything, "inv_1").Return(completed, nil)
	payments.On("UpdateStatus", mock.Anything, mock.Anything, "pay-1", domain.PaymentStatusRefunded, (*time.Time)(nil)).
		Return(nil)

	svc := newTestService(payments)

	result, err := svc.HandleEvent(context.Background(),
		[]byte(`{"type":"order.refunded","data":{"id":"inv_1","status":"refunded"}}`), "good-sig")

	require.NoError(t, err)
	assert.True(t, result.Applied)
	assert.Equal(t, domain.PaymentStatusRefunded, result.NewStatus)
}

func TestHandleEvent_EventNameFallback(t *testing.T) {
	payments := new(mockPaymentRepo)
	payments.On("GetByExternalID", mock.Anything, mock.Anything, "inv_1").
		Return(pendingPayment("pay-1", "inv_1"), nil)
	payments.On("UpdateStatus", mock.Anything, mock.Anything, "pay-1", domain.PaymentStatusExpired, (*time.Time)(nil)).
		Return(nil)

	svc := newTestService(payments)

	// no resource status; only the event name carries meaning
	result, err := svc.HandleEvent(context.Background(),
		[]byte(`{"event":"order.expired","id":"inv_1"}`), "good-sig")

	require.NoError(t, err)
	assert.True(t, result.Applied)
	assert.Equal(t, domain.PaymentStatusExpired, result.NewStatus)
}

func TestHandleEvent_UnknownVocabularyDefaultsToPending(t *testing.T) {
	payments := new(mockPaymentRepo)
	payments.On("GetByExternalID", mock.Anything, mock.Anything, "inv_1").
		Return(pendingPayment("pay-1", "inv_1"), nil)

	svc := newTestService(payments)

	result, err := svc.HandleEvent(context.Background(),
		[]byte(`{"type":"order.sparkled","data":{"id":"inv_1","status":"sparkling"}}`), "good-sig")

	require.NoError(t, err)
	// maps to PENDING, which the payment already is: acknowledged no-op
	assert.True(t, result.Success)
	assert.False(t, result.Applied)
	payments.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
