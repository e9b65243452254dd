package consolidation

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/courierpay/payment-engine/internal/domain"
	"github.com/courierpay/payment-engine/internal/domain/ports"
	"github.com/courierpay/payment-engine/internal/tasks"
)

type mockDB struct{}

func (m *mockDB) GetDB() *pgxpool.Pool { return nil }

func (m *mockDB) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	return fn(ctx, nil)
}

func (m *mockDB) WithReadOnlyTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	return fn(ctx, nil)
}

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

type mockDeliveryRepo struct {
	mock.Mock
}

func (m *mockDeliveryRepo) GetByIDs(ctx context.Context, tx ports.DBTX, ids []string) ([]*domain.Delivery, []string, error) {
	args := m.Called(ctx, tx, ids)
	var deliveries []*domain.Delivery
	if args.Get(0) != nil {
		deliveries = args.Get(0).([]*domain.Delivery)
	}
	var missing []string
	if args.Get(1) != nil {
		missing = args.Get(1).([]string)
	}
	return deliveries, missing, args.Error(2)
}

func (m *mockDeliveryRepo) ListUnpaidCompleted(ctx context.Context, tx ports.DBTX, now time.Time) (map[string][]*domain.Delivery, error) {
	args := m.Called(ctx, tx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string][]*domain.Delivery), args.Error(1)
}

type mockAccountRepo struct {
	mock.Mock
}

func (m *mockAccountRepo) GetByEmail(ctx context.Context, tx ports.DBTX, email string) (*domain.Account, error) {
	args := m.Called(ctx, tx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Account), args.Error(1)
}

func (m *mockAccountRepo) GetByID(ctx context.Context, tx ports.DBTX, id string) (*domain.Account, error) {
	args := m.Called(ctx, tx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Account), args.Error(1)
}

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) CreateInvoice(ctx context.Context, req *ports.CreateInvoiceRequest) (*ports.InvoiceResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ports.InvoiceResult), args.Error(1)
}

func (m *mockGateway) ValidateSignature(payload []byte, signatureHeader string) bool {
	args := m.Called(payload, signatureHeader)
	return args.Bool(0)
}

func (m *mockGateway) GetAccountVerificationStatus(ctx context.Context, accountID string) (*ports.AccountVerification, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ports.AccountVerification), args.Error(1)
}

type nopLogger struct{}

func (nopLogger) Info(string, ...ports.Field)  {}
func (nopLogger) Error(string, ...ports.Field) {}
func (nopLogger) Warn(string, ...ports.Field)  {}
func (nopLogger) Debug(string, ...ports.Field) {}

func strPtr(s string) *string { return &s }

func makeDelivery(id, clientID, courierID string, managerID string, fee string) *domain.Delivery {
	d := &domain.Delivery{
		ID:               id,
		ClientID:         clientID,
		CourierID:        courierID,
		CourierAccountID: "wallet_" + courierID,
		ShippingFee:      decimal.RequireFromString(fee),
		Status:           domain.DeliveryStatusCompleted,
	}
	if managerID != "" {
		d.ManagerID = strPtr(managerID)
		d.ManagerAccountID = strPtr("wallet_" + managerID)
	}
	return d
}

func defaultConfig() Config {
	return Config{
		Split: domain.SplitConfig{
			CourierBasisPoints: 8700,
			ManagerBasisPoints: 500,
		},
		Currency:               "BRL",
		DefaultExpirationHours: 24,
	}
}

func pendingInvoice(externalID string) *ports.InvoiceResult {
	return &ports.InvoiceResult{
		ExternalID:    externalID,
		Status:        "PENDING",
		PixPayload:    "00020126pix",
		PixURL:        "https://pay.example/qr.png",
		HostedPageURL: "https://pay.example/" + externalID,
		DueDate:       time.Now().Add(24 * time.Hour),
	}
}

func TestCreateConsolidatedInvoice_Success(t *testing.T) {
	payments := new(mockPaymentRepo)
	deliveries := new(mockDeliveryRepo)
	accounts := new(mockAccountRepo)
	gw := new(mockGateway)
	tracker := tasks.NewTracker()

	payer := &domain.Account{ID: "client-1", Name: "Cliente", Email: "client@example.com", Role: domain.RoleClient}
	ds := []*domain.Delivery{
		makeDelivery("d1", "client-1", "courier-1", "manager-1", "60.00"),
		makeDelivery("d2", "client-1", "courier-1", "manager-1", "40.00"),
	}

	accounts.On("GetByEmail", mock.Anything, mock.Anything, "client@example.com").Return(payer, nil)
	deliveries.On("GetByIDs", mock.Anything, mock.Anything, []string{"d1", "d2"}).Return(ds, nil, nil)
	gw.On("CreateInvoice", mock.Anything, mock.Anything).Return(pendingInvoice("inv_1"), nil)

	var created *domain.Payment
	payments.On("Create", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			created = args.Get(2).(*domain.Payment)
		}).Return(nil)

	svc := NewService(&mockDB{}, payments, deliveries, accounts, gw, tracker, nopLogger{}, defaultConfig())

	result, err := svc.CreateConsolidatedInvoice(context.Background(), []string{"d1", "d2"}, "client@example.com", 0)

	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Equal(t, "inv_1", created.ExternalID)
	assert.Equal(t, domain.PaymentStatusPending, created.Status)
	assert.Equal(t, []string{"d1", "d2"}, created.DeliveryIDs)
	assert.True(t, created.Amount.Equal(decimal.RequireFromString("100.00")))

	// 87% to the courier, 5% to the manager, remainder implicit
	require.Len(t, result.Splits, 2)
	assert.Equal(t, int64(8700), result.Splits[0].AmountCents)
	assert.Equal(t, int64(500), result.Splits[1].AmountCents)

	// transparency report carries the implicit platform line
	require.NotNil(t, result.Report)
	last := result.Report.Summary[len(result.Report.Summary)-1]
	assert.Equal(t, domain.RecipientPlatform, last.Kind)
	assert.True(t, last.Implicit)
	assert.Equal(t, int64(800), last.AmountCents)
}

func TestCreateConsolidatedInvoice_GatewayFailureDoesNotPersist(t *testing.T) {
	payments := new(mockPaymentRepo)
	deliveries := new(mockDeliveryRepo)
	accounts := new(mockAccountRepo)
	gw := new(mockGateway)

	payer := &domain.Account{ID: "client-1", Email: "client@example.com"}
	ds := []*domain.Delivery{makeDelivery("d1", "client-1", "courier-1", "", "50.00")}

	accounts.On("GetByEmail", mock.Anything, mock.Anything, "client@example.com").Return(payer, nil)
	deliveries.On("GetByIDs", mock.Anything, mock.Anything, []string{"d1"}).Return(ds, nil, nil)
	gw.On("CreateInvoice", mock.Anything, mock.Anything).
		Return(nil, domain.NewDomainError(domain.ErrorCodeGatewayError, "provider unavailable"))

	svc := NewService(&mockDB{}, payments, deliveries, accounts, gw, tasks.NewTracker(), nopLogger{}, defaultConfig())

	_, err := svc.CreateConsolidatedInvoice(context.Background(), []string{"d1"}, "client@example.com", 0)

	require.Error(t, err)
	assert.True(t, domain.IsGatewayError(err))
	payments.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateConsolidatedInvoice_MissingDeliveries(t *testing.T) {
	payments := new(mockPaymentRepo)
	deliveries := new(mockDeliveryRepo)
	accounts := new(mockAccountRepo)
	gw := new(mockGateway)

	payer := &domain.Account{ID: "client-1", Email: "client@example.com"}
	ds := []*domain.Delivery{makeDelivery("d1", "client-1", "courier-1", "", "50.00")}

	accounts.On("GetByEmail", mock.Anything, mock.Anything, "client@example.com").Return(payer, nil)
	deliveries.On("GetByIDs", mock.Anything, mock.Anything, []string{"d1", "ghost"}).Return(ds, []string{"ghost"}, nil)

	svc := NewService(&mockDB{}, payments, deliveries, accounts, gw, tasks.NewTracker(), nopLogger{}, defaultConfig())

	_, err := svc.CreateConsolidatedInvoice(context.Background(), []string{"d1", "ghost"}, "client@example.com", 0)

	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeDeliveryNotFound))
	gw.AssertNotCalled(t, "CreateInvoice", mock.Anything, mock.Anything)
}

func TestCreateConsolidatedInvoice_RejectsMixedGroups(t *testing.T) {
	payments := new(mockPaymentRepo)
	deliveries := new(mockDeliveryRepo)
	accounts := new(mockAccountRepo)
	gw := new(mockGateway)

	payer := &domain.Account{ID: "client-1", Email: "client@example.com"}
	ds := []*domain.Delivery{
		makeDelivery("d1", "client-1", "courier-1", "", "50.00"),
		makeDelivery("d2", "client-1", "courier-2", "", "50.00"),
	}

	accounts.On("GetByEmail", mock.Anything, mock.Anything, "client@example.com").Return(payer, nil)
	deliveries.On("GetByIDs", mock.Anything, mock.Anything, []string{"d1", "d2"}).Return(ds, nil, nil)

	svc := NewService(&mockDB{}, payments, deliveries, accounts, gw, tasks.NewTracker(), nopLogger{}, defaultConfig())

	_, err := svc.CreateConsolidatedInvoice(context.Background(), []string{"d1", "d2"}, "client@example.com", 0)

	require.Error(t, err)
	assert.True(t, domain.IsValidationError(err))
	gw.AssertNotCalled(t, "CreateInvoice", mock.Anything, mock.Anything)
}

func TestCreateConsolidatedInvoice_PayerNotFound(t *testing.T) {
	payments := new(mockPaymentRepo)
	deliveries := new(mockDeliveryRepo)
	accounts := new(mockAccountRepo)
	gw := new(mockGateway)

	accounts.On("GetByEmail", mock.Anything, mock.Anything, "ghost@example.com").
		Return(nil, domain.NewDomainError(domain.ErrorCodeAccountNotFound, "account not found"))

	svc := NewService(&mockDB{}, payments, deliveries, accounts, gw, tasks.NewTracker(), nopLogger{}, defaultConfig())

	_, err := svc.CreateConsolidatedInvoice(context.Background(), []string{"d1"}, "ghost@example.com", 0)

	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodePayerNotFound))
}

func TestCreateConsolidatedInvoice_ActivePaymentConflict(t *testing.T) {
	payments := new(mockPaymentRepo)
	deliveries := new(mockDeliveryRepo)
	accounts := new(mockAccountRepo)
	gw := new(mockGateway)

	payer := &domain.Account{ID: "client-1", Email: "client@example.com"}
	ds := []*domain.Delivery{makeDelivery("d1", "client-1", "courier-1", "", "50.00")}

	accounts.On("GetByEmail", mock.Anything, mock.Anything, "client@example.com").Return(payer, nil)
	deliveries.On("GetByIDs", mock.Anything, mock.Anything, []string{"d1"}).Return(ds, nil, nil)
	gw.On("CreateInvoice", mock.Anything, mock.Anything).Return(pendingInvoice("inv_dup"), nil)
	payments.On("Create", mock.Anything, mock.Anything, mock.Anything).
		Return(domain.NewDomainError(domain.ErrorCodeActivePaymentConflict, "delivery d1 already has an active payment"))

	svc := NewService(&mockDB{}, payments, deliveries, accounts, gw, tasks.NewTracker(), nopLogger{}, defaultConfig())

	_, err := svc.CreateConsolidatedInvoice(context.Background(), []string{"d1"}, "client@example.com", 0)

	require.Error(t, err)
	assert.True(t, domain.IsConflictError(err))
}

func TestProcessAllClients_PartialFailure(t *testing.T) {
	payments := new(mockPaymentRepo)
	deliveries := new(mockDeliveryRepo)
	accounts := new(mockAccountRepo)
	gw := new(mockGateway)
	tracker := tasks.NewTracker()

	// Three groups across two clients; the zero-fee delivery fails its group
	byClient := map[string][]*domain.Delivery{
		"client-a": {
			makeDelivery("a1", "client-a", "courier-1", "", "30.00"),
			makeDelivery("a2", "client-a", "courier-2", "", "0.00"),
		},
		"client-b": {
			makeDelivery("b1", "client-b", "courier-1", "", "20.00"),
		},
	}

	deliveries.On("ListUnpaidCompleted", mock.Anything, mock.Anything, mock.Anything).Return(byClient, nil)
	accounts.On("GetByID", mock.Anything, mock.Anything, "client-a").
		Return(&domain.Account{ID: "client-a", Email: "a@example.com"}, nil)
	accounts.On("GetByID", mock.Anything, mock.Anything, "client-b").
		Return(&domain.Account{ID: "client-b", Email: "b@example.com"}, nil)
	gw.On("CreateInvoice", mock.Anything, mock.Anything).Return(pendingInvoice("inv_batch"), nil)
	payments.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	svc := NewService(&mockDB{}, payments, deliveries, accounts, gw, tracker, nopLogger{}, defaultConfig())

	taskID := tracker.CreateTask()
	svc.ProcessAllClientsConsolidatedPayments(context.Background(), taskID)

	task, err := tracker.GetStatus(taskID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusFailed, task.Status)
	assert.Equal(t, "1 de 3 grupos falharam", task.Message)
	require.Len(t, task.Errors, 1)
	assert.Contains(t, task.Errors[0], "client-a")
	assert.Equal(t, 100, task.ProgressPercentage)

	// The two healthy groups were persisted despite the failure
	payments.AssertNumberOfCalls(t, "Create", 2)
}

func TestProcessAllClients_AllSucceed(t *testing.T) {
	payments := new(mockPaymentRepo)
	deliveries := new(mockDeliveryRepo)
	accounts := new(mockAccountRepo)
	gw := new(mockGateway)
	tracker := tasks.NewTracker()

	byClient := map[string][]*domain.Delivery{
		"client-a": {makeDelivery("a1", "client-a", "courier-1", "manager-1", "80.00")},
	}

	deliveries.On("ListUnpaidCompleted", mock.Anything, mock.Anything, mock.Anything).Return(byClient, nil)
	accounts.On("GetByID", mock.Anything, mock.Anything, "client-a").
		Return(&domain.Account{ID: "client-a", Email: "a@example.com"}, nil)
	gw.On("CreateInvoice", mock.Anything, mock.Anything).Return(pendingInvoice("inv_ok"), nil)
	payments.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	svc := NewService(&mockDB{}, payments, deliveries, accounts, gw, tracker, nopLogger{}, defaultConfig())

	taskID := tracker.CreateTask()
	svc.ProcessAllClientsConsolidatedPayments(context.Background(), taskID)

	task, err := tracker.GetStatus(taskID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusCompleted, task.Status)
	assert.Equal(t, 100, task.ProgressPercentage)
	assert.Empty(t, task.Errors)
}

func TestProcessAllClients_NoEligibleGroups(t *testing.T) {
	payments := new(mockPaymentRepo)
	deliveries := new(mockDeliveryRepo)
	accounts := new(mockAccountRepo)
	gw := new(mockGateway)
	tracker := tasks.NewTracker()

	deliveries.On("ListUnpaidCompleted", mock.Anything, mock.Anything, mock.Anything).
		Return(map[string][]*domain.Delivery{}, nil)

	svc := NewService(&mockDB{}, payments, deliveries, accounts, gw, tracker, nopLogger{}, defaultConfig())

	taskID := tracker.CreateTask()
	svc.ProcessAllClientsConsolidatedPayments(context.Background(), taskID)

	task, err := tracker.GetStatus(taskID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusCompleted, task.Status)
	gw.AssertNotCalled(t, "CreateInvoice", mock.Anything, mock.Anything)
}
