package consolidation

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/courierpay/payment-engine/internal/domain"
	"github.com/courierpay/payment-engine/internal/domain/ports"
	"github.com/courierpay/payment-engine/internal/services/split"
	"github.com/courierpay/payment-engine/pkg/observability"
)

// TaskTracker is the slice of the task registry the batch flow needs
type TaskTracker interface {
	MarkProcessing(id string) error
	UpdateProgress(id string, percentage int) error
	MarkCompleted(id string) error
	MarkFailed(id string, message string, errs []string) error
}

// Config holds the consolidation knobs resolved at startup
type Config struct {
	Split                  domain.SplitConfig
	Currency               string
	DefaultExpirationHours int
}

// ConsolidatedInvoiceResult is the outcome of one consolidation call
type ConsolidatedInvoiceResult struct {
	Payment *domain.Payment
	Splits  []domain.RecipientSplit
	Report  *TransparencyReport
}

// Service implements the consolidated payment flows: single invoice per
// delivery group, and the batch run over all clients with unpaid deliveries.
type Service struct {
	db         ports.DBPort
	payments   ports.PaymentRepository
	deliveries ports.DeliveryRepository
	accounts   ports.AccountRepository
	gateway    ports.InvoiceGateway
	tracker    TaskTracker
	logger     ports.Logger
	cfg        Config
	now        func() time.Time
}

// NewService creates a new consolidation service
func NewService(
	db ports.DBPort,
	payments ports.PaymentRepository,
	deliveries ports.DeliveryRepository,
	accounts ports.AccountRepository,
	gateway ports.InvoiceGateway,
	tracker TaskTracker,
	logger ports.Logger,
	cfg Config,
) *Service {
	if cfg.Currency == "" {
		cfg.Currency = "BRL"
	}
	if cfg.DefaultExpirationHours <= 0 {
		cfg.DefaultExpirationHours = 24
	}
	return &Service{
		db:         db,
		payments:   payments,
		deliveries: deliveries,
		accounts:   accounts,
		gateway:    gateway,
		tracker:    tracker,
		logger:     logger,
		cfg:        cfg,
		now:        time.Now,
	}
}

// CreateConsolidatedInvoice groups the given deliveries into a single hosted
// invoice for the payer. Errors propagate to the caller; nothing is persisted
// when the gateway call fails.
func (s *Service) CreateConsolidatedInvoice(ctx context.Context, deliveryIDs []string, payerEmail string, expirationHours int) (*ConsolidatedInvoiceResult, error) {
	payer, err := s.accounts.GetByEmail(ctx, nil, payerEmail)
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodePayerNotFound,
			fmt.Sprintf("payer %s not found", payerEmail), err)
	}

	deliveries, missing, err := s.deliveries.GetByIDs(ctx, nil, deliveryIDs)
	if err != nil {
		return nil, fmt.Errorf("load deliveries: %w", err)
	}
	if len(missing) > 0 {
		return nil, domain.NewDomainError(domain.ErrorCodeDeliveryNotFound,
			fmt.Sprintf("deliveries not found: %s", strings.Join(missing, ", "))).
			WithDetail("missing_ids", missing)
	}

	// One invoice carries one split table, so a mixed group cannot be
	// expressed.
	for _, d := range deliveries[1:] {
		if d.GroupKey() != deliveries[0].GroupKey() {
			return nil, domain.NewDomainError(domain.ErrorCodeValidationFailed,
				"deliveries span multiple courier/manager groups")
		}
	}

	return s.createForGroup(ctx, payer, deliveries, expirationHours)
}

// createForGroup runs the compute-then-call-then-persist pipeline for one
// already-grouped set of deliveries.
func (s *Service) createForGroup(ctx context.Context, payer *domain.Account, deliveries []*domain.Delivery, expirationHours int) (*ConsolidatedInvoiceResult, error) {
	splits, err := split.Calculate(deliveries, s.cfg.Split)
	if err != nil {
		return nil, err
	}

	var totalCents int64
	for _, d := range deliveries {
		totalCents += d.ShippingFeeCents()
	}

	if expirationHours <= 0 {
		expirationHours = s.cfg.DefaultExpirationHours
	}

	req := &ports.CreateInvoiceRequest{
		PayerEmail:      payer.Email,
		PayerName:       payer.Name,
		Amount:          decimal.New(totalCents, -2),
		Currency:        s.cfg.Currency,
		Description:     fmt.Sprintf("Consolidação de %d entrega(s)", len(deliveries)),
		ExpirationHours: expirationHours,
		Splits:          splits,
	}

	invoice, err := s.gateway.CreateInvoice(ctx, req)
	if err != nil {
		s.logger.Error("gateway invoice creation failed",
			ports.String("payer_id", payer.ID),
			ports.Int("delivery_count", len(deliveries)),
			ports.Err(err))
		if domain.IsGatewayError(err) {
			return nil, err
		}
		return nil, domain.WrapError(domain.ErrorCodeGatewayError, "create invoice", err)
	}

	expiresAt := invoice.DueDate
	if expiresAt.IsZero() {
		expiresAt = s.now().Add(time.Duration(expirationHours) * time.Hour)
	}

	payment := &domain.Payment{
		ID:            uuid.New().String(),
		ExternalID:    invoice.ExternalID,
		Amount:        decimal.New(totalCents, -2),
		Currency:      s.cfg.Currency,
		Status:        domain.PaymentStatusPending,
		PixPayload:    invoice.PixPayload,
		PixURL:        invoice.PixURL,
		HostedPageURL: invoice.HostedPageURL,
		ExpiresAt:     expiresAt,
		PayerID:       payer.ID,
		CreatedAt:     s.now(),
		UpdatedAt:     s.now(),
	}
	for _, d := range deliveries {
		payment.DeliveryIDs = append(payment.DeliveryIDs, d.ID)
	}

	// The payment row and its delivery associations commit together or
	// not at all; the conflicting-active-payment case rolls back here.
	err = s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if err := s.payments.Create(ctx, tx, payment); err != nil {
			return fmt.Errorf("create payment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("consolidated invoice created",
		ports.String("payment_id", payment.ID),
		ports.String("external_id", payment.ExternalID),
		ports.Int("delivery_count", len(deliveries)),
		ports.Int64("amount_cents", totalCents))

	return &ConsolidatedInvoiceResult{
		Payment: payment,
		Splits:  splits,
		Report:  buildReport(deliveries, splits, totalCents),
	}, nil
}

// clientGroup is one (client, courier, manager) unit of batch work
type clientGroup struct {
	clientID   string
	groupKey   string
	deliveries []*domain.Delivery
}

// ProcessAllClientsConsolidatedPayments runs the batch consolidation for
// every client with unpaid COMPLETED deliveries. One group failing is
// recorded and the loop continues; payments created by earlier groups stay
// committed either way.
func (s *Service) ProcessAllClientsConsolidatedPayments(ctx context.Context, taskID string) {
	if err := s.tracker.MarkProcessing(taskID); err != nil {
		s.logger.Warn("batch task not started",
			ports.String("task_id", taskID),
			ports.Err(err))
		return
	}

	byClient, err := s.deliveries.ListUnpaidCompleted(ctx, nil, s.now())
	if err != nil {
		s.logger.Error("loading unpaid deliveries failed",
			ports.String("task_id", taskID),
			ports.Err(err))
		_ = s.tracker.MarkFailed(taskID, "Falha ao carregar entregas pendentes", []string{err.Error()})
		return
	}

	groups := buildGroups(byClient)
	if len(groups) == 0 {
		s.logger.Info("no eligible delivery groups", ports.String("task_id", taskID))
		_ = s.tracker.MarkCompleted(taskID)
		return
	}

	var errs []string
	for i, g := range groups {
		if err := s.processGroup(ctx, g); err != nil {
			observability.RecordConsolidationGroup("failed")
			errs = append(errs, fmt.Sprintf("cliente %s (grupo %s): %v", g.clientID, g.groupKey, err))
			s.logger.Warn("group consolidation failed",
				ports.String("task_id", taskID),
				ports.String("client_id", g.clientID),
				ports.Err(err))
		} else {
			observability.RecordConsolidationGroup("ok")
		}
		_ = s.tracker.UpdateProgress(taskID, (i+1)*100/len(groups))
	}

	if len(errs) > 0 {
		_ = s.tracker.MarkFailed(taskID,
			fmt.Sprintf("%d de %d grupos falharam", len(errs), len(groups)), errs)
		return
	}
	_ = s.tracker.MarkCompleted(taskID)
}

func (s *Service) processGroup(ctx context.Context, g clientGroup) error {
	payer, err := s.accounts.GetByID(ctx, nil, g.clientID)
	if err != nil {
		return domain.WrapError(domain.ErrorCodePayerNotFound,
			fmt.Sprintf("client %s not found", g.clientID), err)
	}
	_, err = s.createForGroup(ctx, payer, g.deliveries, s.cfg.DefaultExpirationHours)
	return err
}

// buildGroups flattens the per-client delivery map into deterministic
// (client, courier/manager) units, ordered so reruns walk the same sequence.
func buildGroups(byClient map[string][]*domain.Delivery) []clientGroup {
	clientIDs := make([]string, 0, len(byClient))
	for id := range byClient {
		clientIDs = append(clientIDs, id)
	}
	sort.Strings(clientIDs)

	var groups []clientGroup
	for _, clientID := range clientIDs {
		byKey := make(map[string][]*domain.Delivery)
		for _, d := range byClient[clientID] {
			byKey[d.GroupKey()] = append(byKey[d.GroupKey()], d)
		}

		keys := make([]string, 0, len(byKey))
		for k := range byKey {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			groups = append(groups, clientGroup{
				clientID:   clientID,
				groupKey:   k,
				deliveries: byKey[k],
			})
		}
	}
	return groups
}
