package reconciliation

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/courierpay/payment-engine/internal/domain"
	"github.com/courierpay/payment-engine/internal/domain/ports"
)

// Result reports what a webhook event did to local state
type Result struct {
	Success   bool
	Applied   bool
	Message   string
	PaymentID string
	EventType string
	OldStatus domain.PaymentStatus
	NewStatus domain.PaymentStatus
}

// statusVocabulary maps the provider's resource status strings onto the
// internal payment state machine. Unrecognized entries fall back to PENDING
// and are logged, never rejected.
var statusVocabulary = map[string]domain.PaymentStatus{
	"pending":         domain.PaymentStatusPending,
	"created":         domain.PaymentStatusPending,
	"waiting_payment": domain.PaymentStatusPending,
	"processing":      domain.PaymentStatusProcessing,
	"in_analysis":     domain.PaymentStatusProcessing,
	"paid":            domain.PaymentStatusCompleted,
	"approved":        domain.PaymentStatusCompleted,
	"confirmed":       domain.PaymentStatusCompleted,
	"failed":          domain.PaymentStatusFailed,
	"declined":        domain.PaymentStatusFailed,
	"refused":         domain.PaymentStatusFailed,
	"canceled":        domain.PaymentStatusCancelled,
	"cancelled":       domain.PaymentStatusCancelled,
	"voided":          domain.PaymentStatusCancelled,
	"expired":         domain.PaymentStatusExpired,
	"overdue":         domain.PaymentStatusExpired,
	"refunded":        domain.PaymentStatusRefunded,
	"charged_back":    domain.PaymentStatusRefunded,
}

// eventVocabulary resolves the status from the event name when the payload
// carries no resource status.
var eventVocabulary = map[string]domain.PaymentStatus{
	"order.paid":     domain.PaymentStatusCompleted,
	"order.failed":   domain.PaymentStatusFailed,
	"order.canceled": domain.PaymentStatusCancelled,
	"order.expired":  domain.PaymentStatusExpired,
	"order.refunded": domain.PaymentStatusRefunded,
}

// providerEvent is the wire shape of an inbound webhook notification.
// Providers disagree on the field carrying the event name; both are read.
type providerEvent struct {
	Type  string `json:"type"`
	Event string `json:"event"`
	ID    string `json:"id"`
	Data  struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"data"`
}

func (e *providerEvent) eventType() string {
	if e.Type != "" {
		return e.Type
	}
	return e.Event
}

func (e *providerEvent) resourceID() string {
	if e.Data.ID != "" {
		return e.Data.ID
	}
	return e.ID
}

// Service reconciles provider webhook notifications onto local payments
type Service struct {
	payments         ports.PaymentRepository
	gateway          ports.InvoiceGateway
	logger           ports.Logger
	now              func() time.Time
	requireSignature bool
}

// NewService creates a new reconciliation service. Unsigned notifications
// are rejected unless AllowUnsignedEvents is called.
func NewService(payments ports.PaymentRepository, gateway ports.InvoiceGateway, logger ports.Logger) *Service {
	return &Service{
		payments:         payments,
		gateway:          gateway,
		logger:           logger,
		now:              time.Now,
		requireSignature: true,
	}
}

// AllowUnsignedEvents accepts notifications without a signature header, for
// providers that do not sign. A header that is present is still validated.
func (s *Service) AllowUnsignedEvents() *Service {
	s.requireSignature = false
	return s
}

// HandleEvent validates, parses and applies one provider notification.
//
// Recoverable conditions (unknown payment, unrecognized vocabulary, stale
// transition) are acknowledged without mutation so the provider does not
// retry. Only a bad signature or a structurally invalid payload produces an
// error.
func (s *Service) HandleEvent(ctx context.Context, rawPayload []byte, signatureHeader string) (*Result, error) {
	if signatureHeader != "" || s.requireSignature {
		if !s.gateway.ValidateSignature(rawPayload, signatureHeader) {
			s.logger.Warn("webhook signature rejected",
				ports.Int("payload_bytes", len(rawPayload)))
			return nil, domain.ErrInvalidSignature
		}
	}

	var event providerEvent
	if err := json.Unmarshal(rawPayload, &event); err != nil {
		return nil, domain.WrapError(domain.ErrorCodePayloadMalformed, "unmarshal webhook payload", err)
	}
	if event.resourceID() == "" {
		return nil, domain.NewDomainError(domain.ErrorCodePayloadMalformed, "webhook payload has no resource id")
	}

	newStatus := s.mapStatus(event.eventType(), event.Data.Status)

	payment, err := s.payments.GetByExternalID(ctx, nil, event.resourceID())
	if err != nil {
		if domain.IsNotFoundError(err) {
			// Providers send test and unrelated events; acknowledge so
			// they do not retry.
			s.logger.Info("webhook for unknown payment ignored",
				ports.String("external_id", event.resourceID()),
				ports.String("event_type", event.eventType()))
			return &Result{Success: true, Message: "payment não encontrado"}, nil
		}
		return nil, err
	}

	result := &Result{
		Success:   true,
		PaymentID: payment.ID,
		EventType: event.eventType(),
		OldStatus: payment.Status,
		NewStatus: newStatus,
	}

	// Duplicate delivery of the same event: no write, reported like the
	// first application.
	if newStatus == payment.Status {
		result.Message = "status já aplicado"
		return result, nil
	}

	if !payment.Status.CanTransitionTo(newStatus) {
		s.logger.Warn("webhook transition not allowed, ignoring",
			ports.String("payment_id", payment.ID),
			ports.String("current", string(payment.Status)),
			ports.String("incoming", string(newStatus)))
		result.NewStatus = payment.Status
		result.Message = "transição ignorada"
		return result, nil
	}

	var paidAt *time.Time
	if newStatus == domain.PaymentStatusCompleted {
		t := s.now()
		paidAt = &t
	}

	if err := s.payments.UpdateStatus(ctx, nil, payment.ID, newStatus, paidAt); err != nil {
		return nil, err
	}

	result.Applied = true
	s.logger.Info("payment reconciled",
		ports.String("payment_id", payment.ID),
		ports.String("old_status", string(result.OldStatus)),
		ports.String("new_status", string(newStatus)))

	return result, nil
}

// mapStatus resolves the internal status from the provider vocabulary,
// preferring the resource status over the event name.
func (s *Service) mapStatus(eventType, resourceStatus string) domain.PaymentStatus {
	if status, ok := statusVocabulary[strings.ToLower(resourceStatus)]; ok {
		return status
	}
	if status, ok := eventVocabulary[strings.ToLower(eventType)]; ok {
		return status
	}
	s.logger.Warn("unrecognized provider vocabulary, defaulting to PENDING",
		ports.String("event_type", eventType),
		ports.String("resource_status", resourceStatus))
	return domain.PaymentStatusPending
}
