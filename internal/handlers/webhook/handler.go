package webhook

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/courierpay/payment-engine/internal/domain"
	"github.com/courierpay/payment-engine/internal/domain/ports"
	"github.com/courierpay/payment-engine/internal/services/reconciliation"
	"github.com/courierpay/payment-engine/pkg/observability"
)

// maxPayloadBytes caps inbound webhook bodies
const maxPayloadBytes = 1 << 20

// Handler receives provider payment notifications and feeds them to the
// reconciliation service
type Handler struct {
	reconciliation *reconciliation.Service
	logger         ports.Logger
}

// NewHandler creates a new webhook HTTP handler
func NewHandler(reconciliationService *reconciliation.Service, logger ports.Logger) *Handler {
	return &Handler{
		reconciliation: reconciliationService,
		logger:         logger,
	}
}

// EventResponse is the JSON acknowledgement for a processed event
type EventResponse struct {
	Success   bool   `json:"success"`
	Applied   bool   `json:"applied"`
	Message   string `json:"message,omitempty"`
	PaymentID string `json:"paymentId,omitempty"`
	OldStatus string `json:"oldStatus,omitempty"`
	NewStatus string `json:"newStatus,omitempty"`
}

// HandleOrderEvent handles POST /webhooks/order.
// The provider retries on anything but 2xx, so only signature failures and
// malformed payloads are rejected; business no-ops are acknowledged.
func (h *Handler) HandleOrderEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.respondError(w, http.StatusMethodNotAllowed, "only POST method is allowed")
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
	if err != nil {
		h.logger.Error("failed to read webhook body", ports.Err(err))
		h.respondError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	signature := r.Header.Get("X-Webhook-Signature")

	result, err := h.reconciliation.HandleEvent(r.Context(), payload, signature)
	if err != nil {
		switch {
		case domain.IsSecurityError(err):
			observability.RecordWebhookEvent("unknown", "rejected_signature")
			h.logger.Warn("webhook signature rejected",
				ports.String("remote_addr", r.RemoteAddr))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "INVALID_SIGNATURE"})
		case domain.IsValidationError(err):
			observability.RecordWebhookEvent("unknown", "malformed")
			h.respondError(w, http.StatusBadRequest, "malformed webhook payload")
		default:
			observability.RecordWebhookEvent("unknown", "error")
			h.logger.Error("webhook processing failed", ports.Err(err))
			h.respondError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	outcome := "ignored"
	if result.Applied {
		outcome = "applied"
	}
	observability.RecordWebhookEvent(result.EventType, outcome)

	h.logger.Info("webhook event processed",
		ports.String("event_type", result.EventType),
		ports.String("payment_id", result.PaymentID),
		ports.Bool("applied", result.Applied))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(EventResponse{
		Success:   result.Success,
		Applied:   result.Applied,
		Message:   result.Message,
		PaymentID: result.PaymentID,
		OldStatus: string(result.OldStatus),
		NewStatus: string(result.NewStatus),
	})
}

func (h *Handler) respondError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	resp := map[string]interface{}{
		"success": false,
		"error":   message,
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("Failed to encode error response", ports.Err(err))
	}
}
