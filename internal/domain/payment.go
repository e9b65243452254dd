package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus represents the lifecycle state of a consolidated payment
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "PENDING"
	PaymentStatusProcessing PaymentStatus = "PROCESSING"
	PaymentStatusCompleted  PaymentStatus = "COMPLETED"
	PaymentStatusFailed     PaymentStatus = "FAILED"
	PaymentStatusCancelled  PaymentStatus = "CANCELLED"
	PaymentStatusExpired    PaymentStatus = "EXPIRED"
	PaymentStatusRefunded   PaymentStatus = "REFUNDED"
)

// IsTerminal returns true if no further transition is allowed from this status.
// COMPLETED is not terminal: it can still move to REFUNDED.
func (s PaymentStatus) IsTerminal() bool {
	switch s {
	case PaymentStatusFailed, PaymentStatusCancelled, PaymentStatusExpired, PaymentStatusRefunded:
		return true
	}
	return false
}

// IsSettled returns true once the payment no longer blocks its deliveries
// from being consolidated again (the payment either succeeded or is dead).
func (s PaymentStatus) IsSettled() bool {
	return s == PaymentStatusFailed || s == PaymentStatusExpired ||
		s == PaymentStatusCancelled
}

// CanTransitionTo reports whether the state machine allows moving to next.
// Transitions only move forward; a same-status "transition" is the
// idempotent no-op case and is handled by the caller.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	switch s {
	case PaymentStatusPending:
		return next == PaymentStatusProcessing ||
			next == PaymentStatusCompleted ||
			next == PaymentStatusFailed ||
			next == PaymentStatusCancelled ||
			next == PaymentStatusExpired
	case PaymentStatusProcessing:
		return next == PaymentStatusCompleted ||
			next == PaymentStatusFailed ||
			next == PaymentStatusCancelled
	case PaymentStatusCompleted:
		return next == PaymentStatusRefunded
	}
	return false
}

// Payment represents one consolidated gateway invoice covering a set of
// deliveries. Created once by the consolidation flow and mutated only by
// reconciliation afterwards. Rows are never deleted.
type Payment struct {
	ID            string
	ExternalID    string // provider-assigned invoice id
	Amount        decimal.Decimal
	Currency      string
	Status        PaymentStatus
	PixPayload    string // copy-paste payment payload
	PixURL        string // QR code image URL
	HostedPageURL string
	ExpiresAt     time.Time
	PaidAt        *time.Time
	PayerID       string
	DeliveryIDs   []string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// IsExpired reports whether a PENDING payment is past its due date. Expiry
// is evaluated lazily at eligibility checks; no timer flips the row.
func (p *Payment) IsExpired(now time.Time) bool {
	return p.Status == PaymentStatusPending && !p.ExpiresAt.IsZero() && now.After(p.ExpiresAt)
}

// BlocksReconsolidation reports whether this payment still claims its
// deliveries. Deliveries under a live payment must not be picked up by
// another consolidation run.
func (p *Payment) BlocksReconsolidation(now time.Time) bool {
	if p.IsExpired(now) {
		return false
	}
	return !p.Status.IsSettled()
}
