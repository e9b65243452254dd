package ports

import (
	"context"
	"time"

	"github.com/courierpay/payment-engine/internal/domain"
)

// PaymentRepository persists consolidated payments and their delivery
// associations
type PaymentRepository interface {
	// Create inserts the payment and its delivery associations. The
	// active-payment uniqueness constraint is enforced here: if any
	// delivery already has a non-terminal payment the insert fails with
	// CONFLICT_ACTIVE_PAYMENT and nothing is written.
	Create(ctx context.Context, tx DBTX, payment *domain.Payment) error

	GetByID(ctx context.Context, tx DBTX, id string) (*domain.Payment, error)

	// GetByExternalID resolves the provider's resource id to a local
	// payment; returns PAYMENT_NOT_FOUND if unknown.
	GetByExternalID(ctx context.Context, tx DBTX, externalID string) (*domain.Payment, error)

	// UpdateStatus applies a reconciled status. paidAt is written only
	// when non-nil and only if the column is still null, so a duplicate
	// "paid" event never overwrites the original timestamp.
	UpdateStatus(ctx context.Context, tx DBTX, id string, status domain.PaymentStatus, paidAt *time.Time) error
}

// DeliveryRepository reads delivery snapshots for the engine
type DeliveryRepository interface {
	// GetByIDs loads fully-materialized delivery snapshots (recipient
	// account ids resolved). Missing ids are reported, not skipped.
	GetByIDs(ctx context.Context, tx DBTX, ids []string) ([]*domain.Delivery, []string, error)

	// ListUnpaidCompleted returns, per client, the COMPLETED deliveries
	// with no payment or whose payment no longer blocks reconsolidation
	// (FAILED/EXPIRED/CANCELLED, or PENDING past expiry as of now).
	ListUnpaidCompleted(ctx context.Context, tx DBTX, now time.Time) (map[string][]*domain.Delivery, error)
}

// AccountRepository reads payer and recipient accounts
type AccountRepository interface {
	GetByEmail(ctx context.Context, tx DBTX, email string) (*domain.Account, error)
	GetByID(ctx context.Context, tx DBTX, id string) (*domain.Account, error)
}
