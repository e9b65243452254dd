package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/courierpay/payment-engine/internal/domain"
	"github.com/courierpay/payment-engine/internal/domain/ports"
)

const uniqueViolationCode = "23505"

// PaymentRepository implements ports.PaymentRepository using PostgreSQL
type PaymentRepository struct {
	db ports.DBPort
}

// NewPaymentRepository creates a new PostgreSQL payment repository
func NewPaymentRepository(db ports.DBPort) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) executor(tx ports.DBTX) ports.DBTX {
	if tx != nil {
		return tx
	}
	return r.db.GetDB()
}

// Create inserts the payment and claims its deliveries. Each delivery may
// carry at most one active claim; the partial unique index on
// payment_deliveries enforces this, so two concurrent consolidations of the
// same delivery cannot both commit. Expired PENDING claims are released
// first so a stale invoice never blocks reconsolidation.
func (r *PaymentRepository) Create(ctx context.Context, tx ports.DBTX, payment *domain.Payment) error {
	exec := r.executor(tx)

	_, err := exec.Exec(ctx, `
		UPDATE payment_deliveries pd
		SET active = FALSE
		FROM payments p
		WHERE pd.payment_id = p.id
		  AND pd.active
		  AND p.status = 'PENDING'
		  AND p.expires_at < NOW()
		  AND pd.delivery_id = ANY($1)`,
		payment.DeliveryIDs)
	if err != nil {
		return domain.WrapError(domain.ErrorCodeDatabaseError, "release expired claims", err)
	}

	_, err = exec.Exec(ctx, `
		INSERT INTO payments (
			id, external_id, amount, currency, status,
			pix_payload, pix_url, hosted_page_url,
			expires_at, paid_at, payer_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		payment.ID,
		payment.ExternalID,
		payment.Amount,
		payment.Currency,
		string(payment.Status),
		nullText(payment.PixPayload),
		nullText(payment.PixURL),
		nullText(payment.HostedPageURL),
		payment.ExpiresAt,
		nullTimestamp(payment.PaidAt),
		payment.PayerID,
		payment.CreatedAt,
		payment.UpdatedAt,
	)
	if err != nil {
		return domain.WrapError(domain.ErrorCodeDatabaseError, "insert payment", err)
	}

	for _, deliveryID := range payment.DeliveryIDs {
		_, err = exec.Exec(ctx, `
			INSERT INTO payment_deliveries (payment_id, delivery_id, active)
			VALUES ($1, $2, TRUE)`,
			payment.ID, deliveryID)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
				return domain.WrapError(domain.ErrorCodeActivePaymentConflict,
					fmt.Sprintf("delivery %s already has an active payment", deliveryID), err)
			}
			return domain.WrapError(domain.ErrorCodeDatabaseError, "claim delivery", err)
		}
	}

	return nil
}

// GetByID loads a payment with its delivery associations
func (r *PaymentRepository) GetByID(ctx context.Context, tx ports.DBTX, id string) (*domain.Payment, error) {
	return r.getByColumn(ctx, tx, "id", id)
}

// GetByExternalID resolves the gateway's invoice id to a local payment
func (r *PaymentRepository) GetByExternalID(ctx context.Context, tx ports.DBTX, externalID string) (*domain.Payment, error) {
	return r.getByColumn(ctx, tx, "external_id", externalID)
}

func (r *PaymentRepository) getByColumn(ctx context.Context, tx ports.DBTX, column, value string) (*domain.Payment, error) {
	exec := r.executor(tx)

	query := fmt.Sprintf(`
		SELECT id, external_id, amount, currency, status,
		       pix_payload, pix_url, hosted_page_url,
		       expires_at, paid_at, payer_id, created_at, updated_at
		FROM payments
		WHERE %s = $1`, column)

	var (
		p      domain.Payment
		amount pgtype.Numeric
		status string
		pixPay pgtype.Text
		pixURL pgtype.Text
		hosted pgtype.Text
		paidAt pgtype.Timestamptz
	)

	err := exec.QueryRow(ctx, query, value).Scan(
		&p.ID, &p.ExternalID, &amount, &p.Currency, &status,
		&pixPay, &pixURL, &hosted,
		&p.ExpiresAt, &paidAt, &p.PayerID, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPaymentNotFound
		}
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "query payment", err)
	}

	p.Amount, err = pgNumericToDecimal(amount)
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "convert payment amount", err)
	}
	p.Status = domain.PaymentStatus(status)
	p.PixPayload = pixPay.String
	p.PixURL = pixURL.String
	p.HostedPageURL = hosted.String
	p.PaidAt = timestampPtr(paidAt)

	rows, err := exec.Query(ctx, `
		SELECT delivery_id FROM payment_deliveries
		WHERE payment_id = $1
		ORDER BY delivery_id`, p.ID)
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "query payment deliveries", err)
	}
	defer rows.Close()

	for rows.Next() {
		var deliveryID string
		if err := rows.Scan(&deliveryID); err != nil {
			return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "scan delivery id", err)
		}
		p.DeliveryIDs = append(p.DeliveryIDs, deliveryID)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "iterate payment deliveries", err)
	}

	return &p, nil
}

// UpdateStatus applies a reconciled status. paid_at is write-once: the
// COALESCE keeps the first timestamp if a duplicate event arrives later.
// Settled statuses release the delivery claims so the deliveries become
// eligible for the next consolidation run. The status write and the claim
// release must land together: a settled payment with a live claim would
// block its deliveries from reconsolidation forever, so callers without a
// transaction get one opened here.
func (r *PaymentRepository) UpdateStatus(ctx context.Context, tx ports.DBTX, id string, status domain.PaymentStatus, paidAt *time.Time) error {
	if tx == nil {
		return r.db.WithTransaction(ctx, func(ctx context.Context, txn pgx.Tx) error {
			return r.updateStatus(ctx, txn, id, status, paidAt)
		})
	}
	return r.updateStatus(ctx, tx, id, status, paidAt)
}

func (r *PaymentRepository) updateStatus(ctx context.Context, exec ports.DBTX, id string, status domain.PaymentStatus, paidAt *time.Time) error {
	tag, err := exec.Exec(ctx, `
		UPDATE payments
		SET status = $2,
		    paid_at = COALESCE(paid_at, $3),
		    updated_at = NOW()
		WHERE id = $1`,
		id, string(status), nullTimestamp(paidAt))
	if err != nil {
		return domain.WrapError(domain.ErrorCodeDatabaseError, "update payment status", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPaymentNotFound
	}

	if status.IsSettled() {
		_, err = exec.Exec(ctx, `
			UPDATE payment_deliveries
			SET active = FALSE
			WHERE payment_id = $1 AND active`, id)
		if err != nil {
			return domain.WrapError(domain.ErrorCodeDatabaseError, "release delivery claims", err)
		}
	}

	return nil
}
