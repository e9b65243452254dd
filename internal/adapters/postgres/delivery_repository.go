package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/courierpay/payment-engine/internal/domain"
	"github.com/courierpay/payment-engine/internal/domain/ports"
)

// DeliveryRepository implements ports.DeliveryRepository using PostgreSQL
type DeliveryRepository struct {
	db ports.DBPort
}

// NewDeliveryRepository creates a new PostgreSQL delivery repository
func NewDeliveryRepository(db ports.DBPort) *DeliveryRepository {
	return &DeliveryRepository{db: db}
}

func (r *DeliveryRepository) executor(tx ports.DBTX) ports.DBTX {
	if tx != nil {
		return tx
	}
	return r.db.GetDB()
}

const deliverySelect = `
	SELECT d.id, d.client_id, d.courier_id, d.manager_id,
	       ca.gateway_account_id, ma.gateway_account_id,
	       d.shipping_fee, d.merchandise_total, d.status,
	       pd.payment_id, d.created_at, d.updated_at
	FROM deliveries d
	JOIN accounts ca ON ca.id = d.courier_id
	LEFT JOIN accounts ma ON ma.id = d.manager_id
	LEFT JOIN payment_deliveries pd ON pd.delivery_id = d.id AND pd.active`

// GetByIDs loads delivery snapshots with recipient gateway accounts resolved.
// Ids with no matching row are returned in the missing slice so the caller
// can reject the whole request instead of silently consolidating a subset.
func (r *DeliveryRepository) GetByIDs(ctx context.Context, tx ports.DBTX, ids []string) ([]*domain.Delivery, []string, error) {
	if len(ids) == 0 {
		return nil, nil, nil
	}
	exec := r.executor(tx)

	rows, err := exec.Query(ctx, deliverySelect+`
		WHERE d.id = ANY($1)`, ids)
	if err != nil {
		return nil, nil, domain.WrapError(domain.ErrorCodeDatabaseError, "query deliveries", err)
	}
	defer rows.Close()

	found := make(map[string]bool, len(ids))
	deliveries := make([]*domain.Delivery, 0, len(ids))
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, nil, err
		}
		found[d.ID] = true
		deliveries = append(deliveries, d)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, domain.WrapError(domain.ErrorCodeDatabaseError, "iterate deliveries", err)
	}

	var missing []string
	for _, id := range ids {
		if !found[id] {
			missing = append(missing, id)
		}
	}

	return deliveries, missing, nil
}

// ListUnpaidCompleted returns COMPLETED deliveries with no live payment
// claim, grouped by client. A PENDING claim past its due date does not
// block: expiry is evaluated here rather than by a background sweep.
func (r *DeliveryRepository) ListUnpaidCompleted(ctx context.Context, tx ports.DBTX, now time.Time) (map[string][]*domain.Delivery, error) {
	exec := r.executor(tx)

	rows, err := exec.Query(ctx, deliverySelect+`
		WHERE d.status = 'COMPLETED'
		  AND NOT EXISTS (
			SELECT 1
			FROM payment_deliveries c
			JOIN payments p ON p.id = c.payment_id
			WHERE c.delivery_id = d.id
			  AND c.active
			  AND NOT (p.status = 'PENDING' AND p.expires_at < $1)
		  )
		ORDER BY d.client_id, d.courier_id, d.manager_id NULLS FIRST, d.created_at`,
		now)
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "query unpaid deliveries", err)
	}
	defer rows.Close()

	grouped := make(map[string][]*domain.Delivery)
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		grouped[d.ClientID] = append(grouped[d.ClientID], d)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "iterate unpaid deliveries", err)
	}

	return grouped, nil
}

func scanDelivery(row pgx.Row) (*domain.Delivery, error) {
	var (
		d           domain.Delivery
		managerID   pgtype.Text
		courierAcct pgtype.Text
		managerAcct pgtype.Text
		shipping    pgtype.Numeric
		merchandise pgtype.Numeric
		status      string
		paymentID   pgtype.Text
	)

	err := row.Scan(
		&d.ID, &d.ClientID, &d.CourierID, &managerID,
		&courierAcct, &managerAcct,
		&shipping, &merchandise, &status,
		&paymentID, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "scan delivery", err)
	}

	d.ManagerID = textPtr(managerID)
	d.CourierAccountID = courierAcct.String
	d.ManagerAccountID = textPtr(managerAcct)
	d.Status = domain.DeliveryStatus(status)
	d.PaymentID = textPtr(paymentID)

	if d.ShippingFee, err = pgNumericToDecimal(shipping); err != nil {
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "convert shipping fee", err)
	}
	if d.MerchandiseTotal, err = pgNumericToDecimal(merchandise); err != nil {
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "convert merchandise total", err)
	}

	return &d, nil
}
