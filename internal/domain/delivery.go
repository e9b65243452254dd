package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DeliveryStatus represents the lifecycle state of a delivery
type DeliveryStatus string

const (
	DeliveryStatusPending   DeliveryStatus = "PENDING"
	DeliveryStatusInTransit DeliveryStatus = "IN_TRANSIT"
	DeliveryStatusCompleted DeliveryStatus = "COMPLETED"
	DeliveryStatusCancelled DeliveryStatus = "CANCELLED"
)

// Delivery is a fully-materialized snapshot of a delivery, read by the
// engine with courier/manager gateway account ids already resolved. The
// engine never mutates a delivery except to attach a payment reference.
type Delivery struct {
	ID        string
	ClientID  string
	CourierID string
	// ManagerID is nil for deliveries with no organizer; the manager's
	// percentage then folds into the platform remainder.
	ManagerID        *string
	CourierAccountID string // courier's payable gateway subaccount
	ManagerAccountID *string
	// ShippingFee is the amount that gets split. The merchandise total is
	// carried for reporting only and is never split.
	ShippingFee      decimal.Decimal
	MerchandiseTotal decimal.Decimal
	Status           DeliveryStatus
	PaymentID        *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ShippingFeeCents returns the shipping fee in integer minor units.
func (d *Delivery) ShippingFeeCents() int64 {
	return d.ShippingFee.Shift(2).IntPart()
}

// HasManager returns true if the delivery has an organizer attached.
func (d *Delivery) HasManager() bool {
	return d.ManagerID != nil && *d.ManagerID != ""
}

// GroupKey identifies the (courier, manager) pair a delivery belongs to.
// Deliveries of one client sharing a key are consolidated into one invoice.
func (d *Delivery) GroupKey() string {
	if d.HasManager() {
		return d.CourierID + "|" + *d.ManagerID
	}
	return d.CourierID + "|"
}
