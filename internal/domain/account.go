package domain

import "time"

// AccountRole distinguishes the parties known to the engine
type AccountRole string

const (
	RoleClient  AccountRole = "CLIENT"
	RoleCourier AccountRole = "COURIER"
	RoleManager AccountRole = "MANAGER"
)

// VerificationStatus is the gateway-side verification state of a payable
// subaccount
type VerificationStatus string

const (
	VerificationVerified VerificationStatus = "verified"
	VerificationPending  VerificationStatus = "pending"
	VerificationRejected VerificationStatus = "rejected"
)

// Account is a platform user as the engine sees it: a payer identity for
// clients, a payable gateway subaccount for couriers and managers. Owned by
// the user subsystem; the engine only reads it.
type Account struct {
	ID               string
	Name             string
	Email            string
	Role             AccountRole
	GatewayAccountID string // empty until the recipient registers with the gateway
	CreatedAt        time.Time
}

// HasGatewayAccount returns true if the account can receive splits.
func (a *Account) HasGatewayAccount() bool {
	return a.GatewayAccountID != ""
}
