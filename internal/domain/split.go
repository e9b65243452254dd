package domain

import "github.com/shopspring/decimal"

// RecipientKind identifies which party a split belongs to
type RecipientKind string

const (
	RecipientCourier  RecipientKind = "COURIER"
	RecipientManager  RecipientKind = "MANAGER"
	RecipientPlatform RecipientKind = "PLATFORM"
)

// BasisPointsDenominator is the fixed-point scale for percentages:
// 8700 basis points = 87.00%.
const BasisPointsDenominator = 10000

// RecipientSplit is one recipient's share of a consolidated payment in
// integer minor units. Transient: computed per consolidation request and
// embedded in the gateway call, never persisted standalone.
type RecipientSplit struct {
	Kind RecipientKind
	// AccountID is the recipient's gateway subaccount. Empty only for
	// PLATFORM, whose share is implicit on the gateway side.
	AccountID   string
	AmountCents int64
	BasisPoints int64
	Description string
}

// Percentage returns the split's share as a decimal percentage (87 for 8700bp).
func (s RecipientSplit) Percentage() decimal.Decimal {
	return decimal.New(s.BasisPoints, -2)
}

// SplitConfig holds the configured revenue shares in basis points. The
// platform share is never configured: it is always the remainder.
type SplitConfig struct {
	CourierBasisPoints int64
	ManagerBasisPoints int64
}

// Validate checks the configured shares leave a non-negative remainder.
func (c SplitConfig) Validate() error {
	if c.CourierBasisPoints < 0 || c.ManagerBasisPoints < 0 {
		return ErrSplitConfigInvalid
	}
	if c.CourierBasisPoints+c.ManagerBasisPoints > BasisPointsDenominator {
		return ErrSplitConfigInvalid
	}
	return nil
}
