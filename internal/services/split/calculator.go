package split

import (
	"fmt"

	"github.com/courierpay/payment-engine/internal/domain"
)

// Calculate computes the explicit recipient splits for one delivery group.
//
// All deliveries passed together must share the same courier and the same
// manager; the caller enforces that grouping precondition since a single
// invoice carries one split table.
//
// Each explicit share is floored at basis-point precision; the platform's
// share is never computed here. It is the remainder the gateway derives
// after the explicit splits, so rounding loss always lands on the platform
// and the total balances to the cent. Use PlatformRemainder when the
// remainder needs to be displayed.
//
// Pure and deterministic; safe to call concurrently.
func Calculate(deliveries []*domain.Delivery, cfg domain.SplitConfig) ([]domain.RecipientSplit, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(deliveries) == 0 {
		return nil, domain.NewDomainError(domain.ErrorCodeValidationFailed, "no deliveries to split")
	}

	var totalCents int64
	for _, d := range deliveries {
		fee := d.ShippingFeeCents()
		if fee <= 0 {
			return nil, domain.NewDomainError(domain.ErrorCodeValidationFeeInvalid,
				fmt.Sprintf("delivery %s has no positive shipping fee", d.ID)).
				WithDetail("delivery_id", d.ID)
		}
		totalCents += fee
	}

	lead := deliveries[0]
	if lead.CourierAccountID == "" {
		return nil, domain.NewDomainError(domain.ErrorCodeMissingRecipientAccount,
			fmt.Sprintf("courier %s has no payable gateway account", lead.CourierID)).
			WithDetail("courier_id", lead.CourierID)
	}

	splits := []domain.RecipientSplit{
		{
			Kind:        domain.RecipientCourier,
			AccountID:   lead.CourierAccountID,
			AmountCents: shareOf(totalCents, cfg.CourierBasisPoints),
			BasisPoints: cfg.CourierBasisPoints,
			Description: "Repasse do entregador",
		},
	}

	// Without a manager the manager share folds into the implicit
	// platform remainder; the courier share is unchanged.
	if lead.HasManager() {
		if lead.ManagerAccountID == nil || *lead.ManagerAccountID == "" {
			return nil, domain.NewDomainError(domain.ErrorCodeMissingRecipientAccount,
				fmt.Sprintf("manager %s has no payable gateway account", *lead.ManagerID)).
				WithDetail("manager_id", *lead.ManagerID)
		}
		splits = append(splits, domain.RecipientSplit{
			Kind:        domain.RecipientManager,
			AccountID:   *lead.ManagerAccountID,
			AmountCents: shareOf(totalCents, cfg.ManagerBasisPoints),
			BasisPoints: cfg.ManagerBasisPoints,
			Description: "Comissão do organizador",
		})
	}

	return splits, nil
}

// PlatformRemainder derives the platform's implicit share from the explicit
// splits. This is the single place the remainder is computed: report and
// submission paths both go through it so the two can never drift.
func PlatformRemainder(totalCents int64, explicit []domain.RecipientSplit) domain.RecipientSplit {
	remainder := totalCents
	usedBP := int64(0)
	for _, s := range explicit {
		remainder -= s.AmountCents
		usedBP += s.BasisPoints
	}
	return domain.RecipientSplit{
		Kind:        domain.RecipientPlatform,
		AmountCents: remainder,
		BasisPoints: domain.BasisPointsDenominator - usedBP,
		Description: "Taxa da plataforma",
	}
}

// shareOf floors totalCents * bp / 10000 at integer precision. Both factors
// are non-negative so integer division is the floor.
func shareOf(totalCents, basisPoints int64) int64 {
	return totalCents * basisPoints / domain.BasisPointsDenominator
}
