package consolidation

import (
	"github.com/courierpay/payment-engine/internal/domain"
	"github.com/courierpay/payment-engine/internal/services/split"
	"github.com/shopspring/decimal"
)

// DeliveryLine is one delivery's contribution to the consolidated total
type DeliveryLine struct {
	DeliveryID  string          `json:"deliveryId"`
	ShippingFee decimal.Decimal `json:"shippingFee"`
	FeeCents    int64           `json:"feeCents"`
}

// RecipientSummary aggregates the consolidated amount per recipient kind,
// including the implicit platform remainder.
type RecipientSummary struct {
	Kind        domain.RecipientKind `json:"kind"`
	AmountCents int64                `json:"amountCents"`
	BasisPoints int64                `json:"basisPoints"`
	Description string               `json:"description"`
	Implicit    bool                 `json:"implicit"`
}

// TransparencyReport is the audit/display view of a consolidation: the
// per-delivery breakdown plus the per-recipient summary. Pure aggregation
// over the already-computed splits; no amounts are derived a second time.
type TransparencyReport struct {
	Deliveries    []DeliveryLine     `json:"deliveries"`
	Summary       []RecipientSummary `json:"summary"`
	TotalCents    int64              `json:"totalCents"`
	DeliveryCount int                `json:"deliveryCount"`
}

func buildReport(deliveries []*domain.Delivery, splits []domain.RecipientSplit, totalCents int64) *TransparencyReport {
	report := &TransparencyReport{
		TotalCents:    totalCents,
		DeliveryCount: len(deliveries),
	}

	for _, d := range deliveries {
		report.Deliveries = append(report.Deliveries, DeliveryLine{
			DeliveryID:  d.ID,
			ShippingFee: d.ShippingFee,
			FeeCents:    d.ShippingFeeCents(),
		})
	}

	for _, s := range splits {
		report.Summary = append(report.Summary, RecipientSummary{
			Kind:        s.Kind,
			AmountCents: s.AmountCents,
			BasisPoints: s.BasisPoints,
			Description: s.Description,
		})
	}

	remainder := split.PlatformRemainder(totalCents, splits)
	report.Summary = append(report.Summary, RecipientSummary{
		Kind:        remainder.Kind,
		AmountCents: remainder.AmountCents,
		BasisPoints: remainder.BasisPoints,
		Description: remainder.Description,
		Implicit:    true,
	})

	return report
}
