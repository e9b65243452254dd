package ports

import (
	"context"
	"time"

	"github.com/courierpay/payment-engine/internal/domain"
	"github.com/shopspring/decimal"
)

// CreateInvoiceRequest describes one hosted invoice to be created at the
// gateway. Splits carries the explicit (non-platform) recipients only; the
// platform's remainder is implicit on the gateway side.
type CreateInvoiceRequest struct {
	PayerEmail      string
	PayerName       string
	Amount          decimal.Decimal
	Currency        string
	Description     string
	ExpirationHours int
	Splits          []domain.RecipientSplit
}

// InvoiceResult is the gateway's view of a freshly created hosted invoice
type InvoiceResult struct {
	ExternalID    string
	Status        string
	PixPayload    string // copy-paste payment code
	PixURL        string // QR code image URL
	HostedPageURL string
	DueDate       time.Time
}

// AccountVerification is the verification state of a payable subaccount
type AccountVerification struct {
	AccountID string
	Status    domain.VerificationStatus
}

// InvoiceGateway defines the payment provider operations the engine needs.
// Concrete adapters own authentication and transport detail.
type InvoiceGateway interface {
	// CreateInvoice creates a hosted payment embedding the explicit splits
	CreateInvoice(ctx context.Context, req *CreateInvoiceRequest) (*InvoiceResult, error)

	// ValidateSignature checks an inbound webhook signature against the
	// shared secret. An empty header never validates.
	ValidateSignature(payload []byte, signatureHeader string) bool

	// GetAccountVerificationStatus queries a recipient subaccount's state
	GetAccountVerificationStatus(ctx context.Context, accountID string) (*AccountVerification, error)
}
