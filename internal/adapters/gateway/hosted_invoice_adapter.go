package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/courierpay/payment-engine/internal/domain"
	"github.com/courierpay/payment-engine/internal/domain/ports"
	"github.com/courierpay/payment-engine/pkg/observability"
	"github.com/courierpay/payment-engine/pkg/resilience"
)

// HTTPClient abstracts the HTTP client for testability
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// AuthConfig holds the gateway credentials
type AuthConfig struct {
	APIKey        string
	WebhookSecret string
}

// HostedInvoiceAdapter implements the InvoiceGateway interface for a hosted
// invoice provider with PIX support and split payments to subaccounts.
type HostedInvoiceAdapter struct {
	config     AuthConfig
	baseURL    string
	httpClient HTTPClient
	logger     ports.Logger
	backoff    resilience.BackoffStrategy
	maxRetries int
}

// NewHostedInvoiceAdapter creates a new hosted invoice adapter with dependency injection
func NewHostedInvoiceAdapter(config AuthConfig, baseURL string, httpClient HTTPClient, logger ports.Logger) *HostedInvoiceAdapter {
	return &HostedInvoiceAdapter{
		config:     config,
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
		backoff:    resilience.GatewayBackoff(),
		maxRetries: 3,
	}
}

// NewHostedInvoiceAdapterWithDefaults creates an adapter with a default HTTP client
func NewHostedInvoiceAdapterWithDefaults(config AuthConfig, baseURL string, logger ports.Logger) *HostedInvoiceAdapter {
	return &HostedInvoiceAdapter{
		config:  config,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger:     logger,
		backoff:    resilience.GatewayBackoff(),
		maxRetries: 3,
	}
}

// invoiceRequest is the provider's invoice creation payload
type invoiceRequest struct {
	CustomerEmail string         `json:"customerEmail"`
	CustomerName  string         `json:"customerName"`
	BillingType   string         `json:"billingType"`
	Value         string         `json:"value"`
	Currency      string         `json:"currency"`
	Description   string         `json:"description"`
	DueDate       string         `json:"dueDate"`
	Splits        []invoiceSplit `json:"splits,omitempty"`
}

type invoiceSplit struct {
	WalletID    string `json:"walletId"`
	FixedValue  string `json:"fixedValue"`
	Description string `json:"description,omitempty"`
}

// invoiceResponse is the provider's view of a created invoice
type invoiceResponse struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	DueDate      string `json:"dueDate"`
	InvoiceURL   string `json:"invoiceUrl"`
	PixPayload   string `json:"pixCopyPaste"`
	PixQRCodeURL string `json:"pixQrCodeUrl"`
}

type accountResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// CreateInvoice creates a hosted invoice with the explicit splits embedded.
// The platform's share is never sent: whatever the splits leave over stays
// in the main account at the provider.
func (a *HostedInvoiceAdapter) CreateInvoice(ctx context.Context, req *ports.CreateInvoiceRequest) (*ports.InvoiceResult, error) {
	apiReq := invoiceRequest{
		CustomerEmail: req.PayerEmail,
		CustomerName:  req.PayerName,
		BillingType:   "PIX",
		Value:         req.Amount.StringFixed(2),
		Currency:      req.Currency,
		Description:   req.Description,
		DueDate:       time.Now().Add(time.Duration(req.ExpirationHours) * time.Hour).Format(time.RFC3339),
	}

	for _, split := range req.Splits {
		apiReq.Splits = append(apiReq.Splits, invoiceSplit{
			WalletID:    split.AccountID,
			FixedValue:  decimal.New(split.AmountCents, -2).StringFixed(2),
			Description: split.Description,
		})
	}

	start := time.Now()
	var resp invoiceResponse
	err := a.makeRequest(ctx, http.MethodPost, "/v1/invoices", apiReq, &resp)
	observability.ObserveInvoiceCreation(time.Since(start))
	if err != nil {
		return nil, err
	}

	dueDate, err := time.Parse(time.RFC3339, resp.DueDate)
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeGatewayError, "gateway returned malformed due date", err)
	}

	return &ports.InvoiceResult{
		ExternalID:    resp.ID,
		Status:        resp.Status,
		PixPayload:    resp.PixPayload,
		PixURL:        resp.PixQRCodeURL,
		HostedPageURL: resp.InvoiceURL,
		DueDate:       dueDate,
	}, nil
}

// ValidateSignature checks an HMAC-SHA256 hex signature over the raw payload
func (a *HostedInvoiceAdapter) ValidateSignature(payload []byte, signatureHeader string) bool {
	if signatureHeader == "" {
		return false
	}

	h := hmac.New(sha256.New, []byte(a.config.WebhookSecret))
	h.Write(payload)
	expected := hex.EncodeToString(h.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signatureHeader))
}

// GetAccountVerificationStatus queries a recipient subaccount's state
func (a *HostedInvoiceAdapter) GetAccountVerificationStatus(ctx context.Context, accountID string) (*ports.AccountVerification, error) {
	var resp accountResponse
	endpoint := fmt.Sprintf("/v1/accounts/%s", accountID)
	if err := a.makeRequest(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}

	return &ports.AccountVerification{
		AccountID: resp.ID,
		Status:    domain.VerificationStatus(resp.Status),
	}, nil
}

// makeRequest performs an authenticated request with retries on transient
// failures. 4xx responses are never retried.
func (a *HostedInvoiceAdapter) makeRequest(ctx context.Context, method, endpoint string, request interface{}, response interface{}) error {
	var payloadBytes []byte
	if request != nil {
		var err error
		payloadBytes, err = json.Marshal(request)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= a.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return domain.WrapError(domain.ErrorCodeGatewayTimeout, "gateway request cancelled", ctx.Err())
			case <-time.After(a.backoff.NextDelay(attempt - 1)):
			}
		}

		retryable, err := a.doRequest(ctx, method, endpoint, payloadBytes, response)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable {
			return err
		}

		a.logger.Warn("gateway request failed, retrying",
			ports.String("endpoint", endpoint),
			ports.Int("attempt", attempt),
			ports.Err(err),
		)
	}

	return lastErr
}

func (a *HostedInvoiceAdapter) doRequest(ctx context.Context, method, endpoint string, payload []byte, response interface{}) (retryable bool, err error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	url := a.baseURL + endpoint
	httpReq, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.config.APIKey)

	httpResp, err := a.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return false, domain.WrapError(domain.ErrorCodeGatewayTimeout, "gateway request timed out", err)
		}
		return true, domain.WrapError(domain.ErrorCodeGatewayError, "failed to reach payment gateway", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return true, domain.WrapError(domain.ErrorCodeGatewayError, "failed to read gateway response", err)
	}

	if httpResp.StatusCode >= 500 {
		return true, domain.NewDomainError(domain.ErrorCodeGatewayError, "payment gateway error").
			WithDetail("status_code", httpResp.StatusCode)
	}
	if httpResp.StatusCode >= 400 {
		return false, domain.NewDomainError(domain.ErrorCodeGatewayError, "gateway rejected the request").
			WithDetail("status_code", httpResp.StatusCode).
			WithDetail("body", string(respBody))
	}

	if response != nil {
		if err := json.Unmarshal(respBody, response); err != nil {
			return false, domain.WrapError(domain.ErrorCodeGatewayError, "failed to unmarshal gateway response", err)
		}
	}

	return false, nil
}
