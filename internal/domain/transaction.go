/**
 * @description
 * This file defines the core ledger domain models for the payment-service.
 * These structs represent the main entities used throughout the service's
 * business logic, database interactions, and API layers.
 *
 * @notes
 * - Wallet and ledger amounts are stored as `int64` in whole naira. Provider
 *   prices are quoted in USD and kept as `float64` until converted for
 *   validation; the ledger itself never stores fractional amounts.
 * - Using distinct types for API requests, database models, and external
 *   service payloads keeps the layers separated and type safe.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Ledger transaction types.
const (
	TransactionTypeDeposit    = "DEPOSIT"
	TransactionTypeWithdrawal = "WITHDRAWAL"
	TransactionTypePurchase   = "PURCHASE"
	TransactionTypeRefund     = "REFUND"
)

// Ledger transaction statuses. A transaction moves PENDING -> SUCCESS or
// PENDING -> FAILED exactly once.
const (
	TransactionStatusPending = "PENDING"
	TransactionStatusSuccess = "SUCCESS"
	TransactionStatusFailed  = "FAILED"
)

// LedgerTransaction is the central record for any money movement in the
// system. It maps directly to the `transactions` table.
type LedgerTransaction struct {
	ID                       uuid.UUID              `json:"id"`
	UserID                   uuid.UUID              `json:"user_id"`
	Type                     string                 `json:"type"`
	Amount                   int64                  `json:"amount"` // in naira
	Status                   string                 `json:"status"`
	Reference                *string                `json:"reference,omitempty"`
	ProviderReferenceID      *string                `json:"provider_reference_id,omitempty"`
	Finalized                bool                   `json:"finalized"`
	FinalizeError            *string                `json:"finalize_error,omitempty"`
	InvestigationRequired    bool                   `json:"investigation_required"`
	InvestigationDetails     map[string]interface{} `json:"investigation_details,omitempty"`
	PurchaseCompletionFailed bool                   `json:"purchase_completion_failed"`
	CreatedAt                time.Time              `json:"created_at"`
	UpdatedAt                time.Time              `json:"updated_at"`
}

// TransactionHistory is an append-only audit entry attached to a ledger
// transaction.
type TransactionHistory struct {
	ID            uuid.UUID              `json:"id"`
	TransactionID uuid.UUID              `json:"transaction_id"`
	UserID        uuid.UUID              `json:"user_id"`
	Description   string                 `json:"description"`
	Meta          map[string]interface{} `json:"meta,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
}

// VirtualAccount is the provisioned collection account for a user at the
// payment collector. Created lazily on first deposit or purchase.
type VirtualAccount struct {
	UserID        uuid.UUID `json:"user_id"`
	CustomerID    string    `json:"customer_id"`
	AccountNumber string    `json:"account_number"`
	BankName      string    `json:"bank_name"`
	CreatedAt     time.Time `json:"created_at"`
}

// VirtualAccountMapping is a short-lived correlation aid that links an
// inbound webhook key (collector customer id or normalized account number)
// to a pending ledger transaction. Deleted once the payment is confirmed.
type VirtualAccountMapping struct {
	Key           string    `json:"key"`
	TransactionID uuid.UUID `json:"transaction_id"`
	UserID        uuid.UUID `json:"user_id"`
	CreatedAt     time.Time `json:"created_at"`
}

// CachedExchangeRate is the singleton USD->NGN rate row.
type CachedExchangeRate struct {
	Rate        float64   `json:"rate"`
	LastUpdated time.Time `json:"last_updated"`
}

// PricingConfig holds the markup applied on top of provider quotes.
type PricingConfig struct {
	GlobalMarkupPercent float64            `json:"global_markup_percent"`
	PerServiceMarkup    map[string]float64 `json:"per_service_markup"`
}

// MarkupFor returns the markup percentage for a service, falling back to the
// global markup when no per-service override exists.
func (c *PricingConfig) MarkupFor(serviceID string) float64 {
	if c == nil {
		return 0
	}
	if m, ok := c.PerServiceMarkup[serviceID]; ok {
		return m
	}
	return c.GlobalMarkupPercent
}
