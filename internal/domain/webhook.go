package domain

import (
	"math"
	"strings"
)

// WebhookPayload is the payment collector's notification body. The collector
// sends a loose superset of these fields; only the ones used for matching
// and validation are decoded.
type WebhookPayload struct {
	TransactionID     string  `json:"transaction_id"`
	AmountPaid        float64 `json:"amount_paid"`
	TransactionStatus string  `json:"transaction_status"`
	Description       string  `json:"description,omitempty"`
	Customer          struct {
		CustomerID string `json:"customer_id"`
		Email      string `json:"email,omitempty"`
		Name       string `json:"name,omitempty"`
	} `json:"customer"`
	Receiver struct {
		AccountNumber string `json:"account_number"`
		BankName      string `json:"bank,omitempty"`
	} `json:"receiver"`
}

// IsSuccessful reports whether the collector considers the payment settled.
// The collector is inconsistent about the exact wording across channels.
func (p WebhookPayload) IsSuccessful() bool {
	switch strings.ToLower(strings.TrimSpace(p.TransactionStatus)) {
	case "success", "successful", "completed":
		return true
	}
	return false
}

// HasAmount reports whether the payload carries a usable amount.
func (p WebhookPayload) HasAmount() bool {
	return p.AmountPaid > 0
}

// RoundedAmount returns the paid amount normalized to whole naira.
func (p WebhookPayload) RoundedAmount() int64 {
	return int64(math.Round(p.AmountPaid))
}

// NormalizedAccountNumber returns the receiver account number stripped of
// whitespace, as stored in the mapping table.
func (p WebhookPayload) NormalizedAccountNumber() string {
	return strings.ReplaceAll(strings.TrimSpace(p.Receiver.AccountNumber), " ", "")
}

// Webhook processing outcomes returned to the collector. The collector only
// retries on non-2xx responses, so every authenticated outcome maps to 200.
const (
	WebhookStatusProcessed             = "processed"
	WebhookStatusAlreadyProcessed      = "already_processed"
	WebhookStatusUnmatched             = "unmatched"
	WebhookStatusIgnored               = "ignored"
	WebhookStatusInvestigationRequired = "investigation_required"
	WebhookStatusFulfillmentFailed     = "fulfillment_failed"
)

// WebhookResult is the response body for an authenticated webhook delivery.
type WebhookResult struct {
	Status        string `json:"status"`
	TransactionID string `json:"transactionId,omitempty"`
	Message       string `json:"message,omitempty"`
}
