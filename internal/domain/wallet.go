package domain

import (
	"time"

	"github.com/google/uuid"
)

// Wallet transaction types.
const (
	WalletTransactionTypeCredit = "CREDIT"
	WalletTransactionTypeDebit  = "DEBIT"
	WalletTransactionTypeRefund = "REFUND"
)

// Wallet is a user's internal naira balance. Exactly one per user, created
// lazily on first use.
type Wallet struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Balance   int64     `json:"balance"` // in naira
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// WalletTransaction records a single wallet balance movement. ReferenceID
// points at the ledger transaction that drove the movement.
type WalletTransaction struct {
	ID          uuid.UUID `json:"id"`
	WalletID    uuid.UUID `json:"wallet_id"`
	UserID      uuid.UUID `json:"user_id"`
	Type        string    `json:"type"`
	Amount      int64     `json:"amount"` // in naira
	Status      string    `json:"status"`
	Description string    `json:"description"`
	ReferenceID uuid.UUID `json:"reference_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// DepositRequest is the DTO for initiating a wallet deposit.
type DepositRequest struct {
	Amount int64 `json:"amount"` // in naira
}

// WithdrawalRequest is the DTO for requesting a wallet withdrawal.
type WithdrawalRequest struct {
	Amount        int64  `json:"amount"` // in naira
	BankName      string `json:"bank_name"`
	AccountName   string `json:"account_name"`
	AccountNumber string `json:"account_number"`
}
