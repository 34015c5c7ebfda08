/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract
 * for all data access operations required by the payment-service. Defining an
 * interface decouples the business logic from the PostgreSQL implementation
 * and lets tests substitute lightweight stubs.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID handling.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/proxynest/payment-service/internal/domain"
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Ledger transaction methods
	CreateTransaction(ctx context.Context, tx *domain.LedgerTransaction) error
	FindTransactionByID(ctx context.Context, transactionID uuid.UUID) (*domain.LedgerTransaction, error)
	FindTransactionByReference(ctx context.Context, reference string) (*domain.LedgerTransaction, error)
	FindLatestPendingTransactionByAmount(ctx context.Context, amount int64) (*domain.LedgerTransaction, error)
	FindLatestPendingTransactionForUser(ctx context.Context, userID uuid.UUID, amount *int64) (*domain.LedgerTransaction, error)
	FindTransactionsByUserID(ctx context.Context, userID uuid.UUID) ([]domain.LedgerTransaction, error)
	UpdateTransactionStatus(ctx context.Context, transactionID uuid.UUID, status string) error
	SetTransactionProviderReference(ctx context.Context, transactionID uuid.UUID, providerReferenceID string) error

	// Finalization guard. ClaimTransactionFinalization flips finalized
	// false->true and reports whether this caller won the claim; it is the
	// sole serialization point for fulfillment side effects.
	ClaimTransactionFinalization(ctx context.Context, transactionID uuid.UUID) (bool, error)
	RecordFinalizeError(ctx context.Context, transactionID uuid.UUID, message string) error
	FlagTransactionForInvestigation(ctx context.Context, transactionID uuid.UUID, details map[string]interface{}) error
	MarkPurchaseCompletionFailed(ctx context.Context, transactionID uuid.UUID, reason string) error

	// Transaction history methods
	AppendTransactionHistory(ctx context.Context, transactionID, userID uuid.UUID, description string, meta map[string]interface{}) error
	FindHistoryByTransactionID(ctx context.Context, transactionID uuid.UUID) ([]domain.TransactionHistory, error)

	// Wallet methods
	FindOrCreateWallet(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error)
	CreditWalletBalance(ctx context.Context, walletID uuid.UUID, amount int64) error
	DebitWalletBalance(ctx context.Context, walletID uuid.UUID, amount int64) error
	CreateWalletTransaction(ctx context.Context, wt *domain.WalletTransaction) error
	UpdateWalletTransactionStatusByReference(ctx context.Context, referenceID uuid.UUID, txType, status string) (bool, error)
	FindWalletTransactionsByUserID(ctx context.Context, userID uuid.UUID) ([]domain.WalletTransaction, error)

	// Pending purchase methods
	CreatePendingPurchase(ctx context.Context, pending *domain.PendingPurchase) error
	FindPendingPurchase(ctx context.Context, transactionID uuid.UUID) (*domain.PendingPurchase, error)
	DeletePendingPurchase(ctx context.Context, transactionID uuid.UUID) error

	// Virtual account and mapping methods
	SaveVirtualAccount(ctx context.Context, account *domain.VirtualAccount) error
	FindVirtualAccountByUserID(ctx context.Context, userID uuid.UUID) (*domain.VirtualAccount, error)
	FindUserIDByAccountNumber(ctx context.Context, accountNumber string) (uuid.UUID, error)
	CreateVirtualAccountMapping(ctx context.Context, mapping *domain.VirtualAccountMapping) error
	FindVirtualAccountMappingByKey(ctx context.Context, key string) (*domain.VirtualAccountMapping, error)
	DeleteVirtualAccountMappingsForTransaction(ctx context.Context, transactionID uuid.UUID) error

	// Purchase methods
	CreatePurchase(ctx context.Context, purchase *domain.Purchase) error
	FindPurchasesByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Purchase, error)

	// Exchange rate cache methods
	GetCachedExchangeRate(ctx context.Context) (*domain.CachedExchangeRate, error)
	SaveCachedExchangeRate(ctx context.Context, rate float64, updatedAt time.Time) error

	// Pricing config
	GetPricingConfig(ctx context.Context) (*domain.PricingConfig, error)
}
