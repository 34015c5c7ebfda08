/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository`
 * interface for ledger transactions, histories, pending purchases, virtual
 * account mappings, purchases, and the cached exchange rate.
 *
 * @dependencies
 * - context, time, errors: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/proxynest/payment-service/internal/domain"
)

var (
	ErrTransactionNotFound    = errors.New("transaction not found")
	ErrWalletNotFound         = errors.New("wallet not found")
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrPendingPurchaseMissing = errors.New("pending purchase not found")
	ErrMappingNotFound        = errors.New("virtual account mapping not found")
	ErrAccountNotFound        = errors.New("virtual account not found")
	ErrRateNotCached          = errors.New("exchange rate not cached")
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const transactionColumns = `
	id, user_id, type, amount, status, reference, provider_reference_id,
	finalized, finalize_error, investigation_required, investigation_details,
	purchase_completion_failed, created_at, updated_at`

func scanTransaction(row pgx.Row) (*domain.LedgerTransaction, error) {
	var tx domain.LedgerTransaction
	var details []byte
	err := row.Scan(
		&tx.ID,
		&tx.UserID,
		&tx.Type,
		&tx.Amount,
		&tx.Status,
		&tx.Reference,
		&tx.ProviderReferenceID,
		&tx.Finalized,
		&tx.FinalizeError,
		&tx.InvestigationRequired,
		&details,
		&tx.PurchaseCompletionFailed,
		&tx.CreatedAt,
		&tx.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	if len(details) > 0 {
		if err := json.Unmarshal(details, &tx.InvestigationDetails); err != nil {
			return nil, err
		}
	}
	return &tx, nil
}

// CreateTransaction inserts a new ledger transaction. Callers always create
// transactions in PENDING before any balance is touched, so a crash between
// the insert and the mutation leaves an auditable record.
func (r *PostgresRepository) CreateTransaction(ctx context.Context, tx *domain.LedgerTransaction) error {
	query := `
		INSERT INTO transactions (id, user_id, type, amount, status, reference, provider_reference_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.Exec(ctx, query,
		tx.ID,
		tx.UserID,
		tx.Type,
		tx.Amount,
		tx.Status,
		tx.Reference,
		tx.ProviderReferenceID,
	)
	return err
}

// FindTransactionByID retrieves a single ledger transaction.
func (r *PostgresRepository) FindTransactionByID(ctx context.Context, transactionID uuid.UUID) (*domain.LedgerTransaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`
	return scanTransaction(r.db.QueryRow(ctx, query, transactionID))
}

// FindTransactionByReference retrieves a ledger transaction by its external reference.
func (r *PostgresRepository) FindTransactionByReference(ctx context.Context, reference string) (*domain.LedgerTransaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE reference = $1 ORDER BY created_at DESC LIMIT 1`
	return scanTransaction(r.db.QueryRow(ctx, query, reference))
}

// FindLatestPendingTransactionByAmount returns the most recently created
// PENDING transaction with the given rounded amount.
func (r *PostgresRepository) FindLatestPendingTransactionByAmount(ctx context.Context, amount int64) (*domain.LedgerTransaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE status = $1 AND amount = $2
		ORDER BY created_at DESC
		LIMIT 1
	`
	return scanTransaction(r.db.QueryRow(ctx, query, domain.TransactionStatusPending, amount))
}

// FindLatestPendingTransactionForUser returns the user's most recent PENDING
// transaction, amount-constrained when amount is non-nil.
func (r *PostgresRepository) FindLatestPendingTransactionForUser(ctx context.Context, userID uuid.UUID, amount *int64) (*domain.LedgerTransaction, error) {
	if amount != nil {
		query := `
			SELECT ` + transactionColumns + `
			FROM transactions
			WHERE status = $1 AND user_id = $2 AND amount = $3
			ORDER BY created_at DESC
			LIMIT 1
		`
		return scanTransaction(r.db.QueryRow(ctx, query, domain.TransactionStatusPending, userID, *amount))
	}
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE status = $1 AND user_id = $2
		ORDER BY created_at DESC
		LIMIT 1
	`
	return scanTransaction(r.db.QueryRow(ctx, query, domain.TransactionStatusPending, userID))
}

// FindTransactionsByUserID lists a user's ledger transactions, newest first.
func (r *PostgresRepository) FindTransactionsByUserID(ctx context.Context, userID uuid.UUID) ([]domain.LedgerTransaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE user_id = $1 ORDER BY created_at DESC LIMIT 100`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []domain.LedgerTransaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, *tx)
	}
	return transactions, rows.Err()
}

// UpdateTransactionStatus transitions a PENDING transaction to its terminal
// status. The WHERE guard keeps a terminal status from being overwritten by
// a late or replayed update.
func (r *PostgresRepository) UpdateTransactionStatus(ctx context.Context, transactionID uuid.UUID, status string) error {
	query := `UPDATE transactions SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3`
	_, err := r.db.Exec(ctx, query, status, transactionID, domain.TransactionStatusPending)
	return err
}

// SetTransactionProviderReference records the collector's transaction id on our record.
func (r *PostgresRepository) SetTransactionProviderReference(ctx context.Context, transactionID uuid.UUID, providerReferenceID string) error {
	query := `UPDATE transactions SET provider_reference_id = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.db.Exec(ctx, query, providerReferenceID, transactionID)
	return err
}

// ClaimTransactionFinalization flips finalized false->true in a single
// statement. Concurrent webhook deliveries race here; exactly one observes
// a row change and wins the right to run fulfillment.
func (r *PostgresRepository) ClaimTransactionFinalization(ctx context.Context, transactionID uuid.UUID) (bool, error) {
	query := `UPDATE transactions SET finalized = TRUE, updated_at = NOW() WHERE id = $1 AND finalized = FALSE`
	tag, err := r.db.Exec(ctx, query, transactionID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// RecordFinalizeError stores the post-claim failure for operator follow-up.
func (r *PostgresRepository) RecordFinalizeError(ctx context.Context, transactionID uuid.UUID, message string) error {
	if len(message) > 500 {
		message = message[:500]
	}
	query := `UPDATE transactions SET finalize_error = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.db.Exec(ctx, query, message, transactionID)
	return err
}

// FlagTransactionForInvestigation marks a price-validation failure with full diagnostics.
func (r *PostgresRepository) FlagTransactionForInvestigation(ctx context.Context, transactionID uuid.UUID, details map[string]interface{}) error {
	payload, err := json.Marshal(details)
	if err != nil {
		return err
	}
	query := `
		UPDATE transactions
		SET investigation_required = TRUE, investigation_details = $1, updated_at = NOW()
		WHERE id = $2
	`
	_, err = r.db.Exec(ctx, query, payload, transactionID)
	return err
}

// MarkPurchaseCompletionFailed flags a paid-but-unfulfilled purchase.
func (r *PostgresRepository) MarkPurchaseCompletionFailed(ctx context.Context, transactionID uuid.UUID, reason string) error {
	if len(reason) > 500 {
		reason = reason[:500]
	}
	query := `
		UPDATE transactions
		SET purchase_completion_failed = TRUE, finalize_error = $1, updated_at = NOW()
		WHERE id = $2
	`
	_, err := r.db.Exec(ctx, query, reason, transactionID)
	return err
}

// AppendTransactionHistory writes an audit entry for a ledger transaction.
func (r *PostgresRepository) AppendTransactionHistory(ctx context.Context, transactionID, userID uuid.UUID, description string, meta map[string]interface{}) error {
	var payload []byte
	if meta != nil {
		var err error
		payload, err = json.Marshal(meta)
		if err != nil {
			return err
		}
	}
	query := `
		INSERT INTO transaction_histories (id, transaction_id, user_id, description, meta)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.Exec(ctx, query, uuid.New(), transactionID, userID, description, payload)
	return err
}

// FindHistoryByTransactionID lists audit entries for a transaction, newest first.
func (r *PostgresRepository) FindHistoryByTransactionID(ctx context.Context, transactionID uuid.UUID) ([]domain.TransactionHistory, error) {
	query := `
		SELECT id, transaction_id, user_id, description, meta, created_at
		FROM transaction_histories
		WHERE transaction_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.Query(ctx, query, transactionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.TransactionHistory
	for rows.Next() {
		var entry domain.TransactionHistory
		var meta []byte
		if err := rows.Scan(&entry.ID, &entry.TransactionID, &entry.UserID, &entry.Description, &meta, &entry.CreatedAt); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &entry.Meta); err != nil {
				return nil, err
			}
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// CreatePendingPurchase stages order parameters until payment confirmation.
func (r *PostgresRepository) CreatePendingPurchase(ctx context.Context, pending *domain.PendingPurchase) error {
	options, err := json.Marshal(pending.Options)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO pending_purchases (transaction_id, user_id, service_id, plan_id, price_paid_usd, expected_price_local, options)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = r.db.Exec(ctx, query,
		pending.TransactionID,
		pending.UserID,
		pending.ServiceID,
		pending.PlanID,
		pending.PricePaidUSD,
		pending.ExpectedPriceLocal,
		options,
	)
	return err
}

// FindPendingPurchase retrieves the staged purchase for a transaction.
func (r *PostgresRepository) FindPendingPurchase(ctx context.Context, transactionID uuid.UUID) (*domain.PendingPurchase, error) {
	query := `
		SELECT transaction_id, user_id, service_id, plan_id, price_paid_usd, expected_price_local, options, created_at
		FROM pending_purchases
		WHERE transaction_id = $1
	`
	var pending domain.PendingPurchase
	var options []byte
	err := r.db.QueryRow(ctx, query, transactionID).Scan(
		&pending.TransactionID,
		&pending.UserID,
		&pending.ServiceID,
		&pending.PlanID,
		&pending.PricePaidUSD,
		&pending.ExpectedPriceLocal,
		&options,
		&pending.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrPendingPurchaseMissing
		}
		return nil, err
	}
	if len(options) > 0 {
		if err := json.Unmarshal(options, &pending.Options); err != nil {
			return nil, err
		}
	}
	return &pending, nil
}

// DeletePendingPurchase removes the staging record after completion or permanent failure.
func (r *PostgresRepository) DeletePendingPurchase(ctx context.Context, transactionID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM pending_purchases WHERE transaction_id = $1`, transactionID)
	return err
}

// SaveVirtualAccount upserts the user's provisioned collection account.
func (r *PostgresRepository) SaveVirtualAccount(ctx context.Context, account *domain.VirtualAccount) error {
	query := `
		INSERT INTO virtual_accounts (user_id, customer_id, account_number, bank_name)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE
		SET customer_id = EXCLUDED.customer_id,
		    account_number = EXCLUDED.account_number,
		    bank_name = EXCLUDED.bank_name
	`
	_, err := r.db.Exec(ctx, query, account.UserID, account.CustomerID, account.AccountNumber, account.BankName)
	return err
}

// FindVirtualAccountByUserID retrieves a user's collection account.
func (r *PostgresRepository) FindVirtualAccountByUserID(ctx context.Context, userID uuid.UUID) (*domain.VirtualAccount, error) {
	query := `SELECT user_id, customer_id, account_number, bank_name, created_at FROM virtual_accounts WHERE user_id = $1`
	var account domain.VirtualAccount
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&account.UserID,
		&account.CustomerID,
		&account.AccountNumber,
		&account.BankName,
		&account.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// FindUserIDByAccountNumber reverse-looks-up the owner of a provisioned account number.
func (r *PostgresRepository) FindUserIDByAccountNumber(ctx context.Context, accountNumber string) (uuid.UUID, error) {
	var userID uuid.UUID
	err := r.db.QueryRow(ctx, `SELECT user_id FROM virtual_accounts WHERE account_number = $1`, accountNumber).Scan(&userID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return uuid.Nil, ErrAccountNotFound
		}
		return uuid.Nil, err
	}
	return userID, nil
}

// CreateVirtualAccountMapping links a webhook correlation key to a pending transaction.
func (r *PostgresRepository) CreateVirtualAccountMapping(ctx context.Context, mapping *domain.VirtualAccountMapping) error {
	query := `
		INSERT INTO virtual_account_mappings (key, transaction_id, user_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE
		SET transaction_id = EXCLUDED.transaction_id, user_id = EXCLUDED.user_id
	`
	_, err := r.db.Exec(ctx, query, mapping.Key, mapping.TransactionID, mapping.UserID)
	return err
}

// FindVirtualAccountMappingByKey retrieves a correlation mapping.
func (r *PostgresRepository) FindVirtualAccountMappingByKey(ctx context.Context, key string) (*domain.VirtualAccountMapping, error) {
	query := `SELECT key, transaction_id, user_id, created_at FROM virtual_account_mappings WHERE key = $1`
	var mapping domain.VirtualAccountMapping
	err := r.db.QueryRow(ctx, query, key).Scan(&mapping.Key, &mapping.TransactionID, &mapping.UserID, &mapping.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrMappingNotFound
		}
		return nil, err
	}
	return &mapping, nil
}

// DeleteVirtualAccountMappingsForTransaction removes all correlation aids once a payment settles.
func (r *PostgresRepository) DeleteVirtualAccountMappingsForTransaction(ctx context.Context, transactionID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM virtual_account_mappings WHERE transaction_id = $1`, transactionID)
	return err
}

// CreatePurchase persists a completed provider order.
func (r *PostgresRepository) CreatePurchase(ctx context.Context, purchase *domain.Purchase) error {
	details, err := json.Marshal(purchase.Details)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO purchases (id, user_id, transaction_id, service_id, plan_id, price_paid_usd, provider_order_id, status, details)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = r.db.Exec(ctx, query,
		purchase.ID,
		purchase.UserID,
		purchase.TransactionID,
		purchase.ServiceID,
		purchase.PlanID,
		purchase.PricePaidUSD,
		purchase.ProviderOrder,
		purchase.Status,
		details,
	)
	return err
}

// FindPurchasesByUserID lists a user's completed orders, newest first.
func (r *PostgresRepository) FindPurchasesByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Purchase, error) {
	query := `
		SELECT id, user_id, transaction_id, service_id, plan_id, price_paid_usd, provider_order_id, status, details, created_at
		FROM purchases
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var purchases []domain.Purchase
	for rows.Next() {
		var purchase domain.Purchase
		var details []byte
		if err := rows.Scan(
			&purchase.ID,
			&purchase.UserID,
			&purchase.TransactionID,
			&purchase.ServiceID,
			&purchase.PlanID,
			&purchase.PricePaidUSD,
			&purchase.ProviderOrder,
			&purchase.Status,
			&details,
			&purchase.CreatedAt,
		); err != nil {
			return nil, err
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &purchase.Details); err != nil {
				return nil, err
			}
		}
		purchases = append(purchases, purchase)
	}
	return purchases, rows.Err()
}

// GetCachedExchangeRate reads the singleton rate row.
func (r *PostgresRepository) GetCachedExchangeRate(ctx context.Context) (*domain.CachedExchangeRate, error) {
	var cached domain.CachedExchangeRate
	err := r.db.QueryRow(ctx, `SELECT rate, last_updated FROM exchange_rates WHERE id = 1`).Scan(&cached.Rate, &cached.LastUpdated)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrRateNotCached
		}
		return nil, err
	}
	return &cached, nil
}

// SaveCachedExchangeRate upserts the singleton rate row.
func (r *PostgresRepository) SaveCachedExchangeRate(ctx context.Context, rate float64, updatedAt time.Time) error {
	query := `
		INSERT INTO exchange_rates (id, rate, last_updated)
		VALUES (1, $1, $2)
		ON CONFLICT (id) DO UPDATE SET rate = EXCLUDED.rate, last_updated = EXCLUDED.last_updated
	`
	_, err := r.db.Exec(ctx, query, rate, updatedAt)
	return err
}

// GetPricingConfig reads the markup configuration. A missing row means no markup.
func (r *PostgresRepository) GetPricingConfig(ctx context.Context) (*domain.PricingConfig, error) {
	var config domain.PricingConfig
	var perService []byte
	err := r.db.QueryRow(ctx, `SELECT global_markup_percent, per_service_markup FROM pricing_config WHERE id = 1`).
		Scan(&config.GlobalMarkupPercent, &perService)
	if err != nil {
		if err == pgx.ErrNoRows {
			return &domain.PricingConfig{}, nil
		}
		return nil, err
	}
	if len(perService) > 0 {
		if err := json.Unmarshal(perService, &config.PerServiceMarkup); err != nil {
			return nil, err
		}
	}
	return &config, nil
}
