/**
 * @description
 * This file provides the PostgreSQL implementation of the wallet-related
 * methods of the `Repository` interface. Balance mutations run inside
 * database transactions with row locks so the non-negative balance invariant
 * holds under concurrent webhooks and purchase requests.
 *
 * @dependencies
 * - context: Standard Go library.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the wallet domain models.
 */

package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/proxynest/payment-service/internal/domain"
)

// FindOrCreateWallet retrieves the user's wallet, creating a zero-balance one
// on first use. The ON CONFLICT clause makes concurrent first-time callers
// converge on a single row.
func (r *PostgresRepository) FindOrCreateWallet(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error) {
	query := `
		INSERT INTO wallets (id, user_id, balance)
		VALUES ($1, $2, 0)
		ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
		RETURNING id, user_id, balance, created_at, updated_at
	`
	var wallet domain.Wallet
	err := r.db.QueryRow(ctx, query, uuid.New(), userID).Scan(
		&wallet.ID,
		&wallet.UserID,
		&wallet.Balance,
		&wallet.CreatedAt,
		&wallet.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to find or create wallet: %w", err)
	}
	return &wallet, nil
}

// CreditWalletBalance atomically adds to a wallet's balance.
func (r *PostgresRepository) CreditWalletBalance(ctx context.Context, walletID uuid.UUID, amount int64) error {
	query := `UPDATE wallets SET balance = balance + $1, updated_at = NOW() WHERE id = $2`
	tag, err := r.db.Exec(ctx, query, amount, walletID)
	if err != nil {
		return fmt.Errorf("failed to credit wallet: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrWalletNotFound
	}
	return nil
}

// DebitWalletBalance atomically subtracts from a wallet's balance. The row is
// locked and the balance re-checked inside the transaction, so two concurrent
// debits cannot both pass the sufficiency check.
func (r *PostgresRepository) DebitWalletBalance(ctx context.Context, walletID uuid.UUID, amount int64) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin debit transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var balance int64
	err = tx.QueryRow(ctx, `SELECT balance FROM wallets WHERE id = $1 FOR UPDATE`, walletID).Scan(&balance)
	if err != nil {
		if err == pgx.ErrNoRows {
			return ErrWalletNotFound
		}
		return fmt.Errorf("failed to lock wallet row: %w", err)
	}

	if balance < amount {
		return ErrInsufficientFunds
	}

	_, err = tx.Exec(ctx, `UPDATE wallets SET balance = balance - $1, updated_at = NOW() WHERE id = $2`, amount, walletID)
	if err != nil {
		return fmt.Errorf("failed to debit wallet: %w", err)
	}

	return tx.Commit(ctx)
}

// CreateWalletTransaction records a wallet balance movement.
func (r *PostgresRepository) CreateWalletTransaction(ctx context.Context, wt *domain.WalletTransaction) error {
	query := `
		INSERT INTO wallet_transactions (id, wallet_id, user_id, type, amount, status, description, reference_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.Exec(ctx, query,
		wt.ID,
		wt.WalletID,
		wt.UserID,
		wt.Type,
		wt.Amount,
		wt.Status,
		wt.Description,
		wt.ReferenceID,
	)
	if err != nil {
		return fmt.Errorf("failed to create wallet transaction: %w", err)
	}
	return nil
}

// UpdateWalletTransactionStatusByReference transitions the wallet transaction
// created for a given ledger reference and type. Returns false when no such
// record exists, which callers treat as an already-settled or unknown movement.
func (r *PostgresRepository) UpdateWalletTransactionStatusByReference(ctx context.Context, referenceID uuid.UUID, txType, status string) (bool, error) {
	query := `
		UPDATE wallet_transactions
		SET status = $1, updated_at = NOW()
		WHERE reference_id = $2 AND type = $3 AND status = $4
	`
	tag, err := r.db.Exec(ctx, query, status, referenceID, txType, domain.TransactionStatusPending)
	if err != nil {
		return false, fmt.Errorf("failed to update wallet transaction status: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// FindWalletTransactionsByUserID lists a user's wallet movements, newest first.
func (r *PostgresRepository) FindWalletTransactionsByUserID(ctx context.Context, userID uuid.UUID) ([]domain.WalletTransaction, error) {
	query := `
		SELECT id, wallet_id, user_id, type, amount, status, description, reference_id, created_at, updated_at
		FROM wallet_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT 100
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query wallet transactions: %w", err)
	}
	defer rows.Close()

	var movements []domain.WalletTransaction
	for rows.Next() {
		var wt domain.WalletTransaction
		if err := rows.Scan(
			&wt.ID,
			&wt.WalletID,
			&wt.UserID,
			&wt.Type,
			&wt.Amount,
			&wt.Status,
			&wt.Description,
			&wt.ReferenceID,
			&wt.CreatedAt,
			&wt.UpdatedAt,
		); err != nil {
			return nil, err
		}
		movements = append(movements, wt)
	}
	return movements, rows.Err()
}
