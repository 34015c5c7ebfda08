/**
 * @description
 * This file contains the wallet balance operations: credit, debit, and
 * refund. Every operation records a wallet transaction in PENDING before the
 * balance is touched, then transitions it to SUCCESS or FAILED, so a crash
 * mid-operation always leaves an auditable trail.
 *
 * @dependencies
 * - context, fmt, log: Standard Go libraries.
 * - github.com/google/uuid: For UUID generation.
 * - internal/domain: For domain models.
 * - pkg/rabbitmq: For wallet event publishing.
 */

package app

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/proxynest/payment-service/internal/domain"
	"github.com/proxynest/payment-service/pkg/rabbitmq"
)

// creditWallet adds funds to a user's wallet, referencing the ledger
// transaction that drove the credit.
func (s *Service) creditWallet(ctx context.Context, userID uuid.UUID, amount int64, referenceID uuid.UUID, description string) error {
	wallet, err := s.repo.FindOrCreateWallet(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load wallet: %w", err)
	}

	wt := &domain.WalletTransaction{
		ID:          uuid.New(),
		WalletID:    wallet.ID,
		UserID:      userID,
		Type:        domain.WalletTransactionTypeCredit,
		Amount:      amount,
		Status:      domain.TransactionStatusPending,
		Description: description,
		ReferenceID: referenceID,
	}
	if err := s.repo.CreateWalletTransaction(ctx, wt); err != nil {
		return fmt.Errorf("failed to record wallet credit: %w", err)
	}

	if err := s.repo.CreditWalletBalance(ctx, wallet.ID, amount); err != nil {
		if _, markErr := s.repo.UpdateWalletTransactionStatusByReference(ctx, referenceID, domain.WalletTransactionTypeCredit, domain.TransactionStatusFailed); markErr != nil {
			log.Printf("level=error component=wallet msg=\"failed to mark credit failed\" reference_id=%s err=%v", referenceID, markErr)
		}
		return fmt.Errorf("failed to credit wallet: %w", err)
	}

	if _, err := s.repo.UpdateWalletTransactionStatusByReference(ctx, referenceID, domain.WalletTransactionTypeCredit, domain.TransactionStatusSuccess); err != nil {
		log.Printf("level=warn component=wallet msg=\"failed to mark credit success\" reference_id=%s err=%v", referenceID, err)
	}

	s.publishEvent(ctx, rabbitmq.RoutingKeyWalletCredited, rabbitmq.PaymentEvent{
		TransactionID: referenceID,
		UserID:        userID,
		Type:          domain.WalletTransactionTypeCredit,
		Amount:        amount,
	})
	return nil
}

// debitWallet removes funds from a user's wallet, failing with
// ErrInsufficientFunds when the balance cannot cover the amount.
func (s *Service) debitWallet(ctx context.Context, userID uuid.UUID, amount int64, referenceID uuid.UUID, description string) error {
	wallet, err := s.repo.FindOrCreateWallet(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load wallet: %w", err)
	}

	wt := &domain.WalletTransaction{
		ID:          uuid.New(),
		WalletID:    wallet.ID,
		UserID:      userID,
		Type:        domain.WalletTransactionTypeDebit,
		Amount:      amount,
		Status:      domain.TransactionStatusPending,
		Description: description,
		ReferenceID: referenceID,
	}
	if err := s.repo.CreateWalletTransaction(ctx, wt); err != nil {
		return fmt.Errorf("failed to record wallet debit: %w", err)
	}

	if err := s.repo.DebitWalletBalance(ctx, wallet.ID, amount); err != nil {
		if _, markErr := s.repo.UpdateWalletTransactionStatusByReference(ctx, referenceID, domain.WalletTransactionTypeDebit, domain.TransactionStatusFailed); markErr != nil {
			log.Printf("level=error component=wallet msg=\"failed to mark debit failed\" reference_id=%s err=%v", referenceID, markErr)
		}
		return err
	}

	if _, err := s.repo.UpdateWalletTransactionStatusByReference(ctx, referenceID, domain.WalletTransactionTypeDebit, domain.TransactionStatusSuccess); err != nil {
		log.Printf("level=warn component=wallet msg=\"failed to mark debit success\" reference_id=%s err=%v", referenceID, err)
	}

	s.publishEvent(ctx, rabbitmq.RoutingKeyWalletDebited, rabbitmq.PaymentEvent{
		TransactionID: referenceID,
		UserID:        userID,
		Type:          domain.WalletTransactionTypeDebit,
		Amount:        amount,
	})
	return nil
}

// refundWallet compensates a failed fulfillment by crediting the debited
// amount back. The money movement gets its own ledger transaction (a deposit
// with a REFUND- reference) so the ledger shows the funds returning, created
// PENDING before the balance is touched like every other movement.
func (s *Service) refundWallet(ctx context.Context, userID uuid.UUID, amount int64, referenceID uuid.UUID, reason string) error {
	wallet, err := s.repo.FindOrCreateWallet(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load wallet: %w", err)
	}

	reference := fmt.Sprintf("REFUND-%s", uuid.New().String()[:8])
	refundTx := &domain.LedgerTransaction{
		ID:        uuid.New(),
		UserID:    userID,
		Type:      domain.TransactionTypeDeposit,
		Amount:    amount,
		Status:    domain.TransactionStatusPending,
		Reference: &reference,
	}
	if err := s.repo.CreateTransaction(ctx, refundTx); err != nil {
		return fmt.Errorf("failed to record refund transaction: %w", err)
	}

	wt := &domain.WalletTransaction{
		ID:          uuid.New(),
		WalletID:    wallet.ID,
		UserID:      userID,
		Type:        domain.WalletTransactionTypeRefund,
		Amount:      amount,
		Status:      domain.TransactionStatusPending,
		Description: "Refund: " + reason,
		ReferenceID: refundTx.ID,
	}
	if err := s.repo.CreateWalletTransaction(ctx, wt); err != nil {
		return fmt.Errorf("failed to record refund: %w", err)
	}

	if err := s.repo.CreditWalletBalance(ctx, wallet.ID, amount); err != nil {
		if _, markErr := s.repo.UpdateWalletTransactionStatusByReference(ctx, refundTx.ID, domain.WalletTransactionTypeRefund, domain.TransactionStatusFailed); markErr != nil {
			log.Printf("level=error component=wallet msg=\"failed to mark refund failed\" refund_id=%s err=%v", refundTx.ID, markErr)
		}
		if markErr := s.repo.UpdateTransactionStatus(ctx, refundTx.ID, domain.TransactionStatusFailed); markErr != nil {
			log.Printf("level=error component=wallet msg=\"failed to mark refund transaction failed\" refund_id=%s err=%v", refundTx.ID, markErr)
		}
		return fmt.Errorf("failed to credit refund: %w", err)
	}

	if _, err := s.repo.UpdateWalletTransactionStatusByReference(ctx, refundTx.ID, domain.WalletTransactionTypeRefund, domain.TransactionStatusSuccess); err != nil {
		log.Printf("level=warn component=wallet msg=\"failed to mark refund success\" refund_id=%s err=%v", refundTx.ID, err)
	}
	if err := s.repo.UpdateTransactionStatus(ctx, refundTx.ID, domain.TransactionStatusSuccess); err != nil {
		log.Printf("level=warn component=wallet msg=\"failed to mark refund transaction success\" refund_id=%s err=%v", refundTx.ID, err)
	}

	if err := s.repo.AppendTransactionHistory(ctx, referenceID, userID, "Wallet refunded", map[string]interface{}{
		"amount":                amount,
		"reason":                reason,
		"refund_transaction_id": refundTx.ID.String(),
	}); err != nil {
		log.Printf("level=warn component=wallet msg=\"failed to append refund history\" transaction_id=%s err=%v", referenceID, err)
	}

	log.Printf("level=info component=wallet msg=\"wallet refunded\" user_id=%s transaction_id=%s refund_id=%s amount=%d", userID, referenceID, refundTx.ID, amount)
	return nil
}
