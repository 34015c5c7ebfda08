/**
 * @description
 * This file contains the transaction matcher: the ordered cascade of
 * strategies that correlates an inbound payment webhook with a pending
 * ledger transaction. Strategies run in fixed order of decreasing
 * confidence; the first hit wins and later strategies never run.
 *
 * @dependencies
 * - context, errors, log: Standard Go libraries.
 * - internal/domain, internal/store: For domain models and data access.
 */

package app

import (
	"context"
	"errors"
	"log"

	"github.com/google/uuid"
	"github.com/proxynest/payment-service/internal/domain"
	"github.com/proxynest/payment-service/internal/store"
)

// ErrNoMatch is returned when no strategy can correlate the webhook with a
// pending transaction.
var ErrNoMatch = errors.New("no matching transaction found")

// Match strategy names, recorded in transaction history for auditability.
const (
	MatchStrategyCustomerMapping = "customer_id_mapping"
	MatchStrategyAccountMapping  = "account_number_mapping"
	MatchStrategyProviderRef     = "provider_reference"
	MatchStrategyDirectID        = "direct_transaction_id"
	MatchStrategyCustomerAsRef   = "customer_id_as_reference"
	MatchStrategyAmountFallback  = "amount_fallback"
	MatchStrategyReverseAccount  = "reverse_account_lookup"
)

// MatchResult is a successful correlation: the transaction plus the name of
// the strategy that found it.
type MatchResult struct {
	Transaction *domain.LedgerTransaction
	Strategy    string
}

// MatchTransaction runs the strategy cascade against a webhook payload.
func (s *Service) MatchTransaction(ctx context.Context, payload *domain.WebhookPayload) (*MatchResult, error) {
	strategies := []struct {
		name string
		fn   func(context.Context, *domain.WebhookPayload) (*domain.LedgerTransaction, error)
	}{
		{MatchStrategyCustomerMapping, s.matchByCustomerMapping},
		{MatchStrategyAccountMapping, s.matchByAccountMapping},
		{MatchStrategyProviderRef, s.matchByProviderReference},
		{MatchStrategyDirectID, s.matchByDirectID},
		{MatchStrategyCustomerAsRef, s.matchByCustomerAsReference},
		{MatchStrategyAmountFallback, s.matchByAmount},
		{MatchStrategyReverseAccount, s.matchByReverseAccountLookup},
	}

	for _, strategy := range strategies {
		tx, err := strategy.fn(ctx, payload)
		if err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, err
		}
		if tx == nil {
			continue
		}
		log.Printf("level=info component=matcher msg=\"webhook matched\" strategy=%s transaction_id=%s", strategy.name, tx.ID)
		return &MatchResult{Transaction: tx, Strategy: strategy.name}, nil
	}

	return nil, ErrNoMatch
}

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrTransactionNotFound) ||
		errors.Is(err, store.ErrMappingNotFound) ||
		errors.Is(err, store.ErrAccountNotFound)
}

// mappingCandidate resolves a correlation mapping into its transaction,
// requiring PENDING status and, when the payload carries an amount, an exact
// rounded-amount match. Mappings are only hints; a stale one must not claim
// an unrelated payment.
func (s *Service) mappingCandidate(ctx context.Context, key string, payload *domain.WebhookPayload) (*domain.LedgerTransaction, error) {
	mapping, err := s.repo.FindVirtualAccountMappingByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	tx, err := s.repo.FindTransactionByID(ctx, mapping.TransactionID)
	if err != nil {
		return nil, err
	}
	if tx.Status != domain.TransactionStatusPending {
		return nil, store.ErrTransactionNotFound
	}
	if payload.HasAmount() && tx.Amount != payload.RoundedAmount() {
		return nil, store.ErrTransactionNotFound
	}
	return tx, nil
}

func (s *Service) matchByCustomerMapping(ctx context.Context, payload *domain.WebhookPayload) (*domain.LedgerTransaction, error) {
	if payload.Customer.CustomerID == "" {
		return nil, store.ErrMappingNotFound
	}
	return s.mappingCandidate(ctx, "customer:"+payload.Customer.CustomerID, payload)
}

func (s *Service) matchByAccountMapping(ctx context.Context, payload *domain.WebhookPayload) (*domain.LedgerTransaction, error) {
	account := payload.NormalizedAccountNumber()
	if account == "" {
		return nil, store.ErrMappingNotFound
	}
	return s.mappingCandidate(ctx, "account:"+account, payload)
}

// matchByProviderReference treats the collector's transaction id as our own
// reference string, which holds when the deposit was initiated through a
// flow that hands our reference to the collector.
func (s *Service) matchByProviderReference(ctx context.Context, payload *domain.WebhookPayload) (*domain.LedgerTransaction, error) {
	if payload.TransactionID == "" {
		return nil, store.ErrTransactionNotFound
	}
	tx, err := s.repo.FindTransactionByReference(ctx, payload.TransactionID)
	if err != nil {
		return nil, err
	}
	if tx.Status != domain.TransactionStatusPending {
		return nil, store.ErrTransactionNotFound
	}
	return tx, nil
}

// matchByDirectID treats the collector's transaction id as our ledger UUID.
func (s *Service) matchByDirectID(ctx context.Context, payload *domain.WebhookPayload) (*domain.LedgerTransaction, error) {
	id, err := uuid.Parse(payload.TransactionID)
	if err != nil {
		return nil, store.ErrTransactionNotFound
	}
	tx, err := s.repo.FindTransactionByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx.Status != domain.TransactionStatusPending {
		return nil, store.ErrTransactionNotFound
	}
	return tx, nil
}

// matchByCustomerAsReference treats the collector customer id as our
// reference string.
func (s *Service) matchByCustomerAsReference(ctx context.Context, payload *domain.WebhookPayload) (*domain.LedgerTransaction, error) {
	if payload.Customer.CustomerID == "" {
		return nil, store.ErrTransactionNotFound
	}
	tx, err := s.repo.FindTransactionByReference(ctx, payload.Customer.CustomerID)
	if err != nil {
		return nil, err
	}
	if tx.Status != domain.TransactionStatusPending {
		return nil, store.ErrTransactionNotFound
	}
	return tx, nil
}

// matchByAmount is the lowest-confidence strategy: the most recent pending
// transaction with the exact rounded amount. It only runs when every
// identifier-based strategy has failed.
func (s *Service) matchByAmount(ctx context.Context, payload *domain.WebhookPayload) (*domain.LedgerTransaction, error) {
	if !payload.HasAmount() {
		return nil, store.ErrTransactionNotFound
	}
	return s.repo.FindLatestPendingTransactionByAmount(ctx, payload.RoundedAmount())
}

// matchByReverseAccountLookup resolves the receiver account number to its
// owning user and takes that user's latest pending transaction.
func (s *Service) matchByReverseAccountLookup(ctx context.Context, payload *domain.WebhookPayload) (*domain.LedgerTransaction, error) {
	account := payload.NormalizedAccountNumber()
	if account == "" {
		return nil, store.ErrAccountNotFound
	}
	userID, err := s.repo.FindUserIDByAccountNumber(ctx, account)
	if err != nil {
		return nil, err
	}
	var amount *int64
	if payload.HasAmount() {
		rounded := payload.RoundedAmount()
		amount = &rounded
	}
	return s.repo.FindLatestPendingTransactionForUser(ctx, userID, amount)
}
