/**
 * @description
 * This file contains the webhook finalizer: the idempotent pipeline that
 * takes an authenticated payment notification, matches it to a pending
 * transaction, claims finalization exactly once, validates the paid amount,
 * and dispatches the side effect (wallet credit or provider order).
 *
 * Key properties:
 * - The finalization claim is the sole serialization point. All external
 *   side effects happen strictly after a successful claim, so N concurrent
 *   deliveries of the same payment produce exactly one credit or order.
 * - A post-claim failure is recorded on the transaction and NOT retried
 *   automatically; the claim stays consumed and an operator follows up.
 *
 * @dependencies
 * - context, fmt, log: Standard Go libraries.
 * - internal/domain: For domain models.
 * - pkg/proxyclient, pkg/rabbitmq: For order execution and events.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/proxynest/payment-service/internal/domain"
	"github.com/proxynest/payment-service/pkg/proxyclient"
	"github.com/proxynest/payment-service/pkg/rabbitmq"
)

// ProcessWebhook runs the full confirmation pipeline for an authenticated
// webhook payload. It never returns an error for business outcomes; every
// outcome maps to a WebhookResult so the collector receives a 200 and stops
// redelivering.
func (s *Service) ProcessWebhook(ctx context.Context, payload *domain.WebhookPayload) (*domain.WebhookResult, error) {
	if !payload.IsSuccessful() {
		log.Printf("level=info component=finalizer msg=\"ignoring non-success webhook\" status=%s provider_ref=%s", payload.TransactionStatus, payload.TransactionID)
		return &domain.WebhookResult{Status: domain.WebhookStatusIgnored, Message: "non-success status"}, nil
	}

	match, err := s.MatchTransaction(ctx, payload)
	if err != nil {
		if errors.Is(err, ErrNoMatch) {
			log.Printf("level=warn component=finalizer msg=\"webhook unmatched\" provider_ref=%s amount=%f customer_id=%s", payload.TransactionID, payload.AmountPaid, payload.Customer.CustomerID)
			s.publishEvent(ctx, rabbitmq.RoutingKeyPaymentUnmatched, rabbitmq.PaymentEvent{
				Type:   "unmatched_payment",
				Amount: payload.RoundedAmount(),
				Detail: payload.TransactionID,
			})
			return &domain.WebhookResult{Status: domain.WebhookStatusUnmatched, Message: "no matching transaction"}, nil
		}
		return nil, fmt.Errorf("matcher failed: %w", err)
	}
	tx := match.Transaction

	claimed, err := s.repo.ClaimTransactionFinalization(ctx, tx.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to claim finalization: %w", err)
	}
	if !claimed {
		log.Printf("level=info component=finalizer msg=\"duplicate delivery\" transaction_id=%s strategy=%s", tx.ID, match.Strategy)
		return &domain.WebhookResult{Status: domain.WebhookStatusAlreadyProcessed, TransactionID: tx.ID.String()}, nil
	}

	// Claim is ours. From here on every failure is recorded, never retried.
	if payload.TransactionID != "" {
		if err := s.repo.SetTransactionProviderReference(ctx, tx.ID, payload.TransactionID); err != nil {
			log.Printf("level=warn component=finalizer msg=\"failed to record provider reference\" transaction_id=%s err=%v", tx.ID, err)
		}
	}
	if err := s.repo.AppendTransactionHistory(ctx, tx.ID, tx.UserID, "Payment confirmed", map[string]interface{}{
		"strategy":    match.Strategy,
		"amount_paid": payload.AmountPaid,
	}); err != nil {
		log.Printf("level=warn component=finalizer msg=\"failed to append history\" transaction_id=%s err=%v", tx.ID, err)
	}
	s.publishEvent(ctx, rabbitmq.RoutingKeyPaymentConfirmed, rabbitmq.PaymentEvent{
		TransactionID: tx.ID,
		UserID:        tx.UserID,
		Type:          tx.Type,
		Amount:        tx.Amount,
		Detail:        match.Strategy,
	})

	switch tx.Type {
	case domain.TransactionTypeDeposit:
		return s.finalizeDeposit(ctx, tx, payload)
	case domain.TransactionTypePurchase:
		return s.finalizePurchase(ctx, tx, payload)
	default:
		msg := fmt.Sprintf("unexpected transaction type %s", tx.Type)
		s.recordPostClaimFailure(ctx, tx, msg)
		return &domain.WebhookResult{Status: domain.WebhookStatusFulfillmentFailed, TransactionID: tx.ID.String(), Message: msg}, nil
	}
}

// validatePaidAmount checks the webhook amount against the transaction's
// expected naira amount within tolerance. A mismatch flags the transaction
// for manual investigation; no side effect runs.
func (s *Service) validatePaidAmount(ctx context.Context, tx *domain.LedgerTransaction, payload *domain.WebhookPayload) bool {
	if !payload.HasAmount() {
		// Collector omitted the amount; trust the match.
		return true
	}
	paid := payload.RoundedAmount()
	diff := tx.Amount - paid
	if diff < 0 {
		diff = -diff
	}
	if diff <= s.priceTolerance(tx.Amount) {
		return true
	}

	details := map[string]interface{}{
		"expected_amount": tx.Amount,
		"paid_amount":     paid,
		"tolerance":       s.priceTolerance(tx.Amount),
		"provider_ref":    payload.TransactionID,
	}
	if err := s.repo.FlagTransactionForInvestigation(ctx, tx.ID, details); err != nil {
		log.Printf("level=error component=finalizer msg=\"failed to flag investigation\" transaction_id=%s err=%v", tx.ID, err)
	}
	log.Printf("level=warn component=finalizer msg=\"amount mismatch flagged\" transaction_id=%s expected=%d paid=%d", tx.ID, tx.Amount, paid)
	return false
}

// validatePurchasePrice reconciles the USD cost staged at initiation against
// the naira amount the user agreed to pay, at the current exchange rate. Time
// passes between initiation and the bank transfer; if the rate drifted far
// enough that the conversion no longer covers the provider cost, the order is
// held for manual review instead of being placed.
func (s *Service) validatePurchasePrice(ctx context.Context, tx *domain.LedgerTransaction, pending *domain.PendingPurchase) bool {
	if pending.ExpectedPriceLocal == nil {
		return true
	}
	expected := *pending.ExpectedPriceLocal
	converted := s.rates.ConvertUSDToNGN(ctx, pending.PricePaidUSD)
	diff := converted - expected
	if diff < 0 {
		diff = -diff
	}
	if diff <= s.priceTolerance(expected) {
		return true
	}

	details := map[string]interface{}{
		"expected_price_local":  expected,
		"converted_price_local": converted,
		"price_usd":             pending.PricePaidUSD,
		"tolerance":             s.priceTolerance(expected),
	}
	if err := s.repo.FlagTransactionForInvestigation(ctx, tx.ID, details); err != nil {
		log.Printf("level=error component=finalizer msg=\"failed to flag investigation\" transaction_id=%s err=%v", tx.ID, err)
	}
	log.Printf("level=warn component=finalizer msg=\"purchase price drift flagged\" transaction_id=%s expected=%d converted=%d price_usd=%f", tx.ID, expected, converted, pending.PricePaidUSD)
	return false
}

func (s *Service) finalizeDeposit(ctx context.Context, tx *domain.LedgerTransaction, payload *domain.WebhookPayload) (*domain.WebhookResult, error) {
	if !s.validatePaidAmount(ctx, tx, payload) {
		return &domain.WebhookResult{Status: domain.WebhookStatusInvestigationRequired, TransactionID: tx.ID.String()}, nil
	}

	// Credit what was actually paid, not what was promised.
	amount := tx.Amount
	if payload.HasAmount() {
		amount = payload.RoundedAmount()
	}

	if err := s.creditWallet(ctx, tx.UserID, amount, tx.ID, "Wallet deposit"); err != nil {
		s.recordPostClaimFailure(ctx, tx, fmt.Sprintf("wallet credit failed: %v", err))
		return &domain.WebhookResult{Status: domain.WebhookStatusFulfillmentFailed, TransactionID: tx.ID.String(), Message: "credit failed"}, nil
	}

	s.settleTransaction(ctx, tx, domain.TransactionStatusSuccess, "Deposit credited to wallet")
	return &domain.WebhookResult{Status: domain.WebhookStatusProcessed, TransactionID: tx.ID.String()}, nil
}

func (s *Service) finalizePurchase(ctx context.Context, tx *domain.LedgerTransaction, payload *domain.WebhookPayload) (*domain.WebhookResult, error) {
	if !s.validatePaidAmount(ctx, tx, payload) {
		return &domain.WebhookResult{Status: domain.WebhookStatusInvestigationRequired, TransactionID: tx.ID.String()}, nil
	}

	pending, err := s.repo.FindPendingPurchase(ctx, tx.ID)
	if err != nil {
		s.recordPostClaimFailure(ctx, tx, fmt.Sprintf("pending purchase lookup failed: %v", err))
		return &domain.WebhookResult{Status: domain.WebhookStatusFulfillmentFailed, TransactionID: tx.ID.String(), Message: "no pending purchase"}, nil
	}

	if !s.validatePurchasePrice(ctx, tx, pending) {
		return &domain.WebhookResult{Status: domain.WebhookStatusInvestigationRequired, TransactionID: tx.ID.String()}, nil
	}

	if _, err := s.executePendingPurchase(ctx, tx, pending, false); err != nil {
		return &domain.WebhookResult{Status: domain.WebhookStatusFulfillmentFailed, TransactionID: tx.ID.String(), Message: "order execution failed"}, nil
	}

	return &domain.WebhookResult{Status: domain.WebhookStatusProcessed, TransactionID: tx.ID.String()}, nil
}

// executePendingPurchase places the provider order for a claimed purchase
// transaction. Callers must hold the finalization claim. walletFunded
// controls compensation: a wallet-funded failure refunds the debit, while a
// transfer-funded failure is flagged for manual completion.
func (s *Service) executePendingPurchase(ctx context.Context, tx *domain.LedgerTransaction, pending *domain.PendingPurchase, walletFunded bool) (*domain.Purchase, error) {
	payload := proxyclient.OrderPayload{
		PlanID:     pending.PlanID,
		Quantity:   pending.Options.Quantity,
		AutoExtend: pending.Options.AutoExtend,
		Traffic:    pending.Options.Traffic,
		Country:    pending.Options.Country,
		PackageID:  pending.Options.PackageID,
		ISPID:      pending.Options.ISPID,
	}
	if pending.Options.Period != nil {
		payload.Period = &proxyclient.Period{Unit: pending.Options.Period.Unit, Value: pending.Options.Period.Value}
	}

	result, err := s.provider.ExecuteOrder(ctx, pending.ServiceID, payload)
	if err != nil {
		log.Printf("level=error component=finalizer msg=\"provider order failed\" transaction_id=%s service_id=%s err=%v", tx.ID, pending.ServiceID, err)
		s.compensateFailedPurchase(ctx, tx, pending, walletFunded, err)
		return nil, err
	}

	purchase := &domain.Purchase{
		ID:            uuid.New(),
		UserID:        tx.UserID,
		TransactionID: tx.ID,
		ServiceID:     pending.ServiceID,
		PlanID:        pending.PlanID,
		PricePaidUSD:  pending.PricePaidUSD,
		ProviderOrder: result.OrderID,
		Status:        result.Status,
		Details:       result.Details,
	}
	if err := s.repo.CreatePurchase(ctx, purchase); err != nil {
		// Order is live at the provider; never roll it back. Record for manual
		// reconciliation instead.
		s.recordPostClaimFailure(ctx, tx, fmt.Sprintf("purchase record failed after order %s: %v", result.OrderID, err))
		return purchase, nil
	}

	s.settleTransaction(ctx, tx, domain.TransactionStatusSuccess, "Provider order executed")
	if err := s.repo.DeletePendingPurchase(ctx, tx.ID); err != nil {
		log.Printf("level=warn component=finalizer msg=\"failed to delete pending purchase\" transaction_id=%s err=%v", tx.ID, err)
	}

	s.publishEvent(ctx, rabbitmq.RoutingKeyPurchaseCompleted, rabbitmq.PaymentEvent{
		TransactionID: tx.ID,
		UserID:        tx.UserID,
		Type:          domain.TransactionTypePurchase,
		Amount:        tx.Amount,
		Detail:        result.OrderID,
	})
	log.Printf("level=info component=finalizer msg=\"purchase fulfilled\" transaction_id=%s order_id=%s service_id=%s", tx.ID, result.OrderID, pending.ServiceID)
	return purchase, nil
}

// compensateFailedPurchase handles a provider order failure after the money
// side has settled. Wallet-funded purchases are refunded; transfer-funded
// ones keep the paid funds and are flagged for manual completion.
func (s *Service) compensateFailedPurchase(ctx context.Context, tx *domain.LedgerTransaction, pending *domain.PendingPurchase, walletFunded bool, cause error) {
	reason := fmt.Sprintf("provider order failed: %v", cause)

	if walletFunded {
		if err := s.refundWallet(ctx, tx.UserID, tx.Amount, tx.ID, "proxy order could not be placed"); err != nil {
			// Refund failed on top of the order failure; this needs a human.
			s.recordPostClaimFailure(ctx, tx, fmt.Sprintf("%s; refund also failed: %v", reason, err))
			return
		}
		s.settleTransaction(ctx, tx, domain.TransactionStatusFailed, "Order failed, wallet refunded")
		if err := s.repo.DeletePendingPurchase(ctx, tx.ID); err != nil {
			log.Printf("level=warn component=finalizer msg=\"failed to delete pending purchase\" transaction_id=%s err=%v", tx.ID, err)
		}
	} else {
		// Money already collected by bank transfer. Keep the transaction open
		// for manual fulfillment rather than failing it.
		if err := s.repo.MarkPurchaseCompletionFailed(ctx, tx.ID, reason); err != nil {
			log.Printf("level=error component=finalizer msg=\"failed to mark completion failure\" transaction_id=%s err=%v", tx.ID, err)
		}
		if err := s.repo.AppendTransactionHistory(ctx, tx.ID, tx.UserID, "Paid but order failed, manual completion required", map[string]interface{}{
			"reason": reason,
		}); err != nil {
			log.Printf("level=warn component=finalizer msg=\"failed to append history\" transaction_id=%s err=%v", tx.ID, err)
		}
	}

	s.publishEvent(ctx, rabbitmq.RoutingKeyPurchaseFailed, rabbitmq.PaymentEvent{
		TransactionID: tx.ID,
		UserID:        tx.UserID,
		Type:          domain.TransactionTypePurchase,
		Amount:        tx.Amount,
		Detail:        reason,
	})
}

// settleTransaction moves the transaction to its terminal status, cleans up
// correlation mappings, and appends the closing history entry.
func (s *Service) settleTransaction(ctx context.Context, tx *domain.LedgerTransaction, status, note string) {
	if err := s.repo.UpdateTransactionStatus(ctx, tx.ID, status); err != nil {
		log.Printf("level=error component=finalizer msg=\"failed to update status\" transaction_id=%s status=%s err=%v", tx.ID, status, err)
	}
	if err := s.repo.DeleteVirtualAccountMappingsForTransaction(ctx, tx.ID); err != nil {
		log.Printf("level=warn component=finalizer msg=\"failed to delete mappings\" transaction_id=%s err=%v", tx.ID, err)
	}
	if err := s.repo.AppendTransactionHistory(ctx, tx.ID, tx.UserID, note, nil); err != nil {
		log.Printf("level=warn component=finalizer msg=\"failed to append history\" transaction_id=%s err=%v", tx.ID, err)
	}
}

// recordPostClaimFailure persists a failure that happened after the
// finalization claim was consumed. The claim is deliberately not released;
// automatic retries against external systems could double-spend.
func (s *Service) recordPostClaimFailure(ctx context.Context, tx *domain.LedgerTransaction, message string) {
	log.Printf("level=error component=finalizer msg=\"post-claim failure\" transaction_id=%s detail=%q", tx.ID, message)
	if err := s.repo.RecordFinalizeError(ctx, tx.ID, message); err != nil {
		log.Printf("level=error component=finalizer msg=\"failed to record finalize error\" transaction_id=%s err=%v", tx.ID, err)
	}
	if err := s.repo.AppendTransactionHistory(ctx, tx.ID, tx.UserID, "Finalization failed", map[string]interface{}{
		"error": message,
	}); err != nil {
		log.Printf("level=warn component=finalizer msg=\"failed to append history\" transaction_id=%s err=%v", tx.ID, err)
	}
}
