package app

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/proxynest/payment-service/internal/domain"
	"github.com/proxynest/payment-service/internal/store"
)

func TestDebitWalletInsufficientFunds(t *testing.T) {
	repo := newPipelineRepoStub()
	svc := newTestService(repo, &providerStub{})
	userID := uuid.New()

	if err := svc.creditWallet(context.Background(), userID, 500, uuid.New(), "seed"); err != nil {
		t.Fatalf("seed credit failed: %v", err)
	}

	err := svc.debitWallet(context.Background(), userID, 600, uuid.New(), "too much")
	if !errors.Is(err, store.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if got := repo.walletBalance(userID); got != 500 {
		t.Fatalf("failed debit must not change the balance, got %d", got)
	}
}

func TestDebitWalletRecordsMovement(t *testing.T) {
	repo := newPipelineRepoStub()
	svc := newTestService(repo, &providerStub{})
	userID := uuid.New()
	referenceID := uuid.New()

	if err := svc.creditWallet(context.Background(), userID, 2000, uuid.New(), "seed"); err != nil {
		t.Fatalf("seed credit failed: %v", err)
	}
	if err := svc.debitWallet(context.Background(), userID, 1500, referenceID, "purchase"); err != nil {
		t.Fatalf("debit failed: %v", err)
	}
	if got := repo.walletBalance(userID); got != 500 {
		t.Fatalf("expected balance 500, got %d", got)
	}

	var found *domain.WalletTransaction
	for i := range repo.walletTxs {
		if repo.walletTxs[i].ReferenceID == referenceID && repo.walletTxs[i].Type == domain.WalletTransactionTypeDebit {
			found = &repo.walletTxs[i]
		}
	}
	if found == nil {
		t.Fatal("expected a debit wallet transaction")
	}
	if found.Status != domain.TransactionStatusSuccess {
		t.Fatalf("expected SUCCESS movement, got %s", found.Status)
	}
}

func TestRefundRestoresBalanceAndWritesHistory(t *testing.T) {
	repo := newPipelineRepoStub()
	svc := newTestService(repo, &providerStub{})
	userID := uuid.New()
	referenceID := uuid.New()

	if err := svc.creditWallet(context.Background(), userID, 8000, uuid.New(), "seed"); err != nil {
		t.Fatalf("seed credit failed: %v", err)
	}
	if err := svc.debitWallet(context.Background(), userID, 8000, referenceID, "purchase"); err != nil {
		t.Fatalf("debit failed: %v", err)
	}
	if err := svc.refundWallet(context.Background(), userID, 8000, referenceID, "order failed"); err != nil {
		t.Fatalf("refund failed: %v", err)
	}

	if got := repo.walletBalance(userID); got != 8000 {
		t.Fatalf("expected balance restored to 8000, got %d", got)
	}
	if !repo.hasHistory("Wallet refunded") {
		t.Fatal("expected refund history entry")
	}
}

func TestRefundCreatesCompensatingLedgerTransaction(t *testing.T) {
	repo := newPipelineRepoStub()
	svc := newTestService(repo, &providerStub{})
	userID := uuid.New()
	referenceID := uuid.New()

	if err := svc.creditWallet(context.Background(), userID, 6000, uuid.New(), "seed"); err != nil {
		t.Fatalf("seed credit failed: %v", err)
	}
	if err := svc.debitWallet(context.Background(), userID, 6000, referenceID, "purchase"); err != nil {
		t.Fatalf("debit failed: %v", err)
	}
	if err := svc.refundWallet(context.Background(), userID, 6000, referenceID, "order failed"); err != nil {
		t.Fatalf("refund failed: %v", err)
	}

	// The returning money must be visible in the ledger, not just the wallet
	// movement log.
	var refundTx *domain.LedgerTransaction
	for _, tx := range repo.transactions {
		if tx.Reference != nil && strings.HasPrefix(*tx.Reference, "REFUND-") {
			refundTx = tx
		}
	}
	if refundTx == nil {
		t.Fatal("expected a REFUND- ledger transaction")
	}
	if refundTx.Type != domain.TransactionTypeDeposit {
		t.Fatalf("expected deposit-typed refund, got %s", refundTx.Type)
	}
	if refundTx.Amount != 6000 {
		t.Fatalf("expected refund amount 6000, got %d", refundTx.Amount)
	}
	if refundTx.Status != domain.TransactionStatusSuccess {
		t.Fatalf("expected refund transaction SUCCESS, got %s", refundTx.Status)
	}

	var movement *domain.WalletTransaction
	for i := range repo.walletTxs {
		if repo.walletTxs[i].Type == domain.WalletTransactionTypeRefund {
			movement = &repo.walletTxs[i]
		}
	}
	if movement == nil {
		t.Fatal("expected a refund wallet transaction")
	}
	if movement.ReferenceID != refundTx.ID {
		t.Fatal("expected the wallet movement to reference the refund transaction")
	}
	if movement.Status != domain.TransactionStatusSuccess {
		t.Fatalf("expected SUCCESS movement, got %s", movement.Status)
	}
}
