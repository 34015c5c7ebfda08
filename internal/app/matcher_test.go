package app

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/proxynest/payment-service/internal/domain"
)

func TestMatchByCustomerMapping(t *testing.T) {
	repo := newPipelineRepoStub()
	svc := newTestService(repo, &providerStub{})

	userID := uuid.New()
	tx := repo.addPendingTransaction(userID, domain.TransactionTypeDeposit, 7500, "")
	repo.mappings["customer:cust-77"] = &domain.VirtualAccountMapping{
		Key:           "customer:cust-77",
		TransactionID: tx.ID,
		UserID:        userID,
	}

	payload := successPayload("collector-ref-x", 7500)
	payload.Customer.CustomerID = "cust-77"

	match, err := svc.MatchTransaction(context.Background(), payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if match.Strategy != MatchStrategyCustomerMapping {
		t.Fatalf("expected strategy %q, got %q", MatchStrategyCustomerMapping, match.Strategy)
	}
	if match.Transaction.ID != tx.ID {
		t.Fatalf("expected transaction %s, got %s", tx.ID, match.Transaction.ID)
	}
}

func TestMappingWithAmountMismatchIsSkipped(t *testing.T) {
	repo := newPipelineRepoStub()
	svc := newTestService(repo, &providerStub{})

	userID := uuid.New()
	stale := repo.addPendingTransaction(userID, domain.TransactionTypeDeposit, 2000, "")
	repo.mappings["customer:cust-1"] = &domain.VirtualAccountMapping{
		Key:           "customer:cust-1",
		TransactionID: stale.ID,
		UserID:        userID,
	}
	// A different pending transaction carries the actual paid amount.
	fresh := repo.addPendingTransaction(uuid.New(), domain.TransactionTypeDeposit, 9000, "")

	payload := successPayload("nope", 9000)
	payload.Customer.CustomerID = "cust-1"

	match, err := svc.MatchTransaction(context.Background(), payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if match.Transaction.ID != fresh.ID {
		t.Fatalf("expected amount fallback to pick %s, got %s", fresh.ID, match.Transaction.ID)
	}
	if match.Strategy != MatchStrategyAmountFallback {
		t.Fatalf("expected strategy %q, got %q", MatchStrategyAmountFallback, match.Strategy)
	}
}

func TestMatchByDirectTransactionID(t *testing.T) {
	repo := newPipelineRepoStub()
	svc := newTestService(repo, &providerStub{})

	tx := repo.addPendingTransaction(uuid.New(), domain.TransactionTypeDeposit, 3000, "")

	payload := successPayload(tx.ID.String(), 3000)
	match, err := svc.MatchTransaction(context.Background(), payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if match.Strategy != MatchStrategyDirectID {
		t.Fatalf("expected strategy %q, got %q", MatchStrategyDirectID, match.Strategy)
	}
}

func TestMatchByReverseAccountLookup(t *testing.T) {
	repo := newPipelineRepoStub()
	svc := newTestService(repo, &providerStub{})

	userID := uuid.New()
	tx := repo.addPendingTransaction(userID, domain.TransactionTypeDeposit, 4500, "")
	repo.accounts["9012345678"] = userID

	// No identifiers and no amount; only the receiver account number is left,
	// so every earlier strategy including the amount fallback is skipped.
	payload := &domain.WebhookPayload{TransactionStatus: "successful"}
	payload.Receiver.AccountNumber = " 9012 345 678 "

	// Normalization strips spaces before lookup.
	if got := payload.NormalizedAccountNumber(); got != "9012345678" {
		t.Fatalf("unexpected normalization: %q", got)
	}

	match, err := svc.MatchTransaction(context.Background(), payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if match.Transaction.ID != tx.ID {
		t.Fatalf("expected transaction %s, got %s", tx.ID, match.Transaction.ID)
	}
	if match.Strategy != MatchStrategyReverseAccount {
		t.Fatalf("expected strategy %q, got %q", MatchStrategyReverseAccount, match.Strategy)
	}
}

func TestMatchHigherConfidenceStrategyWins(t *testing.T) {
	repo := newPipelineRepoStub()
	svc := newTestService(repo, &providerStub{})

	userID := uuid.New()
	mapped := repo.addPendingTransaction(userID, domain.TransactionTypeDeposit, 6000, "")
	repo.mappings["customer:cust-9"] = &domain.VirtualAccountMapping{
		Key:           "customer:cust-9",
		TransactionID: mapped.ID,
		UserID:        userID,
	}
	// Another pending transaction with the same amount would also satisfy the
	// amount fallback, but the mapping strategy must win.
	repo.addPendingTransaction(uuid.New(), domain.TransactionTypeDeposit, 6000, "")

	payload := successPayload("whatever", 6000)
	payload.Customer.CustomerID = "cust-9"

	match, err := svc.MatchTransaction(context.Background(), payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if match.Transaction.ID != mapped.ID {
		t.Fatalf("expected mapped transaction %s, got %s", mapped.ID, match.Transaction.ID)
	}
	if match.Strategy != MatchStrategyCustomerMapping {
		t.Fatalf("expected strategy %q, got %q", MatchStrategyCustomerMapping, match.Strategy)
	}
}

func TestMatchNoCandidates(t *testing.T) {
	repo := newPipelineRepoStub()
	svc := newTestService(repo, &providerStub{})

	_, err := svc.MatchTransaction(context.Background(), successPayload("unknown", 1234))
	if err != ErrNoMatch {
		t.Fatalf("expected ErrNoMatch, got %v", err)
	}
}
