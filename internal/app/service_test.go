package app

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/proxynest/payment-service/internal/domain"
	"github.com/proxynest/payment-service/pkg/paymentpoint"
)

func TestWalletFundedPurchaseExecutesImmediately(t *testing.T) {
	repo := newPipelineRepoStub()
	provider := &providerStub{priceUSD: 5}
	svc := newTestService(repo, provider)

	userID := uuid.New()
	if err := svc.creditWallet(context.Background(), userID, 10000, uuid.New(), "seed"); err != nil {
		t.Fatalf("seed credit failed: %v", err)
	}

	result, err := svc.InitiatePurchase(context.Background(), userID, "", "", "residential", domain.PurchaseRequest{
		WalletFunded: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 5 USD at the 1600 test rate with no markup.
	if result.PriceLocal != 8000 {
		t.Fatalf("expected price 8000, got %d", result.PriceLocal)
	}
	if result.Purchase == nil || result.Purchase.ProviderOrder != "ord-123" {
		t.Fatalf("expected completed purchase, got %+v", result.Purchase)
	}
	if got := repo.walletBalance(userID); got != 2000 {
		t.Fatalf("expected balance 2000 after debit, got %d", got)
	}

	tx, _ := repo.FindTransactionByID(context.Background(), result.Transaction.ID)
	if tx.Status != domain.TransactionStatusSuccess {
		t.Fatalf("expected SUCCESS, got %s", tx.Status)
	}
	if _, ok := repo.pendings[tx.ID]; ok {
		t.Fatal("expected pending purchase to be deleted")
	}
}

func TestWalletFundedPurchaseRefundsOnProviderFailure(t *testing.T) {
	repo := newPipelineRepoStub()
	provider := &providerStub{priceUSD: 5, executeErr: errors.New("provider down")}
	svc := newTestService(repo, provider)

	userID := uuid.New()
	if err := svc.creditWallet(context.Background(), userID, 10000, uuid.New(), "seed"); err != nil {
		t.Fatalf("seed credit failed: %v", err)
	}

	_, err := svc.InitiatePurchase(context.Background(), userID, "", "", "residential", domain.PurchaseRequest{
		WalletFunded: true,
	})
	if err == nil {
		t.Fatal("expected provider failure to surface")
	}

	// Compensation must restore the debited amount in full.
	if got := repo.walletBalance(userID); got != 10000 {
		t.Fatalf("expected balance restored to 10000, got %d", got)
	}
	if !repo.hasHistory("Wallet refunded") {
		t.Fatal("expected refund history entry")
	}
}

func TestWalletFundedPurchaseInsufficientBalance(t *testing.T) {
	repo := newPipelineRepoStub()
	provider := &providerStub{priceUSD: 5}
	svc := newTestService(repo, provider)

	userID := uuid.New()
	if err := svc.creditWallet(context.Background(), userID, 1000, uuid.New(), "seed"); err != nil {
		t.Fatalf("seed credit failed: %v", err)
	}

	_, err := svc.InitiatePurchase(context.Background(), userID, "", "", "residential", domain.PurchaseRequest{
		WalletFunded: true,
	})
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if provider.executeCalls != 0 {
		t.Fatal("provider must not be called when the debit fails")
	}
	if got := repo.walletBalance(userID); got != 1000 {
		t.Fatalf("balance must be untouched, got %d", got)
	}
}

type provisionerStub struct {
	calls int
}

func (p *provisionerStub) CreateVirtualAccount(ctx context.Context, email, name string) (*paymentpoint.CreateVirtualAccountResponse, error) {
	p.calls++
	return &paymentpoint.CreateVirtualAccountResponse{
		CustomerID: "cust-new",
		BankAccount: []paymentpoint.VirtualAccountDetails{
			{AccountNumber: "8800112233", BankName: "Wema Bank"},
		},
	}, nil
}

func TestTransferFundedPurchaseStagesAndMaps(t *testing.T) {
	repo := newPipelineRepoStub()
	provider := &providerStub{priceUSD: 5}
	provisioner := &provisionerStub{}
	rates := NewRateService(repo, fixedRateFetcher{rate: 1600}, 0, 0)
	svc := NewService(repo, provider, provisioner, nil, rates, 100)

	userID := uuid.New()
	result, err := svc.InitiatePurchase(context.Background(), userID, "ade@example.com", "Ade Test", "residential", domain.PurchaseRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if provider.executeCalls != 0 {
		t.Fatal("transfer-funded purchase must not execute the order up front")
	}
	if result.Account == nil || result.Account.AccountNumber != "8800112233" {
		t.Fatalf("expected provisioned account in response, got %+v", result.Account)
	}
	if _, ok := repo.pendings[result.Transaction.ID]; !ok {
		t.Fatal("expected staged pending purchase")
	}
	if _, ok := repo.mappings["customer:cust-new"]; !ok {
		t.Fatal("expected customer correlation mapping")
	}
	if _, ok := repo.mappings["account:8800112233"]; !ok {
		t.Fatal("expected account correlation mapping")
	}

	// A second initiation reuses the stored account instead of provisioning.
	if _, err := svc.InitiateDeposit(context.Background(), userID, "", "", domain.DepositRequest{Amount: 4000}); err != nil {
		t.Fatalf("deposit after purchase failed: %v", err)
	}
	if provisioner.calls != 1 {
		t.Fatalf("expected a single provisioning call, got %d", provisioner.calls)
	}
}

func TestPurchaseStagesExpectedPrice(t *testing.T) {
	repo := newPipelineRepoStub()
	provider := &providerStub{priceUSD: 5}
	provisioner := &provisionerStub{}
	rates := NewRateService(repo, fixedRateFetcher{rate: 1600}, 0, 0)
	svc := NewService(repo, provider, provisioner, nil, rates, 100)

	// Without a client pin the quoted price is staged for reconciliation.
	result, err := svc.InitiatePurchase(context.Background(), uuid.New(), "", "", "residential", domain.PurchaseRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pending := repo.pendings[result.Transaction.ID]
	if pending.ExpectedPriceLocal == nil || *pending.ExpectedPriceLocal != 8000 {
		t.Fatalf("expected staged price 8000, got %v", pending.ExpectedPriceLocal)
	}

	// A pinned price overrides the fresh quote.
	pinned := int64(7900)
	result, err = svc.InitiatePurchase(context.Background(), uuid.New(), "", "", "residential", domain.PurchaseRequest{ExpectedPrice: &pinned})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pending = repo.pendings[result.Transaction.ID]
	if pending.ExpectedPriceLocal == nil || *pending.ExpectedPriceLocal != 7900 {
		t.Fatalf("expected pinned price 7900, got %v", pending.ExpectedPriceLocal)
	}
}

func TestInitiateDepositRejectsNonPositiveAmount(t *testing.T) {
	repo := newPipelineRepoStub()
	svc := newTestService(repo, &providerStub{})

	_, err := svc.InitiateDeposit(context.Background(), uuid.New(), "", "", domain.DepositRequest{Amount: 0})
	if !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestRequestWithdrawalDebitsWallet(t *testing.T) {
	repo := newPipelineRepoStub()
	svc := newTestService(repo, &providerStub{})

	userID := uuid.New()
	if err := svc.creditWallet(context.Background(), userID, 5000, uuid.New(), "seed"); err != nil {
		t.Fatalf("seed credit failed: %v", err)
	}

	tx, err := svc.RequestWithdrawal(context.Background(), userID, domain.WithdrawalRequest{
		Amount:        3000,
		BankName:      "GTBank",
		AccountName:   "Ade Test",
		AccountNumber: "0123456789",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tx.Type != domain.TransactionTypeWithdrawal {
		t.Fatalf("expected withdrawal type, got %s", tx.Type)
	}
	if got := repo.walletBalance(userID); got != 2000 {
		t.Fatalf("expected balance 2000, got %d", got)
	}
}
