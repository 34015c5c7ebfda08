/**
 * @description
 * This file contains the core business logic for the payment-service. The
 * `Service` struct orchestrates deposits, withdrawals, and proxy purchases,
 * coordinating between the database repository, the PaymentPoint collection
 * API, the upstream proxy provider, and the message broker.
 *
 * Key features:
 * - Implements deposit and purchase initiation, including virtual account
 *   provisioning and webhook correlation mappings.
 * - Applies configured markup to provider USD prices and converts them to
 *   naira through the exchange-rate service.
 * - Publishes payment lifecycle events to RabbitMQ for other services.
 *
 * @dependencies
 * - context, errors, fmt, log: Standard Go libraries.
 * - github.com/google/uuid: For UUID generation.
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/proxyclient, pkg/paymentpoint, pkg/rabbitmq: For external services.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/proxynest/payment-service/internal/domain"
	"github.com/proxynest/payment-service/internal/store"
	"github.com/proxynest/payment-service/pkg/paymentpoint"
	"github.com/proxynest/payment-service/pkg/proxyclient"
	"github.com/proxynest/payment-service/pkg/rabbitmq"
)

var (
	ErrInvalidAmount     = errors.New("amount must be a positive whole number of naira")
	ErrNoVirtualAccount  = errors.New("no virtual account available for user")
	ErrPriceUnavailable  = errors.New("provider price unavailable")
	ErrInsufficientFunds = store.ErrInsufficientFunds
)

// ProviderClient is the upstream proxy provider surface used by the service.
type ProviderClient interface {
	ExecuteOrder(ctx context.Context, serviceID string, payload proxyclient.OrderPayload) (*proxyclient.OrderResult, error)
	GetPrice(ctx context.Context, serviceID string, planID *string) (*proxyclient.PriceResult, error)
}

// AccountProvisioner provisions dedicated collection accounts.
type AccountProvisioner interface {
	CreateVirtualAccount(ctx context.Context, email, name string) (*paymentpoint.CreateVirtualAccountResponse, error)
}

// Service provides the core business logic for payments and fulfillment.
type Service struct {
	repo                 store.Repository
	provider             ProviderClient
	accounts             AccountProvisioner
	eventProducer        rabbitmq.Publisher
	rates                *RateService
	priceToleranceMinNGN int64 // minimum tolerance in naira
}

// NewService creates a new payment service instance.
func NewService(repo store.Repository, provider ProviderClient, accounts AccountProvisioner, producer rabbitmq.Publisher, rates *RateService, priceToleranceMinNGN int64) *Service {
	if priceToleranceMinNGN <= 0 {
		priceToleranceMinNGN = 100
	}
	return &Service{
		repo:                 repo,
		provider:             provider,
		accounts:             accounts,
		eventProducer:        producer,
		rates:                rates,
		priceToleranceMinNGN: priceToleranceMinNGN,
	}
}

// DepositInitiation is the response to a deposit request: the pending ledger
// transaction plus the account the user should transfer into.
type DepositInitiation struct {
	Transaction *domain.LedgerTransaction `json:"transaction"`
	Account     *domain.VirtualAccount    `json:"account"`
}

// PurchaseInitiation is the response to a purchase request.
type PurchaseInitiation struct {
	Transaction *domain.LedgerTransaction `json:"transaction"`
	Account     *domain.VirtualAccount    `json:"account,omitempty"`
	PriceLocal  int64                     `json:"price_local"`
	PriceUSD    float64                   `json:"price_usd"`
	Purchase    *domain.Purchase          `json:"purchase,omitempty"`
}

// ensureVirtualAccount returns the user's collection account, provisioning
// one through PaymentPoint on first use.
func (s *Service) ensureVirtualAccount(ctx context.Context, userID uuid.UUID, email, name string) (*domain.VirtualAccount, error) {
	account, err := s.repo.FindVirtualAccountByUserID(ctx, userID)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, store.ErrAccountNotFound) {
		return nil, fmt.Errorf("failed to look up virtual account: %w", err)
	}

	if s.accounts == nil {
		return nil, ErrNoVirtualAccount
	}
	if strings.TrimSpace(email) == "" {
		email = fmt.Sprintf("%s@users.proxynest.io", userID)
	}
	if strings.TrimSpace(name) == "" {
		name = userID.String()
	}

	resp, err := s.accounts.CreateVirtualAccount(ctx, email, name)
	if err != nil {
		return nil, fmt.Errorf("failed to provision virtual account: %w", err)
	}

	account = &domain.VirtualAccount{
		UserID:        userID,
		CustomerID:    resp.CustomerID,
		AccountNumber: resp.BankAccount[0].AccountNumber,
		BankName:      resp.BankAccount[0].BankName,
	}
	if err := s.repo.SaveVirtualAccount(ctx, account); err != nil {
		return nil, fmt.Errorf("failed to save virtual account: %w", err)
	}

	log.Printf("level=info component=service msg=\"provisioned virtual account\" user_id=%s account_number=%s", userID, account.AccountNumber)
	return account, nil
}

// createCorrelationMappings links the webhook's customer id and receiver
// account number to the pending transaction so the matcher can find it.
func (s *Service) createCorrelationMappings(ctx context.Context, account *domain.VirtualAccount, transactionID, userID uuid.UUID) {
	keys := []string{}
	if account.CustomerID != "" {
		keys = append(keys, "customer:"+account.CustomerID)
	}
	if account.AccountNumber != "" {
		keys = append(keys, "account:"+account.AccountNumber)
	}
	for _, key := range keys {
		mapping := &domain.VirtualAccountMapping{Key: key, TransactionID: transactionID, UserID: userID}
		if err := s.repo.CreateVirtualAccountMapping(ctx, mapping); err != nil {
			log.Printf("level=warn component=service msg=\"failed to create correlation mapping\" key=%s transaction_id=%s err=%v", key, transactionID, err)
		}
	}
}

// InitiateDeposit creates a pending deposit transaction and returns the
// virtual account the user should fund. The deposit is credited when the
// matching collection webhook arrives.
func (s *Service) InitiateDeposit(ctx context.Context, userID uuid.UUID, email, name string, req domain.DepositRequest) (*DepositInitiation, error) {
	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}

	account, err := s.ensureVirtualAccount(ctx, userID, email, name)
	if err != nil {
		return nil, err
	}

	reference := fmt.Sprintf("DEP-%s", uuid.New().String()[:8])
	tx := &domain.LedgerTransaction{
		ID:        uuid.New(),
		UserID:    userID,
		Type:      domain.TransactionTypeDeposit,
		Amount:    req.Amount,
		Status:    domain.TransactionStatusPending,
		Reference: &reference,
	}
	if err := s.repo.CreateTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("failed to create deposit transaction: %w", err)
	}
	s.createCorrelationMappings(ctx, account, tx.ID, userID)

	if err := s.repo.AppendTransactionHistory(ctx, tx.ID, userID, "Deposit initiated", map[string]interface{}{
		"amount":         req.Amount,
		"account_number": account.AccountNumber,
	}); err != nil {
		log.Printf("level=warn component=service msg=\"failed to append history\" transaction_id=%s err=%v", tx.ID, err)
	}

	log.Printf("level=info component=service msg=\"deposit initiated\" user_id=%s transaction_id=%s amount=%d", userID, tx.ID, req.Amount)
	return &DepositInitiation{Transaction: tx, Account: account}, nil
}

// RequestWithdrawal debits the user's wallet and records a withdrawal
// transaction for asynchronous settlement by an operator.
func (s *Service) RequestWithdrawal(ctx context.Context, userID uuid.UUID, req domain.WithdrawalRequest) (*domain.LedgerTransaction, error) {
	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if strings.TrimSpace(req.AccountNumber) == "" || strings.TrimSpace(req.BankName) == "" {
		return nil, fmt.Errorf("bank name and account number are required")
	}

	reference := fmt.Sprintf("WDR-%s", uuid.New().String()[:8])
	tx := &domain.LedgerTransaction{
		ID:        uuid.New(),
		UserID:    userID,
		Type:      domain.TransactionTypeWithdrawal,
		Amount:    req.Amount,
		Status:    domain.TransactionStatusPending,
		Reference: &reference,
	}
	if err := s.repo.CreateTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("failed to create withdrawal transaction: %w", err)
	}

	if err := s.debitWallet(ctx, userID, req.Amount, tx.ID, fmt.Sprintf("Withdrawal to %s %s", req.BankName, req.AccountNumber)); err != nil {
		if markErr := s.repo.UpdateTransactionStatus(ctx, tx.ID, domain.TransactionStatusFailed); markErr != nil {
			log.Printf("level=error component=service msg=\"failed to mark withdrawal failed\" transaction_id=%s err=%v", tx.ID, markErr)
		}
		return nil, err
	}

	if err := s.repo.AppendTransactionHistory(ctx, tx.ID, userID, "Withdrawal requested", map[string]interface{}{
		"amount":         req.Amount,
		"bank_name":      req.BankName,
		"account_number": req.AccountNumber,
	}); err != nil {
		log.Printf("level=warn component=service msg=\"failed to append history\" transaction_id=%s err=%v", tx.ID, err)
	}

	log.Printf("level=info component=service msg=\"withdrawal requested\" user_id=%s transaction_id=%s amount=%d", userID, tx.ID, req.Amount)
	return tx, nil
}

// QuotePurchasePrice resolves the provider's USD price for a service, applies
// the configured markup, and converts it to naira.
func (s *Service) QuotePurchasePrice(ctx context.Context, serviceID string, planID *string) (priceUSD float64, priceLocal int64, err error) {
	price, err := s.provider.GetPrice(ctx, serviceID, planID)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrPriceUnavailable, err)
	}
	if price.PriceUSD <= 0 {
		return 0, 0, ErrPriceUnavailable
	}

	pricing, err := s.repo.GetPricingConfig(ctx)
	if err != nil {
		log.Printf("level=warn component=service msg=\"pricing config lookup failed; selling at cost\" err=%v", err)
		pricing = &domain.PricingConfig{}
	}

	markedUpUSD := price.PriceUSD * (1 + pricing.MarkupFor(serviceID)/100)
	return markedUpUSD, s.rates.ConvertUSDToNGN(ctx, markedUpUSD), nil
}

// InitiatePurchase starts a proxy purchase. Wallet-funded purchases debit the
// wallet and execute the provider order immediately; transfer-funded ones
// stage a pending purchase and wait for the payment webhook.
func (s *Service) InitiatePurchase(ctx context.Context, userID uuid.UUID, email, name, serviceID string, req domain.PurchaseRequest) (*PurchaseInitiation, error) {
	priceUSD, priceLocal, err := s.QuotePurchasePrice(ctx, serviceID, req.PlanID)
	if err != nil {
		return nil, err
	}

	reference := fmt.Sprintf("PUR-%s", uuid.New().String()[:8])
	tx := &domain.LedgerTransaction{
		ID:        uuid.New(),
		UserID:    userID,
		Type:      domain.TransactionTypePurchase,
		Amount:    priceLocal,
		Status:    domain.TransactionStatusPending,
		Reference: &reference,
	}
	if err := s.repo.CreateTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("failed to create purchase transaction: %w", err)
	}

	// The client may pin the price it quoted to the user; otherwise the
	// freshly resolved price is what the payment must cover.
	expectedLocal := priceLocal
	if req.ExpectedPrice != nil && *req.ExpectedPrice > 0 {
		expectedLocal = *req.ExpectedPrice
	}

	pending := &domain.PendingPurchase{
		TransactionID:      tx.ID,
		UserID:             userID,
		ServiceID:          serviceID,
		PlanID:             req.PlanID,
		PricePaidUSD:       priceUSD,
		ExpectedPriceLocal: &expectedLocal,
		Options:            req.ToOptions(),
	}
	if err := s.repo.CreatePendingPurchase(ctx, pending); err != nil {
		return nil, fmt.Errorf("failed to stage purchase: %w", err)
	}

	if req.WalletFunded {
		return s.fulfillWalletFundedPurchase(ctx, tx, pending, priceLocal)
	}

	account, err := s.ensureVirtualAccount(ctx, userID, email, name)
	if err != nil {
		return nil, err
	}
	s.createCorrelationMappings(ctx, account, tx.ID, userID)

	if err := s.repo.AppendTransactionHistory(ctx, tx.ID, userID, "Purchase initiated, awaiting payment", map[string]interface{}{
		"service_id":  serviceID,
		"price_local": priceLocal,
		"price_usd":   priceUSD,
	}); err != nil {
		log.Printf("level=warn component=service msg=\"failed to append history\" transaction_id=%s err=%v", tx.ID, err)
	}

	log.Printf("level=info component=service msg=\"purchase initiated\" user_id=%s transaction_id=%s service_id=%s price_local=%d", userID, tx.ID, serviceID, priceLocal)
	return &PurchaseInitiation{Transaction: tx, Account: account, PriceLocal: priceLocal, PriceUSD: priceUSD}, nil
}

// fulfillWalletFundedPurchase debits the wallet and runs fulfillment through
// the same claim-then-execute path webhook-confirmed purchases use.
func (s *Service) fulfillWalletFundedPurchase(ctx context.Context, tx *domain.LedgerTransaction, pending *domain.PendingPurchase, priceLocal int64) (*PurchaseInitiation, error) {
	if err := s.debitWallet(ctx, tx.UserID, priceLocal, tx.ID, "Proxy purchase "+pending.ServiceID); err != nil {
		if markErr := s.repo.UpdateTransactionStatus(ctx, tx.ID, domain.TransactionStatusFailed); markErr != nil {
			log.Printf("level=error component=service msg=\"failed to mark purchase failed\" transaction_id=%s err=%v", tx.ID, markErr)
		}
		if delErr := s.repo.DeletePendingPurchase(ctx, tx.ID); delErr != nil {
			log.Printf("level=warn component=service msg=\"failed to delete pending purchase\" transaction_id=%s err=%v", tx.ID, delErr)
		}
		return nil, err
	}

	claimed, err := s.repo.ClaimTransactionFinalization(ctx, tx.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to claim finalization: %w", err)
	}
	if !claimed {
		// Another path already finalized this transaction.
		return &PurchaseInitiation{Transaction: tx, PriceLocal: priceLocal, PriceUSD: pending.PricePaidUSD}, nil
	}

	purchase, err := s.executePendingPurchase(ctx, tx, pending, true)
	if err != nil {
		return nil, err
	}

	return &PurchaseInitiation{Transaction: tx, PriceLocal: priceLocal, PriceUSD: pending.PricePaidUSD, Purchase: purchase}, nil
}

// GetWalletBalance returns the user's wallet, creating it on first access.
func (s *Service) GetWalletBalance(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error) {
	return s.repo.FindOrCreateWallet(ctx, userID)
}

// ListWalletTransactions lists the user's wallet movements.
func (s *Service) ListWalletTransactions(ctx context.Context, userID uuid.UUID) ([]domain.WalletTransaction, error) {
	return s.repo.FindWalletTransactionsByUserID(ctx, userID)
}

// ListTransactions lists the user's ledger transactions.
func (s *Service) ListTransactions(ctx context.Context, userID uuid.UUID) ([]domain.LedgerTransaction, error) {
	return s.repo.FindTransactionsByUserID(ctx, userID)
}

// GetTransactionHistory returns the audit trail for one of the user's transactions.
func (s *Service) GetTransactionHistory(ctx context.Context, userID, transactionID uuid.UUID) ([]domain.TransactionHistory, error) {
	tx, err := s.repo.FindTransactionByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if tx.UserID != userID {
		return nil, store.ErrTransactionNotFound
	}
	return s.repo.FindHistoryByTransactionID(ctx, transactionID)
}

// ListPurchases lists the user's completed proxy orders.
func (s *Service) ListPurchases(ctx context.Context, userID uuid.UUID) ([]domain.Purchase, error) {
	return s.repo.FindPurchasesByUserID(ctx, userID)
}

// priceTolerance returns the acceptable deviation for a local price: the
// greater of 1% and the configured floor.
func (s *Service) priceTolerance(expected int64) int64 {
	onePercent := int64(math.Round(float64(expected) * 0.01))
	if onePercent > s.priceToleranceMinNGN {
		return onePercent
	}
	return s.priceToleranceMinNGN
}

func (s *Service) publishEvent(ctx context.Context, routingKey string, event rabbitmq.PaymentEvent) {
	if s.eventProducer == nil {
		return
	}
	if err := s.eventProducer.Publish(ctx, routingKey, event); err != nil {
		log.Printf("level=warn component=service msg=\"event publish failed\" routing_key=%s transaction_id=%s err=%v", routingKey, event.TransactionID, err)
	}
}
