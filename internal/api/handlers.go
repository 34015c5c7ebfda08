/**
 * @description
 * This file contains the HTTP handlers for the payment-service's API endpoints.
 * Handlers are responsible for parsing incoming requests, calling the appropriate
 * methods on the application service, and writing the HTTP response. They act as the
 * bridge between the web layer and the business logic layer.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - github.com/go-chi/chi/v5: For URL parameter extraction.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/proxynest/payment-service/internal/app"
	"github.com/proxynest/payment-service/internal/domain"
	"github.com/proxynest/payment-service/internal/store"
)

// PaymentHandlers holds the application service and rate limiter that handlers use.
type PaymentHandlers struct {
	service       *app.Service
	limiter       *app.RedisInitiationRateLimiter
	webhookSecret string
}

// NewPaymentHandlers creates a new instance of PaymentHandlers.
func NewPaymentHandlers(service *app.Service, limiter *app.RedisInitiationRateLimiter, webhookSecret string) *PaymentHandlers {
	return &PaymentHandlers{
		service:       service,
		limiter:       limiter,
		webhookSecret: webhookSecret,
	}
}

// authenticatedUser pulls the user's UUID out of the request context.
func (h *PaymentHandlers) authenticatedUser(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userIDStr, ok := GetUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "User not authenticated")
		return uuid.Nil, false
	}
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		h.writeError(w, http.StatusUnauthorized, "Invalid user identity")
		return uuid.Nil, false
	}
	return userID, true
}

// consumeRateLimit enforces the per-user rate limit for an initiation scope.
// A Redis outage fails open; initiation is not worth an availability hit.
func (h *PaymentHandlers) consumeRateLimit(w http.ResponseWriter, r *http.Request, scope string, userID uuid.UUID) bool {
	if h.limiter == nil {
		return true
	}
	allowed, retryAfter, err := h.limiter.Consume(r.Context(), scope, userID.String())
	if err != nil {
		log.Printf("level=warn component=api msg=\"rate limit check failed; allowing request\" scope=%s err=%v", scope, err)
		return true
	}
	if !allowed {
		w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
		h.writeError(w, http.StatusTooManyRequests, "Too many requests. Please try again shortly.")
		return false
	}
	return true
}

// DepositHandler handles POST /wallet/deposit.
func (h *PaymentHandlers) DepositHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticatedUser(w, r)
	if !ok {
		return
	}
	if !h.consumeRateLimit(w, r, "deposit", userID) {
		return
	}

	var req domain.DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	email, name := GetUserProfile(r.Context())
	result, err := h.service.InitiateDeposit(r.Context(), userID, email, name, req)
	if err != nil {
		if errors.Is(err, app.ErrInvalidAmount) {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Printf("level=error component=api msg=\"deposit initiation failed\" user_id=%s err=%v", userID, err)
		h.writeError(w, http.StatusInternalServerError, "Failed to initiate deposit")
		return
	}

	h.writeJSON(w, http.StatusCreated, result)
}

// WithdrawalHandler handles POST /wallet/withdraw.
func (h *PaymentHandlers) WithdrawalHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticatedUser(w, r)
	if !ok {
		return
	}

	var req domain.WithdrawalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	tx, err := h.service.RequestWithdrawal(r.Context(), userID, req)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidAmount):
			h.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, store.ErrInsufficientFunds):
			h.writeError(w, http.StatusUnprocessableEntity, "Insufficient wallet balance")
		default:
			log.Printf("level=error component=api msg=\"withdrawal failed\" user_id=%s err=%v", userID, err)
			h.writeError(w, http.StatusInternalServerError, "Failed to request withdrawal")
		}
		return
	}

	h.writeJSON(w, http.StatusCreated, tx)
}

// WalletBalanceHandler handles GET /wallet/balance.
func (h *PaymentHandlers) WalletBalanceHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticatedUser(w, r)
	if !ok {
		return
	}

	wallet, err := h.service.GetWalletBalance(r.Context(), userID)
	if err != nil {
		log.Printf("level=error component=api msg=\"wallet lookup failed\" user_id=%s err=%v", userID, err)
		h.writeError(w, http.StatusInternalServerError, "Failed to load wallet")
		return
	}

	h.writeJSON(w, http.StatusOK, wallet)
}

// WalletTransactionsHandler handles GET /wallet/transactions.
func (h *PaymentHandlers) WalletTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticatedUser(w, r)
	if !ok {
		return
	}

	movements, err := h.service.ListWalletTransactions(r.Context(), userID)
	if err != nil {
		log.Printf("level=error component=api msg=\"wallet transactions lookup failed\" user_id=%s err=%v", userID, err)
		h.writeError(w, http.StatusInternalServerError, "Failed to load wallet transactions")
		return
	}
	if movements == nil {
		movements = []domain.WalletTransaction{}
	}

	h.writeJSON(w, http.StatusOK, movements)
}

// TransactionsHandler handles GET /transactions.
func (h *PaymentHandlers) TransactionsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticatedUser(w, r)
	if !ok {
		return
	}

	transactions, err := h.service.ListTransactions(r.Context(), userID)
	if err != nil {
		log.Printf("level=error component=api msg=\"transactions lookup failed\" user_id=%s err=%v", userID, err)
		h.writeError(w, http.StatusInternalServerError, "Failed to load transactions")
		return
	}
	if transactions == nil {
		transactions = []domain.LedgerTransaction{}
	}

	h.writeJSON(w, http.StatusOK, transactions)
}

// TransactionHistoryHandler handles GET /transactions/{transactionID}/history.
func (h *PaymentHandlers) TransactionHistoryHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticatedUser(w, r)
	if !ok {
		return
	}

	transactionID, err := uuid.Parse(chi.URLParam(r, "transactionID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid transaction id")
		return
	}

	history, err := h.service.GetTransactionHistory(r.Context(), userID, transactionID)
	if err != nil {
		if errors.Is(err, store.ErrTransactionNotFound) {
			h.writeError(w, http.StatusNotFound, "Transaction not found")
			return
		}
		log.Printf("level=error component=api msg=\"history lookup failed\" transaction_id=%s err=%v", transactionID, err)
		h.writeError(w, http.StatusInternalServerError, "Failed to load transaction history")
		return
	}
	if history == nil {
		history = []domain.TransactionHistory{}
	}

	h.writeJSON(w, http.StatusOK, history)
}

// PurchaseHandler handles POST /orders/{serviceID}.
func (h *PaymentHandlers) PurchaseHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticatedUser(w, r)
	if !ok {
		return
	}
	if !h.consumeRateLimit(w, r, "purchase", userID) {
		return
	}

	serviceID := chi.URLParam(r, "serviceID")
	if serviceID == "" {
		h.writeError(w, http.StatusBadRequest, "Missing service id")
		return
	}

	var req domain.PurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	email, name := GetUserProfile(r.Context())
	result, err := h.service.InitiatePurchase(r.Context(), userID, email, name, serviceID, req)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrPriceUnavailable):
			h.writeError(w, http.StatusBadGateway, "Provider pricing unavailable")
		case errors.Is(err, store.ErrInsufficientFunds):
			h.writeError(w, http.StatusUnprocessableEntity, "Insufficient wallet balance")
		default:
			log.Printf("level=error component=api msg=\"purchase initiation failed\" user_id=%s service_id=%s err=%v", userID, serviceID, err)
			h.writeError(w, http.StatusInternalServerError, "Failed to initiate purchase")
		}
		return
	}

	h.writeJSON(w, http.StatusCreated, result)
}

// PurchasesHandler handles GET /orders/purchases.
func (h *PaymentHandlers) PurchasesHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticatedUser(w, r)
	if !ok {
		return
	}

	purchases, err := h.service.ListPurchases(r.Context(), userID)
	if err != nil {
		log.Printf("level=error component=api msg=\"purchases lookup failed\" user_id=%s err=%v", userID, err)
		h.writeError(w, http.StatusInternalServerError, "Failed to load purchases")
		return
	}
	if purchases == nil {
		purchases = []domain.Purchase{}
	}

	h.writeJSON(w, http.StatusOK, purchases)
}

// writeJSON is a helper for writing JSON responses.
func (h *PaymentHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("level=error component=api msg=\"failed to encode response\" err=%v", err)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *PaymentHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
