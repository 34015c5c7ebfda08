/**
 * @description
 * This file sets up the HTTP router for the payment-service. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies any
 * necessary middleware, such as for authentication.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// PaymentRoutes creates and returns a new router for the payment service.
func PaymentRoutes(h *PaymentHandlers, jwtSecret string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Collector webhook. Authenticated by HMAC signature, not by JWT. The
	// provider-scoped path is what the PaymentPoint dashboard is configured
	// with; both serve the same handler.
	r.Post("/webhook", h.WebhookHandler)
	r.Post("/webhook/paymentpoint", h.WebhookHandler)

	// Group routes that require authentication.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(jwtSecret))

		// Wallet endpoints
		r.Post("/wallet/deposit", h.DepositHandler)
		r.Post("/wallet/withdraw", h.WithdrawalHandler)
		r.Get("/wallet/balance", h.WalletBalanceHandler)
		r.Get("/wallet/transactions", h.WalletTransactionsHandler)

		// Ledger endpoints
		r.Get("/transactions", h.TransactionsHandler)
		r.Get("/transactions/{transactionID}/history", h.TransactionHistoryHandler)

		// Order endpoints
		r.Post("/orders/{serviceID}", h.PurchaseHandler)
		r.Get("/orders/purchases", h.PurchasesHandler)
	})

	return r
}
