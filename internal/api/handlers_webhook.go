/**
 * @description
 * This file contains the PaymentPoint webhook endpoint. The handler reads the
 * exact raw request body, verifies the HMAC-SHA256 signature against the
 * shared webhook secret, and hands the payload to the confirmation pipeline.
 *
 * Signature verification runs over the raw bytes as received, before any
 * JSON decoding; re-serialized JSON does not round-trip byte-for-byte.
 *
 * @dependencies
 * - crypto/hmac, crypto/sha256, encoding/hex: For signature verification.
 * - io, net/http: Standard Go libraries.
 * - internal/domain: For the webhook payload and result models.
 */

package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log"
	"net/http"

	"github.com/proxynest/payment-service/internal/domain"
)

const signatureHeader = "paymentpoint-signature"

// maxWebhookBodyBytes bounds webhook reads; collector payloads are small.
const maxWebhookBodyBytes = 1 << 20

// verifyWebhookSignature checks the hex-encoded HMAC-SHA256 of the raw body
// in constant time.
func verifyWebhookSignature(secret string, body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// WebhookHandler handles POST /webhook/paymentpoint.
func (h *PaymentHandlers) WebhookHandler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodyBytes))
	if err != nil || len(body) == 0 {
		h.writeError(w, http.StatusBadRequest, "Missing request body")
		return
	}

	signature := r.Header.Get(signatureHeader)
	if signature == "" {
		h.writeError(w, http.StatusBadRequest, "Missing signature header")
		return
	}

	if !verifyWebhookSignature(h.webhookSecret, body, signature) {
		log.Printf("level=warn component=webhook msg=\"signature verification failed\" remote=%s", r.RemoteAddr)
		h.writeError(w, http.StatusUnauthorized, "Invalid signature")
		return
	}

	var payload domain.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		// Authenticated but unparseable. Acknowledge so the collector stops
		// redelivering a body we will never be able to read.
		log.Printf("level=warn component=webhook msg=\"unparseable payload\" err=%v", err)
		h.writeJSON(w, http.StatusOK, domain.WebhookResult{Status: domain.WebhookStatusIgnored, Message: "unparseable payload"})
		return
	}

	result, err := h.service.ProcessWebhook(r.Context(), &payload)
	if err != nil {
		// Infrastructure failure before any side effect; a 500 makes the
		// collector redeliver, which is safe pre-claim.
		log.Printf("level=error component=webhook msg=\"webhook processing failed\" provider_ref=%s err=%v", payload.TransactionID, err)
		h.writeError(w, http.StatusInternalServerError, "Processing failed")
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}
