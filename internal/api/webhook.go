/**
 * @description
 * This file contains the HTTP handler for payment gateway callbacks. A signed
 * payment.succeeded callback is what moves a contribution to verified and onto
 * the campaign ledger.
 *
 * Key features:
 * - Security: Validates the hex HMAC-SHA256 signature in X-Payment-Signature.
 * - Idempotency: Recently handled event ids are acknowledged without reprocessing;
 *   the ledger itself is also idempotent by payment reference.
 *
 * @dependencies
 * - crypto/hmac, crypto/sha256, encoding/hex: For webhook signature validation.
 * - internal/app: For applying the payment event.
 */

package api

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/fundlink/fundlink-service/internal/app"
)

const (
	signatureHeader      = "X-Payment-Signature"
	maxWebhookBodyBytes  = 64 << 10
	processedEventWindow = time.Hour
)

// PaymentEventProcessor applies a verified payment callback.
type PaymentEventProcessor interface {
	HandlePaymentEvent(ctx context.Context, event app.PaymentEvent) error
}

// WebhookHandler processes incoming payment gateway webhooks.
type WebhookHandler struct {
	processor       PaymentEventProcessor
	secret          string
	logger          *slog.Logger
	processedEvents map[string]time.Time
	mutex           sync.Mutex
	now             func() time.Time
}

// NewWebhookHandler creates a new handler for the webhook endpoint.
func NewWebhookHandler(processor PaymentEventProcessor, secret string, logger *slog.Logger) *WebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookHandler{
		processor:       processor,
		secret:          secret,
		logger:          logger.With("component", "payment_webhook"),
		processedEvents: make(map[string]time.Time),
		now:             time.Now,
	}
}

// ServeHTTP implements the http.Handler interface.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes))
	if err != nil {
		h.logger.Warn("failed to read webhook body", "error", err)
		writeError(w, http.StatusBadRequest, "Cannot read request body")
		return
	}

	if !h.isValidSignature(r.Header.Get(signatureHeader), body) {
		h.logger.Warn("rejected webhook with invalid signature", "remote_addr", r.RemoteAddr)
		writeError(w, http.StatusUnauthorized, "Invalid signature")
		return
	}

	var event app.PaymentEvent
	if err := json.Unmarshal(body, &event); err != nil {
		h.logger.Warn("failed to decode webhook payload", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	if strings.TrimSpace(event.ID) == "" || strings.TrimSpace(event.Type) == "" {
		writeError(w, http.StatusBadRequest, "Event id and type are required")
		return
	}

	eventKey := fmt.Sprintf("%s:%s", event.ID, event.Type)
	if h.seenRecently(eventKey) {
		h.logger.Info("duplicate webhook event ignored", "event_id", event.ID, "type", event.Type)
		writeJSON(w, http.StatusOK, map[string]string{"status": "duplicate"})
		return
	}

	if err := h.processor.HandlePaymentEvent(r.Context(), event); err != nil {
		status := statusForError(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("failed to apply payment event", "event_id", event.ID, "payment_reference", event.PaymentReference, "error", err)
			writeError(w, status, "Internal server error during event processing")
			return
		}
		h.logger.Warn("payment event refused", "event_id", event.ID, "payment_reference", event.PaymentReference, "error", err)
		writeError(w, status, err.Error())
		return
	}

	h.markProcessed(eventKey)
	h.logger.Info("webhook processed", "event_id", event.ID, "type", event.Type, "payment_reference", event.PaymentReference, "duration", time.Since(startTime))
	writeJSON(w, http.StatusOK, map[string]string{"status": "processed"})
}

// isValidSignature compares the hex HMAC-SHA256 of the body with the header.
// An unset secret rejects every callback.
func (h *WebhookHandler) isValidSignature(header string, body []byte) bool {
	if h.secret == "" {
		h.logger.Error("PAYMENT_WEBHOOK_SECRET is not set; rejecting webhook")
		return false
	}
	header = strings.TrimPrefix(strings.TrimSpace(header), "sha256=")
	if header == "" {
		return false
	}
	provided, err := hex.DecodeString(header)
	if err != nil {
		return false
	}
	return hmac.Equal(provided, SignPayload(h.secret, body))
}

// SignPayload returns the raw HMAC-SHA256 of body under secret.
func SignPayload(secret string, body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return mac.Sum(nil)
}

func (h *WebhookHandler) seenRecently(eventKey string) bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	// Clean up old entries to prevent memory leaks
	cutoff := h.now().Add(-processedEventWindow)
	for key, timestamp := range h.processedEvents {
		if timestamp.Before(cutoff) {
			delete(h.processedEvents, key)
		}
	}
	_, exists := h.processedEvents[eventKey]
	return exists
}

func (h *WebhookHandler) markProcessed(eventKey string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.processedEvents[eventKey] = h.now()
}
