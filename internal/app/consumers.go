/**
 * @description
 * This file contains the event handlers that turn domain events from RabbitMQ
 * into in-app notifications. The events are produced by the outbox dispatcher,
 * so every handler must tolerate redelivery.
 *
 * @dependencies
 * - encoding/json: For decoding event payloads.
 * - pkg/rabbitmq: For the handler signature and routing-key bindings.
 */

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fundlink/fundlink-service/internal/domain"
	"github.com/fundlink/fundlink-service/internal/store"
	"github.com/fundlink/fundlink-service/pkg/rabbitmq"
	"github.com/google/uuid"
)

const eventHandlerTimeout = 30 * time.Second

// EventHandler handles the processing of domain events.
type EventHandler struct {
	svc    *Service
	logger *slog.Logger
}

// NewEventHandler creates a new instance of EventHandler.
func NewEventHandler(svc *Service, logger *slog.Logger) *EventHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventHandler{svc: svc, logger: logger.With("component", "event_handler")}
}

// Bindings maps routing keys to their handlers.
func (h *EventHandler) Bindings() map[string]rabbitmq.Handler {
	return map[string]rabbitmq.Handler{
		domain.EventContributionVerified: h.HandleContributionVerified,
		domain.EventContributionRejected: h.HandleContributionRejected,
		domain.EventUserRegistered:       h.HandleUserRegistered,
	}
}

// HandleContributionVerified tells the vendor and the contributor that a
// payment landed on the campaign ledger.
func (h *EventHandler) HandleContributionVerified(ctx context.Context, body []byte) bool {
	var event domain.ContributionVerifiedEvent
	if err := json.Unmarshal(body, &event); err != nil {
		h.logger.Error("failed to decode contribution.verified event", "error", err)
		return true // Acknowledge malformed message.
	}
	if event.ContributionID == uuid.Nil {
		h.logger.Warn("contribution.verified event missing contribution id; acking")
		return true
	}

	ctx, cancel := context.WithTimeout(ctx, eventHandlerTimeout)
	defer cancel()

	progress := domain.ProgressPercent(event.RaisedAmount, event.GoalAmount)
	if _, err := h.svc.notifyOnce(ctx, event.VendorID, "verified:vendor:"+event.ContributionID.String(),
		domain.NotificationContributionVerified,
		"New contribution received",
		fmt.Sprintf("A contribution of ₹%d was verified. Your campaign is %.0f%% funded with %d backers.", event.Amount, progress, event.BackerCount),
	); err != nil {
		h.logger.Error("failed to notify vendor of contribution", "contribution_id", event.ContributionID, "error", err)
		return false
	}

	if event.ContributorID != uuid.Nil {
		if _, err := h.svc.notifyOnce(ctx, event.ContributorID, "verified:contributor:"+event.ContributionID.String(),
			domain.NotificationContributionVerified,
			"Payment verified",
			fmt.Sprintf("Your contribution of ₹%d (ref %s) was verified. Thank you!", event.Amount, event.PaymentReference),
		); err != nil {
			h.logger.Error("failed to notify contributor of verification", "contribution_id", event.ContributionID, "error", err)
			return false
		}
	}

	h.logger.Info("processed contribution.verified", "contribution_id", event.ContributionID, "campaign_id", event.CampaignID)
	return true
}

// HandleContributionRejected tells the contributor their payment was not accepted.
func (h *EventHandler) HandleContributionRejected(ctx context.Context, body []byte) bool {
	var event domain.ContributionRejectedEvent
	if err := json.Unmarshal(body, &event); err != nil {
		h.logger.Error("failed to decode contribution.rejected event", "error", err)
		return true
	}
	if event.ContributorID == uuid.Nil {
		return true
	}

	ctx, cancel := context.WithTimeout(ctx, eventHandlerTimeout)
	defer cancel()

	reason := event.Reason
	if reason == "" {
		reason = "payment was not confirmed"
	}
	if _, err := h.svc.notifyOnce(ctx, event.ContributorID, "rejected:"+event.ContributionID.String(),
		domain.NotificationContributionRejected,
		"Payment not verified",
		fmt.Sprintf("Your contribution (ref %s) was rejected: %s.", event.PaymentReference, reason),
	); err != nil {
		h.logger.Error("failed to notify contributor of rejection", "contribution_id", event.ContributionID, "error", err)
		return false
	}
	return true
}

// HandleUserRegistered greets new users with a role-specific notification.
func (h *EventHandler) HandleUserRegistered(ctx context.Context, body []byte) bool {
	var event domain.UserRegisteredEvent
	if err := json.Unmarshal(body, &event); err != nil {
		h.logger.Error("failed to decode user.registered event", "error", err)
		return true
	}

	ctx, cancel := context.WithTimeout(ctx, eventHandlerTimeout)
	defer cancel()

	if _, err := h.svc.repo.FindUserByID(ctx, event.UserID); err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			// Deleted before the event arrived.
			return true
		}
		h.logger.Error("failed to load registered user", "user_id", event.UserID, "error", err)
		return false
	}

	message := "Complete your profile so vendors can find you."
	if event.Role == domain.RoleVendor {
		message = "Create your first campaign to start raising funds."
	}
	if _, err := h.svc.notifyOnce(ctx, event.UserID, "welcome:"+event.UserID.String(),
		domain.NotificationWelcome, "Welcome to FundLink", message,
	); err != nil {
		h.logger.Error("failed to store welcome notification", "user_id", event.UserID, "error", err)
		return false
	}
	return true
}
