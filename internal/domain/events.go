package domain

import (
	"time"

	"github.com/google/uuid"
)

// Routing keys published to the events exchange.
const (
	EventUserRegistered       = "user.registered"
	EventSessionStarted       = "session.started"
	EventSessionEnded         = "session.ended"
	EventContributionVerified = "contribution.verified"
	EventContributionRejected = "contribution.rejected"
	EventMessageSent          = "message.sent"
	EventPostReminderDue      = "post.reminder.due"
	EventConnectionRequested  = "connection.requested"
)

// UserRegisteredEvent is enqueued with the user row.
type UserRegisteredEvent struct {
	UserID    uuid.UUID `json:"user_id"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionEvent notifies listeners of a login or logout.
type SessionEvent struct {
	UserID     uuid.UUID `json:"user_id"`
	TokenID    string    `json:"token_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// ContributionVerifiedEvent is enqueued in the same transaction as the ledger update.
type ContributionVerifiedEvent struct {
	ContributionID   uuid.UUID `json:"contribution_id"`
	CampaignID       uuid.UUID `json:"campaign_id"`
	VendorID         uuid.UUID `json:"vendor_id"`
	ContributorID    uuid.UUID `json:"contributor_id"`
	Amount           int64     `json:"amount"`
	PaymentReference string    `json:"payment_reference"`
	RaisedAmount     int64     `json:"raised_amount"`
	BackerCount      int       `json:"backer_count"`
	GoalAmount       int64     `json:"goal_amount"`
	VerifiedAt       time.Time `json:"verified_at"`
}

// ContributionRejectedEvent is enqueued when a payment fails or expires.
type ContributionRejectedEvent struct {
	ContributionID   uuid.UUID `json:"contribution_id"`
	CampaignID       uuid.UUID `json:"campaign_id"`
	ContributorID    uuid.UUID `json:"contributor_id"`
	PaymentReference string    `json:"payment_reference"`
	Reason           string    `json:"reason"`
}

// MessageSentEvent is enqueued with every stored message.
type MessageSentEvent struct {
	MessageID       uuid.UUID `json:"message_id"`
	ConversationKey string    `json:"conversation_key"`
	Seq             int64     `json:"seq"`
	SenderID        uuid.UUID `json:"sender_id"`
	ReceiverID      uuid.UUID `json:"receiver_id"`
	CreatedAt       time.Time `json:"created_at"`
}

// PostReminderEvent is published when a scheduled post is about to be due.
type PostReminderEvent struct {
	PostID      uuid.UUID `json:"post_id"`
	VendorID    uuid.UUID `json:"vendor_id"`
	ScheduledAt time.Time `json:"scheduled_at"`
}

// ConnectionRequestedEvent is published when a vendor asks to connect.
type ConnectionRequestedEvent struct {
	VendorID   uuid.UUID `json:"vendor_id"`
	InvestorID uuid.UUID `json:"investor_id"`
}
