package domain

import (
	"time"

	"github.com/google/uuid"
)

// ScheduledPost is a social post a vendor plans to publish.
type ScheduledPost struct {
	ID          uuid.UUID `json:"id"`
	VendorID    uuid.UUID `json:"vendor_id"`
	Content     string    `json:"content"`
	Hashtags    string    `json:"hashtags,omitempty"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Notified    bool      `json:"notified"`
	Completed   bool      `json:"completed"`
	CreatedAt   time.Time `json:"created_at"`
}

// CreatePostRequest is the payload for scheduling a post.
type CreatePostRequest struct {
	Content     string    `json:"content"`
	Hashtags    string    `json:"hashtags,omitempty"`
	ScheduledAt time.Time `json:"scheduled_at"`
}

// Notification kinds.
const (
	NotificationPostReminder         = "post_reminder"
	NotificationContributionVerified = "contribution_verified"
	NotificationContributionRejected = "contribution_rejected"
	NotificationWelcome              = "welcome"
	NotificationConnectionRequest    = "connection_request"
	NotificationConnectionResponse   = "connection_response"
)

// Notification is an in-app notice for one user.
type Notification struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Kind      string    `json:"kind"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
	Read      bool      `json:"read"`
}
