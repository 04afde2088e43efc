package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message is one text message between two identities.
type Message struct {
	ID              uuid.UUID `json:"id"`
	ConversationKey string    `json:"conversation_key"`
	Seq             int64     `json:"seq"`
	SenderID        uuid.UUID `json:"sender_id"`
	SenderName      string    `json:"sender_name,omitempty"`
	ReceiverID      uuid.UUID `json:"receiver_id"`
	ReceiverName    string    `json:"receiver_name,omitempty"`
	Body            string    `json:"body"`
	CreatedAt       time.Time `json:"created_at"`
	Read            bool      `json:"read"`
}

// ConversationSummary is one row of a user's inbox.
type ConversationSummary struct {
	Key           string    `json:"key"`
	PeerID        uuid.UUID `json:"peer_id"`
	PeerName      string    `json:"peer_name"`
	PeerRole      Role      `json:"peer_role"`
	LastSeq       int64     `json:"last_seq"`
	LastMessage   string    `json:"last_message"`
	LastMessageAt time.Time `json:"last_message_at"`
	UnreadCount   int       `json:"unread_count"`
}

// MessagePage is a cursor page of messages in ascending order.
type MessagePage struct {
	Messages   []Message `json:"messages"`
	NextCursor int64     `json:"next_cursor"`
}

// SendMessageRequest is the payload for sending a message.
type SendMessageRequest struct {
	Body string `json:"body"`
}

// ConversationKey derives the stable key for the pair (a, b). It is
// commutative: ConversationKey(a, b) == ConversationKey(b, a).
func ConversationKey(a, b uuid.UUID) string {
	x, y := a.String(), b.String()
	if y < x {
		x, y = y, x
	}
	return x + "_" + y
}
