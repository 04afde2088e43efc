package domain

import (
	"time"

	"github.com/google/uuid"
)

// Connection request statuses.
const (
	ConnectionPending  = "pending"
	ConnectionAccepted = "accepted"
	ConnectionDeclined = "declined"
)

// ConnectionRequest is a vendor's request to connect with an investor.
type ConnectionRequest struct {
	VendorID    uuid.UUID  `json:"vendor_id"`
	VendorName  string     `json:"vendor_name"`
	InvestorID  uuid.UUID  `json:"investor_id"`
	Message     string     `json:"message,omitempty"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	RespondedAt *time.Time `json:"responded_at,omitempty"`
}

// CreateConnectionRequest is the payload a vendor sends.
type CreateConnectionRequest struct {
	InvestorID uuid.UUID `json:"investor_id"`
	Message    string    `json:"message,omitempty"`
}

// RespondConnectionRequest is the payload an investor sends back.
type RespondConnectionRequest struct {
	Accept bool `json:"accept"`
}

// InvestorMatch is a scored investor suggestion for a campaign.
type InvestorMatch struct {
	Investor User `json:"investor"`
	Score    int  `json:"score"`
}
