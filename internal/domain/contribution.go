package domain

import (
	"time"

	"github.com/google/uuid"
)

// ContributionStatus tracks a contribution through payment confirmation.
type ContributionStatus string

const (
	ContributionAwaitingConfirmation ContributionStatus = "awaiting_confirmation"
	ContributionVerifying            ContributionStatus = "verifying"
	ContributionVerified             ContributionStatus = "verified"
	ContributionRejected             ContributionStatus = "rejected"
)

// Pending reports whether the contribution still waits on the payment gateway.
func (s ContributionStatus) Pending() bool {
	return s == ContributionAwaitingConfirmation || s == ContributionVerifying
}

// CanTransition reports whether a contribution may move from s to next.
// Verified and rejected are terminal.
func (s ContributionStatus) CanTransition(next ContributionStatus) bool {
	switch s {
	case ContributionAwaitingConfirmation:
		return next == ContributionVerifying || next == ContributionVerified || next == ContributionRejected
	case ContributionVerifying:
		return next == ContributionVerified || next == ContributionRejected
	default:
		return false
	}
}

// Contribution is one funding event tied to a campaign and a contributor.
type Contribution struct {
	ID               uuid.UUID          `json:"id"`
	CampaignID       uuid.UUID          `json:"campaign_id"`
	CampaignTitle    string             `json:"campaign_title,omitempty"`
	ContributorID    uuid.UUID          `json:"contributor_id"`
	ContributorName  string             `json:"contributor_name"`
	Amount           int64              `json:"amount"`
	PaymentReference string             `json:"payment_reference"`
	Status           ContributionStatus `json:"status"`
	Message          string             `json:"message,omitempty"`
	RejectionReason  *string            `json:"rejection_reason,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
	VerifiedAt       *time.Time         `json:"verified_at,omitempty"`
}

// Verified mirrors the legacy verification flag.
func (c Contribution) Verified() bool {
	return c.Status == ContributionVerified
}

// BeginContributionRequest opens a payment confirmation flow.
type BeginContributionRequest struct {
	Amount          int64  `json:"amount"`
	ContributorName string `json:"contributor_name"`
	Message         string `json:"message,omitempty"`
}

// PaymentInstructions is shown to the contributor while awaiting confirmation.
type PaymentInstructions struct {
	Contribution  *Contribution `json:"contribution"`
	QRCodeURL     string        `json:"qr_code_url"`
	UPIID         string        `json:"upi_id,omitempty"`
	AccountNumber string        `json:"account_number,omitempty"`
	BankName      string        `json:"bank_name,omitempty"`
	ExpiresAt     time.Time     `json:"expires_at"`
}

// InvestmentSummary backs the investor dashboard.
type InvestmentSummary struct {
	TotalInvested      int64          `json:"total_invested"`
	ContributionCount  int            `json:"contribution_count"`
	CampaignsSupported int            `json:"campaigns_supported"`
	Contributions      []Contribution `json:"contributions"`
}

// LedgerDrift describes a campaign whose counters disagree with its verified contributions.
type LedgerDrift struct {
	CampaignID      uuid.UUID `json:"campaign_id"`
	RecordedRaised  int64     `json:"recorded_raised"`
	RecordedBackers int       `json:"recorded_backers"`
	VerifiedSum     int64     `json:"verified_sum"`
	VerifiedCount   int       `json:"verified_count"`
}
