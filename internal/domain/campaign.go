package domain

import (
	"time"

	"github.com/google/uuid"
)

// Campaign statuses.
const (
	CampaignStatusActive    = "active"
	CampaignStatusCompleted = "completed"
	CampaignStatusClosed    = "closed"
)

// Campaign is a vendor's fundraising request together with its running ledger.
type Campaign struct {
	ID           uuid.UUID  `json:"id"`
	VendorID     uuid.UUID  `json:"vendor_id"`
	VendorName   string     `json:"vendor_name,omitempty"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Category     string     `json:"category"`
	GoalAmount   int64      `json:"goal_amount"`
	RaisedAmount int64      `json:"raised_amount"`
	BackerCount  int        `json:"backer_count"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	Deadline     *time.Time `json:"deadline,omitempty"`
}

// CampaignView decorates a campaign with its computed progress.
type CampaignView struct {
	Campaign
	Progress        float64 `json:"progress"`
	ProgressPercent float64 `json:"progress_percent"`
}

// NewCampaignView computes progress for c.
func NewCampaignView(c Campaign) CampaignView {
	p := Progress(c.RaisedAmount, c.GoalAmount)
	return CampaignView{Campaign: c, Progress: p, ProgressPercent: ProgressPercent(c.RaisedAmount, c.GoalAmount)}
}

// CreateCampaignRequest is the payload for opening a campaign.
type CreateCampaignRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Category    string     `json:"category"`
	GoalAmount  int64      `json:"goal_amount"`
	Deadline    *time.Time `json:"deadline,omitempty"`
}

// UpdateCampaignRequest carries owner-editable fields.
type UpdateCampaignRequest struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Category    *string    `json:"category,omitempty"`
	Deadline    *time.Time `json:"deadline,omitempty"`
}

// CampaignFilter narrows campaign listings. Zero values match everything.
type CampaignFilter struct {
	Category string
	Status   string
	VendorID *uuid.UUID
	Limit    int
	Offset   int
}

// Progress returns the funded fraction of goal in [0, 1]. A goal of zero or
// less yields 0.
func Progress(raised, goal int64) float64 {
	if goal <= 0 || raised <= 0 {
		return 0
	}
	if raised >= goal {
		return 1
	}
	return float64(raised) / float64(goal)
}

// ProgressPercent is Progress scaled to [0, 100].
func ProgressPercent(raised, goal int64) float64 {
	if goal <= 0 || raised <= 0 {
		return 0
	}
	if raised >= goal {
		return 100
	}
	return float64(raised) * 100 / float64(goal)
}

// ValidCampaignStatus reports whether s is a known campaign status.
func ValidCampaignStatus(s string) bool {
	switch s {
	case CampaignStatusActive, CampaignStatusCompleted, CampaignStatusClosed:
		return true
	}
	return false
}
