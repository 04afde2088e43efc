package app

import (
	"context"
	"strings"

	"github.com/fundlink/fundlink-service/internal/domain"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
)

const (
	maxCampaignTitleLength       = 200
	maxCampaignDescriptionLength = 10000
)

var textPolicy = bluemonday.StrictPolicy()

// sanitizeText strips markup from user-supplied text and trims it.
func sanitizeText(s string) string {
	return strings.TrimSpace(textPolicy.Sanitize(s))
}

// CreateCampaign opens a campaign for a vendor.
func (s *Service) CreateCampaign(ctx context.Context, vendor *domain.User, req domain.CreateCampaignRequest) (*domain.CampaignView, error) {
	if err := RequireRole(vendor, domain.RoleVendor); err != nil {
		return nil, err
	}
	title := sanitizeText(req.Title)
	if title == "" {
		return nil, invalidInput("title is required")
	}
	if len(title) > maxCampaignTitleLength {
		return nil, invalidInput("title must be at most %d characters", maxCampaignTitleLength)
	}
	description := sanitizeText(req.Description)
	if len(description) > maxCampaignDescriptionLength {
		return nil, invalidInput("description must be at most %d characters", maxCampaignDescriptionLength)
	}
	if req.GoalAmount <= 0 {
		return nil, invalidInput("goal_amount must be greater than zero")
	}
	if req.Deadline != nil && !req.Deadline.After(s.now()) {
		return nil, invalidInput("deadline must be in the future")
	}

	campaign := &domain.Campaign{
		VendorID:    vendor.ID,
		VendorName:  vendor.Name,
		Title:       title,
		Description: description,
		Category:    sanitizeText(req.Category),
		GoalAmount:  req.GoalAmount,
		Status:      domain.CampaignStatusActive,
		Deadline:    req.Deadline,
	}
	if err := s.repo.CreateCampaign(ctx, campaign); err != nil {
		return nil, err
	}
	s.logger.Info("campaign created", "campaign_id", campaign.ID, "vendor_id", vendor.ID, "goal_amount", campaign.GoalAmount)

	view := domain.NewCampaignView(*campaign)
	return &view, nil
}

// GetCampaign returns one campaign with its progress.
func (s *Service) GetCampaign(ctx context.Context, campaignID uuid.UUID) (*domain.CampaignView, error) {
	campaign, err := s.repo.FindCampaignByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	view := domain.NewCampaignView(*campaign)
	return &view, nil
}

// ListCampaigns returns campaigns with progress, newest first.
func (s *Service) ListCampaigns(ctx context.Context, filter domain.CampaignFilter) ([]domain.CampaignView, error) {
	if filter.Status != "" && !domain.ValidCampaignStatus(filter.Status) {
		return nil, invalidInput("unknown status %q", filter.Status)
	}
	campaigns, err := s.repo.ListCampaigns(ctx, filter)
	if err != nil {
		return nil, err
	}
	views := make([]domain.CampaignView, 0, len(campaigns))
	for _, campaign := range campaigns {
		views = append(views, domain.NewCampaignView(campaign))
	}
	return views, nil
}

// UpdateCampaign applies owner edits to the descriptive fields.
func (s *Service) UpdateCampaign(ctx context.Context, user *domain.User, campaignID uuid.UUID, req domain.UpdateCampaignRequest) (*domain.CampaignView, error) {
	if _, err := s.ownedCampaign(ctx, user, campaignID, false); err != nil {
		return nil, err
	}
	if req.Title != nil {
		title := sanitizeText(*req.Title)
		if title == "" || len(title) > maxCampaignTitleLength {
			return nil, invalidInput("title must be 1 to %d characters", maxCampaignTitleLength)
		}
		req.Title = &title
	}
	if req.Description != nil {
		description := sanitizeText(*req.Description)
		if len(description) > maxCampaignDescriptionLength {
			return nil, invalidInput("description must be at most %d characters", maxCampaignDescriptionLength)
		}
		req.Description = &description
	}
	if req.Category != nil {
		category := sanitizeText(*req.Category)
		req.Category = &category
	}
	if req.Deadline != nil && !req.Deadline.After(s.now()) {
		return nil, invalidInput("deadline must be in the future")
	}

	campaign, err := s.repo.UpdateCampaign(ctx, campaignID, req)
	if err != nil {
		return nil, err
	}
	view := domain.NewCampaignView(*campaign)
	return &view, nil
}

// SetCampaignStatus changes the lifecycle status. Owners and admins only.
func (s *Service) SetCampaignStatus(ctx context.Context, user *domain.User, campaignID uuid.UUID, status string) (*domain.CampaignView, error) {
	if !domain.ValidCampaignStatus(status) {
		return nil, invalidInput("unknown status %q", status)
	}
	if _, err := s.ownedCampaign(ctx, user, campaignID, true); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateCampaignStatus(ctx, campaignID, status); err != nil {
		return nil, err
	}
	s.logger.Info("campaign status changed", "campaign_id", campaignID, "status", status, "by", user.ID)
	return s.GetCampaign(ctx, campaignID)
}

// CampaignContributions lists a campaign's contributions for its owner or an admin.
func (s *Service) CampaignContributions(ctx context.Context, user *domain.User, campaignID uuid.UUID) ([]domain.Contribution, error) {
	if _, err := s.ownedCampaign(ctx, user, campaignID, true); err != nil {
		return nil, err
	}
	return s.repo.ListContributionsByCampaign(ctx, campaignID)
}

func (s *Service) ownedCampaign(ctx context.Context, user *domain.User, campaignID uuid.UUID, allowAdmin bool) (*domain.Campaign, error) {
	roles := []domain.Role{domain.RoleVendor}
	if allowAdmin {
		roles = append(roles, domain.RoleAdmin)
	}
	if err := RequireRole(user, roles...); err != nil {
		return nil, err
	}
	campaign, err := s.repo.FindCampaignByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if user.Role != domain.RoleAdmin && campaign.VendorID != user.ID {
		return nil, ErrForbidden
	}
	return campaign, nil
}
