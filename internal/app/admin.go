package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/fundlink/fundlink-service/internal/domain"
	"github.com/fundlink/fundlink-service/internal/store"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// PlatformStats gathers the admin dashboard counters concurrently.
func (s *Service) PlatformStats(ctx context.Context, admin *domain.User) (*domain.PlatformStats, error) {
	if err := RequireRole(admin, domain.RoleAdmin); err != nil {
		return nil, err
	}

	var (
		byRole         map[domain.Role]int
		total, active  int
		verifiedCount  int
		verifiedAmount int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		byRole, err = s.repo.CountUsersByRole(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		total, active, err = s.repo.CountCampaigns(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		verifiedCount, verifiedAmount, err = s.repo.ContributionTotals(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to collect platform stats: %w", err)
	}

	stats := &domain.PlatformStats{
		Vendors:             byRole[domain.RoleVendor],
		Investors:           byRole[domain.RoleInvestor],
		Campaigns:           total,
		ActiveCampaigns:     active,
		Contributions:       verifiedCount,
		TotalVerifiedAmount: verifiedAmount,
	}
	for _, n := range byRole {
		stats.Users += n
	}
	return stats, nil
}

// DeleteUser removes a user. Their campaigns, messages and conversations go with them.
func (s *Service) DeleteUser(ctx context.Context, admin *domain.User, userID uuid.UUID) error {
	if err := RequireRole(admin, domain.RoleAdmin); err != nil {
		return err
	}
	if admin.ID == userID {
		return invalidInput("admins cannot delete themselves")
	}
	if err := s.repo.DeleteUser(ctx, userID); err != nil {
		return err
	}
	// The database cascade does not reach the key-value records.
	if err := s.purgeUserRecords(ctx, userID); err != nil {
		s.logger.Error("failed to purge user records", "user_id", userID, "error", err)
		return err
	}
	s.logger.Info("user deleted", "user_id", userID, "admin_id", admin.ID)
	return nil
}

// purgeUserRecords removes the user's posts, notifications and connection
// requests, including the mirrored copy each request keeps for the other side.
func (s *Service) purgeUserRecords(ctx context.Context, userID uuid.UUID) error {
	id := userID.String()
	posts, err := s.posts.DeleteAll(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to purge posts: %w", err)
	}
	notifications, err := s.notifications.DeleteAll(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to purge notifications: %w", err)
	}

	connections := 0
	for _, side := range []string{connectionsByInvestor, connectionsByVendor} {
		requests, err := s.connections.List(ctx, side, id)
		if err != nil {
			return fmt.Errorf("failed to list connections: %w", err)
		}
		for _, request := range requests {
			investorID, vendorID := request.InvestorID.String(), request.VendorID.String()
			if err := s.connections.Delete(ctx, connectionsByInvestor, investorID, vendorID); err != nil {
				return fmt.Errorf("failed to purge connection: %w", err)
			}
			if err := s.connections.Delete(ctx, connectionsByVendor, vendorID, investorID); err != nil {
				return fmt.Errorf("failed to purge connection: %w", err)
			}
			connections++
		}
	}

	s.logger.Info("purged user records", "user_id", userID, "posts", posts, "notifications", notifications, "connections", connections)
	return nil
}

// DeleteCampaign removes a campaign and its contributions.
func (s *Service) DeleteCampaign(ctx context.Context, admin *domain.User, campaignID uuid.UUID) error {
	if err := RequireRole(admin, domain.RoleAdmin); err != nil {
		return err
	}
	if err := s.repo.DeleteCampaign(ctx, campaignID); err != nil {
		return err
	}
	s.logger.Info("campaign deleted", "campaign_id", campaignID, "admin_id", admin.ID)
	return nil
}

// PaymentSettings returns the payment details shown to contributors.
func (s *Service) PaymentSettings(ctx context.Context) (*domain.PaymentSettings, error) {
	settings, err := s.repo.GetPaymentSettings(ctx)
	if errors.Is(err, store.ErrSettingsNotFound) {
		return nil, ErrPaymentNotConfigured
	}
	return settings, err
}

// UpdatePaymentSettings replaces the payment details. A QR code URL is required.
func (s *Service) UpdatePaymentSettings(ctx context.Context, admin *domain.User, settings domain.PaymentSettings) (*domain.PaymentSettings, error) {
	if err := RequireRole(admin, domain.RoleAdmin); err != nil {
		return nil, err
	}
	settings.QRCodeURL = strings.TrimSpace(settings.QRCodeURL)
	if settings.QRCodeURL == "" {
		return nil, invalidInput("qr_code_url is required")
	}
	if u, err := url.Parse(settings.QRCodeURL); err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return nil, invalidInput("qr_code_url must be an http(s) URL")
	}
	settings.UPIID = sanitizeText(settings.UPIID)
	settings.AccountNumber = sanitizeText(settings.AccountNumber)
	settings.BankName = sanitizeText(settings.BankName)
	settings.UpdatedAt = s.now()

	if err := s.repo.UpsertPaymentSettings(ctx, &settings); err != nil {
		return nil, err
	}
	s.logger.Info("payment settings updated", "admin_id", admin.ID)
	return &settings, nil
}

// UploadPaymentQR stores a QR image in the media store and points the payment
// settings at it. The previous image is deleted on a best-effort basis.
func (s *Service) UploadPaymentQR(ctx context.Context, admin *domain.User, file io.Reader, filename string) (*domain.PaymentSettings, error) {
	if err := RequireRole(admin, domain.RoleAdmin); err != nil {
		return nil, err
	}
	if s.media == nil {
		return nil, ErrMediaStoreUnavailable
	}

	current, err := s.repo.GetPaymentSettings(ctx)
	if err != nil && !errors.Is(err, store.ErrSettingsNotFound) {
		return nil, err
	}

	imageURL, err := s.media.UploadImage(ctx, file, filename)
	if err != nil {
		return nil, fmt.Errorf("failed to upload payment QR: %w", err)
	}

	next := domain.PaymentSettings{QRCodeURL: imageURL}
	if current != nil {
		next.UPIID = current.UPIID
		next.AccountNumber = current.AccountNumber
		next.BankName = current.BankName
	}
	updated, err := s.UpdatePaymentSettings(ctx, admin, next)
	if err != nil {
		return nil, err
	}

	if current != nil && current.QRCodeURL != "" && current.QRCodeURL != imageURL {
		if err := s.media.DeleteImage(ctx, current.QRCodeURL); err != nil {
			s.logger.Warn("failed to delete previous payment QR", "url", current.QRCodeURL, "error", err)
		}
	}
	return updated, nil
}
