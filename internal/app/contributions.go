package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/fundlink/fundlink-service/internal/domain"
	"github.com/fundlink/fundlink-service/internal/store"
	"github.com/google/uuid"
)

// Payment gateway event types accepted by HandlePaymentEvent.
const (
	PaymentEventSucceeded = "payment.succeeded"
	PaymentEventFailed    = "payment.failed"
)

// PaymentEvent is the body of a signed payment gateway callback.
type PaymentEvent struct {
	ID               string `json:"id"`
	Type             string `json:"type"`
	PaymentReference string `json:"payment_reference"`
	Amount           int64  `json:"amount"`
	Reason           string `json:"reason,omitempty"`
}

// BeginContribution validates the amount and opens a payment confirmation
// flow. Nothing touches the ledger until the payment is confirmed.
func (s *Service) BeginContribution(ctx context.Context, user *domain.User, campaignID uuid.UUID, req domain.BeginContributionRequest) (*domain.PaymentInstructions, error) {
	if err := RequireRole(user, domain.RoleInvestor); err != nil {
		return nil, err
	}
	if err := s.validateContributionAmount(req.Amount); err != nil {
		return nil, err
	}

	campaign, err := s.repo.FindCampaignByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if campaign.Status != domain.CampaignStatusActive {
		return nil, ErrCampaignNotActive
	}
	if campaign.Deadline != nil && !campaign.Deadline.After(s.now()) {
		return nil, ErrCampaignNotActive
	}

	settings, err := s.repo.GetPaymentSettings(ctx)
	if err != nil {
		if errors.Is(err, store.ErrSettingsNotFound) {
			return nil, ErrPaymentNotConfigured
		}
		return nil, err
	}
	if strings.TrimSpace(settings.QRCodeURL) == "" {
		return nil, ErrPaymentNotConfigured
	}

	name := sanitizeText(req.ContributorName)
	if name == "" {
		name = user.Name
	}
	contribution := &domain.Contribution{
		CampaignID:       campaign.ID,
		CampaignTitle:    campaign.Title,
		ContributorID:    user.ID,
		ContributorName:  name,
		Amount:           req.Amount,
		PaymentReference: newPaymentReference(),
		Message:          sanitizeText(req.Message),
	}
	if err := s.repo.CreateContributionIntent(ctx, contribution); err != nil {
		return nil, err
	}
	s.logger.Info("contribution intent created",
		"campaign_id", campaign.ID,
		"contributor_id", user.ID,
		"payment_reference", contribution.PaymentReference,
		"amount", contribution.Amount,
	)

	return &domain.PaymentInstructions{
		Contribution:  contribution,
		QRCodeURL:     settings.QRCodeURL,
		UPIID:         settings.UPIID,
		AccountNumber: settings.AccountNumber,
		BankName:      settings.BankName,
		ExpiresAt:     contribution.CreatedAt.Add(s.intentTTL()),
	}, nil
}

func (s *Service) validateContributionAmount(amount int64) error {
	if amount <= 0 {
		return ErrAmountNotPositive
	}
	minimum := s.config.MinContribution
	if minimum <= 0 {
		minimum = 10
	}
	if amount < minimum {
		return ErrAmountTooSmall
	}
	return nil
}

func (s *Service) intentTTL() time.Duration {
	if s.config.PaymentIntentTTLMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(s.config.PaymentIntentTTLMinutes) * time.Minute
}

func newPaymentReference() string {
	return "FL-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
}

// MarkPaymentSent records the contributor's claim that they have paid.
func (s *Service) MarkPaymentSent(ctx context.Context, user *domain.User, reference string) (*domain.Contribution, error) {
	return s.repo.MarkContributionVerifying(ctx, strings.TrimSpace(reference), user.ID)
}

// ConfirmPayment moves a contribution to verified and records it on the
// campaign ledger atomically. Repeated confirmations of the same reference
// are no-ops.
func (s *Service) ConfirmPayment(ctx context.Context, reference string, amount int64, gatewayEventID string) (*store.VerifyContributionResult, error) {
	result, err := s.repo.RecordVerifiedContribution(ctx, store.VerifyContributionParams{
		PaymentReference: strings.TrimSpace(reference),
		Amount:           amount,
		GatewayEventID:   gatewayEventID,
	})
	if err != nil {
		return nil, err
	}

	if !result.Applied {
		s.logger.Info("duplicate payment confirmation ignored", "payment_reference", reference)
		return result, nil
	}
	s.metrics.ContributionsVerified.Inc()
	s.metrics.AmountVerified.Add(float64(result.Contribution.Amount))
	s.logger.Info("contribution verified",
		"payment_reference", reference,
		"campaign_id", result.Campaign.ID,
		"amount", result.Contribution.Amount,
		"raised_amount", result.Campaign.RaisedAmount,
		"backer_count", result.Campaign.BackerCount,
	)
	return result, nil
}

// RejectPayment closes a pending contribution without touching the ledger.
func (s *Service) RejectPayment(ctx context.Context, reference string, reason string) (*domain.Contribution, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "payment failed"
	}
	contribution, err := s.repo.RejectContribution(ctx, strings.TrimSpace(reference), reason)
	if err != nil {
		return nil, err
	}
	s.metrics.ContributionsRejected.Inc()
	s.logger.Info("contribution rejected", "payment_reference", reference, "reason", reason)
	return contribution, nil
}

// HandlePaymentEvent applies a verified gateway callback.
func (s *Service) HandlePaymentEvent(ctx context.Context, event PaymentEvent) error {
	if strings.TrimSpace(event.PaymentReference) == "" {
		return invalidInput("payment_reference is required")
	}
	switch event.Type {
	case PaymentEventSucceeded:
		if event.Amount <= 0 {
			return ErrAmountNotPositive
		}
		_, err := s.ConfirmPayment(ctx, event.PaymentReference, event.Amount, event.ID)
		return err
	case PaymentEventFailed:
		_, err := s.RejectPayment(ctx, event.PaymentReference, event.Reason)
		return err
	default:
		s.logger.Info("ignoring unsupported payment event", "event_id", event.ID, "type", event.Type)
		return nil
	}
}

// AdminVerifyContribution confirms a payment by hand through the same atomic path.
func (s *Service) AdminVerifyContribution(ctx context.Context, admin *domain.User, reference string) (*store.VerifyContributionResult, error) {
	if err := RequireRole(admin, domain.RoleAdmin); err != nil {
		return nil, err
	}
	return s.ConfirmPayment(ctx, reference, 0, "admin:"+admin.ID.String())
}

// AdminRejectContribution rejects a pending payment by hand.
func (s *Service) AdminRejectContribution(ctx context.Context, admin *domain.User, reference, reason string) (*domain.Contribution, error) {
	if err := RequireRole(admin, domain.RoleAdmin); err != nil {
		return nil, err
	}
	if strings.TrimSpace(reason) == "" {
		reason = "rejected by admin"
	}
	return s.RejectPayment(ctx, reference, reason)
}

// MyContributions lists the caller's contributions in every status.
func (s *Service) MyContributions(ctx context.Context, user *domain.User) ([]domain.Contribution, error) {
	return s.repo.ListContributionsByContributor(ctx, user.ID)
}

// InvestmentSummary totals the caller's verified contributions.
func (s *Service) InvestmentSummary(ctx context.Context, user *domain.User) (*domain.InvestmentSummary, error) {
	if err := RequireRole(user, domain.RoleInvestor); err != nil {
		return nil, err
	}
	contributions, err := s.repo.ListContributionsByContributor(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	summary := &domain.InvestmentSummary{Contributions: []domain.Contribution{}}
	campaigns := make(map[uuid.UUID]struct{})
	for _, contribution := range contributions {
		if !contribution.Verified() {
			continue
		}
		summary.TotalInvested += contribution.Amount
		summary.ContributionCount++
		campaigns[contribution.CampaignID] = struct{}{}
		summary.Contributions = append(summary.Contributions, contribution)
	}
	summary.CampaignsSupported = len(campaigns)
	return summary, nil
}
