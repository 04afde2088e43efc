/**
 * @description
 * This file defines the `Repository` interface, the contract for every data access
 * operation fundlink-service needs. Business logic depends on the interface so it
 * can be exercised against stubs in tests.
 *
 * @dependencies
 * - github.com/google/uuid: identifiers.
 * - internal/domain: the service's domain models.
 */

package store

import (
	"context"
	"errors"
	"time"

	"github.com/fundlink/fundlink-service/internal/domain"
	"github.com/google/uuid"
)

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrEmailTaken           = errors.New("email already registered")
	ErrRoleAlreadyAssigned  = errors.New("role already assigned")
	ErrCampaignNotFound     = errors.New("campaign not found")
	ErrContributionNotFound = errors.New("contribution not found")
	ErrDuplicateReference   = errors.New("payment reference already used")
	ErrInvalidTransition    = errors.New("invalid contribution status transition")
	ErrAmountMismatch       = errors.New("confirmed amount does not match contribution")
	ErrSettingsNotFound     = errors.New("settings not found")
	ErrNotContributionOwner = errors.New("contribution belongs to another user")
)

// VerifyContributionParams identifies the contribution to move to verified.
type VerifyContributionParams struct {
	PaymentReference string
	// Amount confirmed by the gateway. Zero skips the amount check.
	Amount         int64
	GatewayEventID string
}

// VerifyContributionResult reports the ledger state after verification.
type VerifyContributionResult struct {
	Contribution *domain.Contribution
	Campaign     *domain.Campaign
	// Applied is false when the reference had already been verified and the
	// ledger was left untouched.
	Applied bool
}

// ExpiredContribution is one intent rejected by the expiry sweep.
type ExpiredContribution struct {
	ID               uuid.UUID
	CampaignID       uuid.UUID
	ContributorID    uuid.UUID
	PaymentReference string
}

// OutboxMessage is one event waiting in event_outbox.
type OutboxMessage struct {
	ID         int64
	Exchange   string
	RoutingKey string
	Payload    []byte
	Attempts   int
}

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	Ping(ctx context.Context) error

	// Users and directory
	CreateUser(ctx context.Context, user *domain.User) error
	FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error)
	FindUserByEmail(ctx context.Context, email string) (*domain.User, error)
	UpdateUserProfile(ctx context.Context, userID uuid.UUID, req domain.UpdateProfileRequest) (*domain.User, error)
	AssignRole(ctx context.Context, userID uuid.UUID, role domain.Role, onlyIfUnset bool) error
	TouchLastActive(ctx context.Context, userID uuid.UUID, at time.Time) error
	ListUsersByRole(ctx context.Context, role domain.Role, limit int) ([]domain.User, error)
	DeleteUser(ctx context.Context, userID uuid.UUID) error

	// Campaigns
	CreateCampaign(ctx context.Context, campaign *domain.Campaign) error
	FindCampaignByID(ctx context.Context, campaignID uuid.UUID) (*domain.Campaign, error)
	ListCampaigns(ctx context.Context, filter domain.CampaignFilter) ([]domain.Campaign, error)
	UpdateCampaign(ctx context.Context, campaignID uuid.UUID, req domain.UpdateCampaignRequest) (*domain.Campaign, error)
	UpdateCampaignStatus(ctx context.Context, campaignID uuid.UUID, status string) error
	DeleteCampaign(ctx context.Context, campaignID uuid.UUID) error
	CompleteCampaignsPastDeadline(ctx context.Context, now time.Time) (int64, error)

	// Contributions and ledger
	CreateContributionIntent(ctx context.Context, contribution *domain.Contribution) error
	FindContributionByReference(ctx context.Context, reference string) (*domain.Contribution, error)
	MarkContributionVerifying(ctx context.Context, reference string, contributorID uuid.UUID) (*domain.Contribution, error)
	RecordVerifiedContribution(ctx context.Context, params VerifyContributionParams) (*VerifyContributionResult, error)
	RejectContribution(ctx context.Context, reference string, reason string) (*domain.Contribution, error)
	ExpirePendingContributions(ctx context.Context, createdBefore time.Time) ([]ExpiredContribution, error)
	ListContributionsByContributor(ctx context.Context, contributorID uuid.UUID) ([]domain.Contribution, error)
	ListContributionsByCampaign(ctx context.Context, campaignID uuid.UUID) ([]domain.Contribution, error)
	FindLedgerDrift(ctx context.Context) ([]domain.LedgerDrift, error)
	RepairCampaignLedger(ctx context.Context, campaignID uuid.UUID) (*domain.LedgerDrift, error)

	// Messaging
	AppendMessage(ctx context.Context, message *domain.Message) error
	ListMessages(ctx context.Context, conversationKey string, afterSeq int64, limit int) ([]domain.Message, error)
	MarkMessagesRead(ctx context.Context, conversationKey string, receiverID uuid.UUID, upToSeq int64) (int64, error)
	ListConversations(ctx context.Context, userID uuid.UUID) ([]domain.ConversationSummary, error)

	// Settings
	GetPaymentSettings(ctx context.Context) (*domain.PaymentSettings, error)
	UpsertPaymentSettings(ctx context.Context, settings *domain.PaymentSettings) error

	// Admin statistics
	CountUsersByRole(ctx context.Context) (map[domain.Role]int, error)
	CountCampaigns(ctx context.Context) (total int, active int, err error)
	ContributionTotals(ctx context.Context) (verifiedCount int, verifiedSum int64, err error)

	// Outbox
	EnqueueEvent(ctx context.Context, routingKey string, payload interface{}) error
	ClaimOutboxMessages(ctx context.Context, limit int, staleAfterSeconds int) ([]OutboxMessage, error)
	MarkOutboxPublished(ctx context.Context, id int64) error
	MarkOutboxFailed(ctx context.Context, id int64, retryAfterSeconds int, reason string) error
}
