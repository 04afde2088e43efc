package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fundlink/fundlink-service/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const contributionColumns = `
	ct.id, ct.campaign_id, COALESCE(c.title, ''), ct.contributor_id, ct.contributor_name,
	ct.amount, ct.payment_reference, ct.status, ct.message, ct.rejection_reason,
	ct.created_at, ct.verified_at
`

const contributionFrom = ` FROM contributions ct LEFT JOIN campaigns c ON c.id = ct.campaign_id`

func scanContribution(row pgx.Row) (*domain.Contribution, error) {
	var (
		contribution  domain.Contribution
		contributorID uuid.NullUUID
		status        string
	)
	err := row.Scan(
		&contribution.ID,
		&contribution.CampaignID,
		&contribution.CampaignTitle,
		&contributorID,
		&contribution.ContributorName,
		&contribution.Amount,
		&contribution.PaymentReference,
		&status,
		&contribution.Message,
		&contribution.RejectionReason,
		&contribution.CreatedAt,
		&contribution.VerifiedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrContributionNotFound
		}
		return nil, err
	}
	if contributorID.Valid {
		contribution.ContributorID = contributorID.UUID
	}
	contribution.Status = domain.ContributionStatus(status)
	return &contribution, nil
}

func scanContributions(rows pgx.Rows) ([]domain.Contribution, error) {
	defer rows.Close()
	contributions := []domain.Contribution{}
	for rows.Next() {
		contribution, err := scanContribution(rows)
		if err != nil {
			return nil, err
		}
		contributions = append(contributions, *contribution)
	}
	return contributions, rows.Err()
}

// lockContributionTx loads the contribution row FOR UPDATE.
func lockContributionTx(ctx context.Context, tx pgx.Tx, reference string) (*domain.Contribution, error) {
	query := `SELECT ` + contributionColumns + contributionFrom + ` WHERE ct.payment_reference = $1 FOR UPDATE OF ct`
	return scanContribution(tx.QueryRow(ctx, query, reference))
}

// CreateContributionIntent stores a contribution awaiting payment confirmation.
// The ledger is untouched until the contribution is verified.
func (r *PostgresRepository) CreateContributionIntent(ctx context.Context, contribution *domain.Contribution) error {
	contribution.Status = domain.ContributionAwaitingConfirmation
	query := `
		INSERT INTO contributions (campaign_id, contributor_id, contributor_name, amount, payment_reference, status, message)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`
	err := r.db.QueryRow(ctx, query,
		contribution.CampaignID,
		contribution.ContributorID,
		contribution.ContributorName,
		contribution.Amount,
		contribution.PaymentReference,
		string(contribution.Status),
		contribution.Message,
	).Scan(&contribution.ID, &contribution.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateReference
		}
		if isForeignKeyViolation(err) {
			return ErrCampaignNotFound
		}
		return err
	}
	return nil
}

// FindContributionByReference retrieves a contribution by its payment reference.
func (r *PostgresRepository) FindContributionByReference(ctx context.Context, reference string) (*domain.Contribution, error) {
	query := `SELECT ` + contributionColumns + contributionFrom + ` WHERE ct.payment_reference = $1`
	return scanContribution(r.db.QueryRow(ctx, query, reference))
}

// MarkContributionVerifying records that the contributor reports having paid.
// Repeating the call while already verifying is a no-op.
func (r *PostgresRepository) MarkContributionVerifying(ctx context.Context, reference string, contributorID uuid.UUID) (*domain.Contribution, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	contribution, err := lockContributionTx(ctx, tx, reference)
	if err != nil {
		return nil, err
	}
	if contribution.ContributorID != contributorID {
		return nil, ErrNotContributionOwner
	}
	if contribution.Status == domain.ContributionVerifying {
		return contribution, nil
	}
	if !contribution.Status.CanTransition(domain.ContributionVerifying) {
		return nil, ErrInvalidTransition
	}

	_, err = tx.Exec(ctx, `
		UPDATE contributions SET status = 'verifying', updated_at = NOW() WHERE id = $1
	`, contribution.ID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	contribution.Status = domain.ContributionVerifying
	return contribution, nil
}

// creditCampaignSQL adds one verified contribution to the campaign counters.
// Both columns are incremented in place so concurrent credits never overwrite
// each other with a stale read.
const creditCampaignSQL = `
	WITH updated AS (
		UPDATE campaigns
		SET raised_amount = raised_amount + $2::bigint,
			backer_count = backer_count + 1,
			updated_at = NOW()
		WHERE id = $1
		RETURNING *
	)
	SELECT ` + campaignColumns + ` FROM updated c LEFT JOIN users u ON u.id = c.vendor_id
`

// RecordVerifiedContribution is the ledger's single write path. In one
// transaction it moves the contribution to verified, increments the parent
// campaign's raised amount and backer count, and enqueues
// contribution.verified. A reference that is already verified leaves the
// ledger untouched and reports Applied=false.
func (r *PostgresRepository) RecordVerifiedContribution(ctx context.Context, params VerifyContributionParams) (*VerifyContributionResult, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// 1. Lock the contribution and validate the transition
	contribution, err := lockContributionTx(ctx, tx, params.PaymentReference)
	if err != nil {
		return nil, err
	}
	if contribution.Status == domain.ContributionVerified {
		campaign, err := r.FindCampaignByID(ctx, contribution.CampaignID)
		if err != nil {
			return nil, err
		}
		return &VerifyContributionResult{Contribution: contribution, Campaign: campaign, Applied: false}, nil
	}
	if !contribution.Status.CanTransition(domain.ContributionVerified) {
		return nil, ErrInvalidTransition
	}
	if params.Amount != 0 && params.Amount != contribution.Amount {
		return nil, ErrAmountMismatch
	}

	// 2. Mark the contribution verified
	var verifiedAt time.Time
	err = tx.QueryRow(ctx, `
		UPDATE contributions
		SET status = 'verified',
			verified_at = NOW(),
			gateway_event_id = NULLIF($2, ''),
			updated_at = NOW()
		WHERE id = $1
		RETURNING verified_at
	`, contribution.ID, params.GatewayEventID).Scan(&verifiedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to mark contribution verified: %w", err)
	}
	contribution.Status = domain.ContributionVerified
	contribution.VerifiedAt = &verifiedAt

	// 3. Increment the ledger in place; concurrent verifications serialize on the row lock
	campaign, err := scanCampaign(tx.QueryRow(ctx, creditCampaignSQL, contribution.CampaignID, contribution.Amount))
	if err != nil {
		return nil, fmt.Errorf("failed to update campaign ledger: %w", err)
	}

	// 4. Enqueue the event within the same DB transaction
	event := domain.ContributionVerifiedEvent{
		ContributionID:   contribution.ID,
		CampaignID:       campaign.ID,
		VendorID:         campaign.VendorID,
		ContributorID:    contribution.ContributorID,
		Amount:           contribution.Amount,
		PaymentReference: contribution.PaymentReference,
		RaisedAmount:     campaign.RaisedAmount,
		BackerCount:      campaign.BackerCount,
		GoalAmount:       campaign.GoalAmount,
		VerifiedAt:       verifiedAt,
	}
	if err := enqueueEventTx(ctx, tx, r.exchange, domain.EventContributionVerified, event); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &VerifyContributionResult{Contribution: contribution, Campaign: campaign, Applied: true}, nil
}

// RejectContribution moves a pending contribution to rejected. Rejecting an
// already rejected contribution returns it unchanged.
func (r *PostgresRepository) RejectContribution(ctx context.Context, reference string, reason string) (*domain.Contribution, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	contribution, err := lockContributionTx(ctx, tx, reference)
	if err != nil {
		return nil, err
	}
	if contribution.Status == domain.ContributionRejected {
		return contribution, nil
	}
	if !contribution.Status.CanTransition(domain.ContributionRejected) {
		return nil, ErrInvalidTransition
	}

	_, err = tx.Exec(ctx, `
		UPDATE contributions
		SET status = 'rejected', rejection_reason = $2, updated_at = NOW()
		WHERE id = $1
	`, contribution.ID, reason)
	if err != nil {
		return nil, err
	}

	event := domain.ContributionRejectedEvent{
		ContributionID:   contribution.ID,
		CampaignID:       contribution.CampaignID,
		ContributorID:    contribution.ContributorID,
		PaymentReference: contribution.PaymentReference,
		Reason:           reason,
	}
	if err := enqueueEventTx(ctx, tx, r.exchange, domain.EventContributionRejected, event); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	contribution.Status = domain.ContributionRejected
	contribution.RejectionReason = &reason
	return contribution, nil
}

// ExpirePendingContributions rejects intents created before createdBefore that
// were never confirmed.
func (r *PostgresRepository) ExpirePendingContributions(ctx context.Context, createdBefore time.Time) ([]ExpiredContribution, error) {
	const reason = "payment confirmation window expired"

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		UPDATE contributions
		SET status = 'rejected', rejection_reason = $2, updated_at = NOW()
		WHERE status IN ('awaiting_confirmation', 'verifying')
		  AND created_at < $1
		RETURNING id, campaign_id, contributor_id, payment_reference
	`, createdBefore, reason)
	if err != nil {
		return nil, err
	}

	var expired []ExpiredContribution
	for rows.Next() {
		var (
			item          ExpiredContribution
			contributorID uuid.NullUUID
		)
		if err := rows.Scan(&item.ID, &item.CampaignID, &contributorID, &item.PaymentReference); err != nil {
			rows.Close()
			return nil, err
		}
		if contributorID.Valid {
			item.ContributorID = contributorID.UUID
		}
		expired = append(expired, item)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, item := range expired {
		event := domain.ContributionRejectedEvent{
			ContributionID:   item.ID,
			CampaignID:       item.CampaignID,
			ContributorID:    item.ContributorID,
			PaymentReference: item.PaymentReference,
			Reason:           reason,
		}
		if err := enqueueEventTx(ctx, tx, r.exchange, domain.EventContributionRejected, event); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return expired, nil
}

// ListContributionsByContributor returns a user's contributions, newest first.
func (r *PostgresRepository) ListContributionsByContributor(ctx context.Context, contributorID uuid.UUID) ([]domain.Contribution, error) {
	query := `SELECT ` + contributionColumns + contributionFrom + ` WHERE ct.contributor_id = $1 ORDER BY ct.created_at DESC`
	rows, err := r.db.Query(ctx, query, contributorID)
	if err != nil {
		return nil, err
	}
	return scanContributions(rows)
}

// ListContributionsByCampaign returns a campaign's contributions, newest first.
func (r *PostgresRepository) ListContributionsByCampaign(ctx context.Context, campaignID uuid.UUID) ([]domain.Contribution, error) {
	query := `SELECT ` + contributionColumns + contributionFrom + ` WHERE ct.campaign_id = $1 ORDER BY ct.created_at DESC`
	rows, err := r.db.Query(ctx, query, campaignID)
	if err != nil {
		return nil, err
	}
	return scanContributions(rows)
}

// FindLedgerDrift lists campaigns whose counters disagree with the sum and
// count of their verified contributions.
func (r *PostgresRepository) FindLedgerDrift(ctx context.Context) ([]domain.LedgerDrift, error) {
	rows, err := r.db.Query(ctx, `
		SELECT c.id, c.raised_amount, c.backer_count, COALESCE(v.total, 0), COALESCE(v.backers, 0)
		FROM campaigns c
		LEFT JOIN (
			SELECT campaign_id, SUM(amount) AS total, COUNT(*) AS backers
			FROM contributions
			WHERE status = 'verified'
			GROUP BY campaign_id
		) v ON v.campaign_id = c.id
		WHERE c.raised_amount <> COALESCE(v.total, 0)
		   OR c.backer_count <> COALESCE(v.backers, 0)
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var drifts []domain.LedgerDrift
	for rows.Next() {
		var drift domain.LedgerDrift
		if err := rows.Scan(&drift.CampaignID, &drift.RecordedRaised, &drift.RecordedBackers, &drift.VerifiedSum, &drift.VerifiedCount); err != nil {
			return nil, err
		}
		drifts = append(drifts, drift)
	}
	return drifts, rows.Err()
}

// RepairCampaignLedger recomputes a campaign's counters from its verified
// contributions and returns the values it replaced, or nil when the counters
// were already consistent.
func (r *PostgresRepository) RepairCampaignLedger(ctx context.Context, campaignID uuid.UUID) (*domain.LedgerDrift, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	drift := domain.LedgerDrift{CampaignID: campaignID}
	err = tx.QueryRow(ctx, `
		SELECT raised_amount, backer_count FROM campaigns WHERE id = $1 FOR UPDATE
	`, campaignID).Scan(&drift.RecordedRaised, &drift.RecordedBackers)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCampaignNotFound
		}
		return nil, err
	}

	err = tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0), COUNT(*)
		FROM contributions
		WHERE campaign_id = $1 AND status = 'verified'
	`, campaignID).Scan(&drift.VerifiedSum, &drift.VerifiedCount)
	if err != nil {
		return nil, err
	}
	if drift.RecordedRaised == drift.VerifiedSum && drift.RecordedBackers == drift.VerifiedCount {
		return nil, nil
	}

	_, err = tx.Exec(ctx, `
		UPDATE campaigns SET raised_amount = $2, backer_count = $3, updated_at = NOW() WHERE id = $1
	`, campaignID, drift.VerifiedSum, drift.VerifiedCount)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &drift, nil
}
