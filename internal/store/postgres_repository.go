/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface
 * for users, campaigns, payment settings and admin statistics. Contribution,
 * messaging and outbox queries live in their own files.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fundlink/fundlink-service/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const paymentSettingsKey = "payment"

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db       *pgxpool.Pool
	exchange string
}

// NewPostgresRepository creates a new instance of PostgresRepository. Events
// written to the outbox are addressed to exchange.
func NewPostgresRepository(db *pgxpool.Pool, exchange string) *PostgresRepository {
	return &PostgresRepository{db: db, exchange: exchange}
}

// Ping checks database connectivity for health probes.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

const userColumns = `id, name, email, password_hash, role, industry, investment_range, bio, created_at, last_active_at`

func scanUser(row pgx.Row) (*domain.User, error) {
	var (
		user domain.User
		role string
	)
	err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&role,
		&user.Industry,
		&user.InvestmentRange,
		&user.Bio,
		&user.CreatedAt,
		&user.LastActiveAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	user.Role = domain.Role(role)
	return &user, nil
}

// CreateUser inserts the user row and enqueues user.registered in the same transaction.
func (r *PostgresRepository) CreateUser(ctx context.Context, user *domain.User) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO users (name, email, password_hash, role, industry, investment_range, bio)
		VALUES ($1, lower(btrim($2)), $3, $4, $5, $6, $7)
		RETURNING id, email, created_at
	`
	err = tx.QueryRow(ctx, query,
		user.Name,
		user.Email,
		user.PasswordHash,
		string(user.Role),
		user.Industry,
		user.InvestmentRange,
		user.Bio,
	).Scan(&user.ID, &user.Email, &user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrEmailTaken
		}
		return err
	}

	event := domain.UserRegisteredEvent{UserID: user.ID, Role: user.Role, CreatedAt: user.CreatedAt}
	if err := enqueueEventTx(ctx, tx, r.exchange, domain.EventUserRegistered, event); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// FindUserByID retrieves a user from the database by their ID.
func (r *PostgresRepository) FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.db.QueryRow(ctx, query, userID))
}

// FindUserByEmail looks a user up case-insensitively.
func (r *PostgresRepository) FindUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower(btrim($1))`
	return scanUser(r.db.QueryRow(ctx, query, email))
}

// UpdateUserProfile applies the non-nil fields of req.
func (r *PostgresRepository) UpdateUserProfile(ctx context.Context, userID uuid.UUID, req domain.UpdateProfileRequest) (*domain.User, error) {
	query := `
		UPDATE users
		SET name = COALESCE($2, name),
			industry = COALESCE($3, industry),
			investment_range = COALESCE($4, investment_range),
			bio = COALESCE($5, bio),
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + userColumns
	return scanUser(r.db.QueryRow(ctx, query, userID, req.Name, req.Industry, req.InvestmentRange, req.Bio))
}

// AssignRole stores role for the user. With onlyIfUnset the update only
// applies to users that have no role yet.
func (r *PostgresRepository) AssignRole(ctx context.Context, userID uuid.UUID, role domain.Role, onlyIfUnset bool) error {
	query := `UPDATE users SET role = $2, updated_at = NOW() WHERE id = $1`
	if onlyIfUnset {
		query += ` AND role = ''`
	}
	result, err := r.db.Exec(ctx, query, userID, string(role))
	if err != nil {
		return err
	}
	if result.RowsAffected() > 0 {
		return nil
	}
	if _, err := r.FindUserByID(ctx, userID); err != nil {
		return err
	}
	return ErrRoleAlreadyAssigned
}

// TouchLastActive records the user's latest authenticated activity.
func (r *PostgresRepository) TouchLastActive(ctx context.Context, userID uuid.UUID, at time.Time) error {
	_, err := r.db.Exec(ctx, `UPDATE users SET last_active_at = $2 WHERE id = $1`, userID, at)
	return err
}

// ListUsersByRole returns users holding role, most recently active first.
func (r *PostgresRepository) ListUsersByRole(ctx context.Context, role domain.Role, limit int) ([]domain.User, error) {
	if limit <= 0 || limit > 500 {
		limit = 500
	}
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE role = $1
		ORDER BY last_active_at DESC NULLS LAST, created_at DESC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, string(role), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}
	return users, rows.Err()
}

// DeleteUser removes the user. Their campaigns cascade; their contributions
// keep counting toward other campaigns with the contributor detached.
func (r *PostgresRepository) DeleteUser(ctx context.Context, userID uuid.UUID) error {
	result, err := r.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, userID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

const campaignColumns = `
	c.id, c.vendor_id, COALESCE(u.name, ''), c.title, c.description, c.category,
	c.goal_amount, c.raised_amount, c.backer_count, c.status,
	c.created_at, c.updated_at, c.deadline
`

func scanCampaign(row pgx.Row) (*domain.Campaign, error) {
	var campaign domain.Campaign
	err := row.Scan(
		&campaign.ID,
		&campaign.VendorID,
		&campaign.VendorName,
		&campaign.Title,
		&campaign.Description,
		&campaign.Category,
		&campaign.GoalAmount,
		&campaign.RaisedAmount,
		&campaign.BackerCount,
		&campaign.Status,
		&campaign.CreatedAt,
		&campaign.UpdatedAt,
		&campaign.Deadline,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCampaignNotFound
		}
		return nil, err
	}
	return &campaign, nil
}

// CreateCampaign inserts a new campaign with an empty ledger.
func (r *PostgresRepository) CreateCampaign(ctx context.Context, campaign *domain.Campaign) error {
	if campaign.Status == "" {
		campaign.Status = domain.CampaignStatusActive
	}
	query := `
		INSERT INTO campaigns (vendor_id, title, description, category, goal_amount, status, deadline)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, raised_amount, backer_count, created_at, updated_at
	`
	return r.db.QueryRow(ctx, query,
		campaign.VendorID,
		campaign.Title,
		campaign.Description,
		campaign.Category,
		campaign.GoalAmount,
		campaign.Status,
		campaign.Deadline,
	).Scan(&campaign.ID, &campaign.RaisedAmount, &campaign.BackerCount, &campaign.CreatedAt, &campaign.UpdatedAt)
}

// FindCampaignByID retrieves one campaign with its vendor's name.
func (r *PostgresRepository) FindCampaignByID(ctx context.Context, campaignID uuid.UUID) (*domain.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns c LEFT JOIN users u ON u.id = c.vendor_id WHERE c.id = $1`
	return scanCampaign(r.db.QueryRow(ctx, query, campaignID))
}

// ListCampaigns returns campaigns matching filter, newest first.
func (r *PostgresRepository) ListCampaigns(ctx context.Context, filter domain.CampaignFilter) ([]domain.Campaign, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := `SELECT ` + campaignColumns + ` FROM campaigns c LEFT JOIN users u ON u.id = c.vendor_id WHERE TRUE`
	args := []interface{}{}
	argPos := 1
	if category := strings.TrimSpace(filter.Category); category != "" {
		query += fmt.Sprintf(` AND lower(c.category) = lower($%d)`, argPos)
		args = append(args, category)
		argPos++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(` AND c.status = $%d`, argPos)
		args = append(args, filter.Status)
		argPos++
	}
	if filter.VendorID != nil {
		query += fmt.Sprintf(` AND c.vendor_id = $%d`, argPos)
		args = append(args, *filter.VendorID)
		argPos++
	}
	query += fmt.Sprintf(` ORDER BY c.created_at DESC LIMIT $%d OFFSET $%d`, argPos, argPos+1)
	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	campaigns := []domain.Campaign{}
	for rows.Next() {
		campaign, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, *campaign)
	}
	return campaigns, rows.Err()
}

// UpdateCampaign applies owner edits. Ledger columns are never touched here.
func (r *PostgresRepository) UpdateCampaign(ctx context.Context, campaignID uuid.UUID, req domain.UpdateCampaignRequest) (*domain.Campaign, error) {
	query := `
		UPDATE campaigns
		SET title = COALESCE($2, title),
			description = COALESCE($3, description),
			category = COALESCE($4, category),
			deadline = COALESCE($5, deadline),
			updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.db.Exec(ctx, query, campaignID, req.Title, req.Description, req.Category, req.Deadline)
	if err != nil {
		return nil, err
	}
	if result.RowsAffected() == 0 {
		return nil, ErrCampaignNotFound
	}
	return r.FindCampaignByID(ctx, campaignID)
}

// UpdateCampaignStatus sets the campaign's lifecycle status.
func (r *PostgresRepository) UpdateCampaignStatus(ctx context.Context, campaignID uuid.UUID, status string) error {
	result, err := r.db.Exec(ctx, `UPDATE campaigns SET status = $2, updated_at = NOW() WHERE id = $1`, campaignID, status)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrCampaignNotFound
	}
	return nil
}

// DeleteCampaign removes a campaign and its contributions.
func (r *PostgresRepository) DeleteCampaign(ctx context.Context, campaignID uuid.UUID) error {
	result, err := r.db.Exec(ctx, `DELETE FROM campaigns WHERE id = $1`, campaignID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrCampaignNotFound
	}
	return nil
}

// CompleteCampaignsPastDeadline closes active campaigns whose deadline has passed.
func (r *PostgresRepository) CompleteCampaignsPastDeadline(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.Exec(ctx, `
		UPDATE campaigns
		SET status = 'completed', updated_at = NOW()
		WHERE status = 'active' AND deadline IS NOT NULL AND deadline <= $1
	`, now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

// GetPaymentSettings loads the admin-configured payment details.
func (r *PostgresRepository) GetPaymentSettings(ctx context.Context) (*domain.PaymentSettings, error) {
	var (
		blob      []byte
		updatedAt time.Time
	)
	err := r.db.QueryRow(ctx, `SELECT value, updated_at FROM settings WHERE key = $1`, paymentSettingsKey).Scan(&blob, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSettingsNotFound
		}
		return nil, err
	}
	var settings domain.PaymentSettings
	if err := json.Unmarshal(blob, &settings); err != nil {
		return nil, fmt.Errorf("failed to decode payment settings: %w", err)
	}
	settings.UpdatedAt = updatedAt
	return &settings, nil
}

// UpsertPaymentSettings replaces the payment details.
func (r *PostgresRepository) UpsertPaymentSettings(ctx context.Context, settings *domain.PaymentSettings) error {
	blob, err := json.Marshal(settings)
	if err != nil {
		return err
	}
	return r.db.QueryRow(ctx, `
		INSERT INTO settings (key, value)
		VALUES ($1, $2::jsonb)
		ON CONFLICT (key)
		DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
		RETURNING updated_at
	`, paymentSettingsKey, string(blob)).Scan(&settings.UpdatedAt)
}

// CountUsersByRole groups users by stored role. Users without a role are keyed by "".
func (r *PostgresRepository) CountUsersByRole(ctx context.Context) (map[domain.Role]int, error) {
	rows, err := r.db.Query(ctx, `SELECT role, COUNT(*) FROM users GROUP BY role`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.Role]int)
	for rows.Next() {
		var (
			role  string
			count int
		)
		if err := rows.Scan(&role, &count); err != nil {
			return nil, err
		}
		counts[domain.Role(role)] = count
	}
	return counts, rows.Err()
}

// CountCampaigns returns the total and active campaign counts.
func (r *PostgresRepository) CountCampaigns(ctx context.Context) (total int, active int, err error) {
	err = r.db.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE status = 'active')
		FROM campaigns
	`).Scan(&total, &active)
	return
}

// ContributionTotals sums verified contributions across the platform.
func (r *PostgresRepository) ContributionTotals(ctx context.Context) (verifiedCount int, verifiedSum int64, err error) {
	err = r.db.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(SUM(amount), 0)
		FROM contributions
		WHERE status = 'verified'
	`).Scan(&verifiedCount, &verifiedSum)
	return
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
