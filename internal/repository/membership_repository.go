package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/gymflow-api/internal/models"
)

// MembershipRepository handles persistence of memberships. Status changes
// out of PENDING_PAYMENT happen only inside payment settlement.
type MembershipRepository struct {
	db *sqlx.DB
}

// NewMembershipRepository constructs the repository.
func NewMembershipRepository(db *sqlx.DB) *MembershipRepository {
	return &MembershipRepository{db: db}
}

const membershipColumns = `id, member_id, plan_type, start_date, end_date, status, created_at, updated_at`

// Create persists a new membership awaiting payment.
func (r *MembershipRepository) Create(ctx context.Context, membership *models.Membership) error {
	now := time.Now().UTC()
	if membership.ID == "" {
		membership.ID = uuid.NewString()
	}
	if membership.Status == "" {
		membership.Status = models.MembershipStatusPendingPayment
	}
	membership.CreatedAt = now
	membership.UpdatedAt = now
	const query = `INSERT INTO memberships (id, member_id, plan_type, start_date, end_date, status, created_at, updated_at)
        VALUES (:id, :member_id, :plan_type, :start_date, :end_date, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, membership); err != nil {
		return fmt.Errorf("create membership: %w", err)
	}
	return nil
}

// FindByID returns a membership by its ID.
func (r *MembershipRepository) FindByID(ctx context.Context, id string) (*models.Membership, error) {
	var membership models.Membership
	if err := r.db.GetContext(ctx, &membership, `SELECT `+membershipColumns+` FROM memberships WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &membership, nil
}

// ListByMember returns a member's memberships, newest first.
func (r *MembershipRepository) ListByMember(ctx context.Context, memberID string) ([]models.Membership, error) {
	const query = `SELECT ` + membershipColumns + ` FROM memberships WHERE member_id = $1 ORDER BY created_at DESC`
	var memberships []models.Membership
	if err := r.db.SelectContext(ctx, &memberships, query, memberID); err != nil {
		return nil, fmt.Errorf("list member memberships: %w", err)
	}
	return memberships, nil
}

// ExpireLapsed marks active memberships whose window has passed as expired.
// Invoked from the maintenance endpoint, not from request handling.
func (r *MembershipRepository) ExpireLapsed(ctx context.Context, now time.Time) (int64, error) {
	const query = `UPDATE memberships SET status = $1, updated_at = $2 WHERE status = $3 AND end_date IS NOT NULL AND end_date < $2`
	res, err := r.db.ExecContext(ctx, query, models.MembershipStatusExpired, now, models.MembershipStatusActive)
	if err != nil {
		return 0, fmt.Errorf("expire memberships: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expire memberships: %w", err)
	}
	return affected, nil
}
