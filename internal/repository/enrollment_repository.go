package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/gymflow-api/internal/models"
	appErrors "github.com/noah-isme/gymflow-api/pkg/errors"
)

// EnrollmentRepository handles persistence of enrollments and owns every
// code path that mutates a class's member counter.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// Reserve atomically checks capacity, increments the class counter and
// inserts the pending enrollment. The class row is locked for the duration
// of the transaction so two reservations racing for the last seat cannot
// both succeed.
func (r *EnrollmentRepository) Reserve(ctx context.Context, memberID, classID string) (*models.Enrollment, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin reserve: %w", err)
	}
	commit := false
	defer func() {
		if !commit {
			tx.Rollback()
		}
	}()

	var cls models.GymClass
	const lockQuery = `SELECT id, name, instructor, schedule, max_members, current_members, total_sessions, status, created_at, updated_at
        FROM gym_classes WHERE id = $1 FOR UPDATE`
	if err := tx.GetContext(ctx, &cls, lockQuery, classID); err != nil {
		return nil, err
	}
	if !cls.Status.AcceptsEnrollments() {
		return nil, appErrors.ErrInvalidClassState
	}
	if cls.CurrentMembers >= cls.MaxMembers {
		return nil, appErrors.ErrCapacityExceeded
	}

	now := time.Now().UTC()
	enrollment := &models.Enrollment{
		ID:            uuid.NewString(),
		MemberID:      memberID,
		ClassID:       classID,
		PaymentStatus: models.EnrollmentPaymentPending,
		Status:        models.EnrollmentStatusPending,
		JoinedAt:      now,
	}
	const insertQuery = `INSERT INTO enrollments (id, member_id, class_id, payment_status, status, joined_at)
        VALUES (:id, :member_id, :class_id, :payment_status, :status, :joined_at)`
	if _, err := tx.NamedExecContext(ctx, insertQuery, enrollment); err != nil {
		return nil, fmt.Errorf("insert enrollment: %w", err)
	}

	const counterQuery = `UPDATE gym_classes SET current_members = current_members + 1, updated_at = $2 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, counterQuery, classID, now); err != nil {
		return nil, fmt.Errorf("increment class counter: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit reserve: %w", err)
	}
	commit = true
	return enrollment, nil
}

// Release cancels a pending enrollment and returns the seat to the class.
// It is idempotent per enrollment: a second call finds the row already
// cancelled and reports released=false without touching the counter.
func (r *EnrollmentRepository) Release(ctx context.Context, enrollmentID string) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin release: %w", err)
	}
	commit := false
	defer func() {
		if !commit {
			tx.Rollback()
		}
	}()

	released, err := releaseEnrollmentTx(ctx, tx, enrollmentID, time.Now().UTC())
	if err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit release: %w", err)
	}
	commit = true
	return released, nil
}

// releaseEnrollmentTx flips a pending enrollment to cancelled and decrements
// the owning class counter inside the caller's transaction. Returns false
// when the enrollment was not pending, which keeps the operation idempotent.
func releaseEnrollmentTx(ctx context.Context, tx *sqlx.Tx, enrollmentID string, now time.Time) (bool, error) {
	const cancelQuery = `UPDATE enrollments SET status = $2, cancelled_at = $3
        WHERE id = $1 AND status = $4 RETURNING class_id`
	var classID string
	err := tx.QueryRowxContext(ctx, cancelQuery, enrollmentID, models.EnrollmentStatusCancelled, now, models.EnrollmentStatusPending).Scan(&classID)
	if err != nil {
		if err == sql.ErrNoRows {
			var exists int
			if err := tx.GetContext(ctx, &exists, `SELECT 1 FROM enrollments WHERE id = $1`, enrollmentID); err != nil {
				return false, err
			}
			return false, nil
		}
		return false, fmt.Errorf("cancel enrollment: %w", err)
	}

	const counterQuery = `UPDATE gym_classes SET current_members = GREATEST(current_members - 1, 0), updated_at = $2 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, counterQuery, classID, now); err != nil {
		return false, fmt.Errorf("decrement class counter: %w", err)
	}
	return true, nil
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	const query = `SELECT id, member_id, class_id, payment_status, status, joined_at, cancelled_at FROM enrollments WHERE id = $1`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// FindDetailByID returns an enrollment with member and class names.
func (r *EnrollmentRepository) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	const query = `SELECT e.id, e.member_id, e.class_id, e.payment_status, e.status, e.joined_at, e.cancelled_at,
        m.full_name AS member_name, c.name AS class_name
        FROM enrollments e
        LEFT JOIN members m ON m.id = e.member_id
        LEFT JOIN gym_classes c ON c.id = e.class_id
        WHERE e.id = $1`
	var detail models.EnrollmentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ListByClass returns enrollments for a class, optionally scoped by status.
func (r *EnrollmentRepository) ListByClass(ctx context.Context, classID string, status models.EnrollmentStatus) ([]models.EnrollmentDetail, error) {
	query := `SELECT e.id, e.member_id, e.class_id, e.payment_status, e.status, e.joined_at, e.cancelled_at,
        m.full_name AS member_name, c.name AS class_name
        FROM enrollments e
        LEFT JOIN members m ON m.id = e.member_id
        LEFT JOIN gym_classes c ON c.id = e.class_id
        WHERE e.class_id = $1`
	args := []interface{}{classID}
	if status != "" {
		query += " AND e.status = $2"
		args = append(args, status)
	}
	query += " ORDER BY e.joined_at"
	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, fmt.Errorf("list class enrollments: %w", err)
	}
	return enrollments, nil
}

// ExistsPendingOrActive reports whether the member already holds a seat in
// the class, which blocks a duplicate reservation.
func (r *EnrollmentRepository) ExistsPendingOrActive(ctx context.Context, memberID, classID string) (bool, error) {
	const query = `SELECT 1 FROM enrollments WHERE member_id = $1 AND class_id = $2 AND status IN ($3, $4) LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, memberID, classID, models.EnrollmentStatusPending, models.EnrollmentStatusActive); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check existing enrollment: %w", err)
	}
	return true, nil
}
