package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/gymflow-api/internal/models"
	appErrors "github.com/noah-isme/gymflow-api/pkg/errors"
)

// PaymentRepository is the only component allowed to flip a payment's
// status. Settlement touches the payment row and every dependent row in a
// single transaction so a reader never observes a completed payment with a
// dependent still pending.
type PaymentRepository struct {
	db *sqlx.DB
}

// NewPaymentRepository constructs the repository.
func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

const paymentColumns = `id, member_id, amount, method, payment_type, status, rejection_reason, approved_by, completed_at, created_at, updated_at`

// Create opens a pending payment covering the given registrations. Every
// referenced entity must still be in its pre-settlement state and must not
// be covered by another non-rejected payment; the registration set is closed
// here and never mutated afterwards.
func (r *PaymentRepository) Create(ctx context.Context, payment *models.Payment, registrations []models.PaymentRegistration) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin open payment: %w", err)
	}
	commit := false
	defer func() {
		if !commit {
			tx.Rollback()
		}
	}()

	for _, reg := range registrations {
		if err := checkRegistrationPayableTx(ctx, tx, reg); err != nil {
			return err
		}
	}

	now := time.Now().UTC()
	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	payment.Status = models.PaymentStatusPending
	payment.CreatedAt = now
	payment.UpdatedAt = now

	const insertPayment = `INSERT INTO payments (id, member_id, amount, method, payment_type, status, created_at, updated_at)
        VALUES (:id, :member_id, :amount, :method, :payment_type, :status, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, insertPayment, payment); err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}

	const insertReg = `INSERT INTO payment_registrations (payment_id, registration_id, kind, position) VALUES ($1, $2, $3, $4)`
	for i := range registrations {
		registrations[i].PaymentID = payment.ID
		registrations[i].Position = i
		if _, err := tx.ExecContext(ctx, insertReg, payment.ID, registrations[i].RegistrationID, registrations[i].Kind, i); err != nil {
			return fmt.Errorf("insert payment registration: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit open payment: %w", err)
	}
	commit = true
	return nil
}

// checkRegistrationPayableTx verifies the dependent entity is in its
// pre-settlement state and locks it, then rejects ids already covered by a
// live payment.
func checkRegistrationPayableTx(ctx context.Context, tx *sqlx.Tx, reg models.PaymentRegistration) error {
	switch reg.Kind {
	case models.RegistrationKindEnrollment:
		var status models.EnrollmentStatus
		err := tx.GetContext(ctx, &status, `SELECT status FROM enrollments WHERE id = $1 FOR UPDATE`, reg.RegistrationID)
		if err != nil {
			if err == sql.ErrNoRows {
				return appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
			}
			return fmt.Errorf("load enrollment %s: %w", reg.RegistrationID, err)
		}
		if status != models.EnrollmentStatusPending {
			return appErrors.Clone(appErrors.ErrPreconditionFailed, "enrollment is not awaiting payment")
		}
	case models.RegistrationKindMembership:
		var status models.MembershipStatus
		err := tx.GetContext(ctx, &status, `SELECT status FROM memberships WHERE id = $1 FOR UPDATE`, reg.RegistrationID)
		if err != nil {
			if err == sql.ErrNoRows {
				return appErrors.Clone(appErrors.ErrNotFound, "membership not found")
			}
			return fmt.Errorf("load membership %s: %w", reg.RegistrationID, err)
		}
		if status != models.MembershipStatusPendingPayment {
			return appErrors.Clone(appErrors.ErrPreconditionFailed, "membership is not awaiting payment")
		}
	default:
		return appErrors.Clone(appErrors.ErrValidation, "unknown registration kind")
	}

	const dupQuery = `SELECT 1 FROM payment_registrations pr
        JOIN payments p ON p.id = pr.payment_id
        WHERE pr.registration_id = $1 AND p.status <> $2 LIMIT 1`
	var exists int
	if err := tx.GetContext(ctx, &exists, dupQuery, reg.RegistrationID, models.PaymentStatusRejected); err != nil {
		if err == sql.ErrNoRows {
			return nil
		}
		return fmt.Errorf("check duplicate registration: %w", err)
	}
	return appErrors.ErrDuplicateReservation
}

// FindByID returns a payment by its ID.
func (r *PaymentRepository) FindByID(ctx context.Context, id string) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.GetContext(ctx, &payment, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &payment, nil
}

// ListRegistrations returns the registration rows in creation order.
func (r *PaymentRepository) ListRegistrations(ctx context.Context, paymentID string) ([]models.PaymentRegistration, error) {
	const query = `SELECT payment_id, registration_id, kind, position FROM payment_registrations WHERE payment_id = $1 ORDER BY position`
	var regs []models.PaymentRegistration
	if err := r.db.SelectContext(ctx, &regs, query, paymentID); err != nil {
		return nil, fmt.Errorf("list payment registrations: %w", err)
	}
	return regs, nil
}

// List returns payments filtered by the provided criteria.
func (r *PaymentRepository) List(ctx context.Context, filter models.PaymentFilter) ([]models.PaymentListRow, int, error) {
	base := `FROM payments p LEFT JOIN members m ON m.id = p.member_id`
	var conditions []string
	var args []interface{}

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("p.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.MemberID != "" {
		conditions = append(conditions, fmt.Sprintf("p.member_id = $%d", len(args)+1))
		args = append(args, filter.MemberID)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"created_at":   "p.created_at",
		"amount":       "p.amount",
		"completed_at": "p.completed_at",
		"member_name":  "m.full_name",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "p.created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT p.id, p.member_id, p.amount, p.method, p.payment_type, p.status,
        p.rejection_reason, p.approved_by, p.completed_at, p.created_at, p.updated_at,
        m.full_name AS member_name
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var payments []models.PaymentListRow
	if err := r.db.SelectContext(ctx, &payments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list payments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count payments: %w", err)
	}
	return payments, total, nil
}

// Approve settles a pending payment: every dependent enrollment flips to
// active/paid, every dependent membership activates with its validity window
// stamped, and the payment is marked completed. All of it commits together
// or none of it does.
func (r *PaymentRepository) Approve(ctx context.Context, paymentID string, expectedRegistrationIDs []string, approvedBy string) (*models.Payment, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin approve: %w", err)
	}
	commit := false
	defer func() {
		if !commit {
			tx.Rollback()
		}
	}()

	payment, regs, err := lockPaymentTx(ctx, tx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.Status != models.PaymentStatusPending {
		return nil, appErrors.ErrTerminalState
	}
	if !sameRegistrationSet(regs, expectedRegistrationIDs) {
		return nil, appErrors.ErrStaleApproval
	}

	now := time.Now().UTC()
	for _, reg := range regs {
		switch reg.Kind {
		case models.RegistrationKindEnrollment:
			if err := activateEnrollmentTx(ctx, tx, reg.RegistrationID); err != nil {
				return nil, err
			}
		case models.RegistrationKindMembership:
			if err := activateMembershipTx(ctx, tx, reg.RegistrationID, now); err != nil {
				return nil, err
			}
		}
	}

	const settle = `UPDATE payments SET status = $2, approved_by = $3, completed_at = $4, updated_at = $4 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, settle, paymentID, models.PaymentStatusCompleted, approvedBy, now); err != nil {
		return nil, fmt.Errorf("settle payment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit approve: %w", err)
	}
	commit = true

	payment.Status = models.PaymentStatusCompleted
	payment.ApprovedBy = &approvedBy
	payment.CompletedAt = &now
	payment.UpdatedAt = now
	return payment, nil
}

// Reject reverts a pending payment: dependent enrollments are cancelled with
// their class seats released, dependent memberships are cancelled, and the
// payment is marked rejected with the given reason.
func (r *PaymentRepository) Reject(ctx context.Context, paymentID, reason string) (*models.Payment, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin reject: %w", err)
	}
	commit := false
	defer func() {
		if !commit {
			tx.Rollback()
		}
	}()

	payment, regs, err := lockPaymentTx(ctx, tx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.Status.Terminal() {
		return nil, appErrors.ErrTerminalState
	}
	if payment.Status != models.PaymentStatusPending {
		return nil, appErrors.Clone(appErrors.ErrConflict, "payment already settled")
	}

	now := time.Now().UTC()
	for _, reg := range regs {
		switch reg.Kind {
		case models.RegistrationKindEnrollment:
			if _, err := releaseEnrollmentTx(ctx, tx, reg.RegistrationID, now); err != nil {
				return nil, err
			}
		case models.RegistrationKindMembership:
			if err := cancelMembershipTx(ctx, tx, reg.RegistrationID, now); err != nil {
				return nil, err
			}
		}
	}

	const rejectQuery = `UPDATE payments SET status = $2, rejection_reason = $3, updated_at = $4 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, rejectQuery, paymentID, models.PaymentStatusRejected, reason, now); err != nil {
		return nil, fmt.Errorf("reject payment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit reject: %w", err)
	}
	commit = true

	payment.Status = models.PaymentStatusRejected
	payment.RejectionReason = &reason
	payment.UpdatedAt = now
	return payment, nil
}

// Delete permanently removes a rejected payment and its registration rows.
func (r *PaymentRepository) Delete(ctx context.Context, paymentID string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete payment: %w", err)
	}
	commit := false
	defer func() {
		if !commit {
			tx.Rollback()
		}
	}()

	var status models.PaymentStatus
	if err := tx.GetContext(ctx, &status, `SELECT status FROM payments WHERE id = $1 FOR UPDATE`, paymentID); err != nil {
		return err
	}
	if status != models.PaymentStatusRejected {
		return appErrors.ErrInvalidDeleteState
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM payment_registrations WHERE payment_id = $1`, paymentID); err != nil {
		return fmt.Errorf("delete payment registrations: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM payments WHERE id = $1`, paymentID); err != nil {
		return fmt.Errorf("delete payment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete payment: %w", err)
	}
	commit = true
	return nil
}

// Cancel flips a completed payment to cancelled. Dependents are deliberately
// left untouched: this is a bookkeeping correction for service already
// rendered, not a reversal, so the seat and membership it granted survive.
func (r *PaymentRepository) Cancel(ctx context.Context, paymentID string) (*models.Payment, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin cancel payment: %w", err)
	}
	commit := false
	defer func() {
		if !commit {
			tx.Rollback()
		}
	}()

	var payment models.Payment
	if err := tx.GetContext(ctx, &payment, `SELECT `+paymentColumns+` FROM payments WHERE id = $1 FOR UPDATE`, paymentID); err != nil {
		return nil, err
	}
	if payment.Status.Terminal() {
		return nil, appErrors.ErrTerminalState
	}
	if payment.Status != models.PaymentStatusCompleted {
		return nil, appErrors.Clone(appErrors.ErrConflict, "only completed payments can be cancelled")
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `UPDATE payments SET status = $2, updated_at = $3 WHERE id = $1`, paymentID, models.PaymentStatusCancelled, now); err != nil {
		return nil, fmt.Errorf("cancel payment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit cancel payment: %w", err)
	}
	commit = true

	payment.Status = models.PaymentStatusCancelled
	payment.UpdatedAt = now
	return &payment, nil
}

// lockPaymentTx loads and locks the payment row plus its registration set.
func lockPaymentTx(ctx context.Context, tx *sqlx.Tx, paymentID string) (*models.Payment, []models.PaymentRegistration, error) {
	var payment models.Payment
	if err := tx.GetContext(ctx, &payment, `SELECT `+paymentColumns+` FROM payments WHERE id = $1 FOR UPDATE`, paymentID); err != nil {
		return nil, nil, err
	}

	const regQuery = `SELECT payment_id, registration_id, kind, position FROM payment_registrations WHERE payment_id = $1 ORDER BY position`
	var regs []models.PaymentRegistration
	if err := tx.SelectContext(ctx, &regs, regQuery, paymentID); err != nil {
		return nil, nil, fmt.Errorf("load payment registrations: %w", err)
	}
	return &payment, regs, nil
}

// activateEnrollmentTx flips a pending enrollment to active/paid. A missed
// guard means the dependent drifted out from under the payment, which
// aborts the whole settlement.
func activateEnrollmentTx(ctx context.Context, tx *sqlx.Tx, enrollmentID string) error {
	const query = `UPDATE enrollments SET payment_status = $2, status = $3
        WHERE id = $1 AND payment_status = $4 AND status = $5`
	res, err := tx.ExecContext(ctx, query, enrollmentID,
		models.EnrollmentPaymentPaid, models.EnrollmentStatusActive,
		models.EnrollmentPaymentPending, models.EnrollmentStatusPending)
	if err != nil {
		return fmt.Errorf("activate enrollment %s: %w", enrollmentID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("activate enrollment %s: %w", enrollmentID, err)
	}
	if affected != 1 {
		return appErrors.ErrInconsistentDependents
	}
	return nil
}

// activateMembershipTx activates a pending membership and stamps its
// validity window from the plan when not already set.
func activateMembershipTx(ctx context.Context, tx *sqlx.Tx, membershipID string, now time.Time) error {
	var membership models.Membership
	const loadQuery = `SELECT id, member_id, plan_type, start_date, end_date, status, created_at, updated_at
        FROM memberships WHERE id = $1 FOR UPDATE`
	if err := tx.GetContext(ctx, &membership, loadQuery, membershipID); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.ErrInconsistentDependents
		}
		return fmt.Errorf("load membership %s: %w", membershipID, err)
	}
	if membership.Status != models.MembershipStatusPendingPayment {
		return appErrors.ErrInconsistentDependents
	}

	start := now
	if membership.StartDate != nil {
		start = *membership.StartDate
	}
	end := start.Add(membership.PlanType.Duration())
	if membership.EndDate != nil {
		end = *membership.EndDate
	}

	const query = `UPDATE memberships SET status = $2, start_date = $3, end_date = $4, updated_at = $5 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, query, membershipID, models.MembershipStatusActive, start, end, now); err != nil {
		return fmt.Errorf("activate membership %s: %w", membershipID, err)
	}
	return nil
}

// cancelMembershipTx cancels a pending membership during payment rejection.
func cancelMembershipTx(ctx context.Context, tx *sqlx.Tx, membershipID string, now time.Time) error {
	const query = `UPDATE memberships SET status = $2, updated_at = $3 WHERE id = $1 AND status = $4`
	res, err := tx.ExecContext(ctx, query, membershipID, models.MembershipStatusCancelled, now, models.MembershipStatusPendingPayment)
	if err != nil {
		return fmt.Errorf("cancel membership %s: %w", membershipID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("cancel membership %s: %w", membershipID, err)
	}
	if affected != 1 {
		return appErrors.ErrInconsistentDependents
	}
	return nil
}

// sameRegistrationSet compares the stored registration set against the ids
// the caller believes it is approving.
func sameRegistrationSet(regs []models.PaymentRegistration, expected []string) bool {
	if len(regs) != len(expected) {
		return false
	}
	stored := make([]string, len(regs))
	for i, reg := range regs {
		stored[i] = reg.RegistrationID
	}
	want := append([]string(nil), expected...)
	sort.Strings(stored)
	sort.Strings(want)
	for i := range stored {
		if stored[i] != want[i] {
			return false
		}
	}
	return true
}
