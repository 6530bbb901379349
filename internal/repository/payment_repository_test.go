package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gymflow-api/internal/models"
	appErrors "github.com/noah-isme/gymflow-api/pkg/errors"
)

func paymentRowOfType(status models.PaymentStatus, paymentType models.PaymentType) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{"id", "member_id", "amount", "method", "payment_type", "status", "rejection_reason", "approved_by", "completed_at", "created_at", "updated_at"}).
		AddRow("pay-1", "member-1", 250000.0, "cash", paymentType, status, nil, nil, nil, now, now)
}

func paymentRow(status models.PaymentStatus) *sqlmock.Rows {
	return paymentRowOfType(status, models.PaymentTypeClass)
}

func registrationRows(ids ...string) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"payment_id", "registration_id", "kind", "position"})
	for i, id := range ids {
		rows.AddRow("pay-1", id, models.RegistrationKindEnrollment, i)
	}
	return rows
}

func expectLockPayment(mock sqlmock.Sqlmock, status models.PaymentStatus, regIDs ...string) {
	mock.ExpectQuery(`SELECT id, member_id, amount, method, payment_type, status, rejection_reason, approved_by, completed_at, created_at, updated_at FROM payments WHERE id = \$1 FOR UPDATE`).
		WithArgs("pay-1").
		WillReturnRows(paymentRow(status))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT payment_id, registration_id, kind, position FROM payment_registrations WHERE payment_id = $1 ORDER BY position`)).
		WithArgs("pay-1").
		WillReturnRows(registrationRows(regIDs...))
}

func expectLockMixedPayment(mock sqlmock.Sqlmock, status models.PaymentStatus, regs ...models.PaymentRegistration) {
	mock.ExpectQuery(`SELECT id, member_id, amount, method, payment_type, status, rejection_reason, approved_by, completed_at, created_at, updated_at FROM payments WHERE id = \$1 FOR UPDATE`).
		WithArgs("pay-1").
		WillReturnRows(paymentRowOfType(status, models.PaymentTypeMembershipAndClass))
	rows := sqlmock.NewRows([]string{"payment_id", "registration_id", "kind", "position"})
	for i, reg := range regs {
		rows.AddRow("pay-1", reg.RegistrationID, reg.Kind, i)
	}
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT payment_id, registration_id, kind, position FROM payment_registrations WHERE payment_id = $1 ORDER BY position`)).
		WithArgs("pay-1").
		WillReturnRows(rows)
}

func membershipRow(status models.MembershipStatus, start, end interface{}) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{"id", "member_id", "plan_type", "start_date", "end_date", "status", "created_at", "updated_at"}).
		AddRow("mem-1", "member-1", models.PlanMonthly, start, end, status, now, now)
}

func TestPaymentRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT status FROM enrollments WHERE id = $1 FOR UPDATE`)).
		WithArgs("enr-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow(models.EnrollmentStatusPending))
	mock.ExpectQuery(`SELECT 1 FROM payment_registrations pr`).
		WithArgs("enr-1", models.PaymentStatusRejected).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))
	mock.ExpectExec(`INSERT INTO payments`).
		WithArgs(sqlmock.AnyArg(), "member-1", 250000.0, "cash", models.PaymentTypeClass, models.PaymentStatusPending, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO payment_registrations`).
		WithArgs(sqlmock.AnyArg(), "enr-1", models.RegistrationKindEnrollment, 0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	payment := &models.Payment{MemberID: "member-1", Amount: 250000, Method: "cash", PaymentType: models.PaymentTypeClass}
	regs := []models.PaymentRegistration{{RegistrationID: "enr-1", Kind: models.RegistrationKindEnrollment}}
	err := repo.Create(context.Background(), payment, regs)
	require.NoError(t, err)
	require.Equal(t, models.PaymentStatusPending, payment.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryCreateRegistrationAlreadyCovered(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT status FROM enrollments WHERE id = $1 FOR UPDATE`)).
		WithArgs("enr-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow(models.EnrollmentStatusPending))
	mock.ExpectQuery(`SELECT 1 FROM payment_registrations pr`).
		WithArgs("enr-1", models.PaymentStatusRejected).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectRollback()

	payment := &models.Payment{MemberID: "member-1", Amount: 250000, Method: "cash", PaymentType: models.PaymentTypeClass}
	regs := []models.PaymentRegistration{{RegistrationID: "enr-1", Kind: models.RegistrationKindEnrollment}}
	err := repo.Create(context.Background(), payment, regs)
	require.ErrorIs(t, err, appErrors.ErrDuplicateReservation)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryApprove(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	mock.ExpectBegin()
	expectLockPayment(mock, models.PaymentStatusPending, "enr-1")
	mock.ExpectExec(`UPDATE enrollments SET payment_status = \$2, status = \$3`).
		WithArgs("enr-1", models.EnrollmentPaymentPaid, models.EnrollmentStatusActive, models.EnrollmentPaymentPending, models.EnrollmentStatusPending).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE payments SET status = $2, approved_by = $3, completed_at = $4, updated_at = $4 WHERE id = $1`)).
		WithArgs("pay-1", models.PaymentStatusCompleted, "staff-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	payment, err := repo.Approve(context.Background(), "pay-1", []string{"enr-1"}, "staff-1")
	require.NoError(t, err)
	require.Equal(t, models.PaymentStatusCompleted, payment.Status)
	require.NotNil(t, payment.CompletedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryApproveStaleRegistrationSet(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	mock.ExpectBegin()
	expectLockPayment(mock, models.PaymentStatusPending, "enr-1", "enr-2")
	mock.ExpectRollback()

	_, err := repo.Approve(context.Background(), "pay-1", []string{"enr-1"}, "staff-1")
	require.ErrorIs(t, err, appErrors.ErrStaleApproval)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryApproveAlreadySettled(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	mock.ExpectBegin()
	expectLockPayment(mock, models.PaymentStatusCompleted, "enr-1")
	mock.ExpectRollback()

	_, err := repo.Approve(context.Background(), "pay-1", []string{"enr-1"}, "staff-1")
	require.ErrorIs(t, err, appErrors.ErrTerminalState)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryApproveDriftedDependent(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	mock.ExpectBegin()
	expectLockPayment(mock, models.PaymentStatusPending, "enr-1")
	mock.ExpectExec(`UPDATE enrollments SET payment_status = \$2, status = \$3`).
		WithArgs("enr-1", models.EnrollmentPaymentPaid, models.EnrollmentStatusActive, models.EnrollmentPaymentPending, models.EnrollmentStatusPending).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := repo.Approve(context.Background(), "pay-1", []string{"enr-1"}, "staff-1")
	require.ErrorIs(t, err, appErrors.ErrInconsistentDependents)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryApproveMembershipAndClass(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	expectLockMixedPayment(mock, models.PaymentStatusPending,
		models.PaymentRegistration{RegistrationID: "enr-1", Kind: models.RegistrationKindEnrollment},
		models.PaymentRegistration{RegistrationID: "mem-1", Kind: models.RegistrationKindMembership},
	)
	mock.ExpectExec(`UPDATE enrollments SET payment_status = \$2, status = \$3`).
		WithArgs("enr-1", models.EnrollmentPaymentPaid, models.EnrollmentStatusActive, models.EnrollmentPaymentPending, models.EnrollmentStatusPending).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, member_id, plan_type, start_date, end_date, status, created_at, updated_at FROM memberships WHERE id = $1 FOR UPDATE`)).
		WithArgs("mem-1").
		WillReturnRows(membershipRow(models.MembershipStatusPendingPayment, start, nil))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE memberships SET status = $2, start_date = $3, end_date = $4, updated_at = $5 WHERE id = $1`)).
		WithArgs("mem-1", models.MembershipStatusActive, start, start.Add(models.PlanMonthly.Duration()), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE payments SET status = $2, approved_by = $3, completed_at = $4, updated_at = $4 WHERE id = $1`)).
		WithArgs("pay-1", models.PaymentStatusCompleted, "staff-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	payment, err := repo.Approve(context.Background(), "pay-1", []string{"enr-1", "mem-1"}, "staff-1")
	require.NoError(t, err)
	require.Equal(t, models.PaymentStatusCompleted, payment.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryApproveDriftedMembership(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	mock.ExpectBegin()
	expectLockMixedPayment(mock, models.PaymentStatusPending,
		models.PaymentRegistration{RegistrationID: "mem-1", Kind: models.RegistrationKindMembership},
	)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, member_id, plan_type, start_date, end_date, status, created_at, updated_at FROM memberships WHERE id = $1 FOR UPDATE`)).
		WithArgs("mem-1").
		WillReturnRows(membershipRow(models.MembershipStatusActive, nil, nil))
	mock.ExpectRollback()

	_, err := repo.Approve(context.Background(), "pay-1", []string{"mem-1"}, "staff-1")
	require.ErrorIs(t, err, appErrors.ErrInconsistentDependents)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryRejectMembershipAndClass(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	mock.ExpectBegin()
	expectLockMixedPayment(mock, models.PaymentStatusPending,
		models.PaymentRegistration{RegistrationID: "enr-1", Kind: models.RegistrationKindEnrollment},
		models.PaymentRegistration{RegistrationID: "mem-1", Kind: models.RegistrationKindMembership},
	)
	mock.ExpectQuery(`UPDATE enrollments SET status = \$2, cancelled_at = \$3`).
		WithArgs("enr-1", models.EnrollmentStatusCancelled, sqlmock.AnyArg(), models.EnrollmentStatusPending).
		WillReturnRows(sqlmock.NewRows([]string{"class_id"}).AddRow("class-1"))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE gym_classes SET current_members = GREATEST(current_members - 1, 0), updated_at = $2 WHERE id = $1`)).
		WithArgs("class-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE memberships SET status = $2, updated_at = $3 WHERE id = $1 AND status = $4`)).
		WithArgs("mem-1", models.MembershipStatusCancelled, sqlmock.AnyArg(), models.MembershipStatusPendingPayment).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE payments SET status = $2, rejection_reason = $3, updated_at = $4 WHERE id = $1`)).
		WithArgs("pay-1", models.PaymentStatusRejected, "wrong amount", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	payment, err := repo.Reject(context.Background(), "pay-1", "wrong amount")
	require.NoError(t, err)
	require.Equal(t, models.PaymentStatusRejected, payment.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryRejectReleasesSeat(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	mock.ExpectBegin()
	expectLockPayment(mock, models.PaymentStatusPending, "enr-1")
	mock.ExpectQuery(`UPDATE enrollments SET status = \$2, cancelled_at = \$3`).
		WithArgs("enr-1", models.EnrollmentStatusCancelled, sqlmock.AnyArg(), models.EnrollmentStatusPending).
		WillReturnRows(sqlmock.NewRows([]string{"class_id"}).AddRow("class-1"))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE gym_classes SET current_members = GREATEST(current_members - 1, 0), updated_at = $2 WHERE id = $1`)).
		WithArgs("class-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE payments SET status = $2, rejection_reason = $3, updated_at = $4 WHERE id = $1`)).
		WithArgs("pay-1", models.PaymentStatusRejected, "insufficient transfer", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	payment, err := repo.Reject(context.Background(), "pay-1", "insufficient transfer")
	require.NoError(t, err)
	require.Equal(t, models.PaymentStatusRejected, payment.Status)
	require.NotNil(t, payment.RejectionReason)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryRejectCompletedPayment(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	mock.ExpectBegin()
	expectLockPayment(mock, models.PaymentStatusCompleted, "enr-1")
	mock.ExpectRollback()

	_, err := repo.Reject(context.Background(), "pay-1", "late")
	appErr := appErrors.FromError(err)
	require.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryDeleteRequiresRejected(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT status FROM payments WHERE id = $1 FOR UPDATE`)).
		WithArgs("pay-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow(models.PaymentStatusPending))
	mock.ExpectRollback()

	err := repo.Delete(context.Background(), "pay-1")
	require.ErrorIs(t, err, appErrors.ErrInvalidDeleteState)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryDelete(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT status FROM payments WHERE id = $1 FOR UPDATE`)).
		WithArgs("pay-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow(models.PaymentStatusRejected))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM payment_registrations WHERE payment_id = $1`)).
		WithArgs("pay-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM payments WHERE id = $1`)).
		WithArgs("pay-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.Delete(context.Background(), "pay-1")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryCancelCompleted(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, member_id, amount, method, payment_type, status, rejection_reason, approved_by, completed_at, created_at, updated_at FROM payments WHERE id = \$1 FOR UPDATE`).
		WithArgs("pay-1").
		WillReturnRows(paymentRow(models.PaymentStatusCompleted))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE payments SET status = $2, updated_at = $3 WHERE id = $1`)).
		WithArgs("pay-1", models.PaymentStatusCancelled, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	payment, err := repo.Cancel(context.Background(), "pay-1")
	require.NoError(t, err)
	require.Equal(t, models.PaymentStatusCancelled, payment.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryCancelPendingPayment(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, member_id, amount, method, payment_type, status, rejection_reason, approved_by, completed_at, created_at, updated_at FROM payments WHERE id = \$1 FOR UPDATE`).
		WithArgs("pay-1").
		WillReturnRows(paymentRow(models.PaymentStatusPending))
	mock.ExpectRollback()

	_, err := repo.Cancel(context.Background(), "pay-1")
	appErr := appErrors.FromError(err)
	require.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}
