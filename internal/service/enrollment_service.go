package service

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"github.com/noah-isme/gymflow-api/internal/models"
	appErrors "github.com/noah-isme/gymflow-api/pkg/errors"
)

type enrollmentRepository interface {
	Reserve(ctx context.Context, memberID, classID string) (*models.Enrollment, error)
	Release(ctx context.Context, enrollmentID string) (bool, error)
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
	ListByClass(ctx context.Context, classID string, status models.EnrollmentStatus) ([]models.EnrollmentDetail, error)
	ExistsPendingOrActive(ctx context.Context, memberID, classID string) (bool, error)
}

type memberReader interface {
	FindByID(ctx context.Context, id string) (*models.Member, error)
}

type classReader interface {
	FindByID(ctx context.Context, id string) (*models.GymClass, error)
}

type reservationMetrics interface {
	RecordReservation(outcome string)
}

// EnrollmentService orchestrates seat reservations. The capacity invariant
// itself lives in the repository transaction; this layer validates the
// actors and translates storage errors for callers.
type EnrollmentService struct {
	repo    enrollmentRepository
	members memberReader
	classes classReader
	metrics reservationMetrics
	logger  *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(repo enrollmentRepository, members memberReader, classes classReader, metrics reservationMetrics, logger *zap.Logger) *EnrollmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{repo: repo, members: members, classes: classes, metrics: metrics, logger: logger}
}

// Reserve books a pending seat for the member in the class.
func (s *EnrollmentService) Reserve(ctx context.Context, memberID, classID string) (*models.EnrollmentDetail, error) {
	member, err := s.members.FindByID(ctx, memberID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "member not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load member")
	}
	if !member.Active {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "member inactive")
	}

	exists, err := s.repo.ExistsPendingOrActive(ctx, memberID, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate reservation")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "member already holds a seat in this class")
	}

	enrollment, err := s.repo.Reserve(ctx, memberID, classID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		if appErr := appErrors.FromError(err); appErr.Code == appErrors.ErrCapacityExceeded.Code || appErr.Code == appErrors.ErrInvalidClassState.Code {
			if s.metrics != nil {
				s.metrics.RecordReservation("rejected")
			}
			return nil, appErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reserve seat")
	}
	if s.metrics != nil {
		s.metrics.RecordReservation("reserved")
	}
	s.logger.Info("seat reserved",
		zap.String("enrollment_id", enrollment.ID),
		zap.String("class_id", classID),
		zap.String("member_id", memberID),
	)

	detail, err := s.repo.FindDetailByID(ctx, enrollment.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment detail")
	}
	return detail, nil
}

// Release abandons a pending reservation and returns the seat. Members may
// only release their own enrollments; staff may release any. Safe to retry:
// a repeat call is a no-op.
func (s *EnrollmentService) Release(ctx context.Context, enrollmentID, callerID string, callerIsStaff bool) (*models.EnrollmentDetail, error) {
	enrollment, err := s.repo.FindByID(ctx, enrollmentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if !callerIsStaff && enrollment.MemberID != callerID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "enrollment belongs to another member")
	}

	released, err := s.repo.Release(ctx, enrollmentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to release seat")
	}
	if released {
		s.logger.Info("seat released", zap.String("enrollment_id", enrollmentID))
		if s.metrics != nil {
			s.metrics.RecordReservation("released")
		}
	}

	detail, err := s.repo.FindDetailByID(ctx, enrollmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment detail")
	}
	return detail, nil
}

// Get returns a single enrollment with context.
func (s *EnrollmentService) Get(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return detail, nil
}

// ListByClass returns a class roster for staff.
func (s *EnrollmentService) ListByClass(ctx context.Context, classID string, status models.EnrollmentStatus) ([]models.EnrollmentDetail, error) {
	if _, err := s.classes.FindByID(ctx, classID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	enrollments, err := s.repo.ListByClass(ctx, classID, status)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	return enrollments, nil
}
