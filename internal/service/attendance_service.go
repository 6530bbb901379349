package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/gymflow-api/internal/models"
	appErrors "github.com/noah-isme/gymflow-api/pkg/errors"
)

type attendanceRepository interface {
	CreateSession(ctx context.Context, session *models.AttendanceSession) error
	MarkPresent(ctx context.Context, sessionID, memberID string, note *string) (*models.SessionAttendee, error)
	FindSessionByID(ctx context.Context, id string) (*models.AttendanceSession, error)
	ListSessionsByClass(ctx context.Context, classID string) ([]models.AttendanceSession, error)
	CountPresent(ctx context.Context, sessionID string) (int, error)
	ListAttendees(ctx context.Context, sessionID string) ([]models.SessionAttendeeDetail, error)
}

// CreateSessionRequest describes session creation by staff.
type CreateSessionRequest struct {
	SessionNumber int       `json:"session_number" validate:"required,min=1"`
	SessionDate   time.Time `json:"session_date" validate:"required"`
	Instructor    string    `json:"instructor" validate:"required"`
}

// MarkPresentRequest records one member's presence.
type MarkPresentRequest struct {
	MemberID string  `json:"member_id" validate:"required"`
	Note     *string `json:"note,omitempty"`
}

// AttendanceService manages per-class session lifecycles and presence
// marking.
type AttendanceService struct {
	repo      attendanceRepository
	classes   classReader
	members   memberReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAttendanceService constructs AttendanceService.
func NewAttendanceService(repo attendanceRepository, classes classReader, members memberReader, validate *validator.Validate, logger *zap.Logger) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttendanceService{repo: repo, classes: classes, members: members, validator: validate, logger: logger}
}

// CreateSession opens a new dated session for a class. The enrolled
// denominator is snapshotted at creation and frozen.
func (s *AttendanceService) CreateSession(ctx context.Context, staffID, classID string, req CreateSessionRequest) (*models.AttendanceSession, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload")
	}

	cls, err := s.classes.FindByID(ctx, classID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	if req.SessionNumber > cls.TotalSessions {
		return nil, appErrors.Clone(appErrors.ErrInvalidSessionNumber, "session number exceeds class total sessions")
	}

	session := &models.AttendanceSession{
		ClassID:       classID,
		SessionNumber: req.SessionNumber,
		SessionDate:   req.SessionDate.UTC(),
		Instructor:    req.Instructor,
		CreatedBy:     staffID,
	}
	if err := s.repo.CreateSession(ctx, session); err != nil {
		if appErr := appErrors.FromError(err); appErr.Code != appErrors.ErrInternal.Code {
			return nil, appErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create session")
	}
	s.logger.Info("attendance session created",
		zap.String("session_id", session.ID),
		zap.String("class_id", classID),
		zap.Int("session_number", session.SessionNumber),
		zap.Int("total_enrolled", session.TotalEnrolled),
	)
	return session, nil
}

// MarkPresent appends a member to the session's attendee set. A repeat call
// for the same member reports the conflict without corrupting the count.
func (s *AttendanceService) MarkPresent(ctx context.Context, sessionID string, req MarkPresentRequest) (*models.AttendanceSessionDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance payload")
	}

	if _, err := s.repo.FindSessionByID(ctx, sessionID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	if _, err := s.members.FindByID(ctx, req.MemberID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "member not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load member")
	}

	if _, err := s.repo.MarkPresent(ctx, sessionID, req.MemberID, req.Note); err != nil {
		if appErr := appErrors.FromError(err); appErr.Code != appErrors.ErrInternal.Code {
			return nil, appErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark attendance")
	}
	return s.SessionDetail(ctx, sessionID)
}

// SessionDetail returns the session with its derived presence figures.
func (s *AttendanceService) SessionDetail(ctx context.Context, sessionID string) (*models.AttendanceSessionDetail, error) {
	session, err := s.repo.FindSessionByID(ctx, sessionID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	attendees, err := s.repo.ListAttendees(ctx, sessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendees")
	}

	detail := &models.AttendanceSessionDetail{
		AttendanceSession: *session,
		TotalPresent:      len(attendees),
		Attendees:         attendees,
	}
	detail.AttendanceRate = detail.Rate()
	return detail, nil
}

// ListSessions returns a class's sessions with presence counts.
func (s *AttendanceService) ListSessions(ctx context.Context, classID string) ([]models.AttendanceSessionDetail, error) {
	if _, err := s.classes.FindByID(ctx, classID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	sessions, err := s.repo.ListSessionsByClass(ctx, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}

	details := make([]models.AttendanceSessionDetail, len(sessions))
	for i, session := range sessions {
		present, err := s.repo.CountPresent(ctx, session.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count attendees")
		}
		details[i] = models.AttendanceSessionDetail{AttendanceSession: session, TotalPresent: present}
		details[i].AttendanceRate = details[i].Rate()
	}
	return details, nil
}
