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

// AttendanceRepository handles persistence for attendance sessions and
// presence marks. Presence counters are never stored; they are recomputed
// from the attendee rows on every read.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// CreateSession inserts a session, snapshotting the class's active
// enrollment count as the frozen denominator. A duplicate session number
// for the class maps to ErrDuplicateSession via the unique constraint.
func (r *AttendanceRepository) CreateSession(ctx context.Context, session *models.AttendanceSession) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create session: %w", err)
	}
	commit := false
	defer func() {
		if !commit {
			tx.Rollback()
		}
	}()

	const countQuery = `SELECT COUNT(*) FROM enrollments WHERE class_id = $1 AND status = $2`
	if err := tx.GetContext(ctx, &session.TotalEnrolled, countQuery, session.ClassID, models.EnrollmentStatusActive); err != nil {
		return fmt.Errorf("snapshot enrolled count: %w", err)
	}

	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}

	const insertQuery = `INSERT INTO attendance_sessions (id, class_id, session_number, session_date, instructor, total_enrolled, created_by, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        ON CONFLICT (class_id, session_number) DO NOTHING
        RETURNING id`
	var insertedID string
	err = tx.QueryRowxContext(ctx, insertQuery, session.ID, session.ClassID, session.SessionNumber,
		session.SessionDate, session.Instructor, session.TotalEnrolled, session.CreatedBy, session.CreatedAt).Scan(&insertedID)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.ErrDuplicateSession
		}
		return fmt.Errorf("insert attendance session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create session: %w", err)
	}
	commit = true
	return nil
}

// MarkPresent appends a presence mark. The uniqueness check and the insert
// are one statement, so concurrent marks for the same (session, member)
// pair cannot double-count; a duplicate maps to ErrAlreadyMarked.
func (r *AttendanceRepository) MarkPresent(ctx context.Context, sessionID, memberID string, note *string) (*models.SessionAttendee, error) {
	attendee := &models.SessionAttendee{
		SessionID: sessionID,
		MemberID:  memberID,
		MarkedAt:  time.Now().UTC(),
		Note:      note,
	}
	const query = `INSERT INTO session_attendees (session_id, member_id, marked_at, note)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (session_id, member_id) DO NOTHING
        RETURNING session_id`
	var inserted string
	err := r.db.QueryRowxContext(ctx, query, attendee.SessionID, attendee.MemberID, attendee.MarkedAt, attendee.Note).Scan(&inserted)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.ErrAlreadyMarked
		}
		return nil, fmt.Errorf("mark present: %w", err)
	}
	return attendee, nil
}

// FindSessionByID returns a session by its ID.
func (r *AttendanceRepository) FindSessionByID(ctx context.Context, id string) (*models.AttendanceSession, error) {
	const query = `SELECT id, class_id, session_number, session_date, instructor, total_enrolled, created_by, created_at
        FROM attendance_sessions WHERE id = $1`
	var session models.AttendanceSession
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		return nil, err
	}
	return &session, nil
}

// ListSessionsByClass returns a class's sessions ordered by number.
func (r *AttendanceRepository) ListSessionsByClass(ctx context.Context, classID string) ([]models.AttendanceSession, error) {
	const query = `SELECT id, class_id, session_number, session_date, instructor, total_enrolled, created_by, created_at
        FROM attendance_sessions WHERE class_id = $1 ORDER BY session_number`
	var sessions []models.AttendanceSession
	if err := r.db.SelectContext(ctx, &sessions, query, classID); err != nil {
		return nil, fmt.Errorf("list class sessions: %w", err)
	}
	return sessions, nil
}

// CountPresent returns the attendee-set size for a session.
func (r *AttendanceRepository) CountPresent(ctx context.Context, sessionID string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM session_attendees WHERE session_id = $1`, sessionID); err != nil {
		return 0, fmt.Errorf("count attendees: %w", err)
	}
	return count, nil
}

// ListAttendees returns the roster for a session in marking order.
func (r *AttendanceRepository) ListAttendees(ctx context.Context, sessionID string) ([]models.SessionAttendeeDetail, error) {
	const query = `SELECT a.session_id, a.member_id, a.marked_at, a.note, m.full_name AS member_name
        FROM session_attendees a
        LEFT JOIN members m ON m.id = a.member_id
        WHERE a.session_id = $1 ORDER BY a.marked_at`
	var attendees []models.SessionAttendeeDetail
	if err := r.db.SelectContext(ctx, &attendees, query, sessionID); err != nil {
		return nil, fmt.Errorf("list attendees: %w", err)
	}
	return attendees, nil
}
