package models

import "time"

// AttendanceSession is one dated occurrence of a class for attendance
// taking. TotalEnrolled is snapshotted from the class's active enrollments
// when the session is created and frozen thereafter; later enrollments or
// cancellations never change a past session's denominator.
type AttendanceSession struct {
	ID            string    `db:"id" json:"id"`
	ClassID       string    `db:"class_id" json:"class_id"`
	SessionNumber int       `db:"session_number" json:"session_number"`
	SessionDate   time.Time `db:"session_date" json:"session_date"`
	Instructor    string    `db:"instructor" json:"instructor"`
	TotalEnrolled int       `db:"total_enrolled" json:"total_enrolled"`
	CreatedBy     string    `db:"created_by" json:"created_by"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// SessionAttendee records one member's presence in a session, unique per
// (session, member).
type SessionAttendee struct {
	SessionID string    `db:"session_id" json:"session_id"`
	MemberID  string    `db:"member_id" json:"member_id"`
	MarkedAt  time.Time `db:"marked_at" json:"marked_at"`
	Note      *string   `db:"note" json:"note,omitempty"`
}

// SessionAttendeeDetail adds the member name for roster views.
type SessionAttendeeDetail struct {
	SessionAttendee
	MemberName string `db:"member_name" json:"member_name"`
}

// AttendanceSessionDetail is a session with its derived presence figures.
// TotalPresent is always the attendee-set size, never an independently
// stored counter.
type AttendanceSessionDetail struct {
	AttendanceSession
	TotalPresent   int                     `json:"total_present"`
	AttendanceRate float64                 `json:"attendance_rate"`
	Attendees      []SessionAttendeeDetail `json:"attendees,omitempty"`
}

// Rate computes present/enrolled guarding the zero denominator.
func (d *AttendanceSessionDetail) Rate() float64 {
	if d.TotalEnrolled <= 0 {
		return 0
	}
	return float64(d.TotalPresent) / float64(d.TotalEnrolled)
}
