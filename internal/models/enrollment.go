package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentStatusPending   EnrollmentStatus = "PENDING"
	EnrollmentStatusActive    EnrollmentStatus = "ACTIVE"
	EnrollmentStatusCancelled EnrollmentStatus = "CANCELLED"
)

// EnrollmentPaymentStatus tracks whether the seat has been paid for.
type EnrollmentPaymentStatus string

// Possible enrollment payment statuses.
const (
	EnrollmentPaymentPending EnrollmentPaymentStatus = "PENDING"
	EnrollmentPaymentPaid    EnrollmentPaymentStatus = "PAID"
)

// Enrollment captures a member's seat reservation in a class. It is created
// PENDING together with the capacity counter increment and only becomes
// ACTIVE/PAID through payment settlement.
type Enrollment struct {
	ID            string                  `db:"id" json:"id"`
	MemberID      string                  `db:"member_id" json:"member_id"`
	ClassID       string                  `db:"class_id" json:"class_id"`
	PaymentStatus EnrollmentPaymentStatus `db:"payment_status" json:"payment_status"`
	Status        EnrollmentStatus        `db:"status" json:"status"`
	JoinedAt      time.Time               `db:"joined_at" json:"joined_at"`
	CancelledAt   *time.Time              `db:"cancelled_at" json:"cancelled_at,omitempty"`
}

// EnrollmentDetail enriches Enrollment with member and class info.
type EnrollmentDetail struct {
	Enrollment
	MemberName string `db:"member_name" json:"member_name"`
	ClassName  string `db:"class_name" json:"class_name"`
}
