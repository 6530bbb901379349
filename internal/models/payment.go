package models

import "time"

// PaymentStatus represents the reconciliation state of a payment. Payments
// only ever transition forward; REJECTED and CANCELLED are terminal.
type PaymentStatus string

// Possible payment statuses.
const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusRejected  PaymentStatus = "REJECTED"
	PaymentStatusCancelled PaymentStatus = "CANCELLED"
)

// Terminal reports whether no further transition is allowed from the status.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentStatusRejected || s == PaymentStatusCancelled
}

// PaymentType classifies what the payment covers.
type PaymentType string

// Possible payment types.
const (
	PaymentTypeClass              PaymentType = "CLASS"
	PaymentTypeMembership         PaymentType = "MEMBERSHIP"
	PaymentTypeMembershipUpgrade  PaymentType = "MEMBERSHIP_UPGRADE"
	PaymentTypeMembershipAndClass PaymentType = "MEMBERSHIP_AND_CLASS"
)

// RegistrationKind distinguishes the dependent entity a registration row
// points at.
type RegistrationKind string

// Possible registration kinds.
const (
	RegistrationKindEnrollment RegistrationKind = "ENROLLMENT"
	RegistrationKindMembership RegistrationKind = "MEMBERSHIP"
)

// PaymentRegistration links a payment to one dependent entity. The set of
// rows for a payment is closed at creation time and never mutated.
type PaymentRegistration struct {
	PaymentID      string           `db:"payment_id" json:"payment_id"`
	RegistrationID string           `db:"registration_id" json:"registration_id"`
	Kind           RegistrationKind `db:"kind" json:"kind"`
	Position       int              `db:"position" json:"position"`
}

// Payment is the internal ledger entry staff reconcile manually. It is not a
// gateway transaction; no card or bank processing is modelled.
type Payment struct {
	ID              string        `db:"id" json:"id"`
	MemberID        string        `db:"member_id" json:"member_id"`
	Amount          float64       `db:"amount" json:"amount"`
	Method          string        `db:"method" json:"method"`
	PaymentType     PaymentType   `db:"payment_type" json:"payment_type"`
	Status          PaymentStatus `db:"status" json:"status"`
	RejectionReason *string       `db:"rejection_reason" json:"rejection_reason,omitempty"`
	ApprovedBy      *string       `db:"approved_by" json:"approved_by,omitempty"`
	CompletedAt     *time.Time    `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt       time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time     `db:"updated_at" json:"updated_at"`
}

// PaymentDetail enriches Payment with the member name and the ordered
// registration ids for display.
type PaymentDetail struct {
	Payment
	MemberName    string                `json:"member_name"`
	Registrations []PaymentRegistration `json:"registrations"`
}

// PaymentListRow is the flat projection used by staff listings.
type PaymentListRow struct {
	Payment
	MemberName string `db:"member_name" json:"member_name"`
}

// PaymentFilter provides filters for staff payment listings.
type PaymentFilter struct {
	Status    PaymentStatus
	MemberID  string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
