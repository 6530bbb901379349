package models

import "time"

// MembershipStatus represents the lifecycle of a membership.
type MembershipStatus string

// Possible membership statuses. PENDING_PAYMENT is the pre-settlement state
// symmetric to a pending enrollment.
const (
	MembershipStatusPendingPayment MembershipStatus = "PENDING_PAYMENT"
	MembershipStatusActive         MembershipStatus = "ACTIVE"
	MembershipStatusExpired        MembershipStatus = "EXPIRED"
	MembershipStatusCancelled      MembershipStatus = "CANCELLED"
)

// MembershipPlan identifies the purchased plan.
type MembershipPlan string

// Available membership plans.
const (
	PlanMonthly   MembershipPlan = "MONTHLY"
	PlanQuarterly MembershipPlan = "QUARTERLY"
	PlanAnnual    MembershipPlan = "ANNUAL"
)

// Duration returns the validity window length for the plan.
func (p MembershipPlan) Duration() time.Duration {
	switch p {
	case PlanQuarterly:
		return 90 * 24 * time.Hour
	case PlanAnnual:
		return 365 * 24 * time.Hour
	default:
		return 30 * 24 * time.Hour
	}
}

// Membership grants gym access for a validity window. Dates stay nil until
// the covering payment settles.
type Membership struct {
	ID        string           `db:"id" json:"id"`
	MemberID  string           `db:"member_id" json:"member_id"`
	PlanType  MembershipPlan   `db:"plan_type" json:"plan_type"`
	StartDate *time.Time       `db:"start_date" json:"start_date,omitempty"`
	EndDate   *time.Time       `db:"end_date" json:"end_date,omitempty"`
	Status    MembershipStatus `db:"status" json:"status"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt time.Time        `db:"updated_at" json:"updated_at"`
}
