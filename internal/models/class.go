package models

import "time"

// ClassStatus represents the lifecycle of a gym class.
type ClassStatus string

// Possible class statuses.
const (
	ClassStatusUpcoming  ClassStatus = "UPCOMING"
	ClassStatusOngoing   ClassStatus = "ONGOING"
	ClassStatusCompleted ClassStatus = "COMPLETED"
	ClassStatusCancelled ClassStatus = "CANCELLED"
)

// AcceptsEnrollments reports whether seats can still be reserved.
func (s ClassStatus) AcceptsEnrollments() bool {
	return s == ClassStatusUpcoming || s == ClassStatusOngoing
}

// GymClass represents a scheduled class with a fixed seat capacity.
// CurrentMembers is a derived counter and is only ever mutated inside the
// same transaction as the enrollment row it accounts for.
type GymClass struct {
	ID             string      `db:"id" json:"id"`
	Name           string      `db:"name" json:"name"`
	Instructor     string      `db:"instructor" json:"instructor"`
	Schedule       string      `db:"schedule" json:"schedule"`
	MaxMembers     int         `db:"max_members" json:"max_members"`
	CurrentMembers int         `db:"current_members" json:"current_members"`
	TotalSessions  int         `db:"total_sessions" json:"total_sessions"`
	Status         ClassStatus `db:"status" json:"status"`
	CreatedAt      time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time   `db:"updated_at" json:"updated_at"`
}

// ClassFilter defines filter criteria for listing classes.
type ClassFilter struct {
	Status    ClassStatus
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
