package models

import (
	"errors"
	"time"
)

// AssignmentStatus is the lifecycle state of an assignment.
type AssignmentStatus string

const (
	// AssignmentStatusDraft is the initial, invisible state.
	AssignmentStatusDraft AssignmentStatus = "draft"
	// AssignmentStatusPublished makes the assignment visible to its roster.
	AssignmentStatusPublished AssignmentStatus = "published"
	// AssignmentStatusClosed is terminal.
	AssignmentStatusClosed AssignmentStatus = "closed"
)

// ErrInvalidTransition is returned when a lifecycle move is not in the transition table.
var ErrInvalidTransition = errors.New("invalid status transition")

var assignmentTransitions = map[AssignmentStatus]AssignmentStatus{
	AssignmentStatusDraft:     AssignmentStatusPublished,
	AssignmentStatusPublished: AssignmentStatusClosed,
}

// Valid reports whether the status is a known lifecycle state.
func (s AssignmentStatus) Valid() bool {
	switch s {
	case AssignmentStatusDraft, AssignmentStatusPublished, AssignmentStatusClosed:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether next directly follows s.
func (s AssignmentStatus) CanTransitionTo(next AssignmentStatus) bool {
	allowed, ok := assignmentTransitions[s]
	return ok && allowed == next
}

// LatePenaltyType selects how lateness is penalised.
type LatePenaltyType string

const (
	// LatePenaltyNone ignores lateness.
	LatePenaltyNone LatePenaltyType = "none"
	// LatePenaltyFixed subtracts a flat amount once when late at all.
	LatePenaltyFixed LatePenaltyType = "fixed"
	// LatePenaltyPercentagePerDay subtracts value percent per (fractional) day late, capped at 100.
	LatePenaltyPercentagePerDay LatePenaltyType = "percentage_per_day"
)

// LatePenaltyPolicy is embedded in Assignment and snapshotted onto submissions.
type LatePenaltyPolicy struct {
	Type  LatePenaltyType `gorm:"size:32;not null;default:none" json:"type"`
	Value float64         `gorm:"not null;default:0" json:"value"`
}

// Assignment represents a unit of graded work with a scheduled lifecycle.
type Assignment struct {
	ID          uint              `gorm:"primaryKey" json:"id"`
	OwnerID     uint              `gorm:"not null;index" json:"owner_id"`
	Title       string            `gorm:"size:255;not null" json:"title"`
	Description string            `gorm:"type:text" json:"description"`
	Status      AssignmentStatus  `gorm:"size:16;not null;default:draft;index:idx_assignment_status_publish,priority:1;index:idx_assignment_status_close,priority:1" json:"status"`
	PublishAt   *time.Time        `gorm:"index:idx_assignment_status_publish,priority:2" json:"publish_at"`
	CloseAt     *time.Time        `gorm:"index:idx_assignment_status_close,priority:2" json:"close_at"`
	DueAt       time.Time         `gorm:"not null" json:"due_at"`
	MaxScore    float64           `gorm:"not null;default:100" json:"max_score"`
	LatePenalty LatePenaltyPolicy `gorm:"embedded;embeddedPrefix:late_penalty_" json:"late_penalty_policy"`
	PublishedAt *time.Time        `json:"published_at"`
	ClosedAt    *time.Time        `json:"closed_at"`
	Version     uint              `gorm:"not null;default:1" json:"version"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// ScheduleLocked reports whether publish_at and close_at may no longer change.
func (a Assignment) ScheduleLocked() bool {
	return a.Status != AssignmentStatusDraft
}

// IsPastDue returns true when the assignment deadline has already passed.
func (a Assignment) IsPastDue(reference time.Time) bool {
	return reference.After(a.DueAt)
}
