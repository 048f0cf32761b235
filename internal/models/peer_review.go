package models

import (
	"time"

	"gorm.io/datatypes"
)

// PeerReviewStatus is the state of a reviewer-submission edge.
type PeerReviewStatus string

const (
	PeerReviewStatusPending    PeerReviewStatus = "pending"
	PeerReviewStatusInProgress PeerReviewStatus = "in_progress"
	PeerReviewStatusCompleted  PeerReviewStatus = "completed"
	PeerReviewStatusSkipped    PeerReviewStatus = "skipped"
)

var peerReviewTransitions = map[PeerReviewStatus][]PeerReviewStatus{
	PeerReviewStatusPending:    {PeerReviewStatusInProgress, PeerReviewStatusCompleted, PeerReviewStatusSkipped},
	PeerReviewStatusInProgress: {PeerReviewStatusCompleted, PeerReviewStatusSkipped},
}

// CanTransitionTo reports whether next is reachable from s in one step.
func (s PeerReviewStatus) CanTransitionTo(next PeerReviewStatus) bool {
	for _, candidate := range peerReviewTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// Open reports whether the edge still awaits reviewer work.
func (s PeerReviewStatus) Open() bool {
	return s == PeerReviewStatusPending || s == PeerReviewStatusInProgress
}

// Assignment sources for PeerReviewAssignment.Source.
const (
	PeerReviewSourceRandom = "random"
	PeerReviewSourceManual = "manual"
)

// PeerReviewAssignment is a directed matching edge from a reviewer to a submission.
type PeerReviewAssignment struct {
	ID             uint             `gorm:"primaryKey" json:"id"`
	AssignmentID   uint             `gorm:"not null;index" json:"assignment_id"`
	SubmissionID   uint             `gorm:"not null;uniqueIndex:idx_peer_edge_submission_reviewer" json:"submission_id"`
	ReviewerID     uint             `gorm:"not null;uniqueIndex:idx_peer_edge_submission_reviewer;index" json:"reviewer_id"`
	AuthorID       uint             `gorm:"not null" json:"author_id"`
	Status         PeerReviewStatus `gorm:"size:16;not null;default:pending;index:idx_peer_edge_status_deadline,priority:1" json:"status"`
	Deadline       time.Time        `gorm:"not null;index:idx_peer_edge_status_deadline,priority:2" json:"deadline"`
	IsAnonymous    bool             `gorm:"not null" json:"is_anonymous"`
	Source         string           `gorm:"size:16;not null;default:random" json:"source"`
	StartedAt      *time.Time       `json:"started_at"`
	CompletedAt    *time.Time       `json:"completed_at"`
	LastRemindedAt *time.Time       `json:"last_reminded_at"`
	Version        uint             `gorm:"not null;default:1" json:"version"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
	Review         *PeerReview      `gorm:"foreignKey:PeerReviewAssignmentID;constraint:OnDelete:CASCADE" json:"review,omitempty"`
}

// IsOverdue is the derived overdue predicate: still open and past its deadline.
func (p PeerReviewAssignment) IsOverdue(now time.Time) bool {
	return p.Status.Open() && now.After(p.Deadline)
}

// PeerReview is the content of a completed review.
type PeerReview struct {
	ID                     uint              `gorm:"primaryKey" json:"id"`
	PeerReviewAssignmentID uint              `gorm:"not null;uniqueIndex" json:"peer_review_assignment_id"`
	Score                  float64           `gorm:"not null" json:"score"`
	Feedback               string            `gorm:"type:text" json:"feedback"`
	RubricScores           datatypes.JSONMap `gorm:"type:json" json:"rubric_scores"`
	Version                uint              `gorm:"not null;default:1" json:"version"`
	CreatedAt              time.Time         `json:"created_at"`
	UpdatedAt              time.Time         `json:"updated_at"`
}
