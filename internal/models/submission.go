package models

import "time"

// Submission is one student's attempt against an assignment. Late fields are
// computed once at creation and never recomputed.
type Submission struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	AssignmentID   uint            `gorm:"not null;uniqueIndex:idx_submission_assignment_student" json:"assignment_id"`
	StudentID      uint            `gorm:"not null;uniqueIndex:idx_submission_assignment_student" json:"student_id"`
	SubmittedAt    time.Time       `gorm:"not null" json:"submitted_at"`
	IsLate         bool            `gorm:"not null;default:false" json:"is_late"`
	DaysLate       float64         `gorm:"not null;default:0" json:"days_late"`
	PenaltyType    LatePenaltyType `gorm:"size:32;not null;default:none" json:"penalty_type"`
	PenaltyApplied float64         `gorm:"not null;default:0" json:"penalty_applied"`
	MaxScore       float64         `gorm:"not null;default:100" json:"max_score"`
	RawScore       *float64        `json:"raw_score"`
	FinalScore     *float64        `json:"final_score"`
	Percentage     *float64        `json:"percentage"`
	Version        uint            `gorm:"not null;default:1" json:"version"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// IsGraded reports whether a raw score has been recorded.
func (s Submission) IsGraded() bool {
	return s.RawScore != nil
}
