package dto

import (
	"time"

	"github.com/noah-isme/gema-review-engine/internal/models"
)

// SubmissionGradeRequest records the raw score of a submission.
type SubmissionGradeRequest struct {
	RawScore *float64 `json:"raw_score" validate:"required,gte=0"`
}

// SubmissionResponse is returned to API clients when viewing submissions.
type SubmissionResponse struct {
	ID             uint      `json:"id"`
	AssignmentID   uint      `json:"assignment_id"`
	StudentID      uint      `json:"student_id"`
	SubmittedAt    time.Time `json:"submitted_at"`
	IsLate         bool      `json:"is_late"`
	DaysLate       float64   `json:"days_late"`
	PenaltyType    string    `json:"penalty_type"`
	PenaltyApplied float64   `json:"penalty_applied"`
	MaxScore       float64   `json:"max_score"`
	RawScore       *float64  `json:"raw_score"`
	FinalScore     *float64  `json:"final_score"`
	Percentage     *float64  `json:"percentage"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// NewSubmissionResponse converts a Submission model into a DTO.
func NewSubmissionResponse(model models.Submission) SubmissionResponse {
	return SubmissionResponse{
		ID:             model.ID,
		AssignmentID:   model.AssignmentID,
		StudentID:      model.StudentID,
		SubmittedAt:    model.SubmittedAt,
		IsLate:         model.IsLate,
		DaysLate:       model.DaysLate,
		PenaltyType:    string(model.PenaltyType),
		PenaltyApplied: model.PenaltyApplied,
		MaxScore:       model.MaxScore,
		RawScore:       model.RawScore,
		FinalScore:     model.FinalScore,
		Percentage:     model.Percentage,
		CreatedAt:      model.CreatedAt,
		UpdatedAt:      model.UpdatedAt,
	}
}

// NewSubmissionResponseSlice converts submission models into DTOs.
func NewSubmissionResponseSlice(items []models.Submission) []SubmissionResponse {
	responses := make([]SubmissionResponse, 0, len(items))
	for _, submission := range items {
		responses = append(responses, NewSubmissionResponse(submission))
	}

	return responses
}
