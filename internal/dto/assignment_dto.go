package dto

import (
	"time"

	"github.com/noah-isme/gema-review-engine/internal/models"
)

// LatePenaltyPolicyRequest describes the late penalty attached to an assignment.
type LatePenaltyPolicyRequest struct {
	Type  string  `json:"type" validate:"required,oneof=none fixed percentage_per_day"`
	Value float64 `json:"value" validate:"gte=0"`
}

// AssignmentCreateRequest describes the payload for creating a new assignment in draft.
type AssignmentCreateRequest struct {
	Title       string                    `json:"title" validate:"required,min=3,max=255"`
	Description string                    `json:"description" validate:"omitempty,max=10000"`
	PublishAt   *string                   `json:"publish_at" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	CloseAt     *string                   `json:"close_at" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	DueAt       string                    `json:"due_at" validate:"required,datetime=2006-01-02T15:04:05Z07:00"`
	MaxScore    float64                   `json:"max_score" validate:"required,gt=0"`
	LatePenalty *LatePenaltyPolicyRequest `json:"late_penalty_policy"`
}

// AssignmentScheduleRequest edits publish_at/close_at while the assignment is a draft.
// A nil field is left unchanged and an empty string clears it.
type AssignmentScheduleRequest struct {
	PublishAt *string `json:"publish_at" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	CloseAt   *string `json:"close_at" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}

// AssignmentListRequest filters assignment listings.
type AssignmentListRequest struct {
	Status   string `query:"status" validate:"omitempty,oneof=draft published closed"`
	Page     int    `query:"page" validate:"omitempty,gte=1"`
	PageSize int    `query:"page_size" validate:"omitempty,gte=1,lte=100"`
}

// RosterRequest adds students to an assignment roster.
type RosterRequest struct {
	StudentIDs []uint `json:"student_ids" validate:"required,min=1,dive,gt=0"`
}

// LatePenaltyPolicyResponse serializes the penalty policy.
type LatePenaltyPolicyResponse struct {
	Type  string  `json:"type"`
	Value float64 `json:"value"`
}

// AssignmentResponse is the serialized representation returned to API clients.
type AssignmentResponse struct {
	ID          uint                      `json:"id"`
	OwnerID     uint                      `json:"owner_id"`
	Title       string                    `json:"title"`
	Description string                    `json:"description"`
	Status      string                    `json:"status"`
	PublishAt   *time.Time                `json:"publish_at"`
	CloseAt     *time.Time                `json:"close_at"`
	DueAt       time.Time                 `json:"due_at"`
	MaxScore    float64                   `json:"max_score"`
	LatePenalty LatePenaltyPolicyResponse `json:"late_penalty_policy"`
	PublishedAt *time.Time                `json:"published_at"`
	ClosedAt    *time.Time                `json:"closed_at"`
	Version     uint                      `json:"version"`
	CreatedAt   time.Time                 `json:"created_at"`
	UpdatedAt   time.Time                 `json:"updated_at"`
}

// AssignmentListResponse wraps a page of assignments.
type AssignmentListResponse struct {
	Items      []AssignmentResponse `json:"items"`
	TotalItems int64                `json:"total_items"`
	Page       int                  `json:"page"`
	PageSize   int                  `json:"page_size"`
}

// RosterResponse lists the students on an assignment roster.
type RosterResponse struct {
	AssignmentID uint   `json:"assignment_id"`
	StudentIDs   []uint `json:"student_ids"`
}

// NewAssignmentResponse converts a model into a DTO.
func NewAssignmentResponse(model models.Assignment) AssignmentResponse {
	return AssignmentResponse{
		ID:          model.ID,
		OwnerID:     model.OwnerID,
		Title:       model.Title,
		Description: model.Description,
		Status:      string(model.Status),
		PublishAt:   model.PublishAt,
		CloseAt:     model.CloseAt,
		DueAt:       model.DueAt,
		MaxScore:    model.MaxScore,
		LatePenalty: LatePenaltyPolicyResponse{
			Type:  string(model.LatePenalty.Type),
			Value: model.LatePenalty.Value,
		},
		PublishedAt: model.PublishedAt,
		ClosedAt:    model.ClosedAt,
		Version:     model.Version,
		CreatedAt:   model.CreatedAt,
		UpdatedAt:   model.UpdatedAt,
	}
}

// NewAssignmentResponseSlice converts a slice of models into DTOs.
func NewAssignmentResponseSlice(assignments []models.Assignment) []AssignmentResponse {
	responses := make([]AssignmentResponse, 0, len(assignments))
	for _, assignment := range assignments {
		responses = append(responses, NewAssignmentResponse(assignment))
	}

	return responses
}
