package dto

import (
	"time"

	"github.com/noah-isme/gema-review-engine/internal/models"
)

// ExcludedPair forbids a specific reviewer from being drawn for a submission.
type ExcludedPair struct {
	ReviewerID   uint `json:"reviewer_id" validate:"required,gt=0"`
	SubmissionID uint `json:"submission_id" validate:"required,gt=0"`
}

// PeerReviewGenerateRequest asks for random reviewer matching across an assignment.
type PeerReviewGenerateRequest struct {
	ReviewersPerSubmission int            `json:"reviewers_per_submission" validate:"omitempty,gte=1,lte=10"`
	Deadline               string         `json:"deadline" validate:"required,datetime=2006-01-02T15:04:05Z07:00"`
	Anonymous              *bool          `json:"anonymous"`
	ExcludedPairs          []ExcludedPair `json:"excluded_pairs" validate:"omitempty,dive"`
}

// PeerReviewManualRequest assigns a single reviewer to a submission.
type PeerReviewManualRequest struct {
	ReviewerID   uint   `json:"reviewer_id" validate:"required,gt=0"`
	SubmissionID uint   `json:"submission_id" validate:"required,gt=0"`
	Deadline     string `json:"deadline" validate:"required,datetime=2006-01-02T15:04:05Z07:00"`
	Anonymous    *bool  `json:"anonymous"`
}

// PeerReviewSubmitRequest carries the content of a review. Version is only
// read on edits; when set it must match the stored review version.
type PeerReviewSubmitRequest struct {
	Score        *float64           `json:"score" validate:"required,gte=0"`
	Feedback     string             `json:"feedback" validate:"omitempty,max=5000"`
	RubricScores map[string]float64 `json:"rubric_scores" validate:"omitempty,dive,keys,required,max=64,endkeys,gte=0"`
	Version      *uint              `json:"version,omitempty" validate:"omitempty,gte=1"`
}

// MatchingEdge is one reviewer-submission pair created by a matching run.
type MatchingEdge struct {
	PeerReviewAssignmentID uint `json:"peer_review_assignment_id"`
	ReviewerID             uint `json:"reviewer_id"`
	SubmissionID           uint `json:"submission_id"`
}

// MatchingSkip records a submission that received no new reviewers.
type MatchingSkip struct {
	SubmissionID uint   `json:"submission_id"`
	Reason       string `json:"reason"`
}

// MatchingError records a submission whose edges failed to persist.
type MatchingError struct {
	SubmissionID uint   `json:"submission_id"`
	Reason       string `json:"reason"`
}

// MatchingResult is the per-submission outcome of a random matching batch.
type MatchingResult struct {
	AssignmentID uint            `json:"assignment_id"`
	Assigned     []MatchingEdge  `json:"assigned"`
	Skipped      []MatchingSkip  `json:"skipped"`
	Errors       []MatchingError `json:"errors"`
}

// PeerReviewContent is the body of a submitted review.
type PeerReviewContent struct {
	Score        float64            `json:"score"`
	Feedback     string             `json:"feedback"`
	RubricScores map[string]float64 `json:"rubric_scores,omitempty"`
	Version      uint               `json:"version"`
	SubmittedAt  time.Time          `json:"submitted_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// PeerReviewAssignmentResponse is the reviewer-facing view of an edge.
type PeerReviewAssignmentResponse struct {
	ID           uint               `json:"id"`
	AssignmentID uint               `json:"assignment_id"`
	SubmissionID uint               `json:"submission_id"`
	ReviewerID   uint               `json:"reviewer_id"`
	Status       string             `json:"status"`
	Deadline     time.Time          `json:"deadline"`
	Overdue      bool               `json:"overdue"`
	IsAnonymous  bool               `json:"is_anonymous"`
	Source       string             `json:"source"`
	Review       *PeerReviewContent `json:"review,omitempty"`
}

// PeerReviewView is a completed review as shown to the submission's author.
// ReviewerID is nil whenever the edge is anonymous.
type PeerReviewView struct {
	PeerReviewAssignmentID uint              `json:"peer_review_assignment_id"`
	SubmissionID           uint              `json:"submission_id"`
	ReviewerID             *uint             `json:"reviewer_id"`
	IsAnonymous            bool              `json:"is_anonymous"`
	Review                 PeerReviewContent `json:"review"`
}

// ReviewSummaryResponse aggregates the completed reviews of a submission.
// MeanScore is nil when there are no completed reviews.
type ReviewSummaryResponse struct {
	SubmissionID uint               `json:"submission_id"`
	ReviewCount  int                `json:"review_count"`
	MeanScore    *float64           `json:"mean_score"`
	RubricMeans  map[string]float64 `json:"rubric_means"`
}

// NewPeerReviewContent converts a review model. It returns nil for a nil review.
func NewPeerReviewContent(review *models.PeerReview) *PeerReviewContent {
	if review == nil {
		return nil
	}
	return &PeerReviewContent{
		Score:        review.Score,
		Feedback:     review.Feedback,
		RubricScores: RubricFromJSONMap(review.RubricScores),
		Version:      review.Version,
		SubmittedAt:  review.CreatedAt,
		UpdatedAt:    review.UpdatedAt,
	}
}

// NewPeerReviewAssignmentResponse converts an edge for its reviewer.
func NewPeerReviewAssignmentResponse(model models.PeerReviewAssignment, now time.Time) PeerReviewAssignmentResponse {
	return PeerReviewAssignmentResponse{
		ID:           model.ID,
		AssignmentID: model.AssignmentID,
		SubmissionID: model.SubmissionID,
		ReviewerID:   model.ReviewerID,
		Status:       string(model.Status),
		Deadline:     model.Deadline,
		Overdue:      model.IsOverdue(now),
		IsAnonymous:  model.IsAnonymous,
		Source:       model.Source,
		Review:       NewPeerReviewContent(model.Review),
	}
}

// NewPeerReviewAssignmentResponseSlice converts edges for their reviewer.
func NewPeerReviewAssignmentResponseSlice(items []models.PeerReviewAssignment, now time.Time) []PeerReviewAssignmentResponse {
	responses := make([]PeerReviewAssignmentResponse, 0, len(items))
	for _, item := range items {
		responses = append(responses, NewPeerReviewAssignmentResponse(item, now))
	}
	return responses
}

// NewPeerReviewViewForAuthor renders a completed edge for the submission author,
// nulling reviewer identity on anonymous edges. It returns false when the edge
// has no review to show.
func NewPeerReviewViewForAuthor(model models.PeerReviewAssignment) (PeerReviewView, bool) {
	if model.Status != models.PeerReviewStatusCompleted || model.Review == nil {
		return PeerReviewView{}, false
	}

	view := PeerReviewView{
		PeerReviewAssignmentID: model.ID,
		SubmissionID:           model.SubmissionID,
		IsAnonymous:            model.IsAnonymous,
		Review:                 *NewPeerReviewContent(model.Review),
	}
	if !model.IsAnonymous {
		reviewerID := model.ReviewerID
		view.ReviewerID = &reviewerID
	}
	return view, true
}

// RubricFromJSONMap extracts numeric rubric scores, ignoring non-numeric entries.
func RubricFromJSONMap(values map[string]interface{}) map[string]float64 {
	if len(values) == 0 {
		return nil
	}
	result := make(map[string]float64, len(values))
	for key, raw := range values {
		switch v := raw.(type) {
		case float64:
			result[key] = v
		case float32:
			result[key] = float64(v)
		case int:
			result[key] = float64(v)
		case int64:
			result[key] = float64(v)
		case uint:
			result[key] = float64(v)
		}
	}
	return result
}
