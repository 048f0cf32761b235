package service

import (
	"errors"
	"fmt"
)

var (
	// ErrScheduleInvalid indicates close_at does not come strictly after publish_at.
	ErrScheduleInvalid = errors.New("schedule invalid: close_at must be after publish_at")
	// ErrScheduleLocked indicates an attempt to edit the schedule of a non-draft assignment.
	ErrScheduleLocked = errors.New("schedule locked: assignment is no longer a draft")
	// ErrInvalidPenaltyPolicy indicates an unknown penalty type or out-of-range value.
	ErrInvalidPenaltyPolicy = errors.New("invalid late penalty policy")
	// ErrAssignmentNotFound indicates the requested assignment does not exist.
	ErrAssignmentNotFound = errors.New("assignment not found")
	// ErrAssignmentNotOpen indicates the assignment is not accepting submissions.
	ErrAssignmentNotOpen = errors.New("assignment is not accepting submissions")
	// ErrCloseNotDue indicates an explicit close was requested before close_at.
	ErrCloseNotDue = errors.New("assignment close time has not been reached")
	// ErrNotOnRoster indicates the student is not part of the assignment roster.
	ErrNotOnRoster = errors.New("student is not on the assignment roster")
	// ErrSubmissionNotFound indicates a submission could not be found.
	ErrSubmissionNotFound = errors.New("submission not found")
	// ErrDuplicateSubmission indicates the student already submitted for the assignment.
	ErrDuplicateSubmission = errors.New("submission already exists for this student")
	// ErrScoreExceedsMax indicates a score surpasses the assignment max.
	ErrScoreExceedsMax = errors.New("score exceeds assignment max")
	// ErrPeerReviewAssignmentNotFound indicates the review edge does not exist.
	ErrPeerReviewAssignmentNotFound = errors.New("peer review assignment not found")
	// ErrNotReviewer indicates the actor is not the reviewer of the edge.
	ErrNotReviewer = errors.New("actor is not the assigned reviewer")
	// ErrReviewNotOpen indicates the edge no longer accepts reviewer work.
	ErrReviewNotOpen = errors.New("peer review assignment is not open")
	// ErrReviewNotEditable indicates an edit was attempted on an edge without a completed review.
	ErrReviewNotEditable = errors.New("peer review is not editable")
	// ErrReviewVersionMismatch indicates the review changed since the caller read it.
	ErrReviewVersionMismatch = errors.New("peer review was changed by another edit")
	// ErrNotSubmissionAuthor indicates a student asked for reviews of someone else's submission.
	ErrNotSubmissionAuthor = errors.New("actor is not the submission author")
	// ErrInvalidReviewerCount indicates a non-positive reviewers_per_submission.
	ErrInvalidReviewerCount = errors.New("reviewers per submission must be positive")
)

// Constraint violation reasons shared by the random and manual matching paths.
const (
	ReasonSelfReview          = "self_review"
	ReasonNotAParticipant     = "not_a_participant"
	ReasonNotSubmitted        = "not_submitted"
	ReasonDuplicateAssignment = "duplicate_assignment"
)

// Skip reasons recorded in matching batch results.
const (
	ReasonInsufficientPool = "insufficient_pool"
	ReasonQuotaMet         = "quota_met"
)

// ConstraintViolation reports a broken matching rule.
type ConstraintViolation struct {
	Reason string
}

func (e *ConstraintViolation) Error() string {
	return fmt.Sprintf("constraint violation: %s", e.Reason)
}

// IsConstraintViolation reports whether err is a ConstraintViolation, optionally with the given reason.
func IsConstraintViolation(err error, reason string) bool {
	var violation *ConstraintViolation
	if !errors.As(err, &violation) {
		return false
	}
	return reason == "" || violation.Reason == reason
}
