package service

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-review-engine/internal/dto"
	"github.com/noah-isme/gema-review-engine/internal/models"
	"github.com/noah-isme/gema-review-engine/internal/repository"
	"github.com/noah-isme/gema-review-engine/pkg/clock"
)

// SubmissionService orchestrates submission and grading workflows.
type SubmissionService interface {
	Submit(ctx context.Context, assignmentID uint, actor Actor) (dto.SubmissionResponse, error)
	Grade(ctx context.Context, id uint, payload dto.SubmissionGradeRequest, actor Actor) (dto.SubmissionResponse, error)
	Get(ctx context.Context, id uint) (dto.SubmissionResponse, error)
	ListByAssignment(ctx context.Context, assignmentID uint) ([]dto.SubmissionResponse, error)
}

type submissionService struct {
	submissions repository.SubmissionRepository
	assignments repository.AssignmentRepository
	roster      repository.RosterRepository
	activity    ActivityRecorder
	validator   *validator.Validate
	clock       clock.Clock
	retries     int
	logger      zerolog.Logger
}

// NewSubmissionService constructs a SubmissionService instance.
func NewSubmissionService(
	submissions repository.SubmissionRepository,
	assignments repository.AssignmentRepository,
	roster repository.RosterRepository,
	activity ActivityRecorder,
	validate *validator.Validate,
	clk clock.Clock,
	staleWriteRetries int,
	logger zerolog.Logger,
) SubmissionService {
	if clk == nil {
		clk = clock.System()
	}
	return &submissionService{
		submissions: submissions,
		assignments: assignments,
		roster:      roster,
		activity:    activity,
		validator:   validate,
		clock:       clk,
		retries:     staleWriteRetries,
		logger:      logger.With().Str("component", "submission_service").Logger(),
	}
}

// Submit records the actor's submission and snapshots its lateness against
// the assignment's current due date and policy.
func (s *submissionService) Submit(ctx context.Context, assignmentID uint, actor Actor) (dto.SubmissionResponse, error) {
	assignment, err := s.assignments.GetByID(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionResponse{}, ErrAssignmentNotFound
		}
		return dto.SubmissionResponse{}, err
	}

	if assignment.Status != models.AssignmentStatusPublished {
		return dto.SubmissionResponse{}, ErrAssignmentNotOpen
	}

	member, err := s.roster.IsMember(ctx, assignmentID, actor.ID)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}
	if !member {
		return dto.SubmissionResponse{}, ErrNotOnRoster
	}

	submittedAt := s.clock.Now()
	late := ComputeLatePenalty(assignment.DueAt, submittedAt, assignment.LatePenalty, assignment.MaxScore)

	penaltyType := assignment.LatePenalty.Type
	if penaltyType == "" {
		penaltyType = models.LatePenaltyNone
	}

	submission := models.Submission{
		AssignmentID:   assignmentID,
		StudentID:      actor.ID,
		SubmittedAt:    submittedAt,
		IsLate:         late.IsLate,
		DaysLate:       late.DaysLate,
		PenaltyType:    penaltyType,
		PenaltyApplied: late.PenaltyApplied,
		MaxScore:       assignment.MaxScore,
	}

	if err := s.submissions.Create(ctx, &submission); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return dto.SubmissionResponse{}, ErrDuplicateSubmission
		}
		return dto.SubmissionResponse{}, err
	}

	s.logger.Info().
		Uint("submission_id", submission.ID).
		Uint("assignment_id", assignmentID).
		Bool("is_late", submission.IsLate).
		Float64("days_late", submission.DaysLate).
		Msg("submission recorded")

	return dto.NewSubmissionResponse(submission), nil
}

// Grade stores the raw score and derives the final score from the penalty
// snapshotted at submission time.
func (s *submissionService) Grade(ctx context.Context, id uint, payload dto.SubmissionGradeRequest, actor Actor) (dto.SubmissionResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.SubmissionResponse{}, err
	}

	var submission models.Submission
	err := withStaleRetry(s.retries, func() error {
		current, err := s.load(ctx, id)
		if err != nil {
			return err
		}

		raw := roundScore(*payload.RawScore)
		if raw > current.MaxScore {
			return ErrScoreExceedsMax
		}

		final := ApplyLatePenalty(raw, current.PenaltyType, current.PenaltyApplied, current.MaxScore)
		percentage := 0.0
		if current.MaxScore > 0 {
			percentage = roundScore(final / current.MaxScore * 100)
		}

		current.RawScore = &raw
		current.FinalScore = &final
		current.Percentage = &percentage

		if err := s.submissions.Update(ctx, &current); err != nil {
			return err
		}
		submission = current
		return nil
	})
	if err != nil {
		return dto.SubmissionResponse{}, err
	}

	recordActivity(ctx, s.activity, ActivityEntry{
		Actor:      actor,
		Action:     ActionSubmissionGraded,
		EntityType: "submission",
		EntityID:   uintPtr(submission.ID),
		Metadata: map[string]interface{}{
			"raw_score":   *submission.RawScore,
			"final_score": *submission.FinalScore,
		},
	})

	return dto.NewSubmissionResponse(submission), nil
}

func (s *submissionService) Get(ctx context.Context, id uint) (dto.SubmissionResponse, error) {
	submission, err := s.load(ctx, id)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}
	return dto.NewSubmissionResponse(submission), nil
}

func (s *submissionService) ListByAssignment(ctx context.Context, assignmentID uint) ([]dto.SubmissionResponse, error) {
	if _, err := s.assignments.GetByID(ctx, assignmentID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAssignmentNotFound
		}
		return nil, err
	}

	submissions, err := s.submissions.ListByAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	return dto.NewSubmissionResponseSlice(submissions), nil
}

func (s *submissionService) load(ctx context.Context, id uint) (models.Submission, error) {
	submission, err := s.submissions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Submission{}, ErrSubmissionNotFound
		}
		return models.Submission{}, err
	}
	return submission, nil
}
