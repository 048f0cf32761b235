package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-review-engine/internal/dto"
	"github.com/noah-isme/gema-review-engine/internal/models"
	"github.com/noah-isme/gema-review-engine/internal/observability"
	"github.com/noah-isme/gema-review-engine/internal/repository"
	"github.com/noah-isme/gema-review-engine/pkg/clock"
)

const summaryCachePrefix = "peer_review:summary:"

// PeerReviewConfig tunes matching and the summary cache.
type PeerReviewConfig struct {
	DefaultReviewers  int
	SpareCandidates   int
	SummaryCacheTTL   time.Duration
	StaleWriteRetries int
}

// PeerReviewService covers reviewer matching, review work and aggregation.
type PeerReviewService interface {
	GenerateRandom(ctx context.Context, assignmentID uint, payload dto.PeerReviewGenerateRequest, actor Actor) (dto.MatchingResult, error)
	AssignManual(ctx context.Context, payload dto.PeerReviewManualRequest, actor Actor) (dto.PeerReviewAssignmentResponse, error)
	Start(ctx context.Context, id uint, actor Actor) (dto.PeerReviewAssignmentResponse, error)
	SubmitReview(ctx context.Context, id uint, payload dto.PeerReviewSubmitRequest, actor Actor) (dto.PeerReviewAssignmentResponse, error)
	EditReview(ctx context.Context, id uint, payload dto.PeerReviewSubmitRequest, actor Actor) (dto.PeerReviewAssignmentResponse, error)
	Skip(ctx context.Context, id uint, actor Actor) (dto.PeerReviewAssignmentResponse, error)
	ListForReviewer(ctx context.Context, actor Actor, assignmentID *uint) ([]dto.PeerReviewAssignmentResponse, error)
	ReviewsForAuthor(ctx context.Context, submissionID uint, actor Actor) ([]dto.PeerReviewView, error)
	Summary(ctx context.Context, submissionID uint, actor Actor) (dto.ReviewSummaryResponse, error)
}

type peerReviewService struct {
	edges       repository.PeerReviewRepository
	submissions repository.SubmissionRepository
	assignments repository.AssignmentRepository
	roster      repository.RosterRepository
	cache       *redis.Client
	activity    ActivityRecorder
	validator   *validator.Validate
	sanitizer   *bluemonday.Policy
	tracer      trace.Tracer
	engine      PeerMatchingEngine
	locks       *keyedMutex
	clock       clock.Clock
	rng         RandFactory
	cfg         PeerReviewConfig
	logger      zerolog.Logger
}

// NewPeerReviewService wires the peer review service. cache may be nil.
func NewPeerReviewService(
	edges repository.PeerReviewRepository,
	submissions repository.SubmissionRepository,
	assignments repository.AssignmentRepository,
	roster repository.RosterRepository,
	cache *redis.Client,
	activity ActivityRecorder,
	validate *validator.Validate,
	clk clock.Clock,
	cfg PeerReviewConfig,
	logger zerolog.Logger,
) PeerReviewService {
	if clk == nil {
		clk = clock.System()
	}
	if cfg.DefaultReviewers <= 0 {
		cfg.DefaultReviewers = 2
	}
	if cfg.SpareCandidates < 0 {
		cfg.SpareCandidates = 0
	}

	return &peerReviewService{
		edges:       edges,
		submissions: submissions,
		assignments: assignments,
		roster:      roster,
		cache:       cache,
		activity:    activity,
		validator:   validate,
		sanitizer:   bluemonday.StrictPolicy(),
		tracer:      otel.Tracer("github.com/noah-isme/gema-review-engine/internal/service/peer_review"),
		engine:      PeerMatchingEngine{SpareCandidates: cfg.SpareCandidates},
		locks:       newKeyedMutex(),
		clock:       clk,
		rng:         SecureRand,
		cfg:         cfg,
		logger:      logger.With().Str("component", "peer_review_service").Logger(),
	}
}

// GenerateRandom matches reviewers across every submission of the assignment.
// Per-submission outcomes are reported in the result; only failures that
// prevent the batch from starting are returned as errors.
func (s *peerReviewService) GenerateRandom(ctx context.Context, assignmentID uint, payload dto.PeerReviewGenerateRequest, actor Actor) (dto.MatchingResult, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.MatchingResult{}, err
	}

	required := payload.ReviewersPerSubmission
	if required == 0 {
		required = s.cfg.DefaultReviewers
	}
	if required <= 0 {
		return dto.MatchingResult{}, ErrInvalidReviewerCount
	}

	deadline, err := parseInstant(payload.Deadline)
	if err != nil {
		return dto.MatchingResult{}, fmt.Errorf("invalid deadline: %w", err)
	}

	anonymous := true
	if payload.Anonymous != nil {
		anonymous = *payload.Anonymous
	}

	ctx, span := s.tracer.Start(ctx, "peer_review.generate", trace.WithAttributes(
		attribute.Int64("assignment.id", int64(assignmentID)),
		attribute.Int("peer_review.reviewers_per_submission", required),
	))
	defer span.End()

	assignment, err := s.loadAssignment(ctx, assignmentID)
	if err != nil {
		span.RecordError(err)
		return dto.MatchingResult{}, err
	}
	if assignment.Status == models.AssignmentStatusDraft {
		return dto.MatchingResult{}, ErrAssignmentNotOpen
	}

	roster, err := s.roster.ListStudentIDs(ctx, assignmentID)
	if err != nil {
		span.RecordError(err)
		return dto.MatchingResult{}, err
	}
	submissions, err := s.submissions.ListByAssignment(ctx, assignmentID)
	if err != nil {
		span.RecordError(err)
		return dto.MatchingResult{}, err
	}
	existing, err := s.edges.ListByAssignment(ctx, assignmentID)
	if err != nil {
		span.RecordError(err)
		return dto.MatchingResult{}, err
	}

	pool := NewMatchingPool(roster, submissions, existing, payload.ExcludedPairs)
	plan := s.engine.Plan(pool, required, s.rng())

	result := dto.MatchingResult{
		AssignmentID: assignmentID,
		Assigned:     []dto.MatchingEdge{},
		Skipped:      plan.Skipped,
		Errors:       []dto.MatchingError{},
	}
	if result.Skipped == nil {
		result.Skipped = []dto.MatchingSkip{}
	}

	for _, draw := range plan.Draws {
		edges := make([]models.PeerReviewAssignment, 0, len(draw.Reviewers))
		for _, reviewerID := range draw.Reviewers {
			edges = append(edges, models.PeerReviewAssignment{
				AssignmentID: assignmentID,
				SubmissionID: draw.Submission.ID,
				ReviewerID:   reviewerID,
				AuthorID:     draw.Submission.StudentID,
				Status:       models.PeerReviewStatusPending,
				Deadline:     deadline,
				IsAnonymous:  anonymous,
				Source:       models.PeerReviewSourceRandom,
			})
		}

		err := s.edges.CreateEdges(ctx, draw.Submission.ID, required, edges)
		switch {
		case err == nil:
			for _, edge := range edges {
				result.Assigned = append(result.Assigned, dto.MatchingEdge{
					PeerReviewAssignmentID: edge.ID,
					ReviewerID:             edge.ReviewerID,
					SubmissionID:           edge.SubmissionID,
				})
			}
			observability.PeerEdgesCreated().WithLabelValues(models.PeerReviewSourceRandom).Add(float64(len(edges)))
		case errors.Is(err, repository.ErrQuotaExceeded):
			result.Skipped = append(result.Skipped, dto.MatchingSkip{SubmissionID: draw.Submission.ID, Reason: ReasonQuotaMet})
		case errors.Is(err, repository.ErrDuplicate):
			result.Errors = append(result.Errors, dto.MatchingError{SubmissionID: draw.Submission.ID, Reason: ReasonDuplicateAssignment})
		default:
			s.logger.Error().Err(err).Uint("submission_id", draw.Submission.ID).Msg("failed to persist reviewer edges")
			span.RecordError(err)
			result.Errors = append(result.Errors, dto.MatchingError{SubmissionID: draw.Submission.ID, Reason: err.Error()})
		}
	}

	for _, skip := range result.Skipped {
		observability.PeerSubmissionsSkipped().WithLabelValues(skip.Reason).Inc()
	}

	span.SetAttributes(
		attribute.Int("peer_review.assigned", len(result.Assigned)),
		attribute.Int("peer_review.skipped", len(result.Skipped)),
		attribute.Int("peer_review.errors", len(result.Errors)),
	)
	if len(result.Errors) > 0 {
		span.SetStatus(codes.Error, "partial_failure")
	}

	s.logger.Info().
		Uint("assignment_id", assignmentID).
		Int("assigned", len(result.Assigned)).
		Int("skipped", len(result.Skipped)).
		Int("errors", len(result.Errors)).
		Msg("random peer review matching completed")

	recordActivity(ctx, s.activity, ActivityEntry{
		Actor:      actor,
		Action:     ActionMatchingGenerated,
		EntityType: "assignment",
		EntityID:   uintPtr(assignmentID),
		Metadata: map[string]interface{}{
			"reviewers_per_submission": required,
			"assigned":                 len(result.Assigned),
			"skipped":                  len(result.Skipped),
			"errors":                   len(result.Errors),
		},
	})

	return result, nil
}

// AssignManual creates one edge after running the same checks as random
// matching. Calls for the same submission are serialised in-process and the
// unique (submission, reviewer) index catches races across processes.
func (s *peerReviewService) AssignManual(ctx context.Context, payload dto.PeerReviewManualRequest, actor Actor) (dto.PeerReviewAssignmentResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.PeerReviewAssignmentResponse{}, err
	}

	deadline, err := parseInstant(payload.Deadline)
	if err != nil {
		return dto.PeerReviewAssignmentResponse{}, fmt.Errorf("invalid deadline: %w", err)
	}

	anonymous := true
	if payload.Anonymous != nil {
		anonymous = *payload.Anonymous
	}

	unlock := s.locks.Lock(payload.SubmissionID)
	defer unlock()

	submission, err := s.loadSubmission(ctx, payload.SubmissionID)
	if err != nil {
		return dto.PeerReviewAssignmentResponse{}, err
	}

	roster, err := s.roster.ListStudentIDs(ctx, submission.AssignmentID)
	if err != nil {
		return dto.PeerReviewAssignmentResponse{}, err
	}
	submissions, err := s.submissions.ListByAssignment(ctx, submission.AssignmentID)
	if err != nil {
		return dto.PeerReviewAssignmentResponse{}, err
	}
	existing, err := s.edges.ListBySubmission(ctx, submission.ID)
	if err != nil {
		return dto.PeerReviewAssignmentResponse{}, err
	}

	pool := NewMatchingPool(roster, submissions, existing, nil)
	if err := pool.CheckReviewer(payload.ReviewerID, submission); err != nil {
		return dto.PeerReviewAssignmentResponse{}, err
	}

	edge := models.PeerReviewAssignment{
		AssignmentID: submission.AssignmentID,
		SubmissionID: submission.ID,
		ReviewerID:   payload.ReviewerID,
		AuthorID:     submission.StudentID,
		Status:       models.PeerReviewStatusPending,
		Deadline:     deadline,
		IsAnonymous:  anonymous,
		Source:       models.PeerReviewSourceManual,
	}
	if err := s.edges.CreateEdge(ctx, &edge); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return dto.PeerReviewAssignmentResponse{}, &ConstraintViolation{Reason: ReasonDuplicateAssignment}
		}
		return dto.PeerReviewAssignmentResponse{}, err
	}

	observability.PeerEdgesCreated().WithLabelValues(models.PeerReviewSourceManual).Inc()
	s.logger.Info().
		Uint("peer_review_assignment_id", edge.ID).
		Uint("submission_id", edge.SubmissionID).
		Uint("reviewer_id", edge.ReviewerID).
		Msg("manual peer review assigned")

	recordActivity(ctx, s.activity, ActivityEntry{
		Actor:      actor,
		Action:     ActionManualAssigned,
		EntityType: "peer_review_assignment",
		EntityID:   uintPtr(edge.ID),
		Metadata:   map[string]interface{}{"submission_id": edge.SubmissionID, "reviewer_id": edge.ReviewerID},
	})

	return dto.NewPeerReviewAssignmentResponse(edge, s.clock.Now()), nil
}

// Start moves a pending edge to in_progress. Starting an in-progress edge is a no-op.
func (s *peerReviewService) Start(ctx context.Context, id uint, actor Actor) (dto.PeerReviewAssignmentResponse, error) {
	var edge models.PeerReviewAssignment
	err := withStaleRetry(s.cfg.StaleWriteRetries, func() error {
		current, err := s.loadOwnEdge(ctx, id, actor)
		if err != nil {
			return err
		}
		edge = current

		if current.Status == models.PeerReviewStatusInProgress {
			return nil
		}
		if !current.Status.CanTransitionTo(models.PeerReviewStatusInProgress) {
			return ErrReviewNotOpen
		}

		now := s.clock.Now()
		current.Status = models.PeerReviewStatusInProgress
		current.StartedAt = &now
		if err := s.edges.Update(ctx, &current); err != nil {
			return err
		}
		edge = current
		return nil
	})
	if err != nil {
		return dto.PeerReviewAssignmentResponse{}, err
	}

	return dto.NewPeerReviewAssignmentResponse(edge, s.clock.Now()), nil
}

// SubmitReview stores the review and completes the edge in one write.
func (s *peerReviewService) SubmitReview(ctx context.Context, id uint, payload dto.PeerReviewSubmitRequest, actor Actor) (dto.PeerReviewAssignmentResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.PeerReviewAssignmentResponse{}, err
	}

	ctx, span := s.tracer.Start(ctx, "peer_review.submit", trace.WithAttributes(
		attribute.Int64("peer_review_assignment.id", int64(id)),
		attribute.Int64("peer_review.reviewer_id", int64(actor.ID)),
	))
	defer span.End()

	var edge models.PeerReviewAssignment
	err := withStaleRetry(s.cfg.StaleWriteRetries, func() error {
		current, err := s.loadOwnEdge(ctx, id, actor)
		if err != nil {
			return err
		}
		if !current.Status.CanTransitionTo(models.PeerReviewStatusCompleted) {
			return ErrReviewNotOpen
		}

		if err := s.checkReviewScore(ctx, current.SubmissionID, *payload.Score); err != nil {
			return err
		}

		now := s.clock.Now()
		if current.StartedAt == nil {
			current.StartedAt = &now
		}
		current.Status = models.PeerReviewStatusCompleted
		current.CompletedAt = &now

		review := models.PeerReview{
			Score:        roundScore(*payload.Score),
			Feedback:     s.sanitizeFeedback(payload.Feedback),
			RubricScores: rubricToJSONMap(payload.RubricScores),
		}
		if err := s.edges.Complete(ctx, &current, &review); err != nil {
			return err
		}
		edge = current
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "submit_failed")
		return dto.PeerReviewAssignmentResponse{}, err
	}

	s.invalidateSummary(ctx, edge.SubmissionID)
	s.logger.Info().
		Uint("peer_review_assignment_id", edge.ID).
		Uint("submission_id", edge.SubmissionID).
		Msg("peer review submitted")

	return dto.NewPeerReviewAssignmentResponse(edge, s.clock.Now()), nil
}

// EditReview lets the reviewer revise a completed review.
func (s *peerReviewService) EditReview(ctx context.Context, id uint, payload dto.PeerReviewSubmitRequest, actor Actor) (dto.PeerReviewAssignmentResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.PeerReviewAssignmentResponse{}, err
	}

	edge, err := s.loadOwnEdge(ctx, id, actor)
	if err != nil {
		return dto.PeerReviewAssignmentResponse{}, err
	}
	if edge.Status != models.PeerReviewStatusCompleted || edge.Review == nil {
		return dto.PeerReviewAssignmentResponse{}, ErrReviewNotEditable
	}
	if payload.Version != nil && *payload.Version != edge.Review.Version {
		return dto.PeerReviewAssignmentResponse{}, ErrReviewVersionMismatch
	}

	if err := s.checkReviewScore(ctx, edge.SubmissionID, *payload.Score); err != nil {
		return dto.PeerReviewAssignmentResponse{}, err
	}

	edge.Review.Score = roundScore(*payload.Score)
	edge.Review.Feedback = s.sanitizeFeedback(payload.Feedback)
	edge.Review.RubricScores = rubricToJSONMap(payload.RubricScores)
	edge.Review.UpdatedAt = s.clock.Now()
	if err := s.edges.UpdateReview(ctx, edge.Review); err != nil {
		if errors.Is(err, repository.ErrStaleWrite) {
			return dto.PeerReviewAssignmentResponse{}, ErrReviewVersionMismatch
		}
		return dto.PeerReviewAssignmentResponse{}, err
	}

	s.invalidateSummary(ctx, edge.SubmissionID)
	return dto.NewPeerReviewAssignmentResponse(edge, s.clock.Now()), nil
}

// Skip lets the reviewer decline an open edge.
func (s *peerReviewService) Skip(ctx context.Context, id uint, actor Actor) (dto.PeerReviewAssignmentResponse, error) {
	var edge models.PeerReviewAssignment
	err := withStaleRetry(s.cfg.StaleWriteRetries, func() error {
		current, err := s.loadOwnEdge(ctx, id, actor)
		if err != nil {
			return err
		}
		if !current.Status.CanTransitionTo(models.PeerReviewStatusSkipped) {
			return ErrReviewNotOpen
		}

		current.Status = models.PeerReviewStatusSkipped
		if err := s.edges.Update(ctx, &current); err != nil {
			return err
		}
		edge = current
		return nil
	})
	if err != nil {
		return dto.PeerReviewAssignmentResponse{}, err
	}

	return dto.NewPeerReviewAssignmentResponse(edge, s.clock.Now()), nil
}

func (s *peerReviewService) ListForReviewer(ctx context.Context, actor Actor, assignmentID *uint) ([]dto.PeerReviewAssignmentResponse, error) {
	edges, err := s.edges.ListByReviewer(ctx, actor.ID, assignmentID)
	if err != nil {
		return nil, err
	}
	return dto.NewPeerReviewAssignmentResponseSlice(edges, s.clock.Now()), nil
}

// ReviewsForAuthor renders the completed reviews of a submission with reviewer
// identity removed from anonymous edges.
func (s *peerReviewService) ReviewsForAuthor(ctx context.Context, submissionID uint, actor Actor) ([]dto.PeerReviewView, error) {
	submission, err := s.loadSubmission(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if !actor.IsStaff() && submission.StudentID != actor.ID {
		return nil, ErrNotSubmissionAuthor
	}

	edges, err := s.edges.ListBySubmission(ctx, submissionID)
	if err != nil {
		return nil, err
	}

	views := make([]dto.PeerReviewView, 0, len(edges))
	for _, edge := range edges {
		if view, ok := dto.NewPeerReviewViewForAuthor(edge); ok {
			views = append(views, view)
		}
	}
	return views, nil
}

// Summary returns the aggregate of a submission's completed reviews to its
// author or staff, served from Redis when a copy for the current cache
// generation exists.
func (s *peerReviewService) Summary(ctx context.Context, submissionID uint, actor Actor) (dto.ReviewSummaryResponse, error) {
	submission, err := s.loadSubmission(ctx, submissionID)
	if err != nil {
		return dto.ReviewSummaryResponse{}, err
	}
	if !actor.IsStaff() && submission.StudentID != actor.ID {
		return dto.ReviewSummaryResponse{}, ErrNotSubmissionAuthor
	}

	generation, cacheable := s.summaryGeneration(ctx, submissionID)
	cacheKey := summaryCacheKey(submissionID, generation)

	if cacheable {
		cached, err := s.cache.Get(ctx, cacheKey).Result()
		if err == nil {
			var summary dto.ReviewSummaryResponse
			if unmarshalErr := json.Unmarshal([]byte(cached), &summary); unmarshalErr == nil {
				return summary, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Uint("submission_id", submissionID).Msg("failed to read review summary cache")
		}
	}

	edges, err := s.edges.ListBySubmission(ctx, submissionID)
	if err != nil {
		return dto.ReviewSummaryResponse{}, err
	}

	summary := AggregateReviews(submissionID, edges)

	if cacheable && s.cfg.SummaryCacheTTL > 0 {
		if payload, err := json.Marshal(summary); err == nil {
			if err := s.cache.Set(ctx, cacheKey, payload, s.cfg.SummaryCacheTTL).Err(); err != nil {
				s.logger.Warn().Err(err).Uint("submission_id", submissionID).Msg("failed to cache review summary")
			}
		}
	}

	return summary, nil
}

func summaryGenerationKey(submissionID uint) string {
	return fmt.Sprintf("%sgen:%d", summaryCachePrefix, submissionID)
}

func summaryCacheKey(submissionID uint, generation int64) string {
	return fmt.Sprintf("%s%d:%d", summaryCachePrefix, submissionID, generation)
}

// summaryGeneration reads the cache generation of a submission. It must be
// read before the reviews are loaded so a concurrent invalidation leaves the
// aggregate under a key nobody reads again.
func (s *peerReviewService) summaryGeneration(ctx context.Context, submissionID uint) (int64, bool) {
	if s.cache == nil {
		return 0, false
	}
	generation, err := s.cache.Get(ctx, summaryGenerationKey(submissionID)).Int64()
	switch {
	case err == nil:
		return generation, true
	case errors.Is(err, redis.Nil):
		return 0, true
	default:
		s.logger.Warn().Err(err).Uint("submission_id", submissionID).Msg("failed to read review summary generation")
		return 0, false
	}
}

func (s *peerReviewService) invalidateSummary(ctx context.Context, submissionID uint) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Incr(ctx, summaryGenerationKey(submissionID)).Err(); err != nil {
		s.logger.Warn().Err(err).Uint("submission_id", submissionID).Msg("failed to invalidate review summary cache")
	}
}

func (s *peerReviewService) checkReviewScore(ctx context.Context, submissionID uint, score float64) error {
	submission, err := s.loadSubmission(ctx, submissionID)
	if err != nil {
		return err
	}
	if submission.MaxScore > 0 && score > submission.MaxScore {
		return ErrScoreExceedsMax
	}
	return nil
}

func (s *peerReviewService) sanitizeFeedback(feedback string) string {
	return strings.TrimSpace(s.sanitizer.Sanitize(feedback))
}

func (s *peerReviewService) loadOwnEdge(ctx context.Context, id uint, actor Actor) (models.PeerReviewAssignment, error) {
	edge, err := s.edges.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.PeerReviewAssignment{}, ErrPeerReviewAssignmentNotFound
		}
		return models.PeerReviewAssignment{}, err
	}
	if edge.ReviewerID != actor.ID {
		return models.PeerReviewAssignment{}, ErrNotReviewer
	}
	return edge, nil
}

func (s *peerReviewService) loadSubmission(ctx context.Context, id uint) (models.Submission, error) {
	submission, err := s.submissions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Submission{}, ErrSubmissionNotFound
		}
		return models.Submission{}, err
	}
	return submission, nil
}

func (s *peerReviewService) loadAssignment(ctx context.Context, id uint) (models.Assignment, error) {
	assignment, err := s.assignments.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Assignment{}, ErrAssignmentNotFound
		}
		return models.Assignment{}, err
	}
	return assignment, nil
}

func rubricToJSONMap(values map[string]float64) datatypes.JSONMap {
	if len(values) == 0 {
		return nil
	}
	out := datatypes.JSONMap{}
	for key, value := range values {
		trimmed := strings.TrimSpace(key)
		if trimmed == "" {
			continue
		}
		out[trimmed] = roundScore(value)
	}
	return out
}
