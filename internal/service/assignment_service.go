package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-review-engine/internal/dto"
	"github.com/noah-isme/gema-review-engine/internal/models"
	"github.com/noah-isme/gema-review-engine/internal/repository"
	"github.com/noah-isme/gema-review-engine/pkg/clock"
)

const (
	defaultAssignmentPage     = 1
	defaultAssignmentPageSize = 20
)

// AssignmentService exposes assignment lifecycle and roster use cases.
type AssignmentService interface {
	Create(ctx context.Context, payload dto.AssignmentCreateRequest, actor Actor) (dto.AssignmentResponse, error)
	Get(ctx context.Context, id uint, actor Actor) (dto.AssignmentResponse, error)
	List(ctx context.Context, req dto.AssignmentListRequest, actor Actor) (dto.AssignmentListResponse, error)
	UpdateSchedule(ctx context.Context, id uint, payload dto.AssignmentScheduleRequest, actor Actor) (dto.AssignmentResponse, error)
	PublishNow(ctx context.Context, id uint, actor Actor) (dto.AssignmentResponse, error)
	CloseNow(ctx context.Context, id uint, actor Actor) (dto.AssignmentResponse, error)
	AddToRoster(ctx context.Context, id uint, payload dto.RosterRequest, actor Actor) (dto.RosterResponse, error)
	RemoveFromRoster(ctx context.Context, id, studentID uint, actor Actor) error
	Roster(ctx context.Context, id uint) (dto.RosterResponse, error)
}

type assignmentService struct {
	repo       repository.AssignmentRepository
	roster     repository.RosterRepository
	dispatcher Dispatcher
	activity   ActivityRecorder
	validator  *validator.Validate
	machine    AssignmentStateMachine
	clock      clock.Clock
	retries    int
	logger     zerolog.Logger
}

// NewAssignmentService builds the assignment service.
func NewAssignmentService(
	repo repository.AssignmentRepository,
	roster repository.RosterRepository,
	dispatcher Dispatcher,
	activity ActivityRecorder,
	validate *validator.Validate,
	clk clock.Clock,
	staleWriteRetries int,
	logger zerolog.Logger,
) AssignmentService {
	if clk == nil {
		clk = clock.System()
	}
	return &assignmentService{
		repo:       repo,
		roster:     roster,
		dispatcher: dispatcher,
		activity:   activity,
		validator:  validate,
		clock:      clk,
		retries:    staleWriteRetries,
		logger:     logger.With().Str("component", "assignment_service").Logger(),
	}
}

func (s *assignmentService) Create(ctx context.Context, payload dto.AssignmentCreateRequest, actor Actor) (dto.AssignmentResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.AssignmentResponse{}, err
	}

	dueAt, err := parseInstant(payload.DueAt)
	if err != nil {
		return dto.AssignmentResponse{}, fmt.Errorf("invalid due_at: %w", err)
	}

	publishAt, err := parseOptionalInstant(payload.PublishAt)
	if err != nil {
		return dto.AssignmentResponse{}, fmt.Errorf("invalid publish_at: %w", err)
	}

	closeAt, err := parseOptionalInstant(payload.CloseAt)
	if err != nil {
		return dto.AssignmentResponse{}, fmt.Errorf("invalid close_at: %w", err)
	}

	if err := s.machine.ValidateSchedule(publishAt, closeAt); err != nil {
		return dto.AssignmentResponse{}, err
	}

	policy := models.LatePenaltyPolicy{Type: models.LatePenaltyNone}
	if payload.LatePenalty != nil {
		policy = models.LatePenaltyPolicy{Type: models.LatePenaltyType(payload.LatePenalty.Type), Value: payload.LatePenalty.Value}
	}
	if err := ValidatePenaltyPolicy(policy); err != nil {
		return dto.AssignmentResponse{}, err
	}

	assignment := models.Assignment{
		OwnerID:     actor.ID,
		Title:       strings.TrimSpace(payload.Title),
		Description: strings.TrimSpace(payload.Description),
		Status:      models.AssignmentStatusDraft,
		PublishAt:   publishAt,
		CloseAt:     closeAt,
		DueAt:       dueAt,
		MaxScore:    payload.MaxScore,
		LatePenalty: policy,
	}

	if err := s.repo.Create(ctx, &assignment); err != nil {
		return dto.AssignmentResponse{}, err
	}

	s.logger.Info().Uint("assignment_id", assignment.ID).Uint("owner_id", actor.ID).Msg("assignment created")
	recordActivity(ctx, s.activity, ActivityEntry{
		Actor:      actor,
		Action:     ActionAssignmentCreated,
		EntityType: "assignment",
		EntityID:   uintPtr(assignment.ID),
		Metadata:   map[string]interface{}{"title": assignment.Title},
	})

	return dto.NewAssignmentResponse(assignment), nil
}

// Get returns an assignment. Students only see published or closed
// assignments they are rostered on; anything else reads as not found.
func (s *assignmentService) Get(ctx context.Context, id uint, actor Actor) (dto.AssignmentResponse, error) {
	assignment, err := s.load(ctx, id)
	if err != nil {
		return dto.AssignmentResponse{}, err
	}
	if actor.IsStaff() {
		return dto.NewAssignmentResponse(assignment), nil
	}

	if assignment.Status == models.AssignmentStatusDraft {
		return dto.AssignmentResponse{}, ErrAssignmentNotFound
	}
	member, err := s.roster.IsMember(ctx, assignment.ID, actor.ID)
	if err != nil {
		return dto.AssignmentResponse{}, err
	}
	if !member {
		return dto.AssignmentResponse{}, ErrAssignmentNotFound
	}
	return dto.NewAssignmentResponse(assignment), nil
}

func (s *assignmentService) List(ctx context.Context, req dto.AssignmentListRequest, actor Actor) (dto.AssignmentListResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.AssignmentListResponse{}, err
	}

	page := req.Page
	if page <= 0 {
		page = defaultAssignmentPage
	}
	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = defaultAssignmentPageSize
	}

	filter := repository.AssignmentFilter{Page: page, PageSize: pageSize}
	if req.Status != "" {
		status := models.AssignmentStatus(req.Status)
		filter.Status = &status
	}
	if !actor.IsStaff() {
		studentID := actor.ID
		filter.Statuses = []models.AssignmentStatus{models.AssignmentStatusPublished, models.AssignmentStatusClosed}
		filter.RosterStudentID = &studentID
	}

	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return dto.AssignmentListResponse{}, err
	}

	return dto.AssignmentListResponse{
		Items:      dto.NewAssignmentResponseSlice(items),
		TotalItems: total,
		Page:       page,
		PageSize:   pageSize,
	}, nil
}

func (s *assignmentService) UpdateSchedule(ctx context.Context, id uint, payload dto.AssignmentScheduleRequest, actor Actor) (dto.AssignmentResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.AssignmentResponse{}, err
	}

	var assignment models.Assignment
	err := withStaleRetry(s.retries, func() error {
		current, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		if err := s.machine.EnsureScheduleEditable(current); err != nil {
			return err
		}

		if payload.PublishAt != nil {
			current.PublishAt, err = parseOptionalInstant(payload.PublishAt)
			if err != nil {
				return fmt.Errorf("invalid publish_at: %w", err)
			}
		}
		if payload.CloseAt != nil {
			current.CloseAt, err = parseOptionalInstant(payload.CloseAt)
			if err != nil {
				return fmt.Errorf("invalid close_at: %w", err)
			}
		}

		if err := s.machine.ValidateSchedule(current.PublishAt, current.CloseAt); err != nil {
			return err
		}

		if err := s.repo.Update(ctx, &current); err != nil {
			return err
		}
		assignment = current
		return nil
	})
	if err != nil {
		return dto.AssignmentResponse{}, err
	}

	recordActivity(ctx, s.activity, ActivityEntry{
		Actor:      actor,
		Action:     ActionScheduleUpdated,
		EntityType: "assignment",
		EntityID:   uintPtr(assignment.ID),
	})

	return dto.NewAssignmentResponse(assignment), nil
}

// PublishNow is the explicit teacher action. An unset or future publish_at is
// pulled forward to now and must still precede close_at.
func (s *assignmentService) PublishNow(ctx context.Context, id uint, actor Actor) (dto.AssignmentResponse, error) {
	var (
		assignment models.Assignment
		event      LifecycleEvent
	)

	err := withStaleRetry(s.retries, func() error {
		current, err := s.load(ctx, id)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		if current.Status == models.AssignmentStatusDraft && (current.PublishAt == nil || current.PublishAt.After(now)) {
			stamp := now
			current.PublishAt = &stamp
			if err := s.machine.ValidateSchedule(current.PublishAt, current.CloseAt); err != nil {
				return err
			}
		}

		roster, err := s.roster.ListStudentIDs(ctx, current.ID)
		if err != nil {
			return err
		}

		event = s.machine.TryPublish(&current, roster, now)
		if event.Changed {
			if err := s.repo.Update(ctx, &current); err != nil {
				return err
			}
		}
		assignment = current
		return nil
	})
	if err != nil {
		return dto.AssignmentResponse{}, err
	}

	s.afterTransition(ctx, event, assignment, actor)
	return dto.NewAssignmentResponse(assignment), nil
}

// CloseNow closes a published assignment whose close_at has been reached.
func (s *assignmentService) CloseNow(ctx context.Context, id uint, actor Actor) (dto.AssignmentResponse, error) {
	var (
		assignment models.Assignment
		event      LifecycleEvent
	)

	err := withStaleRetry(s.retries, func() error {
		current, err := s.load(ctx, id)
		if err != nil {
			return err
		}

		switch current.Status {
		case models.AssignmentStatusClosed:
			assignment = current
			event = noChange(&current)
			return nil
		case models.AssignmentStatusDraft:
			return models.ErrInvalidTransition
		}

		now := s.clock.Now()
		if current.CloseAt == nil || now.Before(*current.CloseAt) {
			return ErrCloseNotDue
		}

		roster, err := s.roster.ListStudentIDs(ctx, current.ID)
		if err != nil {
			return err
		}

		event = s.machine.TryClose(&current, roster, now)
		if event.Changed {
			if err := s.repo.Update(ctx, &current); err != nil {
				return err
			}
		}
		assignment = current
		return nil
	})
	if err != nil {
		return dto.AssignmentResponse{}, err
	}

	s.afterTransition(ctx, event, assignment, actor)
	return dto.NewAssignmentResponse(assignment), nil
}

func (s *assignmentService) AddToRoster(ctx context.Context, id uint, payload dto.RosterRequest, actor Actor) (dto.RosterResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.RosterResponse{}, err
	}

	if _, err := s.load(ctx, id); err != nil {
		return dto.RosterResponse{}, err
	}

	if err := s.roster.Add(ctx, id, payload.StudentIDs...); err != nil {
		return dto.RosterResponse{}, err
	}

	recordActivity(ctx, s.activity, ActivityEntry{
		Actor:      actor,
		Action:     ActionRosterChanged,
		EntityType: "assignment",
		EntityID:   uintPtr(id),
		Metadata:   map[string]interface{}{"added": payload.StudentIDs},
	})

	return s.Roster(ctx, id)
}

// RemoveFromRoster unenrolls a student. Existing peer review edges of that
// student are left untouched.
func (s *assignmentService) RemoveFromRoster(ctx context.Context, id, studentID uint, actor Actor) error {
	if _, err := s.load(ctx, id); err != nil {
		return err
	}

	if err := s.roster.Remove(ctx, id, studentID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotOnRoster
		}
		return err
	}

	recordActivity(ctx, s.activity, ActivityEntry{
		Actor:      actor,
		Action:     ActionRosterChanged,
		EntityType: "assignment",
		EntityID:   uintPtr(id),
		Metadata:   map[string]interface{}{"removed": studentID},
	})
	return nil
}

func (s *assignmentService) Roster(ctx context.Context, id uint) (dto.RosterResponse, error) {
	if _, err := s.load(ctx, id); err != nil {
		return dto.RosterResponse{}, err
	}

	students, err := s.roster.ListStudentIDs(ctx, id)
	if err != nil {
		return dto.RosterResponse{}, err
	}
	if students == nil {
		students = []uint{}
	}
	return dto.RosterResponse{AssignmentID: id, StudentIDs: students}, nil
}

func (s *assignmentService) load(ctx context.Context, id uint) (models.Assignment, error) {
	assignment, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Assignment{}, ErrAssignmentNotFound
		}
		return models.Assignment{}, err
	}
	return assignment, nil
}

// afterTransition emits intents only after the new state has been persisted.
func (s *assignmentService) afterTransition(ctx context.Context, event LifecycleEvent, assignment models.Assignment, actor Actor) {
	if !event.Changed {
		return
	}

	action := ActionAssignmentPublished
	if event.To == models.AssignmentStatusClosed {
		action = ActionAssignmentClosed
	}

	s.logger.Info().
		Uint("assignment_id", assignment.ID).
		Str("from", string(event.From)).
		Str("to", string(event.To)).
		Int("recipients", len(event.Recipients)).
		Msg("assignment transitioned")

	if s.dispatcher != nil {
		if err := s.dispatcher.Dispatch(ctx, lifecycleIntents(event, assignment)); err != nil {
			s.logger.Error().Err(err).Uint("assignment_id", assignment.ID).Msg("failed to dispatch lifecycle notifications")
		}
	}

	recordActivity(ctx, s.activity, ActivityEntry{
		Actor:      actor,
		Action:     action,
		EntityType: "assignment",
		EntityID:   uintPtr(assignment.ID),
		Metadata:   map[string]interface{}{"recipients": len(event.Recipients)},
	})
}

func parseInstant(value string) (time.Time, error) {
	parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, err
	}
	return parsed.UTC(), nil
}

// parseOptionalInstant maps nil and "" to nil.
func parseOptionalInstant(value *string) (*time.Time, error) {
	if value == nil || strings.TrimSpace(*value) == "" {
		return nil, nil
	}
	parsed, err := parseInstant(*value)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}
