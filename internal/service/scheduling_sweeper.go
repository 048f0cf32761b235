package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-review-engine/internal/dto"
	"github.com/noah-isme/gema-review-engine/internal/models"
	"github.com/noah-isme/gema-review-engine/internal/observability"
	"github.com/noah-isme/gema-review-engine/internal/repository"
	"github.com/noah-isme/gema-review-engine/pkg/clock"
	"github.com/noah-isme/gema-review-engine/pkg/lock"
)

const (
	defaultSweepBatchSize      = 500
	defaultSweepItemTimeout    = 10 * time.Second
	defaultSweepReminderWindow = 24 * time.Hour
	defaultSweepLockTTL        = 5 * time.Minute
	defaultSweepLockKey        = "sweep"
)

// SweeperConfig tunes one sweep cycle.
type SweeperConfig struct {
	BatchSize         int
	ItemTimeout       time.Duration
	ReminderWindow    time.Duration
	LockKey           string
	LockTTL           time.Duration
	StaleWriteRetries int
}

// Sweeper runs scheduled lifecycle transitions and reminders.
type Sweeper interface {
	RunOnce(ctx context.Context) (dto.SweepSummary, error)
}

type schedulingSweeper struct {
	assignments repository.AssignmentRepository
	roster      repository.RosterRepository
	edges       repository.PeerReviewRepository
	dispatcher  Dispatcher
	locker      lock.Locker
	machine     AssignmentStateMachine
	clock       clock.Clock
	tracer      trace.Tracer
	cfg         SweeperConfig
	logger      zerolog.Logger

	running  atomic.Bool
	runToken atomic.Uint64
}

// NewSchedulingSweeper builds the periodic sweeper. locker guards against
// overlapping cycles across processes; pass lock.NewLocalLock() for a single node.
func NewSchedulingSweeper(
	assignments repository.AssignmentRepository,
	roster repository.RosterRepository,
	edges repository.PeerReviewRepository,
	dispatcher Dispatcher,
	locker lock.Locker,
	clk clock.Clock,
	cfg SweeperConfig,
	logger zerolog.Logger,
) Sweeper {
	if clk == nil {
		clk = clock.System()
	}
	if locker == nil {
		locker = lock.NewLocalLock()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultSweepBatchSize
	}
	if cfg.ItemTimeout <= 0 {
		cfg.ItemTimeout = defaultSweepItemTimeout
	}
	if cfg.ReminderWindow <= 0 {
		cfg.ReminderWindow = defaultSweepReminderWindow
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = defaultSweepLockTTL
	}
	if cfg.LockKey == "" {
		cfg.LockKey = defaultSweepLockKey
	}

	return &schedulingSweeper{
		assignments: assignments,
		roster:      roster,
		edges:       edges,
		dispatcher:  dispatcher,
		locker:      locker,
		clock:       clk,
		tracer:      otel.Tracer("github.com/noah-isme/gema-review-engine/internal/service/sweeper"),
		cfg:         cfg,
		logger:      logger.With().Str("component", "scheduling_sweeper").Logger(),
	}
}

// RunOnce executes one cycle: publish, then close, then reminders. A cycle
// that finds another one in progress returns a summary with Skipped set.
// Per-item failures are collected in the summary; only failures to start
// the cycle are returned as errors.
func (s *schedulingSweeper) RunOnce(ctx context.Context) (dto.SweepSummary, error) {
	token := s.runToken.Add(1)
	summary := dto.SweepSummary{
		RunToken:  token,
		StartedAt: s.clock.Now(),
		Errors:    []dto.SweepItemError{},
	}
	logger := s.logger.With().Uint64("run_token", token).Logger()

	if !s.running.CompareAndSwap(false, true) {
		return s.skipped(summary, logger), nil
	}
	defer s.running.Store(false)

	lease, acquired, err := s.locker.TryAcquire(ctx, s.cfg.LockKey, s.cfg.LockTTL)
	if err != nil {
		observability.SweepRuns().WithLabelValues("error").Inc()
		logger.Error().Err(err).Msg("failed to acquire sweep lock")
		return summary, fmt.Errorf("acquire sweep lock: %w", err)
	}
	if !acquired {
		return s.skipped(summary, logger), nil
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			logger.Warn().Err(err).Msg("sweep lock expired before release")
		}
	}()

	ctx, span := s.tracer.Start(ctx, "sweep.run", trace.WithAttributes(attribute.Int64("sweep.run_token", int64(token))))
	defer span.End()

	now := summary.StartedAt
	s.publishDue(ctx, now, &summary, logger)
	s.closeDue(ctx, now, &summary, logger)
	s.remindOverdue(ctx, now, &summary, logger)

	summary.FinishedAt = s.clock.Now()
	span.SetAttributes(
		attribute.Int("sweep.published", summary.Published),
		attribute.Int("sweep.closed", summary.Closed),
		attribute.Int("sweep.reminded", summary.Reminded),
		attribute.Int("sweep.errors", len(summary.Errors)),
	)
	outcome := "ok"
	if len(summary.Errors) > 0 {
		outcome = "partial"
		span.SetStatus(codes.Error, "item_failures")
	}
	observability.SweepRuns().WithLabelValues(outcome).Inc()

	logger.Info().
		Int("published", summary.Published).
		Int("closed", summary.Closed).
		Int("reminded", summary.Reminded).
		Int("errors", len(summary.Errors)).
		Dur("duration", summary.FinishedAt.Sub(summary.StartedAt)).
		Msg("sweep completed")

	return summary, nil
}

func (s *schedulingSweeper) skipped(summary dto.SweepSummary, logger zerolog.Logger) dto.SweepSummary {
	summary.Skipped = true
	summary.FinishedAt = s.clock.Now()
	observability.SweepRuns().WithLabelValues("skipped").Inc()
	logger.Info().Msg("sweep already running, skipping")
	return summary
}

func (s *schedulingSweeper) publishDue(ctx context.Context, now time.Time, summary *dto.SweepSummary, logger zerolog.Logger) {
	fetch := func(afterID uint) ([]models.Assignment, error) {
		return s.assignments.ListDueForPublish(ctx, now, afterID, s.cfg.BatchSize)
	}
	err := sweepPages(ctx, s.cfg.BatchSize, fetch, assignmentKey, func(candidate models.Assignment) {
		id := candidate.ID
		intents, err := s.runItem(ctx, dto.SweepStagePublish, id, func(itemCtx context.Context) ([]NotificationIntent, error) {
			return s.transition(itemCtx, id, now, s.machine.TryPublish)
		})
		if err != nil {
			s.fail(summary, logger, dto.SweepStagePublish, id, err)
			return
		}
		if intents != nil {
			summary.Published++
			observability.SweepTransitions().WithLabelValues("published").Inc()
		}
		s.emit(ctx, summary, logger, id, intents)
	})
	if err != nil {
		s.fail(summary, logger, dto.SweepStagePublish, 0, err)
	}
}

func (s *schedulingSweeper) closeDue(ctx context.Context, now time.Time, summary *dto.SweepSummary, logger zerolog.Logger) {
	fetch := func(afterID uint) ([]models.Assignment, error) {
		return s.assignments.ListDueForClose(ctx, now, afterID, s.cfg.BatchSize)
	}
	err := sweepPages(ctx, s.cfg.BatchSize, fetch, assignmentKey, func(candidate models.Assignment) {
		id := candidate.ID
		intents, err := s.runItem(ctx, dto.SweepStageClose, id, func(itemCtx context.Context) ([]NotificationIntent, error) {
			return s.transition(itemCtx, id, now, s.machine.TryClose)
		})
		if err != nil {
			s.fail(summary, logger, dto.SweepStageClose, id, err)
			return
		}
		if intents != nil {
			summary.Closed++
			observability.SweepTransitions().WithLabelValues("closed").Inc()
		}
		s.emit(ctx, summary, logger, id, intents)
	})
	if err != nil {
		s.fail(summary, logger, dto.SweepStageClose, 0, err)
	}
}

func (s *schedulingSweeper) remindOverdue(ctx context.Context, now time.Time, summary *dto.SweepSummary, logger zerolog.Logger) {
	remindedBefore := now.Add(-s.cfg.ReminderWindow)
	fetch := func(afterID uint) ([]models.PeerReviewAssignment, error) {
		return s.edges.ListOverdue(ctx, now, remindedBefore, afterID, s.cfg.BatchSize)
	}
	err := sweepPages(ctx, s.cfg.BatchSize, fetch, edgeKey, func(edge models.PeerReviewAssignment) {
		intents, err := s.runItem(ctx, dto.SweepStageReminder, edge.ID, func(itemCtx context.Context) ([]NotificationIntent, error) {
			won, err := s.edges.MarkReminded(itemCtx, edge.ID, now, remindedBefore)
			if err != nil || !won {
				return nil, err
			}
			return []NotificationIntent{reminderIntent(edge, now)}, nil
		})
		if err != nil {
			s.fail(summary, logger, dto.SweepStageReminder, edge.ID, err)
			return
		}
		if intents != nil {
			summary.Reminded++
			observability.SweepTransitions().WithLabelValues("reminded").Inc()
		}
		s.emit(ctx, summary, logger, edge.ID, intents)
	})
	if err != nil {
		s.fail(summary, logger, dto.SweepStageReminder, 0, err)
	}
}

// sweepPages walks every page fetch returns, advancing an id cursor past
// each page so items that keep failing never hide the ones after them.
// It stops early when ctx ends.
func sweepPages[T any](ctx context.Context, batchSize int, fetch func(afterID uint) ([]T, error), idOf func(T) uint, visit func(T)) error {
	var afterID uint
	for {
		page, err := fetch(afterID)
		if err != nil {
			return err
		}
		for _, item := range page {
			visit(item)
		}
		if len(page) < batchSize || len(page) == 0 {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		afterID = idOf(page[len(page)-1])
	}
}

func assignmentKey(a models.Assignment) uint { return a.ID }

func edgeKey(e models.PeerReviewAssignment) uint { return e.ID }

// transition reloads the assignment, applies step and persists the result.
// It returns a non-nil slice only when the assignment actually moved.
func (s *schedulingSweeper) transition(
	ctx context.Context,
	id uint,
	now time.Time,
	step func(*models.Assignment, []uint, time.Time) LifecycleEvent,
) ([]NotificationIntent, error) {
	var (
		assignment models.Assignment
		event      LifecycleEvent
	)

	err := withStaleRetry(s.cfg.StaleWriteRetries, func() error {
		current, err := s.assignments.GetByID(ctx, id)
		if err != nil {
			return err
		}

		roster, err := s.roster.ListStudentIDs(ctx, id)
		if err != nil {
			return err
		}

		event = step(&current, roster, now)
		if !event.Changed {
			return nil
		}
		if err := s.assignments.Update(ctx, &current); err != nil {
			return err
		}
		assignment = current
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if !event.Changed {
		return nil, nil
	}

	intents := lifecycleIntents(event, assignment)
	if intents == nil {
		intents = []NotificationIntent{}
	}
	return intents, nil
}

// runItem bounds a single item by ItemTimeout. An item that overruns is
// abandoned and reported; its goroutine observes the cancelled context.
func (s *schedulingSweeper) runItem(ctx context.Context, stage string, entityID uint, fn func(context.Context) ([]NotificationIntent, error)) ([]NotificationIntent, error) {
	itemCtx, cancel := context.WithTimeout(ctx, s.cfg.ItemTimeout)
	defer cancel()

	type outcome struct {
		intents []NotificationIntent
		err     error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if recovered := recover(); recovered != nil {
				done <- outcome{err: fmt.Errorf("panic: %v", recovered)}
			}
		}()
		intents, err := fn(itemCtx)
		done <- outcome{intents: intents, err: err}
	}()

	select {
	case result := <-done:
		return result.intents, result.err
	case <-itemCtx.Done():
		return nil, fmt.Errorf("%s of %d abandoned: %w", stage, entityID, itemCtx.Err())
	}
}

func (s *schedulingSweeper) emit(ctx context.Context, summary *dto.SweepSummary, logger zerolog.Logger, entityID uint, intents []NotificationIntent) {
	if len(intents) == 0 || s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Dispatch(ctx, intents); err != nil {
		s.fail(summary, logger, dto.SweepStageDispatch, entityID, err)
	}
}

func (s *schedulingSweeper) fail(summary *dto.SweepSummary, logger zerolog.Logger, stage string, entityID uint, err error) {
	summary.Errors = append(summary.Errors, dto.SweepItemError{Stage: stage, EntityID: entityID, Error: err.Error()})
	observability.SweepItemErrors().WithLabelValues(stage).Inc()
	logger.Error().Err(err).Str("stage", stage).Uint("entity_id", entityID).Msg("sweep item failed")
}

func reminderIntent(edge models.PeerReviewAssignment, now time.Time) NotificationIntent {
	return NotificationIntent{
		RecipientID: edge.ReviewerID,
		EventType:   models.NotificationReviewReminder,
		EntityID:    edge.ID,
		Payload: map[string]interface{}{
			"peer_review_assignment_id": edge.ID,
			"assignment_id":             edge.AssignmentID,
			"submission_id":             edge.SubmissionID,
			"deadline":                  edge.Deadline.Format(time.RFC3339),
			"status":                    string(edge.Status),
			"at":                        now.Format(time.RFC3339),
		},
	}
}
