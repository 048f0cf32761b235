package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-review-engine/internal/dto"
	"github.com/noah-isme/gema-review-engine/internal/models"
	"github.com/noah-isme/gema-review-engine/internal/repository"
	"github.com/noah-isme/gema-review-engine/pkg/clock"
	"github.com/noah-isme/gema-review-engine/pkg/lock"
)

// blockingAssignments stalls GetByID for one assignment until the item context ends.
type blockingAssignments struct {
	repository.AssignmentRepository
	blockID uint
}

func (b blockingAssignments) GetByID(ctx context.Context, id uint) (models.Assignment, error) {
	if id == b.blockID {
		<-ctx.Done()
		return models.Assignment{}, ctx.Err()
	}
	return b.AssignmentRepository.GetByID(ctx, id)
}

// rejectingAssignments fails every write to the listed assignments.
type rejectingAssignments struct {
	repository.AssignmentRepository
	reject map[uint]bool
}

func (r rejectingAssignments) Update(ctx context.Context, assignment *models.Assignment) error {
	if r.reject[assignment.ID] {
		return errors.New("row is corrupt")
	}
	return r.AssignmentRepository.Update(ctx, assignment)
}

type sweeperFixture struct {
	repos      repos
	dispatcher *recordingDispatcher
	clock      *clock.Fake
	locker     lock.Locker
}

func newSweeperFixture(t *testing.T) sweeperFixture {
	return sweeperFixture{
		repos:      newRepos(t),
		dispatcher: &recordingDispatcher{},
		clock:      clock.NewFake(t0),
		locker:     lock.NewLocalLock(),
	}
}

func (f sweeperFixture) sweeper(assignments repository.AssignmentRepository, cfg SweeperConfig) Sweeper {
	if assignments == nil {
		assignments = f.repos.assignments
	}
	return NewSchedulingSweeper(assignments, f.repos.roster, f.repos.edges, f.dispatcher, f.locker, f.clock, cfg, testLogger())
}

func TestSweeperPublishesOncePerRecipient(t *testing.T) {
	f := newSweeperFixture(t)
	assignment := f.repos.seedAssignment(t, models.AssignmentStatusDraft, timePtr(t0.Add(-time.Minute)), nil, 1, 2, 3)
	f.repos.seedAssignment(t, models.AssignmentStatusDraft, timePtr(t0.Add(time.Hour)), nil, 4)
	sweeper := f.sweeper(nil, SweeperConfig{})

	first, err := sweeper.RunOnce(context.Background())
	require.NoError(t, err)
	require.False(t, first.Skipped)
	require.Equal(t, 1, first.Published)
	require.Empty(t, first.Errors)

	second, err := sweeper.RunOnce(context.Background())
	require.NoError(t, err)
	require.Zero(t, second.Published)
	require.Greater(t, second.RunToken, first.RunToken)

	intents := f.dispatcher.byType(models.NotificationAssignmentPublished)
	require.Len(t, intents, 3)
	for _, intent := range intents {
		require.Equal(t, assignment.ID, intent.EntityID)
	}

	stored, err := f.repos.assignments.GetByID(context.Background(), assignment.ID)
	require.NoError(t, err)
	require.Equal(t, models.AssignmentStatusPublished, stored.Status)
}

func TestSweeperPublishesAndClosesInOneCycle(t *testing.T) {
	f := newSweeperFixture(t)
	assignment := f.repos.seedAssignment(t, models.AssignmentStatusDraft, timePtr(t0.Add(-2*time.Hour)), timePtr(t0.Add(-time.Hour)), 9)

	summary, err := f.sweeper(nil, SweeperConfig{}).RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.Published)
	require.Equal(t, 1, summary.Closed)

	stored, err := f.repos.assignments.GetByID(context.Background(), assignment.ID)
	require.NoError(t, err)
	require.Equal(t, models.AssignmentStatusClosed, stored.Status)
	require.Len(t, f.dispatcher.byType(models.NotificationAssignmentPublished), 1)
	require.Len(t, f.dispatcher.byType(models.NotificationAssignmentClosed), 1)
}

func TestSweeperRemindsOncePerWindow(t *testing.T) {
	f := newSweeperFixture(t)
	assignment := f.repos.seedAssignment(t, models.AssignmentStatusPublished, timePtr(t0.Add(-48*time.Hour)), nil, 1, 2)
	submission := f.repos.seedSubmission(t, assignment, 1)
	edge := models.PeerReviewAssignment{
		AssignmentID: assignment.ID,
		SubmissionID: submission.ID,
		ReviewerID:   2,
		AuthorID:     1,
		Status:       models.PeerReviewStatusPending,
		Deadline:     t0.Add(-time.Hour),
		IsAnonymous:  true,
		Source:       models.PeerReviewSourceManual,
	}
	require.NoError(t, f.repos.edges.CreateEdge(context.Background(), &edge))

	sweeper := f.sweeper(nil, SweeperConfig{ReminderWindow: 6 * time.Hour})

	first, err := sweeper.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, first.Reminded)

	f.clock.Advance(time.Hour)
	second, err := sweeper.RunOnce(context.Background())
	require.NoError(t, err)
	require.Zero(t, second.Reminded)

	f.clock.Advance(6 * time.Hour)
	third, err := sweeper.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, third.Reminded)

	reminders := f.dispatcher.byType(models.NotificationReviewReminder)
	require.Len(t, reminders, 2)
	require.Equal(t, uint(2), reminders[0].RecipientID)
	require.Equal(t, edge.ID, reminders[0].EntityID)
}

func TestSweeperAbandonsSlowItem(t *testing.T) {
	f := newSweeperFixture(t)
	slow := f.repos.seedAssignment(t, models.AssignmentStatusDraft, timePtr(t0.Add(-2*time.Minute)), nil, 1)
	fast := f.repos.seedAssignment(t, models.AssignmentStatusDraft, timePtr(t0.Add(-time.Minute)), nil, 2)

	sweeper := f.sweeper(blockingAssignments{AssignmentRepository: f.repos.assignments, blockID: slow.ID}, SweeperConfig{ItemTimeout: 50 * time.Millisecond})

	summary, err := sweeper.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.Published)
	require.Len(t, summary.Errors, 1)
	require.Equal(t, dto.SweepStagePublish, summary.Errors[0].Stage)
	require.Equal(t, slow.ID, summary.Errors[0].EntityID)

	stored, err := f.repos.assignments.GetByID(context.Background(), fast.ID)
	require.NoError(t, err)
	require.Equal(t, models.AssignmentStatusPublished, stored.Status)
}

func TestSweeperSkipsWhenLockHeld(t *testing.T) {
	f := newSweeperFixture(t)
	f.repos.seedAssignment(t, models.AssignmentStatusDraft, timePtr(t0.Add(-time.Minute)), nil, 1)

	lease, ok, err := f.locker.TryAcquire(context.Background(), "sweep", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	sweeper := f.sweeper(nil, SweeperConfig{})
	summary, err := sweeper.RunOnce(context.Background())
	require.NoError(t, err)
	require.True(t, summary.Skipped)
	require.Zero(t, summary.Published)

	require.NoError(t, lease.Release(context.Background()))
	summary, err = sweeper.RunOnce(context.Background())
	require.NoError(t, err)
	require.False(t, summary.Skipped)
	require.Equal(t, 1, summary.Published)
}

func TestSweeperReportsDispatchFailureAfterPersisting(t *testing.T) {
	f := newSweeperFixture(t)
	f.dispatcher.err = errors.New("broker down")
	assignment := f.repos.seedAssignment(t, models.AssignmentStatusDraft, timePtr(t0.Add(-time.Minute)), nil, 1)

	summary, err := f.sweeper(nil, SweeperConfig{}).RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.Published)
	require.Len(t, summary.Errors, 1)
	require.Equal(t, dto.SweepStageDispatch, summary.Errors[0].Stage)

	stored, err := f.repos.assignments.GetByID(context.Background(), assignment.ID)
	require.NoError(t, err)
	require.Equal(t, models.AssignmentStatusPublished, stored.Status)
}

func TestSweeperPagesPastPersistentFailures(t *testing.T) {
	f := newSweeperFixture(t)
	broken := map[uint]bool{}
	for i := 0; i < 2; i++ {
		a := f.repos.seedAssignment(t, models.AssignmentStatusDraft, timePtr(t0.Add(-time.Hour)), nil, 1)
		broken[a.ID] = true
	}
	healthy := f.repos.seedAssignment(t, models.AssignmentStatusDraft, timePtr(t0.Add(-time.Minute)), nil, 2)

	sweeper := f.sweeper(rejectingAssignments{AssignmentRepository: f.repos.assignments, reject: broken}, SweeperConfig{BatchSize: 2})

	for run := 0; run < 2; run++ {
		summary, err := sweeper.RunOnce(context.Background())
		require.NoError(t, err)
		require.Len(t, summary.Errors, 2)
		for _, item := range summary.Errors {
			require.True(t, broken[item.EntityID])
		}
		if run == 0 {
			require.Equal(t, 1, summary.Published)
		} else {
			require.Zero(t, summary.Published)
		}
	}

	stored, err := f.repos.assignments.GetByID(context.Background(), healthy.ID)
	require.NoError(t, err)
	require.Equal(t, models.AssignmentStatusPublished, stored.Status)
}
