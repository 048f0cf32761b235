package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-review-engine/internal/dto"
	"github.com/noah-isme/gema-review-engine/internal/models"
	"github.com/noah-isme/gema-review-engine/pkg/clock"
)

func newSubmissionFixture(t *testing.T) (repos, SubmissionService, *clock.Fake, *stubRecorder) {
	r := newRepos(t)
	clk := clock.NewFake(t0)
	recorder := &stubRecorder{}
	svc := NewSubmissionService(r.submissions, r.assignments, r.roster, recorder, testValidator(), clk, 3, testLogger())
	return r, svc, clk, recorder
}

func seedLateAssignment(t *testing.T, r repos) models.Assignment {
	t.Helper()
	assignment := models.Assignment{
		OwnerID:     teacher.ID,
		Title:       "Late policy",
		Status:      models.AssignmentStatusPublished,
		PublishAt:   timePtr(t0.Add(-time.Hour)),
		DueAt:       t0,
		MaxScore:    100,
		LatePenalty: models.LatePenaltyPolicy{Type: models.LatePenaltyPercentagePerDay, Value: 10},
	}
	require.NoError(t, r.assignments.Create(context.Background(), &assignment))
	require.NoError(t, r.roster.Add(context.Background(), assignment.ID, 7, 8))
	return assignment
}

func TestSubmissionServiceSnapshotsLatePenalty(t *testing.T) {
	r, svc, clk, recorder := newSubmissionFixture(t)
	assignment := seedLateAssignment(t, r)

	clk.Set(t0.Add(36 * time.Hour))
	submission, err := svc.Submit(context.Background(), assignment.ID, student(7))
	require.NoError(t, err)
	require.True(t, submission.IsLate)
	require.Equal(t, 1.5, submission.DaysLate)
	require.Equal(t, 15.0, submission.PenaltyApplied)

	// Changing the policy afterwards must not touch the stored snapshot.
	assignment.LatePenalty = models.LatePenaltyPolicy{Type: models.LatePenaltyNone}
	require.NoError(t, r.assignments.Update(context.Background(), &assignment))

	graded, err := svc.Grade(context.Background(), submission.ID, dto.SubmissionGradeRequest{RawScore: floatPtr(80)}, teacher)
	require.NoError(t, err)
	require.NotNil(t, graded.FinalScore)
	require.Equal(t, 68.0, *graded.FinalScore)
	require.Equal(t, 68.0, *graded.Percentage)
	require.Contains(t, recorder.actions(), ActionSubmissionGraded)
}

func TestSubmissionServiceRejectsDuplicateAndOutsiders(t *testing.T) {
	r, svc, _, _ := newSubmissionFixture(t)
	assignment := seedLateAssignment(t, r)

	_, err := svc.Submit(context.Background(), assignment.ID, student(8))
	require.NoError(t, err)

	_, err = svc.Submit(context.Background(), assignment.ID, student(8))
	require.ErrorIs(t, err, ErrDuplicateSubmission)

	_, err = svc.Submit(context.Background(), assignment.ID, student(99))
	require.ErrorIs(t, err, ErrNotOnRoster)

	_, err = svc.Submit(context.Background(), 4040, student(8))
	require.ErrorIs(t, err, ErrAssignmentNotFound)
}

func TestSubmissionServiceRequiresPublishedAssignment(t *testing.T) {
	r, svc, _, _ := newSubmissionFixture(t)
	draft := r.seedAssignment(t, models.AssignmentStatusDraft, nil, nil, 7)

	_, err := svc.Submit(context.Background(), draft.ID, student(7))
	require.ErrorIs(t, err, ErrAssignmentNotOpen)
}

func TestSubmissionServiceGradeRejectsScoreAboveMax(t *testing.T) {
	r, svc, _, _ := newSubmissionFixture(t)
	assignment := seedLateAssignment(t, r)
	submission, err := svc.Submit(context.Background(), assignment.ID, student(7))
	require.NoError(t, err)
	require.False(t, submission.IsLate)

	_, err = svc.Grade(context.Background(), submission.ID, dto.SubmissionGradeRequest{RawScore: floatPtr(101)}, teacher)
	require.ErrorIs(t, err, ErrScoreExceedsMax)

	_, err = svc.Grade(context.Background(), 777, dto.SubmissionGradeRequest{RawScore: floatPtr(10)}, teacher)
	require.ErrorIs(t, err, ErrSubmissionNotFound)

	listed, err := svc.ListByAssignment(context.Background(), assignment.ID)
	require.NoError(t, err)
	require.Len(t, listed, 1)
}
