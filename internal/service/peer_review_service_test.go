package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-review-engine/internal/dto"
	"github.com/noah-isme/gema-review-engine/internal/models"
	"github.com/noah-isme/gema-review-engine/pkg/clock"
)

const reviewDeadline = "2024-03-08T00:00:00Z"

type peerFixture struct {
	repos    repos
	service  PeerReviewService
	recorder *stubRecorder
	redis    *miniredis.Miniredis
}

func newPeerFixture(t *testing.T, spare int) peerFixture {
	r := newRepos(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	recorder := &stubRecorder{}
	svc := NewPeerReviewService(r.edges, r.submissions, r.assignments, r.roster, client, recorder, testValidator(), clock.NewFake(t0), PeerReviewConfig{
		DefaultReviewers:  2,
		SpareCandidates:   spare,
		SummaryCacheTTL:   time.Minute,
		StaleWriteRetries: 3,
	}, testLogger())
	svc.(*peerReviewService).rng = SeededRand(11, 23)

	return peerFixture{repos: r, service: svc, recorder: recorder, redis: mr}
}

// seedCohort creates a published assignment where every student has submitted.
func (f peerFixture) seedCohort(t *testing.T, studentIDs ...uint) (models.Assignment, map[uint]models.Submission) {
	t.Helper()
	assignment := f.repos.seedAssignment(t, models.AssignmentStatusPublished, timePtr(t0.Add(-time.Hour)), nil, studentIDs...)
	submissions := make(map[uint]models.Submission, len(studentIDs))
	for _, id := range studentIDs {
		submissions[id] = f.repos.seedSubmission(t, assignment, id)
	}
	return assignment, submissions
}

func (f peerFixture) manualEdge(t *testing.T, reviewerID uint, submission models.Submission, anonymous bool) dto.PeerReviewAssignmentResponse {
	t.Helper()
	edge, err := f.service.AssignManual(context.Background(), dto.PeerReviewManualRequest{
		ReviewerID:   reviewerID,
		SubmissionID: submission.ID,
		Deadline:     reviewDeadline,
		Anonymous:    boolPtr(anonymous),
	}, teacher)
	require.NoError(t, err)
	return edge
}

func TestGenerateRandomSkipsInsufficientPool(t *testing.T) {
	f := newPeerFixture(t, 1)
	assignment, _ := f.seedCohort(t, 1, 2, 3)

	result, err := f.service.GenerateRandom(context.Background(), assignment.ID, dto.PeerReviewGenerateRequest{
		ReviewersPerSubmission: 2,
		Deadline:               reviewDeadline,
	}, teacher)
	require.NoError(t, err)

	require.Empty(t, result.Assigned)
	require.Empty(t, result.Errors)
	require.Len(t, result.Skipped, 3)
	for _, skip := range result.Skipped {
		require.Equal(t, ReasonInsufficientPool, skip.Reason)
	}

	edges, err := f.repos.edges.ListByAssignment(context.Background(), assignment.ID)
	require.NoError(t, err)
	require.Empty(t, edges)
}

func TestGenerateRandomAssignsAndIsRepeatable(t *testing.T) {
	f := newPeerFixture(t, 1)
	assignment, submissions := f.seedCohort(t, 1, 2, 3, 4, 5)

	request := dto.PeerReviewGenerateRequest{Deadline: reviewDeadline}
	result, err := f.service.GenerateRandom(context.Background(), assignment.ID, request, teacher)
	require.NoError(t, err)
	require.Len(t, result.Assigned, 10)
	require.Empty(t, result.Skipped)

	authors := map[uint]uint{}
	for id, submission := range submissions {
		authors[submission.ID] = id
	}
	for _, edge := range result.Assigned {
		require.NotEqual(t, authors[edge.SubmissionID], edge.ReviewerID)
	}

	stored, err := f.repos.edges.ListByAssignment(context.Background(), assignment.ID)
	require.NoError(t, err)
	require.Len(t, stored, 10)
	for _, edge := range stored {
		require.True(t, edge.IsAnonymous)
		require.Equal(t, models.PeerReviewSourceRandom, edge.Source)
		require.Equal(t, models.PeerReviewStatusPending, edge.Status)
	}

	again, err := f.service.GenerateRandom(context.Background(), assignment.ID, request, teacher)
	require.NoError(t, err)
	require.Empty(t, again.Assigned)
	require.Len(t, again.Skipped, 5)
	for _, skip := range again.Skipped {
		require.Equal(t, ReasonQuotaMet, skip.Reason)
	}
	require.Contains(t, f.recorder.actions(), ActionMatchingGenerated)
}

func TestGenerateRandomRejectsDraftAssignment(t *testing.T) {
	f := newPeerFixture(t, 0)
	draft := f.repos.seedAssignment(t, models.AssignmentStatusDraft, nil, nil, 1, 2, 3)

	_, err := f.service.GenerateRandom(context.Background(), draft.ID, dto.PeerReviewGenerateRequest{Deadline: reviewDeadline}, teacher)
	require.ErrorIs(t, err, ErrAssignmentNotOpen)

	_, err = f.service.GenerateRandom(context.Background(), 8080, dto.PeerReviewGenerateRequest{Deadline: reviewDeadline}, teacher)
	require.ErrorIs(t, err, ErrAssignmentNotFound)
}

func TestAssignManualConcurrentDuplicate(t *testing.T) {
	f := newPeerFixture(t, 0)
	_, submissions := f.seedCohort(t, 1, 2, 3)

	request := dto.PeerReviewManualRequest{ReviewerID: 2, SubmissionID: submissions[1].ID, Deadline: reviewDeadline}

	var (
		wg   sync.WaitGroup
		errs = make([]error, 2)
	)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.service.AssignManual(context.Background(), request, teacher)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		require.True(t, IsConstraintViolation(err, ReasonDuplicateAssignment), "unexpected error: %v", err)
	}
	require.Equal(t, 1, succeeded)

	edges, err := f.repos.edges.ListBySubmission(context.Background(), submissions[1].ID)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	require.True(t, edges[0].IsAnonymous)
	require.Equal(t, models.PeerReviewSourceManual, edges[0].Source)
}

func TestAssignManualAppliesMatchingRules(t *testing.T) {
	f := newPeerFixture(t, 0)
	assignment, submissions := f.seedCohort(t, 1, 2)
	require.NoError(t, f.repos.roster.Add(context.Background(), assignment.ID, 3))

	cases := map[uint]string{
		1:  ReasonSelfReview,
		42: ReasonNotAParticipant,
		3:  ReasonNotSubmitted,
	}
	for reviewerID, reason := range cases {
		_, err := f.service.AssignManual(context.Background(), dto.PeerReviewManualRequest{
			ReviewerID:   reviewerID,
			SubmissionID: submissions[1].ID,
			Deadline:     reviewDeadline,
		}, teacher)
		require.True(t, IsConstraintViolation(err, reason), "reviewer %d: %v", reviewerID, err)
	}
}

func TestPeerReviewWorkflow(t *testing.T) {
	f := newPeerFixture(t, 0)
	_, submissions := f.seedCohort(t, 1, 2, 3)
	edge := f.manualEdge(t, 2, submissions[1], true)
	ctx := context.Background()

	_, err := f.service.Start(ctx, edge.ID, student(3))
	require.ErrorIs(t, err, ErrNotReviewer)

	started, err := f.service.Start(ctx, edge.ID, student(2))
	require.NoError(t, err)
	require.Equal(t, string(models.PeerReviewStatusInProgress), started.Status)

	_, err = f.service.Start(ctx, edge.ID, student(2))
	require.NoError(t, err)

	_, err = f.service.SubmitReview(ctx, edge.ID, dto.PeerReviewSubmitRequest{Score: floatPtr(150)}, student(2))
	require.ErrorIs(t, err, ErrScoreExceedsMax)

	_, err = f.service.EditReview(ctx, edge.ID, dto.PeerReviewSubmitRequest{Score: floatPtr(50)}, student(2))
	require.ErrorIs(t, err, ErrReviewNotEditable)

	completed, err := f.service.SubmitReview(ctx, edge.ID, dto.PeerReviewSubmitRequest{
		Score:        floatPtr(80),
		Feedback:     "<script>alert(1)</script>Clear structure",
		RubricScores: map[string]float64{"clarity": 4},
	}, student(2))
	require.NoError(t, err)
	require.Equal(t, string(models.PeerReviewStatusCompleted), completed.Status)
	require.NotNil(t, completed.Review)
	require.Equal(t, "Clear structure", completed.Review.Feedback)

	_, err = f.service.SubmitReview(ctx, edge.ID, dto.PeerReviewSubmitRequest{Score: floatPtr(70)}, student(2))
	require.ErrorIs(t, err, ErrReviewNotOpen)
	_, err = f.service.Skip(ctx, edge.ID, student(2))
	require.ErrorIs(t, err, ErrReviewNotOpen)

	edited, err := f.service.EditReview(ctx, edge.ID, dto.PeerReviewSubmitRequest{Score: floatPtr(90)}, student(2))
	require.NoError(t, err)
	require.Equal(t, 90.0, edited.Review.Score)

	mine, err := f.service.ListForReviewer(ctx, student(2), nil)
	require.NoError(t, err)
	require.Len(t, mine, 1)

	_, err = f.service.Start(ctx, 5050, student(2))
	require.ErrorIs(t, err, ErrPeerReviewAssignmentNotFound)
}

func TestSkipOpenEdge(t *testing.T) {
	f := newPeerFixture(t, 0)
	_, submissions := f.seedCohort(t, 1, 2)
	edge := f.manualEdge(t, 1, submissions[2], false)

	skipped, err := f.service.Skip(context.Background(), edge.ID, student(1))
	require.NoError(t, err)
	require.Equal(t, string(models.PeerReviewStatusSkipped), skipped.Status)

	_, err = f.service.Start(context.Background(), edge.ID, student(1))
	require.ErrorIs(t, err, ErrReviewNotOpen)
}

func TestReviewsForAuthorRedactsAnonymousReviewers(t *testing.T) {
	f := newPeerFixture(t, 0)
	_, submissions := f.seedCohort(t, 1, 2, 3)
	ctx := context.Background()

	anonymous := f.manualEdge(t, 2, submissions[1], true)
	named := f.manualEdge(t, 3, submissions[1], false)
	for _, edge := range []struct {
		id       uint
		reviewer uint
	}{{anonymous.ID, 2}, {named.ID, 3}} {
		_, err := f.service.SubmitReview(ctx, edge.id, dto.PeerReviewSubmitRequest{Score: floatPtr(60)}, student(edge.reviewer))
		require.NoError(t, err)
	}

	views, err := f.service.ReviewsForAuthor(ctx, submissions[1].ID, student(1))
	require.NoError(t, err)
	require.Len(t, views, 2)
	for _, view := range views {
		if view.IsAnonymous {
			require.Nil(t, view.ReviewerID)
			continue
		}
		require.NotNil(t, view.ReviewerID)
		require.Equal(t, uint(3), *view.ReviewerID)
	}

	_, err = f.service.ReviewsForAuthor(ctx, submissions[1].ID, student(2))
	require.ErrorIs(t, err, ErrNotSubmissionAuthor)

	staffViews, err := f.service.ReviewsForAuthor(ctx, submissions[1].ID, teacher)
	require.NoError(t, err)
	require.Len(t, staffViews, 2)
}

func TestSummaryIsCachedAndInvalidated(t *testing.T) {
	f := newPeerFixture(t, 0)
	_, submissions := f.seedCohort(t, 1, 2, 3)
	ctx := context.Background()
	target := submissions[1]

	empty, err := f.service.Summary(ctx, target.ID, student(1))
	require.NoError(t, err)
	require.Zero(t, empty.ReviewCount)
	require.Nil(t, empty.MeanScore)
	staleKey := summaryCacheKey(target.ID, 0)
	require.True(t, f.redis.Exists(staleKey))

	edge := f.manualEdge(t, 2, target, true)
	_, err = f.service.SubmitReview(ctx, edge.ID, dto.PeerReviewSubmitRequest{Score: floatPtr(70)}, student(2))
	require.NoError(t, err)

	// A summary computed before the submit lands under the old generation.
	require.NoError(t, f.redis.Set(staleKey, `{"submission_id":0,"review_count":0}`))

	summary, err := f.service.Summary(ctx, target.ID, teacher)
	require.NoError(t, err)
	require.Equal(t, 1, summary.ReviewCount)
	require.Equal(t, 70.0, *summary.MeanScore)
	require.True(t, f.redis.Exists(summaryCacheKey(target.ID, 1)))

	_, err = f.service.EditReview(ctx, edge.ID, dto.PeerReviewSubmitRequest{Score: floatPtr(40)}, student(2))
	require.NoError(t, err)

	summary, err = f.service.Summary(ctx, target.ID, student(1))
	require.NoError(t, err)
	require.Equal(t, 40.0, *summary.MeanScore)

	_, err = f.service.Summary(ctx, 6060, teacher)
	require.ErrorIs(t, err, ErrSubmissionNotFound)
}

func TestSummaryIsLimitedToAuthorAndStaff(t *testing.T) {
	f := newPeerFixture(t, 0)
	_, submissions := f.seedCohort(t, 1, 2)
	ctx := context.Background()

	_, err := f.service.Summary(ctx, submissions[1].ID, student(2))
	require.ErrorIs(t, err, ErrNotSubmissionAuthor)
	require.False(t, f.redis.Exists(summaryCacheKey(submissions[1].ID, 0)))

	_, err = f.service.Summary(ctx, submissions[1].ID, Actor{ID: 901, Role: RoleAdmin})
	require.NoError(t, err)
}

func TestEditReviewRejectsStaleVersion(t *testing.T) {
	f := newPeerFixture(t, 0)
	_, submissions := f.seedCohort(t, 1, 2)
	edge := f.manualEdge(t, 2, submissions[1], false)
	ctx := context.Background()

	completed, err := f.service.SubmitReview(ctx, edge.ID, dto.PeerReviewSubmitRequest{Score: floatPtr(60)}, student(2))
	require.NoError(t, err)
	readVersion := completed.Review.Version
	require.Equal(t, uint(1), readVersion)

	first, err := f.service.EditReview(ctx, edge.ID, dto.PeerReviewSubmitRequest{Score: floatPtr(70), Version: &readVersion}, student(2))
	require.NoError(t, err)
	require.Equal(t, uint(2), first.Review.Version)

	_, err = f.service.EditReview(ctx, edge.ID, dto.PeerReviewSubmitRequest{Score: floatPtr(20), Version: &readVersion}, student(2))
	require.ErrorIs(t, err, ErrReviewVersionMismatch)

	stored, err := f.repos.edges.GetByID(ctx, edge.ID)
	require.NoError(t, err)
	require.Equal(t, 70.0, stored.Review.Score)
	require.Equal(t, uint(2), stored.Review.Version)
}
