package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-review-engine/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&models.Assignment{},
		&models.RosterEntry{},
		&models.Submission{},
		&models.PeerReviewAssignment{},
		&models.PeerReview{},
		&models.Notification{},
		&models.ActivityLog{},
	))
	return db
}

func seedAssignment(t *testing.T, repo AssignmentRepository, status models.AssignmentStatus, publishAt, closeAt *time.Time) models.Assignment {
	t.Helper()
	assignment := models.Assignment{
		OwnerID:   1,
		Title:     "Essay",
		Status:    status,
		PublishAt: publishAt,
		CloseAt:   closeAt,
		DueAt:     time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		MaxScore:  100,
		LatePenalty: models.LatePenaltyPolicy{
			Type: models.LatePenaltyNone,
		},
	}
	require.NoError(t, repo.Create(context.Background(), &assignment))
	return assignment
}

func timePtr(v time.Time) *time.Time {
	return &v
}

func TestAssignmentRepositoryUpdateDetectsStaleWrite(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAssignmentRepository(db)
	ctx := context.Background()

	created := seedAssignment(t, repo, models.AssignmentStatusDraft, nil, nil)
	require.Equal(t, uint(1), created.Version)

	first, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	second, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)

	first.Title = "Essay v2"
	require.NoError(t, repo.Update(ctx, &first))
	require.Equal(t, uint(2), first.Version)

	second.Title = "Essay v3"
	err = repo.Update(ctx, &second)
	require.ErrorIs(t, err, ErrStaleWrite)
	require.Equal(t, uint(1), second.Version, "failed update must restore the caller's version")

	stored, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, "Essay v2", stored.Title)
}

func TestAssignmentRepositoryListsDueTransitions(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAssignmentRepository(db)
	ctx := context.Background()

	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	due := seedAssignment(t, repo, models.AssignmentStatusDraft, timePtr(now.Add(-time.Minute)), nil)
	seedAssignment(t, repo, models.AssignmentStatusDraft, timePtr(now.Add(time.Hour)), nil)
	seedAssignment(t, repo, models.AssignmentStatusDraft, nil, nil)
	closing := seedAssignment(t, repo, models.AssignmentStatusPublished, timePtr(now.Add(-48*time.Hour)), timePtr(now))
	seedAssignment(t, repo, models.AssignmentStatusClosed, timePtr(now.Add(-48*time.Hour)), timePtr(now.Add(-time.Hour)))

	publish, err := repo.ListDueForPublish(ctx, now, 0, 0)
	require.NoError(t, err)
	require.Len(t, publish, 1)
	require.Equal(t, due.ID, publish[0].ID)

	closeDue, err := repo.ListDueForClose(ctx, now, 0, 0)
	require.NoError(t, err)
	require.Len(t, closeDue, 1)
	require.Equal(t, closing.ID, closeDue[0].ID)
}

func TestAssignmentRepositoryDuePagesByCursor(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAssignmentRepository(db)
	ctx := context.Background()

	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	var ids []uint
	for i := 0; i < 3; i++ {
		ids = append(ids, seedAssignment(t, repo, models.AssignmentStatusDraft, timePtr(now.Add(-time.Duration(i)*time.Minute)), nil).ID)
	}

	first, err := repo.ListDueForPublish(ctx, now, 0, 2)
	require.NoError(t, err)
	require.Len(t, first, 2)
	require.Equal(t, ids[0], first[0].ID)

	rest, err := repo.ListDueForPublish(ctx, now, first[1].ID, 2)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	require.Equal(t, ids[2], rest[0].ID)
}

func TestSubmissionRepositoryEnforcesUniquePair(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSubmissionRepository(db)
	ctx := context.Background()

	first := models.Submission{AssignmentID: 1, StudentID: 7, SubmittedAt: time.Now().UTC()}
	require.NoError(t, repo.Create(ctx, &first))

	dup := models.Submission{AssignmentID: 1, StudentID: 7, SubmittedAt: time.Now().UTC()}
	require.ErrorIs(t, repo.Create(ctx, &dup), ErrDuplicate)

	other := models.Submission{AssignmentID: 2, StudentID: 7, SubmittedAt: time.Now().UTC()}
	require.NoError(t, repo.Create(ctx, &other))
}

func TestRosterRepositoryAddIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRosterRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Add(ctx, 1, 3, 1, 2))
	require.NoError(t, repo.Add(ctx, 1, 2))

	ids, err := repo.ListStudentIDs(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, []uint{1, 2, 3}, ids)

	member, err := repo.IsMember(ctx, 1, 2)
	require.NoError(t, err)
	require.True(t, member)

	require.NoError(t, repo.Remove(ctx, 1, 2))
	require.ErrorIs(t, repo.Remove(ctx, 1, 2), gorm.ErrRecordNotFound)
}

func seedSubmission(t *testing.T, db *gorm.DB, assignmentID, studentID uint) models.Submission {
	t.Helper()
	submission := models.Submission{AssignmentID: assignmentID, StudentID: studentID, SubmittedAt: time.Now().UTC(), Version: 1}
	require.NoError(t, db.Create(&submission).Error)
	return submission
}

func edgeFor(assignmentID, authorID, reviewerID uint) models.PeerReviewAssignment {
	return models.PeerReviewAssignment{
		AssignmentID: assignmentID,
		AuthorID:     authorID,
		ReviewerID:   reviewerID,
		Status:       models.PeerReviewStatusPending,
		Deadline:     time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC),
		Source:       models.PeerReviewSourceRandom,
	}
}

func TestPeerReviewRepositoryCreateEdgesRechecksQuota(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPeerReviewRepository(db)
	ctx := context.Background()
	submission := seedSubmission(t, db, 1, 10)

	require.NoError(t, repo.CreateEdges(ctx, submission.ID, 2, []models.PeerReviewAssignment{
		edgeFor(1, 10, 11),
		edgeFor(1, 10, 12),
	}))

	err := repo.CreateEdges(ctx, submission.ID, 2, []models.PeerReviewAssignment{edgeFor(1, 10, 13)})
	require.ErrorIs(t, err, ErrQuotaExceeded)

	err = repo.CreateEdges(ctx, submission.ID, 3, []models.PeerReviewAssignment{edgeFor(1, 10, 11)})
	require.ErrorIs(t, err, ErrDuplicate)

	edges, err := repo.ListBySubmission(ctx, submission.ID)
	require.NoError(t, err)
	require.Len(t, edges, 2)
}

func TestPeerReviewRepositoryConcurrentBatchesNeverOverAssign(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPeerReviewRepository(db)
	ctx := context.Background()
	submission := seedSubmission(t, db, 1, 10)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = repo.CreateEdges(ctx, submission.ID, 2, []models.PeerReviewAssignment{
				edgeFor(1, 10, uint(20+i*2)),
				edgeFor(1, 10, uint(21+i*2)),
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
			continue
		}
		require.True(t, errors.Is(err, ErrQuotaExceeded), "unexpected error: %v", err)
	}
	require.Equal(t, 1, succeeded)

	edges, err := repo.ListBySubmission(ctx, submission.ID)
	require.NoError(t, err)
	require.Len(t, edges, 2)
}

func TestPeerReviewRepositoryMarkRemindedOncePerWindow(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPeerReviewRepository(db)
	ctx := context.Background()
	submission := seedSubmission(t, db, 1, 10)

	edge := edgeFor(1, 10, 11)
	edge.SubmissionID = submission.ID
	require.NoError(t, repo.CreateEdge(ctx, &edge))

	now := edge.Deadline.Add(time.Hour)
	window := 24 * time.Hour

	overdue, err := repo.ListOverdue(ctx, now, now.Add(-window), 0, 0)
	require.NoError(t, err)
	require.Len(t, overdue, 1)

	won, err := repo.MarkReminded(ctx, edge.ID, now, now.Add(-window))
	require.NoError(t, err)
	require.True(t, won)

	won, err = repo.MarkReminded(ctx, edge.ID, now, now.Add(-window))
	require.NoError(t, err)
	require.False(t, won)

	overdue, err = repo.ListOverdue(ctx, now.Add(time.Hour), now.Add(time.Hour-window), 0, 0)
	require.NoError(t, err)
	require.Empty(t, overdue)

	later := now.Add(window)
	overdue, err = repo.ListOverdue(ctx, later, later.Add(-window), 0, 0)
	require.NoError(t, err)
	require.Len(t, overdue, 1)
}

func TestPeerReviewRepositoryCompleteStoresReview(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPeerReviewRepository(db)
	ctx := context.Background()
	submission := seedSubmission(t, db, 1, 10)

	edge := edgeFor(1, 10, 11)
	edge.SubmissionID = submission.ID
	require.NoError(t, repo.CreateEdge(ctx, &edge))

	loaded, err := repo.GetByID(ctx, edge.ID)
	require.NoError(t, err)
	stale := loaded

	loaded.Status = models.PeerReviewStatusCompleted
	review := models.PeerReview{Score: 8, Feedback: "clear argument"}
	require.NoError(t, repo.Complete(ctx, &loaded, &review))
	require.NotZero(t, review.ID)

	stale.Status = models.PeerReviewStatusSkipped
	require.ErrorIs(t, repo.Update(ctx, &stale), ErrStaleWrite)

	stored, err := repo.GetByID(ctx, edge.ID)
	require.NoError(t, err)
	require.Equal(t, models.PeerReviewStatusCompleted, stored.Status)
	require.NotNil(t, stored.Review)
	require.Equal(t, 8.0, stored.Review.Score)
}

func TestPeerReviewRepositoryUpdateReviewIsVersioned(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPeerReviewRepository(db)
	ctx := context.Background()
	submission := seedSubmission(t, db, 1, 10)

	edge := edgeFor(1, 10, 11)
	edge.SubmissionID = submission.ID
	require.NoError(t, repo.CreateEdge(ctx, &edge))
	edge.Status = models.PeerReviewStatusCompleted
	require.NoError(t, repo.Complete(ctx, &edge, &models.PeerReview{Score: 5}))

	loaded, err := repo.GetByID(ctx, edge.ID)
	require.NoError(t, err)
	require.Equal(t, uint(1), loaded.Review.Version)
	first := *loaded.Review
	second := *loaded.Review

	first.Score = 7
	require.NoError(t, repo.UpdateReview(ctx, &first))
	require.Equal(t, uint(2), first.Version)

	second.Score = 2
	require.ErrorIs(t, repo.UpdateReview(ctx, &second), ErrStaleWrite)
	require.Equal(t, uint(1), second.Version)

	stored, err := repo.GetByID(ctx, edge.ID)
	require.NoError(t, err)
	require.Equal(t, 7.0, stored.Review.Score)
	require.Equal(t, uint(2), stored.Review.Version)
}

func TestActivityLogRepositoryFiltersByEntity(t *testing.T) {
	db := setupTestDB(t)
	repo := NewActivityLogRepository(db)
	ctx := context.Background()

	first := uint(10)
	second := uint(11)
	require.NoError(t, repo.Create(ctx, &models.ActivityLog{ActorID: 1, ActorRole: "teacher", Action: "assignment.published", EntityType: "assignment", EntityID: &first}))
	require.NoError(t, repo.Create(ctx, &models.ActivityLog{ActorID: 1, ActorRole: "teacher", Action: "assignment.closed", EntityType: "assignment", EntityID: &first}))
	require.NoError(t, repo.Create(ctx, &models.ActivityLog{ActorID: 2, ActorRole: "teacher", Action: "assignment.published", EntityType: "assignment", EntityID: &second}))

	entries, total, err := repo.List(ctx, ActivityLogFilter{EntityType: "assignment", EntityID: &first})
	require.NoError(t, err)
	require.EqualValues(t, 2, total)
	require.Len(t, entries, 2)

	entries, total, err = repo.List(ctx, ActivityLogFilter{Action: "assignment.published", PageSize: 1, Page: 2})
	require.NoError(t, err)
	require.EqualValues(t, 2, total)
	require.Len(t, entries, 1)
}
