package service

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-review-engine/internal/database"
	"github.com/noah-isme/gema-review-engine/internal/models"
	"github.com/noah-isme/gema-review-engine/internal/repository"
)

var (
	teacher = Actor{ID: 900, Role: RoleTeacher}
	t0      = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func testValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

func student(id uint) Actor {
	return Actor{ID: id, Role: RoleStudent}
}

func strPtr(v string) *string {
	return &v
}

func boolPtr(v bool) *bool {
	return &v
}

func floatPtr(v float64) *float64 {
	return &v
}

func timePtr(v time.Time) *time.Time {
	return &v
}

func setupServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

// repos bundles the GORM repositories over one sqlite database.
type repos struct {
	db            *gorm.DB
	assignments   repository.AssignmentRepository
	roster        repository.RosterRepository
	submissions   repository.SubmissionRepository
	edges         repository.PeerReviewRepository
	notifications repository.NotificationRepository
}

func newRepos(t *testing.T) repos {
	db := setupServiceDB(t)
	return repos{
		db:            db,
		assignments:   repository.NewAssignmentRepository(db),
		roster:        repository.NewRosterRepository(db),
		submissions:   repository.NewSubmissionRepository(db),
		edges:         repository.NewPeerReviewRepository(db),
		notifications: repository.NewNotificationRepository(db),
	}
}

func (r repos) seedAssignment(t *testing.T, status models.AssignmentStatus, publishAt, closeAt *time.Time, studentIDs ...uint) models.Assignment {
	t.Helper()
	assignment := models.Assignment{
		OwnerID:     teacher.ID,
		Title:       "Essay",
		Status:      status,
		PublishAt:   publishAt,
		CloseAt:     closeAt,
		DueAt:       t0.Add(48 * time.Hour),
		MaxScore:    100,
		LatePenalty: models.LatePenaltyPolicy{Type: models.LatePenaltyNone},
	}
	require.NoError(t, r.assignments.Create(context.Background(), &assignment))
	if len(studentIDs) > 0 {
		require.NoError(t, r.roster.Add(context.Background(), assignment.ID, studentIDs...))
	}
	return assignment
}

func (r repos) seedSubmission(t *testing.T, assignment models.Assignment, studentID uint) models.Submission {
	t.Helper()
	submission := models.Submission{
		AssignmentID: assignment.ID,
		StudentID:    studentID,
		SubmittedAt:  t0,
		PenaltyType:  models.LatePenaltyNone,
		MaxScore:     assignment.MaxScore,
	}
	require.NoError(t, r.submissions.Create(context.Background(), &submission))
	return submission
}

// recordingDispatcher captures every dispatched intent.
type recordingDispatcher struct {
	mu      sync.Mutex
	intents []NotificationIntent
	err     error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, intents []NotificationIntent) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.intents = append(d.intents, intents...)
	return d.err
}

func (d *recordingDispatcher) byType(eventType models.NotificationEventType) []NotificationIntent {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []NotificationIntent
	for _, intent := range d.intents {
		if intent.EventType == eventType {
			out = append(out, intent)
		}
	}
	return out
}

// stubRecorder keeps audit entries in memory.
type stubRecorder struct {
	mu      sync.Mutex
	entries []ActivityEntry
}

func (s *stubRecorder) Record(_ context.Context, entry ActivityEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *stubRecorder) actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.entries))
	for _, entry := range s.entries {
		out = append(out, entry.Action)
	}
	return out
}
