package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-review-engine/internal/models"
)

func TestValidateScheduleRejectsCloseBeforePublish(t *testing.T) {
	var machine AssignmentStateMachine

	publishAt := t0.Add(2 * time.Hour)
	require.ErrorIs(t, machine.ValidateSchedule(&publishAt, timePtr(t0)), ErrScheduleInvalid)
	require.ErrorIs(t, machine.ValidateSchedule(&publishAt, &publishAt), ErrScheduleInvalid)
	require.NoError(t, machine.ValidateSchedule(&publishAt, timePtr(publishAt.Add(time.Second))))
	require.NoError(t, machine.ValidateSchedule(nil, timePtr(t0)))
	require.NoError(t, machine.ValidateSchedule(&publishAt, nil))
}

func TestEnsureScheduleEditableLocksAfterDraft(t *testing.T) {
	var machine AssignmentStateMachine

	require.NoError(t, machine.EnsureScheduleEditable(models.Assignment{Status: models.AssignmentStatusDraft}))
	require.ErrorIs(t, machine.EnsureScheduleEditable(models.Assignment{Status: models.AssignmentStatusPublished}), ErrScheduleLocked)
	require.ErrorIs(t, machine.EnsureScheduleEditable(models.Assignment{Status: models.AssignmentStatusClosed}), ErrScheduleLocked)
}

func TestTryPublishWaitsForPublishAt(t *testing.T) {
	var machine AssignmentStateMachine
	assignment := models.Assignment{ID: 3, Status: models.AssignmentStatusDraft, PublishAt: timePtr(t0)}

	event := machine.TryPublish(&assignment, []uint{1}, t0.Add(-time.Second))
	require.False(t, event.Changed)
	require.Equal(t, models.AssignmentStatusDraft, assignment.Status)

	event = machine.TryPublish(&assignment, []uint{1, 2}, t0)
	require.True(t, event.Changed)
	require.Equal(t, models.AssignmentStatusDraft, event.From)
	require.Equal(t, models.AssignmentStatusPublished, event.To)
	require.Equal(t, []uint{1, 2}, event.Recipients)
	require.Equal(t, models.AssignmentStatusPublished, assignment.Status)
	require.NotNil(t, assignment.PublishedAt)

	event = machine.TryPublish(&assignment, []uint{1, 2}, t0.Add(time.Hour))
	require.False(t, event.Changed)
}

func TestTryPublishWithoutPublishAtIsNoop(t *testing.T) {
	var machine AssignmentStateMachine
	assignment := models.Assignment{Status: models.AssignmentStatusDraft}

	require.False(t, machine.TryPublish(&assignment, nil, t0).Changed)
	require.False(t, machine.TryClose(&assignment, nil, t0).Changed)
}

func TestPublishThenCloseInOneTick(t *testing.T) {
	var machine AssignmentStateMachine
	assignment := models.Assignment{
		Status:    models.AssignmentStatusDraft,
		PublishAt: timePtr(t0),
		CloseAt:   timePtr(t0.Add(time.Hour)),
	}
	now := t0.Add(2 * time.Hour)

	require.True(t, machine.TryPublish(&assignment, nil, now).Changed)
	require.True(t, machine.TryClose(&assignment, nil, now).Changed)
	require.Equal(t, models.AssignmentStatusClosed, assignment.Status)
	require.False(t, machine.TryClose(&assignment, nil, now).Changed)
	require.False(t, machine.TryPublish(&assignment, nil, now).Changed)
}
