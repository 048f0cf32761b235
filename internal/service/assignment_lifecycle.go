package service

import (
	"time"

	"github.com/noah-isme/gema-review-engine/internal/models"
)

// LifecycleEvent is returned by the state machine. Changed is false for a
// no-op, in which case the other fields describe the current state only.
type LifecycleEvent struct {
	Changed      bool
	AssignmentID uint
	From         models.AssignmentStatus
	To           models.AssignmentStatus
	At           time.Time
	Recipients   []uint
}

// AssignmentStateMachine validates and applies draft -> published -> closed.
// It mutates only the assignment value it is handed; persistence and
// notification are the caller's job.
type AssignmentStateMachine struct{}

// ValidateSchedule fails with ErrScheduleInvalid when both instants are set
// and close_at is not strictly after publish_at.
func (AssignmentStateMachine) ValidateSchedule(publishAt, closeAt *time.Time) error {
	if publishAt != nil && closeAt != nil && !closeAt.After(*publishAt) {
		return ErrScheduleInvalid
	}
	return nil
}

// EnsureScheduleEditable fails with ErrScheduleLocked once the assignment left draft.
func (AssignmentStateMachine) EnsureScheduleEditable(assignment models.Assignment) error {
	if assignment.ScheduleLocked() {
		return ErrScheduleLocked
	}
	return nil
}

// TryPublish moves a draft to published when publish_at is set and reached.
func (m AssignmentStateMachine) TryPublish(assignment *models.Assignment, roster []uint, now time.Time) LifecycleEvent {
	if assignment.Status != models.AssignmentStatusDraft || assignment.PublishAt == nil || now.Before(*assignment.PublishAt) {
		return noChange(assignment)
	}
	return m.apply(assignment, models.AssignmentStatusPublished, roster, now)
}

// TryClose moves a published assignment to closed when close_at is set and reached.
func (m AssignmentStateMachine) TryClose(assignment *models.Assignment, roster []uint, now time.Time) LifecycleEvent {
	if assignment.Status != models.AssignmentStatusPublished || assignment.CloseAt == nil || now.Before(*assignment.CloseAt) {
		return noChange(assignment)
	}
	return m.apply(assignment, models.AssignmentStatusClosed, roster, now)
}

func (AssignmentStateMachine) apply(assignment *models.Assignment, next models.AssignmentStatus, roster []uint, now time.Time) LifecycleEvent {
	from := assignment.Status
	if !from.CanTransitionTo(next) {
		return noChange(assignment)
	}

	assignment.Status = next
	stamp := now
	switch next {
	case models.AssignmentStatusPublished:
		assignment.PublishedAt = &stamp
	case models.AssignmentStatusClosed:
		assignment.ClosedAt = &stamp
	}

	recipients := make([]uint, len(roster))
	copy(recipients, roster)

	return LifecycleEvent{
		Changed:      true,
		AssignmentID: assignment.ID,
		From:         from,
		To:           next,
		At:           now,
		Recipients:   recipients,
	}
}

func noChange(assignment *models.Assignment) LifecycleEvent {
	return LifecycleEvent{
		AssignmentID: assignment.ID,
		From:         assignment.Status,
		To:           assignment.Status,
	}
}
