package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-review-engine/internal/models"
)

// RosterRepository manages the students associated with an assignment.
type RosterRepository interface {
	Add(ctx context.Context, assignmentID uint, studentIDs ...uint) error
	Remove(ctx context.Context, assignmentID, studentID uint) error
	ListStudentIDs(ctx context.Context, assignmentID uint) ([]uint, error)
	IsMember(ctx context.Context, assignmentID, studentID uint) (bool, error)
}

type rosterRepository struct {
	db *gorm.DB
}

// NewRosterRepository builds a GORM-backed roster repository.
func NewRosterRepository(db *gorm.DB) RosterRepository {
	return &rosterRepository{db: db}
}

func (r *rosterRepository) Add(ctx context.Context, assignmentID uint, studentIDs ...uint) error {
	if len(studentIDs) == 0 {
		return nil
	}

	entries := make([]models.RosterEntry, 0, len(studentIDs))
	for _, id := range studentIDs {
		entries = append(entries, models.RosterEntry{AssignmentID: assignmentID, StudentID: id})
	}

	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&entries).Error
}

func (r *rosterRepository) Remove(ctx context.Context, assignmentID, studentID uint) error {
	result := r.db.WithContext(ctx).
		Where("assignment_id = ? AND student_id = ?", assignmentID, studentID).
		Delete(&models.RosterEntry{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *rosterRepository) ListStudentIDs(ctx context.Context, assignmentID uint) ([]uint, error) {
	var ids []uint
	if err := r.db.WithContext(ctx).
		Model(&models.RosterEntry{}).
		Where("assignment_id = ?", assignmentID).
		Order("student_id ASC").
		Pluck("student_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *rosterRepository) IsMember(ctx context.Context, assignmentID, studentID uint) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.RosterEntry{}).
		Where("assignment_id = ? AND student_id = ?", assignmentID, studentID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
