package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-review-engine/internal/models"
)

// AssignmentFilter narrows assignment listings. Statuses and Status combine,
// and RosterStudentID keeps only assignments that student is rostered on.
type AssignmentFilter struct {
	OwnerID         *uint
	Status          *models.AssignmentStatus
	Statuses        []models.AssignmentStatus
	RosterStudentID *uint
	Page            int
	PageSize        int
}

// AssignmentRepository defines persistence operations for assignments.
type AssignmentRepository interface {
	List(ctx context.Context, filter AssignmentFilter) ([]models.Assignment, int64, error)
	GetByID(ctx context.Context, id uint) (models.Assignment, error)
	Create(ctx context.Context, assignment *models.Assignment) error
	Update(ctx context.Context, assignment *models.Assignment) error
	ListDueForPublish(ctx context.Context, now time.Time, afterID uint, limit int) ([]models.Assignment, error)
	ListDueForClose(ctx context.Context, now time.Time, afterID uint, limit int) ([]models.Assignment, error)
}

type assignmentRepository struct {
	db *gorm.DB
}

// NewAssignmentRepository instantiates a GORM-backed repository.
func NewAssignmentRepository(db *gorm.DB) AssignmentRepository {
	return &assignmentRepository{db: db}
}

func (r *assignmentRepository) List(ctx context.Context, filter AssignmentFilter) ([]models.Assignment, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Assignment{})

	if filter.OwnerID != nil {
		query = query.Where("owner_id = ?", *filter.OwnerID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if len(filter.Statuses) > 0 {
		query = query.Where("status IN ?", filter.Statuses)
	}
	if filter.RosterStudentID != nil {
		rostered := r.db.Model(&models.RosterEntry{}).Select("assignment_id").Where("student_id = ?", *filter.RosterStudentID)
		query = query.Where("id IN (?)", rostered)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filter.PageSize > 0 {
		page := filter.Page
		if page <= 0 {
			page = 1
		}
		query = query.Offset((page - 1) * filter.PageSize).Limit(filter.PageSize)
	}

	var assignments []models.Assignment
	if err := query.Order("due_at ASC").Order("id ASC").Find(&assignments).Error; err != nil {
		return nil, 0, err
	}

	return assignments, total, nil
}

func (r *assignmentRepository) GetByID(ctx context.Context, id uint) (models.Assignment, error) {
	var assignment models.Assignment
	if err := r.db.WithContext(ctx).First(&assignment, id).Error; err != nil {
		return models.Assignment{}, err
	}

	return assignment, nil
}

func (r *assignmentRepository) Create(ctx context.Context, assignment *models.Assignment) error {
	if assignment.Version == 0 {
		assignment.Version = 1
	}
	return r.db.WithContext(ctx).Create(assignment).Error
}

func (r *assignmentRepository) Update(ctx context.Context, assignment *models.Assignment) error {
	expected := assignment.Version
	assignment.Version = expected + 1
	if err := updateVersioned(r.db.WithContext(ctx), assignment, expected); err != nil {
		assignment.Version = expected
		return err
	}
	return nil
}

// ListDueForPublish pages drafts whose publish time has passed, keyed on id
// so a caller can walk past items it failed to move.
func (r *assignmentRepository) ListDueForPublish(ctx context.Context, now time.Time, afterID uint, limit int) ([]models.Assignment, error) {
	query := r.db.WithContext(ctx).
		Where("status = ?", models.AssignmentStatusDraft).
		Where("publish_at IS NOT NULL AND publish_at <= ?", now).
		Where("id > ?", afterID).
		Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var assignments []models.Assignment
	if err := query.Find(&assignments).Error; err != nil {
		return nil, err
	}
	return assignments, nil
}

func (r *assignmentRepository) ListDueForClose(ctx context.Context, now time.Time, afterID uint, limit int) ([]models.Assignment, error) {
	query := r.db.WithContext(ctx).
		Where("status = ?", models.AssignmentStatusPublished).
		Where("close_at IS NOT NULL AND close_at <= ?", now).
		Where("id > ?", afterID).
		Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var assignments []models.Assignment
	if err := query.Find(&assignments).Error; err != nil {
		return nil, err
	}
	return assignments, nil
}
