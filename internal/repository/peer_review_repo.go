package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-review-engine/internal/models"
)

var openPeerReviewStatuses = []models.PeerReviewStatus{
	models.PeerReviewStatusPending,
	models.PeerReviewStatusInProgress,
}

// PeerReviewRepository persists matching edges and their reviews.
type PeerReviewRepository interface {
	GetByID(ctx context.Context, id uint) (models.PeerReviewAssignment, error)
	ListBySubmission(ctx context.Context, submissionID uint) ([]models.PeerReviewAssignment, error)
	ListByReviewer(ctx context.Context, reviewerID uint, assignmentID *uint) ([]models.PeerReviewAssignment, error)
	ListByAssignment(ctx context.Context, assignmentID uint) ([]models.PeerReviewAssignment, error)
	CreateEdges(ctx context.Context, submissionID uint, quota int, edges []models.PeerReviewAssignment) error
	CreateEdge(ctx context.Context, edge *models.PeerReviewAssignment) error
	Update(ctx context.Context, edge *models.PeerReviewAssignment) error
	Complete(ctx context.Context, edge *models.PeerReviewAssignment, review *models.PeerReview) error
	UpdateReview(ctx context.Context, review *models.PeerReview) error
	ListOverdue(ctx context.Context, now, remindedBefore time.Time, afterID uint, limit int) ([]models.PeerReviewAssignment, error)
	MarkReminded(ctx context.Context, id uint, at, remindedBefore time.Time) (bool, error)
}

type peerReviewRepository struct {
	db *gorm.DB
}

// NewPeerReviewRepository builds the GORM-backed peer review repository.
func NewPeerReviewRepository(db *gorm.DB) PeerReviewRepository {
	return &peerReviewRepository{db: db}
}

func (r *peerReviewRepository) GetByID(ctx context.Context, id uint) (models.PeerReviewAssignment, error) {
	var edge models.PeerReviewAssignment
	if err := r.db.WithContext(ctx).Preload("Review").First(&edge, id).Error; err != nil {
		return models.PeerReviewAssignment{}, err
	}
	return edge, nil
}

func (r *peerReviewRepository) ListBySubmission(ctx context.Context, submissionID uint) ([]models.PeerReviewAssignment, error) {
	var edges []models.PeerReviewAssignment
	if err := r.db.WithContext(ctx).
		Preload("Review").
		Where("submission_id = ?", submissionID).
		Order("id ASC").
		Find(&edges).Error; err != nil {
		return nil, err
	}
	return edges, nil
}

func (r *peerReviewRepository) ListByReviewer(ctx context.Context, reviewerID uint, assignmentID *uint) ([]models.PeerReviewAssignment, error) {
	query := r.db.WithContext(ctx).
		Preload("Review").
		Where("reviewer_id = ?", reviewerID)
	if assignmentID != nil {
		query = query.Where("assignment_id = ?", *assignmentID)
	}

	var edges []models.PeerReviewAssignment
	if err := query.Order("deadline ASC").Order("id ASC").Find(&edges).Error; err != nil {
		return nil, err
	}
	return edges, nil
}

func (r *peerReviewRepository) ListByAssignment(ctx context.Context, assignmentID uint) ([]models.PeerReviewAssignment, error) {
	var edges []models.PeerReviewAssignment
	if err := r.db.WithContext(ctx).
		Where("assignment_id = ?", assignmentID).
		Order("submission_id ASC").
		Order("id ASC").
		Find(&edges).Error; err != nil {
		return nil, err
	}
	return edges, nil
}

// CreateEdges inserts all edges of one submission atomically. The quota and
// duplicate preconditions are re-checked inside the transaction while the
// submission row is locked, so concurrent batches cannot over-assign.
func (r *peerReviewRepository) CreateEdges(ctx context.Context, submissionID uint, quota int, edges []models.PeerReviewAssignment) error {
	if len(edges) == 0 {
		return nil
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var submission models.Submission
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&submission, submissionID).Error; err != nil {
			return err
		}

		var existing []uint
		if err := tx.Model(&models.PeerReviewAssignment{}).
			Where("submission_id = ?", submissionID).
			Where("status <> ?", models.PeerReviewStatusSkipped).
			Pluck("reviewer_id", &existing).Error; err != nil {
			return err
		}

		if quota > 0 && len(existing)+len(edges) > quota {
			return ErrQuotaExceeded
		}

		seen := make(map[uint]struct{}, len(existing))
		for _, id := range existing {
			seen[id] = struct{}{}
		}
		for i := range edges {
			if _, dup := seen[edges[i].ReviewerID]; dup {
				return ErrDuplicate
			}
			seen[edges[i].ReviewerID] = struct{}{}
			edges[i].SubmissionID = submissionID
			if edges[i].Version == 0 {
				edges[i].Version = 1
			}
		}

		return translateWriteError(tx.Create(&edges).Error)
	})
}

func (r *peerReviewRepository) CreateEdge(ctx context.Context, edge *models.PeerReviewAssignment) error {
	if edge.Version == 0 {
		edge.Version = 1
	}
	return translateWriteError(r.db.WithContext(ctx).Create(edge).Error)
}

func (r *peerReviewRepository) Update(ctx context.Context, edge *models.PeerReviewAssignment) error {
	expected := edge.Version
	edge.Version = expected + 1
	if err := updateVersioned(r.db.WithContext(ctx), edge, expected); err != nil {
		edge.Version = expected
		return err
	}
	return nil
}

// Complete marks the edge completed and stores its review in one transaction.
func (r *peerReviewRepository) Complete(ctx context.Context, edge *models.PeerReviewAssignment, review *models.PeerReview) error {
	expected := edge.Version
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		edge.Version = expected + 1
		if err := updateVersioned(tx, edge, expected); err != nil {
			return err
		}

		review.PeerReviewAssignmentID = edge.ID
		if review.Version == 0 {
			review.Version = 1
		}
		return translateWriteError(tx.Create(review).Error)
	})
	if err != nil {
		edge.Version = expected
		return err
	}

	edge.Review = review
	return nil
}

// UpdateReview rewrites the review content guarded by its version.
func (r *peerReviewRepository) UpdateReview(ctx context.Context, review *models.PeerReview) error {
	expected := review.Version
	result := r.db.WithContext(ctx).
		Model(review).
		Where("version = ?", expected).
		Updates(map[string]interface{}{
			"score":         review.Score,
			"feedback":      review.Feedback,
			"rubric_scores": review.RubricScores,
			"version":       expected + 1,
			"updated_at":    review.UpdatedAt,
		})
	if result.Error != nil {
		return translateWriteError(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrStaleWrite
	}
	review.Version = expected + 1
	return nil
}

// ListOverdue returns open edges past their deadline that have not been
// reminded since remindedBefore, in id order after afterID.
func (r *peerReviewRepository) ListOverdue(ctx context.Context, now, remindedBefore time.Time, afterID uint, limit int) ([]models.PeerReviewAssignment, error) {
	query := r.db.WithContext(ctx).
		Where("status IN ?", openPeerReviewStatuses).
		Where("deadline < ?", now).
		Where("last_reminded_at IS NULL OR last_reminded_at <= ?", remindedBefore).
		Where("id > ?", afterID).
		Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var edges []models.PeerReviewAssignment
	if err := query.Find(&edges).Error; err != nil {
		return nil, err
	}
	return edges, nil
}

// MarkReminded stamps last_reminded_at only if no other sweep already did so
// within the window. It reports whether this call won the stamp.
func (r *peerReviewRepository) MarkReminded(ctx context.Context, id uint, at, remindedBefore time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.PeerReviewAssignment{}).
		Where("id = ?", id).
		Where("status IN ?", openPeerReviewStatuses).
		Where("last_reminded_at IS NULL OR last_reminded_at <= ?", remindedBefore).
		UpdateColumn("last_reminded_at", at)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
