package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/vikar-api/internal/models"
)

// ReviewRepository persists worker reviews.
type ReviewRepository struct {
	db *sqlx.DB
}

// NewReviewRepository constructs the repository.
func NewReviewRepository(db *sqlx.DB) *ReviewRepository {
	return &ReviewRepository{db: db}
}

// Create inserts a review. The (shift, reviewer, reviewee) triple is unique.
func (r *ReviewRepository) Create(ctx context.Context, review *models.Review) error {
	if review.ID == "" {
		review.ID = uuid.NewString()
	}
	if review.CreatedAt.IsZero() {
		review.CreatedAt = time.Now().UTC()
	}
	if review.Tags == nil {
		review.Tags = []string{}
	}
	const query = `INSERT INTO reviews (id, shift_id, reviewer_id, reviewee_id, rating, comment, tags, created_at)
VALUES (:id, :shift_id, :reviewer_id, :reviewee_id, :rating, :comment, :tags, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, review); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create review: %w", err)
	}
	return nil
}

// Exists reports whether the reviewer already reviewed the worker for the shift.
func (r *ReviewRepository) Exists(ctx context.Context, shiftID, reviewerID, revieweeID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM reviews WHERE shift_id = $1 AND reviewer_id = $2 AND reviewee_id = $3)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, shiftID, reviewerID, revieweeID); err != nil {
		return false, fmt.Errorf("check review: %w", err)
	}
	return exists, nil
}

// ListForWorker returns reviews about a worker, newest first.
func (r *ReviewRepository) ListForWorker(ctx context.Context, workerID string) ([]models.Review, error) {
	const query = `SELECT id, shift_id, reviewer_id, reviewee_id, rating, comment, tags, created_at FROM reviews WHERE reviewee_id = $1 ORDER BY created_at DESC`
	var reviews []models.Review
	if err := r.db.SelectContext(ctx, &reviews, query, workerID); err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	return reviews, nil
}
