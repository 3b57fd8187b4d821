package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/vikar-api/internal/models"
)

// PenaltyRepository records cancellation penalties.
type PenaltyRepository struct {
	db *sqlx.DB
}

// NewPenaltyRepository constructs the repository.
func NewPenaltyRepository(db *sqlx.DB) *PenaltyRepository {
	return &PenaltyRepository{db: db}
}

// CreateTx inserts a penalty inside the cancellation transaction.
func (r *PenaltyRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, p *models.CancellationPenalty) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO cancellation_penalties (id, user_id, shift_id, application_id, kind, amount_minor, currency, banned_until, created_at)
VALUES (:id, :user_id, :shift_id, :application_id, :kind, :amount_minor, :currency, :banned_until, :created_at)`
	if _, err := tx.NamedExecContext(ctx, query, p); err != nil {
		return fmt.Errorf("create penalty: %w", err)
	}
	return nil
}

// ListForUser returns a user's penalties, newest first.
func (r *PenaltyRepository) ListForUser(ctx context.Context, userID string) ([]models.CancellationPenalty, error) {
	const query = `SELECT id, user_id, shift_id, application_id, kind, amount_minor, currency, banned_until, created_at
FROM cancellation_penalties WHERE user_id = $1 ORDER BY created_at DESC`
	var out []models.CancellationPenalty
	if err := r.db.SelectContext(ctx, &out, query, userID); err != nil {
		return nil, fmt.Errorf("list penalties: %w", err)
	}
	return out, nil
}
