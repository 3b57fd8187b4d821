package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/vikar-api/internal/models"
)

// WorkerRelationRepository persists company favorites and blocks.
type WorkerRelationRepository struct {
	db *sqlx.DB
}

// NewWorkerRelationRepository constructs the repository.
func NewWorkerRelationRepository(db *sqlx.DB) *WorkerRelationRepository {
	return &WorkerRelationRepository{db: db}
}

// Upsert sets the relation kind for a company and worker.
func (r *WorkerRelationRepository) Upsert(ctx context.Context, rel *models.WorkerRelation) error {
	if rel.ID == "" {
		rel.ID = uuid.NewString()
	}
	if rel.CreatedAt.IsZero() {
		rel.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO worker_relations (id, company_id, worker_id, kind, created_at) VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (company_id, worker_id) DO UPDATE SET kind = EXCLUDED.kind
RETURNING id, created_at`
	row := r.db.QueryRowxContext(ctx, query, rel.ID, rel.CompanyID, rel.WorkerID, rel.Kind, rel.CreatedAt)
	if err := row.Scan(&rel.ID, &rel.CreatedAt); err != nil {
		return fmt.Errorf("upsert worker relation: %w", err)
	}
	return nil
}

// Delete removes the relation and reports whether a row existed.
func (r *WorkerRelationRepository) Delete(ctx context.Context, companyID, workerID string) (bool, error) {
	const query = `DELETE FROM worker_relations WHERE company_id = $1 AND worker_id = $2`
	res, err := r.db.ExecContext(ctx, query, companyID, workerID)
	if err != nil {
		return false, fmt.Errorf("delete worker relation: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Kind returns the relation kind, or "" when none exists.
func (r *WorkerRelationRepository) Kind(ctx context.Context, companyID, workerID string) (models.RelationKind, error) {
	const query = `SELECT kind FROM worker_relations WHERE company_id = $1 AND worker_id = $2`
	var kind models.RelationKind
	if err := r.db.GetContext(ctx, &kind, query, companyID, workerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("find worker relation: %w", err)
	}
	return kind, nil
}

// List returns a company's relations, optionally filtered by kind.
func (r *WorkerRelationRepository) List(ctx context.Context, companyID string, kind models.RelationKind) ([]models.WorkerRelation, error) {
	query := `SELECT wr.id, wr.company_id, wr.worker_id, wr.kind, wr.created_at, u.full_name AS worker_name
FROM worker_relations wr JOIN users u ON u.id = wr.worker_id WHERE wr.company_id = $1`
	args := []interface{}{companyID}
	if kind != "" {
		args = append(args, kind)
		query += " AND wr.kind = $2"
	}
	query += " ORDER BY u.full_name ASC"
	var rels []models.WorkerRelation
	if err := r.db.SelectContext(ctx, &rels, query, args...); err != nil {
		return nil, fmt.Errorf("list worker relations: %w", err)
	}
	return rels, nil
}
