package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/vikar-api/internal/models"
)

const exportColumns = `id, type, params, status, progress, result_url, created_by, created_at, finished_at, error_message`

// ExportRepository persists export job state.
type ExportRepository struct {
	db *sqlx.DB
}

// NewExportRepository constructs the repository.
func NewExportRepository(db *sqlx.DB) *ExportRepository {
	return &ExportRepository{db: db}
}

// Create inserts a job row with defaults applied.
func (r *ExportRepository) Create(ctx context.Context, job *models.ExportJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = models.ExportStatusQueued
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO export_jobs (id, type, params, status, progress, result_url, created_by, created_at, finished_at, error_message)
VALUES (:id, :type, :params, :status, :progress, :result_url, :created_by, :created_at, :finished_at, :error_message)`
	if _, err := r.db.NamedExecContext(ctx, query, job); err != nil {
		return fmt.Errorf("create export job: %w", err)
	}
	return nil
}

// GetByID returns a job or sql.ErrNoRows.
func (r *ExportRepository) GetByID(ctx context.Context, id string) (*models.ExportJob, error) {
	query := `SELECT ` + exportColumns + ` FROM export_jobs WHERE id = $1`
	var job models.ExportJob
	if err := r.db.GetContext(ctx, &job, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get export job: %w", err)
	}
	return &job, nil
}

// ExportJobUpdate carries the fields to change; nil fields are left as is.
type ExportJobUpdate struct {
	Status       *models.ExportStatus
	Progress     *int
	ResultURL    *string
	ErrorMessage *string
	FinishedAt   *time.Time
}

// Update applies the non-nil fields of u.
func (r *ExportRepository) Update(ctx context.Context, id string, u ExportJobUpdate) error {
	var set []string
	var args []interface{}
	add := func(column string, value interface{}) {
		args = append(args, value)
		set = append(set, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if u.Status != nil {
		add("status", *u.Status)
	}
	if u.Progress != nil {
		add("progress", *u.Progress)
	}
	if u.ResultURL != nil {
		add("result_url", *u.ResultURL)
	}
	if u.ErrorMessage != nil {
		add("error_message", *u.ErrorMessage)
	}
	if u.FinishedAt != nil {
		add("finished_at", *u.FinishedAt)
	}
	if len(set) == 0 {
		return nil
	}
	args = append(args, id)
	query := fmt.Sprintf("UPDATE export_jobs SET %s WHERE id = $%d", strings.Join(set, ", "), len(args))
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update export job: %w", err)
	}
	return nil
}

// ListByStatus returns the oldest jobs in a status, used to resume queued work on start.
func (r *ExportRepository) ListByStatus(ctx context.Context, status models.ExportStatus, limit int) ([]models.ExportJob, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + exportColumns + ` FROM export_jobs WHERE status = $1 ORDER BY created_at ASC LIMIT $2`
	var jobs []models.ExportJob
	if err := r.db.SelectContext(ctx, &jobs, query, status, limit); err != nil {
		return nil, fmt.Errorf("list export jobs: %w", err)
	}
	return jobs, nil
}

// ListFinishedBefore returns finished jobs older than cutoff for cleanup.
func (r *ExportRepository) ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ExportJob, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + exportColumns + ` FROM export_jobs WHERE status = 'FINISHED' AND finished_at < $1 ORDER BY finished_at ASC LIMIT $2`
	var jobs []models.ExportJob
	if err := r.db.SelectContext(ctx, &jobs, query, cutoff, limit); err != nil {
		return nil, fmt.Errorf("list finished export jobs: %w", err)
	}
	return jobs, nil
}
