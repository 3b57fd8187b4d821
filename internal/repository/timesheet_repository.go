package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/vikar-api/internal/models"
)

const timesheetColumns = `id, shift_id, worker_id, company_id, status, clock_in_time, clock_out_time, manager_approved_start, manager_approved_end, dispute_reason, approved_at, paid_at, created_at`

// TimesheetRepository persists timesheets.
type TimesheetRepository struct {
	db *sqlx.DB
}

// NewTimesheetRepository constructs the repository.
func NewTimesheetRepository(db *sqlx.DB) *TimesheetRepository {
	return &TimesheetRepository{db: db}
}

// FindByID returns a timesheet or sql.ErrNoRows.
func (r *TimesheetRepository) FindByID(ctx context.Context, id string) (*models.Timesheet, error) {
	query := `SELECT ` + timesheetColumns + ` FROM timesheets WHERE id = $1`
	var ts models.Timesheet
	if err := r.db.GetContext(ctx, &ts, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find timesheet: %w", err)
	}
	return &ts, nil
}

// FindByShiftWorker returns the worker's timesheet for a shift or sql.ErrNoRows.
func (r *TimesheetRepository) FindByShiftWorker(ctx context.Context, shiftID, workerID string) (*models.Timesheet, error) {
	query := `SELECT ` + timesheetColumns + ` FROM timesheets WHERE shift_id = $1 AND worker_id = $2`
	var ts models.Timesheet
	if err := r.db.GetContext(ctx, &ts, query, shiftID, workerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find timesheet by shift: %w", err)
	}
	return &ts, nil
}

// Create inserts a timesheet. A second timesheet for the same shift and worker yields ErrDuplicate.
func (r *TimesheetRepository) Create(ctx context.Context, ts *models.Timesheet) error {
	if ts.ID == "" {
		ts.ID = uuid.NewString()
	}
	if ts.Status == "" {
		ts.Status = models.TimesheetStatusPending
	}
	if ts.CreatedAt.IsZero() {
		ts.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO timesheets (id, shift_id, worker_id, company_id, status, clock_in_time, created_at) VALUES (:id, :shift_id, :worker_id, :company_id, :status, :clock_in_time, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, ts); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create timesheet: %w", err)
	}
	return nil
}

// Save writes every mutable timesheet field.
func (r *TimesheetRepository) Save(ctx context.Context, ts *models.Timesheet) error {
	const query = `UPDATE timesheets SET status = :status, clock_in_time = :clock_in_time, clock_out_time = :clock_out_time,
manager_approved_start = :manager_approved_start, manager_approved_end = :manager_approved_end, dispute_reason = :dispute_reason,
approved_at = :approved_at, paid_at = :paid_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, ts); err != nil {
		return fmt.Errorf("save timesheet: %w", err)
	}
	return nil
}

// List returns timesheets joined with shift data. Derived totals are filled.
func (r *TimesheetRepository) List(ctx context.Context, filter models.TimesheetFilter) ([]models.TimesheetView, error) {
	query := `SELECT t.id, t.shift_id, t.worker_id, t.company_id, t.status, t.clock_in_time, t.clock_out_time, t.manager_approved_start,
t.manager_approved_end, t.dispute_reason, t.approved_at, t.paid_at, t.created_at,
s.title AS shift_title, s.start_time AS shift_start, s.end_time AS shift_end, s.hourly_rate, s.currency, u.full_name AS worker_name
FROM timesheets t
JOIN shifts s ON s.id = t.shift_id
JOIN users u ON u.id = t.worker_id
WHERE 1=1`
	var args []interface{}
	if filter.WorkerID != "" {
		args = append(args, filter.WorkerID)
		query += fmt.Sprintf(" AND t.worker_id = $%d", len(args))
	}
	if filter.CompanyID != "" {
		args = append(args, filter.CompanyID)
		query += fmt.Sprintf(" AND t.company_id = $%d", len(args))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		args = append(args, pq.Array(statuses))
		query += fmt.Sprintf(" AND t.status = ANY($%d)", len(args))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		query += fmt.Sprintf(" AND s.start_time >= $%d", len(args))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		query += fmt.Sprintf(" AND s.start_time < $%d", len(args))
	}
	query += " ORDER BY s.start_time ASC, u.full_name ASC"

	var items []models.TimesheetView
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("list timesheets: %w", err)
	}
	for i := range items {
		items[i].Derive()
	}
	return items, nil
}
