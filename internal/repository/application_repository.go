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

const applicationColumns = `id, shift_id, worker_id, company_id, status, applied_at, decided_at, cancelled_at`

// ApplicationRepository persists shift applications.
type ApplicationRepository struct {
	db *sqlx.DB
}

// NewApplicationRepository constructs the repository.
func NewApplicationRepository(db *sqlx.DB) *ApplicationRepository {
	return &ApplicationRepository{db: db}
}

// FindByID returns an application or sql.ErrNoRows.
func (r *ApplicationRepository) FindByID(ctx context.Context, id string) (*models.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE id = $1`
	var app models.Application
	if err := r.db.GetContext(ctx, &app, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find application: %w", err)
	}
	return &app, nil
}

// LockByIDTx loads an application with a row lock.
func (r *ApplicationRepository) LockByIDTx(ctx context.Context, tx *sqlx.Tx, id string) (*models.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE id = $1 FOR UPDATE`
	var app models.Application
	if err := tx.GetContext(ctx, &app, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("lock application: %w", err)
	}
	return &app, nil
}

// FindOpenTx returns the worker's non-cancelled, non-rejected application for
// a shift, or sql.ErrNoRows.
func (r *ApplicationRepository) FindOpenTx(ctx context.Context, tx *sqlx.Tx, shiftID, workerID string) (*models.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE shift_id = $1 AND worker_id = $2 AND status IN ('pending', 'waitlist', 'accepted') LIMIT 1`
	var app models.Application
	if err := tx.GetContext(ctx, &app, query, shiftID, workerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find open application: %w", err)
	}
	return &app, nil
}

// CreateTx inserts an application.
func (r *ApplicationRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, app *models.Application) error {
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	if app.Status == "" {
		app.Status = models.ApplicationStatusPending
	}
	if app.AppliedAt.IsZero() {
		app.AppliedAt = time.Now().UTC()
	}
	const query = `INSERT INTO applications (id, shift_id, worker_id, company_id, status, applied_at) VALUES (:id, :shift_id, :worker_id, :company_id, :status, :applied_at)`
	if _, err := tx.NamedExecContext(ctx, query, app); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create application: %w", err)
	}
	return nil
}

// LockWorkerWindowsTx locks every open application of a worker together with
// its shift interval. Rows are locked in id order so concurrent decisions for
// the same worker serialize instead of deadlocking.
func (r *ApplicationRepository) LockWorkerWindowsTx(ctx context.Context, tx *sqlx.Tx, workerID string) ([]models.ApplicationWindow, error) {
	const query = `SELECT a.id, a.shift_id, a.status, s.start_time, s.end_time
FROM applications a
JOIN shifts s ON s.id = a.shift_id
WHERE a.worker_id = $1 AND a.status IN ('pending', 'waitlist', 'accepted')
ORDER BY a.id
FOR UPDATE OF a`
	var windows []models.ApplicationWindow
	if err := tx.SelectContext(ctx, &windows, query, workerID); err != nil {
		return nil, fmt.Errorf("lock worker applications: %w", err)
	}
	return windows, nil
}

// DecideTx sets a decision status and timestamp.
func (r *ApplicationRepository) DecideTx(ctx context.Context, tx *sqlx.Tx, id string, status models.ApplicationStatus, at time.Time) error {
	const query = `UPDATE applications SET status = $2, decided_at = $3 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, query, id, status, at); err != nil {
		return fmt.Errorf("decide application: %w", err)
	}
	return nil
}

// RejectManyTx rejects the given pending applications in one statement and
// returns the ids actually changed.
func (r *ApplicationRepository) RejectManyTx(ctx context.Context, tx *sqlx.Tx, ids []string, at time.Time) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	const query = `UPDATE applications SET status = 'rejected', decided_at = $2 WHERE id = ANY($1) AND status = 'pending' RETURNING id`
	var changed []string
	if err := tx.SelectContext(ctx, &changed, query, pq.Array(ids), at); err != nil {
		return nil, fmt.Errorf("reject applications: %w", err)
	}
	return changed, nil
}

// WaitlistPendingTx moves a full shift's pending applications to the waitlist.
func (r *ApplicationRepository) WaitlistPendingTx(ctx context.Context, tx *sqlx.Tx, shiftID string) (int64, error) {
	const query = `UPDATE applications SET status = 'waitlist' WHERE shift_id = $1 AND status = 'pending'`
	res, err := tx.ExecContext(ctx, query, shiftID)
	if err != nil {
		return 0, fmt.Errorf("waitlist applications: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// CancelTx cancels a single application.
func (r *ApplicationRepository) CancelTx(ctx context.Context, tx *sqlx.Tx, id string, at time.Time) error {
	const query = `UPDATE applications SET status = 'cancelled', cancelled_at = $2 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, query, id, at); err != nil {
		return fmt.Errorf("cancel application: %w", err)
	}
	return nil
}

// CancelOpenForShiftTx cancels every open application of a shift and returns
// the affected worker ids.
func (r *ApplicationRepository) CancelOpenForShiftTx(ctx context.Context, tx *sqlx.Tx, shiftID string, at time.Time) ([]string, error) {
	const query = `UPDATE applications SET status = 'cancelled', cancelled_at = $2 WHERE shift_id = $1 AND status IN ('pending', 'waitlist', 'accepted') RETURNING worker_id`
	var workers []string
	if err := tx.SelectContext(ctx, &workers, query, shiftID, at); err != nil {
		return nil, fmt.Errorf("cancel shift applications: %w", err)
	}
	return workers, nil
}

// FindAccepted returns the accepted application of a worker on a shift.
func (r *ApplicationRepository) FindAccepted(ctx context.Context, shiftID, workerID string) (*models.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE shift_id = $1 AND worker_id = $2 AND status = 'accepted' LIMIT 1`
	var app models.Application
	if err := r.db.GetContext(ctx, &app, query, shiftID, workerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find accepted application: %w", err)
	}
	return &app, nil
}

// ListDetailed returns applications joined with their shift and worker.
func (r *ApplicationRepository) ListDetailed(ctx context.Context, filter models.ApplicationFilter) ([]models.ApplicationDetail, int, error) {
	filter.Normalize()
	base := ` FROM applications a
JOIN shifts s ON s.id = a.shift_id
JOIN users u ON u.id = a.worker_id
LEFT JOIN worker_relations wr ON wr.company_id = a.company_id AND wr.worker_id = a.worker_id
WHERE 1=1`
	var args []interface{}

	if filter.WorkerID != "" {
		args = append(args, filter.WorkerID)
		base += fmt.Sprintf(" AND a.worker_id = $%d", len(args))
	}
	if filter.ShiftID != "" {
		args = append(args, filter.ShiftID)
		base += fmt.Sprintf(" AND a.shift_id = $%d", len(args))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		args = append(args, pq.Array(statuses))
		base += fmt.Sprintf(" AND a.status = ANY($%d)", len(args))
	}
	if filter.Upcoming {
		ref := filter.Reference
		if ref.IsZero() {
			ref = time.Now().UTC()
		}
		args = append(args, ref)
		base += fmt.Sprintf(" AND s.end_time > $%d", len(args))
	}

	listQuery := fmt.Sprintf(`SELECT a.id, a.shift_id, a.worker_id, a.company_id, a.status, a.applied_at, a.decided_at, a.cancelled_at,
s.title AS shift_title, s.location AS shift_location, s.start_time AS shift_start, s.end_time AS shift_end, s.hourly_rate, s.currency,
u.full_name AS worker_name, u.email AS worker_email, COALESCE(wr.kind = 'favorite', FALSE) AS favorite%s
ORDER BY s.start_time ASC, a.applied_at ASC LIMIT %d OFFSET %d`, base, filter.PageSize, pageOffset(filter.Page, filter.PageSize))

	var items []models.ApplicationDetail
	if err := r.db.SelectContext(ctx, &items, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list applications: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*)"+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count applications: %w", err)
	}
	return items, total, nil
}
