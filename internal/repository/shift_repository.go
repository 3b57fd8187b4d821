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
	"github.com/lib/pq"

	"github.com/noah-isme/vikar-api/internal/models"
)

const shiftColumns = `id, company_id, title, description, location, start_time, end_time, hourly_rate, currency, vacancies_total, vacancies_taken, status, series_id, created_at, updated_at`

const insertShiftQuery = `INSERT INTO shifts (id, company_id, title, description, location, start_time, end_time, hourly_rate, currency, vacancies_total, vacancies_taken, status, series_id, created_at, updated_at)
VALUES (:id, :company_id, :title, :description, :location, :start_time, :end_time, :hourly_rate, :currency, :vacancies_total, :vacancies_taken, :status, :series_id, :created_at, :updated_at)`

// ShiftRepository persists shifts.
type ShiftRepository struct {
	db *sqlx.DB
}

// NewShiftRepository constructs the repository.
func NewShiftRepository(db *sqlx.DB) *ShiftRepository {
	return &ShiftRepository{db: db}
}

func prepareShift(s *models.Shift, now time.Time) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.Status == "" {
		s.Status = models.ShiftStatusPublished
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
}

// CreateManyTx inserts a batch of shifts inside tx.
func (r *ShiftRepository) CreateManyTx(ctx context.Context, tx *sqlx.Tx, shifts []models.Shift) error {
	if len(shifts) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for i := range shifts {
		prepareShift(&shifts[i], now)
	}
	if _, err := tx.NamedExecContext(ctx, insertShiftQuery, shifts); err != nil {
		return fmt.Errorf("create shifts: %w", err)
	}
	return nil
}

// FindByID returns a shift or sql.ErrNoRows.
func (r *ShiftRepository) FindByID(ctx context.Context, id string) (*models.Shift, error) {
	query := `SELECT ` + shiftColumns + ` FROM shifts WHERE id = $1`
	var shift models.Shift
	if err := r.db.GetContext(ctx, &shift, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find shift: %w", err)
	}
	return &shift, nil
}

// LockByIDTx loads a shift with a row lock held until tx ends.
func (r *ShiftRepository) LockByIDTx(ctx context.Context, tx *sqlx.Tx, id string) (*models.Shift, error) {
	query := `SELECT ` + shiftColumns + ` FROM shifts WHERE id = $1 FOR UPDATE`
	var shift models.Shift
	if err := tx.GetContext(ctx, &shift, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("lock shift: %w", err)
	}
	return &shift, nil
}

// UpdateCapacityTx writes the vacancy counter and derived status.
func (r *ShiftRepository) UpdateCapacityTx(ctx context.Context, tx *sqlx.Tx, id string, taken int, status models.ShiftStatus) error {
	const query = `UPDATE shifts SET vacancies_taken = $2, status = $3, updated_at = $4 WHERE id = $1 AND $2 BETWEEN 0 AND vacancies_total`
	res, err := tx.ExecContext(ctx, query, id, taken, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update shift capacity: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update shift capacity: vacancies out of range for shift %s", id)
	}
	return nil
}

// UpdateStatusTx sets the shift status.
func (r *ShiftRepository) UpdateStatusTx(ctx context.Context, tx *sqlx.Tx, id string, status models.ShiftStatus) error {
	const query = `UPDATE shifts SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, query, id, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("update shift status: %w", err)
	}
	return nil
}

// UpdateDetailsTx persists the editable attributes of a shift.
func (r *ShiftRepository) UpdateDetailsTx(ctx context.Context, tx *sqlx.Tx, shift *models.Shift) error {
	shift.UpdatedAt = time.Now().UTC()
	const query = `UPDATE shifts SET title = :title, description = :description, location = :location, hourly_rate = :hourly_rate,
vacancies_total = :vacancies_total, status = :status, updated_at = :updated_at WHERE id = :id`
	if _, err := tx.NamedExecContext(ctx, query, shift); err != nil {
		return fmt.Errorf("update shift: %w", err)
	}
	return nil
}

// List returns shifts matching filter ordered by start time, with the total count.
func (r *ShiftRepository) List(ctx context.Context, filter models.ShiftFilter) ([]models.Shift, int, error) {
	filter.Normalize()
	base := ` FROM shifts WHERE 1=1`
	var args []interface{}

	if filter.CompanyID != "" {
		args = append(args, filter.CompanyID)
		base += fmt.Sprintf(" AND company_id = $%d", len(args))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		args = append(args, pq.Array(statuses))
		base += fmt.Sprintf(" AND status = ANY($%d)", len(args))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		base += fmt.Sprintf(" AND start_time >= $%d", len(args))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		base += fmt.Sprintf(" AND start_time < $%d", len(args))
	}
	if filter.Location != "" {
		args = append(args, "%"+strings.ToLower(filter.Location)+"%")
		base += fmt.Sprintf(" AND LOWER(location) LIKE $%d", len(args))
	}
	if filter.Search != "" {
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
		base += fmt.Sprintf(" AND (LOWER(title) LIKE $%d OR LOWER(description) LIKE $%d)", len(args), len(args))
	}

	listQuery := fmt.Sprintf("SELECT %s%s ORDER BY start_time ASC, id ASC LIMIT %d OFFSET %d", shiftColumns, base, filter.PageSize, pageOffset(filter.Page, filter.PageSize))
	var shifts []models.Shift
	if err := r.db.SelectContext(ctx, &shifts, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list shifts: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*)"+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count shifts: %w", err)
	}
	return shifts, total, nil
}

// CompleteEnded marks live shifts whose end time has passed as completed.
func (r *ShiftRepository) CompleteEnded(ctx context.Context, now time.Time) ([]string, error) {
	const query = `UPDATE shifts SET status = 'completed', updated_at = $1 WHERE status IN ('published', 'full') AND end_time <= $1 RETURNING id`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, now); err != nil {
		return nil, fmt.Errorf("complete ended shifts: %w", err)
	}
	return ids, nil
}
