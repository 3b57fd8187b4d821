package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/vikar-api/internal/models"
)

var shiftRowColumns = []string{"id", "company_id", "title", "description", "location", "start_time", "end_time", "hourly_rate", "currency", "vacancies_total", "vacancies_taken", "status", "series_id", "created_at", "updated_at"}

func shiftRow(rows *sqlmock.Rows, id string, start time.Time, taken int) *sqlmock.Rows {
	return rows.AddRow(id, "company-1", "Bartender", "", "Aarhus", start, start.Add(8*time.Hour), 180.0, "DKK", 2, taken, "published", nil, start, start)
}

func TestShiftRepositoryLockByIDTx(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewShiftRepository(db)

	start := time.Now().Add(48 * time.Hour)
	tx := beginTx(t, db, mock)
	mock.ExpectQuery(regexp.QuoteMeta("FROM shifts WHERE id = $1 FOR UPDATE")).
		WithArgs("shift-1").
		WillReturnRows(shiftRow(sqlmock.NewRows(shiftRowColumns), "shift-1", start, 1))

	shift, err := repo.LockByIDTx(context.Background(), tx, "shift-1")
	require.NoError(t, err)
	assert.Equal(t, 1, shift.VacanciesTaken)
	assert.True(t, shift.HasVacancy())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestShiftRepositoryUpdateCapacityOutOfRange(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewShiftRepository(db)

	tx := beginTx(t, db, mock)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE shifts SET vacancies_taken = $2, status = $3")).
		WithArgs("shift-1", 3, models.ShiftStatusFull, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateCapacityTx(context.Background(), tx, "shift-1", 3, models.ShiftStatusFull)
	assert.Error(t, err)
}

func TestShiftRepositoryListBuildsFilters(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewShiftRepository(db)

	from := time.Now()
	start := from.Add(time.Hour)
	mock.ExpectQuery(regexp.QuoteMeta("FROM shifts WHERE 1=1 AND status = ANY($1) AND start_time >= $2 AND LOWER(location) LIKE $3 ORDER BY start_time ASC, id ASC LIMIT 20 OFFSET 0")).
		WithArgs(sqlmock.AnyArg(), from, "%aarhus%").
		WillReturnRows(shiftRow(sqlmock.NewRows(shiftRowColumns), "shift-1", start, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM shifts WHERE 1=1 AND status = ANY($1)")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	shifts, total, err := repo.List(context.Background(), models.ShiftFilter{
		Statuses: []models.ShiftStatus{models.ShiftStatusPublished},
		From:     &from,
		Location: "Aarhus",
	})
	require.NoError(t, err)
	assert.Len(t, shifts, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestShiftRepositoryCompleteEnded(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewShiftRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE shifts SET status = 'completed'")).
		WithArgs(now).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("s1").AddRow("s2"))

	ids, err := repo.CompleteEnded(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s2"}, ids)
}
