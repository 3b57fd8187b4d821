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

func TestApplicationRepositoryLockWorkerWindowsTx(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewApplicationRepository(db)

	nine := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	tx := beginTx(t, db, mock)
	mock.ExpectQuery(`(?s)FROM applications a\s+JOIN shifts s ON s.id = a.shift_id.*ORDER BY a.id\s+FOR UPDATE OF a`).
		WithArgs("worker-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "shift_id", "status", "start_time", "end_time"}).
			AddRow("app-1", "shift-1", "pending", nine, nine.Add(8*time.Hour)).
			AddRow("app-2", "shift-2", "accepted", nine.Add(24*time.Hour), nine.Add(30*time.Hour)))

	windows, err := repo.LockWorkerWindowsTx(context.Background(), tx, "worker-1")
	require.NoError(t, err)
	require.Len(t, windows, 2)
	assert.Equal(t, models.ApplicationStatusAccepted, windows[1].Status)
	assert.Equal(t, 8*time.Hour, windows[0].Window().Duration())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationRepositoryRejectManyTx(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewApplicationRepository(db)

	at := time.Now()
	tx := beginTx(t, db, mock)
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE applications SET status = 'rejected', decided_at = $2 WHERE id = ANY($1) AND status = 'pending' RETURNING id")).
		WithArgs(sqlmock.AnyArg(), at).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("app-2"))

	changed, err := repo.RejectManyTx(context.Background(), tx, []string{"app-2", "app-3"}, at)
	require.NoError(t, err)
	assert.Equal(t, []string{"app-2"}, changed)

	none, err := repo.RejectManyTx(context.Background(), tx, nil, at)
	require.NoError(t, err)
	assert.Nil(t, none)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationRepositoryCreateTxDefaults(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewApplicationRepository(db)

	tx := beginTx(t, db, mock)
	mock.ExpectExec("INSERT INTO applications").WillReturnResult(sqlmock.NewResult(0, 1))

	app := &models.Application{ShiftID: "shift-1", WorkerID: "worker-1", CompanyID: "company-1"}
	require.NoError(t, repo.CreateTx(context.Background(), tx, app))
	assert.NotEmpty(t, app.ID)
	assert.Equal(t, models.ApplicationStatusPending, app.Status)
}

func TestApplicationRepositoryListDetailedForWorker(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewApplicationRepository(db)

	now := time.Now()
	mock.ExpectQuery(`(?s)SELECT a.id, a.shift_id.*WHERE 1=1 AND a.worker_id = \$1 AND a.status = ANY\(\$2\) AND s.end_time > \$3.*LIMIT 20 OFFSET 0`).
		WithArgs("worker-1", sqlmock.AnyArg(), now).
		WillReturnRows(sqlmock.NewRows([]string{"id", "shift_id", "worker_id", "company_id", "status", "applied_at", "decided_at", "cancelled_at", "shift_title", "shift_location", "shift_start", "shift_end", "hourly_rate", "currency", "worker_name", "worker_email", "favorite"}).
			AddRow("app-1", "shift-1", "worker-1", "company-1", "accepted", now, now, nil, "Chef", "Odense", now.Add(time.Hour), now.Add(9*time.Hour), 200.0, "DKK", "Ada", "ada@example.com", false))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM applications a")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	items, total, err := repo.ListDetailed(context.Background(), models.ApplicationFilter{
		WorkerID:  "worker-1",
		Statuses:  []models.ApplicationStatus{models.ApplicationStatusAccepted},
		Upcoming:  true,
		Reference: now,
	})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Chef", items[0].ShiftTitle)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}
