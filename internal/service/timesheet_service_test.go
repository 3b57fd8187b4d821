package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/vikar-api/internal/dto"
	"github.com/noah-isme/vikar-api/internal/models"
	appErrors "github.com/noah-isme/vikar-api/pkg/errors"
)

type timesheetStoreStub struct {
	items map[string]*models.Timesheet
	saved int
	list  []models.TimesheetView
	last  models.TimesheetFilter
}

func newTimesheetStoreStub(items ...*models.Timesheet) *timesheetStoreStub {
	stub := &timesheetStoreStub{items: map[string]*models.Timesheet{}}
	for _, ts := range items {
		stub.items[ts.ID] = ts
	}
	return stub
}

func (s *timesheetStoreStub) FindByID(ctx context.Context, id string) (*models.Timesheet, error) {
	if ts, ok := s.items[id]; ok {
		clone := *ts
		return &clone, nil
	}
	return nil, sql.ErrNoRows
}

func (s *timesheetStoreStub) FindByShiftWorker(ctx context.Context, shiftID, workerID string) (*models.Timesheet, error) {
	for _, ts := range s.items {
		if ts.ShiftID == shiftID && ts.WorkerID == workerID {
			return ts, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *timesheetStoreStub) Create(ctx context.Context, ts *models.Timesheet) error {
	ts.ID = "ts-new"
	s.items[ts.ID] = ts
	return nil
}

func (s *timesheetStoreStub) Save(ctx context.Context, ts *models.Timesheet) error {
	s.saved++
	s.items[ts.ID] = ts
	return nil
}

func (s *timesheetStoreStub) List(ctx context.Context, filter models.TimesheetFilter) ([]models.TimesheetView, error) {
	s.last = filter
	return s.list, nil
}

type acceptedLookupStub map[string]bool

func (a acceptedLookupStub) FindAccepted(ctx context.Context, shiftID, workerID string) (*models.Application, error) {
	if a[shiftID+"/"+workerID] {
		return &models.Application{ShiftID: shiftID, WorkerID: workerID, Status: models.ApplicationStatusAccepted}, nil
	}
	return nil, sql.ErrNoRows
}

func newTimesheetFixture(now time.Time, store *timesheetStoreStub, shifts ...*models.Shift) *TimesheetService {
	svc := NewTimesheetService(store, newShiftStoreStub(shifts...), acceptedLookupStub{"shift-a/worker-1": true}, &auditStub{}, nil, nil, 30*time.Minute)
	svc.now = func() time.Time { return now }
	return svc
}

func TestTimesheetClockInWindow(t *testing.T) {
	shift := shiftAt("shift-a", "company-1", fixedNow.Add(time.Hour), 4, 1, 1)

	early := newTimesheetFixture(fixedNow, newTimesheetStoreStub(), shift)
	_, err := early.ClockIn(context.Background(), "worker-1", "shift-a")
	assert.True(t, errors.Is(err, appErrors.ErrConflict))

	store := newTimesheetStoreStub()
	onTime := newTimesheetFixture(fixedNow.Add(40*time.Minute), store, shift)
	ts, err := onTime.ClockIn(context.Background(), "worker-1", "shift-a")
	require.NoError(t, err)
	assert.Equal(t, "company-1", ts.CompanyID)
	assert.Equal(t, models.TimesheetStatusPending, ts.Status)

	_, err = onTime.ClockIn(context.Background(), "worker-1", "shift-a")
	assert.True(t, errors.Is(err, appErrors.ErrConflict))

	_, err = onTime.ClockIn(context.Background(), "worker-2", "shift-a")
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
}

func TestTimesheetLifecycle(t *testing.T) {
	in := fixedNow.Add(-4 * time.Hour)
	store := newTimesheetStoreStub(&models.Timesheet{ID: "ts-1", ShiftID: "shift-a", WorkerID: "worker-1", CompanyID: "company-1", Status: models.TimesheetStatusPending, ClockInTime: &in})
	svc := newTimesheetFixture(fixedNow, store)

	ts, err := svc.ClockOut(context.Background(), "worker-1", "ts-1")
	require.NoError(t, err)
	assert.Equal(t, 4.0, ts.Hours())

	_, err = svc.MarkPaid(context.Background(), "company-1", "ts-1")
	assert.True(t, errors.Is(err, appErrors.ErrConflict))

	start, end := in, in.Add(3*time.Hour+30*time.Minute)
	ts, err = svc.Approve(context.Background(), "company-1", "ts-1", dto.ApproveTimesheetRequest{ApprovedStart: &start, ApprovedEnd: &end})
	require.NoError(t, err)
	assert.Equal(t, models.TimesheetStatusApproved, ts.Status)
	assert.Equal(t, 3.5, ts.Hours())
	assert.Equal(t, 630.0, ts.Earnings(180))

	ts, err = svc.MarkPaid(context.Background(), "company-1", "ts-1")
	require.NoError(t, err)
	assert.Equal(t, models.TimesheetStatusPaid, ts.Status)

	_, err = svc.Dispute(context.Background(), "company-1", "ts-1", dto.DisputeTimesheetRequest{Reason: "hours look wrong"})
	assert.True(t, errors.Is(err, appErrors.ErrConflict))
}

func TestTimesheetApproveValidation(t *testing.T) {
	in := fixedNow.Add(-4 * time.Hour)
	store := newTimesheetStoreStub(&models.Timesheet{ID: "ts-1", WorkerID: "worker-1", CompanyID: "company-1", Status: models.TimesheetStatusPending, ClockInTime: &in})
	svc := newTimesheetFixture(fixedNow, store)

	_, err := svc.Approve(context.Background(), "company-2", "ts-1", dto.ApproveTimesheetRequest{})
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	_, err = svc.Approve(context.Background(), "company-1", "ts-1", dto.ApproveTimesheetRequest{})
	assert.True(t, errors.Is(err, appErrors.ErrConflict), "open timesheet has no billable window")

	end := in.Add(-time.Hour)
	_, err = svc.Approve(context.Background(), "company-1", "ts-1", dto.ApproveTimesheetRequest{ApprovedStart: &in, ApprovedEnd: &end})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = svc.Approve(context.Background(), "company-1", "ts-1", dto.ApproveTimesheetRequest{ApprovedStart: &in})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = svc.Dispute(context.Background(), "company-1", "ts-1", dto.DisputeTimesheetRequest{})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
	assert.Zero(t, store.saved)
}

func TestTimesheetListScopes(t *testing.T) {
	store := newTimesheetStoreStub()
	svc := newTimesheetFixture(fixedNow, store)

	items, err := svc.ListForWorker(context.Background(), "worker-1", models.TimesheetFilter{CompanyID: "company-9"})
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Equal(t, "worker-1", store.last.WorkerID)
	assert.Empty(t, store.last.CompanyID)

	_, err = svc.ListForCompany(context.Background(), "company-1", models.TimesheetFilter{})
	require.NoError(t, err)
	assert.Equal(t, "company-1", store.last.CompanyID)
}
